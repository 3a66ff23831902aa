package pddl

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"pddlsynth/internal/testing/fixtures"
)

func TestParseDomainBlocksworld(t *testing.T) {
	d, err := ParseDomain(fixtures.BlocksworldDomain)
	if err != nil {
		t.Fatalf("ParseDomain: %v", err)
	}
	if d.Name != "blocksworld-4ops" {
		t.Errorf("Name = %q", d.Name)
	}
	if len(d.Predicates) != 5 {
		t.Errorf("got %d predicates, want 5", len(d.Predicates))
	}
	if len(d.Actions) != 4 {
		t.Fatalf("got %d actions, want 4", len(d.Actions))
	}
	stack := d.Action("stack")
	if stack == nil {
		t.Fatal("stack action missing")
	}
	want := []Param{{Name: "?ob"}, {Name: "?underob"}}
	if diff := cmp.Diff(want, stack.Params); diff != "" {
		t.Errorf("stack params mismatch (-want +got):\n%s", diff)
	}
	got := PredicateNames(stack.Effect)
	if diff := cmp.Diff([]string{"arm-empty", "clear", "holding", "on"}, got); diff != "" {
		t.Errorf("stack effect predicates (-want +got):\n%s", diff)
	}
}

func TestParseDomainTyped(t *testing.T) {
	d, err := ParseDomain(fixtures.GrippersDomain)
	if err != nil {
		t.Fatalf("ParseDomain: %v", err)
	}
	if d.Types["robot"] != "object" {
		t.Errorf("robot parent = %q, want object", d.Types["robot"])
	}
	move := d.Action("move")
	want := []Param{{"?r", "robot"}, {"?from", "room"}, {"?to", "room"}}
	if diff := cmp.Diff(want, move.Params); diff != "" {
		t.Errorf("move params (-want +got):\n%s", diff)
	}
}

func TestRenderRoundTrip(t *testing.T) {
	for name, text := range map[string]string{
		"blocksworld": fixtures.BlocksworldDomain,
		"template":    fixtures.BlocksworldTemplate,
		"grippers":    fixtures.GrippersDomain,
	} {
		t.Run(name, func(t *testing.T) {
			first := MustParseDomain(text).String()
			second := MustParseDomain(first).String()
			if first != second {
				t.Errorf("render not stable:\n%s\n---\n%s", first, second)
			}
		})
	}
}

func TestEmptyFormulas(t *testing.T) {
	d := MustParseDomain(fixtures.BlocksworldTemplate)
	a := d.Action("pickup")
	if !IsEmpty(a.Precondition) || !IsEmpty(a.Effect) {
		t.Fatalf("template bodies should be empty")
	}
	if got := FormatFormula(a.Effect); got != "()" {
		t.Errorf("empty effect renders %q, want ()", got)
	}
	if got := FormatFormula(&Or{}); got != "(or )" {
		t.Errorf("empty or renders %q", got)
	}
	f, err := ParseFormula("(and (clear ?x))")
	if err != nil {
		t.Fatal(err)
	}
	if IsEmpty(f) {
		t.Errorf("(and (clear ?x)) reported empty")
	}
}

func TestProblemViews(t *testing.T) {
	p, err := ParseProblem(fixtures.BlocksworldProblem)
	if err != nil {
		t.Fatalf("ParseProblem: %v", err)
	}
	if p.GoalCount() != 1 || p.InitCount() != 7 {
		t.Fatalf("goal=%d init=%d", p.GoalCount(), p.InitCount())
	}

	noGoal := p.WithoutGoal()
	if noGoal.GoalCount() != 0 || noGoal.InitCount() != 7 {
		t.Errorf("WithoutGoal: goal=%d init=%d", noGoal.GoalCount(), noGoal.InitCount())
	}
	if p.GoalCount() != 1 {
		t.Errorf("WithoutGoal mutated the original")
	}

	skeleton := p.WithoutGoalAndInit()
	reparsed, err := ParseProblem(skeleton.String())
	if err != nil {
		t.Fatalf("reparse skeleton: %v\n%s", err, skeleton)
	}
	if reparsed.InitCount() != 0 || len(reparsed.Objects) != 5 {
		t.Errorf("skeleton init=%d objects=%d", reparsed.InitCount(), len(reparsed.Objects))
	}
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"unclosed":     "(define (domain d) (:predicates (p)",
		"stray close":  "(define (domain d)))",
		"forall":       "(define (domain d) (:action a :parameters () :precondition (forall (?x) (p ?x)) :effect ()))",
		"bad section":  "(define (domain d) (:functions (f)))",
		"bad variable": "(define (domain d) (:predicates (p x)))",
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDomain(text)
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("want *ParseError, got %v", err)
			}
		})
	}
}

func TestCommentsAndCase(t *testing.T) {
	d, err := ParseDomain("; header\n(DEFINE (DOMAIN Demo) ; trailing\n (:PREDICATES (P ?X)))")
	if err != nil {
		t.Fatalf("ParseDomain: %v", err)
	}
	if d.Name != "demo" || d.Predicates[0].Name != "p" {
		t.Errorf("symbols not lower-cased: %+v", d)
	}
}
