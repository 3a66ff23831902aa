package stepper

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"pddlsynth/internal/testing/fixtures"
)

func load(t *testing.T, domain, problem string, opts Options) *Stepper {
	t.Helper()
	s, err := LoadText(context.Background(), domain, problem, opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBlocksworldInitialApplicable(t *testing.T) {
	s := load(t, fixtures.BlocksworldDomain, fixtures.BlocksworldProblem, Options{})
	names, err := s.ApplicableNames()
	require.NoError(t, err)
	require.Equal(t, []string{"unstack b3 b2"}, names)
}

func TestBlocksworldPlanReachesGoal(t *testing.T) {
	s := load(t, fixtures.BlocksworldDomain, fixtures.BlocksworldProblem, Options{KeepGoal: true})
	for _, step := range fixtures.BlocksworldPlan {
		ops, err := s.Applicable()
		require.NoError(t, err)
		op, ok := ops[step]
		require.True(t, ok, "%s should be applicable", step)
		effects, err := s.Apply(op)
		require.NoError(t, err)
		require.Len(t, effects, op.EffectCount())
	}
	done, err := s.GoalSatisfied()
	require.NoError(t, err)
	require.True(t, done)
}

func TestApplyEffects(t *testing.T) {
	s := load(t, fixtures.BlocksworldDomain, fixtures.BlocksworldProblem, Options{})
	ops, _ := s.Applicable()
	effects, err := s.Apply(ops["unstack b3 b2"])
	require.NoError(t, err)

	var rendered []string
	for _, f := range effects {
		rendered = append(rendered, f.String())
	}
	want := []string{
		"(not (on b3 b2))", "(not (clear b3))", "(not (arm-empty))",
		"(holding b3)", "(clear b2)",
	}
	if diff := cmp.Diff(want, rendered); diff != "" {
		t.Errorf("effects (-want +got):\n%s", diff)
	}

	_, err = s.Apply(ops["unstack b3 b2"])
	require.ErrorIs(t, err, ErrNotApplicable)
}

func TestStateAndRelevantFacts(t *testing.T) {
	s := load(t, fixtures.BlocksworldDomain, fixtures.BlocksworldProblem, Options{})
	state, err := s.State()
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, f := range state {
		key := f.String()
		require.False(t, seen[key], "duplicate fact %s", key)
		seen[key] = true
	}
	require.True(t, seen["(arm-empty)"])
	require.True(t, seen["(on b3 b2)"])
	require.True(t, seen["(not (holding b1))"])

	relevant, err := s.RelevantFacts("unstack b3 b2")
	require.NoError(t, err)
	got := map[string]bool{}
	for _, f := range relevant {
		for _, a := range f.Args {
			require.Contains(t, []string{"b3", "b2"}, a, "irrelevant fact %s", f)
		}
		got[f.String()] = true
	}
	for _, want := range []string{"(arm-empty)", "(clear b3)", "(on b3 b2)", "(not (on b2 b3))"} {
		require.True(t, got[want], "missing %s in %v", want, relevant)
	}
	require.Len(t, got, len(relevant), "relevant facts must not repeat")
}

func TestRelevantFactsBlankName(t *testing.T) {
	s := load(t, fixtures.BlocksworldDomain, fixtures.BlocksworldProblem, Options{})
	for _, name := range []string{"", "   "} {
		facts, err := s.RelevantFacts(name)
		require.NoError(t, err)
		require.Empty(t, facts)
	}
}

func TestTypedGrounding(t *testing.T) {
	s := load(t, fixtures.GrippersDomain, fixtures.GrippersProblem, Options{})
	names, err := s.ApplicableNames()
	require.NoError(t, err)
	want := []string{
		"move robot1 room1 room1",
		"move robot1 room1 room2",
		"pick robot1 ball1 room1 lgripper1",
		"pick robot1 ball1 room1 rgripper1",
		"pick robot1 ball2 room1 lgripper1",
		"pick robot1 ball2 room1 rgripper1",
	}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("applicable (-want +got):\n%s", diff)
	}
}

func TestStaticPredicatesAreFolded(t *testing.T) {
	s := load(t, fixtures.ChainDomain, fixtures.ChainProblem, Options{})
	names, err := s.ApplicableNames()
	require.NoError(t, err)
	require.Equal(t, []string{"step n0 n1"}, names)

	state, _ := s.State()
	for _, f := range state {
		require.NotEqual(t, "next", f.Predicate, "static facts are not part of the state")
	}
}

const guardedDomain = `(define (domain guarded)
  (:predicates (at ?x) (blocked ?x) (new-axiom@0))
  (:action go
    :parameters (?from ?to)
    :precondition (and (at ?from) (not (= ?from ?to)) (not (blocked ?to)))
    :effect (and (at ?to) (not (at ?from)) (new-axiom@0))))`

const guardedProblem = `(define (problem g)
  (:domain guarded)
  (:objects a b c)
  (:init (at a) (blocked c))
  (:goal (and (at b))))`

func TestNegativePreconditionsAndEquality(t *testing.T) {
	s := load(t, guardedDomain, guardedProblem, Options{})
	names, err := s.ApplicableNames()
	require.NoError(t, err)
	require.Equal(t, []string{"go a b"}, names)

	state, _ := s.State()
	for _, f := range state {
		require.NotContains(t, f.Predicate, AxiomPrefix)
	}
}

func TestLoadErrors(t *testing.T) {
	cases := map[string]string{
		"undeclared": `(define (domain d) (:predicates (p ?x))
  (:action a :parameters (?x) :precondition (q ?x) :effect (p ?x)))`,
		"arity": `(define (domain d) (:predicates (p ?x))
  (:action a :parameters (?x) :precondition (p ?x ?x) :effect (p ?x)))`,
		"unbound variable": `(define (domain d) (:predicates (p ?x))
  (:action a :parameters (?x) :precondition (p ?y) :effect (p ?x)))`,
		"disjunctive effect": `(define (domain d) (:predicates (p ?x))
  (:action a :parameters (?x) :precondition () :effect (or (p ?x))))`,
		"syntax": `(define (domain d)`,
	}
	for name, domain := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadText(context.Background(), domain, fixtures.ChainProblem, Options{})
			require.ErrorIs(t, err, ErrInvalidTask)
		})
	}
}

func TestOperatorCap(t *testing.T) {
	_, err := LoadText(context.Background(), fixtures.BlocksworldDomain, fixtures.BlocksworldProblem, Options{MaxOperators: 3})
	require.True(t, errors.Is(err, ErrTooLarge) && errors.Is(err, ErrInvalidTask), "got %v", err)
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Grounding checks ctx periodically; a tiny task may finish first, a
	// canceled one must never report success with a broken stepper.
	s, err := LoadText(ctx, fixtures.BlocksworldDomain, fixtures.BlocksworldProblem, Options{})
	if err == nil {
		require.NoError(t, s.Close())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s, err := LoadText(context.Background(), fixtures.ChainDomain, fixtures.ChainProblem, Options{})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Applicable()
	require.ErrorIs(t, err, ErrClosed)
	_, err = s.State()
	require.ErrorIs(t, err, ErrClosed)
}

func TestSnapshotRestore(t *testing.T) {
	s := load(t, fixtures.ChainDomain, fixtures.ChainProblem, Options{})
	snap := s.Snapshot()
	ops, _ := s.Applicable()
	_, err := s.Apply(ops["step n0 n1"])
	require.NoError(t, err)
	require.NoError(t, s.Restore(snap))
	names, _ := s.ApplicableNames()
	require.Equal(t, []string{"step n0 n1"}, names)
}
