// Package describe turns state facts into natural-language sentences. Each
// domain supplies a describer that maps a predicate and its arguments to a
// positive and a negative phrasing.
package describe

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"pddlsynth/internal/sandbox"
	"pddlsynth/internal/stepper"
)

// ErrUnknownPredicate is returned for predicates a describer does not know.
var ErrUnknownPredicate = errors.New("unknown predicate")

// Describer phrases one fact.
type Describer interface {
	Describe(predicate string, args []string) (positive, negative string, err error)
}

// Func adapts a function to Describer.
type Func func(predicate string, args []string) (string, string, error)

// Describe calls f.
func (f Func) Describe(predicate string, args []string) (string, string, error) {
	return f(predicate, args)
}

// Spec identifies a describer by value so it can be rebuilt in another process.
type Spec struct {
	Builtin string `json:"builtin,omitempty"`
	Source  string `json:"source,omitempty"`
}

// Portable describers can report their Spec.
type Portable interface {
	Describer
	Spec() Spec
}

// SpecOf returns d's Spec if d is Portable.
func SpecOf(d Describer) (Spec, bool) {
	p, ok := d.(Portable)
	if !ok {
		return Spec{}, false
	}
	return p.Spec(), true
}

// Build reconstructs the describer. The zero Spec builds nil.
func (s Spec) Build(ctx context.Context, x *sandbox.Executor) (Describer, error) {
	switch {
	case s.Source != "":
		return LoadScript(ctx, x, s.Source)
	case s.Builtin != "":
		d, ok := Builtin(s.Builtin)
		if !ok {
			return nil, fmt.Errorf("no builtin describer named %q", s.Builtin)
		}
		return d, nil
	}
	return nil, nil
}

// Phrase is a pair of fmt templates over the predicate's arguments, e.g.
// "Block %[1]s is on block %[2]s.".
type Phrase struct {
	Arity    int
	Positive string
	Negative string
}

// Table is a describer backed by fixed phrases.
type Table struct {
	name    string
	phrases map[string]Phrase
}

// NewTable creates a named table describer.
func NewTable(name string, phrases map[string]Phrase) *Table {
	return &Table{name: name, phrases: phrases}
}

// Describe formats the phrases for predicate.
func (t *Table) Describe(predicate string, args []string) (string, string, error) {
	p, ok := t.phrases[predicate]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownPredicate, predicate)
	}
	if len(args) != p.Arity {
		return "", "", fmt.Errorf("%s takes %d arguments, got %d", predicate, p.Arity, len(args))
	}
	vals := make([]any, len(args))
	for i, a := range args {
		vals[i] = a
	}
	return fmt.Sprintf(p.Positive, vals...), fmt.Sprintf(p.Negative, vals...), nil
}

// Spec implements Portable.
func (t *Table) Spec() Spec { return Spec{Builtin: t.name} }

type null struct{}

func (null) Describe(string, []string) (string, string, error) { return "", "", nil }
func (null) Spec() Spec                                        { return Spec{Builtin: "null"} }

// Null describes every fact with empty strings.
var Null Portable = null{}

var builtins = map[string]Portable{
	"null": Null,
	"blocksworld": NewTable("blocksworld", map[string]Phrase{
		"clear":     {1, "Block %[1]s is clear.", "Block %[1]s is not clear."},
		"on-table":  {1, "Block %[1]s is on the table.", "Block %[1]s is not on the table."},
		"arm-empty": {0, "Arm is empty.", "Arm is not empty."},
		"holding":   {1, "Arm is holding block %[1]s.", "Arm is not holding block %[1]s."},
		"on":        {2, "Block %[1]s is on block %[2]s.", "Block %[1]s is not on block %[2]s."},
	}),
	"grippers": NewTable("grippers", map[string]Phrase{
		"at-robby": {2, "Robot %[1]s is in room %[2]s.", "Robot %[1]s is not in room %[2]s."},
		"at":       {2, "Object %[1]s is in room %[2]s.", "Object %[1]s is not in room %[2]s."},
		"free":     {2, "Gripper %[2]s of robot %[1]s is free.", "Gripper %[2]s of robot %[1]s is not free."},
		"carry": {3, "Robot %[1]s is carrying object %[2]s with gripper %[3]s.",
			"Robot %[1]s is not carrying object %[2]s with gripper %[3]s."},
	}),
}

// Builtin returns a compiled-in describer by name.
func Builtin(name string) (Portable, bool) {
	d, ok := builtins[name]
	return d, ok
}

// BuiltinNames lists the compiled-in describers.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// script is a describer interpreted from Go source.
type script struct {
	mu  sync.Mutex
	src string
	fn  sandbox.DescribeFunc
}

// LoadScript interprets src, which must define
// func DescribePredicate(name string, args []string) (string, string, error).
// An error mentioning "unknown predicate" is reported as ErrUnknownPredicate.
func LoadScript(ctx context.Context, x *sandbox.Executor, src string) (Portable, error) {
	fn, err := x.LoadDescriber(ctx, src)
	if err != nil {
		return nil, err
	}
	return &script{src: src, fn: fn}, nil
}

func (s *script) Describe(predicate string, args []string) (pos, neg string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("describer panicked on %s: %v", predicate, p)
		}
	}()
	pos, neg, err = s.fn(predicate, args)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "unknown predicate") {
		err = fmt.Errorf("%w: %v", ErrUnknownPredicate, err)
	}
	return pos, neg, err
}

func (s *script) Spec() Spec { return Spec{Source: s.src} }

// StateText phrases each fact with its positive or negative sentence and
// joins the non-empty ones with spaces.
func StateText(d Describer, facts []stepper.Fact) (string, error) {
	parts := make([]string, 0, len(facts))
	for _, f := range facts {
		pos, neg, err := d.Describe(f.Predicate, f.Args)
		if err != nil {
			return "", err
		}
		s := pos
		if f.Negated {
			s = neg
		}
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " "), nil
}
