// Package pddl implements a reader, document model and renderer for the
// STRIPS fragment of PDDL used by pddlsynth: typed objects, predicate
// declarations, and actions whose preconditions and effects are built from
// and/or/not, equality and atoms.
package pddl

import (
	"sort"
	"strings"
)

// Param is a typed name: an action/predicate parameter or a problem object.
// An empty Type means the root type "object".
type Param struct {
	Name string
	Type string
}

// Predicate is a predicate declaration.
type Predicate struct {
	Name   string
	Params []Param
}

// Arity is the number of declared arguments.
func (p Predicate) Arity() int { return len(p.Params) }

// Atom is a predicate applied to arguments (variables or object names).
type Atom struct {
	Predicate string
	Args      []string
}

// Key renders the atom as "pred a b", the form used to identify ground atoms.
func (a Atom) Key() string {
	if len(a.Args) == 0 {
		return a.Predicate
	}
	return a.Predicate + " " + strings.Join(a.Args, " ")
}

// Formula is a precondition, effect or goal expression.
type Formula interface {
	isFormula()
}

// And is a conjunction. An And with no operands renders as "(and )".
type And struct{ Operands []Formula }

// Or is a disjunction. An Or with no operands renders as "(or )".
type Or struct{ Operands []Formula }

// Not negates its operand.
type Not struct{ Operand Formula }

// AtomFormula is an atomic formula.
type AtomFormula struct{ Atom Atom }

// Equals compares two terms.
type Equals struct{ Left, Right string }

// Empty is the empty formula "()".
type Empty struct{}

func (*And) isFormula()         {}
func (*Or) isFormula()          {}
func (*Not) isFormula()         {}
func (*AtomFormula) isFormula() {}
func (*Equals) isFormula()      {}
func (*Empty) isFormula()       {}

// Action is an action schema.
type Action struct {
	Name         string
	Params       []Param
	Precondition Formula
	Effect       Formula
}

// Domain is a parsed planning domain.
type Domain struct {
	Name         string
	Requirements []string
	// Types maps each declared type to its parent type ("object" at the root).
	Types      map[string]string
	TypeOrder  []string
	Constants  []Param
	Predicates []Predicate
	Actions    []*Action
}

// Action returns the action schema with the given name, or nil.
func (d *Domain) Action(name string) *Action {
	for _, a := range d.Actions {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// Predicate returns the declaration with the given name.
func (d *Domain) Predicate(name string) (Predicate, bool) {
	for _, p := range d.Predicates {
		if p.Name == name {
			return p, true
		}
	}
	return Predicate{}, false
}

// Problem is a parsed planning task.
type Problem struct {
	Name         string
	DomainName   string
	Requirements []string
	Objects      []Param
	Init         []Atom
	Goal         Formula
}

// WithoutGoal returns a copy of p whose goal is the empty conjunction.
func (p *Problem) WithoutGoal() *Problem {
	c := *p
	c.Init = append([]Atom(nil), p.Init...)
	c.Goal = &And{}
	return &c
}

// WithoutGoalAndInit returns a copy of p with both goal and initial state cleared.
func (p *Problem) WithoutGoalAndInit() *Problem {
	c := *p
	c.Init = nil
	c.Goal = &And{}
	return &c
}

// GoalCount is the number of top-level goal conjuncts.
func (p *Problem) GoalCount() int {
	switch g := p.Goal.(type) {
	case *And:
		return len(g.Operands)
	case *Empty, nil:
		return 0
	default:
		return 1
	}
}

// InitCount is the number of initial facts.
func (p *Problem) InitCount() int { return len(p.Init) }

// PredicateNames returns the sorted set of predicate names referenced in f.
func PredicateNames(f Formula) []string {
	seen := map[string]bool{}
	collectPredicates(f, seen)
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func collectPredicates(f Formula, seen map[string]bool) {
	switch t := f.(type) {
	case *And:
		for _, op := range t.Operands {
			collectPredicates(op, seen)
		}
	case *Or:
		for _, op := range t.Operands {
			collectPredicates(op, seen)
		}
	case *Not:
		collectPredicates(t.Operand, seen)
	case *AtomFormula:
		seen[t.Atom.Predicate] = true
	}
}

// IsEmpty reports whether f has no sub-clauses: "()", "(and )" or "(or )".
func IsEmpty(f Formula) bool {
	switch t := f.(type) {
	case nil, *Empty:
		return true
	case *And:
		return len(t.Operands) == 0
	case *Or:
		return len(t.Operands) == 0
	}
	return false
}

// IsVariable reports whether a term is a "?x" variable.
func IsVariable(term string) bool { return strings.HasPrefix(term, "?") }
