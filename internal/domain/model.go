// Package domain holds the mutable planning domain that a synthesis run
// edits. All edits go through two operations, DeclarePredicates and
// SetActionClause; after every edit each predicate referenced by an action
// must be declared.
package domain

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"pddlsynth/internal/logging"
	"pddlsynth/internal/pddl"
)

// PlaceholderPredicate keeps an otherwise empty declaration block non-empty.
const PlaceholderPredicate = "dummy-predicate"

var (
	// ErrDuplicatePredicate is a contract violation: two declarations share a name.
	ErrDuplicatePredicate = errors.New("duplicate predicate names")
	// ErrUnknownAction is a contract violation: the action does not exist.
	ErrUnknownAction = errors.New("unknown action")
	// ErrUndeclaredPredicate means an action body references an undeclared predicate.
	ErrUndeclaredPredicate = errors.New("undeclared predicates")
	// ErrTemplate means the template lacks an empty (:predicates) section.
	ErrTemplate = errors.New("domain template must contain an empty predicate section")
)

var emptyPredicates = regexp.MustCompile(`(?i)\(:predicates\s*\)`)

// EmptyEffectError lists actions whose effect has no sub-clauses.
type EmptyEffectError struct {
	Actions []string
}

func (e *EmptyEffectError) Error() string {
	return fmt.Sprintf("The following actions have no effect: [%s]", strings.Join(e.Actions, " "))
}

// Model is a mutable domain paired with its template.
type Model struct {
	dom      *pddl.Domain
	template string
}

// New parses text into a Model. An empty declaration block gets the
// placeholder predicate so that the document stays well formed.
func New(text, template string) (*Model, error) {
	d, err := pddl.ParseDomain(text)
	if err != nil {
		return nil, fmt.Errorf("parse domain: %w", err)
	}
	if len(d.Predicates) == 0 {
		d.Predicates = []pddl.Predicate{{Name: PlaceholderPredicate}}
	}
	return &Model{dom: d, template: template}, nil
}

// FromTemplate starts a Model from its own template.
func FromTemplate(template string) (*Model, error) {
	return New(template, template)
}

// Template returns the template text.
func (m *Model) Template() string { return m.template }

// Domain exposes the parsed document. Callers must not mutate it.
func (m *Model) Domain() *pddl.Domain { return m.dom }

// String renders the domain. The placeholder predicate is dropped once real
// predicates exist and an empty disjunction renders as "()".
func (m *Model) String() string {
	m.dropPlaceholder()
	return strings.ReplaceAll(m.dom.String(), "(or )", "()")
}

// Copy returns an independent snapshot (render, then reparse).
func (m *Model) Copy() (*Model, error) {
	return New(m.String(), m.template)
}

func (m *Model) dropPlaceholder() {
	kept := m.dom.Predicates[:0:0]
	for _, p := range m.dom.Predicates {
		if p.Name != PlaceholderPredicate {
			kept = append(kept, p)
		}
	}
	if len(kept) != 0 && len(kept) != len(m.dom.Predicates) {
		m.dom.Predicates = kept
	}
}

// DeclarePredicates adds or replaces predicate declarations. Fragments are
// parsed by splicing them into the template's empty predicate section. A
// fragment replaces any existing declaration with the same name. The edit is
// kept only if every predicate used by any action is then declared.
func (m *Model) DeclarePredicates(fragments []string) error {
	parsed, err := m.parsePredicates(fragments)
	if err != nil {
		return err
	}
	merged := mergePredicates(parsed, m.dom.Predicates)
	if dups := duplicateNames(merged); len(dups) > 0 {
		return fmt.Errorf("%w: %v", ErrDuplicatePredicate, dups)
	}
	old := m.dom.Predicates
	m.dom.Predicates = merged
	if err := m.checkDeclared(); err != nil {
		m.dom.Predicates = old
		return err
	}
	logging.DomainDebug("declared %d predicates, %d total", len(parsed), len(merged))
	return nil
}

func (m *Model) parsePredicates(fragments []string) ([]pddl.Predicate, error) {
	loc := emptyPredicates.FindStringIndex(m.template)
	if loc == nil {
		return nil, ErrTemplate
	}
	doc := m.template[:loc[0]] + "(:predicates " + strings.Join(fragments, "\n") + ")" + m.template[loc[1]:]
	d, err := pddl.ParseDomain(doc)
	if err != nil {
		return nil, fmt.Errorf("parse predicates: %w", err)
	}
	// Identical declarations collapse; same name with different arguments does not.
	seen := map[string]bool{}
	var out []pddl.Predicate
	for _, p := range d.Predicates {
		if key := p.String(); !seen[key] {
			seen[key] = true
			out = append(out, p)
		}
	}
	return out, nil
}

func mergePredicates(declared, existing []pddl.Predicate) []pddl.Predicate {
	names := map[string]bool{}
	for _, p := range declared {
		names[p.Name] = true
	}
	out := append([]pddl.Predicate(nil), declared...)
	for _, p := range existing {
		if !names[p.Name] {
			out = append(out, p)
		}
	}
	return out
}

func duplicateNames(preds []pddl.Predicate) []string {
	count := map[string]int{}
	for _, p := range preds {
		count[p.Name]++
	}
	var dups []string
	for name, n := range count {
		if n > 1 {
			dups = append(dups, name)
		}
	}
	sort.Strings(dups)
	return dups
}

// SetActionClause replaces the precondition and effect of one action. Each
// list becomes "(and f1 f2 ...)", or "()" when empty. The whole document is
// rendered and reparsed; the edit is kept only if every predicate used by
// any action is declared.
func (m *Model) SetActionClause(action string, preconditions, effects []string) error {
	a := m.dom.Action(action)
	if a == nil {
		return fmt.Errorf("%w: could not find action %s in domain", ErrUnknownAction, action)
	}
	pre, err := clause(preconditions)
	if err != nil {
		return fmt.Errorf("precondition of %s: %w", action, err)
	}
	eff, err := clause(effects)
	if err != nil {
		return fmt.Errorf("effect of %s: %w", action, err)
	}

	oldPre, oldEff := a.Precondition, a.Effect
	a.Precondition, a.Effect = pre, eff
	text := m.String()
	a.Precondition, a.Effect = oldPre, oldEff

	next, err := New(text, m.template)
	if err != nil {
		return err
	}
	if err := next.checkDeclared(); err != nil {
		return err
	}
	m.dom = next.dom
	logging.DomainDebug("set clauses of %s: %d preconditions, %d effects", action, len(preconditions), len(effects))
	return nil
}

func clause(fragments []string) (pddl.Formula, error) {
	if len(fragments) == 0 {
		return &pddl.Empty{}, nil
	}
	return pddl.ParseFormula("(and " + strings.Join(fragments, " ") + ")")
}

// Undeclared returns the sorted names used in action bodies but not declared.
func (m *Model) Undeclared() []string {
	declared := map[string]bool{}
	for _, p := range m.dom.Predicates {
		declared[p.Name] = true
	}
	missing := map[string]bool{}
	for _, a := range m.dom.Actions {
		for _, f := range []pddl.Formula{a.Precondition, a.Effect} {
			for _, name := range pddl.PredicateNames(f) {
				if !declared[name] {
					missing[name] = true
				}
			}
		}
	}
	out := make([]string, 0, len(missing))
	for n := range missing {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (m *Model) checkDeclared() error {
	if missing := m.Undeclared(); len(missing) > 0 {
		return fmt.Errorf("%w: %v. You must declare all predicates before using them", ErrUndeclaredPredicate, missing)
	}
	return nil
}

// SanityCheck reports actions whose effect is structurally empty.
func (m *Model) SanityCheck() error {
	var empty []string
	for _, a := range m.dom.Actions {
		if pddl.IsEmpty(a.Effect) {
			empty = append(empty, a.Name)
		}
	}
	if len(empty) > 0 {
		return &EmptyEffectError{Actions: empty}
	}
	return nil
}
