// Package stepper compiles a domain and problem into a live state machine:
// list the applicable ground operators, apply one, read the facts back.
// Random walks and plan replays are built on it.
package stepper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"pddlsynth/internal/logging"
	"pddlsynth/internal/pddl"
)

// AxiomPrefix marks internal bookkeeping atoms that are never exposed.
const AxiomPrefix = "new-axiom@"

// DefaultMaxOperators bounds grounding.
const DefaultMaxOperators = 200000

var (
	// ErrInvalidTask wraps every reason a domain/problem pair cannot be loaded.
	ErrInvalidTask = errors.New("invalid planning task")
	// ErrTooLarge means grounding exceeded the operator cap.
	ErrTooLarge = errors.New("task too large")
	// ErrClosed is returned by every method after Close.
	ErrClosed = errors.New("stepper closed")
	// ErrNotApplicable is returned when applying an operator whose precondition fails.
	ErrNotApplicable = errors.New("operator not applicable")
)

// Fact is one state atom with its polarity.
type Fact struct {
	Negated   bool
	Predicate string
	Args      []string
}

// String renders "(p a b)" or "(not (p a b))".
func (f Fact) String() string {
	s := "(" + pddl.Atom{Predicate: f.Predicate, Args: f.Args}.Key() + ")"
	if f.Negated {
		return "(not " + s + ")"
	}
	return s
}

// Operator is a ground action.
type Operator struct {
	ID     int
	Name   string
	Schema string
	Args   []string

	pre   *cond
	adds  []int
	dels  []int
	owner *Stepper
}

// EffectCount is the number of effect atoms applied when the operator runs.
func (o *Operator) EffectCount() int { return len(o.adds) + len(o.dels) }

// Options tune Load.
type Options struct {
	// KeepGoal keeps the problem goal so GoalSatisfied can be asked.
	KeepGoal     bool
	MaxOperators int
}

// Stepper is a loaded task. It is not safe for concurrent use.
type Stepper struct {
	atoms  []pddl.Atom
	state  []bool
	ops    []*Operator
	goal   *cond
	closed bool
}

// LoadText parses both documents and calls Load.
func LoadText(ctx context.Context, domainText, problemText string, opts Options) (*Stepper, error) {
	d, err := pddl.ParseDomain(domainText)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}
	p, err := pddl.ParseProblem(problemText)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}
	return Load(ctx, d, p, opts)
}

// Load grounds the task. Unless opts.KeepGoal is set the goal is ignored so
// that exploration is not pruned towards it.
func Load(ctx context.Context, d *pddl.Domain, p *pddl.Problem, opts Options) (*Stepper, error) {
	timer := logging.StartTimer(logging.CategoryStepper, "ground "+d.Name)
	defer timer.Stop()

	if !opts.KeepGoal {
		p = p.WithoutGoal()
	}
	if opts.MaxOperators == 0 {
		opts.MaxOperators = DefaultMaxOperators
	}
	t, err := newTask(d, p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}
	cands, err := t.instantiate(ctx, opts.MaxOperators)
	if err != nil {
		if errors.Is(err, ErrTooLarge) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidTask, err)
		}
		return nil, err
	}
	t.reach(cands)

	fluent := map[string]bool{}
	for _, c := range cands {
		if !c.reachable {
			continue
		}
		for _, k := range c.adds {
			fluent[k] = true
		}
		for _, k := range c.dels {
			fluent[k] = true
		}
	}

	s := &Stepper{}
	ids := map[string]int{}
	for i, k := range sortedKeys(fluent) {
		pred, args := splitKey(k)
		ids[k] = i
		s.atoms = append(s.atoms, pddl.Atom{Predicate: pred, Args: args})
		s.state = append(s.state, t.init[k])
	}
	for _, c := range cands {
		if !c.reachable {
			continue
		}
		op := &Operator{
			ID:     len(s.ops),
			Name:   strings.Join(append([]string{c.schema}, c.args...), " "),
			Schema: c.schema,
			Args:   c.args,
			pre:    c.pre.index(ids, t.init),
			owner:  s,
		}
		for _, k := range c.adds {
			op.adds = append(op.adds, ids[k])
		}
		for _, k := range c.dels {
			op.dels = append(op.dels, ids[k])
		}
		s.ops = append(s.ops, op)
	}

	if opts.KeepGoal {
		declared := map[string]bool{}
		for _, pr := range d.Predicates {
			declared[pr.Name] = true
		}
		for _, name := range pddl.PredicateNames(p.Goal) {
			if !declared[name] {
				return nil, fmt.Errorf("%w: goal uses undeclared predicate %s", ErrInvalidTask, name)
			}
		}
		s.goal = t.ground(p.Goal, nil).index(ids, t.init)
	}

	logging.StepperDebug("grounded %s/%s: %d candidates, %d reachable operators, %d fluents",
		d.Name, p.Name, len(cands), len(s.ops), len(s.atoms))
	return s, nil
}

// Applicable returns the executable operators keyed by name ("pickup b1").
func (s *Stepper) Applicable() (map[string]*Operator, error) {
	if s.closed {
		return nil, ErrClosed
	}
	out := map[string]*Operator{}
	for _, op := range s.ops {
		if op.pre.eval(s.state) {
			out[op.Name] = op
		}
	}
	return out, nil
}

// ApplicableNames returns the sorted names of the executable operators.
func (s *Stepper) ApplicableNames() ([]string, error) {
	ops, err := s.Applicable()
	if err != nil {
		return nil, err
	}
	return SortedNames(ops), nil
}

// SortedNames returns the keys of ops in order.
func SortedNames(ops map[string]*Operator) []string {
	names := make([]string, 0, len(ops))
	for name := range ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply executes op and returns its effect facts. Deletes are applied
// before adds.
func (s *Stepper) Apply(op *Operator) ([]Fact, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if op.owner != s {
		return nil, fmt.Errorf("operator %s belongs to another stepper", op.Name)
	}
	if !op.pre.eval(s.state) {
		return nil, fmt.Errorf("%w: %s", ErrNotApplicable, op.Name)
	}
	effects := make([]Fact, 0, op.EffectCount())
	for _, id := range op.dels {
		s.state[id] = false
		effects = append(effects, s.fact(id, true))
	}
	for _, id := range op.adds {
		s.state[id] = true
		effects = append(effects, s.fact(id, false))
	}
	return effects, nil
}

func (s *Stepper) fact(id int, negated bool) Fact {
	a := s.atoms[id]
	return Fact{Negated: negated, Predicate: a.Predicate, Args: a.Args}
}

// State lists every fluent atom with its current polarity, sorted by atom.
func (s *Stepper) State() ([]Fact, error) {
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]Fact, 0, len(s.atoms))
	for id, a := range s.atoms {
		if strings.HasPrefix(a.Predicate, AxiomPrefix) {
			continue
		}
		out = append(out, s.fact(id, !s.state[id]))
	}
	return out, nil
}

// RelevantFacts returns the facts whose arguments are all among the bound
// arguments of the named operator. Zero-arity facts are always relevant.
func (s *Stepper) RelevantFacts(name string) ([]Fact, error) {
	all, err := s.State()
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return nil, nil
	}
	params := map[string]bool{}
	for _, p := range fields[1:] {
		params[p] = true
	}
	var out []Fact
	for _, f := range all {
		relevant := true
		for _, a := range f.Args {
			if !params[a] {
				relevant = false
				break
			}
		}
		if relevant {
			out = append(out, f)
		}
	}
	return out, nil
}

// GoalSatisfied reports whether the goal holds. It requires Options.KeepGoal.
func (s *Stepper) GoalSatisfied() (bool, error) {
	if s.closed {
		return false, ErrClosed
	}
	if s.goal == nil {
		return false, errors.New("stepper loaded without goal")
	}
	return s.goal.eval(s.state), nil
}

// Snapshot returns a copy of the raw state; Restore puts it back. Search
// uses the pair to branch without reloading.
func (s *Stepper) Snapshot() []bool {
	return append([]bool(nil), s.state...)
}

// Restore replaces the state with a snapshot taken from this stepper.
func (s *Stepper) Restore(state []bool) error {
	if s.closed {
		return ErrClosed
	}
	if len(state) != len(s.state) {
		return fmt.Errorf("snapshot has %d atoms, stepper has %d", len(state), len(s.state))
	}
	copy(s.state, state)
	return nil
}

// Close releases the grounded task. Calling it again is a no-op.
func (s *Stepper) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.atoms, s.state, s.ops, s.goal = nil, nil, nil, nil
	return nil
}
