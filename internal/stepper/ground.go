package stepper

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"pddlsynth/internal/pddl"
)

type condKind uint8

const (
	condConst condKind = iota
	condAtom
	condNot
	condAnd
	condOr
)

// cond is a ground formula. Static atoms are folded into constants while
// grounding; fluent atoms are referenced by key and later by index.
type cond struct {
	kind  condKind
	value bool
	key   string
	atom  int
	kids  []*cond
}

var (
	condTrue  = &cond{kind: condConst, value: true}
	condFalse = &cond{kind: condConst, value: false}
)

func constCond(v bool) *cond {
	if v {
		return condTrue
	}
	return condFalse
}

func notCond(c *cond) *cond {
	if c.kind == condConst {
		return constCond(!c.value)
	}
	return &cond{kind: condNot, kids: []*cond{c}}
}

// junction builds an and (or, when isOr) with constant folding.
func junction(isOr bool, kids []*cond) *cond {
	var kept []*cond
	for _, k := range kids {
		if k.kind == condConst {
			if k.value == isOr {
				return constCond(isOr)
			}
			continue
		}
		kept = append(kept, k)
	}
	switch len(kept) {
	case 0:
		return constCond(!isOr)
	case 1:
		return kept[0]
	}
	kind := condAnd
	if isOr {
		kind = condOr
	}
	return &cond{kind: kind, kids: kept}
}

func (c *cond) eval(state []bool) bool {
	switch c.kind {
	case condConst:
		return c.value
	case condAtom:
		return state[c.atom]
	case condNot:
		return !c.kids[0].eval(state)
	case condAnd:
		for _, k := range c.kids {
			if !k.eval(state) {
				return false
			}
		}
		return true
	default:
		for _, k := range c.kids {
			if k.eval(state) {
				return true
			}
		}
		return false
	}
}

// relaxed evaluates c under delete relaxation: negative literals always hold.
func (c *cond) relaxed(reached map[string]bool, positive bool) bool {
	switch c.kind {
	case condConst:
		return c.value == positive
	case condAtom:
		return !positive || reached[c.key]
	case condNot:
		return c.kids[0].relaxed(reached, !positive)
	}
	all := (c.kind == condAnd) == positive
	for _, k := range c.kids {
		ok := k.relaxed(reached, positive)
		if all && !ok {
			return false
		}
		if !all && ok {
			return true
		}
	}
	return all
}

// index replaces fluent keys by atom ids and folds the rest against init.
func (c *cond) index(ids map[string]int, init map[string]bool) *cond {
	switch c.kind {
	case condConst:
		return c
	case condAtom:
		if id, ok := ids[c.key]; ok {
			return &cond{kind: condAtom, key: c.key, atom: id}
		}
		return constCond(init[c.key])
	case condNot:
		return notCond(c.kids[0].index(ids, init))
	}
	kids := make([]*cond, len(c.kids))
	for i, k := range c.kids {
		kids[i] = k.index(ids, init)
	}
	return junction(c.kind == condOr, kids)
}

// task is the typed, validated view of a domain and problem used for grounding.
type task struct {
	dom     *pddl.Domain
	prob    *pddl.Problem
	objects []pddl.Param
	init    map[string]bool
	static  map[string]bool
}

func newTask(d *pddl.Domain, p *pddl.Problem) (*task, error) {
	t := &task{dom: d, prob: p, init: map[string]bool{}, static: map[string]bool{}}
	for _, o := range append(append([]pddl.Param(nil), d.Constants...), p.Objects...) {
		if err := t.checkType(o.Type); err != nil {
			return nil, fmt.Errorf("object %s: %w", o.Name, err)
		}
		t.objects = append(t.objects, o)
	}

	declared := map[string]int{}
	for _, pr := range d.Predicates {
		declared[pr.Name] = pr.Arity()
	}
	for _, a := range p.Init {
		n, ok := declared[a.Predicate]
		if !ok {
			continue
		}
		if n != len(a.Args) {
			return nil, fmt.Errorf("initial fact %s: predicate %s takes %d arguments", a, a.Predicate, n)
		}
		t.init[a.Key()] = true
	}

	for _, pr := range d.Predicates {
		t.static[pr.Name] = true
	}
	for _, a := range d.Actions {
		if err := t.checkAction(a, declared); err != nil {
			return nil, fmt.Errorf("action %s: %w", a.Name, err)
		}
		adds, dels, err := effectAtoms(a.Effect)
		if err != nil {
			return nil, fmt.Errorf("action %s: %w", a.Name, err)
		}
		for _, e := range append(adds, dels...) {
			t.static[e.Predicate] = false
		}
	}
	return t, nil
}

func (t *task) checkType(typ string) error {
	if typ == "" || typ == "object" {
		return nil
	}
	if _, ok := t.dom.Types[typ]; !ok {
		return fmt.Errorf("undefined type %s", typ)
	}
	return nil
}

// isA reports whether typ equals want or descends from it.
func (t *task) isA(typ, want string) bool {
	if want == "" || want == "object" {
		return true
	}
	for seen := 0; typ != "" && seen <= len(t.dom.Types); seen++ {
		if typ == want {
			return true
		}
		typ = t.dom.Types[typ]
	}
	return false
}

func (t *task) checkAction(a *pddl.Action, declared map[string]int) error {
	params := map[string]bool{}
	for _, p := range a.Params {
		if err := t.checkType(p.Type); err != nil {
			return fmt.Errorf("parameter %s: %w", p.Name, err)
		}
		params[p.Name] = true
	}
	var check func(f pddl.Formula) error
	checkTerm := func(term string) error {
		if pddl.IsVariable(term) && !params[term] {
			return fmt.Errorf("unbound variable %s", term)
		}
		return nil
	}
	check = func(f pddl.Formula) error {
		switch x := f.(type) {
		case *pddl.And:
			for _, op := range x.Operands {
				if err := check(op); err != nil {
					return err
				}
			}
		case *pddl.Or:
			for _, op := range x.Operands {
				if err := check(op); err != nil {
					return err
				}
			}
		case *pddl.Not:
			return check(x.Operand)
		case *pddl.Equals:
			if err := checkTerm(x.Left); err != nil {
				return err
			}
			return checkTerm(x.Right)
		case *pddl.AtomFormula:
			n, ok := declared[x.Atom.Predicate]
			if !ok {
				return fmt.Errorf("undeclared predicate %s", x.Atom.Predicate)
			}
			if n != len(x.Atom.Args) {
				return fmt.Errorf("predicate %s takes %d arguments, got %d", x.Atom.Predicate, n, len(x.Atom.Args))
			}
			for _, arg := range x.Atom.Args {
				if err := checkTerm(arg); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := check(a.Precondition); err != nil {
		return err
	}
	return check(a.Effect)
}

// effectAtoms splits a STRIPS effect into add and delete lists.
func effectAtoms(f pddl.Formula) (adds, dels []pddl.Atom, err error) {
	var walk func(f pddl.Formula) error
	walk = func(f pddl.Formula) error {
		switch x := f.(type) {
		case nil, *pddl.Empty:
		case *pddl.And:
			for _, op := range x.Operands {
				if err := walk(op); err != nil {
					return err
				}
			}
		case *pddl.Or:
			if len(x.Operands) > 0 {
				return fmt.Errorf("disjunctive effects are not supported")
			}
		case *pddl.AtomFormula:
			adds = append(adds, x.Atom)
		case *pddl.Not:
			a, ok := x.Operand.(*pddl.AtomFormula)
			if !ok {
				return fmt.Errorf("only atoms may be negated in effects")
			}
			dels = append(dels, a.Atom)
		default:
			return fmt.Errorf("unsupported effect %s", pddl.FormatFormula(f))
		}
		return nil
	}
	err = walk(f)
	return adds, dels, err
}

func substitute(args []string, binding map[string]string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if v, ok := binding[a]; ok {
			out[i] = v
		} else {
			out[i] = a
		}
	}
	return out
}

func groundKey(pred string, args []string) string {
	return pddl.Atom{Predicate: pred, Args: args}.Key()
}

// ground instantiates f under binding, folding static atoms and equality.
func (t *task) ground(f pddl.Formula, binding map[string]string) *cond {
	switch x := f.(type) {
	case nil, *pddl.Empty:
		return condTrue
	case *pddl.And:
		kids := make([]*cond, 0, len(x.Operands))
		for _, op := range x.Operands {
			kids = append(kids, t.ground(op, binding))
		}
		return junction(false, kids)
	case *pddl.Or:
		// An empty disjunction renders as "()" and means no condition.
		if len(x.Operands) == 0 {
			return condTrue
		}
		kids := make([]*cond, 0, len(x.Operands))
		for _, op := range x.Operands {
			kids = append(kids, t.ground(op, binding))
		}
		return junction(true, kids)
	case *pddl.Not:
		return notCond(t.ground(x.Operand, binding))
	case *pddl.Equals:
		lr := substitute([]string{x.Left, x.Right}, binding)
		return constCond(lr[0] == lr[1])
	case *pddl.AtomFormula:
		key := groundKey(x.Atom.Predicate, substitute(x.Atom.Args, binding))
		if t.static[x.Atom.Predicate] {
			return constCond(t.init[key])
		}
		return &cond{kind: condAtom, key: key}
	}
	return condFalse
}

// prefilter is a top-level precondition conjunct that can be decided as soon
// as every parameter it mentions is bound.
type prefilter struct {
	formula pddl.Formula
	ready   int
}

func (t *task) prefilters(a *pddl.Action) []prefilter {
	pos := map[string]int{}
	for i, p := range a.Params {
		pos[p.Name] = i
	}
	readyAt := func(terms []string) int {
		r := -1
		for _, term := range terms {
			if i, ok := pos[term]; ok && i > r {
				r = i
			}
		}
		return r
	}
	var conjuncts []pddl.Formula
	if and, ok := a.Precondition.(*pddl.And); ok {
		conjuncts = and.Operands
	} else if a.Precondition != nil {
		conjuncts = []pddl.Formula{a.Precondition}
	}
	var out []prefilter
	for _, c := range conjuncts {
		inner := c
		if n, ok := c.(*pddl.Not); ok {
			inner = n.Operand
		}
		switch x := inner.(type) {
		case *pddl.Equals:
			out = append(out, prefilter{formula: c, ready: readyAt([]string{x.Left, x.Right})})
		case *pddl.AtomFormula:
			if t.static[x.Atom.Predicate] {
				out = append(out, prefilter{formula: c, ready: readyAt(x.Atom.Args)})
			}
		}
	}
	return out
}

// candidate is a ground operator before reachability analysis.
type candidate struct {
	schema    string
	args      []string
	pre       *cond
	adds      []string
	dels      []string
	reachable bool
}

// instantiate enumerates the bindings of every action schema that survive
// the static checks.
func (t *task) instantiate(ctx context.Context, maxOps int) ([]*candidate, error) {
	var out []*candidate
	visited := 0
	for _, a := range t.dom.Actions {
		domains := make([][]string, len(a.Params))
		for i, p := range a.Params {
			for _, o := range t.objects {
				if t.isA(o.Type, p.Type) {
					domains[i] = append(domains[i], o.Name)
				}
			}
		}
		filters := t.prefilters(a)
		binding := map[string]string{}
		passes := func(level int) bool {
			for _, f := range filters {
				if f.ready == level && !t.ground(f.formula, binding).value {
					return false
				}
			}
			return true
		}
		if !passes(-1) {
			continue
		}

		adds, dels, err := effectAtoms(a.Effect)
		if err != nil {
			return nil, fmt.Errorf("action %s: %w", a.Name, err)
		}
		var rec func(level int) error
		rec = func(level int) error {
			if level == len(a.Params) {
				pre := t.ground(a.Precondition, binding)
				if pre.kind == condConst && !pre.value {
					return nil
				}
				args := make([]string, len(a.Params))
				for i, p := range a.Params {
					args[i] = binding[p.Name]
				}
				c := &candidate{schema: a.Name, args: args, pre: pre}
				for _, e := range adds {
					c.adds = append(c.adds, groundKey(e.Predicate, substitute(e.Args, binding)))
				}
				for _, e := range dels {
					c.dels = append(c.dels, groundKey(e.Predicate, substitute(e.Args, binding)))
				}
				out = append(out, c)
				if maxOps > 0 && len(out) > maxOps {
					return fmt.Errorf("%w: more than %d ground operators", ErrTooLarge, maxOps)
				}
				return nil
			}
			name := a.Params[level].Name
			for _, obj := range domains[level] {
				visited++
				if visited%1024 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				binding[name] = obj
				if passes(level) {
					if err := rec(level + 1); err != nil {
						return err
					}
				}
			}
			delete(binding, name)
			return nil
		}
		if err := rec(0); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// reach marks candidates reachable under delete relaxation from init.
func (t *task) reach(cands []*candidate) {
	reached := make(map[string]bool, len(t.init))
	for k := range t.init {
		reached[k] = true
	}
	for changed := true; changed; {
		changed = false
		for _, c := range cands {
			if c.reachable || !c.pre.relaxed(reached, true) {
				continue
			}
			c.reachable = true
			changed = true
			for _, k := range c.adds {
				reached[k] = true
			}
		}
	}
}

// splitKey parses "pred a b" back into its parts.
func splitKey(key string) (string, []string) {
	parts := strings.Fields(key)
	return parts[0], parts[1:]
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
