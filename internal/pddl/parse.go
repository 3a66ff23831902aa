package pddl

import (
	"fmt"
	"strings"
)

// ParseDomain parses a "(define (domain ...) ...)" document.
func ParseDomain(text string) (*Domain, error) {
	root, err := readOne(text)
	if err != nil {
		return nil, err
	}
	if root.head() != "define" || len(root.list) < 2 {
		return nil, errAt(root, "expected (define (domain <name>) ...)")
	}
	hdr := root.list[1]
	if hdr.head() != "domain" || len(hdr.list) != 2 || hdr.list[1].isList {
		return nil, errAt(hdr, "expected (domain <name>)")
	}
	d := &Domain{Name: hdr.list[1].sym, Types: map[string]string{}}
	seenPreds := false
	for _, sec := range root.list[2:] {
		switch sec.head() {
		case ":requirements":
			for _, r := range sec.list[1:] {
				if r.isList {
					return nil, errAt(r, "malformed requirement")
				}
				d.Requirements = append(d.Requirements, r.sym)
			}
		case ":types":
			typed, err := typedList(sec.list[1:], false)
			if err != nil {
				return nil, err
			}
			for _, t := range typed {
				parent := t.Type
				if parent == "" {
					parent = "object"
				}
				if _, dup := d.Types[t.Name]; !dup {
					d.TypeOrder = append(d.TypeOrder, t.Name)
				}
				d.Types[t.Name] = parent
			}
		case ":constants":
			typed, err := typedList(sec.list[1:], false)
			if err != nil {
				return nil, err
			}
			d.Constants = append(d.Constants, typed...)
		case ":predicates":
			if seenPreds {
				return nil, errAt(sec, "duplicate :predicates section")
			}
			seenPreds = true
			for _, p := range sec.list[1:] {
				pred, err := predicateDecl(p)
				if err != nil {
					return nil, err
				}
				d.Predicates = append(d.Predicates, pred)
			}
		case ":action":
			a, err := action(sec)
			if err != nil {
				return nil, err
			}
			if d.Action(a.Name) != nil {
				return nil, errAt(sec, "duplicate action %q", a.Name)
			}
			d.Actions = append(d.Actions, a)
		case "":
			return nil, errAt(sec, "expected a domain section")
		default:
			return nil, errAt(sec, "unsupported domain section %s", sec.head())
		}
	}
	return d, nil
}

// ParseProblem parses a "(define (problem ...) ...)" document.
func ParseProblem(text string) (*Problem, error) {
	root, err := readOne(text)
	if err != nil {
		return nil, err
	}
	if root.head() != "define" || len(root.list) < 2 {
		return nil, errAt(root, "expected (define (problem <name>) ...)")
	}
	hdr := root.list[1]
	if hdr.head() != "problem" || len(hdr.list) != 2 || hdr.list[1].isList {
		return nil, errAt(hdr, "expected (problem <name>)")
	}
	p := &Problem{Name: hdr.list[1].sym, Goal: &And{}}
	for _, sec := range root.list[2:] {
		switch sec.head() {
		case ":domain":
			if len(sec.list) != 2 || sec.list[1].isList {
				return nil, errAt(sec, "expected (:domain <name>)")
			}
			p.DomainName = sec.list[1].sym
		case ":requirements":
			for _, r := range sec.list[1:] {
				p.Requirements = append(p.Requirements, r.sym)
			}
		case ":objects":
			typed, err := typedList(sec.list[1:], false)
			if err != nil {
				return nil, err
			}
			p.Objects = append(p.Objects, typed...)
		case ":init":
			for _, f := range sec.list[1:] {
				a, err := atom(f)
				if err != nil {
					return nil, err
				}
				p.Init = append(p.Init, a)
			}
		case ":goal":
			if len(sec.list) != 2 {
				return nil, errAt(sec, "expected (:goal <formula>)")
			}
			g, err := formula(sec.list[1])
			if err != nil {
				return nil, err
			}
			p.Goal = g
		default:
			return nil, errAt(sec, "unsupported problem section %s", sec.head())
		}
	}
	return p, nil
}

// ParseFormula parses a single formula such as "(and (clear ?x) (not (on ?x ?y)))".
func ParseFormula(text string) (Formula, error) {
	n, err := readOne(text)
	if err != nil {
		return nil, err
	}
	return formula(n)
}

func predicateDecl(n *node) (Predicate, error) {
	if !n.isList || len(n.list) == 0 || n.list[0].isList {
		return Predicate{}, errAt(n, "malformed predicate declaration %s", n)
	}
	params, err := typedList(n.list[1:], true)
	if err != nil {
		return Predicate{}, err
	}
	return Predicate{Name: n.list[0].sym, Params: params}, nil
}

func action(n *node) (*Action, error) {
	if len(n.list) < 2 || n.list[1].isList {
		return nil, errAt(n, "expected (:action <name> ...)")
	}
	a := &Action{Name: n.list[1].sym, Precondition: &Empty{}, Effect: &Empty{}}
	rest := n.list[2:]
	for i := 0; i < len(rest); i += 2 {
		key := rest[i]
		if key.isList || !strings.HasPrefix(key.sym, ":") {
			return nil, errAt(key, "expected an action keyword in %q", a.Name)
		}
		if i+1 >= len(rest) {
			return nil, errAt(key, "missing value for %s in %q", key.sym, a.Name)
		}
		val := rest[i+1]
		switch key.sym {
		case ":parameters":
			if !val.isList {
				return nil, errAt(val, "expected a parameter list in %q", a.Name)
			}
			params, err := typedList(val.list, true)
			if err != nil {
				return nil, err
			}
			a.Params = params
		case ":precondition":
			f, err := formula(val)
			if err != nil {
				return nil, err
			}
			a.Precondition = f
		case ":effect":
			f, err := formula(val)
			if err != nil {
				return nil, err
			}
			a.Effect = f
		default:
			return nil, errAt(key, "unsupported action keyword %s", key.sym)
		}
	}
	return a, nil
}

func formula(n *node) (Formula, error) {
	if !n.isList {
		return nil, errAt(n, "expected a formula, found %q", n.sym)
	}
	if len(n.list) == 0 {
		return &Empty{}, nil
	}
	switch n.head() {
	case "and", "or":
		ops := make([]Formula, 0, len(n.list)-1)
		for _, c := range n.list[1:] {
			f, err := formula(c)
			if err != nil {
				return nil, err
			}
			ops = append(ops, f)
		}
		if n.head() == "and" {
			return &And{Operands: ops}, nil
		}
		return &Or{Operands: ops}, nil
	case "not":
		if len(n.list) != 2 {
			return nil, errAt(n, "not takes exactly one operand")
		}
		f, err := formula(n.list[1])
		if err != nil {
			return nil, err
		}
		return &Not{Operand: f}, nil
	case "=":
		if len(n.list) != 3 || n.list[1].isList || n.list[2].isList {
			return nil, errAt(n, "= takes two terms")
		}
		return &Equals{Left: n.list[1].sym, Right: n.list[2].sym}, nil
	case "imply", "forall", "exists", "when", "increase", "decrease":
		return nil, errAt(n, "unsupported construct %s", n.head())
	case "":
		return nil, errAt(n, "malformed formula %s", n)
	}
	a, err := atom(n)
	if err != nil {
		return nil, err
	}
	return &AtomFormula{Atom: a}, nil
}

func atom(n *node) (Atom, error) {
	if !n.isList || len(n.list) == 0 || n.list[0].isList {
		return Atom{}, errAt(n, "malformed atom %s", n)
	}
	a := Atom{Predicate: n.list[0].sym}
	for _, c := range n.list[1:] {
		if c.isList {
			return Atom{}, errAt(c, "nested term in atom %s", n)
		}
		a.Args = append(a.Args, c.sym)
	}
	return a, nil
}

// typedList parses "a b - t c - u d" into typed names. When vars is set every
// name must be a "?x" variable; otherwise variables are rejected.
func typedList(nodes []*node, vars bool) ([]Param, error) {
	var out []Param
	var pending []string
	for i := 0; i < len(nodes); i++ {
		n := nodes[i]
		if n.isList {
			return nil, errAt(n, "unexpected list %s in typed list", n)
		}
		if n.sym == "-" {
			if i+1 >= len(nodes) || nodes[i+1].isList {
				return nil, errAt(n, "missing type after '-'")
			}
			if len(pending) == 0 {
				return nil, errAt(n, "type %q has no names", nodes[i+1].sym)
			}
			for _, name := range pending {
				out = append(out, Param{Name: name, Type: nodes[i+1].sym})
			}
			pending = pending[:0]
			i++
			continue
		}
		if vars != IsVariable(n.sym) {
			if vars {
				return nil, errAt(n, "expected a variable, found %q", n.sym)
			}
			return nil, errAt(n, "unexpected variable %q", n.sym)
		}
		pending = append(pending, n.sym)
	}
	for _, name := range pending {
		out = append(out, Param{Name: name})
	}
	return out, nil
}

// MustParseDomain is ParseDomain for fixtures; it panics on error.
func MustParseDomain(text string) *Domain {
	d, err := ParseDomain(text)
	if err != nil {
		panic(fmt.Sprintf("pddl: %v", err))
	}
	return d
}
