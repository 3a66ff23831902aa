package pddl

import (
	"sort"
	"strings"
)

const indent = "    "

// String renders the domain as canonical PDDL text. Predicates are sorted by
// name so that documents built through different edit orders render alike.
func (d *Domain) String() string {
	var b strings.Builder
	b.WriteString("(define (domain " + d.Name + ")\n")
	if len(d.Requirements) > 0 {
		b.WriteString(indent + "(:requirements " + strings.Join(d.Requirements, " ") + ")\n")
	}
	if len(d.TypeOrder) > 0 {
		types := make([]Param, 0, len(d.TypeOrder))
		for _, t := range d.TypeOrder {
			types = append(types, Param{Name: t, Type: d.Types[t]})
		}
		b.WriteString(indent + "(:types " + FormatTypedList(types) + ")\n")
	}
	if len(d.Constants) > 0 {
		b.WriteString(indent + "(:constants " + FormatTypedList(d.Constants) + ")\n")
	}
	preds := append([]Predicate(nil), d.Predicates...)
	sort.SliceStable(preds, func(i, j int) bool { return preds[i].Name < preds[j].Name })
	parts := make([]string, len(preds))
	for i, p := range preds {
		parts[i] = p.String()
	}
	b.WriteString(indent + "(:predicates")
	if len(parts) > 0 {
		b.WriteString(" " + strings.Join(parts, " "))
	}
	b.WriteString(")\n")
	for _, a := range d.Actions {
		b.WriteString("\n")
		b.WriteString(a.String())
	}
	b.WriteString(")")
	return b.String()
}

// String renders an action block at one level of indentation.
func (a *Action) String() string {
	var b strings.Builder
	b.WriteString(indent + "(:action " + a.Name + "\n")
	b.WriteString(indent + indent + ":parameters (" + FormatTypedList(a.Params) + ")\n")
	b.WriteString(indent + indent + ":precondition " + FormatFormula(a.Precondition) + "\n")
	b.WriteString(indent + indent + ":effect " + FormatFormula(a.Effect) + "\n")
	b.WriteString(indent + ")\n")
	return b.String()
}

// String renders "(name ?x - t ?y)".
func (p Predicate) String() string {
	if len(p.Params) == 0 {
		return "(" + p.Name + ")"
	}
	return "(" + p.Name + " " + FormatTypedList(p.Params) + ")"
}

// String renders "(pred a b)".
func (a Atom) String() string {
	return "(" + a.Key() + ")"
}

// String renders the problem as canonical PDDL text.
func (p *Problem) String() string {
	var b strings.Builder
	b.WriteString("(define (problem " + p.Name + ")\n")
	b.WriteString(indent + "(:domain " + p.DomainName + ")\n")
	if len(p.Requirements) > 0 {
		b.WriteString(indent + "(:requirements " + strings.Join(p.Requirements, " ") + ")\n")
	}
	b.WriteString(indent + "(:objects " + FormatTypedList(p.Objects) + ")\n")
	init := make([]string, len(p.Init))
	for i, a := range p.Init {
		init[i] = a.String()
	}
	b.WriteString(indent + "(:init " + strings.Join(init, " ") + ")\n")
	goal := p.Goal
	if goal == nil {
		goal = &And{}
	}
	b.WriteString(indent + "(:goal " + FormatFormula(goal) + ")\n")
	b.WriteString(")")
	return b.String()
}

// FormatTypedList renders names with their types, grouping consecutive names
// of the same type: "a b - block c".
func FormatTypedList(params []Param) string {
	var parts []string
	for i := 0; i < len(params); {
		j := i
		for j < len(params) && params[j].Type == params[i].Type {
			parts = append(parts, params[j].Name)
			j++
		}
		if params[i].Type != "" {
			parts = append(parts, "-", params[i].Type)
		}
		i = j
	}
	return strings.Join(parts, " ")
}

// FormatFormula renders a formula. Empty renders as "()".
func FormatFormula(f Formula) string {
	switch t := f.(type) {
	case nil, *Empty:
		return "()"
	case *And:
		return "(and " + joinFormulas(t.Operands) + ")"
	case *Or:
		return "(or " + joinFormulas(t.Operands) + ")"
	case *Not:
		return "(not " + FormatFormula(t.Operand) + ")"
	case *AtomFormula:
		return t.Atom.String()
	case *Equals:
		return "(= " + t.Left + " " + t.Right + ")"
	}
	return "()"
}

func joinFormulas(fs []Formula) string {
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = FormatFormula(f)
	}
	return strings.Join(parts, " ")
}
