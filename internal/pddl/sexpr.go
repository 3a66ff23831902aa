package pddl

import (
	"fmt"
	"strings"
	"unicode"
)

// node is one s-expression: either a symbol or a parenthesised list.
type node struct {
	sym    string
	list   []*node
	isList bool
	line   int
	col    int
}

func (n *node) String() string {
	if !n.isList {
		return n.sym
	}
	parts := make([]string, len(n.list))
	for i, c := range n.list {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// head returns the lower-cased leading symbol of a list, or "" when absent.
func (n *node) head() string {
	if !n.isList || len(n.list) == 0 || n.list[0].isList {
		return ""
	}
	return n.list[0].sym
}

// ParseError reports a syntax or structure problem at a source position.
type ParseError struct {
	Line int
	Col  int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("pddl:%d:%d: %s", e.Line, e.Col, e.Msg)
}

func errAt(n *node, format string, args ...interface{}) *ParseError {
	return &ParseError{Line: n.line, Col: n.col, Msg: fmt.Sprintf(format, args...)}
}

// read tokenizes text and returns all top-level expressions.
// Symbols are lower-cased; PDDL is case-insensitive.
func read(text string) ([]*node, error) {
	r := &reader{src: []rune(text), line: 1, col: 1}
	var out []*node
	for {
		r.skip()
		if r.eof() {
			return out, nil
		}
		n, err := r.expr()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
}

// readOne parses text that must hold exactly one expression.
func readOne(text string) (*node, error) {
	nodes, err := read(text)
	if err != nil {
		return nil, err
	}
	if len(nodes) != 1 {
		return nil, &ParseError{Line: 1, Col: 1, Msg: fmt.Sprintf("expected one expression, found %d", len(nodes))}
	}
	return nodes[0], nil
}

type reader struct {
	src  []rune
	pos  int
	line int
	col  int
}

func (r *reader) eof() bool { return r.pos >= len(r.src) }

func (r *reader) advance() rune {
	c := r.src[r.pos]
	r.pos++
	if c == '\n' {
		r.line++
		r.col = 1
	} else {
		r.col++
	}
	return c
}

// skip consumes whitespace and ';' comments.
func (r *reader) skip() {
	for !r.eof() {
		c := r.src[r.pos]
		switch {
		case unicode.IsSpace(c):
			r.advance()
		case c == ';':
			for !r.eof() && r.src[r.pos] != '\n' {
				r.advance()
			}
		default:
			return
		}
	}
}

func (r *reader) expr() (*node, error) {
	line, col := r.line, r.col
	c := r.src[r.pos]
	switch c {
	case ')':
		return nil, &ParseError{Line: line, Col: col, Msg: "unexpected ')'"}
	case '(':
		r.advance()
		n := &node{isList: true, line: line, col: col}
		for {
			r.skip()
			if r.eof() {
				return nil, &ParseError{Line: line, Col: col, Msg: "unclosed '('"}
			}
			if r.src[r.pos] == ')' {
				r.advance()
				return n, nil
			}
			child, err := r.expr()
			if err != nil {
				return nil, err
			}
			n.list = append(n.list, child)
		}
	default:
		var sb strings.Builder
		for !r.eof() {
			c := r.src[r.pos]
			if unicode.IsSpace(c) || c == '(' || c == ')' || c == ';' {
				break
			}
			sb.WriteRune(unicode.ToLower(r.advance()))
		}
		return &node{sym: sb.String(), line: line, col: col}, nil
	}
}
