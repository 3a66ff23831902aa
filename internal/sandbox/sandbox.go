// Package sandbox interprets untrusted Go snippets with Yaegi.
//
// Edit scripts see exactly two functions, DeclarePredicates and
// SetActionClause, and nothing from the standard library. Predicate
// descriptor sources may import a short whitelist of pure stdlib packages.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"go/parser"
	"go/scanner"
	"go/token"
	"io"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"pddlsynth/internal/logging"
)

// ErrViolation marks scripts that step outside the allowed surface.
var ErrViolation = errors.New("sandbox violation")

// Editor is the surface an edit script may call.
type Editor interface {
	DeclarePredicates(fragments []string) error
	SetActionClause(action string, preconditions, effects []string) error
}

// DescribeFunc is the signature a descriptor source must define as DescribePredicate.
type DescribeFunc func(predicate string, args []string) (string, string, error)

// Executor runs scripts under a timeout.
type Executor struct {
	timeout         time.Duration
	allowedPackages map[string]bool
}

// NewExecutor creates an executor. A zero timeout means five seconds.
func NewExecutor(timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Executor{
		timeout: timeout,
		allowedPackages: map[string]bool{
			"errors":  true,
			"fmt":     true,
			"strconv": true,
			"strings": true,
		},
	}
}

const editPrelude = `package main

import "pddlsynth/edit"

var (
	DeclarePredicates = edit.DeclarePredicates
	SetActionClause   = edit.SetActionClause
)

func Run() {
`

// RunEdit interprets script against ed. The first failing operation stops
// further edits and is returned.
func (x *Executor) RunEdit(ctx context.Context, script string, ed Editor) (err error) {
	if err := checkEditTokens(script); err != nil {
		return err
	}

	var failed error
	declare := func(fragments []string) {
		if failed == nil {
			failed = ed.DeclarePredicates(fragments)
		}
	}
	set := func(action string, preconditions, effects []string) {
		if failed == nil {
			failed = ed.SetActionClause(action, preconditions, effects)
		}
	}

	i := interp.New(interp.Options{Stdout: io.Discard, Stderr: io.Discard})
	if err := i.Use(interp.Exports{
		"pddlsynth/edit/edit": {
			"DeclarePredicates": reflect.ValueOf(declare),
			"SetActionClause":   reflect.ValueOf(set),
		},
	}); err != nil {
		return fmt.Errorf("failed to load edit surface: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("script panicked: %v", r)
		}
	}()

	if _, err := i.EvalWithContext(ctx, editPrelude+script+"\n}\n"); err != nil {
		return fmt.Errorf("code evaluation failed: %w", err)
	}
	if _, err := i.EvalWithContext(ctx, "main.Run()"); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("script timed out: %w", ctx.Err())
		}
		return fmt.Errorf("script failed: %w", err)
	}
	if failed != nil {
		logging.SandboxDebug("edit script stopped on: %v", failed)
	}
	return failed
}

// outputBuiltins write to the interpreter's stdout or stderr.
var outputBuiltins = map[string]bool{"print": true, "println": true}

// checkEditTokens rejects declarations that would widen the script's surface.
func checkEditTokens(script string) error {
	var s scanner.Scanner
	fset := token.NewFileSet()
	file := fset.AddFile("script", fset.Base(), len(script))
	var scanErr error
	s.Init(file, []byte(script), func(pos token.Position, msg string) {
		if scanErr == nil {
			scanErr = fmt.Errorf("%s: %s", pos, msg)
		}
	}, 0)
	for {
		pos, tok, lit := s.Scan()
		switch tok {
		case token.EOF:
			return scanErr
		case token.IMPORT, token.PACKAGE:
			return fmt.Errorf("%w: %s at %s is not allowed", ErrViolation, tok, fset.Position(pos))
		case token.GO:
			return fmt.Errorf("%w: goroutines are not allowed (%s)", ErrViolation, fset.Position(pos))
		case token.IDENT:
			if outputBuiltins[lit] {
				return fmt.Errorf("%w: %s at %s is not allowed", ErrViolation, lit, fset.Position(pos))
			}
		}
	}
}

// LoadDescriber interprets a descriptor source that defines
// func DescribePredicate(name string, args []string) (string, string, error).
func (x *Executor) LoadDescriber(ctx context.Context, src string) (DescribeFunc, error) {
	if err := x.validateImports(src); err != nil {
		return nil, err
	}
	i := interp.New(interp.Options{Stdout: io.Discard, Stderr: io.Discard})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("failed to load stdlib: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()
	if _, err := i.EvalWithContext(ctx, wrapPackage(src)); err != nil {
		return nil, fmt.Errorf("descriptor evaluation failed: %w", err)
	}
	v, err := i.Eval("main.DescribePredicate")
	if err != nil {
		return nil, fmt.Errorf("DescribePredicate function not found: %w", err)
	}
	fn, ok := v.Interface().(func(string, []string) (string, string, error))
	if !ok {
		return nil, fmt.Errorf("DescribePredicate has incorrect signature (expected: func(string, []string) (string, string, error))")
	}
	return fn, nil
}

func (x *Executor) validateImports(src string) error {
	f, err := parser.ParseFile(token.NewFileSet(), "descriptor.go", wrapPackage(src), parser.ImportsOnly)
	if err != nil {
		return fmt.Errorf("descriptor does not parse: %w", err)
	}
	var forbidden []string
	for _, imp := range f.Imports {
		path, _ := strconv.Unquote(imp.Path.Value)
		if !x.allowedPackages[path] {
			forbidden = append(forbidden, path)
		}
	}
	if len(forbidden) > 0 {
		return fmt.Errorf("%w: forbidden imports %v (allowed: %v)", ErrViolation, forbidden, x.allowed())
	}
	return nil
}

func (x *Executor) allowed() []string {
	var pkgs []string
	for pkg := range x.allowedPackages {
		pkgs = append(pkgs, pkg)
	}
	sort.Strings(pkgs)
	return pkgs
}

func wrapPackage(src string) string {
	if strings.Contains(src, "package main") {
		return src
	}
	return "package main\n\n" + src
}
