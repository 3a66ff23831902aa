package domain

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"pddlsynth/internal/pddl"
	"pddlsynth/internal/sandbox"
	"pddlsynth/internal/testing/fixtures"
)

const demoDomain = `(define (domain demo)
  (:predicates (p ?x) (r))
  (:action a :parameters (?x) :precondition () :effect ()))`

const demoTemplate = `(define (domain demo)
  (:predicates)
  (:action a :parameters (?x) :precondition () :effect ()))`

func predicateSet(m *Model) map[string]int {
	out := map[string]int{}
	for _, p := range m.Domain().Predicates {
		out[p.Name] = p.Arity()
	}
	return out
}

func TestDeclarePredicatesMerge(t *testing.T) {
	m, err := New(demoDomain, demoTemplate)
	require.NoError(t, err)

	require.NoError(t, m.DeclarePredicates([]string{"(p ?x)"}))
	require.NoError(t, m.DeclarePredicates([]string{"(q ?x ?y)"}))

	want := map[string]int{"p": 1, "q": 2, "r": 0}
	if diff := cmp.Diff(want, predicateSet(m)); diff != "" {
		t.Errorf("predicates (-want +got):\n%s", diff)
	}
}

func TestDeclarePredicatesReplacesByName(t *testing.T) {
	m, err := New(demoDomain, demoTemplate)
	require.NoError(t, err)
	require.NoError(t, m.DeclarePredicates([]string{"(p ?x ?y)", "(p ?x ?y)"}))
	require.Equal(t, map[string]int{"p": 2, "r": 0}, predicateSet(m))
}

func TestDeclarePredicatesDuplicate(t *testing.T) {
	m, err := New(demoDomain, demoTemplate)
	require.NoError(t, err)
	err = m.DeclarePredicates([]string{"(s ?x)", "(s ?x ?y)"})
	require.ErrorIs(t, err, ErrDuplicatePredicate)
	require.Equal(t, map[string]int{"p": 1, "r": 0}, predicateSet(m))
}

func TestDeclarePredicatesRevalidates(t *testing.T) {
	const broken = `(define (domain demo)
  (:predicates (p ?x))
  (:action a :parameters (?x) :precondition (and (p ?x)) :effect (and (q ?x))))`
	m, err := New(broken, demoTemplate)
	require.NoError(t, err)
	require.Equal(t, []string{"q"}, m.Undeclared())

	err = m.DeclarePredicates([]string{"(r)"})
	require.ErrorIs(t, err, ErrUndeclaredPredicate)
	require.Equal(t, map[string]int{"p": 1}, predicateSet(m), "failed declaration must leave the model unchanged")

	require.NoError(t, m.DeclarePredicates([]string{"(q ?x)"}))
	require.Empty(t, m.Undeclared())
}

func TestSetActionClauseUnknownAction(t *testing.T) {
	m, err := FromTemplate(fixtures.BlocksworldTemplate)
	require.NoError(t, err)
	err = m.SetActionClause("teleport", nil, nil)
	require.ErrorIs(t, err, ErrUnknownAction)
}

func TestSetActionClauseUndeclaredIsAtomic(t *testing.T) {
	m, err := FromTemplate(fixtures.BlocksworldTemplate)
	require.NoError(t, err)
	before := m.String()

	err = m.SetActionClause("pickup", []string{"(clear ?ob)"}, []string{"(holding ?ob)"})
	require.ErrorIs(t, err, ErrUndeclaredPredicate)
	require.Equal(t, before, m.String(), "failed edit must leave the model unchanged")
	require.Empty(t, m.Undeclared())
}

func TestSanityCheckFlagsEmptyEffect(t *testing.T) {
	m, err := New(fixtures.BlocksworldDomain, fixtures.BlocksworldTemplate)
	require.NoError(t, err)
	require.NoError(t, m.SanityCheck())

	require.NoError(t, m.SetActionClause("putdown", []string{"(holding ?ob)"}, nil))

	var empty *EmptyEffectError
	require.ErrorAs(t, m.SanityCheck(), &empty)
	require.Equal(t, []string{"putdown"}, empty.Actions)
	require.Contains(t, m.String(), ":effect ()")
}

func TestRenderIdempotence(t *testing.T) {
	for name, text := range map[string]string{
		"template": fixtures.BlocksworldTemplate,
		"domain":   fixtures.BlocksworldDomain,
	} {
		t.Run(name, func(t *testing.T) {
			m, err := New(text, fixtures.BlocksworldTemplate)
			require.NoError(t, err)
			once := m.String()
			again, err := New(once, fixtures.BlocksworldTemplate)
			require.NoError(t, err)
			require.Equal(t, once, again.String())
		})
	}
}

func TestPlaceholderDroppedOnceDeclared(t *testing.T) {
	m, err := FromTemplate(fixtures.BlocksworldTemplate)
	require.NoError(t, err)
	require.Contains(t, m.String(), PlaceholderPredicate)

	require.NoError(t, m.DeclarePredicates([]string{"(clear ?x)"}))
	require.NotContains(t, m.String(), PlaceholderPredicate)
}

func TestCopyIsIndependent(t *testing.T) {
	m, err := New(fixtures.BlocksworldDomain, fixtures.BlocksworldTemplate)
	require.NoError(t, err)
	c, err := m.Copy()
	require.NoError(t, err)
	require.NoError(t, c.SetActionClause("stack", nil, nil))
	require.NotEqual(t, m.String(), c.String())
}

func TestApplyRebuildsDomain(t *testing.T) {
	m, err := FromTemplate(fixtures.BlocksworldTemplate)
	require.NoError(t, err)

	got, err := m.Apply(context.Background(), sandbox.NewExecutor(0), fixtures.BlocksworldScript)
	require.NoError(t, err)

	want := pddl.MustParseDomain(fixtures.BlocksworldDomain).String()
	if diff := cmp.Diff(want, got.String()); diff != "" {
		t.Errorf("rebuilt domain (-want +got):\n%s", diff)
	}
	require.Contains(t, m.String(), PlaceholderPredicate, "Apply must not touch the receiver")
}

func TestApplyFailures(t *testing.T) {
	m, err := FromTemplate(fixtures.BlocksworldTemplate)
	require.NoError(t, err)
	x := sandbox.NewExecutor(0)

	cases := map[string]struct {
		script string
		is     error
	}{
		"unknown action": {script: `SetActionClause("fly", nil, nil)`, is: ErrUnknownAction},
		"undeclared":     {script: `SetActionClause("pickup", []string{"(clear ?ob)"}, nil)`, is: ErrUndeclaredPredicate},
		"import":         {script: `import "os"`, is: sandbox.ErrViolation},
		"ambient call":   {script: `os.Exit(1)`},
		"bad fragment":   {script: `DeclarePredicates([]string{"(clear ?x"})`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := m.Apply(context.Background(), x, tc.script)
			var me *ModificationError
			require.True(t, errors.As(err, &me), "got %v", err)
			require.True(t, strings.HasPrefix(err.Error(), "Error while executing your code: "))
			if tc.is != nil {
				require.ErrorIs(t, err, tc.is)
			}
		})
	}
}
