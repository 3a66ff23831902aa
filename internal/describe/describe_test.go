package describe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pddlsynth/internal/sandbox"
	"pddlsynth/internal/stepper"
)

func TestBlocksworldPhrases(t *testing.T) {
	d, ok := Builtin("blocksworld")
	require.True(t, ok)

	pos, neg, err := d.Describe("on", []string{"b1", "b2"})
	require.NoError(t, err)
	require.Equal(t, "Block b1 is on block b2.", pos)
	require.Equal(t, "Block b1 is not on block b2.", neg)

	_, _, err = d.Describe("on", []string{"b1"})
	require.Error(t, err)

	_, _, err = d.Describe("levitating", []string{"b1"})
	require.ErrorIs(t, err, ErrUnknownPredicate)
}

func TestGrippersArgumentOrder(t *testing.T) {
	d, _ := Builtin("grippers")
	pos, _, err := d.Describe("free", []string{"robot1", "lgripper1"})
	require.NoError(t, err)
	require.Equal(t, "Gripper lgripper1 of robot robot1 is free.", pos)
}

func TestStateText(t *testing.T) {
	d, _ := Builtin("blocksworld")
	facts := []stepper.Fact{
		{Predicate: "arm-empty"},
		{Negated: true, Predicate: "clear", Args: []string{"b2"}},
	}
	text, err := StateText(d, facts)
	require.NoError(t, err)
	require.Equal(t, "Arm is empty. Block b2 is not clear.", text)

	text, err = StateText(Null, facts)
	require.NoError(t, err)
	require.Empty(t, text)

	_, err = StateText(d, []stepper.Fact{{Predicate: "mystery"}})
	require.ErrorIs(t, err, ErrUnknownPredicate)
}

const scriptSource = `
import "fmt"

func DescribePredicate(name string, args []string) (string, string, error) {
	if name == "at" {
		return "at " + args[0], "not at " + args[0], nil
	}
	return "", "", fmt.Errorf("Unknown predicate: %s", name)
}
`

func TestLoadScript(t *testing.T) {
	x := sandbox.NewExecutor(time.Second)
	d, err := LoadScript(context.Background(), x, scriptSource)
	require.NoError(t, err)

	pos, neg, err := d.Describe("at", []string{"n0"})
	require.NoError(t, err)
	require.Equal(t, "at n0", pos)
	require.Equal(t, "not at n0", neg)

	_, _, err = d.Describe("next", []string{"n0", "n1"})
	require.ErrorIs(t, err, ErrUnknownPredicate)

	_, _, err = d.Describe("at", nil)
	require.Error(t, err, "index panic inside the script is reported, not raised")
}

func TestSpecRoundTrip(t *testing.T) {
	x := sandbox.NewExecutor(time.Second)
	ctx := context.Background()

	for _, d := range []Describer{Null, builtins["grippers"]} {
		spec, ok := SpecOf(d)
		require.True(t, ok)
		rebuilt, err := spec.Build(ctx, x)
		require.NoError(t, err)
		require.Equal(t, d, rebuilt)
	}

	script, err := LoadScript(ctx, x, scriptSource)
	require.NoError(t, err)
	spec, _ := SpecOf(script)
	rebuilt, err := spec.Build(ctx, x)
	require.NoError(t, err)
	pos, _, err := rebuilt.Describe("at", []string{"x"})
	require.NoError(t, err)
	require.Equal(t, "at x", pos)

	_, ok := SpecOf(Func(func(string, []string) (string, string, error) { return "", "", nil }))
	require.False(t, ok)

	none, err := Spec{}.Build(ctx, x)
	require.NoError(t, err)
	require.Nil(t, none)

	_, err = Spec{Builtin: "termes"}.Build(ctx, x)
	require.Error(t, err)
}
