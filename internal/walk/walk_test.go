package walk

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pddlsynth/internal/describe"
	"pddlsynth/internal/sandbox"
	"pddlsynth/internal/tactile"
	"pddlsynth/internal/testing/fixtures"
	"pddlsynth/internal/worker"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newSampler(seed int64) *Sampler {
	return NewSampler(worker.NewRunner(worker.Config{Seed: seed}), sandbox.NewExecutor(time.Second))
}

func TestSampleChainIsForced(t *testing.T) {
	s := newSampler(1)
	w, err := s.Sample(context.Background(), fixtures.ChainDomain, fixtures.ChainProblem, 5, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"step n0 n1", "step n1 n2", "step n2 n3"}, w.Actions,
		"walk stops when nothing is applicable")
	require.Empty(t, w.States)
}

func TestSampleRecordsStates(t *testing.T) {
	s := newSampler(1)
	d := describe.NewTable("chain", map[string]describe.Phrase{
		"at": {Arity: 1, Positive: "at %[1]s.", Negative: "not at %[1]s."},
	})
	w, err := s.Sample(context.Background(), fixtures.ChainDomain, fixtures.ChainProblem, 2, d)
	require.NoError(t, err)
	require.Len(t, w.Actions, 2)
	require.Len(t, w.States, 3)
	require.Equal(t, "at n0. not at n1. not at n2. not at n3.", w.States[0])
	require.Equal(t, "at n0. not at n1.", w.States[1])
	require.Equal(t, "at n1. not at n2.", w.States[2])
}

func TestSampleIsDeterministicPerSeed(t *testing.T) {
	ctx := context.Background()
	a, err := newSampler(99).Sample(ctx, fixtures.BlocksworldDomain, fixtures.BlocksworldProblem, 8, nil)
	require.NoError(t, err)
	b, err := newSampler(99).Sample(ctx, fixtures.BlocksworldDomain, fixtures.BlocksworldProblem, 8, nil)
	require.NoError(t, err)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("walks differ (-first +second):\n%s", diff)
	}
	require.Len(t, a.Actions, 8, "blocks world never dead-ends")
	require.Equal(t, "unstack b3 b2", a.Actions[0])
}

func TestSampleRejectsBrokenDomain(t *testing.T) {
	_, err := newSampler(1).Sample(context.Background(), "(define (domain", fixtures.ChainProblem, 3, nil)
	require.Error(t, err)
	require.NotErrorIs(t, err, worker.ErrExhausted, "parse errors are not retried")
}

func TestReplayExecutable(t *testing.T) {
	ex, err := newSampler(1).Replay(context.Background(), fixtures.ChainDomain, fixtures.ChainProblem,
		[]string{"step n0 n1", "step n1 n2"}, Feedback{})
	require.NoError(t, err)
	require.True(t, ex.Executable)
	require.Equal(t, 2, ex.Steps)
	require.Equal(t, "Executing the following actions sequentially on the environment:\n"+
		"(step n0 n1)\n(step n1 n2)\n\nResult: The plan is executable.", ex.Message)
}

func TestReplayFailures(t *testing.T) {
	bw, _ := describe.Builtin("blocksworld")
	long := strings.Repeat("x", MaxStateText+200)
	actions := []string{"unstack b3 b2", "pickup b1", "putdown b3"}

	cases := []struct {
		name     string
		fb       Feedback
		contains []string
	}{
		{
			name: "bare",
			contains: []string{
				"Result: Error when executing the action (pickup b1). This action is not executable on the environment.",
			},
		},
		{
			name: "recorded states",
			fb:   Feedback{States: []string{"s0", "s1", "s2", "s3"}},
			contains: []string{
				"Error when executing the action (pickup b1).\nCurrent state: s2\n",
				"your generated environment recognizes this as an illegal action.",
			},
		},
		{
			name: "truncated state",
			fb:   Feedback{States: []string{"s0", "s1", long}},
			contains: []string{
				"Current state: " + long[:MaxStateText] + "...\n",
			},
		},
		{
			name: "described",
			fb:   Feedback{Describer: bw},
			contains: []string{
				"Arm is not empty.",
				"Block b1 is not clear.",
				"\nThis action is not executable on the environment.",
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ex, err := newSampler(1).Replay(context.Background(),
				fixtures.BlocksworldDomain, fixtures.BlocksworldProblem, actions, tc.fb)
			require.NoError(t, err)
			require.False(t, ex.Executable)
			require.Equal(t, 1, ex.Steps)
			require.True(t, strings.HasPrefix(ex.Message,
				"Executing the following actions sequentially on the environment:\n(unstack b3 b2)\n(pickup b1)\n\nResult: "))
			require.NotContains(t, ex.Message, "putdown b3")
			for _, want := range tc.contains {
				require.Contains(t, ex.Message, want)
			}
		})
	}
}

// inProcess serves worker requests without spawning a child.
func inProcess(x *sandbox.Executor) tactile.Executor {
	handlers := Handlers(x)
	return tactile.ExecutorFunc(func(ctx context.Context, cmd tactile.Command) (*tactile.ExecutionResult, error) {
		var out bytes.Buffer
		if err := worker.Serve(ctx, strings.NewReader(cmd.Stdin), &out, handlers); err != nil {
			return nil, err
		}
		return &tactile.ExecutionResult{Success: true, Stdout: out.String()}, nil
	})
}

func TestProcessIsolation(t *testing.T) {
	ctx := context.Background()
	x := sandbox.NewExecutor(time.Second)
	r := worker.NewRunner(worker.Config{Seed: 5}).WithProcess(inProcess(x), "pddlsynth")
	s := NewSampler(r, x)

	bw, _ := describe.Builtin("blocksworld")
	w, err := s.Sample(ctx, fixtures.BlocksworldDomain, fixtures.BlocksworldProblem, 4, bw)
	require.NoError(t, err)
	require.Len(t, w.Actions, 4)
	require.Len(t, w.States, 5)
	require.Contains(t, w.States[0], "Block b3 is on block b2.")

	ex, err := s.Replay(ctx, fixtures.BlocksworldDomain, fixtures.BlocksworldProblem, w.Actions, Feedback{States: w.States})
	require.NoError(t, err)
	require.True(t, ex.Executable)

	ex, err = s.Replay(ctx, fixtures.BlocksworldDomain, fixtures.BlocksworldProblem,
		[]string{"pickup b1"}, Feedback{Describer: bw})
	require.NoError(t, err)
	require.False(t, ex.Executable)
	require.Contains(t, ex.Message, "Block b1 is not clear.")

	local := describe.Func(func(string, []string) (string, string, error) { return "", "", nil })
	_, err = s.Sample(ctx, fixtures.ChainDomain, fixtures.ChainProblem, 1, local)
	require.Error(t, err, "a describer without a Spec cannot cross the process boundary")

	_, err = s.Sample(ctx, "(define", fixtures.ChainProblem, 1, nil)
	var je *worker.JobError
	require.ErrorAs(t, err, &je)
}
