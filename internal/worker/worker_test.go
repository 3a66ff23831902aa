package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pddlsynth/internal/tactile"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRunReturnsValue(t *testing.T) {
	r := NewRunner(Config{Seed: 7})
	v, err := Run(context.Background(), r, func(ctx context.Context, seed int64) (int64, error) {
		return seed, nil
	})
	require.NoError(t, err)

	again := NewRunner(Config{Seed: 7})
	w, _ := Run(context.Background(), again, func(ctx context.Context, seed int64) (int64, error) {
		return seed, nil
	})
	require.Equal(t, v, w, "same runner seed yields the same attempt seeds")
}

func TestRunRetriesPanicWithFreshSeed(t *testing.T) {
	r := NewRunner(Config{Seed: 1, MaxAttempts: 5})
	var seeds []int64
	v, err := Run(context.Background(), r, func(ctx context.Context, seed int64) (string, error) {
		seeds = append(seeds, seed)
		if len(seeds) == 1 {
			panic("engine crashed")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", v)
	require.Len(t, seeds, 2)
	require.NotEqual(t, seeds[0], seeds[1])
}

func TestRunExhaustsOnTimeouts(t *testing.T) {
	r := NewRunner(Config{Timeout: 20 * time.Millisecond, MaxAttempts: 3})
	var calls atomic.Int32
	_, err := Run(context.Background(), r, func(ctx context.Context, seed int64) (int, error) {
		calls.Add(1)
		<-ctx.Done()
		return 0, ctx.Err()
	})
	require.ErrorIs(t, err, ErrExhausted)
	require.EqualValues(t, 3, calls.Load())
}

func TestRunAbandonsUncooperativeAttempt(t *testing.T) {
	r := NewRunner(Config{Timeout: 20 * time.Millisecond, MaxAttempts: 2})
	release := make(chan struct{})
	defer close(release)
	var calls atomic.Int32
	v, err := Run(context.Background(), r, func(ctx context.Context, seed int64) (int, error) {
		if calls.Add(1) == 1 {
			<-release // ignores ctx
			return -1, nil
		}
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, v, "late result of the first attempt must be discarded")
}

func TestRunDoesNotRetryPermanentErrors(t *testing.T) {
	r := NewRunner(Config{MaxAttempts: 5})
	bad := errors.New("domain does not parse")
	calls := 0
	_, err := Run(context.Background(), r, func(ctx context.Context, seed int64) (int, error) {
		calls++
		return 0, bad
	})
	require.ErrorIs(t, err, bad)
	require.Equal(t, 1, calls)
}

func TestRunHonoursParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, NewRunner(Config{}), func(ctx context.Context, seed int64) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	require.ErrorIs(t, err, context.Canceled)
}

type echoPayload struct {
	Text string `json:"text"`
}

var handlers = map[string]Handler{
	"echo": func(ctx context.Context, seed int64, payload json.RawMessage) (any, error) {
		var p echoPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, err
		}
		if p.Text == "" {
			return nil, errors.New("empty text")
		}
		return strings.ToUpper(p.Text), nil
	},
}

// childExecutor stands in for a re-executed binary by serving in-process.
func childExecutor(killFirst bool) (tactile.Executor, *atomic.Int32) {
	var calls atomic.Int32
	return tactile.ExecutorFunc(func(ctx context.Context, cmd tactile.Command) (*tactile.ExecutionResult, error) {
		if calls.Add(1) == 1 && killFirst {
			return &tactile.ExecutionResult{Success: true, Killed: true, KillReason: "timeout"}, nil
		}
		var out bytes.Buffer
		if err := Serve(ctx, strings.NewReader(cmd.Stdin), &out, handlers); err != nil {
			return nil, err
		}
		return &tactile.ExecutionResult{Success: true, Stdout: out.String()}, nil
	}), &calls
}

func TestRunProcess(t *testing.T) {
	exec, calls := childExecutor(true)
	r := NewRunner(Config{MaxAttempts: 3}).WithProcess(exec, "/usr/bin/pddlsynth")
	require.Equal(t, Process, r.Isolation())

	got, err := RunProcess[string](context.Background(), r, "echo", echoPayload{Text: "hi"})
	require.NoError(t, err)
	require.Equal(t, "HI", got)
	require.EqualValues(t, 2, calls.Load(), "killed child is retried")
}

func TestRunProcessJobError(t *testing.T) {
	exec, calls := childExecutor(false)
	r := NewRunner(Config{MaxAttempts: 3}).WithProcess(exec, "pddlsynth")

	_, err := RunProcess[string](context.Background(), r, "echo", echoPayload{})
	var je *JobError
	require.ErrorAs(t, err, &je)
	require.Equal(t, "empty text", je.Msg)
	require.EqualValues(t, 1, calls.Load())

	_, err = RunProcess[string](context.Background(), r, "nope", echoPayload{})
	require.ErrorAs(t, err, &je)
}

func TestRunProcessRequiresExecutor(t *testing.T) {
	_, err := RunProcess[string](context.Background(), NewRunner(Config{}), "echo", echoPayload{Text: "x"})
	require.Error(t, err)
}
