package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"pddlsynth/internal/logging"
	"pddlsynth/internal/metrics"
	"pddlsynth/internal/tactile"
)

// Command is the hidden subcommand a worker child runs.
const Command = "worker"

// Request is what the parent writes to a worker child's stdin.
type Request struct {
	Kind    string          `json:"kind"`
	Seed    int64           `json:"seed"`
	Payload json.RawMessage `json:"payload"`
}

// Response is what a worker child writes to stdout.
type Response struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// JobError is a permanent failure reported by a worker child.
type JobError struct {
	Kind string
	Msg  string
}

func (e *JobError) Error() string { return fmt.Sprintf("%s job failed: %s", e.Kind, e.Msg) }

// Handler executes one job kind inside a worker child.
type Handler func(ctx context.Context, seed int64, payload json.RawMessage) (any, error)

// RunProcess sends payload to a fresh worker child per attempt. A child that
// is killed at the deadline, dies, or prints garbage is retried with a new
// seed; an error the child reports is final.
func RunProcess[T any](ctx context.Context, r *Runner, kind string, payload any) (T, error) {
	var zero T
	if r.exec == nil || r.binary == "" {
		return zero, errors.New("process isolation requires an executor and a binary")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return zero, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return retryAttempts(ctx, r, func(ctx context.Context) (T, error) {
		return processAttempt[T](ctx, r, kind, body)
	})
}

func processAttempt[T any](ctx context.Context, r *Runner, kind string, body []byte) (T, error) {
	var zero T
	req, err := json.Marshal(Request{Kind: kind, Seed: r.nextSeed(), Payload: body})
	if err != nil {
		return zero, err
	}
	res, err := r.exec.Execute(ctx, tactile.Command{
		Binary:    r.binary,
		Arguments: []string{Command},
		Stdin:     string(req),
		Timeout:   r.cfg.Timeout,
	})
	if err != nil {
		return zero, fmt.Errorf("%w: %v", ErrCrashed, err)
	}
	if res.Killed {
		return zero, attemptTimeout(r.cfg.Timeout)
	}
	var resp Response
	if err := json.Unmarshal([]byte(res.Stdout), &resp); err != nil {
		metrics.WorkerAttempts.WithLabelValues("crash").Inc()
		return zero, fmt.Errorf("%w: exit %d, unreadable response: %v (stderr: %s)", ErrCrashed, res.ExitCode, err, res.Stderr)
	}
	metrics.WorkerAttempts.WithLabelValues("ok").Inc()
	if resp.Error != "" {
		return zero, &JobError{Kind: kind, Msg: resp.Error}
	}
	var v T
	if err := json.Unmarshal(resp.Result, &v); err != nil {
		return zero, fmt.Errorf("decode %s result: %w", kind, err)
	}
	return v, nil
}

// Serve reads one Request from in, runs the matching handler and writes a
// Response to out.
func Serve(ctx context.Context, in io.Reader, out io.Writer, handlers map[string]Handler) error {
	var req Request
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	var resp Response
	h, ok := handlers[req.Kind]
	if !ok {
		resp.Error = fmt.Sprintf("unknown job kind %q", req.Kind)
	} else {
		logging.WorkerDebug("serving %s job with seed %d", req.Kind, req.Seed)
		result, err := h(ctx, req.Seed, req.Payload)
		if err != nil {
			resp.Error = err.Error()
		} else if resp.Result, err = json.Marshal(result); err != nil {
			resp.Error = err.Error()
		}
	}
	return json.NewEncoder(out).Encode(resp)
}
