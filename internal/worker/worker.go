// Package worker runs calls that may hang or crash in isolation. Each
// attempt gets a fresh seed and a hard deadline; a timed-out or panicking
// attempt is discarded and retried up to a configured cap.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/retry"

	"pddlsynth/internal/logging"
	"pddlsynth/internal/metrics"
	"pddlsynth/internal/tactile"
)

// Isolation modes.
const (
	Goroutine = "goroutine"
	Process   = "process"
)

var (
	// ErrExhausted means every attempt timed out or crashed.
	ErrExhausted = errors.New("worker attempts exhausted")
	// ErrTimeout marks an attempt that missed its deadline.
	ErrTimeout = errors.New("worker deadline exceeded")
	// ErrCrashed marks an attempt that panicked or whose process died.
	ErrCrashed = errors.New("worker crashed")
)

// Config controls isolation and retries.
type Config struct {
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	Isolation   string        `yaml:"isolation" json:"isolation"`
	// Seed seeds the per-attempt seed sequence; zero uses the clock.
	Seed int64 `yaml:"seed" json:"seed"`
}

// DefaultConfig returns a one second deadline and twenty attempts.
func DefaultConfig() Config {
	return Config{Timeout: time.Second, MaxAttempts: 20, Isolation: Goroutine}
}

// Runner hands out seeds and runs attempts.
type Runner struct {
	cfg Config

	mu  sync.Mutex
	rng *rand.Rand

	// Used in process isolation.
	exec   tactile.Executor
	binary string
}

// NewRunner creates a runner. Zero fields of cfg take their defaults.
func NewRunner(cfg Config) *Runner {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Isolation == "" {
		cfg.Isolation = def.Isolation
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Runner{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

// WithProcess switches the runner to process isolation: attempts re-exec
// binary's hidden worker command through exec.
func (r *Runner) WithProcess(exec tactile.Executor, binary string) *Runner {
	r.exec = exec
	r.binary = binary
	r.cfg.Isolation = Process
	return r
}

// Isolation returns the active isolation mode.
func (r *Runner) Isolation() string { return r.cfg.Isolation }

// Config returns the effective configuration.
func (r *Runner) Config() Config { return r.cfg }

func (r *Runner) nextSeed() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Int63()
}

// outcome carries a finished attempt through the retrier. A permanent error
// from fn travels here so that it is not retried.
type outcome[T any] struct {
	value T
	err   error
}

// Run calls fn in a goroutine with a fresh seed and the runner's deadline.
// Timeouts and panics are retried with a new seed; an error returned by fn
// is final and returned as is.
func Run[T any](ctx context.Context, r *Runner, fn func(ctx context.Context, seed int64) (T, error)) (T, error) {
	return retryAttempts(ctx, r, func(ctx context.Context) (T, error) {
		return attempt(ctx, r.cfg.Timeout, r.nextSeed(), fn)
	})
}

func retryAttempts[T any](ctx context.Context, r *Runner, once func(ctx context.Context) (T, error)) (T, error) {
	retrier := retry.New[outcome[T]](retry.Config{
		MaxAttempts:   r.cfg.MaxAttempts,
		InitialDelay:  time.Millisecond,
		BackoffPolicy: retry.BackoffExponential,
		Multiplier:    1.0,
	})
	attempts := 0
	res, err := retrier.Do(ctx, func(ctx context.Context) (outcome[T], error) {
		attempts++
		v, err := once(ctx)
		if errors.Is(err, ErrTimeout) || errors.Is(err, ErrCrashed) {
			logging.WorkerWarn("attempt %d/%d discarded: %v", attempts, r.cfg.MaxAttempts, err)
			return outcome[T]{}, err
		}
		return outcome[T]{value: v, err: err}, nil
	})
	if err != nil {
		var zero T
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		return zero, fmt.Errorf("%w after %d attempts: %v", ErrExhausted, attempts, err)
	}
	return res.value, res.err
}

func attempt[T any](ctx context.Context, timeout time.Duration, seed int64, fn func(ctx context.Context, seed int64) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				logging.WorkerDebug("attempt panicked: %v\n%s", p, debug.Stack())
				done <- outcome[T]{err: fmt.Errorf("%w: %v", ErrCrashed, p)}
			}
		}()
		v, err := fn(ctx, seed)
		done <- outcome[T]{value: v, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && ctx.Err() != nil && errors.Is(res.err, ctx.Err()) {
			// fn gave up because the attempt deadline hit, not on its own.
			return res.value, attemptTimeout(timeout)
		}
		if errors.Is(res.err, ErrCrashed) {
			metrics.WorkerAttempts.WithLabelValues("panic").Inc()
		} else {
			metrics.WorkerAttempts.WithLabelValues("ok").Inc()
		}
		return res.value, res.err
	case <-ctx.Done():
		var zero T
		return zero, attemptTimeout(timeout)
	}
}

func attemptTimeout(timeout time.Duration) error {
	metrics.WorkerAttempts.WithLabelValues("timeout").Inc()
	return fmt.Errorf("%w (%s)", ErrTimeout, timeout)
}
