// Package metrics declares the Prometheus collectors shared by the oracle,
// the worker and the evaluator, and serves them over HTTP on request.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pddlsynth/internal/logging"
)

var (
	// OracleCalls counts planner and validator invocations by backend, operation and outcome.
	OracleCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pddlsynth_oracle_calls_total",
		Help: "Planner and validator invocations by backend, operation and outcome",
	}, []string{"backend", "operation", "outcome"})

	// OracleDuration tracks oracle latency.
	OracleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pddlsynth_oracle_duration_seconds",
		Help:    "Oracle call duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
	}, []string{"backend", "operation"})

	// WorkerAttempts counts isolated executions by result (ok, timeout, panic, error).
	WorkerAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pddlsynth_worker_attempts_total",
		Help: "Isolated worker executions by result",
	}, []string{"result"})

	// Walks counts random walks by direction and whether they replayed.
	Walks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pddlsynth_random_walks_total",
		Help: "Random walks replayed by direction and executability",
	}, []string{"direction", "executable"})

	// Ratings records every rating produced by the evaluator.
	Ratings = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pddlsynth_rating",
		Help:    "Ratings of evaluated domains",
		Buckets: []float64{-6, -5, -4, -3, -1, 0, 0.25, 0.5, 0.75, 0.99, 1, 2},
	})

	// CompletionTokens counts tokens used by the completion API.
	CompletionTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pddlsynth_completion_tokens_total",
		Help: "Completion API tokens by kind (prompt, completion)",
	}, []string{"kind"})
)

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logging.Boot("serving metrics on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
