package walk

import (
	"context"
	"encoding/json"

	"pddlsynth/internal/describe"
	"pddlsynth/internal/sandbox"
	"pddlsynth/internal/worker"
)

const (
	kindSample = "walk.sample"
	kindReplay = "walk.replay"
)

type sampleJob struct {
	Domain    string         `json:"domain"`
	Problem   string         `json:"problem"`
	MaxSteps  int            `json:"max_steps"`
	Describer *describe.Spec `json:"describer,omitempty"`
}

type replayJob struct {
	Domain    string         `json:"domain"`
	Problem   string         `json:"problem"`
	Actions   []string       `json:"actions"`
	States    []string       `json:"states,omitempty"`
	Describer *describe.Spec `json:"describer,omitempty"`
}

// Handlers returns the job handlers a worker child serves.
func Handlers(x *sandbox.Executor) map[string]worker.Handler {
	return map[string]worker.Handler{
		kindSample: func(ctx context.Context, seed int64, payload json.RawMessage) (any, error) {
			var job sampleJob
			if err := json.Unmarshal(payload, &job); err != nil {
				return nil, err
			}
			d, err := buildDescriber(ctx, x, job.Describer)
			if err != nil {
				return nil, err
			}
			return sample(ctx, seed, job.Domain, job.Problem, job.MaxSteps, d)
		},
		kindReplay: func(ctx context.Context, seed int64, payload json.RawMessage) (any, error) {
			var job replayJob
			if err := json.Unmarshal(payload, &job); err != nil {
				return nil, err
			}
			d, err := buildDescriber(ctx, x, job.Describer)
			if err != nil {
				return nil, err
			}
			return replay(ctx, job.Domain, job.Problem, job.Actions, Feedback{States: job.States, Describer: d})
		},
	}
}

func buildDescriber(ctx context.Context, x *sandbox.Executor, spec *describe.Spec) (describe.Describer, error) {
	if spec == nil {
		return nil, nil
	}
	return spec.Build(ctx, x)
}
