// Package walk samples random walks over a domain's applicable actions and
// replays action sequences against another domain, reporting the first step
// that fails. Every stepper use runs under a worker.Runner.
package walk

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"pddlsynth/internal/describe"
	"pddlsynth/internal/logging"
	"pddlsynth/internal/sandbox"
	"pddlsynth/internal/stepper"
	"pddlsynth/internal/worker"
)

// MaxStateText bounds a state description quoted in feedback.
const MaxStateText = 1000

// ExecutableMessage is the replay feedback when every action applied.
const ExecutableMessage = "The plan is executable."

// Walk is a sampled action sequence. When a describer was given, States[0]
// describes the initial state and States[i+1] the facts relevant to
// Actions[i] in the state it was chosen from.
type Walk struct {
	Actions []string `json:"actions"`
	States  []string `json:"states,omitempty"`
}

// Execution is the result of a replay.
type Execution struct {
	Executable bool   `json:"executable"`
	Message    string `json:"message"`
	// Steps is the number of actions applied before stopping.
	Steps int `json:"steps"`
}

// Feedback selects how a failed step is explained. With States, the
// description recorded by the originating walk is quoted; with Describer,
// the replaying side describes its own state; with neither, only the action
// is named.
type Feedback struct {
	States    []string
	Describer describe.Describer
}

// Sampler runs walks and replays in isolation.
type Sampler struct {
	runner  *worker.Runner
	sandbox *sandbox.Executor
}

// NewSampler creates a sampler. x is used to rebuild script describers in
// worker processes.
func NewSampler(r *worker.Runner, x *sandbox.Executor) *Sampler {
	return &Sampler{runner: r, sandbox: x}
}

// Sample loads (domain, problem) with the goal cleared and takes up to
// maxSteps uniformly random applicable actions. d may be nil.
func (s *Sampler) Sample(ctx context.Context, domain, problem string, maxSteps int, d describe.Describer) (Walk, error) {
	if s.runner.Isolation() == worker.Process {
		job := sampleJob{Domain: domain, Problem: problem, MaxSteps: maxSteps}
		if d != nil {
			spec, ok := describe.SpecOf(d)
			if !ok {
				return Walk{}, fmt.Errorf("describer %T cannot be sent to a worker process", d)
			}
			job.Describer = &spec
		}
		return worker.RunProcess[Walk](ctx, s.runner, kindSample, job)
	}
	return worker.Run(ctx, s.runner, func(ctx context.Context, seed int64) (Walk, error) {
		return sample(ctx, seed, domain, problem, maxSteps, d)
	})
}

// Replay applies actions in order on (domain, problem) with the goal
// cleared and stops at the first one that is not applicable.
func (s *Sampler) Replay(ctx context.Context, domain, problem string, actions []string, fb Feedback) (Execution, error) {
	if s.runner.Isolation() == worker.Process {
		job := replayJob{Domain: domain, Problem: problem, Actions: actions, States: fb.States}
		if fb.Describer != nil {
			spec, ok := describe.SpecOf(fb.Describer)
			if !ok {
				return Execution{}, fmt.Errorf("describer %T cannot be sent to a worker process", fb.Describer)
			}
			job.Describer = &spec
		}
		return worker.RunProcess[Execution](ctx, s.runner, kindReplay, job)
	}
	return worker.Run(ctx, s.runner, func(ctx context.Context, seed int64) (Execution, error) {
		return replay(ctx, domain, problem, actions, fb)
	})
}

func sample(ctx context.Context, seed int64, domain, problem string, maxSteps int, d describe.Describer) (Walk, error) {
	rng := rand.New(rand.NewSource(seed))
	st, err := stepper.LoadText(ctx, domain, problem, stepper.Options{})
	if err != nil {
		return Walk{}, err
	}
	defer st.Close()

	w := Walk{Actions: []string{}}
	if d != nil {
		facts, err := st.State()
		if err != nil {
			return Walk{}, err
		}
		text, err := describe.StateText(d, facts)
		if err != nil {
			return Walk{}, err
		}
		w.States = append(w.States, text)
	}
	for i := 0; i < maxSteps; i++ {
		if err := ctx.Err(); err != nil {
			return Walk{}, err
		}
		ops, err := st.Applicable()
		if err != nil {
			return Walk{}, err
		}
		names := stepper.SortedNames(ops)
		if len(names) == 0 {
			break
		}
		name := names[rng.Intn(len(names))]
		w.Actions = append(w.Actions, name)
		if d != nil {
			text, err := relevantText(st, d, name)
			if err != nil {
				return Walk{}, err
			}
			w.States = append(w.States, text)
		}
		if _, err := st.Apply(ops[name]); err != nil {
			return Walk{}, err
		}
	}
	logging.WalkDebug("sampled %d/%d steps", len(w.Actions), maxSteps)
	return w, nil
}

func relevantText(st *stepper.Stepper, d describe.Describer, action string) (string, error) {
	facts, err := st.RelevantFacts(action)
	if err != nil {
		return "", err
	}
	return describe.StateText(d, facts)
}

func replay(ctx context.Context, domain, problem string, actions []string, fb Feedback) (Execution, error) {
	st, err := stepper.LoadText(ctx, domain, problem, stepper.Options{})
	if err != nil {
		return Execution{}, err
	}
	defer st.Close()

	var done []string
	for i, name := range actions {
		if err := ctx.Err(); err != nil {
			return Execution{}, err
		}
		done = append(done, "("+name+")")
		ops, err := st.Applicable()
		if err != nil {
			return Execution{}, err
		}
		op, ok := ops[name]
		if !ok {
			reason, err := failureReason(st, name, i, fb)
			if err != nil {
				return Execution{}, err
			}
			return Execution{Message: describeRun(done, reason), Steps: i}, nil
		}
		if _, err := st.Apply(op); err != nil {
			return Execution{}, err
		}
	}
	return Execution{Executable: true, Message: describeRun(done, ExecutableMessage), Steps: len(actions)}, nil
}

func failureReason(st *stepper.Stepper, name string, step int, fb Feedback) (string, error) {
	head := fmt.Sprintf("Error when executing the action (%s).", name)
	switch {
	case fb.States != nil:
		state := ""
		if step+1 < len(fb.States) {
			state = truncate(fb.States[step+1])
		}
		return fmt.Sprintf("%s\nCurrent state: %s\n"+
			"This action is executable on the environment, but your generated environment recognizes this as an illegal action.",
			head, state), nil
	case fb.Describer != nil:
		text, err := relevantText(st, fb.Describer, name)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s\nCurrent state: %s\nThis action is not executable on the environment.", head, truncate(text)), nil
	}
	return head + " This action is not executable on the environment.", nil
}

func truncate(s string) string {
	if len(s) <= MaxStateText {
		return s
	}
	logging.WalkWarn("State description is too long (%d bytes), truncating.", len(s))
	return s[:MaxStateText] + "..."
}

func describeRun(done []string, result string) string {
	return "Executing the following actions sequentially on the environment:\n" +
		strings.Join(done, "\n") + "\n\nResult: " + result
}
