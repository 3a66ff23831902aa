package eval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"pddlsynth/internal/describe"
	"pddlsynth/internal/domain"
	"pddlsynth/internal/logging"
	"pddlsynth/internal/metrics"
	"pddlsynth/internal/oracle"
	"pddlsynth/internal/sandbox"
	"pddlsynth/internal/walk"
	"pddlsynth/internal/worker"
)

// CodeLang is the fence language of edit scripts in a response.
const CodeLang = "go"

// Feedback texts.
const (
	MsgEmptyCode = "Your response does not contain any modification code."

	TargetToGenPrefix = "Sampled a set of consecutive random actions from the ground truth environment, " +
		"but the actions are not executable in the generated environment.\n"
	GenToTargetPrefix = "Sampled a set of consecutive random actions from the generated environment, " +
		"but the actions are not executable in the ground truth environment.\n"
	NoExecutableInitialAction = "Could not find any valid actions to execute. " +
		"All the initial actions violate at least one precondition. " +
		"Make sure your predicate names match the ones in the problem instance."
)

const (
	dirTargetToGen = "target_to_gen"
	dirGenToTarget = "gen_to_target"
)

// Target is the ground truth a candidate is compared against.
type Target struct {
	Domain  string
	Problem string
	// GenProblem is Problem written in the candidate's vocabulary.
	GenProblem string
	Describer  describe.Describer
}

// Options tune the comparison.
type Options struct {
	// Bidirectional alternates walk origins; otherwise every walk starts
	// on the candidate.
	Bidirectional bool `yaml:"bidirectional" json:"bidirectional"`
	// WalkFeedback searches for a failing walk when no plan is found.
	WalkFeedback bool `yaml:"walk_feedback" json:"walk_feedback"`
	Trials       int  `yaml:"trials" json:"trials" validate:"gte=0"`
	Tries        int  `yaml:"tries" json:"tries" validate:"gte=0"`
}

// DefaultOptions enables both directions, walk feedback and 100 trials.
func DefaultOptions() Options {
	return Options{Bidirectional: true, WalkFeedback: true, Trials: 100, Tries: 100}
}

// Score is the random-walk agreement between a candidate and the target.
type Score struct {
	// Rating is the harmonic mean of both fractions, or InvalidDomain or
	// NoPlan when the candidate cannot be compared.
	Rating      Rating
	TargetToGen float64
	GenToTarget float64
	Message     string
}

// Evaluation is the rated outcome of one candidate.
type Evaluation struct {
	Rating        Rating
	Message       string
	Model         *domain.Model
	SolutionFound bool
}

// Walker samples and replays random walks. *walk.Sampler implements it.
type Walker interface {
	Sample(ctx context.Context, domain, problem string, maxSteps int, d describe.Describer) (walk.Walk, error)
	Replay(ctx context.Context, domain, problem string, actions []string, fb walk.Feedback) (walk.Execution, error)
}

// Evaluator compares candidate domains with one target task.
type Evaluator struct {
	oracle  oracle.Oracle
	walks   Walker
	sandbox *sandbox.Executor
	target  Target
	opts    Options
}

// New creates an evaluator. Zero Trials/Tries take their defaults and a nil
// describer describes nothing.
func New(o oracle.Oracle, walks Walker, x *sandbox.Executor, t Target, opts Options) *Evaluator {
	def := DefaultOptions()
	if opts.Trials <= 0 {
		opts.Trials = def.Trials
	}
	if opts.Tries <= 0 {
		opts.Tries = def.Tries
	}
	if t.Describer == nil {
		t.Describer = describe.Null
	}
	return &Evaluator{oracle: o, walks: walks, sandbox: x, target: t, opts: opts}
}

// Target returns the task the evaluator compares against.
func (e *Evaluator) Target() Target { return e.target }

func (e *Evaluator) targetTurn(i int) bool {
	return e.opts.Bidirectional && i%2 == 0
}

// RateModification extracts the edit script from response, applies it to a
// copy of cur and rates the result. cur is never modified.
func (e *Evaluator) RateModification(ctx context.Context, cur *domain.Model, response string) (Evaluation, error) {
	code, err := ExtractCode(response, CodeLang)
	if err != nil {
		logging.EvalWarn("Could not extract %s code from the response:\n%s", CodeLang, response)
		return e.record(Evaluation{Rating: EmptyCode, Message: MsgEmptyCode, Model: cur}), nil
	}
	next, err := cur.Apply(ctx, e.sandbox, code)
	if err != nil {
		if ctx.Err() != nil {
			return Evaluation{}, ctx.Err()
		}
		return e.record(Evaluation{Rating: InvalidModification, Message: err.Error(), Model: cur}), nil
	}
	return e.RateDomain(ctx, next)
}

// RateDomain checks m for empty effects, searches for a plan on the target
// problem, validates it against the target and scores random-walk
// agreement. SolutionFound requires a valid plan and a perfect score.
func (e *Evaluator) RateDomain(ctx context.Context, m *domain.Model) (Evaluation, error) {
	timer := logging.StartTimer(logging.CategoryEval, "RateDomain")
	defer timer.Stop()

	if err := m.SanityCheck(); err != nil {
		return e.record(Evaluation{Rating: SanityError, Message: err.Error(), Model: m}), nil
	}
	gen := m.String()

	valid, msg, search, err := e.testPlan(ctx, gen)
	if err != nil {
		return Evaluation{}, err
	}
	score, err := e.score(ctx, gen, search)
	if err != nil {
		return Evaluation{}, err
	}
	if valid && math.Abs(float64(score.Rating)-1) < 1e-6 {
		return e.record(Evaluation{Rating: SolutionFound, Model: m, SolutionFound: true}), nil
	}
	if msg == "" {
		msg = score.Message
	}
	return e.record(Evaluation{Rating: score.Rating, Message: msg, Model: m}), nil
}

func (e *Evaluator) record(ev Evaluation) Evaluation {
	metrics.Ratings.Observe(float64(ev.Rating))
	logging.Eval("rated candidate: %s", ev.Rating)
	return ev
}

// testPlan searches the candidate on the target problem and validates any
// plan against the target. With no plan, the message is either a failing
// walk or the planner's explanation.
func (e *Evaluator) testPlan(ctx context.Context, gen string) (bool, string, oracle.SearchResult, error) {
	res, err := e.oracle.FindPlan(ctx, gen, e.target.GenProblem)
	if err != nil {
		return false, "", res, err
	}
	if res.Outcome != oracle.SolutionFound {
		if res.DomainValid() && e.opts.WalkFeedback {
			fb, _, err := e.FindFailingWalk(ctx, gen)
			return false, fb, res, err
		}
		logging.Eval("Issue with generating a plan. %s", res.Message)
		return false, res.Message, res, nil
	}
	v, err := e.oracle.ValidatePlan(ctx, e.target.Domain, e.target.Problem, res.Plan)
	if err != nil {
		return false, "", res, err
	}
	if !v.Valid {
		logging.Eval("Plan generated, but it is not valid.")
		return false, v.Message, res, nil
	}
	logging.Eval("Plan generated and it is valid.")
	return true, "", res, nil
}

// Score runs the random-walk comparison of gen against the target.
func (e *Evaluator) Score(ctx context.Context, gen string) (Score, error) {
	res, err := e.oracle.FindPlan(ctx, gen, e.target.GenProblem)
	if err != nil {
		return Score{}, err
	}
	return e.score(ctx, gen, res)
}

func (e *Evaluator) score(ctx context.Context, gen string, search oracle.SearchResult) (Score, error) {
	if !search.DomainValid() {
		return Score{Rating: InvalidDomain, Message: search.Message}, nil
	}
	var t2gExec, t2gAll, g2tExec, g2tAll int
	for i := 0; i < e.opts.Trials; i++ {
		if e.targetTurn(i) {
			w, err := e.walks.Sample(ctx, e.target.Domain, e.target.Problem, t2gAll%10+1, nil)
			if err != nil {
				return Score{}, fmt.Errorf("sample target walk: %w", err)
			}
			ex, err := e.walks.Replay(ctx, gen, e.target.GenProblem, w.Actions, walk.Feedback{})
			if err != nil {
				return rejected(ctx, err)
			}
			t2gAll++
			if ex.Executable {
				t2gExec++
			}
			observeWalk(dirTargetToGen, ex.Executable)
			continue
		}
		w, err := e.walks.Sample(ctx, gen, e.target.GenProblem, g2tAll%10+1, nil)
		if err != nil {
			return rejected(ctx, err)
		}
		if len(w.Actions) == 0 {
			return Score{Rating: NoPlan, Message: NoExecutableInitialAction}, nil
		}
		ex, err := e.walks.Replay(ctx, e.target.Domain, e.target.Problem, w.Actions, walk.Feedback{})
		if err != nil {
			return Score{}, fmt.Errorf("replay on target: %w", err)
		}
		g2tAll++
		if ex.Executable {
			g2tExec++
		}
		observeWalk(dirGenToTarget, ex.Executable)
	}

	s := Score{TargetToGen: fraction(t2gExec, t2gAll), GenToTarget: fraction(g2tExec, g2tAll)}
	if t2gAll == 0 {
		s.Rating = Rating(s.GenToTarget)
	} else {
		s.Rating = Rating(HarmonicMean(s.TargetToGen, s.GenToTarget))
	}
	logging.EvalDebug("walk agreement %.3f (target->gen %d/%d, gen->target %d/%d)",
		float64(s.Rating), t2gExec, t2gAll, g2tExec, g2tAll)
	return s, nil
}

// FindFailingWalk looks for a walk that one side accepts and the other
// rejects, and phrases it as feedback. The step bound starts at 5 and grows
// by 2 every 5 executable walks. It reports false when every walk replayed.
func (e *Evaluator) FindFailingWalk(ctx context.Context, gen string) (string, bool, error) {
	maxSteps := 5
	for i := 1; i <= e.opts.Tries; i++ {
		var (
			ex     walk.Execution
			prefix string
			n      int
		)
		if e.targetTurn(i) {
			w, err := e.walks.Sample(ctx, e.target.Domain, e.target.Problem, maxSteps, e.target.Describer)
			if err != nil {
				return "", false, fmt.Errorf("sample target walk: %w", err)
			}
			ex, err = e.walks.Replay(ctx, gen, e.target.GenProblem, w.Actions, walk.Feedback{States: w.States})
			if err != nil {
				s, err := rejected(ctx, err)
				return s.Message, err == nil, err
			}
			prefix, n = TargetToGenPrefix, len(w.Actions)
		} else {
			w, err := e.walks.Sample(ctx, gen, e.target.GenProblem, maxSteps, nil)
			if err != nil {
				s, err := rejected(ctx, err)
				return s.Message, err == nil, err
			}
			if len(w.Actions) == 0 {
				logging.Eval(NoExecutableInitialAction)
				return NoExecutableInitialAction, true, nil
			}
			ex, err = e.walks.Replay(ctx, e.target.Domain, e.target.Problem, w.Actions,
				walk.Feedback{Describer: e.target.Describer})
			if err != nil {
				return "", false, fmt.Errorf("replay on target: %w", err)
			}
			prefix, n = GenToTargetPrefix, len(w.Actions)
		}
		if !ex.Executable {
			logging.Eval("Found a random walk (target to gen turn %t) with length %d that is not executable.",
				e.targetTurn(i), n)
			return prefix + ex.Message, true, nil
		}
		logging.EvalDebug("random walk of length %d is executable, skipping", n)
		if i%5 == 0 {
			maxSteps += 2
			logging.EvalDebug("no failing walk with %d steps, increasing to %d", maxSteps-2, maxSteps)
		}
	}
	logging.EvalWarn("All random walks are executable (probably a dead loop).")
	return "", false, nil
}

// rejected maps an engine failure on the candidate to an InvalidDomain
// score. Cancellation and exhausted retries are returned as errors.
func rejected(ctx context.Context, err error) (Score, error) {
	if ctx.Err() != nil {
		return Score{}, ctx.Err()
	}
	if errors.Is(err, worker.ErrExhausted) {
		return Score{}, err
	}
	logging.EvalWarn("candidate domain rejected by the stepper: %v", err)
	return Score{Rating: InvalidDomain, Message: fmt.Sprintf("The generated domain could not be simulated: %v", err)}, nil
}

func observeWalk(direction string, executable bool) {
	metrics.Walks.WithLabelValues(direction, strconv.FormatBool(executable)).Inc()
}

func fraction(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}
