// Package synth drives the iterative domain synthesis loop: prompt a model
// for an edit script, rate the edited domain, feed the rating's message back
// and keep the best domain seen.
package synth

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"pddlsynth/internal/domain"
	"pddlsynth/internal/eval"
	"pddlsynth/internal/llm"
	"pddlsynth/internal/logging"
	"pddlsynth/internal/oracle"
	"pddlsynth/internal/sandbox"
	"pddlsynth/internal/walk"
)

// Sampling temperatures.
const (
	DeterministicTemperature float32 = 0.0
	StochasticTemperature    float32 = 0.7
)

// Strategy controls the conversation.
type Strategy struct {
	Turns   int `yaml:"turns" json:"turns" validate:"gte=1"`
	BestOfN int `yaml:"best_of_n" json:"best_of_n" validate:"gte=1"`
}

// DefaultStrategy is four turns with one sample each.
func DefaultStrategy() Strategy {
	return Strategy{Turns: 4, BestOfN: 1}
}

// Input describes the target domain.
type Input struct {
	Name     string
	DomainNL string
	Template string
	Target   eval.Target
}

// Turn records one rated step of the conversation.
type Turn struct {
	Conversation string      `json:"conversation"`
	Rating       eval.Rating `json:"rating"`
	Message      string      `json:"message,omitempty"`
	// Ratings holds every sample's rating when BestOfN > 1.
	Ratings []eval.Rating `json:"ratings,omitempty"`
}

// Result is the outcome of one synthesis run.
type Result struct {
	BestRating       eval.Rating `json:"best_rating"`
	BestDomain       string      `json:"best_domain"`
	BestConversation string      `json:"best_conversation"`
	SolutionFound    bool        `json:"solution_found"`
	GenProblem       string      `json:"gen_problem"`
	Turns            []Turn      `json:"turns"`
}

// Synthesizer runs synthesis conversations.
type Synthesizer struct {
	session  *llm.Session
	oracle   oracle.Oracle
	walks    *walk.Sampler
	sandbox  *sandbox.Executor
	strategy Strategy
	evalOpts eval.Options
}

// New creates a synthesizer.
func New(session *llm.Session, o oracle.Oracle, walks *walk.Sampler, x *sandbox.Executor, strategy Strategy, opts eval.Options) *Synthesizer {
	if strategy.Turns < 1 {
		strategy.Turns = 1
	}
	if strategy.BestOfN < 1 {
		strategy.BestOfN = 1
	}
	return &Synthesizer{session: session, oracle: o, walks: walks, sandbox: x, strategy: strategy, evalOpts: opts}
}

// Synthesize converses until a solution is found or the turns run out.
func (s *Synthesizer) Synthesize(ctx context.Context, in Input) (Result, error) {
	ev := eval.New(s.oracle, s.walks, s.sandbox, in.Target, s.evalOpts)
	model, err := domain.FromTemplate(in.Template)
	if err != nil {
		return Result{}, fmt.Errorf("load template: %w", err)
	}

	res := Result{BestRating: eval.Rating(math.Inf(-1)), GenProblem: in.Target.GenProblem}
	conv := s.session.NewChat(SystemMessage)
	input := InitPrompt(in.Name, in.DomainNL, in.Template, in.Target.GenProblem)
	for step := 1; step <= s.strategy.Turns; step++ {
		var (
			evaluation eval.Evaluation
			ratings    []eval.Rating
		)
		conv, evaluation, ratings, err = s.bestOfN(ctx, ev, model, conv, input)
		if err != nil {
			return res, err
		}
		model = evaluation.Model
		text := model.String()
		logging.Synth("turn %d/%d: generated domain rating %s", step, s.strategy.Turns, evaluation.Rating)

		turn := Turn{Conversation: conv, Rating: evaluation.Rating, Message: evaluation.Message}
		if len(ratings) > 1 {
			turn.Ratings = ratings
		}
		res.Turns = append(res.Turns, turn)
		if evaluation.Rating > res.BestRating {
			res.BestRating = evaluation.Rating
			res.BestDomain = text
			res.BestConversation = conv
		}
		if evaluation.SolutionFound {
			res.SolutionFound = true
			break
		}
		input = RetryPrompt(evaluation.Message, text)
	}
	logging.Synth("best rating %s with conversation %s", res.BestRating, res.BestConversation)
	return res, nil
}

// bestOfN samples the configured number of replies and keeps the best
// rated. Ties go to the earliest sample.
func (s *Synthesizer) bestOfN(ctx context.Context, ev *eval.Evaluator, model *domain.Model, conv, input string) (string, eval.Evaluation, []eval.Rating, error) {
	n := s.strategy.BestOfN
	if n == 1 {
		id, out, err := s.session.CompleteOne(ctx, conv, input, DeterministicTemperature)
		if err != nil {
			return "", eval.Evaluation{}, nil, err
		}
		e, err := ev.RateModification(ctx, model, out)
		return id, e, []eval.Rating{e.Rating}, err
	}

	ids, outs, err := s.session.CompleteN(ctx, conv, input, n, StochasticTemperature)
	if err != nil {
		return "", eval.Evaluation{}, nil, err
	}
	evals := make([]eval.Evaluation, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := range outs {
		// Rendering a model may normalize it, so each sample gets its own.
		own, err := model.Copy()
		if err != nil {
			return "", eval.Evaluation{}, nil, err
		}
		g.Go(func() error {
			e, err := ev.RateModification(gctx, own, outs[i])
			evals[i] = e
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return "", eval.Evaluation{}, nil, err
	}
	best := 0
	ratings := make([]eval.Rating, n)
	for i, e := range evals {
		ratings[i] = e.Rating
		logging.SynthDebug("rating for completion %d: %s", i, e.Rating)
		if e.Rating > evals[best].Rating {
			best = i
		}
	}
	return ids[best], evals[best], ratings, nil
}

// CandidatesResult is the outcome of SynthesizeCandidates.
type CandidatesResult struct {
	Ratings   []eval.Rating `json:"ratings"`
	BestIndex int           `json:"best_index"`
	Best      Result        `json:"best"`
	All       []Result      `json:"all"`
}

// SynthesizeCandidates runs Synthesize once per candidate translation of
// the target problem and stops early on the first solution.
func (s *Synthesizer) SynthesizeCandidates(ctx context.Context, in Input, candidates []string) (CandidatesResult, error) {
	out := CandidatesResult{BestIndex: -1}
	for i, c := range candidates {
		logging.Synth("evaluating candidate %d/%d", i+1, len(candidates))
		cin := in
		cin.Target.GenProblem = c
		r, err := s.Synthesize(ctx, cin)
		if err != nil {
			return out, fmt.Errorf("candidate %d: %w", i+1, err)
		}
		out.Ratings = append(out.Ratings, r.BestRating)
		out.All = append(out.All, r)
		if out.BestIndex < 0 || r.BestRating > out.Best.BestRating {
			out.BestIndex = i
			out.Best = r
		}
		if r.SolutionFound {
			logging.Synth("solution found for candidate %d/%d, stopping early", i+1, len(candidates))
			break
		}
	}
	return out, nil
}

// TaskSet pairs target problems with their translations for a generated domain.
type TaskSet struct {
	TargetDomain   string
	TargetProblems []string
	GenDomain      string
	GenProblems    []string
}

// TaskReport summarizes a generated domain over many tasks.
type TaskReport struct {
	// PlanFraction is the share of tasks whose plan on the generated
	// domain validates against the target.
	PlanFraction float64 `json:"plan_fraction"`
	Score        float64 `json:"rw_score"`
	TargetToGen  float64 `json:"rw_t_to_gen_frac"`
	GenToTarget  float64 `json:"rw_gen_to_t_frac"`
	Solved       []bool  `json:"solved"`
}

// EvaluateTasks measures plan generation on every task and averages the
// bidirectional walk fractions across tasks. Up to parallelism tasks run at
// once; zero means one at a time.
func EvaluateTasks(ctx context.Context, o oracle.Oracle, walks *walk.Sampler, x *sandbox.Executor, set TaskSet, parallelism int) (TaskReport, error) {
	n := len(set.TargetProblems)
	if n != len(set.GenProblems) {
		return TaskReport{}, fmt.Errorf("%d target problems but %d generated problems", n, len(set.GenProblems))
	}
	if n == 0 {
		return TaskReport{}, fmt.Errorf("no tasks to evaluate")
	}
	if parallelism < 1 {
		parallelism = 1
	}

	solved := make([]bool, n)
	t2g := make([]float64, n)
	g2t := make([]float64, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			ok, err := solves(gctx, o, set, i)
			if err != nil {
				return err
			}
			ev := eval.New(o, walks, x, eval.Target{
				Domain:     set.TargetDomain,
				Problem:    set.TargetProblems[i],
				GenProblem: set.GenProblems[i],
			}, eval.Options{Bidirectional: true, WalkFeedback: true})
			sc, err := ev.Score(gctx, set.GenDomain)
			if err != nil {
				return fmt.Errorf("task %d: %w", i+1, err)
			}
			solved[i], t2g[i], g2t[i] = ok, sc.TargetToGen, sc.GenToTarget
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return TaskReport{}, err
	}

	valid := 0
	for _, ok := range solved {
		if ok {
			valid++
		}
	}
	r := TaskReport{
		PlanFraction: float64(valid) / float64(n),
		TargetToGen:  eval.Mean(t2g),
		GenToTarget:  eval.Mean(g2t),
		Solved:       solved,
	}
	r.Score = eval.HarmonicMean(r.TargetToGen, r.GenToTarget)
	logging.Synth("random walk scores on all tasks: %.3f, plans valid on %d/%d", r.Score, valid, n)
	return r, nil
}

func solves(ctx context.Context, o oracle.Oracle, set TaskSet, i int) (bool, error) {
	res, err := o.FindPlan(ctx, set.GenDomain, set.GenProblems[i])
	if err != nil || res.Outcome != oracle.SolutionFound {
		return false, err
	}
	v, err := o.ValidatePlan(ctx, set.TargetDomain, set.TargetProblems[i], res.Plan)
	return v.Valid, err
}
