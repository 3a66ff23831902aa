package synth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pddlsynth/internal/describe"
	"pddlsynth/internal/eval"
	"pddlsynth/internal/llm"
	"pddlsynth/internal/oracle"
	"pddlsynth/internal/sandbox"
	"pddlsynth/internal/testing/fixtures"
	"pddlsynth/internal/walk"
	"pddlsynth/internal/worker"
)

const goodReply = "Here is the code:\n```go\n" + fixtures.BlocksworldScript + "\n```"

// replayer answers each call with the next canned reply. For n > 1 the
// i-th completion comes from replies[i].
type replayer struct {
	mu      sync.Mutex
	replies []string
	prompts []string
}

func (r *replayer) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts = append(r.prompts, req.Messages[len(req.Messages)-1].Content)
	out := make([]string, req.N)
	for i := range out {
		out[i] = r.replies[0]
		r.replies = r.replies[1:]
	}
	return llm.Response{Contents: out}, nil
}

func newSynth(r *replayer, strategy Strategy) *Synthesizer {
	x := sandbox.NewExecutor(time.Second)
	walks := walk.NewSampler(worker.NewRunner(worker.Config{Seed: 3}), x)
	opts := eval.DefaultOptions()
	opts.Trials, opts.Tries = 20, 10
	return New(llm.NewSession(r, llm.SessionOptions{}), oracle.NewBuiltin(), walks, x, strategy, opts)
}

func blocksInput() Input {
	bw, _ := describe.Builtin("blocksworld")
	return Input{
		Name:     "blocksworld",
		DomainNL: "Blocks on a table.",
		Template: fixtures.BlocksworldTemplate,
		Target: eval.Target{
			Domain:     fixtures.BlocksworldDomain,
			Problem:    fixtures.BlocksworldProblem,
			GenProblem: fixtures.BlocksworldProblem,
			Describer:  bw,
		},
	}
}

func TestSynthesizeRecoversAfterFeedback(t *testing.T) {
	r := &replayer{replies: []string{"Let me think.", goodReply}}
	res, err := newSynth(r, Strategy{Turns: 4, BestOfN: 1}).Synthesize(context.Background(), blocksInput())
	require.NoError(t, err)

	require.True(t, res.SolutionFound)
	require.Equal(t, eval.SolutionFound, res.BestRating)
	require.Len(t, res.Turns, 2, "stops at the first solution")
	require.Equal(t, eval.EmptyCode, res.Turns[0].Rating)
	require.Contains(t, res.BestDomain, "(on ?x ?y)")

	require.Len(t, r.prompts, 2)
	require.Contains(t, r.prompts[0], "Target Domain Description:\n```markdown\nBlocks on a table.\n```")
	require.True(t, strings.HasPrefix(r.prompts[1], "Incorrect. The environment returned the following error:\n\n"+eval.MsgEmptyCode))
	require.Contains(t, r.prompts[1], "(dummy-predicate)", "current domain is still the template")
}

func TestSynthesizeBestOfN(t *testing.T) {
	r := &replayer{replies: []string{"```go\nSetActionClause(\"fly\", nil, nil)\n```", goodReply, "nothing"}}
	res, err := newSynth(r, Strategy{Turns: 1, BestOfN: 3}).Synthesize(context.Background(), blocksInput())
	require.NoError(t, err)
	require.True(t, res.SolutionFound)
	require.Equal(t, []eval.Rating{eval.InvalidModification, eval.SolutionFound, eval.EmptyCode}, res.Turns[0].Ratings)
}

func TestSynthesizeRunsOutOfTurns(t *testing.T) {
	r := &replayer{replies: []string{"a", "b"}}
	res, err := newSynth(r, Strategy{Turns: 2, BestOfN: 1}).Synthesize(context.Background(), blocksInput())
	require.NoError(t, err)
	require.False(t, res.SolutionFound)
	require.Equal(t, eval.EmptyCode, res.BestRating)
	require.Len(t, res.Turns, 2)
}

var handEmptyProblem = strings.ReplaceAll(fixtures.BlocksworldProblem, "(arm-empty)", "(handempty)")

func TestSynthesizeCandidatesStopsEarly(t *testing.T) {
	r := &replayer{replies: []string{goodReply, goodReply, goodReply}}
	res, err := newSynth(r, Strategy{Turns: 1, BestOfN: 1}).SynthesizeCandidates(context.Background(), blocksInput(),
		[]string{handEmptyProblem, fixtures.BlocksworldProblem, fixtures.BlocksworldProblem})
	require.NoError(t, err)
	require.Equal(t, []eval.Rating{eval.NoPlan, eval.SolutionFound}, res.Ratings)
	require.Equal(t, 1, res.BestIndex)
	require.Equal(t, fixtures.BlocksworldProblem, res.Best.GenProblem)
	require.Len(t, r.replies, 1, "third candidate never ran")
}

func TestEvaluateTasks(t *testing.T) {
	x := sandbox.NewExecutor(time.Second)
	walks := walk.NewSampler(worker.NewRunner(worker.Config{Seed: 8}), x)
	set := TaskSet{
		TargetDomain:   fixtures.BlocksworldDomain,
		TargetProblems: []string{fixtures.BlocksworldProblem, fixtures.BlocksworldProblem},
		GenDomain:      fixtures.BlocksworldDomain,
		GenProblems:    []string{fixtures.BlocksworldProblem, handEmptyProblem},
	}
	rep, err := EvaluateTasks(context.Background(), oracle.NewBuiltin(), walks, x, set, 2)
	require.NoError(t, err)
	require.Equal(t, []bool{true, false}, rep.Solved)
	require.Equal(t, 0.5, rep.PlanFraction)
	require.Equal(t, 0.5, rep.TargetToGen)
	require.Equal(t, 0.5, rep.GenToTarget)
	require.Equal(t, 0.5, rep.Score)

	set.GenProblems = set.GenProblems[:1]
	_, err = EvaluateTasks(context.Background(), oracle.NewBuiltin(), walks, x, set, 1)
	require.Error(t, err)
}

func TestPrompts(t *testing.T) {
	p := InitPrompt("grippers", "Robots carry balls.", "(define (domain g))", "(define (problem p))")
	require.Contains(t, p, "in the domain grippers")
	require.Contains(t, p, "```pddl\n(define (problem p))\n```")
	require.Contains(t, p, "SetActionClause(actionName string")
	require.Contains(t, p, "Example Completion:")

	require.Equal(t, "Incorrect. Please reason about the issue with your generated code. The current domain pddl is as follows:\n\n"+
		"```pddl\nD\n```\n\nIn your response, please generate a new code to fix the issue.", RetryPrompt("", "D"))
}
