package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"pddlsynth/internal/domain"
	"pddlsynth/internal/eval"
	"pddlsynth/internal/logging"
)

// scoreCmd runs the random-walk comparison
var scoreCmd = &cobra.Command{
	Use:   "score GENERATED",
	Short: "Score a generated domain against the target by random walks",
	Long: `Samples walks on the target and replays them on the generated domain, and
the other way around, and prints the harmonic mean of the two executable
fractions. With --watch the domain is re-scored whenever the file changes.

Example:
  pddlsynth score gen.pddl --domain domain.pddl --problem p01.pddl --watch`,
	Args: cobra.ExactArgs(1),
	RunE: runScore,
}

// feedbackCmd searches for a disagreeing walk
var feedbackCmd = &cobra.Command{
	Use:   "feedback GENERATED",
	Short: "Find a walk one domain accepts and the other rejects",
	Args:  cobra.ExactArgs(1),
	RunE:  runFeedback,
}

// rateCmd rates a domain the way the synthesis loop does
var rateCmd = &cobra.Command{
	Use:   "rate GENERATED",
	Short: "Rate a generated domain: sanity check, plan test and walk score",
	Long: `Rates GENERATED exactly as the synthesis loop rates a candidate. The
domain is checked for empty effects, a plan is searched on the generated
problem and validated against the target, and the walk score is computed.
A template given with --template bounds the predicates the domain may use.`,
	Args: cobra.ExactArgs(1),
	RunE: runRate,
}

// targetFlags describe the ground truth a generated domain is compared to.
type targetFlags struct {
	domain     string
	problem    string
	genProblem string
	describer  describerFlags

	unidirectional bool
	noFeedback     bool
	trials         int
	tries          int
}

func (f *targetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.domain, "domain", "", "Target domain PDDL (required)")
	cmd.Flags().StringVar(&f.problem, "problem", "", "Target problem PDDL (required)")
	cmd.Flags().StringVar(&f.genProblem, "gen-problem", "", "Problem for the generated domain (default: --problem)")
	cmd.Flags().BoolVar(&f.unidirectional, "unidirectional", false, "Only replay walks of the generated domain on the target")
	cmd.Flags().BoolVar(&f.noFeedback, "no-walk-feedback", false, "Use the planner's message instead of a failing walk")
	cmd.Flags().IntVar(&f.trials, "trials", 0, "Random walks per score (default from config)")
	cmd.Flags().IntVar(&f.tries, "tries", 0, "Walks tried when searching for feedback (default from config)")
	_ = cmd.MarkFlagRequired("domain")
	_ = cmd.MarkFlagRequired("problem")
	f.describer.register(cmd)
}

func (f *targetFlags) evaluator(ctx context.Context, eng *engine) (*eval.Evaluator, error) {
	t := eval.Target{}
	var err error
	if t.Domain, t.Problem, err = readPair(f.domain, f.problem); err != nil {
		return nil, err
	}
	t.GenProblem = t.Problem
	if f.genProblem != "" {
		if t.GenProblem, err = readFile(f.genProblem); err != nil {
			return nil, err
		}
	}
	if t.Describer, err = f.describer.build(ctx, eng.sandbox); err != nil {
		return nil, err
	}

	opts := cfg.Eval
	if f.unidirectional {
		opts.Bidirectional = false
	}
	if f.noFeedback {
		opts.WalkFeedback = false
	}
	if f.trials > 0 {
		opts.Trials = f.trials
	}
	if f.tries > 0 {
		opts.Tries = f.tries
	}
	return eval.New(eng.oracle, eng.walks, eng.sandbox, t, opts), nil
}

var (
	scoreTarget, feedbackTarget, rateTarget targetFlags

	scoreWatch   bool
	rateTemplate string
)

func init() {
	scoreTarget.register(scoreCmd)
	scoreCmd.Flags().BoolVarP(&scoreWatch, "watch", "w", false, "Re-score whenever GENERATED changes")

	feedbackTarget.register(feedbackCmd)

	rateTarget.register(rateCmd)
	rateCmd.Flags().StringVar(&rateTemplate, "template", "", "Domain template GENERATED was derived from")

	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(rateCmd)
}

func runScore(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext(cmd)
	defer cancel()

	eng, err := newEngine()
	if err != nil {
		return err
	}
	ev, err := scoreTarget.evaluator(ctx, eng)
	if err != nil {
		return err
	}

	once := func() error {
		gen, err := readFile(args[0])
		if err != nil {
			return err
		}
		s, err := ev.Score(ctx, gen)
		if err != nil {
			return err
		}
		printScore(cmd.OutOrStdout(), s)
		return nil
	}
	if err := once(); err != nil || !scoreWatch {
		return err
	}
	return watchFile(ctx, args[0], func() {
		if err := once(); err != nil {
			logging.EvalWarn("re-scoring %s failed: %v", args[0], err)
		}
	})
}

func printScore(out io.Writer, s eval.Score) {
	body := field("rating", renderRating(s.Rating)) + "\n" +
		field("target -> generated", fmt.Sprintf("%.3f", s.TargetToGen)) + "\n" +
		field("generated -> target", fmt.Sprintf("%.3f", s.GenToTarget))
	if s.Message != "" {
		body += "\n" + s.Message
	}
	fmt.Fprintln(out, section("Random-walk score", body))
}

func runFeedback(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext(cmd)
	defer cancel()

	eng, err := newEngine()
	if err != nil {
		return err
	}
	ev, err := feedbackTarget.evaluator(ctx, eng)
	if err != nil {
		return err
	}
	gen, err := readFile(args[0])
	if err != nil {
		return err
	}

	msg, found, err := ev.FindFailingWalk(ctx, gen)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if !found {
		fmt.Fprintln(out, okStyle.Render("All random walks are executable."))
		return nil
	}
	fmt.Fprintln(out, msg)
	return nil
}

func runRate(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext(cmd)
	defer cancel()

	eng, err := newEngine()
	if err != nil {
		return err
	}
	ev, err := rateTarget.evaluator(ctx, eng)
	if err != nil {
		return err
	}
	gen, err := readFile(args[0])
	if err != nil {
		return err
	}
	template := gen
	if rateTemplate != "" {
		if template, err = readFile(rateTemplate); err != nil {
			return err
		}
	}
	m, err := domain.New(gen, template)
	if err != nil {
		return err
	}

	e, err := ev.RateDomain(ctx, m)
	if err != nil {
		return err
	}
	body := field("rating", renderRating(e.Rating)) + "\n" +
		field("solution found", renderBool(e.SolutionFound, "yes", "no"))
	if e.Message != "" {
		body += "\n\n" + e.Message
	}
	fmt.Fprintln(cmd.OutOrStdout(), section("Domain rating", body))
	return nil
}
