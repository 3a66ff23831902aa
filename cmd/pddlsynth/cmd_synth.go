package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"pddlsynth/internal/dataset"
	"pddlsynth/internal/eval"
	"pddlsynth/internal/llm"
	"pddlsynth/internal/logging"
	"pddlsynth/internal/synth"
)

// synthCmd runs the synthesis conversation
var synthCmd = &cobra.Command{
	Use:   "synth DOMAIN",
	Short: "Synthesize a benchmark domain with a chat model",
	Long: `Converses with the configured chat model to fill in the template of the
benchmark DOMAIN under the data path. Every reply is rated; the rating's
message is sent back until a solution is found or the turns run out.

With --candidates, each *.pddl file in the directory is tried in turn as the
problem the model sees, stopping at the first solution.

Chats, the best domain and a summary are written under the output path.

Example:
  OPENAI_API_KEY=... pddlsynth synth blocksworld --task 1 --turns 4`,
	Args: cobra.ExactArgs(1),
	RunE: runSynth,
}

// tasksCmd evaluates a generated domain on every task
var tasksCmd = &cobra.Command{
	Use:   "tasks DOMAIN GENERATED",
	Short: "Evaluate a generated domain on all tasks of a benchmark domain",
	Long: `Searches a plan with GENERATED on every task of DOMAIN, validates it with
the ground truth and averages the random-walk fractions over all tasks.

Problems for GENERATED are read from --gen-problems by task file name; by
default the ground-truth problems are used.`,
	Args: cobra.ExactArgs(2),
	RunE: runTasks,
}

var (
	synthTask       int
	synthCandidates string
	synthTurns      int
	synthBestOfN    int

	tasksGenDir string
	tasksLimit  int
	tasksJSON   bool
)

func init() {
	synthCmd.Flags().IntVar(&synthTask, "task", 1, "Task number (1-based)")
	synthCmd.Flags().StringVar(&synthCandidates, "candidates", "", "Directory of candidate problem translations")
	synthCmd.Flags().IntVar(&synthTurns, "turns", 0, "Conversation turns (default from config)")
	synthCmd.Flags().IntVar(&synthBestOfN, "best-of-n", 0, "Samples per turn (default from config)")

	tasksCmd.Flags().StringVar(&tasksGenDir, "gen-problems", "", "Directory of problems for the generated domain")
	tasksCmd.Flags().IntVar(&tasksLimit, "limit", 0, "Only evaluate the first N tasks")
	tasksCmd.Flags().BoolVar(&tasksJSON, "json", false, "Print the report as JSON")

	rootCmd.AddCommand(synthCmd)
	rootCmd.AddCommand(tasksCmd)
}

// synthSummary is written next to the saved chats.
type synthSummary struct {
	Domain     string                  `json:"domain"`
	Task       string                  `json:"task"`
	Model      string                  `json:"model"`
	Result     synth.Result            `json:"result"`
	Candidates *synth.CandidatesResult `json:"candidates,omitempty"`
	Usage      llm.Usage               `json:"usage"`
	Cost       *float64                `json:"cost,omitempty"`
	Strategy   synth.Strategy          `json:"strategy"`
	Eval       eval.Options            `json:"eval"`
}

func runSynth(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext(cmd)
	defer cancel()

	if cfg.LLM.APIKey == "" {
		return errors.New("no API key: set OPENAI_API_KEY")
	}
	d, err := dataset.Open(cfg.DataPath, args[0])
	if err != nil {
		return err
	}
	task, err := d.Task(synthTask - 1)
	if err != nil {
		return err
	}
	in, err := synthInput(d, task)
	if err != nil {
		return err
	}
	eng, err := newEngine()
	if err != nil {
		return err
	}
	if in.Target.Describer, err = d.Describer(ctx, eng.sandbox); err != nil {
		return err
	}

	client, err := llm.NewOpenAI(cfg.LLM)
	if err != nil {
		return err
	}
	session := llm.NewSession(client, llm.SessionOptions{Model: cfg.LLM.Model, MaxCalls: cfg.MaxCalls})
	strategy := cfg.Synth
	if synthTurns > 0 {
		strategy.Turns = synthTurns
	}
	if synthBestOfN > 0 {
		strategy.BestOfN = synthBestOfN
	}
	s := synth.New(session, eng.oracle, eng.walks, eng.sandbox, strategy, cfg.Eval)

	summary := synthSummary{Domain: d.Name, Task: task.Name, Model: cfg.LLM.Model, Strategy: strategy, Eval: cfg.Eval}
	if synthCandidates != "" {
		cands, err := readCandidates(synthCandidates)
		if err != nil {
			return err
		}
		cr, err := s.SynthesizeCandidates(ctx, in, cands)
		if err != nil {
			return err
		}
		summary.Candidates = &cr
		summary.Result = cr.Best
	} else {
		if summary.Result, err = s.Synthesize(ctx, in); err != nil {
			return err
		}
	}
	summary.Usage = session.Usage()
	if cost, ok := session.Cost(); ok {
		summary.Cost = &cost
	}

	runDir := filepath.Join(cfg.OutputPath, d.Name, strings.TrimSuffix(task.Name, ".pddl")+"_"+uuid.NewString()[:8])
	if err := saveSynthRun(runDir, session, summary); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	body := field("best rating", renderRating(summary.Result.BestRating)) + "\n" +
		field("solution found", renderBool(summary.Result.SolutionFound, "yes", "no")) + "\n" +
		field("turns", len(summary.Result.Turns)) + "\n" +
		field("usage", session.String()) + "\n" +
		field("saved to", runDir)
	fmt.Fprintln(out, section(fmt.Sprintf("Synthesis of %s (%s)", d.Name, task.Name), body))
	return nil
}

func synthInput(d *dataset.Domain, task dataset.Task) (synth.Input, error) {
	truth, err := d.DomainPDDL()
	if err != nil {
		return synth.Input{}, err
	}
	template, err := d.Template()
	if err != nil {
		return synth.Input{}, err
	}
	nl, err := d.NL()
	if err != nil {
		return synth.Input{}, err
	}
	return synth.Input{
		Name:     d.Name,
		DomainNL: nl,
		Template: template,
		Target: eval.Target{
			Domain:     truth,
			Problem:    task.PDDL,
			GenProblem: task.PDDL,
		},
	}, nil
}

func readCandidates(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.pddl"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no *.pddl candidates in %s", dir)
	}
	sort.Strings(paths)
	out := make([]string, len(paths))
	for i, p := range paths {
		if out[i], err = readFile(p); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func saveSynthRun(dir string, session *llm.Session, summary synthSummary) error {
	if err := session.Save(filepath.Join(dir, "chats")); err != nil {
		return err
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "summary.json"), data, 0644); err != nil {
		return err
	}
	if summary.Result.BestDomain != "" {
		if err := os.WriteFile(filepath.Join(dir, "best_domain.pddl"), []byte(summary.Result.BestDomain+"\n"), 0644); err != nil {
			return err
		}
	}
	logging.Synth("saved run to %s", dir)
	return nil
}

func runTasks(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext(cmd)
	defer cancel()

	d, err := dataset.Open(cfg.DataPath, args[0])
	if err != nil {
		return err
	}
	gen, err := readFile(args[1])
	if err != nil {
		return err
	}
	truth, err := d.DomainPDDL()
	if err != nil {
		return err
	}
	targets, err := d.Problems(tasksLimit)
	if err != nil {
		return err
	}
	gens := targets
	if tasksGenDir != "" {
		gens = make([]string, len(targets))
		for i, name := range d.TaskNames()[:len(targets)] {
			if gens[i], err = readFile(filepath.Join(tasksGenDir, name)); err != nil {
				return err
			}
		}
	}
	eng, err := newEngine()
	if err != nil {
		return err
	}

	rep, err := synth.EvaluateTasks(ctx, eng.oracle, eng.walks, eng.sandbox, synth.TaskSet{
		TargetDomain:   truth,
		TargetProblems: targets,
		GenDomain:      gen,
		GenProblems:    gens,
	}, cfg.Parallelism)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if tasksJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	body := field("plans valid", fmt.Sprintf("%.3f", rep.PlanFraction)) + "\n" +
		field("walk score", renderRating(eval.Rating(rep.Score))) + "\n" +
		field("target -> generated", fmt.Sprintf("%.3f", rep.TargetToGen)) + "\n" +
		field("generated -> target", fmt.Sprintf("%.3f", rep.GenToTarget))
	fmt.Fprintln(out, section(fmt.Sprintf("%s over %d tasks", d.Name, len(targets)), body))
	return nil
}
