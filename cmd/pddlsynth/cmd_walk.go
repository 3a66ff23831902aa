package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pddlsynth/internal/describe"
	"pddlsynth/internal/domain"
	"pddlsynth/internal/oracle"
	"pddlsynth/internal/sandbox"
	"pddlsynth/internal/walk"
)

// walkCmd samples a random walk
var walkCmd = &cobra.Command{
	Use:   "walk DOMAIN PROBLEM",
	Short: "Sample a random walk with the goal ignored",
	Long: `Takes up to --steps uniformly random applicable actions from the initial
state of PROBLEM. With a describer the initial state and the facts relevant
to each chosen action are printed in natural language.

Example:
  pddlsynth walk domain.pddl p01.pddl --steps 8 --describer blocksworld`,
	Args: cobra.ExactArgs(2),
	RunE: runWalk,
}

// replayCmd replays an action sequence
var replayCmd = &cobra.Command{
	Use:   "replay DOMAIN PROBLEM PLAN",
	Short: "Replay a plan file step by step with the goal ignored",
	Args:  cobra.ExactArgs(3),
	RunE:  runReplay,
}

// editCmd applies an edit script to a domain
var editCmd = &cobra.Command{
	Use:   "edit TEMPLATE SCRIPT",
	Short: "Apply a DeclarePredicates/SetActionClause script to a domain template",
	Long: `Runs SCRIPT in the sandbox against TEMPLATE (or --domain, a domain derived
from TEMPLATE) and prints the edited domain. Empty action effects are
reported as warnings.`,
	Args: cobra.ExactArgs(2),
	RunE: runEdit,
}

var (
	walkSteps int
	walkJSON  bool
	editFrom  string
	describer describerFlags
)

// describerFlags selects a predicate describer by builtin name or script file.
type describerFlags struct {
	name string
	file string
}

func (f *describerFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "describer", "", fmt.Sprintf("Builtin predicate describer (%s)", strings.Join(describe.BuiltinNames(), ", ")))
	cmd.Flags().StringVar(&f.file, "describer-file", "", "Go source defining DescribePredicate")
	cmd.MarkFlagsMutuallyExclusive("describer", "describer-file")
}

// build returns nil when neither flag is set.
func (f *describerFlags) build(ctx context.Context, x *sandbox.Executor) (describe.Describer, error) {
	spec := describe.Spec{Builtin: f.name}
	if f.file != "" {
		src, err := readFile(f.file)
		if err != nil {
			return nil, err
		}
		spec = describe.Spec{Source: src}
	}
	return spec.Build(ctx, x)
}

func init() {
	walkCmd.Flags().IntVarP(&walkSteps, "steps", "n", 10, "Maximum walk length")
	walkCmd.Flags().BoolVar(&walkJSON, "json", false, "Print the walk as JSON")
	describer.register(walkCmd)

	describer.register(replayCmd)

	editCmd.Flags().StringVar(&editFrom, "domain", "", "Start from this domain instead of the template")

	rootCmd.AddCommand(walkCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(editCmd)
}

func runWalk(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext(cmd)
	defer cancel()

	domainText, problemText, err := readPair(args[0], args[1])
	if err != nil {
		return err
	}
	eng, err := newEngine()
	if err != nil {
		return err
	}
	d, err := describer.build(ctx, eng.sandbox)
	if err != nil {
		return err
	}

	w, err := eng.walks.Sample(ctx, domainText, problemText, walkSteps, d)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if walkJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(w)
	}
	if len(w.States) > 0 {
		fmt.Fprintln(out, field("initial state", w.States[0]))
	}
	for i, a := range w.Actions {
		line := fmt.Sprintf("%2d. (%s)", i+1, a)
		if i+1 < len(w.States) && w.States[i+1] != "" {
			line += "  " + labelStyle.Render(w.States[i+1])
		}
		fmt.Fprintln(out, line)
	}
	if len(w.Actions) == 0 {
		fmt.Fprintln(out, failStyle.Render("No action is applicable in the initial state."))
	}
	return nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext(cmd)
	defer cancel()

	domainText, problemText, err := readPair(args[0], args[1])
	if err != nil {
		return err
	}
	planText, err := readFile(args[2])
	if err != nil {
		return err
	}
	eng, err := newEngine()
	if err != nil {
		return err
	}
	d, err := describer.build(ctx, eng.sandbox)
	if err != nil {
		return err
	}

	ex, err := eng.walks.Replay(ctx, domainText, problemText, oracle.ParsePlan(planText), walk.Feedback{Describer: d})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderBool(ex.Executable, "Executable", "Not executable"))
	fmt.Fprintln(out, ex.Message)
	return nil
}

func runEdit(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext(cmd)
	defer cancel()

	template, err := readFile(args[0])
	if err != nil {
		return err
	}
	script, err := readFile(args[1])
	if err != nil {
		return err
	}
	start := template
	if editFrom != "" {
		if start, err = readFile(editFrom); err != nil {
			return err
		}
	}
	m, err := domain.New(start, template)
	if err != nil {
		return err
	}

	next, err := m.Apply(ctx, sandbox.NewExecutor(0), script)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if err := next.SanityCheck(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), partStyle.Render("warning: "+err.Error()))
	}
	fmt.Fprintln(out, next.String())
	return nil
}

func readPair(domainPath, problemPath string) (string, string, error) {
	d, err := readFile(domainPath)
	if err != nil {
		return "", "", err
	}
	p, err := readFile(problemPath)
	if err != nil {
		return "", "", err
	}
	return d, p, nil
}
