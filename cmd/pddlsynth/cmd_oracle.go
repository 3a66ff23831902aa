package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pddlsynth/internal/oracle"
)

var errPlanInvalid = errors.New("plan is not valid")

// planCmd searches for a plan
var planCmd = &cobra.Command{
	Use:   "plan DOMAIN PROBLEM",
	Short: "Search for a plan with the configured backend",
	Long: `Runs the planning backend on DOMAIN and PROBLEM and prints the plan,
one parenthesized action per line. When no plan exists the outcome and the
planner's explanation are printed instead.

Example:
  pddlsynth plan domain.pddl p01.pddl --out p01.plan`,
	Args: cobra.ExactArgs(2),
	RunE: runPlan,
}

// validateCmd checks a plan against a domain
var validateCmd = &cobra.Command{
	Use:   "validate DOMAIN PROBLEM PLAN",
	Short: "Validate a plan file against a domain and problem",
	Args:  cobra.ExactArgs(3),
	RunE:  runValidate,
}

var planOut string

func init() {
	planCmd.Flags().StringVarP(&planOut, "out", "o", "", "Write the plan to this file")

	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(validateCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext(cmd)
	defer cancel()

	domainText, err := readFile(args[0])
	if err != nil {
		return err
	}
	problemText, err := readFile(args[1])
	if err != nil {
		return err
	}
	eng, err := newEngine()
	if err != nil {
		return err
	}

	res, err := eng.oracle.FindPlan(ctx, domainText, problemText)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if res.Outcome != oracle.SolutionFound {
		fmt.Fprintln(out, field("outcome", failStyle.Render(res.Outcome.String())))
		if res.Message != "" {
			fmt.Fprintln(out, res.Message)
		}
		return nil
	}
	fmt.Fprintln(out, field("outcome", okStyle.Render(res.Outcome.String())))
	fmt.Fprintln(out, field("length", len(res.Plan)))
	fmt.Fprintln(out, res.Plan.String())
	if planOut != "" {
		if err := os.WriteFile(planOut, []byte(res.Plan.String()+"\n"), 0644); err != nil {
			return fmt.Errorf("write plan: %w", err)
		}
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx, cancel := runContext(cmd)
	defer cancel()

	var texts [3]string
	for i, path := range args {
		var err error
		if texts[i], err = readFile(path); err != nil {
			return err
		}
	}
	eng, err := newEngine()
	if err != nil {
		return err
	}

	v, err := eng.oracle.ValidatePlan(ctx, texts[0], texts[1], oracle.ParsePlan(texts[2]))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderBool(v.Valid, "Plan valid", "Plan invalid"))
	if v.Message != "" {
		fmt.Fprintln(out, v.Message)
	}
	if !v.Valid {
		return errPlanInvalid
	}
	return nil
}
