package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pddlsynth/internal/pddl"
)

// skeletonCmd strips a problem down to its objects
var skeletonCmd = &cobra.Command{
	Use:   "skeleton PROBLEM",
	Short: "Print a problem with its initial state and goal removed",
	Long: `Parses PROBLEM and prints it with an empty initial state and goal, keeping
the name, domain and objects. This is the pNN_template.pddl file a benchmark
task ships next to its problem.

Example:
  pddlsynth skeleton data/blocksworld/p01.pddl --out data/blocksworld/p01_template.pddl`,
	Args: cobra.ExactArgs(1),
	RunE: runSkeleton,
}

var skeletonOut string

func init() {
	skeletonCmd.Flags().StringVarP(&skeletonOut, "out", "o", "", "Write the skeleton to this file")
	rootCmd.AddCommand(skeletonCmd)
}

func runSkeleton(cmd *cobra.Command, args []string) error {
	text, err := readFile(args[0])
	if err != nil {
		return err
	}
	p, err := pddl.ParseProblem(text)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	skeleton := p.WithoutGoalAndInit().String()

	out := cmd.OutOrStdout()
	if skeletonOut == "" {
		fmt.Fprintln(out, skeleton)
		return nil
	}
	if err := os.WriteFile(skeletonOut, []byte(skeleton+"\n"), 0644); err != nil {
		return err
	}
	fmt.Fprintln(out, field("wrote", skeletonOut))
	fmt.Fprintln(out, field("dropped", fmt.Sprintf("%d init facts, %d goals", p.InitCount(), p.GoalCount())))
	return nil
}
