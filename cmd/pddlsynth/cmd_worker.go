package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"pddlsynth/internal/config"
	"pddlsynth/internal/logging"
	"pddlsynth/internal/sandbox"
	"pddlsynth/internal/walk"
	"pddlsynth/internal/worker"
)

// workerCmd serves one isolated job on stdin/stdout. Parents in process
// isolation re-exec the binary with this command.
var workerCmd = &cobra.Command{
	Use:    worker.Command,
	Short:  "Run one isolated walk job (internal)",
	Hidden: true,
	Args:   cobra.NoArgs,
	// Children skip config loading and never serve metrics.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Initialize(logging.Config{Level: "warn", Format: "json"})
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return worker.Serve(cmd.Context(), os.Stdin, cmd.OutOrStdout(), walk.Handlers(sandbox.NewExecutor(0)))
	},
}

// configCmd inspects configuration
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or initialize configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration (API key omitted)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [PATH]",
	Short: "Write the default configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := config.DefaultConfig().Save(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(configCmd)
}
