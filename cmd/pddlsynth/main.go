package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pddlsynth/internal/config"
	"pddlsynth/internal/logging"
	"pddlsynth/internal/metrics"
	"pddlsynth/internal/oracle"
	"pddlsynth/internal/sandbox"
	"pddlsynth/internal/tactile"
	"pddlsynth/internal/walk"
	"pddlsynth/internal/worker"
)

var (
	// Global flags
	configPath  string
	verbose     bool
	timeout     time.Duration
	metricsAddr string

	// Effective configuration, loaded before every command but worker.
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "pddlsynth",
	Short: "Synthesize and evaluate PDDL domains",
	Long: `pddlsynth edits PDDL domains through a two-call protocol, plans on them,
and compares generated domains with a ground-truth domain by replaying
random walks in both directions.

A domain is solved when a plan found on it validates against the target
and every sampled walk replays on the other side.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		if metricsAddr != "" {
			cfg.MetricsAddr = metricsAddr
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := logging.Initialize(cfg.Logging); err != nil {
			return err
		}
		logging.BootDebug("loaded config from %s (oracle %s, isolation %s)", configPath, cfg.Oracle.Backend, cfg.Worker.Isolation)

		if cfg.MetricsAddr != "" {
			go func() {
				if err := metrics.Serve(cmd.Context(), cfg.MetricsAddr); err != nil {
					logging.Get(logging.CategoryBoot).Error("metrics server: %v", err)
				}
			}()
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "pddlsynth.yaml", "Config file (defaults apply when missing)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "Operation timeout")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runContext bounds a command by the global timeout.
func runContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	return context.WithTimeout(base, timeout)
}

// engine bundles the components every evaluating command needs.
type engine struct {
	exec    tactile.Executor
	sandbox *sandbox.Executor
	runner  *worker.Runner
	walks   *walk.Sampler
	oracle  oracle.Oracle
}

func newEngine() (*engine, error) {
	exec := tactile.NewDirectExecutor()
	x := sandbox.NewExecutor(0)
	runner := worker.NewRunner(cfg.RunnerConfig())
	if runner.Isolation() == worker.Process {
		bin, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate worker binary: %w", err)
		}
		runner.WithProcess(exec, bin)
	}
	return &engine{
		exec:    exec,
		sandbox: x,
		runner:  runner,
		walks:   walk.NewSampler(runner, x),
		oracle:  cfg.NewOracle(exec),
	}, nil
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
