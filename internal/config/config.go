// Package config loads the pddlsynth YAML configuration and applies
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"pddlsynth/internal/eval"
	"pddlsynth/internal/llm"
	"pddlsynth/internal/logging"
	"pddlsynth/internal/oracle"
	"pddlsynth/internal/synth"
	"pddlsynth/internal/tactile"
	"pddlsynth/internal/worker"
)

// Oracle backends.
const (
	BackendBuiltin      = "builtin"
	BackendFastDownward = "fast-downward"
)

// Config holds all pddlsynth configuration.
type Config struct {
	Logging logging.Config   `yaml:"logging"`
	Worker  WorkerConfig     `yaml:"worker"`
	Oracle  OracleConfig     `yaml:"oracle"`
	Eval    eval.Options     `yaml:"eval"`
	Synth   synth.Strategy   `yaml:"synth"`
	LLM     llm.OpenAIConfig `yaml:"llm"`

	// DataPath is the benchmark root holding one directory per domain.
	DataPath string `yaml:"data_path" validate:"required"`
	// OutputPath receives chats and run summaries.
	OutputPath string `yaml:"output_path" validate:"required"`
	// MetricsAddr serves Prometheus metrics when set.
	MetricsAddr string `yaml:"metrics_addr,omitempty" validate:"omitempty,hostname_port"`
	// MaxCalls caps completion calls per session.
	MaxCalls int `yaml:"max_calls" validate:"gte=1"`
	// Parallelism bounds concurrent task evaluations.
	Parallelism int `yaml:"parallelism" validate:"gte=1"`
}

// WorkerConfig mirrors worker.Config with validation.
type WorkerConfig struct {
	Timeout     time.Duration `yaml:"timeout" validate:"gt=0"`
	MaxAttempts int           `yaml:"max_attempts" validate:"gte=1"`
	Isolation   string        `yaml:"isolation" validate:"oneof=goroutine process"`
	Seed        int64         `yaml:"seed,omitempty"`
}

// OracleConfig selects and configures the planning backend.
type OracleConfig struct {
	Backend   string        `yaml:"backend" validate:"oneof=builtin fast-downward"`
	FDPath    string        `yaml:"fd_path,omitempty" validate:"required_if=Backend fast-downward"`
	VALPath   string        `yaml:"val_path,omitempty" validate:"required_if=Backend fast-downward"`
	Python    string        `yaml:"python,omitempty"`
	Alias     string        `yaml:"alias" validate:"oneof=seq-opt-fdss-1 lama-first"`
	TimeLimit time.Duration `yaml:"time_limit" validate:"gt=0"`
	TempDir   string        `yaml:"temp_dir,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	w := worker.DefaultConfig()
	return &Config{
		Logging: logging.Config{
			Level:  "info",
			Format: "console",
		},
		Worker: WorkerConfig{
			Timeout:     w.Timeout,
			MaxAttempts: w.MaxAttempts,
			Isolation:   w.Isolation,
		},
		Oracle: OracleConfig{
			Backend:   BackendBuiltin,
			Python:    "python3",
			Alias:     oracle.SubOptimalAlias,
			TimeLimit: 10 * time.Second,
		},
		Eval:        eval.DefaultOptions(),
		Synth:       synth.DefaultStrategy(),
		LLM:         llm.DefaultOpenAIConfig(""),
		DataPath:    "data",
		OutputPath:  "results",
		MaxCalls:    llm.DefaultMaxCalls,
		Parallelism: 4,
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file. The API key is never written.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if url := os.Getenv("OPENAI_BASE_URL"); url != "" {
		c.LLM.BaseURL = url
	}

	// Setting either planner path implies the external backend.
	if path := os.Getenv("PDDLSYNTH_FD_PATH"); path != "" {
		c.Oracle.FDPath = path
		c.Oracle.Backend = BackendFastDownward
	}
	if path := os.Getenv("PDDLSYNTH_VAL_PATH"); path != "" {
		c.Oracle.VALPath = path
		c.Oracle.Backend = BackendFastDownward
	}

	if path := os.Getenv("PDDLSYNTH_DATA"); path != "" {
		c.DataPath = path
	}
	if level := os.Getenv("PDDLSYNTH_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct constraints. It does not require an API key;
// commands that talk to the completion API check that themselves.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s fails %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// RunnerConfig converts the worker section for worker.NewRunner.
func (c *Config) RunnerConfig() worker.Config {
	return worker.Config{
		Timeout:     c.Worker.Timeout,
		MaxAttempts: c.Worker.MaxAttempts,
		Isolation:   c.Worker.Isolation,
		Seed:        c.Worker.Seed,
	}
}

// NewOracle builds the configured backend. exec runs the external planner
// and validator; it is unused by the builtin backend.
func (c *Config) NewOracle(exec tactile.Executor) oracle.Oracle {
	if c.Oracle.Backend != BackendFastDownward {
		return oracle.NewBuiltin()
	}
	fd := oracle.NewFastDownward(exec, c.Oracle.FDPath, c.Oracle.VALPath)
	if c.Oracle.Python != "" {
		fd.Python = c.Oracle.Python
	}
	if c.Oracle.Alias != "" {
		fd.Alias = c.Oracle.Alias
	}
	if c.Oracle.TimeLimit > 0 {
		fd.TimeLimit = c.Oracle.TimeLimit
	}
	fd.TempDir = c.Oracle.TempDir
	return fd
}
