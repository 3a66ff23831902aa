// Package tactile runs external processes: the planner, the plan validator,
// and worker child processes. It owns timeouts, output capture limits and
// kill-on-deadline; callers interpret the output.
package tactile

import (
	"context"
	"strings"
	"time"
)

// Command is the input specification for an execution.
type Command struct {
	// Binary is the executable to run (e.g. "python3", "Validate").
	Binary string `json:"binary"`

	Arguments []string `json:"arguments"`

	// WorkingDirectory is the directory to execute in.
	// If empty, uses the executor's default working directory.
	WorkingDirectory string `json:"working_directory,omitempty"`

	// Environment variables to set (in KEY=VALUE format), merged with the
	// executor's allowed environment.
	Environment []string `json:"environment,omitempty"`

	// Stdin provides input to the command's standard input.
	Stdin string `json:"stdin,omitempty"`

	// Timeout overrides the executor default when positive.
	Timeout time.Duration `json:"timeout,omitempty"`

	// MaxOutputBytes caps captured stdout and stderr separately.
	MaxOutputBytes int64 `json:"max_output_bytes,omitempty"`
}

// CommandString returns the full command as a string (for display/logging).
func (c Command) CommandString() string {
	if len(c.Arguments) == 0 {
		return c.Binary
	}
	return c.Binary + " " + strings.Join(c.Arguments, " ")
}

// ExecutionResult is the output of one execution.
type ExecutionResult struct {
	// Success indicates whether the execution infrastructure worked.
	// A command that runs but returns a non-zero exit code has Success=true.
	Success bool `json:"success"`

	// ExitCode is the command's exit code (-1 if not available).
	ExitCode int `json:"exit_code"`

	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`

	Duration time.Duration `json:"duration"`

	// Killed indicates the command was forcibly terminated.
	Killed     bool   `json:"killed"`
	KillReason string `json:"kill_reason,omitempty"`

	// Truncated indicates output was cut at the size limit.
	Truncated      bool  `json:"truncated"`
	TruncatedBytes int64 `json:"truncated_bytes,omitempty"`

	// Error contains any infrastructure-level error message.
	Error string `json:"error,omitempty"`
}

// IsError returns true if the execution failed (infrastructure error).
func (r *ExecutionResult) IsError() bool {
	return !r.Success || r.Error != ""
}

// IsNonZeroExit returns true if the command ran but returned non-zero.
func (r *ExecutionResult) IsNonZeroExit() bool {
	return r.Success && r.ExitCode != 0
}

// Output returns stdout followed by stderr.
func (r *ExecutionResult) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// Executor runs commands.
type Executor interface {
	Execute(ctx context.Context, cmd Command) (*ExecutionResult, error)
}

// ExecutorFunc adapts a function to Executor. Tests use it to stand in for
// external tools.
type ExecutorFunc func(ctx context.Context, cmd Command) (*ExecutionResult, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, cmd Command) (*ExecutionResult, error) {
	return f(ctx, cmd)
}

// ExecutorConfig configures a DirectExecutor.
type ExecutorConfig struct {
	// DefaultWorkingDir is used when Command.WorkingDirectory is empty.
	DefaultWorkingDir string `json:"default_working_dir"`

	// DefaultTimeout is used when no timeout is specified.
	DefaultTimeout time.Duration `json:"default_timeout"`

	// MaxTimeout caps all timeout values.
	MaxTimeout time.Duration `json:"max_timeout"`

	// AllowedEnvironment lists environment variables to pass through.
	AllowedEnvironment []string `json:"allowed_environment"`

	// MaxOutputBytes caps output capture (default 10MB).
	MaxOutputBytes int64 `json:"max_output_bytes"`
}

// DefaultExecutorConfig returns sensible defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		DefaultWorkingDir:  ".",
		DefaultTimeout:     30 * time.Second,
		MaxTimeout:         10 * time.Minute,
		MaxOutputBytes:     10 * 1024 * 1024, // 10MB
		AllowedEnvironment: []string{"PATH", "HOME", "USER", "LANG", "LC_ALL", "TMPDIR", "PYTHONPATH"},
	}
}

// Merge fills unset command fields from the config.
func (c ExecutorConfig) Merge(cmd Command) Command {
	result := cmd
	if result.WorkingDirectory == "" {
		result.WorkingDirectory = c.DefaultWorkingDir
	}
	if result.Timeout <= 0 {
		result.Timeout = c.DefaultTimeout
	}
	if c.MaxTimeout > 0 && result.Timeout > c.MaxTimeout {
		result.Timeout = c.MaxTimeout
	}
	if result.MaxOutputBytes <= 0 {
		result.MaxOutputBytes = c.MaxOutputBytes
	}
	return result
}
