// Package logging provides categorized logging for pddlsynth.
// Each subsystem logs through its own category so that noisy parts (the
// stepper, the random-walk sampler) can be silenced independently.
// Output goes through a single zap logger configured by Initialize.
package logging

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot    Category = "boot"    // Startup and configuration
	CategoryDomain  Category = "domain"  // Domain model edits
	CategorySandbox Category = "sandbox" // Edit-script and descriptor interpretation
	CategoryOracle  Category = "oracle"  // Planner and validator invocations
	CategoryTactile Category = "tactile" // Subprocess execution
	CategoryStepper Category = "stepper" // Grounding and state stepping
	CategoryWorker  Category = "worker"  // Isolated execution and retries
	CategoryWalk    Category = "walk"    // Random walks and replays
	CategoryEval    Category = "eval"    // Differential evaluation
	CategorySynth   Category = "synth"   // Synthesis loop
	CategoryLLM     Category = "llm"     // Completion API calls
)

// Config selects level, encoding and per-category toggles.
type Config struct {
	Level      string          `yaml:"level" json:"level,omitempty"`           // debug, info, warn, error
	Format     string          `yaml:"format" json:"format,omitempty"`         // json, console
	File       string          `yaml:"file" json:"file,omitempty"`             // extra output path
	Categories map[string]bool `yaml:"categories" json:"categories,omitempty"` // per-category toggles, default on
}

// Logger is a category-scoped printf-style logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu      sync.RWMutex
	base    = zap.NewNop()
	config  Config
	loggers = make(map[Category]*Logger)
)

// Initialize builds the process logger from cfg. It may be called again to
// reconfigure; previously returned Loggers keep their old sink.
func Initialize(cfg Config) error {
	zcfg := zap.NewProductionConfig()
	if cfg.Format != "json" {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.DisableStacktrace = true
	}
	if cfg.Level != "" {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	zcfg.OutputPaths = []string{"stderr"}
	if cfg.File != "" {
		zcfg.OutputPaths = append(zcfg.OutputPaths, cfg.File)
	}
	l, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	install(l, cfg)
	return nil
}

// UseLogger installs an already built zap logger, e.g. zaptest or observer cores.
func UseLogger(l *zap.Logger) {
	install(l, Config{})
}

func install(l *zap.Logger, cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	base = l
	config = cfg
	loggers = make(map[Category]*Logger)
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if config.Categories == nil {
		return true
	}
	enabled, exists := config.Categories[string(category)]
	if !exists {
		return true // Enable by default if not specified
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if the category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category, sugar: zap.NewNop().Sugar()}
	}

	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := &Logger{
		category: category,
		sugar:    base.Named(string(category)).Sugar(),
	}
	loggers[category] = l
	return l
}

// Sync flushes buffered output.
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	return base.Sync()
}

func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// With returns a logger carrying structured key/value context.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// =============================================================================

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Info(format, args...) }
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }

func Domain(format string, args ...interface{})      { Get(CategoryDomain).Info(format, args...) }
func DomainDebug(format string, args ...interface{}) { Get(CategoryDomain).Debug(format, args...) }
func DomainWarn(format string, args ...interface{})  { Get(CategoryDomain).Warn(format, args...) }

func Sandbox(format string, args ...interface{})      { Get(CategorySandbox).Info(format, args...) }
func SandboxDebug(format string, args ...interface{}) { Get(CategorySandbox).Debug(format, args...) }
func SandboxWarn(format string, args ...interface{})  { Get(CategorySandbox).Warn(format, args...) }

func Oracle(format string, args ...interface{})      { Get(CategoryOracle).Info(format, args...) }
func OracleDebug(format string, args ...interface{}) { Get(CategoryOracle).Debug(format, args...) }
func OracleWarn(format string, args ...interface{})  { Get(CategoryOracle).Warn(format, args...) }
func OracleError(format string, args ...interface{}) { Get(CategoryOracle).Error(format, args...) }

func Tactile(format string, args ...interface{})      { Get(CategoryTactile).Info(format, args...) }
func TactileDebug(format string, args ...interface{}) { Get(CategoryTactile).Debug(format, args...) }
func TactileWarn(format string, args ...interface{})  { Get(CategoryTactile).Warn(format, args...) }
func TactileError(format string, args ...interface{}) { Get(CategoryTactile).Error(format, args...) }

func Stepper(format string, args ...interface{})      { Get(CategoryStepper).Info(format, args...) }
func StepperDebug(format string, args ...interface{}) { Get(CategoryStepper).Debug(format, args...) }

func Worker(format string, args ...interface{})      { Get(CategoryWorker).Info(format, args...) }
func WorkerDebug(format string, args ...interface{}) { Get(CategoryWorker).Debug(format, args...) }
func WorkerWarn(format string, args ...interface{})  { Get(CategoryWorker).Warn(format, args...) }

func Walk(format string, args ...interface{})      { Get(CategoryWalk).Info(format, args...) }
func WalkDebug(format string, args ...interface{}) { Get(CategoryWalk).Debug(format, args...) }
func WalkWarn(format string, args ...interface{})  { Get(CategoryWalk).Warn(format, args...) }

func Eval(format string, args ...interface{})      { Get(CategoryEval).Info(format, args...) }
func EvalDebug(format string, args ...interface{}) { Get(CategoryEval).Debug(format, args...) }
func EvalWarn(format string, args ...interface{})  { Get(CategoryEval).Warn(format, args...) }

func Synth(format string, args ...interface{})      { Get(CategorySynth).Info(format, args...) }
func SynthDebug(format string, args ...interface{}) { Get(CategorySynth).Debug(format, args...) }
func SynthWarn(format string, args ...interface{})  { Get(CategorySynth).Warn(format, args...) }

func LLM(format string, args ...interface{})      { Get(CategoryLLM).Info(format, args...) }
func LLMDebug(format string, args ...interface{}) { Get(CategoryLLM).Debug(format, args...) }
func LLMWarn(format string, args ...interface{})  { Get(CategoryLLM).Warn(format, args...) }

// Timer measures an operation and logs its duration on Stop.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
