package oracle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"pddlsynth/internal/logging"
	"pddlsynth/internal/metrics"
	"pddlsynth/internal/tactile"
)

const valDetailsHeader = "Plan Validation details\n-----------------------"

// FastDownward drives fast-downward.py and VAL's Validate binary.
type FastDownward struct {
	Executor tactile.Executor

	// Python runs the planner driver script (default "python3").
	Python  string
	FDPath  string
	VALPath string
	Alias   string
	TempDir string

	// TimeLimit is the planner's search time limit.
	TimeLimit time.Duration

	// Grace is added to TimeLimit for translation before the process is killed.
	Grace time.Duration
}

// NewFastDownward returns a backend with the sub-optimal alias and a 10s limit.
func NewFastDownward(exec tactile.Executor, fdPath, valPath string) *FastDownward {
	return &FastDownward{
		Executor:  exec,
		Python:    "python3",
		FDPath:    fdPath,
		VALPath:   valPath,
		Alias:     SubOptimalAlias,
		TimeLimit: 10 * time.Second,
		Grace:     20 * time.Second,
	}
}

// scratch hands out unique temp paths and removes all of them on cleanup.
type scratch struct {
	dir   string
	paths []string
}

func (s *scratch) path(suffix string) string {
	dir := s.dir
	if dir == "" {
		dir = os.TempDir()
	}
	p := filepath.Join(dir, uuid.NewString()[:8]+suffix)
	s.paths = append(s.paths, p)
	return p
}

func (s *scratch) write(text, suffix string) (string, error) {
	p := s.path(suffix)
	if err := os.WriteFile(p, []byte(text), 0o600); err != nil {
		return "", fmt.Errorf("write temp file: %w", err)
	}
	return p, nil
}

func (s *scratch) cleanup() {
	for _, p := range s.paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			logging.OracleWarn("failed to remove temp file %s: %v", p, err)
		}
	}
}

// FindPlan runs the planner and classifies its output.
func (f *FastDownward) FindPlan(ctx context.Context, domain, problem string) (SearchResult, error) {
	start := time.Now()
	res, err := f.findPlan(ctx, domain, problem)
	metrics.OracleDuration.WithLabelValues("fast-downward", "search").Observe(time.Since(start).Seconds())
	if err == nil {
		metrics.OracleCalls.WithLabelValues("fast-downward", "search", res.Outcome.String()).Inc()
	}
	return res, err
}

func (f *FastDownward) findPlan(ctx context.Context, domain, problem string) (SearchResult, error) {
	tmp := &scratch{dir: f.TempDir}
	defer tmp.cleanup()

	domainPath, err := tmp.write(domain, ".pddl")
	if err != nil {
		return infraFailure(err), nil
	}
	problemPath, err := tmp.write(problem, ".pddl")
	if err != nil {
		return infraFailure(err), nil
	}
	planPath := tmp.path(".plan")
	sasPath := tmp.path(".sas")

	limit := int(f.TimeLimit.Round(time.Second) / time.Second)
	if limit < 1 {
		limit = 1
	}
	res, err := f.Executor.Execute(ctx, tactile.Command{
		Binary: f.Python,
		Arguments: []string{
			f.FDPath,
			"--alias", f.Alias,
			"--search-time-limit", strconv.Itoa(limit),
			"--plan-file", planPath,
			"--sas-file", sasPath,
			domainPath, problemPath,
		},
		Timeout: f.TimeLimit + f.Grace,
	})
	if ctx.Err() != nil {
		return SearchResult{}, ctx.Err()
	}
	if err != nil {
		return infraFailure(err), nil
	}
	if res.Killed {
		logging.OracleWarn("planner killed: %s", res.KillReason)
		return SearchResult{Outcome: NoSolution, Message: MsgTimeLimit}, nil
	}

	switch {
	case strings.Contains(res.Stdout, markerSolved):
		text, err := os.ReadFile(planPath)
		if err != nil {
			return infraFailure(fmt.Errorf("planner reported a solution but the plan file is unreadable: %w", err)), nil
		}
		plan := ParsePlan(string(text))
		logging.OracleDebug("solution with %d steps", len(plan))
		return SearchResult{Plan: plan, Outcome: SolutionFound, Message: MsgSolutionFound}, nil
	case strings.Contains(res.Stdout, markerExhausted):
		return SearchResult{Outcome: NoSolution, Message: MsgExhausted}, nil
	case strings.Contains(res.Stdout, markerTimeLimit):
		return SearchResult{Outcome: NoSolution, Message: MsgTimeLimit}, nil
	}
	logging.OracleDebug("planner failed (exit %d): %s", res.ExitCode, res.Stderr)
	msg := res.Stderr
	if res.Error != "" {
		msg = res.Error
	}
	return SearchResult{Outcome: DomainInvalid, Message: msg}, nil
}

func infraFailure(err error) SearchResult {
	logging.OracleError("planner invocation failed: %v", err)
	return SearchResult{Outcome: DomainInvalid, Message: err.Error()}
}

// ValidatePlan runs VAL in verbose mode and classifies its output.
func (f *FastDownward) ValidatePlan(ctx context.Context, domain, problem string, plan Plan) (Validation, error) {
	start := time.Now()
	v, err := f.validatePlan(ctx, domain, problem, plan)
	metrics.OracleDuration.WithLabelValues("fast-downward", "validate").Observe(time.Since(start).Seconds())
	if err == nil {
		metrics.OracleCalls.WithLabelValues("fast-downward", "validate", strconv.FormatBool(v.Valid)).Inc()
	}
	return v, err
}

func (f *FastDownward) validatePlan(ctx context.Context, domain, problem string, plan Plan) (Validation, error) {
	tmp := &scratch{dir: f.TempDir}
	defer tmp.cleanup()

	var paths []string
	for _, text := range []string{domain, problem, plan.String()} {
		p, err := tmp.write(text, ".txt")
		if err != nil {
			logging.OracleError("validator setup failed: %v", err)
			return Validation{Message: err.Error()}, nil
		}
		paths = append(paths, p)
	}
	res, err := f.Executor.Execute(ctx, tactile.Command{
		Binary:    f.VALPath,
		Arguments: append([]string{"-v"}, paths...),
		Timeout:   f.TimeLimit + f.Grace,
	})
	if ctx.Err() != nil {
		return Validation{}, ctx.Err()
	}
	if err != nil {
		logging.OracleError("validator invocation failed: %v", err)
		return Validation{Message: err.Error()}, nil
	}
	return ParseValidatorOutput(res.Stdout), nil
}

// ParseValidatorOutput classifies VAL's verbose stdout.
func ParseValidatorOutput(out string) Validation {
	switch {
	case strings.Contains(out, "Plan valid"):
		return Validation{Valid: true, Message: MsgPlanValid}
	case strings.Contains(out, valDetailsHeader):
		_, details, _ := strings.Cut(out, valDetailsHeader)
		return Validation{Message: strings.TrimSpace(details)}
	case strings.Contains(out, "Goal not satisfied"):
		return Validation{Message: MsgGoalNotReached}
	case strings.Contains(out, "Plan invalid"):
		return Validation{Message: MsgPlanInvalid}
	}
	logging.Oracle("Unknown validation output: %s", out)
	return Validation{Message: MsgUnknownError}
}
