package oracle

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"pddlsynth/internal/logging"
	"pddlsynth/internal/metrics"
	"pddlsynth/internal/stepper"
)

// Builtin searches breadth-first over the stepper and validates by replay.
// Plans are shortest in the number of actions.
type Builtin struct {
	TimeLimit time.Duration
	MaxNodes  int
}

// NewBuiltin returns a backend with a 10s limit and a two million node budget.
func NewBuiltin() *Builtin {
	return &Builtin{TimeLimit: 10 * time.Second, MaxNodes: 2_000_000}
}

type searchNode struct {
	state  []bool
	parent int
	action string
}

// FindPlan loads the task with its goal and runs breadth-first search.
func (b *Builtin) FindPlan(ctx context.Context, domain, problem string) (SearchResult, error) {
	start := time.Now()
	res, err := b.findPlan(ctx, domain, problem)
	metrics.OracleDuration.WithLabelValues("builtin", "search").Observe(time.Since(start).Seconds())
	if err == nil {
		metrics.OracleCalls.WithLabelValues("builtin", "search", res.Outcome.String()).Inc()
	}
	return res, err
}

func (b *Builtin) findPlan(ctx context.Context, domain, problem string) (SearchResult, error) {
	s, err := stepper.LoadText(ctx, domain, problem, stepper.Options{KeepGoal: true})
	if err != nil {
		if ctx.Err() != nil {
			return SearchResult{}, ctx.Err()
		}
		logging.OracleDebug("builtin planner rejected task: %v", err)
		return SearchResult{Outcome: DomainInvalid, Message: err.Error()}, nil
	}
	defer s.Close()

	deadline := time.Now().Add(b.TimeLimit)
	nodes := []searchNode{{state: s.Snapshot(), parent: -1}}
	seen := map[string]bool{stateKey(nodes[0].state): true}

	for head := 0; head < len(nodes); head++ {
		if head%256 == 0 {
			if err := ctx.Err(); err != nil {
				return SearchResult{}, err
			}
			if b.TimeLimit > 0 && time.Now().After(deadline) {
				return SearchResult{Outcome: NoSolution, Message: MsgTimeLimit}, nil
			}
		}
		if err := s.Restore(nodes[head].state); err != nil {
			return SearchResult{Outcome: DomainInvalid, Message: err.Error()}, nil
		}
		if done, _ := s.GoalSatisfied(); done {
			plan := tracePlan(nodes, head)
			logging.OracleDebug("builtin planner found %d-step plan after %d nodes", len(plan), len(nodes))
			return SearchResult{Plan: plan, Outcome: SolutionFound, Message: MsgSolutionFound}, nil
		}

		names, err := s.ApplicableNames()
		if err != nil {
			return SearchResult{Outcome: DomainInvalid, Message: err.Error()}, nil
		}
		ops, _ := s.Applicable()
		for _, name := range names {
			if err := s.Restore(nodes[head].state); err != nil {
				return SearchResult{Outcome: DomainInvalid, Message: err.Error()}, nil
			}
			if _, err := s.Apply(ops[name]); err != nil {
				continue
			}
			next := s.Snapshot()
			key := stateKey(next)
			if seen[key] {
				continue
			}
			seen[key] = true
			nodes = append(nodes, searchNode{state: next, parent: head, action: name})
			if b.MaxNodes > 0 && len(nodes) > b.MaxNodes {
				return SearchResult{Outcome: NoSolution, Message: MsgTimeLimit}, nil
			}
		}
	}
	return SearchResult{Outcome: NoSolution, Message: MsgExhausted}, nil
}

func stateKey(state []bool) string {
	buf := make([]byte, (len(state)+7)/8)
	for i, v := range state {
		if v {
			buf[i/8] |= 1 << (i % 8)
		}
	}
	return string(buf)
}

func tracePlan(nodes []searchNode, i int) Plan {
	var rev Plan
	for ; nodes[i].parent >= 0; i = nodes[i].parent {
		rev = append(rev, nodes[i].action)
	}
	plan := make(Plan, len(rev))
	for j, a := range rev {
		plan[len(rev)-1-j] = a
	}
	return plan
}

// ValidatePlan replays the plan and checks the goal.
func (b *Builtin) ValidatePlan(ctx context.Context, domain, problem string, plan Plan) (Validation, error) {
	v, err := b.validatePlan(ctx, domain, problem, plan)
	if err == nil {
		metrics.OracleCalls.WithLabelValues("builtin", "validate", strconv.FormatBool(v.Valid)).Inc()
	}
	return v, err
}

func (b *Builtin) validatePlan(ctx context.Context, domain, problem string, plan Plan) (Validation, error) {
	s, err := stepper.LoadText(ctx, domain, problem, stepper.Options{KeepGoal: true})
	if err != nil {
		if ctx.Err() != nil {
			return Validation{}, ctx.Err()
		}
		return Validation{Message: err.Error()}, nil
	}
	defer s.Close()

	for i, step := range plan {
		ops, err := s.Applicable()
		if err != nil {
			return Validation{Message: err.Error()}, nil
		}
		op, ok := ops[step]
		if !ok {
			return Validation{Message: fmt.Sprintf(
				"Plan failed to execute: the precondition of (%s) at step %d is not satisfied.", step, i+1)}, nil
		}
		if _, err := s.Apply(op); err != nil {
			return Validation{Message: err.Error()}, nil
		}
	}
	done, err := s.GoalSatisfied()
	if err != nil {
		return Validation{Message: err.Error()}, nil
	}
	if !done {
		return Validation{Message: MsgGoalNotReached}, nil
	}
	return Validation{Valid: true, Message: MsgPlanValid}, nil
}
