// Package oracle wraps plan search and plan validation as pure functions of
// their inputs. The fast-downward backend drives the external Fast Downward
// planner and the VAL validator; the builtin backend searches and validates
// in-process on the stepper.
package oracle

import (
	"context"
	"strings"
)

// Planner aliases understood by Fast Downward.
const (
	OptimalAlias    = "seq-opt-fdss-1"
	SubOptimalAlias = "lama-first"
)

// Markers the planner prints on its success paths.
const (
	markerSolved    = "Solution found."
	markerExhausted = "Search stopped without finding a solution."
	markerTimeLimit = "Time limit has been reached."
)

// Messages attached to search outcomes.
const (
	MsgSolutionFound = "Solution found."
	MsgExhausted     = "Generated PDDL domain is valid, but plan search stopped without finding a solution."
	MsgTimeLimit     = "Generated PDDL domain is valid, but search Time limit has been reached."
)

// Messages attached to validation outcomes.
const (
	MsgPlanValid      = "The plan is valid."
	MsgGoalNotReached = "The goal is not satisfied."
	MsgPlanInvalid    = "The plan is invalid."
	MsgUnknownError   = "Unknown error."
)

// Outcome classifies a search.
type Outcome int

const (
	// SolutionFound means a plan was returned.
	SolutionFound Outcome = iota
	// NoSolution means the domain is usable but search exhausted or timed out.
	NoSolution
	// DomainInvalid means the domain/problem could not be processed.
	DomainInvalid
)

func (o Outcome) String() string {
	switch o {
	case SolutionFound:
		return "solution_found"
	case NoSolution:
		return "no_solution"
	default:
		return "domain_invalid"
	}
}

// Plan is an ordered list of ground action names ("pickup b1").
type Plan []string

// String renders one parenthesized action per line.
func (p Plan) String() string {
	lines := make([]string, len(p))
	for i, a := range p {
		lines[i] = "(" + a + ")"
	}
	return strings.Join(lines, "\n")
}

// ParsePlan reads a plan file: one "(action args)" per line; ';' lines are
// comments.
func ParsePlan(text string) Plan {
	var p Plan
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		line = strings.TrimSuffix(strings.TrimPrefix(line, "("), ")")
		p = append(p, strings.Join(strings.Fields(strings.ToLower(line)), " "))
	}
	return p
}

// SearchResult is the outcome of FindPlan.
type SearchResult struct {
	Plan    Plan
	Outcome Outcome
	Message string
}

// DomainValid reports whether the domain could be searched at all.
func (r SearchResult) DomainValid() bool { return r.Outcome != DomainInvalid }

// Validation is the outcome of ValidatePlan.
type Validation struct {
	Valid   bool
	Message string
}

// Oracle finds and validates plans. Tool and domain failures are reported
// inside the results; the error return is reserved for ctx cancellation.
type Oracle interface {
	FindPlan(ctx context.Context, domain, problem string) (SearchResult, error)
	ValidatePlan(ctx context.Context, domain, problem string, plan Plan) (Validation, error)
}
