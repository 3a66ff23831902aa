// Package eval rates candidate domains against a target domain: plan search
// and validation through an oracle, plus bidirectional random-walk agreement.
package eval

import (
	"errors"
	"fmt"
	"strings"
)

// Rating orders evaluation outcomes. Values in [0, 1] are random-walk
// agreement scores; the named constants sit outside that range.
type Rating float64

const (
	EmptyCode           Rating = -6
	InvalidModification Rating = -5
	SanityError         Rating = -4
	InvalidDomain       Rating = -3
	NoPlan              Rating = -1
	SolutionFound       Rating = 2
)

// String names the fixed ratings and prints scores with three decimals.
func (r Rating) String() string {
	switch r {
	case EmptyCode:
		return "empty_code"
	case InvalidModification:
		return "invalid_modification"
	case SanityError:
		return "sanity_error"
	case InvalidDomain:
		return "invalid_domain"
	case NoPlan:
		return "no_plan"
	case SolutionFound:
		return "solution_found"
	}
	return fmt.Sprintf("%.3f", float64(r))
}

// IsScore reports whether r is a random-walk agreement score.
func (r Rating) IsScore() bool { return r >= 0 && r <= 1 }

// HarmonicMean is 2ab/(a+b), or 0 when a+b is 0.
func HarmonicMean(a, b float64) float64 {
	if a+b == 0 {
		return 0
	}
	return 2 * a * b / (a + b)
}

// Mean is the arithmetic mean; 0 for no values.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// ErrNoCode is returned by ExtractCode when the text has no fenced block.
var ErrNoCode = errors.New("no code block found")

// ExtractCode concatenates every ```lang fenced block of text, one per line.
func ExtractCode(text, lang string) (string, error) {
	start := "```" + lang
	if !strings.Contains(text, start) {
		return "", ErrNoCode
	}
	parts := strings.Split(text, start)[1:]
	blocks := make([]string, 0, len(parts))
	for _, p := range parts {
		body, _, _ := strings.Cut(p, "```")
		blocks = append(blocks, strings.TrimSpace(body))
	}
	return strings.Join(blocks, "\n"), nil
}
