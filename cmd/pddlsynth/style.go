package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"pddlsynth/internal/eval"
)

var (
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	partStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	boxStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

// renderRating colors a rating: solutions green, partial scores amber and
// error codes red.
func renderRating(r eval.Rating) string {
	switch {
	case r == eval.SolutionFound || r == 1:
		return okStyle.Render(r.String())
	case r.IsScore():
		return partStyle.Render(r.String())
	default:
		return failStyle.Render(r.String())
	}
}

func renderBool(ok bool, yes, no string) string {
	if ok {
		return okStyle.Render(yes)
	}
	return failStyle.Render(no)
}

func field(label string, value any) string {
	return fmt.Sprintf("%s %v", labelStyle.Render(label+":"), value)
}

func section(title, body string) string {
	return lipgloss.JoinVertical(lipgloss.Left, headerStyle.Render(title), boxStyle.Render(body))
}
