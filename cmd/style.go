package cmd

import (
	"fmt"

	"charm.land/lipgloss/v2"
)

var (
	accent  = lipgloss.Color("#14B8A6")
	dim     = lipgloss.Color("#94A3B8")
	success = lipgloss.Color("#22C55E")
	failure = lipgloss.Color("#F43F5E")
	border  = lipgloss.Color("#334155")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)
	labelStyle = lipgloss.NewStyle().Foreground(dim).Width(14)
	dimStyle   = lipgloss.NewStyle().Foreground(dim)
	okStyle    = lipgloss.NewStyle().Foreground(success)
	badStyle   = lipgloss.NewStyle().Foreground(failure)
	cardStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(border).
			Padding(0, 1)
)

// field renders "label  value" with an aligned label column.
func field(label string, value any) string {
	return labelStyle.Render(label) + fmt.Sprint(value)
}

func mark(ok bool) string {
	if ok {
		return okStyle.Render("✓")
	}
	return badStyle.Render("✗")
}

func statusStyle(status string) lipgloss.Style {
	switch status {
	case "completed":
		return okStyle
	case "aborted":
		return badStyle
	}
	return lipgloss.NewStyle().Foreground(accent)
}
