package status

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title      lipgloss.Style
	header     lipgloss.Style
	section    lipgloss.Style
	label      lipgloss.Style
	detail     lipgloss.Style
	meta       lipgloss.Style
	warning    lipgloss.Style
	empty      lipgloss.Style
	barBracket lipgloss.Style
	barFill    lipgloss.Style
	barEmpty   lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:      lipgloss.NewStyle().Bold(true),
		header:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		section:    lipgloss.NewStyle().MarginTop(1).Bold(true).Foreground(lipgloss.Color("39")),
		label:      lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		detail:     lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		meta:       lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		warning:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		empty:      lipgloss.NewStyle().Faint(true),
		barBracket: lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		barFill:    lipgloss.NewStyle().Foreground(lipgloss.Color("114")),
		barEmpty:   lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
	}
}
