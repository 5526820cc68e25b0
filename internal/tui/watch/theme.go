// Package watch implements the live coordination view: held claims,
// workspaces, and workspace-manager advice, refreshed on a ticker via the
// collector. It is a read-only observer; no key binding mutates anything.
package watch

import "github.com/charmbracelet/lipgloss"

// Theme centralizes all styling for the watch TUI. Even with a single
// default theme, this keeps all colors in one place.
type Theme struct {
	ClaimActive  lipgloss.Style
	ClaimExpired lipgloss.Style
	WSDefault    lipgloss.Style
	WSCurrent    lipgloss.Style
	AdviceWarn   lipgloss.Style

	Border    lipgloss.Style
	Title     lipgloss.Style
	Header    lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style
	Failed    lipgloss.Style
}

func NewDefaultTheme() Theme {
	purple := lipgloss.Color("#874BFD")

	return Theme{
		ClaimActive:  lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		ClaimExpired: lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")),
		WSDefault:    lipgloss.NewStyle().Foreground(lipgloss.Color("#61AFEF")).Bold(true),
		WSCurrent:    lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),
		AdviceWarn:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#61AFEF")),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),
		Failed:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
	}
}
