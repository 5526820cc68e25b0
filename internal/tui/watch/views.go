package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

func (m *Model) renderHeader() string {
	innerWidth := m.width - 4

	title := fmt.Sprintf(" USHER WATCH  %s/%s", m.col.Agent(), m.col.Project())
	clock := m.theme.Dim.Render(time.Now().Format("15:04:05"))

	pad := innerWidth - lipgloss.Width(title) - lipgloss.Width(clock) - 4
	if pad < 1 {
		pad = 1
	}
	titleLine := title + strings.Repeat(" ", pad) + clock + " "

	status := " idle"
	if m.fetching {
		status = " " + m.spin.View() + " collecting"
	}
	var collectedAt string
	if m.snap != nil {
		collectedAt = "  snapshot: " + m.snap.CollectedAt.Format("15:04:05")
	}
	statsLine := m.theme.Dim.Render(status + collectedAt)

	return m.theme.Border.Width(innerWidth).Render(
		lipgloss.JoinVertical(lipgloss.Left, titleLine, statsLine),
	)
}

func (m *Model) renderClaims() string {
	var sb strings.Builder
	sb.WriteString(m.theme.Header.Render(" Claims") + "\n")

	if m.snap == nil || len(m.snap.Claims) == 0 {
		sb.WriteString(m.theme.Dim.Render("  none held"))
		return sb.String()
	}
	for _, c := range m.snap.Claims {
		style := m.theme.ClaimActive
		if !c.Active {
			style = m.theme.ClaimExpired
		}
		for _, p := range c.Patterns {
			line := "  " + p
			if c.Memo != "" {
				line += m.theme.Dim.Render("  (" + c.Memo + ")")
			}
			if c.ExpiresInSecs != nil {
				line += m.theme.Highlight.Render(fmt.Sprintf("  ttl %ds", *c.ExpiresInSecs))
			}
			sb.WriteString(style.Render(line) + "\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (m *Model) renderWorkspaces() string {
	var sb strings.Builder
	sb.WriteString(m.theme.Header.Render(" Workspaces") + "\n")

	if m.snap == nil || len(m.snap.Workspaces) == 0 {
		sb.WriteString(m.theme.Dim.Render("  none"))
		return sb.String()
	}
	for _, w := range m.snap.Workspaces {
		line := "  " + w.Name
		switch {
		case w.IsDefault:
			line = m.theme.WSDefault.Render(line + "  [merge target]")
		case w.IsCurrent:
			line = m.theme.WSCurrent.Render(line + "  [current]")
		}
		if w.ChangeID != "" {
			line += m.theme.Dim.Render("  change " + w.ChangeID)
		}
		sb.WriteString(line + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (m *Model) renderAdvice() string {
	if m.snap == nil || len(m.snap.Advice) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(m.theme.Header.Render(" Advice") + "\n")
	for _, a := range m.snap.Advice {
		sb.WriteString(m.theme.AdviceWarn.Render(fmt.Sprintf("  [%s] %s", a.Level, a.Message)) + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
