package guidance

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Theme centralizes the styling for the colorized encoding. One place for
// all colors keeps future theme support trivial.
type Theme struct {
	Label      lipgloss.Style
	StatusGood lipgloss.Style
	StatusBad  lipgloss.Style
	StatusWait lipgloss.Style
	Step       lipgloss.Style
	StepFailed lipgloss.Style
	Diagnostic lipgloss.Style
	Advice     lipgloss.Style
	Dim        lipgloss.Style
	Highlight  lipgloss.Style
}

// DefaultTheme returns the standard palette.
func DefaultTheme() Theme {
	return Theme{
		Label:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#61AFEF")),
		StatusGood: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00FF00")),
		StatusBad:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF0000")),
		StatusWait: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFF00")),
		Step:       lipgloss.NewStyle().Foreground(lipgloss.Color("#FAFAFA")),
		StepFailed: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		Diagnostic: lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),
		Advice:     lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#98C379")),
		Dim:        lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Highlight:  lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),
	}
}

// statusStyle picks the right status color.
func (t Theme) statusStyle(s Status) lipgloss.Style {
	switch s {
	case StatusReady, StatusApproved, StatusDone:
		return t.StatusGood
	case StatusBlocked, StatusInputInvalid:
		return t.StatusBad
	default:
		return t.StatusWait
	}
}

// renderColor is the human encoding. It carries exactly the same fields as
// the plain encoding, just styled.
func renderColor(g *Guidance) string {
	t := DefaultTheme()
	var out strings.Builder

	line := func(label, value string) {
		fmt.Fprintf(&out, "%s %s\n", t.Label.Render(label+":"), value)
	}

	line("Guidance", t.Highlight.Render(g.Command))
	line("Status", t.statusStyle(g.Status).Render(string(g.Status)))
	line("Snapshot", t.Dim.Render(fmt.Sprintf("%s (valid %ds)", g.SnapshotAt.Format(time.RFC3339), g.ValidForSec)))
	if g.RevalidateCmd != "" {
		line("Revalidate", t.Step.Render(g.RevalidateCmd))
	}
	if g.Bead != "" {
		line("Bead", t.Highlight.Render(g.Bead))
	}
	if g.Workspace != "" {
		line("Workspace", t.Highlight.Render(g.Workspace))
	}
	if g.Review != "" {
		line("Review", t.Highlight.Render(g.Review))
	}
	if len(g.Diagnostics) > 0 {
		fmt.Fprintf(&out, "%s\n", t.Label.Render("Diagnostics:"))
		for _, d := range g.Diagnostics {
			fmt.Fprintf(&out, "  %s %s\n", t.Diagnostic.Render("-"), t.Diagnostic.Render(d))
		}
	}
	if g.Executed && g.Report != nil {
		fmt.Fprintf(&out, "%s\n", t.Label.Render("Executed:"))
		for _, r := range g.Report.Results {
			if r.Success {
				fmt.Fprintf(&out, "  %s %s\n", t.StatusGood.Render("ok"), t.Step.Render(r.Command))
			} else {
				fmt.Fprintf(&out, "  %s %s\n", t.StatusBad.Render("FAILED"), t.StepFailed.Render(r.Command))
				if r.Stderr != "" {
					fmt.Fprintf(&out, "       %s\n", t.Dim.Render(strings.TrimRight(r.Stderr, "\n")))
				}
			}
		}
		if len(g.Report.Remaining) > 0 {
			fmt.Fprintf(&out, "%s\n", t.Label.Render("Not executed:"))
			for _, cmd := range g.Report.Remaining {
				fmt.Fprintf(&out, "  %s %s\n", t.Dim.Render("-"), t.Dim.Render(cmd))
			}
		}
	} else if len(g.Steps) > 0 {
		fmt.Fprintf(&out, "%s\n", t.Label.Render("Steps:"))
		for i, s := range g.Steps {
			fmt.Fprintf(&out, "  %s %s\n", t.Dim.Render(fmt.Sprintf("%d.", i+1)), t.Step.Render(s))
		}
	}
	if g.Advice != "" {
		fmt.Fprintf(&out, "%s %s\n", t.Label.Render("Advice:"), t.Advice.Render(g.Advice))
	}
	return out.String()
}
