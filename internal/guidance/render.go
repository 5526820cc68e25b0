package guidance

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Format selects a guidance encoding. It is a closed set: rendering is one
// switch at the boundary, not dispatch scattered through the model.
type Format int

const (
	FormatText Format = iota
	FormatJSON
	FormatColor
)

// ParseFormat maps a CLI flag value to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "color":
		return FormatColor, nil
	default:
		return FormatText, fmt.Errorf("unknown format %q (want text, json, or color)", s)
	}
}

// Render encodes g in the requested format. Every populated field is
// rendered by every encoding. Validation runs first and fails closed.
func Render(g *Guidance, f Format) (string, error) {
	if err := g.Validate(); err != nil {
		return "", err
	}
	switch f {
	case FormatJSON:
		return renderJSON(g)
	case FormatColor:
		return renderColor(g), nil
	default:
		return renderText(g), nil
	}
}

func renderJSON(g *Guidance) (string, error) {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal guidance: %w", err)
	}
	return string(data) + "\n", nil
}

// renderText is the plain encoding for machine/agent consumption.
func renderText(g *Guidance) string {
	var out strings.Builder
	fmt.Fprintf(&out, "Guidance     : %s\n", g.Command)
	fmt.Fprintf(&out, "Status       : %s\n", g.Status)
	fmt.Fprintf(&out, "Snapshot     : %s (valid %ds)\n", g.SnapshotAt.Format(time.RFC3339), g.ValidForSec)
	if g.RevalidateCmd != "" {
		fmt.Fprintf(&out, "Revalidate   : %s\n", g.RevalidateCmd)
	}
	if g.Bead != "" {
		fmt.Fprintf(&out, "Bead         : %s\n", g.Bead)
	}
	if g.Workspace != "" {
		fmt.Fprintf(&out, "Workspace    : %s\n", g.Workspace)
	}
	if g.Review != "" {
		fmt.Fprintf(&out, "Review       : %s\n", g.Review)
	}
	if len(g.Diagnostics) > 0 {
		fmt.Fprintf(&out, "Diagnostics  :\n")
		for _, d := range g.Diagnostics {
			fmt.Fprintf(&out, "  - %s\n", d)
		}
	}
	if g.Executed && g.Report != nil {
		fmt.Fprintf(&out, "Executed     :\n")
		for _, r := range g.Report.Results {
			mark := "ok"
			if !r.Success {
				mark = "FAILED"
			}
			fmt.Fprintf(&out, "  [%s] %s\n", mark, r.Command)
			writeIndented(&out, "       out: ", r.Stdout)
			writeIndented(&out, "       err: ", r.Stderr)
		}
		if len(g.Report.Remaining) > 0 {
			fmt.Fprintf(&out, "Not executed :\n")
			for _, cmd := range g.Report.Remaining {
				fmt.Fprintf(&out, "  - %s\n", cmd)
			}
		}
	} else if len(g.Steps) > 0 {
		fmt.Fprintf(&out, "Steps        :\n")
		for i, s := range g.Steps {
			fmt.Fprintf(&out, "  %d. %s\n", i+1, s)
		}
	}
	if g.Advice != "" {
		fmt.Fprintf(&out, "Advice       : %s\n", g.Advice)
	}
	return out.String()
}

func writeIndented(out *strings.Builder, prefix, s string) {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return
	}
	for _, line := range strings.Split(s, "\n") {
		fmt.Fprintf(out, "%s%s\n", prefix, line)
	}
}
