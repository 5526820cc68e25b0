// Package guidance defines the engine's sole output type and its three
// textual encodings. A Guidance is produced fresh per invocation and never
// persisted; consumers re-run the advertised revalidate command once the
// freshness window lapses.
package guidance

import (
	"time"

	"github.com/usher-cli/usher/internal/errs"
	"github.com/usher-cli/usher/internal/shellsafe"
	"github.com/usher-cli/usher/internal/steps"
)

// Schema identifies the guidance encoding. Evolution is additive-only:
// fields may be added under this schema string, never removed or reshaped.
const Schema = "protocol-guidance.v1"

// DefaultValidForSec is the freshness window handlers get unless they call
// SetFreshness.
const DefaultValidForSec = 300

// Status is the business outcome of a guidance computation. Every status
// maps to a successful process exit; operational failure travels on the
// error channel instead.
type Status string

const (
	StatusReady        Status = "ready"
	StatusBlocked      Status = "blocked"
	StatusNeedsReview  Status = "needs_review"
	StatusApproved     Status = "approved"
	StatusInputInvalid Status = "input_invalid"
	StatusNothingHeld  Status = "nothing_held"
	StatusStale        Status = "stale"
	StatusDone         Status = "done"
)

// Guidance is the engine's answer to "what should I do next".
type Guidance struct {
	Schema        string        `json:"schema"`
	Command       string        `json:"command"`
	Status        Status        `json:"status"`
	SnapshotAt    time.Time     `json:"snapshot_at"`
	ValidForSec   int           `json:"valid_for_sec"`
	RevalidateCmd string        `json:"revalidate_cmd,omitempty"`
	Bead          string        `json:"bead,omitempty"`
	Workspace     string        `json:"workspace,omitempty"`
	Review        string        `json:"review,omitempty"`
	Steps         []string      `json:"steps"`
	Diagnostics   []string      `json:"diagnostics"`
	Advice        string        `json:"advice,omitempty"`
	Executed      bool          `json:"executed"`
	Report        *steps.Report `json:"execution_report,omitempty"`
}

// New returns a Ready guidance for command with a fresh snapshot timestamp
// and the default freshness window.
func New(command string) *Guidance {
	return &Guidance{
		Schema:      Schema,
		Command:     command,
		Status:      StatusReady,
		SnapshotAt:  time.Now().UTC(),
		ValidForSec: DefaultValidForSec,
		Steps:       []string{},
		Diagnostics: []string{},
	}
}

// Step appends one command to the step list.
func (g *Guidance) Step(cmd string) *Guidance {
	g.Steps = append(g.Steps, cmd)
	return g
}

// AddSteps appends several commands to the step list.
func (g *Guidance) AddSteps(cmds ...string) *Guidance {
	g.Steps = append(g.Steps, cmds...)
	return g
}

// Diagnostic appends an explanatory note.
func (g *Guidance) Diagnostic(note string) *Guidance {
	g.Diagnostics = append(g.Diagnostics, note)
	return g
}

// Blocked sets the status to Blocked and records reason as a diagnostic.
func (g *Guidance) Blocked(reason string) *Guidance {
	g.Status = StatusBlocked
	return g.Diagnostic(reason)
}

// Advise sets the one-line human summary.
func (g *Guidance) Advise(msg string) *Guidance {
	g.Advice = msg
	return g
}

// SetFreshness overrides the freshness window and advertises the exact
// command to re-run for fresh state.
func (g *Guidance) SetFreshness(secs int, revalidateCmd string) *Guidance {
	g.ValidForSec = secs
	g.RevalidateCmd = revalidateCmd
	return g
}

// AttachReport marks the guidance executed and carries the step report in
// place of pending steps.
func (g *Guidance) AttachReport(r steps.Report) *Guidance {
	g.Executed = true
	g.Report = &r
	return g
}

// Validate re-checks every embedded identifier against its grammar. It
// runs before any rendering and fails closed: guidance is never emitted
// with a payload that could be misread as a shell command when pasted.
func (g *Guidance) Validate() error {
	if g.Bead != "" && !shellsafe.ValidBeadID(g.Bead) {
		return &errs.ValidationError{Field: "bead id", Value: g.Bead}
	}
	if g.Workspace != "" && !shellsafe.ValidWorkspaceName(g.Workspace) {
		return &errs.ValidationError{Field: "workspace name", Value: g.Workspace}
	}
	if g.Review != "" && !shellsafe.ValidReviewID(g.Review) {
		return &errs.ValidationError{Field: "review id", Value: g.Review}
	}
	return nil
}
