// Package doctor validates the local environment the engine depends on:
// external tools on PATH, a sane configuration, and a writable state
// directory.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/usher-cli/usher/internal/config"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Prober checks the claims service end to end. Satisfied by
// *claims.Service via a small adapter in cmd.
type Prober interface {
	Probe(ctx context.Context) error
}

// Doctor validates configuration and environment.
type Doctor struct {
	cfg    *config.Config
	prober Prober
	// lookPath is swappable for tests.
	lookPath func(string) (string, error)
}

// New creates a Doctor from a loaded config. prober may be nil to skip the
// reachability check.
func New(cfg *config.Config, prober Prober) *Doctor {
	return &Doctor{cfg: cfg, prober: prober, lookPath: exec.LookPath}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate(ctx context.Context) *Result {
	r := &Result{Valid: true}

	d.checkTools(r)
	d.checkIdentity(r)
	d.checkReviewers(r)
	d.checkStateDir(r)
	d.checkClaimsService(ctx, r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// checkTools verifies every configured external binary resolves on PATH.
func (d *Doctor) checkTools(r *Result) {
	tools := map[string]string{
		"tools.claims":    d.cfg.Tools.Claims,
		"tools.workspace": d.cfg.Tools.Workspace,
		"tools.review":    d.cfg.Tools.Review,
		"tools.tracker":   d.cfg.Tools.Tracker,
		"tools.announce":  d.cfg.Tools.Announce,
	}
	for field, tool := range tools {
		if tool == "" {
			d.addError(r, "tools", field, "tool name is empty")
			continue
		}
		if _, err := d.lookPath(tool); err != nil {
			d.addError(r, "tools", field, fmt.Sprintf("%q not found on PATH", tool))
		}
	}
}

func (d *Doctor) checkIdentity(r *Result) {
	if d.cfg.Agent == "" {
		d.addError(r, "identity", "agent", "agent is required")
	}
	if d.cfg.Project == "" {
		d.addError(r, "identity", "project", "project is required")
	}
}

func (d *Doctor) checkReviewers(r *Result) {
	if len(d.cfg.RequiredReviewers) == 0 {
		d.addWarning(r, "review", "required_reviewers",
			"no required reviewers configured; reviews with any vote pass the gate")
	}
}

// checkStateDir verifies the journal and run lock have somewhere to live.
func (d *Doctor) checkStateDir(r *Result) {
	dir := d.cfg.StateDir
	if dir == "" {
		d.addError(r, "state", "state_dir", "state_dir is required")
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		d.addError(r, "state", "state_dir", fmt.Sprintf("cannot create %s: %v", dir, err))
		return
	}
	probe := filepath.Join(dir, ".doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		d.addError(r, "state", "state_dir", fmt.Sprintf("%s is not writable: %v", dir, err))
		return
	}
	_ = os.Remove(probe)
}

func (d *Doctor) checkClaimsService(ctx context.Context, r *Result) {
	if d.prober == nil {
		return
	}
	if err := d.prober.Probe(ctx); err != nil {
		d.addWarning(r, "claims", "tools.claims",
			fmt.Sprintf("claims service not answering: %v", err))
	}
}

// RenderText formats the result as a short human report.
func RenderText(r *Result) string {
	var sb strings.Builder
	if r.Valid {
		sb.WriteString("doctor: environment looks good\n")
	} else {
		sb.WriteString("doctor: problems found\n")
	}
	for _, e := range r.Errors {
		fmt.Fprintf(&sb, "  ERROR   [%s] %s", e.Category, e.Message)
		if e.Field != "" {
			fmt.Fprintf(&sb, " (%s)", e.Field)
		}
		sb.WriteByte('\n')
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&sb, "  WARNING [%s] %s", w.Category, w.Message)
		if w.Field != "" {
			fmt.Fprintf(&sb, " (%s)", w.Field)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
