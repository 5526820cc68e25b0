// Package handlers implements the lifecycle commands. Each handler is a
// short decision procedure over a shared shape: collect context, validate
// the caller holds the relevant claim, resolve the associated workspace,
// evaluate the review gate where one applies, then emit guidance with
// literal next-step commands. In execute mode the pending steps are handed
// to the step executor and the guidance carries its report instead.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/usher-cli/usher/internal/collector"
	"github.com/usher-cli/usher/internal/config"
	"github.com/usher-cli/usher/internal/errs"
	"github.com/usher-cli/usher/internal/gate"
	"github.com/usher-cli/usher/internal/guidance"
	"github.com/usher-cli/usher/internal/log"
	"github.com/usher-cli/usher/internal/mutex"
	"github.com/usher-cli/usher/internal/shellsafe"
	"github.com/usher-cli/usher/internal/steps"
)

// StepExecutor runs an ordered step list. Satisfied by *steps.Executor.
type StepExecutor interface {
	Execute(ctx context.Context, list []string) steps.Report
}

// Locker acquires the merge lease. Satisfied by *mutex.Mutex.
type Locker interface {
	Acquire(ctx context.Context, budget time.Duration, memo string) (*mutex.Lease, error)
	URI() string
}

// MergeChecker runs the merge pre-flight probe. Satisfied by *wsm.Service.
type MergeChecker interface {
	CheckMerge(ctx context.Context, name string) (clean bool, detail string, err error)
}

// Announcer sends broadcasts. Satisfied by *announce.Service.
type Announcer interface {
	Send(ctx context.Context, message string) error
}

// Options tunes handler behavior per invocation.
type Options struct {
	// Execute runs the emitted steps through the executor instead of
	// leaving them for the caller to paste.
	Execute bool
}

// Handler composes the collector, gate, builder, executor, and merge
// mutex into one decision procedure per lifecycle command.
type Handler struct {
	cfg    *config.Config
	col    *collector.Collector
	build  *shellsafe.Builder
	exec   StepExecutor
	lock   Locker
	merges MergeChecker
	ann    Announcer
	opts   Options
	logger *slog.Logger
}

// New returns a Handler over the given collaborators.
func New(cfg *config.Config, col *collector.Collector, build *shellsafe.Builder,
	exec StepExecutor, lock Locker, merges MergeChecker, ann Announcer, opts Options) *Handler {
	return &Handler{
		cfg:    cfg,
		col:    col,
		build:  build,
		exec:   exec,
		lock:   lock,
		merges: merges,
		ann:    ann,
		opts:   opts,
		logger: log.WithComponent("handlers"),
	}
}

// toolMissing reports whether err means the external tool itself is absent
// from PATH. Such failures escalate to operational errors; everything else
// degrades to Blocked guidance with a diagnostic.
func toolMissing(err error) bool {
	return errors.Is(err, exec.ErrNotFound)
}

// collect fetches the snapshot. A read failure turns g into Blocked
// guidance and returns (nil, nil); a missing tool escalates as an error.
func (h *Handler) collect(ctx context.Context, g *guidance.Guidance) (*collector.Snapshot, error) {
	snap, err := h.col.Collect(ctx)
	if err != nil {
		if toolMissing(err) {
			return nil, err
		}
		g.Blocked("could not collect coordination state: " + err.Error())
		return nil, nil
	}
	g.SnapshotAt = snap.CollectedAt
	return snap, nil
}

// inputInvalid marks g rejected before any side effect.
func inputInvalid(g *guidance.Guidance, field, value string) *guidance.Guidance {
	g.Status = guidance.StatusInputInvalid
	return g.Diagnostic(fmt.Sprintf("%s %q fails validation; nothing was attempted", field, value))
}

// holdsBead reports whether the snapshot shows an active claim on beadID.
func holdsBead(snap *collector.Snapshot, beadID string) bool {
	for _, held := range snap.Held("bead") {
		if held.ID == beadID {
			return true
		}
	}
	return false
}

// runSteps hands the pending steps to the executor when execute mode is
// on. Blocked and rejected guidance never executes.
func (h *Handler) runSteps(ctx context.Context, g *guidance.Guidance) {
	if !h.opts.Execute || len(g.Steps) == 0 {
		return
	}
	if g.Status == guidance.StatusBlocked || g.Status == guidance.StatusInputInvalid {
		return
	}
	g.AttachReport(h.exec.Execute(ctx, g.Steps))
}

// runUnderLease acquires the merge lease, executes post while holding it,
// and releases on every path. A lease timeout becomes Blocked guidance;
// any other acquisition failure escalates.
func (h *Handler) runUnderLease(ctx context.Context, g *guidance.Guidance, memo string, post []string) error {
	lease, err := h.lock.Acquire(ctx, h.cfg.Lease.AcquireBudget, memo)
	if err != nil {
		if errs.IsTimeout(err) {
			g.Blocked("merge lease not acquired in time: " + err.Error())
			return nil
		}
		return err
	}
	defer func() { _ = lease.Release(ctx) }()

	g.AttachReport(h.exec.Execute(ctx, post))
	if err := lease.Release(ctx); err != nil {
		g.Diagnostic("merge lease release failed: " + err.Error())
	}
	return nil
}

// openReview returns the id of the review to evaluate for ws: the first
// open one, otherwise the first listed, otherwise "".
func (h *Handler) openReview(ctx context.Context, ws string) (string, error) {
	list, err := h.col.ReviewsInWorkspace(ctx, ws)
	if err != nil {
		return "", err
	}
	for _, s := range list {
		if s.Status == "open" {
			return s.ReviewID, nil
		}
	}
	if len(list) > 0 {
		return list[0].ReviewID, nil
	}
	return "", nil
}

// assessGate resolves the review state for ws and writes the gate outcome
// into g: NeedsReview with creation steps when no review exists, otherwise
// the evaluated decision.
func (h *Handler) assessGate(ctx context.Context, g *guidance.Guidance, ws, beadID string) error {
	reviewID, err := h.openReview(ctx, ws)
	if err != nil {
		if toolMissing(err) {
			return err
		}
		g.Blocked("could not list reviews for " + ws + ": " + err.Error())
		return nil
	}
	if reviewID == "" {
		g.Status = guidance.StatusNeedsReview
		g.AddSteps(
			h.build.CreateReview(ws, h.cfg.RequiredReviewers),
			h.build.Announce(reviewPing(h.cfg.RequiredReviewers, "workspace "+ws)),
		)
		g.Advise("open a review and ping the required reviewers")
		return nil
	}
	g.Review = reviewID

	rev, err := h.col.ReviewDetail(ctx, reviewID)
	if err != nil {
		if toolMissing(err) {
			return err
		}
		g.Blocked("could not fetch review " + reviewID + ": " + err.Error())
		return nil
	}
	h.applyDecision(g, gate.Evaluate(*rev, h.cfg.RequiredReviewers), reviewID, beadID)
	if rev.OpenThreadCount > 0 {
		g.Diagnostic(fmt.Sprintf("%d open review thread(s)", rev.OpenThreadCount))
	}
	return nil
}

// applyDecision maps a gate decision onto guidance status, steps, and
// diagnostics.
func (h *Handler) applyDecision(g *guidance.Guidance, d gate.Decision, reviewID, beadID string) {
	switch d.Status {
	case gate.Approved:
		g.Status = guidance.StatusApproved
		g.Advise("all required approvals are in; run: usher finish " + beadID)
	case gate.Blocked:
		g.Status = guidance.StatusBlocked
		g.Diagnostic("blocked by: " + strings.Join(d.BlockedBy, ", "))
		for _, r := range d.NewerBlockAfterLGTM {
			g.Diagnostic(r + " blocked after an earlier lgtm")
		}
		g.Advise("address the blocking feedback, then re-request review")
	default:
		g.Status = guidance.StatusNeedsReview
		if len(d.MissingApprovals) > 0 {
			g.Diagnostic("missing approvals: " + strings.Join(d.MissingApprovals, ", "))
			for _, r := range d.MissingApprovals {
				g.Step(h.build.RequestReview(reviewID, r))
			}
			g.Step(h.build.Announce(reviewPing(d.MissingApprovals, "review "+reviewID)))
		}
		g.Advise("request the missing reviews")
	}
}

// reviewPing formats the broadcast asking reviewers to look at subject.
func reviewPing(reviewers []string, subject string) string {
	var sb strings.Builder
	for _, r := range reviewers {
		sb.WriteString("@" + r + " ")
	}
	sb.WriteString("please review " + subject)
	return sb.String()
}
