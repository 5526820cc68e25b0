package handlers

import (
	"context"
	"fmt"

	"github.com/usher-cli/usher/internal/announce"
	"github.com/usher-cli/usher/internal/gate"
	"github.com/usher-cli/usher/internal/guidance"
	"github.com/usher-cli/usher/internal/shellsafe"
)

// Finish guides merging beadID's workspace into the integration target and
// closing the bead out. The review gate must be Approved unless force is
// set; a forced bypass is always surfaced as a diagnostic warning, never
// silent.
func (h *Handler) Finish(ctx context.Context, beadID string, force bool) (*guidance.Guidance, error) {
	g := guidance.New("finish")
	if !shellsafe.ValidBeadID(beadID) {
		return inputInvalid(g, "bead id", beadID), nil
	}
	g.Bead = beadID
	g.SetFreshness(guidance.DefaultValidForSec, "usher finish "+beadID)

	snap, err := h.collect(ctx, g)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return g, nil
	}

	if !holdsBead(snap, beadID) {
		g.Status = guidance.StatusNothingHeld
		g.Diagnostic(fmt.Sprintf("no claim held on bead %s", beadID))
		return g.Advise("claim it first: usher start " + beadID), nil
	}

	ws, ok := snap.WorkspaceFor(beadID)
	if !ok {
		return g.Blocked(fmt.Sprintf("cannot resolve the workspace for bead %s: claim memos are absent or ambiguous", beadID)), nil
	}
	g.Workspace = ws

	reviewID, err := h.openReview(ctx, ws)
	if err != nil {
		if toolMissing(err) {
			return nil, err
		}
		return g.Blocked("could not list reviews for " + ws + ": " + err.Error()), nil
	}

	switch {
	case reviewID == "" && !force:
		g.Status = guidance.StatusNeedsReview
		g.Diagnostic("no review exists for workspace " + ws)
		g.AddSteps(
			h.build.CreateReview(ws, h.cfg.RequiredReviewers),
			h.build.Announce(reviewPing(h.cfg.RequiredReviewers, "workspace "+ws)),
		)
		g.Advise("open a review before finishing, or re-run with --force")
		h.runSteps(ctx, g)
		return g, nil
	case reviewID == "":
		g.Diagnostic("WARNING: --force used with no review; the gate was bypassed")
	default:
		g.Review = reviewID
		rev, err := h.col.ReviewDetail(ctx, reviewID)
		if err != nil {
			if toolMissing(err) {
				return nil, err
			}
			return g.Blocked("could not fetch review " + reviewID + ": " + err.Error()), nil
		}
		d := gate.Evaluate(*rev, h.cfg.RequiredReviewers)
		if d.Status != gate.Approved {
			if !force {
				h.applyDecision(g, d, reviewID, beadID)
				h.runSteps(ctx, g)
				return g, nil
			}
			g.Diagnostic(fmt.Sprintf("WARNING: --force bypassed the review gate (gate: %s)", d.Status))
		}
	}

	memo := fmt.Sprintf("merge %s for %s", ws, beadID)
	leaseURI := h.build.WorkspaceClaimURI("default")
	mergeSteps := []string{
		h.build.MergeWorkspace(ws, true, false),
		h.build.Announce(announce.MergeCompletedMarker + ": " + ws),
		h.build.CloseBead(beadID),
		h.build.ReleaseClaim(h.build.BeadClaimURI(beadID)),
		h.build.ReleaseClaim(h.build.WorkspaceClaimURI(ws)),
	}

	g.Status = guidance.StatusReady
	g.Step(h.build.StakeClaim(leaseURI, h.cfg.Lease.TTLSecs, memo))
	g.AddSteps(mergeSteps...)
	g.Step(h.build.ReleaseClaim(leaseURI))
	g.Advise("merge under the lease, then close out the bead")

	if h.opts.Execute {
		// The lease lines are handled in process so contention retries with
		// backoff and the lease is released on every path.
		if err := h.runUnderLease(ctx, g, memo, mergeSteps); err != nil {
			return nil, err
		}
	}
	return g, nil
}
