package handlers

import (
	"context"
	"fmt"

	"github.com/usher-cli/usher/internal/collector"
	"github.com/usher-cli/usher/internal/guidance"
)

// staleThresholdSecs is how close to expiry a claim may get before resume
// tells the agent to refresh instead of continuing.
const staleThresholdSecs = 60

// ResumeSet is the resume handler's output: one guidance per held bead
// claim plus an aggregate summary.
type ResumeSet struct {
	PerBead []*guidance.Guidance
	Summary *guidance.Guidance
}

// Resume assesses every bead claim the caller holds, not just one.
// Assessment is read-only; execute mode never runs steps from here.
func (h *Handler) Resume(ctx context.Context) (*ResumeSet, error) {
	summary := guidance.New("resume")
	summary.SetFreshness(guidance.DefaultValidForSec, "usher resume")

	snap, err := h.collect(ctx, summary)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return &ResumeSet{Summary: summary}, nil
	}

	held := snap.Held("bead")
	if len(held) == 0 {
		summary.Status = guidance.StatusNothingHeld
		summary.Advise("no bead claims held; pick up work with: usher start <bead>")
		return &ResumeSet{Summary: summary}, nil
	}

	set := &ResumeSet{Summary: summary}
	for _, hc := range held {
		bg, err := h.resumeOne(ctx, snap, hc.ID)
		if err != nil {
			return nil, err
		}
		set.PerBead = append(set.PerBead, bg)
		summary.Diagnostic(fmt.Sprintf("%s: %s", hc.ID, bg.Status))
	}
	summary.Advise(fmt.Sprintf("%d bead claim(s) assessed", len(held)))
	return set, nil
}

// resumeOne computes the per-bead guidance from the shared snapshot.
func (h *Handler) resumeOne(ctx context.Context, snap *collector.Snapshot, beadID string) (*guidance.Guidance, error) {
	g := guidance.New("resume")
	g.Bead = beadID
	g.SetFreshness(guidance.DefaultValidForSec, "usher resume")

	if secs, ok := claimExpiry(snap, beadID); ok && secs < staleThresholdSecs {
		g.Status = guidance.StatusStale
		g.Diagnostic(fmt.Sprintf("claim on %s expires in %ds", beadID, secs))
		g.Step(h.build.RefreshClaims())
		g.Advise("refresh the claim before continuing")
		return g, nil
	}

	ws, ok := snap.WorkspaceFor(beadID)
	if !ok {
		return g.Blocked(fmt.Sprintf("cannot resolve the workspace for bead %s: claim memos are absent or ambiguous", beadID)), nil
	}
	g.Workspace = ws

	if err := h.assessGate(ctx, g, ws, beadID); err != nil {
		return nil, err
	}
	return g, nil
}

// claimExpiry returns the remaining TTL of the claim holding beadID, when
// the claims store reported one.
func claimExpiry(snap *collector.Snapshot, beadID string) (int, bool) {
	for _, c := range snap.Claims {
		if c.Agent != snap.Agent || !c.Active || c.ExpiresInSecs == nil {
			continue
		}
		for _, id := range c.BeadIDs() {
			if id == beadID {
				return *c.ExpiresInSecs, true
			}
		}
	}
	return 0, false
}
