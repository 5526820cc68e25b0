package handlers

import (
	"context"
	"fmt"

	"github.com/usher-cli/usher/internal/guidance"
	"github.com/usher-cli/usher/internal/shellsafe"
)

// Review reports where the review for beadID's workspace stands and what
// to do about it: create one, chase missing approvals, or move on to
// finish.
func (h *Handler) Review(ctx context.Context, beadID string) (*guidance.Guidance, error) {
	g := guidance.New("review")
	if !shellsafe.ValidBeadID(beadID) {
		return inputInvalid(g, "bead id", beadID), nil
	}
	g.Bead = beadID
	g.SetFreshness(guidance.DefaultValidForSec, "usher review "+beadID)

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

	if err := h.assessGate(ctx, g, ws, beadID); err != nil {
		return nil, err
	}
	h.runSteps(ctx, g)
	return g, nil
}
