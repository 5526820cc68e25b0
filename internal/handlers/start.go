package handlers

import (
	"context"
	"fmt"

	"github.com/usher-cli/usher/internal/guidance"
	"github.com/usher-cli/usher/internal/shellsafe"
)

// Start guides claiming beadID and setting up an isolated workspace for
// it. The workspace claim's memo carries the bead id so later invocations
// can correlate the two.
func (h *Handler) Start(ctx context.Context, beadID string) (*guidance.Guidance, error) {
	g := guidance.New("start")
	if !shellsafe.ValidBeadID(beadID) {
		return inputInvalid(g, "bead id", beadID), nil
	}
	g.Bead = beadID
	g.SetFreshness(guidance.DefaultValidForSec, "usher start "+beadID)

	holder, err := h.col.ConflictCheck(ctx, beadID)
	if err != nil {
		if toolMissing(err) {
			return nil, err
		}
		return g.Blocked("could not check for competing claims: " + err.Error()), nil
	}
	if holder != "" {
		return g.Blocked(fmt.Sprintf("bead %s is already held by agent %s", beadID, holder)), nil
	}

	// Detail is decoration on the advice line; a flaky tracker must not
	// block starting work.
	if bead, detailErr := h.col.BeadDetail(ctx, beadID); detailErr != nil {
		g.Diagnostic("bead detail unavailable: " + detailErr.Error())
		g.Advise("claim " + beadID + ", then work in the new workspace")
	} else {
		g.Advise(fmt.Sprintf("claim %s (%s), then work in the new workspace", beadID, bead.Title))
	}

	g.AddSteps(
		h.build.StakeClaim(h.build.BeadClaimURI(beadID), 0, ""),
		h.build.CreateWorkspace(),
		h.build.StakeClaim(h.build.WorkspaceClaimURI(shellsafe.WorkspaceToken), 0, beadID),
	)
	h.runSteps(ctx, g)
	return g, nil
}
