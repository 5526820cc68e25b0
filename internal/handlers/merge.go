package handlers

import (
	"context"

	"github.com/usher-cli/usher/internal/announce"
	"github.com/usher-cli/usher/internal/guidance"
	"github.com/usher-cli/usher/internal/shellsafe"
)

// Merge guides merging workspace ws into the integration target. It runs
// the pre-flight conflict probe first; on conflict or staleness it returns
// Blocked with recovery guidance rather than attempting auto-resolution.
func (h *Handler) Merge(ctx context.Context, ws string) (*guidance.Guidance, error) {
	g := guidance.New("merge")
	if !shellsafe.ValidWorkspaceName(ws) {
		return inputInvalid(g, "workspace name", ws), nil
	}
	if ws == "default" {
		return inputInvalid(g, "workspace name", ws).
			Diagnostic("default is the merge target and is never itself merged"), nil
	}
	g.Workspace = ws
	g.SetFreshness(guidance.DefaultValidForSec, "usher merge "+ws)

	snap, err := h.collect(ctx, g)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return g, nil
	}
	if !snap.HasWorkspace(ws) {
		return g.Blocked("workspace not found: " + ws), nil
	}

	clean, detail, err := h.merges.CheckMerge(ctx, ws)
	if err != nil {
		if toolMissing(err) {
			return nil, err
		}
		return g.Blocked("merge pre-flight probe failed: " + err.Error()), nil
	}
	if !clean {
		g.Blocked("workspace " + ws + " does not merge cleanly into default")
		if detail != "" {
			g.Diagnostic(detail)
		}
		g.Diagnostic("inspect the conflicts: " + h.build.MergeWorkspace(ws, false, true))
		g.Diagnostic("sync " + ws + " with default and restore the auto-mergeable files")
		g.Diagnostic("resolve the remaining conflicts by hand, then retry: usher merge " + ws)
		g.Diagnostic("or undo entirely: release the workspace claim and discard " + ws)
		g.Advise("resolve conflicts before merging; nothing was changed")
		return g, nil
	}

	memo := "merge " + ws
	leaseURI := h.build.WorkspaceClaimURI("default")
	mergeSteps := []string{
		h.build.MergeWorkspace(ws, true, false),
		h.build.Announce(announce.MergeCompletedMarker + ": " + ws),
	}

	g.Step(h.build.StakeClaim(leaseURI, h.cfg.Lease.TTLSecs, memo))
	g.AddSteps(mergeSteps...)
	g.Step(h.build.ReleaseClaim(leaseURI))
	g.Advise("workspace is clean; merge under the lease")

	if h.opts.Execute {
		if err := h.runUnderLease(ctx, g, memo, mergeSteps); err != nil {
			return nil, err
		}
	}
	return g, nil
}
