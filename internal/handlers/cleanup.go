package handlers

import (
	"context"
	"fmt"

	"github.com/usher-cli/usher/internal/guidance"
)

// Cleanup guides releasing everything the caller holds and signing off on
// the shared channel.
func (h *Handler) Cleanup(ctx context.Context) (*guidance.Guidance, error) {
	g := guidance.New("cleanup")
	g.SetFreshness(guidance.DefaultValidForSec, "usher cleanup")

	snap, err := h.collect(ctx, g)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return g, nil
	}

	g.Status = guidance.StatusDone
	if n := len(snap.Claims); n > 0 {
		g.Diagnostic(fmt.Sprintf("releasing %d claim(s)", n))
	} else {
		g.Diagnostic("no claims held")
	}

	release := h.build.ReleaseAll()
	signOff := h.col.Agent() + " signing off"
	g.AddSteps(release, h.build.Announce(signOff))
	g.Advise("release everything and sign off")

	if h.opts.Execute {
		report := h.exec.Execute(ctx, []string{release})
		g.AttachReport(report)
		if !report.Failed() {
			// Sign-off is best effort; a dead channel must not fail cleanup.
			_ = h.ann.Send(ctx, signOff)
		}
	}
	return g, nil
}
