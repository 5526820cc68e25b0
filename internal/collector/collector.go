// Package collector fetches and correlates the distributed coordination
// state (claims, workspaces) into one queryable snapshot per invocation.
// There is no caching beyond a snapshot's lifetime and no background
// refresh: stale answers are handled by the guidance freshness window, not
// by watching for changes.
package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/usher-cli/usher/internal/claims"
	"github.com/usher-cli/usher/internal/log"
	"github.com/usher-cli/usher/internal/review"
	"github.com/usher-cli/usher/internal/tracker"
	"github.com/usher-cli/usher/internal/wsm"
)

// ClaimSource lists claims. Satisfied by *claims.Service.
type ClaimSource interface {
	List(ctx context.Context, mine bool) ([]claims.Claim, error)
}

// WorkspaceSource lists workspaces. Satisfied by *wsm.Service.
type WorkspaceSource interface {
	List(ctx context.Context) ([]wsm.Workspace, []wsm.Advice, error)
}

// ReviewSource fetches reviews. Satisfied by *review.Service.
type ReviewSource interface {
	ListInWorkspace(ctx context.Context, ws string) ([]review.Summary, error)
	Detail(ctx context.Context, id string) (*review.Review, error)
}

// BeadSource fetches issues. Satisfied by *tracker.Service.
type BeadSource interface {
	Show(ctx context.Context, id string) (*tracker.Bead, error)
}

// Collector assembles snapshots of external state.
type Collector struct {
	claims  ClaimSource
	ws      WorkspaceSource
	reviews ReviewSource
	beads   BeadSource
	agent   string
	project string
	logger  *slog.Logger
}

// New returns a Collector for the given agent and project.
func New(cs ClaimSource, ws WorkspaceSource, rs ReviewSource, bs BeadSource, agent, project string) *Collector {
	return &Collector{
		claims:  cs,
		ws:      ws,
		reviews: rs,
		beads:   bs,
		agent:   agent,
		project: project,
		logger:  log.WithComponent("collector"),
	}
}

// Agent returns the caller identity the collector filters by.
func (c *Collector) Agent() string { return c.agent }

// Project returns the project the collector operates in.
func (c *Collector) Project() string { return c.project }

// Snapshot is one point-in-time view of the caller's claims and the full
// workspace list. Derived queries are pure over the snapshot.
type Snapshot struct {
	Agent       string
	Project     string
	Claims      []claims.Claim
	Workspaces  []wsm.Workspace
	Advice      []wsm.Advice
	CollectedAt time.Time
}

// Collect fetches the caller's claims and the workspace list, once each.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	cl, err := c.claims.List(ctx, true)
	if err != nil {
		return nil, err
	}
	workspaces, advice, err := c.ws.List(ctx)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("collected state", "claims", len(cl), "workspaces", len(workspaces))
	return &Snapshot{
		Agent:       c.agent,
		Project:     c.project,
		Claims:      cl,
		Workspaces:  workspaces,
		Advice:      advice,
		CollectedAt: time.Now().UTC(),
	}, nil
}

// Held is one claim the agent holds in a given scheme.
type Held struct {
	ID  string
	URI string
}

// Held returns the claims the snapshot's agent holds whose pattern matches
// scheme, as (id, full pattern) pairs.
func (s *Snapshot) Held(scheme string) []Held {
	var out []Held
	for _, c := range s.Claims {
		if c.Agent != s.Agent || !c.Active {
			continue
		}
		for _, raw := range c.Patterns {
			if p, ok := claims.ParsePattern(raw); ok && p.Scheme == scheme {
				out = append(out, Held{ID: p.ID, URI: raw})
			}
		}
	}
	return out
}

// WorkspaceFor resolves the workspace claimed for beadID. The memo on a
// workspace claim is the authoritative link (memo == bead id). When the
// upstream service omits memos, it falls back to the single non-default
// workspace claim the agent holds. The fallback assumes a worker holds at
// most one bead and one workspace claim at a time.
func (s *Snapshot) WorkspaceFor(beadID string) (string, bool) {
	held := s.heldWorkspaceClaims()
	for _, hc := range held {
		if hc.memo == beadID && hc.name != "default" {
			return hc.name, true
		}
	}
	var fallback string
	count := 0
	for _, hc := range held {
		if hc.name == "default" {
			continue
		}
		fallback = hc.name
		count++
	}
	if count == 1 {
		return fallback, true
	}
	return "", false
}

type heldWorkspace struct {
	name string
	memo string
}

func (s *Snapshot) heldWorkspaceClaims() []heldWorkspace {
	var out []heldWorkspace
	for _, c := range s.Claims {
		if c.Agent != s.Agent || !c.Active {
			continue
		}
		for _, name := range c.WorkspaceNames() {
			out = append(out, heldWorkspace{name: name, memo: c.Memo})
		}
	}
	return out
}

// HasWorkspace reports whether name exists in the workspace list.
func (s *Snapshot) HasWorkspace(name string) bool {
	for _, w := range s.Workspaces {
		if w.Name == name {
			return true
		}
	}
	return false
}

// DefaultWorkspace returns the integration target workspace.
func (s *Snapshot) DefaultWorkspace() (wsm.Workspace, bool) {
	for _, w := range s.Workspaces {
		if w.IsDefault {
			return w, true
		}
	}
	return wsm.Workspace{}, false
}

// ConflictCheck re-fetches all agents' claims and reports which other
// agent, if any, already holds beadID. Used before claiming, to avoid
// double-dispatch. The empty string means nobody else holds it.
func (c *Collector) ConflictCheck(ctx context.Context, beadID string) (string, error) {
	all, err := c.claims.List(ctx, false)
	if err != nil {
		return "", err
	}
	for _, claim := range all {
		if claim.Agent == c.agent || !claim.Active {
			continue
		}
		for _, id := range claim.BeadIDs() {
			if id == beadID {
				return claim.Agent, nil
			}
		}
	}
	return "", nil
}

// BeadDetail fetches one bead; the adapter validates the id first.
func (c *Collector) BeadDetail(ctx context.Context, id string) (*tracker.Bead, error) {
	return c.beads.Show(ctx, id)
}

// ReviewsInWorkspace fetches the reviews open against ws; the adapter
// validates the name first.
func (c *Collector) ReviewsInWorkspace(ctx context.Context, ws string) ([]review.Summary, error) {
	return c.reviews.ListInWorkspace(ctx, ws)
}

// ReviewDetail fetches one review; the adapter validates the id first.
func (c *Collector) ReviewDetail(ctx context.Context, id string) (*review.Review, error) {
	return c.reviews.Detail(ctx, id)
}
