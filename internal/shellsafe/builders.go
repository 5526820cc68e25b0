package shellsafe

import (
	"fmt"
	"strings"
)

// Tools names the external binaries commands are built for.
type Tools struct {
	Claims    string // lease/claim store, default "stakes"
	Workspace string // workspace manager, default "maw"
	Review    string // review service, default "crit"
	Tracker   string // issue tracker, default "bd"
	Announce  string // broadcast channel, default "yell"
}

// DefaultTools returns the conventional tool names.
func DefaultTools() Tools {
	return Tools{
		Claims:    "stakes",
		Workspace: "maw",
		Review:    "crit",
		Tracker:   "bd",
		Announce:  "yell",
	}
}

// Builder formats ready-to-run commands for the coordination tools. It is
// pure string assembly over validated or escaped arguments; it performs no
// I/O. Agent and project are interpolated raw only when they pass
// ValidIdentifier.
type Builder struct {
	tools   Tools
	agent   string
	project string
}

// NewBuilder returns a Builder for the given tool set and caller identity.
func NewBuilder(tools Tools, agent, project string) *Builder {
	return &Builder{tools: tools, agent: agent, project: project}
}

func (b *Builder) agentArg() string   { return ident(b.agent, ValidIdentifier) }
func (b *Builder) projectArg() string { return ident(b.project, ValidIdentifier) }

// wsArg admits real workspace names and the executor's placeholder.
func wsArg(name string) string {
	if name == WorkspaceToken {
		return name
	}
	return ident(name, ValidWorkspaceName)
}

// uriArg admits claim URIs, including ones carrying the workspace
// placeholder in their name segment.
func uriArg(uri string) string {
	probe := strings.ReplaceAll(uri, WorkspaceToken, "ws")
	if ValidIdentifier(probe) {
		return uri
	}
	return Escape(uri)
}

// ClaimURI assembles a claim URI for the given scheme and resource id.
func (b *Builder) ClaimURI(scheme, id string) string {
	return fmt.Sprintf("%s://%s/%s", scheme, b.projectArg(), ident(id, ValidIdentifier))
}

// BeadClaimURI assembles the claim URI for bead id.
func (b *Builder) BeadClaimURI(id string) string {
	return fmt.Sprintf("bead://%s/%s", b.projectArg(), ident(id, ValidBeadID))
}

// WorkspaceClaimURI assembles the claim URI for workspace name, which may
// be the executor's placeholder.
func (b *Builder) WorkspaceClaimURI(name string) string {
	return fmt.Sprintf("workspace://%s/%s", b.projectArg(), wsArg(name))
}

// StakeClaim builds the command staking a claim on uri. ttlSecs <= 0 omits
// the TTL flag; memo == "" omits the memo flag.
func (b *Builder) StakeClaim(uri string, ttlSecs int, memo string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s stake --agent %s %s", b.tools.Claims, b.agentArg(), uriArg(uri))
	if ttlSecs > 0 {
		fmt.Fprintf(&sb, " --ttl %d", ttlSecs)
	}
	if memo != "" {
		fmt.Fprintf(&sb, " -m %s", Escape(memo))
	}
	return sb.String()
}

// ReleaseClaim builds the command releasing the claim on uri.
func (b *Builder) ReleaseClaim(uri string) string {
	return fmt.Sprintf("%s release --agent %s %s", b.tools.Claims, b.agentArg(), uriArg(uri))
}

// ReleaseAll builds the command releasing every claim held by the agent.
func (b *Builder) ReleaseAll() string {
	return fmt.Sprintf("%s release --agent %s --all", b.tools.Claims, b.agentArg())
}

// RefreshClaims builds the command extending the TTLs of every claim the
// agent holds.
func (b *Builder) RefreshClaims() string {
	return fmt.Sprintf("%s refresh", b.tools.Claims)
}

// Announce builds the command broadcasting message on the shared channel.
// The message is free text and always escaped.
func (b *Builder) Announce(message string) string {
	return fmt.Sprintf("%s send %s", b.tools.Announce, Escape(message))
}

// CreateReview builds the command opening a review for workspace ws with
// the given reviewers requested.
func (b *Builder) CreateReview(ws string, reviewers []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s reviews create --workspace %s", b.tools.Review, wsArg(ws))
	for _, r := range reviewers {
		fmt.Fprintf(&sb, " --reviewer %s", ident(r, ValidIdentifier))
	}
	return sb.String()
}

// RequestReview builds the command requesting reviewer's vote on reviewID.
func (b *Builder) RequestReview(reviewID, reviewer string) string {
	return fmt.Sprintf("%s reviews request %s --reviewer %s",
		b.tools.Review, ident(reviewID, ValidReviewID), ident(reviewer, ValidIdentifier))
}

// ShowReview builds the command fetching reviewID as JSON.
func (b *Builder) ShowReview(reviewID string) string {
	return fmt.Sprintf("%s review %s --format json", b.tools.Review, ident(reviewID, ValidReviewID))
}

// MergeWorkspace builds the command merging ws into the default workspace.
// destroy removes the workspace after a clean merge; check runs the
// pre-flight conflict probe instead of merging.
func (b *Builder) MergeWorkspace(ws string, destroy, check bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s ws merge %s", b.tools.Workspace, wsArg(ws))
	if destroy {
		sb.WriteString(" --destroy")
	}
	if check {
		sb.WriteString(" --check")
	}
	return sb.String()
}

// CreateWorkspace builds the command creating a fresh randomly-named
// workspace. The executor learns the resulting name from this command's
// output (see the $WS substitution in internal/steps).
func (b *Builder) CreateWorkspace() string {
	return fmt.Sprintf("%s ws create --random", b.tools.Workspace)
}

// CloseBead builds the issue-tracker command closing bead id.
func (b *Builder) CloseBead(id string) string {
	return fmt.Sprintf("%s close %s", b.tools.Tracker, ident(id, ValidBeadID))
}

// ShowBead builds the issue-tracker command fetching bead id as JSON.
func (b *Builder) ShowBead(id string) string {
	return fmt.Sprintf("%s show %s --json", b.tools.Tracker, ident(id, ValidBeadID))
}
