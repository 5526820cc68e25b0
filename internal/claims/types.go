package claims

import (
	"fmt"
	"strings"
)

// Claim is one lease record as reported by the claims service. Claims are
// never mutated locally, only re-fetched.
type Claim struct {
	Agent    string   `json:"agent"`
	Patterns []string `json:"patterns"`
	Active   bool     `json:"active"`
	// Memo defaults to "" when the upstream service omits it; callers must
	// not infer business meaning from an absent memo (see WorkspaceFor's
	// fallback in internal/collector).
	Memo string `json:"memo,omitempty"`
	// ExpiresInSecs is nil when the claim has no TTL.
	ExpiresInSecs *int `json:"expires_in_secs,omitempty"`
}

// Pattern is a parsed claim URI of shape scheme://project/id.
type Pattern struct {
	Scheme  string
	Project string
	ID      string
}

// knownSchemes are the URI schemes the claims service hands out.
var knownSchemes = map[string]bool{
	"bead":      true,
	"workspace": true,
	"agent":     true,
	"release":   true,
}

// ParsePattern splits a claim URI into its parts. agent:// URIs have no
// project segment; their name lands in ID.
func ParsePattern(uri string) (Pattern, bool) {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok || !knownSchemes[scheme] {
		return Pattern{}, false
	}
	if scheme == "agent" {
		if rest == "" {
			return Pattern{}, false
		}
		return Pattern{Scheme: scheme, ID: rest}, true
	}
	project, id, ok := strings.Cut(rest, "/")
	if project == "" {
		return Pattern{}, false
	}
	if !ok {
		// release://project carries no trailing id.
		if scheme == "release" {
			return Pattern{Scheme: scheme, Project: project}, true
		}
		return Pattern{}, false
	}
	if id == "" && scheme != "release" {
		return Pattern{}, false
	}
	return Pattern{Scheme: scheme, Project: project, ID: id}, true
}

// URI reassembles the pattern into its claim URI form.
func (p Pattern) URI() string {
	switch p.Scheme {
	case "agent":
		return fmt.Sprintf("agent://%s", p.ID)
	case "release":
		if p.ID == "" {
			return fmt.Sprintf("release://%s", p.Project)
		}
	}
	return fmt.Sprintf("%s://%s/%s", p.Scheme, p.Project, p.ID)
}

// IDsForScheme returns the resource ids of c's patterns in the given scheme.
func (c Claim) IDsForScheme(scheme string) []string {
	var ids []string
	for _, raw := range c.Patterns {
		if p, ok := ParsePattern(raw); ok && p.Scheme == scheme && p.ID != "" {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// BeadIDs returns the bead ids this claim covers.
func (c Claim) BeadIDs() []string { return c.IDsForScheme("bead") }

// WorkspaceNames returns the workspace names this claim covers.
func (c Claim) WorkspaceNames() []string { return c.IDsForScheme("workspace") }
