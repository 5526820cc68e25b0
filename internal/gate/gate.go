// Package gate computes the approve/block/pending decision from review
// votes. Evaluation is pure: identical inputs always yield identical
// decisions, with no clock or randomness involved.
package gate

import (
	"sort"

	"github.com/usher-cli/usher/internal/review"
)

// Status is the gate's verdict.
type Status string

const (
	Approved    Status = "approved"
	Blocked     Status = "blocked"
	NeedsReview Status = "needs_review"
)

// Decision is the derived review-gate outcome. It is computed per
// invocation and never stored.
type Decision struct {
	Status              Status
	MissingApprovals    []string
	ApprovedBy          []string
	BlockedBy           []string
	NewerBlockAfterLGTM []string
	TotalRequired       int
}

// Evaluate decides the gate for rev against the required reviewer list.
//
// Only the latest vote per reviewer counts; VotedAt is fixed-width RFC3339
// so the lexicographically greater timestamp is the newer vote. Reviewers
// outside the required list are ignored entirely: a non-required blocker
// cannot gate the review.
//
// An empty required list with zero votes yields NeedsReview, not Approved.
// That reading of "nothing required" is debatable but deliberate; see
// TestEmptyRequiredNoVotesNeedsReview before changing it.
func Evaluate(rev review.Review, required []string) Decision {
	latest := latestVotes(rev.Votes)

	d := Decision{
		Status:        NeedsReview,
		TotalRequired: len(required),
	}

	if len(required) == 0 {
		if len(rev.Votes) == 0 {
			return d
		}
		// Nothing required and votes exist: nothing can be missing, nothing
		// can block.
		d.Status = Approved
		return d
	}

	for _, reviewer := range required {
		v, ok := latest[reviewer]
		if !ok {
			d.MissingApprovals = append(d.MissingApprovals, reviewer)
			continue
		}
		switch v.Vote {
		case "lgtm":
			d.ApprovedBy = append(d.ApprovedBy, reviewer)
		case "block":
			d.BlockedBy = append(d.BlockedBy, reviewer)
			if blockedAfterLGTM(rev.Votes, reviewer, v.VotedAt) {
				d.NewerBlockAfterLGTM = append(d.NewerBlockAfterLGTM, reviewer)
			}
		default:
			// Unknown vote values neither approve nor block.
			d.MissingApprovals = append(d.MissingApprovals, reviewer)
		}
	}

	switch {
	case len(d.MissingApprovals) > 0:
		d.Status = NeedsReview
	case len(d.BlockedBy) > 0:
		d.Status = Blocked
	case len(d.ApprovedBy) == len(required):
		d.Status = Approved
	default:
		d.Status = NeedsReview
	}
	return d
}

// latestVotes keeps only the newest vote per reviewer.
func latestVotes(votes []review.Vote) map[string]review.Vote {
	latest := make(map[string]review.Vote, len(votes))
	for _, v := range votes {
		cur, ok := latest[v.Reviewer]
		if !ok || v.VotedAt > cur.VotedAt {
			latest[v.Reviewer] = v
		}
	}
	return latest
}

// blockedAfterLGTM reports whether reviewer had an lgtm older than the
// block at blockedAt. Surfaced as a diagnostic: a reversed approval is
// worth calling out to the human.
func blockedAfterLGTM(votes []review.Vote, reviewer, blockedAt string) bool {
	for _, v := range votes {
		if v.Reviewer == reviewer && v.Vote == "lgtm" && v.VotedAt < blockedAt {
			return true
		}
	}
	return false
}

// Reviewers returns the distinct reviewers who have voted, sorted.
func Reviewers(votes []review.Vote) []string {
	seen := make(map[string]bool)
	for _, v := range votes {
		seen[v.Reviewer] = true
	}
	out := make([]string, 0, len(seen))
	for r := range seen {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
