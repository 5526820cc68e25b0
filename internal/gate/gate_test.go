package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/usher-cli/usher/internal/review"
)

func rev(votes ...review.Vote) review.Review {
	return review.Review{ReviewID: "cr-1", Status: "open", Votes: votes}
}

func vote(reviewer, v, at string) review.Vote {
	return review.Vote{Reviewer: reviewer, Vote: v, VotedAt: at}
}

const (
	t1 = "2026-08-01T10:00:00Z"
	t2 = "2026-08-01T11:00:00Z"
)

func TestMissingRequiredReviewer(t *testing.T) {
	d := Evaluate(rev(vote("sec", "lgtm", t1)), []string{"sec", "perf"})
	assert.Equal(t, NeedsReview, d.Status)
	assert.Equal(t, []string{"perf"}, d.MissingApprovals)
	assert.Equal(t, []string{"sec"}, d.ApprovedBy)
	assert.Equal(t, 2, d.TotalRequired)
}

func TestBlockWins(t *testing.T) {
	d := Evaluate(rev(vote("sec", "lgtm", t1), vote("perf", "block", t2)), []string{"sec", "perf"})
	assert.Equal(t, Blocked, d.Status)
	assert.Equal(t, []string{"perf"}, d.BlockedBy)
	assert.Empty(t, d.NewerBlockAfterLGTM)
}

func TestLatestVoteWins(t *testing.T) {
	d := Evaluate(rev(vote("sec", "block", t1), vote("sec", "lgtm", t2)), []string{"sec"})
	assert.Equal(t, Approved, d.Status)
	assert.Equal(t, []string{"sec"}, d.ApprovedBy)
	assert.Empty(t, d.BlockedBy)
}

func TestNewerBlockAfterLGTM(t *testing.T) {
	d := Evaluate(rev(vote("sec", "lgtm", t1), vote("sec", "block", t2)), []string{"sec"})
	assert.Equal(t, Blocked, d.Status)
	assert.Equal(t, []string{"sec"}, d.BlockedBy)
	assert.Equal(t, []string{"sec"}, d.NewerBlockAfterLGTM)
}

func TestNonRequiredBlockerIgnored(t *testing.T) {
	d := Evaluate(rev(vote("sec", "lgtm", t1), vote("random", "block", t2)), []string{"sec"})
	assert.Equal(t, Approved, d.Status)
	assert.Empty(t, d.BlockedBy)
}

// TestEmptyRequiredNoVotesNeedsReview pins the current reading of "nothing
// required, nothing voted": the gate stays pending rather than trivially
// approving. Flipping this to Approved is a behavior change that must go
// through review, not a drive-by fix.
func TestEmptyRequiredNoVotesNeedsReview(t *testing.T) {
	d := Evaluate(rev(), nil)
	assert.Equal(t, NeedsReview, d.Status)
	assert.Zero(t, d.TotalRequired)
}

func TestEmptyRequiredWithVotesApproves(t *testing.T) {
	d := Evaluate(rev(vote("anyone", "lgtm", t1)), nil)
	assert.Equal(t, Approved, d.Status)
}

func TestUnknownVoteValueCountsAsMissing(t *testing.T) {
	d := Evaluate(rev(vote("sec", "shrug", t1)), []string{"sec"})
	assert.Equal(t, NeedsReview, d.Status)
	assert.Equal(t, []string{"sec"}, d.MissingApprovals)
}

// TestEvaluateIdempotent pins that the gate has no hidden clock or random
// dependency.
func TestEvaluateIdempotent(t *testing.T) {
	r := rev(vote("sec", "lgtm", t1), vote("perf", "block", t2))
	required := []string{"sec", "perf"}
	first := Evaluate(r, required)
	second := Evaluate(r, required)
	assert.Equal(t, first, second)
}

func TestReviewers(t *testing.T) {
	got := Reviewers([]review.Vote{vote("b", "lgtm", t1), vote("a", "block", t2), vote("b", "block", t2)})
	assert.Equal(t, []string{"a", "b"}, got)
}
