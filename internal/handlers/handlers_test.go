package handlers

import (
	"context"
	"fmt"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usher-cli/usher/internal/claims"
	"github.com/usher-cli/usher/internal/collector"
	"github.com/usher-cli/usher/internal/config"
	"github.com/usher-cli/usher/internal/errs"
	"github.com/usher-cli/usher/internal/guidance"
	"github.com/usher-cli/usher/internal/mutex"
	"github.com/usher-cli/usher/internal/review"
	"github.com/usher-cli/usher/internal/shellsafe"
	"github.com/usher-cli/usher/internal/steps"
	"github.com/usher-cli/usher/internal/tracker"
	"github.com/usher-cli/usher/internal/wsm"
)

type fakeClaims struct {
	mine []claims.Claim
	all  []claims.Claim
	err  error
}

func (f *fakeClaims) List(_ context.Context, mine bool) ([]claims.Claim, error) {
	if f.err != nil {
		return nil, f.err
	}
	if mine {
		return f.mine, nil
	}
	return f.all, nil
}

type fakeWorkspaces struct {
	list []wsm.Workspace
}

func (f *fakeWorkspaces) List(_ context.Context) ([]wsm.Workspace, []wsm.Advice, error) {
	return f.list, nil, nil
}

type fakeReviews struct {
	summaries map[string][]review.Summary
	details   map[string]*review.Review
}

func (f *fakeReviews) ListInWorkspace(_ context.Context, ws string) ([]review.Summary, error) {
	return f.summaries[ws], nil
}

func (f *fakeReviews) Detail(_ context.Context, id string) (*review.Review, error) {
	r, ok := f.details[id]
	if !ok {
		return nil, &errs.OpError{Tool: "crit", Detail: "no such review " + id}
	}
	return r, nil
}

type fakeBeads struct {
	beads map[string]*tracker.Bead
}

func (f *fakeBeads) Show(_ context.Context, id string) (*tracker.Bead, error) {
	b, ok := f.beads[id]
	if !ok {
		return nil, &errs.OpError{Tool: "bd", Detail: "no such bead " + id}
	}
	return b, nil
}

// fakeExec records every step list it is handed and succeeds.
type fakeExec struct {
	ran [][]string
}

func (f *fakeExec) Execute(_ context.Context, list []string) steps.Report {
	f.ran = append(f.ran, append([]string(nil), list...))
	rep := steps.Report{Remaining: []string{}}
	for _, s := range list {
		rep.Results = append(rep.Results, steps.StepResult{Command: s, Success: true})
	}
	return rep
}

type fakeLocker struct {
	err      error
	acquired int
}

func (f *fakeLocker) Acquire(_ context.Context, _ time.Duration, _ string) (*mutex.Lease, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.acquired++
	// A nil lease releases as a no-op, which is all these tests need.
	return nil, nil
}

func (f *fakeLocker) URI() string { return "workspace://p/default" }

type fakeMergeCheck struct {
	clean  bool
	detail string
	err    error
}

func (f *fakeMergeCheck) CheckMerge(_ context.Context, _ string) (bool, string, error) {
	return f.clean, f.detail, f.err
}

type fakeAnnouncer struct {
	sent []string
	err  error
}

func (f *fakeAnnouncer) Send(_ context.Context, msg string) error {
	f.sent = append(f.sent, msg)
	return f.err
}

type harness struct {
	handler *Handler
	exec    *fakeExec
	locker  *fakeLocker
	ann     *fakeAnnouncer
	merges  *fakeMergeCheck
}

func newHarness(fc *fakeClaims, fw *fakeWorkspaces, fr *fakeReviews, fb *fakeBeads, opts Options) *harness {
	cfg := config.Default("a", "p")
	cfg.RequiredReviewers = []string{"p-security"}
	col := collector.New(fc, fw, fr, fb, "a", "p")
	build := shellsafe.NewBuilder(cfg.ShellTools(), "a", "p")
	h := &harness{
		exec:   &fakeExec{},
		locker: &fakeLocker{},
		ann:    &fakeAnnouncer{},
		merges: &fakeMergeCheck{clean: true},
	}
	h.handler = New(cfg, col, build, h.exec, h.locker, h.merges, h.ann, opts)
	return h
}

func claimOn(agent, pattern, memo string) claims.Claim {
	return claims.Claim{Agent: agent, Patterns: []string{pattern}, Active: true, Memo: memo}
}

func workingState() (*fakeClaims, *fakeWorkspaces) {
	fc := &fakeClaims{
		mine: []claims.Claim{
			claimOn("a", "bead://p/bd-1", ""),
			claimOn("a", "workspace://p/ws1", "bd-1"),
		},
	}
	fw := &fakeWorkspaces{list: []wsm.Workspace{
		{Name: "default", IsDefault: true},
		{Name: "ws1"},
	}}
	return fc, fw
}

func TestStartEmitsClaimAndWorkspaceSteps(t *testing.T) {
	fc := &fakeClaims{}
	fb := &fakeBeads{beads: map[string]*tracker.Bead{
		"bd-1": {ID: "bd-1", Title: "fix the frobnicator"},
	}}
	h := newHarness(fc, &fakeWorkspaces{}, &fakeReviews{}, fb, Options{})

	g, err := h.handler.Start(context.Background(), "bd-1")
	require.NoError(t, err)

	assert.Equal(t, guidance.StatusReady, g.Status)
	assert.Equal(t, "bd-1", g.Bead)
	assert.Equal(t, []string{
		"stakes stake --agent a bead://p/bd-1",
		"maw ws create --random",
		"stakes stake --agent a workspace://p/$WS -m 'bd-1'",
	}, g.Steps)
	assert.Contains(t, g.Advice, "fix the frobnicator")
	assert.False(t, g.Executed)
}

func TestStartInvalidBeadRejectedBeforeAnySideEffect(t *testing.T) {
	fc := &fakeClaims{err: fmt.Errorf("must not be called")}
	h := newHarness(fc, &fakeWorkspaces{}, &fakeReviews{}, &fakeBeads{}, Options{})

	g, err := h.handler.Start(context.Background(), "bd-1; rm -rf /")
	require.NoError(t, err)
	assert.Equal(t, guidance.StatusInputInvalid, g.Status)
	assert.Empty(t, g.Steps)
	assert.Empty(t, g.Bead)
}

func TestStartBlockedWhenAnotherAgentHoldsBead(t *testing.T) {
	fc := &fakeClaims{all: []claims.Claim{claimOn("rival", "bead://p/bd-1", "")}}
	h := newHarness(fc, &fakeWorkspaces{}, &fakeReviews{}, &fakeBeads{}, Options{})

	g, err := h.handler.Start(context.Background(), "bd-1")
	require.NoError(t, err)
	assert.Equal(t, guidance.StatusBlocked, g.Status)
	assert.Contains(t, g.Diagnostics[0], "rival")
	assert.Empty(t, g.Steps)
}

func TestReviewNoReviewYetEmitsCreateAndPing(t *testing.T) {
	fc, fw := workingState()
	h := newHarness(fc, fw, &fakeReviews{}, &fakeBeads{}, Options{})

	g, err := h.handler.Review(context.Background(), "bd-1")
	require.NoError(t, err)

	assert.Equal(t, guidance.StatusNeedsReview, g.Status)
	assert.Equal(t, "ws1", g.Workspace)
	require.Len(t, g.Steps, 2)
	assert.Equal(t, "crit reviews create --workspace ws1 --reviewer p-security", g.Steps[0])
	assert.Contains(t, g.Steps[1], "@p-security")
}

func TestReviewApproved(t *testing.T) {
	fc, fw := workingState()
	fr := &fakeReviews{
		summaries: map[string][]review.Summary{
			"ws1": {{ReviewID: "cr-7", Status: "open"}},
		},
		details: map[string]*review.Review{
			"cr-7": {ReviewID: "cr-7", Status: "open", Votes: []review.Vote{
				{Reviewer: "p-security", Vote: "lgtm", VotedAt: "2026-08-28T10:00:00Z"},
			}},
		},
	}
	h := newHarness(fc, fw, fr, &fakeBeads{}, Options{})

	g, err := h.handler.Review(context.Background(), "bd-1")
	require.NoError(t, err)
	assert.Equal(t, guidance.StatusApproved, g.Status)
	assert.Equal(t, "cr-7", g.Review)
	assert.Empty(t, g.Steps)
}

func TestReviewNothingHeld(t *testing.T) {
	h := newHarness(&fakeClaims{}, &fakeWorkspaces{}, &fakeReviews{}, &fakeBeads{}, Options{})

	g, err := h.handler.Review(context.Background(), "bd-1")
	require.NoError(t, err)
	assert.Equal(t, guidance.StatusNothingHeld, g.Status)
	assert.Contains(t, g.Advice, "usher start bd-1")
}

func TestReviewCollectFailureBecomesBlocked(t *testing.T) {
	fc := &fakeClaims{err: &errs.OpError{Tool: "stakes", Detail: "list exited 1"}}
	h := newHarness(fc, &fakeWorkspaces{}, &fakeReviews{}, &fakeBeads{}, Options{})

	g, err := h.handler.Review(context.Background(), "bd-1")
	require.NoError(t, err)
	assert.Equal(t, guidance.StatusBlocked, g.Status)
	require.NotEmpty(t, g.Diagnostics)
	assert.Contains(t, g.Diagnostics[0], "could not collect")
}

func TestReviewMissingToolEscalates(t *testing.T) {
	fc := &fakeClaims{err: &errs.OpError{Tool: "stakes", Detail: "not found on PATH", Err: exec.ErrNotFound}}
	h := newHarness(fc, &fakeWorkspaces{}, &fakeReviews{}, &fakeBeads{}, Options{})

	_, err := h.handler.Review(context.Background(), "bd-1")
	require.Error(t, err)
}

func TestFinishBlockedWithoutForce(t *testing.T) {
	fc, fw := workingState()
	fr := &fakeReviews{
		summaries: map[string][]review.Summary{
			"ws1": {{ReviewID: "cr-7", Status: "open"}},
		},
		details: map[string]*review.Review{
			"cr-7": {ReviewID: "cr-7", Status: "open", Votes: []review.Vote{
				{Reviewer: "p-security", Vote: "block", VotedAt: "2026-08-28T10:00:00Z"},
			}},
		},
	}
	h := newHarness(fc, fw, fr, &fakeBeads{}, Options{})

	g, err := h.handler.Finish(context.Background(), "bd-1", false)
	require.NoError(t, err)
	assert.Equal(t, guidance.StatusBlocked, g.Status)
	assert.Contains(t, g.Diagnostics[0], "p-security")
}

func TestFinishForceBypassWarns(t *testing.T) {
	fc, fw := workingState()
	fr := &fakeReviews{
		summaries: map[string][]review.Summary{
			"ws1": {{ReviewID: "cr-7", Status: "open"}},
		},
		details: map[string]*review.Review{
			"cr-7": {ReviewID: "cr-7", Status: "open", Votes: []review.Vote{
				{Reviewer: "p-security", Vote: "block", VotedAt: "2026-08-28T10:00:00Z"},
			}},
		},
	}
	h := newHarness(fc, fw, fr, &fakeBeads{}, Options{})

	g, err := h.handler.Finish(context.Background(), "bd-1", true)
	require.NoError(t, err)

	assert.Equal(t, guidance.StatusReady, g.Status)
	require.NotEmpty(t, g.Diagnostics)
	assert.Contains(t, g.Diagnostics[0], "WARNING")
	assert.Contains(t, g.Diagnostics[0], "force")
	assert.Equal(t, []string{
		"stakes stake --agent a workspace://p/default --ttl 120 -m 'merge ws1 for bd-1'",
		"maw ws merge ws1 --destroy",
		"yell send 'merge completed: ws1'",
		"bd close bd-1",
		"stakes release --agent a bead://p/bd-1",
		"stakes release --agent a workspace://p/ws1",
		"stakes release --agent a workspace://p/default",
	}, g.Steps)
}

func TestFinishApprovedExecutesUnderLease(t *testing.T) {
	fc, fw := workingState()
	fr := &fakeReviews{
		summaries: map[string][]review.Summary{
			"ws1": {{ReviewID: "cr-7", Status: "open"}},
		},
		details: map[string]*review.Review{
			"cr-7": {ReviewID: "cr-7", Status: "open", Votes: []review.Vote{
				{Reviewer: "p-security", Vote: "lgtm", VotedAt: "2026-08-28T10:00:00Z"},
			}},
		},
	}
	h := newHarness(fc, fw, fr, &fakeBeads{}, Options{Execute: true})

	g, err := h.handler.Finish(context.Background(), "bd-1", false)
	require.NoError(t, err)

	assert.True(t, g.Executed)
	require.NotNil(t, g.Report)
	assert.Equal(t, 1, h.locker.acquired)
	// The lease stake and release are handled in process, not as steps.
	require.Len(t, h.exec.ran, 1)
	for _, step := range h.exec.ran[0] {
		assert.NotContains(t, step, "workspace://p/default")
	}
}

func TestFinishLeaseTimeoutBecomesBlocked(t *testing.T) {
	fc, fw := workingState()
	fr := &fakeReviews{
		summaries: map[string][]review.Summary{
			"ws1": {{ReviewID: "cr-7", Status: "open"}},
		},
		details: map[string]*review.Review{
			"cr-7": {ReviewID: "cr-7", Status: "open", Votes: []review.Vote{
				{Reviewer: "p-security", Vote: "lgtm", VotedAt: "2026-08-28T10:00:00Z"},
			}},
		},
	}
	h := newHarness(fc, fw, fr, &fakeBeads{}, Options{Execute: true})
	h.locker.err = &errs.TimeoutError{Tool: "merge-mutex", Budget: time.Minute}

	g, err := h.handler.Finish(context.Background(), "bd-1", false)
	require.NoError(t, err)
	assert.Equal(t, guidance.StatusBlocked, g.Status)
	assert.False(t, g.Executed)
	assert.Empty(t, h.exec.ran)
}

func TestMergePreflightConflictBlocksWithRecovery(t *testing.T) {
	fc, fw := workingState()
	h := newHarness(fc, fw, &fakeReviews{}, &fakeBeads{}, Options{})
	h.merges.clean = false
	h.merges.detail = "2 conflicting files"

	g, err := h.handler.Merge(context.Background(), "ws1")
	require.NoError(t, err)

	assert.Equal(t, guidance.StatusBlocked, g.Status)
	assert.Empty(t, g.Steps)
	assert.Contains(t, g.Diagnostics, "2 conflicting files")
	assert.Contains(t, g.Diagnostics, "inspect the conflicts: maw ws merge ws1 --check")
}

func TestMergeCleanEmitsLeaseProtocol(t *testing.T) {
	fc, fw := workingState()
	h := newHarness(fc, fw, &fakeReviews{}, &fakeBeads{}, Options{})

	g, err := h.handler.Merge(context.Background(), "ws1")
	require.NoError(t, err)

	assert.Equal(t, guidance.StatusReady, g.Status)
	assert.Equal(t, []string{
		"stakes stake --agent a workspace://p/default --ttl 120 -m 'merge ws1'",
		"maw ws merge ws1 --destroy",
		"yell send 'merge completed: ws1'",
		"stakes release --agent a workspace://p/default",
	}, g.Steps)
}

func TestMergeRejectsDefaultTarget(t *testing.T) {
	h := newHarness(&fakeClaims{}, &fakeWorkspaces{}, &fakeReviews{}, &fakeBeads{}, Options{})

	g, err := h.handler.Merge(context.Background(), "default")
	require.NoError(t, err)
	assert.Equal(t, guidance.StatusInputInvalid, g.Status)
}

func TestResumeAssessesEveryHeldBead(t *testing.T) {
	fc := &fakeClaims{
		mine: []claims.Claim{
			claimOn("a", "bead://p/bd-1", ""),
			claimOn("a", "workspace://p/ws1", "bd-1"),
			claimOn("a", "bead://p/bd-2", ""),
			claimOn("a", "workspace://p/ws2", "bd-2"),
		},
	}
	fw := &fakeWorkspaces{list: []wsm.Workspace{
		{Name: "default", IsDefault: true},
		{Name: "ws1"},
		{Name: "ws2"},
	}}
	fr := &fakeReviews{
		summaries: map[string][]review.Summary{
			"ws1": {{ReviewID: "cr-7", Status: "open"}},
		},
		details: map[string]*review.Review{
			"cr-7": {ReviewID: "cr-7", Status: "open", Votes: []review.Vote{
				{Reviewer: "p-security", Vote: "lgtm", VotedAt: "2026-08-28T10:00:00Z"},
			}},
		},
	}
	h := newHarness(fc, fw, fr, &fakeBeads{}, Options{})

	set, err := h.handler.Resume(context.Background())
	require.NoError(t, err)

	require.Len(t, set.PerBead, 2)
	assert.Equal(t, guidance.StatusApproved, set.PerBead[0].Status)
	assert.Equal(t, guidance.StatusNeedsReview, set.PerBead[1].Status)
	assert.Contains(t, set.Summary.Diagnostics, "bd-1: approved")
	assert.Contains(t, set.Summary.Diagnostics, "bd-2: needs_review")
}

func TestResumeNearExpiryClaimIsStale(t *testing.T) {
	ttl := 20
	fc := &fakeClaims{
		mine: []claims.Claim{
			{Agent: "a", Patterns: []string{"bead://p/bd-1"}, Active: true, ExpiresInSecs: &ttl},
			claimOn("a", "workspace://p/ws1", "bd-1"),
		},
	}
	fw := &fakeWorkspaces{list: []wsm.Workspace{{Name: "default", IsDefault: true}, {Name: "ws1"}}}
	h := newHarness(fc, fw, &fakeReviews{}, &fakeBeads{}, Options{})

	set, err := h.handler.Resume(context.Background())
	require.NoError(t, err)
	require.Len(t, set.PerBead, 1)
	assert.Equal(t, guidance.StatusStale, set.PerBead[0].Status)
	assert.Equal(t, []string{"stakes refresh"}, set.PerBead[0].Steps)
}

func TestResumeNothingHeld(t *testing.T) {
	h := newHarness(&fakeClaims{}, &fakeWorkspaces{}, &fakeReviews{}, &fakeBeads{}, Options{})

	set, err := h.handler.Resume(context.Background())
	require.NoError(t, err)
	assert.Empty(t, set.PerBead)
	assert.Equal(t, guidance.StatusNothingHeld, set.Summary.Status)
}

func TestCleanupSignOffIsBestEffort(t *testing.T) {
	fc, fw := workingState()
	h := newHarness(fc, fw, &fakeReviews{}, &fakeBeads{}, Options{Execute: true})
	h.ann.err = fmt.Errorf("channel down")

	g, err := h.handler.Cleanup(context.Background())
	require.NoError(t, err)

	assert.Equal(t, guidance.StatusDone, g.Status)
	assert.True(t, g.Executed)
	require.Len(t, h.ann.sent, 1)
	assert.Contains(t, h.ann.sent[0], "a signing off")
}

func TestCleanupStepsReleaseAndAnnounce(t *testing.T) {
	fc, fw := workingState()
	h := newHarness(fc, fw, &fakeReviews{}, &fakeBeads{}, Options{})

	g, err := h.handler.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"stakes release --agent a --all",
		"yell send 'a signing off'",
	}, g.Steps)
	assert.False(t, g.Executed)
}
