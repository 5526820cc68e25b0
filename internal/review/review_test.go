package review

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usher-cli/usher/internal/errs"
	"github.com/usher-cli/usher/internal/spawn"
	"github.com/usher-cli/usher/internal/spawn/mocks"
)

func TestListInWorkspace(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	out := `{"reviews":[{"review_id":"cr-9","status":"open"},{"review_id":"cr-4","status":"closed"}]}`
	runner := mocks.NewMockRunner(ctrl)
	runner.EXPECT().
		Run(gomock.Any(), gomock.Any(), "crit", "reviews", "list", "--workspace", "ws1", "--format", "json").
		Return(spawn.Result{Stdout: out}, nil)

	svc := NewService(runner, "crit", time.Second)
	reviews, err := svc.ListInWorkspace(context.Background(), "ws1")
	require.NoError(t, err)
	require.Len(t, reviews, 2)
	assert.Equal(t, "cr-9", reviews[0].ReviewID)
	assert.Equal(t, "open", reviews[0].Status)
}

func TestListInWorkspaceEmptyReply(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runner := mocks.NewMockRunner(ctrl)
	runner.EXPECT().
		Run(gomock.Any(), gomock.Any(), "crit", "reviews", "list", "--workspace", "ws1", "--format", "json").
		Return(spawn.Result{Stdout: `{}`}, nil)

	svc := NewService(runner, "crit", time.Second)
	reviews, err := svc.ListInWorkspace(context.Background(), "ws1")
	require.NoError(t, err)
	assert.NotNil(t, reviews)
	assert.Empty(t, reviews)
}

func TestListInWorkspaceRejectsBadName(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runner := mocks.NewMockRunner(ctrl)

	svc := NewService(runner, "crit", time.Second)
	_, err := svc.ListInWorkspace(context.Background(), "ws1 $(whoami)")
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))
}

func TestDetailDefaultsVotes(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runner := mocks.NewMockRunner(ctrl)
	runner.EXPECT().
		Run(gomock.Any(), gomock.Any(), "crit", "review", "cr-9", "--format", "json").
		Return(spawn.Result{Stdout: `{"review":{"review_id":"cr-9","status":"open"}}`}, nil)

	svc := NewService(runner, "crit", time.Second)
	r, err := svc.Detail(context.Background(), "cr-9")
	require.NoError(t, err)
	assert.NotNil(t, r.Votes)
	assert.Empty(t, r.Votes)
	assert.Zero(t, r.OpenThreadCount)
}

func TestDetailParsesVotesAndThreads(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	out := `{"review":{"review_id":"cr-9","status":"open","votes":[{"reviewer":"p-security","vote":"lgtm","voted_at":"2026-08-28T09:00:00Z"}],"open_thread_count":2},"threads":[{"id":1}]}`
	runner := mocks.NewMockRunner(ctrl)
	runner.EXPECT().
		Run(gomock.Any(), gomock.Any(), "crit", "review", "cr-9", "--format", "json").
		Return(spawn.Result{Stdout: out}, nil)

	svc := NewService(runner, "crit", time.Second)
	r, err := svc.Detail(context.Background(), "cr-9")
	require.NoError(t, err)
	require.Len(t, r.Votes, 1)
	assert.Equal(t, "lgtm", r.Votes[0].Vote)
	assert.Equal(t, 2, r.OpenThreadCount)
}

func TestDetailMissingReviewObject(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runner := mocks.NewMockRunner(ctrl)
	runner.EXPECT().
		Run(gomock.Any(), gomock.Any(), "crit", "review", "cr-9", "--format", "json").
		Return(spawn.Result{Stdout: `{}`}, nil)

	svc := NewService(runner, "crit", time.Second)
	_, err := svc.Detail(context.Background(), "cr-9")
	var opErr *errs.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Contains(t, opErr.Detail, "missing review object")
}

func TestDetailNonZeroExit(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runner := mocks.NewMockRunner(ctrl)
	runner.EXPECT().
		Run(gomock.Any(), gomock.Any(), "crit", "review", "cr-9", "--format", "json").
		Return(spawn.Result{ExitCode: 1, Stderr: "no such review"}, nil)

	svc := NewService(runner, "crit", time.Second)
	_, err := svc.Detail(context.Background(), "cr-9")
	var opErr *errs.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "crit", opErr.Tool)
}
