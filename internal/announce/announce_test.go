package announce

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

func TestSendPassesMessageAsOneArg(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runner := mocks.NewMockRunner(ctrl)
	runner.EXPECT().
		Run(gomock.Any(), gomock.Any(), "yell", "send", "@p-security please review workspace ws1").
		Return(spawn.Result{}, nil)

	svc := NewService(runner, "yell", time.Second)
	require.NoError(t, svc.Send(context.Background(), "@p-security please review workspace ws1"))
}

func TestSendFailureIsOpError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runner := mocks.NewMockRunner(ctrl)
	runner.EXPECT().
		Run(gomock.Any(), gomock.Any(), "yell", "send", "hi").
		Return(spawn.Result{ExitCode: 1, Stderr: "channel down"}, nil)

	svc := NewService(runner, "yell", time.Second)
	err := svc.Send(context.Background(), "hi")
	var opErr *errs.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "yell", opErr.Tool)
}

func logResult(stdout string) spawn.Result {
	return spawn.Result{Stdout: stdout}
}

func TestMergeCompletedSince(t *testing.T) {
	since := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		stdout string
		want   bool
	}{
		{
			"newer merge broadcast",
			`{"entries":[{"author":"b","message":"Merge completed: ws1","sent_at":"2026-08-28T10:00:05Z"}]}`,
			true,
		},
		{
			"older broadcast ignored",
			`{"entries":[{"author":"b","message":"merge completed: ws1","sent_at":"2026-08-28T09:59:00Z"}]}`,
			false,
		},
		{
			"unrelated chatter ignored",
			`{"entries":[{"author":"b","message":"lunch?","sent_at":"2026-08-28T10:00:05Z"}]}`,
			false,
		},
		{
			"bad timestamp skipped",
			`{"entries":[{"author":"b","message":"merge completed","sent_at":"yesterday"}]}`,
			false,
		},
		{
			"empty log",
			`{}`,
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			runner := mocks.NewMockRunner(ctrl)
			runner.EXPECT().
				Run(gomock.Any(), gomock.Any(), "yell", "log", "--format", "json").
				Return(logResult(tt.stdout), nil)

			svc := NewService(runner, "yell", time.Second)
			got, err := svc.MergeCompletedSince(context.Background(), since)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
