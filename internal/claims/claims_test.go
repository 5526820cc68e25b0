package claims

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

func TestParsePattern(t *testing.T) {
	tests := []struct {
		uri  string
		want Pattern
		ok   bool
	}{
		{"bead://p/bd-1", Pattern{Scheme: "bead", Project: "p", ID: "bd-1"}, true},
		{"workspace://p/ws1", Pattern{Scheme: "workspace", Project: "p", ID: "ws1"}, true},
		{"agent://claude-7", Pattern{Scheme: "agent", ID: "claude-7"}, true},
		{"release://p", Pattern{Scheme: "release", Project: "p"}, true},
		{"bead://p", Pattern{}, false},
		{"ftp://p/x", Pattern{}, false},
		{"bead//p/x", Pattern{}, false},
		{"", Pattern{}, false},
	}
	for _, tt := range tests {
		got, ok := ParsePattern(tt.uri)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParsePattern(%q) = %+v, %v; want %+v, %v", tt.uri, got, ok, tt.want, tt.ok)
		}
		if ok {
			if round := got.URI(); round != tt.uri {
				t.Errorf("URI() round trip: %q != %q", round, tt.uri)
			}
		}
	}
}

func TestClaimIDHelpers(t *testing.T) {
	c := Claim{
		Agent:    "claude-7",
		Patterns: []string{"bead://p/bd-1", "workspace://p/ws1", "agent://x"},
		Active:   true,
	}
	assert.Equal(t, []string{"bd-1"}, c.BeadIDs())
	assert.Equal(t, []string{"ws1"}, c.WorkspaceNames())
}

func TestListParsesReply(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runner := mocks.NewMockRunner(ctrl)
	runner.EXPECT().
		Run(gomock.Any(), gomock.Any(), "stakes", "list", "--mine", "--format", "json").
		Return(spawn.Result{Stdout: `{"claims":[{"agent":"claude-7","patterns":["bead://p/bd-1"],"active":true,"memo":"bd-1","expires_in_secs":280}]}`}, nil)

	svc := NewService(runner, "stakes", "claude-7", time.Second)
	got, err := svc.List(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "claude-7", got[0].Agent)
	assert.Equal(t, "bd-1", got[0].Memo)
	require.NotNil(t, got[0].ExpiresInSecs)
	assert.Equal(t, 280, *got[0].ExpiresInSecs)
}

func TestListDefaultsMissingClaims(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runner := mocks.NewMockRunner(ctrl)
	runner.EXPECT().
		Run(gomock.Any(), gomock.Any(), "stakes", "list", "--format", "json").
		Return(spawn.Result{Stdout: `{}`}, nil)

	svc := NewService(runner, "stakes", "claude-7", time.Second)
	got, err := svc.List(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListBadJSONIsOpError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runner := mocks.NewMockRunner(ctrl)
	runner.EXPECT().
		Run(gomock.Any(), gomock.Any(), "stakes", "list", "--format", "json").
		Return(spawn.Result{Stdout: "not json"}, nil)

	svc := NewService(runner, "stakes", "claude-7", time.Second)
	_, err := svc.List(context.Background(), false)
	var opErr *errs.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "stakes", opErr.Tool)
}

func TestStakeContentionIsNotAnError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runner := mocks.NewMockRunner(ctrl)
	runner.EXPECT().
		Run(gomock.Any(), gomock.Any(), "stakes",
			"stake", "--agent", "claude-7", "workspace://p/default", "--ttl", "120", "-m", "merging ws1").
		Return(spawn.Result{ExitCode: 1, Stderr: "held by claude-3"}, nil)

	svc := NewService(runner, "stakes", "claude-7", time.Second)
	acquired, err := svc.Stake(context.Background(), "workspace://p/default", 120, "merging ws1")
	require.NoError(t, err)
	assert.False(t, acquired)
}
