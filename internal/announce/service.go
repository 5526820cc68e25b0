// Package announce talks to the shared broadcast channel CLI. Broadcasts
// carry reviewer pings, sign-off messages, and the merge-completed notices
// the merge mutex watches for.
package announce

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/usher-cli/usher/internal/errs"
	"github.com/usher-cli/usher/internal/spawn"
)

// MergeCompletedMarker is the substring agents include when announcing a
// finished merge of the default workspace. The merge mutex uses it to cut
// its backoff short.
const MergeCompletedMarker = "merge completed"

// Entry is one broadcast on the shared channel.
type Entry struct {
	Author  string `json:"author"`
	Message string `json:"message"`
	SentAt  string `json:"sent_at"` // RFC3339
}

type logReply struct {
	Entries []Entry `json:"entries"`
}

// Service shells out to the announcement channel.
type Service struct {
	runner  spawn.Runner
	tool    string
	timeout time.Duration
}

// NewService returns an announcement adapter for the given tool binary.
func NewService(runner spawn.Runner, tool string, timeout time.Duration) *Service {
	return &Service{runner: runner, tool: tool, timeout: timeout}
}

// Send broadcasts message on the shared channel.
func (s *Service) Send(ctx context.Context, message string) error {
	res, err := s.runner.Run(ctx, s.timeout, s.tool, "send", message)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return &errs.OpError{Tool: s.tool, Detail: fmt.Sprintf("send exited %d: %s", res.ExitCode, res.Stderr)}
	}
	return nil
}

// Log fetches recent broadcasts, oldest first.
func (s *Service) Log(ctx context.Context) ([]Entry, error) {
	res, err := s.runner.Run(ctx, s.timeout, s.tool, "log", "--format", "json")
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, &errs.OpError{Tool: s.tool, Detail: fmt.Sprintf("log exited %d: %s", res.ExitCode, res.Stderr)}
	}

	var reply logReply
	if err := json.Unmarshal([]byte(res.Stdout), &reply); err != nil {
		return nil, &errs.OpError{Tool: s.tool, Detail: "unparseable log output", Err: err}
	}
	if reply.Entries == nil {
		reply.Entries = []Entry{}
	}
	return reply.Entries, nil
}

// MergeCompletedSince reports whether a merge-completed broadcast newer
// than since appeared on the channel. Unparseable timestamps on individual
// entries are skipped rather than failing the whole poll.
func (s *Service) MergeCompletedSince(ctx context.Context, since time.Time) (bool, error) {
	entries, err := s.Log(ctx)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if !strings.Contains(strings.ToLower(e.Message), MergeCompletedMarker) {
			continue
		}
		at, err := time.Parse(time.RFC3339, e.SentAt)
		if err != nil {
			continue
		}
		if at.After(since) {
			return true, nil
		}
	}
	return false, nil
}
