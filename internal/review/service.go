// Package review talks to the external code-review service CLI and defines
// the review data model the gate evaluates.
package review

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/usher-cli/usher/internal/errs"
	"github.com/usher-cli/usher/internal/shellsafe"
	"github.com/usher-cli/usher/internal/spawn"
)

// Vote is one reviewer vote. A reviewer may vote more than once; only the
// latest vote (by VotedAt, fixed-width RFC3339 so lexicographic order is
// chronological order) counts.
type Vote struct {
	Reviewer string `json:"reviewer"`
	Vote     string `json:"vote"` // "lgtm" or "block"
	VotedAt  string `json:"voted_at"`
}

// Review is the detail of one review as reported by the review service.
type Review struct {
	ReviewID string `json:"review_id"`
	Status   string `json:"status"`
	// Votes defaults to empty when the service omits it (no votes yet).
	Votes []Vote `json:"votes"`
	// OpenThreadCount defaults to 0 when omitted.
	OpenThreadCount int `json:"open_thread_count"`
}

// Summary is one entry from a workspace review listing.
type Summary struct {
	ReviewID string `json:"review_id"`
	Status   string `json:"status"`
}

type detailReply struct {
	Review Review `json:"review"`
	// Threads are fetched but unused by the engine; kept so strict-ish
	// decoding does not mistake their presence for an error.
	Threads []json.RawMessage `json:"threads"`
}

type listReply struct {
	Reviews []Summary `json:"reviews"`
}

// Service shells out to the review service.
type Service struct {
	runner  spawn.Runner
	tool    string
	timeout time.Duration
}

// NewService returns a review-service adapter for the given tool binary.
func NewService(runner spawn.Runner, tool string, timeout time.Duration) *Service {
	return &Service{runner: runner, tool: tool, timeout: timeout}
}

// ListInWorkspace fetches the reviews open against workspace ws.
func (s *Service) ListInWorkspace(ctx context.Context, ws string) ([]Summary, error) {
	if !shellsafe.ValidWorkspaceName(ws) {
		return nil, &errs.ValidationError{Field: "workspace name", Value: ws}
	}
	res, err := s.runner.Run(ctx, s.timeout, s.tool, "reviews", "list", "--workspace", ws, "--format", "json")
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, &errs.OpError{Tool: s.tool, Detail: fmt.Sprintf("reviews list exited %d: %s", res.ExitCode, res.Stderr)}
	}

	var reply listReply
	if err := json.Unmarshal([]byte(res.Stdout), &reply); err != nil {
		return nil, &errs.OpError{Tool: s.tool, Detail: "unparseable reviews list output", Err: err}
	}
	if reply.Reviews == nil {
		reply.Reviews = []Summary{}
	}
	return reply.Reviews, nil
}

// Detail fetches one review with its votes.
func (s *Service) Detail(ctx context.Context, id string) (*Review, error) {
	if !shellsafe.ValidReviewID(id) {
		return nil, &errs.ValidationError{Field: "review id", Value: id}
	}
	res, err := s.runner.Run(ctx, s.timeout, s.tool, "review", id, "--format", "json")
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, &errs.OpError{Tool: s.tool, Detail: fmt.Sprintf("review %s exited %d: %s", id, res.ExitCode, res.Stderr)}
	}

	var reply detailReply
	if err := json.Unmarshal([]byte(res.Stdout), &reply); err != nil {
		return nil, &errs.OpError{Tool: s.tool, Detail: "unparseable review output", Err: err}
	}
	if reply.Review.ReviewID == "" {
		return nil, &errs.OpError{Tool: s.tool, Detail: fmt.Sprintf("review %s reply missing review object", id)}
	}
	if reply.Review.Votes == nil {
		reply.Review.Votes = []Vote{}
	}
	return &reply.Review, nil
}
