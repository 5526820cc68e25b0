// Package tracker talks to the external issue tracker CLI (beads).
package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/usher-cli/usher/internal/errs"
	"github.com/usher-cli/usher/internal/shellsafe"
	"github.com/usher-cli/usher/internal/spawn"
)

// Bead is one issue record.
type Bead struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
	// Priority defaults to 0 (unset) when the tracker omits it.
	Priority int `json:"priority"`
	// Owner defaults to "" for unassigned beads.
	Owner string `json:"owner,omitempty"`
	// Labels defaults to empty.
	Labels []string `json:"labels,omitempty"`
}

// Comment is one issue comment.
type Comment struct {
	Author    string `json:"author"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
}

// Service shells out to the issue tracker.
type Service struct {
	runner  spawn.Runner
	tool    string
	timeout time.Duration
}

// NewService returns a tracker adapter for the given tool binary.
func NewService(runner spawn.Runner, tool string, timeout time.Duration) *Service {
	return &Service{runner: runner, tool: tool, timeout: timeout}
}

// Show fetches one bead by id.
func (s *Service) Show(ctx context.Context, id string) (*Bead, error) {
	if !shellsafe.ValidBeadID(id) {
		return nil, &errs.ValidationError{Field: "bead id", Value: id}
	}
	res, err := s.runner.Run(ctx, s.timeout, s.tool, "show", id, "--json")
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, &errs.OpError{Tool: s.tool, Detail: fmt.Sprintf("show %s exited %d: %s", id, res.ExitCode, res.Stderr)}
	}

	var bead Bead
	if err := json.Unmarshal([]byte(res.Stdout), &bead); err != nil {
		return nil, &errs.OpError{Tool: s.tool, Detail: "unparseable show output", Err: err}
	}
	if bead.ID == "" {
		return nil, &errs.OpError{Tool: s.tool, Detail: fmt.Sprintf("show %s reply missing id", id)}
	}
	return &bead, nil
}

// Comments fetches the comments on bead id.
func (s *Service) Comments(ctx context.Context, id string) ([]Comment, error) {
	if !shellsafe.ValidBeadID(id) {
		return nil, &errs.ValidationError{Field: "bead id", Value: id}
	}
	res, err := s.runner.Run(ctx, s.timeout, s.tool, "comments", id, "--json")
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, &errs.OpError{Tool: s.tool, Detail: fmt.Sprintf("comments %s exited %d: %s", id, res.ExitCode, res.Stderr)}
	}

	var comments []Comment
	if err := json.Unmarshal([]byte(res.Stdout), &comments); err != nil {
		return nil, &errs.OpError{Tool: s.tool, Detail: "unparseable comments output", Err: err}
	}
	return comments, nil
}

// List fetches all beads.
func (s *Service) List(ctx context.Context) ([]Bead, error) {
	res, err := s.runner.Run(ctx, s.timeout, s.tool, "list", "--json")
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, &errs.OpError{Tool: s.tool, Detail: fmt.Sprintf("list exited %d: %s", res.ExitCode, res.Stderr)}
	}

	var beads []Bead
	if err := json.Unmarshal([]byte(res.Stdout), &beads); err != nil {
		return nil, &errs.OpError{Tool: s.tool, Detail: "unparseable list output", Err: err}
	}
	return beads, nil
}
