// Package claims talks to the external claims/lease store CLI and parses
// its JSON replies into typed records.
package claims

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/usher-cli/usher/internal/errs"
	"github.com/usher-cli/usher/internal/spawn"
)

// Service shells out to the claims store.
type Service struct {
	runner  spawn.Runner
	tool    string
	agent   string
	timeout time.Duration
}

// NewService returns a claims adapter for the given tool binary and agent.
func NewService(runner spawn.Runner, tool, agent string, timeout time.Duration) *Service {
	return &Service{runner: runner, tool: tool, agent: agent, timeout: timeout}
}

type listReply struct {
	Claims []Claim `json:"claims"`
}

// List fetches claims visible to the caller. With mine set, only the
// calling agent's claims are returned.
func (s *Service) List(ctx context.Context, mine bool) ([]Claim, error) {
	args := []string{"list"}
	if mine {
		args = append(args, "--mine")
	}
	args = append(args, "--format", "json")

	res, err := s.runner.Run(ctx, s.timeout, s.tool, args...)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, &errs.OpError{Tool: s.tool, Detail: fmt.Sprintf("list exited %d: %s", res.ExitCode, res.Stderr)}
	}

	var reply listReply
	if err := json.Unmarshal([]byte(res.Stdout), &reply); err != nil {
		return nil, &errs.OpError{Tool: s.tool, Detail: "unparseable list output", Err: err}
	}
	// A missing claims array means "no claims", not an error.
	if reply.Claims == nil {
		return []Claim{}, nil
	}
	return reply.Claims, nil
}

// Stake stakes a claim on uri. It reports acquired=false when the store
// refused because another agent holds the resource (exit 1 by convention);
// any other failure is an error.
func (s *Service) Stake(ctx context.Context, uri string, ttlSecs int, memo string) (bool, error) {
	args := []string{"stake", "--agent", s.agent, uri}
	if ttlSecs > 0 {
		args = append(args, "--ttl", strconv.Itoa(ttlSecs))
	}
	if memo != "" {
		args = append(args, "-m", memo)
	}

	res, err := s.runner.Run(ctx, s.timeout, s.tool, args...)
	if err != nil {
		return false, err
	}
	switch res.ExitCode {
	case 0:
		return true, nil
	case 1:
		return false, nil
	default:
		return false, &errs.OpError{Tool: s.tool, Detail: fmt.Sprintf("stake exited %d: %s", res.ExitCode, res.Stderr)}
	}
}

// Release releases the claim on uri.
func (s *Service) Release(ctx context.Context, uri string) error {
	res, err := s.runner.Run(ctx, s.timeout, s.tool, "release", "--agent", s.agent, uri)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return &errs.OpError{Tool: s.tool, Detail: fmt.Sprintf("release exited %d: %s", res.ExitCode, res.Stderr)}
	}
	return nil
}

// ReleaseAll releases every claim the agent holds.
func (s *Service) ReleaseAll(ctx context.Context) error {
	res, err := s.runner.Run(ctx, s.timeout, s.tool, "release", "--agent", s.agent, "--all")
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return &errs.OpError{Tool: s.tool, Detail: fmt.Sprintf("release --all exited %d: %s", res.ExitCode, res.Stderr)}
	}
	return nil
}

// Refresh extends the TTLs of the agent's claims.
func (s *Service) Refresh(ctx context.Context) error {
	res, err := s.runner.Run(ctx, s.timeout, s.tool, "refresh")
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return &errs.OpError{Tool: s.tool, Detail: fmt.Sprintf("refresh exited %d: %s", res.ExitCode, res.Stderr)}
	}
	return nil
}
