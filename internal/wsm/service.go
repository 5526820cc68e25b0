// Package wsm talks to the external workspace manager CLI.
package wsm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/usher-cli/usher/internal/errs"
	"github.com/usher-cli/usher/internal/shellsafe"
	"github.com/usher-cli/usher/internal/spawn"
)

// Workspace is one workspace record. Exactly one workspace is named
// "default"; it is the merge target and is never itself merged.
type Workspace struct {
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default"`
	IsCurrent bool   `json:"is_current"`
	// ChangeID defaults to "" for workspaces with no pending change.
	ChangeID string `json:"change_id,omitempty"`
}

// Advice is a human-readable note the workspace manager attaches to a
// listing (staleness warnings and the like).
type Advice struct {
	Level   string `json:"level"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type listReply struct {
	Workspaces []Workspace `json:"workspaces"`
	Advice     []Advice    `json:"advice"`
}

// Service shells out to the workspace manager.
type Service struct {
	runner  spawn.Runner
	tool    string
	timeout time.Duration
}

// NewService returns a workspace-manager adapter for the given tool binary.
func NewService(runner spawn.Runner, tool string, timeout time.Duration) *Service {
	return &Service{runner: runner, tool: tool, timeout: timeout}
}

// List fetches the full workspace list and any attached advice.
func (s *Service) List(ctx context.Context) ([]Workspace, []Advice, error) {
	res, err := s.runner.Run(ctx, s.timeout, s.tool, "ws", "list", "--format", "json")
	if err != nil {
		return nil, nil, err
	}
	if res.ExitCode != 0 {
		return nil, nil, &errs.OpError{Tool: s.tool, Detail: fmt.Sprintf("ws list exited %d: %s", res.ExitCode, res.Stderr)}
	}

	var reply listReply
	if err := json.Unmarshal([]byte(res.Stdout), &reply); err != nil {
		return nil, nil, &errs.OpError{Tool: s.tool, Detail: "unparseable ws list output", Err: err}
	}
	// Missing arrays mean "none", not an error.
	if reply.Workspaces == nil {
		reply.Workspaces = []Workspace{}
	}
	if reply.Advice == nil {
		reply.Advice = []Advice{}
	}
	return reply.Workspaces, reply.Advice, nil
}

// CheckMerge runs the pre-flight conflict probe for merging name into the
// default workspace. clean=false means the probe found conflicts or
// staleness; detail carries the tool's explanation.
func (s *Service) CheckMerge(ctx context.Context, name string) (clean bool, detail string, err error) {
	if !shellsafe.ValidWorkspaceName(name) {
		return false, "", &errs.ValidationError{Field: "workspace name", Value: name}
	}
	res, err := s.runner.Run(ctx, s.timeout, s.tool, "ws", "merge", name, "--check")
	if err != nil {
		return false, "", err
	}
	if res.ExitCode != 0 {
		detail := res.Stdout
		if detail == "" {
			detail = res.Stderr
		}
		return false, detail, nil
	}
	return true, "", nil
}
