// Package steps runs an ordered list of guidance commands through the
// system shell. Its only jobs are strict sequencing, stop-at-first-failure,
// and the one stateful $WS substitution; retries and parallelism live
// elsewhere or nowhere.
package steps

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/usher-cli/usher/internal/log"
	"github.com/usher-cli/usher/internal/shellsafe"
	"github.com/usher-cli/usher/internal/spawn"
)

// WorkspaceToken is the placeholder replaced with the discovered workspace
// name in every step after the one that created it.
const WorkspaceToken = shellsafe.WorkspaceToken

// StepResult is the outcome of one executed step.
type StepResult struct {
	Command string `json:"command"`
	Success bool   `json:"success"`
	Stdout  string `json:"stdout"`
	Stderr  string `json:"stderr"`
}

// Report is the outcome of an Execute call. Remaining is non-empty iff
// some earlier step failed; once a step fails, no later step executes.
type Report struct {
	Results   []StepResult `json:"results"`
	Remaining []string     `json:"remaining"`
}

// Failed reports whether execution halted early.
func (r Report) Failed() bool { return len(r.Remaining) > 0 }

// LineRunner executes one shell command line. Satisfied by
// *spawn.ShellRunner.
type LineRunner interface {
	RunLine(ctx context.Context, timeout time.Duration, line string) (spawn.Result, error)
}

// Executor runs steps sequentially.
type Executor struct {
	shell   LineRunner
	timeout time.Duration
	logger  *slog.Logger
}

// New returns an Executor with the given per-step timeout.
func New(shell LineRunner, timeout time.Duration) *Executor {
	return &Executor{shell: shell, timeout: timeout, logger: log.WithComponent("steps")}
}

var (
	// wsCreateSignature recognizes the step that creates a workspace.
	wsCreateSignature = regexp.MustCompile(`\bws create\b`)

	// quotedName extracts a workspace name the tool echoed in quotes,
	// e.g. "Creating workspace 'frost-castle'".
	quotedName = regexp.MustCompile(`'([A-Za-z0-9][A-Za-z0-9-]*)'`)

	// bareName matches an output line that is nothing but a workspace name.
	bareName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9-]*$`)
)

// Execute runs each step in order, substituting the workspace name
// discovered from a successful create step into every later step's
// WorkspaceToken. It halts at the first failure; the unexecuted tail is
// returned verbatim in Remaining, unsubstituted or substituted exactly as
// it would have run.
func (e *Executor) Execute(ctx context.Context, list []string) Report {
	report := Report{Results: make([]StepResult, 0, len(list))}
	workspace := ""

	for i, step := range list {
		if workspace != "" {
			step = strings.ReplaceAll(step, WorkspaceToken, workspace)
		}

		res, err := e.shell.RunLine(ctx, e.timeout, step)
		sr := StepResult{Command: step}
		if err != nil {
			sr.Stderr = err.Error()
		} else {
			sr.Success = res.ExitCode == 0
			sr.Stdout = res.Stdout
			sr.Stderr = res.Stderr
		}
		report.Results = append(report.Results, sr)
		e.logger.Debug("step executed", "command", step, "success", sr.Success)

		if !sr.Success {
			remaining := list[i+1:]
			report.Remaining = make([]string, len(remaining))
			copy(report.Remaining, remaining)
			return report
		}

		if workspace == "" && wsCreateSignature.MatchString(step) {
			if name := extractWorkspaceName(sr.Stdout); name != "" {
				workspace = name
				e.logger.Debug("discovered workspace", "name", name)
			}
		}
	}
	report.Remaining = []string{}
	return report
}

// extractWorkspaceName pulls the created workspace's name out of the
// create step's stdout: a quoted name first, otherwise the first output
// line that is entirely a bare name.
func extractWorkspaceName(stdout string) string {
	if m := quotedName.FindStringSubmatch(stdout); m != nil {
		return m[1]
	}
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && bareName.MatchString(line) {
			return line
		}
	}
	return ""
}
