// Package spawn runs the external coordination tools as subprocesses. All
// adapters share one Runner so timeout, termination, and output-capping
// behavior is uniform.
package spawn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"syscall"
	"time"

	"github.com/usher-cli/usher/internal/errs"
	"github.com/usher-cli/usher/internal/log"
)

const (
	// maxCaptureBytes caps stdout/stderr captured from a tool invocation.
	maxCaptureBytes = 256 * 1024

	// terminationGracePeriod is the wait after SIGTERM before SIGKILL.
	terminationGracePeriod = 5 * time.Second
)

// Result holds the captured output of a completed tool invocation.
// ExitCode is zero on success.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

//go:generate mockgen -destination=mocks/mock_runner.go -package=mocks github.com/usher-cli/usher/internal/spawn Runner

// Runner executes a named tool with arguments, blocking until the child
// exits or timeout expires. Implementations must treat a timeout as total
// failure: partial output is discarded, never returned.
type Runner interface {
	Run(ctx context.Context, timeout time.Duration, name string, args ...string) (Result, error)
}

// ProcRunner is the production Runner backed by os/exec.
type ProcRunner struct{}

// NewRunner returns the production Runner.
func NewRunner() *ProcRunner { return &ProcRunner{} }

// Run spawns name with args, enforcing timeout by SIGTERM to the child's
// process group, escalating to SIGKILL after a grace period. A missing
// binary or a timeout returns an error; a non-zero exit is reported in
// Result with a nil error so callers can decide how to treat it.
func (r *ProcRunner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (Result, error) {
	logger := log.WithComponent("spawn")

	cmd := exec.Command(name, args...)
	// New process group so the kill reaches grandchildren too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("spawning tool", "tool", name, "args", args, "timeout", timeout)

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return Result{}, &errs.OpError{Tool: name, Detail: "not found on PATH", Err: err}
		}
		return Result{}, &errs.OpError{Tool: name, Detail: "failed to start", Err: err}
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		r.terminate(cmd, waitErr, logger)
		return Result{}, ctx.Err()

	case <-timer.C:
		logger.Warn("tool timed out, terminating", "tool", name, "timeout", timeout)
		r.terminate(cmd, waitErr, logger)
		// Output gathered before the kill is discarded: a timeout is a
		// failure, never a partial success.
		return Result{}, &errs.TimeoutError{Tool: name, Budget: timeout}

	case err := <-waitErr:
		res := Result{
			Stdout: truncate(stdout.String()),
			Stderr: truncate(stderr.String()),
		}
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				res.ExitCode = exitErr.ExitCode()
				return res, nil
			}
			return Result{}, &errs.OpError{Tool: name, Detail: "wait failed", Err: err}
		}
		return res, nil
	}
}

// terminate sends SIGTERM to the process group, waits the grace period,
// then SIGKILLs stragglers.
func (r *ProcRunner) terminate(cmd *exec.Cmd, waitErr <-chan error, logger *slog.Logger) {
	if cmd.Process == nil {
		return
	}
	pgid := -cmd.Process.Pid
	if err := syscall.Kill(pgid, syscall.SIGTERM); err != nil {
		logger.Error("failed to send SIGTERM", "error", err)
	}

	grace := time.NewTimer(terminationGracePeriod)
	defer grace.Stop()

	select {
	case <-waitErr:
	case <-grace.C:
		logger.Warn("process ignored SIGTERM, sending SIGKILL")
		if err := syscall.Kill(pgid, syscall.SIGKILL); err != nil {
			logger.Error("failed to send SIGKILL", "error", err)
		}
		<-waitErr
	}
}

func truncate(s string) string {
	if len(s) > maxCaptureBytes {
		return s[:maxCaptureBytes]
	}
	return s
}

// ShellRunner runs a full command line through the system shell. The step
// executor uses it because guidance steps are literal shell commands.
type ShellRunner struct {
	proc *ProcRunner
}

// NewShellRunner returns a ShellRunner.
func NewShellRunner() *ShellRunner { return &ShellRunner{proc: NewRunner()} }

// RunLine executes one shell command line.
func (s *ShellRunner) RunLine(ctx context.Context, timeout time.Duration, line string) (Result, error) {
	return s.proc.Run(ctx, timeout, "sh", "-c", line)
}

// String implements fmt.Stringer for logging.
func (res Result) String() string {
	return fmt.Sprintf("exit=%d stdout=%dB stderr=%dB", res.ExitCode, len(res.Stdout), len(res.Stderr))
}
