// Package lock guards execute-mode runs. Two concurrent execute runs by
// the same agent on one host would race each other's claims and workspace
// steps, so the first takes a flock'd PID file and the second fails fast.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// RunLock is a per-agent single-run lock implemented via a PID file +
// flock(2). Keep the lock alive by keeping the file descriptor open.
type RunLock struct {
	path string
	f    *os.File
}

// Acquire takes an exclusive non-blocking lock for agent under stateDir,
// writes the current PID into the file, and returns a handle that must be
// released.
func Acquire(stateDir, agent string) (*RunLock, error) {
	if stateDir == "" {
		return nil, fmt.Errorf("state dir is empty")
	}
	if agent == "" {
		return nil, fmt.Errorf("agent is empty")
	}
	path := filepath.Join(stateDir, "run-"+agent+".lock")
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("another execute run is active for %s: %w", agent, err)
	}

	if err := writePID(f); err != nil {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		_ = f.Close()
		return nil, err
	}
	return &RunLock{path: path, f: f}, nil
}

func writePID(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return fmt.Errorf("seek lock file: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		return fmt.Errorf("write pid: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync lock file: %w", err)
	}
	return nil
}

func (l *RunLock) Path() string { return l.path }

func (l *RunLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	err := l.f.Close()
	l.f = nil
	return err
}
