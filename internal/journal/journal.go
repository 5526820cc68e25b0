// Package journal persists the outcomes of executed step runs in a local
// SQLite database. Only execution reports are recorded; guidance itself is
// computed fresh per invocation and never stored.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/usher-cli/usher/internal/steps"
)

// outputCap bounds how much captured output one step row may carry.
const outputCap = 4096

// Run is one recorded execute-mode invocation.
type Run struct {
	ID        string    `json:"id"`
	Command   string    `json:"command"`
	Bead      string    `json:"bead,omitempty"`
	Agent     string    `json:"agent"`
	StartedAt time.Time `json:"started_at"`
	StepCount int       `json:"step_count"`
	Halted    bool      `json:"halted"`
}

// StepRow is one recorded step outcome within a run.
type StepRow struct {
	Seq     int    `json:"seq"`
	Command string `json:"command"`
	Success bool   `json:"success"`
	Stdout  string `json:"stdout,omitempty"`
	Stderr  string `json:"stderr,omitempty"`
}

// Journal is a handle on the journal database.
type Journal struct {
	db *sql.DB
}

// Open opens (and creates if needed) the journal database at path and
// ensures the required tables exist.
func Open(ctx context.Context, path string) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("journal path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if err := bootstrap(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

func bootstrap(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS run (
  id         TEXT PRIMARY KEY,
  command    TEXT NOT NULL,
  bead       TEXT,
  agent      TEXT NOT NULL,
  started_at TEXT NOT NULL,
  step_count INTEGER NOT NULL,
  halted     INTEGER NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS run_step (
  run_id  TEXT NOT NULL,
  seq     INTEGER NOT NULL,
  command TEXT NOT NULL,
  success INTEGER NOT NULL,
  stdout  TEXT,
  stderr  TEXT,
  PRIMARY KEY (run_id, seq)
);`,
		`CREATE INDEX IF NOT EXISTS run_started_at_idx ON run(started_at);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap journal: %w", err)
		}
	}
	return nil
}

// Record stores one execution report and returns the new run id.
func (j *Journal) Record(ctx context.Context, command, bead, agent string, report steps.Report) (string, error) {
	runID := uuid.NewString()
	startedAt := time.Now().UTC().Format(time.RFC3339)

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin journal tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO run (id, command, bead, agent, started_at, step_count, halted) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, command, bead, agent, startedAt, len(report.Results), report.Failed())
	if err != nil {
		return "", fmt.Errorf("record run: %w", err)
	}

	for i, res := range report.Results {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_step (run_id, seq, command, success, stdout, stderr) VALUES (?, ?, ?, ?, ?, ?)`,
			runID, i, res.Command, res.Success, truncate(res.Stdout), truncate(res.Stderr))
		if err != nil {
			return "", fmt.Errorf("record step %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit journal tx: %w", err)
	}
	return runID, nil
}

// List returns the most recent runs, newest first.
func (j *Journal) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, command, COALESCE(bead, ''), agent, started_at, step_count, halted
		 FROM run ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var startedAt string
		if err := rows.Scan(&r.ID, &r.Command, &r.Bead, &r.Agent, &startedAt, &r.StepCount, &r.Halted); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Show returns one run and its recorded steps in sequence order.
func (j *Journal) Show(ctx context.Context, runID string) (*Run, []StepRow, error) {
	var r Run
	var startedAt string
	err := j.db.QueryRowContext(ctx,
		`SELECT id, command, COALESCE(bead, ''), agent, started_at, step_count, halted FROM run WHERE id = ?`,
		runID).Scan(&r.ID, &r.Command, &r.Bead, &r.Agent, &startedAt, &r.StepCount, &r.Halted)
	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("no such run: %s", runID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load run: %w", err)
	}
	r.StartedAt, _ = time.Parse(time.RFC3339, startedAt)

	rows, err := j.db.QueryContext(ctx,
		`SELECT seq, command, success, COALESCE(stdout, ''), COALESCE(stderr, '') FROM run_step WHERE run_id = ? ORDER BY seq`,
		runID)
	if err != nil {
		return nil, nil, fmt.Errorf("load steps: %w", err)
	}
	defer rows.Close()

	var srs []StepRow
	for rows.Next() {
		var sr StepRow
		if err := rows.Scan(&sr.Seq, &sr.Command, &sr.Success, &sr.Stdout, &sr.Stderr); err != nil {
			return nil, nil, fmt.Errorf("scan step: %w", err)
		}
		srs = append(srs, sr)
	}
	return &r, srs, rows.Err()
}

func (j *Journal) Close() error { return j.db.Close() }

func truncate(s string) string {
	if len(s) <= outputCap {
		return s
	}
	return s[:outputCap]
}
