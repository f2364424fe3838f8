// Package storage persists skill run history and event logs.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dohr-michael/bizclaw/internal/skills"
)

// ErrRunNotFound is returned by Get for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	skill       TEXT NOT NULL,
	username    TEXT NOT NULL DEFAULT '',
	triggered   TEXT NOT NULL DEFAULT '',
	success     INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	error_kind  TEXT NOT NULL DEFAULT '',
	steps       INTEGER NOT NULL DEFAULT 0,
	context     TEXT NOT NULL,
	result      TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_skill_started ON runs (skill, started_at DESC);
CREATE INDEX IF NOT EXISTS runs_started ON runs (started_at DESC);
`

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
}

// RunSummary is a run without its context and step results.
type RunSummary struct {
	ID        string        `json:"id"`
	Skill     string        `json:"skill"`
	User      string        `json:"user,omitempty"`
	Trigger   string        `json:"trigger"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Steps     int           `json:"steps"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// ListOptions filters List.
type ListOptions struct {
	Skill  string
	Failed bool // only unsuccessful runs
	Limit  int  // default 50
}

// RunStore is a SQLite-backed skill run history. It implements skills.Recorder.
type RunStore struct {
	db *sql.DB
}

var _ skills.Recorder = (*RunStore)(nil)

// OpenRunStore opens or creates the history database at path.
func OpenRunStore(path string) (*RunStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// A single connection keeps writes serialized and ":memory:" shared.
	db.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return &RunStore{db: db}, nil
}

// Close closes the database.
func (s *RunStore) Close() error {
	return s.db.Close()
}

// RecordRun stores a finished run. Recording the same ID twice replaces it.
func (s *RunStore) RecordRun(ctx context.Context, run skills.RunRecord) error {
	if run.Result == nil {
		return fmt.Errorf("record run %s: missing result", run.ID)
	}
	ctxJSON, err := json.Marshal(run.Context)
	if err != nil {
		return fmt.Errorf("encode run context: %w", err)
	}
	resJSON, err := json.Marshal(run.Result)
	if err != nil {
		return fmt.Errorf("encode run result: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(id, skill, username, triggered, success, error, error_kind, steps, context, result, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Skill, run.User, run.Trigger, run.Result.Success, run.Result.Error,
		string(run.Result.ErrorKind), len(run.Result.Results), string(ctxJSON), string(resJSON),
		run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// Get returns a full run record.
func (s *RunStore) Get(ctx context.Context, id string) (*skills.RunRecord, error) {
	var (
		run                 skills.RunRecord
		ctxJSON, resJSON    string
		started, finished   int64
		success             bool
		errMsg, errKindText string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, skill, username, triggered, success, error, error_kind, context, result, started_at, finished_at
		FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.Skill, &run.User, &run.Trigger, &success, &errMsg, &errKindText,
		&ctxJSON, &resJSON, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(ctxJSON), &run.Context); err != nil {
		return nil, fmt.Errorf("decode run context: %w", err)
	}
	run.Result = &skills.Result{}
	if err := json.Unmarshal([]byte(resJSON), run.Result); err != nil {
		return nil, fmt.Errorf("decode run result: %w", err)
	}
	// The short unknown-skill form carries neither of these.
	run.Result.RunID = run.ID
	run.Result.Skill = run.Skill
	run.Result.Success = success
	run.Result.Error = errMsg
	run.StartedAt = time.UnixMilli(started)
	run.FinishedAt = time.UnixMilli(finished)
	return &run, nil
}

// List returns the most recent runs first.
func (s *RunStore) List(ctx context.Context, opts ListOptions) ([]RunSummary, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, skill, username, triggered, success, error, steps, started_at, finished_at FROM runs WHERE 1=1`
	var args []any
	if opts.Skill != "" {
		query += ` AND skill = ?`
		args = append(args, opts.Skill)
	}
	if opts.Failed {
		query += ` AND success = 0`
	}
	query += ` ORDER BY started_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	out := []RunSummary{}
	for rows.Next() {
		var (
			r                 RunSummary
			started, finished int64
		)
		if err := rows.Scan(&r.ID, &r.Skill, &r.User, &r.Trigger, &r.Success, &r.Error, &r.Steps, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(started)
		r.Duration = time.Duration(finished-started) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// Prune deletes runs started before cutoff and returns how many were removed.
func (s *RunStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}
