// Package store persists the provisioning-run history in SQLite, so
// `chatstack status` can show what was done to a host and when.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jguan/chatstack/pkg/deploy"
)

// History is a SQLite-backed run history implementing deploy.Recorder.
type History struct {
	db *sql.DB
}

var _ deploy.Recorder = (*History)(nil)

// Open opens (and if needed creates) the history database at dbPath.
func Open(dbPath string) (*History, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	h := &History{db: db}
	if err := h.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return h, nil
}

func (h *History) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		detected_state TEXT NOT NULL,
		target_mode TEXT NOT NULL,
		actions TEXT NOT NULL,
		outcome TEXT NOT NULL,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	_, err := h.db.Exec(query)
	return err
}

// Close closes the underlying database.
func (h *History) Close() error {
	return h.db.Close()
}

// Record persists one run.
func (h *History) Record(ctx context.Context, run deploy.RunRecord) error {
	actionsJSON, _ := json.Marshal(run.Actions)

	query := `
		INSERT INTO runs (id, started_at, finished_at, detected_state, target_mode, actions, outcome, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := h.db.ExecContext(ctx, query,
		run.ID, run.StartedAt.Unix(), run.FinishedAt.Unix(),
		run.DetectedState, run.TargetMode, string(actionsJSON),
		run.Outcome, run.Error,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// List returns the most recent runs, newest first.
func (h *History) List(ctx context.Context, limit int) ([]deploy.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := h.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, detected_state, target_mode, actions, outcome, error
		FROM runs ORDER BY started_at DESC, id LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []deploy.RunRecord
	for rows.Next() {
		var (
			run                  deploy.RunRecord
			startedAt, finished  int64
			actionsJSON, errText sql.NullString
		)
		if err := rows.Scan(&run.ID, &startedAt, &finished, &run.DetectedState,
			&run.TargetMode, &actionsJSON, &run.Outcome, &errText); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt = unixTime(startedAt)
		run.FinishedAt = unixTime(finished)
		run.Error = errText.String
		if actionsJSON.Valid {
			_ = json.Unmarshal([]byte(actionsJSON.String), &run.Actions)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func unixTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
