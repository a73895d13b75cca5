// Package history records finished pipeline runs in SQLite. It is a
// reporting sink only: the core execution loop never reads from it, and
// scheduler state is never persisted mid-run.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wavegate/wavegate/internal/pipeline"
)

// RunRecord is a stored run summary.
type RunRecord struct {
	ID         string
	Status     string
	Waves      int
	StartedAt  time.Time
	FinishedAt time.Time
}

// TaskRecord is one stored task result.
type TaskRecord struct {
	RunID      string
	Task       string
	Status     string
	Score      int
	DurationMS int64
	Errors     []string
	Artifacts  []string
}

// Store is a SQLite-backed run history.
type Store struct {
	db *sql.DB
}

// Open creates or opens the history database at path. Parent directories
// are created as needed; WAL mode and a busy timeout are enabled.
func Open(ctx context.Context, path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// modernc.org/sqlite needs the PRAGMA, not a connection-string flag.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun stores a finished run with all its task results and checkpoints.
// Idempotent: saving the same run twice replaces the previous record.
func (s *Store) SaveRun(ctx context.Context, run *pipeline.Run) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, status, waves, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			waves = excluded.waves,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at
	`, run.ID, string(run.Status), run.WavesExecuted, run.StartedAt, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM task_results WHERE run_id = ?`, run.ID); err != nil {
		return fmt.Errorf("failed to clear task results: %w", err)
	}
	for _, res := range run.Results {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO task_results (run_id, task, status, score, duration_ms, errors, artifacts)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, run.ID, res.TaskName, string(res.Status), res.QualityScore,
			res.Duration.Milliseconds(), strings.Join(res.Errors, "\n"), strings.Join(res.Artifacts, "\n"))
		if err != nil {
			return fmt.Errorf("failed to insert result for task %q: %w", res.TaskName, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM checkpoints WHERE run_id = ?`, run.ID); err != nil {
		return fmt.Errorf("failed to clear checkpoints: %w", err)
	}
	for i, cp := range run.Checkpoints {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO checkpoints (run_id, seq, decision, average_quality, success_rate, critical_failures)
			VALUES (?, ?, ?, ?, ?, ?)
		`, run.ID, i, string(cp.Decision), cp.Metrics.AverageQuality,
			cp.Metrics.SuccessRate, strings.Join(cp.Metrics.CriticalFailures, ","))
		if err != nil {
			return fmt.Errorf("failed to insert checkpoint %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// GetRun returns a stored run summary.
func (s *Store) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	var rec RunRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, status, waves, started_at, finished_at FROM runs WHERE id = ?
	`, runID).Scan(&rec.ID, &rec.Status, &rec.Waves, &rec.StartedAt, &rec.FinishedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to load run %q: %w", runID, err)
	}
	return &rec, nil
}

// ListTaskResults returns the stored task results for a run, ordered by
// task name.
func (s *Store) ListTaskResults(ctx context.Context, runID string) ([]TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, task, status, score, duration_ms, errors, artifacts
		FROM task_results WHERE run_id = ? ORDER BY task
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query task results: %w", err)
	}
	defer rows.Close()

	var records []TaskRecord
	for rows.Next() {
		var rec TaskRecord
		var errText, artText string
		if err := rows.Scan(&rec.RunID, &rec.Task, &rec.Status, &rec.Score, &rec.DurationMS, &errText, &artText); err != nil {
			return nil, fmt.Errorf("failed to scan task result: %w", err)
		}
		rec.Errors = splitLines(errText)
		rec.Artifacts = splitLines(artText)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListRuns returns stored run summaries, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, waves, started_at, finished_at FROM runs ORDER BY started_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var rec RunRecord
		if err := rows.Scan(&rec.ID, &rec.Status, &rec.Waves, &rec.StartedAt, &rec.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
