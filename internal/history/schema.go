package history

import (
	"context"
	"fmt"
)

// initSchema creates the history tables when absent.
func (s *Store) initSchema(ctx context.Context) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id           TEXT PRIMARY KEY,
			status       TEXT NOT NULL,
			waves        INTEGER NOT NULL,
			started_at   TIMESTAMP NOT NULL,
			finished_at  TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS task_results (
			run_id    TEXT NOT NULL,
			task      TEXT NOT NULL,
			status    TEXT NOT NULL,
			score     INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			errors    TEXT NOT NULL DEFAULT '',
			artifacts TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (run_id, task),
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			run_id            TEXT NOT NULL,
			seq               INTEGER NOT NULL,
			decision          TEXT NOT NULL,
			average_quality   REAL NOT NULL,
			success_rate      REAL NOT NULL,
			critical_failures TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (run_id, seq),
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_task_results_run ON task_results(run_id)`,
	}

	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}
