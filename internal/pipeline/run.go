package pipeline

import (
	"time"

	"github.com/wavegate/wavegate/internal/executor"
	"github.com/wavegate/wavegate/internal/quality"
	"github.com/wavegate/wavegate/internal/scheduler"
)

// RunStatus is the terminal state of a pipeline run.
type RunStatus string

const (
	RunCompleted        RunStatus = "completed"
	RunAborted          RunStatus = "aborted"
	RunRetriesExhausted RunStatus = "retries_exhausted"
)

// Run is the run-scoped accumulator. It is created at run start, mutated
// only by the coordinator's control loop, and handed to the caller (and
// any reporting collaborator) when the run ends. A finished Run fully
// explains why the pipeline stopped: which wave, which tasks, and the
// quality metrics behind every decision.
type Run struct {
	ID            string
	Status        RunStatus
	Schedule      scheduler.Schedule // the initial wave plan
	WavesExecuted int                // waves that passed their quality gate
	Results       map[string]executor.TaskResult
	Checkpoints   []quality.Checkpoint
	RetryBudget   map[string]int // remaining quality-gate retries per task
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Completed reports whether every scheduled task ran and passed its gate.
func (r *Run) Completed() bool {
	return r.Status == RunCompleted
}

// Elapsed returns the wall-clock duration of the run.
func (r *Run) Elapsed() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
