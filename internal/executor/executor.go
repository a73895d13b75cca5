// Package executor runs scheduled waves of tasks with bounded concurrency.
// It owns no execution semantics of its own: the work performed per task is
// a callback supplied by the caller, and the engine's job is to fan out,
// enforce timeouts, survive misbehaving callbacks, and collect results.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/wavegate/wavegate/internal/scheduler"
)

// Status is the terminal state of one task execution.
type Status string

const (
	StatusSuccess       Status = "success"
	StatusFailed        Status = "failed"
	StatusQualityFailed Status = "quality_failed"
)

// TaskResult is the immutable outcome of running one task.
type TaskResult struct {
	TaskName     string
	Status       Status
	QualityScore int // 0-100
	Duration     time.Duration
	Errors       []string
	Artifacts    []string
}

// RunFunc performs the actual work of a task. The context carries the
// task's deadline; implementations should honor it but the engine does
// not depend on them doing so.
type RunFunc func(ctx context.Context, task scheduler.Task) TaskResult

// Scorer assigns the quality score to a finished task. The engine makes
// no quality judgment itself; it packages whatever the scorer returns.
type Scorer func(task scheduler.Task, result TaskResult) int

// DefaultScorer scores 100 for success and 0 for anything else.
func DefaultScorer(_ scheduler.Task, result TaskResult) int {
	if result.Status == StatusSuccess {
		return 100
	}
	return 0
}

// PassthroughScorer keeps the score reported by the run callback, falling
// back to DefaultScorer when the callback left it at zero.
func PassthroughScorer(task scheduler.Task, result TaskResult) int {
	if result.QualityScore != 0 {
		return result.QualityScore
	}
	return DefaultScorer(task, result)
}

// Config configures an Engine.
type Config struct {
	// GlobalConcurrency caps in-flight tasks across the whole pipeline
	// run, independent of wave size. Defaults to 8.
	GlobalConcurrency int
	Scorer            Scorer
	Logger            *slog.Logger
}

// Engine executes one wave at a time. Concurrency is internal: RunWave is
// synchronous and returns only after every task in the wave has a result.
type Engine struct {
	global *semaphore.Weighted
	scorer Scorer
	logger *slog.Logger
}

// New creates an Engine.
func New(cfg Config) *Engine {
	if cfg.GlobalConcurrency <= 0 {
		cfg.GlobalConcurrency = 8
	}
	if cfg.Scorer == nil {
		cfg.Scorer = DefaultScorer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		global: semaphore.NewWeighted(int64(cfg.GlobalConcurrency)),
		scorer: cfg.Scorer,
		logger: cfg.Logger,
	}
}

// RunWave executes every task in the wave concurrently, bounded by the
// wave size and the engine's global ceiling. The returned slice carries
// one result per wave member in no significant order; callers index by
// TaskName.
func (e *Engine) RunWave(ctx context.Context, wave scheduler.Wave, tasks map[string]scheduler.Task, run RunFunc) []TaskResult {
	results := make([]TaskResult, len(wave))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range wave {
		task, ok := tasks[name]
		if !ok {
			results[i] = TaskResult{
				TaskName: name,
				Status:   StatusFailed,
				Errors:   []string{fmt.Sprintf("task %q not in task set", name)},
			}
			continue
		}

		g.Go(func() error {
			if err := e.global.Acquire(gctx, 1); err != nil {
				results[i] = e.score(task, TaskResult{
					TaskName: task.Name,
					Status:   StatusFailed,
					Errors:   []string{fmt.Sprintf("cancelled while waiting for a worker slot: %v", err)},
				})
				return nil
			}
			defer e.global.Release(1)

			results[i] = e.executeTask(gctx, task, run)
			return nil
		})
	}

	// Workers never return errors; failures live in their results.
	_ = g.Wait()
	return results
}

// executeTask runs one task with timeout enforcement and panic isolation.
// On timeout the callback is abandoned, not killed: its goroutine may keep
// running in the background, and cancellation via the task context is
// advisory only.
func (e *Engine) executeTask(ctx context.Context, task scheduler.Task, run RunFunc) TaskResult {
	start := time.Now()

	taskCtx := ctx
	cancel := context.CancelFunc(func() {})
	if task.Timeout > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, task.Timeout)
	}
	defer cancel()

	done := make(chan TaskResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("task panicked", "task", task.Name, "panic", r)
				done <- TaskResult{
					TaskName: task.Name,
					Status:   StatusFailed,
					Errors:   []string{fmt.Sprintf("panic: %v", r)},
				}
			}
		}()
		done <- run(taskCtx, task)
	}()

	var result TaskResult
	select {
	case result = <-done:
	case <-taskCtx.Done():
		if task.Timeout > 0 && errors.Is(taskCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			result = TaskResult{
				TaskName: task.Name,
				Status:   StatusFailed,
				Errors:   []string{fmt.Sprintf("timeout after %s", task.Timeout)},
			}
		} else {
			result = TaskResult{
				TaskName: task.Name,
				Status:   StatusFailed,
				Errors:   []string{fmt.Sprintf("cancelled: %v", taskCtx.Err())},
			}
		}
	}

	result.TaskName = task.Name
	result.Duration = time.Since(start)
	return e.score(task, result)
}

func (e *Engine) score(task scheduler.Task, result TaskResult) TaskResult {
	result.QualityScore = clampScore(e.scorer(task, result))
	return result
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
