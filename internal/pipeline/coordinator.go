// Package pipeline drives the overall execution loop: build the dependency
// graph once, compute the wave plan, execute waves through the engine, and
// consult the quality gate after each wave to continue, retry the failing
// subset, or abort.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/wavegate/wavegate/internal/events"
	"github.com/wavegate/wavegate/internal/executor"
	"github.com/wavegate/wavegate/internal/quality"
	"github.com/wavegate/wavegate/internal/scheduler"
)

const instrumentationName = "github.com/wavegate/wavegate/internal/pipeline"

var meter = otel.Meter(instrumentationName)

// Options configures a Coordinator.
type Options struct {
	// Runner performs the actual work of each task. Required.
	Runner executor.RunFunc

	// MaxConcurrency bounds wave width. Clamped to 1..16, default 4.
	MaxConcurrency int

	// GlobalConcurrency is the run-wide in-flight ceiling, passed to the
	// engine's semaphore. Defaults to MaxConcurrency.
	GlobalConcurrency int

	// QualityThreshold is the 0-100 acceptability line for the gate.
	// Defaults to 80.
	QualityThreshold int

	Scorer executor.Scorer
	Logger *slog.Logger
	Bus    *events.Bus // optional; nil disables event publishing
}

// Coordinator owns the Planning -> ExecutingWave -> Evaluating state
// machine for a single pipeline run at a time. It holds no run state
// between calls; every Run invocation builds its own accumulator.
type Coordinator struct {
	opts   Options
	engine *executor.Engine
	logger *slog.Logger

	tasksTotal  metric.Int64Counter
	tasksFailed metric.Int64Counter
	wavesTotal  metric.Int64Counter
}

// New creates a Coordinator. Returns an error when no Runner is supplied.
func New(opts Options) (*Coordinator, error) {
	if opts.Runner == nil {
		return nil, errors.New("pipeline: Options.Runner is required")
	}
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = 4
	}
	if opts.MaxConcurrency > 16 {
		opts.MaxConcurrency = 16
	}
	if opts.GlobalConcurrency <= 0 {
		opts.GlobalConcurrency = opts.MaxConcurrency
	}
	if opts.QualityThreshold <= 0 {
		opts.QualityThreshold = 80
	}
	if opts.QualityThreshold > 100 {
		opts.QualityThreshold = 100
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	c := &Coordinator{
		opts:   opts,
		logger: opts.Logger,
		engine: executor.New(executor.Config{
			GlobalConcurrency: opts.GlobalConcurrency,
			Scorer:            opts.Scorer,
			Logger:            opts.Logger,
		}),
	}
	c.tasksTotal = counter("pipeline_tasks_total", "Task executions, including quality-gate retries", "{task}")
	c.tasksFailed = counter("pipeline_tasks_failed", "Task executions that did not succeed", "{task}")
	c.wavesTotal = counter("pipeline_waves_total", "Waves that passed their quality gate", "{wave}")
	return c, nil
}

// Run executes the pipeline over the given task definitions. Definition
// errors (unknown dependencies, cycles, duplicates) are fatal and returned
// before any task starts. An aborted or retries-exhausted run is not an
// error: the returned Run carries the full explanation.
func (c *Coordinator) Run(ctx context.Context, defs []scheduler.Task) (*Run, error) {
	graph, err := scheduler.BuildGraph(defs)
	if err != nil {
		return nil, fmt.Errorf("planning: %w", err)
	}
	sched := scheduler.Plan(graph, c.opts.MaxConcurrency)

	// Private copies; improvement hints mutate these, never the caller's.
	tasks := make(map[string]scheduler.Task, graph.Len())
	budget := make(map[string]int, graph.Len())
	for _, name := range graph.Names() {
		t, _ := graph.Task(name)
		tasks[name] = t
		budget[name] = t.MaxRetries
	}

	run := &Run{
		ID:          uuid.NewString(),
		Schedule:    sched,
		Results:     make(map[string]executor.TaskResult, graph.Len()),
		RetryBudget: budget,
		StartedAt:   time.Now(),
	}

	c.logger.Info("pipeline planned",
		"run", run.ID,
		"tasks", graph.Len(),
		"waves", len(sched.Waves),
		"estimated_total", sched.TotalEstimatedTime,
		"critical_path", sched.CriticalPath)

	completed := make(map[string]bool, graph.Len())
	queue := sched.Waves
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return c.finish(ctx, run, RunAborted), err
		}

		wave := queue[0]
		c.publish(events.TopicWave, events.WaveStarted{
			Run:       run.ID,
			Wave:      run.WavesExecuted,
			Tasks:     append([]string(nil), wave...),
			Timestamp: time.Now(),
		})

		decision, replan := c.executeAndEvaluate(ctx, run, wave, tasks)
		switch decision {
		case quality.DecisionContinue:
			for _, name := range wave {
				completed[name] = true
			}
			run.WavesExecuted++
			add(ctx, c.wavesTotal, 1)

		case quality.DecisionAbort:
			// Out of budget only when something actually failed; a wave of
			// uniformly mediocre successes aborts with nothing to retry.
			status := RunAborted
			last := run.Checkpoints[len(run.Checkpoints)-1]
			if len(last.Metrics.CriticalFailures) == 0 && waveHasFailure(run, wave) {
				status = RunRetriesExhausted
			}
			return c.finish(ctx, run, status), nil
		}

		queue = queue[1:]
		if replan && len(queue) > 0 {
			// Improvement hints changed duration estimates; replan the
			// remainder so wave packing reflects the new numbers.
			if g, err := scheduler.BuildGraph(taskValues(tasks)); err == nil {
				queue = scheduler.PlanFrom(g, c.opts.MaxConcurrency, completed).Waves
			}
		}
	}

	return c.finish(ctx, run, RunCompleted), nil
}

// executeAndEvaluate runs one wave to a terminal gate decision. On a retry
// decision it applies improvement hints, decrements budgets, and re-executes
// only the failing subset; successful wave members are never rerun. The
// returned decision is DecisionContinue or DecisionAbort, plus whether any
// hint changed a duration estimate.
func (c *Coordinator) executeAndEvaluate(ctx context.Context, run *Run, wave scheduler.Wave, tasks map[string]scheduler.Task) (quality.Decision, bool) {
	gate := &quality.Gate{Weights: waveWeights(wave, tasks)}
	replanned := false

	attempt := append([]string(nil), wave...)
	for {
		c.runAttempt(ctx, run, attempt, tasks)

		waveResults := make([]executor.TaskResult, 0, len(wave))
		for _, name := range wave {
			waveResults = append(waveResults, run.Results[name])
		}

		cp := gate.Evaluate(waveResults, c.opts.QualityThreshold, run.RetryBudget)
		run.Checkpoints = append(run.Checkpoints, cp)

		c.publish(events.TopicWave, events.WaveEvaluated{
			Run:            run.ID,
			Wave:           run.WavesExecuted,
			Decision:       string(cp.Decision),
			AverageQuality: cp.Metrics.AverageQuality,
			SuccessRate:    cp.Metrics.SuccessRate,
			Timestamp:      time.Now(),
		})
		c.logger.Info("quality checkpoint", "run", run.ID, "wave", run.WavesExecuted, "summary", cp.Describe())

		if cp.Decision != quality.DecisionRetry {
			return cp.Decision, replanned
		}

		attempt = attempt[:0]
		for _, hint := range cp.Improvements {
			run.RetryBudget[hint.TaskName]--
			if c.applyImprovement(tasks, hint) {
				replanned = true
			}
			attempt = append(attempt, hint.TaskName)
			c.logger.Info("retrying task with improvement",
				"run", run.ID,
				"task", hint.TaskName,
				"issue", hint.Issue,
				"strategy", hint.Strategy,
				"budget_left", run.RetryBudget[hint.TaskName])
		}
	}
}

// applyImprovement adjusts the coordinator's private task copy per the
// gate's strategy. Reports whether the duration estimate changed.
func (c *Coordinator) applyImprovement(tasks map[string]scheduler.Task, hint quality.Improvement) bool {
	t, ok := tasks[hint.TaskName]
	if !ok {
		return false
	}
	switch hint.Strategy {
	case quality.StrategyIncreaseTimeout:
		if t.Timeout > 0 {
			t.Timeout *= 2
		}
		t.EstimatedDuration += t.EstimatedDuration / 2
		tasks[hint.TaskName] = t
		return true
	default:
		// Validation context and diagnostics hints are advisory; the run
		// callback observes them through the retry itself.
		return false
	}
}

// runAttempt executes a set of task names through the engine and folds the
// results into the accumulator.
func (c *Coordinator) runAttempt(ctx context.Context, run *Run, names []string, tasks map[string]scheduler.Task) {
	for _, name := range names {
		c.publish(events.TopicTask, events.TaskStarted{
			Run:       run.ID,
			Task:      name,
			Wave:      run.WavesExecuted,
			Timestamp: time.Now(),
		})
	}

	results := c.engine.RunWave(ctx, scheduler.Wave(names), tasks, c.opts.Runner)
	for _, res := range results {
		run.Results[res.TaskName] = res
		add(ctx, c.tasksTotal, 1)
		if res.Status != executor.StatusSuccess {
			add(ctx, c.tasksFailed, 1)
		}
		c.publish(events.TopicTask, events.TaskFinished{
			Run:          run.ID,
			Task:         res.TaskName,
			Wave:         run.WavesExecuted,
			Status:       string(res.Status),
			QualityScore: res.QualityScore,
			Duration:     res.Duration,
			Timestamp:    time.Now(),
		})
	}
}

func (c *Coordinator) finish(ctx context.Context, run *Run, status RunStatus) *Run {
	run.Status = status
	run.FinishedAt = time.Now()

	c.publish(events.TopicPipeline, events.PipelineFinished{
		Run:       run.ID,
		Status:    string(status),
		Waves:     run.WavesExecuted,
		Elapsed:   run.Elapsed(),
		Timestamp: time.Now(),
	})
	c.logger.Info("pipeline finished",
		"run", run.ID,
		"status", status,
		"waves", run.WavesExecuted,
		"results", len(run.Results),
		"elapsed", run.Elapsed())
	return run
}

func (c *Coordinator) publish(topic string, event events.Event) {
	if c.opts.Bus != nil {
		c.opts.Bus.Publish(topic, event)
	}
}

func waveHasFailure(run *Run, wave scheduler.Wave) bool {
	for _, name := range wave {
		if run.Results[name].Status != executor.StatusSuccess {
			return true
		}
	}
	return false
}

func waveWeights(wave scheduler.Wave, tasks map[string]scheduler.Task) map[string]float64 {
	weights := make(map[string]float64, len(wave))
	for _, name := range wave {
		weights[name] = tasks[name].QualityWeight
	}
	return weights
}

func taskValues(tasks map[string]scheduler.Task) []scheduler.Task {
	out := make([]scheduler.Task, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t)
	}
	return out
}

func counter(name, description, unit string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		return nil
	}
	return c
}

func add(ctx context.Context, c metric.Int64Counter, n int64) {
	if c != nil {
		c.Add(ctx, n)
	}
}
