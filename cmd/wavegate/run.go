package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wavegate/wavegate/internal/config"
	"github.com/wavegate/wavegate/internal/events"
	"github.com/wavegate/wavegate/internal/executor"
	"github.com/wavegate/wavegate/internal/history"
	"github.com/wavegate/wavegate/internal/pipeline"
	"github.com/wavegate/wavegate/internal/scheduler"
	"github.com/wavegate/wavegate/internal/taskdef"
	"github.com/wavegate/wavegate/internal/telemetry"
)

// runSummary is the JSON document printed to stdout after a run.
type runSummary struct {
	RunID    string                 `json:"run_id"`
	Status   string                 `json:"status"`
	Waves    int                    `json:"waves_executed"`
	Planned  int                    `json:"waves_planned"`
	Elapsed  string                 `json:"elapsed"`
	Critical []string               `json:"critical_path"`
	Results  map[string]taskSummary `json:"results"`
	Budget   map[string]int         `json:"retry_budget_remaining,omitempty"`
}

type taskSummary struct {
	Status   string   `json:"status"`
	Score    int      `json:"quality_score"`
	Duration string   `json:"duration"`
	Errors   []string `json:"errors,omitempty"`
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.LoadDefault()
	if err != nil {
		return err
	}
	applyFlags(cfg)

	logger, shutdown, err := telemetry.Setup(ctx, os.Stderr)
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			fmt.Fprintf(os.Stderr, "telemetry shutdown error: %v\n", err)
		}
	}()

	tasks, err := taskdef.Load(args[0])
	if err != nil {
		return err
	}

	bus := events.NewBus()
	defer bus.Close()
	go logEvents(bus.SubscribeAll(0), logger)

	runner := simulatedRunner(flagTimeScale)
	if cfg.Resilient {
		runner = executor.NewResilientRunner(runner, retryConfig(cfg.Retry), logger).Run
	}

	coord, err := pipeline.New(pipeline.Options{
		Runner:            runner,
		MaxConcurrency:    cfg.MaxConcurrency,
		GlobalConcurrency: cfg.GlobalConcurrency,
		QualityThreshold:  cfg.QualityThreshold,
		Scorer:            executor.PassthroughScorer,
		Logger:            logger,
		Bus:               bus,
	})
	if err != nil {
		return err
	}

	run, runErr := coord.Run(ctx, tasks)
	if run == nil {
		return runErr
	}

	if cfg.HistoryDB != "" {
		if err := saveHistory(ctx, cfg.HistoryDB, run); err != nil {
			logger.Error("failed to record run history", "error", err)
		}
	}

	if err := printSummary(run); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	if !run.Completed() {
		return fmt.Errorf("pipeline %s after %d wave(s)", run.Status, run.WavesExecuted)
	}
	return nil
}

func listHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadDefault()
	if err != nil {
		return err
	}
	applyFlags(cfg)
	if cfg.HistoryDB == "" {
		return fmt.Errorf("no history database configured (set history_db or --history-db)")
	}

	store, err := history.Open(cmd.Context(), cfg.HistoryDB)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(cmd.Context())
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(runs)
}

func applyFlags(cfg *config.Config) {
	if flagMaxConcurrency > 0 {
		cfg.MaxConcurrency = flagMaxConcurrency
	}
	if flagQualityThreshold > 0 {
		cfg.QualityThreshold = flagQualityThreshold
	}
	if flagHistoryDB != "" {
		cfg.HistoryDB = flagHistoryDB
	}
	if flagResilient {
		cfg.Resilient = true
	}
	_ = cfg.Validate()
}

// simulatedRunner succeeds every task, optionally sleeping its estimated
// duration scaled by factor. Real embedders supply their own RunFunc; the
// CLI exists to exercise planning, wave execution, and gating end to end.
func simulatedRunner(factor float64) executor.RunFunc {
	return func(ctx context.Context, task scheduler.Task) executor.TaskResult {
		if factor > 0 && task.EstimatedDuration > 0 {
			delay := time.Duration(float64(task.EstimatedDuration) * factor)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return executor.TaskResult{
					TaskName: task.Name,
					Status:   executor.StatusFailed,
					Errors:   []string{ctx.Err().Error()},
				}
			}
		}
		return executor.TaskResult{TaskName: task.Name, Status: executor.StatusSuccess}
	}
}

func retryConfig(rc config.RetryConfig) executor.RetryConfig {
	out := executor.DefaultRetryConfig()
	if rc.InitialIntervalMS > 0 {
		out.InitialInterval = time.Duration(rc.InitialIntervalMS) * time.Millisecond
	}
	if rc.MaxIntervalMS > 0 {
		out.MaxInterval = time.Duration(rc.MaxIntervalMS) * time.Millisecond
	}
	if rc.MaxElapsedTimeMS > 0 {
		out.MaxElapsedTime = time.Duration(rc.MaxElapsedTimeMS) * time.Millisecond
	}
	if rc.Multiplier > 0 {
		out.Multiplier = rc.Multiplier
	}
	if rc.RandomizationFactor > 0 {
		out.RandomizationFactor = rc.RandomizationFactor
	}
	return out
}

func saveHistory(ctx context.Context, path string, run *pipeline.Run) error {
	store, err := history.Open(ctx, path)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.SaveRun(ctx, run)
}

func printSummary(run *pipeline.Run) error {
	summary := runSummary{
		RunID:    run.ID,
		Status:   string(run.Status),
		Waves:    run.WavesExecuted,
		Planned:  len(run.Schedule.Waves),
		Elapsed:  run.Elapsed().Truncate(time.Millisecond).String(),
		Critical: run.Schedule.CriticalPath,
		Results:  make(map[string]taskSummary, len(run.Results)),
		Budget:   run.RetryBudget,
	}
	for name, res := range run.Results {
		summary.Results[name] = taskSummary{
			Status:   string(res.Status),
			Score:    res.QualityScore,
			Duration: res.Duration.Truncate(time.Millisecond).String(),
			Errors:   res.Errors,
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

func logEvents(ch <-chan events.Event, logger *slog.Logger) {
	for ev := range ch {
		switch e := ev.(type) {
		case events.WaveStarted:
			logger.Info("wave started", "run", e.Run, "wave", e.Wave, "tasks", e.Tasks)
		case events.TaskFinished:
			logger.Info("task finished", "run", e.Run, "task", e.Task, "status", e.Status, "score", e.QualityScore)
		case events.WaveEvaluated:
			logger.Info("wave evaluated", "run", e.Run, "wave", e.Wave, "decision", e.Decision)
		case events.PipelineFinished:
			logger.Info("pipeline finished", "run", e.Run, "status", e.Status, "elapsed", e.Elapsed)
		}
	}
}
