package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	flagMaxConcurrency   int
	flagQualityThreshold int
	flagHistoryDB        string
	flagTimeScale        float64
	flagResilient        bool

	rootCmd = &cobra.Command{
		Use:   "wavegate",
		Short: "Dependency-graph pipeline runner with per-wave quality gates",
		Long: `wavegate schedules a set of interdependent tasks into concurrency-bounded
waves, executes each wave, and applies a quality gate after every wave that
decides whether to continue, retry failing tasks with adjusted parameters,
or abort the pipeline.`,
		SilenceUsage: true,
	}

	runCmd = &cobra.Command{
		Use:   "run <tasks.json>",
		Short: "Execute a pipeline from a task definition file",
		Args:  cobra.ExactArgs(1),
		RunE:  runPipeline,
	}

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "List recorded pipeline runs",
		Args:  cobra.NoArgs,
		RunE:  listHistory,
	}
)

func init() {
	runCmd.Flags().IntVar(&flagMaxConcurrency, "max-concurrency", 0, "max tasks per wave (1-16, overrides config)")
	runCmd.Flags().IntVar(&flagQualityThreshold, "quality-threshold", 0, "quality gate threshold 0-100 (overrides config)")
	runCmd.Flags().StringVar(&flagHistoryDB, "history-db", "", "SQLite path for run history (overrides config)")
	runCmd.Flags().Float64Var(&flagTimeScale, "time-scale", 0, "simulated execution: sleep estimated duration scaled by this factor")
	runCmd.Flags().BoolVar(&flagResilient, "resilient", false, "wrap execution with backoff retry and circuit breaking")
	historyCmd.Flags().StringVar(&flagHistoryDB, "history-db", "", "SQLite path for run history (overrides config)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	// A missing .env is fine; it only supplies WAVEGATE_* overrides.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
