// Package quality implements the per-wave quality gate: a pure decision
// function over a wave's results that tells the coordinator to continue,
// abort, or retry the failing subset with improvement hints.
package quality

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wavegate/wavegate/internal/executor"
)

// Decision is the gate's verdict for one wave.
type Decision string

const (
	DecisionContinue Decision = "continue"
	DecisionAbort    Decision = "abort"
	DecisionRetry    Decision = "retry_with_improvements"
)

// Metrics summarizes a wave's results for reporting and debugging.
type Metrics struct {
	AverageQuality   float64
	SuccessRate      float64
	CriticalFailures []string
	Distribution     map[string]int // score bucket -> count
}

// Improvement is a per-task mitigation hint attached to a retry decision.
type Improvement struct {
	TaskName string
	Issue    string
	Strategy string
}

// Checkpoint is the gate's full output for one wave. Improvements is
// populated only when Decision is DecisionRetry.
type Checkpoint struct {
	Decision     Decision
	Metrics      Metrics
	Improvements []Improvement
}

// Issue classifications and their suggested mitigations.
const (
	IssueTimeout   = "timeout"
	IssueLowScore  = "low quality score"
	IssueExecution = "execution failure"

	StrategyIncreaseTimeout = "increase timeout"
	StrategyAddValidation   = "add validation context"
	StrategyIsolate         = "isolate failing step and add diagnostics"
)

// Gate evaluates wave results against a quality threshold. Weights maps
// task names to their QualityWeight; missing or non-positive entries count
// as 1 so the default is a uniform average.
type Gate struct {
	Weights map[string]float64
}

// Evaluate inspects one wave's results and produces a checkpoint. The
// decision rules apply in fixed priority order:
//
//  1. any critical failure (failed with score below half the threshold)
//     aborts regardless of averages;
//  2. average quality at threshold with a success rate of at least 0.8
//     continues;
//  3. a near-miss average (>= 0.9 * threshold) with every task succeeding
//     continues, to avoid flapping on borderline scores; a failed task
//     never rides through on a high wave average;
//  4. if every failing task still has retry budget, retry with one
//     improvement hint per failing task;
//  5. otherwise abort, out of budget.
//
// Evaluate is pure: acting on the decision and decrementing budgets is the
// coordinator's job.
func (g *Gate) Evaluate(results []executor.TaskResult, threshold int, retryBudget map[string]int) Checkpoint {
	metrics := g.computeMetrics(results, threshold)
	failing := failingTasks(results)

	switch {
	case len(metrics.CriticalFailures) > 0:
		return Checkpoint{Decision: DecisionAbort, Metrics: metrics}

	case metrics.AverageQuality >= float64(threshold) && metrics.SuccessRate >= 0.8:
		return Checkpoint{Decision: DecisionContinue, Metrics: metrics}

	case metrics.AverageQuality >= float64(threshold)*0.9 && len(failing) == 0:
		return Checkpoint{Decision: DecisionContinue, Metrics: metrics}

	case len(failing) > 0 && allHaveBudget(failing, retryBudget):
		return Checkpoint{
			Decision:     DecisionRetry,
			Metrics:      metrics,
			Improvements: improvements(failing),
		}

	default:
		return Checkpoint{Decision: DecisionAbort, Metrics: metrics}
	}
}

// computeMetrics derives the wave aggregates. The average is weighted by
// per-task QualityWeight; an empty wave averages to zero.
func (g *Gate) computeMetrics(results []executor.TaskResult, threshold int) Metrics {
	m := Metrics{Distribution: make(map[string]int)}
	if len(results) == 0 {
		return m
	}

	var weightedSum, totalWeight float64
	succeeded := 0
	for _, res := range results {
		w := 1.0
		if g.Weights != nil {
			if gw, ok := g.Weights[res.TaskName]; ok && gw > 0 {
				w = gw
			}
		}
		weightedSum += w * float64(res.QualityScore)
		totalWeight += w

		if res.Status == executor.StatusSuccess {
			succeeded++
		}
		if res.Status == executor.StatusFailed && res.QualityScore < threshold/2 {
			m.CriticalFailures = append(m.CriticalFailures, res.TaskName)
		}
		m.Distribution[scoreBucket(res.QualityScore)]++
	}
	sort.Strings(m.CriticalFailures)

	if totalWeight > 0 {
		m.AverageQuality = weightedSum / totalWeight
	}
	m.SuccessRate = float64(succeeded) / float64(len(results))
	return m
}

// failingTasks returns results with any non-success status, sorted by name.
func failingTasks(results []executor.TaskResult) []executor.TaskResult {
	var failing []executor.TaskResult
	for _, res := range results {
		if res.Status != executor.StatusSuccess {
			failing = append(failing, res)
		}
	}
	sort.Slice(failing, func(i, j int) bool { return failing[i].TaskName < failing[j].TaskName })
	return failing
}

func allHaveBudget(failing []executor.TaskResult, retryBudget map[string]int) bool {
	for _, res := range failing {
		if retryBudget[res.TaskName] <= 0 {
			return false
		}
	}
	return true
}

// improvements classifies why each failing task failed and suggests a
// mitigation the coordinator can apply before the retry.
func improvements(failing []executor.TaskResult) []Improvement {
	hints := make([]Improvement, 0, len(failing))
	for _, res := range failing {
		hints = append(hints, classify(res))
	}
	return hints
}

func classify(res executor.TaskResult) Improvement {
	if res.Status == executor.StatusQualityFailed {
		return Improvement{TaskName: res.TaskName, Issue: IssueLowScore, Strategy: StrategyAddValidation}
	}
	for _, msg := range res.Errors {
		if strings.Contains(msg, "timeout") {
			return Improvement{TaskName: res.TaskName, Issue: IssueTimeout, Strategy: StrategyIncreaseTimeout}
		}
	}
	return Improvement{TaskName: res.TaskName, Issue: IssueExecution, Strategy: StrategyIsolate}
}

func scoreBucket(score int) string {
	switch {
	case score >= 75:
		return "75-100"
	case score >= 50:
		return "50-74"
	case score >= 25:
		return "25-49"
	default:
		return "0-24"
	}
}

// Describe renders a one-line human summary of a checkpoint, used in logs.
func (c Checkpoint) Describe() string {
	return fmt.Sprintf("decision=%s avg=%.1f success=%.2f critical=%d",
		c.Decision, c.Metrics.AverageQuality, c.Metrics.SuccessRate, len(c.Metrics.CriticalFailures))
}
