package executor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wavegate/wavegate/internal/scheduler"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     time.Millisecond,
		MaxInterval:         5 * time.Millisecond,
		MaxElapsedTime:      200 * time.Millisecond,
		Multiplier:          2.0,
		RandomizationFactor: 0,
	}
}

// scriptedRun returns results from the script in order, repeating the last
// entry once exhausted.
func scriptedRun(calls *atomic.Int32, script ...TaskResult) RunFunc {
	return func(ctx context.Context, task scheduler.Task) TaskResult {
		n := int(calls.Add(1)) - 1
		if n >= len(script) {
			n = len(script) - 1
		}
		res := script[n]
		res.TaskName = task.Name
		return res
	}
}

// TestResilientRunner_TransientThenSuccess verifies failed results are
// retried until the callback succeeds.
func TestResilientRunner_TransientThenSuccess(t *testing.T) {
	var calls atomic.Int32
	runner := NewResilientRunner(scriptedRun(&calls,
		TaskResult{Status: StatusFailed, Errors: []string{"transient 1"}},
		TaskResult{Status: StatusFailed, Errors: []string{"transient 2"}},
		TaskResult{Status: StatusSuccess},
	), fastRetryConfig(), nil)

	res := runner.Run(context.Background(), scheduler.Task{Name: "flaky"})

	if res.Status != StatusSuccess {
		t.Fatalf("expected success after retries, got %q (%v)", res.Status, res.Errors)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 calls (2 failures + 1 success), got %d", got)
	}
}

// TestResilientRunner_QualityFailureNotRetried verifies only hard failures
// count as transient; a quality failure is returned as-is.
func TestResilientRunner_QualityFailureNotRetried(t *testing.T) {
	var calls atomic.Int32
	runner := NewResilientRunner(scriptedRun(&calls,
		TaskResult{Status: StatusQualityFailed, QualityScore: 40},
	), fastRetryConfig(), nil)

	res := runner.Run(context.Background(), scheduler.Task{Name: "mediocre"})

	if res.Status != StatusQualityFailed {
		t.Fatalf("expected quality failure passthrough, got %q", res.Status)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 call, got %d", got)
	}
}

// TestResilientRunner_ExhaustedReturnsLastResult verifies the last failed
// result comes back when the retry policy gives up.
func TestResilientRunner_ExhaustedReturnsLastResult(t *testing.T) {
	cfg := fastRetryConfig()
	cfg.MaxElapsedTime = 20 * time.Millisecond

	var calls atomic.Int32
	runner := NewResilientRunner(scriptedRun(&calls,
		TaskResult{Status: StatusFailed, Errors: []string{"persistent"}},
	), cfg, nil)

	res := runner.Run(context.Background(), scheduler.Task{Name: "doomed"})

	if res.Status != StatusFailed {
		t.Fatalf("expected failed result, got %q", res.Status)
	}
	if len(res.Errors) == 0 || res.Errors[0] != "persistent" {
		t.Errorf("expected last failure preserved, got %v", res.Errors)
	}
	if calls.Load() < 2 {
		t.Errorf("expected at least one retry, got %d calls", calls.Load())
	}
}

// TestResilientRunner_ContextCancelled verifies cancellation stops the
// retry loop promptly.
func TestResilientRunner_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	runner := NewResilientRunner(scriptedRun(&calls,
		TaskResult{Status: StatusFailed, Errors: []string{"never retried"}},
	), fastRetryConfig(), nil)

	res := runner.Run(ctx, scheduler.Task{Name: "cancelled"})

	if res.Status != StatusFailed {
		t.Fatalf("expected failed result, got %q", res.Status)
	}
	if got := calls.Load(); got > 1 {
		t.Errorf("expected at most 1 call under cancelled context, got %d", got)
	}
}

// TestBreakerRegistry_SharedPerKey verifies tasks with the same dominant
// resource class share one breaker.
func TestBreakerRegistry_SharedPerKey(t *testing.T) {
	reg := NewBreakerRegistry(nil)

	if reg.Get("io") != reg.Get("io") {
		t.Error("expected the same breaker for the same key")
	}
	if reg.Get("io") == reg.Get("cpu") {
		t.Error("expected distinct breakers for distinct keys")
	}
}

// TestBreakerKey verifies breaker keying by dominant resource class.
func TestBreakerKey(t *testing.T) {
	tests := []struct {
		name  string
		hints map[scheduler.ResourceClass]int
		want  string
	}{
		{"no hints", nil, "default"},
		{"io dominant", map[scheduler.ResourceClass]int{scheduler.ResourceCPU: 1, scheduler.ResourceIO: 5}, "io"},
		{"cpu only", map[scheduler.ResourceClass]int{scheduler.ResourceCPU: 2}, "cpu"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := breakerKey(scheduler.Task{Name: "t", ResourceHints: tt.hints})
			if got != tt.want {
				t.Errorf("expected key %q, got %q", tt.want, got)
			}
		})
	}
}
