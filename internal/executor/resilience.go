package executor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/wavegate/wavegate/internal/scheduler"
)

// RetryConfig configures exponential backoff for transient failures inside
// a single engine attempt. These retries are internal to the run callback
// and fully independent of the quality gate's MaxRetries budget.
type RetryConfig struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	MaxElapsedTime      time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// BreakerRegistry manages circuit breakers keyed by resource class, so
// tasks pounding the same kind of failing resource trip together.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	logger   *slog.Logger
}

// NewBreakerRegistry creates a new breaker registry.
func NewBreakerRegistry(logger *slog.Logger) *BreakerRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &BreakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		logger:   logger,
	}
}

// Get returns the circuit breaker for the given key, creating it on first use.
func (r *BreakerRegistry) Get(key string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[key]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        key,
		MaxRequests: 3,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// User cancellation is not a resource failure.
			return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})

	r.breakers[key] = cb
	return cb
}

// ResilientRunner wraps a RunFunc with exponential backoff and per-resource
// circuit breaking. Failed results are treated as transient and retried
// until the policy gives up, at which point the last result is returned.
type ResilientRunner struct {
	run      RunFunc
	breakers *BreakerRegistry
	retry    RetryConfig
}

// NewResilientRunner creates a ResilientRunner around run.
func NewResilientRunner(run RunFunc, retry RetryConfig, logger *slog.Logger) *ResilientRunner {
	return &ResilientRunner{
		run:      run,
		breakers: NewBreakerRegistry(logger),
		retry:    retry,
	}
}

// Run executes the wrapped callback as a RunFunc.
func (r *ResilientRunner) Run(ctx context.Context, task scheduler.Task) TaskResult {
	cb := r.breakers.Get(breakerKey(task))

	var last TaskResult
	haveResult := false

	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}

		out, err := cb.Execute(func() (interface{}, error) {
			res := r.run(ctx, task)
			if res.Status == StatusFailed {
				return res, errors.New(firstError(res))
			}
			return res, nil
		})

		if res, ok := out.(TaskResult); ok {
			last = res
			haveResult = true
		}

		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.retry.InitialInterval
	policy.MaxInterval = r.retry.MaxInterval
	policy.MaxElapsedTime = r.retry.MaxElapsedTime
	policy.Multiplier = r.retry.Multiplier
	policy.RandomizationFactor = r.retry.RandomizationFactor

	err := backoff.Retry(operation, backoff.WithContext(policy, ctx))
	if err != nil && !haveResult {
		// The breaker rejected the call before the callback ever ran.
		return TaskResult{
			TaskName: task.Name,
			Status:   StatusFailed,
			Errors:   []string{err.Error()},
		}
	}
	return last
}

func breakerKey(task scheduler.Task) string {
	if class := scheduler.DominantClass(task.ResourceHints); class != scheduler.ResourceNone {
		return string(class)
	}
	return "default"
}

func firstError(res TaskResult) string {
	if len(res.Errors) > 0 {
		return res.Errors[0]
	}
	return "task failed"
}
