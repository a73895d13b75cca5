package config

// RetryConfig tunes the executor's transient-failure backoff, expressed in
// milliseconds so the JSON stays plain numbers.
type RetryConfig struct {
	InitialIntervalMS   int     `json:"initial_interval_ms,omitempty"`
	MaxIntervalMS       int     `json:"max_interval_ms,omitempty"`
	MaxElapsedTimeMS    int     `json:"max_elapsed_time_ms,omitempty"`
	Multiplier          float64 `json:"multiplier,omitempty"`
	RandomizationFactor float64 `json:"randomization_factor,omitempty"`
}

// Config is the top-level configuration for a pipeline run.
type Config struct {
	// MaxConcurrency bounds how many tasks share a wave. Clamped to 1..16.
	MaxConcurrency int `json:"max_concurrency,omitempty"`

	// GlobalConcurrency is the run-wide in-flight ceiling. Defaults to
	// MaxConcurrency when zero.
	GlobalConcurrency int `json:"global_concurrency,omitempty"`

	// QualityThreshold is the 0-100 acceptability line for wave gates.
	QualityThreshold int `json:"quality_threshold,omitempty"`

	// Resilient enables the backoff/circuit-breaker wrapper around the
	// run callback.
	Resilient bool `json:"resilient,omitempty"`

	Retry RetryConfig `json:"retry,omitempty"`

	// HistoryDB is the SQLite path for recording finished runs.
	// Empty disables history.
	HistoryDB string `json:"history_db,omitempty"`
}
