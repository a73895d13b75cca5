package config

// DefaultConfig returns the baseline configuration. Loaded files and
// environment overrides merge on top of these values.
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrency:    4,
		GlobalConcurrency: 8,
		QualityThreshold:  80,
		Retry: RetryConfig{
			InitialIntervalMS:   100,
			MaxIntervalMS:       10_000,
			MaxElapsedTimeMS:    120_000,
			Multiplier:          2.0,
			RandomizationFactor: 0.5,
		},
	}
}
