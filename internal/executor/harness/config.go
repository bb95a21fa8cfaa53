package harness

import "time"

// Config holds the per-variant tunables.
type Config struct {
	// Timeout is used when the request does not set TimeoutMs.
	Timeout time.Duration
	// ConfidenceFloor is the minimum confidence CanExecute accepts.
	ConfidenceFloor float64
}

// Option configures an executor built on the harness.
type Option func(*Config)

// WithTimeout changes the default timeout. Non-positive durations are
// ignored.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.Timeout = d
		}
	}
}

// WithConfidenceFloor changes the CanExecute floor.
func WithConfidenceFloor(f float64) Option {
	return func(c *Config) { c.ConfidenceFloor = f }
}

// NewConfig starts from a variant's defaults and applies opts.
func NewConfig(timeout time.Duration, floor float64, opts ...Option) Config {
	cfg := Config{Timeout: timeout, ConfidenceFloor: floor}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
