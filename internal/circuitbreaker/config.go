// Package circuitbreaker guards calls to the decomposed backend. It
// implements a sliding-window circuit breaker so a failing backend is
// shed quickly and probed before full recovery.
package circuitbreaker

import (
	"time"
)

// Default breaker settings, matching the reference configuration.
const (
	// DefaultWindowSize is the number of call outcomes kept in the
	// sliding window.
	DefaultWindowSize = 10

	// DefaultFailureRateThreshold is the failure rate at which the
	// circuit opens, evaluated over a full window.
	DefaultFailureRateThreshold = 0.5

	// DefaultWaitDuration is how long the circuit stays open before
	// transitioning to half-open.
	DefaultWaitDuration = 10 * time.Second

	// DefaultHalfOpenProbes is the number of probe calls permitted in
	// half-open state.
	DefaultHalfOpenProbes = 3
)

// Config holds configuration for a circuit breaker.
type Config struct {
	// WindowSize is the size of the sliding window of call outcomes.
	WindowSize int

	// FailureRateThreshold is the failure rate (0.0 to 1.0) at which
	// the circuit opens. The rate is only evaluated once the window
	// holds WindowSize outcomes.
	FailureRateThreshold float64

	// WaitDuration is the duration the circuit stays open before the
	// next call is allowed to probe the backend.
	WaitDuration time.Duration

	// HalfOpenProbes is the maximum number of probe calls permitted
	// while half-open. All probes succeeding closes the circuit; any
	// probe failing reopens it.
	HalfOpenProbes int

	// OnStateChange is called when the circuit breaker state changes.
	OnStateChange func(name string, from, to State)
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		WindowSize:           DefaultWindowSize,
		FailureRateThreshold: DefaultFailureRateThreshold,
		WaitDuration:         DefaultWaitDuration,
		HalfOpenProbes:       DefaultHalfOpenProbes,
	}
}

// Validate clamps invalid values to defaults.
func (c *Config) Validate() error {
	if c.WindowSize < 1 {
		c.WindowSize = DefaultWindowSize
	}
	if c.FailureRateThreshold <= 0 || c.FailureRateThreshold > 1 {
		c.FailureRateThreshold = DefaultFailureRateThreshold
	}
	if c.WaitDuration < time.Millisecond {
		c.WaitDuration = DefaultWaitDuration
	}
	if c.HalfOpenProbes < 1 {
		c.HalfOpenProbes = DefaultHalfOpenProbes
	}
	return nil
}

// WithWindowSize sets the sliding window size.
func (c *Config) WithWindowSize(n int) *Config {
	c.WindowSize = n
	return c
}

// WithFailureRateThreshold sets the failure rate threshold.
func (c *Config) WithFailureRateThreshold(rate float64) *Config {
	c.FailureRateThreshold = rate
	return c
}

// WithWaitDuration sets the open-state wait duration.
func (c *Config) WithWaitDuration(d time.Duration) *Config {
	c.WaitDuration = d
	return c
}

// WithHalfOpenProbes sets the half-open probe budget.
func (c *Config) WithHalfOpenProbes(n int) *Config {
	c.HalfOpenProbes = n
	return c
}

// WithOnStateChange sets the state change callback.
func (c *Config) WithOnStateChange(fn func(name string, from, to State)) *Config {
	c.OnStateChange = fn
	return c
}
