package circuitbreaker

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// State represents the state of a circuit breaker.
type State int

const (
	// StateClosed indicates the circuit is closed and calls are allowed.
	StateClosed State = iota

	// StateOpen indicates the circuit is open and calls are rejected.
	StateOpen

	// StateHalfOpen indicates the circuit is probing the backend.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Outcome is a single call result recorded into the sliding window.
type Outcome struct {
	Success   bool
	Latency   time.Duration
	ErrorKind string
}

// CircuitBreaker tracks recent call outcomes for one named dependency
// and gates calls to it. It never returns an error; its only outputs
// are permit/reject decisions and internal state updates. All state
// checks and transitions happen under one lock so concurrent callers
// cannot race past each other into inconsistent decisions.
type CircuitBreaker struct {
	name   string
	config *Config
	logger *zap.Logger

	mu    sync.Mutex
	state State

	// Sliding window of the last WindowSize outcomes, stored as a ring.
	// Only consulted in closed and half-open states.
	window      []bool
	windowIdx   int
	windowCount int
	failures    int

	openedAt time.Time

	// Half-open probe accounting.
	probesIssued   int
	probeSuccesses int
	lastProbeAt    time.Time
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(name string, config *Config, logger *zap.Logger) *CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}
	config.Validate()

	if logger == nil {
		logger = zap.NewNop()
	}

	return &CircuitBreaker{
		name:   name,
		config: config,
		logger: logger,
		state:  StateClosed,
		window: make([]bool, config.WindowSize),
	}
}

// Allow reports whether a call to the dependency is permitted. In open
// state the half-open transition is checked lazily here; no timers run
// in the background. A permitted call in half-open state consumes one
// probe slot.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	var allowed bool

	switch cb.state {
	case StateClosed:
		allowed = true

	case StateOpen:
		if time.Since(cb.openedAt) >= cb.config.WaitDuration {
			cb.transitionTo(StateHalfOpen)
			cb.probesIssued = 1
			cb.lastProbeAt = time.Now()
			allowed = true
		}

	case StateHalfOpen:
		if cb.probesIssued < cb.config.HalfOpenProbes {
			cb.probesIssued++
			cb.lastProbeAt = time.Now()
			allowed = true
		} else if time.Since(cb.lastProbeAt) >= cb.config.WaitDuration {
			// Every probe slot is taken but no outcome has arrived for a
			// full wait period. The outstanding probes are presumed lost
			// (the caller died between Allow and Record); reclaim their
			// slots so the breaker cannot strand in half-open.
			cb.probesIssued = cb.probeSuccesses + 1
			cb.lastProbeAt = time.Now()
			allowed = true
		}
	}

	RecordDecision(cb.name, allowed)

	return allowed
}

// Record records the outcome of a permitted call. Rejected calls must
// not be recorded; they never count toward the window.
func (cb *CircuitBreaker) Record(outcome Outcome) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	RecordOutcome(cb.name, outcome)

	switch cb.state {
	case StateClosed:
		cb.push(outcome.Success)
		if cb.windowCount == cb.config.WindowSize && cb.failureRate() >= cb.config.FailureRateThreshold {
			cb.transitionTo(StateOpen)
		}

	case StateHalfOpen:
		if outcome.Success {
			cb.probeSuccesses++
			if cb.probeSuccesses >= cb.config.HalfOpenProbes {
				cb.transitionTo(StateClosed)
			}
		} else {
			cb.transitionTo(StateOpen)
		}

	case StateOpen:
		// A late outcome from a call permitted before the circuit
		// opened. The window is not consulted while open.
	}
}

// RecordSuccess records a successful call.
func (cb *CircuitBreaker) RecordSuccess(latency time.Duration) {
	cb.Record(Outcome{Success: true, Latency: latency})
}

// RecordFailure records a failed call.
func (cb *CircuitBreaker) RecordFailure(latency time.Duration, errorKind string) {
	cb.Record(Outcome{Success: false, Latency: latency, ErrorKind: errorKind})
}

// push inserts an outcome into the ring, evicting the oldest entry once
// the window is full.
func (cb *CircuitBreaker) push(success bool) {
	if cb.windowCount == cb.config.WindowSize {
		if !cb.window[cb.windowIdx] {
			cb.failures--
		}
	} else {
		cb.windowCount++
	}

	cb.window[cb.windowIdx] = success
	if !success {
		cb.failures++
	}
	cb.windowIdx = (cb.windowIdx + 1) % cb.config.WindowSize
}

// failureRate returns failures over the full window size. Callers must
// hold the lock and ensure the window is full.
func (cb *CircuitBreaker) failureRate() float64 {
	return float64(cb.failures) / float64(cb.config.WindowSize)
}

// transitionTo moves the breaker to a new state. Callers must hold the
// lock.
func (cb *CircuitBreaker) transitionTo(newState State) {
	oldState := cb.state
	cb.state = newState

	switch newState {
	case StateOpen:
		cb.openedAt = time.Now()
	case StateHalfOpen:
		cb.probesIssued = 0
		cb.probeSuccesses = 0
	case StateClosed:
		cb.clearWindow()
	}

	RecordStateChange(cb.name, oldState, newState)

	cb.logger.Info("circuit breaker state changed",
		zap.String("dependency", cb.name),
		zap.String("from", oldState.String()),
		zap.String("to", newState.String()),
	)

	if cb.config.OnStateChange != nil {
		go cb.config.OnStateChange(cb.name, oldState, newState)
	}
}

// clearWindow discards all recorded outcomes.
func (cb *CircuitBreaker) clearWindow() {
	cb.windowIdx = 0
	cb.windowCount = 0
	cb.failures = 0
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset resets the circuit breaker to closed state with an empty window.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.clearWindow()
	cb.probesIssued = 0
	cb.probeSuccesses = 0

	cb.logger.Info("circuit breaker reset",
		zap.String("dependency", cb.name),
	)
}

// Name returns the dependency name guarded by this breaker.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Stats holds a snapshot of circuit breaker state.
type Stats struct {
	State        State
	WindowCount  int
	Failures     int
	OpenedAt     time.Time
	ProbesIssued int
}

// Stats returns the current statistics of the circuit breaker.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Stats{
		State:        cb.state,
		WindowCount:  cb.windowCount,
		Failures:     cb.failures,
		OpenedAt:     cb.openedAt,
		ProbesIssued: cb.probesIssued,
	}
}

// FailureRate returns the failure rate over the recorded outcomes.
func (s Stats) FailureRate() float64 {
	if s.WindowCount == 0 {
		return 0
	}
	return float64(s.Failures) / float64(s.WindowCount)
}
