package circuitbreaker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func testConfig() *Config {
	return DefaultConfig().
		WithWindowSize(10).
		WithFailureRateThreshold(0.5).
		WithWaitDuration(20 * time.Millisecond).
		WithHalfOpenProbes(3)
}

func TestCircuitBreaker_ClosedPermitsCalls(t *testing.T) {
	cb := NewCircuitBreaker("current-service", testConfig(), zap.NewNop())

	for i := 0; i < 100; i++ {
		assert.True(t, cb.Allow())
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker("current-service", testConfig(), zap.NewNop())

	// 5 failures and 4 successes: window not full, still closed.
	for i := 0; i < 5; i++ {
		cb.RecordFailure(time.Millisecond, "timeout")
	}
	for i := 0; i < 4; i++ {
		cb.RecordSuccess(time.Millisecond)
	}
	assert.Equal(t, StateClosed, cb.State())

	// 10th outcome fills the window, rate = 5/10 >= 0.5.
	cb.RecordSuccess(time.Millisecond)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_StaysClosedBelowThreshold(t *testing.T) {
	cb := NewCircuitBreaker("current-service", testConfig(), zap.NewNop())

	for i := 0; i < 4; i++ {
		cb.RecordFailure(time.Millisecond, "status")
	}
	for i := 0; i < 6; i++ {
		cb.RecordSuccess(time.Millisecond)
	}

	// 4/10 < 0.5.
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Allow())
}

func TestCircuitBreaker_WindowSlides(t *testing.T) {
	cb := NewCircuitBreaker("current-service", testConfig(), zap.NewNop())

	// Fill the window with successes, then add failures one by one.
	// The window slides, so it takes 5 failures to reach the threshold.
	for i := 0; i < 10; i++ {
		cb.RecordSuccess(time.Millisecond)
	}
	for i := 0; i < 4; i++ {
		cb.RecordFailure(time.Millisecond, "unreachable")
		assert.Equal(t, StateClosed, cb.State())
	}

	cb.RecordFailure(time.Millisecond, "unreachable")
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_OpenRejects(t *testing.T) {
	config := testConfig().WithWaitDuration(time.Minute)
	cb := NewCircuitBreaker("current-service", config, zap.NewNop())

	for i := 0; i < 10; i++ {
		cb.RecordFailure(time.Millisecond, "timeout")
	}
	assert.Equal(t, StateOpen, cb.State())

	for i := 0; i < 50; i++ {
		assert.False(t, cb.Allow())
	}
}

func TestCircuitBreaker_RejectedCallsDoNotCountTowardWindow(t *testing.T) {
	config := testConfig().WithWaitDuration(time.Minute)
	cb := NewCircuitBreaker("current-service", config, zap.NewNop())

	for i := 0; i < 10; i++ {
		cb.RecordFailure(time.Millisecond, "timeout")
	}
	before := cb.Stats()

	for i := 0; i < 20; i++ {
		cb.Allow()
	}

	after := cb.Stats()
	assert.Equal(t, before.WindowCount, after.WindowCount)
	assert.Equal(t, before.Failures, after.Failures)
}

func TestCircuitBreaker_HalfOpenAfterWait(t *testing.T) {
	cb := NewCircuitBreaker("current-service", testConfig(), zap.NewNop())

	for i := 0; i < 10; i++ {
		cb.RecordFailure(time.Millisecond, "timeout")
	}
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())

	time.Sleep(25 * time.Millisecond)

	assert.True(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker("current-service", testConfig(), zap.NewNop())

	for i := 0; i < 10; i++ {
		cb.RecordFailure(time.Millisecond, "timeout")
	}
	time.Sleep(25 * time.Millisecond)

	// Three permitted probes, all succeeding, close the circuit.
	for i := 0; i < 3; i++ {
		assert.True(t, cb.Allow())
		cb.RecordSuccess(time.Millisecond)
	}

	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Allow())

	// The window was cleared on close: it takes a full new window of
	// failures to open again.
	stats := cb.Stats()
	assert.Equal(t, 0, stats.WindowCount)
	assert.Equal(t, 0, stats.Failures)
}

func TestCircuitBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("current-service", testConfig(), zap.NewNop())

	for i := 0; i < 10; i++ {
		cb.RecordFailure(time.Millisecond, "timeout")
	}
	time.Sleep(25 * time.Millisecond)

	assert.True(t, cb.Allow())
	cb.RecordFailure(time.Millisecond, "timeout")

	assert.Equal(t, StateOpen, cb.State())
	// openedAt was reset, so the breaker rejects again.
	assert.False(t, cb.Allow())
}

func TestCircuitBreaker_HalfOpenProbeBudget(t *testing.T) {
	cb := NewCircuitBreaker("current-service", testConfig(), zap.NewNop())

	for i := 0; i < 10; i++ {
		cb.RecordFailure(time.Millisecond, "timeout")
	}
	time.Sleep(25 * time.Millisecond)

	// Exactly HalfOpenProbes calls are permitted before outcomes arrive.
	assert.True(t, cb.Allow())
	assert.True(t, cb.Allow())
	assert.True(t, cb.Allow())
	assert.False(t, cb.Allow())
	assert.False(t, cb.Allow())
}

func TestCircuitBreaker_HalfOpenProbeBudget_Concurrent(t *testing.T) {
	cb := NewCircuitBreaker("current-service", testConfig(), zap.NewNop())

	for i := 0; i < 10; i++ {
		cb.RecordFailure(time.Millisecond, "timeout")
	}
	time.Sleep(25 * time.Millisecond)

	var mu sync.Mutex
	permitted := 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if cb.Allow() {
				mu.Lock()
				permitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, permitted)
}

func TestCircuitBreaker_ReclaimsAbandonedProbes(t *testing.T) {
	cb := NewCircuitBreaker("current-service", testConfig(), zap.NewNop())

	for i := 0; i < 10; i++ {
		cb.RecordFailure(time.Millisecond, "timeout")
	}
	time.Sleep(25 * time.Millisecond)

	// Consume all probe slots without ever recording an outcome, as a
	// caller that panics between Allow and Record would.
	for i := 0; i < 3; i++ {
		assert.True(t, cb.Allow())
	}
	assert.False(t, cb.Allow())

	// After another wait period the lost slots are reclaimed and the
	// breaker can probe again instead of rejecting forever.
	time.Sleep(25 * time.Millisecond)
	assert.True(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())

	cb.RecordSuccess(time.Millisecond)
	assert.True(t, cb.Allow())
	cb.RecordSuccess(time.Millisecond)
	assert.True(t, cb.Allow())
	cb.RecordSuccess(time.Millisecond)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker("current-service", testConfig(), zap.NewNop())

	for i := 0; i < 10; i++ {
		cb.RecordFailure(time.Millisecond, "timeout")
	}
	assert.Equal(t, StateOpen, cb.State())

	cb.Reset()

	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Allow())
	assert.Equal(t, 0, cb.Stats().WindowCount)
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	var mu sync.Mutex
	var transitions []string
	done := make(chan struct{}, 1)

	config := testConfig().WithOnStateChange(func(name string, from, to State) {
		mu.Lock()
		transitions = append(transitions, from.String()+"->"+to.String())
		mu.Unlock()
		done <- struct{}{}
	})

	cb := NewCircuitBreaker("current-service", config, zap.NewNop())

	for i := 0; i < 10; i++ {
		cb.RecordFailure(time.Millisecond, "timeout")
	}
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"closed->open"}, transitions)
}

func TestCircuitBreaker_DefaultsAppliedForNilConfig(t *testing.T) {
	cb := NewCircuitBreaker("current-service", nil, nil)

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, DefaultWindowSize, cb.config.WindowSize)
	assert.Equal(t, DefaultHalfOpenProbes, cb.config.HalfOpenProbes)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(42).String())
}
