package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// BreakerState shows the current state of each breaker.
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backend_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"dependency"},
	)

	// BreakerDecisionsTotal counts permit/reject decisions.
	BreakerDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_breaker_decisions_total",
			Help: "Total permit/reject decisions made by circuit breakers",
		},
		[]string{"dependency", "decision"},
	)

	// BreakerOutcomesTotal counts recorded call outcomes.
	BreakerOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_breaker_outcomes_total",
			Help: "Total call outcomes recorded by circuit breakers",
		},
		[]string{"dependency", "result"},
	)

	// BreakerTransitionsTotal counts state transitions.
	BreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_breaker_transitions_total",
			Help: "Total circuit breaker state transitions",
		},
		[]string{"dependency", "from", "to"},
	)
)

// MustRegister registers the breaker metrics with reg. The gateway
// serves its own metrics registry rather than the default one, so
// these metrics only become scrapeable once registered there.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		BreakerState,
		BreakerDecisionsTotal,
		BreakerOutcomesTotal,
		BreakerTransitionsTotal,
	)
}

// RecordDecision records a permit/reject decision.
func RecordDecision(name string, allowed bool) {
	decision := "permit"
	if !allowed {
		decision = "reject"
	}
	BreakerDecisionsTotal.WithLabelValues(name, decision).Inc()
}

// RecordOutcome records a call outcome.
func RecordOutcome(name string, outcome Outcome) {
	result := "success"
	if !outcome.Success {
		result = "failure"
	}
	BreakerOutcomesTotal.WithLabelValues(name, result).Inc()
}

// RecordStateChange records a state transition.
func RecordStateChange(name string, from, to State) {
	BreakerTransitionsTotal.WithLabelValues(name, from.String(), to.String()).Inc()
	BreakerState.WithLabelValues(name).Set(float64(to))
}
