package circuitbreaker

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMustRegister_MetricsAreScrapeable(t *testing.T) {
	registry := prometheus.NewRegistry()
	MustRegister(registry)

	cb := NewCircuitBreaker("current-service", testConfig(), zap.NewNop())
	require.True(t, cb.Allow())
	cb.RecordSuccess(time.Millisecond)

	rec := httptest.NewRecorder()
	promhttp.HandlerFor(registry, promhttp.HandlerOpts{}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "backend_breaker_decisions_total"))
	assert.True(t, strings.Contains(body, "backend_breaker_outcomes_total"))
}

func TestMustRegister_TransitionsAreScrapeable(t *testing.T) {
	registry := prometheus.NewRegistry()
	MustRegister(registry)

	cb := NewCircuitBreaker("legacy-service", testConfig(), zap.NewNop())
	for i := 0; i < 10; i++ {
		cb.RecordFailure(time.Millisecond, "timeout")
	}
	require.Equal(t, StateOpen, cb.State())

	rec := httptest.NewRecorder()
	promhttp.HandlerFor(registry, promhttp.HandlerOpts{}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "backend_breaker_transitions_total"))
	assert.True(t, strings.Contains(body, "backend_breaker_state"))
}
