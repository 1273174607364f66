package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaeminyu/monolithic-petclinic/internal/observability"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	var captured string
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = observability.RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/owners", nil))

	assert.NotEmpty(t, captured)
	assert.Equal(t, captured, rec.Header().Get(RequestIDHeader))
}

func TestRequestID_PreservesExisting(t *testing.T) {
	handler := RequestID()(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/owners", nil)
	req.Header.Set(RequestIDHeader, "abc-123")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestRecovery_CatchesPanic(t *testing.T) {
	handler := Recovery(observability.NopLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/owners", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}

func TestLogging_PassesThrough(t *testing.T) {
	handler := Logging(observability.NopLogger())(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/owners", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestRateLimit_Global(t *testing.T) {
	rl := NewRateLimiter(1, 1, false)
	handler := RateLimit(rl)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/owners", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/owners", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get(HeaderRetryAfter))
}

func TestRateLimit_PerClientIsolation(t *testing.T) {
	rl := NewRateLimiter(1, 1, true)
	defer rl.Stop()
	handler := RateLimit(rl)(okHandler())

	reqA := httptest.NewRequest(http.MethodGet, "/owners", nil)
	reqA.RemoteAddr = "10.0.0.1:1000"
	reqB := httptest.NewRequest(http.MethodGet, "/owners", nil)
	reqB.RemoteAddr = "10.0.0.2:1000"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, reqA)
	assert.Equal(t, http.StatusOK, rec.Code)

	// A second client has its own bucket.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, reqB)
	assert.Equal(t, http.StatusOK, rec.Code)

	// The first client is now exhausted.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, reqA)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1", getClientIP(r))

	r.Header.Set("X-Real-IP", "10.0.0.2")
	assert.Equal(t, "10.0.0.2", getClientIP(r))

	r.Header.Set("X-Forwarded-For", "10.0.0.3, 10.0.0.4")
	assert.Equal(t, "10.0.0.3", getClientIP(r))
}

func TestEdgeBreaker_TripsOnServerErrors(t *testing.T) {
	eb := NewEdgeBreaker("gateway", 2, time.Minute)
	failing := EdgeBreakerMiddleware(eb)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		failing.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/owners", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	}

	// The breaker is open: requests are shed before the handler runs.
	rec := httptest.NewRecorder()
	failing.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/owners", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "overloaded")
}

func TestEdgeBreaker_StaysClosedOnSuccess(t *testing.T) {
	eb := NewEdgeBreaker("gateway", 2, time.Minute)
	handler := EdgeBreakerMiddleware(eb)(okHandler())

	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/owners", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestEdgeBreaker_StateCallback(t *testing.T) {
	transitions := make(chan int, 4)
	eb := NewEdgeBreaker("gateway", 2, time.Minute,
		WithEdgeBreakerStateCallback(func(name string, state int) {
			transitions <- state
		}),
	)
	failing := EdgeBreakerMiddleware(eb)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		failing.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/owners", nil))
	}

	select {
	case <-transitions:
	case <-time.After(time.Second):
		t.Fatal("expected a state transition")
	}
}
