package middleware

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/chaeminyu/monolithic-petclinic/internal/observability"
)

// EdgeBreakerStateFunc is called when the edge breaker changes state.
type EdgeBreakerStateFunc func(name string, state int)

// EdgeBreaker sheds inbound load when the gateway as a whole keeps
// producing server errors. It is distinct from the per-backend breakers
// that drive fallback routing: this one sits at the edge and guards
// the gateway itself.
type EdgeBreaker struct {
	cb            *gobreaker.CircuitBreaker
	logger        observability.Logger
	stateCallback EdgeBreakerStateFunc
}

// EdgeBreakerOption is a functional option for configuring the edge breaker.
type EdgeBreakerOption func(*EdgeBreaker)

// WithEdgeBreakerLogger sets the logger for the edge breaker.
func WithEdgeBreakerLogger(logger observability.Logger) EdgeBreakerOption {
	return func(eb *EdgeBreaker) {
		eb.logger = logger
	}
}

// WithEdgeBreakerStateCallback sets a callback for state changes.
func WithEdgeBreakerStateCallback(fn EdgeBreakerStateFunc) EdgeBreakerOption {
	return func(eb *EdgeBreaker) {
		eb.stateCallback = fn
	}
}

// NewEdgeBreaker creates an edge breaker that trips when at least
// threshold requests have been seen and half of them failed.
func NewEdgeBreaker(name string, threshold int, timeout time.Duration, opts ...EdgeBreakerOption) *EdgeBreaker {
	eb := &EdgeBreaker{
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(eb)
	}

	thresholdU32 := safeIntToUint32(threshold)

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: thresholdU32,
		Interval:    timeout,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= thresholdU32 && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			eb.logger.Info("edge breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)

			if eb.stateCallback != nil {
				eb.stateCallback(name, int(to))
			}
		},
	}

	eb.cb = gobreaker.NewCircuitBreaker(settings)
	return eb
}

// safeIntToUint32 safely converts int to uint32.
func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > int(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n)
}

// State returns the current state of the edge breaker.
func (eb *EdgeBreaker) State() gobreaker.State {
	return eb.cb.State()
}

// EdgeBreakerMiddleware returns a middleware that sheds load through
// the edge breaker. A 5xx response counts as a failure.
func EdgeBreakerMiddleware(eb *EdgeBreaker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, err := eb.cb.Execute(func() (interface{}, error) {
				rw := &responseWriter{
					ResponseWriter: w,
					status:         http.StatusOK,
				}
				next.ServeHTTP(rw, r)

				if rw.status >= http.StatusInternalServerError {
					return nil, fmt.Errorf("upstream status %d", rw.status)
				}
				return nil, nil
			})

			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				eb.logger.Warn("edge breaker rejected request",
					observability.String("path", r.URL.Path),
				)

				w.Header().Set(HeaderContentType, ContentTypeJSON)
				w.Header().Set(HeaderRetryAfter, "1")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = io.WriteString(w, ErrServiceOverloaded)
			}
		})
	}
}
