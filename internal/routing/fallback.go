package routing

import (
	"context"

	"github.com/chaeminyu/monolithic-petclinic/internal/backend"
	"github.com/chaeminyu/monolithic-petclinic/internal/circuitbreaker"
	"github.com/chaeminyu/monolithic-petclinic/internal/observability"
	"github.com/chaeminyu/monolithic-petclinic/internal/toggle"
)

// fallbackReasonBreakerOpen marks fallbacks caused by a breaker
// rejection rather than an observed call failure.
const fallbackReasonBreakerOpen = "breaker-open"

// Caller performs a single call against one backend.
type Caller interface {
	Name() string
	Call(ctx context.Context, req *backend.Request) (*backend.Result, error)
}

// Decision is the outcome of routing one request.
type Decision struct {
	Result *backend.Result

	// Backend is the name of the backend that produced the result.
	Backend string

	// FellBack reports whether the legacy fallback served the request
	// after the current backend was rejected or failed.
	FellBack bool
}

// FallbackRouter executes a routing policy: it consults the feature
// toggle, asks the circuit breaker for permission, calls the current
// backend, and falls back to legacy on failure. Per request the legacy
// backend is tried at most once.
type FallbackRouter struct {
	toggles  *toggle.Store
	breakers *circuitbreaker.Registry
	current  Caller
	legacy   Caller
	metrics  *observability.Metrics
	logger   observability.Logger
}

// FallbackOption is a functional option for configuring the router.
type FallbackOption func(*FallbackRouter)

// WithMetrics sets the metrics sink for the router.
func WithMetrics(metrics *observability.Metrics) FallbackOption {
	return func(f *FallbackRouter) {
		f.metrics = metrics
	}
}

// WithLogger sets the logger for the router.
func WithLogger(logger observability.Logger) FallbackOption {
	return func(f *FallbackRouter) {
		f.logger = logger
	}
}

// NewFallbackRouter creates a fallback router over the two backends.
func NewFallbackRouter(
	toggles *toggle.Store,
	breakers *circuitbreaker.Registry,
	current, legacy Caller,
	opts ...FallbackOption,
) *FallbackRouter {
	f := &FallbackRouter{
		toggles:  toggles,
		breakers: breakers,
		current:  current,
		legacy:   legacy,
		logger:   observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Route executes the policy for one request.
//
// Fixed-legacy policies always go to the legacy backend; a failure
// there has no fallback and surfaces as ErrLegacyFailed. Owner-like
// policies go to the current backend when the toggle is enabled and the
// breaker permits; a toggle that is off sends the request to legacy
// without consulting or recording the breaker.
func (f *FallbackRouter) Route(ctx context.Context, policy *Policy, req *backend.Request) (*Decision, error) {
	if policy == nil {
		return nil, &RouteError{Route: req.Path, Err: ErrNoRouteMatched}
	}

	if !policy.IsOwnerLike() {
		return f.callLegacy(ctx, policy, req, false)
	}

	if !f.toggles.IsEnabled(policy.ToggleName) {
		return f.callLegacy(ctx, policy, req, false)
	}

	if !f.breakers.Allow(f.current.Name()) {
		f.logger.Warn("breaker rejected current backend, falling back",
			observability.String("route", policy.PathPrefix),
			observability.String("backend", f.current.Name()),
		)
		f.recordFallback(policy.PathPrefix, fallbackReasonBreakerOpen)
		return f.callLegacy(ctx, policy, req, true)
	}

	result, err := f.current.Call(ctx, req)
	if err == nil {
		f.breakers.Record(f.current.Name(), circuitbreaker.Outcome{
			Success: true,
			Latency: result.Latency,
		})
		f.recordBackendCall(f.current.Name(), true)
		return &Decision{Result: result, Backend: f.current.Name()}, nil
	}

	f.breakers.Record(f.current.Name(), circuitbreaker.Outcome{
		Success:   false,
		ErrorKind: string(backend.KindOf(err)),
	})
	f.recordBackendCall(f.current.Name(), false)
	f.recordFallback(policy.PathPrefix, string(backend.KindOf(err)))

	f.logger.Warn("current backend failed, falling back to legacy",
		observability.String("route", policy.PathPrefix),
		observability.Error(err),
	)

	decision, legacyErr := f.callLegacy(ctx, policy, req, true)
	if legacyErr != nil {
		var final error
		if routeErr, ok := legacyErr.(*RouteError); ok {
			final = routeErr.Final
		}
		return nil, &RouteError{
			Route:   policy.PathPrefix,
			Err:     ErrAggregatedFallback,
			Primary: err,
			Final:   final,
		}
	}
	return decision, nil
}

// callLegacy performs the single legacy call for a request. The breaker
// guards only the current backend, so legacy outcomes are not recorded
// against it.
func (f *FallbackRouter) callLegacy(ctx context.Context, policy *Policy, req *backend.Request, fellBack bool) (*Decision, error) {
	result, err := f.legacy.Call(ctx, req)
	if err != nil {
		f.recordBackendCall(f.legacy.Name(), false)
		return nil, &RouteError{
			Route: policy.PathPrefix,
			Err:   ErrLegacyFailed,
			Final: err,
		}
	}

	f.recordBackendCall(f.legacy.Name(), true)
	return &Decision{Result: result, Backend: f.legacy.Name(), FellBack: fellBack}, nil
}

func (f *FallbackRouter) recordBackendCall(name string, success bool) {
	if f.metrics != nil {
		f.metrics.RecordBackendCall(name, success)
	}
}

func (f *FallbackRouter) recordFallback(route, reason string) {
	if f.metrics != nil {
		f.metrics.RecordFallback(route, reason)
	}
}
