package routing

import (
	"errors"
	"fmt"
)

// Sentinel errors for routing decisions.
var (
	// ErrNoRouteMatched indicates no policy matched the request path.
	// Unreachable when a catch-all policy is registered.
	ErrNoRouteMatched = errors.New("no route matched")

	// ErrAggregatedFallback indicates both the current backend and the
	// legacy fallback failed for the same request.
	ErrAggregatedFallback = errors.New("current and legacy backends both failed")

	// ErrLegacyFailed indicates the legacy backend failed on a
	// fixed-legacy route, where no fallback exists.
	ErrLegacyFailed = errors.New("legacy backend failed")
)

// RouteError carries the failed route and the underlying causes.
type RouteError struct {
	Route   string
	Err     error
	Primary error
	Final   error
}

// Error implements the error interface.
func (e *RouteError) Error() string {
	if e.Primary != nil && e.Final != nil {
		return fmt.Sprintf("routing failed [%s]: %v (primary: %v, fallback: %v)", e.Route, e.Err, e.Primary, e.Final)
	}
	if e.Final != nil {
		return fmt.Sprintf("routing failed [%s]: %v: %v", e.Route, e.Err, e.Final)
	}
	return fmt.Sprintf("routing failed [%s]: %v", e.Route, e.Err)
}

// Unwrap returns the sentinel classifying the failure.
func (e *RouteError) Unwrap() error {
	return e.Err
}
