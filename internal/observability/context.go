package observability

import "context"

type contextKey int

const (
	requestIDKey contextKey = iota
	routeKey
)

// routeHolder carries the matched route prefix. It is installed by the
// metrics middleware before the handler runs and filled in by the gateway
// once the routing policy is known, so the value survives the handler's
// context derivations.
type routeHolder struct {
	route string
}

// ContextWithRequestID returns a new context with the request ID.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request ID from the context, or "".
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithRouteHolder returns a new context with an empty route slot.
func ContextWithRouteHolder(ctx context.Context) context.Context {
	return context.WithValue(ctx, routeKey, &routeHolder{})
}

// SetRoute records the matched route prefix in the context's route slot.
// It is a no-op when no slot is present.
func SetRoute(ctx context.Context, route string) {
	if holder, ok := ctx.Value(routeKey).(*routeHolder); ok {
		holder.route = route
	}
}

// RouteFromContext returns the matched route prefix from the context, or "".
func RouteFromContext(ctx context.Context) string {
	if holder, ok := ctx.Value(routeKey).(*routeHolder); ok {
		return holder.route
	}
	return ""
}
