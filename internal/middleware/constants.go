// Package middleware provides HTTP middleware for the gateway.
package middleware

// Common header names and response bodies.
const (
	HeaderContentType = "Content-Type"
	HeaderRetryAfter  = "Retry-After"

	ContentTypeJSON = "application/json"

	ErrRateLimitExceeded = `{"error":"rate limit exceeded"}`
	ErrServiceOverloaded = `{"error":"service overloaded"}`
)
