package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration for errors that would make the
// gateway unroutable.
func (c *GatewayConfig) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if err := validateBackendURL("backends.current.url", c.Backends.Current.URL); err != nil {
		return err
	}
	if err := validateBackendURL("backends.legacy.url", c.Backends.Legacy.URL); err != nil {
		return err
	}

	if len(c.Routes) == 0 {
		return fmt.Errorf("at least one route is required")
	}

	for i, route := range c.Routes {
		if !strings.HasPrefix(route.Prefix, "/") {
			return fmt.Errorf("routes[%d].prefix must start with /, got %q", i, route.Prefix)
		}

		switch route.Domain {
		case DomainOwnerLike:
			if route.Toggle == "" {
				return fmt.Errorf("routes[%d] (%s) is owner-like and requires a toggle", i, route.Prefix)
			}
		case DomainFixedLegacy:
		default:
			return fmt.Errorf("routes[%d].domain must be %q or %q, got %q",
				i, DomainOwnerLike, DomainFixedLegacy, route.Domain)
		}
	}

	cb := c.CircuitBreaker
	if cb.WindowSize <= 0 {
		return fmt.Errorf("circuitBreaker.windowSize must be positive, got %d", cb.WindowSize)
	}
	if cb.FailureRateThreshold <= 0 || cb.FailureRateThreshold > 1 {
		return fmt.Errorf("circuitBreaker.failureRateThreshold must be in (0, 1], got %v", cb.FailureRateThreshold)
	}
	if cb.WaitDuration <= 0 {
		return fmt.Errorf("circuitBreaker.waitDuration must be positive")
	}
	if cb.HalfOpenProbes <= 0 {
		return fmt.Errorf("circuitBreaker.halfOpenProbes must be positive, got %d", cb.HalfOpenProbes)
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RPS <= 0 {
			return fmt.Errorf("rateLimit.rps must be positive when enabled, got %d", c.RateLimit.RPS)
		}
		if c.RateLimit.Burst <= 0 {
			return fmt.Errorf("rateLimit.burst must be positive when enabled, got %d", c.RateLimit.Burst)
		}
	}

	if c.Observability.Metrics.Enabled {
		port := c.Observability.Metrics.Port
		if port <= 0 || port > 65535 {
			return fmt.Errorf("observability.metrics.port must be between 1 and 65535, got %d", port)
		}
	}

	if c.Observability.Tracing.Enabled && c.Observability.Tracing.Endpoint == "" {
		return fmt.Errorf("observability.tracing.endpoint is required when tracing is enabled")
	}

	return nil
}

func validateBackendURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", field, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", field)
	}

	return nil
}
