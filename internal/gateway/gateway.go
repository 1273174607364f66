// Package gateway is the HTTP entry point. Every inbound request is
// resolved to a routing policy and executed through the fallback
// router; the admin surface exposes toggles, breaker state and
// migration introspection.
package gateway

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chaeminyu/monolithic-petclinic/internal/backend"
	"github.com/chaeminyu/monolithic-petclinic/internal/circuitbreaker"
	"github.com/chaeminyu/monolithic-petclinic/internal/observability"
	"github.com/chaeminyu/monolithic-petclinic/internal/routing"
	"github.com/chaeminyu/monolithic-petclinic/internal/toggle"
)

// Status values reported by the gateway health endpoint.
const (
	statusUp       = "UP"
	statusActive   = "ACTIVE"
	statusInactive = "INACTIVE"
)

// HealthStatus describes which backends currently take traffic.
type HealthStatus struct {
	GatewayStatus        string `json:"gatewayStatus"`
	CurrentServiceStatus string `json:"currentServiceStatus"`
	LegacyStatus         string `json:"legacyStatus"`
}

// ArchitectureStatus describes the migration posture of the system.
type ArchitectureStatus struct {
	Type              string `json:"type"`
	CurrentDomainMode string `json:"currentDomainMode"`
	FixedDomainsMode  string `json:"fixedDomainsMode"`
}

// Gateway routes inbound requests and serves the admin surface.
type Gateway struct {
	resolver *routing.Resolver
	router   *routing.FallbackRouter
	toggles  *toggle.Store
	breakers *circuitbreaker.Registry
	logger   observability.Logger
}

// Option is a functional option for configuring the gateway.
type Option func(*Gateway)

// WithLogger sets the logger for the gateway.
func WithLogger(logger observability.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// New creates a gateway over the resolver and fallback router.
func New(
	resolver *routing.Resolver,
	router *routing.FallbackRouter,
	toggles *toggle.Store,
	breakers *circuitbreaker.Registry,
	opts ...Option,
) *Gateway {
	g := &Gateway{
		resolver: resolver,
		router:   router,
		toggles:  toggles,
		breakers: breakers,
		logger:   observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// HandleProxy resolves the request path to a policy and executes it.
// Registered as the engine's NoRoute handler, so every path that is not
// an admin endpoint ends up here.
func (g *Gateway) HandleProxy(c *gin.Context) {
	policy := g.resolver.Resolve(c.Request.URL.Path)
	if policy == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Not Found",
			"message": "no route matched the request",
		})
		return
	}

	observability.SetRoute(c.Request.Context(), policy.PathPrefix)

	req, err := backend.NewRequest(c.Request)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Bad Request",
			"message": "failed to read request body",
		})
		return
	}

	decision, err := g.router.Route(c.Request.Context(), policy, req)
	if err != nil {
		g.writeRouteError(c, err)
		return
	}

	for key, values := range decision.Result.Header {
		for _, value := range values {
			c.Writer.Header().Add(key, value)
		}
	}
	c.Writer.Header().Set("X-Served-By", decision.Backend)

	c.Status(decision.Result.StatusCode)
	_, _ = c.Writer.Write(decision.Result.Body)
}

// writeRouteError maps routing failures to gateway responses.
func (g *Gateway) writeRouteError(c *gin.Context, err error) {
	g.logger.Error("request failed",
		observability.String("path", c.Request.URL.Path),
		observability.Error(err),
	)

	switch {
	case errors.Is(err, routing.ErrAggregatedFallback):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Bad Gateway",
			"message": "current and legacy backends both failed",
		})
	case errors.Is(err, routing.ErrLegacyFailed):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Bad Gateway",
			"message": "legacy backend failed",
		})
	case errors.Is(err, routing.ErrNoRouteMatched):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Not Found",
			"message": "no route matched the request",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal Server Error",
			"message": "request could not be routed",
		})
	}
}

// Health reports which backends currently take traffic. The current
// service is active as soon as any toggle-governed domain delegates to
// it; the legacy backend always serves the fixed domains.
func (g *Gateway) Health() HealthStatus {
	current := statusInactive
	if g.anyDelegated() {
		current = statusActive
	}

	return HealthStatus{
		GatewayStatus:        statusUp,
		CurrentServiceStatus: current,
		LegacyStatus:         statusActive,
	}
}

// Architecture reports the migration posture: toggle-governed domains
// are delegated or still on legacy, fixed domains are always legacy.
func (g *Gateway) Architecture() ArchitectureStatus {
	mode := "legacy"
	if g.anyDelegated() {
		mode = "delegated"
	}

	return ArchitectureStatus{
		Type:              "Hybrid",
		CurrentDomainMode: mode,
		FixedDomainsMode:  "legacy",
	}
}

// anyDelegated reports whether at least one toggle-governed policy
// currently delegates to the current backend.
func (g *Gateway) anyDelegated() bool {
	for _, policy := range g.resolver.Policies() {
		if policy.IsOwnerLike() && g.toggles.IsEnabled(policy.ToggleName) {
			return true
		}
	}
	return false
}

// HandleHealth serves the gateway health endpoint.
func (g *Gateway) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, g.Health())
}

// HandleArchitecture serves the migration introspection endpoint.
func (g *Gateway) HandleArchitecture(c *gin.Context) {
	c.JSON(http.StatusOK, g.Architecture())
}

// HandleToggleList lists all toggles with the store version.
func (g *Gateway) HandleToggleList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"toggles": g.toggles.Snapshot(),
		"version": g.toggles.Version(),
	})
}

// toggleUpdate is the body of an administrative toggle write.
type toggleUpdate struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// HandleToggleSet applies an administrative toggle write. The write
// takes effect on the next request and pins the toggle against
// configuration reloads.
func (g *Gateway) HandleToggleSet(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Bad Request",
			"message": "toggle name is required",
		})
		return
	}

	var update toggleUpdate
	if err := c.ShouldBindJSON(&update); err != nil || update.Enabled == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Bad Request",
			"message": "body must be {\"enabled\": true|false}",
		})
		return
	}

	g.toggles.Set(name, *update.Enabled)

	c.JSON(http.StatusOK, gin.H{
		"toggle":  name,
		"enabled": *update.Enabled,
		"version": g.toggles.Version(),
	})
}

// HandleBreakerStats exposes the state of every circuit breaker.
func (g *Gateway) HandleBreakerStats(c *gin.Context) {
	stats := g.breakers.Stats()

	out := make(map[string]gin.H, len(stats))
	for name, s := range stats {
		out[name] = gin.H{
			"state":       s.State.String(),
			"windowCount": s.WindowCount,
			"failures":    s.Failures,
			"failureRate": s.FailureRate(),
		}
	}

	c.JSON(http.StatusOK, gin.H{"breakers": out})
}

// HandleBreakerReset forces every breaker back to closed.
func (g *Gateway) HandleBreakerReset(c *gin.Context) {
	g.breakers.ResetAll()
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}
