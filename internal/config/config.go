// Package config defines the gateway configuration model and its YAML
// loading, validation and hot-reload machinery.
package config

import "time"

// Route domain values accepted in configuration.
const (
	DomainOwnerLike   = "owner-like"
	DomainFixedLegacy = "fixed-legacy"
)

// GatewayConfig is the root configuration for the gateway.
type GatewayConfig struct {
	Server         ServerConfig        `yaml:"server"`
	Backends       BackendsConfig      `yaml:"backends"`
	Routes         []RouteConfig       `yaml:"routes"`
	Toggles        map[string]bool     `yaml:"toggles"`
	CircuitBreaker BreakerConfig       `yaml:"circuitBreaker"`
	EdgeBreaker    EdgeBreakerConfig   `yaml:"edgeBreaker"`
	RateLimit      RateLimitConfig     `yaml:"rateLimit"`
	Observability  ObservabilityConfig `yaml:"observability"`
}

// ServerConfig configures the gateway HTTP listener.
type ServerConfig struct {
	Address            string   `yaml:"address"`
	Port               int      `yaml:"port"`
	ReadTimeout        Duration `yaml:"readTimeout"`
	WriteTimeout       Duration `yaml:"writeTimeout"`
	IdleTimeout        Duration `yaml:"idleTimeout"`
	MaxRequestBodySize int64    `yaml:"maxRequestBodySize"`
}

// BackendsConfig names the two backends the gateway routes between.
type BackendsConfig struct {
	Current BackendConfig `yaml:"current"`
	Legacy  BackendConfig `yaml:"legacy"`
}

// BackendConfig configures a single backend.
type BackendConfig struct {
	URL     string   `yaml:"url"`
	Timeout Duration `yaml:"timeout"`
}

// RouteConfig binds a path prefix to a domain. Toggle is required for
// owner-like routes and ignored otherwise.
type RouteConfig struct {
	Prefix string `yaml:"prefix"`
	Domain string `yaml:"domain"`
	Toggle string `yaml:"toggle"`
}

// BreakerConfig configures the per-backend circuit breaker.
type BreakerConfig struct {
	WindowSize           int      `yaml:"windowSize"`
	FailureRateThreshold float64  `yaml:"failureRateThreshold"`
	WaitDuration         Duration `yaml:"waitDuration"`
	HalfOpenProbes       int      `yaml:"halfOpenProbes"`
}

// EdgeBreakerConfig configures the gateway-edge load shedding breaker.
type EdgeBreakerConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Threshold int      `yaml:"threshold"`
	Timeout   Duration `yaml:"timeout"`
}

// RateLimitConfig configures inbound rate limiting.
type RateLimitConfig struct {
	Enabled   bool `yaml:"enabled"`
	RPS       int  `yaml:"rps"`
	Burst     int  `yaml:"burst"`
	PerClient bool `yaml:"perClient"`
}

// ObservabilityConfig groups logging, metrics and tracing settings.
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig configures the operational metrics server.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Namespace string `yaml:"namespace"`
}

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// DefaultConfig returns a configuration with working defaults: the
// owners domain is toggle-governed, the remaining domains are fixed on
// the legacy backend, and a trailing catch-all keeps resolution total.
func DefaultConfig() *GatewayConfig {
	return &GatewayConfig{
		Server: ServerConfig{
			Port:               8080,
			ReadTimeout:        Duration(30 * time.Second),
			WriteTimeout:       Duration(30 * time.Second),
			IdleTimeout:        Duration(120 * time.Second),
			MaxRequestBodySize: 10 << 20,
		},
		Backends: BackendsConfig{
			Current: BackendConfig{
				URL:     "http://localhost:8081",
				Timeout: Duration(10 * time.Second),
			},
			Legacy: BackendConfig{
				URL:     "http://localhost:8082",
				Timeout: Duration(10 * time.Second),
			},
		},
		Routes: []RouteConfig{
			{Prefix: "/owners", Domain: DomainOwnerLike, Toggle: "owner-service"},
			{Prefix: "/pets", Domain: DomainFixedLegacy},
			{Prefix: "/vets", Domain: DomainFixedLegacy},
			{Prefix: "/visits", Domain: DomainFixedLegacy},
			{Prefix: "/", Domain: DomainFixedLegacy},
		},
		Toggles: map[string]bool{
			"owner-service": false,
		},
		CircuitBreaker: BreakerConfig{
			WindowSize:           10,
			FailureRateThreshold: 0.5,
			WaitDuration:         Duration(10 * time.Second),
			HalfOpenProbes:       3,
		},
		EdgeBreaker: EdgeBreakerConfig{
			Enabled:   false,
			Threshold: 20,
			Timeout:   Duration(30 * time.Second),
		},
		RateLimit: RateLimitConfig{
			Enabled: false,
			RPS:     100,
			Burst:   200,
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
				Output: "stdout",
			},
			Metrics: MetricsConfig{
				Enabled:   true,
				Port:      9090,
				Namespace: "gateway",
			},
			Tracing: TracingConfig{
				Enabled:      false,
				SamplingRate: 1.0,
			},
		},
	}
}
