// Package main is the entry point for the hybrid migration gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chaeminyu/monolithic-petclinic/internal/backend"
	"github.com/chaeminyu/monolithic-petclinic/internal/circuitbreaker"
	"github.com/chaeminyu/monolithic-petclinic/internal/config"
	"github.com/chaeminyu/monolithic-petclinic/internal/gateway"
	"github.com/chaeminyu/monolithic-petclinic/internal/health"
	"github.com/chaeminyu/monolithic-petclinic/internal/middleware"
	"github.com/chaeminyu/monolithic-petclinic/internal/observability"
	"github.com/chaeminyu/monolithic-petclinic/internal/routing"
	"github.com/chaeminyu/monolithic-petclinic/internal/toggle"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg := loadAndValidateConfig(flags.configPath, logger)
	app := initApplication(cfg, logger)

	runGateway(app, flags.configPath, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("GATEWAY_CONFIG_PATH", "configs/gateway.yaml"),
		"Path to configuration file")
	logLevel := flag.String("log-level", getEnvOrDefault("GATEWAY_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("GATEWAY_LOG_FORMAT", "json"),
		"Log format (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information and exits.
func printVersion() {
	fmt.Printf("petclinic-gateway version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}

// loadAndValidateConfig loads and validates the configuration.
func loadAndValidateConfig(configPath string, logger observability.Logger) *config.GatewayConfig {
	logger.Info("starting petclinic-gateway",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", observability.Error(err))
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", observability.Error(err))
	}

	logger.Info("configuration loaded",
		observability.String("current_backend", cfg.Backends.Current.URL),
		observability.String("legacy_backend", cfg.Backends.Legacy.URL),
		observability.Int("routes", len(cfg.Routes)),
		observability.Int("toggles", len(cfg.Toggles)),
	)

	return cfg
}

// application holds all application components.
type application struct {
	server        *gateway.Server
	toggles       *toggle.Store
	breakers      *circuitbreaker.Registry
	rateLimiter   *middleware.RateLimiter
	healthChecker *health.Checker
	metrics       *observability.Metrics
	tracer        *observability.Tracer
	config        *config.GatewayConfig
}

// initApplication initializes all application components.
func initApplication(cfg *config.GatewayConfig, logger observability.Logger) *application {
	metrics := observability.NewMetrics(cfg.Observability.Metrics.Namespace)
	metrics.SetBuildInfo(version, gitCommit, buildTime)
	circuitbreaker.MustRegister(metrics.Registry())
	tracer := initTracer(cfg, logger)
	healthChecker := health.NewChecker(version)

	toggles := toggle.NewStore(cfg.Toggles,
		toggle.WithLogger(observability.Zap(logger)),
		toggle.WithOnChange(func(name string, value bool) {
			metrics.SetToggleState(name, value)
		}),
	)
	for name, value := range cfg.Toggles {
		metrics.SetToggleState(name, value)
	}

	breakerConfig := circuitbreaker.DefaultConfig().
		WithWindowSize(cfg.CircuitBreaker.WindowSize).
		WithFailureRateThreshold(cfg.CircuitBreaker.FailureRateThreshold).
		WithWaitDuration(cfg.CircuitBreaker.WaitDuration.Duration()).
		WithHalfOpenProbes(cfg.CircuitBreaker.HalfOpenProbes).
		WithOnStateChange(func(name string, from, to circuitbreaker.State) {
			metrics.SetBreakerState(name, int(to))
		})
	breakers := circuitbreaker.NewRegistry(breakerConfig, observability.Zap(logger))

	currentClient := backend.NewClient("current-service", cfg.Backends.Current.URL,
		backend.WithLogger(logger),
		backend.WithTimeout(cfg.Backends.Current.Timeout.Duration()),
	)
	legacyClient := backend.NewClient("legacy-service", cfg.Backends.Legacy.URL,
		backend.WithLogger(logger),
		backend.WithTimeout(cfg.Backends.Legacy.Timeout.Duration()),
	)

	resolver := buildResolver(cfg)

	fallbackRouter := routing.NewFallbackRouter(
		toggles, breakers, currentClient, legacyClient,
		routing.WithMetrics(metrics),
		routing.WithLogger(logger),
	)

	gw := gateway.New(resolver, fallbackRouter, toggles, breakers,
		gateway.WithLogger(logger),
	)

	healthChecker.RegisterCheck("breakers", breakerCheck(breakers))

	middlewares, rateLimiter := buildMiddlewareChain(cfg, logger, metrics, tracer)

	serverConfig := &gateway.ServerConfig{
		Address:            cfg.Server.Address,
		Port:               cfg.Server.Port,
		ReadTimeout:        cfg.Server.ReadTimeout.Duration(),
		WriteTimeout:       cfg.Server.WriteTimeout.Duration(),
		IdleTimeout:        cfg.Server.IdleTimeout.Duration(),
		MaxHeaderBytes:     1 << 20,
		MaxRequestBodySize: cfg.Server.MaxRequestBodySize,
	}

	server := gateway.NewServer(serverConfig, gw, observability.Zap(logger), middlewares...)

	return &application{
		server:        server,
		toggles:       toggles,
		breakers:      breakers,
		rateLimiter:   rateLimiter,
		healthChecker: healthChecker,
		metrics:       metrics,
		tracer:        tracer,
		config:        cfg,
	}
}

// buildResolver translates route configuration into routing policies,
// preserving configuration order.
func buildResolver(cfg *config.GatewayConfig) *routing.Resolver {
	resolver := routing.NewResolver()
	for _, route := range cfg.Routes {
		domain := routing.DomainFixedLegacy
		if route.Domain == config.DomainOwnerLike {
			domain = routing.DomainOwnerLike
		}
		resolver.Register(&routing.Policy{
			PathPrefix: route.Prefix,
			Domain:     domain,
			ToggleName: route.Toggle,
		})
	}
	return resolver
}

// breakerCheck reports degraded readiness while any breaker is open.
func breakerCheck(breakers *circuitbreaker.Registry) health.CheckFunc {
	return func() health.Check {
		for name, stats := range breakers.Stats() {
			if stats.State == circuitbreaker.StateOpen {
				return health.Check{
					Status:  health.StatusDegraded,
					Message: fmt.Sprintf("breaker %s is open", name),
				}
			}
		}
		return health.Check{Status: health.StatusHealthy}
	}
}

// initTracer initializes the tracer.
func initTracer(cfg *config.GatewayConfig, logger observability.Logger) *observability.Tracer {
	tracer, err := observability.NewTracer(observability.TracerConfig{
		ServiceName:  "petclinic-gateway",
		Enabled:      cfg.Observability.Tracing.Enabled,
		OTLPEndpoint: cfg.Observability.Tracing.Endpoint,
		SamplingRate: cfg.Observability.Tracing.SamplingRate,
	})
	if err != nil {
		logger.Fatal("failed to initialize tracer", observability.Error(err))
	}
	return tracer
}

// buildMiddlewareChain builds the middleware chain, outermost first.
func buildMiddlewareChain(
	cfg *config.GatewayConfig,
	logger observability.Logger,
	metrics *observability.Metrics,
	tracer *observability.Tracer,
) ([]gateway.Middleware, *middleware.RateLimiter) {
	var chain []gateway.Middleware
	var rateLimiter *middleware.RateLimiter

	chain = append(chain, middleware.Recovery(logger))
	chain = append(chain, middleware.RequestID())
	chain = append(chain, middleware.Logging(logger))
	chain = append(chain, observability.TracingMiddleware(tracer))
	chain = append(chain, observability.MetricsMiddleware(metrics))

	if cfg.EdgeBreaker.Enabled {
		eb := middleware.NewEdgeBreaker("gateway",
			cfg.EdgeBreaker.Threshold,
			cfg.EdgeBreaker.Timeout.Duration(),
			middleware.WithEdgeBreakerLogger(logger),
			middleware.WithEdgeBreakerStateCallback(func(name string, state int) {
				metrics.SetBreakerState(name, state)
			}),
		)
		chain = append(chain, middleware.EdgeBreakerMiddleware(eb))
	}

	if cfg.RateLimit.Enabled {
		rateLimiter = middleware.NewRateLimiter(
			cfg.RateLimit.RPS,
			cfg.RateLimit.Burst,
			cfg.RateLimit.PerClient,
			middleware.WithRateLimiterLogger(logger),
		)
		chain = append(chain, middleware.RateLimit(rateLimiter))
	}

	return chain, rateLimiter
}

// runGateway runs the gateway and handles shutdown.
func runGateway(app *application, configPath string, logger observability.Logger) {
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- app.server.Start(context.Background())
	}()

	startMetricsServerIfEnabled(app, logger)
	watcher := startConfigWatcher(app, configPath, logger)

	waitForShutdown(app, watcher, serverErr, logger)
}

// startMetricsServerIfEnabled starts the operational server if enabled.
func startMetricsServerIfEnabled(app *application, logger observability.Logger) {
	if !app.config.Observability.Metrics.Enabled {
		return
	}

	port := app.config.Observability.Metrics.Port
	if port == 0 {
		port = 9090
	}

	go startMetricsServer(port, app.metrics, app.healthChecker, logger)
}

// startConfigWatcher starts the configuration watcher. Reloaded toggle
// defaults reseed only toggles that were not pinned by an admin write.
func startConfigWatcher(
	app *application,
	configPath string,
	logger observability.Logger,
) *config.Watcher {
	watcher, err := config.NewWatcher(configPath, func(newCfg *config.GatewayConfig) {
		logger.Info("configuration changed, reseeding toggles")
		for name, value := range newCfg.Toggles {
			if app.toggles.Seed(name, value) {
				logger.Info("toggle reseeded",
					observability.String("toggle", name),
					observability.Bool("value", value),
				)
			} else {
				logger.Info("toggle pinned by admin write, skipping reseed",
					observability.String("toggle", name),
				)
			}
		}
	}, config.WithWatcherLogger(logger))

	if err != nil {
		logger.Warn("failed to create config watcher", observability.Error(err))
		return nil
	}

	if err := watcher.Start(context.Background()); err != nil {
		logger.Warn("failed to start config watcher", observability.Error(err))
	}

	return watcher
}

// waitForShutdown waits for a shutdown signal and stops everything
// gracefully.
func waitForShutdown(
	app *application,
	watcher *config.Watcher,
	serverErr chan error,
	logger observability.Logger,
) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", observability.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			logger.Error("server failed", observability.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if watcher != nil {
		_ = watcher.Stop()
	}

	if err := app.server.Stop(shutdownCtx); err != nil {
		logger.Error("failed to stop server gracefully", observability.Error(err))
	}

	if app.rateLimiter != nil {
		app.rateLimiter.Stop()
	}

	if err := app.tracer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown tracer", observability.Error(err))
	}

	logger.Info("gateway stopped")
}

// startMetricsServer starts the operational HTTP server with metrics
// and probe endpoints.
func startMetricsServer(
	port int,
	metrics *observability.Metrics,
	healthChecker *health.Checker,
	logger observability.Logger,
) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", healthChecker.HealthHandler())
	mux.HandleFunc("/ready", healthChecker.ReadinessHandler())
	mux.HandleFunc("/live", healthChecker.LivenessHandler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info("starting metrics server",
		observability.String("address", addr),
	)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server error", observability.Error(err))
	}
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
