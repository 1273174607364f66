package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ginModeOnce ensures gin.SetMode is only called once to avoid race conditions
var ginModeOnce sync.Once

// Middleware wraps an http.Handler with cross-cutting behavior.
type Middleware func(http.Handler) http.Handler

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	Port           int
	Address        string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	// MaxRequestBodySize is the maximum allowed request body size in
	// bytes. Set to 0 to disable the limit.
	MaxRequestBodySize int64
}

// DefaultServerConfig returns a ServerConfig with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:               8080,
		Address:            "",
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       30 * time.Second,
		IdleTimeout:        120 * time.Second,
		MaxHeaderBytes:     1 << 20,
		MaxRequestBodySize: 10 << 20,
	}
}

// Server serves the gateway over HTTP. Admin endpoints are registered
// as explicit routes; everything else falls through to the proxy via
// the engine's NoRoute handler.
type Server struct {
	engine     *gin.Engine
	handler    http.Handler
	httpServer *http.Server
	gateway    *Gateway
	logger     *zap.Logger
	config     *ServerConfig
	mu         sync.RWMutex
	running    bool
}

// NewServer creates an HTTP server around the gateway. Middlewares are
// applied outermost-first to the whole engine, so they see admin and
// proxied traffic alike.
func NewServer(config *ServerConfig, gw *Gateway, logger *zap.Logger, middlewares ...Middleware) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	engine := gin.New()

	s := &Server{
		engine:  engine,
		gateway: gw,
		logger:  logger,
		config:  config,
	}

	if config.MaxRequestBodySize > 0 {
		engine.Use(func(c *gin.Context) {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, config.MaxRequestBodySize)
			c.Next()
		})
	}

	s.registerRoutes()

	var handler http.Handler = engine
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	s.handler = handler

	return s
}

// registerRoutes wires the admin surface and the catch-all proxy.
func (s *Server) registerRoutes() {
	admin := s.engine.Group("/admin")
	admin.GET("/health", s.gateway.HandleHealth)
	admin.GET("/architecture", s.gateway.HandleArchitecture)
	admin.GET("/toggles", s.gateway.HandleToggleList)
	admin.PUT("/toggles/:name", s.gateway.HandleToggleSet)
	admin.GET("/breakers", s.gateway.HandleBreakerStats)
	admin.POST("/breakers/reset", s.gateway.HandleBreakerReset)

	s.engine.NoRoute(s.gateway.HandleProxy)
}

// Handler returns the server's handler with middleware applied. Useful
// for tests driving the server through httptest.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}

	addr := fmt.Sprintf("%s:%d", s.config.Address, s.config.Port)

	s.httpServer = &http.Server{
		Addr:           addr,
		Handler:        s.handler,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	s.running = true
	s.mu.Unlock()

	s.logger.Info("starting HTTP server",
		zap.String("address", addr),
		zap.Duration("readTimeout", s.config.ReadTimeout),
		zap.Duration("writeTimeout", s.config.WriteTimeout),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Stop stops the HTTP server gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.logger.Info("stopping HTTP server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("HTTP server stopped")
	return nil
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
