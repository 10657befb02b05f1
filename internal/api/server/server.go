package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/feral-file/ff-options/internal/adapter"
	"github.com/feral-file/ff-options/internal/api/middleware"
	"github.com/feral-file/ff-options/internal/api/rest"
	"github.com/feral-file/ff-options/internal/logger"
	"github.com/feral-file/ff-options/internal/metrics"
	"github.com/feral-file/ff-options/internal/options"
	"github.com/feral-file/ff-options/internal/ratelimit"
)

// Config holds the server configuration
type Config struct {
	Debug          bool
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
	Auth           middleware.AuthConfig
	// WriteLimiter throttles option writes; nil disables throttling
	WriteLimiter ratelimit.Limiter
}

// Server wraps the HTTP server
type Server struct {
	config     Config
	options    *options.Options
	metrics    *metrics.Metrics
	clock      adapter.Clock
	httpServer *http.Server
}

// New creates a new API server
func New(cfg Config, opts *options.Options, m *metrics.Metrics, clock adapter.Clock) *Server {
	return &Server{
		config:  cfg,
		options: opts,
		metrics: m,
		clock:   clock,
	}
}

// Router builds the gin engine with every middleware and route
func (s *Server) Router() *gin.Engine {
	// Set Gin mode based on debug flag
	if s.config.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Setup middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger(s.clock))
	router.Use(middleware.SetupCORS(s.config.AllowedOrigins))

	var metricsHandler http.Handler
	if s.metrics != nil {
		router.Use(middleware.Metrics(s.metrics, s.clock))
		metricsHandler = s.metrics.Handler()
	}

	rest.SetupRoutes(router, rest.NewHandler(s.options), rest.RouteConfig{
		Auth:         s.config.Auth,
		Metrics:      metricsHandler,
		WriteLimiter: s.config.WriteLimiter,
	})

	return router
}

// Start initializes and starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	logger.Info("Starting API server",
		zap.String("address", addr),
	)

	// Start server
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Shutting down API server")

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}

	return nil
}
