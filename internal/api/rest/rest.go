package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feral-file/ff-options/internal/api/middleware"
	"github.com/feral-file/ff-options/internal/ratelimit"
)

// RouteConfig holds what the routes need besides the handler
type RouteConfig struct {
	Auth middleware.AuthConfig
	// Metrics serves /metrics when set
	Metrics http.Handler
	// WriteLimiter throttles authenticated writes when set
	WriteLimiter ratelimit.Limiter
}

// SetupRoutes configures all REST API routes. Reads are public, writes require authentication.
func SetupRoutes(router *gin.Engine, handler Handler, cfg RouteConfig) {
	// Health check and metrics endpoints (no auth, no version prefix)
	router.GET("/health", handler.HealthCheck)
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		v1.GET("/options", handler.ListOptions)
		v1.GET("/options/:key", handler.GetOption)
		v1.HEAD("/options/:key", handler.HasOption)
	}

	writes := v1.Group("", middleware.Auth(cfg.Auth))
	if cfg.WriteLimiter != nil {
		writes.Use(middleware.RateLimit(cfg.WriteLimiter))
	}
	{
		writes.PUT("/options", handler.SetOptions)
		writes.PUT("/options/:key", handler.SetOption)
		writes.DELETE("/options/:key", handler.DeleteOption)
	}
}
