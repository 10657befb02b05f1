package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/feral-file/ff-options/internal/adapter"
	"github.com/feral-file/ff-options/internal/api/middleware"
	"github.com/feral-file/ff-options/internal/api/server"
	"github.com/feral-file/ff-options/internal/config"
	"github.com/feral-file/ff-options/internal/logger"
	"github.com/feral-file/ff-options/internal/metrics"
	"github.com/feral-file/ff-options/internal/options"
	"github.com/feral-file/ff-options/internal/ratelimit"
	"github.com/feral-file/ff-options/internal/store"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadAPIConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "options-api",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Feral File Options API")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err), zap.String("host", cfg.Database.Host))
	}

	// Configure connection pool
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to database",
		zap.Int("max_open_conns", cfg.Database.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.Database.MaxIdleConns),
	)

	clock := adapter.NewClock()

	// Initialize store
	optionStore := store.NewOptionStore(db, clock,
		store.WithTable(cfg.Options.Schema, cfg.Options.TablePrefix),
		store.WithWriteConcurrency(cfg.Options.WriteConcurrency),
		store.WithLogger(logger.Default()),
	)

	if cfg.Options.ProvisionOnStart {
		if err := store.InitWithRetry(ctx, optionStore, cfg.Options.ProvisionTimeout); err != nil {
			logger.FatalCtx(ctx, "Failed to provision options table", zap.Error(err))
		}
		logger.InfoCtx(ctx, "Options table ready",
			zap.String("schema", cfg.Options.Schema),
			zap.String("table_prefix", cfg.Options.TablePrefix),
		)
	}

	m := metrics.New()
	opts := options.New(optionStore,
		options.WithLogger(logger.Default()),
		options.WithRecorder(m),
		options.WithClock(clock),
	)

	// Write rate limiter, shared through Redis when configured
	var writeLimiter ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		var redisClient adapter.RedisClient
		if cfg.RateLimit.RedisURL != "" {
			redisClient, err = adapter.NewRedisClient(cfg.RateLimit.RedisURL)
			if err != nil {
				logger.FatalCtx(ctx, "Failed to create Redis client", zap.Error(err))
			}
		}
		writeLimiter, err = ratelimit.New(ratelimit.Config{
			RequestsPerSecond:   cfg.RateLimit.RequestsPerSecond,
			Burst:               cfg.RateLimit.Burst,
			KeyPrefix:           cfg.RateLimit.KeyPrefix,
			EnableLocalFallback: cfg.RateLimit.EnableLocalFallback,
			ProbeInterval:       cfg.RateLimit.ProbeInterval,
		}, redisClient, clock)
		if err != nil {
			logger.FatalCtx(ctx, "Failed to create write rate limiter", zap.Error(err))
		}
		defer func() {
			if err := writeLimiter.Close(); err != nil {
				logger.Warn("Error closing rate limiter", zap.Error(err))
			}
		}()
	}

	// Create server config
	serverConfig := server.Config{
		Debug:          cfg.Debug,
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    time.Duration(cfg.Server.IdleTimeout) * time.Second,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Auth: middleware.AuthConfig{
			JWTPublicKey: cfg.Auth.JWTPublicKey,
			APIKeys:      cfg.Auth.APIKeys,
		},
		WriteLimiter: writeLimiter,
	}

	srv := server.New(serverConfig, opts, m, clock)

	// Start server in a goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		logger.ErrorCtx(ctx, err, zap.String("component", "server"))
		cancel()
	}

	// Create shutdown context with timeout (don't use canceled ctx)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.FatalCtx(shutdownCtx, "Server forced to shutdown", zap.Error(err))
	}

	logger.Info("API server stopped")
}
