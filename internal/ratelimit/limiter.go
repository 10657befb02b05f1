// Package ratelimit throttles option writes per caller. Limits are shared
// through Redis when it is reachable and enforced in process otherwise.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/feral-file/ff-options/internal/adapter"
	"github.com/feral-file/ff-options/internal/logger"
)

// localPruneInterval is how often idle in-process buckets are dropped
const localPruneInterval = time.Minute

// ErrUnavailable is returned when Redis is down and local fallback is disabled
var ErrUnavailable = errors.New("rate limiter unavailable")

// Config describes the per-caller write limit
type Config struct {
	RequestsPerSecond   int
	Burst               int
	KeyPrefix           string
	EnableLocalFallback bool
	// ProbeInterval is how long to wait before trying Redis again after a failure
	ProbeInterval time.Duration
}

// Decision is the outcome of one Allow call
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether a caller may perform another write
type Limiter interface {
	// Allow consumes one token for key
	Allow(ctx context.Context, key string) (Decision, error)

	// Close releases the Redis connection, if any
	Close() error
}

type limiter struct {
	config      Config
	redis       adapter.RedisClient
	distributed adapter.RedisRateLimiter
	clock       adapter.Clock

	mu        sync.Mutex
	local     map[string]*rate.Limiter
	lastPrune time.Time

	redisAvailable atomic.Bool
	downSince      atomic.Int64
	closeOnce      sync.Once
}

// New creates a limiter. A nil Redis client gives an in-process limiter only.
func New(cfg Config, rc adapter.RedisClient, clock adapter.Clock) (Limiter, error) {
	if err := validateConfig(&cfg, rc == nil); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	l := &limiter{
		config: cfg,
		redis:  rc,
		clock:  clock,
		local:  make(map[string]*rate.Limiter),
	}
	if rc == nil {
		logger.Info("Write rate limiter running in process",
			zap.Int("requests_per_second", cfg.RequestsPerSecond),
			zap.Int("burst", cfg.Burst),
		)
		return l, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rc.Ping(ctx).Err(); err != nil {
		if !cfg.EnableLocalFallback {
			return nil, fmt.Errorf("redis unavailable and fallback disabled: %w", err)
		}
		logger.Warn("Redis unavailable, will use local fallback", zap.Error(err))
		l.markDown()
	} else {
		l.redisAvailable.Store(true)
	}
	l.distributed = rc.NewRateLimiter()

	logger.Info("Write rate limiter initialized",
		zap.Int("requests_per_second", cfg.RequestsPerSecond),
		zap.Int("burst", cfg.Burst),
		zap.Bool("local_fallback", cfg.EnableLocalFallback),
	)
	return l, nil
}

func (l *limiter) Allow(ctx context.Context, key string) (Decision, error) {
	if l.useRedis(ctx) {
		res, err := l.distributed.Allow(ctx, l.config.KeyPrefix+key, redis_rate.Limit{
			Rate:   l.config.RequestsPerSecond,
			Burst:  l.config.Burst,
			Period: time.Second,
		})
		if err == nil {
			d := Decision{Allowed: res.Allowed > 0, Remaining: res.Remaining}
			if !d.Allowed {
				d.RetryAfter = res.RetryAfter
			}
			return d, nil
		}
		if ctx.Err() != nil {
			return Decision{}, ctx.Err()
		}

		l.markDown()
		if !l.config.EnableLocalFallback {
			return Decision{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		logger.Warn("Redis rate limiter error, falling back to local",
			zap.String("key", key),
			zap.Error(err),
		)
	}

	if !l.config.EnableLocalFallback {
		return Decision{}, ErrUnavailable
	}
	return l.allowLocal(key), nil
}

// useRedis reports whether the distributed limiter should be tried,
// probing Redis again once ProbeInterval has passed since the last failure
func (l *limiter) useRedis(ctx context.Context) bool {
	if l.distributed == nil {
		return false
	}
	if l.redisAvailable.Load() {
		return true
	}
	if l.clock.Since(time.Unix(0, l.downSince.Load())) < l.config.ProbeInterval {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := l.redis.Ping(probeCtx).Err(); err != nil {
		l.markDown()
		return false
	}

	l.redisAvailable.Store(true)
	logger.Info("Redis connection restored")
	return true
}

func (l *limiter) markDown() {
	l.redisAvailable.Store(false)
	l.downSince.Store(l.clock.Now().UnixNano())
}

func (l *limiter) allowLocal(key string) Decision {
	now := l.clock.Now()

	l.mu.Lock()
	l.pruneLocked(now)
	lim, ok := l.local[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(l.config.RequestsPerSecond), l.config.Burst)
		l.local[key] = lim
	}
	l.mu.Unlock()

	r := lim.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Decision{Allowed: false, RetryAfter: delay}
	}
	return Decision{Allowed: true, Remaining: int(lim.TokensAt(now))}
}

// pruneLocked drops buckets that have refilled completely. A fresh limiter for
// the same key starts full, so dropping them changes no decision.
func (l *limiter) pruneLocked(now time.Time) {
	if l.lastPrune.IsZero() {
		l.lastPrune = now
		return
	}
	if now.Sub(l.lastPrune) < localPruneInterval {
		return
	}
	l.lastPrune = now

	for key, lim := range l.local {
		if lim.TokensAt(now) >= float64(lim.Burst()) {
			delete(l.local, key)
		}
	}
}

func (l *limiter) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if l.redis != nil {
			err = l.redis.Close()
		}
	})
	return err
}

// validateConfig validates and sets defaults for the configuration
func validateConfig(cfg *Config, localOnly bool) error {
	if cfg.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests_per_second must be positive")
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RequestsPerSecond
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "ff:options:write:"
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 10 * time.Second
	}
	if localOnly {
		cfg.EnableLocalFallback = true
	}
	return nil
}
