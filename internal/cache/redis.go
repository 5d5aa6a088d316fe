package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// SharedCache is an optional Redis tier that lets multiple dashboard
// instances reuse one upstream fetch. It degrades gracefully: when Redis is
// unavailable, operations return errors and callers fall back to their local
// TTL store and the upstream provider.
type SharedCache struct {
	client       *redis.Client
	logger       zerolog.Logger
	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time

	// Circuit breaker settings
	maxFailures   int
	checkInterval time.Duration
}

// Key for the watchlist signals feed shared across instances.
const KeySignalsFeed = "quantgens:signals:watchlist"

// ErrMiss is returned by GetJSON when the key is absent.
var ErrMiss = redis.Nil

// SharedConfig holds Redis connection settings.
type SharedConfig struct {
	Address  string
	Password string
	DB       int
	PoolSize int
}

// NewSharedCache connects to Redis and verifies connectivity. A failed
// initial ping returns the cache in degraded mode rather than an error.
func NewSharedCache(cfg SharedConfig, logger zerolog.Logger) *SharedCache {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	sc := &SharedCache{
		client:        client,
		logger:        logger,
		maxFailures:   3,
		checkInterval: 30 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("initial Redis connection failed, shared cache degraded")
		return sc
	}

	sc.healthy = true
	sc.lastCheck = time.Now()
	logger.Info().Str("address", cfg.Address).Msg("shared cache connected")

	return sc
}

// IsHealthy returns whether Redis is currently considered available.
func (sc *SharedCache) IsHealthy() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.healthy
}

func (sc *SharedCache) recordFailure() {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.failureCount++
	if sc.failureCount >= sc.maxFailures {
		if sc.healthy {
			sc.logger.Warn().Int("failures", sc.failureCount).Msg("circuit breaker open, Redis marked unhealthy")
		}
		sc.healthy = false
	}
}

func (sc *SharedCache) recordSuccess() {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if !sc.healthy {
		sc.logger.Info().Msg("circuit breaker closed, Redis recovered")
	}
	sc.healthy = true
	sc.failureCount = 0
	sc.lastCheck = time.Now()
}

// checkHealth schedules a background ping when the breaker is open and the
// check interval has elapsed.
func (sc *SharedCache) checkHealth() {
	sc.mu.RLock()
	shouldCheck := !sc.healthy && time.Since(sc.lastCheck) >= sc.checkInterval
	sc.mu.RUnlock()

	if !shouldCheck {
		return
	}

	go func() {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := sc.client.Ping(pingCtx).Err(); err == nil {
			sc.recordSuccess()
		}
	}()
}

// GetJSON retrieves and unmarshals a JSON value.
func (sc *SharedCache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	sc.checkHealth()

	if !sc.IsHealthy() {
		return fmt.Errorf("redis unavailable (circuit breaker open)")
	}

	data, err := sc.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return err // cache miss, not a failure
		}
		sc.recordFailure()
		return fmt.Errorf("redis get failed: %w", err)
	}
	sc.recordSuccess()

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("failed to unmarshal cached value: %w", err)
	}
	return nil
}

// SetJSON marshals and stores a JSON value with a TTL.
func (sc *SharedCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	sc.checkHealth()

	if !sc.IsHealthy() {
		return fmt.Errorf("redis unavailable (circuit breaker open)")
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	if err := sc.client.Set(ctx, key, string(data), ttl).Err(); err != nil {
		sc.recordFailure()
		return fmt.Errorf("redis set failed: %w", err)
	}

	sc.recordSuccess()
	return nil
}

// Ping checks Redis connectivity.
func (sc *SharedCache) Ping(ctx context.Context) error {
	if err := sc.client.Ping(ctx).Err(); err != nil {
		sc.recordFailure()
		return err
	}
	sc.recordSuccess()
	return nil
}

// Close closes the Redis connection.
func (sc *SharedCache) Close() error {
	if sc.client != nil {
		return sc.client.Close()
	}
	return nil
}
