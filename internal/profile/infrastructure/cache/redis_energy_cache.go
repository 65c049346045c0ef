package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/studyflow/internal/profile/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
)

// CacheConfig configures the energy cache behavior.
type CacheConfig struct {
	// TTL bounds how stale a cached reading may get.
	TTL time.Duration
	// FailureThreshold trips the breaker after this many consecutive
	// Redis failures.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
}

// DefaultCacheConfig returns sensible cache defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:              15 * time.Minute,
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
	}
}

// RedisEnergyCache decorates an EnergyStateRepository with a Redis
// read-through cache. Redis is an optimization only; any cache failure
// falls back to the persisted record, and the breaker stops hammering a
// dead Redis.
type RedisEnergyCache struct {
	inner   domain.EnergyStateRepository
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker[domain.EnergyState]
	config  CacheConfig
	logger  *slog.Logger
}

// NewRedisEnergyCache creates a caching decorator around the given repository.
func NewRedisEnergyCache(inner domain.EnergyStateRepository, client *redis.Client, config CacheConfig, logger *slog.Logger) *RedisEnergyCache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &RedisEnergyCache{
		inner:  inner,
		client: client,
		config: config,
		logger: logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker[domain.EnergyState](gobreaker.Settings{
		Name:    "energy-cache",
		Timeout: config.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return c
}

func energyKey(userID uuid.UUID) string {
	return fmt.Sprintf("energy:%s", userID)
}

// Get returns the cached energy state, falling back to the inner
// repository on a miss or any Redis failure.
func (c *RedisEnergyCache) Get(ctx context.Context, userID uuid.UUID) (domain.EnergyState, error) {
	state, err := c.breaker.Execute(func() (domain.EnergyState, error) {
		raw, err := c.client.Get(ctx, energyKey(userID)).Bytes()
		if err != nil {
			return domain.EnergyState{}, err
		}
		var state domain.EnergyState
		if err := json.Unmarshal(raw, &state); err != nil {
			return domain.EnergyState{}, err
		}
		return state, nil
	})
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, redis.Nil) && !errors.Is(err, gobreaker.ErrOpenState) {
		c.logger.Warn("energy cache read failed", "user_id", userID, "error", err)
	}

	state, err = c.inner.Get(ctx, userID)
	if err != nil {
		return domain.EnergyState{}, err
	}
	c.store(ctx, state)
	return state, nil
}

// Set writes through to the inner repository and refreshes the cache.
func (c *RedisEnergyCache) Set(ctx context.Context, userID uuid.UUID, level domain.EnergyLevel, reportedAt time.Time) error {
	if err := c.inner.Set(ctx, userID, level, reportedAt); err != nil {
		return err
	}
	// Re-read so the cached record carries the shifted prior level.
	state, err := c.inner.Get(ctx, userID)
	if err != nil {
		c.drop(ctx, userID)
		return nil
	}
	c.store(ctx, state)
	return nil
}

func (c *RedisEnergyCache) store(ctx context.Context, state domain.EnergyState) {
	raw, err := json.Marshal(state)
	if err != nil {
		return
	}
	_, err = c.breaker.Execute(func() (domain.EnergyState, error) {
		return state, c.client.Set(ctx, energyKey(state.UserID), raw, c.config.TTL).Err()
	})
	if err != nil && !errors.Is(err, gobreaker.ErrOpenState) {
		c.logger.Warn("energy cache write failed", "user_id", state.UserID, "error", err)
	}
}

func (c *RedisEnergyCache) drop(ctx context.Context, userID uuid.UUID) {
	_, err := c.breaker.Execute(func() (domain.EnergyState, error) {
		return domain.EnergyState{}, c.client.Del(ctx, energyKey(userID)).Err()
	})
	if err != nil && !errors.Is(err, gobreaker.ErrOpenState) {
		c.logger.Warn("energy cache invalidation failed", "user_id", userID, "error", err)
	}
}
