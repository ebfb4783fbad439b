package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerConfig tunes the circuit breaker around Redis calls
type BreakerConfig struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// DefaultBreakerConfig opens after 5 consecutive failures and probes again
// after 30 seconds
var DefaultBreakerConfig = BreakerConfig{
	MaxRequests:         1,
	Interval:            time.Minute,
	Timeout:             30 * time.Second,
	ConsecutiveFailures: 5,
}

// Cache implements domain.Cache on Redis. Calls go through a circuit
// breaker so an unreachable Redis fails fast instead of stalling transfers.
type Cache struct {
	client  redis.UniversalClient
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewCache wraps client with a breaker built from cfg
func NewCache(client redis.UniversalClient, cfg BreakerConfig, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cache{client: client, logger: logger}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-cache",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return c
}

type cacheMiss struct{}

func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		value, err := c.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return cacheMiss{}, nil
		}
		return value, err
	})
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if _, miss := result.(cacheMiss); miss {
		return "", false, nil
	}
	return result.(string), true, nil
}

func (c *Cache) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.client.Set(ctx, key, value, ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (c *Cache) Forget(ctx context.Context, key string) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.client.Del(ctx, key).Err()
	})
	if err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// State reports the breaker state ("closed", "half-open" or "open")
func (c *Cache) State() string {
	return c.breaker.State().String()
}

// Check pings Redis for readiness probes
func (c *Cache) Check(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
