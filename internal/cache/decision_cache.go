// Package cache provides an optional Redis-backed cache for computed
// decision results, shielded by a circuit breaker so a failing Redis
// never blocks decision computation.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/pipe-qc-server/internal/domain"
)

// DecisionCache wraps a Redis client with caching for aggregated
// decision results. Keys are derived from the rounded input values, so
// identical chemistry always hits the same entry.
type DecisionCache struct {
	redis      *redis.Client
	breaker    *gobreaker.CircuitBreaker
	defaultTTL time.Duration
	log        *logrus.Logger
}

// NewDecisionCache creates a decision cache client
func NewDecisionCache(config domain.CacheConfig, logger *logrus.Logger) (*DecisionCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = config.PoolSize
	opts.PoolTimeout = config.PoolTimeout
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	cbSettings := gobreaker.Settings{
		Name:        "DecisionCache",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit_breaker": name,
				"from_state":      from,
				"to_state":        to,
			}).Warn("Circuit breaker state changed")
		},
	}

	return &DecisionCache{
		redis:      client,
		breaker:    gobreaker.NewCircuitBreaker(cbSettings),
		defaultTTL: config.DefaultTTL,
		log:        logger,
	}, nil
}

// cachedResult wraps a decision result with cache metadata.
type cachedResult struct {
	Result    *domain.DecisionResult `json:"result"`
	CachedAt  time.Time              `json:"cached_at"`
	ExpiresAt time.Time              `json:"expires_at"`
}

// Get retrieves a cached decision result for the given input values.
// The second return is false on a miss. Redis failures degrade to a
// miss rather than an error; the breaker stops hammering a dead Redis.
func (c *DecisionCache) Get(ctx context.Context, values map[string]float64) (*domain.DecisionResult, bool) {
	key := c.generateKey(values)

	raw, err := c.breaker.Execute(func() (interface{}, error) {
		return c.redis.Get(ctx, key).Result()
	})
	if err != nil {
		if err != redis.Nil {
			c.log.WithError(err).Debug("Decision cache get failed")
		}
		return nil, false
	}

	var cached cachedResult
	if err := json.Unmarshal([]byte(raw.(string)), &cached); err != nil {
		// Remove corrupted cache entry
		c.redis.Del(ctx, key)
		return nil, false
	}

	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return nil, false
	}

	return cached.Result, true
}

// Set caches a decision result. Failures are logged and swallowed.
func (c *DecisionCache) Set(ctx context.Context, values map[string]float64, result *domain.DecisionResult, ttl time.Duration) {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	key := c.generateKey(values)

	cached := cachedResult{
		Result:    result,
		CachedAt:  time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}

	data, err := json.Marshal(cached)
	if err != nil {
		c.log.WithError(err).Debug("Failed to marshal cached decision")
		return
	}

	if _, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.redis.Set(ctx, key, data, ttl).Err()
	}); err != nil {
		c.log.WithError(err).Debug("Decision cache set failed")
	}
}

// Flush removes every cached decision. Called after rule table edits so
// stale decisions never survive a rule change.
func (c *DecisionCache) Flush(ctx context.Context) error {
	iter := c.redis.Scan(ctx, 0, "decision:*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete cache entry: %w", err)
		}
	}
	return iter.Err()
}

// Close closes the underlying Redis client.
func (c *DecisionCache) Close() error {
	return c.redis.Close()
}

// generateKey builds a deterministic key from the input values. Fields
// are sorted so map iteration order cannot change the key.
func (c *DecisionCache) generateKey(values map[string]float64) string {
	fields := make([]string, 0, len(values))
	for field := range values {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	h := sha256.New()
	for _, field := range fields {
		fmt.Fprintf(h, "%s=%.6f;", field, values[field])
	}
	return fmt.Sprintf("decision:%x", h.Sum(nil))
}
