package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations. The Community
// tier uses the bounded in-process LRU; the Pro tier layers Redis
// behind it (two-phase).
type Cache interface {
	// Get retrieves a value. Returns nil, nil if the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value.
	Delete(ctx context.Context, key string) error

	// GetDecision retrieves a cached decision.
	GetDecision(ctx context.Context, decisionID string) (*FraudDecision, error)

	// SetDecision caches a decision for fast retrieval.
	SetDecision(ctx context.Context, decision *FraudDecision, ttl time.Duration) error

	// IncrementCounter atomically increments a windowed counter and
	// returns the new value. Backs the per-user velocity rule.
	IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings: check local first, then Redis
	EnableTwoPhase bool
}
