package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SettledTTL is how long a settled marker is kept.
const SettledTTL = 7 * 24 * time.Hour

// CacheService keeps short-lived markers for donations that are already
// settled. It is only a fast path: the database stays authoritative.
type CacheService struct {
	client *redis.Client
	logger *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCacheService connects to redis and pings it.
func NewCacheService(addr, password string, db int, logger *zap.Logger) (*CacheService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            addr,
		Password:        password,
		DB:              db,
		PoolSize:        50,
		MinIdleConns:    5,
		PoolTimeout:     4 * time.Second,
		ConnMaxIdleTime: 5 * time.Minute,
		ConnMaxLifetime: 30 * time.Minute,
		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Info("redis connected", zap.String("addr", addr))

	return NewCacheServiceFromClient(client, logger), nil
}

func NewCacheServiceFromClient(client *redis.Client, logger *zap.Logger) *CacheService {
	return &CacheService{
		client: client,
		logger: logger,
	}
}

// SettledKey formats the marker key for a tx_ref
func SettledKey(txRef string) string {
	return fmt.Sprintf("donation:settled:v1:%s", txRef)
}

// IsSettled reports whether txRef was marked settled. A miss is not an error.
func (c *CacheService) IsSettled(ctx context.Context, txRef string) (bool, error) {
	_, err := c.client.Get(ctx, SettledKey(txRef)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.misses.Add(1)
			return false, nil
		}
		return false, fmt.Errorf("cache get: %w", err)
	}

	c.hits.Add(1)
	return true, nil
}

// MarkSettled records txRef as settled. Call only after the settlement is
// committed.
func (c *CacheService) MarkSettled(ctx context.Context, txRef, donationID string) error {
	if err := c.client.Set(ctx, SettledKey(txRef), donationID, SettledTTL).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Stats returns hit and miss counts since start.
func (c *CacheService) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Ping checks redis health
func (c *CacheService) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *CacheService) Close() error {
	return c.client.Close()
}
