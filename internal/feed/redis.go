package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "options-desk/internal/errors"
	"options-desk/internal/models"
)

// keyPrefix namespaces live price keys in Redis.
const keyPrefix = "desk:live:"

// RedisCache is a PriceCache backed by Redis, for deployments where
// the feed collector and the API server run as separate processes.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ PriceCache = (*RedisCache)(nil)

// NewRedisCache creates a Redis-backed price cache. Entries expire
// after ttl so stale prices age out when the feed stops.
func NewRedisCache(addr, password string, db int, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisCache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		ttl: ttl,
	}
}

// Ping verifies connectivity to Redis.
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// Set stores the latest price for a symbol.
func (r *RedisCache) Set(ctx context.Context, price models.LivePrice) error {
	data, err := json.Marshal(price)
	if err != nil {
		return fmt.Errorf("failed to marshal price: %w", err)
	}
	if err := r.client.Set(ctx, keyPrefix+price.Symbol, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set price: %w", err)
	}
	return nil
}

// Get returns the latest price for a symbol.
func (r *RedisCache) Get(ctx context.Context, symbol string) (*models.LivePrice, error) {
	data, err := r.client.Get(ctx, keyPrefix+symbol).Bytes()
	if err == redis.Nil {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get price: %w", err)
	}

	var price models.LivePrice
	if err := json.Unmarshal(data, &price); err != nil {
		return nil, fmt.Errorf("failed to unmarshal price: %w", err)
	}
	return &price, nil
}

// Snapshot returns all cached prices.
func (r *RedisCache) Snapshot(ctx context.Context) (map[string]models.LivePrice, error) {
	out := make(map[string]models.LivePrice)

	iter := r.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := r.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var price models.LivePrice
		if err := json.Unmarshal(data, &price); err != nil {
			continue
		}
		out[price.Symbol] = price
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan prices: %w", err)
	}
	return out, nil
}
