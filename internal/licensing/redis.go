package licensing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quotientlabs/quotient/internal/models"
	"github.com/redis/go-redis/v9"
)

// RedisCache is the shared cache tier backed by Redis. Values are JSON-encoded
// license records with a TTL applied on write.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCache creates a RedisCache using the given client and key prefix.
// An empty prefix defaults to "quotient:license".
func NewRedisCache(client redis.UniversalClient, prefix string) *RedisCache {
	trimmed := strings.TrimSpace(prefix)
	if trimmed == "" {
		trimmed = "quotient:license"
	}
	trimmed = strings.TrimSuffix(trimmed, ":")

	return &RedisCache{
		client: client,
		prefix: trimmed,
	}
}

func (c *RedisCache) key(id uuid.UUID) string {
	return c.prefix + ":" + id.String()
}

// Get returns the cached license for id, or (nil, nil) on a miss.
func (c *RedisCache) Get(ctx context.Context, id uuid.UUID) (*models.License, error) {
	payload, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get license: %w", err)
	}

	var lic models.License
	if err := json.Unmarshal(payload, &lic); err != nil {
		return nil, fmt.Errorf("decode cached license: %w", err)
	}
	return &lic, nil
}

// Set writes the license into Redis with the given TTL.
func (c *RedisCache) Set(ctx context.Context, lic *models.License, ttl time.Duration) error {
	payload, err := json.Marshal(lic)
	if err != nil {
		return fmt.Errorf("encode license: %w", err)
	}
	if err := c.client.Set(ctx, c.key(lic.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set license: %w", err)
	}
	return nil
}
