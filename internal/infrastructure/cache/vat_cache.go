package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultVATPrefix = "invoicing:vat:"

// RedisVATCache keeps registry verdicts on VAT numbers in Redis, shared by
// every instance
type RedisVATCache struct {
	client    redis.UniversalClient
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisVATCache creates a cache on an existing client. The caller keeps
// ownership of the client.
func NewRedisVATCache(client redis.UniversalClient, keyPrefix string, logger *zap.Logger) *RedisVATCache {
	if keyPrefix == "" {
		keyPrefix = defaultVATPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisVATCache{client: client, keyPrefix: keyPrefix, logger: logger}
}

// Get returns the cached verdict, or nil on a miss
func (c *RedisVATCache) Get(ctx context.Context, vat string) (*invoicing.VATValidation, error) {
	key := c.keyPrefix + vat

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.logger.Debug("Cache miss for VAT number", zap.String("vat", vat))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get VAT verdict from cache: %w", err)
	}

	var result invoicing.VATValidation
	if err := json.Unmarshal(data, &result); err != nil {
		// corrupted entries are dropped
		_ = c.client.Del(ctx, key)
		return nil, fmt.Errorf("failed to unmarshal VAT verdict: %w", err)
	}
	return &result, nil
}

// Set stores a verdict for ttl
func (c *RedisVATCache) Set(ctx context.Context, vat string, result *invoicing.VATValidation, ttl time.Duration) error {
	if result == nil {
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal VAT verdict: %w", err)
	}
	if err := c.client.Set(ctx, c.keyPrefix+vat, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set VAT verdict in cache: %w", err)
	}
	c.logger.Debug("Cached VAT verdict", zap.String("vat", vat), zap.Duration("ttl", ttl))
	return nil
}
