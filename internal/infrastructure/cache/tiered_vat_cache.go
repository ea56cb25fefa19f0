package cache

import (
	"context"
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"go.uber.org/zap"
)

const defaultL1TTL = 5 * time.Minute

// TieredVATCache reads through a local L1 to the shared Redis L2. Writes
// go to both; L1 entries live at most l1TTL.
type TieredVATCache struct {
	l1     *InMemoryVATCache
	l2     *RedisVATCache
	l1TTL  time.Duration
	logger *zap.Logger
}

// NewTieredVATCache combines the two tiers
func NewTieredVATCache(l1 *InMemoryVATCache, l2 *RedisVATCache, logger *zap.Logger) *TieredVATCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TieredVATCache{l1: l1, l2: l2, l1TTL: defaultL1TTL, logger: logger}
}

// Get tries L1, then L2, populating L1 on an L2 hit
func (c *TieredVATCache) Get(ctx context.Context, vat string) (*invoicing.VATValidation, error) {
	if result, _ := c.l1.Get(ctx, vat); result != nil {
		return result, nil
	}
	result, err := c.l2.Get(ctx, vat)
	if err != nil || result == nil {
		return nil, err
	}
	_ = c.l1.Set(ctx, vat, result, c.l1TTL)
	return result, nil
}

// Set writes L2 first; L1 is updated even when L2 fails
func (c *TieredVATCache) Set(ctx context.Context, vat string, result *invoicing.VATValidation, ttl time.Duration) error {
	_ = c.l1.Set(ctx, vat, result, min(ttl, c.l1TTL))
	if err := c.l2.Set(ctx, vat, result, ttl); err != nil {
		c.logger.Warn("Failed to write VAT verdict to L2", zap.String("vat", vat), zap.Error(err))
		return err
	}
	return nil
}

// Close stops the L1 eviction loop
func (c *TieredVATCache) Close() error {
	return c.l1.Close()
}
