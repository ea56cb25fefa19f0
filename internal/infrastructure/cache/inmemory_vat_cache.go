package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
)

const defaultCleanupInterval = 30 * time.Second

type cacheEntry[T any] struct {
	value     T
	expiresAt time.Time
}

func (e *cacheEntry[T]) isExpired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// InMemoryVATCache holds VAT verdicts in process memory. It serves as L1
// in front of Redis, or alone when Redis is not configured.
type InMemoryVATCache struct {
	entries   sync.Map // map[string]*cacheEntry[invoicing.VATValidation]
	now       func() time.Time
	stopCh    chan struct{}
	closeOnce sync.Once

	hits   int64
	misses int64
}

// NewInMemoryVATCache creates the cache and starts its eviction loop
func NewInMemoryVATCache() *InMemoryVATCache {
	c := &InMemoryVATCache{
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
	go c.cleanupLoop(defaultCleanupInterval)
	return c
}

// Get returns the cached verdict, or nil on a miss
func (c *InMemoryVATCache) Get(_ context.Context, vat string) (*invoicing.VATValidation, error) {
	if value, ok := c.entries.Load(vat); ok {
		entry := value.(*cacheEntry[invoicing.VATValidation])
		if !entry.isExpired(c.now()) {
			atomic.AddInt64(&c.hits, 1)
			result := entry.value
			return &result, nil
		}
		c.entries.Delete(vat)
	}
	atomic.AddInt64(&c.misses, 1)
	return nil, nil
}

// Set stores a copy of result for ttl
func (c *InMemoryVATCache) Set(_ context.Context, vat string, result *invoicing.VATValidation, ttl time.Duration) error {
	if result == nil {
		return nil
	}
	c.entries.Store(vat, &cacheEntry[invoicing.VATValidation]{value: *result, expiresAt: c.now().Add(ttl)})
	return nil
}

// Stats returns hit and miss counts
func (c *InMemoryVATCache) Stats() (hits, misses int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses)
}

// Close stops the eviction loop. Safe to call multiple times.
func (c *InMemoryVATCache) Close() error {
	c.closeOnce.Do(func() { close(c.stopCh) })
	return nil
}

func (c *InMemoryVATCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

func (c *InMemoryVATCache) cleanup() {
	now := c.now()
	c.entries.Range(func(key, value any) bool {
		if value.(*cacheEntry[invoicing.VATValidation]).isExpired(now) {
			c.entries.Delete(key)
		}
		return true
	})
}
