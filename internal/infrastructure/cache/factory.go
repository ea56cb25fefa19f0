package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Factory builds the Redis-backed collaborators of the invoice service,
// falling back to process-local ones when Redis is not reachable.
type Factory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool

	mu     sync.Mutex
	client redis.UniversalClient
}

// FactoryOption is a functional option for configuring the factory
type FactoryOption func(*Factory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether the idempotency store may fall
// back to memory when Redis is unavailable. Default true.
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *Factory) {
		f.allowInMemoryFallback = allow
	}
}

// WithClient reuses an existing Redis client instead of dialing one
func WithClient(client redis.UniversalClient) FactoryOption {
	return func(f *Factory) {
		f.client = client
	}
}

// NewFactory creates a new factory
func NewFactory(cfg config.RedisConfig, opts ...FactoryOption) *Factory {
	f := &Factory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Factory) redisClient(ctx context.Context) (redis.UniversalClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client != nil {
		return f.client, nil
	}
	client, err := NewRedisClient(ctx, f.redisConfig)
	if err != nil {
		return nil, err
	}
	f.client = client
	return client, nil
}

// IdempotencyStore returns the Redis store, or the in-memory one when
// Redis is down and fallback is allowed.
func (f *Factory) IdempotencyStore(ctx context.Context) (shared.IdempotencyStore, error) {
	client, err := f.redisClient(ctx)
	if err == nil {
		f.logger.Info("Using Redis idempotency store")
		return NewRedisIdempotencyStore(client, ""), nil
	}
	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis required for idempotency but unavailable: %w", err)
	}
	f.logger.Warn("Redis unavailable, falling back to in-memory idempotency store; "+
		"retries hitting another instance will not be deduplicated",
		zap.Error(err),
	)
	return NewInMemoryIdempotencyStore(), nil
}

// SerialCounter returns the counter store selected by backend. The
// database backend returns nil: the transaction scope then allocates
// inside the invoice transaction.
func (f *Factory) SerialCounter(ctx context.Context, backend string) (invoicing.SerialCounterStore, error) {
	switch backend {
	case config.CounterBackendDatabase, "":
		return nil, nil
	case config.CounterBackendMemory:
		f.logger.Warn("Using in-memory serial counter; numbers restart with the process")
		return NewInMemorySerialCounter(), nil
	case config.CounterBackendRedis:
		client, err := f.redisClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("redis serial counter: %w", err)
		}
		return NewRedisSerialCounter(client, ""), nil
	default:
		return nil, fmt.Errorf("unknown counter backend %q", backend)
	}
}

// VATCache is the verdict cache handed to the VAT validator
type VATCache interface {
	Get(ctx context.Context, vat string) (*invoicing.VATValidation, error)
	Set(ctx context.Context, vat string, result *invoicing.VATValidation, ttl time.Duration) error
	Close() error
}

// VATCache returns a Redis-backed tiered cache, or a local one when Redis
// is unavailable. Verdicts are advisory, so the fallback is always allowed.
func (f *Factory) VATCache(ctx context.Context) VATCache {
	client, err := f.redisClient(ctx)
	if err != nil {
		f.logger.Warn("Redis unavailable, caching VAT verdicts in memory", zap.Error(err))
		return NewInMemoryVATCache()
	}
	return NewTieredVATCache(NewInMemoryVATCache(), NewRedisVATCache(client, "", f.logger), f.logger)
}

// Ping reports whether Redis answers. It dials lazily like the other
// accessors.
func (f *Factory) Ping(ctx context.Context) error {
	client, err := f.redisClient(ctx)
	if err != nil {
		return err
	}
	return client.Ping(ctx).Err()
}

// Close closes the shared client, if one was dialed
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client == nil {
		return nil
	}
	return f.client.Close()
}
