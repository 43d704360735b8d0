package cache

import (
	"context"
	"fmt"

	"github.com/clinic/backend/internal/domain/shared"
	"github.com/clinic/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// StoreMode says what OpenIdempotencyStore does when Redis is configured but
// cannot be reached
type StoreMode int

const (
	// DegradeToMemory keeps the process up with a per-instance store
	DegradeToMemory StoreMode = iota
	// RequireRedis fails startup instead
	RequireRedis
)

// OpenIdempotencyStore picks the store for webhook and handler dedup. No Redis
// host means the in-memory store.
func OpenIdempotencyStore(ctx context.Context, cfg config.RedisConfig, mode StoreMode, logger *zap.Logger) (shared.IdempotencyStore, error) {
	if !cfg.Enabled() {
		logger.Info("idempotency keys kept in memory")
		return NewInMemoryIdempotencyStore(), nil
	}

	store, err := NewRedisIdempotencyStore(ctx, cfg)
	switch {
	case err == nil:
		logger.Info("idempotency keys kept in redis", zap.String("addr", cfg.Addr()))
		return store, nil
	case mode == RequireRedis:
		return nil, fmt.Errorf("redis idempotency store at %s: %w", cfg.Addr(), err)
	}

	logger.Warn("redis unreachable, idempotency keys kept in memory; duplicates across instances go undetected",
		zap.String("addr", cfg.Addr()),
		zap.Error(err),
	)
	return NewInMemoryIdempotencyStore(), nil
}
