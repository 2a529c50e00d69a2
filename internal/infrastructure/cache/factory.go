package cache

import (
	"fmt"

	"go.uber.org/zap"

	appgoal "github.com/goalledger/backend/internal/application/goal"
	"github.com/goalledger/backend/internal/infrastructure/config"
)

// ControlsStoreFactory creates controls stores based on configuration
type ControlsStoreFactory struct {
	redisConfig           config.RedisConfig
	initial               appgoal.Controls
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// ControlsStoreFactoryOption is a functional option for configuring the factory
type ControlsStoreFactoryOption func(*ControlsStoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) ControlsStoreFactoryOption {
	return func(f *ControlsStoreFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to the in-memory store
// when Redis is unavailable. Default is true.
func WithInMemoryFallback(allow bool) ControlsStoreFactoryOption {
	return func(f *ControlsStoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewControlsStoreFactory creates a new factory. The initial controls seed
// whichever store gets created.
func NewControlsStoreFactory(cfg config.RedisConfig, initial appgoal.Controls, opts ...ControlsStoreFactoryOption) *ControlsStoreFactory {
	f := &ControlsStoreFactory{
		redisConfig:           cfg,
		initial:               initial,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateRedisStore creates a Redis-backed controls store
func (f *ControlsStoreFactory) CreateRedisStore() (appgoal.ControlsStore, error) {
	store, err := NewRedisControlsStore(RedisConfig{
		Addr:     f.redisConfig.Addr,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	}, f.initial)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis controls store: %w", err)
	}
	return store, nil
}

// CreateInMemoryStore creates an in-memory controls store.
// WARNING: in-memory stores do not share state across process instances,
// so admin changes on one instance are invisible to the others.
func (f *ControlsStoreFactory) CreateInMemoryStore() appgoal.ControlsStore {
	return NewInMemoryControlsStore(f.initial)
}

// CreateStore tries Redis first and falls back to the in-memory store when
// Redis is unavailable and fallback is allowed.
func (f *ControlsStoreFactory) CreateStore() (appgoal.ControlsStore, error) {
	store, err := f.CreateRedisStore()
	if err == nil {
		f.logger.Info("using Redis controls store", zap.String("addr", f.redisConfig.Addr))
		return store, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis controls store unavailable and fallback disabled: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory controls store",
		zap.String("addr", f.redisConfig.Addr),
		zap.Error(err))
	return f.CreateInMemoryStore(), nil
}
