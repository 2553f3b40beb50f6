// Package app wires configuration, the document store and the creation
// trigger together for the binaries under cmd/.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gartstein/companytrigger/internal/company/config"
	"github.com/gartstein/companytrigger/internal/company/controller"
	"github.com/gartstein/companytrigger/internal/company/db"
	"github.com/gartstein/companytrigger/internal/company/events"
	"github.com/gartstein/companytrigger/internal/company/redisstore"
	"github.com/gartstein/companytrigger/internal/company/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// connectTimeout bounds the startup retries against the store.
const connectTimeout = 30 * time.Second

// Store is a document store that holds connections.
type Store interface {
	store.Store
	Close() error
}

type memoryStore struct {
	*store.Memory
}

func (memoryStore) Close() error { return nil }

// NewLogger initializes a Zap production logger at the given level.
func NewLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return cfg.Build()
}

// OpenStore connects to the configured backend, retrying with exponential
// backoff while it comes up.
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, error) {
	var open func() (Store, error)
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return memoryStore{store.NewMemory()}, nil
	case config.BackendSQL:
		dbConf := &db.Config{
			Driver:     cfg.DBDriver,
			Host:       cfg.DBHost,
			Port:       cfg.DBPort,
			User:       cfg.DBUser,
			Password:   cfg.DBPassword,
			DBName:     cfg.DBName,
			SSLMode:    cfg.DBSSLMode,
			SQLitePath: cfg.SQLitePath,
		}
		open = func() (Store, error) { return db.NewRepository(dbConf) }
	case config.BackendRedis:
		redisConf := redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		}
		open = func() (Store, error) { return redisstore.New(ctx, redisConf, logger) }
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = connectTimeout

	var st Store
	err := backoff.RetryNotify(func() error {
		var err error
		st, err = open()
		return err
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		logger.Warn("store not ready, retrying",
			zap.String("backend", cfg.StoreBackend),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.StoreBackend, err)
	}
	return st, nil
}

// EventHandler adapts the creation trigger to an event delivery callback.
func EventHandler(h *controller.CompanyCreateHandler) events.Handler {
	return func(ctx context.Context, ev events.Event) error {
		return h.Handle(ctx, ev.Snapshot(), ev.Context())
	}
}
