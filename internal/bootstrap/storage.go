package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/target/quiz-ui/config"
	"github.com/target/quiz-ui/internal/adapters/filestore"
	"github.com/target/quiz-ui/internal/adapters/memory"
	redisstore "github.com/target/quiz-ui/internal/adapters/redis"
	"github.com/target/quiz-ui/internal/observability/metrics"
	"github.com/target/quiz-ui/internal/ports"
)

// StorageDeps contains what BuildStorage needs for every backend.
type StorageDeps struct {
	Storage config.StorageConfig
	Redis   config.RedisConfig
	// Origin tags this instance's writes on shared backends.
	Origin string
	Logger *slog.Logger
}

// StorageHandle is a ready storage plus the resources to release with it.
type StorageHandle struct {
	Storage ports.Storage
	closeFn func() error
}

// Close releases the backend connection, if any.
func (h StorageHandle) Close() error {
	if h.closeFn == nil {
		return nil
	}
	return h.closeFn()
}

// BuildStorage opens the configured session storage backend.
func BuildStorage(ctx context.Context, deps StorageDeps) (StorageHandle, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Origin == "" {
		return StorageHandle{}, errors.New("storage origin is required")
	}

	switch deps.Storage.Backend {
	case config.StorageMemory:
		logger.WarnContext(ctx, "using in-process session storage; sessions are lost on exit")
		return StorageHandle{Storage: memory.NewBacking().Storage(deps.Origin)}, nil

	case config.StorageRedis:
		client, err := ConnectRedis(ctx, deps.Redis, logger)
		if err != nil {
			return StorageHandle{}, fmt.Errorf("connect redis: %w", err)
		}
		return StorageHandle{
			Storage: redisstore.NewStorage(client, redisstore.StorageOptions{
				Prefix:  deps.Storage.Prefix,
				Channel: deps.Redis.Channel,
				Origin:  deps.Origin,
				Logger:  logger,
			}),
			closeFn: closeRedis(client),
		}, nil

	default:
		st, err := filestore.New(filestore.Config{
			Dir:          deps.Storage.Dir,
			PollInterval: deps.Storage.PollInterval,
			ForcePolling: deps.Storage.ForcePolling,
			Logger:       logger,
		})
		if err != nil {
			return StorageHandle{}, fmt.Errorf("open file storage: %w", err)
		}
		logger.InfoContext(ctx, "session storage ready", "backend", config.StorageFile, "dir", deps.Storage.Dir)
		return StorageHandle{Storage: st}, nil
	}
}

func closeRedis(client redis.UniversalClient) func() error {
	return func() error {
		if err := client.Close(); err != nil {
			return fmt.Errorf("close redis: %w", err)
		}
		return nil
	}
}

// countingStorage counts storage events delivered to the watcher.
type countingStorage struct {
	ports.Storage
	metrics *metrics.AuthMetrics
}

func (s countingStorage) Watch(ctx context.Context, fn func(ports.StorageEvent)) error {
	return s.Storage.Watch(ctx, func(ev ports.StorageEvent) {
		s.metrics.StorageEvent()
		fn(ev)
	})
}

// withEventMetrics wraps st so storage events show up in metrics. A nil m returns st as is.
//
//nolint:ireturn // wrapping keeps the ports.Storage contract.
func withEventMetrics(st ports.Storage, m *metrics.AuthMetrics) ports.Storage {
	if m == nil {
		return st
	}
	return countingStorage{Storage: st, metrics: m}
}
