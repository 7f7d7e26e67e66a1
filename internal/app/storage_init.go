package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/health"
	"github.com/vladislavdragonenkov/bakery/internal/storage/memory"
	"github.com/vladislavdragonenkov/bakery/internal/storage/postgres"
)

// runtimeDependencies: хранилище и его производные, выбранные по STORAGE_DRIVER.
type runtimeDependencies struct {
	store           domain.Store
	outboxRepo      domain.OutboxRepository
	idempotencyRepo domain.IdempotencyRepository
	ping            health.CheckFunc
	closeFn         func() error
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory:
		store := memory.NewStore()
		logger.Info("using in-memory storage")
		return runtimeDependencies{
			store:           store,
			outboxRepo:      store.Outbox(),
			idempotencyRepo: memory.NewIdempotencyRepository(),
			ping:            store.Ping,
			closeFn:         func() error { return nil },
		}, nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return runtimeDependencies{}, fmt.Errorf("postgres dsn is required for storage driver %q", StorageDriverPostgres)
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return runtimeDependencies{}, err
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return runtimeDependencies{}, fmt.Errorf("apply postgres migrations: %w", err)
			}
			logger.Info("postgres schema is up to date")
		}
		logger.Info("using postgres storage")
		return runtimeDependencies{
			store:           store,
			outboxRepo:      store.Outbox(),
			idempotencyRepo: postgres.NewIdempotencyRepository(store),
			ping:            store.Ping,
			closeFn:         store.Close,
		}, nil

	default:
		return runtimeDependencies{}, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func (d runtimeDependencies) close(logger *log.Entry) {
	if d.closeFn == nil {
		return
	}
	if err := d.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}
