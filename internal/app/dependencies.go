package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/filmstore/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/filmstore/internal/health"
	"github.com/vladislavdragonenkov/filmstore/internal/storage/memory"
	"github.com/vladislavdragonenkov/filmstore/internal/storage/postgres"
)

// runtimeDependencies — хранилища, выбранные по Config.StorageDriver.
type runtimeDependencies struct {
	txs        domain.TxBeginner
	films      domain.FilmRepository
	orders     domain.OrderRepository
	outboxRepo domain.OutboxRepository

	storageChecker healthcheck.Checker
	closeFn        func() error
}

func (d runtimeDependencies) close(logger *log.Entry) {
	if d.closeFn == nil {
		return
	}
	if err := d.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}

// initRuntimeDependencies открывает хранилище и собирает репозитории поверх него.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.StorageDriver)) {
	case "", StorageDriverMemory:
		db := memory.NewDB()
		logger.WithField("driver", StorageDriverMemory).Info("storage initialized")
		return runtimeDependencies{
			txs:            db,
			films:          memory.NewFilmRepository(db),
			orders:         memory.NewOrderRepository(db),
			outboxRepo:     memory.NewOutboxRepository(db),
			storageChecker: healthcheck.NewSimpleChecker("storage", db.Ping),
		}, nil

	case StorageDriverPostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return runtimeDependencies{}, errors.New("postgres storage requires STOREFRONT_POSTGRES_DSN")
		}

		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return runtimeDependencies{}, fmt.Errorf("open postgres store: %w", err)
		}

		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return runtimeDependencies{}, fmt.Errorf("apply postgres migrations: %w", err)
			}
			state, err := store.MigrationStatus(ctx)
			if err != nil {
				_ = store.Close()
				return runtimeDependencies{}, fmt.Errorf("read migration status: %w", err)
			}
			logger.WithFields(log.Fields{
				"version": state.Version,
				"applied": state.Applied,
			}).Info("postgres schema is up to date")
		}

		logger.WithField("driver", StorageDriverPostgres).Info("storage initialized")
		return runtimeDependencies{
			txs:            store,
			films:          postgres.NewFilmRepository(store),
			orders:         postgres.NewOrderRepository(store),
			outboxRepo:     postgres.NewOutboxRepository(store),
			storageChecker: healthcheck.NewSimpleChecker("storage", store.Ping),
			closeFn:        store.Close,
		}, nil

	default:
		return runtimeDependencies{}, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}
