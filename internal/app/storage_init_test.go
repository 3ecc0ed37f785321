package app

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/filmstore/internal/health"
)

func TestInitRuntimeDependencies_Memory(t *testing.T) {
	t.Parallel()

	deps, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverMemory,
	}, log.WithField("test", "memory-storage"))
	if err != nil {
		t.Fatalf("initRuntimeDependencies(memory) failed: %v", err)
	}
	if deps.txs == nil || deps.films == nil || deps.orders == nil || deps.outboxRepo == nil {
		t.Fatalf("memory dependencies must be initialized: %+v", deps)
	}
	if deps.closeFn != nil {
		t.Fatal("memory storage has nothing to close")
	}
	if check := deps.storageChecker.Check(context.Background()); check.Status != healthcheck.StatusHealthy {
		t.Fatalf("expected healthy memory storage, got %+v", check)
	}
}

func TestInitRuntimeDependencies_MemorySharesState(t *testing.T) {
	t.Parallel()

	deps, err := initRuntimeDependencies(context.Background(), DefaultConfig(), log.WithField("test", "memory-shared"))
	if err != nil {
		t.Fatalf("initRuntimeDependencies failed: %v", err)
	}

	ctx := context.Background()
	tx, err := deps.txs.BeginTx(ctx)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	if _, err := tx.Films().Save(ctx, filmFixture("film-1")); err != nil {
		t.Fatalf("save film in tx: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if _, ok, err := deps.films.Find(ctx, "film-1"); err != nil || !ok {
		t.Fatalf("film committed through tx must be visible to repository: ok=%v err=%v", ok, err)
	}
}

func TestInitRuntimeDependencies_PostgresRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverPostgres,
	}, log.WithField("test", "postgres-missing-dsn"))
	if err == nil {
		t.Fatal("expected error when postgres driver is selected without DSN")
	}
}

func TestInitRuntimeDependencies_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: "sqlite",
	}, log.WithField("test", "unsupported-driver"))
	if err == nil {
		t.Fatal("expected error for unsupported storage driver")
	}
}
