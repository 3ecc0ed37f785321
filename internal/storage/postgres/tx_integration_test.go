package postgres

import (
	"context"
	"sync"
	"testing"

	"github.com/vladislavdragonenkov/filmstore/internal/domain"
)

func TestTx_PostgresRollbackDiscardsWrites(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedFilmsForIntegrationTest(t, store, domain.Film{ID: "f-1", Amount: 3, Price: 5})
	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := tx.Films().Save(ctx, domain.Film{ID: "f-1", Amount: 0, Price: 5}); err != nil {
		t.Fatalf("save in tx: %v", err)
	}
	if _, err := tx.Orders().Save(ctx, domain.Order{ID: "o-1", Films: []domain.Film{{ID: "f-1"}}}); err != nil {
		t.Fatalf("save order in tx: %v", err)
	}
	if _, err := tx.Outbox().Enqueue(ctx, domain.OutboxMessage{AggregateType: "order", AggregateID: "o-1", EventType: "x", Payload: []byte(`{}`)}); err != nil {
		t.Fatalf("enqueue in tx: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("second rollback must be a no-op: %v", err)
	}

	film, _, err := NewFilmRepository(store).Find(ctx, "f-1")
	if err != nil {
		t.Fatalf("find film: %v", err)
	}
	if film.Amount != 3 {
		t.Fatalf("expected amount 3 after rollback, got %d", film.Amount)
	}
	if _, ok, _ := NewOrderRepository(store).Find(ctx, "o-1"); ok {
		t.Fatal("order must not exist after rollback")
	}
	stats, err := NewOutboxRepository(store).Stats(ctx)
	if err != nil {
		t.Fatalf("outbox stats: %v", err)
	}
	if stats.PendingCount != 0 {
		t.Fatalf("expected empty outbox after rollback, got %d", stats.PendingCount)
	}
}

// Параллельные транзакции, читающие запись через FOR UPDATE, не теряют обновления.
func TestTx_PostgresRowLockPreventsLostUpdate(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	const workers = 8
	seedFilmsForIntegrationTest(t, store, domain.Film{ID: "hot", Amount: workers, Price: 1})
	ctx := context.Background()

	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			tx, err := store.BeginTx(ctx)
			if err != nil {
				errCh <- err
				return
			}
			defer func() { _ = tx.Rollback() }()

			film, _, err := tx.Films().Find(ctx, "hot")
			if err != nil {
				errCh <- err
				return
			}
			film.Amount--
			if _, err := tx.Films().Save(ctx, film); err != nil {
				errCh <- err
				return
			}
			if err := tx.Commit(); err != nil {
				errCh <- err
			}
		}()
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Fatalf("worker failed: %v", err)
	}

	film, _, err := NewFilmRepository(store).Find(ctx, "hot")
	if err != nil {
		t.Fatalf("find film: %v", err)
	}
	if film.Amount != 0 {
		t.Fatalf("expected amount 0 after %d decrements, got %d", workers, film.Amount)
	}
}
