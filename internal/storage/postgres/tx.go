package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/filmstore/internal/domain"
)

// Tx — транзакция PostgreSQL уровня READ COMMITTED.
// Films().Find внутри неё выполняет SELECT ... FOR UPDATE.
type Tx struct {
	tx     *sql.Tx
	cancel context.CancelFunc
	clock  func() time.Time
	done   bool
}

// BeginTx открывает транзакцию. Она откатывается автоматически по истечении txTimeout.
func (s *Store) BeginTx(ctx context.Context) (domain.Tx, error) {
	return s.begin(ctx)
}

func (s *Store) begin(ctx context.Context) (*Tx, error) {
	if s == nil || s.db == nil {
		return nil, errStoreNotInitialized
	}

	txCtx, cancel := context.WithTimeout(ctx, txTimeout)
	tx, err := s.db.BeginTx(txCtx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("begin tx: %w", err)
	}

	return &Tx{tx: tx, cancel: cancel, clock: s.clock}, nil
}

// Films возвращает репозиторий каталога с блокировкой строк.
func (t *Tx) Films() domain.FilmRepository {
	return newFilmView(t.tx, true)
}

// Orders возвращает репозиторий заказов в рамках транзакции.
func (t *Tx) Orders() domain.OrderRepository {
	return newOrderView(t.tx, t.clock)
}

// Outbox возвращает outbox в рамках транзакции.
func (t *Tx) Outbox() domain.OutboxWriter {
	return newOutboxView(t.tx, t.clock)
}

// Commit фиксирует транзакцию.
func (t *Tx) Commit() error {
	if t.done {
		return domain.ErrTxClosed
	}
	t.done = true
	defer t.cancel()

	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Rollback откатывает транзакцию. После Commit ничего не делает.
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.cancel()

	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback tx: %w", err)
	}
	return nil
}

// withTx выполняет fn в отдельной транзакции и фиксирует её при успехе.
func withTx[T any](ctx context.Context, s *Store, fn func(tx *Tx) (T, error)) (T, error) {
	var zero T

	tx, err := s.begin(ctx)
	if err != nil {
		return zero, err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := fn(tx)
	if err != nil {
		return zero, err
	}
	if err := tx.Commit(); err != nil {
		return zero, err
	}
	return result, nil
}

var (
	_ domain.TxBeginner = (*Store)(nil)
	_ domain.Tx         = (*Tx)(nil)
)
