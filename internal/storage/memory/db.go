package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/filmstore/internal/domain"
)

// state — согласованный снимок всех таблиц in-memory хранилища.
// Опубликованный снимок не изменяется: транзакция работает на копии и подменяет его при Commit.
type state struct {
	films  map[string]domain.Film
	orders map[string]orderRow
	outbox map[string]outboxRecord
}

func newState() *state {
	return &state{
		films:  make(map[string]domain.Film),
		orders: make(map[string]orderRow),
		outbox: make(map[string]outboxRecord),
	}
}

func (s *state) clone() *state {
	next := &state{
		films:  make(map[string]domain.Film, len(s.films)),
		orders: make(map[string]orderRow, len(s.orders)),
		outbox: make(map[string]outboxRecord, len(s.outbox)),
	}
	for k, v := range s.films {
		next.films[k] = v
	}
	// Срезы filmIDs после записи не меняются, поэтому их можно разделять между снимками.
	for k, v := range s.orders {
		next.orders[k] = v
	}
	for k, v := range s.outbox {
		next.outbox[k] = v
	}
	return next
}

// Option настраивает DB.
type Option func(*DB)

// WithClock задаёт источник времени для назначаемых хранилищем меток.
func WithClock(now func() time.Time) Option {
	return func(db *DB) {
		if now != nil {
			db.now = now
		}
	}
}

// DB — транзакционное in-memory хранилище для локальной разработки и тестов.
// Одновременно открыта не более одной пишущей транзакции; чтение вне транзакций
// работает по последнему зафиксированному снимку и не блокируется.
type DB struct {
	writer chan struct{}

	mu   sync.RWMutex
	data *state

	now func() time.Time
}

// NewDB создаёт пустое хранилище.
func NewDB(options ...Option) *DB {
	db := &DB{
		writer: make(chan struct{}, 1),
		data:   newState(),
		now:    time.Now,
	}
	for _, option := range options {
		option(db)
	}
	return db
}

// BeginTx открывает транзакцию, ожидая освобождения хранилища или отмены ctx.
func (db *DB) BeginTx(ctx context.Context) (domain.Tx, error) {
	tx, err := db.begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// Ping всегда успешен; нужен для health checks наравне с PostgreSQL.
func (db *DB) Ping(context.Context) error {
	return nil
}

func (db *DB) begin(ctx context.Context) (*Tx, error) {
	// select выбирает готовую ветку случайно, поэтому отменённый ctx проверяется отдельно.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("acquire memory store: %w", err)
	}
	select {
	case db.writer <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire memory store: %w", ctx.Err())
	}

	return &Tx{db: db, staged: db.snapshot().clone()}, nil
}

func (db *DB) snapshot() *state {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.data
}

func (db *DB) publish(next *state) {
	db.mu.Lock()
	db.data = next
	db.mu.Unlock()
}

func (db *DB) release() {
	<-db.writer
}

// Tx — транзакция над копией снимка. Не предназначена для конкурентного использования.
type Tx struct {
	db     *DB
	staged *state
	done   bool
}

// Films возвращает репозиторий каталога в рамках транзакции.
func (tx *Tx) Films() domain.FilmRepository {
	return newFilmView(tx.staged)
}

// Orders возвращает репозиторий заказов в рамках транзакции.
func (tx *Tx) Orders() domain.OrderRepository {
	return newOrderView(tx.staged, tx.db.now)
}

// Outbox возвращает outbox в рамках транзакции.
func (tx *Tx) Outbox() domain.OutboxWriter {
	return newOutboxView(tx.staged, tx.db.now)
}

// Commit публикует изменения транзакции.
func (tx *Tx) Commit() error {
	if tx.done {
		return domain.ErrTxClosed
	}
	tx.done = true
	tx.db.publish(tx.staged)
	tx.db.release()
	return nil
}

// Rollback отбрасывает изменения транзакции.
func (tx *Tx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.db.release()
	return nil
}

// withTx выполняет fn в отдельной транзакции и фиксирует её при успехе.
func withTx[T any](ctx context.Context, db *DB, fn func(tx *Tx) (T, error)) (T, error) {
	var zero T

	tx, err := db.begin(ctx)
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
	_ domain.TxBeginner = (*DB)(nil)
	_ domain.Tx         = (*Tx)(nil)
)
