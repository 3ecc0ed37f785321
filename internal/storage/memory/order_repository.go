package memory

import (
	"context"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/filmstore/internal/domain"
	"github.com/vladislavdragonenkov/filmstore/internal/storage/identity"
)

// orderRow хранит заказ в нормализованном виде: ссылки на позиции каталога по ID.
type orderRow struct {
	id        string
	filmIDs   []string
	createdAt time.Time
}

type orderMapper struct {
	st  *state
	now func() time.Time
}

func (m orderMapper) Key(o domain.Order) string { return domain.OrderKey(o) }

func (m orderMapper) Find(_ context.Context, id string) (domain.Order, bool, error) {
	row, ok := m.st.orders[id]
	if !ok {
		return domain.Order{}, false, nil
	}
	return m.st.resolve(row), true, nil
}

func (m orderMapper) Insert(_ context.Context, o domain.Order) (domain.Order, error) {
	row := orderRow{
		id:        o.ID,
		filmIDs:   o.FilmIDs(),
		createdAt: m.now().UTC(),
	}
	m.st.orders[row.id] = row
	return m.st.resolve(row), nil
}

func (m orderMapper) Replace(_ context.Context, o domain.Order) (domain.Order, error) {
	row := orderRow{
		id:        o.ID,
		filmIDs:   o.FilmIDs(),
		createdAt: m.st.orders[o.ID].createdAt,
	}
	m.st.orders[row.id] = row
	return m.st.resolve(row), nil
}

// resolve подставляет текущее состояние позиций каталога вместо ссылок.
func (s *state) resolve(row orderRow) domain.Order {
	films := make([]domain.Film, 0, len(row.filmIDs))
	for _, id := range row.filmIDs {
		f, ok := s.films[id]
		if !ok {
			f = domain.Film{ID: id}
		}
		films = append(films, f)
	}
	return domain.Order{ID: row.id, Films: films, CreatedAt: row.createdAt}
}

type orderView struct {
	st    *state
	store *identity.Store[domain.Order]
}

func newOrderView(st *state, now func() time.Time) *orderView {
	return &orderView{st: st, store: identity.New[domain.Order]("order", orderMapper{st: st, now: now})}
}

func (v *orderView) FindAll(context.Context) ([]domain.Order, error) {
	orders := make([]domain.Order, 0, len(v.st.orders))
	for _, row := range v.st.orders {
		orders = append(orders, v.st.resolve(row))
	}
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.Before(orders[j].CreatedAt)
		}
		return orders[i].ID < orders[j].ID
	})
	return orders, nil
}

func (v *orderView) Find(ctx context.Context, id string) (domain.Order, bool, error) {
	return v.store.Find(ctx, id)
}

func (v *orderView) Save(ctx context.Context, o domain.Order) (domain.Order, error) {
	return v.store.Save(ctx, o)
}

// OrderRepository — in-memory хранилище заказов.
type OrderRepository struct {
	db *DB
}

// NewOrderRepository возвращает in-memory репозиторий заказов.
func NewOrderRepository(db *DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// FindAll возвращает все заказы в порядке создания.
func (r *OrderRepository) FindAll(ctx context.Context) ([]domain.Order, error) {
	return newOrderView(r.db.snapshot(), r.db.now).FindAll(ctx)
}

// Find возвращает заказ по ID.
func (r *OrderRepository) Find(ctx context.Context, id string) (domain.Order, bool, error) {
	return newOrderView(r.db.snapshot(), r.db.now).Find(ctx, id)
}

// Save вставляет или заменяет заказ в собственной транзакции.
func (r *OrderRepository) Save(ctx context.Context, o domain.Order) (domain.Order, error) {
	return withTx(ctx, r.db, func(tx *Tx) (domain.Order, error) {
		return tx.Orders().Save(ctx, o)
	})
}

var (
	_ domain.OrderRepository = (*OrderRepository)(nil)
	_ domain.OrderRepository = (*orderView)(nil)
)
