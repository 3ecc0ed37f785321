package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/filmstore/internal/domain"
	"github.com/vladislavdragonenkov/filmstore/internal/storage/identity"
)

type orderMapper struct {
	q     querier
	clock func() time.Time
}

func (m orderMapper) Key(o domain.Order) string { return domain.OrderKey(o) }

func (m orderMapper) Find(ctx context.Context, id string) (domain.Order, bool, error) {
	var order domain.Order
	err := m.q.QueryRowContext(ctx, `
		SELECT id, created_at
		FROM orders
		WHERE id = $1
	`, id).Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, false, nil
		}
		return domain.Order{}, false, fmt.Errorf("select order: %w", err)
	}
	order.CreatedAt = order.CreatedAt.UTC()

	films, err := loadOrderFilms(ctx, m.q, order.ID)
	if err != nil {
		return domain.Order{}, false, err
	}
	order.Films = films

	return order, true, nil
}

func (m orderMapper) Insert(ctx context.Context, o domain.Order) (domain.Order, error) {
	createdAt := m.clock()

	if _, err := m.q.ExecContext(ctx, `
		INSERT INTO orders (id, created_at) VALUES ($1, $2)
	`, o.ID, createdAt); err != nil {
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}
	if err := insertOrderFilms(ctx, m.q, o); err != nil {
		return domain.Order{}, err
	}

	return m.resolved(ctx, o.ID, createdAt)
}

func (m orderMapper) Replace(ctx context.Context, o domain.Order) (domain.Order, error) {
	var createdAt time.Time
	if err := m.q.QueryRowContext(ctx, `
		SELECT created_at FROM orders WHERE id = $1
	`, o.ID).Scan(&createdAt); err != nil {
		return domain.Order{}, fmt.Errorf("select order created_at: %w", err)
	}

	if _, err := m.q.ExecContext(ctx, `DELETE FROM order_films WHERE order_id = $1`, o.ID); err != nil {
		return domain.Order{}, fmt.Errorf("delete order films: %w", err)
	}
	if err := insertOrderFilms(ctx, m.q, o); err != nil {
		return domain.Order{}, err
	}

	return m.resolved(ctx, o.ID, createdAt.UTC())
}

func (m orderMapper) resolved(ctx context.Context, id string, createdAt time.Time) (domain.Order, error) {
	films, err := loadOrderFilms(ctx, m.q, id)
	if err != nil {
		return domain.Order{}, err
	}
	return domain.Order{ID: id, Films: films, CreatedAt: createdAt}, nil
}

func insertOrderFilms(ctx context.Context, q querier, o domain.Order) error {
	for position, f := range o.Films {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO order_films (order_id, position, film_id)
			VALUES ($1,$2,$3)
		`, o.ID, position, f.ID); err != nil {
			if pgErrorCode(err) == pgFKViolation {
				return fmt.Errorf("insert order film %q: %w", f.ID, domain.ErrFilmNotFound)
			}
			return fmt.Errorf("insert order film: %w", err)
		}
	}
	return nil
}

func loadOrderFilms(ctx context.Context, q querier, orderID string) ([]domain.Film, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT f.id, f.title, f.director, f.film_cast, f.duration_minutes, f.amount, f.price
		FROM order_films ofm
		JOIN films f ON f.id = ofm.film_id
		WHERE ofm.order_id = $1
		ORDER BY ofm.position
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order films: %w", err)
	}
	defer rows.Close()

	films := make([]domain.Film, 0)
	for rows.Next() {
		f, err := scanFilm(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order film: %w", err)
		}
		films = append(films, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order films: %w", err)
	}

	return films, nil
}

type orderView struct {
	q     querier
	store *identity.Store[domain.Order]
}

func newOrderView(q querier, clock func() time.Time) *orderView {
	return &orderView{
		q:     q,
		store: identity.New[domain.Order]("order", orderMapper{q: q, clock: clock}),
	}
}

// FindAll читает заказы и их позиции двумя запросами, чтобы не держать
// несколько открытых курсоров на одном соединении транзакции.
func (v *orderView) FindAll(ctx context.Context) ([]domain.Order, error) {
	rows, err := v.q.QueryContext(ctx, `
		SELECT id, created_at
		FROM orders
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders := make([]domain.Order, 0)
	index := make(map[string]int)
	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.ID, &order.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		order.CreatedAt = order.CreatedAt.UTC()
		order.Films = make([]domain.Film, 0)
		index[order.ID] = len(orders)
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	rows.Close()

	filmRows, err := v.q.QueryContext(ctx, `
		SELECT ofm.order_id, f.id, f.title, f.director, f.film_cast, f.duration_minutes, f.amount, f.price
		FROM order_films ofm
		JOIN films f ON f.id = ofm.film_id
		ORDER BY ofm.order_id, ofm.position
	`)
	if err != nil {
		return nil, fmt.Errorf("list order films: %w", err)
	}
	defer filmRows.Close()

	for filmRows.Next() {
		var (
			orderID string
			f       domain.Film
		)
		if err := filmRows.Scan(
			&orderID, &f.ID, &f.Title, &f.Director, &f.Cast, &f.DurationMinutes, &f.Amount, &f.Price,
		); err != nil {
			return nil, fmt.Errorf("scan order film row: %w", err)
		}
		i, ok := index[orderID]
		if !ok {
			// Заказ создан после первого запроса.
			continue
		}
		orders[i].Films = append(orders[i].Films, f)
	}
	if err := filmRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order film rows: %w", err)
	}

	return orders, nil
}

func (v *orderView) Find(ctx context.Context, id string) (domain.Order, bool, error) {
	return v.store.Find(ctx, id)
}

func (v *orderView) Save(ctx context.Context, o domain.Order) (domain.Order, error) {
	return v.store.Save(ctx, o)
}

type orderRepository struct {
	store *Store
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{store: store}
}

func (r *orderRepository) FindAll(ctx context.Context) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return newOrderView(r.store.db, r.store.clock).FindAll(ctx)
}

func (r *orderRepository) Find(ctx context.Context, id string) (domain.Order, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return newOrderView(r.store.db, r.store.clock).Find(ctx, id)
}

func (r *orderRepository) Save(ctx context.Context, o domain.Order) (domain.Order, error) {
	return withTx(ctx, r.store, func(tx *Tx) (domain.Order, error) {
		return tx.Orders().Save(ctx, o)
	})
}

var (
	_ domain.OrderRepository = (*orderRepository)(nil)
	_ domain.OrderRepository = (*orderView)(nil)
)
