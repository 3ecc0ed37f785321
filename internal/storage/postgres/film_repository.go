package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/filmstore/internal/domain"
	"github.com/vladislavdragonenkov/filmstore/internal/storage/identity"
)

const filmColumns = `id, title, director, film_cast, duration_minutes, amount, price`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFilm(row rowScanner) (domain.Film, error) {
	var f domain.Film
	err := row.Scan(&f.ID, &f.Title, &f.Director, &f.Cast, &f.DurationMinutes, &f.Amount, &f.Price)
	return f, err
}

type filmMapper struct {
	q         querier
	forUpdate bool
}

func (m filmMapper) Key(f domain.Film) string { return domain.FilmKey(f) }

func (m filmMapper) Find(ctx context.Context, id string) (domain.Film, bool, error) {
	query := `SELECT ` + filmColumns + ` FROM films WHERE id = $1`
	if m.forUpdate {
		query += ` FOR UPDATE`
	}

	f, err := scanFilm(m.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Film{}, false, nil
		}
		return domain.Film{}, false, fmt.Errorf("select film: %w", err)
	}
	return f, true, nil
}

func (m filmMapper) Insert(ctx context.Context, f domain.Film) (domain.Film, error) {
	_, err := m.q.ExecContext(ctx, `
		INSERT INTO films (`+filmColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		f.ID, f.Title, f.Director, f.Cast, f.DurationMinutes, f.Amount, f.Price,
	)
	if err != nil {
		return domain.Film{}, filmWriteError("insert film", err)
	}
	return f, nil
}

func (m filmMapper) Replace(ctx context.Context, f domain.Film) (domain.Film, error) {
	_, err := m.q.ExecContext(ctx, `
		UPDATE films
		SET title = $2,
		    director = $3,
		    film_cast = $4,
		    duration_minutes = $5,
		    amount = $6,
		    price = $7
		WHERE id = $1
	`,
		f.ID, f.Title, f.Director, f.Cast, f.DurationMinutes, f.Amount, f.Price,
	)
	if err != nil {
		return domain.Film{}, filmWriteError("update film", err)
	}
	return f, nil
}

func filmWriteError(op string, err error) error {
	switch pgErrorCode(err) {
	case pgUniqueViolation:
		return fmt.Errorf("%s: %w", op, domain.ErrFilmAlreadyExists)
	case pgCheckViolation:
		return fmt.Errorf("%s: %w: %v", op, domain.ErrFilmAmountNegative, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

type filmView struct {
	q     querier
	store *identity.Store[domain.Film]
}

func newFilmView(q querier, forUpdate bool) *filmView {
	return &filmView{
		q:     q,
		store: identity.New[domain.Film]("film", filmMapper{q: q, forUpdate: forUpdate}),
	}
}

func (v *filmView) FindAll(ctx context.Context) ([]domain.Film, error) {
	rows, err := v.q.QueryContext(ctx, `SELECT `+filmColumns+` FROM films ORDER BY title, id`)
	if err != nil {
		return nil, fmt.Errorf("list films: %w", err)
	}
	defer rows.Close()

	films := make([]domain.Film, 0)
	for rows.Next() {
		f, err := scanFilm(rows)
		if err != nil {
			return nil, fmt.Errorf("scan film row: %w", err)
		}
		films = append(films, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate film rows: %w", err)
	}

	return films, nil
}

func (v *filmView) Find(ctx context.Context, id string) (domain.Film, bool, error) {
	return v.store.Find(ctx, id)
}

func (v *filmView) Save(ctx context.Context, f domain.Film) (domain.Film, error) {
	return v.store.Save(ctx, f)
}

type filmRepository struct {
	store *Store
}

// NewFilmRepository создаёт PostgreSQL-реализацию FilmRepository.
func NewFilmRepository(store *Store) domain.FilmRepository {
	return &filmRepository{store: store}
}

func (r *filmRepository) FindAll(ctx context.Context) ([]domain.Film, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return newFilmView(r.store.db, false).FindAll(ctx)
}

func (r *filmRepository) Find(ctx context.Context, id string) (domain.Film, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return newFilmView(r.store.db, false).Find(ctx, id)
}

func (r *filmRepository) Save(ctx context.Context, f domain.Film) (domain.Film, error) {
	return withTx(ctx, r.store, func(tx *Tx) (domain.Film, error) {
		return tx.Films().Save(ctx, f)
	})
}

var (
	_ domain.FilmRepository = (*filmRepository)(nil)
	_ domain.FilmRepository = (*filmView)(nil)
)
