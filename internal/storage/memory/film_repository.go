package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/filmstore/internal/domain"
	"github.com/vladislavdragonenkov/filmstore/internal/storage/identity"
)

type filmMapper struct {
	st *state
}

func (m filmMapper) Key(f domain.Film) string { return domain.FilmKey(f) }

func (m filmMapper) Find(_ context.Context, id string) (domain.Film, bool, error) {
	f, ok := m.st.films[id]
	return f, ok, nil
}

func (m filmMapper) Insert(_ context.Context, f domain.Film) (domain.Film, error) {
	m.st.films[f.ID] = f
	return f, nil
}

func (m filmMapper) Replace(_ context.Context, f domain.Film) (domain.Film, error) {
	m.st.films[f.ID] = f
	return f, nil
}

// filmView — каталог поверх конкретного снимка.
type filmView struct {
	st    *state
	store *identity.Store[domain.Film]
}

func newFilmView(st *state) *filmView {
	return &filmView{st: st, store: identity.New[domain.Film]("film", filmMapper{st: st})}
}

func (v *filmView) FindAll(context.Context) ([]domain.Film, error) {
	films := make([]domain.Film, 0, len(v.st.films))
	for _, f := range v.st.films {
		films = append(films, f)
	}
	sort.Slice(films, func(i, j int) bool {
		if films[i].Title != films[j].Title {
			return films[i].Title < films[j].Title
		}
		return films[i].ID < films[j].ID
	})
	return films, nil
}

func (v *filmView) Find(ctx context.Context, id string) (domain.Film, bool, error) {
	return v.store.Find(ctx, id)
}

func (v *filmView) Save(ctx context.Context, f domain.Film) (domain.Film, error) {
	return v.store.Save(ctx, f)
}

// FilmRepository — in-memory каталог. Каждый Save выполняется в собственной транзакции.
type FilmRepository struct {
	db *DB
}

// NewFilmRepository возвращает in-memory репозиторий каталога.
func NewFilmRepository(db *DB) *FilmRepository {
	return &FilmRepository{db: db}
}

// FindAll возвращает все позиции, отсортированные по названию.
func (r *FilmRepository) FindAll(ctx context.Context) ([]domain.Film, error) {
	return newFilmView(r.db.snapshot()).FindAll(ctx)
}

// Find возвращает позицию по ID.
func (r *FilmRepository) Find(ctx context.Context, id string) (domain.Film, bool, error) {
	return newFilmView(r.db.snapshot()).Find(ctx, id)
}

// Save вставляет или заменяет позицию каталога.
func (r *FilmRepository) Save(ctx context.Context, f domain.Film) (domain.Film, error) {
	return withTx(ctx, r.db, func(tx *Tx) (domain.Film, error) {
		return tx.Films().Save(ctx, f)
	})
}

var (
	_ domain.FilmRepository = (*FilmRepository)(nil)
	_ domain.FilmRepository = (*filmView)(nil)
)
