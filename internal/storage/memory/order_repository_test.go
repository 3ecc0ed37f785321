package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/filmstore/internal/domain"
	"github.com/vladislavdragonenkov/filmstore/internal/storage/memory"
)

func fixedClock(at time.Time) memory.Option {
	return memory.WithClock(func() time.Time { return at })
}

func seedFilms(t *testing.T, db *memory.DB, films ...domain.Film) {
	t.Helper()

	repo := memory.NewFilmRepository(db)
	for _, f := range films {
		if _, err := repo.Save(context.Background(), f); err != nil {
			t.Fatalf("seed film %s failed: %v", f.ID, err)
		}
	}
}

func TestOrderRepository_SaveAssignsCreatedAt(t *testing.T) {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	db := memory.NewDB(fixedClock(created))
	seedFilms(t, db, domain.Film{ID: "a", Title: "A", Amount: 1, Price: 6})
	repo := memory.NewOrderRepository(db)

	saved, err := repo.Save(context.Background(), domain.Order{
		ID:        "order-1",
		Films:     []domain.Film{{ID: "a"}},
		CreatedAt: time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if !saved.CreatedAt.Equal(created) {
		t.Fatalf("expected created_at %s, got %s", created, saved.CreatedAt)
	}
	if saved.Films[0].Title != "A" {
		t.Fatalf("expected film to be resolved, got %+v", saved.Films[0])
	}
}

func TestOrderRepository_ReplaceKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	db := memory.NewDB(memory.WithClock(func() time.Time {
		now = now.Add(time.Minute)
		return now
	}))
	seedFilms(t, db,
		domain.Film{ID: "a", Amount: 1, Price: 6},
		domain.Film{ID: "b", Amount: 1, Price: 6},
	)
	repo := memory.NewOrderRepository(db)

	first, err := repo.Save(ctx, domain.Order{ID: "order-1", Films: []domain.Film{{ID: "a"}}})
	if err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	second, err := repo.Save(ctx, domain.Order{ID: "order-1", Films: []domain.Film{{ID: "a"}, {ID: "b"}}})
	if err != nil {
		t.Fatalf("second save failed: %v", err)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("expected created_at to be kept, got %s and %s", first.CreatedAt, second.CreatedAt)
	}

	all, err := repo.FindAll(ctx)
	if err != nil {
		t.Fatalf("find all failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 order, got %d", len(all))
	}
	if got := len(all[0].Films); got != 2 {
		t.Fatalf("expected 2 films after replace, got %d", got)
	}
}

func TestOrderRepository_FindAllResolvesFilms(t *testing.T) {
	ctx := context.Background()
	db := memory.NewDB()
	seedFilms(t, db,
		domain.Film{ID: "a", Title: "Alien", Amount: 3, Price: 6},
		domain.Film{ID: "b", Title: "Brazil", Amount: 2, Price: 5},
	)
	repo := memory.NewOrderRepository(db)

	if _, err := repo.Save(ctx, domain.Order{ID: "o-1", Films: []domain.Film{{ID: "b"}, {ID: "a"}}}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	orders, err := repo.FindAll(ctx)
	if err != nil {
		t.Fatalf("find all failed: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(orders))
	}
	films := orders[0].Films
	if len(films) != 2 || films[0].Title != "Brazil" || films[1].Title != "Alien" {
		t.Fatalf("expected resolved films in order [Brazil Alien], got %+v", films)
	}
}

func TestOrderRepository_FindMissing(t *testing.T) {
	repo := memory.NewOrderRepository(memory.NewDB())

	_, ok, err := repo.Find(context.Background(), "missing")
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if ok {
		t.Fatal("expected missing order to be absent")
	}
}
