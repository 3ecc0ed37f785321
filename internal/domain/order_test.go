package domain_test

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/filmstore/internal/domain"
)

// helper для создания заказа из трёх позиций с повтором.
func makeOrder() domain.Order {
	return domain.Order{
		ID: "order-1",
		Films: []domain.Film{
			{ID: "a", Price: 4},
			{ID: "b", Price: 7},
			{ID: "a", Price: 4},
		},
	}
}

func TestOrderFilmIDs_KeepsOrderAndRepeats(t *testing.T) {
	ids := makeOrder().FilmIDs()
	want := []string{"a", "b", "a"}
	if len(ids) != len(want) {
		t.Fatalf("expected %d ids, got %d", len(want), len(ids))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected ids %v, got %v", want, ids)
		}
	}
}

func TestOrderTotalPrice(t *testing.T) {
	if got := makeOrder().TotalPrice(); got != 15 {
		t.Fatalf("expected total 15, got %d", got)
	}
	if got := (domain.Order{}).TotalPrice(); got != 0 {
		t.Fatalf("expected total 0 for empty order, got %d", got)
	}
}

func TestKeys(t *testing.T) {
	if got := domain.OrderKey(makeOrder()); got != "order-1" {
		t.Fatalf("expected order key order-1, got %s", got)
	}
	if got := domain.FilmKey(domain.Film{ID: "f-1"}); got != "f-1" {
		t.Fatalf("expected film key f-1, got %s", got)
	}
}

func TestFilmValidateInvariants(t *testing.T) {
	tests := []struct {
		name string
		film domain.Film
		want []error
	}{
		{
			name: "valid",
			film: domain.Film{ID: "f-1", Amount: 0, Price: 0},
		},
		{
			name: "missing id",
			film: domain.Film{Amount: 1, Price: 1},
			want: []error{domain.ErrFilmIDRequired},
		},
		{
			name: "negative amount and price",
			film: domain.Film{ID: "f-1", Amount: -1, Price: -5},
			want: []error{domain.ErrFilmAmountNegative, domain.ErrFilmPriceNegative},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.film.ValidateInvariants()
			if len(errs) != len(tt.want) {
				t.Fatalf("expected %d errors, got %v", len(tt.want), errs)
			}
			for i := range tt.want {
				if !errors.Is(errs[i], tt.want[i]) {
					t.Fatalf("expected error %v at %d, got %v", tt.want[i], i, errs[i])
				}
			}
		})
	}
}
