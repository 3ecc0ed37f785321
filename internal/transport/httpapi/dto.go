package httpapi

import (
	"time"

	"github.com/vladislavdragonenkov/filmstore/internal/domain"
)

// FilmRequest — тело POST /films и PUT /films/{id}.
type FilmRequest struct {
	ID              string `json:"id" validate:"max=64"`
	Title           string `json:"title" validate:"required,max=255"`
	Director        string `json:"director" validate:"max=255"`
	Cast            string `json:"cast" validate:"max=1024"`
	DurationMinutes int    `json:"duration_minutes" validate:"gte=0"`
	Amount          int    `json:"amount" validate:"gte=0"`
	Price           int    `json:"price" validate:"gte=0"`
}

func (r FilmRequest) toDomain() domain.Film {
	return domain.Film{
		ID:              r.ID,
		Title:           r.Title,
		Director:        r.Director,
		Cast:            r.Cast,
		DurationMinutes: r.DurationMinutes,
		Amount:          r.Amount,
		Price:           r.Price,
	}
}

// FilmResponse — представление позиции каталога.
type FilmResponse struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Director        string `json:"director,omitempty"`
	Cast            string `json:"cast,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	Amount          int    `json:"amount"`
	Price           int    `json:"price"`
}

func newFilmResponse(f domain.Film) FilmResponse {
	return FilmResponse{
		ID:              f.ID,
		Title:           f.Title,
		Director:        f.Director,
		Cast:            f.Cast,
		DurationMinutes: f.DurationMinutes,
		Amount:          f.Amount,
		Price:           f.Price,
	}
}

func newFilmResponses(films []domain.Film) []FilmResponse {
	out := make([]FilmResponse, 0, len(films))
	for _, f := range films {
		out = append(out, newFilmResponse(f))
	}
	return out
}

// OrderFilmRef — ссылка на позицию каталога в заказе.
type OrderFilmRef struct {
	ID string `json:"id" validate:"required,max=64"`
}

// OrderRequest — тело POST /orders. Принимаются только ссылки, цены и остатки берутся из каталога.
type OrderRequest struct {
	Films []OrderFilmRef `json:"films" validate:"max=64,dive"`
}

func (r OrderRequest) toCandidate() domain.Order {
	films := make([]domain.Film, 0, len(r.Films))
	for _, ref := range r.Films {
		films = append(films, domain.Film{ID: ref.ID})
	}
	return domain.Order{Films: films}
}

// OrderResponse — представление заказа.
type OrderResponse struct {
	ID         string         `json:"id"`
	Films      []FilmResponse `json:"films"`
	TotalPrice int            `json:"total_price"`
	CreatedAt  time.Time      `json:"created_at"`
}

func newOrderResponse(o domain.Order) OrderResponse {
	return OrderResponse{
		ID:         o.ID,
		Films:      newFilmResponses(o.Films),
		TotalPrice: o.TotalPrice(),
		CreatedAt:  o.CreatedAt,
	}
}
