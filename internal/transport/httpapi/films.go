package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/filmstore/internal/domain"
)

func (a *API) listFilms(w http.ResponseWriter, r *http.Request) {
	films, err := a.catalog.List(r.Context())
	if err != nil {
		writeDomainError(w, a.requestLogger(r), err)
		return
	}
	writeJSON(w, http.StatusOK, newFilmResponses(films))
}

func (a *API) createFilm(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAndValidate[FilmRequest](w, r)
	if !ok {
		return
	}

	film, err := a.catalog.Add(r.Context(), req.toDomain())
	if err != nil {
		writeDomainError(w, a.requestLogger(r), err)
		return
	}

	w.Header().Set("Location", "/films/"+film.ID)
	writeJSON(w, http.StatusCreated, newFilmResponse(film))
}

func (a *API) getFilm(w http.ResponseWriter, r *http.Request) {
	film, ok, err := a.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, a.requestLogger(r), err)
		return
	}
	if !ok {
		writeDomainError(w, a.requestLogger(r), domain.ErrFilmNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newFilmResponse(film))
}

// updateFilm заменяет позицию целиком. ID из пути важнее ID в теле.
func (a *API) updateFilm(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAndValidate[FilmRequest](w, r)
	if !ok {
		return
	}

	film := req.toDomain()
	film.ID = chi.URLParam(r, "id")

	updated, err := a.catalog.Update(r.Context(), film)
	if err != nil {
		writeDomainError(w, a.requestLogger(r), err)
		return
	}
	writeJSON(w, http.StatusOK, newFilmResponse(updated))
}
