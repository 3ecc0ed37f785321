package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/filmstore/internal/domain"
)

// ErrorResponse — тело всех ответов с ошибкой.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeDomainError отображает доменные ошибки на HTTP-статусы.
// Текст ошибок 5xx наружу не отдаётся.
func writeDomainError(w http.ResponseWriter, logger *log.Entry, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.WithError(err).Error("request failed")
		writeError(w, status, http.StatusText(status))
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrFilmNotFound), errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrFilmAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrFilmIDRequired),
		errors.Is(err, domain.ErrFilmAmountNegative),
		errors.Is(err, domain.ErrFilmPriceNegative),
		domain.IsRejected(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
