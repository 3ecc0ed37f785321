package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/filmstore/internal/domain"
	"github.com/vladislavdragonenkov/filmstore/internal/service/placement"
)

func (a *API) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := a.orders.FindAll(r.Context())
	if err != nil {
		writeDomainError(w, a.requestLogger(r), err)
		return
	}

	out := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, newOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) getOrder(w http.ResponseWriter, r *http.Request) {
	order, ok, err := a.orders.Find(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, a.requestLogger(r), err)
		return
	}
	if !ok {
		writeDomainError(w, a.requestLogger(r), domain.ErrOrderNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(order))
}

// placeOrder отвечает 422 на любой отказ без указания причины.
func (a *API) placeOrder(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAndValidate[OrderRequest](w, r)
	if !ok {
		return
	}

	result, err := a.placer.PlaceOrder(r.Context(), req.toCandidate())
	if err != nil {
		writeDomainError(w, a.requestLogger(r), err)
		return
	}
	if result.Outcome != placement.OutcomeAccepted {
		writeDomainError(w, a.requestLogger(r), domain.ErrOrderRejected)
		return
	}

	w.Header().Set("Location", "/orders/"+result.Order.ID)
	writeJSON(w, http.StatusCreated, newOrderResponse(result.Order))
}
