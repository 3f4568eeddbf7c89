package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/draftea/order-fulfillment/orders-service/application"
	"github.com/draftea/order-fulfillment/orders-service/domain"
	"github.com/draftea/order-fulfillment/shared/models"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

// OrderHandlers contains order HTTP handlers
type OrderHandlers struct {
	submitOrder *application.SubmitOrder
	getSaga     *application.GetSaga
	listSagas   *application.ListSagas
}

// NewOrderHandlers creates new order handlers
func NewOrderHandlers(
	submitOrder *application.SubmitOrder,
	getSaga *application.GetSaga,
	listSagas *application.ListSagas,
) *OrderHandlers {
	return &OrderHandlers{
		submitOrder: submitOrder,
		getSaga:     getSaga,
		listSagas:   listSagas,
	}
}

// SubmitOrder accepts an order and starts its saga. The saga runs
// asynchronously, so the response only carries the order id.
func (h *OrderHandlers) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var cmd application.SubmitOrderCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	response, err := h.submitOrder.Execute(r.Context(), &cmd)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidOrder):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, domain.ErrSagaAlreadyExists):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusAccepted, response)
}

// GetSaga returns the saga of one order
func (h *OrderHandlers) GetSaga(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		http.Error(w, "Order ID is required", http.StatusBadRequest)
		return
	}

	response, err := h.getSaga.Execute(r.Context(), orderID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSagaNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, domain.ErrInvalidOrder):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// ListSagas lists sagas by status, Failed ones being the operator's work queue
func (h *OrderHandlers) ListSagas(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = models.OrderStatusFailed.String()
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		var err error
		limit, err = strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
	}

	response, err := h.listSagas.Execute(r.Context(), status, limit)
	if err != nil {
		if errors.Is(err, models.ErrInvalidOrderStatus) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// RegisterRoutes registers order routes
func (h *OrderHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/orders", h.SubmitOrder)
		r.Route("/sagas", func(r chi.Router) {
			r.Get("/", h.ListSagas)
			r.Get("/{id}", h.GetSaga)
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
