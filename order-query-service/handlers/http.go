package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/draftea/order-fulfillment/order-query-service/application"
	"github.com/draftea/order-fulfillment/order-query-service/domain"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

// SummaryHandlers contains order summary HTTP handlers
type SummaryHandlers struct {
	getOrderSummary  *application.GetOrderSummary
	rebuildSummaries *application.RebuildSummaries
}

// NewSummaryHandlers creates new summary handlers
func NewSummaryHandlers(getOrderSummary *application.GetOrderSummary, rebuildSummaries *application.RebuildSummaries) *SummaryHandlers {
	return &SummaryHandlers{
		getOrderSummary:  getOrderSummary,
		rebuildSummaries: rebuildSummaries,
	}
}

// GetOrderSummary returns the read model of one order
func (h *SummaryHandlers) GetOrderSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.getOrderSummary.Execute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSummaryNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, domain.ErrInvalidOrderID):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// RebuildSummaries replays the event journal into the summary store
func (h *SummaryHandlers) RebuildSummaries(w http.ResponseWriter, r *http.Request) {
	response, err := h.rebuildSummaries.Execute(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, response)
}

// RegisterRoutes registers summary routes
func (h *SummaryHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/orders/{id}/summary", h.GetOrderSummary)
		r.Post("/summaries/rebuild", h.RebuildSummaries)
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
