package handlers

import (
	"context"

	"github.com/draftea/order-fulfillment/shared/events"
)

// SummaryEventHandlers feeds every order event to the projector, journaling it
// first when the service keeps its own journal
type SummaryEventHandlers struct {
	projector events.EventHandler
	journal   events.EventStore
}

// NewSummaryEventHandlers creates new summary event handlers. journal may be nil.
func NewSummaryEventHandlers(projector events.EventHandler, journal events.EventStore) *SummaryEventHandlers {
	return &SummaryEventHandlers{projector: projector, journal: journal}
}

// Handle implements the events.EventHandler interface
func (h *SummaryEventHandlers) Handle(ctx context.Context, event *events.Event) error {
	if h.journal != nil {
		if err := h.journal.Append(ctx, event); err != nil {
			return err
		}
	}
	return h.projector.Handle(ctx, event)
}

// HandlerID returns the unique identifier for this event handler
func (h *SummaryEventHandlers) HandlerID() string {
	return "order-query-service-event-handler"
}
