package handlers

import (
	"context"

	"github.com/draftea/order-fulfillment/shared/events"
)

// SagaEventProcessor applies order events to sagas
type SagaEventProcessor interface {
	HandleEvent(ctx context.Context, event *events.Event) error
}

// OrderEventHandlers routes channel deliveries to the orchestrator
type OrderEventHandlers struct {
	processor SagaEventProcessor
}

// NewOrderEventHandlers creates new order event handlers
func NewOrderEventHandlers(processor SagaEventProcessor) *OrderEventHandlers {
	return &OrderEventHandlers{processor: processor}
}

// Handle implements the events.EventHandler interface
func (h *OrderEventHandlers) Handle(ctx context.Context, event *events.Event) error {
	switch event.EventType {
	case events.OrderCreatedEvent,
		events.StockReservedEvent,
		events.StockReservationFailedEvent,
		events.PaymentCompletedEvent,
		events.PaymentFailedEvent:
		return h.processor.HandleEvent(ctx, event)
	default:
		// outcomes the saga produced itself
		return nil
	}
}

// HandlerID returns the unique identifier for this event handler
func (h *OrderEventHandlers) HandlerID() string {
	return "orders-service-event-handler"
}
