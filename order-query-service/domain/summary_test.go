package domain

import (
	"testing"
	"time"

	"github.com/draftea/order-fulfillment/shared/events"
	"github.com/draftea/order-fulfillment/shared/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// history builds sequenced events for one order
type history struct {
	orderID models.ID
	at      time.Time
	events  []*events.Event
}

func newHistory() *history {
	return &history{
		orderID: models.GenerateUUID(),
		at:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (h *history) add(eventType string, data interface{}) *history {
	event := events.NewEvent(h.orderID, int64(len(h.events)+1), eventType, data)
	event.Timestamp = h.at.Add(time.Duration(len(h.events)) * time.Second)
	h.events = append(h.events, event)
	return h
}

func (h *history) created() *history {
	return h.add(events.OrderCreatedEvent, events.OrderCreatedData{
		OrderID:    h.orderID,
		CustomerID: "customer-1",
		Items: []models.LineItem{
			{SKU: "sku-1", Quantity: 2, UnitPrice: models.NewMoney(500, "USD")},
			{SKU: "sku-2", Quantity: 1, UnitPrice: models.NewMoney(250, "USD")},
		},
		Total: models.NewMoney(1250, "USD"),
	})
}

func foldAll(t *testing.T, evts []*events.Event) *OrderSummary {
	t.Helper()

	var summary *OrderSummary
	for _, event := range evts {
		var err error
		summary, err = Apply(summary, event)
		require.NoError(t, err)
	}
	return summary
}

func reserved(summary *OrderSummary) []bool {
	flags := make([]bool, len(summary.Items))
	for i, item := range summary.Items {
		flags[i] = item.Reserved
	}
	return flags
}

func TestApply_Scenarios(t *testing.T) {
	tests := []struct {
		name             string
		build            func(h *history)
		expectedStatus   models.OrderStatus
		expectedPayment  string
		expectedShipping string
		expectedReserved []bool
		expectedReason   string
		expectedReceipt  string
	}{
		{
			name: "completed order",
			build: func(h *history) {
				h.created().
					add(events.StockReservedEvent, events.StockReservedData{OrderID: h.orderID}).
					add(events.PaymentCompletedEvent, events.PaymentCompletedData{OrderID: h.orderID, ReceiptID: "rcpt-1", Amount: models.NewMoney(1250, "USD")}).
					add(events.OrderCompletedEvent, events.OrderCompletedData{OrderID: h.orderID})
			},
			expectedStatus:   models.OrderStatusCompleted,
			expectedPayment:  PaymentStatusCompleted,
			expectedShipping: ShippingStatusReadyToShip,
			expectedReserved: []bool{true, true},
			expectedReceipt:  "rcpt-1",
		},
		{
			name: "stock rejected",
			build: func(h *history) {
				h.created().
					add(events.StockReservationFailedEvent, events.StockReservationFailedData{OrderID: h.orderID, Reason: "out of stock"}).
					add(events.OrderCancelledEvent, events.OrderCancelledData{OrderID: h.orderID, Reason: "out of stock"})
			},
			expectedStatus:   models.OrderStatusCancelled,
			expectedPayment:  PaymentStatusPending,
			expectedShipping: ShippingStatusCancelled,
			expectedReserved: []bool{false, false},
			expectedReason:   "out of stock",
		},
		{
			name: "payment rejected after reservation",
			build: func(h *history) {
				h.created().
					add(events.StockReservedEvent, events.StockReservedData{OrderID: h.orderID}).
					add(events.PaymentFailedEvent, events.PaymentFailedData{OrderID: h.orderID, Reason: "card declined"}).
					add(events.StockReservationCancelledEvent, events.StockReservationCancelledData{OrderID: h.orderID}).
					add(events.OrderCancelledEvent, events.OrderCancelledData{OrderID: h.orderID, Reason: "card declined"})
			},
			expectedStatus:   models.OrderStatusCancelled,
			expectedPayment:  PaymentStatusFailed,
			expectedShipping: ShippingStatusCancelled,
			expectedReserved: []bool{false, false},
			expectedReason:   "card declined",
		},
		{
			name: "failed saga",
			build: func(h *history) {
				h.created().
					add(events.OrderFailedEvent, events.OrderFailedData{OrderID: h.orderID, Step: "ReserveStock", Reason: "inventory unavailable"})
			},
			expectedStatus:   models.OrderStatusFailed,
			expectedPayment:  PaymentStatusPending,
			expectedShipping: ShippingStatusPending,
			expectedReserved: []bool{false, false},
			expectedReason:   "inventory unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHistory()
			tt.build(h)

			summary := foldAll(t, h.events)

			assert.Equal(t, h.orderID, summary.OrderID)
			assert.Equal(t, "customer-1", summary.CustomerID)
			assert.Equal(t, models.NewMoney(1250, "USD"), summary.Total)
			assert.Equal(t, tt.expectedStatus, summary.Status)
			assert.Equal(t, tt.expectedPayment, summary.PaymentStatus)
			assert.Equal(t, tt.expectedShipping, summary.ShippingStatus)
			assert.Equal(t, tt.expectedReserved, reserved(summary))
			assert.Equal(t, tt.expectedReason, summary.Reason)
			assert.Equal(t, tt.expectedReceipt, summary.ReceiptID)
			assert.Equal(t, int64(len(h.events)), summary.LastSequence)
			assert.Equal(t, h.events[0].Timestamp, summary.CreatedAt)
			assert.Equal(t, h.events[len(h.events)-1].Timestamp, summary.UpdatedAt)
		})
	}
}

func TestApply_Deterministic(t *testing.T) {
	h := newHistory()
	h.created().
		add(events.StockReservedEvent, events.StockReservedData{OrderID: h.orderID}).
		add(events.PaymentCompletedEvent, events.PaymentCompletedData{OrderID: h.orderID, ReceiptID: "rcpt-7"})

	first := foldAll(t, h.events)

	// the same history after a wire round trip
	decoded := make([]*events.Event, len(h.events))
	for i, event := range h.events {
		raw, err := event.ToJSON()
		require.NoError(t, err)
		decoded[i], err = events.FromJSON(raw)
		require.NoError(t, err)
	}
	second := foldAll(t, decoded)

	assert.Equal(t, first, second)
}

func TestApply_DoesNotModifyInput(t *testing.T) {
	h := newHistory()
	h.created().add(events.StockReservedEvent, events.StockReservedData{OrderID: h.orderID})

	before, err := Apply(nil, h.events[0])
	require.NoError(t, err)

	after, err := Apply(before, h.events[1])
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusCreated, before.Status)
	assert.Equal(t, []bool{false, false}, reserved(before))
	assert.Equal(t, int64(1), before.LastSequence)
	assert.Equal(t, []bool{true, true}, reserved(after))
}

func TestApply_IgnoredEvents(t *testing.T) {
	h := newHistory()
	h.created()
	summary := foldAll(t, h.events)

	tests := []struct {
		name          string
		event         *events.Event
		expectedError error
	}{
		{
			name:          "unknown event type",
			event:         events.NewEvent(h.orderID, 2, "order.gift_wrapped", map[string]string{"color": "red"}),
			expectedError: ErrUnknownEventType,
		},
		{
			name:          "malformed payload",
			event:         events.NewEvent(h.orderID, 2, events.PaymentCompletedEvent, []byte("{not json")),
			expectedError: ErrMalformedEvent,
		},
		{
			name:          "missing payload",
			event:         events.NewEvent(h.orderID, 2, events.OrderCancelledEvent, nil),
			expectedError: ErrMalformedEvent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := Apply(summary, tt.event)

			assert.ErrorIs(t, err, tt.expectedError)
			require.NotNil(t, next)
			assert.Equal(t, int64(2), next.LastSequence, "sequence still advances")
			assert.Equal(t, models.OrderStatusCreated, next.Status)
			assert.Equal(t, PaymentStatusPending, next.PaymentStatus)
		})
	}
}
