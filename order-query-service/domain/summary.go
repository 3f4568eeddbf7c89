package domain

import (
	"context"
	"time"

	"github.com/draftea/order-fulfillment/shared/events"
	"github.com/draftea/order-fulfillment/shared/models"
	"github.com/pkg/errors"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"

	ShippingStatusPending     = "pending"
	ShippingStatusReadyToShip = "ready_to_ship"
	ShippingStatusCancelled   = "cancelled"
)

// ItemView is one order line as seen by queries
type ItemView struct {
	SKU       string       `json:"sku"`
	Quantity  int          `json:"quantity"`
	UnitPrice models.Money `json:"unit_price"`
	Reserved  bool         `json:"reserved"`
}

// OrderSummary is the denormalized query view of one order. It is only ever
// produced by Apply.
type OrderSummary struct {
	OrderID        models.ID          `json:"order_id"`
	CustomerID     string             `json:"customer_id"`
	Status         models.OrderStatus `json:"status"`
	Items          []ItemView         `json:"items"`
	Total          models.Money       `json:"total"`
	PaymentStatus  string             `json:"payment_status"`
	ReceiptID      string             `json:"receipt_id,omitempty"`
	ShippingStatus string             `json:"shipping_status"`
	Reason         string             `json:"reason,omitempty"`
	LastSequence   int64              `json:"last_sequence"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// Clone returns a deep copy of the summary
func (s *OrderSummary) Clone() *OrderSummary {
	clone := *s
	clone.Items = append([]ItemView(nil), s.Items...)
	return &clone
}

// SummaryStore persists summaries keyed by order id
type SummaryStore interface {
	// Get returns ErrSummaryNotFound when the order has no summary yet.
	Get(ctx context.Context, orderID models.ID) (*OrderSummary, error)
	// Upsert writes the summary only when it is absent or its stored
	// LastSequence is lower. It reports whether the write happened.
	Upsert(ctx context.Context, summary *OrderSummary) (bool, error)
	// Restore is Upsert that also overwrites a summary at the same sequence.
	Restore(ctx context.Context, summary *OrderSummary) error
}

// Apply folds one event into the summary and returns the result; summary may
// be nil before the first event. The input is never modified, so the same
// history always yields the same summary.
//
// An event of unknown type or with an unreadable payload still advances
// LastSequence, and the returned error says why its content was ignored.
func Apply(summary *OrderSummary, event *events.Event) (*OrderSummary, error) {
	var next *OrderSummary
	if summary == nil {
		next = &OrderSummary{OrderID: event.AggregateID, CreatedAt: event.Timestamp}
	} else {
		next = summary.Clone()
	}
	next.LastSequence = event.Sequence
	next.UpdatedAt = event.Timestamp

	err := fold(next, event)
	return next, err
}

func fold(s *OrderSummary, event *events.Event) error {
	switch event.EventType {
	case events.OrderCreatedEvent:
		var data events.OrderCreatedData
		if err := decode(event, &data); err != nil {
			return err
		}
		s.CustomerID = data.CustomerID
		s.Total = data.Total
		s.Items = make([]ItemView, len(data.Items))
		for i, item := range data.Items {
			s.Items[i] = ItemView{SKU: item.SKU, Quantity: item.Quantity, UnitPrice: item.UnitPrice}
		}
		s.Status = models.OrderStatusCreated
		s.PaymentStatus = PaymentStatusPending
		s.ShippingStatus = ShippingStatusPending
		s.CreatedAt = event.Timestamp

	case events.StockReservedEvent:
		s.Status = models.OrderStatusStockReserved
		setReserved(s, true)

	case events.StockReservationFailedEvent:
		var data events.StockReservationFailedData
		if err := decode(event, &data); err != nil {
			return err
		}
		s.Status = models.OrderStatusCompensating
		s.Reason = data.Reason

	case events.StockReservationCancelledEvent:
		setReserved(s, false)

	case events.PaymentCompletedEvent:
		var data events.PaymentCompletedData
		if err := decode(event, &data); err != nil {
			return err
		}
		s.Status = models.OrderStatusPaymentCompleted
		s.PaymentStatus = PaymentStatusCompleted
		s.ReceiptID = data.ReceiptID

	case events.PaymentFailedEvent:
		var data events.PaymentFailedData
		if err := decode(event, &data); err != nil {
			return err
		}
		s.Status = models.OrderStatusCompensating
		s.PaymentStatus = PaymentStatusFailed
		s.Reason = data.Reason

	case events.OrderCompletedEvent:
		s.Status = models.OrderStatusCompleted
		s.ShippingStatus = ShippingStatusReadyToShip

	case events.OrderCancelledEvent:
		var data events.OrderCancelledData
		if err := decode(event, &data); err != nil {
			return err
		}
		s.Status = models.OrderStatusCancelled
		s.ShippingStatus = ShippingStatusCancelled
		s.Reason = data.Reason

	case events.OrderFailedEvent:
		var data events.OrderFailedData
		if err := decode(event, &data); err != nil {
			return err
		}
		s.Status = models.OrderStatusFailed
		s.Reason = data.Reason

	default:
		return errors.Wrapf(ErrUnknownEventType, "%q", event.EventType)
	}

	return nil
}

func setReserved(s *OrderSummary, reserved bool) {
	for i := range s.Items {
		s.Items[i].Reserved = reserved
	}
}

func decode(event *events.Event, v interface{}) error {
	if err := event.UnmarshalPayload(v); err != nil {
		return errors.Wrapf(ErrMalformedEvent, "%s: %v", event.EventType, err)
	}
	return nil
}
