package domain

import (
	"context"
	"time"

	"github.com/draftea/order-fulfillment/shared/models"
)

// SagaRepository persists sagas together with their unpublished events
type SagaRepository interface {
	// Create stores a new saga. It returns ErrSagaAlreadyExists when the order id is taken.
	Create(ctx context.Context, saga *Saga) error
	// Save stores a transition. It returns ErrConcurrentUpdate when the stored
	// version differs from saga.Version and bumps saga.Version on success.
	Save(ctx context.Context, saga *Saga) error
	FindByID(ctx context.Context, orderID models.ID) (*Saga, error)
	FindByStatus(ctx context.Context, status models.OrderStatus, limit int) ([]*Saga, error)
	// FindWithPendingEvents returns sagas whose outbox is not empty
	FindWithPendingEvents(ctx context.Context, limit int) ([]*Saga, error)
}

// InventoryService is the stock owner. Both calls are keyed by order id and
// safe to repeat.
type InventoryService interface {
	ReserveStock(ctx context.Context, orderID models.ID, items []models.LineItem) error
	CancelReservation(ctx context.Context, orderID models.ID) error
}

// Receipt proves a successful charge
type Receipt struct {
	ID string `json:"receipt_id"`
}

// PaymentService charges the customer, keyed by order id
type PaymentService interface {
	Charge(ctx context.Context, orderID models.ID, amount models.Money) (Receipt, error)
}

// FailureAlert describes a saga parked in Failed
type FailureAlert struct {
	OrderID  models.ID `json:"order_id"`
	Step     Step      `json:"step"`
	Reason   string    `json:"reason"`
	Attempts int       `json:"attempts"`
	FailedAt time.Time `json:"failed_at"`
}

// OperatorNotifier surfaces failed sagas for manual intervention
type OperatorNotifier interface {
	NotifySagaFailed(ctx context.Context, alert FailureAlert) error
}
