package application

import (
	"context"

	"github.com/draftea/order-fulfillment/orders-service/domain"
	"github.com/draftea/order-fulfillment/shared/models"
	"github.com/draftea/order-fulfillment/shared/telemetry"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

// SubmitOrderCommand represents the command to submit an order
type SubmitOrderCommand struct {
	// OrderID is optional. A client supplied id makes resubmission detectable.
	OrderID    string            `json:"order_id,omitempty"`
	CustomerID string            `json:"customer_id"`
	Currency   string            `json:"currency"`
	Items      []SubmitOrderItem `json:"items"`
}

type SubmitOrderItem struct {
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// SubmitOrderResponse represents the response after submitting an order
type SubmitOrderResponse struct {
	OrderID string `json:"order_id"`
}

// SagaStarter starts the fulfillment saga of an order
type SagaStarter interface {
	StartSaga(ctx context.Context, order domain.Order) error
}

// SubmitOrder use case
type SubmitOrder struct {
	starter SagaStarter
}

// NewSubmitOrder creates a new SubmitOrder use case
func NewSubmitOrder(starter SagaStarter) *SubmitOrder {
	return &SubmitOrder{starter: starter}
}

// Execute validates the order, assigns its id and starts its saga
func (uc *SubmitOrder) Execute(ctx context.Context, cmd *SubmitOrderCommand) (*SubmitOrderResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "SubmitOrder.Execute")
	defer span.End()

	if err := uc.validateCommand(cmd); err != nil {
		return nil, errors.Wrap(err, "invalid command")
	}

	orderID := models.GenerateUUID()
	if cmd.OrderID != "" {
		var err error
		orderID, err = models.NewID(cmd.OrderID)
		if err != nil {
			return nil, errors.Wrap(domain.ErrInvalidOrder, "invalid order ID")
		}
	}

	items := make([]models.LineItem, len(cmd.Items))
	for i, item := range cmd.Items {
		items[i] = models.LineItem{
			SKU:       item.SKU,
			Quantity:  item.Quantity,
			UnitPrice: models.NewMoney(item.UnitPrice, cmd.Currency),
		}
	}

	order := domain.Order{
		ID:         orderID,
		CustomerID: cmd.CustomerID,
		Items:      items,
	}

	if err := uc.starter.StartSaga(ctx, order); err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "failed to start saga")
	}

	telemetry.RecordCounter(ctx, "orders_submitted_total", "Orders accepted for fulfillment", 1,
		attribute.Int("items", len(items)),
	)

	return &SubmitOrderResponse{OrderID: orderID.String()}, nil
}

// validateCommand validates the submit order command
func (uc *SubmitOrder) validateCommand(cmd *SubmitOrderCommand) error {
	if cmd.CustomerID == "" {
		return errors.Wrap(domain.ErrInvalidOrder, "customer ID is required")
	}

	if cmd.Currency == "" {
		return errors.Wrap(domain.ErrInvalidOrder, "currency is required")
	}

	if len(cmd.Items) == 0 {
		return errors.Wrap(domain.ErrInvalidOrder, "at least one item is required")
	}

	for _, item := range cmd.Items {
		if item.SKU == "" {
			return errors.Wrap(domain.ErrInvalidOrder, "item SKU is required")
		}
		if item.Quantity <= 0 {
			return errors.Wrapf(domain.ErrInvalidOrder, "quantity of %s must be positive", item.SKU)
		}
		if item.UnitPrice < 0 {
			return errors.Wrapf(domain.ErrInvalidOrder, "unit price of %s must not be negative", item.SKU)
		}
	}

	return nil
}
