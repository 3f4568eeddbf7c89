package application

import (
	"context"

	"github.com/draftea/order-fulfillment/order-query-service/domain"
	"github.com/draftea/order-fulfillment/shared/models"
	"github.com/pkg/errors"
)

// GetOrderSummary use case
type GetOrderSummary struct {
	store domain.SummaryStore
}

// NewGetOrderSummary creates a new GetOrderSummary use case
func NewGetOrderSummary(store domain.SummaryStore) *GetOrderSummary {
	return &GetOrderSummary{store: store}
}

// Execute returns the summary of one order
func (uc *GetOrderSummary) Execute(ctx context.Context, orderID string) (*domain.OrderSummary, error) {
	id, err := models.NewID(orderID)
	if err != nil {
		return nil, errors.Wrapf(domain.ErrInvalidOrderID, "%q", orderID)
	}

	summary, err := uc.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrSummaryNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to get order summary")
	}

	return summary, nil
}
