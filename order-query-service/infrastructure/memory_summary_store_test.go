package infrastructure

import (
	"context"
	"testing"

	"github.com/draftea/order-fulfillment/order-query-service/domain"
	"github.com/draftea/order-fulfillment/shared/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySummaryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySummaryStore()
	orderID := models.GenerateUUID()

	_, err := store.Get(ctx, orderID)
	assert.ErrorIs(t, err, domain.ErrSummaryNotFound)

	summary := &domain.OrderSummary{
		OrderID:      orderID,
		Status:       models.OrderStatusStockReserved,
		Items:        []domain.ItemView{{SKU: "sku-1", Quantity: 1, Reserved: true}},
		LastSequence: 2,
	}

	tests := []struct {
		name            string
		sequence        int64
		expectedWritten bool
	}{
		{name: "first write", sequence: 2, expectedWritten: true},
		{name: "same sequence", sequence: 2, expectedWritten: false},
		{name: "older sequence", sequence: 1, expectedWritten: false},
		{name: "newer sequence", sequence: 3, expectedWritten: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidate := summary.Clone()
			candidate.LastSequence = tt.sequence

			written, err := store.Upsert(ctx, candidate)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedWritten, written)
		})
	}

	stored, err := store.Get(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stored.LastSequence)

	// returned summaries are copies
	stored.Items[0].Reserved = false
	again, err := store.Get(ctx, orderID)
	require.NoError(t, err)
	assert.True(t, again.Items[0].Reserved)
}

func TestMemorySummaryStore_Restore(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySummaryStore()
	orderID := models.GenerateUUID()

	_, err := store.Upsert(ctx, &domain.OrderSummary{OrderID: orderID, Status: models.OrderStatusFailed, LastSequence: 3})
	require.NoError(t, err)

	require.NoError(t, store.Restore(ctx, &domain.OrderSummary{OrderID: orderID, Status: models.OrderStatusCancelled, LastSequence: 3}))
	stored, err := store.Get(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, stored.Status, "same sequence is overwritten")

	require.NoError(t, store.Restore(ctx, &domain.OrderSummary{OrderID: orderID, Status: models.OrderStatusCreated, LastSequence: 1}))
	stored, err = store.Get(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, stored.Status, "older summary is ignored")
}
