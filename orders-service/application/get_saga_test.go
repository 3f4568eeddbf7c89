package application

import (
	"context"
	"testing"

	"github.com/draftea/order-fulfillment/orders-service/domain"
	"github.com/draftea/order-fulfillment/orders-service/mocks"
	"github.com/draftea/order-fulfillment/shared/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestGetSaga_Execute(t *testing.T) {
	saga, err := domain.NewSaga(testOrder())
	require.NoError(t, err)
	require.NoError(t, saga.BeginReservation())
	saga.RecordAttempts(domain.StepReserveStock, 2, "inventory exhausted")

	tests := []struct {
		name          string
		orderID       string
		setupMocks    func(*mocks.MockSagaRepository)
		expectedError error
	}{
		{
			name:    "saga found",
			orderID: saga.OrderID.String(),
			setupMocks: func(repo *mocks.MockSagaRepository) {
				repo.EXPECT().FindByID(mock.Anything, saga.OrderID).Return(saga, nil).Once()
			},
		},
		{
			name:    "saga not found",
			orderID: "550e8400-e29b-41d4-a716-446655440000",
			setupMocks: func(repo *mocks.MockSagaRepository) {
				repo.EXPECT().FindByID(mock.Anything, models.ID("550e8400-e29b-41d4-a716-446655440000")).
					Return(nil, errors.Wrap(domain.ErrSagaNotFound, "order")).Once()
			},
			expectedError: domain.ErrSagaNotFound,
		},
		{
			name:          "invalid id",
			orderID:       "nope",
			setupMocks:    func(repo *mocks.MockSagaRepository) {},
			expectedError: domain.ErrInvalidOrder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := mocks.NewMockSagaRepository(t)
			tt.setupMocks(repo)

			result, err := NewGetSaga(repo).Execute(context.Background(), tt.orderID)

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
				assert.Nil(t, result)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "ReservingStock", result.Status)
			assert.Equal(t, "ReserveStock", result.CurrentStep)
			assert.Equal(t, 2, result.Retries["ReserveStock"])
			assert.Equal(t, "inventory exhausted", result.LastError)
			assert.Equal(t, 1, result.PendingEvents)
		})
	}
}

func TestListSagas_Execute(t *testing.T) {
	saga, err := domain.NewSaga(testOrder())
	require.NoError(t, err)

	t.Run("lists by status with default limit", func(t *testing.T) {
		repo := mocks.NewMockSagaRepository(t)
		repo.EXPECT().FindByStatus(mock.Anything, models.OrderStatusFailed, 100).
			Return([]*domain.Saga{saga}, nil).Once()

		result, err := NewListSagas(repo).Execute(context.Background(), "Failed", 0)
		require.NoError(t, err)
		assert.Len(t, result, 1)
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		repo := mocks.NewMockSagaRepository(t)

		_, err := NewListSagas(repo).Execute(context.Background(), "Lost", 10)
		assert.ErrorIs(t, err, models.ErrInvalidOrderStatus)
	})
}
