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
)

func TestSubmitOrder_Execute(t *testing.T) {
	tests := []struct {
		name          string
		command       *SubmitOrderCommand
		setupMocks    func(*mocks.MockSagaStarter)
		expectedError string
		expectedID    string
	}{
		{
			name: "successful submission",
			command: &SubmitOrderCommand{
				CustomerID: "customer-1",
				Currency:   "USD",
				Items:      []SubmitOrderItem{{SKU: "sku-1", Quantity: 2, UnitPrice: 500}},
			},
			setupMocks: func(starter *mocks.MockSagaStarter) {
				starter.EXPECT().StartSaga(mock.Anything, mock.MatchedBy(func(order domain.Order) bool {
					return order.ID != "" &&
						order.CustomerID == "customer-1" &&
						len(order.Items) == 1 &&
						order.Items[0].UnitPrice == models.NewMoney(500, "USD")
				})).Return(nil).Once()
			},
		},
		{
			name: "client supplied order id",
			command: &SubmitOrderCommand{
				OrderID:    "550e8400-e29b-41d4-a716-446655440000",
				CustomerID: "customer-1",
				Currency:   "USD",
				Items:      []SubmitOrderItem{{SKU: "sku-1", Quantity: 1, UnitPrice: 100}},
			},
			setupMocks: func(starter *mocks.MockSagaStarter) {
				starter.EXPECT().StartSaga(mock.Anything, mock.MatchedBy(func(order domain.Order) bool {
					return order.ID == "550e8400-e29b-41d4-a716-446655440000"
				})).Return(nil).Once()
			},
			expectedID: "550e8400-e29b-41d4-a716-446655440000",
		},
		{
			name: "invalid order id",
			command: &SubmitOrderCommand{
				OrderID:    "not-a-uuid",
				CustomerID: "customer-1",
				Currency:   "USD",
				Items:      []SubmitOrderItem{{SKU: "sku-1", Quantity: 1, UnitPrice: 100}},
			},
			setupMocks:    func(starter *mocks.MockSagaStarter) {},
			expectedError: "invalid order ID",
		},
		{
			name: "missing customer",
			command: &SubmitOrderCommand{
				Currency: "USD",
				Items:    []SubmitOrderItem{{SKU: "sku-1", Quantity: 1, UnitPrice: 100}},
			},
			setupMocks:    func(starter *mocks.MockSagaStarter) {},
			expectedError: "customer ID is required",
		},
		{
			name: "no items",
			command: &SubmitOrderCommand{
				CustomerID: "customer-1",
				Currency:   "USD",
			},
			setupMocks:    func(starter *mocks.MockSagaStarter) {},
			expectedError: "at least one item is required",
		},
		{
			name: "zero quantity",
			command: &SubmitOrderCommand{
				CustomerID: "customer-1",
				Currency:   "USD",
				Items:      []SubmitOrderItem{{SKU: "sku-1", Quantity: 0, UnitPrice: 100}},
			},
			setupMocks:    func(starter *mocks.MockSagaStarter) {},
			expectedError: "quantity of sku-1 must be positive",
		},
		{
			name: "duplicate order",
			command: &SubmitOrderCommand{
				OrderID:    "550e8400-e29b-41d4-a716-446655440000",
				CustomerID: "customer-1",
				Currency:   "USD",
				Items:      []SubmitOrderItem{{SKU: "sku-1", Quantity: 1, UnitPrice: 100}},
			},
			setupMocks: func(starter *mocks.MockSagaStarter) {
				starter.EXPECT().StartSaga(mock.Anything, mock.Anything).
					Return(errors.Wrap(domain.ErrSagaAlreadyExists, "failed to create saga")).Once()
			},
			expectedError: "saga already exists for order",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			starter := mocks.NewMockSagaStarter(t)
			tt.setupMocks(starter)

			useCase := NewSubmitOrder(starter)
			result, err := useCase.Execute(context.Background(), tt.command)

			if tt.expectedError != "" {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError)
				assert.Nil(t, result)
				return
			}

			assert.NoError(t, err)
			assert.NotNil(t, result)
			assert.NotEmpty(t, result.OrderID)
			if tt.expectedID != "" {
				assert.Equal(t, tt.expectedID, result.OrderID)
			}
		})
	}
}

func TestSubmitOrder_InvalidOrderIsClassified(t *testing.T) {
	useCase := NewSubmitOrder(mocks.NewMockSagaStarter(t))

	_, err := useCase.Execute(context.Background(), &SubmitOrderCommand{CustomerID: "c"})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}
