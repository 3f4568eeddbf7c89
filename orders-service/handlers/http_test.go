package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/draftea/order-fulfillment/orders-service/application"
	"github.com/draftea/order-fulfillment/orders-service/domain"
	"github.com/draftea/order-fulfillment/orders-service/mocks"
	"github.com/draftea/order-fulfillment/shared/events"
	"github.com/draftea/order-fulfillment/shared/models"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newRouter(starter *mocks.MockSagaStarter, repo *mocks.MockSagaRepository) *chi.Mux {
	h := NewOrderHandlers(
		application.NewSubmitOrder(starter),
		application.NewGetSaga(repo),
		application.NewListSagas(repo),
	)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

const validOrderBody = `{"customer_id":"customer-1","currency":"USD","items":[{"sku":"sku-1","quantity":1,"unit_price":100}]}`

func TestOrderHandlers_SubmitOrder(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		setupMocks     func(*mocks.MockSagaStarter)
		expectedStatus int
	}{
		{
			name: "accepted",
			body: validOrderBody,
			setupMocks: func(starter *mocks.MockSagaStarter) {
				starter.EXPECT().StartSaga(mock.Anything, mock.Anything).Return(nil).Once()
			},
			expectedStatus: http.StatusAccepted,
		},
		{
			name:           "malformed body",
			body:           `{`,
			setupMocks:     func(starter *mocks.MockSagaStarter) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid order",
			body:           `{"customer_id":"customer-1","currency":"USD","items":[]}`,
			setupMocks:     func(starter *mocks.MockSagaStarter) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "duplicate order",
			body: validOrderBody,
			setupMocks: func(starter *mocks.MockSagaStarter) {
				starter.EXPECT().StartSaga(mock.Anything, mock.Anything).Return(domain.ErrSagaAlreadyExists).Once()
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name: "storage failure",
			body: validOrderBody,
			setupMocks: func(starter *mocks.MockSagaStarter) {
				starter.EXPECT().StartSaga(mock.Anything, mock.Anything).Return(errors.New("connection reset")).Once()
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			starter := mocks.NewMockSagaStarter(t)
			tt.setupMocks(starter)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			newRouter(starter, mocks.NewMockSagaRepository(t)).ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedStatus == http.StatusAccepted {
				var response application.SubmitOrderResponse
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
				assert.NotEmpty(t, response.OrderID)
			}
		})
	}
}

func TestOrderHandlers_GetSaga(t *testing.T) {
	saga, err := domain.NewSaga(domain.Order{
		ID:         models.GenerateUUID(),
		CustomerID: "customer-1",
		Items:      []models.LineItem{{SKU: "sku-1", Quantity: 1, UnitPrice: models.NewMoney(100, "USD")}},
	})
	require.NoError(t, err)

	repo := mocks.NewMockSagaRepository(t)
	repo.EXPECT().FindByID(mock.Anything, saga.OrderID).Return(saga, nil).Once()
	repo.EXPECT().FindByID(mock.Anything, mock.Anything).Return(nil, domain.ErrSagaNotFound).Once()

	router := newRouter(mocks.NewMockSagaStarter(t), repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sagas/"+saga.OrderID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var response application.SagaResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Equal(t, "Created", response.Status)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sagas/"+models.GenerateUUID().String(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sagas/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrderHandlers_ListSagas(t *testing.T) {
	repo := mocks.NewMockSagaRepository(t)
	repo.EXPECT().FindByStatus(mock.Anything, models.OrderStatusFailed, 100).Return([]*domain.Saga{}, nil).Once()

	router := newRouter(mocks.NewMockSagaStarter(t), repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sagas", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sagas?status=Unknown", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sagas?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type processorFunc func(ctx context.Context, event *events.Event) error

func (f processorFunc) HandleEvent(ctx context.Context, event *events.Event) error {
	return f(ctx, event)
}

func TestOrderEventHandlers_Handle(t *testing.T) {
	var handled []string
	h := NewOrderEventHandlers(processorFunc(func(ctx context.Context, event *events.Event) error {
		handled = append(handled, event.EventType)
		return nil
	}))

	orderID := models.GenerateUUID()
	for _, eventType := range []string{
		events.OrderCreatedEvent,
		events.PaymentFailedEvent,
		events.OrderCompletedEvent,
		events.StockReservationCancelledEvent,
	} {
		require.NoError(t, h.Handle(context.Background(), events.NewEvent(orderID, 1, eventType, nil)))
	}

	assert.Equal(t, []string{events.OrderCreatedEvent, events.PaymentFailedEvent}, handled)
}
