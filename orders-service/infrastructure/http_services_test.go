package infrastructure

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/draftea/order-fulfillment/shared/models"
	"github.com/draftea/order-fulfillment/shared/resilience"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOrderID = models.ID("550e8400-e29b-41d4-a716-446655440000")

func testItems() []models.LineItem {
	return []models.LineItem{{SKU: "sku-1", Quantity: 2, UnitPrice: models.NewMoney(500, "USD")}}
}

func fastPolicy(name string) *resilience.Policy {
	return resilience.NewPolicy(name, resilience.Config{
		MaxAttempts:      3,
		InitialBackoff:   time.Millisecond,
		MaxBackoff:       5 * time.Millisecond,
		Multiplier:       2,
		AttemptTimeout:   time.Second,
		FailureThreshold: 10,
		Cooldown:         time.Minute,
	})
}

func TestInventoryHTTPAdapter_ReserveStock(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		expectedError error
		expectReason  string
	}{
		{
			name:   "reserved",
			status: http.StatusCreated,
		},
		{
			name:          "out of stock is a rejection",
			status:        http.StatusConflict,
			body:          `{"reason":"out of stock"}`,
			expectedError: nil,
			expectReason:  "out of stock",
		},
		{
			name:          "unavailable is transient",
			status:        http.StatusServiceUnavailable,
			expectedError: resilience.ErrTransient,
		},
		{
			name:          "throttled is transient",
			status:        http.StatusTooManyRequests,
			expectedError: resilience.ErrTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var received reserveStockRequest
			r := chi.NewRouter()
			r.Post("/reservations", func(w http.ResponseWriter, r *http.Request) {
				require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			server := httptest.NewServer(r)
			defer server.Close()

			adapter := NewInventoryHTTPAdapter(NewHTTPClient("inventory", server.URL))
			err := adapter.ReserveStock(context.Background(), testOrderID, testItems())

			assert.Equal(t, testOrderID.String(), received.OrderID)
			assert.Len(t, received.Items, 1)

			switch {
			case tt.expectReason != "":
				var rejection *resilience.RejectionError
				require.True(t, errors.As(err, &rejection))
				assert.Equal(t, tt.expectReason, rejection.Reason)
			case tt.expectedError != nil:
				assert.ErrorIs(t, err, tt.expectedError)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestInventoryHTTPAdapter_CancelReservation(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		path = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	adapter := NewInventoryHTTPAdapter(NewHTTPClient("inventory", server.URL))
	require.NoError(t, adapter.CancelReservation(context.Background(), testOrderID))
	assert.Equal(t, "/reservations/"+testOrderID.String(), path)
}

func TestPaymentHTTPAdapter_Charge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chargeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(1000), req.Amount)
		assert.Equal(t, "USD", req.Currency)
		assert.NotEmpty(t, r.Header.Get("Content-Type"))

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"receipt_id":"rcpt-1"}`))
	}))
	defer server.Close()

	adapter := NewPaymentHTTPAdapter(NewHTTPClient("payment", server.URL))
	receipt, err := adapter.Charge(context.Background(), testOrderID, models.NewMoney(1000, "USD"))

	require.NoError(t, err)
	assert.Equal(t, "rcpt-1", receipt.ID)
}

func TestHTTPClient_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	err := NewHTTPClient("payment", url).Do(context.Background(), http.MethodPost, "/charges", nil, nil)
	assert.ErrorIs(t, err, resilience.ErrTransient)
}

func TestResilientPayment_RetriesTransientFailures(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"receipt_id":"rcpt-3"}`))
	}))
	defer server.Close()

	payment := NewResilientPayment(
		NewPaymentHTTPAdapter(NewHTTPClient("payment", server.URL)),
		fastPolicy("payment"),
	)

	receipt, err := payment.Charge(context.Background(), testOrderID, models.NewMoney(1000, "USD"))
	require.NoError(t, err)
	assert.Equal(t, "rcpt-3", receipt.ID)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestResilientPayment_RejectionIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"reason":"card declined"}`))
	}))
	defer server.Close()

	payment := NewResilientPayment(
		NewPaymentHTTPAdapter(NewHTTPClient("payment", server.URL)),
		fastPolicy("payment"),
	)

	_, err := payment.Charge(context.Background(), testOrderID, models.NewMoney(1000, "USD"))

	outcome, reason, ok := resilience.Classify(err)
	require.True(t, ok)
	assert.Equal(t, resilience.OutcomeRejected, outcome)
	assert.Equal(t, "card declined", reason)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestResilientInventory_Exhausted(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	inventory := NewResilientInventory(
		NewInventoryHTTPAdapter(NewHTTPClient("inventory", server.URL)),
		fastPolicy("inventory"),
	)

	err := inventory.CancelReservation(context.Background(), testOrderID)

	assert.ErrorIs(t, err, resilience.ErrExhausted)
	var callErr *resilience.CallError
	require.True(t, errors.As(err, &callErr))
	assert.Equal(t, 3, callErr.Attempts)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}
