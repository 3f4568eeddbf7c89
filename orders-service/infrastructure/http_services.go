package infrastructure

import (
	"context"
	"net/http"
	"net/url"

	"github.com/draftea/order-fulfillment/orders-service/domain"
	"github.com/draftea/order-fulfillment/shared/models"
)

var (
	_ domain.InventoryService = (*InventoryHTTPAdapter)(nil)
	_ domain.PaymentService   = (*PaymentHTTPAdapter)(nil)
)

// InventoryHTTPAdapter calls the inventory service. Reservations are keyed by
// order id on the inventory side, so repeated calls are safe.
type InventoryHTTPAdapter struct {
	client *HTTPClient
}

func NewInventoryHTTPAdapter(client *HTTPClient) *InventoryHTTPAdapter {
	return &InventoryHTTPAdapter{client: client}
}

type reserveStockRequest struct {
	OrderID string            `json:"order_id"`
	Items   []models.LineItem `json:"items"`
}

func (a *InventoryHTTPAdapter) ReserveStock(ctx context.Context, orderID models.ID, items []models.LineItem) error {
	return a.client.Do(ctx, http.MethodPost, "/reservations", reserveStockRequest{
		OrderID: orderID.String(),
		Items:   items,
	}, nil)
}

func (a *InventoryHTTPAdapter) CancelReservation(ctx context.Context, orderID models.ID) error {
	return a.client.Do(ctx, http.MethodDelete, "/reservations/"+url.PathEscape(orderID.String()), nil, nil)
}

// PaymentHTTPAdapter calls the payment service
type PaymentHTTPAdapter struct {
	client *HTTPClient
}

func NewPaymentHTTPAdapter(client *HTTPClient) *PaymentHTTPAdapter {
	return &PaymentHTTPAdapter{client: client}
}

type chargeRequest struct {
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func (a *PaymentHTTPAdapter) Charge(ctx context.Context, orderID models.ID, amount models.Money) (domain.Receipt, error) {
	var receipt domain.Receipt
	err := a.client.Do(ctx, http.MethodPost, "/charges", chargeRequest{
		OrderID:  orderID.String(),
		Amount:   amount.Amount,
		Currency: amount.Currency,
	}, &receipt)
	return receipt, err
}
