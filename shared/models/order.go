package models

import "errors"

// OrderStatus is the lifecycle status of an order, shared by the saga and its read model
type OrderStatus string

const (
	OrderStatusCreated          OrderStatus = "Created"
	OrderStatusReservingStock   OrderStatus = "ReservingStock"
	OrderStatusStockReserved    OrderStatus = "StockReserved"
	OrderStatusCharging         OrderStatus = "Charging"
	OrderStatusPaymentCompleted OrderStatus = "PaymentCompleted"
	OrderStatusCompleted        OrderStatus = "Completed"
	OrderStatusCompensating     OrderStatus = "Compensating"
	OrderStatusCancelled        OrderStatus = "Cancelled"
	OrderStatusFailed           OrderStatus = "Failed"
)

var ErrInvalidOrderStatus = errors.New("invalid order status")

// NewOrderStatus parses a status name
func NewOrderStatus(s string) (OrderStatus, error) {
	switch status := OrderStatus(s); status {
	case OrderStatusCreated, OrderStatusReservingStock, OrderStatusStockReserved,
		OrderStatusCharging, OrderStatusPaymentCompleted, OrderStatusCompleted,
		OrderStatusCompensating, OrderStatusCancelled, OrderStatusFailed:
		return status, nil
	}
	return "", ErrInvalidOrderStatus
}

// IsTerminal reports whether no further transition is possible
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled || s == OrderStatusFailed
}

func (s OrderStatus) String() string {
	return string(s)
}

// LineItem is one ordered product line
type LineItem struct {
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
	UnitPrice Money  `json:"unit_price"`
}

// Total sums the line items. All items must share one currency.
func Total(items []LineItem) (Money, error) {
	if len(items) == 0 {
		return Money{}, errors.New("at least one item is required")
	}

	total := NewMoney(0, items[0].UnitPrice.Currency)
	for _, item := range items {
		var err error
		total, err = total.Add(item.UnitPrice.Multiply(item.Quantity))
		if err != nil {
			return Money{}, err
		}
	}
	return total, nil
}
