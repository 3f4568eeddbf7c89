package events

import "github.com/draftea/order-fulfillment/shared/models"

// Order lifecycle event types. The type doubles as the topic.
const (
	OrderCreatedEvent              = "order.created"
	StockReservedEvent             = "order.stock.reserved"
	StockReservationFailedEvent    = "order.stock.reservation_failed"
	StockReservationCancelledEvent = "order.stock.reservation_cancelled"
	PaymentCompletedEvent          = "order.payment.completed"
	PaymentFailedEvent             = "order.payment.failed"
	OrderCompletedEvent            = "order.completed"
	OrderCancelledEvent            = "order.cancelled"
	OrderFailedEvent               = "order.failed"
)

// AllOrderEvents matches every order lifecycle topic
const AllOrderEvents Topic = "order.#"

type OrderCreatedData struct {
	OrderID    models.ID         `json:"order_id"`
	CustomerID string            `json:"customer_id"`
	Items      []models.LineItem `json:"items"`
	Total      models.Money      `json:"total"`
}

type StockReservedData struct {
	OrderID models.ID `json:"order_id"`
}

type StockReservationFailedData struct {
	OrderID models.ID `json:"order_id"`
	Reason  string    `json:"reason"`
}

type StockReservationCancelledData struct {
	OrderID models.ID `json:"order_id"`
}

type PaymentCompletedData struct {
	OrderID   models.ID    `json:"order_id"`
	ReceiptID string       `json:"receipt_id"`
	Amount    models.Money `json:"amount"`
}

type PaymentFailedData struct {
	OrderID models.ID `json:"order_id"`
	Reason  string    `json:"reason"`
}

type OrderCompletedData struct {
	OrderID models.ID `json:"order_id"`
}

type OrderCancelledData struct {
	OrderID models.ID `json:"order_id"`
	Reason  string    `json:"reason"`
}

type OrderFailedData struct {
	OrderID models.ID `json:"order_id"`
	Step    string    `json:"step"`
	Reason  string    `json:"reason"`
}
