package infrastructure

import (
	"context"

	"github.com/draftea/order-fulfillment/orders-service/domain"
	"github.com/draftea/order-fulfillment/shared/models"
	"github.com/draftea/order-fulfillment/shared/resilience"
	"github.com/draftea/order-fulfillment/shared/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

var (
	_ domain.InventoryService = (*ResilientInventory)(nil)
	_ domain.PaymentService   = (*ResilientPayment)(nil)
)

// ResilientInventory guards an InventoryService with one breaker shared by
// reservation and cancellation. Errors it returns are *resilience.CallError
// unless the caller context ended.
type ResilientInventory struct {
	next   domain.InventoryService
	policy *resilience.Policy
}

func NewResilientInventory(next domain.InventoryService, policy *resilience.Policy) *ResilientInventory {
	return &ResilientInventory{next: next, policy: policy}
}

func (r *ResilientInventory) ReserveStock(ctx context.Context, orderID models.ID, items []models.LineItem) error {
	_, err := resilience.Call(ctx, r.policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.next.ReserveStock(ctx, orderID, items)
	})
	recordCall(ctx, r.policy, "reserve_stock", err)
	return err
}

func (r *ResilientInventory) CancelReservation(ctx context.Context, orderID models.ID) error {
	_, err := resilience.Call(ctx, r.policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.next.CancelReservation(ctx, orderID)
	})
	recordCall(ctx, r.policy, "cancel_reservation", err)
	return err
}

// ResilientPayment guards a PaymentService
type ResilientPayment struct {
	next   domain.PaymentService
	policy *resilience.Policy
}

func NewResilientPayment(next domain.PaymentService, policy *resilience.Policy) *ResilientPayment {
	return &ResilientPayment{next: next, policy: policy}
}

func (r *ResilientPayment) Charge(ctx context.Context, orderID models.ID, amount models.Money) (domain.Receipt, error) {
	receipt, err := resilience.Call(ctx, r.policy, func(ctx context.Context) (domain.Receipt, error) {
		return r.next.Charge(ctx, orderID, amount)
	})
	recordCall(ctx, r.policy, "charge", err)
	return receipt, err
}

func recordCall(ctx context.Context, policy *resilience.Policy, operation string, err error) {
	outcome, _, ok := resilience.Classify(err)
	if !ok {
		outcome = "aborted"
	}
	telemetry.RecordCounter(ctx, "rpc_calls_total", "Guarded downstream calls by outcome", 1,
		attribute.String("service", policy.Name()),
		attribute.String("operation", operation),
		attribute.String("outcome", string(outcome)),
	)
}
