package domain

import (
	"time"

	"github.com/draftea/order-fulfillment/shared/events"
	"github.com/draftea/order-fulfillment/shared/models"
	"github.com/pkg/errors"
)

// Step is a forward action of the fulfillment saga
type Step string

const (
	StepReserveStock      Step = "ReserveStock"
	StepCharge            Step = "Charge"
	StepCancelReservation Step = "CancelReservation"
)

// Compensation returns the step that undoes s. Charge is the last forward
// step, nothing can fail after it, so it has none.
func (s Step) Compensation() (Step, bool) {
	if s == StepReserveStock {
		return StepCancelReservation, true
	}
	return "", false
}

// Order is the command accepted by the orchestrator
type Order struct {
	ID         models.ID
	CustomerID string
	Items      []models.LineItem
}

// allowed lists the successors of every non-terminal status
var allowed = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusCreated:          {models.OrderStatusReservingStock, models.OrderStatusCompensating},
	models.OrderStatusReservingStock:   {models.OrderStatusStockReserved, models.OrderStatusCompensating, models.OrderStatusFailed},
	models.OrderStatusStockReserved:    {models.OrderStatusCharging, models.OrderStatusCompensating, models.OrderStatusFailed},
	models.OrderStatusCharging:         {models.OrderStatusPaymentCompleted, models.OrderStatusCompensating, models.OrderStatusFailed},
	models.OrderStatusPaymentCompleted: {models.OrderStatusCompleted},
	models.OrderStatusCompensating:     {models.OrderStatusCancelled, models.OrderStatusFailed},
}

// CanTransition reports whether the state machine allows from -> to
func CanTransition(from, to models.OrderStatus) bool {
	for _, next := range allowed[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Saga aggregate root. It owns one order's workflow and records the events
// each transition produces; recorded events stay pending until published.
type Saga struct {
	OrderID        models.ID
	CustomerID     string
	Items          []models.LineItem
	Total          models.Money
	Status         models.OrderStatus
	CurrentStep    Step
	CompletedSteps []Step
	Retries        map[Step]int
	LastError      string
	CancelReason   string
	FailedStep     Step
	ReceiptID      string
	LastSequence   int64
	ArchivedAt     *time.Time
	Timestamps     models.Timestamps
	Version        models.Version

	events []*events.Event
}

// NewSaga validates the order and records OrderCreated
func NewSaga(order Order) (*Saga, error) {
	if order.ID == "" {
		return nil, errors.Wrap(ErrInvalidOrder, "order id is required")
	}
	if order.CustomerID == "" {
		return nil, errors.Wrap(ErrInvalidOrder, "customer id is required")
	}
	for _, item := range order.Items {
		if item.SKU == "" {
			return nil, errors.Wrap(ErrInvalidOrder, "item sku is required")
		}
		if item.Quantity <= 0 {
			return nil, errors.Wrapf(ErrInvalidOrder, "item %s quantity must be positive", item.SKU)
		}
		if item.UnitPrice.Amount < 0 {
			return nil, errors.Wrapf(ErrInvalidOrder, "item %s price must not be negative", item.SKU)
		}
	}

	total, err := models.Total(order.Items)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidOrder, err.Error())
	}

	saga := &Saga{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Items:      order.Items,
		Total:      total,
		Status:     models.OrderStatusCreated,
		Retries:    make(map[Step]int),
		Timestamps: models.NewTimestamps(),
		Version:    models.NewVersion(),
	}

	saga.recordEvent(events.OrderCreatedEvent, events.OrderCreatedData{
		OrderID:    saga.OrderID,
		CustomerID: saga.CustomerID,
		Items:      saga.Items,
		Total:      saga.Total,
	})

	return saga, nil
}

// BeginReservation moves Created -> ReservingStock
func (s *Saga) BeginReservation() error {
	if err := s.transition(models.OrderStatusReservingStock); err != nil {
		return err
	}
	s.CurrentStep = StepReserveStock
	return nil
}

// StockReserved completes the reservation step
func (s *Saga) StockReserved() error {
	if err := s.transition(models.OrderStatusStockReserved); err != nil {
		return err
	}
	s.completeStep(StepReserveStock)
	s.recordEvent(events.StockReservedEvent, events.StockReservedData{OrderID: s.OrderID})
	return nil
}

// BeginCharge moves StockReserved -> Charging
func (s *Saga) BeginCharge() error {
	if err := s.transition(models.OrderStatusCharging); err != nil {
		return err
	}
	s.CurrentStep = StepCharge
	return nil
}

// PaymentCompleted completes the charge step
func (s *Saga) PaymentCompleted(receiptID string) error {
	if err := s.transition(models.OrderStatusPaymentCompleted); err != nil {
		return err
	}
	s.ReceiptID = receiptID
	s.completeStep(StepCharge)
	s.recordEvent(events.PaymentCompletedEvent, events.PaymentCompletedData{
		OrderID:   s.OrderID,
		ReceiptID: receiptID,
		Amount:    s.Total,
	})
	return nil
}

// Complete finishes the saga
func (s *Saga) Complete() error {
	if err := s.transition(models.OrderStatusCompleted); err != nil {
		return err
	}
	s.CurrentStep = ""
	s.recordEvent(events.OrderCompletedEvent, events.OrderCompletedData{OrderID: s.OrderID})
	return nil
}

// RejectStep records the business rejection of the current step and starts compensation
func (s *Saga) RejectStep(reason string) error {
	step := s.CurrentStep
	if err := s.StartCompensation(reason); err != nil {
		return err
	}

	switch step {
	case StepReserveStock:
		s.recordEvent(events.StockReservationFailedEvent, events.StockReservationFailedData{OrderID: s.OrderID, Reason: reason})
	case StepCharge:
		s.recordEvent(events.PaymentFailedEvent, events.PaymentFailedData{OrderID: s.OrderID, Reason: reason})
	}
	return nil
}

// StartCompensation moves to Compensating without recording a failure event.
// It is used when the rejection arrived as an event from elsewhere.
func (s *Saga) StartCompensation(reason string) error {
	if err := s.transition(models.OrderStatusCompensating); err != nil {
		return err
	}
	s.LastError = reason
	s.CancelReason = reason
	return nil
}

// PendingCompensations returns the completed steps to undo, most recent first
func (s *Saga) PendingCompensations() []Step {
	steps := make([]Step, 0, len(s.CompletedSteps))
	for i := len(s.CompletedSteps) - 1; i >= 0; i-- {
		steps = append(steps, s.CompletedSteps[i])
	}
	return steps
}

// StepCompensated removes the most recent completed step, which must be step
func (s *Saga) StepCompensated(step Step) error {
	if s.Status != models.OrderStatusCompensating {
		return errors.Wrapf(ErrInvalidTransition, "cannot compensate %s in status %s", step, s.Status)
	}
	n := len(s.CompletedSteps)
	if n == 0 || s.CompletedSteps[n-1] != step {
		return errors.Wrapf(ErrInvalidTransition, "%s is not the last completed step", step)
	}

	s.CompletedSteps = s.CompletedSteps[:n-1]
	s.Timestamps = s.Timestamps.Update()

	if step == StepReserveStock {
		s.recordEvent(events.StockReservationCancelledEvent, events.StockReservationCancelledData{OrderID: s.OrderID})
	}
	return nil
}

// Cancel ends compensation once every completed step is undone
func (s *Saga) Cancel() error {
	if len(s.CompletedSteps) > 0 {
		return errors.Wrapf(ErrInvalidTransition, "%d step(s) still to compensate", len(s.CompletedSteps))
	}
	if err := s.transition(models.OrderStatusCancelled); err != nil {
		return err
	}
	s.CurrentStep = ""
	s.recordEvent(events.OrderCancelledEvent, events.OrderCancelledData{OrderID: s.OrderID, Reason: s.CancelReason})
	return nil
}

// Fail parks the saga for an operator. Completed steps are left as they are.
func (s *Saga) Fail(step Step, reason string) error {
	if err := s.transition(models.OrderStatusFailed); err != nil {
		return err
	}
	s.LastError = reason
	s.FailedStep = step
	s.recordEvent(events.OrderFailedEvent, events.OrderFailedData{OrderID: s.OrderID, Step: string(step), Reason: reason})
	return nil
}

// RecordAttempts adds the attempts made by one guarded call of step
func (s *Saga) RecordAttempts(step Step, attempts int, lastErr string) {
	if s.Retries == nil {
		s.Retries = make(map[Step]int)
	}
	s.Retries[step] += attempts
	if lastErr != "" {
		s.LastError = lastErr
	}
}

// IsStepCompleted reports whether step is recorded as completed
func (s *Saga) IsStepCompleted(step Step) bool {
	for _, completed := range s.CompletedSteps {
		if completed == step {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the saga is archived
func (s *Saga) IsTerminal() bool {
	return s.Status.IsTerminal()
}

// Events returns the recorded events that are not yet published
func (s *Saga) Events() []*events.Event {
	return s.events
}

// ClearEvents drops events once they are published
func (s *Saga) ClearEvents() {
	s.events = make([]*events.Event, 0)
}

// RestoreEvents reloads pending events from storage
func (s *Saga) RestoreEvents(pending []*events.Event) {
	s.events = pending
}

func (s *Saga) transition(to models.OrderStatus) error {
	if !CanTransition(s.Status, to) {
		return errors.Wrapf(ErrInvalidTransition, "%s -> %s", s.Status, to)
	}

	s.Status = to
	s.Timestamps = s.Timestamps.Update()
	if to.IsTerminal() {
		archivedAt := s.Timestamps.UpdatedAt
		s.ArchivedAt = &archivedAt
	}
	return nil
}

func (s *Saga) completeStep(step Step) {
	if !s.IsStepCompleted(step) {
		s.CompletedSteps = append(s.CompletedSteps, step)
	}
}

func (s *Saga) recordEvent(eventType string, data interface{}) {
	s.LastSequence++
	event := events.NewEvent(s.OrderID, s.LastSequence, eventType, data).
		WithCorrelationID(s.OrderID)
	s.events = append(s.events, event)
}

// Clone returns a deep copy, pending events included
func (s *Saga) Clone() *Saga {
	clone := *s
	clone.Items = append([]models.LineItem(nil), s.Items...)
	clone.CompletedSteps = append([]Step(nil), s.CompletedSteps...)
	clone.Retries = make(map[Step]int, len(s.Retries))
	for step, n := range s.Retries {
		clone.Retries[step] = n
	}
	if s.ArchivedAt != nil {
		archivedAt := *s.ArchivedAt
		clone.ArchivedAt = &archivedAt
	}
	clone.events = make([]*events.Event, len(s.events))
	for i, event := range s.events {
		clone.events[i] = event.Clone()
	}
	return &clone
}
