package application

import (
	"context"
	"time"

	"github.com/draftea/order-fulfillment/orders-service/domain"
	"github.com/draftea/order-fulfillment/shared/events"
	"github.com/draftea/order-fulfillment/shared/idempotency"
	"github.com/draftea/order-fulfillment/shared/models"
	"github.com/draftea/order-fulfillment/shared/resilience"
	"github.com/draftea/order-fulfillment/shared/telemetry"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// OrchestratorConsumer is the idempotency namespace of the orchestrator
const OrchestratorConsumer = "orchestrator"

var inFlightStatuses = []models.OrderStatus{
	models.OrderStatusCreated,
	models.OrderStatusReservingStock,
	models.OrderStatusStockReserved,
	models.OrderStatusCharging,
	models.OrderStatusPaymentCompleted,
	models.OrderStatusCompensating,
}

// Orchestrator drives every order saga through reservation, charge and
// completion, compensating completed steps on business rejection. All work on
// one order runs through the keyed executor, so transitions of an order never
// overlap.
type Orchestrator struct {
	repo        domain.SagaRepository
	inventory   domain.InventoryService
	payment     domain.PaymentService
	publisher   events.Publisher
	idempotency idempotency.Store
	notifier    domain.OperatorNotifier
	executor    *KeyedExecutor
	logger      zerolog.Logger
	batchSize   int
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(
	repo domain.SagaRepository,
	inventory domain.InventoryService,
	payment domain.PaymentService,
	publisher events.Publisher,
	store idempotency.Store,
	notifier domain.OperatorNotifier,
	logger zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		repo:        repo,
		inventory:   inventory,
		payment:     payment,
		publisher:   publisher,
		idempotency: store,
		notifier:    notifier,
		executor:    NewKeyedExecutor(),
		logger:      logger.With().Str("component", "orchestrator").Logger(),
		batchSize:   100,
	}
}

// StartSaga creates the saga of a new order and publishes OrderCreated, which
// kicks off the reservation step. Order ids are never reused.
func (o *Orchestrator) StartSaga(ctx context.Context, order domain.Order) error {
	ctx, span := telemetry.StartSpan(ctx, "Orchestrator.StartSaga",
		trace.WithAttributes(attribute.String("order.id", order.ID.String())),
	)
	defer span.End()

	saga, err := domain.NewSaga(order)
	if err != nil {
		return err
	}

	return o.executor.Do(ctx, saga.OrderID.String(), func(ctx context.Context) error {
		if err := o.repo.Create(ctx, saga); err != nil {
			return errors.Wrap(err, "failed to create saga")
		}

		o.sagaLogger(saga).Info().
			Str("customer_id", saga.CustomerID).
			Int64("total", saga.Total.Amount).
			Str("currency", saga.Total.Currency).
			Msg("saga started")

		o.flush(ctx, saga)
		return nil
	})
}

// Handle implements events.EventHandler
func (o *Orchestrator) Handle(ctx context.Context, event *events.Event) error {
	return o.HandleEvent(ctx, event)
}

// HandleEvent applies one event to its saga at most once. Events for unknown
// or terminal sagas are logged and dropped. A returned error means the event
// must be redelivered.
func (o *Orchestrator) HandleEvent(ctx context.Context, event *events.Event) error {
	ctx, span := telemetry.StartSpan(ctx, "Orchestrator.HandleEvent",
		trace.WithAttributes(
			attribute.String("order.id", event.AggregateID.String()),
			attribute.String("event.type", event.EventType),
			attribute.Int64("event.sequence", event.Sequence),
		),
	)
	defer span.End()

	logger := eventLogger(o.logger, event)

	return o.executor.Do(ctx, event.AggregateID.String(), func(ctx context.Context) error {
		ran, err := idempotency.Once(ctx, o.idempotency, OrchestratorConsumer, event.ID, func(ctx context.Context) error {
			return o.handle(ctx, event, logger)
		})
		if err != nil {
			span.RecordError(err)
			return err
		}

		if !ran {
			logger.Debug().Msg("duplicate event dropped")
			telemetry.RecordCounter(ctx, "idempotency_duplicates_total", "Events dropped as already processed", 1,
				attribute.String("consumer", OrchestratorConsumer),
			)
		}
		return nil
	})
}

func (o *Orchestrator) handle(ctx context.Context, event *events.Event, logger zerolog.Logger) error {
	saga, err := o.repo.FindByID(ctx, event.AggregateID)
	if errors.Is(err, domain.ErrSagaNotFound) {
		logger.Warn().Msg("event for unknown saga dropped")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to load saga")
	}

	if saga.IsTerminal() {
		logger.Info().Str("status", saga.Status.String()).Msg("event for terminal saga dropped")
		return nil
	}

	switch event.EventType {
	case events.OrderCreatedEvent, events.StockReservedEvent, events.PaymentCompletedEvent:
		if !triggers(event.EventType, saga.Status) {
			logger.Debug().Str("status", saga.Status.String()).Msg("stale event ignored")
			return nil
		}
		return o.advance(ctx, saga)

	case events.StockReservationFailedEvent, events.PaymentFailedEvent:
		return o.onRejected(ctx, saga, event, logger)
	}

	return nil
}

// triggers reports whether an event type is the signal for the step the saga waits on
func triggers(eventType string, status models.OrderStatus) bool {
	if status == models.OrderStatusCompensating {
		return true
	}

	switch eventType {
	case events.OrderCreatedEvent:
		return status == models.OrderStatusCreated || status == models.OrderStatusReservingStock
	case events.StockReservedEvent:
		return status == models.OrderStatusStockReserved || status == models.OrderStatusCharging
	case events.PaymentCompletedEvent:
		return status == models.OrderStatusPaymentCompleted
	}
	return false
}

// onRejected starts compensation for a rejection reported by another service
func (o *Orchestrator) onRejected(ctx context.Context, saga *domain.Saga, event *events.Event, logger zerolog.Logger) error {
	if saga.Status == models.OrderStatusCompensating {
		return o.advance(ctx, saga)
	}

	reason := rejectionReason(event)
	from := saga.Status

	if err := saga.StartCompensation(reason); err != nil {
		logger.Warn().Err(err).Str("status", saga.Status.String()).Msg("rejection ignored")
		return nil
	}

	logger.Warn().Str("reason", reason).Msg("rejection received, compensating")

	compErr := o.runCompensation(ctx, saga)
	if err := o.commit(ctx, saga, from); err != nil {
		return err
	}
	return compErr
}

func rejectionReason(event *events.Event) string {
	var data struct {
		Reason string `json:"reason"`
	}
	if err := event.UnmarshalPayload(&data); err != nil || data.Reason == "" {
		return event.EventType
	}
	return data.Reason
}

// advance runs the step the saga is waiting on
func (o *Orchestrator) advance(ctx context.Context, saga *domain.Saga) error {
	switch saga.Status {
	case models.OrderStatusCreated, models.OrderStatusReservingStock:
		return o.reserveStock(ctx, saga)
	case models.OrderStatusStockReserved, models.OrderStatusCharging:
		return o.charge(ctx, saga)
	case models.OrderStatusPaymentCompleted:
		return o.complete(ctx, saga)
	case models.OrderStatusCompensating:
		from := saga.Status
		compErr := o.runCompensation(ctx, saga)
		if err := o.commit(ctx, saga, from); err != nil {
			return err
		}
		return compErr
	}
	return nil
}

func (o *Orchestrator) reserveStock(ctx context.Context, saga *domain.Saga) error {
	from := saga.Status
	if saga.Status == models.OrderStatusCreated {
		if err := saga.BeginReservation(); err != nil {
			return err
		}
		if err := o.commit(ctx, saga, from); err != nil {
			return err
		}
		from = saga.Status
	}

	err := o.guard(ctx, saga, domain.StepReserveStock, func(ctx context.Context) error {
		return o.inventory.ReserveStock(ctx, saga.OrderID, saga.Items)
	})

	outcome, reason, ok := resilience.Classify(err)
	if !ok {
		return errors.Wrap(err, "failed to reserve stock")
	}

	var stepErr error
	switch outcome {
	case resilience.OutcomeSuccess:
		stepErr = saga.StockReserved()
	case resilience.OutcomeRejected:
		stepErr = o.rejectAndCompensate(ctx, saga, reason)
	default:
		stepErr = saga.Fail(domain.StepReserveStock, reason)
	}

	if err := o.commit(ctx, saga, from); err != nil {
		return err
	}
	return stepErr
}

func (o *Orchestrator) charge(ctx context.Context, saga *domain.Saga) error {
	from := saga.Status
	if saga.Status == models.OrderStatusStockReserved {
		if err := saga.BeginCharge(); err != nil {
			return err
		}
		if err := o.commit(ctx, saga, from); err != nil {
			return err
		}
		from = saga.Status
	}

	var receipt domain.Receipt
	err := o.guard(ctx, saga, domain.StepCharge, func(ctx context.Context) error {
		var err error
		receipt, err = o.payment.Charge(ctx, saga.OrderID, saga.Total)
		return err
	})

	outcome, reason, ok := resilience.Classify(err)
	if !ok {
		return errors.Wrap(err, "failed to charge")
	}

	var stepErr error
	switch outcome {
	case resilience.OutcomeSuccess:
		stepErr = saga.PaymentCompleted(receipt.ID)
	case resilience.OutcomeRejected:
		stepErr = o.rejectAndCompensate(ctx, saga, reason)
	default:
		stepErr = saga.Fail(domain.StepCharge, reason)
	}

	if err := o.commit(ctx, saga, from); err != nil {
		return err
	}
	return stepErr
}

func (o *Orchestrator) complete(ctx context.Context, saga *domain.Saga) error {
	from := saga.Status
	if err := saga.Complete(); err != nil {
		return err
	}
	return o.commit(ctx, saga, from)
}

func (o *Orchestrator) rejectAndCompensate(ctx context.Context, saga *domain.Saga, reason string) error {
	if err := saga.RejectStep(reason); err != nil {
		return err
	}

	o.sagaLogger(saga).Warn().Str("reason", reason).Msg("step rejected, compensating")
	return o.runCompensation(ctx, saga)
}

// runCompensation undoes completed steps newest first, then cancels. A
// rejected compensation means there was nothing to undo. An exhausted one
// fails the saga, since the state of the downstream side is unknown.
func (o *Orchestrator) runCompensation(ctx context.Context, saga *domain.Saga) error {
	for _, step := range saga.PendingCompensations() {
		undo, ok := step.Compensation()
		if !ok {
			if err := saga.StepCompensated(step); err != nil {
				return err
			}
			continue
		}

		err := o.guard(ctx, saga, undo, func(ctx context.Context) error {
			return o.undo(ctx, saga, undo)
		})

		outcome, reason, ok := resilience.Classify(err)
		if !ok {
			return errors.Wrapf(err, "failed to run %s", undo)
		}

		switch outcome {
		case resilience.OutcomeRejected:
			o.sagaLogger(saga).Warn().Str("step", string(undo)).Str("reason", reason).Msg("compensation rejected, treating step as undone")
			fallthrough
		case resilience.OutcomeSuccess:
			if err := saga.StepCompensated(step); err != nil {
				return err
			}
		default:
			return saga.Fail(undo, reason)
		}
	}

	return saga.Cancel()
}

func (o *Orchestrator) undo(ctx context.Context, saga *domain.Saga, step domain.Step) error {
	switch step {
	case domain.StepCancelReservation:
		return o.inventory.CancelReservation(ctx, saga.OrderID)
	}
	return errors.Errorf("no compensating operation for %s", step)
}

// guard runs one guarded downstream call and records its attempts and timing
func (o *Orchestrator) guard(ctx context.Context, saga *domain.Saga, step domain.Step, call func(ctx context.Context) error) error {
	ctx, span := telemetry.StartSpan(ctx, "Saga."+string(step))
	defer span.End()

	start := time.Now()
	err := call(ctx)

	outcome, _, ok := resilience.Classify(err)
	if !ok {
		outcome = "aborted"
	}

	var callErr *resilience.CallError
	if errors.As(err, &callErr) {
		saga.RecordAttempts(step, callErr.Attempts, callErr.Error())
		span.RecordError(err)
	}

	span.SetAttributes(attribute.String("outcome", string(outcome)))
	telemetry.RecordHistogram(ctx, "saga_step_duration_seconds", "Duration of saga steps", time.Since(start).Seconds(),
		attribute.String("step", string(step)),
		attribute.String("outcome", string(outcome)),
	)

	return err
}

// commit saves the saga, publishes its outbox and raises the operator alert
// when the saga has just failed
func (o *Orchestrator) commit(ctx context.Context, saga *domain.Saga, from models.OrderStatus) error {
	if err := o.repo.Save(ctx, saga); err != nil {
		return errors.Wrap(err, "failed to save saga")
	}

	if saga.Status != from {
		o.sagaLogger(saga).Info().
			Str("from", from.String()).
			Str("to", saga.Status.String()).
			Msg("saga transitioned")
		telemetry.RecordCounter(ctx, "saga_transitions_total", "Saga state transitions", 1,
			attribute.String("from", from.String()),
			attribute.String("to", saga.Status.String()),
		)
	}

	o.flush(ctx, saga)

	if saga.Status == models.OrderStatusFailed && from != models.OrderStatusFailed {
		o.alert(ctx, saga)
	}
	return nil
}

// flush publishes pending events and clears them from the outbox. On publish
// failure the events stay in the outbox for the relay.
func (o *Orchestrator) flush(ctx context.Context, saga *domain.Saga) int {
	pending := saga.Events()
	if len(pending) == 0 {
		return 0
	}

	if err := o.publisher.Publish(ctx, pending...); err != nil {
		o.sagaLogger(saga).Warn().Err(err).Int("pending", len(pending)).Msg("publish failed, events kept in outbox")
		return 0
	}

	saga.ClearEvents()
	if err := o.repo.Save(ctx, saga); err != nil {
		o.sagaLogger(saga).Warn().Err(err).Msg("failed to clear outbox, events will be published again")
	}
	return len(pending)
}

func (o *Orchestrator) alert(ctx context.Context, saga *domain.Saga) {
	alert := domain.FailureAlert{
		OrderID:  saga.OrderID,
		Step:     saga.FailedStep,
		Reason:   saga.LastError,
		Attempts: saga.Retries[saga.FailedStep],
		FailedAt: saga.Timestamps.UpdatedAt,
	}

	o.sagaLogger(saga).Error().
		Str("step", string(alert.Step)).
		Str("reason", alert.Reason).
		Int("attempts", alert.Attempts).
		Msg("saga failed, operator intervention required")

	if err := o.notifier.NotifySagaFailed(ctx, alert); err != nil {
		o.sagaLogger(saga).Error().Err(err).Msg("failed to notify operator")
	}
}

// RelayOutbox publishes events left behind by failed publishes
func (o *Orchestrator) RelayOutbox(ctx context.Context) (int, error) {
	sagas, err := o.repo.FindWithPendingEvents(ctx, o.batchSize)
	if err != nil {
		return 0, errors.Wrap(err, "failed to find pending events")
	}

	published := 0
	for _, pending := range sagas {
		err := o.executor.Do(ctx, pending.OrderID.String(), func(ctx context.Context) error {
			saga, err := o.repo.FindByID(ctx, pending.OrderID)
			if err != nil {
				return err
			}
			published += o.flush(ctx, saga)
			return nil
		})
		if err != nil {
			return published, errors.Wrap(err, "failed to relay outbox")
		}
	}

	return published, nil
}

// ResumeStalled re-drives in-flight sagas that have not moved for stalledFor.
// It covers steps interrupted by a crash after their trigger was consumed.
func (o *Orchestrator) ResumeStalled(ctx context.Context, stalledFor time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-stalledFor)
	resumed := 0
	visited := make(map[models.ID]bool)

	for _, status := range inFlightStatuses {
		sagas, err := o.repo.FindByStatus(ctx, status, o.batchSize)
		if err != nil {
			return resumed, errors.Wrap(err, "failed to find in-flight sagas")
		}

		for _, candidate := range sagas {
			if visited[candidate.OrderID] || candidate.Timestamps.UpdatedAt.After(cutoff) {
				continue
			}
			visited[candidate.OrderID] = true

			err := o.executor.Do(ctx, candidate.OrderID.String(), func(ctx context.Context) error {
				saga, err := o.repo.FindByID(ctx, candidate.OrderID)
				if err != nil {
					return err
				}
				if saga.IsTerminal() || saga.Timestamps.UpdatedAt.After(cutoff) {
					return nil
				}

				o.sagaLogger(saga).Info().Str("status", saga.Status.String()).Msg("resuming stalled saga")
				resumed++
				o.flush(ctx, saga)
				return o.advance(ctx, saga)
			})
			if err != nil {
				if ctx.Err() != nil {
					return resumed, ctx.Err()
				}
				o.logger.Warn().Err(err).Str("order_id", candidate.OrderID.String()).Msg("failed to resume saga")
			}
		}
	}

	return resumed, nil
}

// RunMaintenance relays the outbox and resumes stalled sagas every interval until ctx is done
func (o *Orchestrator) RunMaintenance(ctx context.Context, interval, stalledFor time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := o.RelayOutbox(ctx); err != nil {
				o.logger.Error().Err(err).Msg("outbox relay failed")
			} else if n > 0 {
				o.logger.Info().Int("published", n).Msg("outbox relayed")
			}

			if stalledFor > 0 {
				if _, err := o.ResumeStalled(ctx, stalledFor); err != nil && ctx.Err() == nil {
					o.logger.Error().Err(err).Msg("resuming stalled sagas failed")
				}
			}
		}
	}
}

func (o *Orchestrator) sagaLogger(saga *domain.Saga) *zerolog.Logger {
	logger := o.logger.With().Str("order_id", saga.OrderID.String()).Logger()
	return &logger
}

func eventLogger(logger zerolog.Logger, event *events.Event) zerolog.Logger {
	return logger.With().
		Str("order_id", event.AggregateID.String()).
		Str("event_id", event.ID.String()).
		Str("event_type", event.EventType).
		Int64("sequence", event.Sequence).
		Logger()
}
