package application

import (
	"context"
	"sync"
	"testing"

	"github.com/draftea/order-fulfillment/orders-service/domain"
	"github.com/draftea/order-fulfillment/orders-service/infrastructure"
	"github.com/draftea/order-fulfillment/orders-service/mocks"
	"github.com/draftea/order-fulfillment/shared/events"
	"github.com/draftea/order-fulfillment/shared/idempotency"
	"github.com/draftea/order-fulfillment/shared/models"
	"github.com/draftea/order-fulfillment/shared/resilience"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// recordingPublisher stands in for the event channel. Published events are
// queued so tests can deliver them back to the orchestrator.
type recordingPublisher struct {
	mu        sync.Mutex
	published []*events.Event
	queue     []*events.Event
	failures  int
}

func (p *recordingPublisher) Publish(_ context.Context, evts ...*events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failures > 0 {
		p.failures--
		return errors.New("broker unavailable")
	}
	for _, event := range evts {
		p.published = append(p.published, event.Clone())
		p.queue = append(p.queue, event.Clone())
	}
	return nil
}

func (p *recordingPublisher) next() (*events.Event, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.queue) == 0 {
		return nil, false
	}
	event := p.queue[0]
	p.queue = p.queue[1:]
	return event, true
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	types := make([]string, len(p.published))
	for i, event := range p.published {
		types[i] = event.EventType
	}
	return types
}

func (p *recordingPublisher) count(eventType string) int {
	n := 0
	for _, t := range p.types() {
		if t == eventType {
			n++
		}
	}
	return n
}

type orchestratorFixture struct {
	orchestrator *Orchestrator
	repo         *infrastructure.MemorySagaRepository
	publisher    *recordingPublisher
	inventory    *mocks.MockInventoryService
	payment      *mocks.MockPaymentService
	notifier     *mocks.MockOperatorNotifier
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	f := &orchestratorFixture{
		repo:      infrastructure.NewMemorySagaRepository(),
		publisher: &recordingPublisher{},
		inventory: mocks.NewMockInventoryService(t),
		payment:   mocks.NewMockPaymentService(t),
		notifier:  mocks.NewMockOperatorNotifier(t),
	}
	f.orchestrator = NewOrchestrator(f.repo, f.inventory, f.payment, f.publisher,
		idempotency.NewMemoryStore(), f.notifier, zerolog.Nop())
	return f
}

// drive delivers published events back to the orchestrator until none are left
func (f *orchestratorFixture) drive(t *testing.T) {
	t.Helper()
	for {
		event, ok := f.publisher.next()
		if !ok {
			return
		}
		require.NoError(t, f.orchestrator.HandleEvent(context.Background(), event))
	}
}

func (f *orchestratorFixture) saga(t *testing.T, orderID models.ID) *domain.Saga {
	t.Helper()
	saga, err := f.repo.FindByID(context.Background(), orderID)
	require.NoError(t, err)
	return saga
}

func testOrder() domain.Order {
	return domain.Order{
		ID:         models.GenerateUUID(),
		CustomerID: "customer-1",
		Items: []models.LineItem{
			{SKU: "sku-1", Quantity: 2, UnitPrice: models.NewMoney(500, "USD")},
			{SKU: "sku-2", Quantity: 1, UnitPrice: models.NewMoney(250, "USD")},
		},
	}
}

func rejected(name, reason string) error {
	return &resilience.CallError{Name: name, Outcome: resilience.OutcomeRejected, Attempts: 1, Reason: reason, Err: resilience.Reject(reason)}
}

func exhausted(name string, attempts int) error {
	return &resilience.CallError{Name: name, Outcome: resilience.OutcomeExhausted, Attempts: attempts, Err: errors.New("503 Service Unavailable")}
}

func TestOrchestrator_HappyPath(t *testing.T) {
	f := newOrchestratorFixture(t)
	order := testOrder()

	f.inventory.EXPECT().ReserveStock(mock.Anything, order.ID, order.Items).Return(nil).Once()
	f.payment.EXPECT().Charge(mock.Anything, order.ID, models.NewMoney(1250, "USD")).
		Return(domain.Receipt{ID: "rcpt-1"}, nil).Once()

	require.NoError(t, f.orchestrator.StartSaga(context.Background(), order))
	f.drive(t)

	saga := f.saga(t, order.ID)
	assert.Equal(t, models.OrderStatusCompleted, saga.Status)
	assert.Equal(t, "rcpt-1", saga.ReceiptID)
	assert.NotNil(t, saga.ArchivedAt)
	assert.Empty(t, saga.Events())
	assert.Equal(t, []string{
		events.OrderCreatedEvent,
		events.StockReservedEvent,
		events.PaymentCompletedEvent,
		events.OrderCompletedEvent,
	}, f.publisher.types())
	assert.Equal(t, 1, f.publisher.count(events.OrderCompletedEvent))
}

func TestOrchestrator_StockRejected(t *testing.T) {
	f := newOrchestratorFixture(t)
	order := testOrder()

	f.inventory.EXPECT().ReserveStock(mock.Anything, order.ID, mock.Anything).
		Return(rejected("inventory", "out of stock")).Once()

	require.NoError(t, f.orchestrator.StartSaga(context.Background(), order))
	f.drive(t)

	saga := f.saga(t, order.ID)
	assert.Equal(t, models.OrderStatusCancelled, saga.Status)
	assert.Equal(t, "out of stock", saga.CancelReason)
	assert.Empty(t, saga.CompletedSteps)
	assert.Equal(t, []string{
		events.OrderCreatedEvent,
		events.StockReservationFailedEvent,
		events.OrderCancelledEvent,
	}, f.publisher.types())
	f.payment.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrchestrator_PaymentRejectedCompensatesReservation(t *testing.T) {
	f := newOrchestratorFixture(t)
	order := testOrder()

	f.inventory.EXPECT().ReserveStock(mock.Anything, order.ID, mock.Anything).Return(nil).Once()
	f.payment.EXPECT().Charge(mock.Anything, order.ID, mock.Anything).
		Return(domain.Receipt{}, rejected("payment", "card declined")).Once()
	f.inventory.EXPECT().CancelReservation(mock.Anything, order.ID).Return(nil).Once()

	require.NoError(t, f.orchestrator.StartSaga(context.Background(), order))
	f.drive(t)

	saga := f.saga(t, order.ID)
	assert.Equal(t, models.OrderStatusCancelled, saga.Status)
	assert.Equal(t, "card declined", saga.CancelReason)
	assert.Empty(t, saga.CompletedSteps)
	assert.Equal(t, []string{
		events.OrderCreatedEvent,
		events.StockReservedEvent,
		events.PaymentFailedEvent,
		events.StockReservationCancelledEvent,
		events.OrderCancelledEvent,
	}, f.publisher.types())
	assert.Zero(t, f.publisher.count(events.OrderCompletedEvent))
}

func TestOrchestrator_EventSequencesIncrease(t *testing.T) {
	f := newOrchestratorFixture(t)
	order := testOrder()

	f.inventory.EXPECT().ReserveStock(mock.Anything, order.ID, mock.Anything).Return(nil).Once()
	f.payment.EXPECT().Charge(mock.Anything, order.ID, mock.Anything).Return(domain.Receipt{ID: "r"}, nil).Once()

	require.NoError(t, f.orchestrator.StartSaga(context.Background(), order))
	f.drive(t)

	for i, event := range f.publisher.published {
		assert.Equal(t, int64(i+1), event.Sequence)
		assert.Equal(t, order.ID, event.AggregateID)
	}
}

func TestOrchestrator_DuplicateDeliveryIsDropped(t *testing.T) {
	f := newOrchestratorFixture(t)
	order := testOrder()

	f.inventory.EXPECT().ReserveStock(mock.Anything, order.ID, mock.Anything).Return(nil).Once()

	require.NoError(t, f.orchestrator.StartSaga(context.Background(), order))
	created, ok := f.publisher.next()
	require.True(t, ok)

	require.NoError(t, f.orchestrator.HandleEvent(context.Background(), created))
	require.NoError(t, f.orchestrator.HandleEvent(context.Background(), created))

	assert.Equal(t, models.OrderStatusStockReserved, f.saga(t, order.ID).Status)
	assert.Equal(t, 1, f.publisher.count(events.StockReservedEvent))
}

func TestOrchestrator_RedeliveryAfterCancellationDoesNotCharge(t *testing.T) {
	f := newOrchestratorFixture(t)
	order := testOrder()

	f.inventory.EXPECT().ReserveStock(mock.Anything, order.ID, mock.Anything).Return(nil).Once()
	f.payment.EXPECT().Charge(mock.Anything, order.ID, mock.Anything).
		Return(domain.Receipt{}, rejected("payment", "insufficient funds")).Once()
	f.inventory.EXPECT().CancelReservation(mock.Anything, order.ID).Return(nil).Once()

	require.NoError(t, f.orchestrator.StartSaga(context.Background(), order))
	f.drive(t)

	// a stale copy of StockReserved under a new id slips past idempotency
	var stockReserved *events.Event
	for _, event := range f.publisher.published {
		if event.EventType == events.StockReservedEvent {
			stockReserved = event.Clone()
		}
	}
	require.NotNil(t, stockReserved)
	stockReserved.ID = models.GenerateUUID()

	require.NoError(t, f.orchestrator.HandleEvent(context.Background(), stockReserved))
	assert.Equal(t, models.OrderStatusCancelled, f.saga(t, order.ID).Status)
}

func TestOrchestrator_UnknownSagaIsDropped(t *testing.T) {
	f := newOrchestratorFixture(t)

	event := events.NewEvent(models.GenerateUUID(), 1, events.StockReservedEvent,
		events.StockReservedData{})

	assert.NoError(t, f.orchestrator.HandleEvent(context.Background(), event))
	assert.Empty(t, f.publisher.types())
}

func TestOrchestrator_ExhaustedRetriesFailSaga(t *testing.T) {
	tests := []struct {
		name         string
		setupMocks   func(order domain.Order, inventory *mocks.MockInventoryService, payment *mocks.MockPaymentService)
		expectedStep domain.Step
		expectEvents []string
	}{
		{
			name: "reservation exhausted",
			setupMocks: func(order domain.Order, inventory *mocks.MockInventoryService, payment *mocks.MockPaymentService) {
				inventory.EXPECT().ReserveStock(mock.Anything, order.ID, mock.Anything).Return(exhausted("inventory", 3)).Once()
			},
			expectedStep: domain.StepReserveStock,
			expectEvents: []string{events.OrderCreatedEvent, events.OrderFailedEvent},
		},
		{
			name: "charge exhausted",
			setupMocks: func(order domain.Order, inventory *mocks.MockInventoryService, payment *mocks.MockPaymentService) {
				inventory.EXPECT().ReserveStock(mock.Anything, order.ID, mock.Anything).Return(nil).Once()
				payment.EXPECT().Charge(mock.Anything, order.ID, mock.Anything).Return(domain.Receipt{}, exhausted("payment", 3)).Once()
			},
			expectedStep: domain.StepCharge,
			expectEvents: []string{events.OrderCreatedEvent, events.StockReservedEvent, events.OrderFailedEvent},
		},
		{
			name: "compensation exhausted",
			setupMocks: func(order domain.Order, inventory *mocks.MockInventoryService, payment *mocks.MockPaymentService) {
				inventory.EXPECT().ReserveStock(mock.Anything, order.ID, mock.Anything).Return(nil).Once()
				payment.EXPECT().Charge(mock.Anything, order.ID, mock.Anything).Return(domain.Receipt{}, rejected("payment", "declined")).Once()
				inventory.EXPECT().CancelReservation(mock.Anything, order.ID).Return(exhausted("inventory", 3)).Once()
			},
			expectedStep: domain.StepCancelReservation,
			expectEvents: []string{events.OrderCreatedEvent, events.StockReservedEvent, events.PaymentFailedEvent, events.OrderFailedEvent},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newOrchestratorFixture(t)
			order := testOrder()
			tt.setupMocks(order, f.inventory, f.payment)

			f.notifier.EXPECT().NotifySagaFailed(mock.Anything, mock.MatchedBy(func(alert domain.FailureAlert) bool {
				return alert.OrderID == order.ID && alert.Step == tt.expectedStep && alert.Attempts == 3
			})).Return(nil).Once()

			require.NoError(t, f.orchestrator.StartSaga(context.Background(), order))
			f.drive(t)

			saga := f.saga(t, order.ID)
			assert.Equal(t, models.OrderStatusFailed, saga.Status)
			assert.Equal(t, tt.expectedStep, saga.FailedStep)
			assert.Equal(t, 3, saga.Retries[tt.expectedStep])
			assert.Equal(t, tt.expectEvents, f.publisher.types())
		})
	}
}

func TestOrchestrator_CircuitOpenFailsSaga(t *testing.T) {
	f := newOrchestratorFixture(t)
	order := testOrder()

	f.inventory.EXPECT().ReserveStock(mock.Anything, order.ID, mock.Anything).
		Return(&resilience.CallError{Name: "inventory", Outcome: resilience.OutcomeCircuitOpen, Attempts: 1, Err: errors.New("open")}).Once()
	f.notifier.EXPECT().NotifySagaFailed(mock.Anything, mock.Anything).Return(errors.New("pager down")).Once()

	require.NoError(t, f.orchestrator.StartSaga(context.Background(), order))
	f.drive(t)

	assert.Equal(t, models.OrderStatusFailed, f.saga(t, order.ID).Status)
}

func TestOrchestrator_AbortedCallIsRedelivered(t *testing.T) {
	f := newOrchestratorFixture(t)
	order := testOrder()

	f.inventory.EXPECT().ReserveStock(mock.Anything, order.ID, mock.Anything).
		Return(errors.Wrap(context.Canceled, "inventory call aborted")).Once()
	f.inventory.EXPECT().ReserveStock(mock.Anything, order.ID, mock.Anything).Return(nil).Once()

	require.NoError(t, f.orchestrator.StartSaga(context.Background(), order))
	created, ok := f.publisher.next()
	require.True(t, ok)

	err := f.orchestrator.HandleEvent(context.Background(), created)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.OrderStatusReservingStock, f.saga(t, order.ID).Status)

	require.NoError(t, f.orchestrator.HandleEvent(context.Background(), created))
	assert.Equal(t, models.OrderStatusStockReserved, f.saga(t, order.ID).Status)
}

func TestOrchestrator_ExternalRejectionCompensates(t *testing.T) {
	f := newOrchestratorFixture(t)
	order := testOrder()

	require.NoError(t, f.orchestrator.StartSaga(context.Background(), order))
	created, ok := f.publisher.next()
	require.True(t, ok)

	rejection := events.NewEvent(order.ID, 1, events.StockReservationFailedEvent,
		events.StockReservationFailedData{OrderID: order.ID, Reason: "warehouse closed"})
	require.NoError(t, f.orchestrator.HandleEvent(context.Background(), rejection))

	// the original trigger arrives late and finds a terminal saga
	require.NoError(t, f.orchestrator.HandleEvent(context.Background(), created))
	f.drive(t)

	saga := f.saga(t, order.ID)
	assert.Equal(t, models.OrderStatusCancelled, saga.Status)
	assert.Equal(t, "warehouse closed", saga.CancelReason)
	assert.Equal(t, []string{events.OrderCreatedEvent, events.OrderCancelledEvent}, f.publisher.types())
}

func TestOrchestrator_RelayOutboxAfterPublishFailure(t *testing.T) {
	f := newOrchestratorFixture(t)
	order := testOrder()
	f.publisher.failures = 1

	require.NoError(t, f.orchestrator.StartSaga(context.Background(), order))
	assert.Empty(t, f.publisher.types())
	assert.Len(t, f.saga(t, order.ID).Events(), 1)

	published, err := f.orchestrator.RelayOutbox(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, published)
	assert.Equal(t, []string{events.OrderCreatedEvent}, f.publisher.types())
	assert.Empty(t, f.saga(t, order.ID).Events())

	published, err = f.orchestrator.RelayOutbox(context.Background())
	require.NoError(t, err)
	assert.Zero(t, published)
}

func TestOrchestrator_ResumeStalled(t *testing.T) {
	f := newOrchestratorFixture(t)
	order := testOrder()

	f.inventory.EXPECT().ReserveStock(mock.Anything, order.ID, mock.Anything).Return(nil).Once()

	require.NoError(t, f.orchestrator.StartSaga(context.Background(), order))
	// the trigger is lost, as if the consumer crashed after claiming it
	_, ok := f.publisher.next()
	require.True(t, ok)

	resumed, err := f.orchestrator.ResumeStalled(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, resumed)
	assert.Equal(t, models.OrderStatusStockReserved, f.saga(t, order.ID).Status)
}

func TestOrchestrator_StartSagaRejectsDuplicateOrder(t *testing.T) {
	f := newOrchestratorFixture(t)
	order := testOrder()

	require.NoError(t, f.orchestrator.StartSaga(context.Background(), order))
	err := f.orchestrator.StartSaga(context.Background(), order)

	assert.ErrorIs(t, err, domain.ErrSagaAlreadyExists)
	assert.Equal(t, 1, f.publisher.count(events.OrderCreatedEvent))
}

func TestOrchestrator_ConcurrentOrders(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.inventory.EXPECT().ReserveStock(mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.payment.EXPECT().Charge(mock.Anything, mock.Anything, mock.Anything).Return(domain.Receipt{ID: "r"}, nil)

	orders := make([]domain.Order, 20)
	var wg sync.WaitGroup
	for i := range orders {
		orders[i] = testOrder()
		wg.Add(1)
		go func(order domain.Order) {
			defer wg.Done()
			assert.NoError(t, f.orchestrator.StartSaga(context.Background(), order))
		}(orders[i])
	}
	wg.Wait()

	f.drive(t)

	for _, order := range orders {
		assert.Equal(t, models.OrderStatusCompleted, f.saga(t, order.ID).Status)
	}
	assert.Equal(t, len(orders), f.publisher.count(events.OrderCompletedEvent))
}
