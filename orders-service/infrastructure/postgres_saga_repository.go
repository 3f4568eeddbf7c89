package infrastructure

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/draftea/order-fulfillment/orders-service/domain"
	"github.com/draftea/order-fulfillment/shared/events"
	"github.com/draftea/order-fulfillment/shared/models"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

var _ domain.SagaRepository = (*PostgresSagaRepository)(nil)

// PostgresSagaRepository implements SagaRepository using PostgreSQL. Pending
// events live in the same row as the saga, so a transition and its outbox are
// written atomically.
type PostgresSagaRepository struct {
	db *sqlx.DB
}

// NewPostgresSagaRepository creates a new PostgresSagaRepository
func NewPostgresSagaRepository(db *sqlx.DB) *PostgresSagaRepository {
	return &PostgresSagaRepository{db: db}
}

// postgresSaga represents saga in database
type postgresSaga struct {
	OrderID        string     `db:"order_id"`
	CustomerID     string     `db:"customer_id"`
	Items          []byte     `db:"items"`
	TotalAmount    int64      `db:"total_amount"`
	Currency       string     `db:"currency"`
	Status         string     `db:"status"`
	CurrentStep    string     `db:"current_step"`
	CompletedSteps []byte     `db:"completed_steps"`
	Retries        []byte     `db:"retries"`
	LastError      string     `db:"last_error"`
	CancelReason   string     `db:"cancel_reason"`
	FailedStep     string     `db:"failed_step"`
	ReceiptID      string     `db:"receipt_id"`
	LastSequence   int64      `db:"last_sequence"`
	PendingEvents  []byte     `db:"pending_events"`
	PendingCount   int        `db:"pending_count"`
	ArchivedAt     *time.Time `db:"archived_at"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
	Version        int        `db:"version"`
}

// pendingEvent is the stored form of an unpublished event
type pendingEvent struct {
	ID            models.ID       `json:"id"`
	AggregateID   models.ID       `json:"aggregate_id"`
	Sequence      int64           `json:"sequence"`
	EventType     string          `json:"event_type"`
	Version       string          `json:"version"`
	Data          json.RawMessage `json:"data"`
	Metadata      events.Metadata `json:"metadata"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID models.ID       `json:"correlation_id,omitempty"`
}

const selectSagas = `
	SELECT order_id, customer_id, items, total_amount, currency, status,
		   current_step, completed_steps, retries, last_error, cancel_reason,
		   failed_step, receipt_id, last_sequence, pending_events, pending_count,
		   archived_at, created_at, updated_at, version
	FROM sagas`

// Create inserts a new saga
func (r *PostgresSagaRepository) Create(ctx context.Context, saga *domain.Saga) error {
	query := `
		INSERT INTO sagas (
			order_id, customer_id, items, total_amount, currency, status,
			current_step, completed_steps, retries, last_error, cancel_reason,
			failed_step, receipt_id, last_sequence, pending_events, pending_count,
			archived_at, created_at, updated_at, version
		) VALUES (
			:order_id, :customer_id, :items, :total_amount, :currency, :status,
			:current_step, :completed_steps, :retries, :last_error, :cancel_reason,
			:failed_step, :receipt_id, :last_sequence, :pending_events, :pending_count,
			:archived_at, :created_at, :updated_at, :version
		)
		ON CONFLICT (order_id) DO NOTHING`

	pgSaga, err := r.toPostgres(saga)
	if err != nil {
		return err
	}

	res, err := r.db.NamedExecContext(ctx, query, pgSaga)
	if err != nil {
		return errors.Wrap(err, "failed to insert saga")
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read insert result")
	}
	if rows == 0 {
		return errors.Wrapf(domain.ErrSagaAlreadyExists, "order %s", saga.OrderID)
	}

	return nil
}

// Save updates a saga guarded by its version
func (r *PostgresSagaRepository) Save(ctx context.Context, saga *domain.Saga) error {
	query := `
		UPDATE sagas
		SET status = :status, current_step = :current_step,
			completed_steps = :completed_steps, retries = :retries,
			last_error = :last_error, cancel_reason = :cancel_reason,
			failed_step = :failed_step, receipt_id = :receipt_id,
			last_sequence = :last_sequence, pending_events = :pending_events,
			pending_count = :pending_count, archived_at = :archived_at,
			updated_at = :updated_at, version = :version + 1
		WHERE order_id = :order_id AND version = :version`

	pgSaga, err := r.toPostgres(saga)
	if err != nil {
		return err
	}

	res, err := r.db.NamedExecContext(ctx, query, pgSaga)
	if err != nil {
		return errors.Wrap(err, "failed to update saga")
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read update result")
	}
	if rows == 0 {
		return errors.Wrapf(domain.ErrConcurrentUpdate, "order %s at version %d", saga.OrderID, saga.Version.Value)
	}

	saga.Version = saga.Version.Update()
	return nil
}

// FindByID finds the saga of an order
func (r *PostgresSagaRepository) FindByID(ctx context.Context, orderID models.ID) (*domain.Saga, error) {
	var pgSaga postgresSaga
	err := r.db.GetContext(ctx, &pgSaga, selectSagas+" WHERE order_id = $1", orderID.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(domain.ErrSagaNotFound, "order %s", orderID)
		}
		return nil, errors.Wrap(err, "failed to find saga")
	}

	return r.toDomain(&pgSaga)
}

// FindByStatus lists sagas in one status, most recently updated first
func (r *PostgresSagaRepository) FindByStatus(ctx context.Context, status models.OrderStatus, limit int) ([]*domain.Saga, error) {
	var pgSagas []postgresSaga
	err := r.db.SelectContext(ctx, &pgSagas,
		selectSagas+" WHERE status = $1 ORDER BY updated_at DESC LIMIT $2",
		status.String(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find sagas by status")
	}

	return r.toDomainList(pgSagas)
}

// FindWithPendingEvents lists sagas whose outbox is not empty, oldest first
func (r *PostgresSagaRepository) FindWithPendingEvents(ctx context.Context, limit int) ([]*domain.Saga, error) {
	var pgSagas []postgresSaga
	err := r.db.SelectContext(ctx, &pgSagas,
		selectSagas+" WHERE pending_count > 0 ORDER BY updated_at ASC LIMIT $1",
		limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find sagas with pending events")
	}

	return r.toDomainList(pgSagas)
}

func (r *PostgresSagaRepository) toDomainList(pgSagas []postgresSaga) ([]*domain.Saga, error) {
	sagas := make([]*domain.Saga, len(pgSagas))
	for i := range pgSagas {
		saga, err := r.toDomain(&pgSagas[i])
		if err != nil {
			return nil, err
		}
		sagas[i] = saga
	}
	return sagas, nil
}

// toPostgres converts domain saga to postgres model
func (r *PostgresSagaRepository) toPostgres(saga *domain.Saga) (*postgresSaga, error) {
	items, err := json.Marshal(saga.Items)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal items")
	}

	completed, err := json.Marshal(saga.CompletedSteps)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal completed steps")
	}

	retries, err := json.Marshal(saga.Retries)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal retries")
	}

	pending := make([]pendingEvent, len(saga.Events()))
	for i, event := range saga.Events() {
		data, err := event.MarshalPayload()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to marshal %s payload", event.EventType)
		}
		pending[i] = pendingEvent{
			ID:            event.ID,
			AggregateID:   event.AggregateID,
			Sequence:      event.Sequence,
			EventType:     event.EventType,
			Version:       event.Version,
			Data:          data,
			Metadata:      event.Metadata,
			Timestamp:     event.Timestamp,
			CorrelationID: event.CorrelationID,
		}
	}

	pendingJSON, err := json.Marshal(pending)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal pending events")
	}

	return &postgresSaga{
		OrderID:        saga.OrderID.String(),
		CustomerID:     saga.CustomerID,
		Items:          items,
		TotalAmount:    saga.Total.Amount,
		Currency:       saga.Total.Currency,
		Status:         saga.Status.String(),
		CurrentStep:    string(saga.CurrentStep),
		CompletedSteps: completed,
		Retries:        retries,
		LastError:      saga.LastError,
		CancelReason:   saga.CancelReason,
		FailedStep:     string(saga.FailedStep),
		ReceiptID:      saga.ReceiptID,
		LastSequence:   saga.LastSequence,
		PendingEvents:  pendingJSON,
		PendingCount:   len(pending),
		ArchivedAt:     saga.ArchivedAt,
		CreatedAt:      saga.Timestamps.CreatedAt,
		UpdatedAt:      saga.Timestamps.UpdatedAt,
		Version:        saga.Version.Value,
	}, nil
}

// toDomain converts postgres model to domain saga
func (r *PostgresSagaRepository) toDomain(pgSaga *postgresSaga) (*domain.Saga, error) {
	orderID, err := models.NewID(pgSaga.OrderID)
	if err != nil {
		return nil, errors.Wrap(err, "invalid order ID")
	}

	status, err := models.NewOrderStatus(pgSaga.Status)
	if err != nil {
		return nil, errors.Wrapf(err, "saga %s", pgSaga.OrderID)
	}

	saga := &domain.Saga{
		OrderID:      orderID,
		CustomerID:   pgSaga.CustomerID,
		Total:        models.NewMoney(pgSaga.TotalAmount, pgSaga.Currency),
		Status:       status,
		CurrentStep:  domain.Step(pgSaga.CurrentStep),
		LastError:    pgSaga.LastError,
		CancelReason: pgSaga.CancelReason,
		FailedStep:   domain.Step(pgSaga.FailedStep),
		ReceiptID:    pgSaga.ReceiptID,
		LastSequence: pgSaga.LastSequence,
		ArchivedAt:   pgSaga.ArchivedAt,
		Timestamps: models.Timestamps{
			CreatedAt: pgSaga.CreatedAt,
			UpdatedAt: pgSaga.UpdatedAt,
		},
		Version: models.Version{Value: pgSaga.Version},
	}

	if err := unmarshalColumn(pgSaga.Items, &saga.Items); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal items")
	}
	if err := unmarshalColumn(pgSaga.CompletedSteps, &saga.CompletedSteps); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal completed steps")
	}
	saga.Retries = make(map[domain.Step]int)
	if err := unmarshalColumn(pgSaga.Retries, &saga.Retries); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal retries")
	}

	var pending []pendingEvent
	if err := unmarshalColumn(pgSaga.PendingEvents, &pending); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal pending events")
	}

	restored := make([]*events.Event, len(pending))
	for i, p := range pending {
		metadata := p.Metadata
		if metadata == nil {
			metadata = make(events.Metadata)
		}
		restored[i] = &events.Event{
			ID:            p.ID,
			AggregateID:   p.AggregateID,
			Sequence:      p.Sequence,
			Topic:         events.Topic(p.EventType),
			EventType:     p.EventType,
			Version:       p.Version,
			Data:          p.Data,
			Metadata:      metadata,
			Timestamp:     p.Timestamp,
			CorrelationID: p.CorrelationID,
		}
	}
	saga.RestoreEvents(restored)

	return saga, nil
}

func unmarshalColumn(data []byte, v interface{}) error {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
