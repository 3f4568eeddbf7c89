package infrastructure

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/draftea/order-fulfillment/order-query-service/domain"
	"github.com/draftea/order-fulfillment/shared/models"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

var _ domain.SummaryStore = (*PostgresSummaryStore)(nil)

// PostgresSummaryStore implements SummaryStore using PostgreSQL. Writes are
// conditional on last_sequence, so a stale projection never overwrites a
// newer one.
type PostgresSummaryStore struct {
	db *sqlx.DB
}

// NewPostgresSummaryStore creates a new PostgresSummaryStore
func NewPostgresSummaryStore(db *sqlx.DB) *PostgresSummaryStore {
	return &PostgresSummaryStore{db: db}
}

// postgresSummary represents an order summary in database
type postgresSummary struct {
	OrderID        string    `db:"order_id"`
	CustomerID     string    `db:"customer_id"`
	Status         string    `db:"status"`
	Items          []byte    `db:"items"`
	TotalAmount    int64     `db:"total_amount"`
	Currency       string    `db:"currency"`
	PaymentStatus  string    `db:"payment_status"`
	ReceiptID      string    `db:"receipt_id"`
	ShippingStatus string    `db:"shipping_status"`
	Reason         string    `db:"reason"`
	LastSequence   int64     `db:"last_sequence"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

const upsertSummary = `
	INSERT INTO order_summaries (
		order_id, customer_id, status, items, total_amount, currency,
		payment_status, receipt_id, shipping_status, reason,
		last_sequence, created_at, updated_at
	) VALUES (
		:order_id, :customer_id, :status, :items, :total_amount, :currency,
		:payment_status, :receipt_id, :shipping_status, :reason,
		:last_sequence, :created_at, :updated_at
	)
	ON CONFLICT (order_id) DO UPDATE SET
		customer_id = EXCLUDED.customer_id,
		status = EXCLUDED.status,
		items = EXCLUDED.items,
		total_amount = EXCLUDED.total_amount,
		currency = EXCLUDED.currency,
		payment_status = EXCLUDED.payment_status,
		receipt_id = EXCLUDED.receipt_id,
		shipping_status = EXCLUDED.shipping_status,
		reason = EXCLUDED.reason,
		last_sequence = EXCLUDED.last_sequence,
		created_at = EXCLUDED.created_at,
		updated_at = EXCLUDED.updated_at`

// Get finds the summary of an order
func (s *PostgresSummaryStore) Get(ctx context.Context, orderID models.ID) (*domain.OrderSummary, error) {
	query := `
		SELECT order_id, customer_id, status, items, total_amount, currency,
			   payment_status, receipt_id, shipping_status, reason,
			   last_sequence, created_at, updated_at
		FROM order_summaries
		WHERE order_id = $1`

	var pgSummary postgresSummary
	err := s.db.GetContext(ctx, &pgSummary, query, orderID.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(domain.ErrSummaryNotFound, "order %s", orderID)
		}
		return nil, errors.Wrap(err, "failed to get order summary")
	}

	return s.toDomain(&pgSummary)
}

// Upsert writes the summary when the stored one is older
func (s *PostgresSummaryStore) Upsert(ctx context.Context, summary *domain.OrderSummary) (bool, error) {
	rows, err := s.write(ctx, upsertSummary+`
	WHERE order_summaries.last_sequence < EXCLUDED.last_sequence`, summary)
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// Restore writes the summary unless the stored one is newer
func (s *PostgresSummaryStore) Restore(ctx context.Context, summary *domain.OrderSummary) error {
	_, err := s.write(ctx, upsertSummary+`
	WHERE order_summaries.last_sequence <= EXCLUDED.last_sequence`, summary)
	return err
}

func (s *PostgresSummaryStore) write(ctx context.Context, query string, summary *domain.OrderSummary) (int64, error) {
	pgSummary, err := s.toPostgres(summary)
	if err != nil {
		return 0, err
	}

	res, err := s.db.NamedExecContext(ctx, query, pgSummary)
	if err != nil {
		return 0, errors.Wrap(err, "failed to upsert order summary")
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to read upsert result")
	}
	return rows, nil
}

func (s *PostgresSummaryStore) toPostgres(summary *domain.OrderSummary) (*postgresSummary, error) {
	items, err := json.Marshal(summary.Items)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal summary items")
	}

	return &postgresSummary{
		OrderID:        summary.OrderID.String(),
		CustomerID:     summary.CustomerID,
		Status:         summary.Status.String(),
		Items:          items,
		TotalAmount:    summary.Total.Amount,
		Currency:       summary.Total.Currency,
		PaymentStatus:  summary.PaymentStatus,
		ReceiptID:      summary.ReceiptID,
		ShippingStatus: summary.ShippingStatus,
		Reason:         summary.Reason,
		LastSequence:   summary.LastSequence,
		CreatedAt:      summary.CreatedAt,
		UpdatedAt:      summary.UpdatedAt,
	}, nil
}

func (s *PostgresSummaryStore) toDomain(pgSummary *postgresSummary) (*domain.OrderSummary, error) {
	var items []domain.ItemView
	if len(pgSummary.Items) > 0 {
		if err := json.Unmarshal(pgSummary.Items, &items); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal summary items")
		}
	}

	return &domain.OrderSummary{
		OrderID:        models.ID(pgSummary.OrderID),
		CustomerID:     pgSummary.CustomerID,
		Status:         models.OrderStatus(pgSummary.Status),
		Items:          items,
		Total:          models.NewMoney(pgSummary.TotalAmount, pgSummary.Currency),
		PaymentStatus:  pgSummary.PaymentStatus,
		ReceiptID:      pgSummary.ReceiptID,
		ShippingStatus: pgSummary.ShippingStatus,
		Reason:         pgSummary.Reason,
		LastSequence:   pgSummary.LastSequence,
		CreatedAt:      pgSummary.CreatedAt,
		UpdatedAt:      pgSummary.UpdatedAt,
	}, nil
}
