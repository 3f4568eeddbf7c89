package infrastructure

import (
	"context"
	"time"

	"github.com/draftea/order-fulfillment/shared/idempotency"
	"github.com/draftea/order-fulfillment/shared/models"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

var (
	_ idempotency.Store  = (*PostgresIdempotencyStore)(nil)
	_ idempotency.Purger = (*PostgresIdempotencyStore)(nil)
)

// PostgresIdempotencyStore keeps claims in the processed_events table
type PostgresIdempotencyStore struct {
	db *sqlx.DB
}

func NewPostgresIdempotencyStore(db *sqlx.DB) *PostgresIdempotencyStore {
	return &PostgresIdempotencyStore{db: db}
}

func (s *PostgresIdempotencyStore) Claim(ctx context.Context, consumer string, eventID models.ID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO processed_events (consumer, event_id, processed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (consumer, event_id) DO NOTHING`,
		consumer, eventID.String(), time.Now().UTC())
	if err != nil {
		return false, errors.Wrapf(idempotency.ErrStoreUnavailable, "postgres claim: %v", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read claim result")
	}
	return rows == 1, nil
}

func (s *PostgresIdempotencyStore) Release(ctx context.Context, consumer string, eventID models.ID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM processed_events WHERE consumer = $1 AND event_id = $2`,
		consumer, eventID.String())
	if err != nil {
		return errors.Wrapf(idempotency.ErrStoreUnavailable, "postgres release: %v", err)
	}
	return nil
}

func (s *PostgresIdempotencyStore) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM processed_events WHERE processed_at < $1`, olderThan.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "failed to purge processed events")
	}
	return res.RowsAffected()
}
