// Package idempotency records which events a consumer has already applied so that
// at-least-once delivery yields at-most-once effects.
package idempotency

import (
	"context"
	"time"

	"github.com/draftea/order-fulfillment/shared/models"
	"github.com/pkg/errors"
)

var ErrStoreUnavailable = errors.New("idempotency store unavailable")

// Store is a check-and-set map of (consumer, event id) to a processed marker
type Store interface {
	// Claim marks the event as processed for consumer. It returns false when the
	// event was already claimed.
	Claim(ctx context.Context, consumer string, eventID models.ID) (bool, error)
	// Release removes a claim so a redelivery is processed again.
	Release(ctx context.Context, consumer string, eventID models.ID) error
}

// Purger drops claims older than the retention window
type Purger interface {
	Purge(ctx context.Context, olderThan time.Time) (int64, error)
}

// Key builds the storage key of a claim
func Key(consumer string, eventID models.ID) string {
	return consumer + ":" + eventID.String()
}

// Once runs fn at most once per (consumer, eventID). It returns false without
// calling fn for duplicates. When fn fails the claim is released, even if ctx
// was cancelled, so the redelivery is processed.
func Once(ctx context.Context, store Store, consumer string, eventID models.ID, fn func(ctx context.Context) error) (bool, error) {
	claimed, err := store.Claim(ctx, consumer, eventID)
	if err != nil {
		return false, errors.Wrap(err, "failed to claim event")
	}
	if !claimed {
		return false, nil
	}

	if err := fn(ctx); err != nil {
		if releaseErr := store.Release(context.WithoutCancel(ctx), consumer, eventID); releaseErr != nil {
			return true, errors.Wrapf(err, "release failed: %v", releaseErr)
		}
		return true, err
	}

	return true, nil
}

// RunPurger purges claims older than retention every interval until ctx is done
func RunPurger(ctx context.Context, purger Purger, retention, interval time.Duration, onPurge func(int64, error)) {
	if retention <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := purger.Purge(ctx, time.Now().Add(-retention))
			if onPurge != nil {
				onPurge(n, err)
			}
		}
	}
}
