package infrastructure

import (
	"context"

	"github.com/draftea/order-fulfillment/shared/events"
	"github.com/pkg/errors"
)

var _ events.Publisher = (*JournalingPublisher)(nil)

// JournalingPublisher appends events to the event store before handing them to
// the channel. Append is idempotent on event id, so retried publishes are safe.
type JournalingPublisher struct {
	store events.EventStore
	next  events.Publisher
}

func NewJournalingPublisher(store events.EventStore, next events.Publisher) *JournalingPublisher {
	return &JournalingPublisher{store: store, next: next}
}

func (p *JournalingPublisher) Publish(ctx context.Context, evts ...*events.Event) error {
	if len(evts) == 0 {
		return nil
	}

	if err := p.store.Append(ctx, evts...); err != nil {
		return errors.Wrap(err, "failed to journal events")
	}

	return p.next.Publish(ctx, evts...)
}
