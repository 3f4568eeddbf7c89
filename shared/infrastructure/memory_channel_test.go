package infrastructure

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/draftea/order-fulfillment/shared/events"
	"github.com/draftea/order-fulfillment/shared/models"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []*events.Event
}

func (h *recordingHandler) Handle(_ context.Context, event *events.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return nil
}

func (h *recordingHandler) sequencesFor(orderID models.ID) []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	var seqs []int64
	for _, e := range h.events {
		if e.AggregateID == orderID {
			seqs = append(seqs, e.Sequence)
		}
	}
	return seqs
}

func waitIdle(t *testing.T, channel *MemoryChannel) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, channel.WaitIdle(ctx))
}

func TestMemoryChannel_PerKeyOrdering(t *testing.T) {
	ctx := context.Background()
	channel := NewMemoryChannel(zerolog.Nop(), WithPartitions(4))
	defer channel.Close()

	handler := &recordingHandler{}
	require.NoError(t, channel.Subscribe(ctx, "#", handler))

	orders := []models.ID{models.GenerateUUID(), models.GenerateUUID(), models.GenerateUUID()}
	for seq := int64(1); seq <= 20; seq++ {
		for _, orderID := range orders {
			require.NoError(t, channel.Publish(ctx, events.NewEvent(orderID, seq, events.OrderCreatedEvent, nil)))
		}
	}
	waitIdle(t, channel)

	for _, orderID := range orders {
		seqs := handler.sequencesFor(orderID)
		require.Len(t, seqs, 20)
		for i, seq := range seqs {
			assert.Equal(t, int64(i+1), seq)
		}
	}
}

func TestMemoryChannel_FanOutAndPatterns(t *testing.T) {
	ctx := context.Background()
	channel := NewMemoryChannel(zerolog.Nop())
	defer channel.Close()

	all := &recordingHandler{}
	payments := &recordingHandler{}
	require.NoError(t, channel.Subscribe(ctx, events.AllOrderEvents, all))
	require.NoError(t, channel.Subscribe(ctx, "order.payment.*", payments))

	orderID := models.GenerateUUID()
	require.NoError(t, channel.Publish(ctx,
		events.NewEvent(orderID, 1, events.OrderCreatedEvent, nil),
		events.NewEvent(orderID, 2, events.PaymentCompletedEvent, nil),
	))
	waitIdle(t, channel)

	assert.Len(t, all.events, 2)
	require.Len(t, payments.events, 1)
	assert.Equal(t, events.PaymentCompletedEvent, payments.events[0].EventType)
}

func TestMemoryChannel_RedeliversOnError(t *testing.T) {
	ctx := context.Background()
	channel := NewMemoryChannel(zerolog.Nop(), WithRedelivery(3, time.Millisecond))
	defer channel.Close()

	var mu sync.Mutex
	attempts := 0
	require.NoError(t, channel.Subscribe(ctx, "#", events.HandlerFunc(func(ctx context.Context, event *events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return errors.New("temporary")
		}
		return nil
	})))

	require.NoError(t, channel.Publish(ctx, events.NewEvent(models.GenerateUUID(), 1, events.OrderCreatedEvent, nil)))
	waitIdle(t, channel)

	assert.Equal(t, 3, attempts)
}

func TestMemoryChannel_PublishFromHandler(t *testing.T) {
	ctx := context.Background()
	channel := NewMemoryChannel(zerolog.Nop(), WithPartitions(1))
	defer channel.Close()

	handler := &recordingHandler{}
	require.NoError(t, channel.Subscribe(ctx, "#", events.HandlerFunc(func(ctx context.Context, event *events.Event) error {
		_ = handler.Handle(ctx, event)
		if event.Sequence < 100 {
			return channel.Publish(ctx, events.NewEvent(event.AggregateID, event.Sequence+1, events.OrderCreatedEvent, nil))
		}
		return nil
	})))

	require.NoError(t, channel.Publish(ctx, events.NewEvent(models.GenerateUUID(), 1, events.OrderCreatedEvent, nil)))
	waitIdle(t, channel)

	assert.Len(t, handler.events, 100)
}

func TestMemoryChannel_Closed(t *testing.T) {
	channel := NewMemoryChannel(zerolog.Nop())
	require.NoError(t, channel.Close())

	err := channel.Publish(context.Background(), events.NewEvent(models.GenerateUUID(), 1, events.OrderCreatedEvent, nil))
	assert.ErrorIs(t, err, ErrChannelClosed)
	assert.ErrorIs(t, channel.Subscribe(context.Background(), "#", &recordingHandler{}), ErrChannelClosed)
}
