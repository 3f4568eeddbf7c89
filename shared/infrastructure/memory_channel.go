package infrastructure

import (
	"context"
	"sync"
	"time"

	"github.com/draftea/order-fulfillment/shared/events"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var (
	_ events.Publisher  = (*MemoryChannel)(nil)
	_ events.Subscriber = (*MemoryChannel)(nil)
)

var ErrChannelClosed = errors.New("channel closed")

// MemoryChannel is an in-process event channel. Every subscription gets its own
// set of partitions; events with the same partition key land on the same
// partition and are delivered one at a time in publish order. Events published
// before a subscription exists are not delivered to it.
type MemoryChannel struct {
	mu      sync.RWMutex
	subs    []*memorySubscription
	closed  bool
	pending sync.WaitGroup
	logger  zerolog.Logger
	options *memoryChannelOptions
}

type memoryChannelOptions struct {
	partitions      int
	maxRedeliveries int
	redeliveryDelay time.Duration
}

type MemoryChannelOption func(*memoryChannelOptions)

func WithPartitions(partitions int) MemoryChannelOption {
	return func(o *memoryChannelOptions) {
		o.partitions = partitions
	}
}

func WithRedelivery(maxRedeliveries int, delay time.Duration) MemoryChannelOption {
	return func(o *memoryChannelOptions) {
		o.maxRedeliveries = maxRedeliveries
		o.redeliveryDelay = delay
	}
}

// NewMemoryChannel creates an in-process channel
func NewMemoryChannel(logger zerolog.Logger, opts ...MemoryChannelOption) *MemoryChannel {
	options := &memoryChannelOptions{
		partitions:      16,
		maxRedeliveries: 5,
		redeliveryDelay: 50 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(options)
	}

	if options.partitions < 1 {
		options.partitions = 1
	}

	return &MemoryChannel{
		logger:  logger.With().Str("component", "memory_channel").Logger(),
		options: options,
	}
}

type memorySubscription struct {
	pattern events.Topic
	handler events.EventHandler
	queues  []*partitionQueue
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type partitionQueue struct {
	mu     sync.Mutex
	items  []*events.Event
	signal chan struct{}
}

func newPartitionQueue() *partitionQueue {
	return &partitionQueue{signal: make(chan struct{}, 1)}
}

func (q *partitionQueue) push(event *events.Event) {
	q.mu.Lock()
	q.items = append(q.items, event)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *partitionQueue) pop() (*events.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	event := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return event, true
}

func (q *partitionQueue) drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items)
	q.items = nil
	return n
}

// Publish enqueues events for every matching subscription. It never blocks on consumers.
func (c *MemoryChannel) Publish(ctx context.Context, evts ...*events.Event) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrChannelClosed
	}

	for _, event := range evts {
		if err := ctx.Err(); err != nil {
			return err
		}

		partition := events.Partition(event.PartitionKey(), c.options.partitions)
		for _, sub := range c.subs {
			if !event.Topic.Matches(sub.pattern) {
				continue
			}
			c.pending.Add(1)
			sub.queues[partition].push(event.Clone())
		}
	}

	return nil
}

// Subscribe starts one delivery goroutine per partition for handler
func (c *MemoryChannel) Subscribe(ctx context.Context, pattern events.Topic, handler events.EventHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrChannelClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &memorySubscription{
		pattern: pattern,
		handler: handler,
		queues:  make([]*partitionQueue, c.options.partitions),
		cancel:  cancel,
	}

	for i := range sub.queues {
		sub.queues[i] = newPartitionQueue()
		sub.wg.Add(1)
		go c.deliver(ctx, sub, sub.queues[i])
	}

	c.subs = append(c.subs, sub)
	return nil
}

func (c *MemoryChannel) deliver(ctx context.Context, sub *memorySubscription, queue *partitionQueue) {
	defer sub.wg.Done()

	for {
		event, ok := queue.pop()
		if !ok {
			select {
			case <-ctx.Done():
				for n := queue.drain(); n > 0; n-- {
					c.pending.Done()
				}
				return
			case <-queue.signal:
				continue
			}
		}

		c.handle(ctx, sub.handler, event)
		c.pending.Done()
	}
}

func (c *MemoryChannel) handle(ctx context.Context, handler events.EventHandler, event *events.Event) {
	for attempt := 0; ; attempt++ {
		err := handler.Handle(ctx, event)
		if err == nil {
			return
		}

		if attempt >= c.options.maxRedeliveries || ctx.Err() != nil {
			c.logger.Error().
				Err(err).
				Str("event_id", event.ID.String()).
				Str("event_type", event.EventType).
				Str("order_id", event.AggregateID.String()).
				Int64("sequence", event.Sequence).
				Int("attempts", attempt+1).
				Msg("event dead-lettered after redeliveries")
			return
		}

		c.logger.Warn().
			Err(err).
			Str("event_id", event.ID.String()).
			Str("event_type", event.EventType).
			Msg("redelivering event")

		select {
		case <-time.After(c.options.redeliveryDelay):
		case <-ctx.Done():
		}
	}
}

// WaitIdle blocks until every published event has been handled or ctx is done
func (c *MemoryChannel) WaitIdle(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops all subscriptions and drops undelivered events
func (c *MemoryChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subs := c.subs
	c.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
		sub.wg.Wait()
	}
	return nil
}
