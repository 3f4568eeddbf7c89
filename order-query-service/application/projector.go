package application

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/draftea/order-fulfillment/order-query-service/domain"
	"github.com/draftea/order-fulfillment/shared/events"
	"github.com/draftea/order-fulfillment/shared/idempotency"
	"github.com/draftea/order-fulfillment/shared/models"
	"github.com/draftea/order-fulfillment/shared/telemetry"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// ProjectorConsumer is the idempotency namespace of the projector
const ProjectorConsumer = "projector"

// GapPolicy decides what happens to an event that arrives ahead of its predecessor
type GapPolicy string

const (
	// GapPolicyBuffer holds early events until the missing ones arrive
	GapPolicyBuffer GapPolicy = "buffer"
	// GapPolicyDrop discards early events and relies on per-order channel ordering
	GapPolicyDrop GapPolicy = "drop"
)

// NewGapPolicy parses a gap policy name. Empty means buffer.
func NewGapPolicy(s string) (GapPolicy, error) {
	switch policy := GapPolicy(s); policy {
	case "":
		return GapPolicyBuffer, nil
	case GapPolicyBuffer, GapPolicyDrop:
		return policy, nil
	}
	return "", errors.Wrapf(domain.ErrUnknownGapPolicy, "%q", s)
}

const (
	resultApplied   = "applied"
	resultIgnored   = "ignored"
	resultDuplicate = "duplicate"
	resultBuffered  = "buffered"
	resultDropped   = "dropped"
	resultError     = "error"
)

const defaultMaxBufferAge = 10 * time.Minute

// Projector folds the order event stream into OrderSummary views
type Projector struct {
	store        domain.SummaryStore
	idempotency  idempotency.Store
	logger       zerolog.Logger
	gapPolicy    GapPolicy
	maxBuffered  int
	maxBufferAge time.Duration
	now          func() time.Time

	mu      sync.Mutex
	pending map[models.ID]*heldEvents
}

// heldEvents are the early events of one order
type heldEvents struct {
	events     map[int64]*events.Event
	bufferedAt time.Time
}

// ProjectorOption configures a Projector
type ProjectorOption func(*Projector)

// WithMaxBufferAge evicts the early events of an order whose gap has not
// filled within d
func WithMaxBufferAge(d time.Duration) ProjectorOption {
	return func(p *Projector) {
		if d > 0 {
			p.maxBufferAge = d
		}
	}
}

// NewProjector creates a new Projector. maxBuffered bounds the early events
// held per order under GapPolicyBuffer.
func NewProjector(
	store domain.SummaryStore,
	idempotencyStore idempotency.Store,
	gapPolicy GapPolicy,
	maxBuffered int,
	logger zerolog.Logger,
	opts ...ProjectorOption,
) *Projector {
	if maxBuffered <= 0 {
		maxBuffered = 100
	}
	p := &Projector{
		store:        store,
		idempotency:  idempotencyStore,
		logger:       logger.With().Str("component", "projector").Logger(),
		gapPolicy:    gapPolicy,
		maxBuffered:  maxBuffered,
		maxBufferAge: defaultMaxBufferAge,
		now:          time.Now,
		pending:      make(map[models.ID]*heldEvents),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle implements events.EventHandler. Only storage failures are returned,
// so the channel redelivers; anything wrong with the event itself is logged
// and acknowledged.
func (p *Projector) Handle(ctx context.Context, event *events.Event) error {
	logger := p.logger.With().
		Str("order_id", event.AggregateID.String()).
		Str("event_id", event.ID.String()).
		Str("event_type", event.EventType).
		Int64("sequence", event.Sequence).
		Logger()

	if event.AggregateID == "" || event.Sequence <= 0 {
		logger.Warn().Msg("dropping event without order id or sequence")
		p.record(ctx, resultDropped)
		return nil
	}

	current, err := p.load(ctx, event.AggregateID)
	if err != nil {
		p.record(ctx, resultError)
		return err
	}

	last := lastSequence(current)
	switch {
	case event.Sequence <= last:
		logger.Debug().Int64("last_sequence", last).Msg("duplicate event dropped")
		p.record(ctx, resultDuplicate)
		// a redelivery may follow a failed drain
		return p.drain(ctx, current, logger)

	case event.Sequence > last+1:
		if current != nil && current.Status.IsTerminal() {
			logger.Warn().Int64("last_sequence", last).Msg("event after terminal status dropped")
			p.record(ctx, resultDropped)
			return nil
		}
		p.onGap(ctx, event, last, logger)
		return nil
	}

	current, err = p.apply(ctx, current, event, logger)
	if err != nil {
		p.record(ctx, resultError)
		return err
	}

	return p.drain(ctx, current, logger)
}

// apply folds the next-in-sequence event and upserts the result. The
// sequence check in Handle is the authority: a claim left behind by a crash
// between Claim and Upsert does not stop an event that is exactly next.
func (p *Projector) apply(ctx context.Context, current *domain.OrderSummary, event *events.Event, logger zerolog.Logger) (*domain.OrderSummary, error) {
	next := current
	project := func(ctx context.Context) error {
		summary, foldErr := domain.Apply(current, event)
		result := resultApplied
		if foldErr != nil {
			logger.Warn().Err(foldErr).Msg("event content ignored")
			result = resultIgnored
		}

		written, err := p.store.Upsert(ctx, summary)
		if err != nil {
			return errors.Wrap(err, "failed to upsert order summary")
		}
		if !written {
			result = resultDuplicate
			logger.Debug().Msg("summary already past this event")
		}

		next = summary
		p.record(ctx, result)
		return nil
	}

	processed, err := idempotency.Once(ctx, p.idempotency, ProjectorConsumer, event.ID, project)
	if err != nil {
		return current, err
	}
	if !processed {
		logger.Warn().Int64("last_sequence", lastSequence(current)).Msg("event claimed but not projected, applying")
		if err := project(ctx); err != nil {
			return current, err
		}
	}

	p.evictIfTerminal(next)
	return next, nil
}

func (p *Projector) onGap(ctx context.Context, event *events.Event, last int64, logger zerolog.Logger) {
	logger = logger.With().Int64("last_sequence", last).Logger()

	if p.gapPolicy == GapPolicyDrop {
		logger.Warn().Msg("sequence gap, event dropped")
		p.record(ctx, resultDropped)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	p.evictExpired(ctx, now)

	held := p.pending[event.AggregateID]
	if held == nil {
		held = &heldEvents{events: make(map[int64]*events.Event)}
		p.pending[event.AggregateID] = held
	}
	if _, ok := held.events[event.Sequence]; !ok && len(held.events) >= p.maxBuffered {
		logger.Warn().Int("buffered", len(held.events)).Msg("sequence gap buffer full, event dropped")
		p.record(ctx, resultDropped)
		return
	}

	if len(held.events) == 0 {
		held.bufferedAt = now
	}
	held.events[event.Sequence] = event
	logger.Warn().Int("buffered", len(held.events)).Msg("sequence gap, event buffered")
	p.record(ctx, resultBuffered)
}

// evictExpired drops orders whose gap stayed open longer than maxBufferAge.
// Callers hold p.mu.
func (p *Projector) evictExpired(ctx context.Context, now time.Time) {
	for orderID, held := range p.pending {
		if now.Sub(held.bufferedAt) <= p.maxBufferAge {
			continue
		}
		p.logger.Warn().
			Str("order_id", orderID.String()).
			Int("buffered", len(held.events)).
			Time("buffered_at", held.bufferedAt).
			Msg("sequence gap never filled, buffered events evicted")
		for range held.events {
			p.record(ctx, resultDropped)
		}
		delete(p.pending, orderID)
	}
}

// evictIfTerminal drops whatever is still held for an order that has ended
func (p *Projector) evictIfTerminal(summary *domain.OrderSummary) {
	if summary == nil || !summary.Status.IsTerminal() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if held := p.pending[summary.OrderID]; held != nil && len(held.events) > 0 {
		p.logger.Warn().
			Str("order_id", summary.OrderID.String()).
			Int("buffered", len(held.events)).
			Msg("order ended, buffered events evicted")
	}
	delete(p.pending, summary.OrderID)
}

// drain applies buffered events that directly follow current
func (p *Projector) drain(ctx context.Context, current *domain.OrderSummary, logger zerolog.Logger) error {
	if current == nil {
		return nil
	}

	for {
		event, ok := p.takeNext(current)
		if !ok {
			return nil
		}

		eventLogger := logger.With().
			Str("event_id", event.ID.String()).
			Str("event_type", event.EventType).
			Int64("sequence", event.Sequence).
			Logger()

		next, err := p.apply(ctx, current, event, eventLogger)
		if err != nil {
			// keep it for the next delivery of this order
			p.mu.Lock()
			held := p.pending[event.AggregateID]
			if held == nil {
				held = &heldEvents{events: make(map[int64]*events.Event), bufferedAt: p.now()}
				p.pending[event.AggregateID] = held
			}
			held.events[event.Sequence] = event
			p.mu.Unlock()
			p.record(ctx, resultError)
			return err
		}
		current = next
	}
}

func (p *Projector) takeNext(current *domain.OrderSummary) (*events.Event, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	held := p.pending[current.OrderID]
	if held == nil {
		return nil, false
	}

	for seq := range held.events {
		if seq <= current.LastSequence {
			delete(held.events, seq)
		}
	}

	event, ok := held.events[current.LastSequence+1]
	if ok {
		delete(held.events, event.Sequence)
	}
	if len(held.events) == 0 {
		delete(p.pending, current.OrderID)
	}
	return event, ok
}

// Buffered returns the sequences held back for an order, ascending
func (p *Projector) Buffered(orderID models.ID) []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	held := p.pending[orderID]
	if held == nil {
		return []int64{}
	}

	seqs := make([]int64, 0, len(held.events))
	for seq := range held.events {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs
}

func (p *Projector) load(ctx context.Context, orderID models.ID) (*domain.OrderSummary, error) {
	summary, err := p.store.Get(ctx, orderID)
	if errors.Is(err, domain.ErrSummaryNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load order summary")
	}
	return summary, nil
}

func (p *Projector) record(ctx context.Context, result string) {
	telemetry.RecordCounter(ctx, "projector_events_total", "Events seen by the read-model projector", 1,
		attribute.String("result", result),
	)
}

func lastSequence(summary *domain.OrderSummary) int64 {
	if summary == nil {
		return 0
	}
	return summary.LastSequence
}
