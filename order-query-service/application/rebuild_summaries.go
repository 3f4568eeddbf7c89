package application

import (
	"context"
	"sort"

	"github.com/draftea/order-fulfillment/order-query-service/domain"
	"github.com/draftea/order-fulfillment/shared/events"
	"github.com/draftea/order-fulfillment/shared/models"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const rebuildBatchSize = 500

// RebuildResponse reports how many summaries a rebuild rewrote
type RebuildResponse struct {
	Summaries int `json:"summaries"`
	Events    int `json:"events"`
}

// RebuildSummaries replays the event journal through the fold and restores
// every summary it produces
type RebuildSummaries struct {
	journal events.EventStore
	store   domain.SummaryStore
	logger  zerolog.Logger
}

// NewRebuildSummaries creates a new RebuildSummaries use case
func NewRebuildSummaries(journal events.EventStore, store domain.SummaryStore, logger zerolog.Logger) *RebuildSummaries {
	return &RebuildSummaries{
		journal: journal,
		store:   store,
		logger:  logger,
	}
}

// Execute rebuilds all summaries. The journal may hold an order's events in
// arrival order, so each order is folded in (sequence, id) order and stops at
// the first gap, as the live projector would.
func (uc *RebuildSummaries) Execute(ctx context.Context) (*RebuildResponse, error) {
	histories := make(map[models.ID][]*events.Event)
	var order []models.ID

	for offset := 0; ; offset += rebuildBatchSize {
		batch, err := uc.journal.LoadAll(ctx, offset, rebuildBatchSize)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load event journal")
		}

		for _, event := range batch {
			if _, seen := histories[event.AggregateID]; !seen {
				order = append(order, event.AggregateID)
			}
			histories[event.AggregateID] = append(histories[event.AggregateID], event)
		}

		if len(batch) < rebuildBatchSize {
			break
		}
	}

	restored, replayed := 0, 0
	for _, orderID := range order {
		summary, applied := uc.fold(histories[orderID])
		if summary == nil {
			continue
		}
		replayed += applied

		if err := uc.store.Restore(ctx, summary); err != nil {
			return nil, errors.Wrapf(err, "failed to restore summary of order %s", orderID)
		}
		restored++
	}

	uc.logger.Info().Int("summaries", restored).Int("events", replayed).Msg("order summaries rebuilt")

	return &RebuildResponse{Summaries: restored, Events: replayed}, nil
}

// fold applies one order's history and returns the summary with the number of
// events applied
func (uc *RebuildSummaries) fold(history []*events.Event) (*domain.OrderSummary, int) {
	sort.SliceStable(history, func(i, j int) bool {
		if history[i].Sequence != history[j].Sequence {
			return history[i].Sequence < history[j].Sequence
		}
		return history[i].ID < history[j].ID
	})

	var summary *domain.OrderSummary
	applied := 0
	for _, event := range history {
		last := lastSequence(summary)
		if event.Sequence <= last {
			continue
		}
		if event.Sequence > last+1 {
			uc.logger.Warn().
				Str("order_id", event.AggregateID.String()).
				Int64("last_sequence", last).
				Int64("sequence", event.Sequence).
				Msg("sequence gap in journal, rebuild of order stops here")
			break
		}

		next, err := domain.Apply(summary, event)
		if err != nil {
			uc.logger.Warn().Err(err).
				Str("order_id", event.AggregateID.String()).
				Str("event_id", event.ID.String()).
				Msg("event content ignored during rebuild")
		}
		summary = next
		applied++
	}

	return summary, applied
}
