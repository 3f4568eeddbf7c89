package infrastructure

import (
	"context"
	"sync"

	"github.com/draftea/order-fulfillment/shared/events"
	"github.com/draftea/order-fulfillment/shared/models"
)

var _ events.EventStore = (*MemoryEventStore)(nil)

// MemoryEventStore keeps the journal in append order
type MemoryEventStore struct {
	mu     sync.RWMutex
	log    []*events.Event
	byID   map[models.ID]struct{}
	byAggr map[models.ID][]*events.Event
}

func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{
		byID:   make(map[models.ID]struct{}),
		byAggr: make(map[models.ID][]*events.Event),
	}
}

func (s *MemoryEventStore) Append(_ context.Context, evts ...*events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, event := range evts {
		if _, ok := s.byID[event.ID]; ok {
			continue
		}
		stored := event.Clone()
		s.byID[event.ID] = struct{}{}
		s.log = append(s.log, stored)
		s.byAggr[event.AggregateID] = append(s.byAggr[event.AggregateID], stored)
	}
	return nil
}

func (s *MemoryEventStore) Load(_ context.Context, aggregateID models.ID) ([]*events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.byAggr[aggregateID]
	result := make([]*events.Event, len(stored))
	for i, event := range stored {
		result[i] = event.Clone()
	}
	return result, nil
}

func (s *MemoryEventStore) LoadAll(_ context.Context, offset, limit int) ([]*events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if offset >= len(s.log) {
		return nil, nil
	}

	end := len(s.log)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	result := make([]*events.Event, 0, end-offset)
	for _, event := range s.log[offset:end] {
		result = append(result, event.Clone())
	}
	return result, nil
}
