package infrastructure

import (
	"context"
	"sync"

	"github.com/draftea/order-fulfillment/order-query-service/domain"
	"github.com/draftea/order-fulfillment/shared/models"
	"github.com/pkg/errors"
)

var _ domain.SummaryStore = (*MemorySummaryStore)(nil)

// MemorySummaryStore keeps summaries in process
type MemorySummaryStore struct {
	mu        sync.RWMutex
	summaries map[models.ID]*domain.OrderSummary
}

func NewMemorySummaryStore() *MemorySummaryStore {
	return &MemorySummaryStore{summaries: make(map[models.ID]*domain.OrderSummary)}
}

func (s *MemorySummaryStore) Get(_ context.Context, orderID models.ID) (*domain.OrderSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, ok := s.summaries[orderID]
	if !ok {
		return nil, errors.Wrapf(domain.ErrSummaryNotFound, "order %s", orderID)
	}
	return summary.Clone(), nil
}

func (s *MemorySummaryStore) Upsert(_ context.Context, summary *domain.OrderSummary) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stored, ok := s.summaries[summary.OrderID]; ok && stored.LastSequence >= summary.LastSequence {
		return false, nil
	}
	s.summaries[summary.OrderID] = summary.Clone()
	return true, nil
}

func (s *MemorySummaryStore) Restore(_ context.Context, summary *domain.OrderSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stored, ok := s.summaries[summary.OrderID]; ok && stored.LastSequence > summary.LastSequence {
		return nil
	}
	s.summaries[summary.OrderID] = summary.Clone()
	return nil
}
