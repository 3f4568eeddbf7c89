package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/draftea/order-fulfillment/shared/models"
)

var (
	_ Store  = (*MemoryStore)(nil)
	_ Purger = (*MemoryStore)(nil)
)

// MemoryStore keeps claims in process memory
type MemoryStore struct {
	mu     sync.Mutex
	claims map[string]time.Time
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		claims: make(map[string]time.Time),
		now:    time.Now,
	}
}

func (s *MemoryStore) Claim(_ context.Context, consumer string, eventID models.ID) (bool, error) {
	key := Key(consumer, eventID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.claims[key]; ok {
		return false, nil
	}
	s.claims[key] = s.now()
	return true, nil
}

func (s *MemoryStore) Release(_ context.Context, consumer string, eventID models.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.claims, Key(consumer, eventID))
	return nil
}

func (s *MemoryStore) Purge(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for key, claimedAt := range s.claims {
		if claimedAt.Before(olderThan) {
			delete(s.claims, key)
			purged++
		}
	}
	return purged, nil
}

// Len returns the number of live claims
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.claims)
}
