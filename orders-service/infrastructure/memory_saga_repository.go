package infrastructure

import (
	"context"
	"sort"
	"sync"

	"github.com/draftea/order-fulfillment/orders-service/domain"
	"github.com/draftea/order-fulfillment/shared/models"
	"github.com/pkg/errors"
)

var _ domain.SagaRepository = (*MemorySagaRepository)(nil)

// MemorySagaRepository keeps sagas in process memory. It stores and returns
// clones so callers never share state with the store.
type MemorySagaRepository struct {
	mu    sync.RWMutex
	sagas map[models.ID]*domain.Saga
}

// NewMemorySagaRepository creates a new MemorySagaRepository
func NewMemorySagaRepository() *MemorySagaRepository {
	return &MemorySagaRepository{sagas: make(map[models.ID]*domain.Saga)}
}

func (r *MemorySagaRepository) Create(_ context.Context, saga *domain.Saga) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sagas[saga.OrderID]; ok {
		return errors.Wrapf(domain.ErrSagaAlreadyExists, "order %s", saga.OrderID)
	}
	r.sagas[saga.OrderID] = saga.Clone()
	return nil
}

func (r *MemorySagaRepository) Save(_ context.Context, saga *domain.Saga) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.sagas[saga.OrderID]
	if !ok {
		return errors.Wrapf(domain.ErrSagaNotFound, "order %s", saga.OrderID)
	}
	if stored.Version.Value != saga.Version.Value {
		return errors.Wrapf(domain.ErrConcurrentUpdate, "order %s at version %d, stored %d",
			saga.OrderID, saga.Version.Value, stored.Version.Value)
	}

	saga.Version = saga.Version.Update()
	r.sagas[saga.OrderID] = saga.Clone()
	return nil
}

func (r *MemorySagaRepository) FindByID(_ context.Context, orderID models.ID) (*domain.Saga, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	saga, ok := r.sagas[orderID]
	if !ok {
		return nil, errors.Wrapf(domain.ErrSagaNotFound, "order %s", orderID)
	}
	return saga.Clone(), nil
}

func (r *MemorySagaRepository) FindByStatus(_ context.Context, status models.OrderStatus, limit int) ([]*domain.Saga, error) {
	return r.find(limit, func(saga *domain.Saga) bool {
		return saga.Status == status
	}), nil
}

func (r *MemorySagaRepository) FindWithPendingEvents(_ context.Context, limit int) ([]*domain.Saga, error) {
	return r.find(limit, func(saga *domain.Saga) bool {
		return len(saga.Events()) > 0
	}), nil
}

// find returns matching sagas, most recently updated first
func (r *MemorySagaRepository) find(limit int, match func(*domain.Saga) bool) []*domain.Saga {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.Saga, 0)
	for _, saga := range r.sagas {
		if match(saga) {
			result = append(result, saga.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamps.UpdatedAt.After(result[j].Timestamps.UpdatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}
