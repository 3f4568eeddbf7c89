package application

import (
	"context"
	"time"

	"github.com/draftea/order-fulfillment/orders-service/domain"
	"github.com/draftea/order-fulfillment/shared/models"
	"github.com/pkg/errors"
)

// SagaResponse is the operator view of a saga
type SagaResponse struct {
	OrderID        string         `json:"order_id"`
	CustomerID     string         `json:"customer_id"`
	Status         string         `json:"status"`
	CurrentStep    string         `json:"current_step,omitempty"`
	CompletedSteps []string       `json:"completed_steps"`
	Retries        map[string]int `json:"retries"`
	LastError      string         `json:"last_error,omitempty"`
	FailedStep     string         `json:"failed_step,omitempty"`
	ReceiptID      string         `json:"receipt_id,omitempty"`
	PendingEvents  int            `json:"pending_events"`
	LastSequence   int64          `json:"last_sequence"`
	CreatedAt      string         `json:"created_at"`
	UpdatedAt      string         `json:"updated_at"`
	ArchivedAt     string         `json:"archived_at,omitempty"`
}

func newSagaResponse(saga *domain.Saga) *SagaResponse {
	completed := make([]string, len(saga.CompletedSteps))
	for i, step := range saga.CompletedSteps {
		completed[i] = string(step)
	}

	retries := make(map[string]int, len(saga.Retries))
	for step, n := range saga.Retries {
		retries[string(step)] = n
	}

	response := &SagaResponse{
		OrderID:        saga.OrderID.String(),
		CustomerID:     saga.CustomerID,
		Status:         saga.Status.String(),
		CurrentStep:    string(saga.CurrentStep),
		CompletedSteps: completed,
		Retries:        retries,
		LastError:      saga.LastError,
		FailedStep:     string(saga.FailedStep),
		ReceiptID:      saga.ReceiptID,
		PendingEvents:  len(saga.Events()),
		LastSequence:   saga.LastSequence,
		CreatedAt:      saga.Timestamps.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      saga.Timestamps.UpdatedAt.Format(time.RFC3339),
	}
	if saga.ArchivedAt != nil {
		response.ArchivedAt = saga.ArchivedAt.Format(time.RFC3339)
	}
	return response
}

// GetSaga use case
type GetSaga struct {
	repo domain.SagaRepository
}

// NewGetSaga creates a new GetSaga use case
func NewGetSaga(repo domain.SagaRepository) *GetSaga {
	return &GetSaga{repo: repo}
}

// Execute returns the saga of one order
func (uc *GetSaga) Execute(ctx context.Context, orderID string) (*SagaResponse, error) {
	if orderID == "" {
		return nil, errors.New("order ID is required")
	}

	id, err := models.NewID(orderID)
	if err != nil {
		return nil, errors.Wrap(domain.ErrInvalidOrder, "invalid order ID")
	}

	saga, err := uc.repo.FindByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find saga")
	}

	return newSagaResponse(saga), nil
}

// ListSagas use case
type ListSagas struct {
	repo domain.SagaRepository
}

// NewListSagas creates a new ListSagas use case
func NewListSagas(repo domain.SagaRepository) *ListSagas {
	return &ListSagas{repo: repo}
}

// Execute lists sagas in one status, most recently updated first
func (uc *ListSagas) Execute(ctx context.Context, status string, limit int) ([]*SagaResponse, error) {
	orderStatus, err := models.NewOrderStatus(status)
	if err != nil {
		return nil, errors.Wrapf(err, "status %q", status)
	}

	if limit <= 0 || limit > 500 {
		limit = 100
	}

	sagas, err := uc.repo.FindByStatus(ctx, orderStatus, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list sagas")
	}

	responses := make([]*SagaResponse, len(sagas))
	for i, saga := range sagas {
		responses[i] = newSagaResponse(saga)
	}
	return responses, nil
}
