package domain

import "github.com/pkg/errors"

var (
	ErrSummaryNotFound  = errors.New("order summary not found")
	ErrInvalidOrderID   = errors.New("invalid order id")
	ErrUnknownEventType = errors.New("unknown event type")
	ErrMalformedEvent   = errors.New("malformed event payload")
	ErrUnknownGapPolicy = errors.New("unknown gap policy")
)
