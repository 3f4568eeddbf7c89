package domain

import "github.com/pkg/errors"

var (
	ErrSagaNotFound      = errors.New("saga not found")
	ErrSagaAlreadyExists = errors.New("saga already exists for order")
	ErrInvalidTransition = errors.New("invalid saga transition")
	ErrInvalidOrder      = errors.New("invalid order")
	ErrConcurrentUpdate  = errors.New("saga was modified concurrently")
)
