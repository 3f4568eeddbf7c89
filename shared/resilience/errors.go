package resilience

import (
	"context"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/pkg/errors"
)

// Outcome classifies how a guarded call ended
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeRejected    Outcome = "rejected"
	OutcomeExhausted   Outcome = "exhausted"
	OutcomeCircuitOpen Outcome = "circuit_open"
)

var (
	ErrRejected    = errors.New("business rejection")
	ErrExhausted   = errors.New("retries exhausted")
	ErrCircuitOpen = errors.New("circuit open")
	ErrTransient   = errors.New("transient failure")
)

// RejectionError is returned by a downstream call that refused the request on business grounds
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return "rejected: " + e.Reason
}

// Reject builds a business rejection
func Reject(reason string) error {
	return &RejectionError{Reason: reason}
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }
func (e *transientError) Is(target error) bool {
	return target == ErrTransient
}

// Transient marks err as retryable
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err is a timeout or connection level failure
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsRejection reports whether err carries a business rejection
func IsRejection(err error) bool {
	var rejection *RejectionError
	return errors.As(err, &rejection)
}

// CallError is the classified failure of a guarded call
type CallError struct {
	Name     string
	Outcome  Outcome
	Attempts int
	Reason   string
	Err      error
}

func (e *CallError) Error() string {
	if e.Outcome == OutcomeRejected {
		return fmt.Sprintf("%s rejected: %s", e.Name, e.Reason)
	}
	return fmt.Sprintf("%s %s after %d attempt(s): %v", e.Name, e.Outcome, e.Attempts, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

func (e *CallError) Is(target error) bool {
	switch target {
	case ErrRejected:
		return e.Outcome == OutcomeRejected
	case ErrExhausted:
		return e.Outcome == OutcomeExhausted
	case ErrCircuitOpen:
		return e.Outcome == OutcomeCircuitOpen
	}
	return false
}

// Classify returns the outcome of a guarded call result. Errors that are not
// CallErrors (for example a cancelled caller context) return ok=false.
func Classify(err error) (outcome Outcome, reason string, ok bool) {
	if err == nil {
		return OutcomeSuccess, "", true
	}
	var callErr *CallError
	if !errors.As(err, &callErr) {
		return "", "", false
	}
	if callErr.Outcome == OutcomeRejected {
		return callErr.Outcome, callErr.Reason, true
	}
	return callErr.Outcome, callErr.Error(), true
}
