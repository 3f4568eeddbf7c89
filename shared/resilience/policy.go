// Package resilience guards synchronous downstream calls with a circuit breaker
// and bounded exponential retry.
package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker/v2"
)

// Config holds the retry and breaker settings of one downstream dependency
type Config struct {
	MaxAttempts      int           `mapstructure:"max_attempts"`
	InitialBackoff   time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff       time.Duration `mapstructure:"max_backoff"`
	Multiplier       float64       `mapstructure:"multiplier"`
	Jitter           float64       `mapstructure:"jitter"`
	AttemptTimeout   time.Duration `mapstructure:"attempt_timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	// Window is the fixed period after which a closed breaker clears its
	// failure counts. It is a tumbling window, not a sliding one.
	Window           time.Duration `mapstructure:"window"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
}

// DefaultConfig returns conservative production settings
func DefaultConfig() Config {
	return Config{
		MaxAttempts:      3,
		InitialBackoff:   100 * time.Millisecond,
		MaxBackoff:       2 * time.Second,
		Multiplier:       2,
		Jitter:           0.2,
		AttemptTimeout:   2 * time.Second,
		FailureThreshold: 5,
		Window:           time.Minute,
		Cooldown:         30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.Multiplier < 1 {
		c.Multiplier = d.Multiplier
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
	return c
}

// State is the circuit breaker state
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Policy holds the breaker state of one downstream dependency. It is safe for concurrent use.
type Policy struct {
	name          string
	cfg           Config
	breaker       *gobreaker.CircuitBreaker[any]
	onStateChange func(name string, from, to State)
}

// Option configures a Policy
type Option func(*Policy)

// WithStateChangeHook is called on every breaker transition
func WithStateChangeHook(fn func(name string, from, to State)) Option {
	return func(p *Policy) {
		p.onStateChange = fn
	}
}

// NewPolicy creates a policy named after the dependency it guards
func NewPolicy(name string, cfg Config, opts ...Option) *Policy {
	p := &Policy{
		name: name,
		cfg:  cfg.withDefaults(),
	}

	for _, opt := range opts {
		opt(p)
	}

	threshold := p.cfg.FailureThreshold
	p.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    p.cfg.Window,
		Timeout:     p.cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// a rejection proves the dependency is reachable
			return err == nil || IsRejection(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if p.onStateChange != nil {
				p.onStateChange(name, State(from.String()), State(to.String()))
			}
		},
	})

	return p
}

// Name returns the guarded dependency name
func (p *Policy) Name() string {
	return p.name
}

// State returns the current breaker state
func (p *Policy) State() State {
	return State(p.breaker.State().String())
}

func (p *Policy) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.InitialBackoff
	b.MaxInterval = p.cfg.MaxBackoff
	b.Multiplier = p.cfg.Multiplier
	b.RandomizationFactor = p.cfg.Jitter
	return b
}

var errBreakerRejected = errors.New("breaker rejected call")

// Call runs op through the policy. Each attempt passes the breaker and runs under
// the attempt timeout. Transient failures are retried with backoff; rejections,
// unclassified failures and open-circuit fast-fails are not.
//
// The returned error is a *CallError unless ctx itself was cancelled.
func Call[T any](ctx context.Context, p *Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := 0

	operation := func() (T, error) {
		attempts++
		res, err := p.breaker.Execute(func() (any, error) {
			attemptCtx, cancel := ctx, context.CancelFunc(func() {})
			if p.cfg.AttemptTimeout > 0 {
				attemptCtx, cancel = context.WithTimeout(ctx, p.cfg.AttemptTimeout)
			}
			defer cancel()
			return op(attemptCtx)
		})

		switch {
		case err == nil:
			value, _ := res.(T)
			return value, nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return zero, backoff.Permanent(errors.Wrap(errBreakerRejected, err.Error()))
		case ctx.Err() != nil:
			return zero, backoff.Permanent(ctx.Err())
		case IsRejection(err):
			return zero, backoff.Permanent(err)
		case IsTransient(err):
			return zero, err
		default:
			return zero, backoff.Permanent(err)
		}
	}

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(p.newBackOff()),
		backoff.WithMaxTries(uint(p.cfg.MaxAttempts)),
	)
	if err == nil {
		return res, nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}

	var rejection *RejectionError
	switch {
	case errors.As(err, &rejection):
		return zero, &CallError{Name: p.name, Outcome: OutcomeRejected, Attempts: attempts, Reason: rejection.Reason, Err: err}
	case errors.Is(err, errBreakerRejected):
		return zero, &CallError{Name: p.name, Outcome: OutcomeCircuitOpen, Attempts: attempts, Err: err}
	case ctx.Err() != nil:
		return zero, errors.Wrapf(ctx.Err(), "%s call aborted", p.name)
	default:
		return zero, &CallError{Name: p.name, Outcome: OutcomeExhausted, Attempts: attempts, Err: err}
	}
}
