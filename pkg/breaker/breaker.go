// Package breaker guards outbound integrations with a circuit breaker and a
// per-call timeout.
package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var (
	ErrOpen    = errors.New("circuit breaker open")
	ErrTimeout = errors.New("integration call timed out")
)

// Config controls when the breaker trips and how long calls may take.
type Config struct {
	Name                string
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	HalfOpenRequests    uint32
	CallTimeout         time.Duration
	Logger              *zap.Logger
	// OnStateChange receives "closed", "half-open" or "open".
	OnStateChange func(name, state string)
}

// Breaker wraps a gobreaker.CircuitBreaker.
type Breaker struct {
	name    string
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	logger  *zap.Logger
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as a definitive answer from the remote side, such as a
// declined authorization. Permanent errors do not count towards tripping.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// New builds a breaker. It trips after 5 consecutive failures and stays open
// for 30s unless cfg says otherwise.
func New(cfg Config) *Breaker {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = 1
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "circuit_breaker"), zap.String("integration", cfg.Name))

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsPermanent(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(name, to.String())
			}
		},
	}

	return &Breaker{
		name:    cfg.Name,
		cb:      gobreaker.NewCircuitBreaker(settings),
		timeout: cfg.CallTimeout,
		logger:  logger,
	}
}

// Name returns the integration name.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current breaker state as a string.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// Do runs fn through the breaker with the configured timeout.
func Do[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	result, err := b.cb.Execute(func() (interface{}, error) {
		value, err := fn(callCtx)
		return value, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			b.logger.Warn("circuit breaker open - request rejected")
			return zero, ErrOpen
		}
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			b.logger.Warn("operation timeout", zap.Duration("timeout", b.timeout))
			return zero, ErrTimeout
		}
		return zero, err
	}

	typed, ok := result.(T)
	if !ok {
		return zero, nil
	}
	return typed, nil
}
