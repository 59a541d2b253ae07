package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sony/gobreaker"
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultBackoff is used by the S3 and Open-Meteo clients.
var DefaultBackoff = BackoffConfig{
	MaxRetries:      3,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     5 * time.Second,
}

var (
	ErrCircuitOpen   = errors.New("circuit breaker open")
	ErrInvalidConfig = errors.New("invalid backoff configuration")
)

// Policy pairs a retry schedule with a circuit breaker for one upstream.
type Policy struct {
	Backoff BackoffConfig
	breaker *gobreaker.CircuitBreaker
}

// NewPolicy creates a Policy with its own named breaker.
func NewPolicy(name string, backoff BackoffConfig) *Policy {
	return &Policy{
		Backoff: backoff,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 5,
			Interval:    1 * time.Minute,
			Timeout:     2 * time.Minute,
		}),
	}
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Do runs fn through the breaker, retrying failures with exponential backoff
// until MaxRetries is exhausted, the error is permanent, or ctx ends.
func Do[T any](ctx context.Context, p *Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if p.Backoff.MaxRetries < 0 || p.Backoff.InitialInterval <= 0 {
		return zero, ErrInvalidConfig
	}

	var attempt int
	for {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		result, err := p.breaker.Execute(func() (interface{}, error) {
			return fn(ctx)
		})
		if err == nil {
			v, ok := result.(T)
			if !ok {
				return zero, fmt.Errorf("unexpected result type from circuit breaker")
			}
			return v, nil
		}

		// If circuit is open, propagate immediately.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}

		var perm permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}

		if attempt >= p.Backoff.MaxRetries {
			return zero, err
		}

		if !sleep(ctx, p.Backoff.delay(attempt)) {
			return zero, ctx.Err()
		}
		attempt++
	}
}

func (b BackoffConfig) delay(attempt int) time.Duration {
	d := b.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
	if d > b.MaxInterval && b.MaxInterval > 0 {
		d = b.MaxInterval
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
