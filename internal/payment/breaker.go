package payment

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// ErrUnavailable is returned while the provider's circuit is open.
var ErrUnavailable = errors.New("payment provider unavailable")

type BreakerSettings struct {
	Name             string
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// Breaker stops calling a failing provider for a while. Declines are a normal
// answer from a healthy provider and do not count as failures.
type Breaker struct {
	next Authorizer
	cb   *gobreaker.CircuitBreaker
}

func NewBreaker(next Authorizer, s BreakerSettings, logger *slog.Logger) *Breaker {
	if s.Name == "" {
		s.Name = "payment"
	}
	if s.Interval <= 0 {
		s.Interval = time.Minute
	}
	if s.Timeout <= 0 {
		s.Timeout = 30 * time.Second
	}
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 5
	}
	if logger == nil {
		logger = slog.Default()
	}

	threshold := s.FailureThreshold
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("payment circuit changed state",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrDeclined) || errors.Is(err, ErrNoCustomer) || errors.Is(err, ErrNoMethod)
		},
	})
	return &Breaker{next: next, cb: cb}
}

func (b *Breaker) Authorize(ctx context.Context, riderID string, amount float64) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Authorize(ctx, riderID, amount)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.Join(ErrUnavailable, err)
	}
	return err
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
