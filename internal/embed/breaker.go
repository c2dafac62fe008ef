package embed

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Breaker wraps a Provider with a circuit breaker so a provider that keeps
// failing is skipped outright until its timeout elapses.
type Breaker struct {
	next Provider
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker trips after five consecutive failures and probes again after timeout.
func NewBreaker(next Provider, timeout time.Duration, log *zap.Logger) *Breaker {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("embedding breaker state changed",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &Breaker{next: next, cb: cb}
}

func (b *Breaker) Name() string { return b.next.Name() }

// State exposes the breaker state for stats.
func (b *Breaker) State() gobreaker.State { return b.cb.State() }

func (b *Breaker) Embed(ctx context.Context, text string) (Result, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Embed(ctx, text)
	})
	if err != nil {
		return Result{}, err
	}
	return out.(Result), nil
}
