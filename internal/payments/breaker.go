package payments

import (
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Breaker guards calls to the payment gateway. It opens after threshold
// consecutive outages and lets one trial call through once cooldown has
// elapsed; the trial's result closes or re-opens it.
type Breaker struct {
	cb *gobreaker.TwoStepCircuitBreaker
}

// NewBreaker creates a breaker. A threshold below one disables it and
// returns nil, which allows every call.
func NewBreaker(threshold int, cooldown time.Duration, logger *zap.Logger) *Breaker {
	if threshold < 1 {
		return nil
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{cb: gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(threshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Payment gateway circuit changed state",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})}
}

// Allow claims a call. When ok, done must be called once with whether the
// gateway answered.
func (b *Breaker) Allow() (done func(healthy bool), ok bool) {
	if b == nil {
		return func(bool) {}, true
	}
	done, err := b.cb.Allow()
	if err != nil {
		return nil, false
	}
	return done, true
}

// Open reports whether calls are currently being rejected
func (b *Breaker) Open() bool {
	return b != nil && b.cb.State() == gobreaker.StateOpen
}
