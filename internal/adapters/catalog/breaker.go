package catalog

import (
	"fmt"
	"sync"
	"time"
)

type circuitBreakerState int

const (
	cbOpen circuitBreakerState = iota
	cbClose
	cbHalfOpen
)

// circuitBreaker stops calling the remote catalog after a failure until the
// delay it asked for (or the default cool-off) has passed. Then a single
// probe request is let through.
type circuitBreaker struct {
	mu       *sync.Mutex
	now      func() time.Time
	expireAt time.Time
	coolOff  time.Duration
	state    circuitBreakerState
}

func newCircuitBreaker(coolOff time.Duration) *circuitBreaker {
	cb := &circuitBreaker{
		mu:      &sync.Mutex{},
		now:     time.Now,
		coolOff: coolOff,
		state:   cbClose,
	}

	return cb
}

// execute runs request unless the breaker is open. request reports the
// delay the remote side asked for, if any.
func (cb *circuitBreaker) execute(request func() (time.Duration, error)) error {
	cb.mu.Lock()
	switch cb.state {
	case cbOpen:
		if cb.now().Before(cb.expireAt) {
			cb.mu.Unlock()
			return fmt.Errorf("%w: circuit open", ErrUnavailable)
		}
		cb.state = cbHalfOpen
	case cbHalfOpen:
		cb.mu.Unlock()
		return fmt.Errorf("%w: probe in flight", ErrUnavailable)
	default:
	}
	cb.mu.Unlock()

	delay, err := request()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil || delay > 0 {
		if delay <= 0 {
			delay = cb.coolOff
		}
		cb.state = cbOpen
		cb.expireAt = cb.now().Add(delay)
		if err != nil {
			return fmt.Errorf("request error: %w", err)
		}
		return fmt.Errorf("%w: retry after %s", ErrUnavailable, delay)
	}

	cb.state = cbClose
	return nil
}
