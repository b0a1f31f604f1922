package llm

import (
	"context"
	"time"
)

// rpsLimiter is a token bucket refilled at a fixed rate by a background
// goroutine. A nil limiter admits everything, so disabled rate limiting
// needs no branches at the call sites.
type rpsLimiter struct {
	tokens chan struct{}
	stop   chan struct{}
}

func newRPSLimiter(rps float64, burst int) *rpsLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	l := &rpsLimiter{
		tokens: make(chan struct{}, burst),
		stop:   make(chan struct{}),
	}
	for len(l.tokens) < burst {
		l.tokens <- struct{}{}
	}

	interval := time.Duration(float64(time.Second) / rps)
	if interval <= 0 {
		interval = time.Millisecond
	}
	go l.refill(interval)
	return l
}

func (l *rpsLimiter) refill(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			select {
			case l.tokens <- struct{}{}:
			default:
				// bucket full
			}
		case <-l.stop:
			return
		}
	}
}

// Acquire blocks until a token frees up, the context ends, or the limiter
// is stopped.
func (l *rpsLimiter) Acquire(ctx context.Context) error {
	if l == nil {
		return nil
	}
	select {
	case <-l.tokens:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stop:
		return context.Canceled
	}
}

// Stop ends the refill goroutine. Pending Acquire calls fail.
func (l *rpsLimiter) Stop() {
	if l != nil {
		close(l.stop)
	}
}

// NewLimiter exposes the token bucket behind the Limiter interface, for
// sharing between the rate-limit middleware and a PermitBroker. With
// rps <= 0 the limiter admits everything.
func NewLimiter(rps float64, burst int) Limiter {
	return newRPSLimiter(rps, burst)
}
