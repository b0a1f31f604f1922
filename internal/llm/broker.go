package llm

import "context"

// Limiter grants one request permit per Acquire, blocking until the rate
// allows it.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// PermitBroker reserves a unit of work's whole request budget before the
// work starts. A translation needs its retries available up front;
// acquiring them one by one mid-flight lets concurrent workers starve a
// half-finished unit.
type PermitBroker interface {
	Reserve(ctx context.Context, n int) (Lease, error)
}

// Lease hands the reserved permits to the code doing the work, as credits
// embedded in a context.
type Lease interface {
	Context(ctx context.Context) context.Context
}

type broker struct{ rl Limiter }

// NewBroker builds a PermitBroker drawing from the given limiter. Sharing
// the limiter with RateLimitWith keeps reservations and direct acquires on
// one bucket.
func NewBroker(rl Limiter) PermitBroker { return &broker{rl: rl} }

func (b *broker) Reserve(ctx context.Context, n int) (Lease, error) {
	if b == nil || b.rl == nil || n <= 0 {
		return lease{}, nil
	}
	for i := 0; i < n; i++ {
		if err := b.rl.Acquire(ctx); err != nil {
			return nil, err
		}
	}
	return lease{n: n}, nil
}

type lease struct{ n int }

func (l lease) Context(ctx context.Context) context.Context {
	return WithCredits(ctx, l.n)
}
