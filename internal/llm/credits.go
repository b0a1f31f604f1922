package llm

import (
	"context"
	"sync/atomic"
)

type creditsKey struct{}

// credits is a shared countdown of pre-paid requests. It travels by
// pointer inside a context so every middleware along the chain draws from
// the same pool.
type credits struct{ left atomic.Int64 }

// WithCredits derives a context carrying n consumable request credits.
// Non-positive n leaves the context untouched.
func WithCredits(ctx context.Context, n int) context.Context {
	if n <= 0 {
		return ctx
	}
	c := &credits{}
	c.left.Store(int64(n))
	return context.WithValue(ctx, creditsKey{}, c)
}

// TakeCredit consumes one credit from the context. It reports false when
// the context carries no credits or the pool is empty.
func TakeCredit(ctx context.Context) bool {
	c, ok := ctx.Value(creditsKey{}).(*credits)
	if !ok || c == nil {
		return false
	}
	for {
		cur := c.left.Load()
		if cur <= 0 {
			return false
		}
		if c.left.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}
