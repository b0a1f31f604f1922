package llm

import (
	"context"

	llmclient "oxidize/internal/llmClient"
)

// Middleware decorates a Client to inject cross-cutting concerns
// (rate limiting, retries, token-count caching).
type Middleware func(llmclient.Client) llmclient.Client

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner llmclient.Client, mws ...Middleware) llmclient.Client {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// -------- Rate Limiting (using the internal rpsLimiter) --------

// RateLimit limits request rate using the custom rpsLimiter.
// If rps <= 0, the limiter is effectively disabled.
func RateLimit(rps float64, burst int) Middleware {
	return func(next llmclient.Client) llmclient.Client {
		rl := newRPSLimiter(rps, burst) // nil when disabled
		return &rateLimited{next: next, rl: rl, owned: rl}
	}
}

// RateLimitWith throttles through a shared Limiter. The caller keeps
// ownership; Close does not stop it. Use this when the same limiter also
// backs a PermitBroker, so reserved credits and direct acquires draw from
// one bucket.
func RateLimitWith(rl Limiter) Middleware {
	return func(next llmclient.Client) llmclient.Client {
		if l, ok := rl.(*rpsLimiter); ok && l == nil {
			rl = nil
		}
		return &rateLimited{next: next, rl: rl}
	}
}

type rateLimited struct {
	next  llmclient.Client
	rl    Limiter
	owned *rpsLimiter
}

func (c *rateLimited) Name() string                { return c.next.Name() }
func (c *rateLimited) CountTokens(text string) int { return c.next.CountTokens(text) }
func (c *rateLimited) TokenCapacity() int          { return c.next.TokenCapacity() }

func (c *rateLimited) GenerateText(ctx context.Context, prompt string, temperature float64) (string, error) {
	if c.rl != nil {
		// Prefer reserved credits embedded in the context.
		if !TakeCredit(ctx) {
			if err := c.rl.Acquire(ctx); err != nil {
				return "", err
			}
		}
	}
	return c.next.GenerateText(ctx, prompt, temperature)
}

func (c *rateLimited) Close() error {
	c.owned.Stop()
	return c.next.Close()
}
