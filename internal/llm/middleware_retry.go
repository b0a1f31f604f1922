package llm

import (
	"context"
	"errors"
	"time"

	llmclient "oxidize/internal/llmClient"

	"oxidize/internal/ctxlog"
)

// Retry retries GenerateText with exponential backoff starting at baseDelay
// and capped at maxDelay. Transient endpoint failures are retried without
// bound; a PermanentError aborts immediately, as does context cancellation.
func Retry(baseDelay, maxDelay time.Duration) Middleware {
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	if maxDelay < baseDelay {
		maxDelay = 64 * baseDelay
	}
	return func(next llmclient.Client) llmclient.Client {
		return &retrying{next: next, base: baseDelay, max: maxDelay}
	}
}

type retrying struct {
	next llmclient.Client
	base time.Duration
	max  time.Duration
}

func (r *retrying) Name() string                { return r.next.Name() }
func (r *retrying) Close() error                { return r.next.Close() }
func (r *retrying) CountTokens(text string) int { return r.next.CountTokens(text) }
func (r *retrying) TokenCapacity() int          { return r.next.TokenCapacity() }

func (r *retrying) GenerateText(ctx context.Context, prompt string, temperature float64) (string, error) {
	delay := r.base
	for {
		resp, err := r.next.GenerateText(ctx, prompt, temperature)
		if err == nil {
			return resp, nil
		}
		// A permanent error will not resolve with retries.
		var pErr *llmclient.PermanentError
		if errors.As(err, &pErr) {
			return "", err
		}
		ctxlog.FromContext(ctx).Warn("generation failed, backing off",
			"error", err, "delay", delay)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
		if delay *= 2; delay > r.max {
			delay = r.max
		}
	}
}
