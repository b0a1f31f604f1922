package llm

import (
	"context"
	"crypto/sha1"

	lru "github.com/hashicorp/golang-lru/v2"

	llmclient "oxidize/internal/llmClient"
)

// TokenCache memoizes CountTokens results keyed by content hash. The edge
// engine's greedy batch growth re-counts overlapping unit sets many times,
// so the memo pays for itself quickly.
func TokenCache(size int) Middleware {
	if size <= 0 {
		size = 4096
	}
	return func(next llmclient.Client) llmclient.Client {
		cache, err := lru.New[[sha1.Size]byte, int](size)
		if err != nil {
			// only possible with a non-positive size, handled above
			return next
		}
		return &tokenCaching{next: next, cache: cache}
	}
}

type tokenCaching struct {
	next  llmclient.Client
	cache *lru.Cache[[sha1.Size]byte, int]
}

func (c *tokenCaching) Name() string       { return c.next.Name() }
func (c *tokenCaching) Close() error       { return c.next.Close() }
func (c *tokenCaching) TokenCapacity() int { return c.next.TokenCapacity() }

func (c *tokenCaching) CountTokens(text string) int {
	key := sha1.Sum([]byte(text))
	if n, ok := c.cache.Get(key); ok {
		return n
	}
	n := c.next.CountTokens(text)
	c.cache.Add(key, n)
	return n
}

func (c *tokenCaching) GenerateText(ctx context.Context, prompt string, temperature float64) (string, error) {
	return c.next.GenerateText(ctx, prompt, temperature)
}
