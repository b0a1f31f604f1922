package llmclient

import (
	"context"
	"errors"
)

var ErrEmptyResponse = errors.New("empty response from LLM")

// Client is the minimal generation surface the translation engines need.
// Cross-cutting concerns (rate limiting, retries, token-count caching) are
// applied via llm.Middleware, not here.
type Client interface {
	Name() string
	GenerateText(ctx context.Context, prompt string, temperature float64) (string, error)
	CountTokens(text string) int
	TokenCapacity() int
	Close() error
}

// PermanentError indicates an error that will not resolve with retries.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}
