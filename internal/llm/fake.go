package llm

import (
	"context"
	"strings"
	"sync"

	llmclient "oxidize/internal/llmClient"
)

// FakeClient replays scripted responses for offline runs and tests. When the
// script is exhausted it repeats the last response; an empty script yields
// empty markdown.
type FakeClient struct {
	mu        sync.Mutex
	responses []string
	tokenCap  int
	Prompts   []string // prompts observed, in call order
}

var _ llmclient.Client = (*FakeClient)(nil)

func NewFakeClient(cap int, responses ...string) *FakeClient {
	if cap <= 0 {
		cap = 4096
	}
	return &FakeClient{tokenCap: cap, responses: responses}
}

func (f *FakeClient) Name() string { return "FakeLLM" }
func (f *FakeClient) Close() error { return nil }
func (f *FakeClient) CountTokens(text string) int {
	return len(strings.Fields(text))
}
func (f *FakeClient) TokenCapacity() int { return f.tokenCap }

func (f *FakeClient) GenerateText(ctx context.Context, prompt string, temperature float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Prompts = append(f.Prompts, prompt)
	if len(f.responses) == 0 {
		return "```rust\n```", nil
	}
	out := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return out, nil
}
