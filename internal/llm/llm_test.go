package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	llmclient "oxidize/internal/llmClient"
)

// countingLimiter records Acquire calls and optionally fails after a quota.
type countingLimiter struct {
	mu       sync.Mutex
	acquired int
	failAt   int
}

func (l *countingLimiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquired++
	if l.failAt > 0 && l.acquired >= l.failAt {
		return errors.New("limiter closed")
	}
	return nil
}

// flakyClient fails a scripted number of times before answering.
type flakyClient struct {
	FakeClient
	failures int
	calls    int
	err      error
}

func (f *flakyClient) GenerateText(ctx context.Context, prompt string, temperature float64) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", f.err
	}
	return f.FakeClient.GenerateText(ctx, prompt, temperature)
}

func TestCreditsConsumeOnce(t *testing.T) {
	ctx := WithCredits(context.Background(), 2)
	if !TakeCredit(ctx) || !TakeCredit(ctx) {
		t.Fatalf("credits not consumable")
	}
	if TakeCredit(ctx) {
		t.Fatalf("third credit appeared from nowhere")
	}
	if TakeCredit(context.Background()) {
		t.Fatalf("bare context yielded a credit")
	}
	if got := WithCredits(context.Background(), 0); got != context.Background() {
		t.Fatalf("zero credits wrapped the context")
	}
}

func TestBrokerReservesUpFront(t *testing.T) {
	ctx := context.Background()
	rl := &countingLimiter{}
	b := NewBroker(rl)

	lease, err := b.Reserve(ctx, 3)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if rl.acquired != 3 {
		t.Fatalf("acquired %d permits", rl.acquired)
	}
	leased := lease.Context(ctx)
	for i := 0; i < 3; i++ {
		if !TakeCredit(leased) {
			t.Fatalf("credit %d missing", i)
		}
	}
	if TakeCredit(leased) {
		t.Fatalf("extra credit")
	}
}

func TestBrokerPropagatesLimiterError(t *testing.T) {
	rl := &countingLimiter{failAt: 2}
	b := NewBroker(rl)
	if _, err := b.Reserve(context.Background(), 3); err == nil {
		t.Fatalf("limiter failure swallowed")
	}
}

func TestBrokerZeroReservationIsFree(t *testing.T) {
	rl := &countingLimiter{}
	b := NewBroker(rl)
	lease, err := b.Reserve(context.Background(), 0)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if rl.acquired != 0 {
		t.Fatalf("acquired %d permits for nothing", rl.acquired)
	}
	ctx := lease.Context(context.Background())
	if TakeCredit(ctx) {
		t.Fatalf("zero lease yielded a credit")
	}
}

func TestRateLimitWithPrefersCredits(t *testing.T) {
	inner := NewFakeClient(0, "ok")
	rl := &countingLimiter{}
	client := Wrap(inner, RateLimitWith(rl))

	ctx := WithCredits(context.Background(), 1)
	if _, err := client.GenerateText(ctx, "a", 0); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if rl.acquired != 0 {
		t.Fatalf("limiter hit despite credits")
	}

	// Credits spent, the next request pays the limiter directly.
	if _, err := client.GenerateText(ctx, "b", 0); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if rl.acquired != 1 {
		t.Fatalf("acquired %d", rl.acquired)
	}
}

func TestRateLimitSharedLimiterSurvivesClose(t *testing.T) {
	inner := NewFakeClient(0, "ok")
	rl := newRPSLimiter(100, 1)
	defer rl.Stop()
	client := Wrap(inner, RateLimitWith(rl))

	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// The shared limiter still runs after the client is closed.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rl.Acquire(ctx); err != nil {
		t.Fatalf("acquire after close: %v", err)
	}
}

func TestRetryRecoversFromTransientErrors(t *testing.T) {
	inner := &flakyClient{failures: 2, err: errors.New("endpoint hiccup")}
	inner.responses = []string{"answer"}
	client := Wrap(inner, Retry(time.Millisecond, 4*time.Millisecond))

	got, err := client.GenerateText(context.Background(), "p", 0)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != "answer" {
		t.Fatalf("got %q", got)
	}
	if inner.calls != 3 {
		t.Fatalf("%d attempts", inner.calls)
	}
}

func TestRetryAbortsOnPermanentError(t *testing.T) {
	inner := &flakyClient{failures: 10, err: llmclient.NewPermanentError(errors.New("bad request"))}
	client := Wrap(inner, Retry(time.Millisecond, 4*time.Millisecond))

	_, err := client.GenerateText(context.Background(), "p", 0)
	var pErr *llmclient.PermanentError
	if !errors.As(err, &pErr) {
		t.Fatalf("err = %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("%d attempts on a permanent error", inner.calls)
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	inner := &flakyClient{failures: 1 << 30, err: errors.New("down")}
	client := Wrap(inner, Retry(time.Millisecond, 4*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.GenerateText(ctx, "p", 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

type countingCounter struct {
	FakeClient
	counts int
}

func (c *countingCounter) CountTokens(text string) int {
	c.counts++
	return c.FakeClient.CountTokens(text)
}

func TestTokenCacheMemoizesCounts(t *testing.T) {
	inner := &countingCounter{}
	client := Wrap(inner, TokenCache(8))

	for i := 0; i < 3; i++ {
		if got := client.CountTokens("one two three"); got != 3 {
			t.Fatalf("count = %d", got)
		}
	}
	if inner.counts != 1 {
		t.Fatalf("inner counted %d times", inner.counts)
	}
	client.CountTokens("four")
	if inner.counts != 2 {
		t.Fatalf("distinct text not counted, counts = %d", inner.counts)
	}
}

func TestFakeClientScript(t *testing.T) {
	ctx := context.Background()
	f := NewFakeClient(0, "first", "second")

	for _, want := range []string{"first", "second", "second"} {
		got, err := f.GenerateText(ctx, "p", 0)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	}
	if len(f.Prompts) != 3 {
		t.Fatalf("%d prompts recorded", len(f.Prompts))
	}

	empty := NewFakeClient(0)
	got, err := empty.GenerateText(ctx, "p", 0)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != "```rust\n```" {
		t.Fatalf("empty script yielded %q", got)
	}
}

func TestWrapOrder(t *testing.T) {
	inner := NewFakeClient(0, "ok")
	var order []string
	tag := func(name string) Middleware {
		return func(next llmclient.Client) llmclient.Client {
			return &tagged{next: next, name: name, order: &order}
		}
	}
	client := Wrap(inner, tag("outer"), tag("inner"))
	if _, err := client.GenerateText(context.Background(), "p", 0); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(order) != 2 || order[0] != "outer" || order[1] != "inner" {
		t.Fatalf("order = %v", order)
	}
}

type tagged struct {
	next  llmclient.Client
	name  string
	order *[]string
}

func (c *tagged) Name() string                { return c.next.Name() }
func (c *tagged) Close() error                { return c.next.Close() }
func (c *tagged) CountTokens(text string) int { return c.next.CountTokens(text) }
func (c *tagged) TokenCapacity() int          { return c.next.TokenCapacity() }

func (c *tagged) GenerateText(ctx context.Context, prompt string, temperature float64) (string, error) {
	*c.order = append(*c.order, c.name)
	return c.next.GenerateText(ctx, prompt, temperature)
}
