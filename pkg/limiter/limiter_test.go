package limiter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t  time.Time
	mu sync.Mutex
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestLimiter(limits map[string]Limits) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	return newLimiter(limits, clock.now), clock
}

func TestReserveDrainsAndRefillsBucket(t *testing.T) {
	l, clock := newTestLimiter(map[string]Limits{"gemini-2.5-flash": {TokensPerMinute: 1000}})

	require.NoError(t, l.Reserve("gemini-2.5-flash", 600))
	assert.ErrorIs(t, l.Reserve("gemini-2.5-flash", 600), ErrRateLimit)

	tokens, used, err := l.GetStatus("gemini-2.5-flash")
	require.NoError(t, err)
	assert.Equal(t, 400, tokens)
	assert.Equal(t, 600, used)

	clock.advance(61 * time.Second)
	require.NoError(t, l.Reserve("gemini-2.5-flash", 600))

	clock.advance(10 * time.Minute)
	tokens, _, err = l.GetStatus("gemini-2.5-flash")
	require.NoError(t, err)
	assert.Equal(t, 1000, tokens, "refill is capped at one minute of tokens")
}

func TestUnknownModelIsUnlimited(t *testing.T) {
	l, _ := newTestLimiter(nil)
	assert.NoError(t, l.Reserve("llama3.1", 1_000_000))
	assert.NoError(t, l.Wait(context.Background(), "llama3.1", 1_000_000))

	_, _, err := l.GetStatus("llama3.1")
	assert.Error(t, err)
}

func TestDailyBudget(t *testing.T) {
	l, clock := newTestLimiter(map[string]Limits{"gpt-4o": {TokensPerDay: 1000}})

	require.NoError(t, l.Reserve("gpt-4o", 900))
	assert.ErrorIs(t, l.Reserve("gpt-4o", 200), ErrBudgetExceeded)
	assert.ErrorIs(t, l.Wait(context.Background(), "gpt-4o", 200), ErrBudgetExceeded, "budget errors do not wait")

	clock.advance(14 * time.Hour)
	assert.NoError(t, l.Reserve("gpt-4o", 200), "budget rolls over at midnight")

	require.NoError(t, l.Reserve("gpt-4o", 800))
	l.ResetDaily()
	assert.NoError(t, l.Reserve("gpt-4o", 1000))
}

func TestWaitRejectsOversizedRequest(t *testing.T) {
	l, _ := newTestLimiter(map[string]Limits{"claude-sonnet-4-5": {TokensPerMinute: 100}})
	err := l.Wait(context.Background(), "claude-sonnet-4-5", 101)
	assert.ErrorIs(t, err, ErrRateLimit)
}

func TestWaitBlocksUntilRefill(t *testing.T) {
	l, clock := newTestLimiter(map[string]Limits{"m": {TokensPerMinute: 100}})
	require.NoError(t, l.Reserve("m", 100))

	done := make(chan error, 1)
	go func() { done <- l.Wait(context.Background(), "m", 50) }()

	select {
	case err := <-done:
		t.Fatalf("Wait returned before refill: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	clock.advance(time.Minute)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after refill")
	}
}

func TestWaitHonorsContext(t *testing.T) {
	l, _ := newTestLimiter(map[string]Limits{"m": {TokensPerMinute: 100}})
	require.NoError(t, l.Reserve("m", 100))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Wait(ctx, "m", 10), context.DeadlineExceeded)
}
