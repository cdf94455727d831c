// Package limiter paces LLM calls with a per-model token bucket and a daily token budget.
package limiter

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// pollInterval is how often Wait retries a reservation.
const pollInterval = 250 * time.Millisecond

var (
	// ErrRateLimit is returned when a request exceeds the per-minute bucket.
	ErrRateLimit = fmt.Errorf("rate limit exceeded")
	// ErrBudgetExceeded is returned when the daily token budget is spent.
	ErrBudgetExceeded = fmt.Errorf("daily token budget exceeded")
)

// Limits configures one model. Zero values disable the limit.
type Limits struct {
	TokensPerMinute int
	TokensPerDay    int
}

// Limiter manages rate limits across models. Models without limits are unlimited.
type Limiter struct {
	models map[string]*ModelLimiter
	now    func() time.Time
	mu     sync.RWMutex
}

// ModelLimiter enforces token limits for a specific model.
//
//nolint:govet // Struct layout optimization not critical for this use case
type ModelLimiter struct {
	lastRefill         time.Time
	day                time.Time
	mu                 sync.Mutex
	name               string
	maxTokensPerMinute int
	maxTokensPerDay    int
	currentTokens      int
	usedToday          int
}

// NewLimiter creates a limiter with the given per-model limits.
func NewLimiter(limits map[string]Limits) *Limiter {
	return newLimiter(limits, time.Now)
}

func newLimiter(limits map[string]Limits, now func() time.Time) *Limiter {
	l := &Limiter{
		models: make(map[string]*ModelLimiter, len(limits)),
		now:    now,
	}
	start := now()
	for name, lim := range limits {
		l.models[name] = &ModelLimiter{
			name:               name,
			maxTokensPerMinute: lim.TokensPerMinute,
			maxTokensPerDay:    lim.TokensPerDay,
			currentTokens:      lim.TokensPerMinute, // Start with full bucket
			lastRefill:         start,
			day:                startOfDay(start),
		}
	}
	return l
}

func (l *Limiter) model(name string) *ModelLimiter {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.models[name]
}

// Reserve takes tokens for model without waiting.
func (l *Limiter) Reserve(model string, tokens int) error {
	ml := l.model(model)
	if ml == nil {
		return nil
	}
	return ml.reserve(l.now(), tokens)
}

// Wait reserves tokens for model, waiting for the bucket to refill. It fails
// fast when the request can never fit or the daily budget is spent.
func (l *Limiter) Wait(ctx context.Context, model string, tokens int) error {
	ml := l.model(model)
	if ml == nil {
		return nil
	}
	if ml.maxTokensPerMinute > 0 && tokens > ml.maxTokensPerMinute {
		return fmt.Errorf("%w: request needs %d tokens, %s allows %d per minute",
			ErrRateLimit, tokens, model, ml.maxTokensPerMinute)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		err := ml.reserve(l.now(), tokens)
		if err == nil || err == ErrBudgetExceeded { //nolint:errorlint // sentinel returned unwrapped
			return err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s rate limit: %w", model, ctx.Err())
		case <-ticker.C:
		}
	}
}

// GetStatus returns the tokens left in the bucket and the tokens used today.
func (l *Limiter) GetStatus(model string) (tokens, usedToday int, err error) {
	ml := l.model(model)
	if ml == nil {
		return 0, 0, fmt.Errorf("model %s not configured", model)
	}
	ml.mu.Lock()
	defer ml.mu.Unlock()
	ml.refill(l.now())
	return ml.currentTokens, ml.usedToday, nil
}

// ResetDaily clears the daily budget and refills every bucket.
func (l *Limiter) ResetDaily() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for _, ml := range l.models {
		ml.mu.Lock()
		ml.usedToday = 0
		ml.currentTokens = ml.maxTokensPerMinute
		ml.lastRefill = now
		ml.day = startOfDay(now)
		ml.mu.Unlock()
	}
}

func (ml *ModelLimiter) reserve(now time.Time, tokens int) error {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	ml.refill(now)

	if ml.maxTokensPerDay > 0 && ml.usedToday+tokens > ml.maxTokensPerDay {
		return ErrBudgetExceeded
	}
	if ml.maxTokensPerMinute > 0 {
		if ml.currentTokens < tokens {
			return ErrRateLimit
		}
		ml.currentTokens -= tokens
	}
	ml.usedToday += tokens
	return nil
}

// refill adds a full minute of tokens per elapsed minute and rolls the
// daily budget over at local midnight.
func (ml *ModelLimiter) refill(now time.Time) {
	if today := startOfDay(now); today.After(ml.day) {
		ml.day = today
		ml.usedToday = 0
	}

	elapsed := now.Sub(ml.lastRefill)
	if elapsed < time.Minute {
		return
	}
	minutes := int(elapsed / time.Minute)
	ml.currentTokens += minutes * ml.maxTokensPerMinute
	if ml.currentTokens > ml.maxTokensPerMinute {
		ml.currentTokens = ml.maxTokensPerMinute
	}
	// Update refill time to the last complete minute.
	ml.lastRefill = ml.lastRefill.Add(time.Duration(minutes) * time.Minute)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
