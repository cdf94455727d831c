package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeqa/pkg/agent/llm"
	"codeqa/pkg/agent/llmerrors"
	"codeqa/pkg/agent/middleware/resilience/circuit"
)

type scriptedClient struct {
	errs  []error
	calls int
}

func (s *scriptedClient) Complete(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
	s.calls++
	if s.calls <= len(s.errs) && s.errs[s.calls-1] != nil {
		return llm.CompletionResponse{}, s.errs[s.calls-1]
	}
	return llm.CompletionResponse{Content: "ok"}, nil
}

func (s *scriptedClient) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	return llm.SingleChunkStream(ctx, s, in)
}

func (s *scriptedClient) GetModelName() string { return "scripted" }

func fastPolicy(attempts int) *Policy {
	return NewPolicy(Config{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffFactor: 2}, nil)
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", fmt.Errorf("call: %w", context.Canceled), false},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"open circuit", &circuit.Error{State: circuit.Open}, false},
		{"auth", llmerrors.NewError(llmerrors.ErrorTypeAuth, "bad key"), false},
		{"bad prompt", llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "too long"), false},
		{"rate limit", llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "slow"), true},
		{"transient", llmerrors.NewError(llmerrors.ErrorTypeTransient, "503"), true},
		{"unclassified", errors.New("weird"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldRetry(tt.err))
		})
	}
}

func TestCalculateDelay(t *testing.T) {
	p := NewPolicy(Config{MaxAttempts: 5, InitialDelay: 100 * time.Millisecond, MaxDelay: 250 * time.Millisecond, BackoffFactor: 2}, nil)

	assert.Equal(t, time.Duration(0), p.CalculateDelay(1))
	assert.Equal(t, 100*time.Millisecond, p.CalculateDelay(2))
	assert.Equal(t, 200*time.Millisecond, p.CalculateDelay(3))
	assert.Equal(t, 250*time.Millisecond, p.CalculateDelay(4), "capped at MaxDelay")

	p.Config.Jitter = true
	d := p.CalculateDelay(2)
	assert.GreaterOrEqual(t, d, 90*time.Millisecond)
	assert.LessOrEqual(t, d, 110*time.Millisecond)
}

func TestMiddlewareRecoversFromTransientFailures(t *testing.T) {
	base := &scriptedClient{errs: []error{
		llmerrors.NewError(llmerrors.ErrorTypeTransient, "503"),
		llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "429"),
	}}
	client := llm.Chain(base, Middleware(fastPolicy(3)))

	resp, err := client.Complete(context.Background(), llm.NewCompletionRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 3, base.calls)
}

func TestMiddlewareStopsOnPermanentError(t *testing.T) {
	base := &scriptedClient{errs: []error{llmerrors.NewError(llmerrors.ErrorTypeAuth, "bad key")}}
	client := llm.Chain(base, Middleware(fastPolicy(3)))

	_, err := client.Complete(context.Background(), llm.NewCompletionRequest(nil))
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeAuth))
	assert.Equal(t, 1, base.calls)
}

func TestMiddlewareExhaustionBecomesServiceUnavailable(t *testing.T) {
	transient := llmerrors.NewError(llmerrors.ErrorTypeTransient, "503")
	base := &scriptedClient{errs: []error{transient, transient}}
	client := llm.Chain(base, Middleware(fastPolicy(2)))

	_, err := client.Complete(context.Background(), llm.NewCompletionRequest(nil))
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeServiceUnavailable))
	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 2, base.calls)
}

func TestMiddlewareHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	base := &scriptedClient{errs: []error{llmerrors.NewError(llmerrors.ErrorTypeTransient, "503")}}
	client := llm.Chain(base, Middleware(fastPolicy(5)))

	_, err := client.Complete(ctx, llm.NewCompletionRequest(nil))
	require.Error(t, err)
	assert.Equal(t, 1, base.calls)
}
