package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeqa/pkg/agent/llm"
	"codeqa/pkg/agent/llmerrors"
	"codeqa/pkg/agent/middleware/resilience/circuit"
)

func stubClient(resp llm.CompletionResponse, err error) llm.LLMClient {
	return llm.WrapClient(
		func(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
			return resp, err
		},
		func(context.Context, llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
			if err != nil {
				return nil, err
			}
			ch := make(chan llm.StreamChunk, 1)
			ch <- llm.StreamChunk{Content: resp.Content, Done: true}
			close(ch)
			return ch, nil
		},
		func() string { return "test-model" },
	)
}

func TestMiddlewareRecordsProviderUsage(t *testing.T) {
	reg := prometheus.NewRegistry()
	prom := NewPrometheusRecorder(reg)
	internal := NewInternalRecorder()

	client := Middleware(Multi(prom, internal), nil, nil)(stubClient(llm.CompletionResponse{
		Content: "answer",
		Usage:   llm.Usage{PromptTokens: 120, CompletionTokens: 30},
	}, nil))

	resp, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("q")}))
	require.NoError(t, err)
	assert.Equal(t, "answer", resp.Content)

	assert.InDelta(t, 1, testutil.ToFloat64(prom.requestsTotal.WithLabelValues("test-model", "success", "")), 0)
	assert.InDelta(t, 120, testutil.ToFloat64(prom.tokensTotal.WithLabelValues("test-model", "prompt")), 0)
	assert.InDelta(t, 30, testutil.ToFloat64(prom.tokensTotal.WithLabelValues("test-model", "completion")), 0)

	usage := internal.GetModelUsage("test-model")
	require.NotNil(t, usage)
	assert.Equal(t, int64(150), usage.TotalTokens)
	assert.Equal(t, int64(1), usage.RequestCount)
}

func TestMiddlewareRecordsFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	prom := NewPrometheusRecorder(reg)
	internal := NewInternalRecorder()

	failure := llmerrors.NewError(llmerrors.ErrorTypeAuth, "bad key")
	client := Middleware(Multi(prom, internal, nil), nil, nil)(stubClient(llm.CompletionResponse{}, failure))

	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	require.ErrorIs(t, err, failure)

	assert.InDelta(t, 1, testutil.ToFloat64(prom.requestsTotal.WithLabelValues("test-model", "error", "auth")), 0)
	usage := internal.GetModelUsage("test-model")
	require.NotNil(t, usage)
	assert.Equal(t, int64(1), usage.ErrorCount)
	assert.Zero(t, usage.TotalTokens)
}

func TestMiddlewareStream(t *testing.T) {
	internal := NewInternalRecorder()
	client := Middleware(internal, nil, nil)(stubClient(llm.CompletionResponse{Content: "streamed"}, nil))

	ch, err := client.Stream(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)
	chunk := <-ch
	assert.Equal(t, "streamed", chunk.Content)
	assert.Equal(t, int64(1), internal.GetModelUsage("test-model").RequestCount)
}

func TestDefaultUsageExtractorFallsBackToTokenizer(t *testing.T) {
	req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("How does the retriever pick files?")})
	prompt, completion := DefaultUsageExtractor(req, llm.CompletionResponse{Content: "It matches the path suffix."})
	assert.Positive(t, prompt)
	assert.Positive(t, completion)

	prompt, completion = DefaultUsageExtractor(req, llm.CompletionResponse{Usage: llm.Usage{PromptTokens: 7, CompletionTokens: 3}})
	assert.Equal(t, 7, prompt)
	assert.Equal(t, 3, completion)
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&circuit.Error{State: circuit.Open}, "circuit_breaker"},
		{fmt.Errorf("call: %w", context.Canceled), "canceled"},
		{context.DeadlineExceeded, "timeout"},
		{llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "slow"), "rate_limit"},
		{errors.New("plain"), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorType(tt.err))
	}
}

func TestInternalRecorderSnapshotOrder(t *testing.T) {
	r := NewInternalRecorder()
	r.ObserveRequest("zeta", 1, 1, true, "", time.Millisecond)
	r.ObserveRequest("alpha", 2, 2, true, "", time.Millisecond)

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "alpha", snap[0].Model)
	assert.Nil(t, r.GetModelUsage("missing"))

	r.Reset()
	assert.Empty(t, r.Snapshot())
}
