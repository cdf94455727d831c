package circuit

import (
	"context"

	"codeqa/pkg/agent/llm"
)

// Middleware rejects requests while the breaker is open, so a failing
// backend gets time to recover instead of absorbing every query.
func Middleware(breaker Breaker) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				if !breaker.Allow() {
					return llm.CompletionResponse{}, &Error{State: breaker.GetState()}
				}
				resp, err := next.Complete(ctx, req)
				breaker.Record(err == nil)
				return resp, err //nolint:wrapcheck // pass through unchanged
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				if !breaker.Allow() {
					return nil, &Error{State: breaker.GetState()}
				}
				// Only stream establishment counts towards breaker state.
				ch, err := next.Stream(ctx, req)
				breaker.Record(err == nil)
				return ch, err //nolint:wrapcheck // pass through unchanged
			},
			next.GetModelName,
		)
	}
}
