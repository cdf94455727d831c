// Package timeout bounds every LLM call with a deadline.
package timeout

import (
	"context"
	"time"

	"codeqa/pkg/agent/llm"
)

// Middleware gives each request its own deadline of d. For streams the
// deadline covers the whole stream and is released once it drains.
func Middleware(d time.Duration) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, d)
				defer cancel()
				return next.Complete(timeoutCtx, req)
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, d)
				src, err := next.Stream(timeoutCtx, req)
				if err != nil {
					cancel()
					return nil, err
				}
				out := make(chan llm.StreamChunk)
				go func() {
					defer cancel()
					defer close(out)
					for chunk := range src {
						out <- chunk
					}
				}()
				return out, nil
			},
			next.GetModelName,
		)
	}
}
