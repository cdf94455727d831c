package retry

import (
	"context"
	"fmt"
	"time"

	"codeqa/pkg/agent/llm"
	"codeqa/pkg/agent/llmerrors"
	"codeqa/pkg/logx"
)

// Middleware wraps an LLM client with retry logic. Retryable failures that
// survive every attempt come back as a ServiceUnavailable error.
func Middleware(policy *Policy) llm.Middleware {
	logger := logx.NewLogger("llm-retry")
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				var resp llm.CompletionResponse
				err := run(ctx, policy, logger, next.GetModelName(), func(ctx context.Context) error {
					var err error
					resp, err = next.Complete(ctx, req)
					return err
				})
				return resp, err
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				var ch <-chan llm.StreamChunk
				err := run(ctx, policy, logger, next.GetModelName(), func(ctx context.Context) error {
					var err error
					ch, err = next.Stream(ctx, req)
					return err
				})
				return ch, err
			},
			next.GetModelName,
		)
	}
}

func run(ctx context.Context, policy *Policy, logger *logx.Logger, model string, call func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= policy.Config.MaxAttempts; attempt++ {
		if delay := policy.CalculateDelay(attempt); delay > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		lastErr = call(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil || !policy.ShouldRetry(lastErr) {
			return lastErr
		}
		if attempt < policy.Config.MaxAttempts {
			logger.Warn("%s attempt %d/%d failed (%s), retrying: %v",
				model, attempt, policy.Config.MaxAttempts, llmerrors.TypeOf(lastErr), lastErr)
		}
	}
	return llmerrors.NewServiceUnavailableError(lastErr, policy.Config.MaxAttempts)
}
