// Package ratelimit paces LLM requests against per-model token limits.
package ratelimit

import (
	"context"
	"errors"
	"strings"

	"codeqa/pkg/agent/llm"
	"codeqa/pkg/agent/llmerrors"
	"codeqa/pkg/limiter"
	"codeqa/pkg/utils"
)

// TokenEstimator estimates the tokens a request will consume.
type TokenEstimator func(req llm.CompletionRequest) int

// EstimateTokens counts the prompt with the simple tokenizer estimate and
// adds the full output allowance.
func EstimateTokens(req llm.CompletionRequest) int {
	var prompt strings.Builder
	for i := range req.Messages {
		prompt.WriteString(req.Messages[i].Content)
		prompt.WriteString("\n")
	}
	return utils.CountTokensSimple(prompt.String()) + req.MaxTokens
}

// Middleware waits for l to admit each request before passing it on.
// Requests that can never be admitted fail as non-retryable.
func Middleware(l *limiter.Limiter, estimator TokenEstimator) llm.Middleware {
	if estimator == nil {
		estimator = EstimateTokens
	}

	return func(next llm.LLMClient) llm.LLMClient {
		acquire := func(ctx context.Context, req llm.CompletionRequest) error {
			err := l.Wait(ctx, next.GetModelName(), estimator(req))
			switch {
			case err == nil:
				return nil
			case errors.Is(err, limiter.ErrRateLimit), errors.Is(err, limiter.ErrBudgetExceeded):
				return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, err.Error())
			default:
				return err //nolint:wrapcheck // context errors pass through unchanged
			}
		}

		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				if err := acquire(ctx, req); err != nil {
					return llm.CompletionResponse{}, err
				}
				return next.Complete(ctx, req)
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				if err := acquire(ctx, req); err != nil {
					return nil, err
				}
				return next.Stream(ctx, req)
			},
			next.GetModelName,
		)
	}
}
