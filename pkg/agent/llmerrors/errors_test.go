package llmerrors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeForStatus(t *testing.T) {
	tests := map[int]ErrorType{
		429: ErrorTypeRateLimit,
		401: ErrorTypeAuth,
		403: ErrorTypeAuth,
		400: ErrorTypeBadPrompt,
		404: ErrorTypeBadPrompt,
		500: ErrorTypeTransient,
		503: ErrorTypeTransient,
		408: ErrorTypeTransient,
		302: ErrorTypeUnknown,
	}
	for status, want := range tests {
		assert.Equal(t, want, TypeForStatus(status), "status %d", status)
	}
}

func TestTypeForMessage(t *testing.T) {
	tests := []struct {
		msg  string
		want ErrorType
	}{
		{"Error 429: RESOURCE_EXHAUSTED", ErrorTypeRateLimit},
		{"invalid API key provided", ErrorTypeAuth},
		{"prompt is too long for this model", ErrorTypeBadPrompt},
		{"dial tcp: connection refused", ErrorTypeTransient},
		{"unexpected EOF", ErrorTypeTransient},
		{"something odd happened", ErrorTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, TypeForMessage(tt.msg))
		})
	}
}

func TestClassify(t *testing.T) {
	require.NoError(t, Classify(nil, 0, "google"))

	err := Classify(errors.New("boom"), 503, "openai")
	assert.True(t, Is(err, ErrorTypeTransient))
	assert.Contains(t, err.Error(), "openai: boom")

	already := NewError(ErrorTypeAuth, "bad key")
	assert.Same(t, already, Classify(already, 500, "anthropic").(*Error))

	timeout := Classify(fmt.Errorf("call: %w", context.DeadlineExceeded), 0, "ollama")
	assert.Equal(t, ErrorTypeTransient, TypeOf(timeout))
	assert.ErrorIs(t, timeout, context.DeadlineExceeded)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewError(ErrorTypeRateLimit, "slow down")))
	assert.True(t, IsRetryable(NewError(ErrorTypeEmptyResponse, "empty")))
	assert.True(t, IsRetryable(errors.New("unclassified")))
	assert.False(t, IsRetryable(NewError(ErrorTypeAuth, "bad key")))
	assert.False(t, IsRetryable(NewError(ErrorTypeBadPrompt, "too long")))
	assert.False(t, IsRetryable(NewServiceUnavailableError(errors.New("down"), 3)))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(nil))
}

func TestTypeOfUnwrapsChains(t *testing.T) {
	inner := NewErrorWithStatus(ErrorTypeRateLimit, 429, "quota")
	wrapped := fmt.Errorf("generate: %w", inner)

	assert.Equal(t, ErrorTypeRateLimit, TypeOf(wrapped))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(errors.New("plain")))
	assert.Equal(t, "rate_limit", TypeOf(wrapped).String())
}
