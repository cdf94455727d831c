// Package utils provides tiktoken-based token counting utilities.
package utils

import (
	"fmt"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter counts and slices text by GPT-4 (cl100k) tokens. Gemini,
// Claude and local models tokenize differently; cl100k is a close enough
// proxy for chunk sizing and usage estimates.
type TokenCounter struct {
	codec tokenizer.Codec
}

//nolint:gochecknoglobals // codec construction loads the BPE ranks once
var (
	defaultCounter     *TokenCounter
	defaultCounterErr  error
	defaultCounterOnce sync.Once
)

// NewTokenCounter creates a token counter. All models share the GPT-4 encoding.
func NewTokenCounter() (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec: %w", err)
	}
	return &TokenCounter{codec: codec}, nil
}

// DefaultTokenCounter returns a process-wide counter, or an error if the
// codec could not be loaded.
func DefaultTokenCounter() (*TokenCounter, error) {
	defaultCounterOnce.Do(func() {
		defaultCounter, defaultCounterErr = NewTokenCounter()
	})
	return defaultCounter, defaultCounterErr
}

// CountTokens returns the number of tokens in text, falling back to the
// 4-characters-per-token estimate.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc == nil || tc.codec == nil {
		return len(text) / 4
	}
	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// Encode returns the token IDs of text.
func (tc *TokenCounter) Encode(text string) ([]uint, error) {
	ids, _, err := tc.codec.Encode(text)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return ids, nil
}

// Decode turns token IDs back into text.
func (tc *TokenCounter) Decode(ids []uint) (string, error) {
	text, err := tc.codec.Decode(ids)
	if err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	return text, nil
}

// CountTokensSimple counts tokens with the shared counter.
func CountTokensSimple(text string) int {
	counter, err := DefaultTokenCounter()
	if err != nil {
		return len(text) / 4
	}
	return counter.CountTokens(text)
}

// TruncateToTokenLimit truncates text proportionally so it fits within limit.
// Truncation is by characters, not exact token boundaries.
func (tc *TokenCounter) TruncateToTokenLimit(text string, limit int) string {
	current := tc.CountTokens(text)
	if current <= limit {
		return text
	}
	ratio := float64(limit) / float64(current)
	charLimit := int(float64(len(text)) * ratio * 0.9)
	if charLimit >= len(text) {
		return text
	}
	return text[:charLimit] + "..."
}
