package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountTokens(t *testing.T) {
	counter, err := NewTokenCounter()
	require.NoError(t, err)

	tests := []struct {
		text      string
		minTokens int
		maxTokens int
	}{
		{"", 0, 0},
		{"hello", 1, 1},
		{"Hello, world!", 3, 5},
		{"func main() { fmt.Println(\"hi\") }", 8, 16},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := counter.CountTokens(tt.text)
			assert.GreaterOrEqual(t, got, tt.minTokens)
			assert.LessOrEqual(t, got, tt.maxTokens)
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	counter, err := DefaultTokenCounter()
	require.NoError(t, err)

	text := "# File: watched_folder/app.py\n\nprint('hello')\n"
	ids, err := counter.Encode(text)
	require.NoError(t, err)
	assert.Len(t, ids, counter.CountTokens(text))

	decoded, err := counter.Decode(ids)
	require.NoError(t, err)
	assert.Equal(t, text, decoded)
}

func TestNilCounterFallsBack(t *testing.T) {
	var counter *TokenCounter
	assert.Equal(t, 2, counter.CountTokens("12345678"))
}

func TestTruncateToTokenLimit(t *testing.T) {
	counter, err := NewTokenCounter()
	require.NoError(t, err)

	short := "short text"
	assert.Equal(t, short, counter.TruncateToTokenLimit(short, 100))

	long := strings.Repeat("token ", 500)
	truncated := counter.TruncateToTokenLimit(long, 50)
	assert.Less(t, len(truncated), len(long))
	assert.True(t, strings.HasSuffix(truncated, "..."))
}

func TestCountTokensSimple(t *testing.T) {
	assert.Positive(t, CountTokensSimple("some words to count"))
}
