package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeqa/pkg/agent/llm"
	"codeqa/pkg/agent/llmerrors"
)

func TestCompleteAgainstFakeServer(t *testing.T) {
	var got api.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":             "llama3.1",
			"message":           map[string]any{"role": "assistant", "content": "It loads files."},
			"done":              true,
			"done_reason":       "stop",
			"prompt_eval_count": 42,
			"eval_count":        7,
		})
	}))
	defer srv.Close()

	client := NewOllamaClientWithModel(srv.URL, "llama3.1")
	resp, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage("be terse"),
		llm.NewUserMessage("what does loader.go do?"),
	}))
	require.NoError(t, err)

	assert.Equal(t, "It loads files.", resp.Content)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, 42, resp.Usage.PromptTokens)
	assert.Equal(t, 7, resp.Usage.CompletionTokens)

	assert.Equal(t, "llama3.1", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	require.NotNil(t, got.Stream)
	assert.False(t, *got.Stream)
}

func TestCompleteClassifiesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model \"nope\" not found, try pulling it first"}`))
	}))
	defer srv.Close()

	_, err := NewOllamaClientWithModel(srv.URL, "nope").Complete(context.Background(),
		llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hi")}))
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeBadPrompt))
}

func TestConvertMessagesRejectsUnknownRole(t *testing.T) {
	_, err := convertMessages([]llm.CompletionMessage{{Role: "tool", Content: "x"}})
	assert.Error(t, err)

	_, err = convertMessages(nil)
	assert.Error(t, err)
}

func TestStopReason(t *testing.T) {
	assert.Equal(t, "incomplete", stopReason(&api.ChatResponse{}))
	assert.Equal(t, "end_turn", stopReason(&api.ChatResponse{Done: true}))
	assert.Equal(t, "max_tokens", stopReason(&api.ChatResponse{Done: true, DoneReason: "length"}))
}

func TestClassifyConnectionRefused(t *testing.T) {
	err := classifyError(errors.New("dial tcp 127.0.0.1:11434: connect: connection refused"))
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeTransient))
}
