// Package ollama provides the Ollama implementation of llm.LLMClient.
// Ollama is a local LLM runtime, so no API key is involved.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"codeqa/pkg/agent/llm"
	"codeqa/pkg/agent/llmerrors"
)

const (
	providerName = "ollama"

	// DefaultHost is used when the configured host cannot be parsed.
	DefaultHost = "http://localhost:11434"
)

// Client wraps the Ollama API client to implement llm.LLMClient.
type Client struct {
	client *api.Client
	model  string
}

// NewOllamaClientWithModel creates a client for model on hostURL.
func NewOllamaClientWithModel(hostURL, model string) *Client {
	return &Client{
		client: NewAPIClient(hostURL),
		model:  model,
	}
}

// NewAPIClient builds a raw Ollama API client, falling back to DefaultHost
// when hostURL is empty or invalid.
func NewAPIClient(hostURL string) *api.Client {
	parsedURL, err := url.Parse(hostURL)
	if hostURL == "" || err != nil {
		parsedURL, _ = url.Parse(DefaultHost)
	}
	return api.NewClient(parsedURL, http.DefaultClient)
}

// Complete implements llm.LLMClient.
//
//nolint:gocritic // CompletionRequest passed by value for interface consistency
func (o *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	req, err := o.buildRequest(in, false)
	if err != nil {
		return llm.CompletionResponse{}, err
	}

	var response api.ChatResponse
	err = o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if response.Message.Content == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from Ollama")
	}

	return llm.CompletionResponse{
		Content:    response.Message.Content,
		StopReason: stopReason(&response),
		Usage: llm.Usage{
			PromptTokens:     response.PromptEvalCount,
			CompletionTokens: response.EvalCount,
		},
	}, nil
}

// Stream implements llm.LLMClient with Ollama's native streaming.
//
//nolint:gocritic // CompletionRequest passed by value for interface consistency
func (o *Client) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	req, err := o.buildRequest(in, true)
	if err != nil {
		return nil, err
	}

	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			select {
			case ch <- llm.StreamChunk{Content: resp.Message.Content, Done: resp.Done}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			select {
			case ch <- llm.StreamChunk{Error: classifyError(err)}:
			case <-ctx.Done():
			}
		}
	}()
	return ch, nil
}

// GetModelName returns the model name for this client.
func (o *Client) GetModelName() string {
	return o.model
}

//nolint:gocritic // CompletionRequest passed by value for interface consistency
func (o *Client) buildRequest(in llm.CompletionRequest, stream bool) (*api.ChatRequest, error) {
	messages, err := convertMessages(in.Messages)
	if err != nil {
		return nil, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "message conversion failed")
	}
	return &api.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": in.Temperature,
			"num_predict": in.MaxTokens,
		},
	}, nil
}

func convertMessages(messages []llm.CompletionMessage) ([]api.Message, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("message list cannot be empty")
	}
	result := make([]api.Message, 0, len(messages))
	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case llm.RoleSystem, llm.RoleUser, llm.RoleAssistant:
		default:
			return nil, fmt.Errorf("unsupported message role: %s", msg.Role)
		}
		result = append(result, api.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return result, nil
}

// stopReason converts Ollama's done_reason to the shared stop reason vocabulary.
func stopReason(resp *api.ChatResponse) string {
	if !resp.Done {
		return "incomplete"
	}
	switch resp.DoneReason {
	case "stop", "":
		return "end_turn"
	case "length":
		return "max_tokens"
	default:
		return resp.DoneReason
	}
}

func classifyError(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return llmerrors.Classify(err, statusErr.StatusCode, providerName)
	}
	return llmerrors.Classify(err, 0, providerName)
}
