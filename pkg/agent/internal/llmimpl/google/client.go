// Package google provides the Gemini implementation of llm.LLMClient.
package google

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"google.golang.org/genai"

	"codeqa/pkg/agent/llm"
	"codeqa/pkg/agent/llmerrors"
)

const providerName = "google"

// GeminiClient wraps the Google GenAI client to implement llm.LLMClient.
type GeminiClient struct {
	client *genai.Client
	apiKey string
	model  string
	once   sync.Once
	err    error
}

// NewGeminiClientWithModel creates a Gemini client. The SDK client needs a
// context to construct, so it is created on first use.
func NewGeminiClientWithModel(apiKey, model string) *GeminiClient {
	return &GeminiClient{
		apiKey: apiKey,
		model:  model,
	}
}

func (g *GeminiClient) ensureClient(ctx context.Context) error {
	g.once.Do(func() {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			g.err = llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, "failed to create Gemini client")
			return
		}
		g.client = client
	})
	return g.err
}

// Complete implements llm.LLMClient.
//
//nolint:gocritic // CompletionRequest passed by value for interface consistency
func (g *GeminiClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if err := g.ensureClient(ctx); err != nil {
		return llm.CompletionResponse{}, err
	}

	contents, config, err := buildRequest(in)
	if err != nil {
		return llm.CompletionResponse{}, err
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if result == nil || len(result.Candidates) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from Gemini API")
	}

	return llm.CompletionResponse{
		Content:    result.Text(),
		StopReason: stopReason(result),
		Usage:      usage(result),
	}, nil
}

// Stream implements llm.LLMClient using the SDK's streaming iterator.
//
//nolint:gocritic // CompletionRequest passed by value for interface consistency
func (g *GeminiClient) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	if err := g.ensureClient(ctx); err != nil {
		return nil, err
	}
	contents, config, err := buildRequest(in)
	if err != nil {
		return nil, err
	}

	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		for chunk, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, config) {
			if err != nil {
				ch <- llm.StreamChunk{Error: classifyError(err)}
				return
			}
			select {
			case ch <- llm.StreamChunk{Content: chunk.Text()}:
			case <-ctx.Done():
				return
			}
		}
		ch <- llm.StreamChunk{Done: true}
	}()
	return ch, nil
}

// GetModelName returns the model name for this client.
func (g *GeminiClient) GetModelName() string {
	return g.model
}

//nolint:gocritic // CompletionRequest passed by value for interface consistency
func buildRequest(in llm.CompletionRequest) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	contents, systemInstruction, err := convertMessages(in.Messages)
	if err != nil {
		return nil, nil, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "message conversion failed")
	}

	temperature := in.Temperature
	//nolint:gosec // MaxTokens is validated by config
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(in.MaxTokens),
	}
	if systemInstruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		}
	}
	return contents, config, nil
}

// convertMessages folds system messages into a single system instruction and
// maps the rest onto Gemini roles.
func convertMessages(messages []llm.CompletionMessage) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("message list cannot be empty")
	}

	var systemInstruction string
	contents := make([]*genai.Content, 0, len(messages))
	for i := range messages {
		msg := &messages[i]
		var role string
		switch msg.Role {
		case llm.RoleSystem:
			if systemInstruction != "" {
				systemInstruction += "\n\n"
			}
			systemInstruction += msg.Content
			continue
		case llm.RoleUser:
			role = genai.RoleUser
		case llm.RoleAssistant:
			role = genai.RoleModel
		default:
			return nil, "", fmt.Errorf("unsupported message role: %s", msg.Role)
		}
		if msg.Content == "" {
			continue
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}
	if len(contents) == 0 {
		return nil, "", fmt.Errorf("no user content to send")
	}
	return contents, systemInstruction, nil
}

func stopReason(result *genai.GenerateContentResponse) string {
	if reason := result.Candidates[0].FinishReason; reason != "" {
		return string(reason)
	}
	return "end_turn"
}

func usage(result *genai.GenerateContentResponse) llm.Usage {
	if result.UsageMetadata == nil {
		return llm.Usage{}
	}
	return llm.Usage{
		PromptTokens:     int(result.UsageMetadata.PromptTokenCount),
		CompletionTokens: int(result.UsageMetadata.CandidatesTokenCount),
	}
}

func classifyError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return llmerrors.Classify(err, apiErr.Code, providerName)
	}
	return llmerrors.Classify(err, 0, providerName)
}
