// Package openai provides the OpenAI implementation of llm.LLMClient using
// the official SDK and the Responses API.
package openai

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"codeqa/pkg/agent/llm"
	"codeqa/pkg/agent/llmerrors"
	"codeqa/pkg/config"
)

const providerName = "openai"

// OfficialClient wraps the official OpenAI Go client.
//
//nolint:govet // field alignment not critical
type OfficialClient struct {
	client openai.Client
	model  string
}

// NewOfficialClientWithModel creates an OpenAI client for model.
// Extra options are appended, which lets tests point it at a fake server.
func NewOfficialClientWithModel(apiKey, model string, opts ...option.RequestOption) *OfficialClient {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OfficialClient{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// Complete implements llm.LLMClient.
//
//nolint:gocritic // CompletionRequest passed by value for interface consistency
func (o *OfficialClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	resp, err := o.client.Responses.New(ctx, o.buildParams(in))
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if resp == nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from OpenAI Responses API")
	}

	content := resp.OutputText()
	if content == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "OpenAI response contained no text output")
	}
	return llm.CompletionResponse{
		Content:    content,
		StopReason: string(resp.Status),
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

// Stream implements llm.LLMClient, forwarding output text deltas.
//
//nolint:gocritic // CompletionRequest passed by value for interface consistency
func (o *OfficialClient) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	stream := o.client.Responses.NewStreaming(ctx, o.buildParams(in))

	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		defer func() { _ = stream.Close() }()
		for stream.Next() {
			event := stream.Current()
			if event.Type != "response.output_text.delta" {
				continue
			}
			select {
			case ch <- llm.StreamChunk{Content: event.Delta.OfString}:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil {
			ch <- llm.StreamChunk{Error: classifyError(err)}
			return
		}
		ch <- llm.StreamChunk{Done: true}
	}()
	return ch, nil
}

// GetModelName returns the model name for this client.
func (o *OfficialClient) GetModelName() string {
	return o.model
}

// buildParams maps system messages onto Instructions and flattens the rest
// into a single input string.
//
//nolint:gocritic // CompletionRequest passed by value for interface consistency
func (o *OfficialClient) buildParams(in llm.CompletionRequest) responses.ResponseNewParams {
	var instructions []string
	var input strings.Builder
	for i := range in.Messages {
		msg := &in.Messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			instructions = append(instructions, msg.Content)
		case llm.RoleAssistant:
			input.WriteString("Assistant: ")
			input.WriteString(msg.Content)
			input.WriteString("\n\n")
		default:
			input.WriteString(msg.Content)
		}
	}

	// Cap MaxTokens to the model's limit to avoid request rejections.
	maxTokens := in.MaxTokens
	if info, ok := config.KnownModels[o.model]; ok && info.MaxOutputTokens > 0 && maxTokens > info.MaxOutputTokens {
		maxTokens = info.MaxOutputTokens
	}

	params := responses.ResponseNewParams{
		Model:           o.model,
		MaxOutputTokens: openai.Int(int64(maxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(input.String())},
	}
	if len(instructions) > 0 {
		params.Instructions = openai.String(strings.Join(instructions, "\n\n"))
	}
	// Reasoning models reject temperature.
	if !strings.HasPrefix(o.model, "gpt-5") && !strings.HasPrefix(o.model, "o") {
		params.Temperature = openai.Float(float64(in.Temperature))
	}
	return params
}

func classifyError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return llmerrors.Classify(err, apiErr.StatusCode, providerName)
	}
	return llmerrors.Classify(err, 0, providerName)
}
