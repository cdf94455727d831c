package llm

import (
	"context"
	"strings"

	"codeqa/pkg/logx"
)

// ErrorPrefix starts every diagnostic string a Generator returns in place of an error.
const ErrorPrefix = "Error: "

// TextGenerator produces text for a prompt. Implementations never fail:
// backend errors come back as a diagnostic string starting with ErrorPrefix.
type TextGenerator interface {
	Generate(ctx context.Context, prompt, systemInstruction string) string
}

// GeneratorOptions tunes the requests a Generator sends.
type GeneratorOptions struct {
	MaxTokens   int
	Temperature float32
}

// Generator adapts an LLMClient to TextGenerator.
type Generator struct {
	client LLMClient
	opts   GeneratorOptions
	logger *logx.Logger
}

// NewGenerator wraps client. Zero options fall back to request defaults.
func NewGenerator(client LLMClient, opts GeneratorOptions) *Generator {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.Temperature < 0 {
		opts.Temperature = TemperatureDefault
	}
	return &Generator{
		client: client,
		opts:   opts,
		logger: logx.NewLogger("llm"),
	}
}

// Generate sends one completion request and returns its text.
func (g *Generator) Generate(ctx context.Context, prompt, systemInstruction string) string {
	messages := make([]CompletionMessage, 0, 2)
	if strings.TrimSpace(systemInstruction) != "" {
		messages = append(messages, NewSystemMessage(systemInstruction))
	}
	messages = append(messages, NewUserMessage(prompt))

	req := NewCompletionRequest(messages)
	req.MaxTokens = g.opts.MaxTokens
	req.Temperature = g.opts.Temperature

	resp, err := g.client.Complete(ctx, req)
	if err != nil {
		g.logger.Error("generation with %s failed: %v", g.client.GetModelName(), err)
		return ErrorPrefix + err.Error()
	}
	return resp.Content
}

// IsDiagnostic reports whether text is a degraded Generate result.
func IsDiagnostic(text string) bool {
	return strings.HasPrefix(text, ErrorPrefix)
}
