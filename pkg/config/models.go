package config

import "strings"

// Supported LLM providers.
const (
	ProviderGoogle    = "google"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// Model name constants.
const (
	ModelGemini25Flash    = "gemini-2.5-flash"
	ModelGemini25Pro      = "gemini-2.5-pro"
	ModelGPT5             = "gpt-5"
	ModelGPT5Mini         = "gpt-5-mini"
	ModelClaudeSonnet4    = "claude-sonnet-4-20250514"
	ModelClaudeHaiku35    = "claude-3-5-haiku-20241022"
	ModelOllamaLlama31    = "llama3.1"
	DefaultEmbeddingModel = "nomic-embed-text"
)

// ModelInfo describes a model the answer pipeline knows how to drive.
type ModelInfo struct {
	Provider        string
	MaxOutputTokens int
}

// KnownModels maps model names to their provider and output limit.
//
//nolint:gochecknoglobals // static lookup table
var KnownModels = map[string]ModelInfo{
	ModelGemini25Flash: {Provider: ProviderGoogle, MaxOutputTokens: 65536},
	ModelGemini25Pro:   {Provider: ProviderGoogle, MaxOutputTokens: 65536},
	ModelGPT5:          {Provider: ProviderOpenAI, MaxOutputTokens: 128000},
	ModelGPT5Mini:      {Provider: ProviderOpenAI, MaxOutputTokens: 128000},
	ModelClaudeSonnet4: {Provider: ProviderAnthropic, MaxOutputTokens: 64000},
	ModelClaudeHaiku35: {Provider: ProviderAnthropic, MaxOutputTokens: 8192},
	ModelOllamaLlama31: {Provider: ProviderOllama, MaxOutputTokens: 8192},
}

// DefaultModelForProvider returns the model used when only a provider is configured.
func DefaultModelForProvider(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return ModelGPT5Mini
	case ProviderAnthropic:
		return ModelClaudeSonnet4
	case ProviderOllama:
		return ModelOllamaLlama31
	default:
		return ModelGemini25Flash
	}
}

// ProviderForModel infers a provider from a model name. Unknown names
// fall back to prefix matching, then to Ollama for local model tags.
func ProviderForModel(model string) string {
	if info, ok := KnownModels[model]; ok {
		return info.Provider
	}
	switch {
	case strings.HasPrefix(model, "gemini"):
		return ProviderGoogle
	case strings.HasPrefix(model, "gpt"), strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "o4"):
		return ProviderOpenAI
	case strings.HasPrefix(model, "claude"):
		return ProviderAnthropic
	default:
		return ProviderOllama
	}
}

// APIKeyNames lists the secret names consulted for a provider, in order.
func APIKeyNames(provider string) []string {
	switch provider {
	case ProviderGoogle:
		return []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}
	case ProviderOpenAI:
		return []string{"OPENAI_API_KEY"}
	case ProviderAnthropic:
		return []string{"ANTHROPIC_API_KEY"}
	default:
		return nil
	}
}
