package agent

import (
	"fmt"
	"time"

	"codeqa/pkg/agent/internal/llmimpl/anthropic"
	"codeqa/pkg/agent/internal/llmimpl/google"
	"codeqa/pkg/agent/internal/llmimpl/ollama"
	"codeqa/pkg/agent/internal/llmimpl/openai"
	"codeqa/pkg/agent/llm"
	"codeqa/pkg/agent/middleware/metrics"
	"codeqa/pkg/agent/middleware/resilience/circuit"
	"codeqa/pkg/agent/middleware/resilience/ratelimit"
	"codeqa/pkg/agent/middleware/resilience/retry"
	"codeqa/pkg/agent/middleware/resilience/timeout"
	"codeqa/pkg/config"
	"codeqa/pkg/limiter"
	"codeqa/pkg/logx"
)

// NewRawClient creates the provider client for cfg without middleware.
func NewRawClient(cfg *config.Config) (llm.LLMClient, error) {
	apiKey, err := cfg.APIKey()
	if err != nil {
		return nil, err //nolint:wrapcheck // already names the provider
	}

	clientCfg := llm.ClientConfig{
		APIKey:      apiKey,
		ModelName:   cfg.LLM.Model,
		BaseURL:     cfg.LLM.OllamaHost,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	}
	if err := clientCfg.Validate(cfg.LLM.Provider != config.ProviderOllama); err != nil {
		return nil, fmt.Errorf("invalid %s client config: %w", cfg.LLM.Provider, err)
	}

	switch cfg.LLM.Provider {
	case config.ProviderGoogle:
		return google.NewGeminiClientWithModel(apiKey, cfg.LLM.Model), nil
	case config.ProviderOpenAI:
		return openai.NewOfficialClientWithModel(apiKey, cfg.LLM.Model), nil
	case config.ProviderAnthropic:
		return anthropic.NewClaudeClientWithModel(apiKey, cfg.LLM.Model), nil
	case config.ProviderOllama:
		return ollama.NewOllamaClientWithModel(cfg.LLM.OllamaHost, cfg.LLM.Model), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.LLM.Provider)
	}
}

// NewLLMClient wraps raw in the middleware chain:
//
//	Metrics -> CircuitBreaker -> Retry -> RateLimit -> Timeout -> raw
//
// Metrics sits outermost so every rejection and exhausted retry is counted.
// RateLimit is only added when a token limit is configured.
func NewLLMClient(cfg *config.Config, raw llm.LLMClient, recorder metrics.Recorder) llm.LLMClient {
	retryConfig := retry.DefaultConfig
	if cfg.LLM.MaxAttempts > 0 {
		retryConfig.MaxAttempts = cfg.LLM.MaxAttempts
	}
	callTimeout := time.Duration(cfg.LLM.TimeoutSeconds) * time.Second
	if callTimeout <= 0 {
		callTimeout = 2 * time.Minute
	}

	chain := []llm.Middleware{
		metrics.Middleware(recorder, nil, logx.NewLogger("llm-metrics")),
		circuit.Middleware(circuit.New(cfg.LLM.Provider, circuit.DefaultConfig)),
		retry.Middleware(retry.NewPolicy(retryConfig, nil)),
	}
	if cfg.LLM.TokensPerMinute > 0 || cfg.LLM.TokensPerDay > 0 {
		l := limiter.NewLimiter(map[string]limiter.Limits{
			raw.GetModelName(): {TokensPerMinute: cfg.LLM.TokensPerMinute, TokensPerDay: cfg.LLM.TokensPerDay},
		})
		chain = append(chain, ratelimit.Middleware(l, nil))
	}
	chain = append(chain, timeout.Middleware(callTimeout))

	return llm.Chain(raw, chain...)
}

// NewGenerator builds the text generator the agent and its tools share.
func NewGenerator(cfg *config.Config, recorder metrics.Recorder) (*llm.Generator, error) {
	raw, err := NewRawClient(cfg)
	if err != nil {
		return nil, err
	}
	client := NewLLMClient(cfg, raw, recorder)
	return llm.NewGenerator(client, llm.GeneratorOptions{
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	}), nil
}
