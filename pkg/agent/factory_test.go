package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeqa/pkg/agent/llm"
	"codeqa/pkg/agent/llmerrors"
	"codeqa/pkg/agent/middleware/metrics"
	"codeqa/pkg/config"
)

func TestNewRawClientRequiresKeyForHostedProviders(t *testing.T) {
	config.SetDecryptedSecrets(nil)
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	cfg := config.Default()
	_, err := NewRawClient(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
}

func TestNewRawClientPerProvider(t *testing.T) {
	config.SetDecryptedSecrets(nil)
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("OPENAI_API_KEY", "o-key")
	t.Setenv("ANTHROPIC_API_KEY", "a-key")

	for _, provider := range []string{config.ProviderGoogle, config.ProviderOpenAI, config.ProviderAnthropic, config.ProviderOllama} {
		t.Run(provider, func(t *testing.T) {
			cfg := config.Default()
			cfg.LLM.Provider = provider
			cfg.LLM.Model = config.DefaultModelForProvider(provider)

			client, err := NewRawClient(cfg)
			require.NoError(t, err)
			assert.Equal(t, cfg.LLM.Model, client.GetModelName())
		})
	}
}

func TestNewLLMClientChainsMiddleware(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.MaxAttempts = 1

	calls := 0
	raw := llm.WrapClient(
		func(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
			calls++
			return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeAuth, "bad key")
		},
		func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
			return nil, nil
		},
		func() string { return "fake-model" },
	)
	recorder := metrics.NewInternalRecorder()

	client := NewLLMClient(cfg, raw, recorder)
	gen := llm.NewGenerator(client, llm.GeneratorOptions{})

	out := gen.Generate(context.Background(), "hello", "")
	assert.True(t, llm.IsDiagnostic(out))
	assert.Equal(t, 1, calls, "auth errors are not retried")
	assert.Equal(t, "fake-model", client.GetModelName())

	usage := recorder.GetModelUsage("fake-model")
	require.NotNil(t, usage)
	assert.Equal(t, int64(1), usage.ErrorCount)
}

func TestNewLLMClientAppliesTokenBudget(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.MaxAttempts = 1
	cfg.LLM.TokensPerDay = 10

	calls := 0
	raw := llm.WrapClient(
		func(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
			calls++
			return llm.CompletionResponse{Content: "ok"}, nil
		},
		func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
			return nil, nil
		},
		func() string { return "fake-model" },
	)

	client := NewLLMClient(cfg, raw, metrics.Nop())
	gen := llm.NewGenerator(client, llm.GeneratorOptions{MaxTokens: 64})

	out := gen.Generate(context.Background(), "hello", "")
	assert.True(t, llm.IsDiagnostic(out), "the output allowance alone exceeds the budget")
	assert.Contains(t, out, "budget")
	assert.Zero(t, calls)
}
