package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(NewViper(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8003, cfg.Server.Port)
	assert.Equal(t, IndexBackendPathway, cfg.Index.Backend)
	assert.Equal(t, "http://127.0.0.1:8765", cfg.Index.URL)
	assert.Equal(t, ProviderGoogle, cfg.LLM.Provider)
	assert.Equal(t, ModelGemini25Flash, cfg.LLM.Model)
	assert.InDelta(t, 0.3, cfg.LLM.Temperature, 1e-6)
	assert.Equal(t, 5, cfg.Agent.TopK)
	assert.Equal(t, 400, cfg.Index.Local.MaxTokens)
	assert.Equal(t, []string{"http://localhost:5173", "http://127.0.0.1:5173"}, cfg.Server.CORSOrigins)
}

func TestLoadFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codeqa.yaml")
	yamlDoc := `
server:
  port: 9100
index:
  backend: local
  local:
    watch_folder: /srv/repo
llm:
  provider: ""
  model: claude-sonnet-4-20250514
agent:
  top_k: 8
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	cfg, err := Load(NewViper(), path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, IndexBackendLocal, cfg.Index.Backend)
	assert.Equal(t, "/srv/repo", cfg.Index.Local.WatchFolder)
	assert.Equal(t, ProviderAnthropic, cfg.LLM.Provider, "provider is inferred from the model")
	assert.Equal(t, 8, cfg.Agent.TopK)
}

func TestPortEnvironmentOverride(t *testing.T) {
	t.Setenv("PORT", "9300")

	cfg, err := Load(NewViper(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 9300, cfg.Server.Port)
}

func TestPrefixedEnvironmentOverride(t *testing.T) {
	t.Setenv("CODEQA_LLM_MODEL", "gpt-5-mini")
	t.Setenv("CODEQA_LLM_PROVIDER", "openai")

	cfg, err := Load(NewViper(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, ModelGPT5Mini, cfg.LLM.Model)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad backend", func(c *Config) { c.Index.Backend = "qdrant" }},
		{"bad provider", func(c *Config) { c.LLM.Provider = "bard" }},
		{"bad temperature", func(c *Config) { c.LLM.Temperature = 3 }},
		{"bad max tokens", func(c *Config) { c.LLM.MaxTokens = 0 }},
		{"bad embedder", func(c *Config) { c.Index.Local.Embedder = "bert" }},
	}

	require.NoError(t, Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "codeqa.yaml")
	original := Default()
	original.Server.Port = 8111
	original.Index.Backend = IndexBackendLocal

	require.NoError(t, Save(path, original))

	loaded, err := Load(NewViper(), path)
	require.NoError(t, err)
	assert.Equal(t, 8111, loaded.Server.Port)
	assert.Equal(t, IndexBackendLocal, loaded.Index.Backend)
}

func TestProviderForModel(t *testing.T) {
	tests := map[string]string{
		ModelGemini25Flash:   ProviderGoogle,
		"gemini-experimental": ProviderGoogle,
		"gpt-4o":             ProviderOpenAI,
		"claude-opus":        ProviderAnthropic,
		"qwen2.5-coder:7b":   ProviderOllama,
	}
	for model, want := range tests {
		assert.Equal(t, want, ProviderForModel(model), model)
	}
}

func TestAPIKeyResolution(t *testing.T) {
	SetDecryptedSecrets(nil)
	t.Cleanup(func() { SetDecryptedSecrets(nil) })

	cfg := Default()
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "from-google-env")

	key, err := cfg.APIKey()
	require.NoError(t, err)
	assert.Equal(t, "from-google-env", key)

	SetSecret("GEMINI_API_KEY", "from-secrets")
	key, err = cfg.APIKey()
	require.NoError(t, err)
	assert.Equal(t, "from-secrets", key)

	cfg.LLM.Provider = ProviderOllama
	key, err = cfg.APIKey()
	require.NoError(t, err)
	assert.Empty(t, key)
}
