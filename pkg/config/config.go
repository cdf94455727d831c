// Package config loads codeqa configuration from YAML, environment and flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultConfigName is the base name searched for when no --config is given.
const DefaultConfigName = "codeqa"

// Index backends.
const (
	IndexBackendPathway = "pathway"
	IndexBackendLocal   = "local"
)

// Embedders available to the local index.
const (
	EmbedderHash   = "hash"
	EmbedderOllama = "ollama"
)

// Config is the root configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Index   IndexConfig   `mapstructure:"index" yaml:"index"`
	LLM     LLMConfig     `mapstructure:"llm" yaml:"llm"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	// SecretsDir holds secrets.json.enc. Empty means the working directory.
	SecretsDir string `mapstructure:"secrets_dir" yaml:"secrets_dir"`
}

// ServerConfig configures the agent HTTP API.
type ServerConfig struct {
	Host          string   `mapstructure:"host" yaml:"host"`
	Port          int      `mapstructure:"port" yaml:"port"`
	CORSOrigins   []string `mapstructure:"cors_origins" yaml:"cors_origins"`
	EmbeddedIndex bool     `mapstructure:"embedded_index" yaml:"embedded_index"`
}

// IndexConfig selects the semantic index the retriever talks to.
type IndexConfig struct {
	Backend        string           `mapstructure:"backend" yaml:"backend"`
	URL            string           `mapstructure:"url" yaml:"url"`
	TimeoutSeconds int              `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	Local          LocalIndexConfig `mapstructure:"local" yaml:"local"`
}

// LocalIndexConfig configures the in-process live index.
type LocalIndexConfig struct {
	WatchFolder    string `mapstructure:"watch_folder" yaml:"watch_folder"`
	Watch          bool   `mapstructure:"watch" yaml:"watch"`
	DBPath         string `mapstructure:"db_path" yaml:"db_path"`
	MaxTokens      int    `mapstructure:"max_tokens" yaml:"max_tokens"`
	Embedder       string `mapstructure:"embedder" yaml:"embedder"`
	EmbeddingModel string `mapstructure:"embedding_model" yaml:"embedding_model"`
	OllamaHost     string `mapstructure:"ollama_host" yaml:"ollama_host"`
	ListenAddr     string `mapstructure:"listen_addr" yaml:"listen_addr"`
	RepoURL        string `mapstructure:"repo_url" yaml:"repo_url"`
	RepoBranch     string `mapstructure:"repo_branch" yaml:"repo_branch"`
	RepoFolder     string `mapstructure:"repo_folder" yaml:"repo_folder"`
}

// LLMConfig configures the text generation backend.
type LLMConfig struct {
	Provider       string  `mapstructure:"provider" yaml:"provider"`
	Model          string  `mapstructure:"model" yaml:"model"`
	Temperature    float32 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	MaxAttempts    int     `mapstructure:"max_attempts" yaml:"max_attempts"`
	OllamaHost     string  `mapstructure:"ollama_host" yaml:"ollama_host"`
	// Zero disables the limit.
	TokensPerMinute int `mapstructure:"tokens_per_minute" yaml:"tokens_per_minute"`
	TokensPerDay    int `mapstructure:"tokens_per_day" yaml:"tokens_per_day"`
}

// AgentConfig tunes the answer pipeline.
type AgentConfig struct {
	TopK int `mapstructure:"top_k" yaml:"top_k"`
	// ValidateJSON checks structured answers against a JSON schema before use.
	ValidateJSON bool `mapstructure:"validate_json" yaml:"validate_json"`
}

// MetricsConfig configures Prometheus exposure and querying.
type MetricsConfig struct {
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
	PrometheusURL string `mapstructure:"prometheus_url" yaml:"prometheus_url"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8003,
			CORSOrigins: []string{"http://localhost:5173", "http://127.0.0.1:5173"},
		},
		Index: IndexConfig{
			Backend:        IndexBackendPathway,
			URL:            "http://127.0.0.1:8765",
			TimeoutSeconds: 30,
			Local: LocalIndexConfig{
				WatchFolder:    "./watched_folder",
				Watch:          true,
				DBPath:         ".codeqa/index.db",
				MaxTokens:      400,
				Embedder:       EmbedderHash,
				EmbeddingModel: DefaultEmbeddingModel,
				OllamaHost:     "http://localhost:11434",
				ListenAddr:     "0.0.0.0:8765",
				RepoBranch:     "main",
				RepoFolder:     "./data/repo",
			},
		},
		LLM: LLMConfig{
			Provider:       ProviderGoogle,
			Model:          ModelGemini25Flash,
			Temperature:    0.3,
			MaxTokens:      4096,
			TimeoutSeconds: 120,
			MaxAttempts:    3,
			OllamaHost:     "http://localhost:11434",
		},
		Agent: AgentConfig{
			TopK:         5,
			ValidateJSON: true,
		},
		Metrics: MetricsConfig{
			Enabled:       true,
			PrometheusURL: "http://localhost:9090",
		},
	}
}

// NewViper returns a viper instance primed with defaults and env bindings.
// Callers may bind cobra flags onto it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix("CODEQA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// PORT is honoured for compatibility with container platforms.
	_ = v.BindEnv("server.port", "CODEQA_SERVER_PORT", "PORT")
	return v
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("server.embedded_index", d.Server.EmbeddedIndex)

	v.SetDefault("index.backend", d.Index.Backend)
	v.SetDefault("index.url", d.Index.URL)
	v.SetDefault("index.timeout_seconds", d.Index.TimeoutSeconds)
	v.SetDefault("index.local.watch_folder", d.Index.Local.WatchFolder)
	v.SetDefault("index.local.watch", d.Index.Local.Watch)
	v.SetDefault("index.local.db_path", d.Index.Local.DBPath)
	v.SetDefault("index.local.max_tokens", d.Index.Local.MaxTokens)
	v.SetDefault("index.local.embedder", d.Index.Local.Embedder)
	v.SetDefault("index.local.embedding_model", d.Index.Local.EmbeddingModel)
	v.SetDefault("index.local.ollama_host", d.Index.Local.OllamaHost)
	v.SetDefault("index.local.listen_addr", d.Index.Local.ListenAddr)
	v.SetDefault("index.local.repo_url", d.Index.Local.RepoURL)
	v.SetDefault("index.local.repo_branch", d.Index.Local.RepoBranch)
	v.SetDefault("index.local.repo_folder", d.Index.Local.RepoFolder)

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.timeout_seconds", d.LLM.TimeoutSeconds)
	v.SetDefault("llm.max_attempts", d.LLM.MaxAttempts)
	v.SetDefault("llm.ollama_host", d.LLM.OllamaHost)
	v.SetDefault("llm.tokens_per_minute", d.LLM.TokensPerMinute)
	v.SetDefault("llm.tokens_per_day", d.LLM.TokensPerDay)

	v.SetDefault("agent.top_k", d.Agent.TopK)
	v.SetDefault("agent.validate_json", d.Agent.ValidateJSON)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.prometheus_url", d.Metrics.PrometheusURL)

	v.SetDefault("secrets_dir", d.SecretsDir)
}

// Load reads the config file into v and returns the merged configuration
// (flags > env > file > defaults). An empty path searches ./codeqa.yaml and
// ~/.config/codeqa/codeqa.yaml; a missing file is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = NewViper()
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", DefaultConfigName))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
		case path != "" && errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills derived values that plain defaults cannot express.
func applyDefaults(cfg *Config) {
	if cfg.LLM.Provider == "" && cfg.LLM.Model != "" {
		cfg.LLM.Provider = ProviderForModel(cfg.LLM.Model)
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = ProviderGoogle
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = DefaultModelForProvider(cfg.LLM.Provider)
	}
	if cfg.Agent.TopK <= 0 {
		cfg.Agent.TopK = 5
	}
	if cfg.Index.Local.MaxTokens <= 0 {
		cfg.Index.Local.MaxTokens = 400
	}
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	switch c.Index.Backend {
	case IndexBackendPathway, IndexBackendLocal:
	default:
		return fmt.Errorf("index.backend must be %q or %q, got %q", IndexBackendPathway, IndexBackendLocal, c.Index.Backend)
	}
	switch c.LLM.Provider {
	case ProviderGoogle, ProviderOpenAI, ProviderAnthropic, ProviderOllama:
	default:
		return fmt.Errorf("unsupported llm.provider %q", c.LLM.Provider)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0.0 and 2.0")
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be positive")
	}
	if c.LLM.TokensPerMinute < 0 || c.LLM.TokensPerDay < 0 {
		return fmt.Errorf("llm token limits must not be negative")
	}
	switch c.Index.Local.Embedder {
	case EmbedderHash, EmbedderOllama:
	default:
		return fmt.Errorf("index.local.embedder must be %q or %q", EmbedderHash, EmbedderOllama)
	}
	return nil
}

// Addr returns the host:port the agent API listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Save writes cfg as YAML, creating parent directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// APIKey resolves the API key for the configured provider. Ollama needs none.
func (c *Config) APIKey() (string, error) {
	names := APIKeyNames(c.LLM.Provider)
	if len(names) == 0 {
		return "", nil
	}
	for _, name := range names {
		if value, err := GetSecret(name); err == nil {
			return value, nil
		}
	}
	return "", fmt.Errorf("no API key for provider %s (set one of %s)", c.LLM.Provider, strings.Join(names, ", "))
}
