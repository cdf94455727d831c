package local

import (
	"fmt"
	"os"
	"path/filepath"

	"codeqa/pkg/config"
	"codeqa/pkg/persistence"
	"codeqa/pkg/utils"
)

// NewEmbedder builds the embedder named in cfg.
func NewEmbedder(cfg config.LocalIndexConfig) (Embedder, error) {
	switch cfg.Embedder {
	case config.EmbedderOllama:
		return NewOllamaEmbedder(cfg.OllamaHost, cfg.EmbeddingModel)
	case config.EmbedderHash, "":
		return NewHashEmbedder(), nil
	default:
		return nil, fmt.Errorf("unknown embedder %q", cfg.Embedder)
	}
}

// Open opens the index database named in cfg and loads the index. The
// returned store must be closed by the caller.
func Open(cfg config.LocalIndexConfig) (*Index, *persistence.DatabaseOperations, error) {
	embedder, err := NewEmbedder(cfg)
	if err != nil {
		return nil, nil, err
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create index directory: %w", err)
		}
	}
	store, err := persistence.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open index database: %w", err)
	}

	counter, err := utils.DefaultTokenCounter()
	if err != nil {
		// The splitter estimates token counts without a tokenizer.
		counter = nil
	}

	idx, err := New(store, embedder, NewSplitter(counter, cfg.MaxTokens))
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	if stale, err := store.CountStaleChunks(embedder.Name()); err == nil && stale > 0 {
		idx.logger.Info("%d chunks were embedded by another model and will be refreshed", stale)
	}
	return idx, store, nil
}
