package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeqa/pkg/config"
	"codeqa/pkg/persistence"
	"codeqa/pkg/utils"
)

func TestLoadFile(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		want   string
		wantOK bool
	}{
		{"content", []byte("print('hi')\n"), "# File: app.py\n\nprint('hi')\n", true},
		{"empty", []byte(""), "# File: app.py\n\n[Empty file]", true},
		{"whitespace only", []byte(" \n\t"), "# File: app.py\n\n[Empty file]", true},
		{"binary", []byte{0xff, 0xfe, 0x00, 0x80}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := LoadFile("app.py", tt.data)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSkipPath(t *testing.T) {
	assert.True(t, SkipPath("repo/.git/HEAD"))
	assert.True(t, SkipPath(".git"))
	assert.False(t, SkipPath("repo/.github/workflows/ci.yml"))
	assert.False(t, SkipPath("src/main.go"))
}

func newCounter(t *testing.T) *utils.TokenCounter {
	t.Helper()
	counter, err := utils.NewTokenCounter()
	require.NoError(t, err)
	return counter
}

func TestSplitterShortDocument(t *testing.T) {
	s := NewSplitter(newCounter(t), 400)
	doc, _ := LoadFile("README.md", []byte("Short readme."))
	assert.Equal(t, []string{doc}, s.Split("README.md", doc))
}

func TestSplitterLongDocument(t *testing.T) {
	counter := newCounter(t)
	s := NewSplitter(counter, 50)

	body := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 40)
	doc, _ := LoadFile("notes.txt", []byte(body))
	chunks := s.Split("notes.txt", doc)

	require.Greater(t, len(chunks), 1)
	header := FileHeader("notes.txt")
	var rebuilt strings.Builder
	for _, c := range chunks {
		require.True(t, strings.HasPrefix(c, header), "every chunk names its file")
		assert.LessOrEqual(t, counter.CountTokens(c), 52)
		rebuilt.WriteString(strings.TrimPrefix(c, header))
	}
	assert.Equal(t, body, rebuilt.String())
}

func TestSplitterWithoutTokenizer(t *testing.T) {
	s := NewSplitter(nil, 10)
	body := strings.Repeat("x", 200)
	doc, _ := LoadFile("a.txt", []byte(body))
	chunks := s.Split("a.txt", doc)

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.True(t, strings.HasPrefix(c, FileHeader("a.txt")))
	}
	assert.Equal(t, DefaultMaxTokens, NewSplitter(nil, 0).MaxTokens())
}

func TestHashEmbedder(t *testing.T) {
	e := NewHashEmbedder()
	vecs, err := e.Embed(context.Background(), []string{"Install the CLI", "install the cli", ""})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	assert.Len(t, vecs[0], HashDimension)
	assert.InDelta(t, 1.0, cosine(vecs[0], vecs[1]), 1e-6, "case-insensitive")
	assert.Zero(t, cosine(vecs[0], vecs[2]), "empty text has no direction")
	assert.Equal(t, "hash", e.Name())
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, cosine([]float32{1}, []float32{1, 0}))
}

type testIndex struct {
	*Index
	root string
}

func newTestIndex(t *testing.T) testIndex {
	t.Helper()
	store, err := persistence.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	idx, err := New(store, NewHashEmbedder(), NewSplitter(newCounter(t), 400))
	require.NoError(t, err)
	return testIndex{Index: idx, root: filepath.ToSlash(t.TempDir())}
}

func (ti testIndex) write(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(ti.root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return filepath.ToSlash(p)
}

func TestIndexQuery(t *testing.T) {
	ti := newTestIndex(t)
	ctx := context.Background()

	readme := ti.write(t, "README.md", "Install instructions: run make install to set up the project.")
	ti.write(t, "main.go", "package main\n\nfunc main() { serve() }\n")
	ti.write(t, ".git/config", "[core] install install install")
	require.NoError(t, ti.Sync(ctx, ti.root))

	fragments, err := ti.Query(ctx, "install instructions", 5)
	require.NoError(t, err)
	require.Len(t, fragments, 2, ".git is never indexed")

	assert.Equal(t, readme, fragments[0].Path())
	assert.True(t, strings.HasPrefix(fragments[0].Text, "# File: "+readme))
	assert.LessOrEqual(t, fragments[0].Distance, fragments[1].Distance)
	id, ok := fragments[0].ChunkID()
	assert.True(t, ok)
	assert.Equal(t, "0", id)
	assert.Contains(t, fragments[0].Metadata, "modified_at")

	limited, err := ti.Query(ctx, "install", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestIndexReindexAndRemove(t *testing.T) {
	ti := newTestIndex(t)
	ctx := context.Background()

	p := ti.write(t, "pkg/util.go", "package util // alpha")
	require.NoError(t, ti.IndexFile(ctx, p))

	ti.write(t, "pkg/util.go", "package util // beta")
	require.NoError(t, ti.IndexFile(ctx, p))

	fragments, err := ti.Query(ctx, "beta", 5)
	require.NoError(t, err)
	require.Len(t, fragments, 1)
	assert.Contains(t, fragments[0].Text, "beta")

	require.NoError(t, os.RemoveAll(filepath.Join(ti.root, "pkg")))
	require.NoError(t, ti.IndexFile(ctx, p))
	fragments, err = ti.Query(ctx, "beta", 5)
	require.NoError(t, err)
	assert.Empty(t, fragments)
}

func TestIndexSyncDropsVanishedFiles(t *testing.T) {
	ti := newTestIndex(t)
	ctx := context.Background()

	gone := ti.write(t, "old.txt", "legacy notes")
	ti.write(t, "keep.txt", "current notes")
	require.NoError(t, ti.Sync(ctx, ti.root))

	require.NoError(t, os.Remove(gone))
	require.NoError(t, ti.Sync(ctx, ti.root))

	inputs, err := ti.Inputs()
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	assert.True(t, strings.HasSuffix(inputs[0]["path"].(string), "keep.txt"))

	stats, err := ti.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FileCount)
}

func TestIndexSkipsBinaryFiles(t *testing.T) {
	ti := newTestIndex(t)
	p := filepath.Join(ti.root, "logo.png")
	require.NoError(t, os.WriteFile(p, []byte{0x89, 0x50, 0x4e, 0x47, 0xff, 0xfe}, 0o644))

	require.NoError(t, ti.IndexFile(context.Background(), p))
	inputs, err := ti.Inputs()
	require.NoError(t, err)
	assert.Empty(t, inputs)
}

func TestIndexReloadsPersistedChunks(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index.db")
	root := t.TempDir()
	p := filepath.Join(root, "a.md")
	require.NoError(t, os.WriteFile(p, []byte("persisted content"), 0o644))

	store, err := persistence.Open(dbPath)
	require.NoError(t, err)
	idx, err := New(store, NewHashEmbedder(), NewSplitter(nil, 400))
	require.NoError(t, err)
	require.NoError(t, idx.IndexFile(context.Background(), p))
	require.NoError(t, store.Close())

	store, err = persistence.Open(dbPath)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	reopened, err := New(store, NewHashEmbedder(), NewSplitter(nil, 400))
	require.NoError(t, err)

	fragments, err := reopened.Query(context.Background(), "persisted", 5)
	require.NoError(t, err)
	assert.Len(t, fragments, 1)
}

func TestOpenFromConfig(t *testing.T) {
	cfg := config.Default().Index.Local
	cfg.DBPath = filepath.Join(t.TempDir(), "nested", "index.db")

	idx, store, err := Open(cfg)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	assert.Equal(t, cfg.MaxTokens, idx.splitter.MaxTokens())

	cfg.Embedder = "word2vec"
	_, _, err = Open(cfg)
	assert.Error(t, err)

	e, err := NewEmbedder(config.LocalIndexConfig{Embedder: config.EmbedderOllama, OllamaHost: "http://localhost:11434", EmbeddingModel: "nomic-embed-text"})
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", e.Name())
}
