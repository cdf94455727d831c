package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"codeqa/pkg/logx"
	"codeqa/pkg/persistence"
	"codeqa/pkg/retrieval"
)

// maxFileBytes skips files too large to be source code worth indexing.
const maxFileBytes = 2 << 20

// Index is a live semantic index over the files below a root folder.
// Chunks are persisted in SQLite and mirrored in memory for querying.
type Index struct {
	store    *persistence.DatabaseOperations
	embedder Embedder
	splitter *Splitter
	logger   *logx.Logger
	now      func() time.Time
	chunks   map[string][]*persistence.Chunk // path -> chunks
	mu       sync.RWMutex
}

// New creates an index backed by store and loads the persisted chunks.
func New(store *persistence.DatabaseOperations, embedder Embedder, splitter *Splitter) (*Index, error) {
	idx := &Index{
		store:    store,
		embedder: embedder,
		splitter: splitter,
		logger:   logx.NewLogger("index"),
		now:      time.Now,
		chunks:   make(map[string][]*persistence.Chunk),
	}
	if err := idx.reload(); err != nil {
		return nil, err
	}
	return idx, nil
}

func (idx *Index) reload() error {
	stored, err := idx.store.AllChunks()
	if err != nil {
		return fmt.Errorf("load chunks: %w", err)
	}
	chunks := make(map[string][]*persistence.Chunk)
	for _, c := range stored {
		chunks[c.Path] = append(chunks[c.Path], c)
	}
	idx.mu.Lock()
	idx.chunks = chunks
	idx.mu.Unlock()
	return nil
}

// IndexFile (re)indexes one file. Unchanged, binary and oversized files are
// skipped; a path that no longer exists is removed.
func (idx *Index) IndexFile(ctx context.Context, path string) error {
	path = filepath.ToSlash(path)
	if SkipPath(path) {
		return nil
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return idx.RemoveFile(path)
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil
	}
	if info.Size() > maxFileBytes {
		idx.logger.Debug("skipping %s: %d bytes", path, info.Size())
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	hash := persistence.ContentHash(data)
	if existing, err := idx.store.GetDocument(path); err == nil && existing.ContentHash == hash && !idx.stale(path) {
		return nil
	}

	document, ok := LoadFile(path, data)
	if !ok {
		idx.logger.Debug("skipping non-text file %s", path)
		return idx.RemoveFile(path)
	}

	texts := idx.splitter.Split(path, document)
	vectors, err := idx.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed %s: %w", path, err)
	}

	chunks := make([]*persistence.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = &persistence.Chunk{
			ID:             persistence.GenerateChunkID(path, i),
			Path:           path,
			Seq:            i,
			Text:           text,
			Embedding:      vectors[i],
			EmbeddingModel: idx.embedder.Name(),
		}
	}

	doc := &persistence.Document{
		Path:        path,
		ContentHash: hash,
		SizeBytes:   info.Size(),
		ModifiedAt:  info.ModTime(),
		IndexedAt:   idx.now(),
	}
	if err := idx.store.ReplaceDocument(doc, chunks); err != nil {
		return err //nolint:wrapcheck // already carries the path
	}

	idx.mu.Lock()
	idx.chunks[path] = chunks
	idx.mu.Unlock()

	idx.logger.Info("indexed %s (%d chunks)", path, len(chunks))
	return nil
}

// stale reports whether path was embedded by a different model.
func (idx *Index) stale(path string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	for _, c := range idx.chunks[path] {
		if c.EmbeddingModel != idx.embedder.Name() {
			return true
		}
	}
	return false
}

// RemoveFile drops a file, or every file below a directory, from the index.
func (idx *Index) RemoveFile(path string) error {
	path = filepath.ToSlash(path)
	if err := idx.store.DeleteDocument(path); err != nil {
		return err //nolint:wrapcheck // already carries the path
	}
	if _, err := idx.store.DeleteDocumentsUnder(path); err != nil {
		return err //nolint:wrapcheck // already carries the path
	}

	prefix := path + "/"
	idx.mu.Lock()
	for p := range idx.chunks {
		if p == path || strings.HasPrefix(p, prefix) {
			delete(idx.chunks, p)
		}
	}
	idx.mu.Unlock()
	return nil
}

// Sync walks root, indexes new and changed files and drops files that
// disappeared since the last run.
func (idx *Index) Sync(ctx context.Context, root string) error {
	seen := make(map[string]bool)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != root && SkipPath(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		slashed := filepath.ToSlash(path)
		seen[slashed] = true
		if err := idx.IndexFile(ctx, slashed); err != nil {
			idx.logger.Warn("failed to index %s: %v", slashed, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", root, err)
	}

	docs, err := idx.store.ListDocuments()
	if err != nil {
		return err //nolint:wrapcheck // already descriptive
	}
	rootSlashed := filepath.ToSlash(filepath.Clean(root))
	for _, d := range docs {
		if seen[d.Path] || !within(rootSlashed, d.Path) {
			continue
		}
		if err := idx.RemoveFile(d.Path); err != nil {
			return err
		}
	}
	return nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(filepath.ToSlash(rel), "../")
}

// Query returns the k chunks nearest to text, ascending by distance
// (1 - cosine similarity).
func (idx *Index) Query(ctx context.Context, text string, k int) ([]retrieval.Fragment, error) {
	if k <= 0 {
		k = retrieval.DefaultK
	}
	vectors, err := idx.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", retrieval.ErrRetrieval, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: embedder returned %d vectors", retrieval.ErrRetrieval, len(vectors))
	}
	query := vectors[0]

	type scored struct {
		chunk *persistence.Chunk
		dist  float64
	}

	idx.mu.RLock()
	candidates := make([]scored, 0, len(idx.chunks))
	for _, chunks := range idx.chunks {
		for _, c := range chunks {
			candidates = append(candidates, scored{chunk: c, dist: 1 - cosine(query, c.Embedding)})
		}
	}
	idx.mu.RUnlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		if candidates[i].chunk.Path != candidates[j].chunk.Path {
			return candidates[i].chunk.Path < candidates[j].chunk.Path
		}
		return candidates[i].chunk.Seq < candidates[j].chunk.Seq
	})
	total := len(candidates)
	if total > k {
		candidates = candidates[:k]
	}

	modified := idx.modifiedTimes()
	fragments := make([]retrieval.Fragment, len(candidates))
	for i, s := range candidates {
		fragments[i] = retrieval.Fragment{
			Text:     s.chunk.Text,
			Distance: s.dist,
			Metadata: map[string]any{
				"path":        s.chunk.Path,
				"chunk_id":    s.chunk.Seq,
				"modified_at": modified[s.chunk.Path],
			},
		}
	}
	logx.Debug(ctx, "retrieval", "local index matched %d of %d chunks", len(fragments), total)
	return fragments, nil
}

func (idx *Index) modifiedTimes() map[string]int64 {
	out := make(map[string]int64)
	docs, err := idx.store.ListDocuments()
	if err != nil {
		idx.logger.Warn("failed to list documents: %v", err)
		return out
	}
	for _, d := range docs {
		out[d.Path] = d.ModifiedAt.Unix()
	}
	return out
}

// Stats reports index size and freshness.
func (idx *Index) Stats() (*persistence.Stats, error) {
	return idx.store.GetStats() //nolint:wrapcheck // already descriptive
}

// Inputs lists the metadata of every indexed document.
func (idx *Index) Inputs() ([]map[string]any, error) {
	docs, err := idx.store.ListDocuments()
	if err != nil {
		return nil, err //nolint:wrapcheck // already descriptive
	}
	out := make([]map[string]any, len(docs))
	for i, d := range docs {
		out[i] = map[string]any{
			"path":        d.Path,
			"modified_at": d.ModifiedAt.Unix(),
			"indexed_at":  d.IndexedAt.Unix(),
			"size":        d.SizeBytes,
		}
	}
	return out, nil
}
