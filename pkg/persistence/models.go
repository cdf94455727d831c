package persistence

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Document is one indexed file.
type Document struct {
	ModifiedAt  time.Time `json:"modified_at"`
	IndexedAt   time.Time `json:"indexed_at"`
	Path        string    `json:"path"`
	ContentHash string    `json:"content_hash"`
	SizeBytes   int64     `json:"size_bytes"`
}

// Chunk is one token-bounded slice of a document with its embedding.
type Chunk struct {
	ID             string    `json:"id"`
	Path           string    `json:"path"`
	Text           string    `json:"text"`
	EmbeddingModel string    `json:"embedding_model"`
	Embedding      []float32 `json:"-"`
	Seq            int       `json:"seq"`
}

// Stats summarizes the index contents.
type Stats struct {
	LastModified time.Time `json:"last_modified"`
	LastIndexed  time.Time `json:"last_indexed"`
	FileCount    int       `json:"file_count"`
	ChunkCount   int       `json:"chunk_count"`
}

// ContentHash returns the hex SHA-256 of content.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// GenerateChunkID returns a stable ID for the seq-th chunk of path. The same
// file and position always map to the same ID, so reindexing replaces rows.
func GenerateChunkID(path string, seq int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("codeqa:%s#%d", path, seq))).String()
}

// timestampLayout is how timestamps are stored in TEXT columns.
const timestampLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}
