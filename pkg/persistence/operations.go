package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("not found")

// DatabaseOperations provides methods for database operations.
// It is safe for concurrent use; SQLite serializes writers.
type DatabaseOperations struct {
	db *sql.DB
}

// NewDatabaseOperations creates a new DatabaseOperations instance.
func NewDatabaseOperations(db *sql.DB) *DatabaseOperations {
	return &DatabaseOperations{db: db}
}

// Close closes the underlying database.
func (ops *DatabaseOperations) Close() error {
	if err := ops.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// ReplaceDocument upserts doc and replaces all of its chunks atomically.
func (ops *DatabaseOperations) ReplaceDocument(doc *Document, chunks []*Chunk) error {
	tx, err := ops.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO documents (path, content_hash, size_bytes, modified_at, indexed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			content_hash = excluded.content_hash,
			size_bytes = excluded.size_bytes,
			modified_at = excluded.modified_at,
			indexed_at = excluded.indexed_at
	`, doc.Path, doc.ContentHash, doc.SizeBytes, formatTime(doc.ModifiedAt), formatTime(doc.IndexedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", doc.Path, err)
	}

	if _, err := tx.Exec(`DELETE FROM chunks WHERE path = ?`, doc.Path); err != nil {
		return fmt.Errorf("failed to clear chunks of %s: %w", doc.Path, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO chunks (id, path, seq, text, embedding, embedding_model)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, c := range chunks {
		vec, err := json.Marshal(c.Embedding)
		if err != nil {
			return fmt.Errorf("failed to encode embedding: %w", err)
		}
		id := c.ID
		if id == "" {
			id = GenerateChunkID(doc.Path, c.Seq)
		}
		if _, err := stmt.Exec(id, doc.Path, c.Seq, c.Text, string(vec), c.EmbeddingModel); err != nil {
			return fmt.Errorf("failed to insert chunk %d of %s: %w", c.Seq, doc.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit document %s: %w", doc.Path, err)
	}
	return nil
}

// DeleteDocument removes a document and its chunks. Missing paths are not an error.
func (ops *DatabaseOperations) DeleteDocument(path string) error {
	if _, err := ops.db.Exec(`DELETE FROM chunks WHERE path = ?`, path); err != nil {
		return fmt.Errorf("failed to delete chunks of %s: %w", path, err)
	}
	if _, err := ops.db.Exec(`DELETE FROM documents WHERE path = ?`, path); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", path, err)
	}
	return nil
}

// DeleteDocumentsUnder removes every document whose path is dir or lies below it.
func (ops *DatabaseOperations) DeleteDocumentsUnder(dir string) (int, error) {
	prefix := strings.TrimSuffix(dir, "/") + "/"
	docs, err := ops.ListDocuments()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, d := range docs {
		if d.Path == dir || strings.HasPrefix(d.Path, prefix) {
			if err := ops.DeleteDocument(d.Path); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// GetDocument returns the document stored under path.
func (ops *DatabaseOperations) GetDocument(path string) (*Document, error) {
	row := ops.db.QueryRow(`
		SELECT path, content_hash, size_bytes, modified_at, indexed_at
		FROM documents WHERE path = ?
	`, path)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", path, err)
	}
	return doc, nil
}

// ListDocuments returns all documents ordered by path.
func (ops *DatabaseOperations) ListDocuments() ([]*Document, error) {
	rows, err := ops.db.Query(`
		SELECT path, content_hash, size_bytes, modified_at, indexed_at
		FROM documents ORDER BY path
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("document rows error: %w", err)
	}
	return docs, nil
}

// AllChunks returns every stored chunk with its decoded embedding, ordered by path and position.
func (ops *DatabaseOperations) AllChunks() ([]*Chunk, error) {
	rows, err := ops.db.Query(`
		SELECT id, path, seq, text, embedding, embedding_model
		FROM chunks ORDER BY path, seq
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var chunks []*Chunk
	for rows.Next() {
		var (
			c   Chunk
			vec string
		)
		if err := rows.Scan(&c.ID, &c.Path, &c.Seq, &c.Text, &vec, &c.EmbeddingModel); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if err := json.Unmarshal([]byte(vec), &c.Embedding); err != nil {
			return nil, fmt.Errorf("corrupt embedding for chunk %s: %w", c.ID, err)
		}
		chunks = append(chunks, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chunk rows error: %w", err)
	}
	return chunks, nil
}

// CountStaleChunks counts chunks embedded by a model other than model.
func (ops *DatabaseOperations) CountStaleChunks(model string) (int, error) {
	var n int
	if err := ops.db.QueryRow(`SELECT COUNT(*) FROM chunks WHERE embedding_model <> ?`, model).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count stale chunks: %w", err)
	}
	return n, nil
}

// GetStats summarizes the stored documents and chunks.
func (ops *DatabaseOperations) GetStats() (*Stats, error) {
	docs, err := ops.ListDocuments()
	if err != nil {
		return nil, err
	}
	stats := &Stats{FileCount: len(docs)}
	for _, d := range docs {
		if d.ModifiedAt.After(stats.LastModified) {
			stats.LastModified = d.ModifiedAt
		}
		if d.IndexedAt.After(stats.LastIndexed) {
			stats.LastIndexed = d.IndexedAt
		}
	}
	if err := ops.db.QueryRow(`SELECT COUNT(*) FROM chunks`).Scan(&stats.ChunkCount); err != nil {
		return nil, fmt.Errorf("failed to read chunk stats: %w", err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var (
		doc                  Document
		modified, indexedStr string
	)
	if err := row.Scan(&doc.Path, &doc.ContentHash, &doc.SizeBytes, &modified, &indexedStr); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with context
	}
	var err error
	if doc.ModifiedAt, err = parseTime(modified); err != nil {
		return nil, err
	}
	if doc.IndexedAt, err = parseTime(indexedStr); err != nil {
		return nil, err
	}
	return &doc, nil
}
