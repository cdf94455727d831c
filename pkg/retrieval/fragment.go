// Package retrieval resolves which code fragments answer a query and turns
// them into a prompt context.
package retrieval

import (
	"context"
	"errors"
	"fmt"
)

// DefaultK is the number of fragments retrieved when the caller does not ask for a count.
const DefaultK = 5

// ErrRetrieval marks a failure of the semantic index. It is never recovered
// inside the pipeline.
var ErrRetrieval = errors.New("retrieval failure")

// Fragment is one unit returned by the semantic index.
type Fragment struct {
	Metadata map[string]any `json:"metadata"`
	Text     string         `json:"text"`
	Distance float64        `json:"dist"`
}

// Path returns the originating file path, or "" when the index did not report one.
func (f Fragment) Path() string {
	if p, ok := f.Metadata["path"].(string); ok {
		return p
	}
	return ""
}

// ChunkID returns the chunk identifier as text, if the index reported one.
func (f Fragment) ChunkID() (string, bool) {
	id, ok := f.Metadata["chunk_id"]
	if !ok || id == nil {
		return "", false
	}
	switch v := id.(type) {
	case string:
		return v, true
	case float64:
		// JSON numbers decode as float64.
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v)), true
		}
		return fmt.Sprint(v), true
	default:
		return fmt.Sprint(v), true
	}
}

// IndexClient queries a semantic index for the k fragments closest to text.
type IndexClient interface {
	Query(ctx context.Context, text string, k int) ([]Fragment, error)
}

// IndexFunc adapts a function to IndexClient.
type IndexFunc func(ctx context.Context, text string, k int) ([]Fragment, error)

// Query calls f.
func (f IndexFunc) Query(ctx context.Context, text string, k int) ([]Fragment, error) {
	return f(ctx, text, k)
}
