package local

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/ollama/ollama/api"
)

// Embedder turns texts into vectors of a fixed dimension.
type Embedder interface {
	// Name identifies the model so stale vectors can be detected.
	Name() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// HashDimension is the vector size of the hash embedder.
const HashDimension = 512

//nolint:gochecknoglobals // compiled once
var termPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// HashEmbedder is a deterministic hashed bag-of-terms embedder. It needs no
// model server, which makes it the default and the one tests use.
type HashEmbedder struct{}

// NewHashEmbedder creates a hash embedder.
func NewHashEmbedder() *HashEmbedder { return &HashEmbedder{} }

// Name returns "hash".
func (HashEmbedder) Name() string { return "hash" }

// Embed hashes lowercase terms into HashDimension buckets and L2-normalizes.
func (HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = hashVector(text)
	}
	return out, nil
}

func hashVector(text string) []float32 {
	vec := make([]float32, HashDimension)
	for _, term := range termPattern.FindAllString(strings.ToLower(text), -1) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(term))
		vec[h.Sum32()%HashDimension]++
	}
	normalize(vec)
	return vec
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}

// OllamaEmbedder computes embeddings with an Ollama server.
type OllamaEmbedder struct {
	client *api.Client
	model  string
}

// NewOllamaEmbedder creates an embedder for model served at host.
func NewOllamaEmbedder(host, model string) (*OllamaEmbedder, error) {
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}
	return &OllamaEmbedder{
		client: api.NewClient(u, http.DefaultClient),
		model:  model,
	}, nil
}

// Name returns the embedding model.
func (e *OllamaEmbedder) Name() string { return e.model }

// Embed embeds all texts in one request.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{
		Model: e.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed with %s: %w", e.model, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

// cosine returns the cosine similarity of a and b, or 0 when the lengths
// differ or either vector is zero.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
