// Package pathway is an HTTP client for a Pathway-compatible vector store,
// the external semantic index the agent queries by default.
package pathway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"codeqa/pkg/logx"
	"codeqa/pkg/retrieval"
)

// Endpoint paths of the vector store contract.
const (
	RetrievePath   = "/v1/retrieve"
	StatisticsPath = "/v1/statistics"
	InputsPath     = "/v1/inputs"
)

// DefaultTimeout bounds a single index request when the caller sets none.
const DefaultTimeout = 30 * time.Second

// maxErrorBody limits how much of an error response is quoted in errors.
const maxErrorBody = 512

// RetrieveRequest is the body of a retrieve call.
type RetrieveRequest struct {
	MetadataFilter      *string `json:"metadata_filter"`
	FilepathGlobPattern *string `json:"filepath_globpattern"`
	Query               string  `json:"query"`
	K                   int     `json:"k"`
}

// Statistics describes the indexed corpus.
type Statistics struct {
	FileCount    int   `json:"file_count"`
	LastModified int64 `json:"last_modified"`
	LastIndexed  int64 `json:"last_indexed"`
}

// InputsRequest filters the inputs listing.
type InputsRequest struct {
	MetadataFilter      *string `json:"metadata_filter"`
	FilepathGlobPattern *string `json:"filepath_globpattern"`
}

// Client talks to one vector store server.
type Client struct {
	http    *http.Client
	logger  *logx.Logger
	baseURL string
}

// NewClient creates a client for baseURL. A zero timeout uses DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logx.NewLogger("pathway"),
	}
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string { return c.baseURL }

// Query retrieves the k fragments closest to text.
func (c *Client) Query(ctx context.Context, text string, k int) ([]retrieval.Fragment, error) {
	return c.Retrieve(ctx, RetrieveRequest{Query: text, K: k})
}

// Retrieve runs a retrieve call with optional metadata and path filters.
func (c *Client) Retrieve(ctx context.Context, req RetrieveRequest) ([]retrieval.Fragment, error) {
	var fragments []retrieval.Fragment
	if err := c.post(ctx, RetrievePath, req, &fragments); err != nil {
		return nil, err
	}
	logx.Debug(ctx, "retrieval", "pathway returned %d fragments for k=%d", len(fragments), req.K)
	return fragments, nil
}

// Statistics reports the size and freshness of the index.
func (c *Client) Statistics(ctx context.Context) (*Statistics, error) {
	var stats Statistics
	if err := c.post(ctx, StatisticsPath, struct{}{}, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Inputs lists the metadata of every indexed document.
func (c *Client) Inputs(ctx context.Context, req InputsRequest) ([]map[string]any, error) {
	var inputs []map[string]any
	if err := c.post(ctx, InputsPath, req, &inputs); err != nil {
		return nil, err
	}
	return inputs, nil
}

// post sends body as JSON and decodes the JSON reply into out. Every failure
// wraps retrieval.ErrRetrieval.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: encode %s request: %w", retrieval.ErrRetrieval, path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: build %s request: %w", retrieval.ErrRetrieval, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("index request %s failed: %v", path, err)
		return fmt.Errorf("%w: %s: %w", retrieval.ErrRetrieval, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read %s response: %w", retrieval.ErrRetrieval, path, err)
	}
	c.logger.Debug("%s -> %d in %v", path, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(data)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody] + "..."
		}
		return fmt.Errorf("%w: %s returned status %d: %s", retrieval.ErrRetrieval, path, resp.StatusCode, strings.TrimSpace(snippet))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: malformed %s response: %w", retrieval.ErrRetrieval, path, err)
	}
	return nil
}
