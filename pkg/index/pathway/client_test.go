package pathway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeqa/pkg/retrieval"
)

func TestQuery(t *testing.T) {
	var got RetrieveRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, RetrievePath, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`[
			{"text": "# File: README.md\n\nHello", "dist": 0.12, "metadata": {"path": "/repo/README.md", "chunk_id": 3}},
			{"text": "other", "dist": 0.4, "metadata": {}}
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second)
	fragments, err := c.Query(context.Background(), "what is in the readme", 7)
	require.NoError(t, err)

	assert.Equal(t, "what is in the readme", got.Query)
	assert.Equal(t, 7, got.K)
	assert.Nil(t, got.MetadataFilter)

	require.Len(t, fragments, 2)
	assert.Equal(t, "/repo/README.md", fragments[0].Path())
	id, ok := fragments[0].ChunkID()
	assert.True(t, ok)
	assert.Equal(t, "3", id)
	assert.InDelta(t, 0.12, fragments[0].Distance, 1e-9)
	assert.Empty(t, fragments[1].Path())
}

func TestRetrieveSendsNullFilters(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	glob := "**/*.go"
	_, err := NewClient(srv.URL, 0).Retrieve(context.Background(), RetrieveRequest{Query: "q", K: 1, FilepathGlobPattern: &glob})
	require.NoError(t, err)

	assert.Contains(t, raw, "metadata_filter")
	assert.Nil(t, raw["metadata_filter"])
	assert.Equal(t, "**/*.go", raw["filepath_globpattern"])
}

func TestFailuresWrapRetrievalError(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "index not ready", http.StatusServiceUnavailable)
		}},
		{"malformed json", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"not": "a list"`))
		}},
		{"wrong shape", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"text": "x"}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewClient(srv.URL, time.Second).Query(context.Background(), "q", 5)
			require.Error(t, err)
			assert.ErrorIs(t, err, retrieval.ErrRetrieval)
		})
	}
}

func TestUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, time.Second).Query(context.Background(), "q", 5)
	assert.ErrorIs(t, err, retrieval.ErrRetrieval)
}

func TestStatisticsAndInputs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case StatisticsPath:
			_, _ = w.Write([]byte(`{"file_count": 12, "last_modified": 1700000000, "last_indexed": 1700000100}`))
		case InputsPath:
			_, _ = w.Write([]byte(`[{"path": "a.go"}, {"path": "b.go"}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	stats, err := c.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, stats.FileCount)
	assert.Equal(t, int64(1700000100), stats.LastIndexed)

	inputs, err := c.Inputs(context.Background(), InputsRequest{})
	require.NoError(t, err)
	require.Len(t, inputs, 2)
	assert.Equal(t, "b.go", inputs[1]["path"])
}
