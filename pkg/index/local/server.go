package local

import (
	"encoding/json"
	"net/http"
	"path"
	"time"

	"codeqa/pkg/index/pathway"
	"codeqa/pkg/logx"
	"codeqa/pkg/retrieval"
)

// globOversample widens the candidate set when a path filter will discard some.
const globOversample = 10

// Server exposes an Index over the vector store HTTP contract, plus the
// GitHub push webhook that refreshes a cloned repository.
type Server struct {
	index  *Index
	repo   *RepoSyncer
	logger *logx.Logger
}

// NewServer creates a server for index. repo may be nil when no repository is tracked.
func NewServer(index *Index, repo *RepoSyncer) *Server {
	return &Server{
		index:  index,
		repo:   repo,
		logger: logx.NewLogger("index-server"),
	}
}

// RegisterRoutes registers all index routes with mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	s.RegisterIndexRoutes(mux)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/github-webhook", s.handleGitHubWebhook)
}

// RegisterIndexRoutes registers only the Pathway-compatible routes, for
// mounting the index next to the agent API.
func (s *Server) RegisterIndexRoutes(mux *http.ServeMux) {
	mux.HandleFunc(pathway.RetrievePath, s.handleRetrieve)
	mux.HandleFunc(pathway.StatisticsPath, s.handleStatistics)
	mux.HandleFunc(pathway.InputsPath, s.handleInputs)
}

// Handler returns a mux serving all index routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode response: %v", err)
	}
}

// handleRetrieve implements POST /v1/retrieve.
func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req pathway.RetrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}
	if req.K <= 0 {
		req.K = retrieval.DefaultK
	}
	if req.MetadataFilter != nil {
		s.logger.Debug("ignoring metadata_filter %q", *req.MetadataFilter)
	}

	k := req.K
	glob := ""
	if req.FilepathGlobPattern != nil {
		glob = *req.FilepathGlobPattern
		k *= globOversample
	}

	fragments, err := s.index.Query(r.Context(), req.Query, k)
	if err != nil {
		s.logger.Error("retrieve failed: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if glob != "" {
		fragments = filterByGlob(fragments, glob, req.K)
	}
	if fragments == nil {
		fragments = []retrieval.Fragment{}
	}

	s.writeJSON(w, http.StatusOK, fragments)
}

// filterByGlob keeps up to k fragments whose path or base name matches glob.
func filterByGlob(fragments []retrieval.Fragment, glob string, k int) []retrieval.Fragment {
	kept := make([]retrieval.Fragment, 0, k)
	for _, f := range fragments {
		p := f.Path()
		full, _ := path.Match(glob, p)
		base, _ := path.Match(glob, path.Base(p))
		if full || base {
			kept = append(kept, f)
			if len(kept) == k {
				break
			}
		}
	}
	return kept
}

// handleStatistics implements POST /v1/statistics.
func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats, err := s.index.Stats()
	if err != nil {
		s.logger.Error("statistics failed: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, pathway.Statistics{
		FileCount:    stats.FileCount,
		LastModified: unixOrZero(stats.LastModified),
		LastIndexed:  unixOrZero(stats.LastIndexed),
	})
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// handleInputs implements POST /v1/inputs.
func (s *Server) handleInputs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	inputs, err := s.index.Inputs()
	if err != nil {
		s.logger.Error("inputs failed: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, inputs)
}

// handleHealth implements GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "index",
	})
}

// handleGitHubWebhook implements POST /github-webhook. Any delivery triggers
// a pull followed by a resync of the working copy.
func (s *Server) handleGitHubWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.repo == nil {
		http.Error(w, "No repository configured", http.StatusNotFound)
		return
	}

	s.logger.Info("🔥 GitHub webhook received (event: %s)", r.Header.Get("X-GitHub-Event"))
	if err := s.repo.Sync(r.Context()); err != nil {
		s.logger.Error("git sync failed: %v", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if err := s.index.Sync(r.Context(), s.repo.Folder()); err != nil {
		s.logger.Error("reindex after pull failed: %v", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}
