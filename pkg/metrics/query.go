package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// Summary aggregates pipeline activity since the counters were created.
//
//nolint:govet // logical field grouping
type Summary struct {
	TotalQueries      int64            `json:"total_queries"`
	ByStatus          map[string]int64 `json:"by_status"`
	ByStrategy        map[string]int64 `json:"by_strategy"`
	ByConfidenceLevel map[string]int64 `json:"by_confidence_level"`
	Degrades          map[string]int64 `json:"degrades"`
	FileLocks         map[string]int64 `json:"file_locks"`
	AverageConfidence float64          `json:"average_confidence"`
}

// ModelTokens represents token usage of one model.
type ModelTokens struct {
	Model            string `json:"model"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
	TotalTokens      int64  `json:"total_tokens"`
	Requests         int64  `json:"requests"`
}

// QueryService provides methods to query metrics from Prometheus.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a new metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

// vector runs an instant query and returns its samples. Non-vector results are empty.
func (q *QueryService) vector(ctx context.Context, query string) (model.Vector, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query %q: %w", query, err)
	}
	vector, _ := result.(model.Vector)
	return vector, nil
}

// scalar returns the first sample of an instant query, or 0 when there is none.
func (q *QueryService) scalar(ctx context.Context, query string) (float64, error) {
	vector, err := q.vector(ctx, query)
	if err != nil {
		return 0, err
	}
	if len(vector) == 0 {
		return 0, nil
	}
	return float64(vector[0].Value), nil
}

// byLabel sums metric grouped by label.
func (q *QueryService) byLabel(ctx context.Context, metric, label string) (map[string]int64, error) {
	vector, err := q.vector(ctx, fmt.Sprintf(`sum by (%s) (%s)`, label, metric))
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(vector))
	for _, sample := range vector {
		out[string(sample.Metric[model.LabelName(label)])] = int64(sample.Value)
	}
	return out, nil
}

// GetSummary retrieves aggregate pipeline metrics.
func (q *QueryService) GetSummary(ctx context.Context) (*Summary, error) {
	summary := &Summary{}

	total, err := q.scalar(ctx, `sum(codeqa_queries_total)`)
	if err != nil {
		return nil, err
	}
	summary.TotalQueries = int64(total)

	groups := []struct {
		metric, label string
		dst           *map[string]int64
	}{
		{"codeqa_queries_total", "status", &summary.ByStatus},
		{`codeqa_queries_total{status!="error"}`, "strategy", &summary.ByStrategy},
		{`codeqa_queries_total{status!="error"}`, "confidence_level", &summary.ByConfidenceLevel},
		{"codeqa_degrades_total", "kind", &summary.Degrades},
		{"codeqa_retrieval_file_lock_total", "outcome", &summary.FileLocks},
	}
	for _, g := range groups {
		values, err := q.byLabel(ctx, g.metric, g.label)
		if err != nil {
			return nil, err
		}
		*g.dst = values
	}

	sum, err := q.scalar(ctx, `sum(codeqa_confidence_score_sum)`)
	if err != nil {
		return nil, err
	}
	count, err := q.scalar(ctx, `sum(codeqa_confidence_score_count)`)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		summary.AverageConfidence = sum / count
	}

	return summary, nil
}

// GetModelTokens retrieves token usage broken down by model.
func (q *QueryService) GetModelTokens(ctx context.Context) (map[string]*ModelTokens, error) {
	result := make(map[string]*ModelTokens)
	get := func(name string) *ModelTokens {
		if m, ok := result[name]; ok {
			return m
		}
		m := &ModelTokens{Model: name}
		result[name] = m
		return m
	}

	vector, err := q.vector(ctx, `sum by (model, type) (codeqa_llm_tokens_total)`)
	if err != nil {
		return nil, err
	}
	for _, sample := range vector {
		m := get(string(sample.Metric["model"]))
		switch sample.Metric["type"] {
		case "prompt":
			m.PromptTokens = int64(sample.Value)
		case "completion":
			m.CompletionTokens = int64(sample.Value)
		}
		m.TotalTokens = m.PromptTokens + m.CompletionTokens
	}

	requests, err := q.byLabel(ctx, "codeqa_llm_requests_total", "model")
	if err != nil {
		return nil, err
	}
	for name, n := range requests {
		get(name).Requests = n
	}

	return result, nil
}
