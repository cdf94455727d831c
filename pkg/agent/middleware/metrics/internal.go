package metrics

import (
	"sort"
	"sync"
	"time"
)

// InternalRecorder aggregates usage in memory so the API can report it
// without a Prometheus server.
type InternalRecorder struct {
	models map[string]*ModelUsage
	mu     sync.RWMutex
}

// ModelUsage represents aggregated usage for one model.
//
//nolint:govet
type ModelUsage struct {
	PromptTokens     int64     `json:"prompt_tokens"`
	CompletionTokens int64     `json:"completion_tokens"`
	TotalTokens      int64     `json:"total_tokens"`
	RequestCount     int64     `json:"request_count"`
	ErrorCount       int64     `json:"error_count"`
	Model            string    `json:"model"`
	LastUpdated      time.Time `json:"last_updated"`
}

// NewInternalRecorder returns an empty in-memory recorder.
func NewInternalRecorder() *InternalRecorder {
	return &InternalRecorder{
		models: make(map[string]*ModelUsage),
	}
}

// ObserveRequest records metrics for a completed LLM request.
func (r *InternalRecorder) ObserveRequest(
	model string,
	promptTokens, completionTokens int,
	success bool,
	_ string,
	_ time.Duration,
) {
	r.mu.Lock()
	defer r.mu.Unlock()

	usage, exists := r.models[model]
	if !exists {
		usage = &ModelUsage{Model: model}
		r.models[model] = usage
	}

	usage.RequestCount++
	usage.LastUpdated = time.Now()
	if !success {
		usage.ErrorCount++
		return
	}
	usage.PromptTokens += int64(promptTokens)
	usage.CompletionTokens += int64(completionTokens)
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
}

// GetModelUsage returns a copy of the usage for model, or nil if it was never called.
func (r *InternalRecorder) GetModelUsage(model string) *ModelUsage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if usage, exists := r.models[model]; exists {
		cp := *usage
		return &cp
	}
	return nil
}

// Snapshot returns copies of every model's usage, ordered by model name.
func (r *InternalRecorder) Snapshot() []ModelUsage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]ModelUsage, 0, len(r.models))
	for _, usage := range r.models {
		result = append(result, *usage)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Model < result[j].Model })
	return result
}

// Reset clears all metrics (useful for testing).
func (r *InternalRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models = make(map[string]*ModelUsage)
}
