// Package planner picks an answering strategy from the query and the quality
// of the retrieved context.
package planner

import (
	"strings"
	"unicode/utf8"
)

// Strategy names how the agent answers a query.
type Strategy string

// Strategies.
const (
	StrategyDirect        Strategy = "direct"
	StrategySummarize     Strategy = "summarize"
	StrategyExplainChange Strategy = "explain_change"
	StrategyUncertain     Strategy = "uncertain"
)

// Context quality values.
const (
	QualityGood    = "good"
	QualityLimited = "limited"
)

// goodContextChars is the context length above which context counts as good.
const goodContextChars = 500

// Tool names the planner may request.
const (
	ToolLLMSummarize       = "llm_summarize"
	ToolExtractChanges     = "extract_changes"
	ToolExpressUncertainty = "express_uncertainty"
)

// Metadata describes the retrieved context.
type Metadata struct {
	ContextQuality string `json:"context_quality"`
	NumSources     int    `json:"num_sources"`
	TotalChars     int    `json:"total_chars"`
}

// NewMetadata derives metadata for a context built from numSources fragments.
func NewMetadata(context string, numSources int) Metadata {
	return Metadata{
		NumSources:     numSources,
		TotalChars:     utf8.RuneCountInString(context),
		ContextQuality: QualityFor(context),
	}
}

// QualityFor classifies a context by its length in characters.
func QualityFor(context string) string {
	if utf8.RuneCountInString(context) > goodContextChars {
		return QualityGood
	}
	return QualityLimited
}

// Plan is the decision record for one query. ConfidenceThreshold is reported
// but nothing compares it against the final score.
//
//nolint:govet // logical field grouping
type Plan struct {
	Strategy            Strategy `json:"strategy"`
	ToolsNeeded         []string `json:"tools_needed"`
	Reasoning           string   `json:"reasoning"`
	ConfidenceThreshold float64  `json:"confidence_threshold"`
}

// rule is one row of the decision table.
type rule struct {
	match func(query string, md Metadata) bool
	plan  Plan
}

// rules are evaluated in order; the first match wins. The last rule always matches.
//
//nolint:gochecknoglobals // ordered decision table
var rules = []rule{
	{
		// An empty quality counts as limited.
		match: func(_ string, md Metadata) bool { return md.ContextQuality != QualityGood },
		plan:  Plan{StrategyUncertain, []string{ToolExpressUncertainty}, "Context limited", 0.4},
	},
	{
		match: func(q string, _ Metadata) bool {
			return strings.Contains(q, "summary") || strings.Contains(q, "summarize")
		},
		plan: Plan{StrategySummarize, []string{ToolLLMSummarize}, "LLM-based summary requested", 0.7},
	},
	{
		match: func(q string, _ Metadata) bool { return strings.Contains(q, "change") },
		plan:  Plan{StrategyExplainChange, []string{ToolExtractChanges}, "Change explanation", 0.75},
	},
	{
		match: func(string, Metadata) bool { return true },
		plan:  Plan{StrategyDirect, []string{}, "Direct answer", 0.8},
	},
}

// Planner chooses a Plan. It has no state and no side effects.
type Planner struct{}

// New returns a Planner.
func New() *Planner {
	return &Planner{}
}

// Plan applies the decision table. The context itself is not inspected;
// its quality arrives through metadata.
func (p *Planner) Plan(query, _ string, md Metadata) Plan {
	q := strings.ToLower(query)
	for _, r := range rules {
		if r.match(q, md) {
			out := r.plan
			out.ToolsNeeded = append([]string{}, r.plan.ToolsNeeded...)
			return out
		}
	}
	// Unreachable: the final rule matches everything.
	return Plan{Strategy: StrategyDirect, ToolsNeeded: []string{}, Reasoning: "Direct answer", ConfidenceThreshold: 0.8}
}
