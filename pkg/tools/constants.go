package tools

// Tool name constants - use these instead of magic strings to prevent typos.
const (
	ToolLLMSummarize       = "llm_summarize"
	ToolExtractKeyPoints   = "extract_key_points"
	ToolExtractChanges     = "extract_changes"
	ToolCompareVersions    = "compare_versions"
	ToolExpressUncertainty = "express_uncertainty"
)

// Result keys under which the agent stores each tool's output.
const (
	KeySummary             = "summary"
	KeyKeyPoints           = "key_points"
	KeyChanges             = "changes"
	KeyComparison          = "comparison"
	KeyUncertaintyResponse = "uncertainty_response"
)

// DefaultKeyPoints is how many lines extract_key_points keeps when asked by the agent.
const DefaultKeyPoints = 5

// summaryContextChars bounds the context handed to the summarizer.
const summaryContextChars = 3000

// Change kinds reported by extract_changes.
const (
	ChangeAdd    = "add"
	ChangeRemove = "remove"

	// UnknownFile is the attribution of every change; diff lines carry no file.
	UnknownFile = "unknown"
)

// Comparison verdicts.
const (
	VerdictDifferent = "Differences detected"
	VerdictSame      = "No differences"
)
