package tools

import (
	"context"
	"fmt"
	"strings"

	"codeqa/pkg/agent/llm"
)

// Change is one diff line found by extract_changes.
type Change struct {
	Type string `json:"type"`
	File string `json:"file"`
}

const summarizePrompt = `
You are a senior software engineer.

Task:
Summarize the following retrieved code context for the user query.

User query:
%s

Retrieved context (may include multiple files):
%s

Rules:
- Focus on the main functionality and structure
- Do NOT invent files or behavior
- If context is noisy or mixed, summarize the dominant purpose
- If context does not clearly answer the query, say so
- Output plain text (no JSON)
`

// SummarizePrompt renders the summarization instruction for query over context.
func SummarizePrompt(query, ctxText string) string {
	return fmt.Sprintf(summarizePrompt, query, truncate(ctxText, summaryContextChars))
}

// ExtractKeyPoints returns the first n non-blank lines of text.
func ExtractKeyPoints(text string, n int) []string {
	if n < 0 {
		n = 0
	}
	points := make([]string, 0, n)
	for _, line := range strings.Split(text, "\n") {
		if len(points) >= n {
			break
		}
		if strings.TrimSpace(line) != "" {
			points = append(points, line)
		}
	}
	return points
}

// ExtractChanges reports a change for every line starting with + or -.
func ExtractChanges(text string) []Change {
	changes := []Change{}
	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.HasPrefix(line, "+"):
			changes = append(changes, Change{Type: ChangeAdd, File: UnknownFile})
		case strings.HasPrefix(line, "-"):
			changes = append(changes, Change{Type: ChangeRemove, File: UnknownFile})
		}
	}
	return changes
}

// CompareVersions reports whether old and new differ at all.
func CompareVersions(old, new string) string { //nolint:predeclared // mirrors the tool's argument names
	if old != new {
		return VerdictDifferent
	}
	return VerdictSame
}

// ExpressUncertainty phrases reason as a hedged opening sentence.
func ExpressUncertainty(reason string) string {
	return fmt.Sprintf("I may be mistaken, but %s.\n\n", strings.ToLower(reason))
}

// truncate keeps the first n characters of s.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// SummarizeTool implements llm_summarize.
type SummarizeTool struct {
	generator llm.TextGenerator
}

// NewSummarizeTool creates llm_summarize backed by generator.
func NewSummarizeTool(generator llm.TextGenerator) *SummarizeTool {
	return &SummarizeTool{generator: generator}
}

// Name returns the tool name.
func (t *SummarizeTool) Name() string { return ToolLLMSummarize }

// Definition returns the tool definition.
func (t *SummarizeTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolLLMSummarize,
		Description: "Summarize retrieved code context for a query using the language model",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"query":   stringProp("The user's question"),
				"context": stringProp("Retrieved context; only the first 3000 characters are used"),
			},
			Required: []string{"query", "context"},
		},
	}
}

// Exec returns the generated summary verbatim. Backend failures arrive as a
// diagnostic string, not an error.
func (t *SummarizeTool) Exec(ctx context.Context, args map[string]any) (any, error) {
	prompt := SummarizePrompt(stringArg(args, "query"), stringArg(args, "context"))
	return t.generator.Generate(ctx, prompt, ""), nil
}

// KeyPointsTool implements extract_key_points.
type KeyPointsTool struct{}

// Name returns the tool name.
func (t *KeyPointsTool) Name() string { return ToolExtractKeyPoints }

// Definition returns the tool definition.
func (t *KeyPointsTool) Definition() ToolDefinition {
	minimum := 0.0
	return ToolDefinition{
		Name:        ToolExtractKeyPoints,
		Description: "Return the first n non-blank lines of a text",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"text": stringProp("Text to scan"),
				"n":    {Type: "integer", Description: "Number of lines to keep", Minimum: &minimum},
			},
			Required: []string{"text", "n"},
		},
	}
}

// Exec executes the tool with the given arguments.
func (t *KeyPointsTool) Exec(_ context.Context, args map[string]any) (any, error) {
	var n int
	switch v := args["n"].(type) {
	case int:
		n = v
	case float64:
		n = int(v)
	default:
		return nil, fmt.Errorf("n must be an integer")
	}
	return ExtractKeyPoints(stringArg(args, "text"), n), nil
}

// ChangesTool implements extract_changes.
type ChangesTool struct{}

// Name returns the tool name.
func (t *ChangesTool) Name() string { return ToolExtractChanges }

// Definition returns the tool definition.
func (t *ChangesTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolExtractChanges,
		Description: "List added and removed lines marked with + or -",
		InputSchema: InputSchema{
			Type:       "object",
			Properties: map[string]Property{"text": stringProp("Diff-like text")},
			Required:   []string{"text"},
		},
	}
}

// Exec executes the tool with the given arguments.
func (t *ChangesTool) Exec(_ context.Context, args map[string]any) (any, error) {
	return ExtractChanges(stringArg(args, "text")), nil
}

// CompareTool implements compare_versions.
type CompareTool struct{}

// Name returns the tool name.
func (t *CompareTool) Name() string { return ToolCompareVersions }

// Definition returns the tool definition.
func (t *CompareTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolCompareVersions,
		Description: "Report whether two versions of a text differ",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"old": stringProp("Earlier version"),
				"new": stringProp("Later version"),
			},
			Required: []string{"old", "new"},
		},
	}
}

// Exec executes the tool with the given arguments.
func (t *CompareTool) Exec(_ context.Context, args map[string]any) (any, error) {
	return CompareVersions(stringArg(args, "old"), stringArg(args, "new")), nil
}

// UncertaintyTool implements express_uncertainty.
type UncertaintyTool struct{}

// Name returns the tool name.
func (t *UncertaintyTool) Name() string { return ToolExpressUncertainty }

// Definition returns the tool definition.
func (t *UncertaintyTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolExpressUncertainty,
		Description: "Phrase an uncertain answer around a reason",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"query":   stringProp("The user's question"),
				"context": stringProp("Retrieved context"),
				"reason":  stringProp("Why the answer is uncertain"),
			},
			Required: []string{"reason"},
		},
	}
}

// Exec executes the tool with the given arguments.
func (t *UncertaintyTool) Exec(_ context.Context, args map[string]any) (any, error) {
	return ExpressUncertainty(stringArg(args, "reason")), nil
}
