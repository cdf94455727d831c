package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingGenerator struct {
	prompts []string
	reply   string
}

func (g *recordingGenerator) Generate(_ context.Context, prompt, _ string) string {
	g.prompts = append(g.prompts, prompt)
	return g.reply
}

func TestExtractKeyPoints(t *testing.T) {
	text := "first\n\n   \nsecond\nthird\n\nfourth"
	assert.Equal(t, []string{"first", "second"}, ExtractKeyPoints(text, 2))
	assert.Equal(t, []string{"first", "second", "third", "fourth"}, ExtractKeyPoints(text, 10))
	assert.Empty(t, ExtractKeyPoints(text, 0))
	assert.Empty(t, ExtractKeyPoints("", 5))
}

func TestExtractChanges(t *testing.T) {
	text := "+added line\n unchanged\n-removed line\n+another\n- "
	want := []Change{
		{Type: ChangeAdd, File: UnknownFile},
		{Type: ChangeRemove, File: UnknownFile},
		{Type: ChangeAdd, File: UnknownFile},
		{Type: ChangeRemove, File: UnknownFile},
	}
	assert.Equal(t, want, ExtractChanges(text))
	assert.Empty(t, ExtractChanges("no diff markers here"))
	assert.NotNil(t, ExtractChanges(""))
}

func TestCompareVersions(t *testing.T) {
	assert.Equal(t, VerdictDifferent, CompareVersions("a", "b"))
	assert.Equal(t, VerdictSame, CompareVersions("same", "same"))
}

func TestExpressUncertainty(t *testing.T) {
	assert.Equal(t, "I may be mistaken, but context limited.\n\n", ExpressUncertainty("Context limited"))
}

func TestSummarizePromptTruncatesContext(t *testing.T) {
	ctxText := strings.Repeat("a", 3000) + "TAIL"
	prompt := SummarizePrompt("what is this", ctxText)
	assert.Contains(t, prompt, "You are a senior software engineer.")
	assert.Contains(t, prompt, "what is this")
	assert.Contains(t, prompt, "- Do NOT invent files or behavior")
	assert.NotContains(t, prompt, "TAIL")
}

func TestDefaultRegistryInvoke(t *testing.T) {
	gen := &recordingGenerator{reply: "The module handles auth."}
	r := NewDefaultRegistry(gen)

	out, err := r.Invoke(context.Background(), ToolLLMSummarize, map[string]any{"query": "summarize auth", "context": "ctx"})
	require.NoError(t, err)
	assert.Equal(t, "The module handles auth.", out)
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "summarize auth")

	out, err = r.Invoke(context.Background(), ToolExtractKeyPoints, map[string]any{"text": "a\nb\nc", "n": 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out)

	out, err = r.Invoke(context.Background(), ToolExpressUncertainty, map[string]any{"reason": "Context limited"})
	require.NoError(t, err)
	assert.Equal(t, "I may be mistaken, but context limited.\n\n", out)
}

func TestRegistryRejectsBadArgs(t *testing.T) {
	r := NewDefaultRegistry(&recordingGenerator{})

	_, err := r.Invoke(context.Background(), ToolExtractKeyPoints, map[string]any{"text": "a", "n": "five"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "arguments failed validation")

	_, err = r.Invoke(context.Background(), ToolCompareVersions, map[string]any{"old": "a"})
	require.Error(t, err)
}

func TestRegistryUnknownTool(t *testing.T) {
	r := NewDefaultRegistry(&recordingGenerator{})
	_, err := r.Invoke(context.Background(), "rewrite_codebase", nil)
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestRegistrySealedPanics(t *testing.T) {
	r := NewDefaultRegistry(&recordingGenerator{})
	assert.Panics(t, func() { r.Register(&ChangesTool{}) })
}

func TestRegistryListAndDocumentation(t *testing.T) {
	r := NewDefaultRegistry(&recordingGenerator{})
	defs := r.List()
	require.Len(t, defs, 5)
	assert.Equal(t, ToolCompareVersions, defs[0].Name)

	doc := r.GenerateToolDocumentation()
	assert.Contains(t, doc, "- **llm_summarize**")
	assert.Equal(t, "No tools available", NewRegistry().GenerateToolDocumentation())
}

func TestResults(t *testing.T) {
	res := Results{KeySummary: "text", KeyKeyPoints: []string{"a"}}
	assert.Equal(t, []string{KeyKeyPoints, KeySummary}, res.Keys())
	s, ok := res.String(KeySummary)
	assert.True(t, ok)
	assert.Equal(t, "text", s)
	_, ok = res.String(KeyKeyPoints)
	assert.False(t, ok)
}
