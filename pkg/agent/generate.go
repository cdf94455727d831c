package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// generationContextChars bounds the context embedded in the structured prompt.
const generationContextChars = 2000

const structuredPrompt = `User Question: %s

Live Context:
%s

You are a technical expert. Provide a structured response.
Respond ONLY in valid JSON format with the following keys:
- "explanation": The main answer text (can use Markdown).
- "code": Relevant code snippets from the context or generated examples.
- "instruction": Specific action items, warnings, or next steps.

Ensure the JSON is valid and properly escaped.
`

// answerSchema describes the structured generation output. Only the
// top-level object type is required; field types are checked separately so
// a loosely typed answer still yields its text.
const answerSchema = `{
  "type": "object",
  "properties": {
    "explanation": {"type": ["string", "null"]},
    "code": {"type": ["string", "null"]},
    "instruction": {"type": ["string", "null"]}
  }
}`

//nolint:gochecknoglobals // loaded once
var answerSchemaLoader = gojsonschema.NewStringLoader(answerSchema)

// StructuredPrompt renders the generation prompt for query over context.
func StructuredPrompt(query, ctxText string) string {
	runes := []rune(ctxText)
	if len(runes) > generationContextChars {
		ctxText = string(runes[:generationContextChars])
	}
	return fmt.Sprintf(structuredPrompt, query, ctxText)
}

// stripFences removes markdown code fences around a JSON reply.
func stripFences(raw string) string {
	clean := strings.ReplaceAll(raw, "```json", "")
	clean = strings.ReplaceAll(clean, "```", "")
	return strings.TrimSpace(clean)
}

// parseResult is the outcome of parsing a structured reply.
type parseResult struct {
	answer Answer
	err    error // set when the reply could not be used as JSON
	// schemaErrors lists field-level violations that were coerced.
	schemaErrors []string
}

// parseStructuredAnswer turns a model reply into an Answer. A reply that is
// not a JSON object becomes the explanation verbatim. A missing explanation
// falls back to the raw reply; missing code and instruction are empty.
func parseStructuredAnswer(raw string, validate bool) parseResult {
	clean := stripFences(raw)
	fallback := parseResult{answer: Answer{Explanation: raw}}

	var data map[string]any
	if err := json.Unmarshal([]byte(clean), &data); err != nil {
		fallback.err = fmt.Errorf("invalid JSON: %w", err)
		return fallback
	}
	if data == nil {
		fallback.err = fmt.Errorf("reply is not a JSON object")
		return fallback
	}

	out := parseResult{}
	if validate {
		errs, err := validateAgainst(answerSchemaLoader, clean)
		if err != nil {
			fallback.err = err
			return fallback
		}
		out.schemaErrors = errs
	}

	out.answer = Answer{
		Explanation: fieldText(data, "explanation", raw),
		Code:        fieldText(data, "code", ""),
		Instruction: fieldText(data, "instruction", ""),
	}
	return out
}

// validateAgainst returns the schema violations of doc.
func validateAgainst(schema gojsonschema.JSONLoader, doc string) ([]string, error) {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewStringLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}
	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return details, nil
}

// fieldText reads key from data as text. Absent and null values yield def;
// strings pass through; anything else is rendered as JSON.
func fieldText(data map[string]any, key, def string) string {
	v, ok := data[key]
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
