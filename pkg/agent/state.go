package agent

import (
	"fmt"

	"codeqa/pkg/confidence"
	"codeqa/pkg/planner"
	"codeqa/pkg/retrieval"
	"codeqa/pkg/tools"
)

// Stage is one step of the answer pipeline.
type Stage string

// Pipeline stages, in execution order.
const (
	StageObserve    Stage = "observe"
	StagePlan       Stage = "plan"
	StageRoute      Stage = "route"
	StageUseTools   Stage = "use_tools"
	StageGenerate   Stage = "generate"
	StageAssess     Stage = "assess_confidence"
	StageFormat     Stage = "format_output"
	StageDone       Stage = "done"
	stageUnassigned Stage = ""
)

// ValidTransitions defines allowed transitions for each stage.
//
//nolint:gochecknoglobals // static transition table
var ValidTransitions = map[Stage][]Stage{
	stageUnassigned: {StageObserve},
	StageObserve:    {StagePlan},
	StagePlan:       {StageRoute},
	StageRoute:      {StageUseTools, StageGenerate},
	StageUseTools:   {StageGenerate},
	StageGenerate:   {StageAssess},
	StageAssess:     {StageFormat},
	StageFormat:     {StageDone},
}

// IsValidTransition checks if a stage transition is allowed.
func IsValidTransition(from, to Stage) bool {
	for _, s := range ValidTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Degrade kinds tagged on a QueryState when a stage falls back instead of failing.
const (
	DegradeParseFailure      = "parse_failure"
	DegradeSchemaViolation   = "schema_violation"
	DegradeGenerationFailure = "generation_failure"
	DegradeUnknownTool       = "unknown_tool"
	DegradeToolFailure       = "tool_failure"
)

// TraceEntry records what one stage did.
type TraceEntry struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
}

// Answer is the unhedged answer produced by generate.
type Answer struct {
	Explanation string `json:"explanation"`
	Code        string `json:"code"`
	Instruction string `json:"instruction"`
}

// QueryState is everything one query accumulates. It is created by Answer,
// owned by a single query, and discarded afterwards.
//
//nolint:govet // fields grouped by the stage that writes them
type QueryState struct {
	RequestID string `json:"request_id"`
	Query     string `json:"query"`
	Stage     Stage  `json:"stage"`

	// observe
	Fragments []retrieval.Fragment `json:"fragments"`
	Context   string               `json:"context"`
	Metadata  planner.Metadata     `json:"metadata"`

	// plan
	Plan planner.Plan `json:"plan"`

	// use_tools
	ToolResults tools.Results `json:"tool_results"`
	ToolsUsed   []string      `json:"tools_used"` // result keys in the order they were produced

	// generate
	Answer Answer `json:"answer"`

	// assess_confidence
	Confidence confidence.Result `json:"confidence"`

	// format_output
	FinalAnswer string `json:"final_answer"`

	Degraded []string     `json:"degraded,omitempty"`
	Trace    []TraceEntry `json:"trace"`
}

func newQueryState(requestID, query string) *QueryState {
	return &QueryState{
		RequestID:   requestID,
		Query:       query,
		ToolResults: tools.Results{},
		ToolsUsed:   []string{},
		Trace:       []TraceEntry{},
	}
}

// transitionTo moves the state to the next stage.
func (s *QueryState) transitionTo(next Stage) error {
	if !IsValidTransition(s.Stage, next) {
		return fmt.Errorf("invalid stage transition %s -> %s", s.Stage, next)
	}
	s.Stage = next
	return nil
}

// trace appends a trace entry for the current stage.
func (s *QueryState) trace(format string, args ...any) {
	s.Trace = append(s.Trace, TraceEntry{Stage: s.Stage, Message: fmt.Sprintf(format, args...)})
}

// degrade tags the state with a fallback that was taken.
func (s *QueryState) degrade(kind string) {
	s.Degraded = append(s.Degraded, kind)
}

// addResult stores a tool result. Existing keys are never replaced.
func (s *QueryState) addResult(key string, value any) {
	if _, exists := s.ToolResults[key]; exists {
		return
	}
	s.ToolResults[key] = value
	s.ToolsUsed = append(s.ToolsUsed, key)
}

// TraceMessages returns the trace as plain lines.
func (s *QueryState) TraceMessages() []string {
	out := make([]string, len(s.Trace))
	for i, e := range s.Trace {
		out[i] = e.Message
	}
	return out
}

// IsDegraded reports whether any stage fell back.
func (s *QueryState) IsDegraded() bool {
	return len(s.Degraded) > 0
}
