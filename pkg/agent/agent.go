package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"codeqa/pkg/agent/llm"
	"codeqa/pkg/confidence"
	"codeqa/pkg/logx"
	"codeqa/pkg/planner"
	"codeqa/pkg/retrieval"
	"codeqa/pkg/tools"
)

// Query outcomes reported to a Recorder.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusError    = "error"
)

// Recorder observes pipeline activity.
type Recorder interface {
	ObserveStage(stage string, d time.Duration)
	ObserveQuery(strategy, level string, score float64, status string)
	IncDegrade(kind string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveStage(string, time.Duration)          {}
func (nopRecorder) ObserveQuery(string, string, float64, string) {}
func (nopRecorder) IncDegrade(string)                            {}

// Options configures an Agent. Index and Generator are required.
type Options struct {
	Index     retrieval.IndexClient
	Generator llm.TextGenerator
	// Tools defaults to the built-in registry backed by Generator.
	Tools *tools.Registry
	// Recorder defaults to a no-op. A Recorder that also implements
	// retrieval.LockObserver sees file-lock outcomes.
	Recorder Recorder
	// TopK defaults to retrieval.DefaultK.
	TopK int
	// ValidateJSON checks structured answers against a JSON schema.
	ValidateJSON bool
}

// Agent answers questions about the indexed codebase. It holds only
// collaborators that are fixed after construction.
type Agent struct {
	retriever    *retrieval.Retriever
	planner      *planner.Planner
	tools        *tools.Registry
	generator    llm.TextGenerator
	assessor     *confidence.Assessor
	recorder     Recorder
	topK         int
	validateJSON bool
	logger       *logx.Logger
}

// New creates an Agent.
func New(opts Options) (*Agent, error) {
	if opts.Index == nil {
		return nil, fmt.Errorf("agent: index client is required")
	}
	if opts.Generator == nil {
		return nil, fmt.Errorf("agent: text generator is required")
	}
	if opts.Tools == nil {
		opts.Tools = tools.NewDefaultRegistry(opts.Generator)
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.TopK <= 0 {
		opts.TopK = retrieval.DefaultK
	}

	var retrieverOpts []retrieval.Option
	if observer, ok := opts.Recorder.(retrieval.LockObserver); ok {
		retrieverOpts = append(retrieverOpts, retrieval.WithLockObserver(observer))
	}

	return &Agent{
		retriever:    retrieval.NewRetriever(opts.Index, retrieverOpts...),
		planner:      planner.New(),
		tools:        opts.Tools,
		generator:    opts.Generator,
		assessor:     confidence.NewAssessor(),
		recorder:     opts.Recorder,
		topK:         opts.TopK,
		validateJSON: opts.ValidateJSON,
		logger:       logx.NewLogger("agent"),
	}, nil
}

// Tools returns the tool registry the agent invokes.
func (a *Agent) Tools() *tools.Registry {
	return a.tools
}

// Answer runs the full pipeline for query. Only a retrieval failure aborts it;
// every other failure degrades the answer and is tagged on the state.
func (a *Agent) Answer(ctx context.Context, query string) (*QueryState, error) {
	requestID := logx.RequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = logx.WithRequestID(ctx, requestID)
	}
	state := newQueryState(requestID, query)

	for next := StageObserve; next != StageDone; {
		if err := state.transitionTo(next); err != nil {
			return state, err
		}
		start := time.Now()
		following, err := a.step(ctx, state)
		a.recorder.ObserveStage(string(state.Stage), time.Since(start))
		if err != nil {
			a.recorder.ObserveQuery("", "", 0, StatusError)
			a.logger.Error("query %s failed in %s: %v", requestID, state.Stage, err)
			return state, err
		}
		next = following
	}

	status := StatusOK
	if state.IsDegraded() {
		status = StatusDegraded
	}
	a.recorder.ObserveQuery(string(state.Plan.Strategy), string(state.Confidence.Level), state.Confidence.Score, status)
	return state, nil
}

// step runs the current stage and returns the one that follows it.
func (a *Agent) step(ctx context.Context, s *QueryState) (Stage, error) {
	switch s.Stage {
	case StageObserve:
		return StagePlan, a.observe(ctx, s)
	case StagePlan:
		a.plan(s)
		return StageRoute, nil
	case StageRoute:
		return a.route(s), nil
	case StageUseTools:
		a.useTools(ctx, s)
		return StageGenerate, nil
	case StageGenerate:
		a.generate(ctx, s)
		return StageAssess, nil
	case StageAssess:
		a.assess(s)
		return StageFormat, nil
	case StageFormat:
		a.format(s)
		return StageDone, nil
	default:
		return StageDone, fmt.Errorf("unknown stage %q", s.Stage)
	}
}

// observe reads Query; writes Fragments, Context and Metadata.
func (a *Agent) observe(ctx context.Context, s *QueryState) error {
	fragments, err := a.retriever.Retrieve(ctx, s.Query, a.topK)
	if err != nil {
		return err
	}
	s.Fragments = fragments
	s.Context = retrieval.BuildContext(fragments)
	s.Metadata = planner.NewMetadata(s.Context, len(fragments))

	logx.Debug(ctx, "agent", "retrieved %d sources (%d chars, %s)",
		s.Metadata.NumSources, s.Metadata.TotalChars, s.Metadata.ContextQuality)
	s.trace("[OBSERVE] Retrieved %d sources", len(fragments))
	return nil
}

// plan reads Query, Context and Metadata; writes Plan.
func (a *Agent) plan(s *QueryState) {
	s.Plan = a.planner.Plan(s.Query, s.Context, s.Metadata)
	a.logger.Debug("strategy %s (%s), tools %v, threshold %.2f",
		s.Plan.Strategy, s.Plan.Reasoning, s.Plan.ToolsNeeded, s.Plan.ConfidenceThreshold)
	s.trace("[PLAN] Strategy: %s", s.Plan.Strategy)
}

// route reads Plan.ToolsNeeded.
func (a *Agent) route(s *QueryState) Stage {
	if len(s.Plan.ToolsNeeded) > 0 {
		s.trace("[ROUTE] Tools needed -> %s", StageUseTools)
		return StageUseTools
	}
	s.trace("[ROUTE] No tools needed -> %s", StageGenerate)
	return StageGenerate
}

// toolBinding tells the agent how to call a tool from the state and where
// to store its result. ok=false skips the call.
type toolBinding struct {
	resultKey string
	args      func(s *QueryState) (args map[string]any, ok bool)
}

//nolint:gochecknoglobals // static lookup table
var toolBindings = map[string]toolBinding{
	tools.ToolLLMSummarize: {tools.KeySummary, func(s *QueryState) (map[string]any, bool) {
		return map[string]any{"query": s.Query, "context": s.Context}, true
	}},
	tools.ToolExtractKeyPoints: {tools.KeyKeyPoints, func(s *QueryState) (map[string]any, bool) {
		return map[string]any{"text": s.Context, "n": tools.DefaultKeyPoints}, true
	}},
	tools.ToolExtractChanges: {tools.KeyChanges, func(s *QueryState) (map[string]any, bool) {
		return map[string]any{"text": s.Context}, true
	}},
	tools.ToolCompareVersions: {tools.KeyComparison, func(s *QueryState) (map[string]any, bool) {
		parts := strings.Split(s.Context, "FILE #")
		if len(parts) < 3 {
			return nil, false
		}
		return map[string]any{"old": parts[1], "new": parts[2]}, true
	}},
	tools.ToolExpressUncertainty: {tools.KeyUncertaintyResponse, func(s *QueryState) (map[string]any, bool) {
		return map[string]any{"query": s.Query, "context": s.Context, "reason": s.Plan.Reasoning}, true
	}},
}

// useTools reads Plan and Context; writes ToolResults. Unknown or failing
// tools are skipped and tagged.
func (a *Agent) useTools(ctx context.Context, s *QueryState) {
	for _, name := range s.Plan.ToolsNeeded {
		binding, known := toolBindings[name]
		if _, registered := a.tools.Get(name); !known || !registered {
			a.logger.Warn("skipping unknown tool %q", name)
			a.tagDegrade(s, DegradeUnknownTool)
			continue
		}
		args, ok := binding.args(s)
		if !ok {
			logx.Debug(ctx, "agent", "tool %s has nothing to work on", name)
			continue
		}
		out, err := a.tools.Invoke(ctx, name, args)
		if err != nil {
			a.logger.Warn("tool %s failed: %v", name, err)
			a.tagDegrade(s, DegradeToolFailure)
			continue
		}
		s.addResult(binding.resultKey, out)
	}
	s.trace("[TOOLS] Executed %d tools", len(s.Plan.ToolsNeeded))
}

// generate reads Plan, ToolResults, Query and Context; writes Answer.
func (a *Agent) generate(ctx context.Context, s *QueryState) {
	if s.Plan.Strategy == planner.StrategySummarize {
		if summary, ok := s.ToolResults.String(tools.KeySummary); ok {
			if llm.IsDiagnostic(summary) {
				a.tagDegrade(s, DegradeGenerationFailure)
			}
			s.Answer = Answer{Explanation: summary}
			s.trace("[GENERATE] Summary from LLM tool")
			return
		}
	}

	if s.Plan.Strategy == planner.StrategyUncertain {
		if response, ok := s.ToolResults.String(tools.KeyUncertaintyResponse); ok {
			s.Answer = Answer{Explanation: response}
			s.trace("[GENERATE] Generated structured response")
			return
		}
	}

	raw := a.generator.Generate(ctx, StructuredPrompt(s.Query, s.Context), "")
	if llm.IsDiagnostic(raw) {
		a.logger.Warn("generation degraded: %s", raw)
		a.tagDegrade(s, DegradeGenerationFailure)
		s.Answer = Answer{Explanation: raw}
		s.trace("[GENERATE] Generated structured response")
		return
	}

	parsed := parseStructuredAnswer(raw, a.validateJSON)
	switch {
	case parsed.err != nil:
		a.logger.Warn("structured answer parse failed: %v. Falling back to raw text", parsed.err)
		a.tagDegrade(s, DegradeParseFailure)
	case len(parsed.schemaErrors) > 0:
		a.logger.Warn("structured answer does not match schema: %s", strings.Join(parsed.schemaErrors, "; "))
		a.tagDegrade(s, DegradeSchemaViolation)
	}
	s.Answer = parsed.answer
	s.trace("[GENERATE] Generated structured response")
}

// assess reads Query, Context, Answer and Metadata; writes Confidence.
func (a *Agent) assess(s *QueryState) {
	s.Confidence = a.assessor.Assess(s.Query, s.Context, s.Answer.Explanation, s.Metadata.NumSources)
	s.trace("[ASSESS] Confidence: %.2f%%", s.Confidence.Score*100)
}

// format reads Confidence and Answer; writes FinalAnswer.
func (a *Agent) format(s *QueryState) {
	s.FinalAnswer = confidence.Hedge(s.Confidence, s.Answer.Explanation)
	s.trace("[FORMAT] Output finalized")
}

func (a *Agent) tagDegrade(s *QueryState, kind string) {
	s.degrade(kind)
	a.recorder.IncDegrade(kind)
}
