package agent

// sourcePreviewChars is how much of a fragment a Source shows.
const sourcePreviewChars = 120

// Source describes one retrieved fragment in a response.
type Source struct {
	File  string `json:"file"`
	Lines string `json:"lines"`
	Text  string `json:"text"`
}

// ResponseMetadata summarizes how the answer was produced.
type ResponseMetadata struct {
	NumSources          int      `json:"num_sources"`
	ToolsUsed           []string `json:"tools_used"`
	ConfidenceFactors   string   `json:"confidence_factors"`
	ConfidenceThreshold float64  `json:"confidence_threshold"`
	Degraded            []string `json:"degraded,omitempty"`
}

// Response is the API view of a finished query.
type Response struct {
	Explanation     string           `json:"explanation"`
	Code            string           `json:"code"`
	Instruction     string           `json:"instruction"`
	Confidence      float64          `json:"confidence"`
	ConfidenceLevel string           `json:"confidence_level"`
	Strategy        string           `json:"strategy"`
	Sources         []Source         `json:"sources"`
	Trace           []string         `json:"trace"`
	Metadata        ResponseMetadata `json:"metadata"`
}

// NewResponse builds the API response for a finished query. The explanation
// carries the hedged final answer.
func NewResponse(s *QueryState) Response {
	sources := make([]Source, 0, len(s.Fragments))
	for _, f := range s.Fragments {
		file := f.Path()
		if file == "" {
			file = "unknown"
		}
		chunkID, ok := f.ChunkID()
		if !ok {
			chunkID = "?"
		}
		text := []rune(f.Text)
		if len(text) > sourcePreviewChars {
			text = text[:sourcePreviewChars]
		}
		sources = append(sources, Source{
			File:  file,
			Lines: "Chunk " + chunkID,
			Text:  string(text) + "...",
		})
	}

	return Response{
		Explanation:     s.FinalAnswer,
		Code:            s.Answer.Code,
		Instruction:     s.Answer.Instruction,
		Confidence:      s.Confidence.Score,
		ConfidenceLevel: string(s.Confidence.Level),
		Strategy:        string(s.Plan.Strategy),
		Sources:         sources,
		Trace:           s.TraceMessages(),
		Metadata: ResponseMetadata{
			NumSources:          s.Metadata.NumSources,
			ToolsUsed:           append([]string{}, s.ToolsUsed...),
			ConfidenceFactors:   s.Confidence.Reasoning,
			ConfidenceThreshold: s.Plan.ConfidenceThreshold,
			Degraded:            s.Degraded,
		},
	}
}
