// Package confidence scores how far an answer can be trusted and supplies the
// hedge that prefixes answers that are not highly trusted.
package confidence

import (
	"math"
	"strings"
	"unicode/utf8"
)

// Level is a coarse confidence bucket.
type Level string

// Levels.
const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

const (
	fullCoverageChars = 5000
	fullSourceCount   = 3
	coverageWeight    = 0.6
	sourceWeight      = 0.4
	uncertaintyFactor = 0.7

	highThreshold   = 0.8
	mediumThreshold = 0.5

	// Reasoning accompanies every Result.
	Reasoning = "Based on context coverage, source diversity, and answer certainty"
)

//nolint:gochecknoglobals // fixed marker set
var uncertaintyMarkers = []string{
	"might be",
	"possibly",
	"not sure",
	"unclear",
	"cannot determine",
	"depends",
}

// Factors break a score down into its inputs.
type Factors struct {
	Coverage           float64 `json:"coverage"`
	Sources            float64 `json:"sources"`
	UncertaintyPenalty float64 `json:"uncertainty_penalty"` // 0.7 when the answer hedges itself, else 1
}

// Weighted is the unrounded score the factors produce. Result.Score is this
// value rounded to two decimals, so tiny scores may round to the same value.
func (f Factors) Weighted() float64 {
	return (f.Coverage*coverageWeight + f.Sources*sourceWeight) * f.UncertaintyPenalty
}

// Result is the outcome of one assessment.
type Result struct {
	Level       Level   `json:"level"`
	Reasoning   string  `json:"reasoning"`
	Factors     Factors `json:"factors"`
	Score       float64 `json:"score"`
	ShouldHedge bool    `json:"should_hedge"`
}

// Assessor scores answers. It has no state.
type Assessor struct{}

// NewAssessor returns an Assessor.
func NewAssessor() *Assessor {
	return &Assessor{}
}

// Assess scores answer from the context size, the number of sources and
// uncertainty markers in the answer. The query is not used.
func (a *Assessor) Assess(_, context, answer string, numSources int) Result {
	f := Factors{
		Coverage:           math.Min(float64(utf8.RuneCountInString(context))/fullCoverageChars, 1.0),
		Sources:            math.Min(float64(numSources)/fullSourceCount, 1.0),
		UncertaintyPenalty: 1.0,
	}
	if HasUncertaintyMarker(answer) {
		f.UncertaintyPenalty = uncertaintyFactor
	}

	score := f.Weighted()
	level := LevelFor(score)
	return Result{
		Score:       math.Round(score*100) / 100,
		Level:       level,
		Reasoning:   Reasoning,
		ShouldHedge: level != LevelHigh,
		Factors:     f,
	}
}

// HasUncertaintyMarker reports whether answer hedges itself.
func HasUncertaintyMarker(answer string) bool {
	lower := strings.ToLower(answer)
	for _, m := range uncertaintyMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// LevelFor buckets an unrounded score.
func LevelFor(score float64) Level {
	switch {
	case score >= highThreshold:
		return LevelHigh
	case score >= mediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// HedgePhrase returns the prefix for answers at level. High confidence needs none.
func HedgePhrase(level Level) string {
	switch level {
	case LevelHigh:
		return ""
	case LevelMedium:
		return "This may not be fully accurate, but "
	default:
		return "I might be mistaken, but "
	}
}

// Hedge prefixes answer with the phrase for r's level when r calls for it.
func Hedge(r Result, answer string) string {
	if !r.ShouldHedge {
		return answer
	}
	return HedgePhrase(r.Level) + answer
}
