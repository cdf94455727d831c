package local

import (
	"strings"

	"codeqa/pkg/utils"
)

// DefaultMaxTokens is the chunk size used when none is configured.
const DefaultMaxTokens = 400

// charsPerToken estimates chunk boundaries when no tokenizer is available.
const charsPerToken = 4

// Splitter cuts documents into chunks of at most maxTokens tokens. Every chunk
// carries the document's file header so it still names its origin.
type Splitter struct {
	counter   *utils.TokenCounter
	maxTokens int
}

// NewSplitter creates a splitter. A nil counter falls back to a
// characters-per-token estimate.
func NewSplitter(counter *utils.TokenCounter, maxTokens int) *Splitter {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Splitter{counter: counter, maxTokens: maxTokens}
}

// MaxTokens returns the chunk budget.
func (s *Splitter) MaxTokens() int { return s.maxTokens }

// Split returns the chunks of a document produced by LoadFile for path.
func (s *Splitter) Split(path, document string) []string {
	if s.counter.CountTokens(document) <= s.maxTokens {
		return []string{document}
	}

	header := FileHeader(path)
	body := strings.TrimPrefix(document, header)

	budget := s.maxTokens - s.counter.CountTokens(header)
	if budget < 1 {
		budget = s.maxTokens
	}

	var pieces []string
	if s.counter != nil {
		pieces = s.splitTokens(body, budget)
	}
	if pieces == nil {
		pieces = splitRunes(body, budget*charsPerToken)
	}

	chunks := make([]string, 0, len(pieces))
	for _, p := range pieces {
		if strings.TrimSpace(p) == "" {
			continue
		}
		chunks = append(chunks, header+p)
	}
	return chunks
}

// splitTokens windows the token IDs of body. It returns nil when the
// tokenizer fails so the caller can fall back.
func (s *Splitter) splitTokens(body string, budget int) []string {
	ids, err := s.counter.Encode(body)
	if err != nil {
		return nil
	}
	var pieces []string
	for start := 0; start < len(ids); start += budget {
		end := min(start+budget, len(ids))
		text, err := s.counter.Decode(ids[start:end])
		if err != nil {
			return nil
		}
		// A window may cut a multi-byte rune in half.
		pieces = append(pieces, strings.ToValidUTF8(text, ""))
	}
	return pieces
}

func splitRunes(body string, size int) []string {
	runes := []rune(body)
	var pieces []string
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		pieces = append(pieces, string(runes[start:end]))
	}
	return pieces
}
