package retrieval

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"codeqa/pkg/logx"
)

// File-lock outcomes reported to a LockObserver.
const (
	LockNone     = "none"     // no file intent in the query
	LockHit      = "locked"   // result set restricted to the target file
	LockFallback = "fallback" // intent found but no fragment matched
)

// lockOversample widens the candidate pool when filtering to one file.
const lockOversample = 6

// explicitFilePattern finds a path with an extension. Word characters include
// any letter or digit, so the boundaries are spelled out instead of \b.
//
//nolint:gochecknoglobals // compiled once
var explicitFilePattern = regexp.MustCompile(`(?:^|[^\p{L}\p{N}_])([\p{L}\p{N}_][\p{L}\p{N}_\-/]*\.[a-z0-9]+)(?:[^\p{L}\p{N}_]|$)`)

// implicitFiles maps query phrases to well-known file names. Order matters:
// the first phrase found in the query wins.
//
//nolint:gochecknoglobals // ordered lookup table
var implicitFiles = []struct {
	phrase string
	file   string
}{
	{"readme", "README.md"},
	{"license", "LICENSE"},
	{"dockerfile", "Dockerfile"},
	{"makefile", "Makefile"},
	{"package json", "package.json"},
	{"requirements", "requirements.txt"},
}

// LockObserver is told how each retrieval resolved file intent.
type LockObserver interface {
	ObserveFileLock(outcome string)
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithLockObserver reports file-lock outcomes to o.
func WithLockObserver(o LockObserver) Option {
	return func(r *Retriever) { r.observer = o }
}

// Retriever finds the fragments for a query, locking onto a single file when
// the query names one.
type Retriever struct {
	index    IndexClient
	observer LockObserver
	logger   *logx.Logger
}

// NewRetriever creates a Retriever over index.
func NewRetriever(index IndexClient, opts ...Option) *Retriever {
	r := &Retriever{
		index:  index,
		logger: logx.NewLogger("retriever"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DetectFileIntent returns the file the query refers to. An explicit
// filename-like token wins over the implicit name table.
func DetectFileIntent(query string) (string, bool) {
	q := strings.ToLower(query)

	if m := explicitFilePattern.FindStringSubmatch(q); m != nil {
		return m[1], true
	}

	for _, entry := range implicitFiles {
		if strings.Contains(q, entry.phrase) {
			return entry.file, true
		}
	}
	return "", false
}

// LockToFile keeps the fragments whose path ends with target, ignoring case.
func LockToFile(fragments []Fragment, target string) []Fragment {
	targetLower := strings.ToLower(target)
	var locked []Fragment
	for _, f := range fragments {
		if strings.HasSuffix(strings.ToLower(f.Path()), targetLower) {
			locked = append(locked, f)
		}
	}
	return locked
}

// Retrieve returns at most k fragments for query. When the query names a file
// and the index holds chunks of it, every returned fragment comes from that
// file; otherwise the plain semantic top-k is returned.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]Fragment, error) {
	if k <= 0 {
		k = DefaultK
	}
	logx.Debug(ctx, "retrieval", "searching for %q (k=%d)", query, k)

	target, hasIntent := DetectFileIntent(query)
	if hasIntent {
		r.logger.Info("file intent detected: %s", target)

		candidates, err := r.index.Query(ctx, query, k*lockOversample)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRetrieval, err)
		}
		if locked := LockToFile(candidates, target); len(locked) > 0 {
			r.logger.Info("locked to %s (%d chunks)", target, len(locked))
			r.observe(LockHit)
			if len(locked) > k {
				locked = locked[:k]
			}
			return locked, nil
		}

		r.logger.Warn("file intent %s matched no indexed chunk, falling back to semantic search", target)
		r.observe(LockFallback)
	} else {
		r.observe(LockNone)
	}

	results, err := r.index.Query(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}
	if len(results) > k {
		results = results[:k]
	}
	logx.Debug(ctx, "retrieval", "semantic results: %d", len(results))
	return results, nil
}

func (r *Retriever) observe(outcome string) {
	if r.observer != nil {
		r.observer.ObserveFileLock(outcome)
	}
}
