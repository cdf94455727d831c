package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIndex returns the first k of its fragments and records every requested k.
type fakeIndex struct {
	fragments []Fragment
	err       error
	calls     []int
}

func (f *fakeIndex) Query(_ context.Context, _ string, k int) ([]Fragment, error) {
	f.calls = append(f.calls, k)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.fragments) > k {
		return f.fragments[:k], nil
	}
	return f.fragments, nil
}

type lockCounter map[string]int

func (c lockCounter) ObserveFileLock(outcome string) { c[outcome]++ }

func frag(path, text string) Fragment {
	return Fragment{Text: text, Metadata: map[string]any{"path": path}}
}

func TestDetectFileIntent(t *testing.T) {
	tests := []struct {
		query  string
		want   string
		intent bool
	}{
		{"Explain README.md", "readme.md", true},
		{"what does src/auth/login.py do?", "src/auth/login.py", true},
		{"show me the readme", "README.md", true},
		{"which license applies", "LICENSE", true},
		{"how is the Dockerfile built", "Dockerfile", true},
		{"what targets does the makefile have", "Makefile", true},
		{"list deps in package json", "package.json", true},
		{"pinned requirements", "requirements.txt", true},
		{"readme and license", "README.md", true},
		{"explain config.yaml and the readme", "config.yaml", true},
		{"what is in café.md?", "café.md", true},
		{"open docs/日本/説明.txt", "docs/日本/説明.txt", true},
		{"see /etc/app.conf", "etc/app.conf", true},
		{"archive x.tar.gz", "x.tar", true},
		{"config.yamlé", "", false},
		{"how does authentication work", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, ok := DetectFileIntent(tt.query)
			assert.Equal(t, tt.intent, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRetrieveLocksToNamedFile(t *testing.T) {
	index := &fakeIndex{fragments: []Fragment{
		frag("repo/src/app.py", "app"),
		frag("watched_folder/README.md", "readme 1"),
		frag("watched_folder/README.md", "readme 2"),
		frag("docs/guide.md", "guide"),
		frag("watched_folder/README.md", "readme 3"),
		frag("watched_folder/README.md", "readme 4"),
		frag("watched_folder/README.md", "readme 5"),
	}}
	observer := lockCounter{}
	r := NewRetriever(index, WithLockObserver(observer))

	got, err := r.Retrieve(context.Background(), "Explain README.md", 5)
	require.NoError(t, err)
	require.Len(t, got, 5)
	for _, f := range got {
		assert.True(t, strings.HasSuffix(strings.ToLower(f.Path()), "readme.md"), f.Path())
	}
	assert.Equal(t, []int{30}, index.calls)
	assert.Equal(t, 1, observer[LockHit])
}

func TestRetrieveLockTruncatesToK(t *testing.T) {
	var fragments []Fragment
	for i := 0; i < 10; i++ {
		fragments = append(fragments, frag("LICENSE", "license text"))
	}
	r := NewRetriever(&fakeIndex{fragments: fragments})

	got, err := r.Retrieve(context.Background(), "what license is this", 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestRetrieveFallsBackWhenLockIsEmpty(t *testing.T) {
	fragments := []Fragment{
		frag("src/a.py", "a"),
		frag("src/b.py", "b"),
		frag("src/c.py", "c"),
	}
	index := &fakeIndex{fragments: fragments}
	observer := lockCounter{}
	r := NewRetriever(index, WithLockObserver(observer))

	got, err := r.Retrieve(context.Background(), "explain missing.go", 2)
	require.NoError(t, err)

	plain, err := (&fakeIndex{fragments: fragments}).Query(context.Background(), "explain missing.go", 2)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
	assert.Equal(t, []int{12, 2}, index.calls)
	assert.Equal(t, 1, observer[LockFallback])
}

func TestRetrieveWithoutIntentQueriesOnce(t *testing.T) {
	index := &fakeIndex{fragments: []Fragment{frag("a.py", "a")}}
	observer := lockCounter{}
	r := NewRetriever(index, WithLockObserver(observer))

	got, err := r.Retrieve(context.Background(), "how does auth work", 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, []int{DefaultK}, index.calls)
	assert.Equal(t, 1, observer[LockNone])
}

func TestRetrievePropagatesIndexFailure(t *testing.T) {
	boom := errors.New("connection refused")
	r := NewRetriever(&fakeIndex{err: boom})

	_, err := r.Retrieve(context.Background(), "Explain README.md", 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetrieval)
	assert.ErrorIs(t, err, boom)

	_, err = r.Retrieve(context.Background(), "anything", 5)
	assert.ErrorIs(t, err, ErrRetrieval)
}

func TestFragmentAccessors(t *testing.T) {
	f := Fragment{Metadata: map[string]any{"path": "x.go", "chunk_id": float64(3)}}
	assert.Equal(t, "x.go", f.Path())
	id, ok := f.ChunkID()
	assert.True(t, ok)
	assert.Equal(t, "3", id)

	empty := Fragment{}
	assert.Empty(t, empty.Path())
	_, ok = empty.ChunkID()
	assert.False(t, ok)

	named := Fragment{Metadata: map[string]any{"chunk_id": "abc-1"}}
	id, _ = named.ChunkID()
	assert.Equal(t, "abc-1", id)
}
