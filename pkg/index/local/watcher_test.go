package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func indexedPaths(t *testing.T, idx *Index) []string {
	t.Helper()
	inputs, err := idx.Inputs()
	require.NoError(t, err)
	paths := make([]string, 0, len(inputs))
	for _, in := range inputs {
		paths = append(paths, in["path"].(string))
	}
	return paths
}

func TestWatcherTracksChanges(t *testing.T) {
	ti := newTestIndex(t)
	w, err := NewWatcher(ti.Index, ti.root)
	require.NoError(t, err)
	applied := w.Applied()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher time to register the tree.
	time.Sleep(100 * time.Millisecond)

	p := ti.write(t, "live.md", "live edit content")
	require.Eventually(t, func() bool {
		fragments, err := ti.Query(context.Background(), "live edit", 1)
		return err == nil && len(fragments) == 1 && strings.Contains(fragments[0].Text, "live edit content")
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, os.Mkdir(filepath.Join(ti.root, "sub"), 0o755))
	time.Sleep(100 * time.Millisecond)
	nested := ti.write(t, "sub/nested.md", "nested file")
	require.Eventually(t, func() bool {
		return len(indexedPaths(t, ti.Index)) == 2
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, os.Remove(p))
	require.Eventually(t, func() bool {
		paths := indexedPaths(t, ti.Index)
		return len(paths) == 1 && paths[0] == nested
	}, 5*time.Second, 50*time.Millisecond)

	select {
	case e := <-applied:
		assert.NotEmpty(t, e.Path)
	default:
		t.Fatal("expected applied events")
	}
}

func TestWatcherIgnoresGitDirectory(t *testing.T) {
	ti := newTestIndex(t)
	require.NoError(t, os.MkdirAll(filepath.Join(ti.root, ".git"), 0o755))

	w, err := NewWatcher(ti.Index, ti.root)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	ti.write(t, ".git/HEAD", "ref: refs/heads/main")
	ti.write(t, "visible.txt", "visible")

	require.Eventually(t, func() bool {
		return len(indexedPaths(t, ti.Index)) == 1
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.True(t, strings.HasSuffix(indexedPaths(t, ti.Index)[0], "visible.txt"))
}
