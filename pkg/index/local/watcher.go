package local

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"codeqa/pkg/logx"
)

// FileOperation is what happened to a watched path.
type FileOperation int

const (
	// FileChanged covers creation and modification.
	FileChanged FileOperation = iota
	// FileRemoved covers deletion and rename away.
	FileRemoved
)

// FileEvent is one filesystem change applied to the index.
type FileEvent struct {
	Path      string
	Operation FileOperation
}

// Watcher keeps an Index in sync with a folder tree.
type Watcher struct {
	index   *Index
	watcher *fsnotify.Watcher
	logger  *logx.Logger
	root    string
	applied chan FileEvent
}

// NewWatcher creates a watcher for root. Call Run to start it.
func NewWatcher(index *Index, root string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &Watcher{
		index:   index,
		watcher: w,
		root:    root,
		logger:  logx.NewLogger("watcher"),
	}, nil
}

// Applied returns a channel that receives every event after the index has
// processed it. It must be called before Run.
func (w *Watcher) Applied() <-chan FileEvent {
	if w.applied == nil {
		w.applied = make(chan FileEvent, 100)
	}
	return w.applied
}

// addTree watches dir and every directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error { //nolint:wrapcheck // walk errors carry the path
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && SkipPath(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// Run watches until ctx is cancelled, then closes the underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.watcher.Close() }()

	if err := w.addTree(w.root); err != nil {
		return err
	}
	w.logger.Info("👀 watching %s", w.root)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error: %v", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	path := filepath.ToSlash(event.Name)
	if SkipPath(path) {
		return
	}

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		if err := w.index.RemoveFile(path); err != nil {
			w.logger.Warn("failed to remove %s: %v", path, err)
			return
		}
		w.notify(FileEvent{Path: path, Operation: FileRemoved})

	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			// New directories may already hold files when they are moved in.
			if err := w.addTree(event.Name); err != nil {
				w.logger.Warn("failed to watch %s: %v", path, err)
			}
			if err := w.index.Sync(ctx, event.Name); err != nil {
				w.logger.Warn("failed to index %s: %v", path, err)
			}
			w.notify(FileEvent{Path: path, Operation: FileChanged})
			return
		}
		if err := w.index.IndexFile(ctx, path); err != nil {
			w.logger.Warn("failed to index %s: %v", path, err)
			return
		}
		w.notify(FileEvent{Path: path, Operation: FileChanged})
	}
}

func (w *Watcher) notify(e FileEvent) {
	if w.applied == nil {
		return
	}
	select {
	case w.applied <- e:
	default:
	}
}
