package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"codeqa/pkg/logx"
)

// ErrNoRepoURL is returned when a clone is needed but no remote is configured.
var ErrNoRepoURL = errors.New("repository URL not configured")

// RepoSyncer keeps a local clone of a remote repository current.
type RepoSyncer struct {
	logger *logx.Logger
	url    string
	branch string
	folder string
	gitBin string
	mu     sync.Mutex
}

// NewRepoSyncer creates a syncer that clones url at branch into folder.
func NewRepoSyncer(url, branch, folder string) *RepoSyncer {
	if branch == "" {
		branch = "main"
	}
	return &RepoSyncer{
		url:    url,
		branch: branch,
		folder: folder,
		gitBin: "git",
		logger: logx.NewLogger("github"),
	}
}

// Folder returns the working copy location.
func (r *RepoSyncer) Folder() string { return r.folder }

// Sync clones the repository when the folder has no .git directory and pulls otherwise.
func (r *RepoSyncer) Sync(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := os.Stat(filepath.Join(r.folder, ".git")); err != nil {
		if r.url == "" {
			return ErrNoRepoURL
		}
		if err := os.MkdirAll(filepath.Dir(r.folder), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", filepath.Dir(r.folder), err)
		}
		r.logger.Info("🚀 cloning %s (%s) into %s", r.url, r.branch, r.folder)
		return r.git(ctx, "clone", "--branch", r.branch, r.url, r.folder)
	}

	r.logger.Info("pulling %s", r.folder)
	return r.git(ctx, "-C", r.folder, "pull", "--ff-only", "origin", r.branch)
}

func (r *RepoSyncer) git(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, r.gitBin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
