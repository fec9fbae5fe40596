// Package vcs answers working-tree questions for the check command.
package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/roach88/macrome/internal/engine"
)

var (
	// ErrNoGit is returned when the git binary is not on PATH.
	ErrNoGit = errors.New("vcs: git not found")

	// ErrNoRepository is returned when the directory is not inside a git
	// work tree.
	ErrNoRepository = errors.New("vcs: not a git repository")
)

// Git implements engine.VCS using the git CLI.
type Git struct {
	dir string
}

var _ engine.VCS = (*Git)(nil)

// New returns a Git for dir after checking that git is available and dir
// is inside a repository.
func New(ctx context.Context, dir string) (*Git, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return nil, ErrNoGit
	}
	cmd := exec.CommandContext(ctx, "git", "-C", dir, "rev-parse", "--git-dir")
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoRepository, dir)
	}
	return &Git{dir: dir}, nil
}

// IsDirty reports whether root (relative to the repository directory, or
// absolute) has staged, unstaged or untracked changes.
func (g *Git) IsDirty(ctx context.Context, root string) (bool, error) {
	if root == "" {
		root = "."
	}
	cmd := exec.CommandContext(ctx, "git", "-C", g.dir, "status", "--porcelain", "--", root)
	out, err := cmd.Output()
	if err != nil {
		return false, fmt.Errorf("git status: %w", err)
	}
	return len(bytes.TrimSpace(out)) > 0, nil
}
