// Package vcs runs the git operations the loop needs after the worker
// agent finishes.
package vcs

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// CommandRunner abstracts command execution for testing.
type CommandRunner func(ctx context.Context, dir, name string, args ...string) (string, error)

// defaultRunner runs commands via exec.CommandContext.
func defaultRunner(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	return strings.TrimRight(string(out), "\n"), err
}

// Git runs git in one working directory.
type Git struct {
	dir    string
	logger *slog.Logger
	runCmd CommandRunner
}

// Option configures Git.
type Option func(*Git)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Git) {
		g.logger = l
	}
}

// WithCommandRunner sets a custom command runner.
func WithCommandRunner(r CommandRunner) Option {
	return func(g *Git) {
		g.runCmd = r
	}
}

// New creates a Git for dir.
func New(dir string, opts ...Option) *Git {
	g := &Git{
		dir:    dir,
		logger: slog.Default(),
		runCmd: defaultRunner,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Git) git(ctx context.Context, args ...string) (string, error) {
	return g.runCmd(ctx, g.dir, "git", args...)
}

// ChangedFiles returns the paths reported by `git status --porcelain`.
// Renames are reported by their new path.
func (g *Git) ChangedFiles(ctx context.Context) ([]string, error) {
	out, err := g.git(ctx, "status", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("git status: %s: %w", out, err)
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		path := line[3:]
		if _, to, ok := strings.Cut(path, " -> "); ok {
			path = to
		}
		files = append(files, path)
	}
	return files, nil
}

// CommitAll stages everything and commits it with message.
func (g *Git) CommitAll(ctx context.Context, message string) error {
	if out, err := g.git(ctx, "add", "-A"); err != nil {
		return fmt.Errorf("git add: %s: %w", out, err)
	}
	if out, err := g.git(ctx, "commit", "-m", message); err != nil {
		return fmt.Errorf("git commit: %s: %w", out, err)
	}
	g.logger.Info("committed", "message", firstLine(message))
	return nil
}

// CurrentBranch returns the name of the current branch.
func (g *Git) CurrentBranch(ctx context.Context) (string, error) {
	out, err := g.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("get current branch: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// ShortHead returns the abbreviated hash of HEAD.
func (g *Git) ShortHead(ctx context.Context) (string, error) {
	out, err := g.git(ctx, "rev-parse", "--short", "HEAD")
	if err != nil {
		return "", fmt.Errorf("get head: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Push pushes the current branch to origin.
// Idempotent: if the remote is already up to date, returns nil.
func (g *Git) Push(ctx context.Context) error {
	branch, err := g.CurrentBranch(ctx)
	if err != nil {
		return err
	}

	out, err := g.git(ctx, "push", "-u", "origin", branch)
	if err != nil {
		if strings.Contains(out, "Everything up-to-date") {
			g.logger.Info("remote already up to date")
			return nil
		}
		return fmt.Errorf("git push: %s: %w", out, err)
	}

	g.logger.Info("pushed", "branch", branch)
	return nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
