package vcs

import (
	"context"
	"fmt"
	"strings"
)

// SafetyNetResult describes what Flush did.
type SafetyNetResult struct {
	Committed  bool
	Pushed     bool
	CommitHash string
	Files      []string
}

// SafetyNet commits and pushes whatever the worker agent left behind.
type SafetyNet struct {
	git *Git
}

// NewSafetyNet wraps g.
func NewSafetyNet(g *Git) *SafetyNet {
	return &SafetyNet{git: g}
}

// SafetyNetMessage builds the commit message for leftover changes.
func SafetyNetMessage(iteration int, files []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[SAFETY-NET] Uncommitted changes from loop iteration %d\n\n", iteration)
	b.WriteString("This commit was created by the foundry safety net, not by the worker agent.\n")
	b.WriteString("The worker may have crashed or failed to commit its work.\n")
	b.WriteString("Investigate if this happens frequently.\n\nFiles:\n")
	for _, f := range files {
		b.WriteString("- " + f + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Flush commits any uncommitted changes and pushes the current branch.
// A clean tree is a no-op. A failed push is logged, and the result still
// reports the commit.
func (s *SafetyNet) Flush(ctx context.Context, iteration int) (SafetyNetResult, error) {
	files, err := s.git.ChangedFiles(ctx)
	if err != nil {
		return SafetyNetResult{}, err
	}
	if len(files) == 0 {
		return SafetyNetResult{}, nil
	}

	log := s.git.logger.With("iteration", iteration)
	log.Warn("safety net: found uncommitted changes", "files", len(files))

	if err := s.git.CommitAll(ctx, SafetyNetMessage(iteration, files)); err != nil {
		return SafetyNetResult{Files: files}, err
	}
	res := SafetyNetResult{Committed: true, Files: files}

	if hash, err := s.git.ShortHead(ctx); err == nil {
		res.CommitHash = hash
	} else {
		log.Warn("safety net: could not read commit hash", "error", err)
	}

	if err := s.git.Push(ctx); err != nil {
		log.Error("safety net: push failed", "commit", res.CommitHash, "error", err)
		return res, nil
	}
	res.Pushed = true
	log.Info("safety net: pushed", "commit", res.CommitHash)
	return res, nil
}
