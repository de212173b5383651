package vcs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type mockCall struct {
	wantArgs []string // checked when non-nil
	out      string
	err      error
}

// newMockRunner replays calls in order and records the arguments it saw.
func newMockRunner(t *testing.T, calls []mockCall) (CommandRunner, *[][]string) {
	t.Helper()
	seen := &[][]string{}
	return func(ctx context.Context, dir, name string, args ...string) (string, error) {
		idx := len(*seen)
		*seen = append(*seen, args)
		if idx >= len(calls) {
			return "", fmt.Errorf("unexpected call #%d: %s %v", idx, name, args)
		}
		c := calls[idx]
		if c.wantArgs != nil {
			if diff := cmp.Diff(c.wantArgs, args); diff != "" {
				t.Errorf("call #%d args mismatch (-want +got):\n%s", idx, diff)
			}
		}
		return c.out, c.err
	}, seen
}

func newTestGit(runner CommandRunner) *Git {
	return New("/tmp/repo", WithCommandRunner(runner), WithLogger(slog.New(slog.DiscardHandler)))
}

func TestChangedFiles(t *testing.T) {
	runner, _ := newMockRunner(t, []mockCall{
		{wantArgs: []string{"status", "--porcelain"}, out: " M internal/a.go\n?? new.txt\nR  old.go -> renamed.go"},
	})

	files, err := newTestGit(runner).ChangedFiles(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"internal/a.go", "new.txt", "renamed.go"}, files); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
}

func TestPush_AlreadyUpToDate(t *testing.T) {
	runner, _ := newMockRunner(t, []mockCall{
		{out: "main"},
		{wantArgs: []string{"push", "-u", "origin", "main"}, out: "Everything up-to-date", err: fmt.Errorf("exit status 1")},
	})

	if err := newTestGit(runner).Push(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSafetyNet_CleanTree(t *testing.T) {
	runner, seen := newMockRunner(t, []mockCall{{out: ""}})

	res, err := NewSafetyNet(newTestGit(runner)).Flush(context.Background(), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Committed || res.Pushed {
		t.Errorf("clean tree must be a no-op, got %+v", res)
	}
	if len(*seen) != 1 {
		t.Errorf("expected only git status, got %v", *seen)
	}
}

func TestSafetyNet_CommitsAndPushes(t *testing.T) {
	runner, seen := newMockRunner(t, []mockCall{
		{out: " M a.go\n?? b.go"},
		{wantArgs: []string{"add", "-A"}},
		{},
		{wantArgs: []string{"rev-parse", "--short", "HEAD"}, out: "abc1234\n"},
		{out: "foundry/ENG-1"},
		{wantArgs: []string{"push", "-u", "origin", "foundry/ENG-1"}},
	})

	res, err := NewSafetyNet(newTestGit(runner)).Flush(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := SafetyNetResult{Committed: true, Pushed: true, CommitHash: "abc1234", Files: []string{"a.go", "b.go"}}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}

	commit := (*seen)[2]
	if commit[0] != "commit" || !strings.HasPrefix(commit[2], "[SAFETY-NET] Uncommitted changes from loop iteration 7") {
		t.Errorf("unexpected commit call %v", commit)
	}
	if !strings.Contains(commit[2], "- a.go\n- b.go") {
		t.Errorf("commit body should list files: %q", commit[2])
	}
}

func TestSafetyNet_PushFailureKeepsCommit(t *testing.T) {
	runner, _ := newMockRunner(t, []mockCall{
		{out: " M a.go"},
		{},
		{},
		{out: "abc1234"},
		{out: "main"},
		{out: "rejected", err: fmt.Errorf("exit status 1")},
	})

	res, err := NewSafetyNet(newTestGit(runner)).Flush(context.Background(), 1)
	if err != nil {
		t.Fatalf("push failure must not be an error: %v", err)
	}
	if !res.Committed || res.Pushed || res.CommitHash != "abc1234" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestSafetyNet_StatusFails(t *testing.T) {
	runner, _ := newMockRunner(t, []mockCall{
		{out: "fatal: not a git repository", err: fmt.Errorf("exit status 128")},
	})

	_, err := NewSafetyNet(newTestGit(runner)).Flush(context.Background(), 1)
	if err == nil || !strings.Contains(err.Error(), "git status") {
		t.Fatalf("expected git status error, got %v", err)
	}
}
