package claude

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/leandrotocalini/foundry/internal/console"
	"github.com/leandrotocalini/foundry/internal/provider"
)

type recordingTranscript struct {
	raw     []string
	display []console.Line
}

func (r *recordingTranscript) Raw(line string)           { r.raw = append(r.raw, line) }
func (r *recordingTranscript) Display(line console.Line) { r.display = append(r.display, line) }

// fakeBinary writes an executable shell script that stands in for claude.
func fakeBinary(t *testing.T, body string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "claude")
	script := "#!/bin/sh\ncat > /dev/null\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake binary: %v", err)
	}
	return path
}

func TestArgs(t *testing.T) {
	got := Args(provider.Options{Model: "opus", AllowedTools: []string{"mcp__linear__*", "Read"}})
	want := []string{
		"-p", "--dangerously-skip-permissions", "--output-format=stream-json",
		"--model", "opus", "--verbose",
		"--allowedTools", "mcp__linear__*,Read",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}

	got = Args(provider.Options{Model: "sonnet"})
	if strings.Contains(strings.Join(got, " "), "--allowedTools") {
		t.Errorf("unexpected --allowedTools without tools: %v", got)
	}
}

func TestSpawn_EmptyPrompt(t *testing.T) {
	_, err := New().Spawn(context.Background(), provider.Options{Prompt: "  "})
	if !errors.Is(err, provider.ErrEmptyPrompt) {
		t.Fatalf("expected ErrEmptyPrompt, got %v", err)
	}
}

func TestSpawn_MissingBinary(t *testing.T) {
	p := New(WithBinary("foundry-no-such-claude"))
	_, err := p.Spawn(context.Background(), provider.Options{Prompt: "hi", Model: "opus"})
	if !errors.Is(err, provider.ErrBinaryNotFound) {
		t.Fatalf("expected ErrBinaryNotFound, got %v", err)
	}
}

func TestSpawn_StreamsAndCollectsResult(t *testing.T) {
	bin := fakeBinary(t, `
echo 'starting up'
echo '{"type":"system","subtype":"init","model":"claude-opus-4","tools":[]}'
echo '{"type":"assistant","message":{"id":"m1","model":"claude-opus-4","content":[{"type":"text","text":"working"}]}}'
echo '{"type":"result","result":"ISSUE: ENG-1","total_cost_usd":0.25,"modelUsage":{"claude-opus-4":{"inputTokens":10,"outputTokens":20,"cacheReadInputTokens":30,"cacheCreationInputTokens":40,"costUSD":0.25}}}'
echo 'warning' >&2
exit 2`)

	tr := &recordingTranscript{}
	dir := t.TempDir()
	p := New(WithBinary(bin), WithDir(dir))
	res, err := p.Spawn(context.Background(), provider.Options{
		Prompt:      "do it",
		Model:       "opus",
		AgentNumber: 1,
		Transcript:  tr,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.ExitCode != 2 {
		t.Errorf("expected exit code 2, got %d", res.ExitCode)
	}
	if res.FinalOutput != "ISSUE: ENG-1" {
		t.Errorf("unexpected final output %q", res.FinalOutput)
	}
	if res.Cost != 0.25 {
		t.Errorf("unexpected cost %v", res.Cost)
	}
	if got, want := res.TokenUsage, (provider.TokenUsage{Input: 80, Output: 20, Cached: 30}); got != want {
		t.Errorf("tokens = %+v, want %+v", got, want)
	}
	if !strings.HasPrefix(res.Output, "starting up\n") {
		t.Errorf("raw output should keep non-JSON lines, got %q", res.Output)
	}
	if len(tr.raw) != 3 {
		t.Errorf("expected 3 raw JSON lines, got %d", len(tr.raw))
	}

	var sawStderr, sawSpawn bool
	for _, l := range tr.display {
		if l.Text == "stderr: warning" {
			sawStderr = true
		}
		if strings.HasPrefix(l.Text, "Spawning: ") {
			sawSpawn = true
		}
	}
	if !sawStderr || !sawSpawn {
		t.Errorf("missing display lines: %+v", tr.display)
	}
}
