package codex

import (
	"context"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

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

func (r *recordingTranscript) contains(sub string) bool {
	for _, l := range r.display {
		if strings.Contains(l.Text, sub) {
			return true
		}
	}
	return false
}

func fakeBinary(t *testing.T, body string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "codex")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake binary: %v", err)
	}
	return path
}

func TestArgs(t *testing.T) {
	got := Args(provider.Options{Model: "gpt-5-codex", ReasoningEffort: "medium"})
	want := []string{
		"exec", "--dangerously-bypass-approvals-and-sandbox", "--json",
		"--model", "gpt-5-codex",
		"-c", `model_reasoning_effort="medium"`,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}

	got = Args(provider.Options{})
	if got[4] != DefaultModel || got[6] != `model_reasoning_effort="high"` {
		t.Errorf("defaults not applied: %v", got)
	}
}

func TestEstimateCost(t *testing.T) {
	u := provider.TokenUsage{Input: 1_500_000, Cached: 500_000, Output: 250_000}

	if got := EstimateCost(u, "gpt-4-codex"); math.Abs(got-3.0) > 1e-9 {
		t.Errorf("gpt-4-codex cost = %v, want 3.0", got)
	}
	if got := EstimateCost(u, "some-new-model"); math.Abs(got-4.0) > 1e-9 {
		t.Errorf("default cost = %v, want 4.0", got)
	}
}

func TestDecoder_TokensAndFinalOutput(t *testing.T) {
	d := newDecoder("/work", time.Now)
	for _, l := range []string{
		"Reading prompt from stdin...",
		`{"type":"thread.started","thread_id":"t1"}`,
		`{"type":"item.completed","item":{"id":"i1","type":"agent_message","text":"first"}}`,
		`{"type":"turn.completed","usage":{"input_tokens":1000,"cached_input_tokens":400,"output_tokens":50}}`,
		`{"type":"item.completed","item":{"id":"i2","type":"agent_message","text":"NO_WORK"}}`,
		`{"type":"turn.completed","usage":{"input_tokens":500,"cached_input_tokens":100,"output_tokens":25}}`,
	} {
		d.handle(l)
	}

	var res provider.Result
	d.finish(&res, "gpt-5.2-codex")

	if res.FinalOutput != "NO_WORK" {
		t.Errorf("unexpected final output %q", res.FinalOutput)
	}
	if want := (provider.TokenUsage{Input: 1500, Output: 75, Cached: 500}); res.TokenUsage != want {
		t.Errorf("tokens = %+v, want %+v", res.TokenUsage, want)
	}
	if !res.CostEstimated {
		t.Error("codex cost must be estimated")
	}
	if res.Cost <= 0 {
		t.Errorf("expected positive cost, got %v", res.Cost)
	}
}

func TestDecoder_RateLimitedError(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	d := newDecoder("", func() time.Time { return now })

	lines, ok := d.handle(`{"type":"error","message":"Rate limit reached for requests"}`)
	if !ok || len(lines) != 1 || lines[0].Style != console.Yellow {
		t.Fatalf("unexpected display: %+v", lines)
	}

	var res provider.Result
	d.finish(&res, DefaultModel)
	if !res.RateLimited || res.RetryAfter != 5*time.Minute {
		t.Errorf("expected rate limit with default delay, got %v %s", res.RateLimited, res.RetryAfter)
	}
}

func TestDecoder_TurnFailedWithResetHint(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	d := newDecoder("", func() time.Time { return now })
	d.handle(`{"type":"turn.failed","error":{"message":"usage limit hit, resets at 11:00 am (UTC)"}}`)

	var res provider.Result
	d.finish(&res, DefaultModel)
	if !res.RateLimited || res.RetryAfter != 61*time.Minute {
		t.Errorf("expected 61m retry, got %v %s", res.RateLimited, res.RetryAfter)
	}
}

func TestDecoder_ItemDisplay(t *testing.T) {
	d := newDecoder("/work", time.Now)
	tests := []struct {
		line string
		want []string
	}{
		{`{"type":"item.completed","item":{"type":"command_execution","command":"/bin/bash -lc 'go test ./...'","exit_code":0}}`,
			[]string{"🔧 [codex] go test ./..."}},
		{`{"type":"item.completed","item":{"type":"command_execution","command":"make","exit_code":2,"aggregated_output":"boom"}}`,
			[]string{"⚠️ [codex] make (exit 2)\n↳ [codex] boom"}},
		{`{"type":"item.completed","item":{"type":"file_change","changes":[{"kind":"add","path":"/work/a.go"},{"path":"/work/b.go"}]}}`,
			[]string{"📝 [codex] add a.go", "📝 [codex] update b.go"}},
		{`{"type":"item.completed","item":{"type":"reasoning","text":"**Planning**\nmore detail"}}`,
			[]string{"💭 [codex] Planning"}},
		{`{"type":"item.completed","item":{"type":"web_search"}}`, nil},
	}
	for _, tt := range tests {
		lines, _ := d.handle(tt.line)
		var got []string
		for _, l := range lines {
			got = append(got, l.Text)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("display mismatch for %s (-want +got):\n%s", tt.line, diff)
		}
	}
}

func TestSpawn_EndToEnd(t *testing.T) {
	bin := fakeBinary(t, `
cat > /dev/null
echo 'Reading prompt from stdin...' >&2
echo '{"type":"item.completed","item":{"type":"agent_message","text":"done"}}'
echo '{"type":"turn.completed","usage":{"input_tokens":10,"cached_input_tokens":0,"output_tokens":5}}'`)

	tr := &recordingTranscript{}
	res, err := New(WithBinary(bin)).Spawn(context.Background(), provider.Options{
		Prompt:       "go",
		Model:        "gpt-5-codex",
		AllowedTools: []string{"mcp__linear__*"},
		Transcript:   tr,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.FinalOutput != "done" || res.ExitCode != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
	if tr.contains("Reading prompt from stdin") {
		t.Error("stdin banner should be filtered from stderr")
	}
	if !tr.contains("allowedTools ignored") {
		t.Error("expected allowedTools warning")
	}
	if !tr.contains("CODEX SESSION END") {
		t.Error("expected session end banner")
	}
}

func TestCheckLinearMCP(t *testing.T) {
	yes := fakeBinary(t, `echo "linear  https://mcp.linear.app/sse  enabled"`)
	if !New(WithBinary(yes)).CheckLinearMCP(context.Background()) {
		t.Error("expected linear MCP to be detected")
	}

	no := fakeBinary(t, `echo "github enabled"`)
	if New(WithBinary(no)).CheckLinearMCP(context.Background()) {
		t.Error("expected linear MCP to be absent")
	}

	if New(WithBinary("foundry-no-such-codex")).CheckLinearMCP(context.Background()) {
		t.Error("missing binary must count as not configured")
	}
}
