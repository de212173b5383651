package claude

import (
	"strings"
	"testing"
	"time"

	"github.com/leandrotocalini/foundry/internal/provider"
)

func fixedNow() time.Time {
	return time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
}

func feed(t *testing.T, d *decoder, lines ...string) {
	t.Helper()
	for _, l := range lines {
		d.handle(l)
	}
}

func TestDecoder_NonJSONLinesSkipped(t *testing.T) {
	d := newDecoder("", fixedNow)
	if _, ok := d.handle("plain text"); ok {
		t.Error("expected non-JSON line to be skipped")
	}
	if _, ok := d.handle("{not json"); ok {
		t.Error("expected malformed JSON to be skipped")
	}
	if _, ok := d.handle(`{"type":"user","message":{"content":"tool output"}}`); !ok {
		t.Error("expected user event to be decoded")
	}
}

func TestDecoder_FinalOutputIsLastTopLevelText(t *testing.T) {
	d := newDecoder("", fixedNow)
	feed(t, d,
		`{"type":"assistant","message":{"id":"m1","model":"claude-opus-4","content":[{"type":"text","text":"first"}]}}`,
		`{"type":"assistant","parent_tool_use_id":"toolu_1","message":{"id":"m2","content":[{"type":"text","text":"from subtask"}]}}`,
		`{"type":"assistant","message":{"id":"m3","content":[{"type":"text","text":"second"}]}}`,
	)

	var res provider.Result
	d.finish(&res)
	if res.FinalOutput != "second" {
		t.Errorf("expected final output %q, got %q", "second", res.FinalOutput)
	}
}

func TestDecoder_ResultTextOverridesAssistantText(t *testing.T) {
	d := newDecoder("", fixedNow)
	feed(t, d,
		`{"type":"assistant","message":{"id":"m1","content":[{"type":"text","text":"thinking out loud"}]}}`,
		`{"type":"result","subtype":"success","result":"the answer","total_cost_usd":0.42,"duration_ms":5000,"num_turns":3}`,
	)

	var res provider.Result
	d.finish(&res)
	if res.FinalOutput != "the answer" {
		t.Errorf("unexpected final output %q", res.FinalOutput)
	}
	if res.Cost != 0.42 || res.CostEstimated {
		t.Errorf("expected exact cost 0.42, got %v estimated=%v", res.Cost, res.CostEstimated)
	}
}

func TestDecoder_UsageCountedOncePerMessage(t *testing.T) {
	d := newDecoder("", fixedNow)
	u := `"usage":{"input_tokens":10,"output_tokens":5,"cache_read_input_tokens":100,"cache_creation_input_tokens":20}`
	feed(t, d,
		`{"type":"assistant","message":{"id":"m1",`+u+`,"content":[{"type":"text","text":"a"}]}}`,
		`{"type":"assistant","message":{"id":"m1",`+u+`,"content":[{"type":"tool_use","name":"Bash","input":{"command":"ls"}}]}}`,
		`{"type":"assistant","message":{"id":"m2",`+u+`,"content":[{"type":"text","text":"b"}]}}`,
	)

	got := d.tokens()
	want := provider.TokenUsage{Input: 260, Output: 10, Cached: 200}
	if got != want {
		t.Errorf("tokens = %+v, want %+v", got, want)
	}
}

func TestDecoder_ModelUsageIsAuthoritative(t *testing.T) {
	d := newDecoder("", fixedNow)
	feed(t, d,
		`{"type":"assistant","message":{"id":"m1","usage":{"input_tokens":999,"output_tokens":999},"content":[]}}`,
		`{"type":"result","result":"ok","modelUsage":{
			"claude-opus-4":{"inputTokens":100,"outputTokens":50,"cacheReadInputTokens":1000,"cacheCreationInputTokens":200,"costUSD":1.5},
			"claude-haiku-4":{"inputTokens":10,"outputTokens":5,"cacheReadInputTokens":0,"cacheCreationInputTokens":0,"costUSD":0.01}}}`,
	)

	got := d.tokens()
	want := provider.TokenUsage{Input: 1310, Output: 55, Cached: 1000}
	if got != want {
		t.Errorf("tokens = %+v, want %+v", got, want)
	}
}

func TestDecoder_RateLimitFromErrorField(t *testing.T) {
	d := newDecoder("", fixedNow)
	feed(t, d,
		`{"type":"assistant","error":"rate_limit","message":{"content":[{"type":"text","text":"You've hit your limit · resets 10:30am (UTC)"}]}}`,
	)

	var res provider.Result
	d.finish(&res)
	if !res.RateLimited {
		t.Fatal("expected rate limited result")
	}
	if res.RetryAfter != 31*time.Minute {
		t.Errorf("expected 31m retry, got %s", res.RetryAfter)
	}
}

func TestDecoder_RateLimitFromErrorResult(t *testing.T) {
	d := newDecoder("", fixedNow)
	feed(t, d,
		`{"type":"result","is_error":true,"result":"Claude usage limit reached. Try again later."}`,
	)

	var res provider.Result
	d.finish(&res)
	if !res.RateLimited {
		t.Fatal("expected rate limited result")
	}
	if res.RetryAfter != 5*time.Minute {
		t.Errorf("expected default delay, got %s", res.RetryAfter)
	}
	if res.FinalOutput != "" {
		t.Errorf("error result must not become final output, got %q", res.FinalOutput)
	}
}

func TestDecoder_ErrorResultWithoutLimitIsNotRateLimited(t *testing.T) {
	d := newDecoder("", fixedNow)
	feed(t, d, `{"type":"result","is_error":true,"result":"tool crashed"}`)

	var res provider.Result
	d.finish(&res)
	if res.RateLimited {
		t.Error("unexpected rate limit")
	}
}

func TestDecoder_CompactionsAndContext(t *testing.T) {
	d := newDecoder("", fixedNow)
	feed(t, d,
		`{"type":"assistant","message":{"id":"m1","usage":{"cache_read_input_tokens":84000,"cache_creation_input_tokens":0},"content":[]}}`,
		`{"type":"system","subtype":"compact_boundary","compact_metadata":{"pre_tokens":150000}}`,
		`{"type":"system","subtype":"compact_boundary"}`,
		`{"type":"assistant","message":{"id":"m2","usage":{"cache_read_input_tokens":16800},"content":[]}}`,
	)

	var res provider.Result
	d.finish(&res)
	if res.Compactions != 2 {
		t.Errorf("expected 2 compactions, got %d", res.Compactions)
	}
	if res.MaxContextPercent != 50 {
		t.Errorf("expected max context 50%%, got %d", res.MaxContextPercent)
	}
}

func TestDecoder_DisplayLines(t *testing.T) {
	d := newDecoder("/work", fixedNow)

	lines, _ := d.handle(`{"type":"system","subtype":"init","model":"claude-sonnet-4","tools":["a","b","c"]}`)
	if len(lines) != 1 || !strings.Contains(lines[0].Text, "Tools: 3 available") {
		t.Errorf("unexpected init lines: %+v", lines)
	}

	lines, _ = d.handle(`{"type":"assistant","message":{"id":"m1","model":"claude-sonnet-4","content":[
		{"type":"tool_use","id":"toolu_1","name":"Task","input":{"description":"explore repo","subagent_type":"Explore"}},
		{"type":"tool_use","name":"Read","input":{"file_path":"/work/internal/a.go"}}]}}`)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %+v", lines)
	}
	if !strings.Contains(lines[0].Text, "SPAWN: explore repo") {
		t.Errorf("unexpected spawn line %q", lines[0].Text)
	}
	if !strings.Contains(lines[1].Text, "Read: internal/a.go") {
		t.Errorf("unexpected tool line %q", lines[1].Text)
	}

	lines, _ = d.handle(`{"type":"assistant","parent_tool_use_id":"toolu_1","message":{"model":"claude-sonnet-4","content":[
		{"type":"tool_use","name":"Grep","input":{"pattern":"TODO"}}]}}`)
	if len(lines) != 1 || !strings.Contains(lines[0].Text, "[sonnet/explore repo] Grep: TODO") {
		t.Errorf("unexpected subagent line: %+v", lines)
	}
}

func TestToolValue(t *testing.T) {
	tests := []struct {
		name  string
		input map[string]any
		want  string
	}{
		{"file", map[string]any{"file_path": "/w/a.go"}, "a.go"},
		{"pattern in path", map[string]any{"pattern": "x", "path": "/w/pkg"}, "x in pkg"},
		{"command", map[string]any{"command": "go\ntest"}, "go test"},
		{"content", map[string]any{"content": "abc"}, "(content)"},
		{"fallback", map[string]any{"n": 1}, `{"n":1}`},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := toolValue(tt.input, "/w"); got != tt.want {
				t.Errorf("toolValue = %q, want %q", got, tt.want)
			}
		})
	}
}
