package codex

import (
	"fmt"
	"strings"
	"time"

	"github.com/leandrotocalini/foundry/internal/console"
	"github.com/leandrotocalini/foundry/internal/provider"
	"github.com/leandrotocalini/foundry/internal/ratelimit"
)

type decoder struct {
	dir string
	now func() time.Time

	final       string
	rateLimited bool
	retryAfter  time.Duration
	tokens      provider.TokenUsage
}

func newDecoder(dir string, now func() time.Time) *decoder {
	return &decoder{dir: dir, now: now}
}

func (d *decoder) handle(line string) (out []console.Line, ok bool) {
	ev, ok := parseLine([]byte(line))
	if !ok {
		return nil, false
	}

	switch ev := ev.(type) {
	case turnCompleted:
		// turn usage counts cached tokens inside input_tokens
		d.tokens = d.tokens.Add(provider.TokenUsage{
			Input:  ev.Usage.InputTokens,
			Output: ev.Usage.OutputTokens,
			Cached: ev.Usage.CachedInputTokens,
		})

	case itemCompleted:
		out = d.item(ev.Item)

	case errorEvent:
		msg := ev.Message
		if ratelimit.IsRateLimitError(msg) {
			d.rateLimited = true
			d.retryAfter = ratelimit.ResetDelayAt(msg, d.now())
		}
		if msg == "" {
			msg = "error"
		}
		out = append(out, console.Styled(console.Yellow, "⚠️ [codex] %s", msg))
	}
	return out, true
}

func (d *decoder) item(it item) []console.Line {
	switch it.Type {
	case "command_execution":
		cmd := provider.Truncate(provider.OneLine(cleanCommand(it.Command)), 80)
		code := 0
		if it.ExitCode != nil {
			code = *it.ExitCode
		}
		if code == 0 {
			return []console.Line{console.Styled(console.Dim, "🔧 [codex] %s", cmd)}
		}
		text := fmt.Sprintf("⚠️ [codex] %s (exit %d)", cmd, code)
		if it.AggregatedOutput != "" {
			text += "\n↳ [codex] " + provider.Truncate(it.AggregatedOutput, 80)
		}
		return []console.Line{{Style: console.Dim, Text: text}}

	case "file_change":
		if len(it.Changes) == 0 {
			return []console.Line{console.Styled(console.Dim, "📝 [codex] file_change")}
		}
		out := make([]console.Line, 0, len(it.Changes))
		for _, c := range it.Changes {
			kind := c.Kind
			if kind == "" {
				kind = "update"
			}
			out = append(out, console.Styled(console.Dim, "📝 [codex] %s %s", kind, provider.ShortPath(c.Path, d.dir)))
		}
		return out

	case "reasoning":
		first, _, _ := strings.Cut(it.Text, "\n")
		first = strings.TrimSuffix(strings.TrimPrefix(first, "**"), "**")
		return []console.Line{console.Styled(console.Plain, "💭 [codex] %s", first)}

	case "agent_message":
		d.final = it.Text
		return []console.Line{console.Styled(console.Bold, "💬 [codex] %s", it.Text)}
	}
	return nil
}

func (d *decoder) finish(res *provider.Result, model string) {
	res.FinalOutput = d.final
	res.RateLimited = d.rateLimited
	res.RetryAfter = d.retryAfter
	res.TokenUsage = d.tokens
	res.Cost = EstimateCost(d.tokens, model)
	res.CostEstimated = true
}

func (d *decoder) sessionEnd(res *provider.Result) console.Line {
	return console.Styled(console.Bold,
		"📊 CODEX SESSION END\n   Tokens: in=%s cached=%s out=%s\n   Duration: %ds\n   Cost: ~$%.4f (estimated)",
		provider.Commas(res.TokenUsage.Input), provider.Commas(res.TokenUsage.Cached), provider.Commas(res.TokenUsage.Output),
		int64(res.Duration/time.Second), res.Cost)
}

// cleanCommand drops the login-shell wrapper codex puts around commands.
func cleanCommand(cmd string) string {
	for _, prefix := range []string{"/bin/zsh -lc ", "/bin/bash -lc ", "bash -lc "} {
		if strings.HasPrefix(cmd, prefix) {
			cmd = strings.TrimPrefix(cmd, prefix)
			break
		}
	}
	return strings.Trim(cmd, `'"`)
}
