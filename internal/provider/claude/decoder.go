package claude

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/leandrotocalini/foundry/internal/console"
	"github.com/leandrotocalini/foundry/internal/provider"
	"github.com/leandrotocalini/foundry/internal/ratelimit"
)

// contextWindow is the effective context size used for the percentage
// shown next to each assistant message.
const contextWindow = 168000

// decoder holds the running state for one claude invocation. It is used
// from a single goroutine.
type decoder struct {
	dir string
	now func() time.Time

	final       string
	rateLimited bool
	retryAfter  time.Duration
	cost        float64

	// Assistant events repeat the same usage block once per content item
	// of an API message, so usage is keyed by message id.
	msgUsage    map[string]usage
	looseUsage  provider.TokenUsage
	resultUsage *provider.TokenUsage

	maxContext  int
	compactions int
	subagents   map[string]string // Task tool_use id -> description
}

func newDecoder(dir string, now func() time.Time) *decoder {
	return &decoder{
		dir:       dir,
		now:       now,
		msgUsage:  make(map[string]usage),
		subagents: make(map[string]string),
	}
}

// handle decodes one stdout line and returns the lines to display. ok is
// false when the line was not a JSON event.
func (d *decoder) handle(line string) (out []console.Line, ok bool) {
	dec, ok := parseLine([]byte(line))
	if !ok {
		return nil, false
	}

	switch ev := dec.event.(type) {
	case systemInit:
		out = append(out, console.Styled(console.Bold, "\n🚀 SESSION START\n   Model: %s\n   Tools: %d available", ev.Model, ev.Tools))

	case systemStatus:
		out = append(out, console.Styled(console.Dim, "⏳ %s...", strings.ToUpper(ev.Status)))

	case compactBoundary:
		d.compactions++
		pre := "?"
		if ev.PreTokens > 0 {
			pre = fmt.Sprintf("%d", ev.PreTokens/1000)
		}
		out = append(out, console.Styled(console.Dim, "📦 Context compacted (was %sk tokens)", pre))

	case taskNotification:
		out = append(out, console.Styled(console.Green, "✅ DONE: %s", ev.Summary))

	case assistantEvent:
		if dec.errorCode == "rate_limit" {
			d.markRateLimited(firstText(ev.Message))
		}
		out = append(out, d.assistant(ev)...)

	case resultEvent:
		if dec.errorCode == "rate_limit" || (ev.IsError && ratelimit.IsRateLimitError(ev.Result)) {
			d.markRateLimited(ev.Result)
		}
		d.result(ev)
		out = append(out, sessionEnd(ev))

	case ignoredEvent:
		if dec.errorCode == "rate_limit" {
			d.markRateLimited("")
		}
	}
	return out, true
}

func (d *decoder) markRateLimited(text string) {
	d.rateLimited = true
	d.retryAfter = ratelimit.ResetDelayAt(text, d.now())
}

func (d *decoder) assistant(ev assistantEvent) []console.Line {
	msg := ev.Message
	model := shortModel(msg.Model)

	pct := 0
	if msg.Usage != nil {
		pct = contextPercent(*msg.Usage)
		if pct > d.maxContext {
			d.maxContext = pct
		}
		if msg.ID != "" {
			d.msgUsage[msg.ID] = *msg.Usage
		} else {
			d.looseUsage = d.looseUsage.Add(toTokenUsage(*msg.Usage))
		}
	}

	topLevel := ev.ParentToolUseID == ""
	var out []console.Line
	for _, item := range msg.Content {
		switch {
		case item.Name == "Task":
			desc := stringField(item.Input, "description", "unknown")
			agentType := stringField(item.Input, "subagent_type", "unknown")
			if item.ID != "" {
				d.subagents[item.ID] = desc
			}
			out = append(out, console.Styled(console.Yellow, "\n🤖 [%s/main/%d%%] SPAWN: %s\n   Agent: %s", model, pct, desc, agentType))

		case item.Name == "TaskOutput":
			continue

		case item.Type == "tool_use":
			value := toolValue(item.Input, d.dir)
			if topLevel {
				out = append(out, console.Styled(console.Dim, "🔧 [%s/main/%d%%] %s: %s", model, pct, item.Name, value))
			} else {
				parent := d.subagents[ev.ParentToolUseID]
				if parent == "" {
					parent = ev.ParentToolUseID
				}
				out = append(out, console.Styled(console.Dim, "   [%s/%s] %s: %s", model, parent, item.Name, value))
			}

		case item.Type == "text" && item.Text != "":
			// Sub-task text never reaches the final answer.
			if topLevel {
				d.final = item.Text
				out = append(out, console.Styled(console.Plain, "💬 [%s/main/%d%%] %s", model, pct, item.Text))
			}
		}
	}
	return out
}

func (d *decoder) result(ev resultEvent) {
	d.cost = ev.TotalCostUSD
	if !ev.IsError && ev.Result != "" {
		d.final = ev.Result
	}
	if len(ev.ModelUsage) > 0 {
		var total provider.TokenUsage
		for _, mu := range ev.ModelUsage {
			total = total.Add(provider.TokenUsage{
				Input:  mu.InputTokens + mu.CacheReadInputTokens + mu.CacheCreationInputTokens,
				Output: mu.OutputTokens,
				Cached: mu.CacheReadInputTokens,
			})
		}
		d.resultUsage = &total
	}
}

// tokens returns the authoritative totals from the result event when one
// arrived, and the per-message tally otherwise.
func (d *decoder) tokens() provider.TokenUsage {
	if d.resultUsage != nil {
		return *d.resultUsage
	}
	total := d.looseUsage
	for _, u := range d.msgUsage {
		total = total.Add(toTokenUsage(u))
	}
	return total
}

func (d *decoder) finish(res *provider.Result) {
	res.FinalOutput = d.final
	res.RateLimited = d.rateLimited
	res.RetryAfter = d.retryAfter
	res.Cost = d.cost
	res.CostEstimated = false
	res.TokenUsage = d.tokens()
	res.MaxContextPercent = d.maxContext
	res.Compactions = d.compactions
}

func toTokenUsage(u usage) provider.TokenUsage {
	return provider.TokenUsage{
		Input:  u.InputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens,
		Output: u.OutputTokens,
		Cached: u.CacheReadInputTokens,
	}
}

func contextPercent(u usage) int {
	return int((u.CacheCreationInputTokens + u.CacheReadInputTokens) * 100 / contextWindow)
}

func shortModel(model string) string {
	switch {
	case model == "":
		return "?"
	case strings.Contains(model, "opus"):
		return "opus"
	case strings.Contains(model, "sonnet"):
		return "sonnet"
	case strings.Contains(model, "haiku"):
		return "haiku"
	}
	return model
}

func firstText(msg assistantMessage) string {
	if len(msg.Content) > 0 {
		return msg.Content[0].Text
	}
	return ""
}

func stringField(m map[string]any, key, fallback string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// toolValue picks the most useful input field of a tool call for display.
func toolValue(input map[string]any, dir string) string {
	if input == nil {
		return ""
	}
	str := func(k string) string { s, _ := input[k].(string); return s }

	switch {
	case str("file_path") != "":
		return provider.ShortPath(str("file_path"), dir)
	case str("path") != "" && str("pattern") != "":
		return str("pattern") + " in " + provider.ShortPath(str("path"), dir)
	case str("pattern") != "":
		return str("pattern")
	case str("command") != "":
		return provider.OneLine(provider.Truncate(str("command"), 80))
	case str("query") != "":
		return provider.Truncate(str("query"), 80)
	case input["content"] != nil:
		return "(content)"
	case input["todos"] != nil:
		return "(todos)"
	}
	raw, _ := json.Marshal(input)
	return provider.OneLine(provider.Truncate(string(raw), 80))
}

func sessionEnd(ev resultEvent) console.Line {
	var totalIn, totalOut, totalRead, totalWrite int64
	var b strings.Builder

	fmt.Fprintf(&b, "\n📊 SESSION END\n   Duration: %ds\n   Cost: $%.2f\n   Turns: %d",
		ev.DurationMS/1000, ev.TotalCostUSD, ev.NumTurns)

	for _, name := range slices.Sorted(maps.Keys(ev.ModelUsage)) {
		mu := ev.ModelUsage[name]
		totalIn += mu.InputTokens
		totalOut += mu.OutputTokens
		totalRead += mu.CacheReadInputTokens
		totalWrite += mu.CacheCreationInputTokens

		short := name
		if parts := strings.Split(name, "-"); len(parts) > 1 {
			short = parts[1]
		}
		fmt.Fprintf(&b, "\n   %s: in=%s out=%s cache_read=%s cache_write=%s $%.2f",
			short, provider.Commas(mu.InputTokens), provider.Commas(mu.OutputTokens),
			provider.Commas(mu.CacheReadInputTokens), provider.Commas(mu.CacheCreationInputTokens), mu.CostUSD)
	}

	fmt.Fprintf(&b, "\n   TOTAL: in=%s out=%s cache_read=%s cache_write=%s",
		provider.Commas(totalIn), provider.Commas(totalOut), provider.Commas(totalRead), provider.Commas(totalWrite))

	return console.Line{Style: console.Bold, Text: b.String()}
}
