package claude

import (
	"bytes"
	"encoding/json"
)

// event is one decoded line of `claude --output-format=stream-json`.
type event interface{ claudeEvent() }

type systemInit struct {
	Model string
	Tools int
}

type systemStatus struct {
	Status string
}

type compactBoundary struct {
	PreTokens int64
}

type taskNotification struct {
	Summary string
}

type assistantEvent struct {
	ParentToolUseID string // empty at top level
	Message         assistantMessage
}

type resultEvent struct {
	IsError      bool
	Result       string
	TotalCostUSD float64
	DurationMS   int64
	NumTurns     int
	ModelUsage   map[string]modelUsage
}

// ignoredEvent covers every discriminator the decoder has no use for
// (user tool results, stream deltas, unknown system subtypes).
type ignoredEvent struct {
	Type    string
	Subtype string
}

func (systemInit) claudeEvent()       {}
func (systemStatus) claudeEvent()     {}
func (compactBoundary) claudeEvent()  {}
func (taskNotification) claudeEvent() {}
func (assistantEvent) claudeEvent()   {}
func (resultEvent) claudeEvent()      {}
func (ignoredEvent) claudeEvent()     {}

type usage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
}

type contentItem struct {
	Type  string         `json:"type"`
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Text  string         `json:"text"`
	Input map[string]any `json:"input"`
}

type assistantMessage struct {
	ID      string        `json:"id"`
	Model   string        `json:"model"`
	Usage   *usage        `json:"usage"`
	Content []contentItem `json:"content"`
}

type modelUsage struct {
	InputTokens              int64   `json:"inputTokens"`
	OutputTokens             int64   `json:"outputTokens"`
	CacheReadInputTokens     int64   `json:"cacheReadInputTokens"`
	CacheCreationInputTokens int64   `json:"cacheCreationInputTokens"`
	CostUSD                  float64 `json:"costUSD"`
}

// wireEvent is the union of every field the decoder reads.
type wireEvent struct {
	Type            string          `json:"type"`
	Subtype         string          `json:"subtype"`
	Error           json.RawMessage `json:"error"`
	Model           string          `json:"model"`
	Tools           []any           `json:"tools"`
	Status          string          `json:"status"`
	Summary         string          `json:"summary"`
	CompactMetadata *struct {
		PreTokens int64 `json:"pre_tokens"`
	} `json:"compact_metadata"`
	ParentToolUseID *string               `json:"parent_tool_use_id"`
	Message         json.RawMessage       `json:"message"`
	IsError         bool                  `json:"is_error"`
	Result          string                `json:"result"`
	TotalCostUSD    float64               `json:"total_cost_usd"`
	DurationMS      int64                 `json:"duration_ms"`
	NumTurns        int                   `json:"num_turns"`
	ModelUsage      map[string]modelUsage `json:"modelUsage"`
}

// decoded is a parsed line: the event plus the envelope-level error code,
// which claude attaches to any event kind.
type decoded struct {
	event     event
	errorCode string
}

// parseLine decodes one stdout line. ok is false for lines that are not
// JSON objects, which callers skip.
func parseLine(line []byte) (decoded, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		return decoded{}, false
	}
	var w wireEvent
	if err := json.Unmarshal(line, &w); err != nil {
		return decoded{}, false
	}
	return decoded{event: w.toEvent(), errorCode: errorCode(w.Error)}, true
}

func (w wireEvent) toEvent() event {
	switch w.Type {
	case "system":
		switch w.Subtype {
		case "init":
			return systemInit{Model: w.Model, Tools: len(w.Tools)}
		case "status":
			return systemStatus{Status: w.Status}
		case "compact_boundary":
			var pre int64
			if w.CompactMetadata != nil {
				pre = w.CompactMetadata.PreTokens
			}
			return compactBoundary{PreTokens: pre}
		case "task_notification":
			return taskNotification{Summary: w.Summary}
		}
	case "assistant":
		ev := assistantEvent{}
		if w.ParentToolUseID != nil {
			ev.ParentToolUseID = *w.ParentToolUseID
		}
		// Only assistant messages have a stable shape; user messages
		// carry tool results whose content may be a string or a list.
		if len(w.Message) > 0 {
			json.Unmarshal(w.Message, &ev.Message) //nolint:errcheck
		}
		return ev
	case "result":
		return resultEvent{
			IsError:      w.IsError,
			Result:       w.Result,
			TotalCostUSD: w.TotalCostUSD,
			DurationMS:   w.DurationMS,
			NumTurns:     w.NumTurns,
			ModelUsage:   w.ModelUsage,
		}
	}
	return ignoredEvent{Type: w.Type, Subtype: w.Subtype}
}

// errorCode returns the envelope "error" field when it is a plain string.
func errorCode(raw json.RawMessage) string {
	if len(raw) == 0 || raw[0] != '"' {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
