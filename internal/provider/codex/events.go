package codex

import (
	"bytes"
	"encoding/json"
)

// event is one decoded line of `codex exec --json`.
type event interface{ codexEvent() }

type turnCompleted struct {
	Usage turnUsage
}

type itemCompleted struct {
	Item item
}

// errorEvent covers both `error` and `turn.failed`.
type errorEvent struct {
	Message string
}

type ignoredEvent struct {
	Type string
}

func (turnCompleted) codexEvent() {}
func (itemCompleted) codexEvent() {}
func (errorEvent) codexEvent()    {}
func (ignoredEvent) codexEvent()  {}

type turnUsage struct {
	InputTokens       int64 `json:"input_tokens"`
	CachedInputTokens int64 `json:"cached_input_tokens"`
	OutputTokens      int64 `json:"output_tokens"`
}

type change struct {
	Kind string `json:"kind"`
	Path string `json:"path"`
}

type item struct {
	ID               string   `json:"id"`
	Type             string   `json:"type"`
	Command          string   `json:"command"`
	ExitCode         *int     `json:"exit_code"`
	AggregatedOutput string   `json:"aggregated_output"`
	Changes          []change `json:"changes"`
	Text             string   `json:"text"`
}

type wireEvent struct {
	Type    string          `json:"type"`
	Usage   *turnUsage      `json:"usage"`
	Item    *item           `json:"item"`
	Message string          `json:"message"`
	Error   json.RawMessage `json:"error"`
}

func parseLine(line []byte) (event, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		return nil, false
	}
	var w wireEvent
	if err := json.Unmarshal(line, &w); err != nil {
		return nil, false
	}

	switch w.Type {
	case "turn.completed":
		var u turnUsage
		if w.Usage != nil {
			u = *w.Usage
		}
		return turnCompleted{Usage: u}, true
	case "item.completed":
		if w.Item == nil {
			return ignoredEvent{Type: w.Type}, true
		}
		return itemCompleted{Item: *w.Item}, true
	case "error", "turn.failed":
		return errorEvent{Message: errorText(w)}, true
	}
	return ignoredEvent{Type: w.Type}, true
}

// errorText reads `message`, then `error` as a string, then
// `error.message`.
func errorText(w wireEvent) string {
	if w.Message != "" {
		return w.Message
	}
	if len(w.Error) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(w.Error, &s) == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(w.Error, &obj) == nil {
		return obj.Message
	}
	return ""
}
