// Package provider defines the contract shared by every agent CLI backend
// and the process runner they use to drive their child process.
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/leandrotocalini/foundry/internal/console"
)

// ErrBinaryNotFound is returned when the agent CLI is not on PATH.
var ErrBinaryNotFound = errors.New("agent binary not found")

// ErrEmptyPrompt is returned when Spawn is called without a prompt.
var ErrEmptyPrompt = errors.New("prompt is required")

// TokenUsage tallies tokens for one invocation. Input includes cached
// tokens; Cached is the cached subset of Input.
type TokenUsage struct {
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
	Cached int64 `json:"cached"`
}

// Add returns the sum of u and o.
func (u TokenUsage) Add(o TokenUsage) TokenUsage {
	return TokenUsage{
		Input:  u.Input + o.Input,
		Output: u.Output + o.Output,
		Cached: u.Cached + o.Cached,
	}
}

// Result is what every backend returns from Spawn.
//
// A rate-limited result is a normal outcome, not an error, but its
// FinalOutput may be empty or partial and must not be treated as a
// successful answer.
type Result struct {
	Output        string // raw stdout transcript
	FinalOutput   string // last top-level answer
	RateLimited   bool
	RetryAfter    time.Duration // 0 when the backend gave no hint
	Cost          float64       // USD
	CostEstimated bool
	Duration      time.Duration
	ExitCode      int
	TokenUsage    TokenUsage

	// Only reported by backends that expose context usage.
	MaxContextPercent int
	Compactions       int
}

// IsRateLimited implements ratelimit.Limited.
func (r *Result) IsRateLimited() bool { return r.RateLimited }

// RetryDelay implements ratelimit.Limited.
func (r *Result) RetryDelay() time.Duration { return r.RetryAfter }

// Transcript receives a backend's output as it streams.
type Transcript interface {
	// Raw receives each JSON line exactly as emitted by the child.
	Raw(line string)
	// Display receives formatted, human-readable lines.
	Display(line console.Line)
}

// Options configures a single Spawn call.
type Options struct {
	Prompt          string
	Model           string
	AllowedTools    []string // honored by claude, ignored with a warning by codex
	ReasoningEffort string   // codex only
	AgentNumber     int
	Transcript      Transcript // nil discards output
}

// TranscriptOrNop returns o.Transcript, or a sink that drops everything.
func (o Options) TranscriptOrNop() Transcript {
	if o.Transcript == nil {
		return nopTranscript{}
	}
	return o.Transcript
}

// Provider runs one agent invocation to completion.
//
// Spawn returns an error only when the child could not be started. Every
// run that started, including one that hit a rate limit or exited
// non-zero, is reported through Result.
type Provider interface {
	Name() string
	Spawn(ctx context.Context, opts Options) (*Result, error)
}

type nopTranscript struct{}

func (nopTranscript) Raw(string)           {}
func (nopTranscript) Display(console.Line) {}
