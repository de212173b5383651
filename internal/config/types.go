// Package config loads foundry settings from the environment and from
// the optional <dir>/.foundry/env file.
package config

import (
	"log/slog"
	"time"
)

// Config is the resolved configuration for one foundry process.
type Config struct {
	// Dir is the working directory agents run in.
	Dir string

	Provider    string
	ClaudeModel string

	MaxIterations       int // 0 = unlimited
	RateLimitMaxRetries int

	GCPAutoStop bool

	QuickCheckInterval time.Duration
	FullCheckInterval  time.Duration
	ErrorSleep         time.Duration
	AgentTimeout       time.Duration // 0 = none

	StatsDB  bool
	LogLevel slog.Level

	Codex  CodexConfig
	Linear LinearConfig
}

// CodexConfig holds the codex model and the reasoning effort per agent.
type CodexConfig struct {
	Model           string
	ReasoningEffort string
	Agent1Reasoning string
	Agent2Reasoning string
	Agent3Reasoning string
}

// LinearConfig holds the credentials for the Linear API.
type LinearConfig struct {
	APIKey  string
	TeamKey string
}

// ReasoningFor returns the codex reasoning effort of agent n (1..3).
func (c CodexConfig) ReasoningFor(n int) string {
	switch n {
	case 1:
		return c.Agent1Reasoning
	case 3:
		return c.Agent3Reasoning
	default:
		return c.Agent2Reasoning
	}
}
