// Package stats keeps the per-pod usage document (tokens, cost, duration
// per agent and per loop) and an optional SQLite history of every agent
// invocation.
package stats

import (
	"fmt"
	"time"

	"github.com/leandrotocalini/foundry/internal/provider"
)

// PodStats is the document stored at <output>/<pod>/stats.json.
type PodStats struct {
	PodName     string      `json:"podName"`
	SessionID   string      `json:"sessionId,omitempty"`
	StartedAt   time.Time   `json:"startedAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
	Loops       []LoopStats `json:"loops"`
	GrandTotals GrandTotals `json:"grandTotals"`
}

// LoopStats covers one iteration.
type LoopStats struct {
	LoopNumber       int          `json:"loopNumber"`
	LoopInstanceName string       `json:"loopInstanceName"`
	StartedAt        time.Time    `json:"startedAt"`
	CompletedAt      *time.Time   `json:"completedAt,omitempty"`
	Agents           []AgentStats `json:"agents"`
	Totals           LoopTotals   `json:"totals"`
}

// AgentStats is the latest invocation of one agent within a loop.
type AgentStats struct {
	AgentNumber             int                 `json:"agentNumber"`
	AgentName               string              `json:"agentName"`
	Provider                string              `json:"provider"`
	Model                   string              `json:"model"`
	Tokens                  provider.TokenUsage `json:"tokens"`
	Cost                    float64             `json:"cost"`
	CostEstimated           bool                `json:"costEstimated"`
	MaxContextWindowPercent int                 `json:"maxContextWindowPercent"`
	CompactionCount         int                 `json:"compactionCount"`
	DurationSeconds         int64               `json:"durationSeconds"`
	ExitCode                int                 `json:"exitCode"`
	RateLimited             bool                `json:"rateLimited"`
	CompletedAt             time.Time           `json:"completedAt"`
}

// LoopTotals sums the agents of a loop.
type LoopTotals struct {
	Tokens          provider.TokenUsage `json:"tokens"`
	Cost            float64             `json:"cost"`
	CostEstimated   bool                `json:"costEstimated"`
	DurationSeconds int64               `json:"durationSeconds"`
}

// GrandTotals sums every loop of a pod.
type GrandTotals struct {
	LoopCount       int                 `json:"loopCount"`
	Tokens          provider.TokenUsage `json:"tokens"`
	Cost            float64             `json:"cost"`
	CostEstimated   bool                `json:"costEstimated"`
	DurationSeconds int64               `json:"durationSeconds"`
}

// Invocation is one finished agent call to record.
type Invocation struct {
	AgentNumber int
	Provider    string
	Model       string
	Result      *provider.Result
}

// AgentName returns the display name of agent n.
func AgentName(n int) string {
	switch n {
	case 1:
		return "Linear Reader"
	case 2:
		return "Worker"
	case 3:
		return "Linear Writer"
	}
	return fmt.Sprintf("Agent %d", n)
}

func (p *PodStats) loop(n int) *LoopStats {
	for i := range p.Loops {
		if p.Loops[i].LoopNumber == n {
			return &p.Loops[i]
		}
	}
	return nil
}

// recompute rebuilds every total from the agent records.
func (p *PodStats) recompute() {
	p.GrandTotals = GrandTotals{LoopCount: len(p.Loops)}
	for i := range p.Loops {
		l := &p.Loops[i]
		l.Totals = LoopTotals{}
		for _, a := range l.Agents {
			l.Totals.Tokens = l.Totals.Tokens.Add(a.Tokens)
			l.Totals.Cost += a.Cost
			l.Totals.DurationSeconds += a.DurationSeconds
			l.Totals.CostEstimated = l.Totals.CostEstimated || a.CostEstimated
		}
		p.GrandTotals.Tokens = p.GrandTotals.Tokens.Add(l.Totals.Tokens)
		p.GrandTotals.Cost += l.Totals.Cost
		p.GrandTotals.DurationSeconds += l.Totals.DurationSeconds
		p.GrandTotals.CostEstimated = p.GrandTotals.CostEstimated || l.Totals.CostEstimated
	}
}
