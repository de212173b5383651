package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/leandrotocalini/foundry/internal/session"
)

const fileName = "stats.json"

// Aggregator maintains stats.json for each pod under root. Writes are
// crash-safe: the document is written to a temp file and renamed.
//
// An Aggregator is used from the orchestrator goroutine only.
type Aggregator struct {
	root   string
	now    func() time.Time
	logger *slog.Logger
	ledger *Ledger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = l
	}
}

// WithLedger mirrors every recorded invocation into l.
func WithLedger(l *Ledger) Option {
	return func(a *Aggregator) {
		a.ledger = l
	}
}

// NewAggregator creates an aggregator writing below root
// (normally <dir>/.foundry/output).
func NewAggregator(root string, opts ...Option) *Aggregator {
	a := &Aggregator{
		root:   root,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Path returns the stats file of pod.
func (a *Aggregator) Path(pod string) string {
	return filepath.Join(a.root, pod, fileName)
}

// Begin makes sure the pod document and the loop record of exec exist.
func (a *Aggregator) Begin(exec session.Execution) {
	if !exec.Valid() {
		return
	}
	doc := a.readOrCreate(exec)
	a.ensureLoop(doc, exec)
	doc.recompute()
	a.write(exec.Pod, doc)
}

// Record stores inv as the agent's record in the current loop, replacing
// an earlier record for the same agent number, and recomputes totals.
// Failures are logged, never returned.
func (a *Aggregator) Record(exec session.Execution, inv Invocation) {
	if !exec.Valid() || inv.Result == nil {
		return
	}
	res := inv.Result
	now := a.now()

	doc := a.readOrCreate(exec)
	loop := a.ensureLoop(doc, exec)

	agent := AgentStats{
		AgentNumber:             inv.AgentNumber,
		AgentName:               AgentName(inv.AgentNumber),
		Provider:                inv.Provider,
		Model:                   inv.Model,
		Tokens:                  res.TokenUsage,
		Cost:                    res.Cost,
		CostEstimated:           res.CostEstimated,
		MaxContextWindowPercent: res.MaxContextPercent,
		CompactionCount:         res.Compactions,
		DurationSeconds:         int64(math.Round(res.Duration.Seconds())),
		ExitCode:                res.ExitCode,
		RateLimited:             res.RateLimited,
		CompletedAt:             now.UTC(),
	}

	kept := loop.Agents[:0]
	for _, existing := range loop.Agents {
		if existing.AgentNumber != inv.AgentNumber {
			kept = append(kept, existing)
		}
	}
	loop.Agents = append(kept, agent)
	sort.Slice(loop.Agents, func(i, j int) bool {
		return loop.Agents[i].AgentNumber < loop.Agents[j].AgentNumber
	})

	doc.recompute()
	a.write(exec.Pod, doc)

	if a.ledger != nil {
		if err := a.ledger.Append(context.Background(), exec, inv, now); err != nil {
			a.logger.Warn("stats ledger append failed", "pod", exec.Pod, "error", err)
		}
	}
}

// Finalize stamps the loop's completion time.
func (a *Aggregator) Finalize(exec session.Execution) {
	if !exec.Valid() {
		return
	}
	doc := a.readOrCreate(exec)
	loop := doc.loop(exec.Iteration)
	if loop == nil {
		return
	}
	t := a.now().UTC()
	loop.CompletedAt = &t
	a.write(exec.Pod, doc)
}

// Load reads a stats document.
func Load(path string) (*PodStats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stats: %w", err)
	}
	var doc PodStats
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse stats: %w", err)
	}
	return &doc, nil
}

// readOrCreate loads the pod document, starting fresh when the file is
// missing or unreadable.
func (a *Aggregator) readOrCreate(exec session.Execution) *PodStats {
	doc, err := Load(a.Path(exec.Pod))
	if err == nil {
		return doc
	}
	if !errors.Is(err, fs.ErrNotExist) {
		a.logger.Warn("stats file unreadable, starting fresh", "pod", exec.Pod, "error", err)
	}
	now := a.now().UTC()
	return &PodStats{
		PodName:   exec.Pod,
		SessionID: exec.SessionID,
		StartedAt: now,
		UpdatedAt: now,
		Loops:     []LoopStats{},
	}
}

func (a *Aggregator) ensureLoop(doc *PodStats, exec session.Execution) *LoopStats {
	if l := doc.loop(exec.Iteration); l != nil {
		return l
	}
	name := exec.Instance
	if name == "" {
		name = exec.Pod
	}
	doc.Loops = append(doc.Loops, LoopStats{
		LoopNumber:       exec.Iteration,
		LoopInstanceName: name,
		StartedAt:        a.now().UTC(),
		Agents:           []AgentStats{},
	})
	sort.Slice(doc.Loops, func(i, j int) bool {
		return doc.Loops[i].LoopNumber < doc.Loops[j].LoopNumber
	})
	return doc.loop(exec.Iteration)
}

func (a *Aggregator) write(pod string, doc *PodStats) {
	doc.UpdatedAt = a.now().UTC()
	if err := writeAtomic(a.Path(pod), doc); err != nil {
		a.logger.Warn("failed to write stats", "pod", pod, "error", err)
	}
}

func writeAtomic(path string, doc *PodStats) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create stats directory: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp stats file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename stats file: %w", err)
	}
	return nil
}
