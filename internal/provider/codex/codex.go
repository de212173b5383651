// Package codex drives the OpenAI Codex CLI in `exec --json` mode.
package codex

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/leandrotocalini/foundry/internal/console"
	"github.com/leandrotocalini/foundry/internal/provider"
)

const (
	// Name is the provider name used in configuration and stats.
	Name = "codex"

	DefaultModel           = "gpt-5.2-codex"
	DefaultReasoningEffort = "high"
)

// Provider spawns `codex exec` once per call.
type Provider struct {
	binary string
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Provider.
type Option func(*Provider)

// WithBinary overrides the executable name or path.
func WithBinary(path string) Option {
	return func(p *Provider) { p.binary = path }
}

// WithDir sets the working directory of the child process.
func WithDir(dir string) Option {
	return func(p *Provider) { p.dir = dir }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// New creates a codex provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		binary: "codex",
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return Name }

// Args builds the argument vector for one invocation. Empty model and
// effort fall back to the package defaults.
func Args(opts provider.Options) []string {
	model, effort := opts.Model, opts.ReasoningEffort
	if model == "" {
		model = DefaultModel
	}
	if effort == "" {
		effort = DefaultReasoningEffort
	}
	return []string{
		"exec",
		"--dangerously-bypass-approvals-and-sandbox",
		"--json",
		"--model", model,
		"-c", fmt.Sprintf("model_reasoning_effort=%q", effort),
	}
}

// Spawn implements provider.Provider.
func (p *Provider) Spawn(ctx context.Context, opts provider.Options) (*provider.Result, error) {
	if strings.TrimSpace(opts.Prompt) == "" {
		return nil, provider.ErrEmptyPrompt
	}
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}

	log := p.logger.With("provider", Name, "agent", opts.AgentNumber, "model", model)
	tr := opts.TranscriptOrNop()

	if len(opts.AllowedTools) > 0 {
		log.Warn("allowedTools ignored; codex uses its global MCP configuration", "allowed_tools", opts.AllowedTools)
		tr.Display(console.Styled(console.Yellow, "⚠️  allowedTools ignored; codex uses its global MCP configuration (~/.codex/config.toml)"))
	}

	cmd := provider.Command{
		Name:  p.binary,
		Args:  Args(opts),
		Dir:   p.dir,
		Stdin: opts.Prompt,
	}
	tr.Display(console.Styled(console.Bold, "Spawning: %s", cmd))
	if p.dir != "" {
		tr.Display(console.Styled(console.Dim, "   Working directory: %s", p.dir))
	}

	dec := newDecoder(p.dir, p.now)
	var raw strings.Builder
	start := p.now()

	code, err := provider.Run(ctx, cmd,
		func(line string) {
			raw.WriteString(line)
			raw.WriteByte('\n')
			lines, ok := dec.handle(line)
			if !ok {
				return
			}
			tr.Raw(line)
			for _, l := range lines {
				tr.Display(l)
			}
		},
		func(line string) {
			if strings.TrimSpace(line) == "" || strings.Contains(line, "Reading prompt from stdin") {
				return
			}
			tr.Display(console.Styled(console.Dim, "stderr: %s", line))
		},
	)
	if err != nil {
		return nil, fmt.Errorf("codex: %w", err)
	}

	res := &provider.Result{
		Output:   raw.String(),
		Duration: p.now().Sub(start),
		ExitCode: code,
	}
	dec.finish(res, model)
	tr.Display(dec.sessionEnd(res))

	log.Info("agent finished",
		"exit_code", res.ExitCode,
		"duration", res.Duration.Round(time.Second).String(),
		"cost_usd", res.Cost,
		"rate_limited", res.RateLimited,
	)
	return res, nil
}

// CheckLinearMCP reports whether `codex mcp list` mentions a Linear
// server. Any failure to run the command counts as not configured.
func (p *Provider) CheckLinearMCP(ctx context.Context) bool {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, p.binary, "mcp", "list")
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		p.logger.Debug("codex mcp list failed", "error", err)
		return false
	}
	return strings.Contains(strings.ToLower(out.String()), "linear")
}
