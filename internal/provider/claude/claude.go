// Package claude drives the Claude Code CLI in stream-json mode.
package claude

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/leandrotocalini/foundry/internal/console"
	"github.com/leandrotocalini/foundry/internal/provider"
)

// Name is the provider name used in configuration and stats.
const Name = "claude"

// Provider spawns `claude -p` once per call.
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
	return func(p *Provider) {
		p.binary = path
	}
}

// WithDir sets the working directory of the child process.
func WithDir(dir string) Option {
	return func(p *Provider) {
		p.dir = dir
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = l
	}
}

// WithClock overrides the time source used for durations and reset times.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		p.now = now
	}
}

// New creates a claude provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		binary: "claude",
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

// Args builds the argument vector for one invocation.
func Args(opts provider.Options) []string {
	args := []string{
		"-p",
		"--dangerously-skip-permissions",
		"--output-format=stream-json",
		"--model", opts.Model,
		"--verbose",
	}
	if len(opts.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(opts.AllowedTools, ","))
	}
	return args
}

// Spawn implements provider.Provider.
func (p *Provider) Spawn(ctx context.Context, opts provider.Options) (*provider.Result, error) {
	if strings.TrimSpace(opts.Prompt) == "" {
		return nil, provider.ErrEmptyPrompt
	}

	tr := opts.TranscriptOrNop()
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

	log := p.logger.With("provider", Name, "agent", opts.AgentNumber, "model", opts.Model)
	log.Debug("spawning agent", "allowed_tools", opts.AllowedTools)

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
			if strings.TrimSpace(line) == "" {
				return
			}
			tr.Display(console.Styled(console.Dim, "stderr: %s", line))
		},
	)
	if err != nil {
		return nil, fmt.Errorf("claude: %w", err)
	}

	res := &provider.Result{
		Output:   raw.String(),
		Duration: p.now().Sub(start),
		ExitCode: code,
	}
	dec.finish(res)

	log.Info("agent finished",
		"exit_code", res.ExitCode,
		"duration", res.Duration.Round(time.Second).String(),
		"cost_usd", res.Cost,
		"rate_limited", res.RateLimited,
	)
	return res, nil
}
