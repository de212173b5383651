package cli

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/leandrotocalini/foundry/internal/config"
	"github.com/leandrotocalini/foundry/internal/decisions"
	"github.com/leandrotocalini/foundry/internal/gcp"
	"github.com/leandrotocalini/foundry/internal/linear"
	"github.com/leandrotocalini/foundry/internal/orchestrator"
	"github.com/leandrotocalini/foundry/internal/outputlog"
	"github.com/leandrotocalini/foundry/internal/prompt"
	"github.com/leandrotocalini/foundry/internal/provider"
	"github.com/leandrotocalini/foundry/internal/provider/codex"
	"github.com/leandrotocalini/foundry/internal/provider/factory"
	"github.com/leandrotocalini/foundry/internal/session"
	"github.com/leandrotocalini/foundry/internal/stats"
	"github.com/leandrotocalini/foundry/internal/vcs"
)

// ErrLinearMCPMissing is returned when codex has no Linear MCP server.
var ErrLinearMCPMissing = errors.New("codex has no Linear MCP server configured; run: codex mcp add linear --url https://mcp.linear.app/mcp")

type mcpChecker interface {
	CheckLinearMCP(ctx context.Context) bool
}

// transcripts adapts outputlog to the orchestrator's transcript interface.
type transcripts struct {
	*outputlog.Logger
}

func (t transcripts) ForAgent(e session.Execution, n int) orchestrator.Transcript {
	return t.Logger.ForAgent(e, n)
}

func (a *App) run(ctx context.Context, _ []string) error {
	cfg := a.cfg
	if err := cfg.Validate(); err != nil {
		return err
	}

	lookPath := a.lookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if !provider.Detect(lookPath, cfg.Provider)[cfg.Provider] {
		return fmt.Errorf("%s CLI not found in PATH", cfg.Provider)
	}

	p, err := a.newProvider(cfg.Provider, factory.Config{Dir: cfg.Dir, Logger: a.logger})
	if err != nil {
		return err
	}

	if cfg.Provider == codex.Name {
		check := a.checkMCP
		if check == nil {
			if c, ok := p.(mcpChecker); ok {
				check = c.CheckLinearMCP
			}
		}
		if check != nil && !check(ctx) {
			return ErrLinearMCPMissing
		}
	}

	now := time.Now()
	pod := session.NewPodName(now)
	sessionID := session.NewSessionID()
	git := vcs.New(cfg.Dir, vcs.WithLogger(a.logger))
	a.banner(ctx, git, pod)

	outputRoot := config.OutputDir(cfg.Dir)

	aggOpts := []stats.Option{stats.WithLogger(a.logger)}
	if cfg.StatsDB {
		ledger, err := stats.OpenLedger(filepath.Join(outputRoot, stats.LedgerFile))
		if err != nil {
			a.logger.Warn("stats history disabled", "error", err)
		} else {
			a.onShutdown("stats-ledger", func(context.Context) error { return ledger.Close() })
			aggOpts = append(aggOpts, stats.WithLedger(ledger))
		}
	}

	var decisionLog orchestrator.Decisions
	if dl, err := decisions.NewFileLogger(filepath.Join(outputRoot, pod), pod); err != nil {
		a.logger.Warn("decision log disabled", "error", err)
	} else {
		dl.SetLogger(a.logger)
		a.onShutdown("decision-log", func(context.Context) error { return dl.Close() })
		decisionLog = dl
	}

	deps := orchestrator.Deps{
		Provider: p,
		Work: linear.TeamChecker{
			Client:  a.linearClient(),
			TeamKey: cfg.Linear.TeamKey,
		},
		Attachments: linear.NewDownloader(config.AttachmentsDir(cfg.Dir), a.httpClient, a.logger),
		SafetyNet:   vcs.NewSafetyNet(git),
		Stats:       stats.NewAggregator(outputRoot, aggOpts...),
		Transcripts: transcripts{outputlog.New(outputRoot, outputlog.WithPrinter(a.printer), outputlog.WithLogger(a.logger))},
		Prompts:     prompt.Loader{Dir: config.PromptsDir(cfg.Dir)},
		Decisions:   decisionLog,
	}
	if cfg.GCPAutoStop {
		deps.Host = gcp.NewHost(gcp.WithLogger(a.logger))
	}

	o := orchestrator.New(orchestrator.Config{Pod: pod, SessionID: sessionID, Config: *cfg}, deps,
		orchestrator.WithLogger(a.logger),
		orchestrator.WithPrinter(a.printer),
	)
	return o.Run(ctx)
}

func (a *App) banner(ctx context.Context, git *vcs.Git, pod string) {
	cfg := a.cfg
	branch, err := git.CurrentBranch(ctx)
	if err != nil {
		branch = "(unknown)"
	}

	a.printer.Header("foundry v%s", Version)
	a.printer.Status("Directory: %s", cfg.Dir)
	a.printer.Status("Branch:    %s", branch)
	a.printer.Status("Provider:  %s", cfg.Provider)
	if cfg.Provider == codex.Name {
		a.printer.Status("Model:     %s (reasoning %s / %s / %s)", cfg.Codex.Model,
			cfg.Codex.Agent1Reasoning, cfg.Codex.Agent2Reasoning, cfg.Codex.Agent3Reasoning)
	} else {
		a.printer.Status("Models:    opus / %s / sonnet", cfg.WorkerModel())
	}
	a.printer.Status("Pod:       %s", pod)
	if cfg.MaxIterations > 0 {
		a.printer.Status("Max loops: %d", cfg.MaxIterations)
	}
	if cfg.GCPAutoStop {
		a.printer.Status("GCP auto-stop enabled")
	}
}
