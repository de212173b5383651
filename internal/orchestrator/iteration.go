package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/leandrotocalini/foundry/internal/decisions"
	"github.com/leandrotocalini/foundry/internal/prompt"
	"github.com/leandrotocalini/foundry/internal/provider"
	"github.com/leandrotocalini/foundry/internal/provider/codex"
	"github.com/leandrotocalini/foundry/internal/ratelimit"
	"github.com/leandrotocalini/foundry/internal/session"
	"github.com/leandrotocalini/foundry/internal/stats"
)

var linearTools = []string{"mcp__linear__*"}

// agent is one role in the loop and the settings it runs with.
type agent struct {
	number int
	role   string
	prompt string
	model  string
	tools  []string
	effort string
}

// agentFor resolves the model, allow-list and effort of agent n. With
// claude the reader runs on opus and the writer on sonnet; with codex
// every agent uses the codex model.
func (o *Orchestrator) agentFor(n int) agent {
	a := agent{number: n, role: stats.AgentName(n)}
	switch n {
	case 1:
		a.prompt, a.model, a.tools = prompt.LinearReader, "opus", linearTools
	case 2:
		a.prompt, a.model = prompt.Worker, o.cfg.ClaudeModel
	case 3:
		a.prompt, a.model, a.tools = prompt.LinearWriter, "sonnet", linearTools
	}
	if o.deps.Provider.Name() == codex.Name {
		a.model = o.cfg.Codex.Model
		a.effort = o.cfg.Codex.ReasoningFor(n)
	}
	return a
}

func (o *Orchestrator) runIteration(ctx context.Context, exec session.Execution) (err error) {
	ctx, span := o.tracer.Start(ctx, "foundry.iteration", trace.WithAttributes(
		attribute.String("foundry.pod", exec.Pod),
		attribute.Int("foundry.loop", exec.Iteration),
		attribute.String("foundry.provider", o.deps.Provider.Name()),
	))
	defer func() {
		if err != nil && !errors.Is(err, ErrHostStopped) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := o.now()
	o.deps.Stats.Begin(exec)
	o.banner(exec)

	// Triage
	reader := o.agentFor(1)
	triage, err := o.runAgent(ctx, exec, reader, "")
	if err != nil {
		return err
	}
	if triage.RateLimited {
		o.decide(ctx, exec, decisions.TriageSkipped, "skip iteration",
			"reader still rate limited after retries", map[string]any{"retry_after": triage.RetryAfter.String()})
		return nil
	}

	if IsNoWork(triage.FinalOutput) {
		o.decide(ctx, exec, decisions.NoWork, "poll for work", "reader reported no work", nil)
		if stopped, err := o.maybeStopHost(ctx, exec); err != nil || stopped {
			return err
		}
		return o.poll(ctx, exec)
	}

	attachments := o.downloadAttachments(ctx, triage.FinalOutput)

	// Work
	worker := o.agentFor(2)
	work, err := o.runAgent(ctx, exec, worker, workerContext(triage.FinalOutput, attachments))
	if err != nil {
		return err
	}
	if work.RateLimited {
		o.decide(ctx, exec, decisions.WorkerRateLimited, "continue to report",
			"worker still rate limited after retries", nil)
		o.printer.Status("Agent 2 still rate limited after max retries. Continuing to Agent 3 to log status.")
	}

	// Report
	writer := o.agentFor(3)
	report, err := o.runAgent(ctx, exec, writer, writerContext(exec, o.deps.Provider.Name(),
		run{reader, triage}, run{worker, work}))
	if err != nil {
		return err
	}
	if report.RateLimited {
		o.logger.Warn("writer still rate limited after retries", "iteration", exec.Iteration)
	}

	o.flushSafetyNet(ctx, exec)
	o.deps.Stats.Finalize(exec)
	o.printer.Header("Loop %d complete in %s", exec.Iteration, formatMinutes(o.now().Sub(start)))
	return nil
}

// runAgent loads the agent's prompt, prefixes the instance header and
// extra, and runs it with rate-limit retries. Every attempt is
// recorded in stats.
func (o *Orchestrator) runAgent(ctx context.Context, exec session.Execution, a agent, extra string) (*provider.Result, error) {
	label := fmt.Sprintf("Agent %d (%s)", a.number, a.role)
	log := o.logger.With("iteration", exec.Iteration, "agent", a.number, "role", a.role)

	base, err := o.deps.Prompts.Load(a.prompt)
	if err != nil {
		return nil, fmt.Errorf("%s: load prompt: %w", label, err)
	}
	text := prompt.Header(exec, a.number, a.role) + extra + base

	ctx, span := o.tracer.Start(ctx, "foundry.agent", trace.WithAttributes(
		attribute.Int("foundry.agent", a.number),
		attribute.String("foundry.role", a.role),
		attribute.String("foundry.model", a.model),
	))
	defer span.End()

	o.printer.Header("%s starting...", label)
	log.Info("agent starting", "model", a.model)

	tr := o.deps.Transcripts.ForAgent(exec, a.number)
	defer tr.Close()

	res, err := ratelimit.Do(ctx, ratelimit.RetryConfig{MaxRetries: o.cfg.RateLimitMaxRetries}, label,
		func(ctx context.Context) (*provider.Result, error) {
			if o.cfg.AgentTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, o.cfg.AgentTimeout)
				defer cancel()
			}
			res, err := o.deps.Provider.Spawn(ctx, provider.Options{
				Prompt:          text,
				Model:           a.model,
				AllowedTools:    a.tools,
				ReasoningEffort: a.effort,
				AgentNumber:     a.number,
				Transcript:      tr,
			})
			if err != nil {
				return nil, err
			}
			o.deps.Stats.Record(exec, stats.Invocation{
				AgentNumber: a.number,
				Provider:    o.deps.Provider.Name(),
				Model:       a.model,
				Result:      res,
			})
			return res, nil
		},
		ratelimit.WithSleep(o.sleep),
		ratelimit.WithLogger(log),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%s: %w", label, err)
	}

	span.SetAttributes(
		attribute.Bool("foundry.rate_limited", res.RateLimited),
		attribute.Int("foundry.exit_code", res.ExitCode),
		attribute.Float64("foundry.cost_usd", res.Cost),
		attribute.Int64("foundry.tokens.input", res.TokenUsage.Input),
		attribute.Int64("foundry.tokens.output", res.TokenUsage.Output),
	)
	log.Info("agent done",
		"exit_code", res.ExitCode,
		"rate_limited", res.RateLimited,
		"cost", res.Cost,
		"duration", res.Duration.Round(time.Second).String(),
	)
	return res, nil
}

// hostStopGrace is how long Run waits after the stop was issued, so the
// host halts before the process exits.
const hostStopGrace = 10 * time.Second

// maybeStopHost stops the VM when auto-stop is on. It returns
// ErrHostStopped once the stop was issued, after hostStopGrace or ctx
// cancellation; any other outcome falls back to polling.
func (o *Orchestrator) maybeStopHost(ctx context.Context, exec session.Execution) (bool, error) {
	if !o.cfg.GCPAutoStop || o.deps.Host == nil {
		return false, nil
	}
	stopped, err := o.deps.Host.StopIfIdle(ctx)
	switch {
	case err != nil:
		o.logger.Warn("instance stop failed, falling back to polling", "error", err)
		o.decide(ctx, exec, decisions.HostStopFailed, "poll for work", err.Error(), nil)
		return false, nil
	case !stopped:
		o.decide(ctx, exec, decisions.HostStopFailed, "poll for work", "not running on a GCE instance", nil)
		return false, nil
	}
	o.decide(ctx, exec, decisions.HostStopped, "exit", "instance stop issued", nil)
	o.printer.Status("Instance stop command issued. VM will shut down shortly.")
	_ = o.sleep(ctx, hostStopGrace)
	return true, ErrHostStopped
}

func (o *Orchestrator) downloadAttachments(ctx context.Context, triage string) []string {
	if o.deps.Attachments == nil {
		return nil
	}
	issue := ExtractIssueIdentifier(triage)
	if issue == "" {
		return nil
	}

	paths, err := o.deps.Attachments.Download(ctx, triage, issue)
	if err != nil {
		o.logger.Warn("attachment download failed, continuing without them", "issue", issue, "error", err)
		return nil
	}
	if len(paths) > 0 {
		o.printer.Status("Downloaded %d attachment(s) for %s", len(paths), issue)
	}
	return paths
}

func (o *Orchestrator) flushSafetyNet(ctx context.Context, exec session.Execution) {
	if o.deps.SafetyNet == nil {
		return
	}
	res, err := o.deps.SafetyNet.Flush(ctx, exec.Iteration)
	if err != nil {
		o.logger.Warn("safety net failed", "iteration", exec.Iteration, "error", err)
		return
	}
	if res.Committed {
		o.printer.Status("Safety net committed %d file(s) as %s (pushed: %t)", len(res.Files), res.CommitHash, res.Pushed)
	}
}

func (o *Orchestrator) banner(exec session.Execution) {
	eq := strings.Repeat("=", 24)
	o.printer.Header("%s LOOP %d %s", eq, exec.Iteration, eq)
	o.printer.Status("Pod: %s", exec.Pod)
	o.printer.Status("Provider: %s", o.deps.Provider.Name())
	if o.deps.Provider.Name() == codex.Name {
		o.printer.Status("Codex Model: %s", o.cfg.Codex.Model)
		o.printer.Status("Agent Reasoning: A1=%s, A2=%s, A3=%s",
			o.cfg.Codex.ReasoningFor(1), o.cfg.Codex.ReasoningFor(2), o.cfg.Codex.ReasoningFor(3))
	} else {
		o.printer.Status("Claude Model: %s", o.cfg.ClaudeModel)
	}
	if dir := o.deps.Transcripts.Dir(exec); dir != "" {
		o.printer.Status("Output Dir: %s", dir)
	}
}
