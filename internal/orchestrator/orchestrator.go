// Package orchestrator runs the triage / work / report loop: a reader
// agent picks a ticket, a worker implements it, a writer reports back.
// When the reader finds nothing it falls back to cheap quick checks until
// work appears or the full-check interval elapses.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/leandrotocalini/foundry/internal/config"
	"github.com/leandrotocalini/foundry/internal/console"
	"github.com/leandrotocalini/foundry/internal/decisions"
	"github.com/leandrotocalini/foundry/internal/linear"
	"github.com/leandrotocalini/foundry/internal/prompt"
	"github.com/leandrotocalini/foundry/internal/provider"
	"github.com/leandrotocalini/foundry/internal/ratelimit"
	"github.com/leandrotocalini/foundry/internal/session"
	"github.com/leandrotocalini/foundry/internal/stats"
	"github.com/leandrotocalini/foundry/internal/vcs"
)

const instrumentationName = "github.com/leandrotocalini/foundry/internal/orchestrator"

// ErrHostStopped is returned by Run after the VM stop was issued. The
// process should exit cleanly.
var ErrHostStopped = errors.New("host stop issued")

// WorkSource answers whether the ticket queue has pending items.
type WorkSource interface {
	QuickCheck(ctx context.Context) (linear.Pulse, error)
}

// Attachments downloads the files referenced by the triage output.
type Attachments interface {
	Download(ctx context.Context, triageOutput, issue string) ([]string, error)
}

// SafetyNet commits and pushes whatever the worker left uncommitted.
type SafetyNet interface {
	Flush(ctx context.Context, iteration int) (vcs.SafetyNetResult, error)
}

// Host stops the machine foundry runs on.
type Host interface {
	StopIfIdle(ctx context.Context) (bool, error)
}

// Stats records per-agent usage.
type Stats interface {
	Begin(exec session.Execution)
	Record(exec session.Execution, inv stats.Invocation)
	Finalize(exec session.Execution)
}

// Transcript is a provider transcript that must be closed after the call.
type Transcript interface {
	provider.Transcript
	io.Closer
}

// Transcripts opens one transcript per agent invocation.
type Transcripts interface {
	ForAgent(exec session.Execution, agent int) Transcript
	Dir(exec session.Execution) string
}

// Prompts loads prompt bodies by name.
type Prompts interface {
	Load(name string) (string, error)
}

// Decisions records scheduling decisions.
type Decisions interface {
	Log(d decisions.Decision)
}

// Config is the orchestrator's view of the process configuration.
type Config struct {
	Pod       string
	SessionID string
	config.Config
}

// Deps are the collaborators of an Orchestrator. Provider is required;
// a nil Work, Attachments, SafetyNet or Host disables that step.
type Deps struct {
	Provider    provider.Provider
	Work        WorkSource
	Attachments Attachments
	SafetyNet   SafetyNet
	Host        Host
	Stats       Stats
	Transcripts Transcripts
	Prompts     Prompts
	Decisions   Decisions
}

// Orchestrator drives the loop. It is not safe for concurrent use.
type Orchestrator struct {
	cfg  Config
	deps Deps

	logger  *slog.Logger
	printer *console.Printer
	now     func() time.Time
	sleep   ratelimit.SleepFunc
	tracer  trace.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithPrinter sets where loop banners are printed.
func WithPrinter(p *console.Printer) Option {
	return func(o *Orchestrator) {
		o.printer = p
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithSleeper overrides every wait: polling, error backoff and rate-limit
// retries.
func WithSleeper(fn ratelimit.SleepFunc) Option {
	return func(o *Orchestrator) {
		o.sleep = fn
	}
}

// WithTracerProvider emits iteration and agent spans to tp.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) {
		o.tracer = tp.Tracer(instrumentationName)
	}
}

// New creates an Orchestrator.
func New(cfg Config, deps Deps, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg,
		deps:    deps,
		logger:  slog.Default(),
		printer: console.Stderr(),
		now:     time.Now,
		sleep:   ratelimit.Sleep,
		tracer:  noop.NewTracerProvider().Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.deps.Stats == nil {
		o.deps.Stats = nopStats{}
	}
	if o.deps.Transcripts == nil {
		o.deps.Transcripts = nopTranscripts{}
	}
	if o.deps.Prompts == nil {
		o.deps.Prompts = prompt.Loader{}
	}
	if o.deps.Decisions == nil {
		o.deps.Decisions = nopDecisions{}
	}
	o.logger = o.logger.With("pod", cfg.Pod)
	return o
}

// Run loops until MaxIterations is reached (forever when 0), ctx is
// cancelled, or the host was stopped. A failed iteration is logged and
// retried with the same number after ErrorSleep.
func (o *Orchestrator) Run(ctx context.Context) error {
	iteration := 0
	for o.cfg.MaxIterations == 0 || iteration < o.cfg.MaxIterations {
		if err := ctx.Err(); err != nil {
			return err
		}

		exec := session.Execution{
			Pod:       o.cfg.Pod,
			Instance:  session.InstanceName(o.cfg.Pod, o.now()),
			Iteration: iteration,
			SessionID: o.cfg.SessionID,
		}

		err := o.runIteration(ctx, exec)
		switch {
		case err == nil:
			iteration++
		case errors.Is(err, ErrHostStopped):
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			o.logger.Error("loop iteration failed", "iteration", iteration, "error", err)
			o.printer.Status("Loop %d failed, sleeping %s before retry...", iteration, o.cfg.ErrorSleep)
			if err := o.sleep(ctx, o.cfg.ErrorSleep); err != nil {
				return err
			}
		}
	}

	o.logger.Info("reached max iterations", "max_iterations", o.cfg.MaxIterations)
	o.printer.Status("Reached max iterations: %d", o.cfg.MaxIterations)
	return nil
}

func (o *Orchestrator) decide(ctx context.Context, exec session.Execution, typ decisions.DecisionType, decision, evidence string, state map[string]any) {
	o.deps.Decisions.Log(decisions.Decision{
		Iteration: exec.Iteration,
		Type:      typ,
		Decision:  decision,
		Evidence:  evidence,
		State:     state,
	})
	trace.SpanFromContext(ctx).AddEvent(string(typ))
	o.logger.Info("decision", "iteration", exec.Iteration, "type", string(typ), "decision", decision)
}

type nopStats struct{}

func (nopStats) Begin(session.Execution)                    {}
func (nopStats) Record(session.Execution, stats.Invocation) {}
func (nopStats) Finalize(session.Execution)                 {}

type nopTranscripts struct{}

func (nopTranscripts) ForAgent(session.Execution, int) Transcript { return nopTranscript{} }
func (nopTranscripts) Dir(session.Execution) string               { return "" }

type nopTranscript struct{}

func (nopTranscript) Raw(string)           {}
func (nopTranscript) Display(console.Line) {}
func (nopTranscript) Close() error         { return nil }

type nopDecisions struct{}

func (nopDecisions) Log(decisions.Decision) {}

func formatMinutes(d time.Duration) string {
	total := int(d.Round(time.Second).Seconds())
	return fmt.Sprintf("%dm %ds", total/60, total%60)
}
