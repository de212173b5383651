package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"github.com/leandrotocalini/foundry/internal/config"
	"github.com/leandrotocalini/foundry/internal/console"
	"github.com/leandrotocalini/foundry/internal/decisions"
	"github.com/leandrotocalini/foundry/internal/linear"
	"github.com/leandrotocalini/foundry/internal/provider"
	"github.com/leandrotocalini/foundry/internal/provider/factory"
	"github.com/leandrotocalini/foundry/internal/session"
	"github.com/leandrotocalini/foundry/internal/stats"
)

// Version is the foundry release.
const Version = "0.1.0"

// HookFunc registers a function to run at process shutdown.
type HookFunc func(name string, fn func(ctx context.Context) error)

// App holds what every subcommand needs.
type App struct {
	cfg        *config.Config
	out        io.Writer
	printer    *console.Printer
	logger     *slog.Logger
	onShutdown HookFunc

	newProvider    func(name string, cfg factory.Config) (provider.Provider, error)
	lookPath       provider.LookPathFunc
	checkMCP       func(ctx context.Context) bool
	linearEndpoint string
	httpClient     *http.Client
}

// Option configures an App.
type Option func(*App)

// WithOutput sets where command output is written.
func WithOutput(w io.Writer) Option {
	return func(a *App) {
		a.out = w
	}
}

// WithPrinter sets the console used for banners and transcripts.
func WithPrinter(p *console.Printer) Option {
	return func(a *App) {
		a.printer = p
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		a.logger = l
	}
}

// WithShutdownHooks routes resource cleanup to the process lifecycle.
func WithShutdownHooks(fn HookFunc) Option {
	return func(a *App) {
		a.onShutdown = fn
	}
}

// WithProviderFactory replaces factory.New.
func WithProviderFactory(fn func(name string, cfg factory.Config) (provider.Provider, error)) Option {
	return func(a *App) {
		a.newProvider = fn
	}
}

// WithLookPath replaces exec.LookPath for binary detection.
func WithLookPath(fn provider.LookPathFunc) Option {
	return func(a *App) {
		a.lookPath = fn
	}
}

// WithMCPCheck replaces the codex Linear MCP probe.
func WithMCPCheck(fn func(ctx context.Context) bool) Option {
	return func(a *App) {
		a.checkMCP = fn
	}
}

// WithLinearEndpoint points the Linear client at another GraphQL URL.
func WithLinearEndpoint(url string) Option {
	return func(a *App) {
		a.linearEndpoint = url
	}
}

// WithHTTPClient sets the client used for Linear and attachment requests.
func WithHTTPClient(c *http.Client) Option {
	return func(a *App) {
		a.httpClient = c
	}
}

// New creates an App for cfg.
func New(cfg *config.Config, opts ...Option) *App {
	a := &App{
		cfg:         cfg,
		out:         os.Stdout,
		printer:     console.Stderr(),
		logger:      slog.Default(),
		onShutdown:  func(string, func(context.Context) error) {},
		newProvider: factory.New,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Router returns the router with every foundry subcommand registered.
// Without a command, "run" is executed.
func (a *App) Router() *Router {
	r := NewRouter("run")
	r.Register(&Command{Name: "run", Description: "Run the triage / work / report loop", Run: a.run})
	r.Register(&Command{Name: "check", Description: "Count the team's Linear issues by state", Run: a.check})
	r.Register(&Command{Name: "stats", Description: "Print usage totals of a pod (default: latest)", Run: a.stats})
	r.Register(&Command{Name: "version", Description: "Print the foundry version", Run: a.version})
	return r
}

func (a *App) linearClient() *linear.Client {
	opts := []linear.Option{linear.WithLogger(a.logger)}
	if a.linearEndpoint != "" {
		opts = append(opts, linear.WithEndpoint(a.linearEndpoint))
	}
	if a.httpClient != nil {
		opts = append(opts, linear.WithHTTPClient(a.httpClient))
	}
	return linear.NewClient(a.cfg.Linear.APIKey, opts...)
}

func (a *App) version(context.Context, []string) error {
	fmt.Fprintf(a.out, "foundry v%s\n", Version)
	return nil
}

func (a *App) check(ctx context.Context, _ []string) error {
	if a.cfg.Linear.APIKey == "" || a.cfg.Linear.TeamKey == "" {
		return fmt.Errorf("check: LINEAR_API_KEY and LINEAR_TEAM_KEY are required")
	}

	pulse, err := a.linearClient().QuickCheck(ctx, a.cfg.Linear.TeamKey)
	if err != nil {
		return fmt.Errorf("check: %w", err)
	}

	c := pulse.StatusCounts
	fmt.Fprintf(a.out, "Team %s\n", a.cfg.Linear.TeamKey)
	fmt.Fprintf(a.out, "  backlog:   %d\n  unstarted: %d\n  started:   %d\n  completed: %d\n  canceled:  %d\n",
		c.Backlog, c.Unstarted, c.Started, c.Completed, c.Canceled)
	if pulse.HasWork {
		fmt.Fprintf(a.out, "%d issue(s) ready to work on\n", pulse.Count)
	} else {
		fmt.Fprintln(a.out, "No work available")
	}
	return nil
}

func (a *App) stats(ctx context.Context, args []string) error {
	root := config.OutputDir(a.cfg.Dir)

	pod := ""
	if len(args) > 0 {
		// A loop instance name from a banner or stats.json selects its pod.
		pod = session.DisplayName(args[0])
	} else {
		latest, err := latestPod(root)
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}
		pod = latest
	}

	doc, err := stats.Load(filepath.Join(root, pod, "stats.json"))
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}

	g := doc.GrandTotals
	cost := fmt.Sprintf("$%.4f", g.Cost)
	if g.CostEstimated {
		cost += " (includes estimate)"
	}
	fmt.Fprintf(a.out, "Pod %s (started %s)\n", doc.PodName, doc.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(a.out, "  loops:    %d\n", g.LoopCount)
	fmt.Fprintf(a.out, "  cost:     %s\n", cost)
	fmt.Fprintf(a.out, "  duration: %ds\n", g.DurationSeconds)
	fmt.Fprintf(a.out, "  tokens:   in=%s out=%s cached=%s\n",
		provider.Commas(g.Tokens.Input), provider.Commas(g.Tokens.Output), provider.Commas(g.Tokens.Cached))

	a.printDecisions(filepath.Join(root, pod, decisions.FileName))

	dbPath := filepath.Join(root, stats.LedgerFile)
	if _, err := os.Stat(dbPath); err != nil {
		return nil
	}
	ledger, err := stats.OpenLedger(dbPath)
	if err != nil {
		a.logger.Warn("stats ledger unavailable", "error", err)
		return nil
	}
	defer ledger.Close()
	t, err := ledger.Totals(ctx, pod)
	if err != nil {
		a.logger.Warn("stats ledger query failed", "error", err)
		return nil
	}
	fmt.Fprintf(a.out, "  history:  %d invocation(s), %d rate limited, $%.4f\n", t.Invocations, t.RateLimited, t.Cost)
	return nil
}

func (a *App) printDecisions(path string) {
	ds, err := decisions.ReadLog(path)
	if err != nil {
		a.logger.Warn("decision log unreadable", "path", path, "error", err)
		return
	}
	if len(ds) == 0 {
		return
	}
	counts, other := decisions.Summary(ds)
	fmt.Fprintf(a.out, "  decisions: %d\n", len(ds))
	for _, c := range counts {
		fmt.Fprintf(a.out, "    %-20s %d\n", c.Type, c.Count)
	}
	if other > 0 {
		fmt.Fprintf(a.out, "    %-20s %d\n", "other", other)
	}
}

// latestPod returns the most recently updated pod directory under root.
func latestPod(root string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("read output dir: %w", err)
	}

	type pod struct {
		name string
		mod  int64
	}
	var pods []pod
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := os.Stat(filepath.Join(root, e.Name(), "stats.json"))
		if err != nil {
			continue
		}
		pods = append(pods, pod{e.Name(), info.ModTime().UnixNano()})
	}
	if len(pods) == 0 {
		return "", fmt.Errorf("no pods in %s", root)
	}
	sort.Slice(pods, func(i, j int) bool { return pods[i].mod > pods[j].mod })
	return pods[0].name, nil
}
