package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/leandrotocalini/foundry/internal/cli"
	"github.com/leandrotocalini/foundry/internal/config"
	"github.com/leandrotocalini/foundry/internal/lifecycle"
	"github.com/leandrotocalini/foundry/internal/orchestrator"
)

// flags holds the command line settings that override the environment.
type flags struct {
	dir         string
	provider    string
	gcpAutoStop bool

	set map[string]bool
}

func parseFlags(fs *flag.FlagSet, args []string) (*flags, error) {
	f := &flags{set: map[string]bool{}}
	fs.StringVar(&f.dir, "dir", ".", "Working directory the agents run in")
	fs.StringVar(&f.provider, "provider", "", "Agent CLI to drive (claude or codex)")
	fs.BoolVar(&f.gcpAutoStop, "gcp-auto-stop", false, "Stop the GCE instance when there is no work")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: foundry [flags] [run|check|stats [pod]|version]\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	return f, nil
}

// apply overrides cfg with the flags given explicitly.
func (f *flags) apply(cfg *config.Config) {
	if f.set["provider"] {
		cfg.Provider = strings.ToLower(f.provider)
	}
	if f.set["gcp-auto-stop"] {
		cfg.GCPAutoStop = f.gcpAutoStop
	}
}

func main() {
	fs := flag.NewFlagSet("foundry", flag.ExitOnError)
	f, err := parseFlags(fs, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	dir, err := filepath.Abs(f.dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	f.apply(cfg)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	m := lifecycle.NewManager(lifecycle.DefaultShutdownConfig(), logger)
	m.ExitCleanlyOn(orchestrator.ErrHostStopped)

	app := cli.New(cfg, cli.WithLogger(logger), cli.WithShutdownHooks(m.OnShutdown))
	code := m.Run(func(ctx context.Context) error {
		return app.Router().Dispatch(ctx, fs.Args())
	})
	os.Exit(code)
}
