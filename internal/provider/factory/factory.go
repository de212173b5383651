// Package factory builds a provider.Provider by name.
package factory

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leandrotocalini/foundry/internal/provider"
	"github.com/leandrotocalini/foundry/internal/provider/claude"
	"github.com/leandrotocalini/foundry/internal/provider/codex"
)

// ErrUnknownProvider is returned for a name no backend answers to.
var ErrUnknownProvider = errors.New("unknown provider")

// Config holds what every backend needs.
type Config struct {
	Dir    string
	Logger *slog.Logger
	// Binary overrides the executable; empty uses the backend name.
	Binary string
}

// Names lists the supported providers.
func Names() []string {
	return []string{claude.Name, codex.Name}
}

// New returns the backend called name.
func New(name string, cfg Config) (provider.Provider, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch strings.ToLower(strings.TrimSpace(name)) {
	case claude.Name:
		opts := []claude.Option{claude.WithDir(cfg.Dir), claude.WithLogger(logger)}
		if cfg.Binary != "" {
			opts = append(opts, claude.WithBinary(cfg.Binary))
		}
		return claude.New(opts...), nil

	case codex.Name:
		opts := []codex.Option{codex.WithDir(cfg.Dir), codex.WithLogger(logger)}
		if cfg.Binary != "" {
			opts = append(opts, codex.WithBinary(cfg.Binary))
		}
		return codex.New(opts...), nil
	}
	return nil, fmt.Errorf("%w: %q (want one of %s)", ErrUnknownProvider, name, strings.Join(Names(), ", "))
}
