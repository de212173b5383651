// Package lifecycle runs the foundry main function under signal handling:
// SIGINT/SIGTERM cancel the root context, shutdown hooks release
// resources, and the result is mapped to a process exit code.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownConfig configures the shutdown behavior.
type ShutdownConfig struct {
	GracePeriod time.Duration // how long main may take to return after a signal
	HookTimeout time.Duration // deadline shared by all hooks
}

// DefaultShutdownConfig returns sensible defaults.
func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{
		GracePeriod: 10 * time.Second,
		HookTimeout: 5 * time.Second,
	}
}

// Manager coordinates shutdown for the foundry process.
type Manager struct {
	config  ShutdownConfig
	logger  *slog.Logger
	signals chan os.Signal

	mu      sync.Mutex
	hooks   []ShutdownHook
	clean   []error
	started time.Time
}

// ShutdownHook is called during shutdown. Name is for logging.
type ShutdownHook struct {
	Name string
	Fn   func(ctx context.Context) error
}

// NewManager creates a lifecycle manager.
func NewManager(config ShutdownConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		config:  config,
		logger:  logger,
		signals: make(chan os.Signal, 1),
		started: time.Now(),
	}
}

// OnShutdown registers a hook. Hooks run in registration order, once,
// however main ends.
func (m *Manager) OnShutdown(name string, fn func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, ShutdownHook{Name: name, Fn: fn})
}

// ExitCleanlyOn makes main errors matching target (errors.Is) exit 0.
func (m *Manager) ExitCleanlyOn(target error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clean = append(m.clean, target)
}

// Run installs signal handlers, runs mainFn and returns the exit code:
// 0 on success, clean errors and signal-initiated shutdown, 1 otherwise.
func (m *Manager) Run(mainFn func(ctx context.Context) error) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signal.Notify(m.signals, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(m.signals)

	errCh := make(chan error, 1)
	go func() {
		errCh <- mainFn(ctx)
	}()

	var code int
	select {
	case sig := <-m.signals:
		m.logger.Info("received signal, starting graceful shutdown",
			"signal", sig.String(),
			"uptime", m.Uptime().Round(time.Second).String(),
		)
		cancel()
		select {
		case <-errCh:
		case <-time.After(m.config.GracePeriod):
			m.logger.Warn("main did not return within grace period", "grace_period", m.config.GracePeriod.String())
		}
		code = 0

	case err := <-errCh:
		code = m.ExitCode(err)
		if code != 0 {
			m.logger.Error("main function error", "error", err)
		}
	}

	m.runHooks()
	return code
}

// ExitCode maps a main error to a process exit code.
func (m *Manager) ExitCode(err error) int {
	if err == nil || errors.Is(err, context.Canceled) {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, target := range m.clean {
		if errors.Is(err, target) {
			return 0
		}
	}
	return 1
}

func (m *Manager) runHooks() {
	m.mu.Lock()
	hooks := make([]ShutdownHook, len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.config.HookTimeout)
	defer cancel()

	for _, hook := range hooks {
		m.logger.Debug("running shutdown hook", "name", hook.Name)
		if err := hook.Fn(ctx); err != nil {
			m.logger.Error("shutdown hook failed", "name", hook.Name, "error", err)
		}
	}
}

// Uptime returns how long the process has been running.
func (m *Manager) Uptime() time.Duration {
	return time.Since(m.started)
}
