// Package outputlog persists each agent's transcript below the pod's
// output directory while mirroring the readable form to the console.
//
// Layout:
//
//	<root>/<pod>/loop-<n>/agent-<n>.log           raw JSON lines
//	<root>/<pod>/loop-<n>/agent-<n>-terminal.log  display lines, uncolored
package outputlog

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/leandrotocalini/foundry/internal/console"
	"github.com/leandrotocalini/foundry/internal/session"
)

// Logger hands out per-agent transcript sinks.
type Logger struct {
	root    string
	printer *console.Printer
	logger  *slog.Logger
}

// Option configures a Logger.
type Option func(*Logger)

// WithPrinter sets the console the display lines are mirrored to.
func WithPrinter(p *console.Printer) Option {
	return func(l *Logger) {
		l.printer = p
	}
}

// WithLogger sets the structured logger used for write warnings.
func WithLogger(lg *slog.Logger) Option {
	return func(l *Logger) {
		l.logger = lg
	}
}

// New creates a Logger writing below root (normally <dir>/.foundry/output).
func New(root string, opts ...Option) *Logger {
	l := &Logger{
		root:    root,
		printer: console.Stderr(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Dir returns the loop directory of exec.
func (l *Logger) Dir(exec session.Execution) string {
	return filepath.Join(l.root, exec.Pod, fmt.Sprintf("loop-%d", exec.Iteration))
}

// ForAgent returns the transcript sink of agent n in exec's loop. Without
// a valid execution nothing is written to disk.
func (l *Logger) ForAgent(exec session.Execution, n int) *AgentLog {
	a := &AgentLog{
		printer: l.printer,
		logger:  l.logger.With("pod", exec.Pod, "loop", exec.Iteration, "agent", n),
	}
	if exec.Valid() {
		dir := l.Dir(exec)
		a.raw = lazyFile{path: filepath.Join(dir, fmt.Sprintf("agent-%d.log", n))}
		a.term = lazyFile{path: filepath.Join(dir, fmt.Sprintf("agent-%d-terminal.log", n))}
	}
	return a
}

// AgentLog implements provider.Transcript for one agent invocation.
type AgentLog struct {
	mu      sync.Mutex
	printer *console.Printer
	logger  *slog.Logger
	raw     lazyFile
	term    lazyFile
	warned  bool
}

// Raw appends line to the raw log.
func (a *AgentLog) Raw(line string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.write(&a.raw, line)
}

// Display prints l and appends its plain text to the terminal log.
func (a *AgentLog) Display(l console.Line) {
	a.printer.Print(l)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.write(&a.term, l.String())
}

// Close releases both files.
func (a *AgentLog) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return errors.Join(a.raw.close(), a.term.close())
}

func (a *AgentLog) write(f *lazyFile, text string) {
	if f.path == "" {
		return
	}
	if err := f.writeLine(text); err != nil && !a.warned {
		a.warned = true
		a.logger.Warn("transcript write failed, further errors suppressed", "path", f.path, "error", err)
	}
}

// lazyFile opens its path, creating directories, on the first write.
type lazyFile struct {
	path string
	f    *os.File
	err  error
}

func (lf *lazyFile) writeLine(text string) error {
	if lf.f == nil && lf.err == nil {
		lf.f, lf.err = open(lf.path)
	}
	if lf.err != nil {
		return lf.err
	}
	_, err := lf.f.WriteString(text + "\n")
	return err
}

func (lf *lazyFile) close() error {
	if lf.f == nil {
		return nil
	}
	err := lf.f.Close()
	lf.f = nil
	return err
}

func open(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create transcript directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	return f, nil
}
