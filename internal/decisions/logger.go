package decisions

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileName is the decision log's name inside a pod's output directory.
const FileName = "decisions.jsonl"

// Logger writes decisions for one pod to an append-only JSONL stream.
// Write failures are reported once through slog and otherwise ignored.
type Logger struct {
	mu     sync.Mutex
	w      io.Writer
	pod    string
	now    func() time.Time // injectable clock for testing
	logger *slog.Logger
	warned bool
}

// NewLogger creates a decision logger for pod writing to w.
func NewLogger(w io.Writer, pod string) *Logger {
	return &Logger{
		w:      w,
		pod:    pod,
		now:    time.Now,
		logger: slog.Default(),
	}
}

// NewFileLogger appends to <dir>/decisions.jsonl, creating dir if needed.
func NewFileLogger(dir, pod string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create decision log directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, FileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open decision log: %w", err)
	}

	return NewLogger(f, pod), nil
}

// SetLogger sets where write failures are reported.
func (l *Logger) SetLogger(logger *slog.Logger) {
	l.logger = logger
}

// Log stamps and appends d.
func (l *Logger) Log(d Decision) {
	d.Timestamp = l.now().UTC()
	d.Pod = l.pod

	data, err := json.Marshal(d)
	if err != nil {
		l.warn(fmt.Errorf("marshal decision: %w", err))
		return
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.w.Write(data); err != nil {
		l.warnLocked(fmt.Errorf("write decision: %w", err))
	}
}

// Close closes the underlying file, if any.
func (l *Logger) Close() error {
	if c, ok := l.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (l *Logger) warn(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnLocked(err)
}

func (l *Logger) warnLocked(err error) {
	if l.warned {
		return
	}
	l.warned = true
	l.logger.Warn("decision log unavailable", "pod", l.pod, "error", err)
}

// ReadLog reads a pod's decision log back. A missing file is an empty
// log.
func ReadLog(path string) ([]Decision, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open decision log: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses JSONL decisions, skipping blank and malformed lines.
func Decode(r io.Reader) ([]Decision, error) {
	var out []Decision
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		var d Decision
		if json.Unmarshal(sc.Bytes(), &d) == nil {
			out = append(out, d)
		}
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("read decision log: %w", err)
	}
	return out, nil
}

// TypeCount is how often one decision type occurred.
type TypeCount struct {
	Type  DecisionType
	Count int
}

// Summary counts ds per known type, in AllDecisionTypes order, leaving
// out types that never occurred. Entries of unknown types are returned
// as other.
func Summary(ds []Decision) (counts []TypeCount, other int) {
	seen := make(map[DecisionType]int, len(ds))
	for _, d := range ds {
		if !d.Type.IsValid() {
			other++
			continue
		}
		seen[d.Type]++
	}
	for _, t := range AllDecisionTypes() {
		if n := seen[t]; n > 0 {
			counts = append(counts, TypeCount{Type: t, Count: n})
		}
	}
	return counts, other
}
