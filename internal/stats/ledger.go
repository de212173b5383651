package stats

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/leandrotocalini/foundry/internal/provider"
	"github.com/leandrotocalini/foundry/internal/session"
)

// LedgerFile is the ledger's file name inside the output root.
const LedgerFile = "history.db"

// Ledger is an append-only SQLite log of every agent invocation,
// retries included.
type Ledger struct {
	db *sql.DB
}

// OpenLedger opens (or creates) the ledger at dbPath.
func OpenLedger(dbPath string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS invocations (
			id             TEXT PRIMARY KEY,
			session_id     TEXT NOT NULL,
			pod            TEXT NOT NULL,
			loop           INTEGER NOT NULL,
			agent          INTEGER NOT NULL,
			provider       TEXT NOT NULL,
			model          TEXT NOT NULL,
			input          INTEGER NOT NULL,
			output         INTEGER NOT NULL,
			cached         INTEGER NOT NULL,
			cost           REAL NOT NULL,
			cost_estimated INTEGER NOT NULL,
			duration_ms    INTEGER NOT NULL,
			exit_code      INTEGER NOT NULL,
			rate_limited   INTEGER NOT NULL,
			recorded_at    TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create invocations table: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_invocations_pod ON invocations(pod, loop)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create invocations index: %w", err)
	}

	return &Ledger{db: db}, nil
}

// Append inserts one invocation row.
func (l *Ledger) Append(ctx context.Context, exec session.Execution, inv Invocation, at time.Time) error {
	res := inv.Result
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO invocations (id, session_id, pod, loop, agent, provider, model, input, output, cached,
			cost, cost_estimated, duration_ms, exit_code, rate_limited, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), exec.SessionID, exec.Pod, exec.Iteration, inv.AgentNumber, inv.Provider, inv.Model,
		res.TokenUsage.Input, res.TokenUsage.Output, res.TokenUsage.Cached,
		res.Cost, boolToInt(res.CostEstimated), res.Duration.Milliseconds(), res.ExitCode,
		boolToInt(res.RateLimited), at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert invocation: %w", err)
	}
	return nil
}

// LedgerTotals sums a pod's invocations.
type LedgerTotals struct {
	Invocations int
	RateLimited int
	Tokens      provider.TokenUsage
	Cost        float64
}

// Totals sums every invocation recorded for pod.
func (l *Ledger) Totals(ctx context.Context, pod string) (LedgerTotals, error) {
	var t LedgerTotals
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(rate_limited), 0), COALESCE(SUM(input), 0), COALESCE(SUM(output), 0),
			COALESCE(SUM(cached), 0), COALESCE(SUM(cost), 0)
		 FROM invocations WHERE pod = ?`, pod,
	).Scan(&t.Invocations, &t.RateLimited, &t.Tokens.Input, &t.Tokens.Output, &t.Tokens.Cached, &t.Cost)
	if err != nil {
		return LedgerTotals{}, fmt.Errorf("sum invocations: %w", err)
	}
	return t, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
