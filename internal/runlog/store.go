// Package runlog persists completed agent runs and the tools each one
// invoked, so the API can list and replay past sessions.
package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nugget/designer-agent/internal/agent"
)

// ErrNotFound is returned by Get for an unknown session.
var ErrNotFound = errors.New("run not found")

// Run is a stored run.
type Run struct {
	SessionID    string        `json:"session_id"`
	Prompt       string        `json:"prompt"`
	Success      bool          `json:"success"`
	FinalAnswer  string        `json:"final_answer,omitempty"`
	Error        string        `json:"error,omitempty"`
	Iterations   int           `json:"iterations"`
	Model        string        `json:"model"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	CostUSD      float64       `json:"cost_usd"`
	OutputPath   string        `json:"output_path,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration_ns"`

	Invocations []agent.ToolInvocation `json:"tools_executed,omitempty"`
}

// Store persists runs in SQLite. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens or creates the run log database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s, err := NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore creates a run log on an open database, running migrations
// on first use.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate run log: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			session_id    TEXT PRIMARY KEY,
			prompt        TEXT NOT NULL,
			success       INTEGER NOT NULL,
			final_answer  TEXT,
			error         TEXT,
			iterations    INTEGER NOT NULL,
			model         TEXT,
			input_tokens  INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			cost_usd      REAL NOT NULL DEFAULT 0,
			output_path   TEXT,
			started_at    TEXT NOT NULL,
			duration_ms   INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
		CREATE TABLE IF NOT EXISTS invocations (
			session_id  TEXT NOT NULL,
			seq         INTEGER NOT NULL,
			action      TEXT NOT NULL,
			input       TEXT NOT NULL,
			observation TEXT NOT NULL,
			PRIMARY KEY (session_id, seq)
		);
	`)
	return err
}

// Record stores a finished run. Recording a session again replaces it.
func (s *Store) Record(ctx context.Context, prompt string, res *agent.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var outputPath string
	if res.Rendered != nil {
		outputPath = res.Rendered.Path
	}
	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (session_id, prompt, success, final_answer, error,
			iterations, model, input_tokens, output_tokens, cost_usd, output_path,
			started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.SessionID, prompt, res.Success, res.FinalAnswer, res.Error,
		res.Iterations, res.Model, res.Trace.TotalInputTokens, res.Trace.TotalOutputTokens,
		res.Trace.TotalCostUSD, outputPath,
		res.StartedAt.UTC().Format(time.RFC3339Nano), res.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", res.SessionID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM invocations WHERE session_id = ?`, res.SessionID); err != nil {
		return fmt.Errorf("clear invocations %s: %w", res.SessionID, err)
	}
	for i, inv := range res.ToolInvocations {
		input, err := json.Marshal(inv.Input)
		if err != nil {
			return fmt.Errorf("encode input: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO invocations (session_id, seq, action, input, observation) VALUES (?, ?, ?, ?, ?)`,
			res.SessionID, i, inv.Action, string(input), inv.Observation,
		)
		if err != nil {
			return fmt.Errorf("insert invocation %s/%d: %w", res.SessionID, i, err)
		}
	}
	return tx.Commit()
}

const runColumns = `session_id, prompt, success, COALESCE(final_answer, ''), COALESCE(error, ''),
	iterations, COALESCE(model, ''), input_tokens, output_tokens, cost_usd,
	COALESCE(output_path, ''), started_at, duration_ms`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		r          Run
		started    string
		durationMS int64
	)
	err := row.Scan(&r.SessionID, &r.Prompt, &r.Success, &r.FinalAnswer, &r.Error,
		&r.Iterations, &r.Model, &r.InputTokens, &r.OutputTokens, &r.CostUSD,
		&r.OutputPath, &started, &durationMS)
	if err != nil {
		return nil, err
	}
	r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	r.Duration = time.Duration(durationMS) * time.Millisecond
	return &r, nil
}

// List returns up to limit runs, newest first, without invocations.
// A limit of zero or less means 50.
func (s *Store) List(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Get returns a run with its invocations in dispatch order.
func (s *Store) Get(ctx context.Context, sessionID string) (*Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE session_id = ?`, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", sessionID, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT action, input, observation FROM invocations WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get invocations %s: %w", sessionID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			inv   agent.ToolInvocation
			input string
		)
		if err := rows.Scan(&inv.Action, &input, &inv.Observation); err != nil {
			return nil, fmt.Errorf("scan invocation: %w", err)
		}
		if err := json.Unmarshal([]byte(input), &inv.Input); err != nil {
			inv.Input = map[string]any{"raw": input}
		}
		r.Invocations = append(r.Invocations, inv)
	}
	return r, rows.Err()
}
