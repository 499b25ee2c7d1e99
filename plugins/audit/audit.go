// Package audit persists a per-invocation audit trail to a SQLite database.
package audit

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AndurilCode/mcp-apps-kit-sub001/invoke"
	"github.com/AndurilCode/mcp-apps-kit-sub001/plugin"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

const stateKeyStart = "audit.start"

// Record is one persisted invocation outcome.
type Record struct {
	InvocationID string
	Tool         string
	Transport    string
	Status       string
	ErrorKind    string
	Error        string
	Input        map[string]any
	Output       map[string]any
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Store writes invocation records to SQLite. It attaches to an application
// as a plugin: successful and failed calls each become one row. WAL mode is
// enabled so readers do not block the write path.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the audit database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: set WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Plugin packages the store's hooks for registration with an application.
func (s *Store) Plugin() plugin.Plugin {
	return plugin.Plugin{
		Name:           "audit",
		BeforeToolCall: s.beforeToolCall,
		AfterToolCall:  s.afterToolCall,
		OnToolError:    s.onToolError,
		OnShutdown: func(ctx context.Context) error {
			return s.Close()
		},
	}
}

func (s *Store) beforeToolCall(ctx context.Context, ictx *invoke.Context) error {
	ictx.Set(stateKeyStart, time.Now().UTC())
	return nil
}

func (s *Store) afterToolCall(ctx context.Context, ictx *invoke.Context, output map[string]any) error {
	return s.append(ctx, Record{
		InvocationID: ictx.ID,
		Tool:         ictx.ToolName,
		Transport:    ictx.Meta.Transport,
		Status:       "success",
		Input:        ictx.Input,
		Output:       output,
		StartedAt:    s.startedAt(ictx),
		FinishedAt:   time.Now().UTC(),
	})
}

func (s *Store) onToolError(ctx context.Context, ictx *invoke.Context, err error) error {
	return s.append(ctx, Record{
		InvocationID: ictx.ID,
		Tool:         ictx.ToolName,
		Transport:    ictx.Meta.Transport,
		Status:       "error",
		ErrorKind:    string(invoke.KindOf(err)),
		Error:        err.Error(),
		Input:        ictx.Input,
		StartedAt:    s.startedAt(ictx),
		FinishedAt:   time.Now().UTC(),
	})
}

func (s *Store) startedAt(ictx *invoke.Context) time.Time {
	if v, ok := ictx.Get(stateKeyStart); ok {
		if t, ok := v.(time.Time); ok {
			return t
		}
	}
	return time.Now().UTC()
}

func (s *Store) append(ctx context.Context, r Record) error {
	inputJSON, err := marshalMap(r.Input)
	if err != nil {
		return fmt.Errorf("audit: marshal input: %w", err)
	}
	outputJSON, err := marshalMap(r.Output)
	if err != nil {
		return fmt.Errorf("audit: marshal output: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO invocations (invocation_id, tool, transport, status, error_kind, error, input, output, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.InvocationID,
		r.Tool,
		r.Transport,
		r.Status,
		r.ErrorKind,
		r.Error,
		inputJSON,
		outputJSON,
		r.StartedAt.Format(time.RFC3339Nano),
		r.FinishedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("audit: append: %w", err)
	}
	return nil
}

// Recent returns the most recent records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT invocation_id, tool, transport, status, error_kind, error, input, output, started_at, finished_at
		 FROM invocations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: recent: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ByTool returns records for one tool, newest first.
func (s *Store) ByTool(ctx context.Context, tool string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT invocation_id, tool, transport, status, error_kind, error, input, output, started_at, finished_at
		 FROM invocations WHERE tool = ? ORDER BY id DESC LIMIT ?`, tool, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: by tool: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var (
			r          Record
			inputJSON  string
			outputJSON string
			startedAt  string
			finishedAt string
		)
		err := rows.Scan(
			&r.InvocationID,
			&r.Tool,
			&r.Transport,
			&r.Status,
			&r.ErrorKind,
			&r.Error,
			&inputJSON,
			&outputJSON,
			&startedAt,
			&finishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("audit: scan record: %w", err)
		}

		if err := unmarshalMap(inputJSON, &r.Input); err != nil {
			return nil, fmt.Errorf("audit: unmarshal input: %w", err)
		}
		if err := unmarshalMap(outputJSON, &r.Output); err != nil {
			return nil, fmt.Errorf("audit: unmarshal output: %w", err)
		}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, fmt.Errorf("audit: parse started_at %q: %w", startedAt, err)
		}
		if r.FinishedAt, err = time.Parse(time.RFC3339Nano, finishedAt); err != nil {
			return nil, fmt.Errorf("audit: parse finished_at %q: %w", finishedAt, err)
		}

		records = append(records, r)
	}
	return records, rows.Err()
}

func marshalMap(m map[string]any) (string, error) {
	if m == nil {
		m = map[string]any{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalMap(s string, m *map[string]any) error {
	if s == "" || s == "{}" {
		*m = map[string]any{}
		return nil
	}
	return json.Unmarshal([]byte(s), m)
}
