// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transcript keeps an append-only SQLite log of completed tool calls.
//
// The log is for auditing only. It is never read back into conversation
// history, so restarting the server still starts with empty sessions.
package transcript

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/lioensky/AIhelpAI-MCP/internal/util"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrClosed is returned by operations on a closed Log.
var ErrClosed = errors.New("transcript closed")

// =============================================================================
// ENTRY
// =============================================================================

// Entry is one completed exchange, successful or not.
type Entry struct {
	ID        string
	CreatedAt time.Time
	SessionID string
	Tool      string
	ModelID   string
	Prompt    string
	Reply     string
	IsError   bool
	// Status is the HTTP status of a failed remote call, or 0.
	Status   int
	Duration time.Duration
}

const schema = `
CREATE TABLE IF NOT EXISTS exchanges (
	id          TEXT PRIMARY KEY,
	created_at  INTEGER NOT NULL,
	session_id  TEXT NOT NULL,
	tool        TEXT NOT NULL,
	model_id    TEXT NOT NULL,
	prompt      TEXT NOT NULL,
	reply       TEXT NOT NULL,
	is_error    INTEGER NOT NULL DEFAULT 0,
	status      INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_exchanges_created ON exchanges(created_at);
`

// =============================================================================
// LOG
// =============================================================================

// Log is a SQLite-backed transcript. It is safe for concurrent use.
type Log struct {
	db     *sql.DB
	path   string
	redact func(string) string
	mu     sync.RWMutex
	closed bool
}

// Option configures a Log.
type Option func(*Log)

// WithRedactor rewrites prompt and reply text before it is stored.
func WithRedactor(fn func(string) string) Option {
	return func(l *Log) {
		l.redact = fn
	}
}

// Open opens or creates the transcript database at path. Parent directories
// are created with owner-only permissions.
func Open(path string, opts ...Option) (*Log, error) {
	path = util.ExpandHome(path)
	if path == "" {
		return nil, errors.New("transcript path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), util.PrivateDirPerm); err != nil {
			return nil, fmt.Errorf("failed to create transcript directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript: %w", err)
	}

	// SQLite performs best with a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create transcript schema: %w", err)
	}

	l := &Log{db: db, path: path}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Path returns the database path.
func (l *Log) Path() string {
	return l.path
}

// Record appends e. Missing ID and CreatedAt are filled in.
func (l *Log) Record(ctx context.Context, e Entry) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if l.redact != nil {
		e.Prompt = l.redact(e.Prompt)
		e.Reply = l.redact(e.Reply)
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO exchanges
			(id, created_at, session_id, tool, model_id, prompt, reply, is_error, status, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.CreatedAt.UnixMilli(),
		e.SessionID,
		e.Tool,
		e.ModelID,
		e.Prompt,
		e.Reply,
		boolToInt(e.IsError),
		e.Status,
		e.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record exchange: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, created_at, session_id, tool, model_id, prompt, reply, is_error, status, duration_ms
		FROM exchanges
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcript: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			createdMs int64
			isError   int
			durMs     int64
		)
		if err := rows.Scan(&e.ID, &createdMs, &e.SessionID, &e.Tool, &e.ModelID,
			&e.Prompt, &e.Reply, &isError, &e.Status, &durMs); err != nil {
			return nil, fmt.Errorf("failed to scan transcript row: %w", err)
		}
		e.CreatedAt = time.UnixMilli(createdMs)
		e.IsError = isError != 0
		e.Duration = time.Duration(durMs) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of recorded exchanges.
func (l *Log) Count(ctx context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return 0, ErrClosed
	}
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM exchanges`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count transcript: %w", err)
	}
	return n, nil
}

// Close closes the database. Close is idempotent.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
