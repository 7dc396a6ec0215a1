// Package recorder persists session transcripts from the pipeline.
package recorder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrInvalidSession is returned for writes without a session id.
var ErrInvalidSession = errors.New("recorder: session id required")

// Message is one completed chat turn.
type Message struct {
	ID        int64
	SessionID string
	Sender    string
	Role      string
	Content   string
	CreatedAt time.Time
}

// StatusChange is one controller state change for a session.
type StatusChange struct {
	SessionID string
	State     string
	CreatedAt time.Time
}

// Store is the transcript persistence used by the recorder node.
type Store interface {
	SaveMessage(ctx context.Context, m Message) error
	SaveSessionStatus(ctx context.Context, s StatusChange) error
	Messages(ctx context.Context, sessionID string) ([]Message, error)
	Statuses(ctx context.Context, sessionID string) ([]StatusChange, error)
	Close() error
}

// SQLiteStore implements Store on a sqlite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and creates) the database at path. The parent
// directory is created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// :memory: databases exist per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initPragmas(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize pragmas: %w", err)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// initPragmas lets the transcript command read while a recorder writes.
func (s *SQLiteStore) initPragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		sender TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_session_id ON messages(session_id);

	CREATE TABLE IF NOT EXISTS session_status (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		state TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_session_status_session_id ON session_status(session_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveMessage appends m.
func (s *SQLiteStore) SaveMessage(ctx context.Context, m Message) error {
	if m.SessionID == "" {
		return ErrInvalidSession
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (session_id, sender, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.SessionID, m.Sender, m.Role, m.Content, m.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// SaveSessionStatus appends a status change.
func (s *SQLiteStore) SaveSessionStatus(ctx context.Context, c StatusChange) error {
	if c.SessionID == "" {
		return ErrInvalidSession
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_status (session_id, state, created_at) VALUES (?, ?, ?)`,
		c.SessionID, c.State, c.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save session status: %w", err)
	}
	return nil
}

// Messages returns a session's messages in write order.
func (s *SQLiteStore) Messages(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, sender, role, content, created_at FROM messages WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			m       Message
			created string
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Sender, &m.Role, &m.Content, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if m.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parse message time: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Statuses returns a session's status changes in write order.
func (s *SQLiteStore) Statuses(ctx context.Context, sessionID string) ([]StatusChange, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, state, created_at FROM session_status WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query session status: %w", err)
	}
	defer rows.Close()

	var out []StatusChange
	for rows.Next() {
		var (
			c       StatusChange
			created string
		)
		if err := rows.Scan(&c.SessionID, &c.State, &created); err != nil {
			return nil, fmt.Errorf("scan session status: %w", err)
		}
		if c.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parse status time: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
