package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Yllib/socketclaude/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		cwd TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);

	CREATE TABLE IF NOT EXISTS entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		content TEXT NOT NULL,
		tool_name TEXT NOT NULL DEFAULT '',
		question_id INTEGER NOT NULL DEFAULT 0,
		answered INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_entries_session ON entries(session_id, id);

	CREATE TABLE IF NOT EXISTS todos (
		session_id TEXT PRIMARY KEY,
		items_json TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSession creates or updates session metadata.
func (s *SQLiteStore) SaveSession(ctx context.Context, session *domain.Session) error {
	query := `
		INSERT INTO sessions (session_id, title, cwd, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			title = excluded.title,
			cwd = excluded.cwd,
			updated_at = excluded.updated_at`

	return withBusyRetry("save session", func() error {
		_, err := s.db.ExecContext(ctx, query,
			session.ID, session.Title, session.Cwd,
			session.CreatedAt.Unix(), session.UpdatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("save session %s: %w", session.ID, err)
		}
		return nil
	})
}

// GetSession retrieves a session by id.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	query := `SELECT session_id, title, cwd, created_at, updated_at FROM sessions WHERE session_id = ?`

	row := s.db.QueryRowContext(ctx, query, id)

	var sess domain.Session
	var createdAt, updatedAt int64

	err := row.Scan(&sess.ID, &sess.Title, &sess.Cwd, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	sess.CreatedAt = time.Unix(createdAt, 0)
	sess.UpdatedAt = time.Unix(updatedAt, 0)
	return &sess, nil
}

// ListSessions returns all sessions, most recently updated first.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]*domain.Session, error) {
	query := `SELECT session_id, title, cwd, created_at, updated_at FROM sessions ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		var sess domain.Session
		var createdAt, updatedAt int64
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.Cwd, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sess.CreatedAt = time.Unix(createdAt, 0)
		sess.UpdatedAt = time.Unix(updatedAt, 0)
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}

// RenameSession re-points a session record and its history to a new id.
func (s *SQLiteStore) RenameSession(ctx context.Context, oldID, newID string) error {
	return withBusyRetry("rename session", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin rename: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `UPDATE sessions SET session_id = ? WHERE session_id = ?`, newID, oldID); err != nil {
			return fmt.Errorf("rename session %s: %w", oldID, err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE entries SET session_id = ? WHERE session_id = ?`, newID, oldID); err != nil {
			return fmt.Errorf("rename entries %s: %w", oldID, err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE todos SET session_id = ? WHERE session_id = ?`, newID, oldID); err != nil {
			return fmt.Errorf("rename todos %s: %w", oldID, err)
		}
		return tx.Commit()
	})
}

// DeleteSession removes a session, its history, and its todos.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	return withBusyRetry("delete session", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin delete: %w", err)
		}
		defer tx.Rollback()

		for _, q := range []string{
			`DELETE FROM entries WHERE session_id = ?`,
			`DELETE FROM todos WHERE session_id = ?`,
			`DELETE FROM sessions WHERE session_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return fmt.Errorf("delete session %s: %w", id, err)
			}
		}
		return tx.Commit()
	})
}

// AppendEntry appends one chat history entry and fills in its ID.
func (s *SQLiteStore) AppendEntry(ctx context.Context, entry *domain.ChatEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO entries (session_id, kind, content, tool_name, question_id, answered, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	return withBusyRetry("append entry", func() error {
		res, err := s.db.ExecContext(ctx, query,
			entry.SessionID, string(entry.Kind), entry.Content, entry.ToolName,
			entry.QuestionID, boolToInt(entry.Answered), entry.CreatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("append entry: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("entry insert id: %w", err)
		}
		entry.ID = id
		return nil
	})
}

// PageEntries returns one page of history in chronological order plus the
// total entry count for the session.
func (s *SQLiteStore) PageEntries(ctx context.Context, sessionID string, limit, offset int) ([]*domain.ChatEntry, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries WHERE session_id = ?`, sessionID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count entries: %w", err)
	}

	query := `
		SELECT id, session_id, kind, content, tool_name, question_id, answered, created_at
		FROM entries WHERE session_id = ?
		ORDER BY id ASC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, sessionID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("page entries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.ChatEntry
	for rows.Next() {
		var e domain.ChatEntry
		var kind string
		var answered int
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.SessionID, &kind, &e.Content, &e.ToolName, &e.QuestionID, &answered, &createdAt); err != nil {
			return nil, 0, fmt.Errorf("scan entry row: %w", err)
		}
		e.Kind = domain.EntryKind(kind)
		e.Answered = answered != 0
		e.CreatedAt = time.Unix(createdAt, 0)
		entries = append(entries, &e)
	}
	return entries, total, rows.Err()
}

// MarkQuestionAnswered flags the history entry for a question as answered.
func (s *SQLiteStore) MarkQuestionAnswered(ctx context.Context, sessionID string, questionID int64) error {
	query := `UPDATE entries SET answered = 1 WHERE session_id = ? AND kind = ? AND question_id = ?`
	return withBusyRetry("mark question answered", func() error {
		if _, err := s.db.ExecContext(ctx, query, sessionID, string(domain.EntryQuestion), questionID); err != nil {
			return fmt.Errorf("mark question %d answered: %w", questionID, err)
		}
		return nil
	})
}

// SaveTodos replaces the todo list for a session.
func (s *SQLiteStore) SaveTodos(ctx context.Context, sessionID string, todos []domain.TodoItem) error {
	data, err := json.Marshal(todos)
	if err != nil {
		return fmt.Errorf("marshal todos: %w", err)
	}
	query := `
		INSERT INTO todos (session_id, items_json, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET items_json = excluded.items_json, updated_at = excluded.updated_at`
	return withBusyRetry("save todos", func() error {
		if _, err := s.db.ExecContext(ctx, query, sessionID, string(data), time.Now().Unix()); err != nil {
			return fmt.Errorf("save todos: %w", err)
		}
		return nil
	})
}

// GetTodos returns the todo list for a session.
func (s *SQLiteStore) GetTodos(ctx context.Context, sessionID string) ([]domain.TodoItem, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT items_json FROM todos WHERE session_id = ?`, sessionID,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get todos: %w", err)
	}

	var todos []domain.TodoItem
	if err := json.Unmarshal([]byte(raw), &todos); err != nil {
		return nil, fmt.Errorf("unmarshal todos: %w", err)
	}
	return todos, nil
}

// ClearTodos removes the todo list for a session.
func (s *SQLiteStore) ClearTodos(ctx context.Context, sessionID string) error {
	return withBusyRetry("clear todos", func() error {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM todos WHERE session_id = ?`, sessionID); err != nil {
			return fmt.Errorf("clear todos: %w", err)
		}
		return nil
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
