// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/Yllib/socketclaude/internal/domain"
)

// Repository defines the interface for persisting sessions and chat history.
type Repository interface {
	// SaveSession creates or updates session metadata.
	SaveSession(ctx context.Context, session *domain.Session) error

	// GetSession retrieves a session by id. Returns (nil, nil) when absent.
	GetSession(ctx context.Context, id string) (*domain.Session, error)

	// ListSessions returns all sessions, most recently updated first.
	ListSessions(ctx context.Context) ([]*domain.Session, error)

	// RenameSession re-points a session record and its history from oldID to
	// newID. Used when a cleared session is replaced by a fresh agent session.
	RenameSession(ctx context.Context, oldID, newID string) error

	// DeleteSession removes a session, its history, and its todos.
	DeleteSession(ctx context.Context, id string) error

	// AppendEntry appends one chat history entry and fills in its ID.
	AppendEntry(ctx context.Context, entry *domain.ChatEntry) error

	// PageEntries returns one page of history for a session in chronological
	// order, plus the total entry count for that session.
	PageEntries(ctx context.Context, sessionID string, limit, offset int) ([]*domain.ChatEntry, int, error)

	// MarkQuestionAnswered flags the history entry for a question as answered.
	MarkQuestionAnswered(ctx context.Context, sessionID string, questionID int64) error

	// SaveTodos replaces the todo list for a session.
	SaveTodos(ctx context.Context, sessionID string, todos []domain.TodoItem) error

	// GetTodos returns the todo list for a session.
	GetTodos(ctx context.Context, sessionID string) ([]domain.TodoItem, error)

	// ClearTodos removes the todo list for a session.
	ClearTodos(ctx context.Context, sessionID string) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
