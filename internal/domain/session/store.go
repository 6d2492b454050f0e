package session

import (
	"context"
	"errors"
)

// SessionStore provides session persistence.
// This interface is defined in the domain to avoid circular imports.
// Implementations: in-memory (test), PostgreSQL and SQLite (sqlstore).
type SessionStore interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// GetByToken retrieves a session by its cookie token.
	// Returns ErrSessionNotFound if the session doesn't exist.
	GetByToken(ctx context.Context, token string) (*Session, error)

	// Update saves changes to an existing session's expiry.
	Update(ctx context.Context, session *Session) error

	// Delete removes a session by token. Deleting a missing session is not an error.
	Delete(ctx context.Context, token string) error

	// DeleteExpired removes every expired session and returns how many were removed.
	DeleteExpired(ctx context.Context) (int64, error)

	// CountActive returns the number of unexpired sessions.
	CountActive(ctx context.Context) (int, error)
}

// ErrSessionNotFound is returned when a session doesn't exist or is expired.
var ErrSessionNotFound = errors.New("session not found")
