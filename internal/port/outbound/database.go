// Package outbound defines the outbound port interfaces for persistence.
package outbound

import (
	"context"

	"github.com/voltigdev/voltig-turbo/internal/domain/auth"
	"github.com/voltigdev/voltig-turbo/internal/domain/session"
	"github.com/voltigdev/voltig-turbo/internal/domain/todo"
)

// Database is the process-wide database handle.
// Adapters implement this for in-memory, PostgreSQL and SQLite storage.
// It is created once at startup and shared by every request.
type Database interface {
	// Todos returns the todo store.
	Todos() todo.Store

	// Users returns the user and credential store.
	Users() auth.UserStore

	// Sessions returns the session store.
	Sessions() session.SessionStore

	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connections.
	Close() error
}
