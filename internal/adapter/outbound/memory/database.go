package memory

import (
	"context"

	"github.com/voltigdev/voltig-turbo/internal/domain/auth"
	"github.com/voltigdev/voltig-turbo/internal/domain/session"
	"github.com/voltigdev/voltig-turbo/internal/domain/todo"
	"github.com/voltigdev/voltig-turbo/internal/port/outbound"
)

// Database bundles the in-memory stores behind outbound.Database.
// Used by handler tests and for embedding the server without SQL.
type Database struct {
	todos    *TodoStore
	users    *UserStore
	sessions *MemorySessionStore
}

// NewDatabase creates an empty in-memory database.
func NewDatabase() *Database {
	return &Database{
		todos:    NewTodoStore(),
		users:    NewUserStore(),
		sessions: NewSessionStore(),
	}
}

// Todos returns the todo store.
func (d *Database) Todos() todo.Store { return d.todos }

// Users returns the user store.
func (d *Database) Users() auth.UserStore { return d.users }

// Sessions returns the session store.
func (d *Database) Sessions() session.SessionStore { return d.sessions }

// Ping always succeeds.
func (d *Database) Ping(ctx context.Context) error { return nil }

// Close stops the session cleanup goroutine.
func (d *Database) Close() error {
	d.sessions.Stop()
	return nil
}

// StartCleanup starts the session expiry sweep.
func (d *Database) StartCleanup(ctx context.Context) {
	d.sessions.StartCleanup(ctx)
}

// Compile-time interface verification.
var _ outbound.Database = (*Database)(nil)
