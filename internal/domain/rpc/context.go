package rpc

import (
	"context"
	"net/http"

	"github.com/voltigdev/voltig-turbo/internal/domain/auth"
	"github.com/voltigdev/voltig-turbo/internal/domain/session"
	"github.com/voltigdev/voltig-turbo/internal/domain/todo"
)

// Database is the process-wide database handle exposed to procedures.
type Database interface {
	Todos() todo.Store
	Users() auth.UserStore
	Sessions() session.SessionStore
}

// Authenticator resolves the session attached to a request.
// ResolveSession never fails: any problem yields nil.
type Authenticator interface {
	ResolveSession(ctx context.Context, header http.Header) *session.Info
}

// Context is built once per HTTP request and shared by reference by every
// procedure call of that request. It is never mutated after Build.
type Context struct {
	DB      Database
	Auth    Authenticator
	Session *session.Info
}

// UserID returns the signed-in user's ID, or "" when anonymous.
func (c *Context) UserID() string {
	if c == nil || c.Session == nil || c.Session.User == nil {
		return ""
	}
	return c.Session.User.ID
}

// AuthedContext is the narrowed context passed to protected procedures.
// Session and User are never nil.
type AuthedContext struct {
	DB      Database
	Auth    Authenticator
	Session *session.Session
	User    *auth.User
}

// ContextBuilder creates a Context per request.
type ContextBuilder struct {
	db   Database
	auth Authenticator
}

// NewContextBuilder creates a ContextBuilder sharing db and authenticator.
func NewContextBuilder(db Database, authenticator Authenticator) *ContextBuilder {
	return &ContextBuilder{db: db, auth: authenticator}
}

// Build resolves the request's session exactly once and returns the context.
func (b *ContextBuilder) Build(ctx context.Context, header http.Header) *Context {
	return &Context{
		DB:      b.db,
		Auth:    b.auth,
		Session: b.auth.ResolveSession(ctx, header),
	}
}
