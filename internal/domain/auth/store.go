package auth

import (
	"context"
	"errors"
)

// Sentinel errors for user store operations.
var (
	// ErrUserNotFound is returned when a user is not found.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when signing up with an email already in use.
	ErrEmailTaken = errors.New("email already in use")
	// ErrAccountNotFound is returned when a user has no credential account.
	ErrAccountNotFound = errors.New("account not found")
)

// UserStore provides user and credential persistence.
// This interface is defined in the domain to avoid circular imports.
// Implementations: in-memory (test), PostgreSQL and SQLite (sqlstore).
type UserStore interface {
	// CreateUser stores a user together with its credential account.
	// Both are written or neither is.
	// Returns ErrEmailTaken if the email is already registered.
	CreateUser(ctx context.Context, user *User, account *Account) error

	// GetUser retrieves a user by ID.
	// Returns ErrUserNotFound if the user doesn't exist.
	GetUser(ctx context.Context, id string) (*User, error)

	// GetUserByEmail retrieves a user by lower-cased email.
	// Returns ErrUserNotFound if the user doesn't exist.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// GetCredentialAccount retrieves the credential account of a user.
	// Returns ErrAccountNotFound if the user has none.
	GetCredentialAccount(ctx context.Context, userID string) (*Account, error)

	// MarkEmailVerified sets EmailVerified on a user.
	// Returns ErrUserNotFound if the user doesn't exist.
	MarkEmailVerified(ctx context.Context, userID string) error

	// CountUsers returns the number of registered users.
	CountUsers(ctx context.Context) (int, error)
}
