// Package todo contains the todo item domain type and its store contract.
package todo

import (
	"context"
	"errors"
	"time"
)

// ErrTodoNotFound is returned when a todo doesn't exist.
var ErrTodoNotFound = errors.New("todo not found")

// Todo is a single todo item. Title and Description are nullable; an empty
// string is a stored value distinct from null.
type Todo struct {
	// ID is assigned by the store.
	ID int64 `json:"id"`
	// Title is optional.
	Title *string `json:"title"`
	// Description is optional.
	Description *string `json:"description"`
	// OwnerID is the user that created the todo while signed in, or nil.
	OwnerID *string `json:"ownerId"`
	// CreatedAt is when the todo was created (UTC).
	CreatedAt time.Time `json:"createdAt"`
}

// NewTodo is the input for Store.Create.
type NewTodo struct {
	Title       *string
	Description *string
	OwnerID     *string
}

// Store provides todo persistence.
// Implementations: in-memory (test), PostgreSQL and SQLite (sqlstore).
type Store interface {
	// List returns every todo ordered by ID.
	List(ctx context.Context) ([]Todo, error)

	// ListByOwner returns the todos owned by ownerID ordered by ID.
	ListByOwner(ctx context.Context, ownerID string) ([]Todo, error)

	// Create inserts a todo and returns it with its assigned ID.
	Create(ctx context.Context, in NewTodo) (*Todo, error)

	// Count returns the number of stored todos.
	Count(ctx context.Context) (int, error)
}
