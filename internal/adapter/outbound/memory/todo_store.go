package memory

import (
	"context"
	"sync"
	"time"

	"github.com/voltigdev/voltig-turbo/internal/domain/todo"
)

// TodoStore implements todo.Store with an in-memory slice.
// IDs are assigned sequentially from 1. For development/testing only.
type TodoStore struct {
	todos  []todo.Todo
	nextID int64
	mu     sync.RWMutex
}

// NewTodoStore creates a new in-memory todo store.
func NewTodoStore() *TodoStore {
	return &TodoStore{nextID: 1}
}

// List returns every todo ordered by ID.
func (s *TodoStore) List(ctx context.Context) ([]todo.Todo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]todo.Todo, len(s.todos))
	copy(out, s.todos)
	return out, nil
}

// ListByOwner returns the todos owned by ownerID ordered by ID.
func (s *TodoStore) ListByOwner(ctx context.Context, ownerID string) ([]todo.Todo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]todo.Todo, 0)
	for _, t := range s.todos {
		if t.OwnerID != nil && *t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	return out, nil
}

// Create inserts a todo and returns it with its assigned ID.
func (s *TodoStore) Create(ctx context.Context, in todo.NewTodo) (*todo.Todo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := todo.Todo{
		ID:          s.nextID,
		Title:       in.Title,
		Description: in.Description,
		OwnerID:     in.OwnerID,
		CreatedAt:   time.Now().UTC(),
	}
	s.nextID++
	s.todos = append(s.todos, t)
	return &t, nil
}

// Count returns the number of stored todos.
func (s *TodoStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.todos), nil
}

// Compile-time interface verification.
var _ todo.Store = (*TodoStore)(nil)
