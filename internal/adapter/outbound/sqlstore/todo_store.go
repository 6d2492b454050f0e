package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/voltigdev/voltig-turbo/internal/domain/todo"
)

// todoColumns lists columns returned by todo SELECT queries.
var todoColumns = []string{"id", "title", "description", "owner_id", "created_at"}

// TodoStore implements todo.Store.
type TodoStore struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

// List returns every todo ordered by ID.
func (s *TodoStore) List(ctx context.Context) ([]todo.Todo, error) {
	return s.query(ctx, s.sb.Select(todoColumns...).From("todo").OrderBy("id"))
}

// ListByOwner returns the todos owned by ownerID ordered by ID.
func (s *TodoStore) ListByOwner(ctx context.Context, ownerID string) ([]todo.Todo, error) {
	return s.query(ctx, s.sb.Select(todoColumns...).From("todo").
		Where(sq.Eq{"owner_id": ownerID}).
		OrderBy("id"))
}

func (s *TodoStore) query(ctx context.Context, qb sq.SelectBuilder) ([]todo.Todo, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building todo query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying todos: %w", err)
	}
	defer func() { _ = rows.Close() }()

	todos := make([]todo.Todo, 0)
	for rows.Next() {
		var t todo.Todo
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.OwnerID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning todo: %w", err)
		}
		t.CreatedAt = t.CreatedAt.UTC()
		todos = append(todos, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating todos: %w", err)
	}
	return todos, nil
}

// Create inserts a todo and returns it with its assigned ID.
func (s *TodoStore) Create(ctx context.Context, in todo.NewTodo) (*todo.Todo, error) {
	t := &todo.Todo{
		Title:       in.Title,
		Description: in.Description,
		OwnerID:     in.OwnerID,
		CreatedAt:   time.Now().UTC(),
	}

	query, args, err := s.sb.Insert("todo").
		Columns("title", "description", "owner_id", "created_at").
		Values(t.Title, t.Description, t.OwnerID, t.CreatedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building todo insert: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&t.ID); err != nil {
		return nil, fmt.Errorf("inserting todo: %w", err)
	}
	return t, nil
}

// Count returns the number of stored todos.
func (s *TodoStore) Count(ctx context.Context) (int, error) {
	query, args, err := s.sb.Select("COUNT(*)").From("todo").ToSql()
	if err != nil {
		return 0, fmt.Errorf("building todo count: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting todos: %w", err)
	}
	return n, nil
}

// Compile-time interface verification.
var _ todo.Store = (*TodoStore)(nil)
