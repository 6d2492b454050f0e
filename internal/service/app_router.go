package service

import (
	"context"
	"fmt"

	"github.com/voltigdev/voltig-turbo/internal/domain/rpc"
	"github.com/voltigdev/voltig-turbo/internal/domain/session"
	"github.com/voltigdev/voltig-turbo/internal/domain/todo"
	"github.com/voltigdev/voltig-turbo/internal/domain/validation"
)

var todoSanitizer = validation.NewSanitizer()

// CreateTodoInput is the input of todo.createTodo. Both fields must be
// present; empty strings are accepted and there is no length bound.
type CreateTodoInput struct {
	Title       *string `json:"title" validate:"required"`
	Description *string `json:"description" validate:"required"`
}

// NewAppRouter registers every procedure served under /api/trpc.
func NewAppRouter(b *rpc.Builder) *rpc.Router {
	return rpc.NewRouter().
		Merge("todo", NewTodoRouter(b)).
		Merge("auth", NewAuthRouter(b))
}

// NewTodoRouter builds the todo procedures.
func NewTodoRouter(b *rpc.Builder) *rpc.Router {
	return rpc.NewRouter().
		Add("getTodos", rpc.Query(b, getTodos)).
		Add("createTodo", rpc.Mutation(b, createTodo)).
		Add("getMyTodos", rpc.ProtectedQuery(b, getMyTodos))
}

// NewAuthRouter builds the session procedures.
func NewAuthRouter(b *rpc.Builder) *rpc.Router {
	return rpc.NewRouter().
		Add("getSession", rpc.Query(b, getSession))
}

func getTodos(ctx context.Context, rc *rpc.Context, _ rpc.NoInput) ([]todo.Todo, error) {
	todos, err := rc.DB.Todos().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing todos: %w", err)
	}
	return todos, nil
}

func createTodo(ctx context.Context, rc *rpc.Context, in CreateTodoInput) (*todo.Todo, error) {
	nt := todo.NewTodo{
		Title:       todoSanitizer.SanitizeStringPtr(in.Title),
		Description: todoSanitizer.SanitizeStringPtr(in.Description),
	}
	if id := rc.UserID(); id != "" {
		nt.OwnerID = &id
	}
	created, err := rc.DB.Todos().Create(ctx, nt)
	if err != nil {
		return nil, fmt.Errorf("creating todo: %w", err)
	}
	return created, nil
}

func getMyTodos(ctx context.Context, ac *rpc.AuthedContext, _ rpc.NoInput) ([]todo.Todo, error) {
	todos, err := ac.DB.Todos().ListByOwner(ctx, ac.User.ID)
	if err != nil {
		return nil, fmt.Errorf("listing todos for %s: %w", ac.User.ID, err)
	}
	return todos, nil
}

func getSession(_ context.Context, rc *rpc.Context, _ rpc.NoInput) (*session.Info, error) {
	return rc.Session, nil
}
