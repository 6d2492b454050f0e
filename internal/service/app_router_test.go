package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/voltigdev/voltig-turbo/internal/adapter/outbound/memory"
	"github.com/voltigdev/voltig-turbo/internal/domain/auth"
	"github.com/voltigdev/voltig-turbo/internal/domain/rpc"
	"github.com/voltigdev/voltig-turbo/internal/domain/session"
	"github.com/voltigdev/voltig-turbo/internal/domain/todo"
	"github.com/voltigdev/voltig-turbo/internal/domain/validation"
)

// staticAuth resolves every request to the same session.
type staticAuth struct {
	info *session.Info
}

func (a staticAuth) ResolveSession(context.Context, http.Header) *session.Info {
	return a.info
}

func testSessionInfo(userID string) *session.Info {
	return &session.Info{
		Session: &session.Session{ID: "s1", Token: "t1", UserID: userID, ExpiresAt: time.Now().Add(time.Hour)},
		User:    &auth.User{ID: userID, Name: "Ada", Email: "ada@example.com"},
	}
}

func newAppEnv(info *session.Info) (*rpc.Router, *rpc.Context, *memory.Database) {
	db := memory.NewDatabase()
	router := NewAppRouter(rpc.NewBuilder(rpc.Timing(rpc.TimingOptions{})))
	rc := rpc.NewContextBuilder(db, staticAuth{info: info}).Build(context.Background(), http.Header{})
	return router, rc, db
}

func call(t *testing.T, router *rpc.Router, rc *rpc.Context, path, input string) (any, error) {
	t.Helper()
	p, ok := router.Lookup(path)
	if !ok {
		t.Fatalf("Lookup(%q) not found", path)
	}
	var raw json.RawMessage
	if input != "" {
		raw = json.RawMessage(input)
	}
	return p.Call(context.Background(), rc, path, raw)
}

func TestAppRouter_Paths(t *testing.T) {
	t.Parallel()

	router, _, _ := newAppEnv(nil)
	want := []string{"auth.getSession", "todo.createTodo", "todo.getMyTodos", "todo.getTodos"}
	got := router.Paths()
	if len(got) != len(want) {
		t.Fatalf("Paths() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Paths()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	kinds := map[string]rpc.Kind{
		"todo.getTodos":   rpc.KindQuery,
		"todo.createTodo": rpc.KindMutation,
		"todo.getMyTodos": rpc.KindQuery,
	}
	for path, kind := range kinds {
		p, _ := router.Lookup(path)
		if p.Kind() != kind {
			t.Errorf("%s kind = %v, want %v", path, p.Kind(), kind)
		}
	}
	if p, _ := router.Lookup("todo.getMyTodos"); !p.Protected() {
		t.Error("todo.getMyTodos should be protected")
	}
}

func TestAppRouter_CreateThenList(t *testing.T) {
	t.Parallel()

	router, rc, _ := newAppEnv(nil)

	out, err := call(t, router, rc, "todo.createTodo", `{"title":"Write tests","description":""}`)
	if err != nil {
		t.Fatalf("createTodo error = %v", err)
	}
	created := out.(*todo.Todo)
	if created.ID == 0 || *created.Title != "Write tests" || *created.Description != "" {
		t.Errorf("createTodo = %+v", created)
	}
	if created.OwnerID != nil {
		t.Errorf("anonymous todo OwnerID = %v, want nil", *created.OwnerID)
	}

	out, err = call(t, router, rc, "todo.getTodos", "")
	if err != nil {
		t.Fatalf("getTodos error = %v", err)
	}
	todos := out.([]todo.Todo)
	if len(todos) != 1 || todos[0].ID != created.ID {
		t.Errorf("getTodos = %+v, want the created todo", todos)
	}
}

func TestAppRouter_CreateTodoValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		wantField string
	}{
		{"missing title", `{"description":"d"}`, "title"},
		{"missing description", `{"title":"t"}`, "description"},
		{"null title", `{"title":null,"description":"d"}`, "title"},
		{"wrong type", `{"title":1,"description":"d"}`, "title"},
		{"no input", "", "title"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			router, rc, db := newAppEnv(nil)
			_, err := call(t, router, rc, "todo.createTodo", tt.input)

			var verr *validation.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("createTodo error = %v, want ValidationError", err)
			}
			if _, ok := verr.Fields[tt.wantField]; !ok {
				t.Errorf("fields = %v, want %q", verr.Fields, tt.wantField)
			}
			if rpc.FromError(err).Code != rpc.CodeBadRequest {
				t.Errorf("code = %s, want BAD_REQUEST", rpc.FromError(err).Code)
			}
			if n, _ := db.Todos().Count(context.Background()); n != 0 {
				t.Errorf("todo count = %d after rejected input, want 0", n)
			}
		})
	}
}

func TestAppRouter_GetMyTodosRequiresSession(t *testing.T) {
	t.Parallel()

	router, rc, db := newAppEnv(nil)
	_, err := call(t, router, rc, "todo.getMyTodos", "")
	if rpc.FromError(err).Code != rpc.CodeUnauthorized {
		t.Fatalf("getMyTodos error = %v, want UNAUTHORIZED", err)
	}
	if n, _ := db.Todos().Count(context.Background()); n != 0 {
		t.Errorf("todo count = %d, want 0", n)
	}
}

func TestAppRouter_OwnedTodos(t *testing.T) {
	t.Parallel()

	router, rc, db := newAppEnv(testSessionInfo("user-1"))
	ctx := context.Background()
	other := "user-2"
	title := "theirs"
	if _, err := db.Todos().Create(ctx, todo.NewTodo{Title: &title, OwnerID: &other}); err != nil {
		t.Fatal(err)
	}

	out, err := call(t, router, rc, "todo.createTodo", `{"title":"mine","description":"d"}`)
	if err != nil {
		t.Fatal(err)
	}
	if owner := out.(*todo.Todo).OwnerID; owner == nil || *owner != "user-1" {
		t.Errorf("OwnerID = %v, want user-1", owner)
	}

	out, err = call(t, router, rc, "todo.getMyTodos", "")
	if err != nil {
		t.Fatalf("getMyTodos error = %v", err)
	}
	mine := out.([]todo.Todo)
	if len(mine) != 1 || *mine[0].Title != "mine" {
		t.Errorf("getMyTodos = %+v, want only the caller's todo", mine)
	}
}

func TestAppRouter_GetSession(t *testing.T) {
	t.Parallel()

	router, rc, _ := newAppEnv(nil)
	out, err := call(t, router, rc, "auth.getSession", "")
	if err != nil {
		t.Fatal(err)
	}
	if out.(*session.Info) != nil {
		t.Errorf("getSession anonymous = %v, want nil", out)
	}

	router, rc, _ = newAppEnv(testSessionInfo("user-1"))
	out, _ = call(t, router, rc, "auth.getSession", "")
	if info := out.(*session.Info); info == nil || info.User.ID != "user-1" {
		t.Errorf("getSession = %+v", out)
	}
}

func TestAppRouter_CreateTodoLenientInput(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 6000)
	tests := []struct {
		name      string
		input     string
		wantTitle string
	}{
		{"unknown keys dropped", `{"title":"Buy milk","description":"2%","extra":1}`, "Buy milk"},
		{"long strings", `{"title":"` + long + `","description":"` + long + `"}`, long},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			router, rc, db := newAppEnv(nil)
			out, err := call(t, router, rc, "todo.createTodo", tt.input)
			if err != nil {
				t.Fatalf("createTodo error = %v", err)
			}
			if got := *out.(*todo.Todo).Title; got != tt.wantTitle {
				t.Errorf("Title has %d chars, want %d", len(got), len(tt.wantTitle))
			}
			if n, _ := db.Todos().Count(context.Background()); n != 1 {
				t.Errorf("todo count = %d, want 1", n)
			}
		})
	}
}

func TestAppRouter_CreateTodoSanitizes(t *testing.T) {
	t.Parallel()

	router, rc, _ := newAppEnv(nil)
	out, err := call(t, router, rc, "todo.createTodo", `{"title":"a\u0000b","description":""}`)
	if err != nil {
		t.Fatal(err)
	}
	if got := *out.(*todo.Todo).Title; got != "ab" {
		t.Errorf("Title = %q, want null bytes removed", got)
	}
}
