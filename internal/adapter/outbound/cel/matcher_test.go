package cel

import (
	"strings"
	"testing"

	"github.com/voltigdev/voltig-turbo/internal/config"
	"github.com/voltigdev/voltig-turbo/internal/domain/ratelimit"
)

func newTestCompiler(t *testing.T) *Compiler {
	t.Helper()
	c, err := NewCompiler()
	if err != nil {
		t.Fatalf("NewCompiler() error: %v", err)
	}
	return c
}

func TestMatcher_DefaultTiers(t *testing.T) {
	t.Parallel()

	c := newTestCompiler(t)

	tests := []struct {
		name   string
		expr   string
		path   string
		expect bool
	}{
		{"all matches root", config.MatchAll, "/", true},
		{"auth matches auth path", config.MatchAuth, "/api/auth/get-session", true},
		{"auth skips trpc", config.MatchAuth, "/api/trpc/todo.getTodos", false},
		{"auth skips bare prefix", config.MatchAuth, "/api/auth", false},
		{"strict matches sign-in", config.MatchAuthStrict, "/api/auth/sign-in/email", true},
		{"strict matches sign-up", config.MatchAuthStrict, "/api/auth/sign-up/email", true},
		{"strict matches verify-email", config.MatchAuthStrict, "/api/auth/verify-email", true},
		{"strict skips sign-out", config.MatchAuthStrict, "/api/auth/sign-out", false},
		{"strict skips non-auth sign-in", config.MatchAuthStrict, "/sign-in", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m, err := c.Compile(tt.expr)
			if err != nil {
				t.Fatalf("Compile(%q) error: %v", tt.expr, err)
			}
			got, err := m.Matches(ratelimit.RequestInfo{Path: tt.path, Method: "POST", IP: "10.0.0.1"})
			if err != nil {
				t.Fatalf("Matches() error: %v", err)
			}
			if got != tt.expect {
				t.Errorf("Matches(%q) = %v, want %v", tt.path, got, tt.expect)
			}
		})
	}
}

func TestMatcher_MethodIPAndGlob(t *testing.T) {
	t.Parallel()

	c := newTestCompiler(t)
	m, err := c.Compile(`request.method == "POST" && glob("/api/trpc/*", request.path) && !request.ip.startsWith("127.")`)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		req    ratelimit.RequestInfo
		expect bool
	}{
		{ratelimit.RequestInfo{Path: "/api/trpc/todo.createTodo", Method: "POST", IP: "10.1.1.1"}, true},
		{ratelimit.RequestInfo{Path: "/api/trpc/todo.createTodo", Method: "GET", IP: "10.1.1.1"}, false},
		{ratelimit.RequestInfo{Path: "/api/trpc/todo.createTodo", Method: "POST", IP: "127.0.0.1"}, false},
		{ratelimit.RequestInfo{Path: "/api/auth/ok", Method: "POST", IP: "10.1.1.1"}, false},
	}
	for _, tt := range tests {
		got, err := m.Matches(tt.req)
		if err != nil {
			t.Fatalf("Matches(%+v) error: %v", tt.req, err)
		}
		if got != tt.expect {
			t.Errorf("Matches(%+v) = %v, want %v", tt.req, got, tt.expect)
		}
	}
}

func TestCompile_Rejects(t *testing.T) {
	t.Parallel()

	c := newTestCompiler(t)

	tests := []struct {
		name    string
		expr    string
		wantErr string
	}{
		{"empty", "", "empty"},
		{"too long", strings.Repeat("a", maxExpressionLength+1), "too long"},
		{"too deep", strings.Repeat("(", maxNestingDepth+1) + "true" + strings.Repeat(")", maxNestingDepth+1), "nesting"},
		{"syntax", "request.path ==", "compilation failed"},
		{"unknown variable", `tool_name == "x"`, "compilation failed"},
		{"non-bool", `request.path`, "must return bool"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := c.Compile(tt.expr)
			if err == nil {
				t.Fatalf("Compile(%q) expected error", tt.name)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestMatcher_String(t *testing.T) {
	t.Parallel()

	m, err := newTestCompiler(t).Compile(config.MatchAuth)
	if err != nil {
		t.Fatal(err)
	}
	if m.String() != config.MatchAuth {
		t.Errorf("String() = %q", m.String())
	}
}
