package rpc

import (
	"context"
	"encoding/json"

	"github.com/voltigdev/voltig-turbo/internal/domain/validation"
)

// Kind distinguishes read-only queries (GET) from mutations (POST).
type Kind int

const (
	// KindQuery is served over GET.
	KindQuery Kind = iota
	// KindMutation is served over POST.
	KindMutation
)

// String returns "query" or "mutation".
func (k Kind) String() string {
	if k == KindMutation {
		return "mutation"
	}
	return "query"
}

// Call describes one procedure invocation.
type Call struct {
	Path  string
	Kind  Kind
	Input json.RawMessage
}

// Handler is the uniform shape of every stage in a procedure chain.
type Handler func(ctx context.Context, rc *Context, call Call) (any, error)

// AuthedHandler is a stage that runs after RequireSession.
type AuthedHandler func(ctx context.Context, ac *AuthedContext, call Call) (any, error)

// Middleware wraps a Handler.
type Middleware func(next Handler) Handler

// Resolver is the leaf of a public procedure.
type Resolver[In, Out any] func(ctx context.Context, rc *Context, in In) (Out, error)

// AuthedResolver is the leaf of a protected procedure.
type AuthedResolver[In, Out any] func(ctx context.Context, ac *AuthedContext, in In) (Out, error)

// NoInput is the input type of procedures that take none; any supplied
// input is ignored.
type NoInput struct{}

// Procedure is a composed, registrable procedure.
type Procedure struct {
	kind      Kind
	protected bool
	handler   Handler
}

// Kind returns whether the procedure is a query or a mutation.
func (p *Procedure) Kind() Kind {
	return p.kind
}

// Protected reports whether the procedure requires a session.
func (p *Procedure) Protected() bool {
	return p.protected
}

// Call runs the procedure chain.
func (p *Procedure) Call(ctx context.Context, rc *Context, path string, input json.RawMessage) (any, error) {
	return p.handler(ctx, rc, Call{Path: path, Kind: p.kind, Input: input})
}

// Builder composes procedures with a fixed list of middleware.
// The first middleware is the outermost.
type Builder struct {
	middleware []Middleware
}

// NewBuilder creates a Builder.
func NewBuilder(mw ...Middleware) *Builder {
	return &Builder{middleware: mw}
}

func (b *Builder) wrap(h Handler) Handler {
	for i := len(b.middleware) - 1; i >= 0; i-- {
		h = b.middleware[i](h)
	}
	return h
}

// Query builds a public query. The builder's middleware wraps the resolver.
func Query[In, Out any](b *Builder, r Resolver[In, Out]) *Procedure {
	return &Procedure{kind: KindQuery, handler: b.wrap(leaf(r))}
}

// Mutation builds a public mutation.
func Mutation[In, Out any](b *Builder, r Resolver[In, Out]) *Procedure {
	return &Procedure{kind: KindMutation, handler: b.wrap(leaf(r))}
}

// ProtectedQuery builds a query that requires a session. The builder's
// middleware wraps RequireSession, which wraps the resolver.
func ProtectedQuery[In, Out any](b *Builder, r AuthedResolver[In, Out]) *Procedure {
	return &Procedure{kind: KindQuery, protected: true, handler: b.wrap(RequireSession(authedLeaf(r)))}
}

// ProtectedMutation builds a mutation that requires a session.
func ProtectedMutation[In, Out any](b *Builder, r AuthedResolver[In, Out]) *Procedure {
	return &Procedure{kind: KindMutation, protected: true, handler: b.wrap(RequireSession(authedLeaf(r)))}
}

func leaf[In, Out any](r Resolver[In, Out]) Handler {
	return func(ctx context.Context, rc *Context, call Call) (any, error) {
		in, err := decodeInput[In](call.Input)
		if err != nil {
			return nil, err
		}
		return r(ctx, rc, in)
	}
}

func authedLeaf[In, Out any](r AuthedResolver[In, Out]) AuthedHandler {
	return func(ctx context.Context, ac *AuthedContext, call Call) (any, error) {
		in, err := decodeInput[In](call.Input)
		if err != nil {
			return nil, err
		}
		return r(ctx, ac, in)
	}
}

// decodeInput validates input before the resolver can touch the database.
func decodeInput[In any](raw json.RawMessage) (In, error) {
	var zero In
	if _, ok := any(zero).(NoInput); ok {
		return zero, nil
	}
	return validation.DecodeInput[In](raw)
}
