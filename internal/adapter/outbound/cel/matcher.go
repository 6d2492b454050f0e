// Package cel compiles CEL expressions that select which requests a rate
// limit tier applies to.
package cel

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"

	"github.com/voltigdev/voltig-turbo/internal/domain/ratelimit"
)

// maxExpressionLength is the maximum allowed length for CEL expressions.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit.
const maxCostBudget = 10_000

// maxNestingDepth is the maximum allowed parenthesis/bracket nesting depth.
const maxNestingDepth = 20

// evalTimeout is the maximum time allowed for a single CEL evaluation.
// Matchers run on every request, so this is far tighter than a policy engine's.
const evalTimeout = 50 * time.Millisecond

// interruptCheckFreq is how often (in comprehension iterations) context cancellation is checked.
const interruptCheckFreq = 100

// NewRequestEnvironment creates the CEL environment for tier matchers. It
// declares one variable, request, a map with string keys path, method and
// ip, plus the string extensions and a glob(pattern, value) function.
func NewRequestEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),

		cel.Variable("request", cel.MapType(cel.StringType, cel.StringType)),

		// glob: shell-style matching, e.g. glob("/api/auth/*", request.path)
		cel.Function("glob",
			cel.Overload("glob_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(pattern, value ref.Val) ref.Val {
					p, ok1 := pattern.Value().(string)
					v, ok2 := value.Value().(string)
					if !ok1 || !ok2 {
						return types.Bool(false)
					}
					matched, _ := path.Match(p, v)
					return types.Bool(matched)
				}),
			),
		),
	)
}

// Compiler compiles tier match expressions.
type Compiler struct {
	env *cel.Env
}

// NewCompiler creates a Compiler with the request environment.
func NewCompiler() (*Compiler, error) {
	env, err := NewRequestEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create request environment: %w", err)
	}
	return &Compiler{env: env}, nil
}

// Compile validates expr and returns a Matcher for it.
func (c *Compiler) Compile(expr string) (*Matcher, error) {
	if err := validateExpression(expr); err != nil {
		return nil, err
	}

	ast, issues := c.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression must return bool, got %s", ast.OutputType())
	}

	prg, err := c.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}

	return &Matcher{expr: expr, prg: prg}, nil
}

// validateExpression enforces length and nesting limits before compiling.
func validateExpression(expr string) error {
	if expr == "" {
		return errors.New("expression is empty")
	}
	if len(expr) > maxExpressionLength {
		return fmt.Errorf("expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}

	var depth, maxDepth int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxNestingDepth {
		return fmt.Errorf("expression nesting too deep: %d levels (max %d)", maxDepth, maxNestingDepth)
	}
	return nil
}

// Matcher is a compiled tier match expression.
type Matcher struct {
	expr string
	prg  cel.Program
}

// String returns the source expression.
func (m *Matcher) String() string {
	return m.expr
}

// Matches evaluates the expression against req.
func (m *Matcher) Matches(req ratelimit.RequestInfo) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	result, _, err := m.prg.ContextEval(ctx, map[string]any{
		"request": map[string]string{
			"path":   req.Path,
			"method": req.Method,
			"ip":     req.IP,
		},
	})
	if err != nil {
		return false, fmt.Errorf("evaluation failed: %w", err)
	}

	matched, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression did not return a boolean, got %T", result.Value())
	}
	return matched, nil
}

// Compile-time interface verification.
var _ ratelimit.Matcher = (*Matcher)(nil)
