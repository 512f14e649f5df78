// Package celengine evaluates CEL eligibility expressions attached to reward
// rules. Expressions see the purchase attributes as top-level variables and
// must return a boolean.
package celengine

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

var envCache sync.Map

// EnvFor builds (or reuses) a CEL environment declaring every attribute key
// as a typed top-level variable.
func EnvFor(attrs map[string]interface{}) (*cel.Env, error) {
	key := cacheKey(attrs)
	if v, ok := envCache.Load(key); ok {
		return v.(*cel.Env), nil
	}

	var variables []cel.EnvOption
	for name, val := range attrs {
		switch val.(type) {
		case string:
			variables = append(variables, cel.Variable(name, cel.StringType))
		case int, int64, uint64, float64:
			variables = append(variables, cel.Variable(name, cel.IntType))
		case bool:
			variables = append(variables, cel.Variable(name, cel.BoolType))
		default:
			variables = append(variables, cel.Variable(name, cel.DynType))
		}
	}

	env, err := cel.NewEnv(variables...)
	if err == nil {
		envCache.Store(key, env)
	}

	return env, err
}

// ValidateExpression compiles expr without running it.
func ValidateExpression(env *cel.Env, expr string) error {
	_, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return issues.Err()
	}
	return nil
}

// Evaluate compiles and runs expr against attrs.
func Evaluate(env *cel.Env, expr string, attrs map[string]interface{}) (bool, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return false, issues.Err()
	}

	prg, err := env.Program(ast)
	if err != nil {
		return false, err
	}

	// CEL has no native uint64 variable kind in this declaration scheme;
	// purchase amounts are passed as int64.
	args := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		if u, ok := v.(uint64); ok {
			args[k] = int64(u)
			continue
		}
		args[k] = v
	}

	out, _, err := prg.Eval(args)
	if err != nil {
		return false, err
	}

	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expected bool from expression, got %T (%v)", out.Value(), out.Value())
	}

	return b, nil
}

func cacheKey(attrs map[string]interface{}) string {
	// Declarations only depend on the key set and value kinds, and the
	// engine is always fed the same attribute shape, so a fixed key is
	// enough to share one environment.
	if len(attrs) == 0 {
		return "empty"
	}
	return fmt.Sprintf("attrs:%d", len(attrs))
}
