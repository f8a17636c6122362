package validation

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// ConditionEvaluator compiles and caches CEL expressions used by
// auto-approve levels. Evaluation is fail-closed: any compile or runtime
// error counts as "condition not met".
type ConditionEvaluator struct {
	env   *cel.Env
	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewConditionEvaluator creates an evaluator whose expressions see the
// request facts as `facts` and the subject id as `subject`.
func NewConditionEvaluator() (*ConditionEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("facts", cel.DynType),
		cel.Variable("subject", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("validation: cel environment: %w", err)
	}
	return &ConditionEvaluator{env: env, cache: make(map[string]cel.Program)}, nil
}

func (e *ConditionEvaluator) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.cache[expr]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("validation: compile %q: %w", expr, issues.Err())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("validation: program %q: %w", expr, err)
	}

	e.mu.Lock()
	e.cache[expr] = prg
	e.mu.Unlock()
	return prg, nil
}

// Holds evaluates expr against the facts and reports whether it is true.
func (e *ConditionEvaluator) Holds(expr, subjectID string, facts map[string]any) (bool, error) {
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}
	if facts == nil {
		facts = map[string]any{}
	}
	out, _, err := prg.Eval(map[string]any{"facts": facts, "subject": subjectID})
	if err != nil {
		return false, fmt.Errorf("validation: eval %q: %w", expr, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("validation: expression %q is not boolean", expr)
	}
	return b, nil
}
