// Package expressions evaluates the JMESPath conditions of custom validation rules
// against a reconciled record.
package expressions

import (
	"fmt"
	"sync"

	"github.com/jmespath/go-jmespath"
)

// Evaluator compiles each distinct condition once. Rules are re-evaluated for every
// record of a run, so the cache is shared across goroutines.
type Evaluator struct {
	compiled sync.Map // string -> *jmespath.JMESPath
}

func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Validate reports whether a condition compiles; rules are checked with it when saved
func (e *Evaluator) Validate(expression string) error {
	_, err := e.compile(expression)
	return err
}

func (e *Evaluator) Evaluate(expression string, data any) (any, error) {
	program, err := e.compile(expression)
	if err != nil {
		return nil, err
	}
	result, err := program.Search(data)
	if err != nil {
		return nil, fmt.Errorf("condition %q failed: %w", expression, err)
	}
	return result, nil
}

// EvaluateBool applies JMESPath truthiness to the result: null, false, "" and empty
// arrays or objects are false. Zero is false as well so `source1.delta` reads naturally.
func (e *Evaluator) EvaluateBool(expression string, data any) (bool, error) {
	result, err := e.Evaluate(expression, data)
	if err != nil {
		return false, err
	}
	switch v := result.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		return v != "", nil
	case float64:
		return v != 0, nil
	case []any:
		return len(v) > 0, nil
	case map[string]any:
		return len(v) > 0, nil
	}
	return true, nil
}

func (e *Evaluator) compile(expression string) (*jmespath.JMESPath, error) {
	if cached, ok := e.compiled.Load(expression); ok {
		return cached.(*jmespath.JMESPath), nil
	}
	program, err := jmespath.Compile(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid condition %q: %w", expression, err)
	}
	e.compiled.Store(expression, program)
	return program, nil
}
