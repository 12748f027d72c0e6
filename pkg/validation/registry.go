package validation

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Ramsey-B/fern/pkg/expressions"
)

// FormulaFunc evaluates a custom rule against a record. params is the rule's value.
type FormulaFunc func(rec Record, params string) (passed bool, message string, err error)

// Formula is a named custom check. CheckParams, when set, rejects bad parameters at
// rule save time.
type Formula struct {
	Description string
	Evaluate    FormulaFunc
	CheckParams func(params string) error
}

// Registry maps custom formula names to their implementations
type Registry struct {
	mu       sync.RWMutex
	formulas map[string]Formula
}

// ExpressionFormula is the built-in formula whose params are a JMESPath expression
// evaluated against {record_id, source1, source2}; a truthy result passes.
const ExpressionFormula = "expression"

// NewRegistry returns a registry holding the built-in expression formula
func NewRegistry(evaluator *expressions.Evaluator) *Registry {
	r := &Registry{formulas: map[string]Formula{}}
	r.Register(ExpressionFormula, Formula{
		Description: "JMESPath expression over source1 and source2 values",
		Evaluate: func(rec Record, params string) (bool, string, error) {
			ok, err := evaluator.EvaluateBool(params, expressions.NewRecordContext(rec.ID, rec.Source1, rec.Source2))
			if err != nil {
				return false, "", err
			}
			if !ok {
				return false, fmt.Sprintf("expression %q is false", params), nil
			}
			return true, "", nil
		},
		CheckParams: evaluator.Validate,
	})
	return r
}

// Register adds or replaces a formula
func (r *Registry) Register(name string, formula Formula) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.formulas[name] = formula
}

func (r *Registry) Get(name string) (Formula, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.formulas[name]
	return f, ok
}

// FormulaInfo describes a registered formula
type FormulaInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// List returns the registered formulas sorted by name
func (r *Registry) List() []FormulaInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]FormulaInfo, 0, len(r.formulas))
	for name, f := range r.formulas {
		out = append(out, FormulaInfo{Name: name, Description: f.Description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
