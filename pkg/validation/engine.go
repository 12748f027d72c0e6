// Package validation parses stored validation rules into typed rules and evaluates
// them against matched records.
package validation

import (
	"context"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/shopspring/decimal"

	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type Config struct {
	// RatioTolerance is the relative tolerance of ratio rules; 0.0001 is 0.01%
	RatioTolerance decimal.Decimal
}

func DefaultConfig() Config {
	return Config{RatioTolerance: decimal.RequireFromString("0.0001")}
}

type Engine struct {
	logger   ectologger.Logger
	registry *Registry
	config   Config
}

func NewEngine(logger ectologger.Logger, registry *Registry, config Config) *Engine {
	return &Engine{logger: logger, registry: registry, config: config}
}

func (e *Engine) Registry() *Registry {
	return e.registry
}

// Parse turns a stored rule into its typed variant, failing with ValidationRuleError
// when its parameters cannot be evaluated.
func (e *Engine) Parse(def models.ValidationRule) (Rule, error) {
	invalid := func(format string, args ...any) error {
		return ferrors.NewValidationRuleErrorf(format, args...).AddRule(def.ID, def.Name).AddField(def.Field1)
	}

	rule := &def
	b := base{def: rule}
	field1 := parseFieldRef(def.Field1)
	value := strings.TrimSpace(deref(def.Value))
	var field2 *fieldRef
	if f := strings.TrimSpace(deref(def.Field2)); f != "" {
		ref := parseFieldRef(f)
		field2 = &ref
	}

	if def.Type != models.RuleTypeCustom && field1.Name == "" {
		return nil, invalid("field1 is required for %s rules", def.Type)
	}

	switch def.Type {
	case models.RuleTypeMinMax:
		lo, hi, err := parseRange(value)
		if err != nil {
			return nil, invalid("%v", err)
		}
		return &MinMaxRule{base: b, Field: field1, Min: lo, Max: hi, Range: value}, nil

	case models.RuleTypeRatio:
		if field2 == nil {
			return nil, invalid("ratio rules need field2")
		}
		expected, err := normalizers.ParseDecimal(value)
		if err != nil {
			return nil, invalid("ratio value '%s' is not a number", value)
		}
		return &RatioRule{base: b, Numerator: field1, Denominator: *field2, Expected: expected, Tolerance: e.config.RatioTolerance}, nil

	case models.RuleTypeEquality:
		return &EqualityRule{base: b, Left: field1, Right: field2}, nil

	case models.RuleTypePresence:
		return &PresenceRule{base: b, Field: field1}, nil

	case models.RuleTypeCustom:
		name := strings.TrimSpace(deref(def.Condition))
		if name == "" {
			return nil, invalid("custom rules need a condition naming a formula")
		}
		formula, ok := e.registry.Get(name)
		if !ok {
			return nil, invalid("unknown custom formula '%s'", name)
		}
		if formula.CheckParams != nil {
			if err := formula.CheckParams(value); err != nil {
				return nil, invalid("formula '%s' rejected its parameters: %v", name, err)
			}
		}
		return &CustomRule{base: b, FormulaName: name, Params: value, formula: formula}, nil

	default:
		return nil, invalid("unknown rule type '%s'", def.Type)
	}
}

// Compile parses the enabled rules of a snapshot, failing on the first malformed rule
func (e *Engine) Compile(defs []models.ValidationRule) ([]Rule, error) {
	rules := make([]Rule, 0, len(defs))
	for _, def := range defs {
		if !def.Enabled {
			continue
		}
		rule, err := e.Parse(def)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// Summary is the outcome of evaluating a rule set over a batch of records
type Summary struct {
	Evaluated int
	Failures  []models.ValidationResult
}

// Evaluate runs every rule against every record. Failing results are returned in
// record order, then rule order.
func (e *Engine) Evaluate(ctx context.Context, rules []Rule, records []Record) (*Summary, error) {
	ctx, span := tracing.StartSpan(ctx, "validation.Engine.Evaluate")
	defer span.End()

	summary := &Summary{Failures: []models.ValidationResult{}}
	for i, rec := range records {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for _, rule := range rules {
			summary.Evaluated++
			if res := rule.Evaluate(rec); !res.Passed {
				summary.Failures = append(summary.Failures, res)
			}
		}
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"rules":       len(rules),
		"records":     len(records),
		"evaluations": summary.Evaluated,
		"failures":    len(summary.Failures),
	}).Debug("Evaluated validation rules")

	return summary, nil
}

// parseRange reads "lo-hi", allowing signed bounds such as "-10--2"
func parseRange(value string) (decimal.Decimal, decimal.Decimal, error) {
	for i := 1; i < len(value)-1; i++ {
		if value[i] != '-' || value[i-1] == '-' || value[i-1] == 'e' || value[i-1] == 'E' {
			continue
		}
		lo, errLo := normalizers.ParseDecimal(value[:i])
		hi, errHi := normalizers.ParseDecimal(value[i+1:])
		if errLo != nil || errHi != nil {
			continue
		}
		if lo.GreaterThan(hi) {
			return lo, hi, fmt.Errorf("range '%s' has min greater than max", value)
		}
		return lo, hi, nil
	}
	return decimal.Zero, decimal.Zero, fmt.Errorf("range '%s' is not of the form lo-hi", value)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
