package validation

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// Rule is a parsed, strongly typed validation rule
type Rule interface {
	Definition() *models.ValidationRule
	Evaluate(rec Record) models.ValidationResult
}

type base struct {
	def *models.ValidationRule
}

func (b base) Definition() *models.ValidationRule { return b.def }

func (b base) result(rec Record) models.ValidationResult {
	return models.ValidationResult{
		RuleID:   b.def.ID,
		RuleName: b.def.Name,
		RecordID: rec.ID,
	}
}

// MinMaxRule checks field1 lies in the inclusive range [Min, Max]
type MinMaxRule struct {
	base
	Field    fieldRef
	Min, Max decimal.Decimal
	Range    string
}

func (r *MinMaxRule) Evaluate(rec Record) models.ValidationResult {
	res := r.result(rec)
	res.Field1 = r.Field.String()
	res.ExpectedValue = r.Range

	raw, _, ok := rec.lookup(r.Field, models.SideSource1)
	res.Value1 = raw
	if !ok || strings.TrimSpace(raw) == "" {
		res.Message = fmt.Sprintf("%s is missing", r.Field)
		return res
	}
	v, err := normalizers.ParseDecimal(raw)
	if err != nil {
		res.Message = fmt.Sprintf("%s value '%s' is not a number", r.Field, raw)
		return res
	}
	if v.LessThan(r.Min) || v.GreaterThan(r.Max) {
		res.Message = fmt.Sprintf("%s is outside %s", v.String(), r.Range)
		return res
	}
	res.Passed = true
	return res
}

// RatioRule checks Numerator / Denominator equals Expected within a relative tolerance
type RatioRule struct {
	base
	Numerator   fieldRef
	Denominator fieldRef
	Expected    decimal.Decimal
	Tolerance   decimal.Decimal
}

func (r *RatioRule) Evaluate(rec Record) models.ValidationResult {
	res := r.result(rec)
	res.Field1 = r.Numerator.String()
	res.Field2 = r.Denominator.String()
	res.ExpectedValue = r.Expected.String()

	raw1, _, _ := rec.lookup(r.Numerator, models.SideSource1)
	raw2, _, _ := rec.lookup(r.Denominator, models.SideSource1)
	res.Value1, res.Value2 = raw1, raw2

	num, err := normalizers.ParseDecimal(raw1)
	if err != nil {
		res.Message = fmt.Sprintf("%s value '%s' is not a number", r.Numerator, raw1)
		return res
	}
	den, err := normalizers.ParseDecimal(raw2)
	if err != nil {
		res.Message = fmt.Sprintf("%s value '%s' is not a number", r.Denominator, raw2)
		return res
	}
	if den.IsZero() {
		res.Message = fmt.Sprintf("division by zero: %s is 0", r.Denominator)
		return res
	}

	ratio := num.DivRound(den, 12)
	allowed := r.Expected.Abs().Mul(r.Tolerance)
	if !normalizers.WithinTolerance(ratio, r.Expected, allowed) {
		res.Message = fmt.Sprintf("ratio %s differs from %s", ratio.String(), r.Expected.String())
		return res
	}
	res.Passed = true
	return res
}

// EqualityRule checks Left equals Right after canonicalization. Without an explicit
// right field, Left is compared with its mapped Source-2 counterpart.
type EqualityRule struct {
	base
	Left  fieldRef
	Right *fieldRef
}

func (r *EqualityRule) Evaluate(rec Record) models.ValidationResult {
	res := r.result(rec)

	left, right := r.Left, fieldRef{}
	pair := models.FieldPair{}
	if r.Right != nil {
		right = *r.Right
	} else {
		var name string
		name, pair = rec.counterpart(r.Left.Name)
		left = fieldRef{Name: r.Left.Name, Side: models.SideSource1}
		right = fieldRef{Name: name, Side: models.SideSource2}
	}
	res.Field1, res.Field2 = left.String(), right.String()

	raw1, side1, ok1 := rec.lookup(left, models.SideSource1)
	raw2, side2, ok2 := rec.lookup(right, models.SideSource2)
	res.Value1, res.Value2 = raw1, raw2
	if !ok1 || !ok2 {
		res.Message = "field not found in record"
		return res
	}

	if normalizers.PairValue(raw1, pair, side1) != normalizers.PairValue(raw2, pair, side2) {
		res.Message = fmt.Sprintf("'%s' does not equal '%s'", raw1, raw2)
		return res
	}
	res.Passed = true
	return res
}

// PresenceRule checks a field is non-empty on every side the record has
type PresenceRule struct {
	base
	Field fieldRef
}

func (r *PresenceRule) Evaluate(rec Record) models.ValidationResult {
	res := r.result(rec)

	name1, name2 := r.Field.Name, r.Field.Name
	if r.Field.Side == "" {
		name2, _ = rec.counterpart(r.Field.Name)
	}
	res.Field1, res.Field2 = name1, name2

	var missing []string
	if r.Field.Side != models.SideSource2 && rec.Source1 != nil {
		res.Value1 = rec.Source1[name1]
		if strings.TrimSpace(res.Value1) == "" {
			missing = append(missing, string(models.SideSource1))
		}
	}
	if r.Field.Side != models.SideSource1 && rec.Source2 != nil {
		res.Value2 = rec.Source2[name2]
		if strings.TrimSpace(res.Value2) == "" {
			missing = append(missing, string(models.SideSource2))
		}
	}
	if len(missing) > 0 {
		res.Message = fmt.Sprintf("%s is empty in %s", r.Field.Name, strings.Join(missing, " and "))
		return res
	}
	res.Passed = true
	return res
}

// RowRules returns the rules that also apply to a single unpaired row
func RowRules(rules []Rule) []Rule {
	var out []Rule
	for _, rule := range rules {
		if _, ok := rule.(*PresenceRule); ok {
			out = append(out, rule)
		}
	}
	return out
}

// CustomRule delegates to a registered formula
type CustomRule struct {
	base
	FormulaName string
	Params      string
	formula     Formula
}

func (r *CustomRule) Evaluate(rec Record) models.ValidationResult {
	res := r.result(rec)
	res.Field1 = r.def.Field1
	res.ExpectedValue = r.Params

	passed, msg, err := r.formula.Evaluate(rec, r.Params)
	if err != nil {
		res.Message = fmt.Sprintf("formula '%s' failed: %v", r.FormulaName, err)
		return res
	}
	res.Passed = passed
	res.Message = msg
	return res
}
