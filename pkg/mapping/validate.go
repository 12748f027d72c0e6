package mapping

import (
	"fmt"

	"github.com/Gobusters/ectolinq"

	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// Validate returns every problem with the mapping against the two column sets.
// An empty result means the mapping can drive a run.
func Validate(mapping *models.FieldMapping, columns1, columns2 []string) []ferrors.MappingProblem {
	problems := []ferrors.MappingProblem{}
	if mapping == nil || len(mapping.Pairs) == 0 {
		return append(problems, ferrors.MappingProblem{Message: "mapping has no field pairs"})
	}

	seen1 := map[string]bool{}
	seen2 := map[string]string{}
	keys := 0
	for _, pair := range mapping.Pairs {
		if !ectolinq.Contains(columns1, pair.Field1) {
			problems = append(problems, ferrors.MappingProblem{Field: pair.Field1, Side: string(models.SideSource1), Message: "column does not exist"})
		}
		if !ectolinq.Contains(columns2, pair.Field2) {
			problems = append(problems, ferrors.MappingProblem{Field: pair.Field2, Side: string(models.SideSource2), Message: "column does not exist"})
		}
		if seen1[pair.Field1] {
			problems = append(problems, ferrors.MappingProblem{Field: pair.Field1, Side: string(models.SideSource1), Message: "mapped more than once"})
		}
		seen1[pair.Field1] = true
		if other, ok := seen2[pair.Field2]; ok && other != pair.Field1 {
			problems = append(problems, ferrors.MappingProblem{
				Field:   pair.Field2,
				Side:    string(models.SideSource2),
				Message: fmt.Sprintf("already mapped from '%s'", other),
			})
		}
		seen2[pair.Field2] = pair.Field1

		problems = append(problems, pairProblems(pair)...)
		if pair.EffectiveRole() == models.FieldRoleKey {
			keys++
		}
	}

	if keys == 0 {
		problems = append(problems, ferrors.MappingProblem{Message: "no pair is marked as a match key"})
	}
	return problems
}

func pairProblems(pair models.FieldPair) []ferrors.MappingProblem {
	var problems []ferrors.MappingProblem
	switch pair.EffectiveRole() {
	case models.FieldRoleKey, models.FieldRoleCompare:
	default:
		problems = append(problems, ferrors.MappingProblem{Field: pair.Field1, Message: fmt.Sprintf("unknown role '%s'", pair.Role)})
	}

	for _, name := range pair.Normalizers {
		if _, ok := normalizers.Get(name); !ok {
			problems = append(problems, ferrors.MappingProblem{Field: pair.Field1, Message: fmt.Sprintf("unknown normalizer '%s'", name)})
		}
	}

	switch pair.EffectiveType() {
	case models.FieldTypeString:
	case models.FieldTypeNumber:
		if pair.Tolerance != "" {
			if tol, err := normalizers.ParseDecimal(pair.Tolerance); err != nil || tol.IsNegative() {
				problems = append(problems, ferrors.MappingProblem{Field: pair.Field1, Message: fmt.Sprintf("tolerance '%s' is not a non-negative number", pair.Tolerance)})
			}
		}
	case models.FieldTypeDate:
		if pair.DateFormat1 == "" {
			problems = append(problems, ferrors.MappingProblem{Field: pair.Field1, Side: string(models.SideSource1), Message: "date pair needs a declared date format"})
		}
		if pair.DateFormat2 == "" {
			problems = append(problems, ferrors.MappingProblem{Field: pair.Field2, Side: string(models.SideSource2), Message: "date pair needs a declared date format"})
		}
	default:
		problems = append(problems, ferrors.MappingProblem{Field: pair.Field1, Message: fmt.Sprintf("unknown type '%s'", pair.Type)})
	}
	return problems
}

// Check validates the mapping and folds any problems into a ConfigurationError
func Check(mapping *models.FieldMapping, columns1, columns2 []string) error {
	problems := Validate(mapping, columns1, columns2)
	if len(problems) == 0 {
		return nil
	}
	return ferrors.NewConfigurationError("field mapping is invalid", problems...)
}
