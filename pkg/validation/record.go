package validation

import (
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Record is what rules are evaluated against: a matched pair of rows plus the mapping
// that links their columns. For an unpaired row only one of Source1 and Source2 is set.
type Record struct {
	ID        string
	RelatedID string
	Source1   map[string]string
	Source2   map[string]string
	Mapping   *models.FieldMapping
}

// fieldRef names a column, optionally pinned to one side with a "source1." or
// "source2." prefix.
type fieldRef struct {
	Name string
	Side models.Side
}

func parseFieldRef(raw string) fieldRef {
	raw = strings.TrimSpace(raw)
	for _, side := range []models.Side{models.SideSource1, models.SideSource2} {
		if prefix := string(side) + "."; strings.HasPrefix(raw, prefix) {
			return fieldRef{Name: strings.TrimPrefix(raw, prefix), Side: side}
		}
	}
	return fieldRef{Name: raw}
}

func (f fieldRef) String() string {
	if f.Side == "" {
		return f.Name
	}
	return string(f.Side) + "." + f.Name
}

// lookup reads the field from its pinned side, else from the preferred side, else the other
func (r Record) lookup(f fieldRef, preferred models.Side) (string, models.Side, bool) {
	sides := []models.Side{preferred, other(preferred)}
	if f.Side != "" {
		sides = []models.Side{f.Side}
	}
	for _, side := range sides {
		values := r.Source1
		if side == models.SideSource2 {
			values = r.Source2
		}
		if v, ok := values[f.Name]; ok {
			return v, side, true
		}
	}
	return "", preferred, false
}

// counterpart returns the Source-2 column mapped from a Source-1 column, or the
// same name when the column is not mapped.
func (r Record) counterpart(field1 string) (string, models.FieldPair) {
	if r.Mapping != nil {
		if pair, ok := r.Mapping.Pair(field1); ok {
			return pair.Field2, pair
		}
	}
	return field1, models.FieldPair{Field1: field1, Field2: field1}
}

func other(side models.Side) models.Side {
	if side == models.SideSource2 {
		return models.SideSource1
	}
	return models.SideSource2
}
