package models

import "time"

// FieldRole says how a mapped pair takes part in matching
type FieldRole string

const (
	// FieldRoleKey pairs are concatenated into the match key
	FieldRoleKey FieldRole = "key"
	// FieldRoleCompare pairs are checked for agreement once two rows are paired
	FieldRoleCompare FieldRole = "compare"
)

// FieldType selects the canonicalization applied to a pair's values
type FieldType string

const (
	FieldTypeString FieldType = "string"
	FieldTypeNumber FieldType = "number"
	FieldTypeDate   FieldType = "date"
)

// FieldPair maps a Source-1 column to a Source-2 column
type FieldPair struct {
	Field1 string    `json:"field1" yaml:"field1" validate:"required"`
	Field2 string    `json:"field2" yaml:"field2" validate:"required"`
	Role   FieldRole `json:"role,omitempty" yaml:"role" validate:"omitempty,oneof=key compare"`
	Type   FieldType `json:"type,omitempty" yaml:"type" validate:"omitempty,oneof=string number date"`
	// DateFormat1/2 declare the layout of each side's values for date pairs,
	// either a Go layout or an alias such as "iso8601" or "dd/mm/yyyy".
	DateFormat1 string `json:"date_format1,omitempty" yaml:"date_format1"`
	DateFormat2 string `json:"date_format2,omitempty" yaml:"date_format2"`
	// Tolerance is the largest absolute difference still treated as agreement for number pairs.
	Tolerance string `json:"tolerance,omitempty" yaml:"tolerance"`
	// Normalizers name cleanups applied to both sides before canonicalization, e.g. digits_only
	Normalizers []string `json:"normalizers,omitempty" yaml:"normalizers,omitempty"`
}

// EffectiveRole defaults an unset role to compare
func (p FieldPair) EffectiveRole() FieldRole {
	if p.Role == "" {
		return FieldRoleCompare
	}
	return p.Role
}

// EffectiveType defaults an unset type to string
func (p FieldPair) EffectiveType() FieldType {
	if p.Type == "" {
		return FieldTypeString
	}
	return p.Type
}

// FieldMapping is the ordered set of pairs for a workspace, unique on Field1
type FieldMapping struct {
	ID          string      `json:"id"`
	TenantID    string      `json:"tenant_id"`
	WorkspaceID string      `json:"workspace_id"`
	Pairs       []FieldPair `json:"pairs"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// KeyPairs returns the pairs that make up the match key, in mapping order
func (m *FieldMapping) KeyPairs() []FieldPair {
	return m.pairsWithRole(FieldRoleKey)
}

// ComparePairs returns the mapped pairs that are not part of the match key
func (m *FieldMapping) ComparePairs() []FieldPair {
	return m.pairsWithRole(FieldRoleCompare)
}

func (m *FieldMapping) pairsWithRole(role FieldRole) []FieldPair {
	var out []FieldPair
	for _, p := range m.Pairs {
		if p.EffectiveRole() == role {
			out = append(out, p)
		}
	}
	return out
}

// Pair returns the pair for a Source-1 field
func (m *FieldMapping) Pair(field1 string) (FieldPair, bool) {
	for _, p := range m.Pairs {
		if p.Field1 == field1 {
			return p, true
		}
	}
	return FieldPair{}, false
}

// Clone returns a deep copy so a run can hold a snapshot
func (m *FieldMapping) Clone() *FieldMapping {
	if m == nil {
		return nil
	}
	out := *m
	out.Pairs = make([]FieldPair, len(m.Pairs))
	for i, p := range m.Pairs {
		p.Normalizers = append([]string(nil), p.Normalizers...)
		out.Pairs[i] = p
	}
	return &out
}

// ConflictMode selects how SetMapping treats a Source-2 field already claimed
// by a different Source-1 field.
type ConflictMode string

const (
	ConflictModeStrict    ConflictMode = "strict"
	ConflictModeOverwrite ConflictMode = "overwrite"
)

type SetMappingRequest struct {
	FieldPair
	Override bool `json:"override"`
}

type ReplaceMappingRequest struct {
	Pairs []FieldPair `json:"pairs" validate:"dive"`
}
