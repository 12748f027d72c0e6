package models

import "time"

type RuleType string

const (
	RuleTypeMinMax   RuleType = "min-max"
	RuleTypeRatio    RuleType = "ratio"
	RuleTypeEquality RuleType = "equality"
	RuleTypePresence RuleType = "presence"
	RuleTypeCustom   RuleType = "custom"
)

func (t RuleType) Valid() bool {
	switch t {
	case RuleTypeMinMax, RuleTypeRatio, RuleTypeEquality, RuleTypePresence, RuleTypeCustom:
		return true
	}
	return false
}

// ValidationRule is the stored, user-editable form of a rule. The validation engine
// parses it into a typed rule before evaluation.
type ValidationRule struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	WorkspaceID string    `json:"workspace_id"`
	Name        string    `json:"name" yaml:"name"`
	Description *string   `json:"description,omitempty" yaml:"description"`
	Type        RuleType  `json:"type" yaml:"type"`
	Field1      string    `json:"field1" yaml:"field1"`
	Field2      *string   `json:"field2,omitempty" yaml:"field2"`
	Condition   *string   `json:"condition,omitempty" yaml:"condition"`
	Value       *string   `json:"value,omitempty" yaml:"value"`
	Enabled     bool      `json:"enabled" yaml:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type CreateValidationRuleRequest struct {
	Name        string   `json:"name" validate:"required,max=200"`
	Description *string  `json:"description,omitempty"`
	Type        RuleType `json:"type" validate:"required,oneof=min-max ratio equality presence custom"`
	Field1      string   `json:"field1"`
	Field2      *string  `json:"field2,omitempty"`
	Condition   *string  `json:"condition,omitempty"`
	Value       *string  `json:"value,omitempty"`
	Enabled     *bool    `json:"enabled,omitempty"`
}

type UpdateValidationRuleRequest struct {
	Name        *string   `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string   `json:"description,omitempty"`
	Type        *RuleType `json:"type,omitempty" validate:"omitempty,oneof=min-max ratio equality presence custom"`
	Field1      *string   `json:"field1,omitempty"`
	Field2      *string   `json:"field2,omitempty"`
	Condition   *string   `json:"condition,omitempty"`
	Value       *string   `json:"value,omitempty"`
	Enabled     *bool     `json:"enabled,omitempty"`
}

// ValidationResult is the outcome of one rule against one record
type ValidationResult struct {
	ReconciliationID string `json:"reconciliation_id,omitempty"`
	RuleID           string `json:"rule_id"`
	RuleName         string `json:"rule_name"`
	RecordID         string `json:"record_id"`
	Passed           bool   `json:"passed"`
	Field1           string `json:"field1,omitempty"`
	Field2           string `json:"field2,omitempty"`
	Value1           string `json:"value1,omitempty"`
	Value2           string `json:"value2,omitempty"`
	ExpectedValue    string `json:"expected_value,omitempty"`
	Message          string `json:"message,omitempty"`
}
