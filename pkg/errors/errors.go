// Package errors defines the typed failures the reconciliation engine reports to callers.
// Each carries the offending field, record or rule and converts to an HTTP error whose
// meta holds that detail.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
)

// SchemaError reports a malformed or empty source file
type SchemaError struct {
	File    string
	Line    int
	Message string
}

func NewSchemaError(msg string) *SchemaError {
	return &SchemaError{Message: msg}
}

func NewSchemaErrorf(format string, args ...any) *SchemaError {
	return &SchemaError{Message: fmt.Sprintf(format, args...)}
}

func (e *SchemaError) AddFile(file string) *SchemaError {
	e.File = file
	return e
}

func (e *SchemaError) AddLine(line int) *SchemaError {
	e.Line = line
	return e
}

func (e *SchemaError) Error() string {
	var where []string
	if e.File != "" {
		where = append(where, fmt.Sprintf("file '%s'", e.File))
	}
	if e.Line > 0 {
		where = append(where, fmt.Sprintf("line %d", e.Line))
	}
	if len(where) == 0 {
		return "schema error: " + e.Message
	}
	return "schema error: " + strings.Join(where, " ") + ": " + e.Message
}

func (e *SchemaError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusUnprocessableEntity, e.Error()).
		AddMetaValue("kind", "SchemaError").
		AddMetaValue("file", e.File).
		AddMetaValue("line", e.Line)
}

func IsSchemaError(err error) bool {
	var target *SchemaError
	return stderrors.As(err, &target)
}

// MappingConflict reports a Source-2 field already claimed by another Source-1 field
type MappingConflict struct {
	Field1         string
	Field2         string
	ExistingField1 string
}

func NewMappingConflict(field1, field2, existingField1 string) *MappingConflict {
	return &MappingConflict{Field1: field1, Field2: field2, ExistingField1: existingField1}
}

func (e *MappingConflict) Error() string {
	return fmt.Sprintf("mapping conflict: '%s' is already mapped from '%s', cannot map it from '%s' without override",
		e.Field2, e.ExistingField1, e.Field1)
}

func (e *MappingConflict) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusConflict, e.Error()).
		AddMetaValue("kind", "MappingConflict").
		AddMetaValue("field1", e.Field1).
		AddMetaValue("field2", e.Field2).
		AddMetaValue("existing_field1", e.ExistingField1)
}

func IsMappingConflict(err error) bool {
	var target *MappingConflict
	return stderrors.As(err, &target)
}

// MappingProblem is one invalid reference found while validating a mapping
type MappingProblem struct {
	Field   string `json:"field"`
	Side    string `json:"side,omitempty"`
	Message string `json:"message"`
}

func (p MappingProblem) Error() string {
	if p.Side == "" {
		return fmt.Sprintf("field '%s': %s", p.Field, p.Message)
	}
	return fmt.Sprintf("%s field '%s': %s", p.Side, p.Field, p.Message)
}

// ConfigurationError reports a missing mapping or one that references unknown columns
type ConfigurationError struct {
	Message  string
	Problems []MappingProblem
}

func NewConfigurationError(msg string, problems ...MappingProblem) *ConfigurationError {
	return &ConfigurationError{Message: msg, Problems: problems}
}

func (e *ConfigurationError) Error() string {
	if len(e.Problems) == 0 {
		return "configuration error: " + e.Message
	}
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Error()
	}
	return "configuration error: " + e.Message + ": " + strings.Join(msgs, "; ")
}

func (e *ConfigurationError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusUnprocessableEntity, e.Error()).
		AddMetaValue("kind", "ConfigurationError").
		AddMetaValue("problems", e.Problems)
}

func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return stderrors.As(err, &target)
}

// ResolutionError reports an illegal exception transition
type ResolutionError struct {
	ExceptionID string
	Status      string
	Message     string
	blankNotes  bool
}

func NewResolutionError(exceptionID, status, msg string) *ResolutionError {
	return &ResolutionError{ExceptionID: exceptionID, Status: status, Message: msg}
}

// NewBlankNotesError reports a transition attempted without notes
func NewBlankNotesError(exceptionID, status string) *ResolutionError {
	return &ResolutionError{ExceptionID: exceptionID, Status: status, Message: "notes are required", blankNotes: true}
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot transition exception '%s' (status %s): %s", e.ExceptionID, e.Status, e.Message)
}

func (e *ResolutionError) ToHTTPError() *httperror.HTTPError {
	code := http.StatusConflict
	if e.blankNotes {
		code = http.StatusBadRequest
	}
	return httperror.NewHTTPError(code, e.Error()).
		AddMetaValue("kind", "ResolutionError").
		AddMetaValue("exception_id", e.ExceptionID).
		AddMetaValue("status", e.Status)
}

func IsResolutionError(err error) bool {
	var target *ResolutionError
	return stderrors.As(err, &target)
}

// ValidationRuleError reports a rule whose configuration cannot be evaluated
type ValidationRuleError struct {
	RuleID   string
	RuleName string
	Field    string
	Message  string
}

func NewValidationRuleError(msg string) *ValidationRuleError {
	return &ValidationRuleError{Message: msg}
}

func NewValidationRuleErrorf(format string, args ...any) *ValidationRuleError {
	return &ValidationRuleError{Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationRuleError) AddRule(id, name string) *ValidationRuleError {
	e.RuleID = id
	e.RuleName = name
	return e
}

func (e *ValidationRuleError) AddField(field string) *ValidationRuleError {
	e.Field = field
	return e
}

func (e *ValidationRuleError) Error() string {
	var path []string
	if e.RuleName != "" {
		path = append(path, fmt.Sprintf("rule '%s'", e.RuleName))
	} else if e.RuleID != "" {
		path = append(path, fmt.Sprintf("rule '%s'", e.RuleID))
	}
	if e.Field != "" {
		path = append(path, fmt.Sprintf("field '%s'", e.Field))
	}
	if len(path) == 0 {
		return "invalid validation rule: " + e.Message
	}
	return "invalid validation rule: " + strings.Join(path, " -> ") + ": " + e.Message
}

func (e *ValidationRuleError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusBadRequest, e.Error()).
		AddMetaValue("kind", "ValidationRuleError").
		AddMetaValue("rule_id", e.RuleID).
		AddMetaValue("field", e.Field)
}

func IsValidationRuleError(err error) bool {
	var target *ValidationRuleError
	return stderrors.As(err, &target)
}

// NotFoundError reports a missing entity in a store
type NotFoundError struct {
	Entity string
	ID     string
}

func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusNotFound, e.Error()).
		AddMetaValue("kind", "NotFound").
		AddMetaValue("entity", e.Entity).
		AddMetaValue("id", e.ID)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return stderrors.As(err, &target)
}

// ConcurrencyError reports a compare-and-set that lost to a concurrent update
type ConcurrencyError struct {
	Entity   string
	ID       string
	Expected string
	Actual   string
}

func NewConcurrencyError(entity, id, expected, actual string) *ConcurrencyError {
	return &ConcurrencyError{Entity: entity, ID: id, Expected: expected, Actual: actual}
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("%s %s was modified concurrently: expected %s, found %s", e.Entity, e.ID, e.Expected, e.Actual)
}

func (e *ConcurrencyError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusConflict, e.Error()).
		AddMetaValue("kind", "ConcurrencyError").
		AddMetaValue("id", e.ID).
		AddMetaValue("expected", e.Expected).
		AddMetaValue("actual", e.Actual)
}

func IsConcurrencyError(err error) bool {
	var target *ConcurrencyError
	return stderrors.As(err, &target)
}

// RunInProgressError reports that a workspace already has an in-flight run
type RunInProgressError struct {
	WorkspaceID string
}

func NewRunInProgressError(workspaceID string) *RunInProgressError {
	return &RunInProgressError{WorkspaceID: workspaceID}
}

func (e *RunInProgressError) Error() string {
	return fmt.Sprintf("a reconciliation is already running for workspace %s", e.WorkspaceID)
}

func (e *RunInProgressError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusConflict, e.Error()).
		AddMetaValue("kind", "RunInProgress").
		AddMetaValue("workspace_id", e.WorkspaceID)
}

func IsRunInProgress(err error) bool {
	var target *RunInProgressError
	return stderrors.As(err, &target)
}
