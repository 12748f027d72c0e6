package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/stretchr/testify/assert"
)

func TestSchemaError(t *testing.T) {
	err := NewSchemaError("file has no data rows").AddFile("bank.csv").AddLine(1)
	assert.Equal(t, "schema error: file 'bank.csv' line 1: file has no data rows", err.Error())

	wrapped := fmt.Errorf("ingest: %w", err)
	assert.True(t, IsSchemaError(wrapped))
	assert.False(t, IsConfigurationError(wrapped))
	assert.Equal(t, http.StatusUnprocessableEntity, httperror.GetStatusCode(err.ToHTTPError()))
}

func TestConfigurationError_CollectsProblems(t *testing.T) {
	err := NewConfigurationError("mapping is invalid",
		MappingProblem{Field: "ref", Side: "source1", Message: "column does not exist"},
		MappingProblem{Field: "amt", Side: "source2", Message: "column does not exist"},
	)

	assert.Contains(t, err.Error(), "source1 field 'ref': column does not exist")
	assert.Contains(t, err.Error(), "source2 field 'amt': column does not exist")
	assert.Len(t, err.ToHTTPError().Meta["problems"], 2)
}

func TestResolutionError_StatusCodes(t *testing.T) {
	blank := NewBlankNotesError("exc-1", "open")
	assert.True(t, IsResolutionError(blank))
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(blank.ToHTTPError()))

	terminal := NewResolutionError("exc-1", "resolved", "exception is already resolved")
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(terminal.ToHTTPError()))
	assert.Equal(t, "exc-1", terminal.ToHTTPError().Meta["exception_id"])
}

func TestValidationRuleError(t *testing.T) {
	err := NewValidationRuleErrorf("value %q is not a numeric range", "five").AddRule("r1", "Rate band").AddField("rate")
	assert.Equal(t, `invalid validation rule: rule 'Rate band' -> field 'rate': value "five" is not a numeric range`, err.Error())
	assert.True(t, IsValidationRuleError(err))
}

func TestMappingConflict(t *testing.T) {
	err := NewMappingConflict("invoice_number", "order_reference", "ref")
	assert.True(t, IsMappingConflict(err))
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err.ToHTTPError()))
	assert.Equal(t, "ref", err.ToHTTPError().Meta["existing_field1"])
}

func TestNotFoundAndConcurrency(t *testing.T) {
	assert.True(t, IsNotFound(NewNotFoundError("exception", "x")))
	assert.True(t, IsConcurrencyError(NewConcurrencyError("exception", "x", "open", "resolved")))
	assert.True(t, IsRunInProgress(NewRunInProgressError("ws")))
	assert.False(t, IsNotFound(fmt.Errorf("plain")))
}
