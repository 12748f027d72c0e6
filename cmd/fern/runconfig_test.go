package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

const runYAML = `
mapping:
  - field1: invoice_id
    field2: reference
    role: key
  - field1: amount
    field2: total
    type: number
    tolerance: "0.01"
rules:
  - name: amount present
    type: presence
    field1: amount
  - name: disabled range
    type: min-max
    field1: amount
    value: "0-100"
    enabled: false
ratio_tolerance: "0.001"
`

func TestParseRunConfig(t *testing.T) {
	cfg, err := parseRunConfig([]byte(runYAML))
	require.NoError(t, err)

	fm := cfg.FieldMapping()
	require.Len(t, fm.Pairs, 2)
	assert.Equal(t, models.FieldRoleKey, fm.Pairs[0].Role)
	assert.Equal(t, models.FieldTypeNumber, fm.Pairs[1].Type)
	assert.Equal(t, "0.01", fm.Pairs[1].Tolerance)

	rules := cfg.ValidationRules()
	require.Len(t, rules, 2)
	assert.Equal(t, "rule-1", rules[0].ID)
	assert.True(t, rules[0].Enabled)
	assert.False(t, rules[1].Enabled)

	require.NotNil(t, cfg.RatioTolerance)
	assert.Equal(t, "0.001", cfg.RatioTolerance.String())
}

func TestParseRunConfigRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"no mapping":   "rules: []\n",
		"bad role":     "mapping:\n  - field1: a\n    field2: b\n    role: primary\n",
		"missing side": "mapping:\n  - field1: a\n",
		"bad rule":     "mapping:\n  - field1: a\n    field2: b\nrules:\n  - name: x\n    type: fuzzy\n",
		"not yaml":     "mapping: [",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parseRunConfig([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReconcileCommand(t *testing.T) {
	dir := t.TempDir()
	file1 := writeFile(t, dir, "bank.csv", "invoice_id,amount\nA1,100\nA2,200\nA3,300\n")
	file2 := writeFile(t, dir, "ledger.csv", "reference,total\nA1,100.00\nA2,205\n")
	config := writeFile(t, dir, "run.yaml", "mapping:\n  - field1: invoice_id\n    field2: reference\n    role: key\n  - field1: amount\n    field2: total\n    type: number\n")

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"reconcile", "--config", config, file1, file2})

	err := cmd.Execute()
	require.ErrorIs(t, err, errExceptionsFound)
	assert.Contains(t, out.String(), `"status": "exception"`)
	assert.Contains(t, out.String(), `"matched_rows": 2`)
	assert.Contains(t, out.String(), `"unmatched_rows": 1`)
}

func TestAutoMatchCommandWritesRunConfig(t *testing.T) {
	dir := t.TempDir()
	file1 := writeFile(t, dir, "a.csv", "invoice_id,amount\nA1,100\n")
	file2 := writeFile(t, dir, "b.csv", "invoice_id,amount\nA1,100\n")

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"automatch", file1, file2})
	require.NoError(t, cmd.Execute())

	cfg, err := parseRunConfig(out.Bytes())
	require.NoError(t, err)
	assert.Len(t, cfg.Mapping, 2)
}
