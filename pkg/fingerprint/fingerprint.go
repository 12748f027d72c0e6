// Package fingerprint hashes exception content so identical discrepancies found by
// different runs can be recognized.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Generate hashes the canonical JSON form of data: keys sorted, nested maps and
// slices canonicalized recursively.
func Generate(data map[string]any) string {
	hash := sha256.Sum256([]byte(canonicalize(data)))
	return hex.EncodeToString(hash[:])
}

// Exception fingerprints the content of an exception, ignoring identity, lifecycle
// and the run it belongs to.
func Exception(workspaceID string, exc models.ExceptionRecord) string {
	return Generate(map[string]any{
		"workspace_id":      workspaceID,
		"kind":              string(exc.Kind),
		"rule":              exc.Rule,
		"rule_id":           exc.RuleID,
		"field":             exc.Field,
		"record_id":         exc.RecordID,
		"related_record_id": exc.RelatedRecordID,
		"source1_value":     exc.Source1Value,
		"source2_value":     exc.Source2Value,
	})
}

func canonicalize(data any) string {
	switch v := data.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var b strings.Builder
		b.WriteString("{")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(",")
			}
			keyJSON, _ := json.Marshal(k)
			b.Write(keyJSON)
			b.WriteString(":")
			b.WriteString(canonicalize(v[k]))
		}
		b.WriteString("}")
		return b.String()
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = canonicalize(item)
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		out, _ := json.Marshal(v)
		return string(out)
	}
}
