package expressions

import (
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// NewRecordContext builds the document expressions are evaluated against. Values that
// parse as numbers are exposed as numbers so comparisons such as
// `source1.amount > `100`` behave numerically.
func NewRecordContext(recordID string, source1, source2 map[string]string) map[string]any {
	return map[string]any{
		"record_id": recordID,
		"source1":   typedValues(source1),
		"source2":   typedValues(source2),
	}
}

func typedValues(values map[string]string) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		if d, err := normalizers.ParseDecimal(v); err == nil {
			f, _ := d.Float64()
			out[k] = f
			continue
		}
		out[k] = v
	}
	return out
}
