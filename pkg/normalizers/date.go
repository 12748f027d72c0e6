package normalizers

import (
	"fmt"
	"strings"
	"time"
)

// CanonicalDateLayout is the layout canonical dates are rendered in
const CanonicalDateLayout = "2006-01-02"

var formatAliases = map[string]string{
	"iso8601":   time.RFC3339,
	"rfc3339":   time.RFC3339,
	"rfc822":    time.RFC822,
	"rfc1123":   time.RFC1123,
	"date":      "2006-01-02",
	"datetime":  "2006-01-02 15:04:05",
	"timestamp": "2006-01-02T15:04:05Z07:00",
}

// patternTokens translate spreadsheet style patterns such as dd/mm/yyyy; longer tokens first
var patternTokens = []struct{ token, layout string }{
	{"yyyy", "2006"},
	{"yy", "06"},
	{"mon", "Jan"},
	{"mm", "01"},
	{"dd", "02"},
	{"hh", "15"},
	{"mi", "04"},
	{"ss", "05"},
}

// ResolveDateFormat turns an alias or a dd/mm/yyyy style pattern into a Go layout.
// Anything else is assumed to already be a Go layout.
func ResolveDateFormat(format string) string {
	orig := strings.TrimSpace(format)
	lower := strings.ToLower(orig)
	if alias, ok := formatAliases[lower]; ok {
		return alias
	}
	if !strings.Contains(lower, "yy") {
		return format
	}

	var b strings.Builder
	for i := 0; i < len(lower); {
		matched := false
		for _, t := range patternTokens {
			if strings.HasPrefix(lower[i:], t.token) {
				b.WriteString(t.layout)
				i += len(t.token)
				matched = true
				break
			}
		}
		if !matched {
			if len(orig) == len(lower) {
				b.WriteByte(orig[i])
			} else {
				b.WriteByte(lower[i])
			}
			i++
		}
	}
	return b.String()
}

// ParseDate parses raw with a declared format
func ParseDate(raw, format string) (time.Time, error) {
	if strings.TrimSpace(format) == "" {
		return time.Time{}, fmt.Errorf("no date format declared")
	}
	layout := ResolveDateFormat(format)
	t, err := time.Parse(layout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%q does not match date format %q", raw, format)
	}
	return t, nil
}

// CanonicalDate renders a date as yyyy-mm-dd, or RFC3339 in UTC when it carries a time of day.
func CanonicalDate(raw, format string) (string, error) {
	t, err := ParseDate(raw, format)
	if err != nil {
		return "", err
	}
	t = t.UTC()
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format(CanonicalDateLayout), nil
	}
	return t.Format(time.RFC3339), nil
}
