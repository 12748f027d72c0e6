// Package normalizers canonicalizes raw cell text so values from two independently
// produced files can be keyed and compared.
package normalizers

import (
	"sort"
	"strings"
	"unicode"
)

// Normalizer rewrites one cell value. A field pair may list several by name; they run
// before the value is canonicalized for its type.
type Normalizer func(string) string

var removeWhitespace = dropRunes(unicode.IsSpace)

var registry = map[string]Normalizer{
	"trim":                Trim,
	"lowercase":           strings.ToLower,
	"uppercase":           strings.ToUpper,
	"casefold":            CaseFold,
	"collapse_whitespace": CollapseWhitespace,
	"remove_whitespace":   removeWhitespace,
	"remove_punctuation":  dropRunes(unicode.IsPunct),
	"digits_only":         keepRunes(unicode.IsDigit),
	"alphanumeric":        keepRunes(func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }),
	"strip_leading_zeros": stripLeadingZeros,
}

// Register adds or replaces a named normalizer. It is not safe to call while runs execute.
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Names lists the registered normalizers in sorted order
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply runs a named normalizer; unknown names leave the value unchanged
func Apply(value, name string) string {
	if fn, ok := registry[name]; ok {
		return fn(value)
	}
	return value
}

func ApplyChain(value string, names ...string) string {
	for _, name := range names {
		value = Apply(value, name)
	}
	return value
}

func Trim(s string) string {
	return strings.TrimSpace(s)
}

// CaseFold trims, collapses inner whitespace and folds case. It is the canonical form
// of string fields.
func CaseFold(s string) string {
	return strings.ToLower(CollapseWhitespace(s))
}

// CollapseWhitespace trims and reduces inner whitespace runs to one space
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// stripLeadingZeros turns "000123" into "123" so zero-padded ids match; "000" becomes "0"
func stripLeadingZeros(s string) string {
	s = strings.TrimSpace(s)
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" && s != "" {
		return "0"
	}
	return trimmed
}

func dropRunes(match func(rune) bool) Normalizer {
	return func(s string) string {
		return strings.Map(func(r rune) rune {
			if match(r) {
				return -1
			}
			return r
		}, s)
	}
}

func keepRunes(match func(rune) bool) Normalizer {
	return dropRunes(func(r rune) bool { return !match(r) })
}
