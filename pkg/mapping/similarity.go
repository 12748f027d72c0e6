package mapping

import (
	"strings"
	"unicode"
)

// Similarity scores, highest first. Anything at or below the configured threshold
// is never paired.
const (
	ScoreExact        = 1.0
	ScoreNormalized   = 0.95
	ScoreSynonym      = 0.9
	ScoreSubstring    = 0.75
	tokenOverlapScale = 0.7
)

// DefaultSynonyms groups column names that name the same thing in common
// transaction exports. Names are compared in normalized form.
var DefaultSynonyms = [][]string{
	{"item_date", "purchase_date", "transaction_date", "txn_date", "order_date"},
	{"invoice_number", "invoice_no", "invoice_id", "bill_number"},
	{"order_reference", "order_ref", "order_id", "order_number", "reference", "ref"},
	{"amount", "total", "total_amount", "value", "net_amount"},
	{"emi", "installment", "instalment", "emi_amount"},
	{"dealer_code", "merchant_code", "store_code"},
	{"customer_name", "client_name", "buyer_name"},
}

// tokens splits a column name into lowercase words on separators and camelCase humps
func tokens(name string) []string {
	var out []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			out = append(out, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}

	runes := []rune(strings.TrimSpace(name))
	for i, r := range runes {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			flush()
		case unicode.IsUpper(r) && i > 0 && unicode.IsLower(runes[i-1]):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return out
}

// normalize renders a column name as snake_case words
func normalize(name string) string {
	return strings.Join(tokens(name), "_")
}

type synonymIndex map[string]int

func newSynonymIndex(groups [][]string) synonymIndex {
	idx := synonymIndex{}
	for i, group := range groups {
		for _, name := range group {
			idx[normalize(name)] = i + 1
		}
	}
	return idx
}

func (s synonymIndex) same(a, b string) bool {
	ga, gb := s[a], s[b]
	return ga != 0 && ga == gb
}

// score rates how likely two column names refer to the same field.
func (m *Mapper) score(a, b string) float64 {
	if strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b)) {
		return ScoreExact
	}

	na, nb := normalize(a), normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return ScoreNormalized
	}
	if m.synonyms.same(na, nb) {
		return ScoreSynonym
	}
	ta, tb := tokens(a), tokens(b)
	if containsRun(ta, tb) || containsRun(tb, ta) {
		return ScoreSubstring
	}
	return tokenOverlapScale * jaccard(ta, tb)
}

// containsRun reports whether inner appears as a contiguous run of whole tokens in outer
func containsRun(outer, inner []string) bool {
	if len(inner) == 0 || len(inner) > len(outer) {
		return false
	}
	for i := 0; i+len(inner) <= len(outer); i++ {
		match := true
		for j, t := range inner {
			if outer[i+j] != t {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	union := len(set)
	shared := 0
	seen := map[string]bool{}
	for _, t := range b {
		if seen[t] {
			continue
		}
		seen[t] = true
		if set[t] {
			shared++
		} else {
			union++
		}
	}
	return float64(shared) / float64(union)
}
