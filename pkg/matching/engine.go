// Package matching pairs Source-1 rows with Source-2 rows on the mapping's match key
// and classifies every row as matched, exception or unmatched.
package matching

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Outcome is the classification of a single row
type Outcome string

const (
	OutcomeMatched   Outcome = "matched"
	OutcomeException Outcome = "exception"
	OutcomeUnmatched Outcome = "unmatched"
)

// Pair is a Source-1 row linked to exactly one Source-2 row
type Pair struct {
	Source1 models.Row
	Source2 models.Row
}

// Stats counts rows by classification. MatchedRows counts both rows of every clean pair.
type Stats struct {
	Source1Rows   int `json:"source1_rows"`
	Source2Rows   int `json:"source2_rows"`
	MatchedRows   int `json:"matched_rows"`
	ExceptionRows int `json:"exception_rows"`
	UnmatchedRows int `json:"unmatched_rows"`
}

func (s Stats) Total() int {
	return s.Source1Rows + s.Source2Rows
}

// Result is the output of one matching pass. Exceptions carry no identifiers;
// the caller assigns them when persisting.
type Result struct {
	// Matched pairs agree on every comparison field
	Matched []Pair
	// Mismatched pairs were linked but disagree on at least one comparison field
	Mismatched []Pair
	// Unmatched holds Source-1 rows in read order, then unclaimed Source-2 rows
	Unmatched  []models.Row
	Exceptions []models.ExceptionRecord
	// Outcomes holds the classification of every row by row id
	Outcomes map[string]Outcome
	Stats    Stats
}

type Config struct {
	// CancelCheckInterval is how many rows are read between context checks
	CancelCheckInterval int
}

func DefaultConfig() Config {
	return Config{CancelCheckInterval: 1000}
}

type Engine struct {
	logger ectologger.Logger
	config Config
}

func NewEngine(logger ectologger.Logger, config Config) *Engine {
	if config.CancelCheckInterval <= 0 {
		config.CancelCheckInterval = DefaultConfig().CancelCheckInterval
	}
	return &Engine{logger: logger, config: config}
}

// bucket holds the Source-2 rows sharing one canonical key
type bucket struct {
	rows []int
}

type index struct {
	rows    []models.Row
	claimed []bool
	// owner is the Source-1 row holding a single-candidate claim; shared marks
	// claims a later Source-1 row also asked for
	owner  map[int]models.Row
	shared map[int]bool
	// rows with a blank key are kept but never indexed, so they end up unmatched
	byKey map[string]*bucket
}

// Match indexes Source 2 by its canonical key, then streams Source 1 against the index.
// Source-2 rows no Source-1 row claimed are reported as unmatched at the end, so every
// row of both sources ends up in exactly one classification.
func (e *Engine) Match(ctx context.Context, mapping *models.FieldMapping, source1, source2 RowSource) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.Match")
	defer span.End()

	log := e.logger.WithContext(ctx)
	start := time.Now()

	keys := mapping.KeyPairs()
	if len(keys) == 0 {
		err := ferrors.NewConfigurationError("mapping has no match key")
		tracing.RecordError(span, err)
		return nil, err
	}
	compares := mapping.ComparePairs()

	idx, err := e.buildIndex(ctx, keys, source2)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	result := &Result{
		Outcomes: make(map[string]Outcome, len(idx.rows)),
	}
	result.Stats.Source2Rows = len(idx.rows)

	for n := 0; ; n++ {
		if n%e.config.CancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		row, err := source1.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			tracing.RecordError(span, err)
			return nil, err
		}
		result.Stats.Source1Rows++
		e.classify(result, idx, row, keys, compares)
	}

	for i, row := range idx.rows {
		if idx.claimed[i] {
			continue
		}
		result.unmatched(row, keys, models.SideSource2)
	}
	result.dropShared(idx)

	log.WithFields(map[string]any{
		"source1_rows":   result.Stats.Source1Rows,
		"source2_rows":   result.Stats.Source2Rows,
		"matched_rows":   result.Stats.MatchedRows,
		"exception_rows": result.Stats.ExceptionRows,
		"unmatched_rows": result.Stats.UnmatchedRows,
		"exceptions":     len(result.Exceptions),
		"duration_ms":    time.Since(start).Milliseconds(),
	}).Debug("Matched sources")

	return result, nil
}

func (e *Engine) buildIndex(ctx context.Context, keys []models.FieldPair, source2 RowSource) (*index, error) {
	idx := &index{byKey: map[string]*bucket{}, owner: map[int]models.Row{}, shared: map[int]bool{}}
	for n := 0; ; n++ {
		if n%e.config.CancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		row, err := source2.Next(ctx)
		if err == io.EOF {
			return idx, nil
		}
		if err != nil {
			return nil, err
		}

		pos := len(idx.rows)
		idx.rows = append(idx.rows, row)
		idx.claimed = append(idx.claimed, false)

		key, ok := canonicalKey(row, keys, models.SideSource2)
		if !ok {
			continue
		}
		b, exists := idx.byKey[key]
		if !exists {
			b = &bucket{}
			idx.byKey[key] = b
		}
		b.rows = append(b.rows, pos)
	}
}

func (e *Engine) classify(result *Result, idx *index, row models.Row, keys, compares []models.FieldPair) {
	key, ok := canonicalKey(row, keys, models.SideSource1)
	if !ok {
		result.unmatched(row, keys, models.SideSource1)
		return
	}

	b := idx.byKey[key]
	switch {
	case b == nil:
		result.unmatched(row, keys, models.SideSource1)

	case len(b.rows) > 1:
		result.set(row, OutcomeException)
		for _, pos := range b.rows {
			candidate := idx.rows[pos]
			if !idx.claimed[pos] {
				idx.claimed[pos] = true
				result.set(candidate, OutcomeException)
			}
			result.Exceptions = append(result.Exceptions, duplicateKey(row, candidate, keys))
		}

	case idx.claimed[b.rows[0]]:
		// a second Source-1 row with the same key: neither Source-1 row owns the candidate
		pos := b.rows[0]
		candidate := idx.rows[pos]
		if first, ok := idx.owner[pos]; ok && !idx.shared[pos] {
			idx.shared[pos] = true
			result.set(first, OutcomeException)
			result.set(candidate, OutcomeException)
			result.Exceptions = append(result.Exceptions, duplicateKey(first, candidate, keys))
		}
		result.set(row, OutcomeException)
		result.Exceptions = append(result.Exceptions, duplicateKey(row, candidate, keys))

	default:
		pos := b.rows[0]
		idx.claimed[pos] = true
		idx.owner[pos] = row
		candidate := idx.rows[pos]
		pair := Pair{Source1: row, Source2: candidate}

		mismatches := compareFields(row, candidate, compares)
		if len(mismatches) == 0 {
			result.Matched = append(result.Matched, pair)
			result.set(row, OutcomeMatched)
			result.set(candidate, OutcomeMatched)
			return
		}
		result.Mismatched = append(result.Mismatched, pair)
		result.set(row, OutcomeException)
		result.set(candidate, OutcomeException)
		result.Exceptions = append(result.Exceptions, mismatches...)
	}
}

func duplicateKey(row, candidate models.Row, keys []models.FieldPair) models.ExceptionRecord {
	return models.ExceptionRecord{
		RecordID:        row.ID,
		RelatedRecordID: candidate.ID,
		Kind:            models.ExceptionKindDuplicateKey,
		Rule:            models.RuleDuplicateMatchKey,
		Field:           keyFields(keys),
		Source1Value:    displayKey(row, keys, models.SideSource1),
		Source2Value:    displayKey(candidate, keys, models.SideSource2),
	}
}

// dropShared removes pairs whose Source-2 row was claimed by more than one Source-1
// row, along with their field mismatches; the duplicate key exceptions replace them.
func (r *Result) dropShared(idx *index) {
	if len(idx.shared) == 0 {
		return
	}
	dropped := make(map[string]bool, len(idx.shared))
	for pos := range idx.shared {
		dropped[idx.owner[pos].ID] = true
	}

	keep := func(pairs []Pair) []Pair {
		out := pairs[:0]
		for _, p := range pairs {
			if !dropped[p.Source1.ID] {
				out = append(out, p)
			}
		}
		return out
	}
	r.Matched = keep(r.Matched)
	r.Mismatched = keep(r.Mismatched)

	exceptions := r.Exceptions[:0]
	for _, exc := range r.Exceptions {
		if exc.Kind == models.ExceptionKindMismatch && dropped[exc.RecordID] {
			continue
		}
		exceptions = append(exceptions, exc)
	}
	r.Exceptions = exceptions
}

// compareFields returns one mismatch exception per disagreeing comparison field
func compareFields(row1, row2 models.Row, compares []models.FieldPair) []models.ExceptionRecord {
	var out []models.ExceptionRecord
	for _, pair := range compares {
		raw1, raw2 := row1.Values[pair.Field1], row2.Values[pair.Field2]
		if agree(pair, raw1, raw2) {
			continue
		}
		out = append(out, models.ExceptionRecord{
			RecordID:        row1.ID,
			RelatedRecordID: row2.ID,
			Kind:            models.ExceptionKindMismatch,
			Rule:            models.RuleFieldMismatch + pair.Field1,
			Field:           pair.Field1,
			Source1Value:    raw1,
			Source2Value:    raw2,
		})
	}
	return out
}

func (r *Result) unmatched(row models.Row, keys []models.FieldPair, side models.Side) {
	r.set(row, OutcomeUnmatched)
	r.Unmatched = append(r.Unmatched, row)
	exc := models.ExceptionRecord{
		RecordID: row.ID,
		Kind:     models.ExceptionKindUnmatched,
		Rule:     models.RuleUnmatchedRecord,
		Field:    keyFields(keys),
	}
	if side == models.SideSource2 {
		exc.Source2Value = displayKey(row, keys, models.SideSource2)
	} else {
		exc.Source1Value = displayKey(row, keys, models.SideSource1)
	}
	r.Exceptions = append(r.Exceptions, exc)
}

// set records a row's classification and keeps the counters in step with it
func (r *Result) set(row models.Row, outcome Outcome) {
	if prev, ok := r.Outcomes[row.ID]; ok {
		r.Stats.add(prev, -1)
	}
	r.Outcomes[row.ID] = outcome
	r.Stats.add(outcome, 1)
}

// Reclassify moves a row to another outcome after matching, such as a matched pair
// that fails validation.
func (r *Result) Reclassify(rowID string, outcome Outcome) {
	prev, ok := r.Outcomes[rowID]
	if !ok || prev == outcome {
		return
	}
	r.Stats.add(prev, -1)
	r.Outcomes[rowID] = outcome
	r.Stats.add(outcome, 1)
}

func (s *Stats) add(outcome Outcome, n int) {
	switch outcome {
	case OutcomeMatched:
		s.MatchedRows += n
	case OutcomeException:
		s.ExceptionRows += n
	case OutcomeUnmatched:
		s.UnmatchedRows += n
	}
}

func keyFields(keys []models.FieldPair) string {
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.Field1
	}
	return strings.Join(names, ",")
}
