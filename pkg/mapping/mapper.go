// Package mapping proposes, edits and checks the correspondence between Source-1 and
// Source-2 columns.
package mapping

import (
	"context"
	"sort"
	"strings"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"

	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Config tunes auto-matching
type Config struct {
	// Threshold is the score a candidate must exceed to be paired
	Threshold float64
	Synonyms  [][]string
	// KeyTokens mark a column name as an identifier; the first auto-matched pair
	// carrying one becomes the match key.
	KeyTokens []string
}

func DefaultConfig() Config {
	return Config{
		Threshold: 0.5,
		Synonyms:  DefaultSynonyms,
		KeyTokens: []string{"id", "ref", "reference", "number", "no", "invoice", "code", "key"},
	}
}

type Mapper struct {
	logger   ectologger.Logger
	config   Config
	synonyms synonymIndex
}

func NewMapper(logger ectologger.Logger, config Config) *Mapper {
	return &Mapper{
		logger:   logger,
		config:   config,
		synonyms: newSynonymIndex(config.Synonyms),
	}
}

// candidate is a scored (Source-1, Source-2) column pairing above the threshold
type candidate struct {
	i1, i2 int
	score  float64
}

// AutoMatch pairs Source-1 columns with Source-2 columns by descending score, so an
// exact match is never lost to a weaker earlier claim. Ties go to the earlier
// Source-1 column, then the earlier Source-2 column. Each Source-2 column is used at
// most once and pairs are returned in columns1 order.
func (m *Mapper) AutoMatch(ctx context.Context, columns1, columns2 []string) *models.FieldMapping {
	ctx, span := tracing.StartSpan(ctx, "mapping.Mapper.AutoMatch")
	defer span.End()

	first1 := map[string]int{}
	var candidates []candidate
	for i1, c1 := range columns1 {
		if _, dup := first1[c1]; dup {
			continue
		}
		first1[c1] = i1
		for i2, c2 := range columns2 {
			if s := m.score(c1, c2); s > m.config.Threshold {
				candidates = append(candidates, candidate{i1: i1, i2: i2, score: s})
			}
		}
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		ca, cb := candidates[a], candidates[b]
		if ca.score != cb.score {
			return ca.score > cb.score
		}
		if ca.i1 != cb.i1 {
			return ca.i1 < cb.i1
		}
		return ca.i2 < cb.i2
	})

	assigned := make(map[int]int, len(columns1))
	claimed := make(map[string]bool, len(columns2))
	for _, c := range candidates {
		if _, done := assigned[c.i1]; done || claimed[columns2[c.i2]] {
			continue
		}
		assigned[c.i1] = c.i2
		claimed[columns2[c.i2]] = true
	}

	mapping := &models.FieldMapping{Pairs: []models.FieldPair{}}
	for i1, c1 := range columns1 {
		i2, ok := assigned[i1]
		if !ok {
			continue
		}
		mapping.Pairs = append(mapping.Pairs, models.FieldPair{Field1: c1, Field2: columns2[i2], Role: models.FieldRoleCompare})
	}

	m.suggestKey(mapping)

	m.logger.WithContext(ctx).WithFields(map[string]any{
		"columns1": len(columns1),
		"columns2": len(columns2),
		"pairs":    len(mapping.Pairs),
	}).Debug("Auto-matched columns")

	return mapping
}

func (m *Mapper) suggestKey(mapping *models.FieldMapping) {
	for i, pair := range mapping.Pairs {
		for _, t := range tokens(pair.Field1) {
			if ectolinq.Contains(m.config.KeyTokens, t) {
				mapping.Pairs[i].Role = models.FieldRoleKey
				return
			}
		}
	}
}

// ApplyColumnTypes types auto-matched pairs whose columns were both inferred as numbers
func ApplyColumnTypes(mapping *models.FieldMapping, file1, file2 *models.SourceFile) {
	if file1 == nil || file2 == nil {
		return
	}
	for i, pair := range mapping.Pairs {
		if pair.Type != "" {
			continue
		}
		t1, t2 := file1.ColumnTypes[pair.Field1], file2.ColumnTypes[pair.Field2]
		if t1 == models.ColumnTypeNumber && t2 == models.ColumnTypeNumber {
			mapping.Pairs[i].Type = models.FieldTypeNumber
		}
	}
}

// SetMapping inserts or re-points the pair for pair.Field1 and returns the updated copy.
// When pair.Field2 is already claimed by another Source-1 field, strict mode fails with
// MappingConflict and overwrite mode drops the other pair.
func SetMapping(mapping *models.FieldMapping, pair models.FieldPair, mode models.ConflictMode) (*models.FieldMapping, error) {
	out := mapping.Clone()
	if out == nil {
		out = &models.FieldMapping{}
	}
	pair.Field1 = strings.TrimSpace(pair.Field1)
	pair.Field2 = strings.TrimSpace(pair.Field2)

	for _, existing := range out.Pairs {
		if existing.Field2 == pair.Field2 && existing.Field1 != pair.Field1 && mode != models.ConflictModeOverwrite {
			return nil, ferrors.NewMappingConflict(pair.Field1, pair.Field2, existing.Field1)
		}
	}

	pairs := make([]models.FieldPair, 0, len(out.Pairs)+1)
	replaced := false
	for _, existing := range out.Pairs {
		switch {
		case existing.Field1 == pair.Field1:
			pairs = append(pairs, pair)
			replaced = true
		case existing.Field2 == pair.Field2:
			// overwrite mode: the other claimant loses its pair
		default:
			pairs = append(pairs, existing)
		}
	}
	if !replaced {
		pairs = append(pairs, pair)
	}
	out.Pairs = pairs
	return out, nil
}
