package schema

import (
	"context"
	"io"
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/tracing"

	ferrors "github.com/Ramsey-B/fern/pkg/errors"
)

const (
	// DefaultSampleSize is how many data rows are inspected to type each column
	DefaultSampleSize = 100
	// cancelCheckInterval is how often long scans poll the context
	cancelCheckInterval = 1000
)

// sniffDateFormats are tried in order when typing a column
var sniffDateFormats = []string{
	"yyyy-mm-dd",
	"rfc3339",
	"datetime",
	"mm/dd/yyyy",
	"dd/mm/yyyy",
	"yyyy/mm/dd",
	"dd-mon-yyyy",
	"dd.mm.yyyy",
}

// Schema is the inferred layout of a source file
type Schema struct {
	Format      models.FileFormat
	Columns     []string
	ColumnTypes map[string]models.ColumnType
	RowCount    int
}

// Infer reads the header and streams the remaining rows to count them, typing each
// column from the first sample rows. A file with no columns or no data rows fails.
func Infer(ctx context.Context, r io.Reader, name string, opts Options) (*Schema, error) {
	ctx, span := tracing.StartSpan(ctx, "schema.Infer")
	defer span.End()

	reader, err := Open(r, name, opts)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	defer reader.Close()

	columns := reader.Columns()
	sampler := newTypeSampler(columns, DefaultSampleSize)

	count := 0
	for {
		if count%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		record, _, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if se, ok := err.(*ferrors.SchemaError); ok {
				se.AddFile(name)
			}
			tracing.RecordError(span, err)
			return nil, err
		}
		sampler.observe(record)
		count++
	}

	if count == 0 {
		err := ferrors.NewSchemaError("file has a header row but no data rows").AddFile(name)
		tracing.RecordError(span, err)
		return nil, err
	}

	return &Schema{
		Format:      reader.Format(),
		Columns:     columns,
		ColumnTypes: sampler.types(),
		RowCount:    count,
	}, nil
}

type typeSampler struct {
	columns  []string
	limit    int
	seen     int
	nonBlank []int
	numeric  []int
	dates    []int
}

func newTypeSampler(columns []string, limit int) *typeSampler {
	return &typeSampler{
		columns:  columns,
		limit:    limit,
		nonBlank: make([]int, len(columns)),
		numeric:  make([]int, len(columns)),
		dates:    make([]int, len(columns)),
	}
}

func (s *typeSampler) observe(record []string) {
	if s.seen >= s.limit {
		return
	}
	s.seen++
	for i := range s.columns {
		if i >= len(record) {
			break
		}
		value := strings.TrimSpace(record[i])
		if value == "" {
			continue
		}
		s.nonBlank[i]++
		if _, err := normalizers.ParseDecimal(value); err == nil {
			s.numeric[i]++
			continue
		}
		if looksLikeDate(value) {
			s.dates[i]++
		}
	}
}

// types picks number or date only when every non-blank sampled value agrees
func (s *typeSampler) types() map[string]models.ColumnType {
	out := make(map[string]models.ColumnType, len(s.columns))
	for i, col := range s.columns {
		switch {
		case s.nonBlank[i] == 0:
			out[col] = models.ColumnTypeString
		case s.numeric[i] == s.nonBlank[i]:
			out[col] = models.ColumnTypeNumber
		case s.dates[i] == s.nonBlank[i]:
			out[col] = models.ColumnTypeDate
		default:
			out[col] = models.ColumnTypeString
		}
	}
	return out
}

func looksLikeDate(value string) bool {
	for _, format := range sniffDateFormats {
		if _, err := normalizers.ParseDate(value, format); err == nil {
			return true
		}
	}
	return false
}
