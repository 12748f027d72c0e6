package matching

import (
	"context"
	"io"

	"github.com/Ramsey-B/fern/pkg/models"
)

// RowSource yields rows one at a time and returns io.EOF when drained
type RowSource interface {
	Next(ctx context.Context) (models.Row, error)
}

// SliceSource serves rows that are already in memory
type SliceSource struct {
	rows []models.Row
	pos  int
}

func NewSliceSource(rows []models.Row) *SliceSource {
	return &SliceSource{rows: rows}
}

func (s *SliceSource) Next(ctx context.Context) (models.Row, error) {
	if err := ctx.Err(); err != nil {
		return models.Row{}, err
	}
	if s.pos >= len(s.rows) {
		return models.Row{}, io.EOF
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}
