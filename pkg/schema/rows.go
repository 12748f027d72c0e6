package schema

import (
	"context"
	"fmt"
	"io"

	"github.com/Ramsey-B/fern/pkg/models"
)

// RowIterator turns a RowReader into models.Row values keyed by column name
type RowIterator struct {
	reader RowReader
	side   models.Side
	count  int
}

func NewRowIterator(reader RowReader, side models.Side) *RowIterator {
	return &RowIterator{reader: reader, side: side}
}

// Columns returns the header of the underlying file
func (it *RowIterator) Columns() []string {
	return it.reader.Columns()
}

// Next returns the next row or io.EOF. Cells missing from a short row read as "".
func (it *RowIterator) Next(ctx context.Context) (models.Row, error) {
	if it.count%cancelCheckInterval == 0 {
		if err := ctx.Err(); err != nil {
			return models.Row{}, err
		}
	}

	record, line, err := it.reader.Next()
	if err != nil {
		return models.Row{}, err
	}
	it.count++

	columns := it.reader.Columns()
	values := make(map[string]string, len(columns))
	for i, col := range columns {
		if i < len(record) {
			values[col] = record[i]
		} else {
			values[col] = ""
		}
	}

	return models.Row{
		ID:     RowID(it.side, line),
		Side:   it.side,
		Line:   line,
		Values: values,
	}, nil
}

func (it *RowIterator) Close() error {
	return it.reader.Close()
}

// RowID is the stable identifier of a data row within a run
func RowID(side models.Side, line int) string {
	return fmt.Sprintf("%s:%d", side, line)
}

// ReadAll drains an iterator; used for small files and tests
func ReadAll(ctx context.Context, it *RowIterator) ([]models.Row, error) {
	var rows []models.Row
	for {
		row, err := it.Next(ctx)
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}
