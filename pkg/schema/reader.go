// Package schema reads tabular source files as a stream of rows and infers their
// column layout without materializing the file.
package schema

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

// RowReader yields the data rows of a file after its header row
type RowReader interface {
	Columns() []string
	Format() models.FileFormat
	// Next returns the next non-blank data row and its 1-based data line, or io.EOF.
	Next() ([]string, int, error)
	Close() error
}

// Options tunes how a file is opened
type Options struct {
	// Sheet selects an excel sheet by name; the active sheet is used when empty
	Sheet string
	// Delimiter forces the csv delimiter; it is sniffed from the header line when zero
	Delimiter rune
}

var zipMagic = []byte("PK\x03\x04")

// DetectFormat picks csv or excel from the file extension, falling back to content sniffing
func DetectFormat(name string, head []byte) models.FileFormat {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return models.FileFormatExcel
	case ".csv", ".tsv", ".txt":
		return models.FileFormatCSV
	}
	if bytes.HasPrefix(head, zipMagic) {
		return models.FileFormatExcel
	}
	return models.FileFormatCSV
}

// Open returns a RowReader positioned after the header row
func Open(r io.Reader, name string, opts Options) (RowReader, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	head, _ := br.Peek(len(zipMagic))

	switch DetectFormat(name, head) {
	case models.FileFormatExcel:
		return openExcel(br, name, opts)
	default:
		return openCSV(br, name, opts)
	}
}

type csvReader struct {
	reader  *csv.Reader
	columns []string
	line    int
}

func openCSV(br *bufio.Reader, name string, opts Options) (RowReader, error) {
	delimiter := opts.Delimiter
	if delimiter == 0 {
		firstLine, _ := br.Peek(4096)
		delimiter = sniffDelimiter(firstLine)
	}

	reader := csv.NewReader(br)
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = false

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ferrors.NewSchemaError("file is empty").AddFile(name)
	}
	if err != nil {
		return nil, ferrors.NewSchemaErrorf("unreadable header row: %v", err).AddFile(name).AddLine(1)
	}

	columns, schemaErr := normalizeHeader(header)
	if schemaErr != nil {
		return nil, schemaErr.AddFile(name)
	}

	return &csvReader{reader: reader, columns: columns}, nil
}

func (c *csvReader) Columns() []string         { return c.columns }
func (c *csvReader) Format() models.FileFormat { return models.FileFormatCSV }
func (c *csvReader) Close() error              { return nil }

func (c *csvReader) Next() ([]string, int, error) {
	for {
		record, err := c.reader.Read()
		if err == io.EOF {
			return nil, 0, io.EOF
		}
		if err != nil {
			return nil, 0, ferrors.NewSchemaErrorf("malformed row: %v", err).AddLine(c.line + 2)
		}
		if isBlank(record) {
			continue
		}
		c.line++
		return record, c.line, nil
	}
}

// sniffDelimiter picks the most frequent candidate delimiter on the first line
func sniffDelimiter(head []byte) rune {
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		head = head[:i]
	}
	best, bestCount := ',', 0
	for _, candidate := range []rune{',', ';', '\t', '|'} {
		if n := bytes.Count(head, []byte(string(candidate))); n > bestCount {
			best, bestCount = candidate, n
		}
	}
	return best
}

type excelReader struct {
	file    *excelize.File
	rows    *excelize.Rows
	columns []string
	line    int
}

// openExcel loads the workbook index and streams the selected sheet row by row
func openExcel(r io.Reader, name string, opts Options) (RowReader, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, ferrors.NewSchemaErrorf("unreadable spreadsheet: %v", err).AddFile(name)
	}

	sheet := opts.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
	}
	rows, err := f.Rows(sheet)
	if err != nil {
		_ = f.Close()
		return nil, ferrors.NewSchemaErrorf("sheet '%s' cannot be read: %v", sheet, err).AddFile(name)
	}

	x := &excelReader{file: f, rows: rows}
	header, err := x.nextRaw()
	if err != nil {
		_ = x.Close()
		if err == io.EOF {
			return nil, ferrors.NewSchemaError("spreadsheet is empty").AddFile(name)
		}
		return nil, ferrors.NewSchemaErrorf("unreadable header row: %v", err).AddFile(name).AddLine(1)
	}

	columns, schemaErr := normalizeHeader(header)
	if schemaErr != nil {
		_ = x.Close()
		return nil, schemaErr.AddFile(name)
	}
	x.columns = columns
	return x, nil
}

func (x *excelReader) nextRaw() ([]string, error) {
	for x.rows.Next() {
		cols, err := x.rows.Columns()
		if err != nil {
			return nil, err
		}
		if isBlank(cols) {
			continue
		}
		return cols, nil
	}
	if err := x.rows.Error(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (x *excelReader) Columns() []string         { return x.columns }
func (x *excelReader) Format() models.FileFormat { return models.FileFormatExcel }

func (x *excelReader) Next() ([]string, int, error) {
	cols, err := x.nextRaw()
	if err != nil {
		if err == io.EOF {
			return nil, 0, io.EOF
		}
		return nil, 0, ferrors.NewSchemaErrorf("malformed row: %v", err).AddLine(x.line + 2)
	}
	x.line++
	return cols, x.line, nil
}

func (x *excelReader) Close() error {
	if err := x.rows.Close(); err != nil {
		_ = x.file.Close()
		return err
	}
	return x.file.Close()
}

// normalizeHeader trims header cells, names blank ones by position and suffixes
// repeated names (amount, amount_2, ...) so every column is addressable.
func normalizeHeader(header []string) ([]string, *ferrors.SchemaError) {
	// excel rows drop trailing empty cells, csv rows keep them
	last := len(header) - 1
	for last >= 0 && strings.TrimSpace(header[last]) == "" {
		last--
	}
	header = header[:last+1]
	if len(header) == 0 {
		return nil, ferrors.NewSchemaError("header row has no columns").AddLine(1)
	}

	seen := make(map[string]int, len(header))
	columns := make([]string, len(header))
	for i, cell := range header {
		name := strings.TrimSpace(strings.TrimPrefix(cell, "\ufeff"))
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		base := name
		for seen[name] > 0 {
			seen[base]++
			name = fmt.Sprintf("%s_%d", base, seen[base])
		}
		seen[name]++
		columns[i] = name
	}
	return columns, nil
}

func isBlank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
