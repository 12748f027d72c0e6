package models

import "time"

// Side identifies which party a dataset came from
type Side string

const (
	SideSource1 Side = "source1"
	SideSource2 Side = "source2"
)

func (s Side) Valid() bool {
	return s == SideSource1 || s == SideSource2
}

type FileFormat string

const (
	FileFormatCSV   FileFormat = "csv"
	FileFormatExcel FileFormat = "excel"
)

// ColumnType is the type inferred for a column from a sample of rows
type ColumnType string

const (
	ColumnTypeString ColumnType = "string"
	ColumnTypeNumber ColumnType = "number"
	ColumnTypeDate   ColumnType = "date"
)

// SourceFile describes one ingested dataset. It is never modified; a re-upload
// supersedes it with a new SourceFile for the same side.
type SourceFile struct {
	ID          string                `json:"id"`
	TenantID    string                `json:"tenant_id"`
	WorkspaceID string                `json:"workspace_id"`
	Side        Side                  `json:"side"`
	Name        string                `json:"name"`
	Format      FileFormat            `json:"format"`
	Columns     []string              `json:"columns"`
	ColumnTypes map[string]ColumnType `json:"column_types,omitempty"`
	RowCount    int                   `json:"row_count"`
	BlobKey     string                `json:"blob_key,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
}

// HasColumn reports whether the file declares the column
func (f *SourceFile) HasColumn(name string) bool {
	for _, c := range f.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Row is one data row of a source file. Line is the 1-based data row number
// (the header row is not counted).
type Row struct {
	ID     string            `json:"id"`
	Side   Side              `json:"side"`
	Line   int               `json:"line"`
	Values map[string]string `json:"values"`
}
