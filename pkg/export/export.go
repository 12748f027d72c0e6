// Package export renders run exceptions as an .xlsx workbook for download.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/Ramsey-B/fern/pkg/models"
)

const (
	ContentType    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	summarySheet   = "Summary"
	exceptionSheet = "Exceptions"
)

var exceptionHeadings = []any{
	"Exception ID", "Record ID", "Related Record ID", "Kind", "Rule", "Field",
	"Source 1 Value", "Source 2 Value", "Status", "Notes", "Resolved By", "Resolved At",
}

// Filename is the download name of a run's workbook
func Filename(rec *models.ReconciliationRecord) string {
	return fmt.Sprintf("reconciliation-%s-%s.xlsx", rec.ExecutedAt.Format("20060102-150405"), shortID(rec.ID))
}

// Exceptions writes a workbook with a run summary sheet and one row per exception
func Exceptions(w io.Writer, rec *models.ReconciliationRecord, exceptions []models.ExceptionRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return err
	}
	if err := writeSummary(f, rec); err != nil {
		return err
	}

	if _, err := f.NewSheet(exceptionSheet); err != nil {
		return err
	}
	if err := writeExceptions(f, exceptions); err != nil {
		return err
	}

	return f.Write(w)
}

func writeSummary(f *excelize.File, rec *models.ReconciliationRecord) error {
	completed := ""
	if rec.CompletedAt != nil {
		completed = rec.CompletedAt.Format("2006-01-02 15:04:05")
	}
	rows := [][]any{
		{"Reconciliation", rec.ID},
		{"Workspace", rec.WorkspaceID},
		{"Status", string(rec.Status)},
		{"Executed At", rec.ExecutedAt.Format("2006-01-02 15:04:05")},
		{"Completed At", completed},
		{"Total Records", rec.TotalRecords},
		{"Matched Records", rec.MatchedRecords},
		{"Exception Records", rec.ExceptionRecords},
		{"Unmatched Records", rec.UnmatchedRecords},
		{"Exceptions", rec.ExceptionCount},
		{"Validation Failures", rec.ValidationFailures},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return err
		}
	}
	return f.SetColWidth(summarySheet, "A", "A", 22)
}

func writeExceptions(f *excelize.File, exceptions []models.ExceptionRecord) error {
	sw, err := f.NewStreamWriter(exceptionSheet)
	if err != nil {
		return err
	}

	if err := sw.SetRow("A1", exceptionHeadings); err != nil {
		return err
	}
	for i, exc := range exceptions {
		resolvedAt := ""
		if exc.ResolvedAt != nil {
			resolvedAt = exc.ResolvedAt.Format("2006-01-02 15:04:05")
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			exc.ID, exc.RecordID, exc.RelatedRecordID, string(exc.Kind), exc.Rule, exc.Field,
			exc.Source1Value, exc.Source2Value, string(exc.Status), deref(exc.Notes), deref(exc.ResolvedBy), resolvedAt,
		}
		if err := sw.SetRow(cell, row); err != nil {
			return err
		}
	}
	return sw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
