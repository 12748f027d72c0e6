package database

import (
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
)

// Excluded references the proposed row inside ON CONFLICT DO UPDATE
func Excluded(column string) string {
	return fmt.Sprintf("EXCLUDED.%s", column)
}

// Upsert appends ON CONFLICT (conflict...) DO UPDATE SET col = EXCLUDED.col for each update column
func Upsert(ib *sqlbuilder.InsertBuilder, conflict []string, update ...string) *sqlbuilder.InsertBuilder {
	assignments := make([]string, 0, len(update))
	for _, col := range update {
		assignments = append(assignments, fmt.Sprintf("%s = %s", col, Excluded(col)))
	}
	ib.SQL(fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(conflict, ", "), strings.Join(assignments, ", ")))
	return ib
}

// OnConflictDoNothing appends ON CONFLICT DO NOTHING
func OnConflictDoNothing(ib *sqlbuilder.InsertBuilder) *sqlbuilder.InsertBuilder {
	ib.SQL("ON CONFLICT DO NOTHING")
	return ib
}
