// Package report renders the flat text artifacts of a merged profile.
package report

import (
	"fmt"
	"io"

	"github.com/gsoxley/OpenMDAO/internal/metrics"
	"github.com/gsoxley/OpenMDAO/internal/rawtrace"
)

// Totals writes the per function totals table, least expensive
// function first. Undefined percentages render as NA cells.
func Totals(w io.Writer, rows []metrics.FunctionTotal) error {
	if _, err := fmt.Fprint(w, "\nTotal     Total           Function\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprint(w, "Calls     Time (s)    %   Name\n"); err != nil {
		return err
	}
	for _, row := range rows {
		var err error
		if row.Percent.IsUndefined() {
			_, err = fmt.Fprintf(w, "%6d %11f %6s %s\n", row.Count, row.Time, "NA", row.Name)
		} else {
			_, err = fmt.Fprintf(w, "%6d %11f %6.2f %s\n", row.Count, row.Time, float64(row.Percent), row.Name)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Dump writes the records of one raw trace in the order they were read.
func Dump(w io.Writer, trace *rawtrace.Trace) error {
	for _, record := range trace.Records {
		if _, err := fmt.Fprintln(w, record.Path, record.Count, record.Time); err != nil {
			return err
		}
	}
	return nil
}
