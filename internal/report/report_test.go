package report

import (
	"bytes"
	"testing"

	"github.com/gsoxley/OpenMDAO/internal/metrics"
	"github.com/gsoxley/OpenMDAO/internal/nodetree"
	"github.com/gsoxley/OpenMDAO/internal/rawtrace"
	"github.com/gsoxley/OpenMDAO/internal/testutil"
)

func TestTotals(t *testing.T) {
	rows := []metrics.FunctionTotal{
		{Name: "Comp#0.Compute", Count: 40, Time: 0.5, Percent: 25},
		{Name: "Solver#0.Solve", Count: 10, Time: 1.5, Percent: 75},
		{Name: "$total", Count: 1, Time: 2, Percent: 100},
	}

	var table bytes.Buffer
	if err := Totals(&table, rows); err != nil {
		t.Fatalf("we should be able to render the table: %v", err)
	}

	want := "\nTotal     Total           Function\n" +
		"Calls     Time (s)    %   Name\n" +
		"    40    0.500000  25.00 Comp#0.Compute\n" +
		"    10    1.500000  75.00 Solver#0.Solve\n" +
		"     1    2.000000 100.00 $total\n"
	if diff := testutil.Diff(table.String(), want); diff != "" {
		t.Fatalf("table mismatch: %+v\n", diff)
	}
}

func TestTotalsUndefinedPercent(t *testing.T) {
	rows := []metrics.FunctionTotal{
		{Name: "$total", Count: 1, Time: 0, Percent: nodetree.Undefined()},
	}

	var table bytes.Buffer
	if err := Totals(&table, rows); err != nil {
		t.Fatalf("we should be able to render the table: %v", err)
	}

	want := "\nTotal     Total           Function\n" +
		"Calls     Time (s)    %   Name\n" +
		"     1    0.000000     NA $total\n"
	if diff := testutil.Diff(table.String(), want); diff != "" {
		t.Fatalf("an undefined percentage should render as NA: %+v\n", diff)
	}
}

func TestDump(t *testing.T) {
	trace := &rawtrace.Trace{
		Records: []rawtrace.Record{
			{Path: "$total@Solver#0.Solve", Count: 2, Time: 0.25},
			{Path: "$total", Count: 1, Time: 3},
		},
	}

	var out bytes.Buffer
	if err := Dump(&out, trace); err != nil {
		t.Fatalf("we should be able to dump the trace: %v", err)
	}

	want := "$total@Solver#0.Solve 2 0.25\n" +
		"$total 1 3\n"
	if diff := testutil.Diff(out.String(), want); diff != "" {
		t.Fatalf("dump mismatch: %+v\n", diff)
	}
}
