package main

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog/log"

	"github.com/gsoxley/OpenMDAO/internal/aggregate"
	"github.com/gsoxley/OpenMDAO/internal/metrics"
)

// functionTotalRow is one per function totals row as it lands in the
// BigQuery table.
type functionTotalRow struct {
	runID      string
	exportedAt time.Time
	total      metrics.FunctionTotal
}

func (r functionTotalRow) Save() (map[string]bigquery.Value, string, error) {
	row := map[string]bigquery.Value{
		"run_id":      r.runID,
		"function":    r.total.Name,
		"tot_count":   r.total.Count,
		"tot_time":    r.total.Time,
		"exported_at": r.exportedAt,
	}
	// An undefined percentage becomes a NULL cell.
	if r.total.Percent.IsUndefined() {
		row["pct_total"] = nil
	} else {
		row["pct_total"] = float64(r.total.Percent)
	}
	return row, bigquery.NoDedupeID, nil
}

func runExport(ctx context.Context, flags *flags) error {
	result, err := aggregate.Merge(ctx, sourcesFromArgs(flags.Export.Traces))
	if err != nil {
		return err
	}

	client, err := bigquery.NewClient(ctx, flags.Export.Project)
	if err != nil {
		return fmt.Errorf("creating the BigQuery client: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Err(err).Msg("couldn't close the BigQuery client")
		}
	}()

	exportedAt := time.Now().UTC()
	totals := result.Totals.Rows()
	rows := make([]functionTotalRow, 0, len(totals))
	for _, total := range totals {
		rows = append(rows, functionTotalRow{
			runID:      flags.Export.Run,
			exportedAt: exportedAt,
			total:      total,
		})
	}

	inserter := client.Dataset(flags.Export.Dataset).Table(flags.Export.Table).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("inserting %d rows into %s.%s: %w", len(rows), flags.Export.Dataset, flags.Export.Table, err)
	}
	return nil
}
