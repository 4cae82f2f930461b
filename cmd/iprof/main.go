package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gsoxley/OpenMDAO/internal/aggregate"
	"github.com/gsoxley/OpenMDAO/internal/icicle"
	"github.com/gsoxley/OpenMDAO/internal/logutil"
	"github.com/gsoxley/OpenMDAO/internal/rawtrace"
	"github.com/gsoxley/OpenMDAO/internal/report"
)

type flags struct {
	Verbose bool `kong:"short='v',help='Log what the tool is doing.'"`

	Totals struct {
		Outfile string   `kong:"short='o',help='File receiving the totals table, - for stdout.',default='-'"`
		Traces  []string `kong:"required,arg,name='trace',help='Raw trace files, object URLs or collector URLs.'"`
	} `cmd:"" help:"Render the per function totals table."`

	Dump struct {
		Trace string `kong:"required,arg,name='trace',help='Raw trace file, object URL or collector URL.'"`
	} `cmd:"" help:"Print the records of one raw trace."`

	View struct {
		Outfile string   `kong:"short='o',help='File receiving the viewer page.',default='profile_icicle.html'"`
		Title   string   `kong:"short='t',help='Title displayed above the profiling view.'"`
		Traces  []string `kong:"required,arg,name='trace',help='Raw trace files, object URLs or collector URLs.'"`
	} `cmd:"" help:"Render the call graph viewer page."`

	Export struct {
		Project string   `kong:"required,help='Google Cloud project owning the dataset.'"`
		Dataset string   `kong:"required,help='BigQuery dataset receiving the rows.'"`
		Table   string   `kong:"required,help='BigQuery table receiving the rows.'"`
		Run     string   `kong:"required,help='Run identifier stamped on every exported row.'"`
		Traces  []string `kong:"required,arg,name='trace',help='Raw trace files, object URLs or collector URLs.'"`
	} `cmd:"" help:"Insert the per function totals into BigQuery."`
}

func main() {
	flags := flags{}
	kongCtx := kong.Parse(&flags)

	level := zerolog.InfoLevel
	if flags.Verbose {
		level = zerolog.DebugLevel
	}
	logutil.ConfigureCLILogger(level)

	ctx := context.Background()
	var err error
	switch kongCtx.Command() {
	case "totals <trace>":
		err = runTotals(ctx, &flags)
	case "dump <trace>":
		err = runDump(ctx, &flags, os.Stdout)
	case "view <trace>":
		err = runView(ctx, &flags)
	case "export <trace>":
		err = runExport(ctx, &flags)
	default:
		err = fmt.Errorf("unknown command %q", kongCtx.Command())
	}
	if err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

func runTotals(ctx context.Context, flags *flags) error {
	result, err := aggregate.Merge(ctx, sourcesFromArgs(flags.Totals.Traces))
	if err != nil {
		return err
	}

	out, closeOut, err := openOutfile(flags.Totals.Outfile)
	if err != nil {
		return err
	}
	defer closeOut()
	return report.Totals(out, result.Totals.Rows())
}

func runDump(ctx context.Context, flags *flags, out io.Writer) error {
	source := sourceFromArg(flags.Dump.Trace)
	r, err := source.Open(ctx)
	if err != nil {
		return fmt.Errorf("opening %s: %w", source.Name(), err)
	}
	defer r.Close()

	trace, err := rawtrace.Decode(r)
	if err != nil {
		return fmt.Errorf("reading %s: %w", source.Name(), err)
	}
	return report.Dump(out, trace)
}

func runView(ctx context.Context, flags *flags) error {
	result, err := aggregate.Merge(ctx, sourcesFromArgs(flags.View.Traces))
	if err != nil {
		return err
	}
	if err := icicle.Transform(result.Tree); err != nil {
		return err
	}
	callGraph, err := icicle.Output(result.Tree)
	if err != nil {
		return err
	}

	out, closeOut, err := openOutfile(flags.View.Outfile)
	if err != nil {
		return err
	}
	defer closeOut()
	return icicle.RenderHTML(out, callGraph, flags.View.Title)
}

// openOutfile opens the file an artifact goes to, with - meaning
// stdout. The returned closer is a no-op for stdout.
func openOutfile(path string) (io.Writer, func(), error) {
	if path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return f, func() {
		if err := f.Close(); err != nil {
			log.Err(err).Str("path", path).Msg("couldn't close the output file")
		}
	}, nil
}
