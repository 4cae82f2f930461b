package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/julienschmidt/httprouter"

	"github.com/gsoxley/OpenMDAO/internal/aggregate"
	"github.com/gsoxley/OpenMDAO/internal/errorutil"
	"github.com/gsoxley/OpenMDAO/internal/httputil"
	"github.com/gsoxley/OpenMDAO/internal/icicle"
	"github.com/gsoxley/OpenMDAO/internal/metrics"
	"github.com/gsoxley/OpenMDAO/internal/rawtrace"
	"github.com/gsoxley/OpenMDAO/internal/storageutil"
)

// TotalsResponse is the payload of the run totals endpoint.
type TotalsResponse struct {
	Totals []metrics.FunctionTotal `json:"totals"`
}

// mergeRun aggregates every trace collected for a run into one call
// tree. Traces are read straight from the runs bucket, so the merge
// always reflects what was collected so far.
func (e *environment) mergeRun(ctx context.Context, runID string) (*aggregate.Result, error) {
	s := sentry.StartSpan(ctx, "bucket.list")
	s.Description = "List the traces of the run"
	names, err := e.runsBucket.List(ctx, runID+"/")
	s.Finish()
	if err != nil {
		return nil, err
	}

	sources := make([]rawtrace.Source, 0, len(names))
	for _, name := range names {
		name := name
		sources = append(sources, rawtrace.Opener(name, func(ctx context.Context) (io.ReadCloser, error) {
			data, err := storageutil.DecompressedRead(ctx, e.runsBucket, name)
			if err != nil {
				return nil, err
			}
			return io.NopCloser(bytes.NewReader(data)), nil
		}))
	}

	s = sentry.StartSpan(ctx, "aggregation")
	s.Description = "Merge the traces into a call tree"
	defer s.Finish()
	return aggregate.Merge(ctx, sources)
}

func (e *environment) getRunTree(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)
	ps := httprouter.ParamsFromContext(ctx)
	runID := ps.ByName("run_id")

	if hub != nil {
		hub.Scope().SetTag("run_id", runID)
	}

	res, err := e.mergeRun(ctx, runID)
	if err != nil {
		if errors.Is(err, errorutil.ErrNoResults) {
			w.WriteHeader(http.StatusNotFound)
		} else {
			if hub != nil {
				hub.CaptureException(err)
			}
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	s := sentry.StartSpan(ctx, "transform")
	s.Description = "Lift exclusive self times into leaves"
	err = icicle.Transform(res.Tree)
	s.Finish()
	if err != nil {
		if hub != nil {
			hub.CaptureException(err)
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	s = sentry.StartSpan(ctx, "json.marshal")
	defer s.Finish()

	b, err := icicle.Output(res.Tree)
	if err != nil {
		if hub != nil {
			hub.CaptureException(err)
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}

func (e *environment) getRunTotals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)
	ps := httprouter.ParamsFromContext(ctx)
	runID := ps.ByName("run_id")

	if hub != nil {
		hub.Scope().SetTag("run_id", runID)
	}

	res, err := e.mergeRun(ctx, runID)
	if err != nil {
		if errors.Is(err, errorutil.ErrNoResults) {
			w.WriteHeader(http.StatusNotFound)
		} else {
			if hub != nil {
				hub.CaptureException(err)
			}
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	s := sentry.StartSpan(ctx, "json.marshal")
	defer s.Finish()

	b, err := json.Marshal(TotalsResponse{
		Totals: res.Totals.Rows(),
	})
	if err != nil {
		if hub != nil {
			hub.CaptureException(err)
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}

// getRunRaw serves one collected trace file back as the plain text the
// profiler wrote, mostly for debugging a suspicious merge.
func (e *environment) getRunRaw(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)
	ps := httprouter.ParamsFromContext(ctx)
	runID := ps.ByName("run_id")

	params, logger, ok := httputil.GetRequiredQueryParameters(w, r, "name")
	if !ok {
		return
	}
	logger = logger.With().Str("run_id", runID).Logger()

	if hub != nil {
		hub.Scope().SetTags(params)
		hub.Scope().SetTag("run_id", runID)
	}

	s := sentry.StartSpan(ctx, "bucket.read")
	s.Description = "Read the raw trace"
	data, err := storageutil.DecompressedRead(ctx, e.runsBucket, runID+"/"+params["name"])
	s.Finish()
	if err != nil {
		if errors.Is(err, storageutil.ErrObjectNotFound) {
			w.WriteHeader(http.StatusNotFound)
		} else {
			if hub != nil {
				hub.CaptureException(err)
			}
			logger.Err(err).Msg("trace cannot be read from the bucket")
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(data)
}

// getRunView renders the interactive icicle page for a run.
func (e *environment) getRunView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)
	ps := httprouter.ParamsFromContext(ctx)
	runID := ps.ByName("run_id")

	if hub != nil {
		hub.Scope().SetTag("run_id", runID)
	}

	res, err := e.mergeRun(ctx, runID)
	if err != nil {
		if errors.Is(err, errorutil.ErrNoResults) {
			w.WriteHeader(http.StatusNotFound)
		} else {
			if hub != nil {
				hub.CaptureException(err)
			}
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	s := sentry.StartSpan(ctx, "transform")
	s.Description = "Lift exclusive self times into leaves"
	err = icicle.Transform(res.Tree)
	s.Finish()
	if err != nil {
		if hub != nil {
			hub.CaptureException(err)
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	callGraph, err := icicle.Output(res.Tree)
	if err != nil {
		if hub != nil {
			hub.CaptureException(err)
		}
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := icicle.RenderHTML(w, callGraph, r.URL.Query().Get("title")); err != nil {
		// The response is already partially written, only report.
		if hub != nil {
			hub.CaptureException(err)
		}
	}
}
