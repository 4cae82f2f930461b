package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/julienschmidt/httprouter"

	"github.com/gsoxley/OpenMDAO/internal/rawtrace"
	"github.com/gsoxley/OpenMDAO/internal/shipper"
	"github.com/gsoxley/OpenMDAO/internal/storageutil"
	"github.com/gsoxley/OpenMDAO/internal/timeutil"
)

func (e *environment) postTrace(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)
	ps := httprouter.ParamsFromContext(ctx)
	runID := ps.ByName("run_id")
	name := ps.ByName("name")

	suffix, ok := rawtrace.RankSuffix(name)
	if !ok {
		http.Error(w, fmt.Sprintf("expected a <prefix>.<rank> trace name, got %q", name), http.StatusBadRequest)
		return
	}
	rank, _ := strconv.Atoi(suffix[1:])

	s := sentry.StartSpan(ctx, "processing")
	s.Description = "Read HTTP body"
	body, err := io.ReadAll(r.Body)
	s.Finish()
	if err != nil {
		if hub != nil {
			hub.CaptureException(err)
		}
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	s = sentry.StartSpan(ctx, "rawtrace.unmarshal")
	s.Description = "Validate trace records"
	trace, err := rawtrace.Unmarshal(body)
	s.Finish()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if hub != nil {
		hub.Scope().SetContext("Trace metadata", map[string]interface{}{
			"run_id":  runID,
			"name":    name,
			"records": len(trace.Records),
			"size":    len(body),
		})
	}

	s = sentry.StartSpan(ctx, "bucket.write")
	s.Description = "Write trace to the runs bucket"
	err = storageutil.CompressedCopy(ctx, e.runsBucket, runID+"/"+name, bytes.NewReader(body))
	s.Finish()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// This is a transient error, we'll retry
			w.WriteHeader(http.StatusTooManyRequests)
		} else {
			// These errors won't be retried
			if hub != nil {
				hub.CaptureException(err)
			}
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	if e.eventsWriter != nil {
		s = sentry.StartSpan(ctx, "processing")
		s.Description = "Send run event to Kafka"
		message, err := shipper.GenerateKafkaMessage(shipper.RunEvent{
			RunID:     runID,
			TraceName: name,
			Rank:      rank,
			Records:   len(trace.Records),
			Received:  timeutil.Time(time.Now().UTC()),
		})
		if err == nil {
			err = e.eventsWriter.WriteMessages(ctx, message)
		}
		s.Finish()
		if err != nil {
			if hub != nil {
				hub.CaptureException(err)
			}
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}
