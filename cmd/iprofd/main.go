package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/CAFxX/httpcompression"
	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/gsoxley/OpenMDAO/internal/httputil"
	"github.com/gsoxley/OpenMDAO/internal/logutil"
	"github.com/gsoxley/OpenMDAO/internal/shipper"
	"github.com/gsoxley/OpenMDAO/internal/storageprovider"
)

// runEventWriter is the part of kafka.Writer the collector uses, so
// tests can swap in a mock.
type runEventWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type environment struct {
	config ServiceConfig

	runsBucket *storageprovider.Blob

	eventsWriter runEventWriter
}

var release string

func newEnvironment() (*environment, error) {
	var e environment
	if err := cleanenv.ReadEnv(&e.config); err != nil {
		return nil, err
	}

	var err error
	e.runsBucket, err = storageprovider.OpenBucket(context.Background(), e.config.BucketURL)
	if err != nil {
		return nil, err
	}
	if len(e.config.KafkaBrokers) > 0 {
		e.eventsWriter = shipper.NewWriter(e.config.KafkaBrokers, e.config.KafkaTopic)
	}
	return &e, nil
}

func (e *environment) shutdown() {
	err := e.runsBucket.Close()
	if err != nil {
		sentry.CaptureException(err)
	}
	if e.eventsWriter != nil {
		err = e.eventsWriter.Close()
		if err != nil {
			sentry.CaptureException(err)
		}
	}
	sentry.Flush(5 * time.Second)
}

func (e *environment) newRouter() (*httprouter.Router, error) {
	compress, err := httpcompression.DefaultAdapter()
	if err != nil {
		return nil, err
	}

	routes := []struct {
		method  string
		path    string
		handler http.HandlerFunc
	}{
		{http.MethodGet, "/health", e.getHealth},
		{http.MethodPost, "/trace/:run_id/:name", e.postTrace},
		{http.MethodGet, "/api/runs/:run_id/tree", e.getRunTree},
		{http.MethodGet, "/api/runs/:run_id/totals", e.getRunTotals},
		{http.MethodGet, "/api/runs/:run_id/raw", e.getRunRaw},
		{http.MethodGet, "/view/:run_id", e.getRunView},
	}

	router := httprouter.New()

	for _, route := range routes {
		handlerFunc := httputil.DecompressPayload(route.handler)
		handler := compress(handlerFunc)

		router.Handler(route.method, route.path, handler)
	}

	return router, nil
}

func main() {
	logutil.ConfigureLogger()

	env, err := newEnvironment()
	if err != nil {
		log.Fatal().Err(err).Msg("error setting up environment")
	}

	err = sentry.Init(sentry.ClientOptions{
		BeforeSendTransaction: httputil.SetHTTPStatusCodeTag,
		Dsn:                   env.config.SentryDSN,
		EnableTracing:         true,
		Environment:           env.config.Environment,
		Release:               release,
		TracesSampleRate:      1.0,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("can't initialize sentry")
	}

	router, err := env.newRouter()
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal().Err(err).Msg("error setting up the router")
	}

	server := http.Server{
		Addr:    ":" + strconv.Itoa(env.config.Port),
		Handler: sentryhttp.New(sentryhttp.Options{}).Handle(router),
	}

	waitForShutdown := make(chan os.Signal)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c

		cctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(cctx); err != nil {
			sentry.CaptureException(err)
			log.Err(err).Msg("error shutting down server")
		}

		close(waitForShutdown)
	}()

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		sentry.CaptureException(err)
		log.Err(err).Msg("server failed")
	}

	<-waitForShutdown

	// Shutdown the rest of the environment after the HTTP connections are closed
	env.shutdown()
}

func (e *environment) getHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
