package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/gsoxley/OpenMDAO/internal/logutil"
	"github.com/gsoxley/OpenMDAO/internal/storageprovider"
)

func cleanup(ctx context.Context, bucket *storageprovider.Blob, timeLimit time.Time) error {
	names, err := bucket.ListStale(ctx, "", timeLimit)
	if err != nil {
		return err
	}

	for _, name := range names {
		if err := bucket.Delete(ctx, name); err != nil {
			return err
		}
		log.Info().Str("name", name).Msg("removed expired trace")
	}

	return nil
}

func main() {
	bucketURL, ok := os.LookupEnv("IPROFD_BUCKET_URL")
	if !ok {
		bucketURL = "file://localhost/var/lib/iprofd/runs"
	}

	runRetentionDays, ok := os.LookupEnv("IPROF_RUN_RETENTION_DAYS")
	if !ok {
		runRetentionDays = "90"
	}

	logutil.ConfigureLogger()

	err := sentry.Init(sentry.ClientOptions{})
	if err != nil {
		log.Fatal().Err(err).Msg("can't initialize sentry")
	}

	retentionDays, err := strconv.ParseInt(runRetentionDays, 10, 64)
	if err != nil {
		log.Fatal().Err(err).Msg("can't parse retention days")
	}

	bucket, err := storageprovider.OpenBucket(context.Background(), bucketURL)
	if err != nil {
		log.Fatal().Err(err).Msg("can't open the runs bucket")
	}

	c := cron.New()
	_, err = c.AddFunc("@daily", func() {
		timeLimit := time.Now().Add(time.Hour * 24 * -1 * time.Duration(retentionDays))
		err := cleanup(context.Background(), bucket, timeLimit)
		if err != nil {
			sentry.CaptureException(err)
			log.Error().Err(err).Msg("error cleaning up expired traces")
		}
	})
	if err != nil {
		log.Fatal().Err(err).Msg("can't set up cron function")
	}

	exitSignal := make(chan os.Signal, 1)
	signal.Notify(exitSignal, os.Interrupt)

	go func() {
		<-exitSignal

		c.Stop()
	}()

	c.Run()
}
