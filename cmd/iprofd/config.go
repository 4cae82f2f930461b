package main

type (
	ServiceConfig struct {
		Environment string `env:"IPROFD_ENVIRONMENT" env-default:"development"`
		Port        int    `env:"PORT" env-default:"8080"`

		SentryDSN string `env:"SENTRY_DSN"`

		// BucketURL is the blob bucket (file://, gs://, s3://) holding
		// one lz4 compressed object per received trace, keyed
		// <run>/<prefix>.<rank>.
		BucketURL string `env:"IPROFD_BUCKET_URL" env-default:"file://localhost/var/lib/iprofd/runs"`

		// KafkaBrokers and KafkaTopic enable the run notification
		// published after every accepted trace.
		KafkaBrokers []string `env:"IPROFD_KAFKA_BROKERS"`
		KafkaTopic   string   `env:"IPROFD_KAFKA_TOPIC" env-default:"profile-runs"`
	}
)
