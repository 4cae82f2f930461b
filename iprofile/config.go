package iprofile

import (
	"github.com/ilyakaznacheev/cleanenv"
)

// Config controls where a profiling run lands. Only Prefix, Dir and
// Rank matter for plain local runs; the remaining fields enable the
// optional shipping legs of Close.
type Config struct {
	Prefix string `env:"IPROF_PREFIX" env-default:"iprof"`
	Dir    string `env:"IPROF_DIR" env-default:"."`
	Rank   int    `env:"IPROF_RANK" env-default:"0"`

	// BucketURL is a blob bucket URL (file://, gs://, s3://) the raw
	// trace is uploaded to, lz4 compressed, under <run>/<prefix>.<rank>.
	BucketURL string `env:"IPROF_BUCKET_URL"`

	// CollectorURL is the base URL of an iprofd instance the raw trace
	// is posted to.
	CollectorURL string `env:"IPROF_COLLECTOR_URL"`

	// KafkaBrokers and KafkaTopic configure the run notification
	// published after a successful write.
	KafkaBrokers []string `env:"IPROF_KAFKA_BROKERS"`
	KafkaTopic   string   `env:"IPROF_KAFKA_TOPIC" env-default:"profile-runs"`
}

// ConfigFromEnv reads the IPROF_* environment variables.
func ConfigFromEnv() (Config, error) {
	var config Config
	if err := cleanenv.ReadEnv(&config); err != nil {
		return Config{}, err
	}
	return config, nil
}
