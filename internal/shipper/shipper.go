package shipper

import (
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/gsoxley/OpenMDAO/internal/timeutil"
)

// RunEvent notifies downstream consumers that a raw trace file for a
// profiling run was collected.
type RunEvent struct {
	RunID     string        `json:"run_id"`
	TraceName string        `json:"trace_name"`
	Rank      int           `json:"rank"`
	Records   int           `json:"records"`
	Received  timeutil.Time `json:"received"`
}

// NewWriter returns a Kafka writer configured for trace notifications.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Async:        true,
		Balancer:     kafka.CRC32Balancer{},
		BatchSize:    10,
		Compression:  kafka.Lz4,
		ReadTimeout:  3 * time.Second,
		Topic:        topic,
		WriteTimeout: 3 * time.Second,
	}
}

// GenerateKafkaMessage serializes a run event, keyed by run ID so the
// events of one run land on the same partition.
func GenerateKafkaMessage(event RunEvent) (kafka.Message, error) {
	b, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(event.RunID),
		Value: b,
	}, nil
}
