package shipper

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gsoxley/OpenMDAO/internal/testutil"
	"github.com/gsoxley/OpenMDAO/internal/timeutil"
)

func TestGenerateKafkaMessage(t *testing.T) {
	received := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	event := RunEvent{
		RunID:     "0b14d501-a594-4fde-b58c-71d4a8d3f6a1",
		TraceName: "iprof.3",
		Rank:      3,
		Records:   42,
		Received:  timeutil.Time(received),
	}

	message, err := GenerateKafkaMessage(event)
	if err != nil {
		t.Fatalf("we should be able to generate a message: %v", err)
	}

	if diff := testutil.Diff(string(message.Key), event.RunID); diff != "" {
		t.Fatalf("message key mismatch: %+v\n", diff)
	}

	var decoded RunEvent
	if err := json.Unmarshal(message.Value, &decoded); err != nil {
		t.Fatalf("we should be able to decode the message value: %v", err)
	}
	if diff := testutil.Diff(decoded, event); diff != "" {
		t.Fatalf("event mismatch: %+v\n", diff)
	}
}
