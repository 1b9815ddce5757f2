package telemetry

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"miner-api/logging"
	"miner-api/types"
)

const EventsSubject = "telemetry.events"

// NatsSink publishes telemetry records as JSON to the embedded NATS server,
// where an external uploader drains them. Publish failures are logged and
// dropped.
type NatsSink struct {
	conn    *nats.Conn
	subject string
	tags    map[string]string
}

// NewNatsSink wraps an established NATS connection. tags are merged into
// every record (run identity, netuid and the like).
func NewNatsSink(conn *nats.Conn, tags map[string]string) *NatsSink {
	return &NatsSink{conn: conn, subject: EventsSubject, tags: tags}
}

func (s *NatsSink) Log(record map[string]any) {
	merged := make(map[string]any, len(record)+len(s.tags)+1)
	for k, v := range s.tags {
		merged[k] = v
	}
	for k, v := range record {
		merged[k] = v
	}
	merged["ts"] = time.Now().UTC().Format(time.RFC3339Nano)

	payload, err := json.Marshal(merged)
	if err != nil {
		logging.Warn("Failed to marshal telemetry record", types.Telemetry, "error", err)
		return
	}
	if err := s.conn.Publish(s.subject, payload); err != nil {
		logging.Warn("Failed to publish telemetry record", types.Telemetry, "error", err)
	}
}

func (s *NatsSink) Close() {
	s.conn.Close()
}
