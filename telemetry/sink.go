package telemetry

// Sink receives structured experiment/telemetry records. Log is
// fire-and-forget: implementations must never return or panic on delivery
// failure, so telemetry can never affect admission or control-loop outcomes.
type Sink interface {
	Log(record map[string]any)
}

// Noop discards all records. Used when telemetry is disabled.
type Noop struct{}

func (Noop) Log(map[string]any) {}
