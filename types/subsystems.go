package types

// SubSystem tags every structured log record with the component it came from.
type SubSystem string

const (
	System    SubSystem = "system"
	Config    SubSystem = "config"
	Server    SubSystem = "server"
	Chain     SubSystem = "chain"
	Admission SubSystem = "admission"
	Blacklist SubSystem = "blacklist"
	Weights   SubSystem = "weights"
	Telemetry SubSystem = "telemetry"
	Messages  SubSystem = "messages"
)
