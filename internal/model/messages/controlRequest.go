package messages

import "time"

// ControlKind enumerates the runtime requests accepted from MQTT or HTTP.
type ControlKind string

const (
	ControlManualIrrigation ControlKind = "manual_irrigation"
	ControlAutoIrrigation   ControlKind = "auto_irrigation"
	ControlManualDuration   ControlKind = "manual_duration"
)

// ControlRequest is queued by a transport callback and applied by the
// orchestrator at the start of the next cycle.
type ControlRequest struct {
	Kind     ControlKind   `json:"kind"`
	Pump     string        `json:"pump,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Enabled  bool          `json:"enabled,omitempty"`
	Source   string        `json:"source,omitempty"`
	At       time.Time     `json:"at"`
}

// ManualIrrigationRequest asks to run one pump for a given duration; zero
// means the configured manual duration.
type ManualIrrigationRequest struct {
	Pump     string
	Duration time.Duration
	At       time.Time
}
