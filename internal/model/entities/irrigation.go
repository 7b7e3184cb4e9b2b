package entities

import "time"

// RunMode tells whether a pump run was requested by the scheduler or by a user.
type RunMode string

const (
	RunAuto   RunMode = "auto"
	RunManual RunMode = "manual"
)

// IrrigationState is the persisted state of one pump.
type IrrigationState struct {
	Pump           string        `json:"pump"`
	IsRunning      bool          `json:"is_running"`
	StartedAt      *time.Time    `json:"started_at,omitempty"`
	LastFinishedAt *time.Time    `json:"last_finished_at,omitempty"`
	Mode           RunMode       `json:"mode,omitempty"`
	Duration       time.Duration `json:"duration,omitempty"`
	// Unconfirmed marks a pump recorded as running before a restart whose
	// physical state is not known.
	Unconfirmed bool `json:"unconfirmed,omitempty"`
}

// StopDue returns when the current run is scheduled to end.
func (s IrrigationState) StopDue() (time.Time, bool) {
	if !s.IsRunning || s.StartedAt == nil {
		return time.Time{}, false
	}
	return s.StartedAt.Add(s.Duration), true
}

// Resting reports whether now is still inside the rest window after the last run.
func (s IrrigationState) Resting(now time.Time, rest time.Duration) bool {
	if s.LastFinishedAt == nil {
		return false
	}
	return now.Sub(*s.LastFinishedAt) < rest
}

// Action is the scheduler's verdict for one pump.
type Action string

const (
	ActionNoChange Action = "no-change"
	ActionStart    Action = "start"
	ActionStop     Action = "stop"
)

// PumpCommand is one scheduler decision for one pump.
type PumpCommand struct {
	Pump     string        `json:"pump"`
	Action   Action        `json:"action"`
	Mode     RunMode       `json:"mode,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Reason   string        `json:"reason,omitempty"`
}

// Interlocks are the hard-stop conditions re-checked at actuation time.
type Interlocks struct {
	TankEmpty bool
	Night     bool
}

// T is a helper returning a pointer to t.
func T(t time.Time) *time.Time { return &t }
