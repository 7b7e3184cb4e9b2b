package messages

import (
	"time"

	"github.com/LeonardoBeccarini/flora/internal/model/entities"
)

const (
	ResultOK      = "OK"
	ResultAborted = "ABORTED"
	ResultFail    = "FAIL"
)

// IrrigationResultEvent is published when a pump run ends or a pump command fails.
type IrrigationResultEvent struct {
	Pump      string           `json:"pump"`
	TicketID  string           `json:"ticket_id,omitempty"`
	Mode      entities.RunMode `json:"mode,omitempty"`
	Status    string           `json:"status"` // OK | ABORTED | FAIL
	Reason    string           `json:"reason"`
	StartedAt *time.Time       `json:"started_at,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// RanFor returns the run length, zero when the start is unknown.
func (e IrrigationResultEvent) RanFor() time.Duration {
	if e.StartedAt == nil {
		return 0
	}
	return e.Timestamp.Sub(*e.StartedAt)
}
