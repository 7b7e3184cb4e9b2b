package messages

import (
	"time"

	"github.com/LeonardoBeccarini/flora/internal/model/entities"
)

// IrrigationDecisionEvent is published when the controller starts a pump, to
// record why it did so.
type IrrigationDecisionEvent struct {
	Pump      string           `json:"pump"`
	TicketID  string           `json:"ticket_id"`
	SensorID  string           `json:"sensor_id,omitempty"`
	Mode      entities.RunMode `json:"mode"`
	Moisture  *float64         `json:"moisture,omitempty"`
	Duration  time.Duration    `json:"duration"`
	Reason    string           `json:"reason"`
	Timestamp time.Time        `json:"timestamp"`
}
