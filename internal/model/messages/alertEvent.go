package messages

import (
	"time"

	"github.com/LeonardoBeccarini/flora/internal/model/entities"
)

// AlertEvent is a user-visible notification produced by an alert filter.
type AlertEvent struct {
	ID        string                 `json:"id"`
	Class     entities.AlertClass    `json:"class"`
	Severity  entities.SeverityLevel `json:"severity"`
	SensorID  string                 `json:"sensor_id,omitempty"`
	Cleared   bool                   `json:"cleared,omitempty"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
}
