package event

import (
	"fmt"
	"time"

	"github.com/LeonardoBeccarini/flora/internal/model/entities"
	"github.com/LeonardoBeccarini/flora/internal/model/messages"
)

const (
	TypeAlert    = "alert"
	TypeDecision = "irrigation.decision"
	TypeResult   = "irrigation.result"

	sourceService = "flora-controller"
)

// CommonEvent is the flat shape every event is stored as.
type CommonEvent struct {
	EventType     string // alert | irrigation.decision | irrigation.result
	SourceService string
	Class         string
	Pump          string
	SensorID      string
	Severity      string // ok|info|warning|error
	Fields        map[string]interface{}
	Timestamp     time.Time
}

func FromAlert(ev messages.AlertEvent) CommonEvent {
	return CommonEvent{
		EventType:     TypeAlert,
		SourceService: sourceService,
		Class:         string(ev.Class),
		SensorID:      ev.SensorID,
		Severity:      ev.Severity.String(),
		Fields: map[string]interface{}{
			"message":        ev.Message,
			"cleared":        ev.Cleared,
			"severity_level": int64(ev.Severity),
			"id":             ev.ID,
		},
		Timestamp: ev.Timestamp,
	}
}

func FromDecision(ev messages.IrrigationDecisionEvent) CommonEvent {
	fields := map[string]interface{}{
		"message":    ev.Reason,
		"mode":       string(ev.Mode),
		"duration_s": ev.Duration.Seconds(),
		"ticket_id":  ev.TicketID,
	}
	if ev.Moisture != nil {
		fields["moisture"] = *ev.Moisture
	}
	return CommonEvent{
		EventType:     TypeDecision,
		SourceService: sourceService,
		Pump:          ev.Pump,
		SensorID:      ev.SensorID,
		Severity:      entities.SeverityInfo.String(),
		Fields:        fields,
		Timestamp:     ev.Timestamp,
	}
}

func FromResult(ev messages.IrrigationResultEvent) CommonEvent {
	sev := entities.SeverityInfo
	if ev.Status == messages.ResultFail {
		sev = entities.SeverityWarning
	}
	return CommonEvent{
		EventType:     TypeResult,
		SourceService: sourceService,
		Pump:          ev.Pump,
		Severity:      sev.String(),
		Fields: map[string]interface{}{
			"message":   fmt.Sprintf("%s: %s", ev.Status, ev.Reason),
			"status":    ev.Status,
			"ran_for_s": ev.RanFor().Seconds(),
			"ticket_id": ev.TicketID,
		},
		Timestamp: ev.Timestamp,
	}
}
