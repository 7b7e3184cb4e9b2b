package alert

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/LeonardoBeccarini/flora/internal/model/entities"
	"github.com/LeonardoBeccarini/flora/internal/model/messages"
)

// Observation is the severity of one alert class in a cycle, with the sensor
// that caused it and a human readable detail.
type Observation struct {
	Severity entities.SeverityLevel
	SensorID string
	Detail   string
	// Hold marks a class whose severity is partly unknown this cycle; the
	// filter never drops below the severity it last observed.
	Hold bool
}

// Bank holds one filter per alert class.
type Bank struct {
	filters map[entities.AlertClass]*Filter
	newID   func() string
}

// NewBank creates a filter for every known class. Classes missing from
// policies never notify.
func NewBank(policies map[entities.AlertClass]entities.AlertPolicy) *Bank {
	b := &Bank{
		filters: make(map[entities.AlertClass]*Filter, len(entities.AllAlertClasses)),
		newID:   func() string { return uuid.NewString() },
	}
	for _, c := range entities.AllAlertClasses {
		p, ok := policies[c]
		if !ok {
			p = entities.AlertPolicy{Mode: entities.AlertModeNone, Floor: entities.SeverityWarning}
		}
		b.filters[c] = NewFilter(c, p)
	}
	return b
}

// Filter returns the filter of class c, nil for unknown classes.
func (b *Bank) Filter(c entities.AlertClass) *Filter { return b.filters[c] }

// Observe runs the filter of class c and builds the event to deliver, if any.
func (b *Bank) Observe(c entities.AlertClass, o Observation, now time.Time) (messages.AlertEvent, bool) {
	f, ok := b.filters[c]
	if !ok {
		return messages.AlertEvent{}, false
	}
	sev := o.Severity
	if o.Hold {
		sev = entities.MaxSeverity(sev, f.State().LastSeverity)
	}
	fire, ok := f.Observe(sev, now)
	if !ok {
		return messages.AlertEvent{}, false
	}
	return messages.AlertEvent{
		ID:        b.newID(),
		Class:     c,
		Severity:  fire.Severity,
		SensorID:  o.SensorID,
		Cleared:   fire.Cleared,
		Message:   message(fire, o),
		Timestamp: now,
	}, true
}

// ObserveAll feeds every class in evaluation order. Classes absent from obs
// are observed as Ok.
func (b *Bank) ObserveAll(obs map[entities.AlertClass]Observation, now time.Time) []messages.AlertEvent {
	var out []messages.AlertEvent
	for _, c := range entities.AllAlertClasses {
		if ev, ok := b.Observe(c, obs[c], now); ok {
			out = append(out, ev)
		}
	}
	return out
}

// ExportState returns the state of every filter in evaluation order.
func (b *Bank) ExportState() []entities.AlertFilterState {
	out := make([]entities.AlertFilterState, 0, len(b.filters))
	for _, c := range entities.AllAlertClasses {
		out = append(out, b.filters[c].State())
	}
	return out
}

// RestoreState loads persisted states; unknown classes are ignored.
func (b *Bank) RestoreState(states []entities.AlertFilterState) {
	for _, st := range states {
		if f, ok := b.filters[st.Class]; ok {
			f.Restore(st)
		}
	}
}

func message(f Fire, o Observation) string {
	subject := string(f.Class)
	if o.SensorID != "" {
		subject = fmt.Sprintf("%s (%s)", f.Class, o.SensorID)
	}
	var msg string
	switch {
	case f.Cleared:
		msg = subject + " back to normal"
	case f.Repeat:
		msg = fmt.Sprintf("%s still %s", subject, f.Severity)
	default:
		msg = fmt.Sprintf("%s %s", subject, f.Severity)
	}
	if o.Detail != "" && !f.Cleared {
		msg += ": " + o.Detail
	}
	return msg
}
