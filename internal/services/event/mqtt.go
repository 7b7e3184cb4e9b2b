package event

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/LeonardoBeccarini/flora/internal/model/messages"
	"github.com/LeonardoBeccarini/flora/pkg/broker"
)

// Values of the status topic.
const (
	StatusOnline  = "online"
	StatusIdle    = "idle"
	StatusOffline = "offline"
)

// Topics names everything below the controller's base topic.
type Topics struct{ Base string }

func (t Topics) join(parts ...string) string {
	return strings.TrimRight(t.Base, "/") + "/" + strings.Join(parts, "/")
}

func (t Topics) Status() string             { return t.join("status") }
func (t Topics) Tank() string               { return t.join("tank") }
func (t Topics) TankSignal() string         { return t.join("tank", "signal") }
func (t Topics) Pump(name string) string    { return t.join("pump", name) }
func (t Topics) Alert() string              { return t.join("alert") }
func (t Topics) Report() string             { return t.join("report") }
func (t Topics) Decision() string           { return t.join("irrigation", "decision") }
func (t Topics) Result() string             { return t.join("irrigation", "result") }
func (t Topics) Sensor(id string) string    { return t.join(id) }
func (t Topics) AutoIrrCtrl() string        { return t.join("auto_irr_ctrl") }
func (t Topics) AutoIrrStat() string        { return t.join("auto_irr_stat") }
func (t Topics) ManIrrCmd() string          { return t.join("man_irr_cmd") }
func (t Topics) ManIrrStat() string         { return t.join("man_irr_stat") }
func (t Topics) ManIrrDurationCtrl() string { return t.join("man_irr_duration_ctrl") }
func (t Topics) ManIrrDurationStat() string { return t.join("man_irr_duration_stat") }

// MQTTSink publishes events and the per-cycle status to the broker.
type MQTTSink struct {
	pub    broker.IPublisher
	topics Topics
}

func NewMQTTSink(pub broker.IPublisher, base string) *MQTTSink {
	return &MQTTSink{pub: pub, topics: Topics{Base: base}}
}

func (s *MQTTSink) Topics() Topics { return s.topics }

func (s *MQTTSink) Alert(_ context.Context, ev messages.AlertEvent) error {
	return s.pub.PublishTo(s.topics.Alert(), 1, false, ev)
}

func (s *MQTTSink) Decision(_ context.Context, ev messages.IrrigationDecisionEvent) error {
	return s.pub.PublishTo(s.topics.Decision(), 1, false, ev)
}

func (s *MQTTSink) Result(_ context.Context, ev messages.IrrigationResultEvent) error {
	return s.pub.PublishTo(s.topics.Result(), 1, false, ev)
}

// Report publishes the full report and the flat status values.
func (s *MQTTSink) Report(_ context.Context, r messages.CycleReport) error {
	var errs []error
	pub := func(topic string, retain bool, v any) {
		if err := s.pub.PublishTo(topic, 1, retain, v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", topic, err))
		}
	}
	pub(s.topics.Tank(), true, strconv.Itoa(r.Tank.Level()))
	pub(s.topics.AutoIrrStat(), true, flag(r.AutoIrrigation))
	pub(s.topics.ManIrrStat(), false, flag(r.ManualRunning()))
	pub(s.topics.ManIrrDurationStat(), true, strconv.Itoa(int(r.ManualDuration.Seconds())))
	for _, sr := range r.Sensors {
		pub(s.topics.Sensor(sr.Sensor), false, sr)
	}
	pub(s.topics.Report(), false, r)
	return errors.Join(errs...)
}

// SetStatus publishes the retained controller status.
func (s *MQTTSink) SetStatus(status string) error {
	return s.pub.PublishTo(s.topics.Status(), 1, true, status)
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
