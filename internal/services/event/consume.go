package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/flora/internal/log"
	"github.com/LeonardoBeccarini/flora/internal/model/messages"
	"github.com/LeonardoBeccarini/flora/pkg/dedup"
)

// Consumer decodes the events a controller publishes and replays them into
// a Sink, so that a recorder can run apart from the controller.
type Consumer struct {
	topics  Topics
	sink    Sink
	deduper *dedup.Deduper
	timeout time.Duration
}

// NewConsumer returns a consumer of the controller topics under base. QoS 1
// redeliveries of irrigation events are filtered by payload when d is set.
func NewConsumer(base string, sink Sink, d *dedup.Deduper) *Consumer {
	return &Consumer{topics: Topics{Base: base}, sink: sink, deduper: d, timeout: 5 * time.Second}
}

// Filters returns the topics to subscribe to.
func (c *Consumer) Filters() []string {
	return []string{c.topics.Alert(), c.topics.Decision(), c.topics.Result(), c.topics.Report()}
}

// Handle is the broker handler of Filters.
func (c *Consumer) Handle(topic string, msg mqtt.Message) error {
	if msg.Retained() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	switch topic {
	case c.topics.Alert():
		var ev messages.AlertEvent
		if err := json.Unmarshal(msg.Payload(), &ev); err != nil {
			return fmt.Errorf("event: decode alert: %w", err)
		}
		return c.sink.Alert(ctx, ev)
	case c.topics.Decision():
		if !c.fresh(topic, msg.Payload()) {
			return nil
		}
		var ev messages.IrrigationDecisionEvent
		if err := json.Unmarshal(msg.Payload(), &ev); err != nil {
			return fmt.Errorf("event: decode decision: %w", err)
		}
		return c.sink.Decision(ctx, ev)
	case c.topics.Result():
		if !c.fresh(topic, msg.Payload()) {
			return nil
		}
		var ev messages.IrrigationResultEvent
		if err := json.Unmarshal(msg.Payload(), &ev); err != nil {
			return fmt.Errorf("event: decode result: %w", err)
		}
		return c.sink.Result(ctx, ev)
	case c.topics.Report():
		var r messages.CycleReport
		if err := json.Unmarshal(msg.Payload(), &r); err != nil {
			return fmt.Errorf("event: decode report: %w", err)
		}
		return c.sink.Report(ctx, r)
	}
	return fmt.Errorf("event: unexpected topic %s", topic)
}

func (c *Consumer) fresh(topic string, payload []byte) bool {
	if c.deduper == nil || c.deduper.ShouldProcessPayload(topic, payload) {
		return true
	}
	log.Debugf("event: duplicate on %s dropped", topic)
	return false
}
