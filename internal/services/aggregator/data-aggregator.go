// Package aggregator collects the sensor payloads published by
// miflora-mqtt-daemon and serves the latest one per sensor.
package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/flora/internal/log"
	"github.com/LeonardoBeccarini/flora/internal/model/messages"
	"github.com/LeonardoBeccarini/flora/internal/sensor"
	"github.com/LeonardoBeccarini/flora/pkg/broker"
	"github.com/LeonardoBeccarini/flora/pkg/dedup"
)

// MQTTSource is a sensor.Source fed by <base>/<sensor> topics.
type MQTTSource struct {
	consumer broker.IConsumer
	base     string
	dedup    *dedup.Deduper
	now      func() time.Time

	mu       sync.Mutex
	latest   map[string]messages.SensorData
	received map[string]int64
}

// Filter returns the subscription filter for base.
func Filter(base string) string {
	return strings.TrimRight(base, "/") + "/+"
}

func NewMQTTSource(consumer broker.IConsumer, base string) *MQTTSource {
	s := &MQTTSource{
		consumer: consumer,
		base:     strings.TrimRight(base, "/"),
		dedup:    dedup.New(10*time.Minute, 5000),
		now:      time.Now,
		latest:   make(map[string]messages.SensorData),
		received: make(map[string]int64),
	}
	consumer.SetHandler(s.messageHandler)
	return s
}

// Start consumes until ctx is cancelled.
func (s *MQTTSource) Start(ctx context.Context) {
	s.consumer.ConsumeMessage(ctx)
}

func (s *MQTTSource) messageHandler(topic string, message mqtt.Message) error {
	id := strings.TrimPrefix(topic, s.base+"/")
	if id == topic || id == "" || strings.Contains(id, "/") || strings.HasPrefix(id, "$") {
		return nil
	}
	payload := message.Payload()

	var data messages.SensorData
	if err := json.Unmarshal(payload, &data); err != nil {
		// the daemon also publishes plain status strings
		log.Debugf("aggregator: ignoring non JSON payload on %s", topic)
		return nil
	}
	// only timestamped payloads can be told apart from a fresh identical reading
	if !data.Timestamp.IsZero() && !s.dedup.ShouldProcessPayload(topic, payload) {
		log.Debugf("aggregator: duplicate payload on %s dropped", topic)
		return nil
	}
	if data.Timestamp.IsZero() {
		data.Timestamp = s.now()
	}
	data.SensorID = id

	s.mu.Lock()
	if prev, ok := s.latest[id]; ok && prev.Timestamp.After(data.Timestamp) {
		s.mu.Unlock()
		return fmt.Errorf("out of order payload for %s (%s before %s)", id, data.Timestamp, prev.Timestamp)
	}
	s.latest[id] = data
	s.received[id]++
	s.mu.Unlock()

	log.Debugf("aggregator: buffered sensor data for %s", id)
	return nil
}

// Fetch returns the latest payload of sensorID.
func (s *MQTTSource) Fetch(_ context.Context, sensorID string) (messages.SensorData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.latest[sensorID]
	if !ok {
		return messages.SensorData{}, fmt.Errorf("%s: %w", sensorID, sensor.ErrUnavailable)
	}
	return d, nil
}

// Sensors lists every sensor seen so far.
func (s *MQTTSource) Sensors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.latest))
	for id := range s.latest {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Received returns how many payloads were accepted for sensorID.
func (s *MQTTSource) Received(sensorID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.received[sensorID]
}

var _ sensor.Source = (*MQTTSource)(nil)
