package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/LeonardoBeccarini/flora/internal/log"
	"github.com/LeonardoBeccarini/flora/pkg/broker"
)

// Relay payloads, as understood by Tasmota style MQTT relays.
const (
	RelayOn  = "ON"
	RelayOff = "OFF"
)

// MQTTRelay switches a relay by publishing ON/OFF to its command topic.
type MQTTRelay struct {
	pub   broker.IPublisher
	topic string
}

func NewMQTTRelay(pub broker.IPublisher, topic string) *MQTTRelay {
	return &MQTTRelay{pub: pub, topic: topic}
}

func (r *MQTTRelay) Set(_ context.Context, on bool) error {
	payload := RelayOff
	if on {
		payload = RelayOn
	}
	if err := r.pub.PublishTo(r.topic, 1, true, payload); err != nil {
		return fmt.Errorf("relay %s: %w", r.topic, err)
	}
	return nil
}

// MemoryOutput keeps the output state in memory. It backs the simulated
// deployment and the tests.
type MemoryOutput struct {
	mu       sync.Mutex
	on       bool
	switches int
	// Fail, when set, is returned by Set.
	Fail error
	// Healthy is reported by DriverOK.
	Healthy bool
}

func NewMemoryOutput() *MemoryOutput { return &MemoryOutput{Healthy: true} }

func (m *MemoryOutput) Set(_ context.Context, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	if m.on != on {
		m.switches++
	}
	m.on = on
	log.Debugf("device: memory output set to %v", on)
	return nil
}

func (m *MemoryOutput) On() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.on
}

// Switches counts the real transitions of the output.
func (m *MemoryOutput) Switches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.switches
}

func (m *MemoryOutput) DriverOK(context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Healthy, nil
}
