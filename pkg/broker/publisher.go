package broker

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/flora/internal/log"
)

// IPublisher publishes to a fixed topic or to an explicit one.
type IPublisher interface {
	PublishMessage(message any) error
	PublishTo(topic string, qos byte, retain bool, message any) error
	Close()
}

// Publisher holds the client and the default topic and delivery options.
type Publisher struct {
	client mqtt.Client
	topic  string
	qos    byte
	retain bool
}

func NewPublisher(client mqtt.Client, topic string, qos byte, retain bool) *Publisher {
	return &Publisher{client: client, topic: topic, qos: qos, retain: retain}
}

// PublishMessage publishes message to the default topic.
func (p *Publisher) PublishMessage(message any) error {
	return p.PublishTo(p.topic, p.qos, p.retain, message)
}

// PublishTo publishes message to topic. Strings and byte slices are sent as
// is, anything else is JSON encoded.
func (p *Publisher) PublishTo(topic string, qos byte, retain bool, message any) error {
	payload, err := Encode(message)
	if err != nil {
		return err
	}
	token := p.client.Publish(topic, qos, retain, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, token.Error())
	}
	log.Debugf("broker: published %d bytes to %s", len(payload), topic)
	return nil
}

// Close disconnects the shared client.
func (p *Publisher) Close() {
	Close(p.client)
}

// Encode renders a message payload.
func Encode(message any) ([]byte, error) {
	switch m := message.(type) {
	case string:
		return []byte(m), nil
	case []byte:
		return m, nil
	}
	b, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return b, nil
}
