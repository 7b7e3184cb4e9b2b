package broker

import (
	"context"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/flora/internal/log"
)

// Handler processes one message received on topic.
type Handler func(topic string, message mqtt.Message) error

// IConsumer subscribes to one or more topics and feeds messages to a handler.
type IConsumer interface {
	ConsumeMessage(ctx context.Context)
	SetHandler(handler Handler)
}

// Consumer subscribes to a single topic filter.
type Consumer struct {
	client  mqtt.Client
	handler Handler
	topic   string
	qos     byte
	ready   chan struct{}
}

func NewConsumer(client mqtt.Client, topic string, qos byte, handler Handler) *Consumer {
	return &Consumer{
		client:  client,
		topic:   topic,
		qos:     qos,
		handler: handler,
		ready:   make(chan struct{}),
	}
}

func (c *Consumer) SetHandler(handler Handler) {
	c.handler = handler
}

// Ready is closed once the subscription is in place (or has failed).
func (c *Consumer) Ready() <-chan struct{} { return c.ready }

// ConsumeMessage subscribes and blocks until ctx is cancelled.
func (c *Consumer) ConsumeMessage(ctx context.Context) {
	m := &MultiConsumer{client: c.client, topics: []string{c.topic}, qos: c.qos, handler: c.handler, ready: c.ready}
	m.ConsumeMessage(ctx)
}

// MultiConsumer subscribes to several topic filters with one handler.
type MultiConsumer struct {
	client  mqtt.Client
	topics  []string
	qos     byte
	handler Handler
	ready   chan struct{}
}

func NewMultiConsumer(client mqtt.Client, topics []string, qos byte, handler Handler) *MultiConsumer {
	return &MultiConsumer{
		client:  client,
		topics:  topics,
		qos:     qos,
		handler: handler,
		ready:   make(chan struct{}),
	}
}

func (m *MultiConsumer) SetHandler(handler Handler) {
	m.handler = handler
}

func (m *MultiConsumer) Ready() <-chan struct{} { return m.ready }

func (m *MultiConsumer) ConsumeMessage(ctx context.Context) {
	for _, topic := range m.topics {
		topic := topic
		token := m.client.Subscribe(topic, m.qos, func(_ mqtt.Client, msg mqtt.Message) {
			if m.handler == nil {
				log.Warnf("broker: no handler set for topic %s", topic)
				return
			}
			if err := m.handler(msg.Topic(), msg); err != nil {
				log.Warnf("broker: error handling message on %s: %v", msg.Topic(), err)
			}
		})
		token.Wait()
		if token.Error() != nil {
			log.Errorf("broker: error subscribing to topic %s: %v", topic, token.Error())
		} else {
			log.Infof("broker: subscribed to topic %s", topic)
		}
	}
	close(m.ready)

	<-ctx.Done()

	for _, topic := range m.topics {
		m.client.Unsubscribe(topic).Wait()
	}
}
