// Package broker wraps the paho MQTT client: connection with retry, topic
// consumers and publishers.
package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/flora/internal/log"
)

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	ClientID string
	// Will is published by the broker when the connection is lost.
	Will *Will
	// OnConnect runs after every (re)connection, e.g. to publish status.
	OnConnect func(mqtt.Client)
	// MaxRetries bounds the connection attempts, default 5.
	MaxRetries int
}

type Will struct {
	Topic   string
	Payload string
	QoS     byte
	Retain  bool
}

// Options builds the paho options for cfg.
func Options(cfg *Config) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetUsername(cfg.User)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	if cfg.Will != nil {
		opts.SetWill(cfg.Will.Topic, cfg.Will.Payload, cfg.Will.QoS, cfg.Will.Retain)
	}
	if cfg.OnConnect != nil {
		opts.SetOnConnectHandler(cfg.OnConnect)
	}
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warnf("broker: connection lost: %v", err)
	})
	return opts
}

// Connect dials the broker with exponential backoff. The connection is closed
// when ctx is cancelled.
func Connect(ctx context.Context, cfg *Config) (mqtt.Client, error) {
	return connect(ctx, cfg, mqtt.NewClient)
}

func connect(ctx context.Context, cfg *Config, newClient func(*mqtt.ClientOptions) mqtt.Client) (mqtt.Client, error) {
	opts := Options(cfg)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 10 * time.Second
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = newClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			log.Warnf("broker: failed to connect to %s:%d: %v", cfg.Host, cfg.Port, token.Error())
			return token.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(maxRetries-1)), ctx))
	if err != nil {
		return nil, fmt.Errorf("could not establish MQTT connection after retries: %w", err)
	}

	log.Infof("broker: connected to %s:%d as %s", cfg.Host, cfg.Port, cfg.ClientID)

	go func() {
		<-ctx.Done()
		Close(client)
	}()
	return client, nil
}

// Close disconnects the client if it is still connected.
func Close(client mqtt.Client) {
	if client != nil && client.IsConnected() {
		client.Disconnect(250)
		log.Infof("broker: connection closed")
	}
}
