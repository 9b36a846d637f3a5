package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// MQTTConfig configures the MQTT publisher.
type MQTTConfig struct {
	Broker      string        `yaml:"broker"`
	ClientID    string        `yaml:"client_id"`
	TopicPrefix string        `yaml:"topic_prefix"`
	QoS         byte          `yaml:"qos"`
	Timeout     time.Duration `yaml:"timeout"`
}

func (c MQTTConfig) withDefaults() MQTTConfig {
	if c.ClientID == "" {
		c.ClientID = "scenario-collector"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "collector"
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	return c
}

// MQTTPublisher publishes events as JSON to
// <prefix>/<town>/<weather>/<behavior>/<navigation_type>/<kind>.
type MQTTPublisher struct {
	client mqtt.Client
	cfg    MQTTConfig
}

// NewMQTTPublisher connects to the configured broker.
func NewMQTTPublisher(cfg MQTTConfig) (*MQTTPublisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("notify: mqtt broker is required")
	}
	cfg = cfg.withDefaults()
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logrus.Warnf("mqtt connection lost: %v", err)
		})
	client := mqtt.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("notify: connecting to %s timed out", cfg.Broker)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("notify: connecting to %s: %w", cfg.Broker, err)
	}
	return newMQTTPublisher(client, cfg), nil
}

func newMQTTPublisher(client mqtt.Client, cfg MQTTConfig) *MQTTPublisher {
	return &MQTTPublisher{client: client, cfg: cfg.withDefaults()}
}

// Topic returns the topic an event is published on.
func (p *MQTTPublisher) Topic(e Event) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s/%s", p.cfg.TopicPrefix, e.Town, e.Weather, e.Behavior, e.NavigationType, e.Kind)
}

// Publish sends e and waits for the broker acknowledgement, the configured
// timeout or ctx, whichever comes first.
func (p *MQTTPublisher) Publish(ctx context.Context, e Event) error {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("notify: encoding event: %w", err)
	}
	tok := p.client.Publish(p.Topic(e), p.cfg.QoS, false, payload)
	select {
	case <-tok.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.cfg.Timeout):
		return fmt.Errorf("notify: publishing %s timed out", e.Kind)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("notify: publishing %s: %w", e.Kind, err)
	}
	return nil
}

// Close disconnects, allowing 250ms for in-flight messages.
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
