// Package mqtt mirrors station telemetry and state to an MQTT broker.
package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	customlog "github.com/open-teleop/station/pkg/log"
	"github.com/open-teleop/station/pkg/protocol"
)

const publishTimeout = 500 * time.Millisecond

// Options configures the broker connection.
type Options struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	QoS         byte
	Retain      bool
}

// Publisher sends JSON snapshots to <prefix>/telemetry.
type Publisher struct {
	client paho.Client
	topic  string
	qos    byte
	retain bool
	logger customlog.Logger
}

// TelemetryTopic returns the topic snapshots are published on.
func TelemetryTopic(prefix string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = "station"
	}
	return prefix + "/telemetry"
}

// Connect dials the broker. An empty client id gets a random one.
func Connect(opts Options, logger customlog.Logger) (*Publisher, error) {
	if opts.Broker == "" {
		return nil, fmt.Errorf("mqtt broker address is empty")
	}
	if opts.ClientID == "" {
		opts.ClientID = "station-" + uuid.NewString()
	}

	clientOpts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)

	client := paho.NewClient(clientOpts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", opts.Broker, token.Error())
	}
	logger.Infof("Connected to MQTT broker %s as %s", opts.Broker, opts.ClientID)

	return newPublisher(client, opts, logger), nil
}

func newPublisher(client paho.Client, opts Options, logger customlog.Logger) *Publisher {
	return &Publisher{
		client: client,
		topic:  TelemetryTopic(opts.TopicPrefix),
		qos:    opts.QoS,
		retain: opts.Retain,
		logger: logger,
	}
}

// Name identifies the publisher as a display sink.
func (p *Publisher) Name() string { return "mqtt" }

// Topic returns the telemetry topic.
func (p *Publisher) Topic() string { return p.topic }

// Publish sends one snapshot and waits briefly for the broker.
func (p *Publisher) Publish(snapshot protocol.Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	token := p.client.Publish(p.topic, p.qos, p.retain, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt publish to %s timed out", p.topic)
	}
	return token.Error()
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
	p.logger.Infof("Disconnected from MQTT broker")
}
