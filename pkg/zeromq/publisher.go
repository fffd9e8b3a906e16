// Package zeromq republishes station telemetry on a ZeroMQ PUB socket so
// external dashboards and recorders can follow the rover.
package zeromq

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pebbe/zmq4"

	customlog "github.com/open-teleop/station/pkg/log"
	"github.com/open-teleop/station/pkg/protocol"
)

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("zeromq publisher is closed")

// TelemetryPublisher sends FlatBuffers encoded snapshots as two part
// messages: topic, then payload.
type TelemetryPublisher struct {
	socket    *zmq4.Socket
	address   string
	stationID string
	logger    customlog.Logger
	running   bool
	mu        sync.Mutex
}

// NewTelemetryPublisher binds a PUB socket on address.
func NewTelemetryPublisher(address, stationID string, logger customlog.Logger) (*TelemetryPublisher, error) {
	socket, err := zmq4.NewSocket(zmq4.PUB)
	if err != nil {
		return nil, fmt.Errorf("failed to create PUB socket: %w", err)
	}

	if err := socket.SetLinger(0); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set linger option: %w", err)
	}

	if err := socket.Bind(address); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to bind to %s: %w", address, err)
	}

	logger.Infof("Telemetry publisher bound on %s", address)

	return &TelemetryPublisher{
		socket:    socket,
		address:   address,
		stationID: stationID,
		logger:    logger,
		running:   true,
	}, nil
}

// Name identifies the publisher as a display sink.
func (p *TelemetryPublisher) Name() string { return "zeromq" }

// Publish sends one snapshot on TopicTelemetry.
func (p *TelemetryPublisher) Publish(snapshot protocol.Snapshot) error {
	payload := EncodeSnapshot(snapshot, p.stationID)

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return ErrPublisherClosed
	}

	if _, err := p.socket.Send(TopicTelemetry, zmq4.SNDMORE); err != nil {
		return fmt.Errorf("failed to send topic: %w", err)
	}
	if _, err := p.socket.SendBytes(payload, 0); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Close cleans up resources
func (p *TelemetryPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.running = false
	if p.socket != nil {
		p.socket.Close()
		p.socket = nil
		p.logger.Infof("Telemetry publisher on %s closed", p.address)
	}
}
