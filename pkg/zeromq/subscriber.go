package zeromq

import (
	"context"
	"fmt"
	"time"

	"github.com/pebbe/zmq4"

	customlog "github.com/open-teleop/station/pkg/log"
	"github.com/open-teleop/station/pkg/protocol"
)

// SnapshotHandler receives each decoded snapshot with its publisher's id.
type SnapshotHandler func(snapshot protocol.Snapshot, stationID string)

// TelemetrySubscriber follows a station's telemetry PUB socket.
type TelemetrySubscriber struct {
	socket  *zmq4.Socket
	address string
	logger  customlog.Logger
}

// NewTelemetrySubscriber connects a SUB socket to address and subscribes to
// TopicTelemetry.
func NewTelemetrySubscriber(address string, logger customlog.Logger) (*TelemetrySubscriber, error) {
	socket, err := zmq4.NewSocket(zmq4.SUB)
	if err != nil {
		return nil, fmt.Errorf("failed to create SUB socket: %w", err)
	}

	if err := socket.SetSubscribe(TopicTelemetry); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	// Bounded receives so Run notices cancellation.
	if err := socket.SetRcvtimeo(500 * time.Millisecond); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set receive timeout: %w", err)
	}

	if err := socket.Connect(address); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	return &TelemetrySubscriber{
		socket:  socket,
		address: address,
		logger:  logger,
	}, nil
}

// Run receives until ctx is done, then closes the socket.
func (s *TelemetrySubscriber) Run(ctx context.Context, handler SnapshotHandler) error {
	defer s.socket.Close()
	s.logger.Infof("Telemetry subscriber connected to %s", s.address)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		parts, err := s.socket.RecvMessageBytes(0)
		if err != nil {
			// Receive timeouts surface as errors too.
			continue
		}
		if len(parts) != 2 {
			s.logger.Warnf("Ignoring %d part message", len(parts))
			continue
		}

		snapshot, stationID, err := DecodeSnapshot(parts[1])
		if err != nil {
			s.logger.Warnf("Error decoding snapshot: %v", err)
			continue
		}
		handler(snapshot, stationID)
	}
}
