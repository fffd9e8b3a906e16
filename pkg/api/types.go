package api

import (
	"github.com/open-teleop/station/pkg/input"
	"github.com/open-teleop/station/pkg/protocol"
)

// --- Data Structures for WebSocket Messages ---

// InputReply answers every event on /ws/input with the resulting sample.
type InputReply struct {
	Stick  string       `json:"stick"`
	Sample input.Sample `json:"sample"`
	Error  string       `json:"error,omitempty"`
}

// TelemetryMessage is pushed to /ws/telemetry clients.
type TelemetryMessage struct {
	Type      string            `json:"type"`
	Telemetry protocol.Snapshot `json:"telemetry"`
}
