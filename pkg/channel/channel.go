// Package channel carries binary frames between the station and the rover.
package channel

import "errors"

// ErrNotOpen is returned by Send while the channel is disconnected. The frame
// is dropped, never queued.
var ErrNotOpen = errors.New("channel not open")

// Channel is the outbound half of the rover link.
type Channel interface {
	IsOpen() bool
	// Send hands one whole frame to the transport without waiting for the
	// rover. It must not block the caller beyond a short write deadline.
	Send(frame []byte) error
}

// FrameHandler receives inbound frames in arrival order.
type FrameHandler func(frame []byte)
