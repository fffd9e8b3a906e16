package api

import (
	"encoding/json"
	"errors"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/open-teleop/station/pkg/control"
	"github.com/open-teleop/station/pkg/input"
	customlog "github.com/open-teleop/station/pkg/log"
	"github.com/open-teleop/station/pkg/protocol"
)

const wsWriteTimeout = 200 * time.Millisecond

// StickUpdater receives stick samples. *control.Loop implements it.
type StickUpdater interface {
	UpdateStick(stick control.Stick, sample input.Sample) error
}

// InputHandler turns operator pointer events into stick samples.
type InputHandler struct {
	updater  StickUpdater
	logger   customlog.Logger
	samplers map[control.Stick]*input.Sampler
}

// NewInputHandler creates one sampler per stick with the given overscan
// margin.
func NewInputHandler(updater StickUpdater, margin float64, logger customlog.Logger) *InputHandler {
	if logger == nil {
		logger = customlog.Discard()
	}
	samplers := make(map[control.Stick]*input.Sampler, 3)
	for _, st := range []control.Stick{control.StickDrive, control.StickArmLeft, control.StickArmRight} {
		samplers[st] = input.NewSampler(string(st), margin)
	}
	return &InputHandler{
		updater:  updater,
		logger:   logger.WithField("component", "input"),
		samplers: samplers,
	}
}

// Apply feeds one event to its stick's sampler and hands the sample to the
// loop.
func (h *InputHandler) Apply(ev input.Event) (input.Sample, error) {
	stick, err := control.ParseStick(ev.Stick)
	if err != nil {
		return input.Reset(), err
	}
	sample := h.samplers[stick].Apply(ev)
	if err := h.updater.UpdateStick(stick, sample); err != nil {
		return input.Reset(), err
	}
	return sample, nil
}

// ReleaseAll centers every stick. Called when the operator disconnects so a
// held stick does not keep the rover moving.
func (h *InputHandler) ReleaseAll() {
	for stick := range h.samplers {
		if _, err := h.Apply(input.Event{Stick: string(stick), Type: input.EventEnd}); err != nil {
			h.logger.Warnf("Failed to release %s: %v", stick, err)
		}
	}
}

// HandleConn handles incoming WebSocket messages for stick input.
func (h *InputHandler) HandleConn(conn *websocket.Conn) {
	h.logger.Infof("Input WebSocket connected: %s", conn.RemoteAddr())
	defer func() {
		h.ReleaseAll()
		h.logger.Infof("Input WebSocket disconnected: %s", conn.RemoteAddr())
	}()

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			logReadError(h.logger, "Input", err)
			return
		}
		if mt != websocket.TextMessage {
			h.logger.Infof("Ignoring non-text Input WS message type: %d", mt)
			continue
		}

		var ev input.Event
		reply := InputReply{}
		if err := json.Unmarshal(msg, &ev); err != nil {
			h.logger.Warnf("Failed to unmarshal input event from WS: %v. Message: %s", err, string(msg))
			reply.Error = err.Error()
		} else {
			reply.Stick = ev.Stick
			reply.Sample, err = h.Apply(ev)
			if err != nil {
				reply.Error = err.Error()
			}
		}

		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(reply); err != nil {
			h.logger.Debugf("Input WS reply failed: %v", err)
			return
		}
	}
}

func logReadError(logger customlog.Logger, name string, err error) {
	switch {
	case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure):
		logger.Errorf("%s WS read error: %v", name, err)
	case errors.Is(err, syscall.EPIPE), errors.Is(err, syscall.ECONNRESET):
		logger.Infof("%s WS connection reset", name)
	default:
		logger.Debugf("%s WS connection closed: %v", name, err)
	}
}

type hubClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *hubClient) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// TelemetryHub broadcasts JSON snapshots to /ws/telemetry clients. It is a
// display sink.
type TelemetryHub struct {
	logger customlog.Logger

	mu      sync.Mutex
	clients map[*hubClient]struct{}
}

// NewTelemetryHub creates an empty hub.
func NewTelemetryHub(logger customlog.Logger) *TelemetryHub {
	if logger == nil {
		logger = customlog.Discard()
	}
	return &TelemetryHub{
		logger:  logger.WithField("component", "telemetry-hub"),
		clients: make(map[*hubClient]struct{}),
	}
}

// Name identifies the hub as a sink.
func (h *TelemetryHub) Name() string { return "websocket" }

// ClientCount returns the number of connected clients.
func (h *TelemetryHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish sends the snapshot to every client. Clients that cannot keep up
// are disconnected.
func (h *TelemetryHub) Publish(snapshot protocol.Snapshot) error {
	data, err := json.Marshal(TelemetryMessage{Type: "telemetry", Telemetry: snapshot})
	if err != nil {
		return err
	}

	h.mu.Lock()
	clients := make([]*hubClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if err := c.write(data); err != nil {
			h.logger.Debugf("Dropping telemetry client %s: %v", c.conn.RemoteAddr(), err)
			h.remove(c)
			_ = c.conn.Close()
		}
	}
	return nil
}

func (h *TelemetryHub) remove(c *hubClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// HandleConn registers conn and blocks until the client goes away.
func (h *TelemetryHub) HandleConn(conn *websocket.Conn) {
	c := &hubClient{conn: conn}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Infof("Telemetry WebSocket connected: %s", conn.RemoteAddr())

	defer func() {
		h.remove(c)
		h.logger.Infof("Telemetry WebSocket disconnected: %s", conn.RemoteAddr())
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			logReadError(h.logger, "Telemetry", err)
			return
		}
	}
}
