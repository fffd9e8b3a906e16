package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	customlog "github.com/open-teleop/station/pkg/log"
	"github.com/open-teleop/station/pkg/metrics"
)

const (
	DefaultReconnectInterval = 2 * time.Second
	DefaultWriteTimeout      = 50 * time.Millisecond
	defaultHandshakeTimeout  = 5 * time.Second
)

// WebsocketChannel is a client connection to the rover's websocket endpoint.
// Run keeps it connected; Send never queues.
type WebsocketChannel struct {
	url               string
	handler           FrameHandler
	logger            customlog.Logger
	dialer            *websocket.Dialer
	reconnectInterval time.Duration
	writeTimeout      time.Duration

	mu   sync.Mutex
	conn *websocket.Conn

	// gorilla allows one concurrent writer.
	writeMu sync.Mutex
}

// NewWebsocketChannel creates a disconnected channel for url. Inbound binary
// frames go to handler; text frames are ignored.
func NewWebsocketChannel(url string, handler FrameHandler, logger customlog.Logger) *WebsocketChannel {
	if logger == nil {
		logger = customlog.Discard()
	}
	return &WebsocketChannel{
		url:               url,
		handler:           handler,
		logger:            logger.WithField("component", "channel"),
		dialer:            &websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout},
		reconnectInterval: DefaultReconnectInterval,
		writeTimeout:      DefaultWriteTimeout,
	}
}

// SetReconnectInterval sets the pause between connection attempts.
func (c *WebsocketChannel) SetReconnectInterval(d time.Duration) {
	if d > 0 {
		c.reconnectInterval = d
	}
}

// SetWriteTimeout bounds how long Send may block on a slow socket.
func (c *WebsocketChannel) SetWriteTimeout(d time.Duration) {
	if d > 0 {
		c.writeTimeout = d
	}
}

// URL returns the rover endpoint.
func (c *WebsocketChannel) URL() string { return c.url }

// IsOpen reports whether a connection is established.
func (c *WebsocketChannel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send writes one binary frame. A failed write closes the connection and
// Run reconnects.
func (c *WebsocketChannel) Send(frame []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotOpen
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		c.drop(conn)
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		c.drop(conn)
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Run dials the rover and reads frames until ctx is done, reconnecting after
// every failure.
func (c *WebsocketChannel) Run(ctx context.Context) error {
	for {
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warnf("Connect to %s failed: %v", c.url, err)
		} else {
			c.logger.Infof("Connected to rover at %s", c.url)
			c.serve(ctx, conn)
			c.logger.Warnf("Disconnected from rover at %s", c.url)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.reconnectInterval):
		}
	}
}

func (c *WebsocketChannel) serve(ctx context.Context, conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	metrics.SetChannelOpen(true)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.drop(conn)
		case <-done:
		}
	}()

	defer c.drop(conn)
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.logger.Debugf("Read error: %v", err)
			}
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		if c.handler != nil {
			c.handler(data)
		}
	}
}

// drop closes conn if it is still the current connection.
func (c *WebsocketChannel) drop(conn *websocket.Conn) {
	c.mu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
	}
	c.mu.Unlock()
	if current {
		metrics.SetChannelOpen(false)
		_ = conn.Close()
	}
}

// Close drops the current connection, if any. Run keeps reconnecting until
// its context is done.
func (c *WebsocketChannel) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		c.drop(conn)
	}
	return nil
}
