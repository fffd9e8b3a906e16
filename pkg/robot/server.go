package robot

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	customlog "github.com/open-teleop/station/pkg/log"
)

const telemetryWriteTimeout = 100 * time.Millisecond

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(telemetryWriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// Server exposes a Rover on a websocket endpoint and streams telemetry to
// every connected station.
type Server struct {
	rover    *Rover
	interval time.Duration
	logger   customlog.Logger

	mu      sync.Mutex
	nextID  int32
	clients map[int32]*client
}

// NewServer creates a server that sends telemetry every interval.
func NewServer(rover *Rover, interval time.Duration, logger customlog.Logger) *Server {
	if logger == nil {
		logger = customlog.Discard()
	}
	return &Server{
		rover:    rover,
		interval: interval,
		logger:   logger.WithField("component", "robot-server"),
		clients:  make(map[int32]*client),
	}
}

// Register mounts GET / (status) and GET /ws on app.
func (s *Server) Register(app *fiber.App) {
	app.Get("/", func(c *fiber.Ctx) error {
		s.mu.Lock()
		n := len(s.clients)
		s.mu.Unlock()
		return c.JSON(fiber.Map{
			"status":  "ok",
			"powered": s.rover.Powered(),
			"display": s.rover.Display(),
			"images":  s.rover.Images(),
			"clients": n,
		})
	})

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(s.handle))
}

func (s *Server) handle(conn *websocket.Conn) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.clients[id] = &client{conn: conn}
	s.mu.Unlock()

	s.logger.Infof("Station %d connected from %s", id, conn.RemoteAddr())
	defer func() {
		s.mu.Lock()
		delete(s.clients, id)
		s.mu.Unlock()
		s.rover.Release(id)
		s.logger.Infof("Station %d disconnected", id)
	}()

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warnf("Station %d read error: %v", id, err)
			}
			return
		}
		if mt != websocket.BinaryMessage {
			s.logger.Debugf("Station %d: ignoring message type %d", id, mt)
			continue
		}
		if _, err := s.rover.HandleFrame(id, msg, time.Now()); err != nil {
			s.logger.Warnf("Station %d: %v", id, err)
		}
	}
}

// Run broadcasts telemetry until ctx is done.
func (s *Server) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.broadcast(now)
		}
	}
}

func (s *Server) broadcast(now time.Time) {
	s.mu.Lock()
	targets := make(map[int32]*client, len(s.clients))
	for id, c := range s.clients {
		targets[id] = c
	}
	s.mu.Unlock()

	for id, c := range targets {
		if err := c.write(s.rover.Frame(id, now)); err != nil {
			s.logger.Debugf("Station %d: telemetry write failed: %v", id, err)
		}
	}
}
