package telemetry

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/open-teleop/station/pkg/protocol"
)

// Status summarizes the telemetry stream.
type Status struct {
	Frames     uint64    `json:"frames"`
	LastUpdate time.Time `json:"last_update"`
	// Stale is set when no frame arrived within the staleness limit.
	Stale bool `json:"stale"`
}

// TelemetryService keeps the latest rover snapshot for the REST API. It is
// registered as a display sink.
type TelemetryService struct {
	staleAfter time.Duration
	clock      func() time.Time

	mu       sync.RWMutex
	snapshot protocol.Snapshot
	frames   uint64
	updated  time.Time
}

// NewTelemetryService creates a new telemetry service instance. A snapshot
// older than staleAfter is reported as stale.
func NewTelemetryService(staleAfter time.Duration) *TelemetryService {
	return &TelemetryService{
		staleAfter: staleAfter,
		clock:      time.Now,
	}
}

// Name identifies the service as a sink.
func (s *TelemetryService) Name() string { return "telemetry" }

// Publish stores the snapshot.
func (s *TelemetryService) Publish(snapshot protocol.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot = snapshot
	s.frames++
	s.updated = snapshot.ReceivedAt
	if s.updated.IsZero() {
		s.updated = s.clock()
	}
	return nil
}

// GetSnapshot returns the latest snapshot and whether one has arrived.
func (s *TelemetryService) GetSnapshot() (protocol.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot, s.frames > 0
}

// GetStatus returns the stream summary.
func (s *TelemetryService) GetStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		Frames:     s.frames,
		LastUpdate: s.updated,
		Stale:      s.frames == 0 || s.clock().Sub(s.updated) > s.staleAfter,
	}
}

// GetTelemetryHandler handles API requests for the latest snapshot
func (s *TelemetryService) GetTelemetryHandler(c *fiber.Ctx) error {
	snapshot, ok := s.GetSnapshot()
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "no telemetry received yet")
	}
	return c.JSON(fiber.Map{
		"status":    "success",
		"telemetry": snapshot,
		"stream":    s.GetStatus(),
	})
}
