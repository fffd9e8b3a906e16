package api

import (
	"encoding/json"
	"io"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	gorilla "github.com/gorilla/websocket"

	"github.com/open-teleop/station/domain/display"
	"github.com/open-teleop/station/domain/telemetry"
	"github.com/open-teleop/station/pkg/control"
	"github.com/open-teleop/station/pkg/input"
	customlog "github.com/open-teleop/station/pkg/log"
	"github.com/open-teleop/station/pkg/processing"
	"github.com/open-teleop/station/pkg/protocol"
	"github.com/open-teleop/station/services"
)

type stickCall struct {
	stick  control.Stick
	sample input.Sample
}

type recordingUpdater struct {
	calls []stickCall
}

func (r *recordingUpdater) UpdateStick(stick control.Stick, sample input.Sample) error {
	r.calls = append(r.calls, stickCall{stick, sample})
	return nil
}

type nopSelector struct{}

func (nopSelector) SelectDisplay(uint8) error { return nil }

func get(t *testing.T, app *fiber.App, path string) (int, string) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", path, nil))
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestBasicRoutes(t *testing.T) {
	app := NewApp("test", false)
	RegisterRoutes(app, Routes{}, customlog.Discard())

	if code, body := get(t, app, "/"); code != fiber.StatusOK || !strings.Contains(body, "online") {
		t.Errorf("GET / = %d %s", code, body)
	}
	if code, _ := get(t, app, "/health"); code != fiber.StatusOK {
		t.Errorf("GET /health = %d", code)
	}
	if code, body := get(t, app, "/metrics"); code != fiber.StatusOK || !strings.Contains(body, "go_goroutines") {
		t.Errorf("GET /metrics = %d", code)
	}
	if code, body := get(t, app, "/ws/input"); code != fiber.StatusUpgradeRequired || !strings.Contains(body, `"error"`) {
		t.Errorf("GET /ws/input without upgrade = %d %s", code, body)
	}
}

func TestTelemetryAndDisplayRoutes(t *testing.T) {
	tel := telemetry.NewTelemetryService(time.Second)
	disp := display.NewDisplayService(nopSelector{}, []string{"logo", "smile"})
	app := NewApp("test", false)
	RegisterRoutes(app, Routes{Telemetry: tel, Display: disp}, customlog.Discard())

	if code, body := get(t, app, "/api/telemetry"); code != fiber.StatusNotFound || !strings.Contains(body, "no telemetry") {
		t.Errorf("GET /api/telemetry before data = %d %s", code, body)
	}
	_ = tel.Publish(protocol.Snapshot{BatteryVoltage: 12})
	if code, _ := get(t, app, "/api/telemetry"); code != fiber.StatusOK {
		t.Errorf("GET /api/telemetry = %d", code)
	}

	req := httptest.NewRequest("POST", "/api/display", strings.NewReader(`{"name":"smile"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != fiber.StatusOK {
		t.Fatalf("POST /api/display = %v %v", resp.StatusCode, err)
	}
	code, body := get(t, app, "/api/display")
	if code != fiber.StatusOK || !strings.Contains(body, `"name":"smile"`) {
		t.Errorf("GET /api/display = %d %s", code, body)
	}

	req = httptest.NewRequest("POST", "/api/display", strings.NewReader(`{"index":9}`))
	req.Header.Set("Content-Type", "application/json")
	resp, _ = app.Test(req)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("out of range display = %d", resp.StatusCode)
	}
}

func TestSinksRoute(t *testing.T) {
	d := processing.NewDispatcher("telemetry", 1, 4, nil)
	d.AddSink(processing.SinkFunc{SinkName: "bench", Fn: func(protocol.Snapshot) error { return nil }})
	app := NewApp("test", false)
	RegisterRoutes(app, Routes{Sinks: d}, customlog.Discard())

	code, body := get(t, app, "/api/sinks")
	if code != fiber.StatusOK {
		t.Fatalf("GET /api/sinks = %d", code)
	}
	if !strings.Contains(body, `"queue_capacity":4`) || !strings.Contains(body, `"name":"bench"`) {
		t.Errorf("GET /api/sinks body = %s", body)
	}
}

func TestConfigRoutes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "station_config.yaml")
	svc, err := services.NewStationConfigService(path, customlog.Discard())
	if err != nil {
		t.Fatal(err)
	}
	app := NewApp("test", false)
	RegisterRoutes(app, Routes{Config: svc}, customlog.Discard())

	if code, _ := get(t, app, "/api/v1/config/station"); code != fiber.StatusNotFound {
		t.Errorf("GET before config = %d", code)
	}

	put := func(body string) int {
		req := httptest.NewRequest("PUT", "/api/v1/config/station", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/x-yaml")
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("PUT: %v", err)
		}
		return resp.StatusCode
	}

	if code := put(""); code != fiber.StatusBadRequest {
		t.Errorf("empty PUT = %d", code)
	}
	if code := put("version: '1'\n"); code != fiber.StatusBadRequest {
		t.Errorf("invalid PUT = %d", code)
	}
	if code := put("version: '1'\nconfig_id: bench\nprotocol:\n  profile: legacy\n"); code != fiber.StatusOK {
		t.Fatalf("valid PUT = %d", code)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config not persisted: %v", err)
	}
	code, body := get(t, app, "/api/v1/config/station")
	if code != fiber.StatusOK || !strings.Contains(body, "legacy") {
		t.Errorf("GET after PUT = %d %s", code, body)
	}
}

func TestInputHandlerApply(t *testing.T) {
	up := &recordingUpdater{}
	h := NewInputHandler(up, 0, nil)
	rect := input.Rect{Left: 0, Top: 0, Width: 100, Height: 100}

	s, err := h.Apply(input.Event{Stick: "drive", Type: input.EventMove, Rect: rect, Points: []input.Point{{X: 75, Y: 50}}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !s.Active || s.X != 0.5 || s.Y != 0 {
		t.Errorf("sample = %+v", s)
	}
	if _, err := h.Apply(input.Event{Stick: "camera", Type: input.EventMove}); err == nil {
		t.Error("unknown stick accepted")
	}

	h.ReleaseAll()
	if len(up.calls) != 4 {
		t.Fatalf("updater saw %d calls, want 4", len(up.calls))
	}
	for _, c := range up.calls[1:] {
		if c.sample != input.Reset() {
			t.Errorf("release of %s sent %+v", c.stick, c.sample)
		}
	}
}

func TestTelemetryHubBroadcasts(t *testing.T) {
	hub := NewTelemetryHub(nil)
	app := NewApp("test", false)
	RegisterRoutes(app, Routes{Hub: hub}, customlog.Discard())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	conn, _, err := gorilla.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/telemetry", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := hub.Publish(protocol.Snapshot{LeftSpeed: 12.5}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg TelemetryMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != "telemetry" || msg.Telemetry.LeftSpeed != 12.5 {
		t.Errorf("message = %+v", msg)
	}
}
