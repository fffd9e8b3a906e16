package teleop

import (
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/open-teleop/station/pkg/channel"
	"github.com/open-teleop/station/pkg/control"
)

type fakeController struct {
	authorized bool
	override   bool
	powered    bool
	mode       control.Mode
	speed      float64
	open       bool
}

func (f *fakeController) Authorize(authorized bool) {
	f.authorized = authorized
	if !authorized {
		f.override = false
	}
}

func (f *fakeController) SetOverride(enabled bool) error {
	if enabled && !f.authorized {
		return control.ErrNotAuthorized
	}
	f.override = enabled
	return nil
}

func (f *fakeController) SetMode(mode control.Mode) error {
	f.mode = mode
	return nil
}

func (f *fakeController) Power(on bool) error {
	if on && !f.authorized {
		return control.ErrNotAuthorized
	}
	if !f.open {
		return fmt.Errorf("send power: %w", channel.ErrNotOpen)
	}
	f.powered = on
	return nil
}

func (f *fakeController) SetDriveSpeed(speed float64) error {
	f.speed = speed
	if !f.open {
		return fmt.Errorf("send drive_speed: %w", channel.ErrNotOpen)
	}
	return nil
}

func (f *fakeController) State() control.State {
	return control.State{Authorized: f.authorized, Override: f.override, Powered: f.powered, Mode: f.mode.String(), MaxSpeed: f.speed}
}

func newApp(ctrl *fakeController, password string) *fiber.App {
	s := NewTeleopService(ctrl, password, nil)
	app := fiber.New()
	app.Post("/api/authorize", s.AuthorizeHandler)
	app.Delete("/api/authorize", s.RevokeHandler)
	app.Post("/api/override", s.OverrideHandler)
	app.Post("/api/power", s.PowerHandler)
	app.Post("/api/mode", s.ModeHandler)
	app.Post("/api/drive-speed", s.DriveSpeedHandler)
	app.Get("/api/state", s.StateHandler)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) int {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp.StatusCode
}

func TestAuthorizeFlow(t *testing.T) {
	ctrl := &fakeController{open: true}
	app := newApp(ctrl, "secret")

	if code := do(t, app, "POST", "/api/override", `{"enabled":true}`); code != fiber.StatusForbidden {
		t.Errorf("override before authorize = %d", code)
	}
	if code := do(t, app, "POST", "/api/authorize", `{"password":"nope"}`); code != fiber.StatusUnauthorized {
		t.Errorf("wrong password = %d", code)
	}
	if ctrl.authorized {
		t.Fatal("wrong password authorized")
	}
	if code := do(t, app, "POST", "/api/authorize", `{"password":"secret"}`); code != fiber.StatusOK {
		t.Fatalf("authorize = %d", code)
	}
	if code := do(t, app, "POST", "/api/override", `{"enabled":true}`); code != fiber.StatusOK || !ctrl.override {
		t.Errorf("override = %d, %v", code, ctrl.override)
	}
	if code := do(t, app, "DELETE", "/api/authorize", ""); code != fiber.StatusOK {
		t.Errorf("revoke = %d", code)
	}
	if ctrl.authorized || ctrl.override {
		t.Error("revoke left authorization or override set")
	}
}

func TestEmptyPasswordRefusesEveryone(t *testing.T) {
	ctrl := &fakeController{open: true}
	s := NewTeleopService(ctrl, "", nil)
	for _, pw := range []string{"", "anything"} {
		if err := s.Authorize(pw); !errors.Is(err, ErrNoPassword) {
			t.Errorf("Authorize(%q) = %v, want ErrNoPassword", pw, err)
		}
	}
	if ctrl.authorized {
		t.Fatal("station without a password authorized an operator")
	}

	app := newApp(ctrl, "")
	if code := do(t, app, "POST", "/api/authorize", `{"password":""}`); code != fiber.StatusForbidden {
		t.Errorf("authorize without configured password = %d", code)
	}
	if code := do(t, app, "POST", "/api/override", `{"enabled":true}`); code != fiber.StatusForbidden || ctrl.override {
		t.Errorf("override without configured password = %d, %v", code, ctrl.override)
	}
}

func TestPowerHandler(t *testing.T) {
	ctrl := &fakeController{}
	app := newApp(ctrl, "")

	if code := do(t, app, "POST", "/api/power", `{"on":true}`); code != fiber.StatusForbidden {
		t.Errorf("power on unauthorized = %d", code)
	}
	do(t, app, "POST", "/api/authorize", `{}`)
	if code := do(t, app, "POST", "/api/power", `{"on":true}`); code != fiber.StatusServiceUnavailable {
		t.Errorf("power on with closed channel = %d", code)
	}
	ctrl.open = true
	if code := do(t, app, "POST", "/api/power", `{"on":true}`); code != fiber.StatusOK || !ctrl.powered {
		t.Errorf("power on = %d, powered %v", code, ctrl.powered)
	}
}

func TestModeHandler(t *testing.T) {
	ctrl := &fakeController{}
	app := newApp(ctrl, "")

	if code := do(t, app, "POST", "/api/mode", `{"mode":"ik"}`); code != fiber.StatusOK {
		t.Errorf("mode ik = %d", code)
	}
	if ctrl.mode != control.ModeInverseKinematics {
		t.Errorf("mode = %v", ctrl.mode)
	}
	if code := do(t, app, "POST", "/api/mode", `{"mode":"polar"}`); code != fiber.StatusBadRequest {
		t.Errorf("unknown mode = %d", code)
	}
}

func TestDriveSpeedAppliesWhileClosed(t *testing.T) {
	ctrl := &fakeController{}
	app := newApp(ctrl, "")

	if code := do(t, app, "POST", "/api/drive-speed", `{"speed":0.4}`); code != fiber.StatusOK {
		t.Errorf("drive speed = %d", code)
	}
	if ctrl.speed != 0.4 {
		t.Errorf("speed = %v", ctrl.speed)
	}
	if code := do(t, app, "POST", "/api/drive-speed", `{"speed":1.5}`); code != fiber.StatusBadRequest {
		t.Errorf("out of range speed = %d", code)
	}
	if code := do(t, app, "POST", "/api/drive-speed", `not json`); code != fiber.StatusBadRequest {
		t.Errorf("bad body = %d", code)
	}
}
