package teleop

import (
	"crypto/subtle"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/open-teleop/station/pkg/channel"
	"github.com/open-teleop/station/pkg/control"
	customlog "github.com/open-teleop/station/pkg/log"
)

var (
	// ErrWrongPassword is returned when authorization is refused.
	ErrWrongPassword = errors.New("wrong password")
	// ErrNoPassword is returned when the station has no operator password.
	ErrNoPassword = errors.New("no operator password configured")
)

// Controller is the part of the control loop the operator acts on.
type Controller interface {
	Authorize(authorized bool)
	SetOverride(enabled bool) error
	SetMode(mode control.Mode) error
	Power(on bool) error
	SetDriveSpeed(speed float64) error
	State() control.State
}

// AuthorizeRequest carries the operator password.
type AuthorizeRequest struct {
	Password string `json:"password"`
}

// OverrideRequest toggles the override flag.
type OverrideRequest struct {
	Enabled bool `json:"enabled"`
}

// PowerRequest switches the rover actuators.
type PowerRequest struct {
	On bool `json:"on"`
}

// ModeRequest selects the arm control mode.
type ModeRequest struct {
	Mode string `json:"mode"`
}

// DriveSpeedRequest sets the wheel speed limit in [0,1].
type DriveSpeedRequest struct {
	Speed float64 `json:"speed"`
}

// TeleopService handles operator actions that are not stick input.
type TeleopService struct {
	controller Controller
	password   string
	logger     customlog.Logger
}

// NewTeleopService creates a new teleop service instance. With an empty
// password nobody can be authorized.
func NewTeleopService(controller Controller, password string, logger customlog.Logger) *TeleopService {
	if logger == nil {
		logger = customlog.Discard()
	}
	return &TeleopService{
		controller: controller,
		password:   password,
		logger:     logger.WithField("component", "teleop"),
	}
}

// Authorize checks the password and grants authorization.
func (s *TeleopService) Authorize(password string) error {
	if s.password == "" {
		s.logger.Warnf("Authorization refused: %v", ErrNoPassword)
		return ErrNoPassword
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(s.password)) != 1 {
		s.logger.Warnf("Authorization refused")
		return ErrWrongPassword
	}
	s.controller.Authorize(true)
	s.logger.Infof("Operator authorized")
	return nil
}

// Revoke drops authorization and with it the override.
func (s *TeleopService) Revoke() {
	s.controller.Authorize(false)
	s.logger.Infof("Operator authorization revoked")
}

// AuthorizeHandler handles POST /api/authorize
func (s *TeleopService) AuthorizeHandler(c *fiber.Ctx) error {
	var req AuthorizeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := s.Authorize(req.Password); err != nil {
		return toFiberError(err)
	}
	return s.stateResponse(c)
}

// RevokeHandler handles DELETE /api/authorize
func (s *TeleopService) RevokeHandler(c *fiber.Ctx) error {
	s.Revoke()
	return s.stateResponse(c)
}

// OverrideHandler handles POST /api/override
func (s *TeleopService) OverrideHandler(c *fiber.Ctx) error {
	var req OverrideRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := s.controller.SetOverride(req.Enabled); err != nil {
		return toFiberError(err)
	}
	return s.stateResponse(c)
}

// PowerHandler handles POST /api/power
func (s *TeleopService) PowerHandler(c *fiber.Ctx) error {
	var req PowerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := s.controller.Power(req.On); err != nil {
		return toFiberError(err)
	}
	return s.stateResponse(c)
}

// ModeHandler handles POST /api/mode
func (s *TeleopService) ModeHandler(c *fiber.Ctx) error {
	var req ModeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	mode, err := control.ParseMode(req.Mode)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := s.controller.SetMode(mode); err != nil {
		return toFiberError(err)
	}
	return s.stateResponse(c)
}

// DriveSpeedHandler handles POST /api/drive-speed. The local limit is
// applied even when the rover cannot be reached; the response then carries
// a warning.
func (s *TeleopService) DriveSpeedHandler(c *fiber.Ctx) error {
	var req DriveSpeedRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if req.Speed < 0 || req.Speed > 1 {
		return fiber.NewError(fiber.StatusBadRequest, "speed must be within [0,1]")
	}
	err := s.controller.SetDriveSpeed(req.Speed)
	if err != nil && !errors.Is(err, channel.ErrNotOpen) {
		return toFiberError(err)
	}
	resp := fiber.Map{"status": "success", "state": s.controller.State()}
	if err != nil {
		resp["warning"] = err.Error()
	}
	return c.JSON(resp)
}

// StateHandler handles GET /api/state
func (s *TeleopService) StateHandler(c *fiber.Ctx) error {
	return s.stateResponse(c)
}

func (s *TeleopService) stateResponse(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "success",
		"state":  s.controller.State(),
	})
}

// toFiberError maps domain errors onto HTTP status codes.
func toFiberError(err error) error {
	switch {
	case errors.Is(err, ErrWrongPassword):
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	case errors.Is(err, control.ErrNotAuthorized), errors.Is(err, ErrNoPassword):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case errors.Is(err, channel.ErrNotOpen):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	default:
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
}
