// Package api mounts the operator HTTP and websocket surface on fiber.
package api

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/open-teleop/station/domain/display"
	"github.com/open-teleop/station/domain/telemetry"
	"github.com/open-teleop/station/domain/teleop"
	customlog "github.com/open-teleop/station/pkg/log"
	"github.com/open-teleop/station/pkg/processing"
	"github.com/open-teleop/station/services"
)

// Routes bundles what the operator API serves. Nil members leave their
// routes unmounted.
type Routes struct {
	Teleop    *teleop.TeleopService
	Telemetry *telemetry.TelemetryService
	Display   *display.DisplayService
	Config    services.StationConfigService
	Input     *InputHandler
	Hub       *TelemetryHub
	Sinks     *processing.Dispatcher
}

// NewApp creates the fiber app with the JSON error handler and the standard
// middleware.
func NewApp(name string, accessLog bool) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               name,
		ErrorHandler:          ErrorHandler,
		DisableStartupMessage: true,
	})
	if accessLog {
		app.Use(logger.New())
	}
	app.Use(recover.New())
	return app
}

// ErrorHandler writes errors as {"error": message} with the fiber status, or
// 500 for anything else.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// RegisterRoutes mounts every route on app.
func RegisterRoutes(app *fiber.App, r Routes, log customlog.Logger) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "online",
			"service": "open-teleop station",
		})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	if r.Input != nil {
		app.Get("/ws/input", websocket.New(r.Input.HandleConn))
	}
	if r.Hub != nil {
		app.Get("/ws/telemetry", websocket.New(r.Hub.HandleConn))
	}

	api := app.Group("/api")
	if r.Telemetry != nil {
		api.Get("/telemetry", r.Telemetry.GetTelemetryHandler)
	}
	if r.Teleop != nil {
		api.Get("/state", r.Teleop.StateHandler)
		api.Post("/authorize", r.Teleop.AuthorizeHandler)
		api.Delete("/authorize", r.Teleop.RevokeHandler)
		api.Post("/override", r.Teleop.OverrideHandler)
		api.Post("/power", r.Teleop.PowerHandler)
		api.Post("/mode", r.Teleop.ModeHandler)
		api.Post("/drive-speed", r.Teleop.DriveSpeedHandler)
	}
	if r.Display != nil {
		api.Get("/display", r.Display.GetDisplayHandler)
		api.Post("/display", r.Display.SelectHandler)
	}
	if r.Sinks != nil {
		api.Get("/sinks", sinksHandler(r.Sinks))
	}
	if r.Config != nil {
		RegisterConfigRoutes(app, r.Config, log)
	}
}

// sinksHandler reports the telemetry fan-out queue and per sink counters.
func sinksHandler(d *processing.Dispatcher) fiber.Handler {
	return func(c *fiber.Ctx) error {
		m := d.GetMetrics()
		return c.JSON(fiber.Map{
			"name":           d.GetName(),
			"queue_length":   d.GetQueueLength(),
			"queue_capacity": d.GetQueueCapacity(),
			"processed":      m.ProcessedCount,
			"errors":         m.ErrorCount,
			"dropped":        m.DroppedCount,
			"avg_publish_us": m.ProcessingTimeAvg,
			"max_publish_us": m.ProcessingTimeMax,
			"sinks":          d.Registry().GetSinkStats(),
		})
	}
}
