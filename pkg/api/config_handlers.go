package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"

	customlog "github.com/open-teleop/station/pkg/log"
	"github.com/open-teleop/station/services"
)

// ConfigHandler holds dependencies for configuration API endpoints.
type ConfigHandler struct {
	configService services.StationConfigService
	logger        customlog.Logger
}

// NewConfigHandler creates a new handler for configuration endpoints.
func NewConfigHandler(configService services.StationConfigService, logger customlog.Logger) *ConfigHandler {
	if configService == nil {
		panic("ConfigService cannot be nil in NewConfigHandler")
	}
	if logger == nil {
		panic("Logger cannot be nil in NewConfigHandler")
	}
	return &ConfigHandler{
		configService: configService,
		logger:        logger,
	}
}

// RegisterConfigRoutes registers the configuration API endpoints with the Fiber app.
func RegisterConfigRoutes(app *fiber.App, configService services.StationConfigService, logger customlog.Logger) {
	h := NewConfigHandler(configService, logger)

	apiGroup := app.Group("/api/v1/config")
	apiGroup.Get("/station", h.handleGetStationConfig)
	apiGroup.Put("/station", h.handleUpdateStationConfig)

	logger.Infof("Registered station configuration API endpoints under /api/v1/config")
}

// handleGetStationConfig handles GET requests to retrieve the current station config YAML.
func (h *ConfigHandler) handleGetStationConfig(c *fiber.Ctx) error {
	h.logger.Debugf("Handling GET request for /api/v1/config/station")
	if h.configService.GetCurrentConfig() == nil {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{
			"error": "Station configuration not found or not yet set.",
		})
	}

	yamlData, err := h.configService.GetCurrentConfigYAML()
	if err != nil {
		h.logger.Errorf("Failed to get current station config YAML: %v", err)
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": fmt.Sprintf("Failed to retrieve configuration: %v", err),
		})
	}

	c.Set(fiber.HeaderContentType, "application/x-yaml")
	return c.Send(yamlData)
}

// handleUpdateStationConfig handles PUT requests to update the station config YAML.
func (h *ConfigHandler) handleUpdateStationConfig(c *fiber.Ctx) error {
	h.logger.Debugf("Handling PUT request for /api/v1/config/station")

	switch c.Get(fiber.HeaderContentType) {
	case "application/x-yaml", "application/yaml", "text/yaml":
	default:
		h.logger.Warnf("Received PUT request with unexpected Content-Type: %s", c.Get(fiber.HeaderContentType))
	}

	newConfigYAML := c.Body()
	if len(newConfigYAML) == 0 {
		h.logger.Errorf("Received empty body in PUT request for station config update.")
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": "Request body cannot be empty.",
		})
	}

	if err := h.configService.UpdateConfig(newConfigYAML); err != nil {
		h.logger.Errorf("Failed to update station configuration: %v", err)
		if errors.Is(err, services.ErrInvalidConfig) {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{
				"error": fmt.Sprintf("Configuration update failed: %v", err),
			})
		}
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": fmt.Sprintf("Internal server error during configuration update: %v", err),
		})
	}

	h.logger.Infof("Successfully processed PUT request to update station configuration.")
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message": "Station configuration updated and applied.",
	})
}
