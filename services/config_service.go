package services

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/open-teleop/station/pkg/config"
	customlog "github.com/open-teleop/station/pkg/log"
)

// ErrInvalidConfig marks updates rejected before anything was written.
var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigApplier receives a configuration once it has been validated and
// persisted. The control loop implements it through a small adapter in
// cmd/station.
type ConfigApplier interface {
	ApplyConfig(cfg *config.Config) error
}

// StationConfigService defines the interface for managing the operational
// station configuration.
type StationConfigService interface {
	LoadConfig() error
	GetCurrentConfig() *config.Config
	GetCurrentConfigYAML() ([]byte, error)
	UpdateConfig(newConfigYAML []byte) error
	PersistConfig(yamlData []byte) error
	SetApplier(a ConfigApplier)
}

// stationConfigService implements the StationConfigService interface.
type stationConfigService struct {
	operationalConfigPath string
	logger                customlog.Logger
	applier               ConfigApplier
	currentConfig         *config.Config
	mu                    sync.RWMutex
}

// NewStationConfigService creates a new StationConfigService.
// The applier can be set later via SetApplier.
func NewStationConfigService(operationalConfigPath string, logger customlog.Logger) (StationConfigService, error) {
	if operationalConfigPath == "" {
		return nil, fmt.Errorf("operational configuration path cannot be empty")
	}
	if logger == nil {
		logger = customlog.NewWriterLogger("info", os.Stderr)
		logger.Warnf("No logger provided to StationConfigService, using default.")
	}

	service := &stationConfigService{
		operationalConfigPath: operationalConfigPath,
		logger:                logger,
	}

	if err := service.LoadConfig(); err != nil {
		// The file may be provided later through the API.
		logger.Warnf("Initial load of operational config '%s' failed: %v. Service created, but config is nil.", operationalConfigPath, err)
		return service, nil
	}

	logger.Infof("StationConfigService initialized successfully for path: %s", operationalConfigPath)
	return service, nil
}

// LoadConfig reads the operational config file from disk and updates the currentConfig.
func (s *stationConfigService) LoadConfig() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Infof("Loading operational configuration from: %s", s.operationalConfigPath)
	cfg, err := config.LoadConfig(s.operationalConfigPath)
	if err != nil {
		s.logger.Errorf("Error loading operational config file '%s': %v", s.operationalConfigPath, err)
		s.currentConfig = nil
		return fmt.Errorf("error loading operational config file '%s': %w", s.operationalConfigPath, err)
	}
	if err := cfg.Validate(); err != nil {
		s.currentConfig = nil
		return fmt.Errorf("invalid operational config file '%s': %w", s.operationalConfigPath, err)
	}

	s.currentConfig = cfg
	s.logger.Infof("Successfully loaded operational configuration ID: %s, Version: %s", cfg.ConfigID, cfg.Version)
	return nil
}

// GetCurrentConfig returns the currently loaded operational configuration.
// It's read-only; modifications should go through UpdateConfig.
func (s *stationConfigService) GetCurrentConfig() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentConfig
}

// GetCurrentConfigYAML returns the current configuration as YAML. TOML files
// are served in their YAML form.
func (s *stationConfigService) GetCurrentConfigYAML() ([]byte, error) {
	s.mu.RLock()
	cfg := s.currentConfig
	s.mu.RUnlock()

	if cfg == nil {
		return nil, fmt.Errorf("no operational configuration loaded from '%s'", s.operationalConfigPath)
	}
	return cfg.Marshal()
}

// UpdateConfig validates, persists and applies the new operational
// configuration. A configuration the applier rejects is still persisted and
// reported as an error so the operator can fix it.
func (s *stationConfigService) UpdateConfig(newConfigYAML []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Infof("Attempting to update operational configuration from provided YAML")

	newCfg, err := config.ParseConfig(newConfigYAML)
	if err != nil {
		s.logger.Errorf("Failed to parse provided YAML configuration: %v", err)
		return fmt.Errorf("%w: invalid YAML format: %w", ErrInvalidConfig, err)
	}
	if err := newCfg.Validate(); err != nil {
		s.logger.Errorf("Validation failed: %v", err)
		return fmt.Errorf("%w: validation failed: %w", ErrInvalidConfig, err)
	}
	newCfg.LastUpdated = time.Now().UTC().Format(time.RFC3339)

	data, err := s.encodeUnlocked(newCfg)
	if err != nil {
		return err
	}
	if err := s.persistConfigUnlocked(data); err != nil {
		return err
	}

	oldCfgID := "N/A"
	if s.currentConfig != nil {
		oldCfgID = s.currentConfig.ConfigID
	}
	s.currentConfig = newCfg
	s.logger.Infof("Successfully updated and persisted operational configuration. ID %s -> %s, Version: %s", oldCfgID, newCfg.ConfigID, newCfg.Version)

	if s.applier == nil {
		s.logger.Infof("ConfigApplier not configured, changes take effect on restart.")
		return nil
	}
	if err := s.applier.ApplyConfig(newCfg); err != nil {
		s.logger.Warnf("Failed to apply updated configuration: %v", err)
		return fmt.Errorf("configuration persisted but not applied: %w", err)
	}
	return nil
}

func (s *stationConfigService) encodeUnlocked(cfg *config.Config) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if config.IsTOML(s.operationalConfigPath) {
		data, err = cfg.EncodeTOML()
	} else {
		data, err = cfg.Marshal()
	}
	if err != nil {
		return nil, fmt.Errorf("error encoding configuration: %w", err)
	}
	return data, nil
}

// PersistConfig writes data to the operational config file path.
func (s *stationConfigService) PersistConfig(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistConfigUnlocked(data)
}

// persistConfigUnlocked assumes the caller holds the lock.
func (s *stationConfigService) persistConfigUnlocked(data []byte) error {
	s.logger.Infof("Persisting operational configuration to: %s", s.operationalConfigPath)
	if err := os.WriteFile(s.operationalConfigPath, data, 0644); err != nil {
		s.logger.Errorf("Error writing operational config file '%s': %v", s.operationalConfigPath, err)
		return fmt.Errorf("error writing operational config file '%s': %w", s.operationalConfigPath, err)
	}
	return nil
}

// SetApplier allows injecting the ConfigApplier after initialization.
func (s *stationConfigService) SetApplier(a ConfigApplier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applier = a
	s.logger.Infof("ConfigApplier injected into StationConfigService.")
}
