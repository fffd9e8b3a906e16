package config

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/open-teleop/station/pkg/control"
	"github.com/open-teleop/station/pkg/input"
	"github.com/open-teleop/station/pkg/protocol"
)

// Config is the operational station configuration. It is served and updated
// through the config API and may change while the station runs.
type Config struct {
	Version     string         `yaml:"version" toml:"version" json:"version"`
	ConfigID    string         `yaml:"config_id" toml:"config_id" json:"config_id"`
	LastUpdated string         `yaml:"lastUpdated" toml:"lastUpdated" json:"lastUpdated"`
	StationID   string         `yaml:"station_id" toml:"station_id" json:"station_id"`
	Protocol    ProtocolConfig `yaml:"protocol" toml:"protocol" json:"protocol"`
	Control     ControlConfig  `yaml:"control" toml:"control" json:"control"`
	Input       InputConfig    `yaml:"input" toml:"input" json:"input"`
	Display     DisplayConfig  `yaml:"display" toml:"display" json:"display"`
}

// ProtocolConfig selects a protocol profile. Any field left at its zero
// value keeps the profile's constant.
type ProtocolConfig struct {
	Profile            string   `yaml:"profile" toml:"profile" json:"profile"`
	ByteOrder          string   `yaml:"byte_order,omitempty" toml:"byte_order,omitempty" json:"byte_order,omitempty"`
	TickIntervalMs     int      `yaml:"tick_interval_ms,omitempty" toml:"tick_interval_ms,omitempty" json:"tick_interval_ms,omitempty"`
	CommandFrameLength int      `yaml:"command_frame_length,omitempty" toml:"command_frame_length,omitempty" json:"command_frame_length,omitempty"`
	Joints             int      `yaml:"joints,omitempty" toml:"joints,omitempty" json:"joints,omitempty"`
	Gating             string   `yaml:"gating,omitempty" toml:"gating,omitempty" json:"gating,omitempty"`
	ActiveTimeoutMs    int      `yaml:"active_timeout_ms,omitempty" toml:"active_timeout_ms,omitempty" json:"active_timeout_ms,omitempty"`
	SignedIK           *bool    `yaml:"signed_ik,omitempty" toml:"signed_ik,omitempty" json:"signed_ik,omitempty"`
	TelemetryHeader    *bool    `yaml:"telemetry_header,omitempty" toml:"telemetry_header,omitempty" json:"telemetry_header,omitempty"`
	IKMin              *float64 `yaml:"ik_min,omitempty" toml:"ik_min,omitempty" json:"ik_min,omitempty"`
	IKMax              *float64 `yaml:"ik_max,omitempty" toml:"ik_max,omitempty" json:"ik_max,omitempty"`
}

// ControlConfig holds the operator tunables of the control loop. Zero values
// keep the loop defaults.
type ControlConfig struct {
	Mode      string            `yaml:"mode,omitempty" toml:"mode,omitempty" json:"mode,omitempty"`
	Gamma     float64           `yaml:"gamma,omitempty" toml:"gamma,omitempty" json:"gamma,omitempty"`
	MaxSpeed  float64           `yaml:"max_speed,omitempty" toml:"max_speed,omitempty" json:"max_speed,omitempty"`
	JointRate float64           `yaml:"joint_rate,omitempty" toml:"joint_rate,omitempty" json:"joint_rate,omitempty"`
	IKRate    float64           `yaml:"ik_rate,omitempty" toml:"ik_rate,omitempty" json:"ik_rate,omitempty"`
	JointAxes []control.AxisRef `yaml:"joint_axes,omitempty" toml:"joint_axes,omitempty" json:"joint_axes,omitempty"`
	IKAxes    []control.AxisRef `yaml:"ik_axes,omitempty" toml:"ik_axes,omitempty" json:"ik_axes,omitempty"`
}

// InputConfig configures the pointer samplers.
type InputConfig struct {
	// Margin is the fraction of a pad's size a pointer may leave the pad by
	// before the sample is dropped. Unset means input.DefaultMargin; 0
	// disables overscan.
	Margin *float64 `yaml:"margin,omitempty" toml:"margin,omitempty" json:"margin,omitempty"`
}

// InputMargin returns the configured overscan margin or the default.
func (c *Config) InputMargin() float64 {
	if c.Input.Margin == nil {
		return input.DefaultMargin
	}
	return *c.Input.Margin
}

// DisplayConfig lists the images on the robot display, by index.
type DisplayConfig struct {
	Images []string `yaml:"images" toml:"images" json:"images"`
}

// LoadConfig loads configuration from the specified file path. Files ending
// in .toml are decoded as TOML, anything else as YAML.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := decodeFile(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseConfig decodes YAML bytes.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	return &cfg, nil
}

// Marshal encodes the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// EncodeTOML encodes the configuration as TOML.
func (c *Config) EncodeTOML() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	if IsTOML(path) {
		if err := toml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("error parsing config file: %w", err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	return nil
}

// IsTOML reports whether path names a TOML file.
func IsTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// BuildProfile resolves the protocol profile and applies the overrides.
func (c *Config) BuildProfile() (protocol.Profile, error) {
	pc := c.Protocol
	p, err := protocol.LookupProfile(pc.Profile)
	if err != nil {
		return protocol.Profile{}, err
	}

	if pc.ByteOrder != "" {
		order, err := protocol.ParseByteOrder(pc.ByteOrder)
		if err != nil {
			return protocol.Profile{}, err
		}
		p.Command.Order = order
		p.Telemetry.Order = order
	}
	if pc.TickIntervalMs > 0 {
		p.TickInterval = time.Duration(pc.TickIntervalMs) * time.Millisecond
	}
	if pc.CommandFrameLength > 0 {
		p.Command.FrameLength = pc.CommandFrameLength
	}
	if pc.Joints > 0 {
		p.Command.Joints = pc.Joints
		p.Telemetry.Joints = pc.Joints
	}
	if pc.Gating != "" {
		g, err := protocol.ParseGating(pc.Gating)
		if err != nil {
			return protocol.Profile{}, err
		}
		p.Gating = g
	}
	if pc.ActiveTimeoutMs > 0 {
		p.ActiveTimeout = time.Duration(pc.ActiveTimeoutMs) * time.Millisecond
	}
	if pc.SignedIK != nil {
		p.Command.SignedIK = *pc.SignedIK
		p.Telemetry.SignedPosition = *pc.SignedIK
	}
	if pc.TelemetryHeader != nil {
		p.Telemetry.Header = *pc.TelemetryHeader
	}
	if pc.IKMin != nil {
		p.IKMin = *pc.IKMin
	}
	if pc.IKMax != nil {
		p.IKMax = *pc.IKMax
	}

	if err := p.Validate(); err != nil {
		return protocol.Profile{}, err
	}
	return p, nil
}

// BuildParams derives the loop parameters for profile, applying the control
// section on top of the defaults.
func (c *Config) BuildParams(profile protocol.Profile) (control.Params, error) {
	p := control.DefaultParams(profile)
	cc := c.Control

	if cc.Gamma != 0 {
		p.Gamma = cc.Gamma
	}
	if cc.MaxSpeed != 0 {
		p.MaxSpeed = cc.MaxSpeed
	}
	if cc.JointRate != 0 {
		p.JointRate = cc.JointRate
	}
	if cc.IKRate != 0 {
		p.IKRate = cc.IKRate
	}
	if len(cc.JointAxes) > 0 {
		p.JointAxes = append([]control.AxisRef(nil), cc.JointAxes...)
	}
	if len(cc.IKAxes) > 0 {
		if len(cc.IKAxes) != 3 {
			return control.Params{}, fmt.Errorf("control.ik_axes needs 3 entries, got %d", len(cc.IKAxes))
		}
		copy(p.IKAxes[:], cc.IKAxes)
	}

	if err := p.Validate(profile.Command.Joints); err != nil {
		return control.Params{}, err
	}
	return p, nil
}

// InitialMode returns the configured start mode, joint angle by default.
func (c *Config) InitialMode() (control.Mode, error) {
	if c.Control.Mode == "" {
		return control.ModeJointAngle, nil
	}
	return control.ParseMode(c.Control.Mode)
}

// Validate checks the required fields and that the profile and loop
// parameters can be built.
func (c *Config) Validate() error {
	if c.ConfigID == "" || c.Version == "" {
		return fmt.Errorf("missing required fields (config_id, version)")
	}
	profile, err := c.BuildProfile()
	if err != nil {
		return fmt.Errorf("protocol: %w", err)
	}
	if _, err := c.BuildParams(profile); err != nil {
		return fmt.Errorf("control: %w", err)
	}
	if _, err := c.InitialMode(); err != nil {
		return fmt.Errorf("control: %w", err)
	}
	if m := c.InputMargin(); m < 0 || m > 1 || math.IsNaN(m) {
		return fmt.Errorf("input.margin must be within [0,1], got %v", m)
	}
	if len(c.Display.Images) > 256 {
		return fmt.Errorf("display lists %d images, at most 256 fit a display index", len(c.Display.Images))
	}
	return nil
}

// GetDisplayIndex returns the index of the named display image.
func (c *Config) GetDisplayIndex(name string) (uint8, bool) {
	for i, img := range c.Display.Images {
		if img == name {
			return uint8(i), true
		}
	}
	return 0, false
}
