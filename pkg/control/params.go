package control

import (
	"fmt"
	"strings"
	"time"

	"github.com/open-teleop/station/pkg/protocol"
)

// Mode selects which arm target representation is driven and which arm
// command variant is emitted.
type Mode int

const (
	ModeJointAngle Mode = iota
	ModeInverseKinematics
)

func (m Mode) String() string {
	switch m {
	case ModeJointAngle:
		return "joint_angle"
	case ModeInverseKinematics:
		return "inverse_kinematics"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode accepts "joint_angle"/"joint" and "inverse_kinematics"/"ik".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "joint_angle", "joint", "joints":
		return ModeJointAngle, nil
	case "inverse_kinematics", "ik":
		return ModeInverseKinematics, nil
	default:
		return 0, fmt.Errorf("unknown control mode %q", s)
	}
}

// Stick names one of the operator's joysticks.
type Stick string

const (
	StickDrive    Stick = "drive"
	StickArmLeft  Stick = "arm_left"
	StickArmRight Stick = "arm_right"
)

// ParseStick validates a stick name.
func ParseStick(s string) (Stick, error) {
	switch st := Stick(strings.ToLower(strings.TrimSpace(s))); st {
	case StickDrive, StickArmLeft, StickArmRight:
		return st, nil
	default:
		return "", fmt.Errorf("unknown stick %q", s)
	}
}

// AxisRef binds one target field to a stick axis. The zero value is
// unmapped and leaves its field untouched.
type AxisRef struct {
	Stick  Stick  `yaml:"stick" toml:"stick" json:"stick"`
	Axis   string `yaml:"axis" toml:"axis" json:"axis"`
	Invert bool   `yaml:"invert" toml:"invert" json:"invert"`
}

// Mapped reports whether the reference points at an input.
func (a AxisRef) Mapped() bool { return a.Stick != "" }

func (a AxisRef) validate() error {
	if !a.Mapped() {
		return nil
	}
	if _, err := ParseStick(string(a.Stick)); err != nil {
		return err
	}
	if a.Stick == StickDrive {
		return fmt.Errorf("drive stick cannot be mapped to an arm axis")
	}
	if a.Axis != "x" && a.Axis != "y" {
		return fmt.Errorf("unknown axis %q for stick %s", a.Axis, a.Stick)
	}
	return nil
}

// Params are the loop tunables. Gating, tick and timeout come from the
// protocol profile; the rest are operator preferences.
type Params struct {
	TickInterval  time.Duration
	Gating        protocol.Gating
	ActiveTimeout time.Duration

	Gamma    float64
	MaxSpeed float64

	// JointRate is in joint fraction per second at full stick.
	JointRate float64
	// IKRate is in millimeters per second at full stick.
	IKRate float64
	IKMin  float64
	IKMax  float64

	JointAxes []AxisRef
	IKAxes    [3]AxisRef
}

// DefaultParams derives the loop parameters for a profile.
func DefaultParams(p protocol.Profile) Params {
	joints := make([]AxisRef, p.Command.Joints)
	defaults := []AxisRef{
		{Stick: StickArmLeft, Axis: "x"},
		{Stick: StickArmRight, Axis: "x"},
		{Stick: StickArmRight, Axis: "y"},
	}
	copy(joints, defaults)

	return Params{
		TickInterval:  p.TickInterval,
		Gating:        p.Gating,
		ActiveTimeout: p.ActiveTimeout,
		Gamma:         1.5,
		MaxSpeed:      1,
		JointRate:     0.02,
		IKRate:        4,
		IKMin:         p.IKMin,
		IKMax:         p.IKMax,
		JointAxes:     joints,
		IKAxes: [3]AxisRef{
			{Stick: StickArmRight, Axis: "x"},
			{Stick: StickArmLeft, Axis: "x"},
			{Stick: StickArmLeft, Axis: "y"},
		},
	}
}

// Validate checks the parameters against the joint count of the command
// codec they will drive.
func (p Params) Validate(joints int) error {
	if p.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive")
	}
	if p.Gating != protocol.GatingActiveWindow && p.Gating != protocol.GatingAlways {
		return fmt.Errorf("unknown gating policy %q", p.Gating)
	}
	if p.Gating == protocol.GatingActiveWindow && p.ActiveTimeout <= 0 {
		return fmt.Errorf("active timeout must be positive")
	}
	if p.Gamma <= 0 {
		return fmt.Errorf("gamma must be positive, got %v", p.Gamma)
	}
	if p.MaxSpeed < 0 || p.MaxSpeed > 1 {
		return fmt.Errorf("max speed must be within [0,1], got %v", p.MaxSpeed)
	}
	if p.JointRate < 0 || p.IKRate < 0 {
		return fmt.Errorf("rates must not be negative")
	}
	if p.IKMin >= p.IKMax {
		return fmt.Errorf("ik envelope [%v,%v] is empty", p.IKMin, p.IKMax)
	}
	if len(p.JointAxes) != joints {
		return fmt.Errorf("joint axis mapping has %d entries, arm has %d joints", len(p.JointAxes), joints)
	}
	for i, a := range p.JointAxes {
		if err := a.validate(); err != nil {
			return fmt.Errorf("joint %d: %w", i, err)
		}
	}
	for i, a := range p.IKAxes {
		if err := a.validate(); err != nil {
			return fmt.Errorf("ik axis %d: %w", i, err)
		}
	}
	return nil
}
