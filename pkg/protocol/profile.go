// Package protocol implements the binary control and telemetry frames
// exchanged between the station and the rover.
//
// Two frame generations exist in the field. They differ in byte order,
// command frame length, joint count, telemetry layout, command rate and
// whether motion commands are gated by operator activity. A Profile bundles
// one generation's constants; a deployment picks exactly one.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Gating selects when motion commands are emitted.
type Gating string

const (
	// GatingActiveWindow sends a group's commands only while its stick was
	// active within the active timeout.
	GatingActiveWindow Gating = "active_window"
	// GatingAlways sends every group's commands on every tick.
	GatingAlways Gating = "always"
)

// Profile names.
const (
	ProfileGated  = "gated"
	ProfileLegacy = "legacy"
)

// ErrUnknownProfile is returned by LookupProfile.
var ErrUnknownProfile = errors.New("unknown protocol profile")

// CommandCodec describes the outbound frame shape.
type CommandCodec struct {
	Order       binary.ByteOrder
	FrameLength int
	// Joints is the number of u16 joint fields in a joint target frame.
	Joints int
	// SignedIK encodes IK coordinates as i16 instead of u16.
	SignedIK bool
}

// TelemetryLayout describes the inbound telemetry frame shape.
type TelemetryLayout struct {
	Order binary.ByteOrder
	// Header is the 4 x int32 authority block in front of the sensor data.
	Header bool
	Joints int
	// SignedPosition decodes end effector coordinates as i16 instead of u16.
	SignedPosition bool
}

// Profile is one protocol generation.
type Profile struct {
	Name          string
	TickInterval  time.Duration
	Gating        Gating
	ActiveTimeout time.Duration
	// IKMin and IKMax bound every IK target coordinate in millimeters.
	IKMin     float64
	IKMax     float64
	Command   CommandCodec
	Telemetry TelemetryLayout
}

// Gated returns the little-endian generation: 100 ms ticks, 8 byte command
// frames, three joints and activity gated motion commands.
func Gated() Profile {
	return Profile{
		Name:          ProfileGated,
		TickInterval:  100 * time.Millisecond,
		Gating:        GatingActiveWindow,
		ActiveTimeout: time.Second,
		IKMin:         -500,
		IKMax:         500,
		Command: CommandCodec{
			Order:       binary.LittleEndian,
			FrameLength: 8,
			Joints:      3,
			SignedIK:    true,
		},
		Telemetry: TelemetryLayout{
			Order:          binary.LittleEndian,
			Header:         true,
			Joints:         3,
			SignedPosition: true,
		},
	}
}

// Legacy returns the big-endian generation: 5 s ticks, 10 byte command
// frames, four joints and unconditional motion commands.
func Legacy() Profile {
	return Profile{
		Name:          ProfileLegacy,
		TickInterval:  5 * time.Second,
		Gating:        GatingAlways,
		ActiveTimeout: 10 * time.Second,
		IKMin:         0,
		IKMax:         500,
		Command: CommandCodec{
			Order:       binary.BigEndian,
			FrameLength: 10,
			Joints:      4,
			SignedIK:    false,
		},
		Telemetry: TelemetryLayout{
			Order:          binary.BigEndian,
			Header:         false,
			Joints:         4,
			SignedPosition: false,
		},
	}
}

// LookupProfile returns the named profile.
func LookupProfile(name string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case ProfileGated, "":
		return Gated(), nil
	case ProfileLegacy:
		return Legacy(), nil
	default:
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
}

// ParseByteOrder accepts "little"/"le" and "big"/"be".
func ParseByteOrder(s string) (binary.ByteOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "little", "le", "little_endian":
		return binary.LittleEndian, nil
	case "big", "be", "big_endian":
		return binary.BigEndian, nil
	default:
		return nil, fmt.Errorf("unknown byte order %q", s)
	}
}

// ParseGating accepts the Gating constants.
func ParseGating(s string) (Gating, error) {
	switch Gating(strings.ToLower(strings.TrimSpace(s))) {
	case GatingActiveWindow:
		return GatingActiveWindow, nil
	case GatingAlways:
		return GatingAlways, nil
	default:
		return "", fmt.Errorf("unknown gating policy %q", s)
	}
}

// Validate checks that the command frame can hold every variant and the
// telemetry layout is usable.
func (p Profile) Validate() error {
	if p.Command.Order == nil || p.Telemetry.Order == nil {
		return fmt.Errorf("profile %s: byte order not set", p.Name)
	}
	if p.Command.Joints < 1 || p.Telemetry.Joints < 1 {
		return fmt.Errorf("profile %s: joint count must be positive", p.Name)
	}
	if need := p.Command.minFrameLength(); p.Command.FrameLength < need {
		return fmt.Errorf("profile %s: command frame length %d cannot hold %d bytes", p.Name, p.Command.FrameLength, need)
	}
	if p.TickInterval <= 0 {
		return fmt.Errorf("profile %s: tick interval must be positive", p.Name)
	}
	if p.Gating != GatingActiveWindow && p.Gating != GatingAlways {
		return fmt.Errorf("profile %s: unknown gating policy %q", p.Name, p.Gating)
	}
	if p.Gating == GatingActiveWindow && p.ActiveTimeout < 2*p.TickInterval {
		return fmt.Errorf("profile %s: active timeout %s must be at least two ticks (%s)", p.Name, p.ActiveTimeout, 2*p.TickInterval)
	}
	if p.IKMin >= p.IKMax {
		return fmt.Errorf("profile %s: ik envelope [%v,%v] is empty", p.Name, p.IKMin, p.IKMax)
	}
	return nil
}

// ByteOrderName returns "little" or "big".
func ByteOrderName(o binary.ByteOrder) string {
	if o == binary.BigEndian {
		return "big"
	}
	return "little"
}
