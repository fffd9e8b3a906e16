package protocol

import (
	"fmt"
	"math"
)

// Tag is the leading byte of every command frame.
type Tag uint8

const (
	TagPowerOff      Tag = 0
	TagPowerOn       Tag = 1
	TagDrive         Tag = 2
	TagJointTarget   Tag = 3
	TagIKTarget      Tag = 4
	TagDisplaySelect Tag = 5
	TagDriveSpeed    Tag = 6
)

// DriveGain scales a [-1, 1] wheel speed into the i16 drive field.
const DriveGain = 0x7000

// JointScale scales a [0, 1] joint fraction into the u16 joint field.
const JointScale = 0x10000

// SpeedScale scales a [0, 1] speed limit into the u16 drive speed field.
const SpeedScale = 0xFFFF

func (t Tag) String() string {
	switch t {
	case TagPowerOff:
		return "power_off"
	case TagPowerOn:
		return "power_on"
	case TagDrive:
		return "drive"
	case TagJointTarget:
		return "joint_target"
	case TagIKTarget:
		return "ik_target"
	case TagDisplaySelect:
		return "display_select"
	case TagDriveSpeed:
		return "drive_speed"
	default:
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
}

// Command is one outbound frame variant. The tag in the frame, not any
// session mode, decides how the payload is read.
type Command interface {
	Tag() Tag
	OverrideFlag() bool
}

// PowerOff disables the rover's actuators.
type PowerOff struct {
	Override bool
}

// PowerOn enables the rover's actuators.
type PowerOn struct {
	Override bool
}

// Drive carries left and right wheel speeds in [-1, 1].
type Drive struct {
	Override    bool
	Left, Right float64
}

// JointTarget carries one [0, 1] fraction per arm joint.
type JointTarget struct {
	Override bool
	Joints   []float64
}

// IKTarget carries an end effector position in millimeters.
type IKTarget struct {
	Override bool
	X, Y, Z  float64
}

// DisplaySelect shows a stored image on the rover's display.
type DisplaySelect struct {
	Override bool
	Index    uint8
}

// DriveSpeed sets the rover-side wheel speed limit as a [0, 1] fraction.
type DriveSpeed struct {
	Override bool
	Speed    float64
}

func (PowerOff) Tag() Tag      { return TagPowerOff }
func (PowerOn) Tag() Tag       { return TagPowerOn }
func (Drive) Tag() Tag         { return TagDrive }
func (JointTarget) Tag() Tag   { return TagJointTarget }
func (IKTarget) Tag() Tag      { return TagIKTarget }
func (DisplaySelect) Tag() Tag { return TagDisplaySelect }
func (DriveSpeed) Tag() Tag    { return TagDriveSpeed }

func (c PowerOff) OverrideFlag() bool      { return c.Override }
func (c PowerOn) OverrideFlag() bool       { return c.Override }
func (c Drive) OverrideFlag() bool         { return c.Override }
func (c JointTarget) OverrideFlag() bool   { return c.Override }
func (c IKTarget) OverrideFlag() bool      { return c.Override }
func (c DisplaySelect) OverrideFlag() bool { return c.Override }
func (c DriveSpeed) OverrideFlag() bool    { return c.Override }

// minFrameLength is the largest payload any variant needs.
func (c CommandCodec) minFrameLength() int {
	need := 2 + 2*c.Joints // joint target
	if need < 8 {
		need = 8 // ik target
	}
	return need
}

// EncodeCommand writes cmd into a zero padded frame of exactly
// c.FrameLength bytes. Values are expected to be clamped by the caller;
// the quantizers saturate instead of wrapping if they are not.
func EncodeCommand(cmd Command, c CommandCodec) ([]byte, error) {
	if cmd == nil {
		return nil, fmt.Errorf("%w: nil command", ErrFrameMismatch)
	}
	buf := make([]byte, c.FrameLength)
	if len(buf) < 2 {
		return nil, fmt.Errorf("%w: frame length %d", ErrFrameMismatch, c.FrameLength)
	}
	buf[0] = byte(cmd.Tag())
	if cmd.OverrideFlag() {
		buf[1] = 1
	}

	need := func(n int) error {
		if n > len(buf) {
			return fmt.Errorf("%w: %s needs %d bytes, frame has %d", ErrFrameMismatch, cmd.Tag(), n, len(buf))
		}
		return nil
	}

	switch v := cmd.(type) {
	case PowerOff, PowerOn:
		// tag and override only
	case Drive:
		if err := need(6); err != nil {
			return nil, err
		}
		c.Order.PutUint16(buf[2:], uint16(QuantizeSpeed(v.Left)))
		c.Order.PutUint16(buf[4:], uint16(QuantizeSpeed(v.Right)))
	case JointTarget:
		if len(v.Joints) != c.Joints {
			return nil, fmt.Errorf("%w: %d joints, codec expects %d", ErrFrameMismatch, len(v.Joints), c.Joints)
		}
		if err := need(2 + 2*len(v.Joints)); err != nil {
			return nil, err
		}
		for i, j := range v.Joints {
			c.Order.PutUint16(buf[2+2*i:], QuantizeFraction(j))
		}
	case IKTarget:
		if err := need(8); err != nil {
			return nil, err
		}
		for i, mm := range []float64{v.X, v.Y, v.Z} {
			c.Order.PutUint16(buf[2+2*i:], quantizeMillimeters(mm, c.SignedIK))
		}
	case DisplaySelect:
		if err := need(3); err != nil {
			return nil, err
		}
		buf[2] = v.Index
	case DriveSpeed:
		if err := need(4); err != nil {
			return nil, err
		}
		c.Order.PutUint16(buf[2:], uint16(math.Round(ClampUnit(v.Speed)*SpeedScale)))
	default:
		return nil, fmt.Errorf("%w: unsupported command %T", ErrFrameMismatch, cmd)
	}
	return buf, nil
}

// DecodeCommand parses a frame produced by EncodeCommand with the same codec.
func DecodeCommand(buf []byte, c CommandCodec) (Command, error) {
	if len(buf) < c.FrameLength || len(buf) < 2 {
		return nil, fmt.Errorf("%w: command frame has %d bytes, want %d", ErrMalformedFrame, len(buf), c.FrameLength)
	}
	override := buf[1] != 0
	tag := Tag(buf[0])

	switch tag {
	case TagPowerOff:
		return PowerOff{Override: override}, nil
	case TagPowerOn:
		return PowerOn{Override: override}, nil
	case TagDrive:
		return Drive{
			Override: override,
			Left:     float64(int16(c.Order.Uint16(buf[2:]))) / DriveGain,
			Right:    float64(int16(c.Order.Uint16(buf[4:]))) / DriveGain,
		}, nil
	case TagJointTarget:
		joints := make([]float64, c.Joints)
		for i := range joints {
			joints[i] = float64(c.Order.Uint16(buf[2+2*i:])) / JointScale
		}
		return JointTarget{Override: override, Joints: joints}, nil
	case TagIKTarget:
		var mm [3]float64
		for i := range mm {
			raw := c.Order.Uint16(buf[2+2*i:])
			if c.SignedIK {
				mm[i] = float64(int16(raw))
			} else {
				mm[i] = float64(raw)
			}
		}
		return IKTarget{Override: override, X: mm[0], Y: mm[1], Z: mm[2]}, nil
	case TagDisplaySelect:
		return DisplaySelect{Override: override, Index: buf[2]}, nil
	case TagDriveSpeed:
		return DriveSpeed{Override: override, Speed: float64(c.Order.Uint16(buf[2:])) / SpeedScale}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownTag, uint8(tag))
	}
}

// ClampUnit limits v to [0, 1].
func ClampUnit(v float64) float64 {
	return clamp(v, 0, 1)
}

// ClampSigned limits v to [-1, 1].
func ClampSigned(v float64) float64 {
	return clamp(v, -1, 1)
}

// QuantizeSpeed converts a [-1, 1] speed to the i16 drive field, truncating
// toward zero.
func QuantizeSpeed(v float64) int16 {
	return int16(ClampSigned(v) * DriveGain)
}

// QuantizeFraction converts a [0, 1] fraction to the u16 joint field. 1.0
// saturates at 0xFFFF.
func QuantizeFraction(v float64) uint16 {
	scaled := ClampUnit(v) * JointScale
	if scaled > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(scaled)
}

func quantizeMillimeters(mm float64, signed bool) uint16 {
	if signed {
		return uint16(int16(clamp(math.Round(mm), math.MinInt16, math.MaxInt16)))
	}
	return uint16(clamp(math.Round(mm), 0, math.MaxUint16))
}

// clamp limits v to [lo, hi]. NaN encodes as the in-range value nearest
// zero: stop for speeds, the origin for positions.
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		v = 0
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
