package protocol

import (
	"fmt"
	"math"
	"time"
)

const (
	headerSize    = 16 // 4 x int32
	sensorSize    = 24 // 6 x float32
	wheelSize     = 4  // 2 x int16
	positionSize  = 6  // 3 x 16 bit
	noAuthorityID = -1
)

// Authority reports which connection currently owns each control group on
// the rover. IDs are connection identifiers assigned by the rover; -1 means
// nobody.
type Authority struct {
	ClientID        int32 `json:"client_id"`
	DrivePriorityID int32 `json:"drive_priority_id"`
	ArmPriorityID   int32 `json:"arm_priority_id"`
	OverrideID      int32 `json:"override_id"`
}

// NoAuthority is the header value when no group is owned.
func NoAuthority(clientID int32) Authority {
	return Authority{
		ClientID:        clientID,
		DrivePriorityID: noAuthorityID,
		ArmPriorityID:   noAuthorityID,
		OverrideID:      noAuthorityID,
	}
}

// OwnsDrive reports whether this connection holds drive priority.
func (a Authority) OwnsDrive() bool { return a.DrivePriorityID >= 0 && a.DrivePriorityID == a.ClientID }

// OwnsArm reports whether this connection holds arm priority.
func (a Authority) OwnsArm() bool { return a.ArmPriorityID >= 0 && a.ArmPriorityID == a.ClientID }

// OwnsOverride reports whether this connection holds the override.
func (a Authority) OwnsOverride() bool { return a.OverrideID >= 0 && a.OverrideID == a.ClientID }

// Position is an end effector position in millimeters.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Snapshot is one decoded telemetry frame. It is replaced wholesale by the
// next frame.
type Snapshot struct {
	Authority      Authority  `json:"authority"`
	BatteryVoltage float32    `json:"battery_voltage"`
	BatteryCurrent float32    `json:"battery_current"`
	CellVoltages   [4]float32 `json:"cell_voltages"`
	// LeftSpeed and RightSpeed are signed percentages of full speed.
	LeftSpeed  float64   `json:"left_speed"`
	RightSpeed float64   `json:"right_speed"`
	Joints     []float64 `json:"joints"`
	Position   Position  `json:"position"`
	ReceivedAt time.Time `json:"received_at"`
}

// Size is the exact frame length for the layout.
func (l TelemetryLayout) Size() int {
	n := sensorSize + wheelSize + 2*l.Joints + positionSize
	if l.Header {
		n += headerSize
	}
	return n
}

// DecodeTelemetry reads a frame field by field. A buffer shorter than the
// layout yields ErrMalformedFrame and a zero Snapshot; trailing bytes are
// ignored.
func DecodeTelemetry(buf []byte, l TelemetryLayout) (Snapshot, error) {
	if size := l.Size(); len(buf) < size {
		return Snapshot{}, fmt.Errorf("%w: telemetry frame has %d bytes, want %d", ErrMalformedFrame, len(buf), size)
	}

	var s Snapshot
	o := l.Order
	off := 0

	i32 := func() int32 {
		v := int32(o.Uint32(buf[off:]))
		off += 4
		return v
	}
	f32 := func() float32 {
		v := math.Float32frombits(o.Uint32(buf[off:]))
		off += 4
		return v
	}
	u16 := func() uint16 {
		v := o.Uint16(buf[off:])
		off += 2
		return v
	}

	if l.Header {
		s.Authority = Authority{
			ClientID:        i32(),
			DrivePriorityID: i32(),
			ArmPriorityID:   i32(),
			OverrideID:      i32(),
		}
	}

	s.BatteryVoltage = f32()
	s.BatteryCurrent = f32()
	for i := range s.CellVoltages {
		s.CellVoltages[i] = f32()
	}

	s.LeftSpeed = float64(int16(u16())) * 100 / DriveGain
	s.RightSpeed = float64(int16(u16())) * 100 / DriveGain

	s.Joints = make([]float64, l.Joints)
	for i := range s.Joints {
		s.Joints[i] = float64(u16()) / JointScale
	}

	coord := func() float64 {
		raw := u16()
		if l.SignedPosition {
			return float64(int16(raw))
		}
		return float64(raw)
	}
	s.Position.X = coord()
	s.Position.Y = coord()
	s.Position.Z = coord()

	return s, nil
}

// EncodeTelemetry builds a frame for the layout. Joints beyond the layout's
// count are dropped and missing ones are sent as zero.
func EncodeTelemetry(s Snapshot, l TelemetryLayout) []byte {
	buf := make([]byte, l.Size())
	o := l.Order
	off := 0

	putI32 := func(v int32) {
		o.PutUint32(buf[off:], uint32(v))
		off += 4
	}
	putF32 := func(v float32) {
		o.PutUint32(buf[off:], math.Float32bits(v))
		off += 4
	}
	putU16 := func(v uint16) {
		o.PutUint16(buf[off:], v)
		off += 2
	}

	if l.Header {
		putI32(s.Authority.ClientID)
		putI32(s.Authority.DrivePriorityID)
		putI32(s.Authority.ArmPriorityID)
		putI32(s.Authority.OverrideID)
	}

	putF32(s.BatteryVoltage)
	putF32(s.BatteryCurrent)
	for _, c := range s.CellVoltages {
		putF32(c)
	}

	putU16(uint16(QuantizeSpeed(s.LeftSpeed / 100)))
	putU16(uint16(QuantizeSpeed(s.RightSpeed / 100)))

	for i := 0; i < l.Joints; i++ {
		var j float64
		if i < len(s.Joints) {
			j = s.Joints[i]
		}
		putU16(QuantizeFraction(j))
	}

	putU16(quantizeMillimeters(s.Position.X, l.SignedPosition))
	putU16(quantizeMillimeters(s.Position.Y, l.SignedPosition))
	putU16(quantizeMillimeters(s.Position.Z, l.SignedPosition))

	return buf
}
