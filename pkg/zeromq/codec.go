package zeromq

import (
	"errors"
	"fmt"
	"time"

	flatbuffers "github.com/google/flatbuffers/go"

	fb "github.com/open-teleop/station/pkg/flatbuffers/station/telemetry"
	"github.com/open-teleop/station/pkg/protocol"
)

// TopicTelemetry is the PUB topic for telemetry snapshots.
const TopicTelemetry = "telemetry.snapshot"

// ErrInvalidMessage is returned for payloads that are not a TelemetryFrame.
var ErrInvalidMessage = errors.New("invalid message format")

// EncodeSnapshot serializes a snapshot as a TelemetryFrame.
func EncodeSnapshot(s protocol.Snapshot, stationID string) []byte {
	builder := flatbuffers.NewBuilder(256)

	id := builder.CreateString(stationID)

	fb.TelemetryFrameStartJointsVector(builder, len(s.Joints))
	for i := len(s.Joints) - 1; i >= 0; i-- {
		builder.PrependFloat64(s.Joints[i])
	}
	joints := builder.EndVector(len(s.Joints))

	fb.TelemetryFrameStartCellVoltagesVector(builder, len(s.CellVoltages))
	for i := len(s.CellVoltages) - 1; i >= 0; i-- {
		builder.PrependFloat32(s.CellVoltages[i])
	}
	cells := builder.EndVector(len(s.CellVoltages))

	fb.TelemetryFrameStart(builder)
	if !s.ReceivedAt.IsZero() {
		fb.TelemetryFrameAddTimestampNs(builder, s.ReceivedAt.UnixNano())
	}
	fb.TelemetryFrameAddClientId(builder, s.Authority.ClientID)
	fb.TelemetryFrameAddDrivePriorityId(builder, s.Authority.DrivePriorityID)
	fb.TelemetryFrameAddArmPriorityId(builder, s.Authority.ArmPriorityID)
	fb.TelemetryFrameAddOverrideId(builder, s.Authority.OverrideID)
	fb.TelemetryFrameAddBatteryVoltage(builder, s.BatteryVoltage)
	fb.TelemetryFrameAddBatteryCurrent(builder, s.BatteryCurrent)
	fb.TelemetryFrameAddCellVoltages(builder, cells)
	fb.TelemetryFrameAddLeftSpeed(builder, s.LeftSpeed)
	fb.TelemetryFrameAddRightSpeed(builder, s.RightSpeed)
	fb.TelemetryFrameAddJoints(builder, joints)
	fb.TelemetryFrameAddX(builder, s.Position.X)
	fb.TelemetryFrameAddY(builder, s.Position.Y)
	fb.TelemetryFrameAddZ(builder, s.Position.Z)
	fb.TelemetryFrameAddStationId(builder, id)
	frame := fb.TelemetryFrameEnd(builder)
	fb.FinishTelemetryFrameBuffer(builder, frame)

	return builder.FinishedBytes()
}

// DecodeSnapshot reads a TelemetryFrame back into a snapshot and the id of
// the station that published it.
func DecodeSnapshot(data []byte) (snap protocol.Snapshot, stationID string, err error) {
	if len(data) < flatbuffers.SizeUOffsetT {
		return protocol.Snapshot{}, "", fmt.Errorf("%w: %d bytes", ErrInvalidMessage, len(data))
	}
	// The flatbuffers runtime panics on out of range offsets.
	defer func() {
		if r := recover(); r != nil {
			snap, stationID = protocol.Snapshot{}, ""
			err = fmt.Errorf("%w: %v", ErrInvalidMessage, r)
		}
	}()

	frame := fb.GetRootAsTelemetryFrame(data, 0)

	snap.Authority = protocol.Authority{
		ClientID:        frame.ClientId(),
		DrivePriorityID: frame.DrivePriorityId(),
		ArmPriorityID:   frame.ArmPriorityId(),
		OverrideID:      frame.OverrideId(),
	}
	snap.BatteryVoltage = frame.BatteryVoltage()
	snap.BatteryCurrent = frame.BatteryCurrent()
	for i := 0; i < frame.CellVoltagesLength() && i < len(snap.CellVoltages); i++ {
		snap.CellVoltages[i] = frame.CellVoltages(i)
	}
	snap.LeftSpeed = frame.LeftSpeed()
	snap.RightSpeed = frame.RightSpeed()
	snap.Joints = make([]float64, frame.JointsLength())
	for i := range snap.Joints {
		snap.Joints[i] = frame.Joints(i)
	}
	snap.Position = protocol.Position{X: frame.X(), Y: frame.Y(), Z: frame.Z()}
	if ts := frame.TimestampNs(); ts != 0 {
		snap.ReceivedAt = time.Unix(0, ts)
	}

	return snap, string(frame.StationId()), nil
}
