package control

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/open-teleop/station/pkg/channel"
	"github.com/open-teleop/station/pkg/input"
	"github.com/open-teleop/station/pkg/protocol"
)

type fakeChannel struct {
	mu     sync.Mutex
	open   bool
	frames [][]byte
}

func (c *fakeChannel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeChannel) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return channel.ErrNotOpen
	}
	c.frames = append(c.frames, append([]byte(nil), frame...))
	return nil
}

func (c *fakeChannel) take() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.frames
	c.frames = nil
	return out
}

type recordingSink struct {
	mu        sync.Mutex
	snapshots []protocol.Snapshot
}

func (s *recordingSink) Dispatch(snap protocol.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snap)
}

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestLoop(t *testing.T, profile protocol.Profile, open bool) (*Loop, *fakeChannel) {
	t.Helper()
	ch := &fakeChannel{open: open}
	l, err := NewLoop(profile, DefaultParams(profile), ch, nil)
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	l.SetClock(func() time.Time { return t0 })
	return l, ch
}

func decodeAll(t *testing.T, frames [][]byte, codec protocol.CommandCodec) []protocol.Command {
	t.Helper()
	var out []protocol.Command
	for _, f := range frames {
		if len(f) != codec.FrameLength {
			t.Fatalf("frame length = %d, want %d", len(f), codec.FrameLength)
		}
		cmd, err := protocol.DecodeCommand(f, codec)
		if err != nil {
			t.Fatalf("DecodeCommand: %v", err)
		}
		out = append(out, cmd)
	}
	return out
}

func countTag(cmds []protocol.Command, tag protocol.Tag) int {
	n := 0
	for _, c := range cmds {
		if c.Tag() == tag {
			n++
		}
	}
	return n
}

func TestIntegrateStaysInBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	value := 0.5
	for i := 0; i < 10000; i++ {
		axis := rng.Float64()*2 - 1
		dt := rng.Float64()
		value = Integrate(value, axis, 0.5, dt, 0, 1)
		if value < 0 || value > 1 {
			t.Fatalf("step %d: value %v escaped [0,1]", i, value)
		}
	}

	mm := 0.0
	for i := 0; i < 1000; i++ {
		mm = Integrate(mm, 1, 4, 1, -500, 500)
	}
	if mm != 500 {
		t.Errorf("saturated value = %v, want 500", mm)
	}
	if got := Integrate(0.5, 1, 0.02, 0.1, 0, 1); math.Abs(got-0.502) > 1e-12 {
		t.Errorf("Integrate = %v, want 0.502", got)
	}
	if got := Integrate(0.25, math.NaN(), 0.02, 0.1, 0, 1); got != 0.25 {
		t.Errorf("Integrate with NaN axis = %v, want 0.25", got)
	}
}

func TestTickClosedChannelSendsNothing(t *testing.T) {
	for _, profile := range []protocol.Profile{protocol.Gated(), protocol.Legacy()} {
		l, ch := newTestLoop(t, profile, false)
		_ = l.UpdateStick(StickDrive, input.Sample{X: 1, Y: 1, Active: true})
		_ = l.UpdateStick(StickArmLeft, input.Sample{X: -1, Y: 1, Active: true})
		_ = l.UpdateStick(StickArmRight, input.Sample{X: 1, Y: -1, Active: true})

		for i := 0; i < 20; i++ {
			l.Tick(t0.Add(time.Duration(i) * profile.TickInterval))
		}
		if frames := ch.take(); len(frames) != 0 {
			t.Errorf("%s: sent %d frames on a closed channel", profile.Name, len(frames))
		}
	}
}

func TestDriveWindowExpires(t *testing.T) {
	profile := protocol.Gated()
	l, ch := newTestLoop(t, profile, true)

	l.Tick(t0)
	if frames := ch.take(); len(frames) != 0 {
		t.Fatalf("idle sticks sent %d frames", len(frames))
	}

	_ = l.UpdateStick(StickDrive, input.Sample{X: 0, Y: 1, Active: true})
	l.Tick(t0.Add(100 * time.Millisecond))
	cmds := decodeAll(t, ch.take(), profile.Command)
	if len(cmds) != 1 || cmds[0].Tag() != protocol.TagDrive {
		t.Fatalf("active drive stick sent %v, want one drive frame", cmds)
	}

	// Released: the deadline stays at 1.1 s.
	_ = l.UpdateStick(StickDrive, input.Reset())
	l.Tick(t0.Add(600 * time.Millisecond))
	l.Tick(t0.Add(1000 * time.Millisecond))
	if got := countTag(decodeAll(t, ch.take(), profile.Command), protocol.TagDrive); got != 2 {
		t.Errorf("drive frames inside window = %d, want 2", got)
	}

	l.Tick(t0.Add(1100 * time.Millisecond))
	l.Tick(t0.Add(1500 * time.Millisecond))
	l.Tick(t0.Add(5 * time.Second))
	if frames := ch.take(); len(frames) != 0 {
		t.Errorf("sent %d frames after the window closed", len(frames))
	}

	if st := l.State(); st.DriveDeadline != t0.Add(1100*time.Millisecond) {
		t.Errorf("drive deadline = %v, want %v", st.DriveDeadline, t0.Add(1100*time.Millisecond))
	}
}

func TestArmWindowIndependentOfDrive(t *testing.T) {
	profile := protocol.Gated()
	l, ch := newTestLoop(t, profile, true)

	_ = l.UpdateStick(StickArmRight, input.Sample{X: 0.5, Active: true})
	l.Tick(t0)
	cmds := decodeAll(t, ch.take(), profile.Command)
	if len(cmds) != 1 || cmds[0].Tag() != protocol.TagJointTarget {
		t.Fatalf("arm stick sent %v, want one joint target", cmds)
	}
}

func TestAlwaysGatingSendsEveryTick(t *testing.T) {
	profile := protocol.Legacy()
	l, ch := newTestLoop(t, profile, true)

	for i := 0; i < 3; i++ {
		l.Tick(t0.Add(time.Duration(i) * profile.TickInterval))
	}
	cmds := decodeAll(t, ch.take(), profile.Command)
	if got := countTag(cmds, protocol.TagDrive); got != 3 {
		t.Errorf("drive frames = %d, want 3", got)
	}
	if got := countTag(cmds, protocol.TagJointTarget); got != 3 {
		t.Errorf("joint frames = %d, want 3", got)
	}
	for _, c := range cmds {
		if jt, ok := c.(protocol.JointTarget); ok && len(jt.Joints) != 4 {
			t.Errorf("legacy joint target has %d joints, want 4", len(jt.Joints))
		}
	}
}

func TestPureRotateDrive(t *testing.T) {
	profile := protocol.Gated()
	l, ch := newTestLoop(t, profile, true)

	_ = l.UpdateStick(StickDrive, input.Sample{X: 1, Y: 0, Active: true})
	l.Tick(t0)
	cmds := decodeAll(t, ch.take(), profile.Command)
	if len(cmds) != 1 {
		t.Fatalf("got %d commands, want 1", len(cmds))
	}
	d := cmds[0].(protocol.Drive)
	step := 1.0 / protocol.DriveGain
	if math.Abs(d.Left-1) > step || math.Abs(d.Right+1) > step {
		t.Errorf("pure rotate = (%v, %v), want (1, -1)", d.Left, d.Right)
	}
}

func TestJointIntegrationPerTick(t *testing.T) {
	profile := protocol.Gated()
	l, ch := newTestLoop(t, profile, true)

	_ = l.UpdateStick(StickArmLeft, input.Sample{X: 1, Active: true})
	l.Tick(t0)
	l.Tick(t0.Add(100 * time.Millisecond))

	joints := l.State().Target.Joints
	if math.Abs(joints[0]-0.502) > 1e-9 {
		t.Errorf("joint 0 = %v, want 0.502", joints[0])
	}
	if joints[1] != 0.5 || joints[2] != 0.5 {
		t.Errorf("unmapped joints moved: %v", joints)
	}

	cmds := decodeAll(t, ch.take(), profile.Command)
	last := cmds[len(cmds)-1].(protocol.JointTarget)
	if math.Abs(last.Joints[0]-0.502) > 1.0/protocol.JointScale {
		t.Errorf("sent joint 0 = %v, want 0.502 within one step", last.Joints[0])
	}
}

func TestStalledTickIsBounded(t *testing.T) {
	profile := protocol.Gated()
	l, _ := newTestLoop(t, profile, true)

	_ = l.UpdateStick(StickArmLeft, input.Sample{X: 1, Active: true})
	l.Tick(t0)
	l.Tick(t0.Add(time.Hour))

	want := 0.5 + 0.02*0.2
	if got := l.State().Target.Joints[0]; math.Abs(got-want) > 1e-9 {
		t.Errorf("joint 0 after stall = %v, want %v", got, want)
	}
}

func TestInverseKinematicsMode(t *testing.T) {
	profile := protocol.Gated()
	l, ch := newTestLoop(t, profile, true)

	if err := l.SetMode(ModeInverseKinematics); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	_ = l.UpdateStick(StickArmRight, input.Sample{X: 1, Active: true})
	_ = l.UpdateStick(StickArmLeft, input.Sample{Y: -1, Active: true})
	l.Tick(t0)
	for i := 1; i <= 10; i++ {
		l.Tick(t0.Add(time.Duration(i) * 100 * time.Millisecond))
	}

	ik := l.State().Target.IK
	if math.Abs(ik.X-4) > 1e-9 || math.Abs(ik.Z+4) > 1e-9 || ik.Y != 0 {
		t.Errorf("ik target = %+v, want x=4 y=0 z=-4", ik)
	}

	cmds := decodeAll(t, ch.take(), profile.Command)
	if countTag(cmds, protocol.TagJointTarget) != 0 {
		t.Errorf("joint targets sent in ik mode")
	}
	last := cmds[len(cmds)-1].(protocol.IKTarget)
	if last.X != 4 || last.Z != -4 {
		t.Errorf("sent ik = %+v", last)
	}
}

func TestIKTargetClampedToEnvelope(t *testing.T) {
	profile := protocol.Legacy()
	l, _ := newTestLoop(t, profile, true)
	_ = l.SetMode(ModeInverseKinematics)
	_ = l.UpdateStick(StickArmLeft, input.Sample{X: -1, Y: -1, Active: true})

	for i := 0; i < 50; i++ {
		l.Tick(t0.Add(time.Duration(i) * profile.TickInterval))
	}
	ik := l.State().Target.IK
	if ik.Y != 0 || ik.Z != 0 {
		t.Errorf("legacy ik target = %+v, want y and z clamped at 0", ik)
	}
}

func TestHandleTelemetryMalformedKeepsSnapshot(t *testing.T) {
	profile := protocol.Gated()
	l, _ := newTestLoop(t, profile, true)

	good := protocol.Snapshot{BatteryVoltage: 12.5, Joints: []float64{0.25, 0.5, 0.75}}
	if err := l.HandleTelemetry(protocol.EncodeTelemetry(good, profile.Telemetry)); err != nil {
		t.Fatalf("HandleTelemetry: %v", err)
	}
	before, ok := l.Snapshot()
	if !ok {
		t.Fatal("no snapshot after a valid frame")
	}

	err := l.HandleTelemetry(make([]byte, profile.Telemetry.Size()-1))
	if !errors.Is(err, protocol.ErrMalformedFrame) {
		t.Fatalf("short frame error = %v, want ErrMalformedFrame", err)
	}
	after, _ := l.Snapshot()
	if after.BatteryVoltage != before.BatteryVoltage || !after.ReceivedAt.Equal(before.ReceivedAt) {
		t.Errorf("snapshot changed after malformed frame: %+v", after)
	}
}

func TestHandleTelemetrySyncsUndrivenTargets(t *testing.T) {
	profile := protocol.Gated()
	l, _ := newTestLoop(t, profile, true)
	sink := &recordingSink{}
	l.SetSink(sink)

	snap := protocol.Snapshot{
		Joints:   []float64{0.25, 0.5, 0.75},
		Position: protocol.Position{X: 100, Y: -200, Z: 300},
	}
	frame := protocol.EncodeTelemetry(snap, profile.Telemetry)

	// Idle: both representations follow the rover.
	if err := l.HandleTelemetry(frame); err != nil {
		t.Fatalf("HandleTelemetry: %v", err)
	}
	target := l.State().Target
	if target.Joints[0] != 0.25 || target.Joints[2] != 0.75 {
		t.Errorf("joints not synced: %v", target.Joints)
	}
	if target.IK != snap.Position {
		t.Errorf("ik not synced: %+v", target.IK)
	}

	// Driving joints: joints hold, ik keeps following.
	_ = l.UpdateStick(StickArmLeft, input.Sample{Active: true})
	l.Tick(t0)
	moved := protocol.Snapshot{
		Joints:   []float64{0.5, 0.5, 0.5},
		Position: protocol.Position{X: 1, Y: 2, Z: 3},
	}
	if err := l.HandleTelemetry(protocol.EncodeTelemetry(moved, profile.Telemetry)); err != nil {
		t.Fatalf("HandleTelemetry: %v", err)
	}
	target = l.State().Target
	if target.Joints[0] != 0.25 {
		t.Errorf("driven joint overwritten by telemetry: %v", target.Joints)
	}
	if target.IK != moved.Position {
		t.Errorf("undriven ik not synced: %+v", target.IK)
	}

	if len(sink.snapshots) != 2 {
		t.Errorf("sink received %d snapshots, want 2", len(sink.snapshots))
	}
}

func TestOverrideRequiresAuthorization(t *testing.T) {
	l, _ := newTestLoop(t, protocol.Gated(), true)

	if err := l.SetOverride(true); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("SetOverride unauthorized = %v, want ErrNotAuthorized", err)
	}
	l.Authorize(true)
	if err := l.SetOverride(true); err != nil {
		t.Fatalf("SetOverride: %v", err)
	}
	if !l.State().Override {
		t.Fatal("override not set")
	}
	l.Authorize(false)
	if l.State().Override {
		t.Error("revoking authorization kept the override")
	}
}

func TestOverrideCarriedInCommands(t *testing.T) {
	profile := protocol.Gated()
	l, ch := newTestLoop(t, profile, true)
	l.Authorize(true)
	_ = l.SetOverride(true)
	_ = l.UpdateStick(StickDrive, input.Sample{Y: 0.5, Active: true})
	_ = l.UpdateStick(StickArmLeft, input.Sample{X: 0.5, Active: true})
	l.Tick(t0)

	for _, c := range decodeAll(t, ch.take(), profile.Command) {
		if !c.OverrideFlag() {
			t.Errorf("%s frame missing override", c.Tag())
		}
	}
}

func TestPower(t *testing.T) {
	profile := protocol.Gated()
	l, ch := newTestLoop(t, profile, true)

	if err := l.Power(true); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("Power(true) unauthorized = %v", err)
	}
	if err := l.Power(false); err != nil {
		t.Fatalf("Power(false): %v", err)
	}
	l.Authorize(true)
	if err := l.Power(true); err != nil {
		t.Fatalf("Power(true): %v", err)
	}
	cmds := decodeAll(t, ch.take(), profile.Command)
	if len(cmds) != 2 || cmds[0].Tag() != protocol.TagPowerOff || cmds[1].Tag() != protocol.TagPowerOn {
		t.Errorf("power frames = %v", cmds)
	}

	ch.mu.Lock()
	ch.open = false
	ch.mu.Unlock()
	if err := l.Power(false); !errors.Is(err, channel.ErrNotOpen) {
		t.Errorf("Power on closed channel = %v, want ErrNotOpen", err)
	}
}

func TestSetDriveSpeedLimitsMix(t *testing.T) {
	profile := protocol.Gated()
	l, ch := newTestLoop(t, profile, true)

	if err := l.SetDriveSpeed(0.5); err != nil {
		t.Fatalf("SetDriveSpeed: %v", err)
	}
	_ = l.UpdateStick(StickDrive, input.Sample{Y: 1, Active: true})
	l.Tick(t0)

	cmds := decodeAll(t, ch.take(), profile.Command)
	if len(cmds) != 2 {
		t.Fatalf("got %d frames, want drive speed then drive", len(cmds))
	}
	if ds := cmds[0].(protocol.DriveSpeed); math.Abs(ds.Speed-0.5) > 1.0/protocol.SpeedScale {
		t.Errorf("drive speed = %v", ds.Speed)
	}
	step := 1.0 / protocol.DriveGain
	if d := cmds[1].(protocol.Drive); math.Abs(d.Left-0.5) > step || math.Abs(d.Right-0.5) > step {
		t.Errorf("limited drive = (%v, %v), want (0.5, 0.5)", d.Left, d.Right)
	}
}

func TestSelectDisplay(t *testing.T) {
	profile := protocol.Gated()
	l, ch := newTestLoop(t, profile, true)
	if err := l.SelectDisplay(3); err != nil {
		t.Fatalf("SelectDisplay: %v", err)
	}
	cmds := decodeAll(t, ch.take(), profile.Command)
	if ds, ok := cmds[0].(protocol.DisplaySelect); !ok || ds.Index != 3 {
		t.Errorf("display frame = %v", cmds)
	}
	if l.State().Display != 3 {
		t.Error("display index not recorded")
	}
}

func TestApplyParamsValidates(t *testing.T) {
	profile := protocol.Gated()
	l, _ := newTestLoop(t, profile, true)

	p := l.Params()
	p.Gamma = 0
	if err := l.ApplyParams(p); err == nil {
		t.Error("gamma 0 accepted")
	}

	p = l.Params()
	p.JointAxes = p.JointAxes[:2]
	if err := l.ApplyParams(p); err == nil {
		t.Error("short joint mapping accepted")
	}

	p = l.Params()
	p.IKMin, p.IKMax = 0, 100
	if err := l.ApplyParams(p); err != nil {
		t.Fatalf("ApplyParams: %v", err)
	}
	if got := l.Params().IKMax; got != 100 {
		t.Errorf("IKMax = %v, want 100", got)
	}
}

func TestUpdateStickRejectsUnknown(t *testing.T) {
	l, _ := newTestLoop(t, protocol.Gated(), true)
	if err := l.UpdateStick("tail", input.Sample{}); err == nil {
		t.Error("unknown stick accepted")
	}
	_ = l.UpdateStick(StickDrive, input.Sample{X: 3, Y: -3, Active: true})
	if s := l.State().Sticks[StickDrive]; s.X != 1 || s.Y != -1 {
		t.Errorf("stick not clamped: %+v", s)
	}
	_ = l.UpdateStick(StickDrive, input.Sample{X: math.NaN(), Y: 0.5, Active: true})
	if s := l.State().Sticks[StickDrive]; s != input.Reset() {
		t.Errorf("NaN sample should release the stick, got %+v", s)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"joint_angle", ModeJointAngle, false},
		{"IK", ModeInverseKinematics, false},
		{"inverse_kinematics", ModeInverseKinematics, false},
		{"cartesian", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

type blockingChannel struct {
	entered chan struct{}
	release chan struct{}
}

func (c *blockingChannel) IsOpen() bool { return true }

func (c *blockingChannel) Send([]byte) error {
	select {
	case c.entered <- struct{}{}:
	default:
	}
	<-c.release
	return nil
}

func TestSlowSendDoesNotStallTelemetry(t *testing.T) {
	profile := protocol.Gated()
	ch := &blockingChannel{entered: make(chan struct{}, 1), release: make(chan struct{})}
	l, err := NewLoop(profile, DefaultParams(profile), ch, nil)
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	l.SetClock(func() time.Time { return t0 })
	_ = l.UpdateStick(StickDrive, input.Sample{Y: 1, Active: true})

	ticked := make(chan struct{})
	go func() {
		l.Tick(t0)
		close(ticked)
	}()
	select {
	case <-ch.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("tick never reached the channel")
	}

	handled := make(chan error, 1)
	go func() {
		handled <- l.HandleTelemetry(protocol.EncodeTelemetry(protocol.Snapshot{BatteryVoltage: 11}, profile.Telemetry))
	}()
	select {
	case err := <-handled:
		if err != nil {
			t.Errorf("HandleTelemetry: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("telemetry handling blocked behind a pending send")
	}
	if snap, ok := l.Snapshot(); !ok || snap.BatteryVoltage != 11 {
		t.Errorf("snapshot during send = %+v, %v", snap, ok)
	}

	close(ch.release)
	select {
	case <-ticked:
	case <-time.After(2 * time.Second):
		t.Fatal("tick did not finish after the send was released")
	}
}
