// Package control runs the fixed rate control loop: it turns stick samples
// into drive and arm commands and folds rover telemetry back into the
// session.
package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/open-teleop/station/pkg/channel"
	"github.com/open-teleop/station/pkg/input"
	"github.com/open-teleop/station/pkg/kinematics"
	customlog "github.com/open-teleop/station/pkg/log"
	"github.com/open-teleop/station/pkg/metrics"
	"github.com/open-teleop/station/pkg/protocol"
)

// ErrNotAuthorized is returned for actions that need operator authorization.
var ErrNotAuthorized = errors.New("operator not authorized")

// TelemetrySink receives every decoded snapshot. Dispatch must not block.
type TelemetrySink interface {
	Dispatch(snapshot protocol.Snapshot)
}

// Loop owns the session state. Tick, HandleTelemetry and the operator
// actions are serialized by mu. Frames go out under sendMu only, so a slow
// socket never holds up telemetry handling.
type Loop struct {
	profile protocol.Profile
	channel channel.Channel
	logger  customlog.Logger
	sink    TelemetrySink
	clock   func() time.Time

	mu     sync.Mutex
	params Params
	state  SessionState

	sendMu sync.Mutex
}

// NewLoop validates params against the profile and returns a stopped loop.
func NewLoop(profile protocol.Profile, params Params, ch channel.Channel, logger customlog.Logger) (*Loop, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	if err := params.Validate(profile.Command.Joints); err != nil {
		return nil, fmt.Errorf("invalid control params: %w", err)
	}
	if ch == nil {
		return nil, fmt.Errorf("control loop needs a channel")
	}
	if logger == nil {
		logger = customlog.Discard()
	}
	return &Loop{
		profile: profile,
		channel: ch,
		logger:  logger.WithField("component", "control"),
		clock:   time.Now,
		params:  params,
		state:   NewSessionState(profile.Command.Joints, params),
	}, nil
}

// SetSink sets where decoded snapshots are handed off.
func (l *Loop) SetSink(sink TelemetrySink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sink = sink
}

// SetClock replaces time.Now for inbound handling and Run.
func (l *Loop) SetClock(clock func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clock = clock
}

// Profile returns the protocol profile the loop encodes with.
func (l *Loop) Profile() protocol.Profile {
	return l.profile
}

// Run ticks at the configured interval until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	interval := l.params.TickInterval
	l.mu.Unlock()

	l.logger.Infof("Control loop started (profile %s, tick %s, gating %s)", l.profile.Name, interval, l.profile.Gating)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Infof("Control loop stopped")
			return ctx.Err()
		case <-ticker.C:
			l.mu.Lock()
			now := l.clock()
			l.mu.Unlock()
			l.Tick(now)

			l.mu.Lock()
			next := l.params.TickInterval
			l.mu.Unlock()
			if next != interval {
				interval = next
				ticker.Reset(interval)
				l.logger.Infof("Control loop tick interval changed to %s", interval)
			}
		}
	}
}

// Tick runs one control step at now.
func (l *Loop) Tick(now time.Time) {
	cmds := l.step(now)
	if len(cmds) == 0 {
		return
	}

	if !l.channel.IsOpen() {
		for _, cmd := range cmds {
			metrics.RecordFrameDropped(cmd.Tag().String(), "channel_closed")
		}
		l.logger.Debugf("Channel not open, dropped %d command(s)", len(cmds))
		return
	}
	if err := l.send(cmds...); err != nil {
		l.logger.Warnf("Tick: %v", err)
	}
}

// step advances the session to now and returns the commands the gating
// policy lets out.
func (l *Loop) step(now time.Time) []protocol.Command {
	l.mu.Lock()
	defer l.mu.Unlock()

	metrics.RecordTick()
	s := &l.state
	p := l.params

	// dt is bounded to two ticks so a stalled timer cannot jump the arm.
	dt := 0.0
	if !s.LastTick.IsZero() && now.After(s.LastTick) {
		dt = now.Sub(s.LastTick).Seconds()
		if limit := (2 * p.TickInterval).Seconds(); dt > limit {
			dt = limit
		}
	}
	s.LastTick = now

	drive := s.Sticks[StickDrive]
	s.LastLeft, s.LastRight = kinematics.Mix(drive.X, drive.Y, p.Gamma, p.MaxSpeed)
	s.integrateArm(p, dt)

	if drive.Active {
		s.Drive.Refresh(now, p.ActiveTimeout)
	}
	if s.armActive() {
		s.Arm.Refresh(now, p.ActiveTimeout)
	}

	var cmds []protocol.Command
	if p.Gating == protocol.GatingAlways || s.Drive.Open(now) {
		cmds = append(cmds, protocol.Drive{Override: s.Override, Left: s.LastLeft, Right: s.LastRight})
	}
	if p.Gating == protocol.GatingAlways || s.Arm.Open(now) {
		cmds = append(cmds, l.armCommandLocked())
	}
	return cmds
}

func (l *Loop) armCommandLocked() protocol.Command {
	s := &l.state
	if s.Mode == ModeInverseKinematics {
		return protocol.IKTarget{
			Override: s.Override,
			X:        s.Target.IK.X,
			Y:        s.Target.IK.Y,
			Z:        s.Target.IK.Z,
		}
	}
	joints := make([]float64, len(s.Target.Joints))
	copy(joints, s.Target.Joints)
	return protocol.JointTarget{Override: s.Override, Joints: joints}
}

// send encodes cmds and hands them to the channel in order. It must not be
// called with l.mu held. A closed channel drops the commands. The first
// error is returned after every command has been tried.
func (l *Loop) send(cmds ...protocol.Command) error {
	l.sendMu.Lock()
	defer l.sendMu.Unlock()

	var firstErr error
	for _, cmd := range cmds {
		if err := l.sendOne(cmd); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (l *Loop) sendOne(cmd protocol.Command) error {
	name := cmd.Tag().String()
	if !l.channel.IsOpen() {
		metrics.RecordFrameDropped(name, "channel_closed")
		return fmt.Errorf("send %s: %w", name, channel.ErrNotOpen)
	}
	frame, err := protocol.EncodeCommand(cmd, l.profile.Command)
	if err != nil {
		metrics.RecordFrameDropped(name, "encode")
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := l.channel.Send(frame); err != nil {
		metrics.RecordFrameDropped(name, "send")
		return fmt.Errorf("send %s: %w", name, err)
	}
	metrics.RecordFrameSent(name)
	return nil
}

// HandleTelemetry decodes one inbound frame. On error the previous snapshot
// is kept. On success the snapshot replaces the previous one, targets the
// operator is not driving follow it, and it is handed to the sink.
func (l *Loop) HandleTelemetry(frame []byte) error {
	snap, err := protocol.DecodeTelemetry(frame, l.profile.Telemetry)
	if err != nil {
		metrics.RecordTelemetry(false)
		return fmt.Errorf("telemetry: %w", err)
	}
	metrics.RecordTelemetry(true)

	l.mu.Lock()
	now := l.clock()
	snap.ReceivedAt = now
	s := &l.state
	s.Snapshot = snap
	s.HasSnapshot = true
	s.syncFromTelemetry(snap, l.params, s.Arm.Open(now))
	sink := l.sink
	l.mu.Unlock()

	if sink != nil {
		sink.Dispatch(snap)
	}
	return nil
}

// OnFrame is a channel.FrameHandler that logs rejected telemetry.
func (l *Loop) OnFrame(frame []byte) {
	if err := l.HandleTelemetry(frame); err != nil {
		l.logger.Warnf("Dropping inbound frame: %v", err)
	}
}

// UpdateStick stores the latest sample for a stick. Axes are clamped.
func (l *Loop) UpdateStick(stick Stick, sample input.Sample) error {
	if _, err := ParseStick(string(stick)); err != nil {
		return err
	}
	if !sample.Finite() {
		// A corrupt reading releases the stick rather than driving it.
		sample = input.Reset()
	}
	sample.X = kinematics.Clamp(sample.X, -1, 1)
	sample.Y = kinematics.Clamp(sample.Y, -1, 1)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.Sticks[stick] = sample
	return nil
}

// Authorize grants or revokes operator authorization. Revoking clears the
// override.
func (l *Loop) Authorize(authorized bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.Authorized = authorized
	if !authorized && l.state.Override {
		l.state.Override = false
		l.logger.Infof("Override cleared with authorization")
	}
}

// SetOverride sets the override flag carried in every command. Enabling it
// requires authorization.
func (l *Loop) SetOverride(enabled bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if enabled && !l.state.Authorized {
		return ErrNotAuthorized
	}
	l.state.Override = enabled
	l.logger.Infof("Override set to %t", enabled)
	return nil
}

// SetMode switches the driven arm representation.
func (l *Loop) SetMode(mode Mode) error {
	if mode != ModeJointAngle && mode != ModeInverseKinematics {
		return fmt.Errorf("unknown control mode %d", int(mode))
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.Mode != mode {
		l.state.Mode = mode
		l.logger.Infof("Control mode set to %s", mode)
	}
	return nil
}

// Power sends a power command immediately. Powering on requires
// authorization; powering off is always allowed.
func (l *Loop) Power(on bool) error {
	l.mu.Lock()
	if on && !l.state.Authorized {
		l.mu.Unlock()
		return ErrNotAuthorized
	}
	var cmd protocol.Command = protocol.PowerOff{Override: l.state.Override}
	if on {
		cmd = protocol.PowerOn{Override: l.state.Override}
	}
	l.mu.Unlock()

	if err := l.send(cmd); err != nil {
		return err
	}
	l.mu.Lock()
	l.state.Powered = on
	l.mu.Unlock()
	l.logger.Infof("Sent %s", cmd.Tag())
	return nil
}

// SelectDisplay asks the rover to show a stored image.
func (l *Loop) SelectDisplay(index uint8) error {
	l.mu.Lock()
	cmd := protocol.DisplaySelect{Override: l.state.Override, Index: index}
	l.mu.Unlock()

	if err := l.send(cmd); err != nil {
		return err
	}
	l.mu.Lock()
	l.state.Display = index
	l.mu.Unlock()
	return nil
}

// SetDriveSpeed updates the local wheel speed limit and forwards it to the
// rover. The local limit applies even if the channel is closed.
func (l *Loop) SetDriveSpeed(speed float64) error {
	speed = protocol.ClampUnit(speed)

	l.mu.Lock()
	l.params.MaxSpeed = speed
	cmd := protocol.DriveSpeed{Override: l.state.Override, Speed: speed}
	l.mu.Unlock()

	return l.send(cmd)
}

// ApplyParams replaces the loop tunables. Targets are pulled into a
// narrowed IK envelope.
func (l *Loop) ApplyParams(p Params) error {
	if err := p.Validate(l.profile.Command.Joints); err != nil {
		return fmt.Errorf("invalid control params: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.params = p
	l.state.clampTargets(p)
	l.logger.Infof("Control params applied (gamma %.2f, max speed %.2f)", p.Gamma, p.MaxSpeed)
	return nil
}

// Params returns the current tunables.
func (l *Loop) Params() Params {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.params
	p.JointAxes = append([]AxisRef(nil), l.params.JointAxes...)
	return p
}

// Snapshot returns the latest telemetry and whether any has arrived.
func (l *Loop) Snapshot() (protocol.Snapshot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Snapshot, l.state.HasSnapshot
}

// State is a read only view of the session for the operator API.
type State struct {
	Profile       string                 `json:"profile"`
	Gating        protocol.Gating        `json:"gating"`
	Mode          string                 `json:"mode"`
	Authorized    bool                   `json:"authorized"`
	Override      bool                   `json:"override"`
	Powered       bool                   `json:"powered"`
	ChannelOpen   bool                   `json:"channel_open"`
	Display       uint8                  `json:"display"`
	MaxSpeed      float64                `json:"max_speed"`
	LeftSpeed     float64                `json:"left_speed"`
	RightSpeed    float64                `json:"right_speed"`
	Target        Target                 `json:"target"`
	DriveActive   bool                   `json:"drive_active"`
	ArmActive     bool                   `json:"arm_active"`
	DriveDeadline time.Time              `json:"drive_deadline"`
	ArmDeadline   time.Time              `json:"arm_deadline"`
	Sticks        map[Stick]input.Sample `json:"sticks"`
}

// State returns the session view at the loop clock's now.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.state
	now := l.clock()

	sticks := make(map[Stick]input.Sample, len(s.Sticks))
	for k, v := range s.Sticks {
		sticks[k] = v
	}
	return State{
		Profile:       l.profile.Name,
		Gating:        l.params.Gating,
		Mode:          s.Mode.String(),
		Authorized:    s.Authorized,
		Override:      s.Override,
		Powered:       s.Powered,
		ChannelOpen:   l.channel.IsOpen(),
		Display:       s.Display,
		MaxSpeed:      l.params.MaxSpeed,
		LeftSpeed:     s.LastLeft,
		RightSpeed:    s.LastRight,
		Target:        Target{Joints: append([]float64(nil), s.Target.Joints...), IK: s.Target.IK},
		DriveActive:   s.Drive.Open(now),
		ArmActive:     s.Arm.Open(now),
		DriveDeadline: s.Drive.Deadline,
		ArmDeadline:   s.Arm.Deadline,
		Sticks:        sticks,
	}
}
