package control

import (
	"math"
	"time"

	"github.com/open-teleop/station/pkg/input"
	"github.com/open-teleop/station/pkg/kinematics"
	"github.com/open-teleop/station/pkg/protocol"
)

// Integrate advances one target field by axis*rate*dt and keeps the result
// within [min, max]. dt is in seconds.
// A non-finite step leaves the target where it was.
func Integrate(value, axis, rate, dt, min, max float64) float64 {
	next := value + axis*rate*dt
	if math.IsNaN(next) || math.IsInf(next, 0) {
		next = value
	}
	return kinematics.Clamp(next, min, max)
}

// ActiveWindow is a dead man's switch for one actuator group.
type ActiveWindow struct {
	Deadline time.Time
}

// Refresh extends the window to now+timeout.
func (w *ActiveWindow) Refresh(now time.Time, timeout time.Duration) {
	w.Deadline = now.Add(timeout)
}

// Open reports whether commands for the group may still be sent at now.
func (w ActiveWindow) Open(now time.Time) bool {
	return now.Before(w.Deadline)
}

// Target holds both arm representations. Mode decides which one is driven
// by the sticks; the other follows telemetry.
type Target struct {
	Joints []float64         `json:"joints"`
	IK     protocol.Position `json:"ik"`
}

// SessionState is everything the tick and inbound handlers mutate. It is
// owned by a Loop and only touched under its lock.
type SessionState struct {
	Sticks     map[Stick]input.Sample
	Mode       Mode
	Authorized bool
	Override   bool
	Powered    bool
	Display    uint8
	Target     Target
	Drive      ActiveWindow
	Arm        ActiveWindow
	LastTick   time.Time

	// LastLeft and LastRight are the most recent mixed wheel speeds.
	LastLeft  float64
	LastRight float64

	Snapshot    protocol.Snapshot
	HasSnapshot bool
}

// NewSessionState returns a session with centered sticks, joint mode and
// joint targets at mid travel.
func NewSessionState(joints int, p Params) SessionState {
	target := Target{Joints: make([]float64, joints)}
	for i := range target.Joints {
		target.Joints[i] = 0.5
	}
	target.IK = protocol.Position{
		X: kinematics.Clamp(0, p.IKMin, p.IKMax),
		Y: kinematics.Clamp(0, p.IKMin, p.IKMax),
		Z: kinematics.Clamp(0, p.IKMin, p.IKMax),
	}
	return SessionState{
		Sticks: map[Stick]input.Sample{
			StickDrive:    input.Reset(),
			StickArmLeft:  input.Reset(),
			StickArmRight: input.Reset(),
		},
		Mode:   ModeJointAngle,
		Target: target,
	}
}

func (s *SessionState) axis(ref AxisRef) float64 {
	if !ref.Mapped() {
		return 0
	}
	sample := s.Sticks[ref.Stick]
	v := sample.X
	if ref.Axis == "y" {
		v = sample.Y
	}
	if ref.Invert {
		v = -v
	}
	return v
}

func (s *SessionState) armActive() bool {
	return s.Sticks[StickArmLeft].Active || s.Sticks[StickArmRight].Active
}

// integrateArm moves the driven representation for dt seconds.
func (s *SessionState) integrateArm(p Params, dt float64) {
	switch s.Mode {
	case ModeInverseKinematics:
		s.Target.IK.X = Integrate(s.Target.IK.X, s.axis(p.IKAxes[0]), p.IKRate, dt, p.IKMin, p.IKMax)
		s.Target.IK.Y = Integrate(s.Target.IK.Y, s.axis(p.IKAxes[1]), p.IKRate, dt, p.IKMin, p.IKMax)
		s.Target.IK.Z = Integrate(s.Target.IK.Z, s.axis(p.IKAxes[2]), p.IKRate, dt, p.IKMin, p.IKMax)
	default:
		for i := range s.Target.Joints {
			if i >= len(p.JointAxes) {
				break
			}
			s.Target.Joints[i] = Integrate(s.Target.Joints[i], s.axis(p.JointAxes[i]), p.JointRate, dt, 0, 1)
		}
	}
}

// syncFromTelemetry copies reported arm state into targets nobody is
// driving so that taking control does not jump the arm.
func (s *SessionState) syncFromTelemetry(snap protocol.Snapshot, p Params, armDriven bool) {
	syncJoints := s.Mode != ModeJointAngle || !armDriven
	syncIK := s.Mode != ModeInverseKinematics || !armDriven

	if syncJoints {
		for i := range s.Target.Joints {
			if i < len(snap.Joints) {
				s.Target.Joints[i] = kinematics.Clamp(snap.Joints[i], 0, 1)
			}
		}
	}
	if syncIK {
		s.Target.IK = protocol.Position{
			X: kinematics.Clamp(snap.Position.X, p.IKMin, p.IKMax),
			Y: kinematics.Clamp(snap.Position.Y, p.IKMin, p.IKMax),
			Z: kinematics.Clamp(snap.Position.Z, p.IKMin, p.IKMax),
		}
	}
}

// clampTargets pulls targets back inside a possibly narrower envelope.
func (s *SessionState) clampTargets(p Params) {
	s.Target.IK.X = kinematics.Clamp(s.Target.IK.X, p.IKMin, p.IKMax)
	s.Target.IK.Y = kinematics.Clamp(s.Target.IK.Y, p.IKMin, p.IKMax)
	s.Target.IK.Z = kinematics.Clamp(s.Target.IK.Z, p.IKMin, p.IKMax)
}
