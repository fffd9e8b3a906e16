package robot

import (
	"math"

	"github.com/open-teleop/station/pkg/kinematics"
	"github.com/open-teleop/station/pkg/protocol"
)

// ArmGeometry describes the simulated arm: a base yaw joint, a shoulder and
// an elbow. A fourth wrist joint, when present, does not move the end
// effector.
type ArmGeometry struct {
	BaseHeight float64 // mm from ground to shoulder axis
	UpperArm   float64 // mm shoulder to elbow
	Forearm    float64 // mm elbow to end effector
}

// DefaultArm is the geometry used by the simulator.
func DefaultArm() ArmGeometry {
	return ArmGeometry{BaseHeight: 100, UpperArm: 250, Forearm: 250}
}

// Joint fractions map to angles as:
//
//	base     (f-0.5)*pi  yaw, 0.5 faces +x
//	shoulder f*pi        from horizontal
//	elbow    (f-1)*pi    relative to the upper arm, 1 is straight
func jointAngles(joints []float64) (yaw, shoulder, elbow float64) {
	f := [3]float64{0.5, 0.5, 1}
	copy(f[:], joints)
	return (f[0] - 0.5) * math.Pi, f[1] * math.Pi, (f[2] - 1) * math.Pi
}

// ForwardKinematics returns the end effector position for joint fractions.
func (a ArmGeometry) ForwardKinematics(joints []float64) protocol.Position {
	yaw, shoulder, elbow := jointAngles(joints)
	reach := a.UpperArm*math.Cos(shoulder) + a.Forearm*math.Cos(shoulder+elbow)
	height := a.UpperArm*math.Sin(shoulder) + a.Forearm*math.Sin(shoulder+elbow)
	return protocol.Position{
		X: reach * math.Cos(yaw),
		Y: reach * math.Sin(yaw),
		Z: a.BaseHeight + height,
	}
}

// InverseKinematics returns elbow-up joint fractions for p. Unreachable
// targets resolve to the nearest joint limits.
func (a ArmGeometry) InverseKinematics(p protocol.Position) [3]float64 {
	yaw := math.Atan2(p.Y, p.X)
	reach := math.Hypot(p.X, p.Y)
	height := p.Z - a.BaseHeight

	c := (reach*reach + height*height - a.UpperArm*a.UpperArm - a.Forearm*a.Forearm) / (2 * a.UpperArm * a.Forearm)
	elbow := -math.Acos(kinematics.Clamp(c, -1, 1))
	shoulder := math.Atan2(height, reach) - math.Atan2(a.Forearm*math.Sin(elbow), a.UpperArm+a.Forearm*math.Cos(elbow))

	return [3]float64{
		kinematics.Clamp(yaw/math.Pi+0.5, 0, 1),
		kinematics.Clamp(shoulder/math.Pi, 0, 1),
		kinematics.Clamp(1+elbow/math.Pi, 0, 1),
	}
}
