// Package kinematics maps a two-axis drive stick to differential wheel speeds.
package kinematics

import "math"

// Gamma shapes an axis value as sign(v)*|v|^gamma, giving finer control
// near the center for gamma > 1.
func Gamma(v, gamma float64) float64 {
	if v < 0 {
		return -math.Pow(-v, gamma)
	}
	return math.Pow(v, gamma)
}

// ArcadeDrive mixes a rotate and a drive axis into left and right speeds.
//
// The pair is converted to polar form, rotated by -45 degrees and scaled by
// 2/sqrt(2), which reduces to left = rotate+drive and right = drive-rotate.
// Inside the diamond |rotate|+|drive| <= 1 both outputs stay within [-1, 1];
// outside it callers must clamp.
func ArcadeDrive(rotate, drive float64) (left, right float64) {
	r := math.Hypot(rotate, drive)
	if r == 0 {
		return 0, 0
	}
	t := math.Atan2(drive, rotate) - math.Pi/4
	scale := 2 / math.Sqrt2
	return r * math.Cos(t) * scale, r * math.Sin(t) * scale
}

// Mix applies the gamma curve to both axes, runs ArcadeDrive and clamps the
// result first to [-1, 1] and then to [-maxSpeed, maxSpeed].
func Mix(rotate, drive, gamma, maxSpeed float64) (left, right float64) {
	left, right = ArcadeDrive(Gamma(rotate, gamma), Gamma(drive, gamma))
	maxSpeed = Clamp(math.Abs(maxSpeed), 0, 1)
	left = Clamp(Clamp(left, -1, 1), -maxSpeed, maxSpeed)
	right = Clamp(Clamp(right, -1, 1), -maxSpeed, maxSpeed)
	return left, right
}

// Clamp limits x to [lo, hi]. NaN collapses to the value in range nearest
// zero, so a corrupt reading never saturates an actuator.
func Clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		x = 0
	}
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
