// Package transform converts inertial orbit positions into Earth-fixed
// coordinates for ground-track display.
//
// Earth orientation is modeled by GMST only: no nutation, precession since
// epoch, or polar motion. The resulting error is well below what a
// two-body propagation already carries.
package transform

import "math"

// Cartesian is a position in meters, either inertial (ECI) or Earth-fixed
// (ECEF) depending on context.
type Cartesian struct {
	X, Y, Z float64
}

// Norm returns the distance from the Earth's center in meters.
func (c Cartesian) Norm() float64 {
	return math.Sqrt(c.X*c.X + c.Y*c.Y + c.Z*c.Z)
}

// ECIToECEF rotates an inertial position into the Earth-fixed frame for a
// sidereal angle theta (radians): r_ECEF = R3(θ)·r_ECI.
func ECIToECEF(eci Cartesian, theta float64) Cartesian {
	sinT, cosT := math.Sincos(theta)
	return Cartesian{
		X: eci.X*cosT + eci.Y*sinT,
		Y: -eci.X*sinT + eci.Y*cosT,
		Z: eci.Z,
	}
}
