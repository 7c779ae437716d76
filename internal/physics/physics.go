// Package physics derives scalar orbit parameters and per-sample plotting
// series (energies, vis-viva speed, ground track) from a propagation run.
package physics

import (
	"math"

	"github.com/star/orbitsim/internal/propagation"
)

// Stability classifies an orbit by its perigee altitude.
type Stability string

const (
	StabilityStable   Stability = "stable"
	StabilityDecaying Stability = "decaying" // perigee inside the drag regime
	StabilityInvalid  Stability = "invalid"  // perigee below the surface
)

// DecayAltitude is the perigee altitude, in meters, below which drag makes
// an orbit decay within days.
const DecayAltitude = 160e3

// CircularVelocity returns sqrt(μ/a) in m/s.
func CircularVelocity(mu, semiMajorAxis float64) float64 {
	return math.Sqrt(mu / semiMajorAxis)
}

// SpecificPotentialEnergy returns -μ/a in J/kg.
func SpecificPotentialEnergy(mu, semiMajorAxis float64) float64 {
	return -mu / semiMajorAxis
}

// SpecificKineticEnergy returns v²/2 in J/kg.
func SpecificKineticEnergy(velocity float64) float64 {
	return velocity * velocity / 2
}

// SpecificOrbitalEnergy returns the vis-viva energy -μ/(2a) in J/kg.
func SpecificOrbitalEnergy(mu, semiMajorAxis float64) float64 {
	return -mu / (2 * semiMajorAxis)
}

// VisViva returns the orbital speed at radius r on an orbit of semi-major axis a.
func VisViva(mu, r, semiMajorAxis float64) float64 {
	return math.Sqrt(mu * (2/r - 1/semiMajorAxis))
}

// Period returns 2π·sqrt(a³/μ) in seconds.
func Period(mu, semiMajorAxis float64) float64 {
	return 2 * math.Pi * math.Sqrt(semiMajorAxis*semiMajorAxis*semiMajorAxis/mu)
}

// Apsides returns apogee and perigee altitudes above the equatorial radius,
// in meters. A circular orbit reports its altitude for both.
func Apsides(semiMajorAxis, eccentricity, altitude, earthRadius float64) (apogee, perigee float64) {
	if eccentricity == 0 {
		return altitude, altitude
	}
	return semiMajorAxis*(1+eccentricity) - earthRadius, semiMajorAxis*(1-eccentricity) - earthRadius
}

// Classify maps a perigee altitude (meters) to a Stability.
func Classify(perigee float64) Stability {
	switch {
	case perigee < 0:
		return StabilityInvalid
	case perigee < DecayAltitude:
		return StabilityDecaying
	default:
		return StabilityStable
	}
}

// Summary holds the scalar parameters of an orbit.
type Summary struct {
	SemiMajorAxis           float64   // m
	Velocity                float64   // m/s, circular speed at a
	PotentialEnergySpecific float64   // J/kg
	KineticEnergySpecific   float64   // J/kg
	TotalEnergySpecific     float64   // J/kg
	Period                  float64   // s
	Apogee                  float64   // m above the equatorial radius
	Perigee                 float64   // m above the equatorial radius
	Stability               Stability // from Perigee

	// Mass-scaled energies in J; zero when no mass was given.
	PotentialEnergy float64
	KineticEnergy   float64
	TotalEnergy     float64
}

// Summarize computes the scalar parameters for a satellite of the given
// mass at altitude above the equatorial radius.
func Summarize(in Input, c propagation.Constants) (Summary, error) {
	if err := in.validate(); err != nil {
		return Summary{}, err
	}

	a := c.EarthRadius + in.Altitude
	if a <= 0 {
		return Summary{}, &propagation.InvalidInputError{Field: "altitude", Value: in.Altitude, Reason: "places the orbit inside the Earth's center"}
	}

	v := CircularVelocity(c.Mu, a)
	apogee, perigee := Apsides(a, in.Eccentricity, in.Altitude, c.EarthRadius)

	s := Summary{
		SemiMajorAxis:           a,
		Velocity:                v,
		PotentialEnergySpecific: SpecificPotentialEnergy(c.Mu, a),
		KineticEnergySpecific:   SpecificKineticEnergy(v),
		TotalEnergySpecific:     SpecificOrbitalEnergy(c.Mu, a),
		Period:                  Period(c.Mu, a),
		Apogee:                  apogee,
		Perigee:                 perigee,
		Stability:               Classify(perigee),
	}
	if in.Mass > 0 {
		s.PotentialEnergy = in.Mass * s.PotentialEnergySpecific
		s.KineticEnergy = in.Mass * s.KineticEnergySpecific
		s.TotalEnergy = in.Mass * s.TotalEnergySpecific
	}
	return s, nil
}
