package propagation

import "math"

// Physical constants for the Earth two-body model with J2.
const (
	MuEarth           = 3.986004418e14 // m³/s²
	EarthRadius       = 6378.137e3     // equatorial radius, meters
	J2Earth           = 1.08263e-3
	EarthRotationRate = 7.292115146706979e-5 // rad/s
)

// Constants carries the physical constants used by a propagation run.
// Values are fixed for the lifetime of a Propagator.
type Constants struct {
	Mu                float64 // gravitational parameter (m³/s²)
	EarthRadius       float64 // meters
	J2                float64
	EarthRotationRate float64 // rad/s
}

// EarthConstants returns the standard Earth constants.
func EarthConstants() Constants {
	return Constants{
		Mu:                MuEarth,
		EarthRadius:       EarthRadius,
		J2:                J2Earth,
		EarthRotationRate: EarthRotationRate,
	}
}

// Elements holds classical orbital elements in SI units and radians.
type Elements struct {
	SemiMajorAxis      float64 // meters
	Eccentricity       float64 // 0 <= e < 1
	Inclination        float64 // radians
	RAAN               float64 // radians
	ArgPeriapsis       float64 // radians
	MeanAnomalyAtEpoch float64 // radians
}

// Period returns the orbital period in seconds (Kepler's third law).
func (e Elements) Period(mu float64) float64 {
	return 2 * math.Pi * math.Sqrt(e.SemiMajorAxis*e.SemiMajorAxis*e.SemiMajorAxis/mu)
}

// MeanMotion returns the mean motion in rad/s.
func (e Elements) MeanMotion(mu float64) float64 {
	return math.Sqrt(mu / (e.SemiMajorAxis * e.SemiMajorAxis * e.SemiMajorAxis))
}

// Advance returns the elements after dt seconds of secular drift: RAAN and
// argument of periapsis move at the given rates and the mean anomaly at
// epoch moves at mean motion n.
func (e Elements) Advance(dt, raanRate, argPeriapsisRate, n float64) Elements {
	out := e
	out.RAAN = e.RAAN + raanRate*dt
	out.ArgPeriapsis = e.ArgPeriapsis + argPeriapsisRate*dt
	out.MeanAnomalyAtEpoch = normalizeAngle(e.MeanAnomalyAtEpoch + n*dt)
	return out
}

// LaunchSite is a point on the Earth's surface (radians) used to back-solve
// the mean anomaly at epoch.
type LaunchSite struct {
	Latitude  float64
	Longitude float64
}

// active reports whether the site should override the mean anomaly.
// A site at (0, 0) is treated as unset.
func (s *LaunchSite) active() bool {
	return s != nil && (s.Latitude != 0 || s.Longitude != 0)
}

// SamplingMode selects how anomalies advance with time.
type SamplingMode int

const (
	// SampleKepler solves Kepler's equation at every sample.
	SampleKepler SamplingMode = iota
	// SampleUniform treats the true anomaly as advancing uniformly with
	// time. Exact only for circular orbits; kept as an approximation mode
	// for quick ground-track previews.
	SampleUniform
)

func (m SamplingMode) String() string {
	switch m {
	case SampleKepler:
		return "kepler"
	case SampleUniform:
		return "uniform"
	default:
		return "unknown"
	}
}

// ParseSamplingMode maps "kepler" or "uniform" to a SamplingMode.
// The empty string selects SampleKepler.
func ParseSamplingMode(s string) (SamplingMode, error) {
	switch s {
	case "", "kepler":
		return SampleKepler, nil
	case "uniform":
		return SampleUniform, nil
	default:
		return SampleKepler, &InvalidInputError{Field: "mode", Reason: "must be kepler or uniform: " + s}
	}
}

// Request describes a single propagation run.
type Request struct {
	Elements  Elements
	NumPoints int         // samples across one period
	Launch    *LaunchSite // optional; overrides Elements.MeanAnomalyAtEpoch
	ApplyJ2   bool        // apply secular J2 drift of RAAN and argument of periapsis
	Mode      SamplingMode
}

// Vector3 is a Cartesian vector in meters.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Norm returns the Euclidean length of v.
func (v Vector3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// StateVector is one propagated sample.
type StateVector struct {
	Index            int
	Time             float64 // seconds since epoch, in [0, period)
	MeanAnomaly      float64 // radians, [0, 2π)
	EccentricAnomaly float64
	TrueAnomaly      float64
	Radius           float64 // meters
	RAAN             float64 // perturbed RAAN at Time
	ArgPeriapsis     float64 // perturbed argument of periapsis at Time
	Position         Vector3 // ECI, meters
}

// LaunchFit reports how the mean anomaly at epoch was derived from a launch site.
type LaunchFit struct {
	MeanAnomaly float64 // radians
	TrueAnomaly float64 // radians
	// OutOfPlane is the launch point's distance from the orbital plane in meters.
	OutOfPlane float64
	// Approximate is set when the launch point does not lie in the orbital
	// plane, so the anomaly is a best fit rather than an exact placement.
	Approximate bool
}

// Result is the output of a propagation run.
type Result struct {
	Period             float64 // seconds
	MeanMotion         float64 // rad/s
	RAANRate           float64 // rad/s, zero when J2 is off
	ArgPeriapsisRate   float64 // rad/s, zero when J2 is off
	MeanAnomalyAtEpoch float64 // radians, after any launch-site override
	LaunchFit          *LaunchFit
	Samples            []StateVector
}

// Positions returns the ECI positions of all samples in order.
func (r *Result) Positions() []Vector3 {
	out := make([]Vector3, len(r.Samples))
	for i, s := range r.Samples {
		out[i] = s.Position
	}
	return out
}

// PropConfig holds propagation configuration.
type PropConfig struct {
	Workers       int     // Worker pool size (default: 4)
	MaxIterations int     // Kepler iteration budget (default: 50)
	Tolerance     float64 // Kepler step tolerance in radians (default: 1e-12)
	MaxPoints     int     // Upper bound on NumPoints per request (default: 100000)
	Constants     Constants
}

// DefaultPropConfig returns the defaults used when no overrides are configured.
func DefaultPropConfig() PropConfig {
	return PropConfig{
		Workers:       4,
		MaxIterations: DefaultMaxIterations,
		Tolerance:     DefaultTolerance,
		MaxPoints:     100000,
		Constants:     EarthConstants(),
	}
}

func normalizeAngle(angle float64) float64 {
	wrapped := math.Mod(angle, 2*math.Pi)
	if wrapped < 0 {
		wrapped += 2 * math.Pi
	}
	return wrapped
}
