package propagation

import "math"

// minLatusRatio is the smallest p/a = 1-e² the J2 model accepts.
const minLatusRatio = 1e-9

// SecularRates returns the first-order secular drift of RAAN and argument of
// periapsis due to J2, in rad/s:
//
//	p       = a(1 - e²)
//	factor  = 1.5·J2·R²/p²
//	dΩ/dt   = -factor·cos(i)
//	dω/dt   =  factor·(2 - 2.5·sin²(i))
//
// The rates are applied linearly in time (Ω(t) = Ω₀ + dΩ/dt·t). That is only
// valid over spans short compared to the growth of higher-order terms; this
// is a modeling limitation, not something the propagator corrects for.
func SecularRates(semiMajorAxis, eccentricity, inclination float64, c Constants) (raanRate, argPeriapsisRate float64, err error) {
	p := semiMajorAxis * (1 - eccentricity*eccentricity)
	if math.IsNaN(p) || math.IsInf(p, 0) || p <= semiMajorAxis*minLatusRatio {
		return 0, 0, &DegenerateOrbitError{SemiLatusRectum: p}
	}

	factor := 1.5 * c.J2 * c.EarthRadius * c.EarthRadius / (p * p)
	sinI, cosI := math.Sincos(inclination)

	raanRate = -factor * cosI
	argPeriapsisRate = factor * (2 - 2.5*sinI*sinI)
	return raanRate, argPeriapsisRate, nil
}
