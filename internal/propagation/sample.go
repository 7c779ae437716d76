package propagation

import "math"

// run is the immutable per-request state shared by all sample workers.
type run struct {
	elements         Elements // after any launch-site override
	period           float64
	meanMotion       float64
	raanRate         float64
	argPeriapsisRate float64
	mode             SamplingMode
	solver           KeplerSolver
}

// sampleAt computes the state at time t. It reads only r and its arguments,
// so samples may be computed in any order.
func (r *run) sampleAt(index int, t float64) (StateVector, error) {
	el := r.elements
	e := el.Eccentricity

	raan := el.RAAN + r.raanRate*t
	argp := el.ArgPeriapsis + r.argPeriapsisRate*t

	M := normalizeAngle(el.MeanAnomalyAtEpoch + r.meanMotion*t)

	var E, nu float64
	switch r.mode {
	case SampleUniform:
		nu = M
		E = normalizeAngle(EccentricFromTrue(nu, e))
	default:
		var err error
		E, err = r.solver.Solve(M, e)
		if err != nil {
			return StateVector{}, err
		}
		nu = TrueFromEccentric(E, e)
	}

	radius := el.SemiMajorAxis * (1 - e*math.Cos(E))
	sNu, cNu := math.Sincos(nu)
	inPlane := Vector3{X: radius * cNu, Y: radius * sNu}

	return StateVector{
		Index:            index,
		Time:             t,
		MeanAnomaly:      M,
		EccentricAnomaly: E,
		TrueAnomaly:      nu,
		Radius:           radius,
		RAAN:             raan,
		ArgPeriapsis:     argp,
		Position:         NewRotationMatrix(raan, el.Inclination, argp).Apply(inPlane),
	}, nil
}
