package propagation

import "math"

// Kepler solver defaults.
const (
	DefaultMaxIterations = 50
	DefaultTolerance     = 1e-12
)

// KeplerSolver solves E - e·sin(E) = M by Newton–Raphson with an explicit
// iteration budget.
type KeplerSolver struct {
	MaxIterations int
	Tolerance     float64 // stop when |ΔE| falls below this (radians)
}

// DefaultKeplerSolver returns a solver with the default budget and tolerance.
func DefaultKeplerSolver() KeplerSolver {
	return KeplerSolver{MaxIterations: DefaultMaxIterations, Tolerance: DefaultTolerance}
}

// SolveKepler solves Kepler's equation with the default solver.
func SolveKepler(meanAnomaly, eccentricity float64) (float64, error) {
	return DefaultKeplerSolver().Solve(meanAnomaly, eccentricity)
}

// Solve returns the eccentric anomaly for the given mean anomaly and
// eccentricity. The initial guess is the mean anomaly itself. Returns a
// *ConvergenceError if the step size is still above tolerance after
// MaxIterations steps.
func (s KeplerSolver) Solve(meanAnomaly, eccentricity float64) (float64, error) {
	if math.IsNaN(meanAnomaly) || math.IsInf(meanAnomaly, 0) {
		return 0, &InvalidInputError{Field: "mean_anomaly", Reason: "must be finite"}
	}
	if !(eccentricity >= 0 && eccentricity < 1) {
		return 0, &InvalidInputError{Field: "eccentricity", Value: eccentricity, Reason: "must be in [0, 1)"}
	}

	maxIter := s.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	tol := s.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}

	E := meanAnomaly
	for i := 0; i < maxIter; i++ {
		sinE, cosE := math.Sincos(E)
		f := E - eccentricity*sinE - meanAnomaly
		fp := 1 - eccentricity*cosE // >= 1-e > 0
		delta := f / fp
		E -= delta
		if math.Abs(delta) < tol {
			return E, nil
		}
	}

	return 0, &ConvergenceError{
		MeanAnomaly:  meanAnomaly,
		Eccentricity: eccentricity,
		Iterations:   maxIter,
		Residual:     E - eccentricity*math.Sin(E) - meanAnomaly,
	}
}

// TrueFromEccentric converts eccentric anomaly to true anomaly using the
// half-angle relation.
func TrueFromEccentric(E, e float64) float64 {
	return 2 * math.Atan2(math.Sqrt(1+e)*math.Sin(E/2), math.Sqrt(1-e)*math.Cos(E/2))
}

// EccentricFromTrue converts true anomaly to eccentric anomaly using the
// half-angle relation.
func EccentricFromTrue(nu, e float64) float64 {
	return 2 * math.Atan2(math.Sqrt(1-e)*math.Sin(nu/2), math.Sqrt(1+e)*math.Cos(nu/2))
}

// MeanFromEccentric evaluates Kepler's equation directly.
func MeanFromEccentric(E, e float64) float64 {
	return E - e*math.Sin(E)
}
