package propagation

import "math"

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Validate checks that the elements describe a closed orbit with finite angles.
// It does not reject orbits whose perigee lies below the Earth's surface.
func (e Elements) Validate() error {
	if !isFinite(e.SemiMajorAxis) || e.SemiMajorAxis <= 0 {
		return &InvalidInputError{Field: "semi_major_axis", Value: e.SemiMajorAxis, Reason: "must be finite and positive"}
	}
	if !isFinite(e.Eccentricity) || e.Eccentricity < 0 || e.Eccentricity >= 1 {
		return &InvalidInputError{Field: "eccentricity", Value: e.Eccentricity, Reason: "must be in [0, 1)"}
	}
	angles := []struct {
		name string
		v    float64
	}{
		{"inclination", e.Inclination},
		{"raan", e.RAAN},
		{"arg_periapsis", e.ArgPeriapsis},
		{"mean_anomaly_at_epoch", e.MeanAnomalyAtEpoch},
	}
	for _, a := range angles {
		if !isFinite(a.v) {
			return &InvalidInputError{Field: a.name, Reason: "must be finite"}
		}
	}
	return nil
}

// validate checks a request against the configured point budget.
func (r Request) validate(maxPoints int) error {
	if err := r.Elements.Validate(); err != nil {
		return err
	}
	if r.NumPoints < 1 {
		return &InvalidInputError{Field: "num_points", Value: float64(r.NumPoints), Reason: "must be a positive integer"}
	}
	if maxPoints > 0 && r.NumPoints > maxPoints {
		return &InvalidInputError{Field: "num_points", Value: float64(r.NumPoints), Reason: "exceeds the per-request point budget"}
	}
	if r.Mode != SampleKepler && r.Mode != SampleUniform {
		return &InvalidInputError{Field: "mode", Value: float64(r.Mode), Reason: "unknown sampling mode"}
	}
	return nil
}
