package physics

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/star/orbitsim/internal/propagation"
	"github.com/star/orbitsim/internal/transform"
)

// Input describes a satellite for a parameters report. Angles are radians,
// lengths meters.
type Input struct {
	Mass         float64 // kg, optional
	Altitude     float64 // above the equatorial radius
	Eccentricity float64
	Inclination  float64
	RAAN         float64
	ArgPeriapsis float64
	NumPoints    int
	ApplyJ2      bool
	Mode         propagation.SamplingMode
	Epoch        time.Time // anchors the ground track
}

func (in Input) validate() error {
	if math.IsNaN(in.Mass) || math.IsInf(in.Mass, 0) || in.Mass < 0 {
		return &propagation.InvalidInputError{Field: "mass", Value: in.Mass, Reason: "must be finite and non-negative"}
	}
	if math.IsNaN(in.Altitude) || math.IsInf(in.Altitude, 0) {
		return &propagation.InvalidInputError{Field: "altitude", Reason: "must be finite"}
	}
	return nil
}

// Stats summarizes one series.
type Stats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

func describe(xs []float64) Stats {
	if len(xs) == 0 {
		return Stats{}
	}
	mean, std := stat.MeanStdDev(xs, nil)
	if len(xs) == 1 {
		std = 0
	}
	return Stats{Mean: mean, StdDev: std, Min: floats.Min(xs), Max: floats.Max(xs)}
}

// Series holds parallel per-sample arrays over one orbit, for plotting.
type Series struct {
	Angles            []float64 // true anomaly, radians
	Radii             []float64 // m
	Velocities        []float64 // m/s, vis-viva
	PotentialEnergies []float64 // J/kg
	KineticEnergies   []float64 // J/kg
	TotalEnergies     []float64 // J/kg
	OrbitX            []float64 // in-plane, m
	OrbitY            []float64 // in-plane, m
	Latitudes         []float64 // degrees
	Longitudes        []float64 // degrees
	RadiusStats       Stats
	VelocityStats     Stats
}

// Report is a Summary plus plotting series.
type Report struct {
	Summary Summary
	Series  Series
	Result  *propagation.Result
}

// Calculator produces parameter reports on top of a Propagator.
type Calculator struct {
	prop   *propagation.Propagator
	logger *slog.Logger
}

// NewCalculator creates a Calculator that samples orbits with prop.
func NewCalculator(prop *propagation.Propagator, logger *slog.Logger) *Calculator {
	return &Calculator{prop: prop, logger: logger}
}

// Calculate summarizes the orbit and samples it once over its period.
func (c *Calculator) Calculate(ctx context.Context, in Input) (*Report, error) {
	consts := c.prop.Constants()
	summary, err := Summarize(in, consts)
	if err != nil {
		return nil, err
	}

	res, err := c.prop.Propagate(ctx, propagation.Request{
		Elements: propagation.Elements{
			SemiMajorAxis: summary.SemiMajorAxis,
			Eccentricity:  in.Eccentricity,
			Inclination:   in.Inclination,
			RAAN:          in.RAAN,
			ArgPeriapsis:  in.ArgPeriapsis,
		},
		NumPoints: in.NumPoints,
		ApplyJ2:   in.ApplyJ2,
		Mode:      in.Mode,
	})
	if err != nil {
		return nil, err
	}

	series, err := BuildSeries(res, summary.SemiMajorAxis, consts, in.Epoch)
	if err != nil {
		return nil, fmt.Errorf("building series: %w", err)
	}

	if summary.Stability != StabilityStable {
		c.logger.Debug("orbit not stable",
			"stability", string(summary.Stability),
			"perigee_km", summary.Perigee/1000,
		)
	}

	return &Report{Summary: summary, Series: series, Result: res}, nil
}

// BuildSeries derives plotting series from a propagation result. The ground
// track rotates the inertial positions under an Earth turning from
// GMST(epoch) at c.EarthRotationRate.
func BuildSeries(res *propagation.Result, semiMajorAxis float64, c propagation.Constants, epoch time.Time) (Series, error) {
	mu := c.Mu
	n := len(res.Samples)
	s := Series{
		Angles:            make([]float64, n),
		Radii:             make([]float64, n),
		Velocities:        make([]float64, n),
		PotentialEnergies: make([]float64, n),
		KineticEnergies:   make([]float64, n),
		TotalEnergies:     make([]float64, n),
		OrbitX:            make([]float64, n),
		OrbitY:            make([]float64, n),
		Latitudes:         make([]float64, n),
		Longitudes:        make([]float64, n),
	}

	times := make([]float64, n)
	positions := make([]transform.Cartesian, n)
	for i, sv := range res.Samples {
		v := VisViva(mu, sv.Radius, semiMajorAxis)
		s.Angles[i] = sv.TrueAnomaly
		s.Radii[i] = sv.Radius
		s.Velocities[i] = v
		s.PotentialEnergies[i] = -mu / sv.Radius
		s.KineticEnergies[i] = SpecificKineticEnergy(v)
		s.TotalEnergies[i] = s.PotentialEnergies[i] + s.KineticEnergies[i]
		sinNu, cosNu := math.Sincos(sv.TrueAnomaly)
		s.OrbitX[i] = sv.Radius * cosNu
		s.OrbitY[i] = sv.Radius * sinNu

		times[i] = sv.Time
		positions[i] = transform.Cartesian{X: sv.Position.X, Y: sv.Position.Y, Z: sv.Position.Z}
	}

	track, err := transform.GroundTrack(epoch, c.EarthRotationRate, times, positions)
	if err != nil {
		return Series{}, err
	}
	for i, p := range track {
		s.Latitudes[i] = p.Latitude
		s.Longitudes[i] = p.Longitude
	}

	s.RadiusStats = describe(s.Radii)
	s.VelocityStats = describe(s.Velocities)
	return s, nil
}
