package propagation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/star/orbitsim/internal/metrics"
)

// Propagator samples Keplerian orbits with optional J2 secular drift.
// Safe for concurrent use; each call is independent.
type Propagator struct {
	pool   *WorkerPool
	config PropConfig
	solver KeplerSolver
	logger *slog.Logger
}

// NewPropagator creates a new propagator. Zero-valued config fields fall
// back to DefaultPropConfig.
func NewPropagator(config PropConfig, logger *slog.Logger) *Propagator {
	def := DefaultPropConfig()
	if config.Workers < 1 {
		config.Workers = def.Workers
	}
	if config.MaxIterations < 1 {
		config.MaxIterations = def.MaxIterations
	}
	if config.Tolerance <= 0 {
		config.Tolerance = def.Tolerance
	}
	if config.MaxPoints < 1 {
		config.MaxPoints = def.MaxPoints
	}
	if config.Constants == (Constants{}) {
		config.Constants = def.Constants
	}

	return &Propagator{
		pool:   NewWorkerPool(config.Workers, logger),
		config: config,
		solver: KeplerSolver{MaxIterations: config.MaxIterations, Tolerance: config.Tolerance},
		logger: logger,
	}
}

// Config returns the effective configuration.
func (p *Propagator) Config() PropConfig {
	return p.config
}

// Constants returns the physical constants used by this propagator.
func (p *Propagator) Constants() Constants {
	return p.config.Constants
}

// Propagate samples req.NumPoints states evenly spaced over [0, period).
// Errors are one of *InvalidInputError, *DegenerateOrbitError, or a
// *SampleError wrapping a *ConvergenceError, or the context's error.
func (p *Propagator) Propagate(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res, err := p.propagate(ctx, req)
	metrics.RecordPropagation(time.Since(start), len(resultSamples(res)), Kind(err))
	return res, err
}

func (p *Propagator) propagate(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := req.validate(p.config.MaxPoints); err != nil {
		return nil, err
	}
	c := p.config.Constants
	el := req.Elements

	var raanRate, argpRate float64
	if req.ApplyJ2 {
		var err error
		raanRate, argpRate, err = SecularRates(el.SemiMajorAxis, el.Eccentricity, el.Inclination, c)
		if err != nil {
			return nil, err
		}
	}

	var fit *LaunchFit
	if req.Launch.active() {
		f, err := FitLaunchSite(*req.Launch, el, c)
		if err != nil {
			return nil, err
		}
		if f.Approximate {
			p.logger.Warn("launch site is off the orbital plane, using best-fit anomaly",
				"out_of_plane_m", f.OutOfPlane,
				"mean_anomaly_rad", f.MeanAnomaly,
			)
		}
		el.MeanAnomalyAtEpoch = f.MeanAnomaly
		fit = &f
	}

	period := el.Period(c.Mu)
	r := &run{
		elements:         el,
		period:           period,
		meanMotion:       2 * math.Pi / period,
		raanRate:         raanRate,
		argPeriapsisRate: argpRate,
		mode:             req.Mode,
		solver:           p.solver,
	}

	times := TimeGrid(period, req.NumPoints)

	p.logger.Debug("propagating",
		"num_points", req.NumPoints,
		"period_s", period,
		"j2", req.ApplyJ2,
		"mode", req.Mode.String(),
		"workers", p.config.Workers,
	)

	samples, err := p.pool.SampleBatch(ctx, r, times)
	if err != nil {
		return nil, fmt.Errorf("propagation: %w", err)
	}

	return &Result{
		Period:             period,
		MeanMotion:         r.meanMotion,
		RAANRate:           raanRate,
		ArgPeriapsisRate:   argpRate,
		MeanAnomalyAtEpoch: el.MeanAnomalyAtEpoch,
		LaunchFit:          fit,
		Samples:            samples,
	}, nil
}

// Revolutions propagates count consecutive periods. Each revolution starts
// from the elements the previous one drifted to; the launch site, if any,
// only applies to the first.
func (p *Propagator) Revolutions(ctx context.Context, req Request, count int) ([]*Result, error) {
	if count < 1 {
		return nil, &InvalidInputError{Field: "revolutions", Value: float64(count), Reason: "must be a positive integer"}
	}

	results := make([]*Result, 0, count)
	for i := 0; i < count; i++ {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}

		res, err := p.Propagate(ctx, req)
		if err != nil {
			return results, fmt.Errorf("revolution %d: %w", i, err)
		}
		results = append(results, res)
		req = NextRevolution(req, res)
	}
	return results, nil
}

// NextRevolution returns the request for the revolution following res: the
// elements drift by one period and any launch site is dropped.
func NextRevolution(req Request, res *Result) Request {
	el := req.Elements
	el.MeanAnomalyAtEpoch = res.MeanAnomalyAtEpoch
	req.Elements = el.Advance(res.Period, res.RAANRate, res.ArgPeriapsisRate, res.MeanMotion)
	req.Launch = nil
	return req
}

// TimeGrid returns n times evenly spaced over [0, period), starting at 0.
func TimeGrid(period float64, n int) []float64 {
	if n < 1 {
		return nil
	}
	return floats.Span(make([]float64, n+1), 0, period)[:n]
}

func resultSamples(r *Result) []StateVector {
	if r == nil {
		return nil
	}
	return r.Samples
}
