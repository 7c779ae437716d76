package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/star/orbitsim/internal/httputil"
	"github.com/star/orbitsim/internal/physics"
	"github.com/star/orbitsim/internal/propagation"
	"github.com/star/orbitsim/internal/tle"
	"github.com/star/orbitsim/internal/transform"
)

const (
	deg = math.Pi / 180
	km  = 1000.0

	defaultOrbitPoints  = 1000
	defaultSeriesPoints = 360

	maxBodyBytes = 1 << 20
)

type handlers struct {
	prop       *propagation.Propagator
	calc       *physics.Calculator
	logger     *slog.Logger
	trustProxy bool
}

// orbitRequest is the POST /api/v1/orbit body. Lengths are kilometers and
// angles degrees. A launch site replaces meanAnomaly when both coordinates
// are given and not both zero.
type orbitRequest struct {
	SemiMajorAxis   *float64 `json:"semiMajorAxis"`
	Eccentricity    float64  `json:"eccentricity"`
	Inclination     float64  `json:"inclination"`
	RAAN            float64  `json:"raan"`
	ArgPeriapsis    float64  `json:"argPeriapsis"`
	MeanAnomaly     float64  `json:"meanAnomaly"`
	LaunchLatitude  *float64 `json:"launchLatitude"`
	LaunchLongitude *float64 `json:"launchLongitude"`
	NumPoints       *int     `json:"numPoints"`
	ApplyJ2         *bool    `json:"applyJ2"`
	Mode            string   `json:"mode"`
	Frame           string   `json:"frame"` // "eci" (default) or "ecef"
	Epoch           string   `json:"epoch"` // RFC 3339, anchors the ECEF rotation
}

type orbitResponse struct {
	Positions          []propagation.Vector3 `json:"positions"`
	Frame              string                `json:"frame"`
	Period             float64               `json:"period"`
	MeanMotion         float64               `json:"meanMotion"`
	RAANRate           float64               `json:"raanRate"`
	ArgPeriapsisRate   float64               `json:"argPeriapsisRate"`
	MeanAnomalyAtEpoch float64               `json:"meanAnomalyAtEpoch"` // degrees
	LaunchFit          *launchFitResponse    `json:"launchFit,omitempty"`
	Satellite          *satelliteResponse    `json:"satellite,omitempty"`
}

type launchFitResponse struct {
	MeanAnomaly float64 `json:"meanAnomaly"` // degrees
	TrueAnomaly float64 `json:"trueAnomaly"` // degrees
	OutOfPlane  float64 `json:"outOfPlane"`  // meters
	Approximate bool    `json:"approximate"`
}

type satelliteResponse struct {
	NORADID int    `json:"noradId"`
	Name    string `json:"name"`
	Epoch   string `json:"epoch"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	Field     string `json:"field,omitempty"`
	MaxPoints int    `json:"max_points,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *handlers) badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg, Kind: "invalid_input"})
}

// writeError maps a propagation error onto a status code: 400 for invalid
// input, 422 for orbits the model cannot sample, 500 otherwise.
func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := propagation.Kind(err)
	resp := errorResponse{Error: err.Error(), Kind: kind}

	var status int
	switch kind {
	case "invalid_input":
		status = http.StatusBadRequest
		var iv *propagation.InvalidInputError
		if errors.As(err, &iv) {
			resp.Field = iv.Field
			if iv.Field == "num_points" && iv.Value > 0 {
				resp.MaxPoints = h.prop.Config().MaxPoints
			}
		}
	case "convergence", "degenerate_orbit":
		status = http.StatusUnprocessableEntity
	case "canceled":
		// Client went away; nobody reads the body.
		h.logger.Debug("request canceled", "path", r.URL.Path)
		return
	default:
		status = http.StatusInternalServerError
		h.logger.Error("propagation failed",
			"path", r.URL.Path,
			"remote_ip", httputil.ClientIP(r, h.trustProxy),
			"error", err,
		)
		resp.Error = "internal error"
	}
	writeJSON(w, status, resp)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func parseEpoch(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch %q: want RFC 3339", s)
	}
	return t, nil
}

func parseFrame(s string) (string, error) {
	switch strings.ToLower(s) {
	case "", "eci":
		return "ECI", nil
	case "ecef":
		return "ECEF", nil
	default:
		return "", fmt.Errorf("invalid frame %q: want eci or ecef", s)
	}
}

// request converts the body to SI units and radians.
func (o orbitRequest) request() (propagation.Request, error) {
	if o.SemiMajorAxis == nil {
		return propagation.Request{}, errors.New("semiMajorAxis is required")
	}
	mode, err := propagation.ParseSamplingMode(o.Mode)
	if err != nil {
		return propagation.Request{}, err
	}

	req := propagation.Request{
		Elements: propagation.Elements{
			SemiMajorAxis:      *o.SemiMajorAxis * km,
			Eccentricity:       o.Eccentricity,
			Inclination:        o.Inclination * deg,
			RAAN:               o.RAAN * deg,
			ArgPeriapsis:       o.ArgPeriapsis * deg,
			MeanAnomalyAtEpoch: o.MeanAnomaly * deg,
		},
		NumPoints: defaultOrbitPoints,
		ApplyJ2:   true,
		Mode:      mode,
	}
	if o.NumPoints != nil {
		req.NumPoints = *o.NumPoints
	}
	if o.ApplyJ2 != nil {
		req.ApplyJ2 = *o.ApplyJ2
	}
	if (o.LaunchLatitude == nil) != (o.LaunchLongitude == nil) {
		return propagation.Request{}, errors.New("launchLatitude and launchLongitude must be given together")
	}
	if o.LaunchLatitude != nil {
		req.Launch = &propagation.LaunchSite{
			Latitude:  *o.LaunchLatitude * deg,
			Longitude: *o.LaunchLongitude * deg,
		}
	}
	return req, nil
}

func newOrbitResponse(res *propagation.Result, frame string, epoch time.Time, rate float64) orbitResponse {
	positions := res.Positions()
	if frame == "ECEF" {
		for i, s := range res.Samples {
			c := transform.ECIToECEF(
				transform.Cartesian{X: s.Position.X, Y: s.Position.Y, Z: s.Position.Z},
				transform.SiderealAngle(epoch, s.Time, rate),
			)
			positions[i] = propagation.Vector3{X: c.X, Y: c.Y, Z: c.Z}
		}
	}

	resp := orbitResponse{
		Positions:          positions,
		Frame:              frame,
		Period:             res.Period,
		MeanMotion:         res.MeanMotion,
		RAANRate:           res.RAANRate,
		ArgPeriapsisRate:   res.ArgPeriapsisRate,
		MeanAnomalyAtEpoch: res.MeanAnomalyAtEpoch / deg,
	}
	if f := res.LaunchFit; f != nil {
		resp.LaunchFit = &launchFitResponse{
			MeanAnomaly: f.MeanAnomaly / deg,
			TrueAnomaly: f.TrueAnomaly / deg,
			OutOfPlane:  f.OutOfPlane,
			Approximate: f.Approximate,
		}
	}
	return resp
}

// orbit handles POST /api/v1/orbit.
func (h *handlers) orbit(w http.ResponseWriter, r *http.Request) {
	var body orbitRequest
	if err := decodeJSON(w, r, &body); err != nil {
		h.badRequest(w, err.Error())
		return
	}
	req, err := body.request()
	if err != nil {
		h.writeRequestError(w, r, err)
		return
	}
	frame, err := parseFrame(body.Frame)
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}
	epoch, err := parseEpoch(body.Epoch)
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}

	res, err := h.prop.Propagate(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrbitResponse(res, frame, epoch, h.prop.Constants().EarthRotationRate))
}

// writeRequestError reports conversion failures. Typed errors keep their
// field; anything else is a plain 400.
func (h *handlers) writeRequestError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, propagation.ErrInvalidInput) {
		h.writeError(w, r, err)
		return
	}
	h.badRequest(w, err.Error())
}

// orbitFromTLE handles POST /api/v1/orbit/tle. The body is 3-line TLE text;
// ?sat= selects an entry by NORAD ID or name (default: the first),
// ?numPoints=, ?frame= and ?j2= behave as in the JSON endpoint. The mean
// anomaly and the ECEF rotation are anchored at the TLE epoch.
func (h *handlers) orbitFromTLE(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	entries, err := tle.Parse(io.LimitReader(r.Body, maxBodyBytes), h.logger)
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}
	if len(entries) == 0 {
		h.badRequest(w, "no valid TLE entries in body")
		return
	}
	entry := entries[0]
	if sat := q.Get("sat"); sat != "" {
		var ok bool
		if entry, ok = tle.Find(entries, sat); !ok {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "satellite " + sat + " not in body", Kind: "not_found"})
			return
		}
	}

	el, err := tle.Elements(entry, h.prop.Constants())
	if err != nil {
		h.writeRequestError(w, r, err)
		return
	}

	req := propagation.Request{Elements: el, NumPoints: defaultOrbitPoints, ApplyJ2: true}
	if v := q.Get("numPoints"); v != "" {
		if req.NumPoints, err = strconv.Atoi(v); err != nil {
			h.badRequest(w, "invalid numPoints parameter")
			return
		}
	}
	if v := q.Get("j2"); v != "" {
		if req.ApplyJ2, err = strconv.ParseBool(v); err != nil {
			h.badRequest(w, "invalid j2 parameter")
			return
		}
	}
	frame, err := parseFrame(q.Get("frame"))
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}

	res, err := h.prop.Propagate(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := newOrbitResponse(res, frame, entry.Epoch, h.prop.Constants().EarthRotationRate)
	resp.Satellite = &satelliteResponse{
		NORADID: entry.NORADID,
		Name:    entry.Name,
		Epoch:   entry.Epoch.UTC().Format(time.RFC3339),
	}
	writeJSON(w, http.StatusOK, resp)
}

// parametersRequest is the POST /api/v1/parameters body. Mass is kilograms,
// altitude kilometers, angles degrees.
type parametersRequest struct {
	Mass         float64  `json:"mass"`
	Altitude     *float64 `json:"altitude"`
	Eccentricity float64  `json:"eccentricity"`
	Inclination  float64  `json:"inclination"`
	RAAN         float64  `json:"raan"`
	ArgPeriapsis float64  `json:"argPeriapsis"`
	NumPoints    *int     `json:"numPoints"`
	ApplyJ2      *bool    `json:"applyJ2"`
	Mode         string   `json:"mode"`
	Epoch        string   `json:"epoch"`
}

type parametersResponse struct {
	Results parameterResults `json:"results"`
}

type parameterResults struct {
	Velocity                float64     `json:"velocity"`
	PotentialEnergySpecific float64     `json:"potential_energy_specific"`
	KineticEnergySpecific   float64     `json:"kinetic_energy_specific"`
	TotalEnergySpecific     float64     `json:"total_energy_specific"`
	PotentialEnergy         float64     `json:"potential_energy,omitempty"`
	KineticEnergy           float64     `json:"kinetic_energy,omitempty"`
	TotalEnergy             float64     `json:"total_energy,omitempty"`
	Period                  float64     `json:"period"`
	Apogee                  float64     `json:"apogee"`  // km
	Perigee                 float64     `json:"perigee"` // km
	Stability               string      `json:"stability"`
	Graphs                  graphSeries `json:"graphs"`
	Stats                   seriesStats `json:"stats"`
}

type graphSeries struct {
	Angles            []float64 `json:"angles"` // degrees
	PotentialEnergies []float64 `json:"potential_energies"`
	KineticEnergies   []float64 `json:"kinetic_energies"`
	TotalEnergies     []float64 `json:"total_energies"`
	OrbitX            []float64 `json:"orbit_x"` // km
	OrbitY            []float64 `json:"orbit_y"` // km
	Latitudes         []float64 `json:"latitudes"`
	Longitudes        []float64 `json:"longitudes"`
}

type seriesStats struct {
	Radius   physics.Stats `json:"radius"`
	Velocity physics.Stats `json:"velocity"`
}

func scaled(xs []float64, f float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = x * f
	}
	return out
}

// parameters handles POST /api/v1/parameters.
func (h *handlers) parameters(w http.ResponseWriter, r *http.Request) {
	var body parametersRequest
	if err := decodeJSON(w, r, &body); err != nil {
		h.badRequest(w, err.Error())
		return
	}
	if body.Altitude == nil {
		h.badRequest(w, "altitude is required")
		return
	}
	mode, err := propagation.ParseSamplingMode(body.Mode)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	epoch, err := parseEpoch(body.Epoch)
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}

	in := physics.Input{
		Mass:         body.Mass,
		Altitude:     *body.Altitude * km,
		Eccentricity: body.Eccentricity,
		Inclination:  body.Inclination * deg,
		RAAN:         body.RAAN * deg,
		ArgPeriapsis: body.ArgPeriapsis * deg,
		NumPoints:    defaultSeriesPoints,
		ApplyJ2:      true,
		Mode:         mode,
		Epoch:        epoch,
	}
	if body.NumPoints != nil {
		in.NumPoints = *body.NumPoints
	}
	if body.ApplyJ2 != nil {
		in.ApplyJ2 = *body.ApplyJ2
	}

	report, err := h.calc.Calculate(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	s, g := report.Summary, report.Series
	writeJSON(w, http.StatusOK, parametersResponse{Results: parameterResults{
		Velocity:                s.Velocity,
		PotentialEnergySpecific: s.PotentialEnergySpecific,
		KineticEnergySpecific:   s.KineticEnergySpecific,
		TotalEnergySpecific:     s.TotalEnergySpecific,
		PotentialEnergy:         s.PotentialEnergy,
		KineticEnergy:           s.KineticEnergy,
		TotalEnergy:             s.TotalEnergy,
		Period:                  s.Period,
		Apogee:                  s.Apogee / km,
		Perigee:                 s.Perigee / km,
		Stability:               string(s.Stability),
		Graphs: graphSeries{
			Angles:            scaled(g.Angles, 1/deg),
			PotentialEnergies: g.PotentialEnergies,
			KineticEnergies:   g.KineticEnergies,
			TotalEnergies:     g.TotalEnergies,
			OrbitX:            scaled(g.OrbitX, 1/km),
			OrbitY:            scaled(g.OrbitY, 1/km),
			Latitudes:         g.Latitudes,
			Longitudes:        g.Longitudes,
		},
		Stats: seriesStats{Radius: g.RadiusStats, Velocity: g.VelocityStats},
	}})
}

// constants handles GET /api/v1/constants.
func (h *handlers) constants(w http.ResponseWriter, r *http.Request) {
	c := h.prop.Constants()
	cfg := h.prop.Config()
	writeJSON(w, http.StatusOK, map[string]any{
		"mu":                  c.Mu,
		"earth_radius":        c.EarthRadius,
		"j2":                  c.J2,
		"earth_rotation_rate": c.EarthRotationRate,
		"max_points":          cfg.MaxPoints,
		"max_iterations":      cfg.MaxIterations,
		"tolerance":           cfg.Tolerance,
		"decay_altitude":      physics.DecayAltitude,
	})
}
