// Package stream implements Server-Sent Events (SSE) streaming of orbit
// propagation. Clients connect via GET /api/v1/stream/orbit and receive one
// batch of ECI positions per revolution, with J2 drift carried from one
// revolution to the next.
//
// SSE message format:
//
//	id: 1
//	data: {"type":"orbit_batch","revolution":0,"t0":0,"frame":"ECI","p":[[x,y,z],...]}\n\n
//
// First message is always metadata:
//
//	data: {"type":"metadata","period_s":5828.5,"num_points":360,"revolutions":10,...}\n\n
//
// The last message is {"type":"done"} unless the client disconnects first.
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/star/orbitsim/internal/httputil"
	"github.com/star/orbitsim/internal/metrics"
	"github.com/star/orbitsim/internal/propagation"
)

// Config holds streaming configuration.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
	Interval           time.Duration // Pause between revolution batches (default: 1s).
	MaxRevolutions     int           // Upper bound on ?revolutions (default: 100).
	TrustProxy         bool
}

// Propagator runs one revolution of a stream.
type Propagator interface {
	Propagate(ctx context.Context, req propagation.Request) (*propagation.Result, error)
}

// Handler manages SSE streaming connections.
type Handler struct {
	prop    Propagator
	config  Config
	limiter *streamLimiter
	logger  *slog.Logger
}

// NewHandler creates a new streaming handler.
func NewHandler(prop Propagator, config Config, logger *slog.Logger) *Handler {
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	if config.MaxRevolutions < 1 {
		config.MaxRevolutions = 100
	}
	if config.MaxConcurrentPerIP < 1 {
		config.MaxConcurrentPerIP = 10
	}
	return &Handler{
		prop:    prop,
		config:  config,
		limiter: newStreamLimiter(config.MaxConcurrentPerIP),
		logger:  logger,
	}
}

const deg = math.Pi / 180

// parseQuery reads a propagation request from query parameters. Lengths are
// kilometers and angles degrees, as in the JSON API.
func parseQuery(q url.Values, maxRevolutions int) (propagation.Request, int, error) {
	num := func(key string, def float64) (float64, error) {
		v := q.Get(key)
		if v == "" {
			return def, nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s parameter %q", key, v)
		}
		return f, nil
	}
	integer := func(key string, def, lo, hi int) (int, error) {
		v := q.Get(key)
		if v == "" {
			return def, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < lo || n > hi {
			return 0, fmt.Errorf("invalid %s parameter, must be %d-%d", key, lo, hi)
		}
		return n, nil
	}

	if q.Get("sma_km") == "" {
		return propagation.Request{}, 0, errors.New("missing sma_km parameter")
	}

	var vals [6]float64
	keys := [6]string{"sma_km", "ecc", "inc", "raan", "argp", "mean_anomaly"}
	for i, k := range keys {
		f, err := num(k, 0)
		if err != nil {
			return propagation.Request{}, 0, err
		}
		vals[i] = f
	}

	points, err := integer("points", 360, 1, math.MaxInt32)
	if err != nil {
		return propagation.Request{}, 0, err
	}
	revs, err := integer("revolutions", 1, 1, maxRevolutions)
	if err != nil {
		return propagation.Request{}, 0, err
	}
	mode, err := propagation.ParseSamplingMode(q.Get("mode"))
	if err != nil {
		return propagation.Request{}, 0, err
	}

	applyJ2 := true
	if v := q.Get("j2"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return propagation.Request{}, 0, fmt.Errorf("invalid j2 parameter %q", v)
		}
		applyJ2 = b
	}

	return propagation.Request{
		Elements: propagation.Elements{
			SemiMajorAxis:      vals[0] * 1000,
			Eccentricity:       vals[1],
			Inclination:        vals[2] * deg,
			RAAN:               vals[3] * deg,
			ArgPeriapsis:       vals[4] * deg,
			MeanAnomalyAtEpoch: vals[5] * deg,
		},
		NumPoints: points,
		ApplyJ2:   applyJ2,
		Mode:      mode,
	}, revs, nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// HandleOrbit serves the SSE orbit stream.
// GET /api/v1/stream/orbit?sma_km=7000&ecc=0.001&inc=45&points=360&revolutions=10
func (h *Handler) HandleOrbit(w http.ResponseWriter, r *http.Request) {
	ip := httputil.ClientIP(r, h.config.TrustProxy)
	release, ok := h.limiter.acquire(ip)
	if !ok {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return
	}
	defer release()

	req, revolutions, err := parseQuery(r.URL.Query(), h.config.MaxRevolutions)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The first revolution runs before any SSE bytes are written so bad
	// elements get a plain status code instead of an error event.
	first, err := h.prop.Propagate(r.Context(), req)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, propagation.ErrInvalidInput) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}

	metrics.IncStreamsActive()
	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"num_points", req.NumPoints,
		"revolutions", revolutions,
	)

	defer func() {
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Long-lived stream: clear the server's WriteTimeout for this connection.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c := &client{
		w:       w,
		flusher: flusher,
		rc:      rc,
		ip:      ip,
		logger:  h.logger,
	}

	// Jittered retry interval (3-7s) so reconnects after a restart spread out.
	retryMs := 3000 + rand.Intn(4000)
	fmt.Fprintf(w, "retry: %d\n\n", retryMs)
	flusher.Flush()

	if err := c.sendJSON(newMetadata(first, req, revolutions)); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
		return
	}

	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	ctx := r.Context()
	res := first
	for rev := 0; rev < revolutions; rev++ {
		if rev > 0 {
			if !h.wait(c, keepaliveTicker, r) {
				return
			}
			req = propagation.NextRevolution(req, res)
			res, err = h.prop.Propagate(ctx, req)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				metrics.IncStreamErrors(propagation.Kind(err))
				h.logger.Warn("stream propagation error", "remote_ip", ip, "revolution", rev, "error", err)
				c.sendJSON(errorMessage{Type: "error", Error: err.Error(), Kind: propagation.Kind(err)})
				return
			}
		}

		if err := c.sendJSON(newBatch(rev, res)); err != nil {
			metrics.IncStreamErrors("send_error")
			h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
			return
		}
		keepaliveTicker.Reset(h.config.KeepaliveInterval)
	}

	if err := c.sendJSON(doneMessage{Type: "done", Revolutions: revolutions}); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (done)", "remote_ip", ip, "error", err)
	}
}

// wait pauses for the configured interval, sending keep-alives as needed.
// It returns false when the client has gone away.
func (h *Handler) wait(c *client, keepalive *time.Ticker, r *http.Request) bool {
	if h.config.Interval <= 0 {
		return r.Context().Err() == nil
	}
	timer := time.NewTimer(h.config.Interval)
	defer timer.Stop()

	for {
		select {
		case <-r.Context().Done():
			return false
		case <-timer.C:
			return true
		case <-keepalive.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", c.ip, "error", err)
				return false
			}
		}
	}
}

func newMetadata(res *propagation.Result, req propagation.Request, revolutions int) metadataMessage {
	m := metadataMessage{
		Type:             "metadata",
		Frame:            "ECI",
		Period:           res.Period,
		MeanMotion:       res.MeanMotion,
		RAANRate:         res.RAANRate,
		ArgPeriapsisRate: res.ArgPeriapsisRate,
		NumPoints:        req.NumPoints,
		Revolutions:      revolutions,
		Mode:             req.Mode.String(),
	}
	return m
}

func newBatch(rev int, res *propagation.Result) orbitBatchMessage {
	p := make([][3]float64, len(res.Samples))
	for i, s := range res.Samples {
		p[i] = [3]float64{s.Position.X, s.Position.Y, s.Position.Z}
	}
	return orbitBatchMessage{
		Type:       "orbit_batch",
		Revolution: rev,
		T0:         float64(rev) * res.Period,
		Frame:      "ECI",
		P:          p,
	}
}

// SSE message payload types.

type metadataMessage struct {
	Type             string  `json:"type"`
	Frame            string  `json:"frame"`
	Period           float64 `json:"period_s"`
	MeanMotion       float64 `json:"mean_motion"`
	RAANRate         float64 `json:"raan_rate"`
	ArgPeriapsisRate float64 `json:"argp_rate"`
	NumPoints        int     `json:"num_points"`
	Revolutions      int     `json:"revolutions"`
	Mode             string  `json:"mode"`
}

type orbitBatchMessage struct {
	Type       string       `json:"type"`
	Revolution int          `json:"revolution"`
	T0         float64      `json:"t0"` // seconds since epoch of the first sample
	Frame      string       `json:"frame"`
	P          [][3]float64 `json:"p"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type doneMessage struct {
	Type        string `json:"type"`
	Revolutions int    `json:"revolutions"`
}
