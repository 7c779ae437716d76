package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/star/orbitsim/internal/propagation"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

func testHandler(cfg Config) *Handler {
	pc := propagation.DefaultPropConfig()
	pc.Workers = 2
	return NewHandler(propagation.NewPropagator(pc, testLogger()), cfg, testLogger())
}

func testConfig() Config {
	return Config{
		MaxConcurrentPerIP: 10,
		KeepaliveInterval:  30 * time.Second,
		MaxRevolutions:     20,
	}
}

// readEvents returns the JSON payloads of every data line in body.
func readEvents(t *testing.T, body string) []map[string]any {
	t.Helper()
	var events []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 8<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var msg map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &msg); err != nil {
			t.Errorf("invalid JSON in SSE data line: %v", err)
			continue
		}
		events = append(events, msg)
	}
	return events
}

func TestNewBatch(t *testing.T) {
	res := &propagation.Result{
		Period: 100,
		Samples: []propagation.StateVector{
			{Position: propagation.Vector3{X: 7e6}},
			{Position: propagation.Vector3{X: 1, Y: 2, Z: 3}},
		},
	}

	msg := newBatch(3, res)
	if msg.Type != "orbit_batch" || msg.Frame != "ECI" {
		t.Errorf("type/frame = %q/%q", msg.Type, msg.Frame)
	}
	if msg.T0 != 300 {
		t.Errorf("t0 = %g, want 300", msg.T0)
	}
	if len(msg.P) != 2 || msg.P[1] != [3]float64{1, 2, 3} {
		t.Errorf("p = %v", msg.P)
	}
}

func TestStreamOrbit(t *testing.T) {
	handler := testHandler(testConfig())

	req := httptest.NewRequest("GET", "/api/v1/stream/orbit?sma_km=7000&ecc=0.01&inc=51.6&points=36&revolutions=3", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
	defer cancel()
	req = req.WithContext(ctx)

	w := httptest.NewRecorder()
	handler.HandleOrbit(w, req)

	resp := w.Result()
	if resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", resp.Header.Get("Content-Type"))
	}
	if resp.Header.Get("Cache-Control") != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", resp.Header.Get("Cache-Control"))
	}

	body := w.Body.String()
	events := readEvents(t, body)
	if len(events) != 5 {
		t.Fatalf("got %d events, want metadata + 3 batches + done", len(events))
	}
	if events[0]["type"] != "metadata" {
		t.Errorf("first event = %v, want metadata", events[0]["type"])
	}
	if events[0]["num_points"].(float64) != 36 || events[0]["revolutions"].(float64) != 3 {
		t.Errorf("metadata = %v", events[0])
	}
	period := events[0]["period_s"].(float64)
	for i, ev := range events[1:4] {
		if ev["type"] != "orbit_batch" {
			t.Fatalf("event %d type = %v", i+1, ev["type"])
		}
		if int(ev["revolution"].(float64)) != i {
			t.Errorf("revolution = %v, want %d", ev["revolution"], i)
		}
		if got := ev["t0"].(float64); got != float64(i)*period {
			t.Errorf("t0 = %g, want %g", got, float64(i)*period)
		}
		if p := ev["p"].([]any); len(p) != 36 {
			t.Errorf("batch %d has %d points, want 36", i, len(p))
		}
	}
	if events[4]["type"] != "done" {
		t.Errorf("last event = %v, want done", events[4]["type"])
	}

	// Lines are "id: ", "data: ", "retry: ", ":" or blank.
	for _, line := range strings.Split(body, "\n") {
		switch {
		case line == "", line == ":":
		case strings.HasPrefix(line, "id: "), strings.HasPrefix(line, "data: "), strings.HasPrefix(line, "retry: "):
		default:
			t.Errorf("unexpected SSE line: %q", line)
		}
	}
}

func TestStreamCarriesDrift(t *testing.T) {
	handler := testHandler(testConfig())

	req := httptest.NewRequest("GET", "/api/v1/stream/orbit?sma_km=7000&ecc=0.001&inc=28.5&points=8&revolutions=2", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	w := httptest.NewRecorder()
	handler.HandleOrbit(w, req)

	events := readEvents(t, w.Body.String())
	if len(events) != 4 {
		t.Fatalf("got %d events, want 4", len(events))
	}
	first := events[1]["p"].([]any)[0].([]any)
	second := events[2]["p"].([]any)[0].([]any)
	moved := false
	for i := range first {
		if first[i].(float64) != second[i].(float64) {
			moved = true
		}
	}
	if !moved {
		t.Error("second revolution starts at the same point; expected J2 drift")
	}
}

func TestRateLimiting(t *testing.T) {
	limiter := newStreamLimiter(3)

	var releases []func()
	for i := 0; i < 3; i++ {
		release, ok := limiter.acquire("10.0.0.1")
		if !ok {
			t.Fatalf("acquire %d should succeed", i+1)
		}
		releases = append(releases, release)
	}

	if _, ok := limiter.acquire("10.0.0.1"); ok {
		t.Error("acquire beyond limit should fail")
	}
	if _, ok := limiter.acquire("10.0.0.2"); !ok {
		t.Error("different IP should not be rate limited")
	}

	// Double release counts once.
	releases[0]()
	releases[0]()
	if c := limiter.count("10.0.0.1"); c != 2 {
		t.Errorf("count = %d, want 2", c)
	}
	if _, ok := limiter.acquire("10.0.0.1"); !ok {
		t.Error("acquire after release should succeed")
	}
}

func TestRateLimitingConcurrent(t *testing.T) {
	limiter := newStreamLimiter(100)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if release, ok := limiter.acquire("10.0.0.1"); ok {
				defer release()
				time.Sleep(10 * time.Millisecond)
			}
		}()
	}
	wg.Wait()

	if c := limiter.count("10.0.0.1"); c != 0 {
		t.Errorf("count after all released = %d, want 0", c)
	}
}

func TestRateLimitHTTPResponse(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrentPerIP = 1
	cfg.Interval = time.Minute
	handler := testHandler(cfg)

	// The first stream parks between revolutions until cancelled.
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		req := httptest.NewRequest("GET", "/api/v1/stream/orbit?sma_km=7000&points=4&revolutions=2", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		handler.HandleOrbit(httptest.NewRecorder(), req.WithContext(ctx))
	}()

	deadline := time.Now().Add(2 * time.Second)
	for handler.limiter.count("10.0.0.1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first stream never connected")
		}
		time.Sleep(5 * time.Millisecond)
	}

	req := httptest.NewRequest("GET", "/api/v1/stream/orbit?sma_km=7000&points=4", nil)
	req.RemoteAddr = "10.0.0.1:54321"
	w := httptest.NewRecorder()
	handler.HandleOrbit(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}

	cancel()
	<-done
	if c := handler.limiter.count("10.0.0.1"); c != 0 {
		t.Errorf("count after disconnect = %d, want 0", c)
	}
}

type countingPropagator struct {
	Propagator
	calls atomic.Int32
}

func (c *countingPropagator) Propagate(ctx context.Context, req propagation.Request) (*propagation.Result, error) {
	c.calls.Add(1)
	return c.Propagator.Propagate(ctx, req)
}

func TestRateLimitRejectsBeforePropagating(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrentPerIP = 1
	prop := &countingPropagator{Propagator: propagation.NewPropagator(propagation.DefaultPropConfig(), testLogger())}
	handler := NewHandler(prop, cfg, testLogger())

	release, ok := handler.limiter.acquire("10.0.0.1")
	if !ok {
		t.Fatal("could not fill limiter")
	}

	for _, query := range []string{
		"?sma_km=7000&points=100000",
		"?sma_km=7000&ecc=2",
		"?ecc=0.1",
	} {
		req := httptest.NewRequest("GET", "/api/v1/stream/orbit"+query, nil)
		req.RemoteAddr = "10.0.0.1:40000"
		w := httptest.NewRecorder()
		handler.HandleOrbit(w, req)
		if w.Code != http.StatusTooManyRequests {
			t.Errorf("%s: status = %d, want %d", query, w.Code, http.StatusTooManyRequests)
		}
	}
	if n := prop.calls.Load(); n != 0 {
		t.Errorf("propagations while at cap = %d, want 0", n)
	}
	if c := handler.limiter.count("10.0.0.1"); c != 1 {
		t.Errorf("count after rejections = %d, want 1", c)
	}

	release()
	req := httptest.NewRequest("GET", "/api/v1/stream/orbit?sma_km=7000&ecc=2", nil)
	req.RemoteAddr = "10.0.0.1:40001"
	w := httptest.NewRecorder()
	handler.HandleOrbit(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status after release = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if c := handler.limiter.count("10.0.0.1"); c != 0 {
		t.Errorf("slot not released after failed request: count = %d", c)
	}
}

func TestInvalidQueryParams(t *testing.T) {
	handler := testHandler(testConfig())

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"missing sma", "?ecc=0.1", http.StatusBadRequest},
		{"sma non-numeric", "?sma_km=abc", http.StatusBadRequest},
		{"points zero", "?sma_km=7000&points=0", http.StatusBadRequest},
		{"revolutions too large", "?sma_km=7000&revolutions=21", http.StatusBadRequest},
		{"bad mode", "?sma_km=7000&mode=cubic", http.StatusBadRequest},
		{"bad j2", "?sma_km=7000&j2=maybe", http.StatusBadRequest},
		{"hyperbolic", "?sma_km=7000&ecc=1.2", http.StatusBadRequest},
		{"inside earth", "?sma_km=-10", http.StatusBadRequest},
		{"degenerate", "?sma_km=7000&ecc=0.999999999999", http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/stream/orbit"+tt.query, nil)
			req.RemoteAddr = "127.0.0.1:12345"
			w := httptest.NewRecorder()
			handler.HandleOrbit(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}
