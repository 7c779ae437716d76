// Package health serves liveness and readiness probes.
package health

import (
	"net/http"
	"sync/atomic"
)

// Healthz returns 200 "ok\n" unconditionally.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// Probe tracks readiness. The zero value is not ready.
type Probe struct {
	ready  atomic.Bool
	reason atomic.Value // string
}

// SetReady marks the service ready.
func (p *Probe) SetReady() {
	p.ready.Store(true)
}

// SetNotReady marks the service unready with a reason shown to the prober.
func (p *Probe) SetNotReady(reason string) {
	p.reason.Store(reason)
	p.ready.Store(false)
}

// Readyz returns 200 "ready\n" once SetReady was called, 503 otherwise.
func (p *Probe) Readyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if !p.ready.Load() {
		reason, _ := p.reason.Load().(string)
		if reason == "" {
			reason = "starting"
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("not ready: " + reason + "\n"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready\n"))
}
