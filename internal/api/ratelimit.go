package api

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/star/orbitsim/internal/httputil"
	"github.com/star/orbitsim/internal/metrics"
)

// idleVisitor is how long an IP's bucket survives without requests.
const idleVisitor = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter keeps one token bucket per client IP for the compute
// endpoints. The stream endpoint has its own concurrency cap.
type ipRateLimiter struct {
	mu         sync.Mutex
	visitors   map[string]*visitor
	rps        rate.Limit
	burst      int
	trustProxy bool
	lastSweep  time.Time
	now        func() time.Time
	logger     *slog.Logger
}

func newIPRateLimiter(rps float64, burst int, trustProxy bool, logger *slog.Logger) *ipRateLimiter {
	return &ipRateLimiter{
		visitors:   make(map[string]*visitor),
		rps:        rate.Limit(rps),
		burst:      burst,
		trustProxy: trustProxy,
		now:        time.Now,
		logger:     logger,
	}
}

func limited(path string) bool {
	return strings.HasPrefix(path, "/api/v1/") &&
		path != "/api/v1/constants" &&
		!strings.HasPrefix(path, "/api/v1/stream/")
}

func (l *ipRateLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > time.Minute {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > idleVisitor {
				delete(l.visitors, k)
			}
		}
		l.lastSweep = now
	}

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

func (l *ipRateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limited(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ip := httputil.ClientIP(r, l.trustProxy)
		now := l.now()
		res := l.get(ip).ReserveN(now, 1)
		if delay := res.DelayFrom(now); !res.OK() || delay > 0 {
			res.CancelAt(now)
			metrics.IncRateLimited(r.URL.Path)
			l.logger.Warn("rate limit exceeded", "remote_ip", ip, "path", r.URL.Path)

			retry := 1
			if res.OK() {
				retry = int(math.Ceil(delay.Seconds()))
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded", "kind": "rate_limited"})
			return
		}

		next.ServeHTTP(w, r)
	})
}
