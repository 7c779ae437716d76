// Package config loads service configuration from defaults, an optional
// config file, and ORBITSIM_* environment variables via viper.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/star/orbitsim/internal/auth"
	"github.com/star/orbitsim/internal/propagation"
	"github.com/star/orbitsim/internal/stream"
)

// EnvPrefix is prepended to every environment variable, with dots in keys
// replaced by underscores: http.addr is read from ORBITSIM_HTTP_ADDR.
const EnvPrefix = "ORBITSIM"

// Config is the complete service configuration.
type Config struct {
	HTTP        HTTPConfig
	Auth        auth.Config
	Propagation propagation.PropConfig
	Stream      stream.Config
	RateLimit   RateLimitConfig
	Export      ExportConfig
	TLE         TLEConfig
}

// HTTPConfig configures the listener.
type HTTPConfig struct {
	Addr            string
	TrustProxy      bool // honor X-Forwarded-For / X-Real-IP
	ShutdownTimeout time.Duration
}

// RateLimitConfig configures per-IP token buckets on compute endpoints.
type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

// ExportConfig configures orbit document export.
type ExportConfig struct {
	Dir      string
	MaxFiles int
}

// TLEConfig configures the remote element source.
type TLEConfig struct {
	SourceURL string
	ExtraURLs []string
}

// Default returns the built-in configuration.
func Default() Config {
	prop := propagation.DefaultPropConfig()
	prop.Workers = runtime.NumCPU()

	return Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: 5 * time.Second,
		},
		Propagation: prop,
		Stream: stream.Config{
			MaxConcurrentPerIP: 10,
			KeepaliveInterval:  30 * time.Second,
			Interval:           time.Second,
			MaxRevolutions:     100,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			RPS:     5,
			Burst:   10,
		},
		Export: ExportConfig{
			Dir:      "/tmp/orbitsim/export",
			MaxFiles: 10,
		},
		TLE: TLEConfig{
			SourceURL: "https://celestrak.org/NORAD/elements/gp.php?GROUP=stations&FORMAT=tle",
		},
	}
}

// New returns a viper instance bound to the ORBITSIM_ environment. When
// configFile is non-empty it is read as well.
func New(configFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configFile, err)
		}
	}
	return v, nil
}

// Load builds a Config from v on top of Default. Unparsable or out-of-range
// numeric values are logged and replaced by their default; auth problems are
// returned as errors.
func Load(v *viper.Viper, logger *slog.Logger) (Config, error) {
	cfg := Default()
	l := loader{v: v, logger: logger}

	cfg.HTTP.Addr = l.str("http.addr", cfg.HTTP.Addr)
	cfg.HTTP.TrustProxy = l.boolean("http.trust_proxy", cfg.HTTP.TrustProxy)
	cfg.HTTP.ShutdownTimeout = l.seconds("http.shutdown_timeout", cfg.HTTP.ShutdownTimeout)

	enabled, err := l.strictBool("auth.enabled")
	if err != nil {
		return cfg, err
	}
	cfg.Auth.Enabled = enabled
	cfg.Auth.Token = v.GetString("auth.token")

	cfg.Propagation.Workers = l.positiveInt("prop.workers", cfg.Propagation.Workers)
	cfg.Propagation.MaxIterations = l.positiveInt("prop.max_iterations", cfg.Propagation.MaxIterations)
	cfg.Propagation.Tolerance = l.positiveFloat("prop.tolerance", cfg.Propagation.Tolerance)
	cfg.Propagation.MaxPoints = l.positiveInt("prop.max_points", cfg.Propagation.MaxPoints)

	cfg.Stream.MaxConcurrentPerIP = l.positiveInt("stream.max_concurrent", cfg.Stream.MaxConcurrentPerIP)
	cfg.Stream.KeepaliveInterval = l.seconds("stream.keepalive_interval", cfg.Stream.KeepaliveInterval)
	cfg.Stream.Interval = l.millis("stream.interval_ms", cfg.Stream.Interval)
	cfg.Stream.MaxRevolutions = l.positiveInt("stream.max_revolutions", cfg.Stream.MaxRevolutions)
	cfg.Stream.TrustProxy = cfg.HTTP.TrustProxy

	cfg.RateLimit.Enabled = l.boolean("rate_limit.enabled", cfg.RateLimit.Enabled)
	cfg.RateLimit.RPS = l.positiveFloat("rate_limit.rps", cfg.RateLimit.RPS)
	cfg.RateLimit.Burst = l.positiveInt("rate_limit.burst", cfg.RateLimit.Burst)

	cfg.Export.Dir = l.str("export.dir", cfg.Export.Dir)
	cfg.Export.MaxFiles = l.positiveInt("export.max_files", cfg.Export.MaxFiles)

	cfg.TLE.SourceURL = l.str("tle.source_url", cfg.TLE.SourceURL)
	if raw := v.GetString("tle.extra_urls"); raw != "" {
		cfg.TLE.ExtraURLs = splitList(raw)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports configuration that cannot be repaired with a default.
func (c Config) Validate() error {
	var errs []error
	if c.Auth.Enabled && c.Auth.Token == "" {
		errs = append(errs, errors.New("ORBITSIM_AUTH_TOKEN is required when auth is enabled"))
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr must not be empty"))
	}
	if c.Propagation.Workers < 1 {
		errs = append(errs, fmt.Errorf("prop.workers must be positive, got %d", c.Propagation.Workers))
	}
	if c.Propagation.MaxPoints < 1 {
		errs = append(errs, fmt.Errorf("prop.max_points must be positive, got %d", c.Propagation.MaxPoints))
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst < 1) {
		errs = append(errs, fmt.Errorf("rate limit needs positive rps and burst, got %g/%d", c.RateLimit.RPS, c.RateLimit.Burst))
	}
	return errors.Join(errs...)
}

// LogValue summarizes the configuration without secrets.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("addr", c.HTTP.Addr),
		slog.Bool("auth_enabled", c.Auth.Enabled),
		slog.Int("workers", c.Propagation.Workers),
		slog.Int("max_iterations", c.Propagation.MaxIterations),
		slog.Int("max_points", c.Propagation.MaxPoints),
		slog.Bool("rate_limit", c.RateLimit.Enabled),
		slog.Float64("rate_limit_rps", c.RateLimit.RPS),
		slog.Int("stream_max_concurrent", c.Stream.MaxConcurrentPerIP),
		slog.String("export_dir", c.Export.Dir),
		slog.String("tle_source_url", c.TLE.SourceURL),
	)
}

// loader reads individual keys, falling back to defaults with a warning.
type loader struct {
	v      *viper.Viper
	logger *slog.Logger
}

func (l loader) envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func (l loader) str(key, def string) string {
	if s := strings.TrimSpace(l.v.GetString(key)); s != "" {
		return s
	}
	return def
}

func (l loader) boolean(key string, def bool) bool {
	raw := strings.TrimSpace(l.v.GetString(key))
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		l.logger.Warn("invalid "+l.envName(key)+" value, using default", "value", raw, "default", def)
		return def
	}
	return b
}

func (l loader) strictBool(key string) (bool, error) {
	raw := strings.TrimSpace(l.v.GetString(key))
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean value (true/false/1/0)", l.envName(key))
	}
	return b, nil
}

func (l loader) positiveInt(key string, def int) int {
	raw := strings.TrimSpace(l.v.GetString(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		l.logger.Warn("invalid "+l.envName(key)+" value, using default", "value", raw, "default", def)
		return def
	}
	return n
}

func (l loader) positiveFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(l.v.GetString(key))
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || !(f > 0) {
		l.logger.Warn("invalid "+l.envName(key)+" value, using default", "value", raw, "default", def)
		return def
	}
	return f
}

func (l loader) seconds(key string, def time.Duration) time.Duration {
	n := l.positiveInt(key, int(def/time.Second))
	return time.Duration(n) * time.Second
}

func (l loader) millis(key string, def time.Duration) time.Duration {
	n := l.positiveInt(key, int(def/time.Millisecond))
	return time.Duration(n) * time.Millisecond
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
