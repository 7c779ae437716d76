// Command orbitsim serves and runs Kepler orbit propagation with J2 drift.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/star/orbitsim/internal/api"
	"github.com/star/orbitsim/internal/config"
	"github.com/star/orbitsim/internal/health"
	"github.com/star/orbitsim/internal/metrics"
	"github.com/star/orbitsim/internal/propagation"
)

var (
	cfgFile  string
	logLevel string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "orbitsim",
		Short: "Kepler orbit propagation with secular J2 drift",
		Long: `orbitsim samples satellite orbits from classical elements, launch sites,
or TLE sets. It runs as an HTTP service (serve) or as one-shot commands
that print tables or write orbit documents.

Configuration comes from defaults, an optional --config file, and
ORBITSIM_* environment variables, in increasing precedence; flags override
all three.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(serveCmd())
	root.AddCommand(propagateCmd())
	root.AddCommand(paramsCmd())
	root.AddCommand(elementsCmd())
	root.AddCommand(checkCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(w *os.File) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadConfig reads --config and the environment, then overrides keys
// whose mapped flag was set on the command line.
func loadConfig(cmd *cobra.Command, logger *slog.Logger, flags map[string]string) (config.Config, error) {
	v, err := config.New(cfgFile)
	if err != nil {
		return config.Config{}, err
	}
	for key, name := range flags {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			v.Set(key, f.Value.String())
		}
	}
	return config.Load(v, logger)
}

var serveFlags = map[string]string{
	"http.addr":        "addr",
	"http.trust_proxy": "trust-proxy",
	"prop.workers":     "workers",
	"prop.max_points":  "max-points",
	"auth.enabled":     "auth",
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(os.Stdout)
			cfg, err := loadConfig(cmd, logger, serveFlags)
			if err != nil {
				logger.Error("invalid configuration", "error", err)
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}

	cmd.Flags().String("addr", "", "listen address (default :8080)")
	cmd.Flags().Int("workers", 0, "sampling worker pool size (default: number of CPUs)")
	cmd.Flags().Int("max-points", 0, "per-request sample budget")
	cmd.Flags().Bool("trust-proxy", false, "honor X-Forwarded-For and X-Real-IP")
	cmd.Flags().Bool("auth", false, "require ORBITSIM_AUTH_TOKEN as a bearer token")
	return cmd
}

func serve(parent context.Context, cfg config.Config, logger *slog.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	logger.Info("configuration loaded", "config", cfg)

	prop := propagation.NewPropagator(cfg.Propagation, logger)
	metrics.SetPropagationWorkers(cfg.Propagation.Workers)

	probe := &health.Probe{}
	srv := api.NewServer(cfg, prop, probe, logger)

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.HTTP.Addr, "auth_enabled", cfg.Auth.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Ready once a reference orbit propagates end to end.
	if err := selfCheck(ctx, prop); err != nil {
		probe.SetNotReady("self check failed")
		logger.Error("self check failed", "error", err)
	} else {
		probe.SetReady()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server listen error", "error", err)
		return err
	}

	logger.Info("shutting down server...")
	probe.SetNotReady("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		return err
	}

	logger.Info("server stopped")
	return nil
}
