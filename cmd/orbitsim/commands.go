package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/star/orbitsim/internal/export"
	"github.com/star/orbitsim/internal/physics"
	"github.com/star/orbitsim/internal/propagation"
	"github.com/star/orbitsim/internal/tle"
)

const deg = math.Pi / 180

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("51")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Padding(0, 1)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func f(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}

// propFlags are the config keys the one-shot commands accept as flags.
var propFlags = map[string]string{
	"prop.workers":        "workers",
	"prop.max_iterations": "max-iterations",
	"export.dir":          "out",
}

type orbitFlags struct {
	smaKm, ecc, inc, raan, argp, meanAnomaly float64
	launchLat, launchLon                     float64
	points, revolutions                      int
	noJ2                                     bool
	mode                                     string
}

func (o *orbitFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.Float64Var(&o.smaKm, "sma-km", 0, "semi-major axis in km (required)")
	fs.Float64Var(&o.ecc, "ecc", 0, "eccentricity [0, 1)")
	fs.Float64Var(&o.inc, "inc", 0, "inclination in degrees")
	fs.Float64Var(&o.raan, "raan", 0, "right ascension of the ascending node in degrees")
	fs.Float64Var(&o.argp, "argp", 0, "argument of periapsis in degrees")
	fs.Float64Var(&o.meanAnomaly, "mean-anomaly", 0, "mean anomaly at epoch in degrees")
	fs.Float64Var(&o.launchLat, "launch-lat", 0, "launch site latitude in degrees (with --launch-lon)")
	fs.Float64Var(&o.launchLon, "launch-lon", 0, "launch site longitude in degrees")
	fs.IntVar(&o.points, "points", 1000, "samples per revolution")
	fs.IntVar(&o.revolutions, "revolutions", 1, "consecutive revolutions with J2 drift carried over")
	fs.BoolVar(&o.noJ2, "no-j2", false, "disable secular J2 drift")
	fs.StringVar(&o.mode, "mode", "kepler", "sampling mode: kepler or uniform")
	cmd.MarkFlagRequired("sma-km")
}

func (o *orbitFlags) request(cmd *cobra.Command) (propagation.Request, error) {
	mode, err := propagation.ParseSamplingMode(o.mode)
	if err != nil {
		return propagation.Request{}, err
	}
	req := propagation.Request{
		Elements: propagation.Elements{
			SemiMajorAxis:      o.smaKm * 1000,
			Eccentricity:       o.ecc,
			Inclination:        o.inc * deg,
			RAAN:               o.raan * deg,
			ArgPeriapsis:       o.argp * deg,
			MeanAnomalyAtEpoch: o.meanAnomaly * deg,
		},
		NumPoints: o.points,
		ApplyJ2:   !o.noJ2,
		Mode:      mode,
	}
	latSet, lonSet := cmd.Flags().Changed("launch-lat"), cmd.Flags().Changed("launch-lon")
	if latSet != lonSet {
		return propagation.Request{}, errors.New("--launch-lat and --launch-lon must be given together")
	}
	if latSet {
		req.Launch = &propagation.LaunchSite{Latitude: o.launchLat * deg, Longitude: o.launchLon * deg}
	}
	return req, nil
}

func propagateCmd() *cobra.Command {
	var (
		o       orbitFlags
		name    string
		asJSON  bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "propagate",
		Short: "Sample an orbit from classical elements",
		Example: `  orbitsim propagate --sma-km 7000 --ecc 0.001 --inc 51.6 --points 360
  orbitsim propagate --sma-km 6878 --inc 97.4 --revolutions 15 --out ./export`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(os.Stderr)
			cfg, err := loadConfig(cmd, logger, propFlags)
			if err != nil {
				return err
			}
			req, err := o.request(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			prop := propagation.NewPropagator(cfg.Propagation, logger)
			results, err := prop.Revolutions(ctx, req, o.revolutions)
			if err != nil {
				return fmt.Errorf("propagation failed (%s): %w", propagation.Kind(err), err)
			}

			var positions []propagation.Vector3
			for _, r := range results {
				positions = append(positions, r.Positions()...)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"positions": positions})
			}

			printOrbitSummary(out, results)

			if cmd.Flags().Changed("out") {
				desc := fmt.Sprintf("a=%.1f km e=%.4f i=%.2f°, %d revolutions", o.smaKm, o.ecc, o.inc, o.revolutions)
				w := export.NewWriter(cfg.Export.Dir, cfg.Export.MaxFiles)
				path, err := w.Write(export.NewDocument(name, desc, "", positions), time.Now())
				if err != nil {
					return err
				}
				fmt.Fprintln(out, okStyle.Render("wrote "+path))
			}
			return nil
		},
	}
	o.register(cmd)
	cmd.Flags().String("out", "", "write an orbit document to this directory")
	cmd.Flags().StringVar(&name, "name", "orbitsim", "satellite name in the exported document")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print positions as JSON instead of a summary")
	cmd.Flags().Int("workers", 0, "sampling worker pool size")
	cmd.Flags().Int("max-iterations", 0, "Kepler solver iteration budget")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "abort propagation after this long")
	return cmd
}

func printOrbitSummary(w io.Writer, results []*propagation.Result) {
	first := results[0]
	fmt.Fprintln(w, titleStyle.Render("Orbit"))

	t := newTable("quantity", "value")
	t.Row("period", f(first.Period, 3)+" s ("+f(first.Period/60, 2)+" min)")
	t.Row("mean motion", f(first.MeanMotion*86400/(2*math.Pi), 6)+" rev/day")
	t.Row("RAAN drift", f(first.RAANRate/deg*86400, 6)+" °/day")
	t.Row("arg. periapsis drift", f(first.ArgPeriapsisRate/deg*86400, 6)+" °/day")
	t.Row("samples", strconv.Itoa(len(first.Samples))+" × "+strconv.Itoa(len(results)))
	fmt.Fprintln(w, t.String())

	if fit := first.LaunchFit; fit != nil {
		msg := fmt.Sprintf("launch site fit: M=%.4f° ν=%.4f°", fit.MeanAnomaly/deg, fit.TrueAnomaly/deg)
		if fit.Approximate {
			fmt.Fprintln(w, warnStyle.Render(msg+fmt.Sprintf(" (approximate, %.1f km off plane)", fit.OutOfPlane/1000)))
		} else {
			fmt.Fprintln(w, msg)
		}
	}

	pos := newTable("rev", "t (s)", "x (km)", "y (km)", "z (km)", "|r| (km)")
	for i, r := range results {
		s := r.Samples[0]
		p := s.Position
		pos.Row(strconv.Itoa(i), f(float64(i)*r.Period, 1), f(p.X/1000, 3), f(p.Y/1000, 3), f(p.Z/1000, 3), f(p.Norm()/1000, 3))
	}
	fmt.Fprintln(w, titleStyle.Render("Start of each revolution"))
	fmt.Fprintln(w, pos.String())
}

func paramsCmd() *cobra.Command {
	var (
		altitudeKm, mass, ecc, inc, raan, argp float64
		points                                 int
		noJ2                                   bool
	)
	cmd := &cobra.Command{
		Use:     "params",
		Short:   "Print derived orbit parameters and stability",
		Example: `  orbitsim params --altitude-km 400 --mass 420000 --inc 51.6`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(os.Stderr)
			cfg, err := loadConfig(cmd, logger, propFlags)
			if err != nil {
				return err
			}

			calc := physics.NewCalculator(propagation.NewPropagator(cfg.Propagation, logger), logger)
			report, err := calc.Calculate(context.Background(), physics.Input{
				Mass:         mass,
				Altitude:     altitudeKm * 1000,
				Eccentricity: ecc,
				Inclination:  inc * deg,
				RAAN:         raan * deg,
				ArgPeriapsis: argp * deg,
				NumPoints:    points,
				ApplyJ2:      !noJ2,
				Epoch:        time.Now().UTC(),
			})
			if err != nil {
				return err
			}

			printReport(cmd.OutOrStdout(), report, mass > 0)
			return nil
		},
	}
	fs := cmd.Flags()
	fs.Float64Var(&altitudeKm, "altitude-km", 0, "altitude above the equatorial radius in km (required)")
	fs.Float64Var(&mass, "mass", 0, "satellite mass in kg (optional)")
	fs.Float64Var(&ecc, "ecc", 0, "eccentricity [0, 1)")
	fs.Float64Var(&inc, "inc", 0, "inclination in degrees")
	fs.Float64Var(&raan, "raan", 0, "RAAN in degrees")
	fs.Float64Var(&argp, "argp", 0, "argument of periapsis in degrees")
	fs.IntVar(&points, "points", 360, "samples for the series statistics")
	fs.BoolVar(&noJ2, "no-j2", false, "disable secular J2 drift")
	fs.Int("workers", 0, "sampling worker pool size")
	cmd.MarkFlagRequired("altitude-km")
	return cmd
}

func printReport(w io.Writer, r *physics.Report, withMass bool) {
	s := r.Summary
	fmt.Fprintln(w, titleStyle.Render("Orbit parameters"))

	t := newTable("quantity", "value")
	t.Row("semi-major axis", f(s.SemiMajorAxis/1000, 3)+" km")
	t.Row("circular velocity", f(s.Velocity, 3)+" m/s")
	t.Row("period", f(s.Period, 3)+" s")
	t.Row("apogee", f(s.Apogee/1000, 3)+" km")
	t.Row("perigee", f(s.Perigee/1000, 3)+" km")
	t.Row("specific potential energy", f(s.PotentialEnergySpecific, 1)+" J/kg")
	t.Row("specific kinetic energy", f(s.KineticEnergySpecific, 1)+" J/kg")
	t.Row("specific orbital energy", f(s.TotalEnergySpecific, 1)+" J/kg")
	if withMass {
		t.Row("total energy", strconv.FormatFloat(s.TotalEnergy, 'e', 6, 64)+" J")
	}
	t.Row("radius mean ± σ", f(r.Series.RadiusStats.Mean/1000, 3)+" ± "+f(r.Series.RadiusStats.StdDev/1000, 3)+" km")
	t.Row("speed min / max", f(r.Series.VelocityStats.Min, 2)+" / "+f(r.Series.VelocityStats.Max, 2)+" m/s")
	fmt.Fprintln(w, t.String())

	style := okStyle
	switch s.Stability {
	case physics.StabilityDecaying:
		style = warnStyle
	case physics.StabilityInvalid:
		style = errStyle
	}
	fmt.Fprintln(w, "stability: "+style.Render(string(s.Stability)))
}

func elementsCmd() *cobra.Command {
	var (
		file, sat string
		timeout   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "elements",
		Short: "List classical elements derived from a TLE source",
		Example: `  orbitsim elements --sat 25544
  orbitsim elements --file stations.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(os.Stderr)
			cfg, err := loadConfig(cmd, logger, map[string]string{"tle.source_url": "url"})
			if err != nil {
				return err
			}

			var data []byte
			if file != "" {
				data, err = os.ReadFile(file)
			} else {
				ctx, cancel := context.WithTimeout(context.Background(), timeout)
				defer cancel()
				data, err = tle.NewFetcher(cfg.TLE.SourceURL, logger, cfg.TLE.ExtraURLs...).Fetch(ctx)
			}
			if err != nil {
				return err
			}

			entries, err := tle.Parse(bytes.NewReader(data), logger)
			if err != nil {
				return err
			}
			if sat != "" {
				e, ok := tle.Find(entries, sat)
				if !ok {
					return fmt.Errorf("satellite %q not found in %d entries", sat, len(entries))
				}
				entries = []tle.Entry{e}
			}

			c := cfg.Propagation.Constants
			t := newTable("norad", "name", "epoch", "a (km)", "e", "i (°)", "Ω (°)", "ω (°)", "period (min)")
			skipped := 0
			for _, e := range entries {
				el, err := tle.Elements(e, c)
				if err != nil {
					logger.Warn("skipping entry", "norad_id", e.NORADID, "error", err)
					skipped++
					continue
				}
				t.Row(strconv.Itoa(e.NORADID), e.Name, e.Epoch.UTC().Format(time.RFC3339),
					f(el.SemiMajorAxis/1000, 3), f(el.Eccentricity, 7), f(el.Inclination/deg, 4),
					f(el.RAAN/deg, 4), f(el.ArgPeriapsis/deg, 4), f(el.Period(c.Mu)/60, 2))
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, t.String())
			if skipped > 0 {
				fmt.Fprintln(out, warnStyle.Render(fmt.Sprintf("%d entries skipped", skipped)))
			}
			return nil
		},
	}
	cmd.Flags().String("url", "", "TLE source URL (default: tle.source_url)")
	cmd.Flags().StringVar(&file, "file", "", "read TLE text from a file instead of fetching")
	cmd.Flags().StringVar(&sat, "sat", "", "only show this NORAD ID or name")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "fetch timeout")
	return cmd
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Propagate a reference orbit and verify the solver and frame invariants",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(os.Stderr)
			cfg, err := loadConfig(cmd, logger, nil)
			if err != nil {
				return err
			}
			prop := propagation.NewPropagator(cfg.Propagation, logger)
			if err := selfCheck(cmd.Context(), prop); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), errStyle.Render("FAIL ")+err.Error())
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("ok"))
			return nil
		},
	}
}

// selfCheck propagates a = 7000 km, e = 0.001 and checks the first sample
// sits at periapsis on the x axis, every sample satisfies the radial
// equation, and the DCM is orthonormal.
func selfCheck(ctx context.Context, prop *propagation.Propagator) error {
	if ctx == nil {
		ctx = context.Background()
	}
	const a, e = 7000e3, 0.001
	res, err := prop.Propagate(ctx, propagation.Request{
		Elements:  propagation.Elements{SemiMajorAxis: a, Eccentricity: e},
		NumPoints: 360,
		ApplyJ2:   true,
	})
	if err != nil {
		return err
	}

	if p := res.Samples[0].Position; math.Abs(p.X-a*(1-e)) > 1e-3 || math.Abs(p.Y) > 1e-6 || math.Abs(p.Z) > 1e-6 {
		return fmt.Errorf("first sample %+v is not periapsis", p)
	}
	for _, s := range res.Samples {
		want := a * (1 - e*e) / (1 + e*math.Cos(s.TrueAnomaly))
		if math.Abs(s.Position.Norm()-want) > 1e-6*want {
			return fmt.Errorf("sample %d: |r| = %.3f m, radial equation gives %.3f m", s.Index, s.Position.Norm(), want)
		}
	}
	if d := propagation.NewRotationMatrix(1.1, 0.9, 2.3).OrthonormalityError(); d > 1e-12 {
		return fmt.Errorf("rotation matrix orthonormality error %.3e", d)
	}
	return nil
}
