package transform

import (
	"math"
	"testing"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

// TestJulianDate verifies the Julian Date calculation against known values.
func TestJulianDate(t *testing.T) {
	tests := []struct {
		name     string
		time     time.Time
		expected float64
	}{
		{
			name:     "J2000.0 epoch",
			time:     time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC),
			expected: 2451545.0,
		},
		{
			name:     "Unix epoch",
			time:     time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
			expected: 2440587.5,
		},
		{
			// Vallado Example 3-15: April 6, 2004, 07:51:28.386 UTC
			name:     "Vallado example date",
			time:     time.Date(2004, 4, 6, 7, 51, 28, 386009000, time.UTC),
			expected: 2453101.827411875,
		},
		{
			name:     "non-UTC location",
			time:     time.Date(2000, 1, 1, 13, 0, 0, 0, time.FixedZone("CET", 3600)),
			expected: 2451545.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := JulianDate(tt.time)
			if diff := math.Abs(got - tt.expected); diff > 1e-6 {
				t.Errorf("JulianDate(%v) = %.10f, want %.10f (diff=%.2e)", tt.time, got, tt.expected, diff)
			}
		})
	}
}

// TestGMST cross-checks GMST against go-satellite's GSTimeFromDate, which
// uses the same IAU-82 model.
func TestGMST(t *testing.T) {
	for _, tm := range []time.Time{
		time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2004, 4, 6, 7, 51, 28, 0, time.UTC),
		time.Date(2026, 2, 6, 4, 1, 0, 0, time.UTC),
	} {
		t.Run(tm.Format(time.RFC3339), func(t *testing.T) {
			got := GMST(tm)
			ref := satellite.GSTimeFromDate(
				tm.Year(), int(tm.Month()), tm.Day(),
				tm.Hour(), tm.Minute(), tm.Second(),
			)
			if diff := math.Abs(got - ref); diff > 1e-8 {
				t.Errorf("GMST = %.12f rad, go-satellite = %.12f rad (diff=%.2e)", got, ref, diff)
			}
		})
	}
}

func TestSiderealAngle(t *testing.T) {
	epoch := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)

	if got, want := SiderealAngle(epoch, 0, OmegaEarth), GMST(epoch); got != want {
		t.Errorf("SiderealAngle(epoch, 0) = %g, want GMST %g", got, want)
	}

	// One sidereal day later the Earth has turned exactly once.
	sidereal := 2 * math.Pi / OmegaEarth
	got := SiderealAngle(epoch, sidereal, OmegaEarth)
	diff := math.Abs(wrapPi(got - GMST(epoch)))
	if diff > 1e-9 {
		t.Errorf("after one sidereal day angle differs by %.3e rad", diff)
	}

	for _, dt := range []float64{-5e5, 1, 3600, 1e7} {
		a := SiderealAngle(epoch, dt, OmegaEarth)
		if a < 0 || a >= 2*math.Pi {
			t.Errorf("SiderealAngle(epoch, %g) = %g, outside [0, 2π)", dt, a)
		}
	}
}

// TestECIToECEF compares against go-satellite's ECIToECEF for the same angle.
func TestECIToECEF(t *testing.T) {
	tests := []struct {
		name string
		eci  Cartesian // meters
		when time.Time
	}{
		{
			name: "Vallado example 3-15",
			eci:  Cartesian{X: 5094180.16, Y: 6127644.65, Z: 6380344.53},
			when: time.Date(2004, 4, 6, 7, 51, 28, 0, time.UTC),
		},
		{
			name: "LEO equatorial",
			eci:  Cartesian{X: 6778e3},
			when: time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC),
		},
		{
			name: "LEO polar",
			eci:  Cartesian{Z: 6978e3},
			when: time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gmst := GMST(tt.when)
			got := ECIToECEF(tt.eci, gmst)
			ref := satellite.ECIToECEF(satellite.Vector3{X: tt.eci.X / 1000, Y: tt.eci.Y / 1000, Z: tt.eci.Z / 1000}, gmst)

			const tolerance = 1.0 // meter
			if math.Abs(got.X-ref.X*1000) > tolerance ||
				math.Abs(got.Y-ref.Y*1000) > tolerance ||
				math.Abs(got.Z-ref.Z*1000) > tolerance {
				t.Errorf("ECEF = %+v m, go-satellite = %+v km", got, ref)
			}
			if math.Abs(got.Norm()-tt.eci.Norm()) > 1e-6 {
				t.Errorf("rotation changed radius: %.6f -> %.6f", tt.eci.Norm(), got.Norm())
			}
		})
	}
}

func TestSubSatellitePoint(t *testing.T) {
	tests := []struct {
		name    string
		eci     Cartesian
		theta   float64
		wantLat float64
		wantLon float64
		wantAlt float64
	}{
		{
			name:    "equator at prime meridian",
			eci:     Cartesian{X: 7000e3},
			wantLon: 0,
			wantAlt: 7000e3 - 6378137.0,
		},
		{
			name:    "earth rotated a quarter turn",
			eci:     Cartesian{X: 7000e3},
			theta:   math.Pi / 2,
			wantLon: -90,
			wantAlt: 7000e3 - 6378137.0,
		},
		{
			name:    "longitude wraps past the antimeridian",
			eci:     Cartesian{X: 7000e3 * math.Cos(3), Y: 7000e3 * math.Sin(3)},
			theta:   -1,
			wantLon: (4 - 2*math.Pi) * 180 / math.Pi,
			wantAlt: 7000e3 - 6378137.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := SubSatellitePoint(tt.eci, tt.theta)
			if math.Abs(p.Latitude-tt.wantLat) > 1e-9 {
				t.Errorf("lat = %.9f, want %.9f", p.Latitude, tt.wantLat)
			}
			if math.Abs(p.Longitude-tt.wantLon) > 1e-9 {
				t.Errorf("lon = %.9f, want %.9f", p.Longitude, tt.wantLon)
			}
			if math.Abs(p.Altitude-tt.wantAlt) > 1 {
				t.Errorf("alt = %.3f m, want %.3f m", p.Altitude, tt.wantAlt)
			}
		})
	}
}

func TestSubSatellitePointNorthernHemisphere(t *testing.T) {
	eci := Cartesian{X: 4000e3, Y: 1000e3, Z: 5000e3}
	p := SubSatellitePoint(eci, 0)

	geocentric := math.Atan2(eci.Z, math.Hypot(eci.X, eci.Y)) * 180 / math.Pi
	if p.Latitude <= geocentric {
		t.Errorf("geodetic latitude %.6f should exceed geocentric %.6f on an oblate Earth", p.Latitude, geocentric)
	}
	if p.Latitude > 90 || p.Longitude <= -180 || p.Longitude > 180 {
		t.Errorf("point out of range: %+v", p)
	}
}

func TestGroundTrack(t *testing.T) {
	epoch := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// A fixed inertial point appears to drift west as the Earth turns.
	positions := []Cartesian{{X: 7000e3}, {X: 7000e3}, {X: 7000e3}}
	times := []float64{0, 600, 1200}

	for _, rate := range []float64{OmegaEarth, 2 * OmegaEarth, 0} {
		track, err := GroundTrack(epoch, rate, times, positions)
		if err != nil {
			t.Fatal(err)
		}
		if len(track) != 3 {
			t.Fatalf("got %d points, want 3", len(track))
		}
		step := rate * 600 * 180 / math.Pi
		for i := 1; i < len(track); i++ {
			drift := math.Mod(track[i-1].Longitude-track[i].Longitude+360, 360)
			if math.Abs(drift-step) > 1e-6 {
				t.Errorf("rate %g, point %d: westward drift %.6f°, want %.6f°", rate, i, drift, step)
			}
		}
	}

	if _, err := GroundTrack(epoch, OmegaEarth, times[:2], positions); err == nil {
		t.Error("expected an error for mismatched lengths")
	}
}
