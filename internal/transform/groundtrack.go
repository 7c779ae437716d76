package transform

import (
	"fmt"
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

// GeoPoint is a geodetic sub-satellite point on the WGS-84 ellipsoid.
type GeoPoint struct {
	Latitude  float64 `json:"lat"` // degrees, [-90, 90]
	Longitude float64 `json:"lon"` // degrees, (-180, 180]
	Altitude  float64 `json:"alt"` // meters above the ellipsoid
}

// SubSatellitePoint converts an inertial position (meters) to geodetic
// coordinates for sidereal angle theta.
func SubSatellitePoint(eci Cartesian, theta float64) GeoPoint {
	// go-satellite works in kilometers and leaves longitude unwrapped.
	altKm, _, ll := satellite.ECIToLLA(satellite.Vector3{
		X: eci.X / 1000.0,
		Y: eci.Y / 1000.0,
		Z: eci.Z / 1000.0,
	}, theta)

	return GeoPoint{
		Latitude:  ll.Latitude * 180.0 / math.Pi,
		Longitude: wrapPi(ll.Longitude) * 180.0 / math.Pi,
		Altitude:  altKm * 1000.0,
	}
}

// GroundTrack maps inertial positions sampled at times (seconds after epoch)
// to sub-satellite points. The Earth rotates beneath the orbit at rate rad/s
// starting from GMST(epoch).
func GroundTrack(epoch time.Time, rate float64, times []float64, positions []Cartesian) ([]GeoPoint, error) {
	if len(times) != len(positions) {
		return nil, fmt.Errorf("ground track: %d times for %d positions", len(times), len(positions))
	}

	theta0 := GMST(epoch)
	track := make([]GeoPoint, len(positions))
	for i, p := range positions {
		track[i] = SubSatellitePoint(p, theta0+rate*times[i])
	}
	return track, nil
}
