package propagation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// launchPlaneTolerance is the out-of-plane distance, as a fraction of the
// Earth's radius, below which a launch fit is considered exact.
const launchPlaneTolerance = 1e-6

// FitLaunchSite derives a mean anomaly at epoch that places the satellite
// over the given launch site.
//
// The site is placed on a spherical Earth of equatorial radius, rotated into
// the orbital plane with the inverse of the epoch DCM, and its in-plane
// direction taken as the true anomaly. When the site is not in the orbital
// plane the result is the closest in-plane direction and Approximate is set.
func FitLaunchSite(site LaunchSite, el Elements, c Constants) (LaunchFit, error) {
	if !isFinite(site.Latitude) || math.Abs(site.Latitude) > math.Pi/2 {
		return LaunchFit{}, &InvalidInputError{Field: "launch_latitude", Value: site.Latitude, Reason: "must be within [-π/2, π/2]"}
	}
	if !isFinite(site.Longitude) {
		return LaunchFit{}, &InvalidInputError{Field: "launch_longitude", Reason: "must be finite"}
	}

	sLat, cLat := math.Sincos(site.Latitude)
	sLon, cLon := math.Sincos(site.Longitude)
	r := c.EarthRadius
	fixed := mat.NewVecDense(3, []float64{r * cLat * cLon, r * cLat * sLon, r * sLat})

	inv, err := NewRotationMatrix(el.RAAN, el.Inclination, el.ArgPeriapsis).Inverse()
	if err != nil {
		return LaunchFit{}, fmt.Errorf("inverting rotation matrix: %w", err)
	}

	var plane mat.VecDense
	plane.MulVec(inv, fixed)

	nu := math.Atan2(plane.AtVec(1), plane.AtVec(0))
	E := EccentricFromTrue(nu, el.Eccentricity)
	M := normalizeAngle(MeanFromEccentric(E, el.Eccentricity))

	outOfPlane := math.Abs(plane.AtVec(2))
	return LaunchFit{
		MeanAnomaly: M,
		TrueAnomaly: nu,
		OutOfPlane:  outOfPlane,
		Approximate: outOfPlane > launchPlaneTolerance*c.EarthRadius,
	}, nil
}
