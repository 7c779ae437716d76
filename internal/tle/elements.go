package tle

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/star/orbitsim/internal/propagation"
)

// line2MinLen covers every field through mean motion (columns 53-63).
const line2MinLen = 63

const secondsPerDay = 86400.0

// Elements derives classical elements from line 2 of e. The semi-major axis
// comes from the mean motion by Kepler's third law, a = (μ/n²)^(1/3); the
// mean anomaly is taken at the TLE epoch.
func Elements(e Entry, c propagation.Constants) (propagation.Elements, error) {
	l := e.Line2
	if len(l) < line2MinLen {
		return propagation.Elements{}, fmt.Errorf("tle %d: line 2 has %d columns, need %d", e.NORADID, len(l), line2MinLen)
	}

	inc, err := field(l, 8, 16, "inclination")
	if err != nil {
		return propagation.Elements{}, err
	}
	raan, err := field(l, 17, 25, "raan")
	if err != nil {
		return propagation.Elements{}, err
	}
	// Eccentricity has an implied leading decimal point.
	ecc, err := field("."+strings.TrimSpace(l[26:33]), 0, 8, "eccentricity")
	if err != nil {
		return propagation.Elements{}, err
	}
	argp, err := field(l, 34, 42, "arg_periapsis")
	if err != nil {
		return propagation.Elements{}, err
	}
	mean, err := field(l, 43, 51, "mean_anomaly")
	if err != nil {
		return propagation.Elements{}, err
	}
	revsPerDay, err := field(l, 52, 63, "mean_motion")
	if err != nil {
		return propagation.Elements{}, err
	}
	if revsPerDay <= 0 {
		return propagation.Elements{}, &propagation.InvalidInputError{Field: "mean_motion", Value: revsPerDay, Reason: "must be positive"}
	}

	n := revsPerDay * 2 * math.Pi / secondsPerDay
	el := propagation.Elements{
		SemiMajorAxis:      math.Cbrt(c.Mu / (n * n)),
		Eccentricity:       ecc,
		Inclination:        inc * math.Pi / 180,
		RAAN:               raan * math.Pi / 180,
		ArgPeriapsis:       argp * math.Pi / 180,
		MeanAnomalyAtEpoch: mean * math.Pi / 180,
	}
	if err := el.Validate(); err != nil {
		return propagation.Elements{}, fmt.Errorf("tle %d: %w", e.NORADID, err)
	}
	return el, nil
}

func field(line string, from, to int, name string) (float64, error) {
	if to > len(line) {
		to = len(line)
	}
	s := strings.TrimSpace(line[from:to])
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s %q: %w", name, s, err)
	}
	return v, nil
}

// Find returns the first entry whose NORAD ID or name matches query.
// Name matching is case-insensitive.
func Find(entries []Entry, query string) (Entry, bool) {
	id, idErr := strconv.Atoi(strings.TrimSpace(query))
	for _, e := range entries {
		if idErr == nil && e.NORADID == id {
			return e, true
		}
		if strings.EqualFold(e.Name, strings.TrimSpace(query)) {
			return e, true
		}
	}
	return Entry{}, false
}
