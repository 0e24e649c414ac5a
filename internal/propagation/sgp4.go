package propagation

import (
	"fmt"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"github.com/star/skypass/internal/elements"
	"gonum.org/v1/gonum/spatial/r3"
)

// SGP4 backend: github.com/joshuaferrara/go-satellite
//
// The library consumes two-line text, so element sets are rendered to TLE
// form first. Propagate() takes the Satellite by value, which makes a single
// SGP4Propagator safe for concurrent use but hides the SGP4 error code from
// the caller. Failures are detected from the output instead: NaN/Inf or a
// radius outside the plausible band.
//
// The library resolves instants to whole seconds.

const (
	minRadiusKm = 6200.0
	maxRadiusKm = 50000.0
)

// SGP4Propagator wraps the go-satellite library for a single element set.
type SGP4Propagator struct {
	sat     satellite.Satellite
	epoch   time.Time
	noradID int
	line1   string
	line2   string
}

// NewSGP4Propagator initializes SGP4 for the element set. Returns an error if
// the set cannot be rendered or the model fails to initialize.
func NewSGP4Propagator(set elements.Set) (*SGP4Propagator, error) {
	line1, line2, err := set.TLE()
	if err != nil {
		return nil, fmt.Errorf("render elements for NORAD %d: %w", set.NORADID, err)
	}
	// go-satellite calls log.Fatal on malformed input, so the rendered lines
	// are checked again before they reach it.
	if err := validateTLELines(line1, line2); err != nil {
		return nil, fmt.Errorf("invalid TLE for NORAD %d: %w", set.NORADID, err)
	}

	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed for NORAD %d: code=%d %s", set.NORADID, sat.Error, sat.ErrorStr)
	}
	return &SGP4Propagator{
		sat:     sat,
		epoch:   set.Epoch.UTC(),
		noradID: set.NORADID,
		line1:   line1,
		line2:   line2,
	}, nil
}

// validateTLELines performs basic format validation on TLE lines.
func validateTLELines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if len(line1) != elements.LineLength {
		return fmt.Errorf("line1 length %d, expected %d", len(line1), elements.LineLength)
	}
	if len(line2) != elements.LineLength {
		return fmt.Errorf("line2 length %d, expected %d", len(line2), elements.LineLength)
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got '%c'", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got '%c'", line2[0])
	}
	return nil
}

// Lines returns the two-line form handed to the library.
func (p *SGP4Propagator) Lines() (string, string) {
	return p.line1, p.line2
}

// Epoch returns the element epoch in UTC.
func (p *SGP4Propagator) Epoch() time.Time {
	return p.epoch
}

// Propagate returns the inertial (TEME) position in meters at the given
// minutes since the element epoch. The library takes a calendar date with
// whole seconds, so the instant is rounded to the nearest second and the
// minutes actually propagated may differ from minutesSinceEpoch by up to
// half a second.
func (p *SGP4Propagator) Propagate(minutesSinceEpoch float64) (r3.Vec, error) {
	t := p.epoch.Add(time.Duration(minutesSinceEpoch * float64(time.Minute))).Round(time.Second)
	pos, _ := satellite.Propagate(p.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) ||
		math.IsInf(pos.X, 0) || math.IsInf(pos.Y, 0) || math.IsInf(pos.Z, 0) {
		return r3.Vec{}, fmt.Errorf("sgp4 propagation failed for NORAD %d: output is NaN/Inf", p.noradID)
	}

	km := r3.Vec{X: pos.X, Y: pos.Y, Z: pos.Z}
	if mag := r3.Norm(km); mag < minRadiusKm || mag > maxRadiusKm {
		return r3.Vec{}, fmt.Errorf("sgp4 propagation failed for NORAD %d: unreasonable position magnitude %.1f km", p.noradID, mag)
	}
	return r3.Scale(1000, km), nil
}
