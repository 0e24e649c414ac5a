// Package transform provides the reference-frame and coordinate conversions
// used by the visibility pipeline.
//
// Frames:
//   - inertial: Earth-centered, fixed relative to distant stars. SGP4 output.
//   - rotating: Earth-centered, fixed to the surface.
//   - ENU: East-North-Up tangent plane at a ground observer.
//
// All rectangular vectors are in meters. Geodetic angles are in degrees,
// topocentric angles in radians.
//
// The inertial/rotating relation is a single rotation about the polar axis by
// a linear function of J2000 epoch days. Precession, nutation, polar motion
// and the GMST polynomial are not modeled.
package transform

import (
	"fmt"
	"math"
	"time"

	"github.com/star/skypass/internal/timesys"
)

// Model holds the Earth constants threaded through every conversion.
// Values are immutable once constructed; pass Model by value.
type Model struct {
	EquatorialRadius float64      // meters
	Eccentricity     float64      // first eccentricity of the ellipsoid
	RotationRate     float64      // sidereal rotation rate, rad/s
	AxialTilt        float64      // obliquity of the ecliptic at J2000, degrees
	AxialTiltRate    float64      // obliquity drift, degrees per day (subtracted)
	TimeOfDay        timesys.Mode // how epoch days fold in the time of day
}

// WGS84 is the default Earth model.
var WGS84 = Model{
	EquatorialRadius: 6378137.0,
	Eccentricity:     0.0818191908426,
	RotationRate:     7.2921150e-5,
	AxialTilt:        23.439,
	AxialTiltRate:    4.0e-7,
	TimeOfDay:        timesys.Truncated,
}

// PolarRadius returns the semi-minor axis in meters.
func (m Model) PolarRadius() float64 {
	return m.EquatorialRadius * math.Sqrt(1-m.Eccentricity*m.Eccentricity)
}

// EpochDays returns the J2000 epoch day count the model uses for t.
func (m Model) EpochDays(t time.Time) float64 {
	return timesys.InstantEpochDays(t, m.TimeOfDay)
}

// Validate reports whether the constants describe a usable ellipsoid.
func (m Model) Validate() error {
	if !(m.EquatorialRadius > 0) {
		return fmt.Errorf("equatorial radius must be positive, got %g", m.EquatorialRadius)
	}
	if m.Eccentricity < 0 || m.Eccentricity >= 1 {
		return fmt.Errorf("eccentricity must be in [0, 1), got %g", m.Eccentricity)
	}
	if !(m.RotationRate > 0) {
		return fmt.Errorf("rotation rate must be positive, got %g", m.RotationRate)
	}
	return nil
}
