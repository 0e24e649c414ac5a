// Package solar computes a low-precision direction to the Sun in the
// inertial frame. Two equation-of-center terms keep the ecliptic longitude
// within a few hundredths of a degree for several decades around J2000.
package solar

import (
	"math"

	"github.com/star/skypass/internal/transform"
	"gonum.org/v1/gonum/spatial/r3"
)

// Linear terms of the mean orbit, degrees and degrees per epoch day.
const (
	meanLongitudeJ2000 = 280.460
	meanLongitudeRate  = 0.9856474
	meanAnomalyJ2000   = 357.528
	meanAnomalyRate    = 0.9856003
	centerAmplitude1   = 1.9148
	centerAmplitude2   = 0.02
	deg2rad            = math.Pi / 180.0
)

// EclipticLongitude returns the Sun's ecliptic longitude in radians for the
// given J2000 epoch day count.
func EclipticLongitude(epochDays float64) float64 {
	meanLon := meanLongitudeJ2000 + meanLongitudeRate*epochDays
	g := (meanAnomalyJ2000 + meanAnomalyRate*epochDays) * deg2rad
	lambda := meanLon + centerAmplitude1*math.Sin(g) + centerAmplitude2*math.Sin(2*g)
	return math.Mod(lambda, 360) * deg2rad
}

// Obliquity returns the obliquity of the ecliptic in radians: the model's
// axial tilt drifting linearly with epoch days.
func Obliquity(epochDays float64, m transform.Model) float64 {
	return (m.AxialTilt - m.AxialTiltRate*epochDays) * deg2rad
}

// Direction returns the inertial unit vector toward the Sun.
func Direction(epochDays float64, m transform.Model) r3.Vec {
	sinLambda, cosLambda := math.Sincos(EclipticLongitude(epochDays))
	sinEps, cosEps := math.Sincos(Obliquity(epochDays, m))
	return r3.Vec{
		X: cosLambda,
		Y: sinLambda * cosEps,
		Z: sinLambda * sinEps,
	}
}
