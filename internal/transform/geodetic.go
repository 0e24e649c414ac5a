package transform

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

const (
	deg2rad = math.Pi / 180.0
	rad2deg = 180.0 / math.Pi

	// Horizontal distances below this (km) are treated as on the polar axis.
	axisEpsilonKm = 1e-9
	// Floor for denominators that can only vanish at the Earth's center.
	tinyDenominator = 1e-30
)

// Geodetic is a position over the model ellipsoid.
type Geodetic struct {
	LatDeg  float64 `json:"lat_deg"`
	LonDeg  float64 `json:"lon_deg"`
	HeightM float64 `json:"height_m"`
}

// PrimeVerticalRadius returns the ellipsoid's radius of curvature in the prime
// vertical at the given geodetic latitude, in meters.
func (m Model) PrimeVerticalRadius(latDeg float64) float64 {
	es := m.Eccentricity * math.Sin(latDeg*deg2rad)
	return m.EquatorialRadius / math.Sqrt(1-es*es)
}

// GeodeticToRectangular converts a geodetic position to Earth-fixed
// rectangular coordinates in meters.
func (m Model) GeodeticToRectangular(g Geodetic) r3.Vec {
	n := m.PrimeVerticalRadius(g.LatDeg)
	sinLat, cosLat := math.Sincos(g.LatDeg * deg2rad)
	sinLon, cosLon := math.Sincos(g.LonDeg * deg2rad)
	e2 := m.Eccentricity * m.Eccentricity

	return r3.Vec{
		X: (n + g.HeightM) * cosLat * cosLon,
		Y: (n + g.HeightM) * cosLat * sinLon,
		Z: ((1-e2)*n + g.HeightM) * sinLat,
	}
}

// RectangularToGeodetic converts Earth-fixed rectangular coordinates (meters)
// to geodetic coordinates using Zhu's closed-form solution. The arithmetic
// runs on kilometer-scaled values.
//
// On the polar axis longitude is undefined; it is reported as 0 and latitude
// as ±90. The function never returns NaN for finite input.
func (m Model) RectangularToGeodetic(v r3.Vec) Geodetic {
	a := m.EquatorialRadius / 1000.0
	b := m.PolarRadius() / 1000.0
	a2, b2 := a*a, b*b
	e2 := (a2 - b2) / a2
	ep2 := a2/b2 - 1.0

	x, y, z := v.X/1000.0, v.Y/1000.0, v.Z/1000.0
	p := math.Hypot(x, y)

	if p < axisEpsilonKm {
		lat := 90.0
		if z < 0 {
			lat = -90.0
		}
		return Geodetic{LatDeg: lat, LonDeg: 0, HeightM: (math.Abs(z) - b) * 1000.0}
	}

	z2, p2 := z*z, p*p
	f := 54.0 * b2 * z2
	g := p2 + (1-e2)*z2 - e2*(a2-b2)
	if math.Abs(g) < tinyDenominator {
		g = math.Copysign(tinyDenominator, g)
	}
	c := e2 * e2 * f * p2 / (g * g * g)
	s := math.Cbrt(1 + c + math.Sqrt(math.Max(c*c+2*c, 0)))
	if math.Abs(s) < tinyDenominator {
		s = tinyDenominator
	}
	k := s + 1/s + 1
	bigP := f / (3 * k * k * g * g)
	q := math.Sqrt(1 + 2*e2*e2*bigP)

	r0sq := 0.5*a2*(1+1/q) - bigP*(1-e2)*z2/(q*(1+q)) - 0.5*bigP*p2
	r0 := -bigP*e2*p/(1+q) + math.Sqrt(math.Max(r0sq, 0))

	d := p - e2*r0
	u := math.Sqrt(d*d + z2)
	vv := math.Max(math.Sqrt(d*d+(1-e2)*z2), tinyDenominator)
	z0 := b2 * z / (a * vv)

	return Geodetic{
		LatDeg:  math.Atan2(z+ep2*z0, p) * rad2deg,
		LonDeg:  math.Atan2(y, x) * rad2deg,
		HeightM: u * (1 - b2/(a*vv)) * 1000.0,
	}
}
