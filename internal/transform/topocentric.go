package transform

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrZeroRange is returned when look angles are requested for a target that
// coincides with the observer.
var ErrZeroRange = errors.New("transform: zero range vector has no direction")

// ENU is a vector in an observer's East-North-Up tangent frame, meters.
// It is meaningless without the observer it was computed for.
type ENU struct {
	East  float64 `json:"east"`
	North float64 `json:"north"`
	Up    float64 `json:"up"`
}

// Vec returns the components as an r3.Vec (E, N, U).
func (e ENU) Vec() r3.Vec {
	return r3.Vec{X: e.East, Y: e.North, Z: e.Up}
}

// AzElRange holds look angles from an observer to a target.
type AzElRange struct {
	Azimuth   float64 `json:"azimuth"`   // radians from North toward East, atan2 range (-π, π]
	Elevation float64 `json:"elevation"` // radians, positive above the horizon
	Range     float64 `json:"range"`     // meters
}

// AzimuthDeg returns the azimuth in degrees normalized to [0, 360).
func (a AzElRange) AzimuthDeg() float64 {
	deg := a.Azimuth * rad2deg
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg -= 360
	}
	return deg
}

// ElevationDeg returns the elevation in degrees.
func (a AzElRange) ElevationDeg() float64 {
	return a.Elevation * rad2deg
}

// Observer is a ground observer with its rectangular position and ENU
// rotation terms precomputed, so it can be reused across many targets.
type Observer struct {
	Geodetic Geodetic
	Rotating r3.Vec // Earth-fixed position, meters
	sinLat   float64
	cosLat   float64
	sinLon   float64
	cosLon   float64
}

// NewObserver precomputes the observer's rectangular position under m.
func (m Model) NewObserver(g Geodetic) Observer {
	sinLat, cosLat := math.Sincos(g.LatDeg * deg2rad)
	sinLon, cosLon := math.Sincos(g.LonDeg * deg2rad)
	return Observer{
		Geodetic: g,
		Rotating: m.GeodeticToRectangular(g),
		sinLat:   sinLat,
		cosLat:   cosLat,
		sinLon:   sinLon,
		cosLon:   cosLon,
	}
}

// ENU rotates the displacement from the observer to target (rotating frame,
// meters) into the observer's East-North-Up frame.
func (o Observer) ENU(target r3.Vec) ENU {
	d := r3.Sub(target, o.Rotating)
	return ENU{
		East:  -o.sinLon*d.X + o.cosLon*d.Y,
		North: -o.sinLat*o.cosLon*d.X - o.sinLat*o.sinLon*d.Y + o.cosLat*d.Z,
		Up:    o.cosLat*o.cosLon*d.X + o.cosLat*o.sinLon*d.Y + o.sinLat*d.Z,
	}
}

// ENUFromRectangular converts a rotating-frame target position to the ENU
// frame of the observer at g.
func (m Model) ENUFromRectangular(g Geodetic, target r3.Vec) ENU {
	return m.NewObserver(g).ENU(target)
}

// AzElRangeFromENU converts an ENU vector to azimuth, elevation and range.
// A zero vector returns ErrZeroRange. The arcsine argument is clamped to
// [-1, 1] against rounding.
func AzElRangeFromENU(e ENU) (AzElRange, error) {
	rng := r3.Norm(e.Vec())
	if rng == 0 || math.IsNaN(rng) {
		return AzElRange{}, ErrZeroRange
	}
	return AzElRange{
		Azimuth:   math.Atan2(e.East, e.North),
		Elevation: math.Asin(Clamp(e.Up / rng)),
		Range:     rng,
	}, nil
}

// AzElRangeSeries converts a batch of ENU vectors. Entries with zero range are
// reported in the returned error slice at the same index; their AzElRange is
// the zero value.
func AzElRangeSeries(enus []ENU) ([]AzElRange, []error) {
	out := make([]AzElRange, len(enus))
	errs := make([]error, len(enus))
	for i, e := range enus {
		out[i], errs[i] = AzElRangeFromENU(e)
	}
	return out, errs
}

// LookAngles returns look angles from the observer to a rotating-frame target.
func (o Observer) LookAngles(target r3.Vec) (AzElRange, error) {
	return AzElRangeFromENU(o.ENU(target))
}

// Clamp limits x to [-1, 1], the domain of asin and acos.
func Clamp(x float64) float64 {
	return math.Max(-1, math.Min(1, x))
}
