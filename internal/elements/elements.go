// Package elements defines the mean orbital element set handed to the SGP4
// propagator. The set is treated as an opaque, immutable value by the
// visibility pipeline; this package only validates it and renders it to the
// two-line text form the propagator backend consumes.
package elements

import (
	"errors"
	"fmt"
	"time"
)

// Set is a classical SGP4 mean element set. Angles are in degrees, mean
// motion in revolutions per day.
type Set struct {
	Name                    string    `json:"object_name,omitempty"`
	InternationalDesignator string    `json:"international_designator,omitempty"`
	NORADID                 int       `json:"norad_id"`
	Classification          string    `json:"classification,omitempty"` // "U", "C" or "S"
	Epoch                   time.Time `json:"epoch"`
	MeanMotionDot           float64   `json:"mean_motion_dot"`  // rev/day², first derivative over two
	MeanMotionDDot          float64   `json:"mean_motion_ddot"` // rev/day³, second derivative over six
	Drag                    float64   `json:"drag_term"`        // B*, inverse Earth radii
	ElementSetNumber        int       `json:"element_set_number"`
	Inclination             float64   `json:"inclination"`
	RightAscension          float64   `json:"right_ascension"`
	Eccentricity            float64   `json:"eccentricity"`
	ArgumentOfPerigee       float64   `json:"argument_of_perigee"`
	MeanAnomaly             float64   `json:"mean_anomaly"`
	MeanMotion              float64   `json:"mean_motion"`
	RevolutionNumber        int       `json:"revolution_number"`
	EphemerisType           int       `json:"ephemeris_type"`
}

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid element set")

// Validate checks the ranges the two-line form and the propagator can carry.
func (s Set) Validate() error {
	switch {
	case s.Epoch.IsZero():
		return fmt.Errorf("%w: epoch is required", ErrInvalid)
	case s.Epoch.UTC().Year() < 1957 || s.Epoch.UTC().Year() > 2056:
		return fmt.Errorf("%w: epoch year %d outside 1957-2056", ErrInvalid, s.Epoch.UTC().Year())
	case s.NORADID < 0 || s.NORADID > 99999:
		return fmt.Errorf("%w: norad id %d outside 0-99999", ErrInvalid, s.NORADID)
	case !(s.MeanMotion > 0) || s.MeanMotion >= 100:
		return fmt.Errorf("%w: mean motion %g rev/day", ErrInvalid, s.MeanMotion)
	case s.Eccentricity < 0 || s.Eccentricity >= 1:
		return fmt.Errorf("%w: eccentricity %g outside [0, 1)", ErrInvalid, s.Eccentricity)
	case s.Inclination < 0 || s.Inclination > 180:
		return fmt.Errorf("%w: inclination %g outside [0, 180]", ErrInvalid, s.Inclination)
	case s.MeanMotionDot <= -1 || s.MeanMotionDot >= 1:
		return fmt.Errorf("%w: mean motion derivative %g does not fit", ErrInvalid, s.MeanMotionDot)
	}
	switch s.Classification {
	case "", "U", "C", "S":
	default:
		return fmt.Errorf("%w: classification %q", ErrInvalid, s.Classification)
	}
	return nil
}

// MinutesSinceEpoch returns the real-valued minutes from the element epoch
// to t.
func (s Set) MinutesSinceEpoch(t time.Time) float64 {
	return t.Sub(s.Epoch).Minutes()
}

// Label returns the name if present, else the NORAD id.
func (s Set) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("NORAD %d", s.NORADID)
}
