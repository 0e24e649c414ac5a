// Package visibility decides whether a satellite can be seen by eye from a
// ground observer: above the local horizon, lit by the Sun, while the
// observer is in darkness.
package visibility

import (
	"math"
	"time"

	"github.com/star/skypass/internal/solar"
	"github.com/star/skypass/internal/transform"
	"gonum.org/v1/gonum/spatial/r3"
)

// Evaluator applies the eclipse and horizon predicates under one Earth model.
type Evaluator struct {
	Model transform.Model
}

// New returns an Evaluator for m.
func New(m transform.Model) Evaluator {
	return Evaluator{Model: m}
}

// IsEclipsed reports whether an inertial position (meters) lies inside the
// Earth's cylindrical-cone shadow at t.
//
// β is the angle between the Sun direction and the position; the point is
// in shadow when β exceeds π − asin(R/|p|), the angle at which the line of
// sight to the Sun grazes the equatorial sphere. A point at or below the
// surface has R/|p| clamped to 1. The zero vector is reported as lit.
func (e Evaluator) IsEclipsed(inertial r3.Vec, t time.Time) bool {
	dist := r3.Norm(inertial)
	if dist == 0 || math.IsNaN(dist) {
		return false
	}
	unit := r3.Scale(1/dist, inertial)
	sun := solar.Direction(e.Model.EpochDays(t), e.Model)

	beta := math.Acos(transform.Clamp(r3.Dot(sun, unit)))
	limit := math.Pi - math.Asin(transform.Clamp(e.Model.EquatorialRadius/dist))
	return beta > limit
}
