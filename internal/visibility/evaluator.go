package visibility

import (
	"time"

	"github.com/star/skypass/internal/propagation"
	"github.com/star/skypass/internal/transform"
	"gonum.org/v1/gonum/spatial/r3"
)

// Verdict holds the three predicates evaluated for one instant. All three are
// always computed so callers can report why a sample was rejected.
type Verdict struct {
	AboveHorizon bool          `json:"above_horizon"`
	ObserverDark bool          `json:"observer_dark"`
	SatelliteLit bool          `json:"satellite_lit"`
	ENU          transform.ENU `json:"enu"`
}

// Visible is true when the satellite is on or above the horizon, lit, and
// the observer is in the Earth's shadow.
func (v Verdict) Visible() bool {
	return v.AboveHorizon && v.ObserverDark && v.SatelliteLit
}

// Classify evaluates visibility of a satellite at an inertial position from
// observer at t.
func (e Evaluator) Classify(satInertial r3.Vec, observer transform.Geodetic, t time.Time) Verdict {
	return e.ClassifyFrom(satInertial, e.Model.NewObserver(observer), t)
}

// ClassifyFrom is Classify for a precomputed observer.
func (e Evaluator) ClassifyFrom(satInertial r3.Vec, obs transform.Observer, t time.Time) Verdict {
	enu := obs.ENU(e.Model.ToRotating(t, satInertial))
	obsInertial := e.Model.ToInertial(t, obs.Rotating)

	return Verdict{
		AboveHorizon: enu.Up >= 0,
		ObserverDark: e.IsEclipsed(obsInertial, t),
		SatelliteLit: !e.IsEclipsed(satInertial, t),
		ENU:          enu,
	}
}

// VisibleSeries classifies each propagated sample. Samples that failed to
// propagate are reported as not visible.
func (e Evaluator) VisibleSeries(samples []propagation.Sample, observer transform.Geodetic) []bool {
	obs := e.Model.NewObserver(observer)
	out := make([]bool, len(samples))
	for i, s := range samples {
		if s.Err != nil {
			continue
		}
		out[i] = e.ClassifyFrom(s.Inertial, obs, s.Time).Visible()
	}
	return out
}
