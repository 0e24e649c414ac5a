package propagation

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// Propagator maps minutes since the element epoch to an inertial position in
// meters. Implementations must be safe for concurrent use.
type Propagator interface {
	Propagate(minutesSinceEpoch float64) (r3.Vec, error)
}

// PropagatorFunc adapts a function to Propagator.
type PropagatorFunc func(minutesSinceEpoch float64) (r3.Vec, error)

// Propagate calls f.
func (f PropagatorFunc) Propagate(minutesSinceEpoch float64) (r3.Vec, error) {
	return f(minutesSinceEpoch)
}

// Sample is the propagated state at one search offset.
type Sample struct {
	Offset   int64     // minutes after the search reference instant
	Minutes  float64   // minutes since the element epoch fed to the propagator
	Time     time.Time // reference + Offset
	Inertial r3.Vec    // meters; zero when Err is set
	Err      error
}

// FailureError reports a propagator failure at one minute offset.
type FailureError struct {
	Minutes float64
	Cause   error
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("propagation failed at %.0f min since epoch: %v", e.Minutes, e.Cause)
}

func (e *FailureError) Unwrap() error { return e.Cause }

// Config holds engine settings.
type Config struct {
	Workers int // worker pool size (default: runtime.NumCPU())
}
