package solar

import (
	"math"
	"testing"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
	meeussolar "github.com/soniakeys/meeus/v3/solar"
	"github.com/star/skypass/internal/timesys"
	"github.com/star/skypass/internal/transform"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestDirectionUnitLength(t *testing.T) {
	for d := -5000.0; d <= 15000; d += 37.3 {
		v := Direction(d, transform.WGS84)
		if n := r3.Norm(v); !scalar.EqualWithinAbs(n, 1, 1e-12) {
			t.Fatalf("|Direction(%.1f)| = %.15f, want 1", d, n)
		}
	}
}

func TestDirectionSeasons(t *testing.T) {
	eps := 23.439 * math.Pi / 180

	tests := []struct {
		name string
		when time.Time
		want r3.Vec
		tol  float64
	}{
		{"March equinox 2024", time.Date(2024, 3, 20, 3, 6, 0, 0, time.UTC), r3.Vec{X: 1}, 0.03},
		{"June solstice 2024", time.Date(2024, 6, 20, 20, 51, 0, 0, time.UTC), r3.Vec{Y: math.Cos(eps), Z: math.Sin(eps)}, 0.03},
		{"September equinox 2024", time.Date(2024, 9, 22, 12, 44, 0, 0, time.UTC), r3.Vec{X: -1}, 0.03},
		{"December solstice 2024", time.Date(2024, 12, 21, 9, 20, 0, 0, time.UTC), r3.Vec{Y: -math.Cos(eps), Z: -math.Sin(eps)}, 0.03},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Direction(timesys.InstantEpochDays(tt.when, timesys.Continuous), transform.WGS84)
			if d := r3.Norm(r3.Sub(got, tt.want)); d > tt.tol {
				t.Errorf("Direction = %+v, want %+v (|diff| = %.4f)", got, tt.want, d)
			}
		})
	}
}

// TestDirectionAgainstMeeus compares the two-term model with the full
// apparent solar position from meeus. The J2000 day count used here is
// anchored on the noon-based Julian day number, so it runs half a day ahead
// of the astronomical count; that offset alone is worth about half a degree.
func TestDirectionAgainstMeeus(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 36; i++ {
		ts := start.Add(time.Duration(i) * 10 * 24 * time.Hour)

		ra, dec := meeussolar.ApparentEquatorial(julian.TimeToJD(ts))
		want := r3.Vec{
			X: dec.Cos() * ra.Cos(),
			Y: dec.Cos() * ra.Sin(),
			Z: dec.Sin(),
		}
		got := Direction(timesys.InstantEpochDays(ts, timesys.Continuous), transform.WGS84)

		sep := math.Acos(transform.Clamp(r3.Dot(got, want))) * 180 / math.Pi
		if sep > 1.0 {
			t.Errorf("%s: separation from meeus = %.3f deg", ts.Format("2006-01-02"), sep)
		}
	}
}

func TestObliquityDrift(t *testing.T) {
	m := transform.WGS84
	if got := Obliquity(0, m) * 180 / math.Pi; !scalar.EqualWithinAbs(got, 23.439, 1e-12) {
		t.Errorf("obliquity at J2000 = %.6f deg, want 23.439", got)
	}
	// A century of drift at 4e-7 deg/day is about 0.0146 deg.
	drift := (Obliquity(0, m) - Obliquity(36525, m)) * 180 / math.Pi
	if !scalar.EqualWithinAbs(drift, 36525*4e-7, 1e-9) {
		t.Errorf("century drift = %.6f deg, want %.6f", drift, 36525*4e-7)
	}
}
