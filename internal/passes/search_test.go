package passes

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/star/skypass/internal/elements"
	"github.com/star/skypass/internal/propagation"
	"github.com/star/skypass/internal/tle"
	"github.com/star/skypass/internal/transform"
	"github.com/star/skypass/internal/visibility"
	"gonum.org/v1/gonum/spatial/r3"
)

// Synthetic ISS-like elements at 2024-04-09 12:00 UTC.
const (
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9009"
	issLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    01"
)

// One day after the element epoch, plus a fraction of a second the searcher
// must drop.
var testReference = time.Date(2024, 4, 10, 12, 0, 0, 700_000_000, time.UTC)

// Turin. Over three days the test orbit gives several dusk passes here.
var turin = transform.Geodetic{LatDeg: 45, LonDeg: 7, HeightM: 0}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func issElements(t testing.TB) *elements.Set {
	t.Helper()
	set, err := tle.ParseLines("ISS (ZARYA)", issLine1, issLine2)
	if err != nil {
		t.Fatalf("ParseLines: %v", err)
	}
	return &set
}

// circularOrbit approximates the ISS element set with a circular orbit whose
// node regresses under J2. Positions are inertial meters.
func circularOrbit() propagation.PropagatorFunc {
	const (
		mu       = 398600.4418e9
		j2       = 1.08263e-3
		earthR   = 6378137.0
		revPerDy = 15.5
		incDeg   = 51.64
		raanDeg  = 100.0
	)
	n := revPerDy * 2 * math.Pi / 86400
	a := math.Cbrt(mu / (n * n))
	inc := incDeg * math.Pi / 180
	raanRate := -1.5 * n * j2 * (earthR / a) * (earthR / a) * math.Cos(inc)
	sinI, cosI := math.Sincos(inc)

	return func(minutes float64) (r3.Vec, error) {
		t := minutes * 60
		sinU, cosU := math.Sincos(n * t)
		sinO, cosO := math.Sincos(raanDeg*math.Pi/180 + raanRate*t)
		return r3.Vec{
			X: a * (cosO*cosU - sinO*sinU*cosI),
			Y: a * (sinO*cosU + cosO*sinU*cosI),
			Z: a * sinU * sinI,
		}, nil
	}
}

func newTestSearcher(opts ...Option) *Searcher {
	engine := propagation.NewEngine(propagation.Config{Workers: 4}, testLogger())
	opts = append([]Option{WithClock(func() time.Time { return testReference })}, opts...)
	return NewSearcher(transform.WGS84, engine, testLogger(), opts...)
}

func orbitRequest(t testing.TB, days float64, mode Mode) Request {
	return Request{
		Elements:   issElements(t),
		Observer:   turin,
		Days:       days,
		Mode:       mode,
		Propagator: circularOrbit(),
	}
}

func TestFindVisibleValidation(t *testing.T) {
	s := newTestSearcher()
	set := issElements(t)

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"no elements", Request{Observer: turin, Days: 1}, ErrNoElements},
		{"zero days", Request{Elements: set, Observer: turin}, ErrInvalidDuration},
		{"negative days", Request{Elements: set, Observer: turin, Days: -1}, ErrInvalidDuration},
		{"NaN days", Request{Elements: set, Observer: turin, Days: math.NaN()}, ErrInvalidDuration},
		{"over max", Request{Elements: set, Observer: turin, Days: 31}, ErrInvalidDuration},
		{"under a minute", Request{Elements: set, Observer: turin, Days: 0.0005}, ErrInvalidDuration},
		{"latitude out of range", Request{Elements: set, Observer: transform.Geodetic{LatDeg: 91}, Days: 1}, ErrInvalidObserver},
		{"NaN longitude", Request{Elements: set, Observer: transform.Geodetic{LonDeg: math.NaN()}, Days: 1}, ErrInvalidObserver},
		{"infinite height", Request{Elements: set, Observer: transform.Geodetic{HeightM: math.Inf(1)}, Days: 1}, ErrInvalidObserver},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.FindVisible(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if res != nil {
				t.Error("result returned alongside validation error")
			}
		})
	}
}

func TestFindVisibleCircularOrbit(t *testing.T) {
	s := newTestSearcher()
	req := orbitRequest(t, 3, ModeAngles)

	res, err := s.FindVisible(context.Background(), req)
	if err != nil {
		t.Fatalf("FindVisible: %v", err)
	}

	if want := testReference.Truncate(time.Second); !res.Reference.Equal(want) {
		t.Errorf("reference = %v, want %v", res.Reference, want)
	}
	if res.EpochOffsetMinutes != 1440 {
		t.Errorf("epoch offset = %d, want 1440", res.EpochOffsetMinutes)
	}
	if res.Requested != 3*1440 || res.Evaluated != 3*1440 {
		t.Errorf("requested=%d evaluated=%d, want 4320", res.Requested, res.Evaluated)
	}
	if res.Truncated || res.Failures != 0 {
		t.Errorf("truncated=%v failures=%d", res.Truncated, res.Failures)
	}
	if res.ID == "" {
		t.Error("empty search id")
	}
	if len(res.Samples) == 0 {
		t.Fatal("expected visible minutes over three days")
	}

	eval := visibility.New(transform.WGS84)
	orbit := circularOrbit()
	last := int64(-1)
	for _, smp := range res.Samples {
		if smp.Offset <= last {
			t.Fatalf("offsets not strictly increasing: %d after %d", smp.Offset, last)
		}
		last = smp.Offset
		if smp.Offset < 0 || smp.Offset >= int64(res.Requested) {
			t.Errorf("offset %d outside window", smp.Offset)
		}
		if !smp.Visible || smp.Look == nil {
			t.Fatalf("angles sample %+v not visible or missing look angles", smp)
		}
		if smp.Look.Elevation < 0 {
			t.Errorf("offset %d: elevation %.3f rad below horizon", smp.Offset, smp.Look.Elevation)
		}
		if !smp.Time.Equal(res.Reference.Add(time.Duration(smp.Offset) * time.Minute)) {
			t.Errorf("offset %d: time %v", smp.Offset, smp.Time)
		}

		pos, _ := orbit(float64(res.EpochOffsetMinutes + smp.Offset))
		if !eval.Classify(pos, turin, smp.Time).Visible() {
			t.Errorf("offset %d returned but independently classified not visible", smp.Offset)
		}
	}

	windows := Windows(res.Samples)
	if len(windows) == 0 {
		t.Fatal("no windows from visible samples")
	}
	total := 0
	for i, w := range windows {
		total += w.Minutes
		if w.Peak.Before(w.Start) || w.End.Before(w.Peak) {
			t.Errorf("window %d ordering: start=%v peak=%v end=%v", i, w.Start, w.Peak, w.End)
		}
		if w.PeakElevationDeg < 0 || w.PeakElevationDeg > 90 {
			t.Errorf("window %d peak elevation %.2f", i, w.PeakElevationDeg)
		}
	}
	if total != len(res.Samples) {
		t.Errorf("windows cover %d minutes, samples %d", total, len(res.Samples))
	}
}

func TestFindVisibleReadsClockOnce(t *testing.T) {
	var reads atomic.Int32
	s := newTestSearcher(WithClock(func() time.Time {
		reads.Add(1)
		return testReference
	}))

	if _, err := s.FindVisible(context.Background(), orbitRequest(t, 1, ModeAngles)); err != nil {
		t.Fatalf("FindVisible: %v", err)
	}
	if n := reads.Load(); n != 1 {
		t.Errorf("clock read %d times, want 1", n)
	}
}

// A satellite sitting on the observer has zero range and no look angles. It
// shares the observer's shadow state, so it is never both lit and seen from
// darkness, and the minutes must neither become samples nor count as
// failures.
func TestFindVisibleZeroRangeNeverSampled(t *testing.T) {
	s := newTestSearcher()
	set := issElements(t)
	m := transform.WGS84
	site := m.GeodeticToRectangular(turin)

	req := orbitRequest(t, 1, ModeAngles)
	req.Propagator = propagation.PropagatorFunc(func(minutes float64) (r3.Vec, error) {
		at := set.Epoch.Add(time.Duration(minutes * float64(time.Minute)))
		return m.ToInertial(at, site), nil
	})

	res, err := s.FindVisible(context.Background(), req)
	if err != nil {
		t.Fatalf("FindVisible: %v", err)
	}
	if len(res.Samples) != 0 {
		t.Errorf("got %d samples, want none", len(res.Samples))
	}
	if res.Failures != 0 || res.Evaluated != 1440 {
		t.Errorf("failures=%d evaluated=%d, want 0 and 1440", res.Failures, res.Evaluated)
	}
}

func TestFindVisibleSkipsFailedMinutes(t *testing.T) {
	s := newTestSearcher()
	baseline, err := s.FindVisible(context.Background(), orbitRequest(t, 3, ModeAngles))
	if err != nil || len(baseline.Samples) < 2 {
		t.Fatalf("baseline: err=%v samples=%d", err, len(baseline.Samples))
	}

	// Fail the first visible minute; every other minute must be unaffected.
	failAt := float64(baseline.EpochOffsetMinutes + baseline.Samples[0].Offset)
	orbit := circularOrbit()
	req := orbitRequest(t, 3, ModeAngles)
	req.Propagator = propagation.PropagatorFunc(func(m float64) (r3.Vec, error) {
		if m == failAt {
			return r3.Vec{}, errors.New("injected")
		}
		return orbit(m)
	})

	res, err := s.FindVisible(context.Background(), req)
	if err != nil {
		t.Fatalf("FindVisible: %v", err)
	}
	if res.Failures != 1 {
		t.Errorf("failures = %d, want 1", res.Failures)
	}
	if res.Evaluated != baseline.Evaluated {
		t.Errorf("evaluated = %d, want %d", res.Evaluated, baseline.Evaluated)
	}
	want := baseline.Samples[1:]
	if len(res.Samples) != len(want) {
		t.Fatalf("got %d samples, want %d", len(res.Samples), len(want))
	}
	for i := range want {
		if res.Samples[i].Offset != want[i].Offset {
			t.Errorf("sample %d offset = %d, want %d", i, res.Samples[i].Offset, want[i].Offset)
		}
	}
}

func TestFindVisibleStop(t *testing.T) {
	s := newTestSearcher()
	req := orbitRequest(t, 1, ModePositions)
	var polls atomic.Int32
	req.Stop = func() bool { return polls.Add(1) > 60 }

	res, err := s.FindVisible(context.Background(), req)
	if err != nil {
		t.Fatalf("FindVisible: %v", err)
	}
	if !res.Truncated {
		t.Error("expected truncated result")
	}
	if res.Evaluated != 60 || len(res.Samples) != 60 {
		t.Errorf("evaluated=%d samples=%d, want 60", res.Evaluated, len(res.Samples))
	}
	for i, smp := range res.Samples {
		if smp.Offset != int64(i) {
			t.Fatalf("sample %d offset %d: result is not a prefix", i, smp.Offset)
		}
	}
}

func TestFindVisibleCancelled(t *testing.T) {
	s := newTestSearcher()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := s.FindVisible(ctx, orbitRequest(t, 1, ModeAngles))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if res == nil || !res.Truncated || res.Evaluated != 0 {
		t.Errorf("result = %+v, want empty truncated result", res)
	}
}

func TestFindVisiblePositionsMode(t *testing.T) {
	s := newTestSearcher()

	angles, err := s.FindVisible(context.Background(), orbitRequest(t, 1, ModeAngles))
	if err != nil {
		t.Fatalf("angles: %v", err)
	}
	res, err := s.FindVisible(context.Background(), orbitRequest(t, 1, ModePositions))
	if err != nil {
		t.Fatalf("positions: %v", err)
	}

	if len(res.Samples) != 1440 {
		t.Fatalf("got %d samples, want 1440", len(res.Samples))
	}
	visible := 0
	for _, smp := range res.Samples {
		if smp.Inertial == nil || smp.Rotating == nil || smp.Geodetic == nil || smp.Look == nil {
			t.Fatalf("offset %d missing position fields", smp.Offset)
		}
		if h := smp.Geodetic.HeightM; h < 350e3 || h > 480e3 {
			t.Errorf("offset %d: altitude %.0f m", smp.Offset, h)
		}
		if smp.Visible {
			visible++
		}
	}
	if visible != len(angles.Samples) {
		t.Errorf("positions mode flags %d visible minutes, angles mode returned %d", visible, len(angles.Samples))
	}

	track := GroundTrack(res.Samples)
	if len(track) != 1440 {
		t.Fatalf("ground track has %d points", len(track))
	}
	for _, p := range track {
		if p.Latitude < -52 || p.Latitude > 52 {
			t.Errorf("ground track latitude %.2f exceeds inclination", p.Latitude)
		}
		if p.Elevation == nil {
			t.Error("ground track point missing elevation")
			break
		}
	}
}

// TestFindVisibleSGP4 runs the full pipeline on SGP4 output. Only
// properties that do not depend on exact pass timing are checked.
func TestFindVisibleSGP4(t *testing.T) {
	s := newTestSearcher()
	res, err := s.FindVisible(context.Background(), Request{
		Elements: issElements(t),
		Observer: turin,
		Days:     3,
	})
	if err != nil {
		t.Fatalf("FindVisible: %v", err)
	}
	if res.Failures != 0 {
		t.Errorf("failures = %d", res.Failures)
	}
	if len(res.Samples) == 0 {
		t.Fatal("expected visible minutes for a LEO object over three days")
	}
	for _, smp := range res.Samples {
		if smp.Look.ElevationDeg() < 0 {
			t.Errorf("offset %d below horizon", smp.Offset)
		}
		// LEO slant range to a visible object stays within a few thousand km.
		if smp.Look.Range < 350e3 || smp.Look.Range > 3000e3 {
			t.Errorf("offset %d: range %.0f m", smp.Offset, smp.Look.Range)
		}
	}
}

func TestFindVisibleBatch(t *testing.T) {
	s := newTestSearcher()
	reqs := []Request{
		orbitRequest(t, 1, ModeAngles),
		{Observer: turin, Days: 1},
	}

	results := s.FindVisibleBatch(context.Background(), reqs)
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].NORADID != 25544 || results[0].Error != "" || results[0].Result == nil {
		t.Errorf("result 0 = %+v", results[0])
	}
	if !strings.Contains(results[1].Error, "no orbital elements") || results[1].Result != nil {
		t.Errorf("result 1 = %+v", results[1])
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeAngles, false},
		{"angles", ModeAngles, false},
		{" Positions ", ModePositions, false},
		{"ecef", ModeAngles, true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseMode(%q) = %v, %v", tt.in, got, err)
		}
	}
	if b, _ := ModePositions.MarshalText(); string(b) != "positions" {
		t.Errorf("MarshalText = %q", b)
	}
}

func BenchmarkFindVisibleOneDay(b *testing.B) {
	s := newTestSearcher()
	req := Request{Elements: issElements(b), Observer: turin, Days: 1}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.FindVisible(ctx, req); err != nil {
			b.Fatal(err)
		}
	}
}
