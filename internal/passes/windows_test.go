package passes

import (
	"math"
	"testing"
	"time"

	"github.com/star/skypass/internal/transform"
)

func lookSample(offset int64, elDeg, azDeg, rangeM float64) Sample {
	return Sample{
		Time:    testReference.Add(time.Duration(offset) * time.Minute),
		Offset:  offset,
		Visible: true,
		Look: &transform.AzElRange{
			Azimuth:   azDeg * math.Pi / 180,
			Elevation: elDeg * math.Pi / 180,
			Range:     rangeM,
		},
	}
}

func TestWindowsGroupsConsecutiveMinutes(t *testing.T) {
	samples := []Sample{
		lookSample(10, 5, 200, 1.8e6),
		lookSample(11, 30, 250, 0.8e6),
		lookSample(12, 12, 300, 1.2e6),
		lookSample(40, 3, 10, 2.0e6),
		{Offset: 41, Visible: false},
		lookSample(42, 4, 20, 1.9e6),
	}

	got := Windows(samples)
	if len(got) != 3 {
		t.Fatalf("got %d windows, want 3", len(got))
	}

	w := got[0]
	if w.Minutes != 3 {
		t.Errorf("first window minutes = %d, want 3", w.Minutes)
	}
	if !w.Start.Equal(samples[0].Time) || !w.End.Equal(samples[2].Time) || !w.Peak.Equal(samples[1].Time) {
		t.Errorf("first window times: start=%v peak=%v end=%v", w.Start, w.Peak, w.End)
	}
	if math.Abs(w.PeakElevationDeg-30) > 1e-9 || math.Abs(w.PeakAzimuthDeg-250) > 1e-9 {
		t.Errorf("peak = %.3f el / %.3f az", w.PeakElevationDeg, w.PeakAzimuthDeg)
	}
	if math.Abs(w.StartAzimuthDeg-200) > 1e-9 || math.Abs(w.EndAzimuthDeg-300) > 1e-9 {
		t.Errorf("azimuths start=%.3f end=%.3f", w.StartAzimuthDeg, w.EndAzimuthDeg)
	}
	if w.MinRangeM != 0.8e6 {
		t.Errorf("min range = %.0f", w.MinRangeM)
	}

	// A non-visible minute between two visible ones splits the window.
	if got[1].Minutes != 1 || got[2].Minutes != 1 {
		t.Errorf("split windows minutes = %d, %d", got[1].Minutes, got[2].Minutes)
	}
}

func TestWindowsEmpty(t *testing.T) {
	if got := Windows(nil); len(got) != 0 {
		t.Errorf("got %d windows for no samples", len(got))
	}
	if got := Windows([]Sample{{Offset: 1, Visible: true}}); len(got) != 0 {
		t.Errorf("sample without look angles produced a window")
	}
}

func TestGroundTrackSkipsMissingPositions(t *testing.T) {
	geo := transform.Geodetic{LatDeg: 10, LonDeg: 20, HeightM: 420e3}
	samples := []Sample{
		{Offset: 0, Geodetic: &geo, Visible: true, Look: &transform.AzElRange{Elevation: 0.5, Range: 1e6}},
		{Offset: 1},
		{Offset: 2, Geodetic: &geo},
	}

	track := GroundTrack(samples)
	if len(track) != 2 {
		t.Fatalf("got %d points, want 2", len(track))
	}
	if track[0].Elevation == nil || math.Abs(*track[0].Elevation-0.5*180/math.Pi) > 1e-9 {
		t.Errorf("elevation = %v", track[0].Elevation)
	}
	if track[1].Elevation != nil {
		t.Error("point without look angles has an elevation")
	}
	if track[0].Altitude != 420e3 || !track[0].Visible {
		t.Errorf("point 0 = %+v", track[0])
	}
}
