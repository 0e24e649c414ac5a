package timesys

import (
	"math"
	"testing"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
	"gonum.org/v1/gonum/floats/scalar"
)

func TestJulianDayNumber(t *testing.T) {
	tests := []struct {
		name             string
		year, month, day int
		want             int
	}{
		{"J2000 reference day", 2000, 1, 1, 2451545},
		{"Unix epoch", 1970, 1, 1, 2440588},
		{"leap day 2024", 2024, 2, 29, 2460370},
		{"day after leap day", 2024, 3, 1, 2460371},
		{"Gregorian reform", 1582, 10, 15, 2299161},
		{"end of year", 1999, 12, 31, 2451544},
		{"Sputnik launch", 1957, 10, 4, 2436116},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := JulianDayNumber(tt.year, tt.month, tt.day)
			if got != tt.want {
				t.Errorf("JulianDayNumber(%d, %d, %d) = %d, want %d", tt.year, tt.month, tt.day, got, tt.want)
			}
		})
	}
}

// TestJulianDayNumberAgainstMeeus cross-checks the integer algorithm against
// the meeus calendar conversion for every day of a few sample years.
func TestJulianDayNumberAgainstMeeus(t *testing.T) {
	for _, year := range []int{1900, 1999, 2000, 2024, 2100} {
		day := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
		for day.Year() == year {
			y, m, d := day.Date()
			got := JulianDayNumber(y, int(m), d)
			// meeus returns the JD of midnight; JDN is the following noon.
			want := julian.CalendarGregorianToJD(y, int(m), float64(d)) + 0.5
			if float64(got) != want {
				t.Fatalf("JulianDayNumber(%d-%02d-%02d) = %d, meeus = %.1f", y, m, d, got, want)
			}
			day = day.AddDate(0, 0, 1)
		}
	}
}

func TestEpochDaysTruncation(t *testing.T) {
	tests := []struct {
		name                 string
		hour, minute, second int
		want                 float64
	}{
		{"midnight", 0, 0, 0, 0},
		{"noon", 12, 0, 0, 0.5},
		{"minutes do not contribute", 12, 59, 59, 0.5},
		{"last second of day", 23, 59, 59, 23.0 / 24.0},
		{"six hours", 6, 30, 0, 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EpochDays(2000, 1, 1, tt.hour, tt.minute, tt.second)
			if !scalar.EqualWithinAbs(got, tt.want, 1e-12) {
				t.Errorf("EpochDays(2000-01-01 %02d:%02d:%02d) = %.12f, want %.12f",
					tt.hour, tt.minute, tt.second, got, tt.want)
			}
		})
	}
}

func TestEpochDaysContinuous(t *testing.T) {
	got := EpochDaysContinuous(2000, 1, 1, 12, 59, 59)
	want := (12*3600.0 + 59*60 + 59) / 86400.0
	if !scalar.EqualWithinAbs(got, want, 1e-12) {
		t.Errorf("EpochDaysContinuous = %.12f, want %.12f", got, want)
	}

	// Continuous days relate to the astronomical JD by the half-day JDN offset.
	ts := time.Date(2024, 4, 10, 7, 51, 28, 0, time.UTC)
	jd := julian.TimeToJD(ts)
	cont := InstantEpochDays(ts, Continuous)
	if !scalar.EqualWithinAbs(cont, jd+0.5-J2000, 1e-8) {
		t.Errorf("continuous epoch days = %.10f, want %.10f", cont, jd+0.5-J2000)
	}
}

func TestEpochDaysKeepsFraction(t *testing.T) {
	tests := []struct {
		name                 string
		year, month, day     int
		hour, minute, second int
		epochDays            func(year, month, day, hour, minute, second int) float64
		wantFrac             float64
	}{
		{"truncated at J2000", 2000, 1, 1, 23, 59, 59, EpochDays, 23.0 / 24.0},
		{"truncated far from J2000", 2024, 4, 10, 23, 59, 59, EpochDays, 23.0 / 24.0},
		{"continuous far from J2000", 2024, 4, 10, 23, 59, 59, EpochDaysContinuous, 86399.0 / 86400.0},
		{"continuous before J2000", 1980, 6, 1, 0, 0, 1, EpochDaysContinuous, 1.0 / 86400.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			whole := float64(JulianDayNumber(tt.year, tt.month, tt.day) - 2451545)
			got := tt.epochDays(tt.year, tt.month, tt.day, tt.hour, tt.minute, tt.second)
			if frac := got - whole; !scalar.EqualWithinAbs(frac, tt.wantFrac, 1e-12) {
				t.Errorf("fraction = %.15f, want %.15f", frac, tt.wantFrac)
			}
		})
	}
}

func TestInstantEpochDaysMonotonic(t *testing.T) {
	for _, mode := range []Mode{Truncated, Continuous} {
		t.Run(mode.String(), func(t *testing.T) {
			start := time.Date(2025, 12, 31, 20, 0, 0, 0, time.UTC)
			prev := math.Inf(-1)
			for i := 0; i < 8*60; i++ {
				ts := start.Add(time.Duration(i) * time.Minute)
				d := InstantEpochDays(ts, mode)
				if d < prev {
					t.Fatalf("epoch days decreased at %v: %.9f < %.9f", ts, d, prev)
				}
				prev = d
			}
		})
	}
}

func TestInstantEpochDaysUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	local := time.Date(2024, 6, 1, 17, 0, 0, 0, loc)
	utc := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	if a, b := InstantEpochDays(local, Truncated), InstantEpochDays(utc, Truncated); a != b {
		t.Errorf("zone-shifted instant = %.6f, UTC instant = %.6f", a, b)
	}
}

func TestJulianDate(t *testing.T) {
	tests := []struct {
		name string
		time time.Time
		want float64
	}{
		{"J2000.0 epoch", time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC), 2451545.0},
		{"Unix epoch", time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC), 2440587.5},
		{"Vallado example date", time.Date(2004, 4, 6, 7, 51, 28, 386009000, time.UTC), 2453101.827411875},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := JulianDate(tt.time)
			if diff := math.Abs(got - tt.want); diff > 1e-6 {
				t.Errorf("JulianDate(%v) = %.10f, want %.10f (diff=%.2e)", tt.time, got, tt.want, diff)
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	if m, ok := ParseMode("continuous"); !ok || m != Continuous {
		t.Errorf("ParseMode(continuous) = %v, %v", m, ok)
	}
	if m, ok := ParseMode(""); !ok || m != Truncated {
		t.Errorf("ParseMode(\"\") = %v, %v", m, ok)
	}
	if _, ok := ParseMode("sidereal"); ok {
		t.Error("ParseMode(sidereal) should fail")
	}
}
