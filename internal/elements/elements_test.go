package elements

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const (
	issLine1 = "1 25544U 98067A   08264.51782528 -.00002182  00000-0 -11606-4 0  2927"
	issLine2 = "2 25544  51.6416 247.4627 0006703 130.5360 325.0288 15.72125391563537"
)

func issSet() Set {
	epoch := time.Date(2008, 1, 1, 0, 0, 0, 0, time.UTC).
		Add(time.Duration(263.51782528 * 24 * float64(time.Hour)))
	return Set{
		Name:                    "ISS (ZARYA)",
		InternationalDesignator: "98067A",
		NORADID:                 25544,
		Classification:          "U",
		Epoch:                   epoch,
		MeanMotionDot:           -0.00002182,
		Drag:                    -0.11606e-4,
		ElementSetNumber:        292,
		Inclination:             51.6416,
		RightAscension:          247.4627,
		Eccentricity:            0.0006703,
		ArgumentOfPerigee:       130.5360,
		MeanAnomaly:             325.0288,
		MeanMotion:              15.72125391,
		RevolutionNumber:        56353,
	}
}

func TestTLERendersCanonicalLines(t *testing.T) {
	l1, l2, err := issSet().TLE()
	if err != nil {
		t.Fatalf("TLE: %v", err)
	}
	if l1 != issLine1 {
		t.Errorf("line 1:\n got %q\nwant %q", l1, issLine1)
	}
	if l2 != issLine2 {
		t.Errorf("line 2:\n got %q\nwant %q", l2, issLine2)
	}
}

func TestTLEDefaultsAndNormalization(t *testing.T) {
	s := issSet()
	s.Classification = ""
	s.RightAscension = -112.5373
	s.InternationalDesignator = "1998-067A-LONG"

	l1, l2, err := s.TLE()
	if err != nil {
		t.Fatalf("TLE: %v", err)
	}
	if l1[7] != 'U' {
		t.Errorf("classification column = %q, want U", l1[7])
	}
	if got := l1[9:17]; got != "1998-067" {
		t.Errorf("designator = %q, want truncation to 8 columns", got)
	}
	if got := strings.TrimSpace(l2[17:25]); got != "247.4627" {
		t.Errorf("right ascension = %q, want 247.4627", got)
	}
	if len(l1) != LineLength || len(l2) != LineLength {
		t.Errorf("lengths = %d/%d", len(l1), len(l2))
	}
}

func TestChecksum(t *testing.T) {
	tests := []struct {
		line string
		want int
	}{
		{issLine1, 7},
		{issLine2, 7},
		{"1 00005U 58002B   00179.78495062  .00000023  00000-0  28098-4 0  4753", 3},
		{"", 0},
		{"----", 4},
	}
	for _, tt := range tests {
		if got := Checksum(tt.line); got != tt.want {
			t.Errorf("Checksum(%q) = %d, want %d", tt.line, got, tt.want)
		}
	}
}

func TestFormatExponent(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, " 00000-0"},
		{-0.11606e-4, "-11606-4"},
		{0.28098e-4, " 28098-4"},
		{0.10270e-3, " 10270-3"},
		{0.5, " 50000+0"},
		{0.999999, " 10000+1"},
		{1e-15, " 00000-0"},
	}
	for _, tt := range tests {
		got, err := formatExponent(tt.in)
		if err != nil {
			t.Errorf("formatExponent(%g): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("formatExponent(%g) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if _, err := formatExponent(1e12); !errors.Is(err, ErrInvalid) {
		t.Errorf("overflow error = %v, want ErrInvalid", err)
	}
}

func TestFormatDecimal(t *testing.T) {
	if got := formatDecimal(0.00016717); got != " .00016717" {
		t.Errorf("got %q", got)
	}
	if got := formatDecimal(-0.00002182); got != "-.00002182" {
		t.Errorf("got %q", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Set)
	}{
		{"zero epoch", func(s *Set) { s.Epoch = time.Time{} }},
		{"epoch too late", func(s *Set) { s.Epoch = time.Date(2060, 1, 1, 0, 0, 0, 0, time.UTC) }},
		{"negative norad", func(s *Set) { s.NORADID = -1 }},
		{"six digit norad", func(s *Set) { s.NORADID = 100000 }},
		{"zero mean motion", func(s *Set) { s.MeanMotion = 0 }},
		{"hyperbolic", func(s *Set) { s.Eccentricity = 1 }},
		{"inclination", func(s *Set) { s.Inclination = 181 }},
		{"classification", func(s *Set) { s.Classification = "X" }},
		{"ndot overflow", func(s *Set) { s.MeanMotionDot = 1.5 }},
	}

	if err := issSet().Validate(); err != nil {
		t.Fatalf("valid set rejected: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := issSet()
			tt.mutate(&s)
			if err := s.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate = %v, want ErrInvalid", err)
			}
			if _, _, err := s.TLE(); err == nil {
				t.Error("TLE accepted an invalid set")
			}
		})
	}
}

func TestMinutesSinceEpochAndLabel(t *testing.T) {
	s := issSet()
	if got := s.MinutesSinceEpoch(s.Epoch.Add(90 * time.Minute)); got != 90 {
		t.Errorf("MinutesSinceEpoch = %g, want 90", got)
	}
	if got := s.Label(); got != "ISS (ZARYA)" {
		t.Errorf("Label = %q", got)
	}
	s.Name = ""
	if got := s.Label(); got != "NORAD 25544" {
		t.Errorf("Label = %q", got)
	}
}
