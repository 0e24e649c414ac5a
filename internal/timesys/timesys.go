// Package timesys converts calendar timestamps to the continuous day counts
// consumed by the Earth-orientation and solar models.
//
// Epoch days are measured from the J2000 Julian day number (2451545). Leap
// seconds are not modeled; every UTC day is 86400 seconds long.
package timesys

import "time"

// J2000 is the Julian day number of the J2000.0 reference epoch.
const J2000 = 2451545.0

// Mode selects how the time of day is folded into the epoch day count.
type Mode int

const (
	// Truncated combines minutes and seconds with integer division before
	// dividing by 24, so only whole hours contribute to the fraction of the
	// day. This is the historical behavior the visibility pipeline was
	// calibrated against.
	Truncated Mode = iota
	// Continuous uses (h*3600 + m*60 + s) / 86400.
	Continuous
)

// String returns the config name of the mode.
func (m Mode) String() string {
	switch m {
	case Continuous:
		return "continuous"
	default:
		return "truncated"
	}
}

// ParseMode maps a config value to a Mode. Unknown values return false.
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "truncated", "":
		return Truncated, true
	case "continuous":
		return Continuous, true
	}
	return Truncated, false
}

// JulianDayNumber converts a Gregorian calendar date to its Julian day number
// using the integer algorithm of Fliegel and Van Flandern. January and
// February count as months 13 and 14 of the preceding year. Valid from
// 1 March -4800 onward.
func JulianDayNumber(year, month, day int) int {
	// Go integer division truncates toward zero, which the formula relies on.
	a := (month - 14) / 12
	return (1461*(year+4800+a))/4 +
		(367*(month-2-12*a))/12 -
		(3*((year+4900+a)/100))/4 +
		day - 32075
}

// EpochDays returns the day count since J2000 for the given calendar fields,
// with the time of day folded in using Truncated semantics. The whole-day
// difference is taken first so the fraction keeps full precision.
func EpochDays(year, month, day, hour, minute, second int) float64 {
	frac := float64(hour+(minute+second/60)/60) / 24.0
	return float64(JulianDayNumber(year, month, day)) - J2000 + frac
}

// EpochDaysContinuous is EpochDays with a full-resolution time of day.
func EpochDaysContinuous(year, month, day, hour, minute, second int) float64 {
	frac := float64(hour*3600+minute*60+second) / 86400.0
	return float64(JulianDayNumber(year, month, day)) - J2000 + frac
}

// InstantEpochDays decomposes t (in UTC) and returns its epoch day count.
// Sub-second precision is discarded.
func InstantEpochDays(t time.Time, mode Mode) float64 {
	t = t.UTC()
	y, mo, d := t.Date()
	h, mi, s := t.Clock()
	if mode == Continuous {
		return EpochDaysContinuous(y, int(mo), d, h, mi, s)
	}
	return EpochDays(y, int(mo), d, h, mi, s)
}

// JulianDate converts a time.Time (UTC) to an astronomical Julian Date,
// including the half-day offset and sub-second precision.
func JulianDate(t time.Time) float64 {
	t = t.UTC()
	y, mo, d := t.Date()
	h, mi, s := t.Clock()
	sec := float64(s) + float64(t.Nanosecond())/1e9

	// JDN refers to noon; shift to midnight then add the time of day.
	jd := float64(JulianDayNumber(y, int(mo), d)) - 0.5
	return jd + (float64(h)+float64(mi)/60.0+sec/3600.0)/24.0
}
