package elements

import (
	"fmt"
	"math"
	"strings"
)

// LineLength is the fixed width of both element lines including checksum.
const LineLength = 69

// TLE renders the set in NORAD two-line form. Fields that cannot be
// represented in their fixed-width columns produce an error rather than a
// silently shifted line.
func (s Set) TLE() (line1, line2 string, err error) {
	if err := s.Validate(); err != nil {
		return "", "", err
	}

	class := s.Classification
	if class == "" {
		class = "U"
	}
	intl := s.InternationalDesignator
	if len(intl) > 8 {
		intl = intl[:8]
	}

	epoch := s.Epoch.UTC()
	dayStart := epoch.Truncate(24 * 60 * 60 * 1e9)
	dayOfYear := float64(epoch.YearDay()) + epoch.Sub(dayStart).Hours()/24.0

	nddot, err := formatExponent(s.MeanMotionDDot)
	if err != nil {
		return "", "", fmt.Errorf("mean motion second derivative: %w", err)
	}
	bstar, err := formatExponent(s.Drag)
	if err != nil {
		return "", "", fmt.Errorf("drag term: %w", err)
	}

	line1 = fmt.Sprintf("1 %05d%s %-8s %02d%012.8f %s %s %s %d %4d",
		s.NORADID, class, intl, epoch.Year()%100, dayOfYear,
		formatDecimal(s.MeanMotionDot), nddot, bstar,
		s.EphemerisType%10, s.ElementSetNumber%10000)

	ecc := int(math.Round(s.Eccentricity * 1e7))
	if ecc > 9999999 {
		ecc = 9999999
	}
	line2 = fmt.Sprintf("2 %05d %8.4f %8.4f %07d %8.4f %8.4f %11.8f%5d",
		s.NORADID, s.Inclination, normalizeDeg(s.RightAscension), ecc,
		normalizeDeg(s.ArgumentOfPerigee), normalizeDeg(s.MeanAnomaly),
		s.MeanMotion, s.RevolutionNumber%100000)

	line1 += fmt.Sprint(Checksum(line1))
	line2 += fmt.Sprint(Checksum(line2))
	if len(line1) != LineLength || len(line2) != LineLength {
		return "", "", fmt.Errorf("%w: rendered line lengths %d/%d, want %d", ErrInvalid, len(line1), len(line2), LineLength)
	}
	return line1, line2, nil
}

// Checksum returns the modulo-10 checksum of the first 68 columns: digits
// count their value and minus signs count one.
func Checksum(line string) int {
	if len(line) > LineLength-1 {
		line = line[:LineLength-1]
	}
	sum := 0
	for _, c := range line {
		switch {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10
}

// formatDecimal renders |v| < 1 as a signed ten-column fraction, e.g.
// " .00016717".
func formatDecimal(v float64) string {
	sign := " "
	if v < 0 {
		sign = "-"
		v = -v
	}
	return sign + strings.TrimPrefix(fmt.Sprintf("%.8f", v), "0")
}

// formatExponent renders v in the eight-column assumed-decimal form, e.g.
// 0.00010270 -> " 10270-3".
func formatExponent(v float64) (string, error) {
	if v == 0 {
		return " 00000-0", nil
	}
	sign := " "
	if v < 0 {
		sign = "-"
		v = -v
	}
	exp := int(math.Floor(math.Log10(v))) + 1
	mant := int(math.Round(v / math.Pow(10, float64(exp)) * 1e5))
	if mant >= 100000 {
		mant /= 10
		exp++
	}
	if exp < -9 {
		return " 00000-0", nil
	}
	if exp > 9 {
		return "", fmt.Errorf("%w: value %g overflows exponent field", ErrInvalid, v)
	}
	expSign := "-"
	if exp >= 0 {
		expSign = "+"
	}
	if exp < 0 {
		exp = -exp
	}
	return fmt.Sprintf("%s%05d%s%d", sign, mant, expSign, exp), nil
}

func normalizeDeg(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}
