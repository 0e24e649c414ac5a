package tle

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/star/skypass/internal/elements"
)

// ErrChecksum is returned when a line's modulo-10 checksum does not match.
var ErrChecksum = errors.New("tle checksum mismatch")

// Parse reads NORAD TLE text from r. Both the three-line form (name line
// first) and bare two-line pairs are accepted. Malformed entries are skipped
// with a warning log.
func Parse(r io.Reader, logger *slog.Logger) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}

	var entries []Entry
	for i := 0; i+1 < len(lines); {
		name := ""
		if !strings.HasPrefix(lines[i], "1 ") {
			if i+2 >= len(lines) {
				break
			}
			name = strings.TrimSpace(strings.TrimPrefix(lines[i], "0 "))
			i++
		}
		line1, line2 := lines[i], lines[i+1]

		if !strings.HasPrefix(line1, "1 ") || !strings.HasPrefix(line2, "2 ") {
			// Resynchronize on the next line.
			logger.Warn("skipping malformed TLE entry", "line_index", i, "name", name)
			if name == "" {
				i++
			}
			continue
		}

		set, err := ParseLines(name, line1, line2)
		if err != nil {
			logger.Warn("skipping TLE entry", "name", name, "error", err)
			i += 2
			continue
		}
		entries = append(entries, Entry{Elements: set, Line1: line1, Line2: line2})
		i += 2
	}

	return entries, nil
}

// ParseLines decodes one element set from its two data lines.
func ParseLines(name, line1, line2 string) (elements.Set, error) {
	if len(line1) < elements.LineLength || len(line2) < elements.LineLength {
		return elements.Set{}, fmt.Errorf("short TLE lines: %d/%d columns", len(line1), len(line2))
	}
	for _, l := range []string{line1, line2} {
		if want := int(l[68] - '0'); want != elements.Checksum(l) {
			return elements.Set{}, fmt.Errorf("%w: line %c has %d, computed %d", ErrChecksum, l[0], want, elements.Checksum(l))
		}
	}

	p := fieldParser{}
	set := elements.Set{
		Name:                    name,
		NORADID:                 p.int("norad id", line1[2:7]),
		Classification:          strings.TrimSpace(line1[7:8]),
		InternationalDesignator: strings.TrimSpace(line1[9:17]),
		MeanMotionDot:           p.float("mean motion dot", line1[33:43]),
		MeanMotionDDot:          p.exponent("mean motion ddot", line1[44:52]),
		Drag:                    p.exponent("drag term", line1[53:61]),
		EphemerisType:           p.int("ephemeris type", line1[62:63]),
		ElementSetNumber:        p.int("element set number", line1[64:68]),
		Inclination:             p.float("inclination", line2[8:16]),
		RightAscension:          p.float("right ascension", line2[17:25]),
		Eccentricity:            p.float("eccentricity", "."+strings.TrimSpace(line2[26:33])),
		ArgumentOfPerigee:       p.float("argument of perigee", line2[34:42]),
		MeanAnomaly:             p.float("mean anomaly", line2[43:51]),
		MeanMotion:              p.float("mean motion", line2[52:63]),
		RevolutionNumber:        p.int("revolution number", line2[63:68]),
	}
	if p.err != nil {
		return elements.Set{}, p.err
	}
	if id2 := p.int("line 2 norad id", line2[2:7]); p.err == nil && id2 != set.NORADID {
		return elements.Set{}, fmt.Errorf("norad id mismatch: line 1 %d, line 2 %d", set.NORADID, id2)
	}

	epoch, err := parseEpoch(strings.TrimSpace(line1[18:32]))
	if err != nil {
		return elements.Set{}, err
	}
	set.Epoch = epoch

	if err := set.Validate(); err != nil {
		return elements.Set{}, err
	}
	return set, nil
}

// fieldParser keeps the first error across a run of column conversions.
type fieldParser struct {
	err error
}

func (p *fieldParser) int(field, s string) int {
	s = strings.TrimSpace(s)
	if p.err != nil || s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		p.err = fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	return n
}

func (p *fieldParser) float(field, s string) float64 {
	s = strings.TrimSpace(s)
	if p.err != nil || s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.err = fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	return v
}

// exponent decodes the assumed-decimal form " 12345-3" = 0.12345e-3.
func (p *fieldParser) exponent(field, s string) float64 {
	if p.err != nil {
		return 0
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	sign := 1.0
	switch s[0] {
	case '-':
		sign = -1
		s = s[1:]
	case '+':
		s = s[1:]
	}
	cut := strings.LastIndexAny(s, "+-")
	if cut <= 0 {
		p.err = fmt.Errorf("invalid %s %q: missing exponent", field, s)
		return 0
	}
	mant, err := strconv.ParseFloat("0."+strings.TrimSpace(s[:cut]), 64)
	if err != nil {
		p.err = fmt.Errorf("invalid %s %q: %w", field, s, err)
		return 0
	}
	exp, err := strconv.Atoi(s[cut:])
	if err != nil {
		p.err = fmt.Errorf("invalid %s %q: %w", field, s, err)
		return 0
	}
	return sign * mant * math.Pow(10, float64(exp))
}

// parseEpoch converts a TLE epoch string in YYDDD.DDDDDDDD format to time.Time.
// Year 00-56 → 2000s, 57-99 → 1900s.
func parseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch string too short: %q", s)
	}

	yearStr := s[:2]
	dayStr := s[2:]

	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q: %w", yearStr, err)
	}

	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	dayOfYear, err := strconv.ParseFloat(dayStr, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", dayStr, err)
	}
	if dayOfYear < 1 || dayOfYear >= 367 {
		return time.Time{}, fmt.Errorf("epoch day %g out of range", dayOfYear)
	}

	// dayOfYear is 1-based: day 1 = Jan 1.
	t := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return t.Add(time.Duration((dayOfYear - 1) * float64(24*time.Hour))), nil
}
