// Command diag runs one visibility search from the command line and prints
// the pass windows. Each window is annotated with the apparent Sun altitude
// at the observer, computed from the Meeus solar and sidereal theories, so
// the simplified Earth model's darkness test can be compared with the real
// sky.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"runtime"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/meeus/v3/sidereal"
	"github.com/soniakeys/meeus/v3/solar"
	"github.com/soniakeys/unit"
	"github.com/star/skypass/internal/elements"
	"github.com/star/skypass/internal/passes"
	"github.com/star/skypass/internal/propagation"
	"github.com/star/skypass/internal/timesys"
	"github.com/star/skypass/internal/tle"
	"github.com/star/skypass/internal/transform"
)

func main() {
	var (
		tlePath  = flag.String("tle", "", "TLE catalog file (2LE or 3LE)")
		norad    = flag.Int("norad", 0, "catalog number to pick from -tle (default: first entry)")
		line1    = flag.String("line1", "", "TLE line 1")
		line2    = flag.String("line2", "", "TLE line 2")
		lat      = flag.Float64("lat", 0, "observer latitude, degrees north")
		lon      = flag.Float64("lon", 0, "observer longitude, degrees east")
		height   = flag.Float64("height", 0, "observer height above the ellipsoid, meters")
		days     = flag.Float64("days", 1, "search span in days")
		start    = flag.String("start", "", "reference time, RFC 3339 (default now)")
		modeName = flag.String("mode", "angles", "angles or positions")
		tod      = flag.String("time-of-day", "truncated", "truncated or continuous")
		workers  = flag.Int("workers", runtime.NumCPU(), "propagation workers")
		verbose  = flag.Bool("v", false, "print every sample")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	set, err := loadElements(*tlePath, *norad, *line1, *line2, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}

	mode, err := passes.ParseMode(*modeName)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(2)
	}
	model := transform.WGS84
	var ok bool
	if model.TimeOfDay, ok = timesys.ParseMode(*tod); !ok {
		fmt.Fprintf(os.Stderr, "ERROR: unknown time-of-day mode %q\n", *tod)
		os.Exit(2)
	}

	ref := time.Now().UTC()
	if *start != "" {
		ref, err = time.Parse(time.RFC3339, *start)
		if err != nil {
			fmt.Fprintln(os.Stderr, "ERROR: -start:", err)
			os.Exit(2)
		}
	}
	clock := func() time.Time { return ref }

	engine := propagation.NewEngine(propagation.Config{Workers: *workers}, logger)
	searcher := passes.NewSearcher(model, engine, logger, passes.WithClock(clock))

	observer := transform.Geodetic{LatDeg: *lat, LonDeg: *lon, HeightM: *height}
	res, err := searcher.FindVisible(context.Background(), passes.Request{
		Elements: &set,
		Observer: observer,
		Days:     *days,
		Mode:     mode,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}

	fmt.Printf("Object:     %s (NORAD %d) epoch %s\n", set.Label(), set.NORADID, set.Epoch.Format(time.RFC3339))
	fmt.Printf("Observer:   %.4f, %.4f, %.0f m\n", observer.LatDeg, observer.LonDeg, observer.HeightM)
	fmt.Printf("Reference:  %s (epoch offset %d min)\n", res.Reference.Format(time.RFC3339), res.EpochOffsetMinutes)
	fmt.Printf("Evaluated:  %d/%d minutes, %d failures, truncated=%v\n", res.Evaluated, res.Requested, res.Failures, res.Truncated)

	if *verbose {
		for _, s := range res.Samples {
			printSample(s)
		}
	}

	windows := passes.Windows(res.Samples)
	fmt.Printf("Windows:    %d\n", len(windows))
	for i, w := range windows {
		sunAlt := sunAltitude(w.Peak, observer)
		note := ""
		if sunAlt > -6 {
			note = "  (sky not dark)"
		}
		fmt.Printf("  %2d  %s  %3d min  peak %5.1f° az %5.1f°  range %7.1f km  sun %6.1f°%s\n",
			i+1, w.Start.Format("2006-01-02 15:04"), w.Minutes,
			w.PeakElevationDeg, w.PeakAzimuthDeg, w.MinRangeM/1000, sunAlt, note)
	}
}

func loadElements(path string, norad int, line1, line2 string, logger *slog.Logger) (elements.Set, error) {
	if path == "" {
		if line1 == "" || line2 == "" {
			return elements.Set{}, errors.New("either -tle or both -line1 and -line2 are required")
		}
		return tle.ParseLines("", line1, line2)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return elements.Set{}, fmt.Errorf("reading %s: %w", path, err)
	}
	entries, err := tle.Parse(bytes.NewReader(data), logger)
	if err != nil {
		return elements.Set{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(entries) == 0 {
		return elements.Set{}, fmt.Errorf("%s has no element sets", path)
	}
	if norad == 0 {
		return entries[0].Elements, nil
	}
	for _, e := range entries {
		if e.NORADID() == norad {
			return e.Elements, nil
		}
	}
	return elements.Set{}, fmt.Errorf("NORAD %d not found in %s", norad, path)
}

func printSample(s passes.Sample) {
	line := fmt.Sprintf("    %+6d  %s  visible=%-5v", s.Offset, s.Time.Format("2006-01-02 15:04"), s.Visible)
	if s.Look != nil {
		line += fmt.Sprintf("  el %5.1f° az %5.1f° range %7.1f km", s.Look.ElevationDeg(), s.Look.AzimuthDeg(), s.Look.Range/1000)
	}
	if s.Geodetic != nil {
		line += fmt.Sprintf("  sub %6.2f,%7.2f alt %6.1f km", s.Geodetic.LatDeg, s.Geodetic.LonDeg, s.Geodetic.HeightM/1000)
	}
	fmt.Println(line)
}

// sunAltitude returns the apparent altitude of the Sun in degrees for a
// spherical-Earth observer at t.
func sunAltitude(t time.Time, g transform.Geodetic) float64 {
	jd := julian.TimeToJD(t.UTC())
	ra, dec := solar.ApparentEquatorial(jd)
	gast := sidereal.Apparent(jd).Angle()

	lat := unit.AngleFromDeg(g.LatDeg)
	lst := gast + unit.AngleFromDeg(g.LonDeg)
	hourAngle := lst - unit.Angle(ra)

	sinAlt := lat.Sin()*dec.Sin() + lat.Cos()*dec.Cos()*hourAngle.Cos()
	return unit.Angle(math.Asin(transform.Clamp(sinAlt))).Deg()
}
