// Package passes scans a window of whole minutes for instants at which a
// satellite is visible from a ground observer.
package passes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/star/skypass/internal/elements"
	"github.com/star/skypass/internal/metrics"
	"github.com/star/skypass/internal/propagation"
	"github.com/star/skypass/internal/transform"
	"github.com/star/skypass/internal/visibility"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/star/skypass/internal/passes"

var (
	// ErrNoElements is returned when a request carries no element set.
	ErrNoElements = errors.New("no orbital elements")
	// ErrInvalidDuration is returned for non-positive or oversized windows.
	ErrInvalidDuration = errors.New("invalid search duration")
	// ErrInvalidObserver is returned for latitudes outside [-90, 90] or
	// non-finite coordinates.
	ErrInvalidObserver = errors.New("invalid observer position")
)

// Mode selects what a search returns.
type Mode int

const (
	// ModeAngles returns look angles at visible minutes only.
	ModeAngles Mode = iota
	// ModePositions returns the full position series with visibility flags.
	ModePositions
)

func (m Mode) String() string {
	if m == ModePositions {
		return "positions"
	}
	return "angles"
}

// ParseMode parses "angles" or "positions"; empty means angles.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "angles":
		return ModeAngles, nil
	case "positions":
		return ModePositions, nil
	}
	return ModeAngles, fmt.Errorf("unknown search mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// Clock returns the current time.
type Clock func() time.Time

// Request describes one search.
type Request struct {
	Elements *elements.Set
	Observer transform.Geodetic
	Days     float64
	Mode     Mode

	// Propagator overrides construction from Elements. Elements is still
	// required for its epoch.
	Propagator propagation.Propagator

	// Budget bounds wall-clock time; zero means unbounded.
	Budget time.Duration
	// Stop is polled once per minute offset; returning true ends the scan.
	Stop func() bool
}

// Sample is one minute of search output. In ModeAngles only visible minutes
// are returned and Look is always set. In ModePositions every propagated
// minute is returned.
type Sample struct {
	Time     time.Time            `json:"time"`
	Offset   int64                `json:"offset_minutes"`
	Visible  bool                 `json:"visible"`
	Look     *transform.AzElRange `json:"look,omitempty"`
	Inertial *Vector              `json:"inertial_m,omitempty"`
	Rotating *Vector              `json:"rotating_m,omitempty"`
	Geodetic *transform.Geodetic  `json:"geodetic,omitempty"`
}

// Vector is a JSON-friendly rectangular vector in meters.
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Result is the outcome of a search.
type Result struct {
	ID                 string    `json:"search_id"`
	Reference          time.Time `json:"reference"`
	EpochOffsetMinutes int64     `json:"epoch_offset_minutes"`
	Mode               Mode      `json:"mode"`
	Requested          int       `json:"requested_minutes"`
	Evaluated          int       `json:"evaluated_minutes"`
	Failures           int       `json:"failures"`
	Truncated          bool      `json:"truncated"`
	Samples            []Sample  `json:"samples"`
}

// Searcher runs visibility searches under one Earth model.
type Searcher struct {
	model   transform.Model
	eval    visibility.Evaluator
	engine  *propagation.Engine
	logger  *slog.Logger
	tracer  trace.Tracer
	clock   Clock
	maxDays float64
	newProp func(elements.Set) (propagation.Propagator, error)
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithClock replaces time.Now as the source of the reference instant.
func WithClock(c Clock) Option { return func(s *Searcher) { s.clock = c } }

// WithMaxDays bounds the accepted search window.
func WithMaxDays(d float64) Option { return func(s *Searcher) { s.maxDays = d } }

// WithPropagatorFactory replaces the SGP4 backend.
func WithPropagatorFactory(f func(elements.Set) (propagation.Propagator, error)) Option {
	return func(s *Searcher) { s.newProp = f }
}

// NewSearcher creates a Searcher.
func NewSearcher(model transform.Model, engine *propagation.Engine, logger *slog.Logger, opts ...Option) *Searcher {
	s := &Searcher{
		model:   model,
		eval:    visibility.New(model),
		engine:  engine,
		logger:  logger,
		tracer:  otel.Tracer(tracerName),
		clock:   time.Now,
		maxDays: 30,
		newProp: func(set elements.Set) (propagation.Propagator, error) {
			return propagation.NewSGP4Propagator(set)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Model returns the Earth model the searcher evaluates under.
func (s *Searcher) Model() transform.Model { return s.model }

// MaxDays returns the largest accepted window.
func (s *Searcher) MaxDays() float64 { return s.maxDays }

func (s *Searcher) validate(req Request) error {
	if req.Elements == nil {
		return ErrNoElements
	}
	if !(req.Days > 0) || req.Days > s.maxDays {
		return fmt.Errorf("%w: %g days (allowed (0, %g])", ErrInvalidDuration, req.Days, s.maxDays)
	}
	if int(req.Days*1440) < 1 {
		return fmt.Errorf("%w: %g days is under one minute", ErrInvalidDuration, req.Days)
	}
	o := req.Observer
	if math.IsNaN(o.LatDeg) || math.IsInf(o.LonDeg, 0) || math.IsNaN(o.LonDeg) ||
		math.IsNaN(o.HeightM) || math.IsInf(o.HeightM, 0) || o.LatDeg < -90 || o.LatDeg > 90 {
		return fmt.Errorf("%w: %+v", ErrInvalidObserver, o)
	}
	return nil
}

// FindVisible scans req.Days·1440 whole minutes starting at the current time.
//
// The clock is read once. Offsets run from 0 up to but excluding the window
// length, and each is fed to the propagator as minutes since the element
// epoch. Minutes whose propagation fails are skipped and counted. When the
// budget, Stop or ctx ends the scan early the partial result is returned
// with Truncated set; a cancelled ctx also returns its error.
func (s *Searcher) FindVisible(ctx context.Context, req Request) (*Result, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	start := time.Now()
	reference := s.clock().UTC().Truncate(time.Second)
	id := uuid.NewString()

	ctx, span := s.tracer.Start(ctx, "passes.FindVisible",
		trace.WithAttributes(
			attribute.String("search.id", id),
			attribute.Int("satellite.norad_id", req.Elements.NORADID),
			attribute.Float64("search.days", req.Days),
			attribute.String("search.mode", req.Mode.String()),
		),
	)
	defer span.End()

	prop := req.Propagator
	if prop == nil {
		p, err := s.newProp(*req.Elements)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "propagator init")
			metrics.RecordSearch(req.Mode.String(), "error", time.Since(start), 0)
			return nil, fmt.Errorf("initialize propagator: %w", err)
		}
		prop = p
	}

	epochOffset := propagation.MinutesBetween(req.Elements.Epoch, reference)
	offsets := propagation.Offsets(int(req.Days * 1440))

	samples, truncated := s.engine.PropagateUntil(ctx, prop, reference, epochOffset, offsets, s.stopFunc(start, req))

	result := &Result{
		ID:                 id,
		Reference:          reference,
		EpochOffsetMinutes: epochOffset,
		Mode:               req.Mode,
		Requested:          len(offsets),
		Evaluated:          len(samples),
		Truncated:          truncated,
	}
	s.collect(result, samples, req)

	visible := 0
	for _, smp := range result.Samples {
		if smp.Visible {
			visible++
		}
	}

	outcome := "ok"
	if truncated {
		outcome = "truncated"
	}
	duration := time.Since(start)
	metrics.RecordSearch(req.Mode.String(), outcome, duration, visible)

	span.SetAttributes(
		attribute.Int("search.evaluated", result.Evaluated),
		attribute.Int("search.visible", visible),
		attribute.Int("search.failures", result.Failures),
		attribute.Bool("search.truncated", truncated),
	)

	s.logger.Info("search complete",
		"search_id", id,
		"norad_id", req.Elements.NORADID,
		"mode", req.Mode.String(),
		"reference", reference.Format(time.RFC3339),
		"epoch_offset_minutes", epochOffset,
		"evaluated", result.Evaluated,
		"visible", visible,
		"failures", result.Failures,
		"truncated", truncated,
		"duration_ms", duration.Milliseconds(),
	)

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "cancelled")
		return result, fmt.Errorf("search %s: %w", id, err)
	}
	return result, nil
}

func (s *Searcher) stopFunc(start time.Time, req Request) propagation.StopFunc {
	if req.Budget <= 0 && req.Stop == nil {
		return nil
	}
	return func() bool {
		if req.Budget > 0 && time.Since(start) > req.Budget {
			return true
		}
		return req.Stop != nil && req.Stop()
	}
}

// collect classifies propagated samples in offset order.
func (s *Searcher) collect(result *Result, samples []propagation.Sample, req Request) {
	obs := s.model.NewObserver(req.Observer)
	result.Samples = make([]Sample, 0)

	for _, ps := range samples {
		if ps.Err != nil {
			result.Failures++
			level := slog.LevelDebug
			if result.Failures == 1 {
				level = slog.LevelWarn
			}
			s.logger.Log(context.Background(), level, "skipping minute after propagation failure",
				"search_id", result.ID,
				"norad_id", req.Elements.NORADID,
				"offset_minutes", ps.Offset,
				"error", ps.Err,
			)
			continue
		}

		verdict := s.eval.ClassifyFrom(ps.Inertial, obs, ps.Time)
		visible := verdict.Visible()

		switch req.Mode {
		case ModeAngles:
			if !visible {
				continue
			}
			look, err := transform.AzElRangeFromENU(verdict.ENU)
			if err != nil {
				s.logger.Debug("dropping visible minute without look angles",
					"search_id", result.ID,
					"norad_id", req.Elements.NORADID,
					"offset_minutes", ps.Offset,
					"error", err,
				)
				continue
			}
			result.Samples = append(result.Samples, Sample{
				Time:    ps.Time,
				Offset:  ps.Offset,
				Visible: true,
				Look:    &look,
			})

		case ModePositions:
			rot := s.model.ToRotating(ps.Time, ps.Inertial)
			geo := s.model.RectangularToGeodetic(rot)
			smp := Sample{
				Time:     ps.Time,
				Offset:   ps.Offset,
				Visible:  visible,
				Inertial: &Vector{X: ps.Inertial.X, Y: ps.Inertial.Y, Z: ps.Inertial.Z},
				Rotating: &Vector{X: rot.X, Y: rot.Y, Z: rot.Z},
				Geodetic: &geo,
			}
			if look, err := transform.AzElRangeFromENU(verdict.ENU); err == nil {
				smp.Look = &look
			}
			result.Samples = append(result.Samples, smp)
		}
	}
}
