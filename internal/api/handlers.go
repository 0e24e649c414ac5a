// Package api exposes pass search and the supporting conversions over
// HTTP/JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/star/skypass/internal/elements"
	"github.com/star/skypass/internal/httputil"
	"github.com/star/skypass/internal/passes"
	"github.com/star/skypass/internal/propagation"
	"github.com/star/skypass/internal/stream"
	"github.com/star/skypass/internal/tle"
	"github.com/star/skypass/internal/tracing"
	"github.com/star/skypass/internal/transform"
	"github.com/star/skypass/internal/visibility"
)

const maxRequestBytes = 1 << 20

type handlers struct {
	deps    Deps
	logger  *slog.Logger
	limiter *httputil.Limiter
}

// tleLines carries an element set in two-line form.
type tleLines struct {
	Name  string `json:"name"`
	Line1 string `json:"line1"`
	Line2 string `json:"line2"`
}

// elementsInput accepts either structured elements or TLE lines. TLE lines
// win when both are present.
type elementsInput struct {
	Elements *elements.Set `json:"elements,omitempty"`
	TLE      *tleLines     `json:"tle,omitempty"`
}

func (in elementsInput) resolve() (*elements.Set, error) {
	switch {
	case in.TLE != nil:
		set, err := tle.ParseLines(in.TLE.Name, in.TLE.Line1, in.TLE.Line2)
		if err != nil {
			return nil, fmt.Errorf("parsing TLE: %w", err)
		}
		return &set, nil
	case in.Elements != nil:
		if err := in.Elements.Validate(); err != nil {
			return nil, err
		}
		return in.Elements, nil
	}
	return nil, passes.ErrNoElements
}

type searchInput struct {
	elementsInput
	Observer *transform.Geodetic `json:"observer"`
	Days     float64             `json:"days"`
	Mode     string              `json:"mode"`
}

type searchResponse struct {
	*passes.Result
	Windows []passes.Window `json:"windows"`
	TraceID string          `json:"trace_id,omitempty"`
}

type propagateResponse struct {
	*passes.Result
	GroundTrack []passes.GroundTrackPoint `json:"ground_track"`
	TraceID     string                    `json:"trace_id,omitempty"`
}

func (h *handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// positionsAllowed rejects position series longer than the configured cap.
func (h *handlers) positionsAllowed(w http.ResponseWriter, days float64) bool {
	limit := h.deps.Limits.MaxPositions
	if limit <= 0 || days*1440 <= float64(limit) {
		return true
	}
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":         fmt.Sprintf("%g days exceeds the position budget", days),
		"max_positions": limit,
		"max_days":      float64(limit) / 1440,
	})
	return false
}

func (h *handlers) index(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "skypass",
		"endpoints": []string{
			"POST /api/v1/passes",
			"POST /api/v1/passes/batch",
			"GET /api/v1/passes/{norad_id}",
			"GET /api/v1/track/{norad_id}",
			"POST /api/v1/propagate",
			"POST /api/v1/visibility",
			"GET /api/v1/convert/epoch-days",
			"GET /api/v1/convert/geodetic",
			"GET /api/v1/convert/azel",
			"GET /api/v1/tle/metadata",
			"POST /api/v1/tle/fetch",
		},
	})
}

func (h *handlers) passes(w http.ResponseWriter, r *http.Request) {
	var in searchInput
	if !h.decode(w, r, &in) {
		return
	}
	req, ok := h.searchRequest(w, in)
	if !ok {
		return
	}
	if req.Mode == passes.ModePositions && !h.positionsAllowed(w, req.Days) {
		return
	}
	h.runSearch(w, r, req)
}

func (h *handlers) propagate(w http.ResponseWriter, r *http.Request) {
	var in searchInput
	if !h.decode(w, r, &in) {
		return
	}
	in.Mode = passes.ModePositions.String()
	req, ok := h.searchRequest(w, in)
	if !ok {
		return
	}
	if !h.positionsAllowed(w, req.Days) {
		return
	}

	res, ok := h.search(r.Context(), w, req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, propagateResponse{
		Result:      res,
		GroundTrack: passes.GroundTrack(res.Samples),
		TraceID:     tracing.TraceID(r.Context()),
	})
}

// track streams live look angles for a catalog object over SSE.
// ?step= is the interval in whole seconds, 1 to 60, default 10.
func (h *handlers) track(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("norad_id"))
	if err != nil || id < 0 {
		writeError(w, http.StatusBadRequest, "invalid norad_id")
		return
	}
	if h.deps.Tracker == nil {
		writeError(w, http.StatusServiceUnavailable, propagation.ErrNoCatalog.Error())
		return
	}

	q := r.URL.Query()
	obs, err := observerFromQuery(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	step := 10
	if s := q.Get("step"); s != "" {
		step, err = strconv.Atoi(s)
		if err != nil || step < 1 || step > 60 {
			writeError(w, http.StatusBadRequest, "invalid step parameter, must be 1-60")
			return
		}
	}

	h.deps.Tracker.Serve(w, r, stream.Target{
		NORADID:  id,
		Observer: obs,
		Step:     time.Duration(step) * time.Second,
	})
}

func (h *handlers) catalogPasses(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("norad_id"))
	if err != nil || id < 0 {
		writeError(w, http.StatusBadRequest, "invalid norad_id")
		return
	}
	if h.deps.Catalog == nil {
		writeError(w, http.StatusServiceUnavailable, propagation.ErrNoCatalog.Error())
		return
	}

	q := r.URL.Query()
	obs, err := observerFromQuery(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	days, err := queryFloat(q, "days", 1, false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mode, err := passes.ParseMode(q.Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if mode == passes.ModePositions && !h.positionsAllowed(w, days) {
		return
	}

	entry, prop, err := h.deps.Catalog.Get(id)
	switch {
	case errors.Is(err, propagation.ErrNoCatalog):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case errors.Is(err, propagation.ErrUnknownObject):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	set := entry.Elements
	h.runSearch(w, r, passes.Request{
		Elements:   &set,
		Observer:   obs,
		Days:       days,
		Mode:       mode,
		Propagator: prop,
	})
}

type batchInput struct {
	Observer   *transform.Geodetic `json:"observer"`
	Days       float64             `json:"days"`
	Mode       string              `json:"mode"`
	Satellites []elementsInput     `json:"satellites"`
}

type batchItem struct {
	passes.BatchResult
	Windows []passes.Window `json:"windows,omitempty"`
}

func (h *handlers) batch(w http.ResponseWriter, r *http.Request) {
	var in batchInput
	if !h.decode(w, r, &in) {
		return
	}
	if in.Observer == nil {
		writeError(w, http.StatusBadRequest, "observer is required")
		return
	}
	if n := len(in.Satellites); n == 0 || n > h.deps.Limits.MaxBatch {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("satellites must hold 1 to %d entries, got %d", h.deps.Limits.MaxBatch, n))
		return
	}
	mode, err := passes.ParseMode(in.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if mode == passes.ModePositions && !h.positionsAllowed(w, in.Days*float64(len(in.Satellites))) {
		return
	}

	items := make([]batchItem, len(in.Satellites))
	var reqs []passes.Request
	var slots []int
	for i, sat := range in.Satellites {
		set, err := sat.resolve()
		if err != nil {
			items[i].Error = err.Error()
			continue
		}
		items[i].NORADID = set.NORADID
		reqs = append(reqs, passes.Request{
			Elements: set,
			Observer: *in.Observer,
			Days:     in.Days,
			Mode:     mode,
			Budget:   h.deps.Limits.Budget,
		})
		slots = append(slots, i)
	}

	for j, res := range h.deps.Searcher.FindVisibleBatch(r.Context(), reqs) {
		item := &items[slots[j]]
		item.BatchResult = res
		if res.Result != nil {
			item.Windows = passes.Windows(res.Result.Samples)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results":  items,
		"trace_id": tracing.TraceID(r.Context()),
	})
}

type visibilityInput struct {
	elementsInput
	Observer *transform.Geodetic `json:"observer"`
	Time     *time.Time          `json:"time"`
}

type visibilityResponse struct {
	Time              time.Time          `json:"time"`
	MinutesSinceEpoch float64            `json:"minutes_since_epoch"`
	Visible           bool               `json:"visible"`
	Verdict           visibility.Verdict `json:"verdict"`
	Look              *lookAngles        `json:"look,omitempty"`
	SubPoint          transform.Geodetic `json:"sub_point"`
	Observer          transform.Geodetic `json:"observer"`
	Elements          elements.Set       `json:"elements"`
}

// lookAngles reports an AzElRange in both radians and degrees.
type lookAngles struct {
	transform.AzElRange
	AzimuthDeg   float64 `json:"azimuth_deg"`
	ElevationDeg float64 `json:"elevation_deg"`
}

func newLookAngles(a transform.AzElRange) *lookAngles {
	return &lookAngles{AzElRange: a, AzimuthDeg: a.AzimuthDeg(), ElevationDeg: a.ElevationDeg()}
}

// visibility classifies a single instant, defaulting to now.
func (h *handlers) visibility(w http.ResponseWriter, r *http.Request) {
	var in visibilityInput
	if !h.decode(w, r, &in) {
		return
	}
	set, err := in.resolve()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.Observer == nil {
		writeError(w, http.StatusBadRequest, "observer is required")
		return
	}
	if err := validObserver(*in.Observer); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	at := time.Now().UTC().Truncate(time.Second)
	if in.Time != nil {
		at = in.Time.UTC()
	}

	prop, err := propagation.NewSGP4Propagator(*set)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	minutes := set.MinutesSinceEpoch(at)
	pos, err := prop.Propagate(minutes)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	model := h.deps.Searcher.Model()
	verdict := visibility.New(model).Classify(pos, *in.Observer, at)
	resp := visibilityResponse{
		Time:              at,
		MinutesSinceEpoch: minutes,
		Visible:           verdict.Visible(),
		Verdict:           verdict,
		SubPoint:          model.RectangularToGeodetic(model.ToRotating(at, pos)),
		Observer:          *in.Observer,
		Elements:          *set,
	}
	if look, err := transform.AzElRangeFromENU(verdict.ENU); err == nil {
		resp.Look = newLookAngles(look)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) searchRequest(w http.ResponseWriter, in searchInput) (passes.Request, bool) {
	set, err := in.resolve()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return passes.Request{}, false
	}
	if in.Observer == nil {
		writeError(w, http.StatusBadRequest, "observer is required")
		return passes.Request{}, false
	}
	mode, err := passes.ParseMode(in.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return passes.Request{}, false
	}
	return passes.Request{
		Elements: set,
		Observer: *in.Observer,
		Days:     in.Days,
		Mode:     mode,
	}, true
}

func (h *handlers) runSearch(w http.ResponseWriter, r *http.Request, req passes.Request) {
	res, ok := h.search(r.Context(), w, req)
	if !ok {
		return
	}
	windows := passes.Windows(res.Samples)
	if windows == nil {
		windows = []passes.Window{}
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Result:  res,
		Windows: windows,
		TraceID: tracing.TraceID(r.Context()),
	})
}

// search runs req under the configured budget and writes any error response.
func (h *handlers) search(ctx context.Context, w http.ResponseWriter, req passes.Request) (*passes.Result, bool) {
	req.Budget = h.deps.Limits.Budget
	res, err := h.deps.Searcher.FindVisible(ctx, req)
	if err == nil {
		return res, true
	}

	switch {
	case errors.Is(err, passes.ErrNoElements),
		errors.Is(err, passes.ErrInvalidDuration),
		errors.Is(err, passes.ErrInvalidObserver),
		errors.Is(err, elements.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Warn("search failed", "norad_id", req.Elements.NORADID, "error", err)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	}
	return nil, false
}

func validObserver(g transform.Geodetic) error {
	if math.IsNaN(g.LatDeg) || math.IsNaN(g.LonDeg) || math.IsNaN(g.HeightM) ||
		math.IsInf(g.LonDeg, 0) || math.IsInf(g.HeightM, 0) || g.LatDeg < -90 || g.LatDeg > 90 {
		return fmt.Errorf("%w: %+v", passes.ErrInvalidObserver, g)
	}
	return nil
}

func queryFloat(q url.Values, name string, def float64, required bool) (float64, error) {
	s := q.Get(name)
	if s == "" {
		if required {
			return 0, fmt.Errorf("%s is required", name)
		}
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid %s %q", name, s)
	}
	return f, nil
}

func observerFromQuery(q url.Values) (transform.Geodetic, error) {
	lat, err := queryFloat(q, "lat", 0, true)
	if err != nil {
		return transform.Geodetic{}, err
	}
	lon, err := queryFloat(q, "lon", 0, true)
	if err != nil {
		return transform.Geodetic{}, err
	}
	height, err := queryFloat(q, "height", 0, false)
	if err != nil {
		return transform.Geodetic{}, err
	}
	g := transform.Geodetic{LatDeg: lat, LonDeg: lon, HeightM: height}
	return g, validObserver(g)
}
