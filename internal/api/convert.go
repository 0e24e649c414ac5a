package api

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/star/skypass/internal/passes"
	"github.com/star/skypass/internal/solar"
	"github.com/star/skypass/internal/timesys"
	"github.com/star/skypass/internal/transform"
	"gonum.org/v1/gonum/spatial/r3"
)

func fromVec(v r3.Vec) passes.Vector { return passes.Vector{X: v.X, Y: v.Y, Z: v.Z} }

// convertEpochDays reports the day counts and Earth orientation the model
// derives for ?time= (RFC 3339, default now). ?mode= selects the time-of-day
// handling and defaults to the model's.
func (h *handlers) convertEpochDays(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	at := time.Now().UTC().Truncate(time.Second)
	if s := q.Get("time"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid time: "+err.Error())
			return
		}
		at = t.UTC()
	}

	model := h.deps.Searcher.Model()
	if s := q.Get("mode"); s != "" {
		mode, ok := timesys.ParseMode(s)
		if !ok {
			writeError(w, http.StatusBadRequest, "mode must be truncated or continuous")
			return
		}
		model.TimeOfDay = mode
	}

	y, mo, d := at.Date()
	days := model.EpochDays(at)
	writeJSON(w, http.StatusOK, map[string]any{
		"time":              at,
		"mode":              model.TimeOfDay.String(),
		"epoch_days":        days,
		"julian_day_number": timesys.JulianDayNumber(y, int(mo), d),
		"julian_date":       timesys.JulianDate(at),
		"rotation_angle":    model.RotationAngle(at),
		"sun_direction":     fromVec(solar.Direction(days, model)),
	})
}

// convertGeodetic converts ?lat=&lon=[&height=] to rectangular coordinates,
// or ?x=&y=&z= (meters) to geodetic.
func (h *handlers) convertGeodetic(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	model := h.deps.Searcher.Model()

	if q.Has("x") || q.Has("y") || q.Has("z") {
		v, err := vectorFromQuery(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"rectangular_m": fromVec(v),
			"geodetic":      model.RectangularToGeodetic(v),
		})
		return
	}

	g, err := observerFromQuery(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"geodetic":      g,
		"rectangular_m": fromVec(model.GeodeticToRectangular(g)),
	})
}

// convertAzEl returns the ENU vector and look angles from observer
// ?lat=&lon=[&height=] to the Earth-fixed target ?x=&y=&z= (meters).
func (h *handlers) convertAzEl(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	g, err := observerFromQuery(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	target, err := vectorFromQuery(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	enu := h.deps.Searcher.Model().ENUFromRectangular(g, target)
	look, err := transform.AzElRangeFromENU(enu)
	if errors.Is(err, transform.ErrZeroRange) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"observer": g,
		"enu":      enu,
		"look":     newLookAngles(look),
	})
}

func vectorFromQuery(q url.Values) (r3.Vec, error) {
	var out [3]float64
	for i, name := range []string{"x", "y", "z"} {
		f, err := queryFloat(q, name, 0, true)
		if err != nil {
			return r3.Vec{}, err
		}
		out[i] = f
	}
	return r3.Vec{X: out[0], Y: out[1], Z: out[2]}, nil
}
