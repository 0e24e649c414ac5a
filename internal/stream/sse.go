// Package stream implements Server-Sent Events (SSE) live tracking of one
// catalog object from one observer. Every step the object is propagated to
// the current instant and classified with the same predicates a pass search
// uses.
//
// SSE message format:
//
//	data: {"type":"look","t":"2024-04-10T20:00:00Z","visible":true,...}\n\n
//
// The first message is always metadata:
//
//	data: {"type":"metadata","norad_id":25544,"element_epoch":"...","tle_age_seconds":1800}\n\n
//
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval without data.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/star/skypass/internal/elements"
	"github.com/star/skypass/internal/httputil"
	"github.com/star/skypass/internal/metrics"
	"github.com/star/skypass/internal/propagation"
	"github.com/star/skypass/internal/tle"
	"github.com/star/skypass/internal/transform"
	"github.com/star/skypass/internal/visibility"
)

// Config holds streaming limits.
type Config struct {
	MaxConcurrentPerIP int           // default 10
	MaxConcurrent      int           // default 1000
	KeepaliveInterval  time.Duration // default 30s
	TrustProxy         bool
}

// Target selects what to track and how often.
type Target struct {
	NORADID  int
	Observer transform.Geodetic
	Step     time.Duration
}

// Handler manages SSE tracking connections.
type Handler struct {
	catalog *propagation.Catalog
	store   *tle.Store
	eval    visibility.Evaluator
	config  Config
	limiter *httputil.Limiter
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandler creates a tracking handler over the catalog.
func NewHandler(catalog *propagation.Catalog, store *tle.Store, model transform.Model, config Config, logger *slog.Logger) *Handler {
	if config.MaxConcurrentPerIP < 1 {
		config.MaxConcurrentPerIP = 10
	}
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = 1000
	}
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	return &Handler{
		catalog: catalog,
		store:   store,
		eval:    visibility.New(model),
		config:  config,
		limiter: httputil.NewLimiter(config.MaxConcurrentPerIP, config.MaxConcurrent),
		logger:  logger,
		now:     time.Now,
	}
}

// Serve streams look messages for target until the client disconnects.
// Lookup failures are reported as JSON errors before the stream starts.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request, target Target) {
	entry, prop, err := h.catalog.Get(target.NORADID)
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

	// Rate limiting: enforce concurrent stream limit per IP.
	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if !h.limiter.Acquire(ip) {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"current_count", h.limiter.Count(ip),
		)
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return
	}

	metrics.IncStreamsActive()
	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"norad_id", target.NORADID,
		"step_seconds", target.Step.Seconds(),
	)

	c := &client{w: w, logger: h.logger}
	defer func() {
		h.limiter.Release(ip)
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"norad_id", target.NORADID,
			"messages", c.messagesSent,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)

	// The controller reaches the connection through middleware wrappers.
	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		h.logger.Warn("streaming not supported", "remote_ip", ip, "error", err)
		return
	}
	// Clear the server's WriteTimeout for this long-lived connection.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}
	c.rc = rc

	// Jittered retry interval (3-7s) so clients do not reconnect in lockstep
	// after a restart.
	if err := c.write(fmt.Sprintf("retry: %d\n\n", 3000+rand.Intn(4000))); err != nil {
		return
	}

	if err := c.sendJSON(h.metadata(entry)); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
		return
	}

	ticker := time.NewTicker(target.Step)
	defer ticker.Stop()
	keepalive := time.NewTicker(h.config.KeepaliveInterval)
	defer keepalive.Stop()

	send := func() bool {
		msg := h.look(entry.Elements, prop, target.Observer, h.now().UTC())
		if msg.Error != "" {
			metrics.IncStreamErrors("propagation")
		}
		if err := c.sendJSON(msg); err != nil {
			metrics.IncStreamErrors("send_error")
			h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
			return false
		}
		keepalive.Reset(h.config.KeepaliveInterval)
		return true
	}

	if !send() {
		return
	}
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !send() {
				return
			}
		case <-keepalive.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

func (h *Handler) metadata(entry tle.Entry) metadataMessage {
	msg := metadataMessage{
		Type:         "metadata",
		NORADID:      entry.NORADID(),
		Name:         entry.Elements.Label(),
		ElementEpoch: entry.Elements.Epoch.UTC().Format(time.RFC3339),
		TLEAge:       -1,
	}
	if ds := h.store.Get(); ds != nil {
		msg.DatasetFetched = ds.FetchedAt.UTC().Format(time.RFC3339)
		msg.TLEAge = int(h.store.Age(h.now()).Seconds())
	}
	return msg
}

// look propagates to t and classifies the result from observer.
func (h *Handler) look(set elements.Set, prop propagation.Propagator, observer transform.Geodetic, t time.Time) lookMessage {
	minutes := set.MinutesSinceEpoch(t)
	msg := lookMessage{
		Type:              "look",
		T:                 t.Format(time.RFC3339),
		MinutesSinceEpoch: minutes,
	}

	inertial, err := prop.Propagate(minutes)
	if err != nil {
		msg.Error = err.Error()
		return msg
	}

	m := h.eval.Model
	v := h.eval.Classify(inertial, observer, t)
	msg.Visible = v.Visible()
	msg.AboveHorizon = v.AboveHorizon
	msg.ObserverDark = v.ObserverDark
	msg.SatelliteLit = v.SatelliteLit

	if look, err := transform.AzElRangeFromENU(v.ENU); err == nil {
		msg.AzimuthDeg = look.AzimuthDeg()
		msg.ElevationDeg = look.ElevationDeg()
		msg.RangeM = look.Range
	}
	sub := m.RectangularToGeodetic(m.ToRotating(t, inertial))
	msg.SubPoint = &sub
	return msg
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// SSE message payload types.

type metadataMessage struct {
	Type           string `json:"type"`
	NORADID        int    `json:"norad_id"`
	Name           string `json:"name"`
	ElementEpoch   string `json:"element_epoch"`
	DatasetFetched string `json:"dataset_fetched_at,omitempty"`
	TLEAge         int    `json:"tle_age_seconds"`
}

type lookMessage struct {
	Type              string              `json:"type"`
	T                 string              `json:"t"`
	MinutesSinceEpoch float64             `json:"minutes_since_epoch"`
	Visible           bool                `json:"visible"`
	AboveHorizon      bool                `json:"above_horizon"`
	ObserverDark      bool                `json:"observer_dark"`
	SatelliteLit      bool                `json:"satellite_lit"`
	AzimuthDeg        float64             `json:"azimuth_deg"`
	ElevationDeg      float64             `json:"elevation_deg"`
	RangeM            float64             `json:"range_m"`
	SubPoint          *transform.Geodetic `json:"sub_point,omitempty"`
	Error             string              `json:"error,omitempty"`
}
