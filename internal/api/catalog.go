package api

import (
	"net/http"
	"time"

	"github.com/star/skypass/internal/propagation"
	"github.com/star/skypass/internal/tle"
)

type catalogMetadata struct {
	Source     string         `json:"source"`
	FetchedAt  time.Time      `json:"fetched_at"`
	EpochRange tle.EpochRange `json:"epoch_range"`
	Count      int            `json:"count"`
	AgeSeconds float64        `json:"age_seconds"`
}

func metadataOf(ds *tle.Dataset, now time.Time) catalogMetadata {
	return catalogMetadata{
		Source:     ds.Source,
		FetchedAt:  ds.FetchedAt,
		EpochRange: ds.EpochRange,
		Count:      len(ds.Satellites),
		AgeSeconds: now.Sub(ds.FetchedAt).Seconds(),
	}
}

func (h *handlers) tleMetadata(w http.ResponseWriter, r *http.Request) {
	if h.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, propagation.ErrNoCatalog.Error())
		return
	}
	ds := h.deps.Store.Get()
	if ds == nil {
		writeError(w, http.StatusServiceUnavailable, propagation.ErrNoCatalog.Error())
		return
	}
	writeJSON(w, http.StatusOK, metadataOf(ds, time.Now()))
}

// tleFetch forces a catalog refresh.
func (h *handlers) tleFetch(w http.ResponseWriter, r *http.Request) {
	if h.deps.Refresher == nil {
		writeError(w, http.StatusForbidden, "TLE fetching is disabled")
		return
	}
	ds, err := h.deps.Refresher.Refresh(r.Context())
	if err != nil {
		h.logger.Warn("manual TLE refresh failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, metadataOf(ds, time.Now()))
}
