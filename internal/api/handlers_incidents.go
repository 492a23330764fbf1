package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/pulsewatch/sentinel/internal/db"
)

// IncidentHandler serves the incident feed: currently ongoing incidents
// plus resolved ones from the trailing lookback window.
type IncidentHandler struct {
	store *db.Store
}

func NewIncidentHandler(store *db.Store) *IncidentHandler {
	return &IncidentHandler{store: store}
}

// GetIncidents returns every ongoing incident plus those resolved within
// the last `days` (default 7).
func (h *IncidentHandler) GetIncidents(w http.ResponseWriter, r *http.Request) {
	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			days = parsed
		}
	}

	since := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	incidents, err := h.store.GetIncidents(since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch incidents")
		return
	}
	if incidents == nil {
		incidents = []db.Incident{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"incidents": incidents})
}
