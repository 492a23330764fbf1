package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pulsewatch/sentinel/internal/db"
	"github.com/pulsewatch/sentinel/internal/engine"
	"github.com/pulsewatch/sentinel/internal/probe"
)

// MonitorHandler serves the monitor catalog CRUD surface plus the two
// seams real protocol-probe drivers (out of scope per spec.md §1) would
// use: submitting a probe result and reading back health statistics.
type MonitorHandler struct {
	store  *db.Store
	engine *engine.Engine
}

func NewMonitorHandler(store *db.Store, eng *engine.Engine) *MonitorHandler {
	return &MonitorHandler{store: store, engine: eng}
}

// MonitorRequest is the create/update DTO for a monitor's catalog entry.
type MonitorRequest struct {
	GroupID                 string `json:"groupId"`
	Name                    string `json:"name"`
	URL                     string `json:"url"`
	Protocol                string `json:"protocol"`
	Active                  bool   `json:"active"`
	Interval                int    `json:"interval"`
	TimeoutSeconds          int    `json:"timeoutSeconds"`
	ConfirmationThreshold   *int   `json:"confirmationThreshold,omitempty"`
	NotificationCooldownMin *int   `json:"notificationCooldownMinutes,omitempty"`
	DegradedThresholdMs     int64  `json:"degradedThresholdMs"`
	SSLExpiryThresholdDays  int    `json:"sslExpiryThresholdDays"`
	ExpectedStatusCode      int    `json:"expectedStatusCode"`
	ExpectedResponseTimeMs  int64  `json:"expectedResponseTimeMs"`
	RecoveryConfirmations   int    `json:"recoveryConfirmations"`
}

func (req MonitorRequest) toRow(id string) db.Monitor {
	return db.Monitor{
		ID:                      id,
		GroupID:                 req.GroupID,
		Name:                    req.Name,
		URL:                     req.URL,
		Protocol:                req.Protocol,
		Active:                  req.Active,
		Interval:                req.Interval,
		TimeoutSeconds:          req.TimeoutSeconds,
		ConfirmationThreshold:   req.ConfirmationThreshold,
		NotificationCooldownMin: req.NotificationCooldownMin,
		DegradedThresholdMs:     req.DegradedThresholdMs,
		SSLExpiryThresholdDays:  req.SSLExpiryThresholdDays,
		ExpectedStatusCode:      req.ExpectedStatusCode,
		ExpectedResponseTimeMs:  req.ExpectedResponseTimeMs,
		RecoveryConfirmations:   req.RecoveryConfirmations,
	}
}

// ListMonitors returns the full monitor catalog.
func (h *MonitorHandler) ListMonitors(w http.ResponseWriter, r *http.Request) {
	monitors, err := h.store.GetMonitors()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list monitors")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"monitors": monitors})
}

// CreateMonitor adds a monitor to the catalog. The scheduler picks it up
// on its next catalog sync.
func (h *MonitorHandler) CreateMonitor(w http.ResponseWriter, r *http.Request) {
	var req MonitorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Name == "" || req.URL == "" {
		writeError(w, http.StatusBadRequest, "name and url are required")
		return
	}

	row := req.toRow(uuid.NewString())
	if err := h.store.CreateMonitor(row); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create monitor")
		return
	}
	writeJSON(w, http.StatusCreated, row)
}

// UpdateMonitor edits an existing monitor's policy fields.
func (h *MonitorHandler) UpdateMonitor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req MonitorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	row := req.toRow(id)
	if err := h.store.UpdateMonitor(row); err != nil {
		if err == db.ErrMonitorNotFound {
			writeError(w, http.StatusNotFound, "monitor not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update monitor")
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// DeleteMonitor removes a monitor from the catalog and clears its
// in-memory engine state so a future monitor reusing the id doesn't
// inherit stale history.
func (h *MonitorHandler) DeleteMonitor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.DeleteMonitor(id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete monitor")
		return
	}
	h.engine.ClearStateHistory(id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

// GetMonitorHealth serves the spec.md §6 getHealthStatistics projection.
func (h *MonitorHandler) GetMonitorHealth(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			hours = parsed
		}
	}

	records, err := h.store.GetRecentCheckRecords(id, 500)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load check history")
		return
	}

	stats := h.engine.GetHealthStatistics(id, records, hours, time.Now())
	writeJSON(w, http.StatusOK, stats)
}

// probeResultRequest is the wire shape of spec.md §3's ProbeResult, plus
// the monitorId/checkId this HTTP seam needs that an in-process Probe
// interface call wouldn't.
type probeResultRequest struct {
	MonitorID      string `json:"monitorId"`
	CheckID        string `json:"checkId,omitempty"`
	IsUp           bool   `json:"isUp"`
	ResponseTimeMs int64  `json:"responseTimeMs"`
	StatusCode     int    `json:"statusCode,omitempty"`
	ErrorKind      string `json:"errorKind,omitempty"`
	ErrorMessage   string `json:"errorMessage,omitempty"`
	Meta           struct {
		Warning         string `json:"warning,omitempty"`
		KeywordMismatch bool   `json:"keywordMismatch,omitempty"`
		SSLInfo         *struct {
			Error           string    `json:"error,omitempty"`
			NotAfter        time.Time `json:"notAfter,omitempty"`
			DaysUntilExpiry int       `json:"daysUntilExpiry,omitempty"`
		} `json:"sslInfo,omitempty"`
	} `json:"meta"`
}

// SubmitProbeResult is the seam a real protocol-probe driver (out of
// scope per spec.md §1) would call: it turns an externally-produced
// ProbeResult into a tick through engine.DetermineHealthState, exactly as
// the scheduler's own worker pool does for in-process drivers.
func (h *MonitorHandler) SubmitProbeResult(w http.ResponseWriter, r *http.Request) {
	var req probeResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.MonitorID == "" {
		writeError(w, http.StatusBadRequest, "monitorId is required")
		return
	}

	row, err := h.store.GetMonitorByID(req.MonitorID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load monitor")
		return
	}
	if row == nil {
		writeError(w, http.StatusNotFound, "monitor not found")
		return
	}

	if req.CheckID == "" {
		req.CheckID = uuid.NewString()
	}

	result := probe.Result{
		CheckID:        req.CheckID,
		IsUp:           req.IsUp,
		ResponseTimeMs: req.ResponseTimeMs,
		StatusCode:     req.StatusCode,
		ErrorKind:      probe.NormalizeErrorKind(req.ErrorKind),
		ErrorMessage:   req.ErrorMessage,
		At:             time.Now(),
	}
	result.Meta.Warning = req.Meta.Warning
	result.Meta.KeywordMismatch = req.Meta.KeywordMismatch
	if req.Meta.SSLInfo != nil {
		result.Meta.SSLInfo = &probe.SSLInfo{
			Error:           req.Meta.SSLInfo.Error,
			NotAfter:        req.Meta.SSLInfo.NotAfter,
			DaysUntilExpiry: req.Meta.SSLInfo.DaysUntilExpiry,
		}
	}

	policy := row.ToPolicy()
	records, err := h.store.GetRecentCheckRecords(row.ID, 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load check history")
		return
	}

	decision, err := h.engine.DetermineHealthState(r.Context(), result, policy, records)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to evaluate probe result")
		return
	}

	if err := h.store.RecordCheck(row.ID, result, decision.FinalState); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to record check")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       decision.FinalState,
		"reason":       decision.Reason,
		"confirmed":    decision.Confirmed,
		"eventCursor":  decision.EventCursor,
		"flapping":     decision.FlapSuppressed,
	})
}
