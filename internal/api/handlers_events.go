package api

import (
	"net/http"
	"strconv"

	"github.com/pulsewatch/sentinel/internal/events"
)

// EventHandler serves the durable event stream's HTTP replay surface: the
// collaborator-facing seam for "downstream subscribers can resume after
// disconnect" from spec.md §4.8.
type EventHandler struct {
	publisher *events.Publisher
}

func NewEventHandler(publisher *events.Publisher) *EventHandler {
	return &EventHandler{publisher: publisher}
}

// GetEvents returns every event published after the given cursor,
// oldest first. A client resumes by passing back the highest cursor it
// has already processed.
func (h *EventHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	var after uint64
	if v := r.URL.Query().Get("after"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid after cursor")
			return
		}
		after = parsed
	}

	evts := h.publisher.Since(after)
	writeJSON(w, http.StatusOK, map[string]any{
		"events":       evts,
		"latestCursor": h.publisher.LatestCursor(),
	})
}
