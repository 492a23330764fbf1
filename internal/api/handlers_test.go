package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/pulsewatch/sentinel/internal/db"
)

func TestUpdateMonitor(t *testing.T) {
	monitorH, _, _, s := setupTest(t)

	// Seed monitor
	if err := s.CreateMonitor(db.Monitor{ID: "m1", GroupID: "g-default", Name: "Old", URL: "http://old.com", Interval: 60}); err != nil {
		t.Fatalf("Failed to create monitor: %v", err)
	}

	// Request Update
	payload := map[string]interface{}{
		"name":     "New",
		"url":      "http://new.com",
		"interval": 300,
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest("PUT", "/api/monitors/m1", bytes.NewBuffer(body))
	w := httptest.NewRecorder()

	r := chi.NewRouter()
	r.Put("/api/monitors/{id}", monitorH.UpdateMonitor)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d. Body: %s", w.Code, w.Body.String())
	}

	// Verify DB
	monitors, _ := s.GetMonitors()
	var m db.Monitor
	found := false
	for _, mon := range monitors {
		if mon.ID == "m1" {
			m = mon
			found = true
			break
		}
	}

	if !found {
		t.Fatal("Monitor m1 not found in DB")
	}

	if m.Name != "New" {
		t.Errorf("Name not updated, got %s", m.Name)
	}
	if m.Interval != 300 {
		t.Errorf("Interval not updated, got %d", m.Interval)
	}
}

func TestUpdateMonitor_NotFound(t *testing.T) {
	monitorH, _, _, _ := setupTest(t)

	payload := map[string]interface{}{"name": "New", "url": "http://new.com"}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest("PUT", "/api/monitors/missing", bytes.NewBuffer(body))
	w := httptest.NewRecorder()

	r := chi.NewRouter()
	r.Put("/api/monitors/{id}", monitorH.UpdateMonitor)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d. Body: %s", w.Code, w.Body.String())
	}
}
