package api

import (
	"net/http"
	"testing"

	"github.com/pulsewatch/sentinel/internal/config"
	"github.com/pulsewatch/sentinel/internal/db"
	"github.com/pulsewatch/sentinel/internal/engine"
	"github.com/pulsewatch/sentinel/internal/events"
	"github.com/pulsewatch/sentinel/internal/incident"
	"github.com/pulsewatch/sentinel/internal/scheduler"
	"github.com/pulsewatch/sentinel/internal/state"
)

// newTestEngine wires a bare engine against the given store, with no
// verifier and no notifier, matching how a scheduler built against an
// in-memory test store would assemble one.
func newTestEngine(store *db.Store) *engine.Engine {
	return engine.New(
		state.NewStore(),
		nil,
		incident.NewManager(db.IncidentAdapter{Store: store}),
		events.NewPublisher(),
		nil,
		nil,
	)
}

// setupTest builds a full store, engine, auth handler, and router wired
// together the way cmd/sentineld assembles them, for handler tests that
// need the real middleware chain.
func setupTest(t *testing.T) (*MonitorHandler, *AuthHandler, http.Handler, *db.Store) {
	t.Helper()

	store, err := db.NewStore(db.NewTestConfig())
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}

	eng := newTestEngine(store)
	cfg := config.Default()
	sched := scheduler.New(store, eng, cfg.Scheduler)

	monitorH := NewMonitorHandler(store, eng)
	authH := NewAuthHandler(store, &cfg, NewLoginRateLimiter())
	router := NewRouter(store, eng, sched, &cfg)

	return monitorH, authH, router, store
}
