package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pulsewatch/sentinel/internal/config"
	"github.com/pulsewatch/sentinel/internal/db"
	"github.com/pulsewatch/sentinel/internal/engine"
	"github.com/pulsewatch/sentinel/internal/events"
	"github.com/pulsewatch/sentinel/internal/incident"
	"github.com/pulsewatch/sentinel/internal/probe"
	"github.com/pulsewatch/sentinel/internal/state"
	"github.com/pulsewatch/sentinel/internal/verification"
)

func newTestEngine(store *db.Store) *engine.Engine {
	verifier := verification.NewVerifier(verification.LocalFallbackProvider{
		Prober: func(ctx context.Context, req verification.Request) (verification.RegionResult, error) {
			res := probe.NewHTTPDriver().Probe(ctx, req.Host, 5*time.Second)
			return verification.RegionResult{Region: "local", IsUp: res.IsUp, CheckedAt: time.Now(), ErrorKind: res.ErrorKind}, nil
		},
	})
	return engine.New(state.NewStore(), verifier, incident.NewManager(db.IncidentAdapter{Store: store}), events.NewPublisher(), nil, nil)
}

func TestScheduler_SyncSchedulesActiveMonitor(t *testing.T) {
	store, err := db.NewStore(db.NewTestConfig())
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	if err := store.CreateMonitor(db.Monitor{
		ID:       "m-sched",
		GroupID:  "g-default",
		Name:     "Scheduled Monitor",
		URL:      ts.URL,
		Protocol: "HTTP",
		Active:   true,
		Interval: 1,
	}); err != nil {
		t.Fatalf("failed to create monitor: %v", err)
	}

	sched := New(store, newTestEngine(store), config.SchedulerConfig{WorkerCount: 2, QueueCapacity: 10})
	sched.Start()
	defer sched.Stop()

	time.Sleep(2500 * time.Millisecond)

	checks, err := store.GetMonitorChecks("m-sched", 10)
	if err != nil {
		t.Fatalf("failed to load checks: %v", err)
	}
	if len(checks) == 0 {
		t.Fatal("expected at least one recorded check after scheduling")
	}
	if checks[0].Status != "up" {
		t.Errorf("expected recorded status 'up', got %q", checks[0].Status)
	}
}

func TestScheduler_SyncSkipsInactiveMonitor(t *testing.T) {
	store, err := db.NewStore(db.NewTestConfig())
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}

	if err := store.CreateMonitor(db.Monitor{
		ID:       "m-paused",
		GroupID:  "g-default",
		Name:     "Paused Monitor",
		URL:      "http://127.0.0.1:1",
		Protocol: "HTTP",
		Active:   false,
		Interval: 1,
	}); err != nil {
		t.Fatalf("failed to create monitor: %v", err)
	}

	sched := New(store, newTestEngine(store), config.SchedulerConfig{WorkerCount: 1, QueueCapacity: 10})
	sched.Sync()

	sched.mu.RLock()
	_, scheduled := sched.monitors["m-paused"]
	sched.mu.RUnlock()

	if scheduled {
		t.Error("inactive monitor should not be scheduled")
	}
}

func TestScheduler_ResetClearsSchedule(t *testing.T) {
	store, err := db.NewStore(db.NewTestConfig())
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}

	if err := store.CreateMonitor(db.Monitor{
		ID:       "m-reset",
		GroupID:  "g-default",
		Name:     "Reset Monitor",
		URL:      "http://127.0.0.1:1",
		Protocol: "HTTP",
		Active:   true,
		Interval: 60,
	}); err != nil {
		t.Fatalf("failed to create monitor: %v", err)
	}

	sched := New(store, newTestEngine(store), config.SchedulerConfig{WorkerCount: 1, QueueCapacity: 10})
	sched.Sync()

	sched.mu.RLock()
	_, scheduled := sched.monitors["m-reset"]
	sched.mu.RUnlock()
	if !scheduled {
		t.Fatal("expected monitor to be scheduled before reset")
	}

	sched.Reset()

	sched.mu.RLock()
	count := len(sched.monitors)
	sched.mu.RUnlock()
	if count != 0 {
		t.Errorf("expected no scheduled monitors after Reset, got %d", count)
	}
}
