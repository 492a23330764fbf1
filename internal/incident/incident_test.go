package incident

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pulsewatch/sentinel/internal/state"
	"github.com/pulsewatch/sentinel/internal/verification"
)

type memStore struct {
	mu        sync.Mutex
	ongoing   map[string]*Incident
	created   []Incident
	resolved  []string
	findErr   error
	findCalls int
}

func newMemStore() *memStore {
	return &memStore{ongoing: make(map[string]*Incident)}
}

func (s *memStore) FindOngoing(ctx context.Context, monitorID string) (*Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.ongoing[monitorID], nil
}

func (s *memStore) Create(ctx context.Context, inc Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := inc
	s.ongoing[inc.MonitorID] = &cp
	s.created = append(s.created, inc)
	return nil
}

func (s *memStore) Resolve(ctx context.Context, id string, resolvedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for monitorID, inc := range s.ongoing {
		if inc.ID == id {
			delete(s.ongoing, monitorID)
			s.resolved = append(s.resolved, id)
			return nil
		}
	}
	return errors.New("not found")
}

func TestManager_OnConfirmedDown_OpensIncident(t *testing.T) {
	store := newMemStore()
	m := NewManager(store)

	inc, err := m.OnConfirmedDown(context.Background(), "mon1", state.StateDown, "server error", nil, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inc == nil {
		t.Fatal("expected a created incident")
	}
	if inc.Status != StatusOngoing {
		t.Errorf("expected ongoing status, got %s", inc.Status)
	}
	if len(store.created) != 1 {
		t.Errorf("expected exactly one incident created, got %d", len(store.created))
	}
}

func TestManager_OnConfirmedDown_DoesNotDuplicateOngoing(t *testing.T) {
	store := newMemStore()
	m := NewManager(store)

	first, _ := m.OnConfirmedDown(context.Background(), "mon1", state.StateDown, "cause1", nil, time.Now())
	second, err := m.OnConfirmedDown(context.Background(), "mon1", state.StateDegraded, "cause2", nil, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.ID != first.ID {
		t.Error("expected the existing ongoing incident to be returned, not a new one")
	}
	if len(store.created) != 1 {
		t.Errorf("expected only one incident ever created, got %d", len(store.created))
	}
}

func TestManager_OnConfirmedUp_ResolvesOngoing(t *testing.T) {
	store := newMemStore()
	m := NewManager(store)

	inc, _ := m.OnConfirmedDown(context.Background(), "mon1", state.StateDown, "cause", nil, time.Now())

	if err := m.OnConfirmedUp(context.Background(), "mon1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.resolved) != 1 || store.resolved[0] != inc.ID {
		t.Errorf("expected incident %s to be resolved, got %v", inc.ID, store.resolved)
	}
}

func TestManager_OnConfirmedUp_NoOpWithoutOngoing(t *testing.T) {
	store := newMemStore()
	m := NewManager(store)

	if err := m.OnConfirmedUp(context.Background(), "mon-never-down", time.Now()); err != nil {
		t.Fatalf("expected no-op to succeed, got error: %v", err)
	}
	if len(store.resolved) != 0 {
		t.Errorf("expected nothing resolved, got %v", store.resolved)
	}
}

func TestManager_FindOngoingRetriesOnTransientError(t *testing.T) {
	store := newMemStore()
	store.findErr = errors.New("transient db error")
	m := NewManager(store)

	_, err := m.OnConfirmedDown(context.Background(), "mon1", state.StateDown, "cause", nil, time.Now())
	if err == nil {
		t.Fatal("expected an error after retries are exhausted")
	}
	if store.findCalls != findOngoingRetries {
		t.Errorf("expected %d retry attempts, got %d", findOngoingRetries, store.findCalls)
	}
}

func TestManager_AttachesVerificationReport(t *testing.T) {
	store := newMemStore()
	m := NewManager(store)

	report := &verification.Report{Classification: verification.ClassificationGlobalOutage}
	inc, err := m.OnConfirmedDown(context.Background(), "mon1", state.StateDown, "cause", report, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inc.Verification == nil || inc.Verification.Classification != verification.ClassificationGlobalOutage {
		t.Errorf("expected the verification report to be attached, got %+v", inc.Verification)
	}
}
