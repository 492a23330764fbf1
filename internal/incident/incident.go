// Package incident owns the incident lifecycle state machine: opening an
// incident when a monitor is confirmed down, and resolving it when the
// monitor recovers. It never decides whether a monitor is down — that is
// the hysteresis engine's job — it only reacts to confirmed transitions.
package incident

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pulsewatch/sentinel/internal/state"
	"github.com/pulsewatch/sentinel/internal/verification"
)

// Status is the incident's lifecycle stage.
type Status string

const (
	StatusOngoing  Status = "ongoing"
	StatusResolved Status = "resolved"
)

// Incident records one continuous period a monitor was confirmed down or
// degraded.
type Incident struct {
	ID          string
	MonitorID   string
	Status      Status
	Cause       string
	StartState  state.HealthState
	StartedAt   time.Time
	ResolvedAt  *time.Time
	Verification *verification.Report
}

// Store is the persistence boundary the incident manager depends on. The
// db package provides the production implementation backed by SQLite or
// PostgreSQL.
type Store interface {
	FindOngoing(ctx context.Context, monitorID string) (*Incident, error)
	Create(ctx context.Context, inc Incident) error
	Resolve(ctx context.Context, id string, resolvedAt time.Time) error
}

// findOngoingRetries and findOngoingBackoff bound the retry loop around
// the ongoing-incident lookup: a lookup that returns an error is retried,
// findOngoingBackoff apart, at most findOngoingRetries times before
// OnConfirmedDown gives up with that error.
const (
	findOngoingRetries = 6
	findOngoingBackoff = 500 * time.Millisecond
)

// Manager drives the no-incident -> ongoing -> resolved state machine.
type Manager struct {
	store Store
}

// NewManager constructs a Manager backed by store.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// OnConfirmedDown is called whenever the hysteresis engine confirms a
// monitor's transition into down or degraded. It opens a new incident
// unless one is already ongoing for this monitor, retrying the ongoing
// lookup a bounded number of times to ride out a transient persistence
// error rather than risk creating a duplicate.
func (m *Manager) OnConfirmedDown(ctx context.Context, monitorID string, target state.HealthState, cause string, report *verification.Report, now time.Time) (*Incident, error) {
	existing, err := m.findOngoingWithRetry(ctx, monitorID)
	if err != nil {
		return nil, fmt.Errorf("looking up ongoing incident: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	inc := Incident{
		ID:           uuid.NewString(),
		MonitorID:    monitorID,
		Status:       StatusOngoing,
		Cause:        cause,
		StartState:   target,
		StartedAt:    now,
		Verification: report,
	}
	if err := m.store.Create(ctx, inc); err != nil {
		return nil, fmt.Errorf("creating incident: %w", err)
	}
	return &inc, nil
}

// OnConfirmedUp is called whenever the hysteresis engine confirms a
// monitor's recovery to up. It resolves the monitor's ongoing incident,
// if any; it is a no-op when the monitor had no open incident.
func (m *Manager) OnConfirmedUp(ctx context.Context, monitorID string, now time.Time) error {
	existing, err := m.findOngoingWithRetry(ctx, monitorID)
	if err != nil {
		return fmt.Errorf("looking up ongoing incident: %w", err)
	}
	if existing == nil {
		return nil
	}
	if err := m.store.Resolve(ctx, existing.ID, now); err != nil {
		return fmt.Errorf("resolving incident %s: %w", existing.ID, err)
	}
	return nil
}

func (m *Manager) findOngoingWithRetry(ctx context.Context, monitorID string) (*Incident, error) {
	var lastErr error
	for attempt := 0; attempt < findOngoingRetries; attempt++ {
		inc, err := m.store.FindOngoing(ctx, monitorID)
		if err == nil {
			return inc, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(findOngoingBackoff):
		}
	}
	return nil, lastErr
}
