package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pulsewatch/sentinel/internal/incident"
	"github.com/pulsewatch/sentinel/internal/state"
	"github.com/pulsewatch/sentinel/internal/verification"
)

// Incident is the persisted row backing an incident.Incident.
type Incident struct {
	ID               string     `json:"id"`
	MonitorID        string     `json:"monitorId"`
	Status           string     `json:"status"` // ongoing | resolved
	Cause            string     `json:"cause"`
	StartState       string     `json:"startState"`
	StartedAt        time.Time  `json:"startedAt"`
	ResolvedAt       *time.Time `json:"resolvedAt,omitempty"`
	VerificationJSON string     `json:"-"`
	CreatedAt        time.Time  `json:"createdAt"`
}

func (s *Store) CreateIncident(i Incident) error {
	_, err := s.db.Exec(s.rebind(`
		INSERT INTO incidents (id, monitor_id, status, cause, start_state, started_at, resolved_at, verification_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), i.ID, i.MonitorID, i.Status, i.Cause, i.StartState, i.StartedAt, i.ResolvedAt, i.VerificationJSON, time.Now())
	return err
}

func (s *Store) FindOngoingIncident(monitorID string) (*Incident, error) {
	query := s.rebind(`
		SELECT id, monitor_id, status, cause, start_state, started_at, resolved_at, COALESCE(verification_json, ''), created_at
		FROM incidents
		WHERE monitor_id = ? AND status = 'ongoing'
		ORDER BY started_at DESC
		LIMIT 1
	`)
	var i Incident
	var resolvedAt sql.NullTime
	err := s.db.QueryRow(query, monitorID).Scan(&i.ID, &i.MonitorID, &i.Status, &i.Cause, &i.StartState,
		&i.StartedAt, &resolvedAt, &i.VerificationJSON, &i.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		i.ResolvedAt = &resolvedAt.Time
	}
	return &i, nil
}

func (s *Store) ResolveIncident(id string, resolvedAt time.Time) error {
	_, err := s.db.Exec(s.rebind(`UPDATE incidents SET status = 'resolved', resolved_at = ? WHERE id = ?`), resolvedAt, id)
	return err
}

func (s *Store) GetIncidents(since time.Time) ([]Incident, error) {
	query := s.rebind(`
		SELECT id, monitor_id, status, cause, start_state, started_at, resolved_at, COALESCE(verification_json, ''), created_at
		FROM incidents
		WHERE status = 'ongoing' OR started_at >= ?
		ORDER BY started_at DESC
	`)
	rows, err := s.db.Query(query, since)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var incidents []Incident
	for rows.Next() {
		var i Incident
		var resolvedAt sql.NullTime
		if err := rows.Scan(&i.ID, &i.MonitorID, &i.Status, &i.Cause, &i.StartState,
			&i.StartedAt, &resolvedAt, &i.VerificationJSON, &i.CreatedAt); err != nil {
			return nil, err
		}
		if resolvedAt.Valid {
			i.ResolvedAt = &resolvedAt.Time
		}
		incidents = append(incidents, i)
	}
	return incidents, nil
}

// IncidentAdapter satisfies incident.Store by translating between the
// engine's Incident domain type and the persisted row shape above. It
// exists so internal/incident never needs to know about *sql.DB.
type IncidentAdapter struct {
	Store *Store
}

func (a IncidentAdapter) FindOngoing(ctx context.Context, monitorID string) (*incident.Incident, error) {
	row, err := a.Store.FindOngoingIncident(monitorID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return fromRow(*row), nil
}

func (a IncidentAdapter) Create(ctx context.Context, inc incident.Incident) error {
	var verifJSON string
	if inc.Verification != nil {
		b, err := json.Marshal(inc.Verification)
		if err != nil {
			return err
		}
		verifJSON = string(b)
	}
	return a.Store.CreateIncident(Incident{
		ID:               inc.ID,
		MonitorID:        inc.MonitorID,
		Status:           string(inc.Status),
		Cause:            inc.Cause,
		StartState:       string(inc.StartState),
		StartedAt:        inc.StartedAt,
		ResolvedAt:       inc.ResolvedAt,
		VerificationJSON: verifJSON,
	})
}

func (a IncidentAdapter) Resolve(ctx context.Context, id string, resolvedAt time.Time) error {
	return a.Store.ResolveIncident(id, resolvedAt)
}

func fromRow(row Incident) *incident.Incident {
	inc := &incident.Incident{
		ID:         row.ID,
		MonitorID:  row.MonitorID,
		Status:     incident.Status(row.Status),
		Cause:      row.Cause,
		StartState: state.HealthState(row.StartState),
		StartedAt:  row.StartedAt,
		ResolvedAt: row.ResolvedAt,
	}
	if row.VerificationJSON != "" {
		var report verification.Report
		if err := json.Unmarshal([]byte(row.VerificationJSON), &report); err == nil {
			inc.Verification = &report
		}
	}
	return inc
}
