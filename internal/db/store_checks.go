package db

import (
	"time"

	"github.com/pulsewatch/sentinel/internal/engine"
	"github.com/pulsewatch/sentinel/internal/probe"
	"github.com/pulsewatch/sentinel/internal/state"
)

// RecordCheck persists one probe tick plus the confirmed state the engine
// assigned it, so future ticks can rebuild baseline/window history via
// GetRecentCheckRecords.
func (s *Store) RecordCheck(monitorID string, p probe.Result, finalState state.HealthState) error {
	return s.BatchInsertChecks([]CheckResult{{
		MonitorID:  monitorID,
		Status:     string(finalState),
		Latency:    p.ResponseTimeMs,
		Timestamp:  p.At,
		StatusCode: p.StatusCode,
	}})
}

// GetRecentCheckRecords returns a monitor's last `limit` checks as the
// projection internal/engine needs to compute baseline and window
// analyses, ordered oldest-first.
func (s *Store) GetRecentCheckRecords(monitorID string, limit int) ([]engine.CheckRecord, error) {
	checks, err := s.GetMonitorChecks(monitorID, limit)
	if err != nil {
		return nil, err
	}

	out := make([]engine.CheckRecord, len(checks))
	for i, c := range checks {
		// GetMonitorChecks returns newest-first; reverse into oldest-first.
		src := checks[len(checks)-1-i]
		out[i] = engine.CheckRecord{
			ResponseTimeMs: src.Latency,
			WasUp:          src.Status == string(state.StateUp),
			State:          state.HealthState(src.Status),
			At:             src.Timestamp,
		}
	}
	return out, nil
}

// PruneChecksOlderThan deletes checks beyond the given retention window,
// delegating to PruneMonitorChecks with a day-granularity duration.
func (s *Store) PruneChecksOlderThan(d time.Duration) error {
	days := int(d.Hours() / 24)
	if days < 1 {
		days = 1
	}
	return s.PruneMonitorChecks(days)
}
