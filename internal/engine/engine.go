// Package engine is the top-level facade wiring the classifier, baseline
// and window analyzers, hysteresis engine, state store, verification
// orchestrator, incident manager, and event publisher into the single
// per-tick health-state decision pipeline.
package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/pulsewatch/sentinel/internal/baseline"
	"github.com/pulsewatch/sentinel/internal/classifier"
	"github.com/pulsewatch/sentinel/internal/events"
	"github.com/pulsewatch/sentinel/internal/hysteresis"
	"github.com/pulsewatch/sentinel/internal/incident"
	"github.com/pulsewatch/sentinel/internal/monitor"
	"github.com/pulsewatch/sentinel/internal/probe"
	"github.com/pulsewatch/sentinel/internal/state"
	"github.com/pulsewatch/sentinel/internal/verification"
	"github.com/pulsewatch/sentinel/internal/window"
)

// CheckRecord is the minimal shape of a historical check the engine needs
// to feed the baseline and window analyzers. Callers (the db-backed
// persistence layer) own the full check record; this is the projection
// the engine actually reads.
type CheckRecord struct {
	ResponseTimeMs int64
	WasUp          bool
	State          state.HealthState
	At             time.Time
}

// Notifier dispatches a confirmed state change or incident event to
// whatever downstream channel is configured (Slack, email, etc). It is
// satisfied by internal/notifications.Dispatcher; defining it here keeps
// the engine decoupled from any specific delivery mechanism.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Notification is the payload handed to a Notifier.
type Notification struct {
	MonitorID string
	From      state.HealthState
	To        state.HealthState
	Reason    string
	At        time.Time

	// Severity, RegionsConfirmed, and RegionsTotal are populated only for
	// verification-alert notifications (see publishVerificationAlert and
	// spec.md §4.6/§7); they are zero-valued for ordinary state-change
	// notifications.
	Severity         verification.Severity
	RegionsConfirmed int
	RegionsTotal     int
}

// Decision is the outcome of a single DetermineHealthState call: what the
// hysteresis engine decided, plus whatever side effects the engine
// carried out as a result.
type Decision struct {
	hysteresis.Decision
	Verdict           classifier.Verdict
	Incident          *incident.Incident
	VerificationReport *verification.Report
	EventCursor       uint64
}

// Engine wires every engine sub-component together and enforces
// per-monitor serialization is the scheduler's job, not this package's:
// Engine itself is safe for concurrent use across distinct monitors, and
// callers must not invoke DetermineHealthState for the same monitor ID
// concurrently (the scheduler guarantees this by feeding every probe
// result through a single result-processor goroutine).
type Engine struct {
	states    *state.Store
	verifier  *verification.Verifier
	incidents *incident.Manager
	publisher *events.Publisher
	notifier  Notifier
	log       *log.Logger
}

// New constructs an Engine. notifier may be nil, in which case
// notifications are skipped.
func New(states *state.Store, verifier *verification.Verifier, incidents *incident.Manager, publisher *events.Publisher, notifier Notifier, logger *log.Logger) *Engine {
	return &Engine{
		states:    states,
		verifier:  verifier,
		incidents: incidents,
		publisher: publisher,
		notifier:  notifier,
		log:       logger,
	}
}

// Events returns the engine's durable event stream, so the HTTP API can
// serve it without holding its own reference wired in separately.
func (e *Engine) Events() *events.Publisher {
	return e.publisher
}

// DetermineHealthState runs one tick's full pipeline: classify the probe
// result, compute the baseline and window analyses over recentChecks,
// apply hysteresis, persist the resulting state transition (or lack
// thereof), and fire verification/incident/notification/event side
// effects as the decision calls for.
//
// recentChecks must be ordered oldest-first and should not include the
// current probe result.
func (e *Engine) DetermineHealthState(ctx context.Context, p probe.Result, pol monitor.Policy, recentChecks []CheckRecord) (Decision, error) {
	now := p.At
	if now.IsZero() {
		now = time.Now()
	}

	verdict := classifier.Classify(p, pol)

	bl, hasBaseline := baseline.Compute(toBaselineSamples(recentChecks))
	win := window.Analyze(toWindowStates(recentChecks))

	current := e.states.Get(pol.ID)

	hd := hysteresis.Decide(hysteresis.Input{
		Probe:       p,
		Verdict:     verdict,
		Policy:      pol,
		Current:     current,
		Window:      win,
		Baseline:    bl,
		HasBaseline: hasBaseline,
		Now:         now,
	})

	if hysteresis.IsSlowResponseTick(verdict) {
		e.states.IncrementSlowCount(pol.ID, now)
	} else if current.ConsecutiveSlowCount != 0 {
		e.states.ResetSlowCount(pol.ID, now)
	}

	decision := Decision{Decision: hd, Verdict: verdict}

	if hd.Confirmed {
		e.states.ApplyConfirmation(pol.ID, hd.FinalState, hd.Reason, now)
	} else if !hd.FlapSuppressed {
		e.states.RegisterProposal(pol.ID, hd.Target, now)
	}

	if hd.Confirmed && hd.FinalState != current.CurrentState {
		evt := e.publisher.Publish(events.Event{
			MonitorID: pol.ID,
			CheckID:   p.CheckID,
			Type:      events.TypeStateChange,
			Reason:    hd.Reason,
			At:        now,
			Payload: map[string]any{
				"from": current.CurrentState,
				"to":   hd.FinalState,
			},
		})
		decision.EventCursor = evt.Cursor

		if hd.ShouldVerify && e.verifier != nil {
			report, err := e.TriggerVerification(ctx, pol, p)
			if err != nil {
				e.logf("verification for monitor %s failed: %v", pol.ID, err)
			} else {
				decision.VerificationReport = report
				e.publishVerificationAlert(ctx, pol.ID, hd, report, now)
			}
		}

		if err := e.applyIncidentTransition(ctx, pol.ID, current.CurrentState, hd, decision.VerificationReport, now, &decision); err != nil {
			return decision, err
		}

		if hd.ShouldNotify && e.notifier != nil {
			e.notifier.Notify(ctx, Notification{
				MonitorID: pol.ID,
				From:      current.CurrentState,
				To:        hd.FinalState,
				Reason:    hd.Reason,
				At:        now,
			})
		}
	} else {
		e.publisher.Publish(events.Event{
			MonitorID: pol.ID,
			CheckID:   p.CheckID,
			Type:      events.TypeCheckResult,
			Reason:    hd.Reason,
			At:        now,
		})
	}

	return decision, nil
}

func (e *Engine) applyIncidentTransition(ctx context.Context, monitorID string, from state.HealthState, hd hysteresis.Decision, report *verification.Report, now time.Time, decision *Decision) error {
	if e.incidents == nil {
		return nil
	}

	switch hd.FinalState {
	case state.StateDown, state.StateDegraded:
		inc, err := e.incidents.OnConfirmedDown(ctx, monitorID, hd.FinalState, hd.Reason, report, now)
		if err != nil {
			return fmt.Errorf("incident transition for monitor %s: %w", monitorID, err)
		}
		decision.Incident = inc
		if inc != nil {
			e.publisher.Publish(events.Event{
				MonitorID: monitorID,
				Type:      events.TypeIncidentOpen,
				Reason:    hd.Reason,
				At:        now,
				Payload:   map[string]any{"incidentId": inc.ID},
			})
		}
	case state.StateUp:
		if from == state.StateUp {
			return nil
		}
		if err := e.incidents.OnConfirmedUp(ctx, monitorID, now); err != nil {
			return fmt.Errorf("incident resolution for monitor %s: %w", monitorID, err)
		}
		e.publisher.Publish(events.Event{
			MonitorID: monitorID,
			Type:      events.TypeIncidentEnd,
			Reason:    hd.Reason,
			At:        now,
		})
	}
	return nil
}

// TriggerVerification runs an independent cross-region re-check of a
// monitor, bypassing the confirmation pipeline. DetermineHealthState calls
// it when a confirmed transition into down asks for verification; no HTTP
// route calls it.
func (e *Engine) TriggerVerification(ctx context.Context, pol monitor.Policy, p probe.Result) (*verification.Report, error) {
	if e.verifier == nil {
		return nil, nil
	}
	report, err := e.verifier.Verify(ctx, verification.Request{
		MonitorID: pol.ID,
		Protocol:  pol.Protocol,
		Host:      pol.Target,
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// publishVerificationAlert emits spec.md §6/§7's mandatory alert event and
// notification for a completed cross-region verification: a durable
// TypeVerificationAlert event carrying the classification and severity,
// plus a Notifier call whose Reason is the literal "<prefix>: <primary
// reason> confirmed by N/M locations." text.
func (e *Engine) publishVerificationAlert(ctx context.Context, monitorID string, hd hysteresis.Decision, report *verification.Report, now time.Time) {
	severity := verification.SeverityFor(report.Classification, hd.FinalState == state.StateDown)
	text := report.AlertText(hd.Reason)
	n, m := report.Confirmation()

	e.publisher.Publish(events.Event{
		MonitorID: monitorID,
		Type:      events.TypeVerificationAlert,
		Reason:    text,
		At:        now,
		Payload: map[string]any{
			"classification":   report.Classification,
			"severity":         severity,
			"regionsConfirmed": n,
			"regionsTotal":     m,
		},
	})

	if e.notifier != nil {
		e.notifier.Notify(ctx, Notification{
			MonitorID:        monitorID,
			From:             hd.FinalState,
			To:               hd.FinalState,
			Reason:           text,
			At:               now,
			Severity:         severity,
			RegionsConfirmed: n,
			RegionsTotal:     m,
		})
	}
}

// ClearStateHistory removes a monitor's confirmed-state and transition
// history entirely. Called when a monitor is deleted from the catalog so
// a future monitor reusing the same ID never inherits stale state.
func (e *Engine) ClearStateHistory(monitorID string) {
	e.states.Remove(monitorID)
}

// MonitorState returns a snapshot of a monitor's current confirmed state,
// creating it lazily (as unknown) if no tick has run yet.
func (e *Engine) MonitorState(monitorID string) state.MonitorState {
	return e.states.Get(monitorID)
}

// Statistics is the getHealthStatistics projection of spec.md §6: a
// monitor's current confirmed state plus rolling uptime/response summary
// over the trailing timeRangeHours.
type Statistics struct {
	CurrentState      state.HealthState
	LastStateChange   time.Time
	TimeInStateMinutes float64
	ConsecutiveCount  int
	TotalStateChanges int
	UptimeScore       float64

	TotalChecks       int
	UpChecks          int
	AvgResponseTimeMs float64
	TimeRangeHours    int
}

// GetHealthStatistics computes summary statistics from the supplied
// history and current state snapshot, restricted to the trailing
// timeRangeHours. Persistence of check history is the db package's
// responsibility; the engine only knows how to summarize it.
func (e *Engine) GetHealthStatistics(monitorID string, records []CheckRecord, timeRangeHours int, now time.Time) Statistics {
	cutoff := now.Add(-time.Duration(timeRangeHours) * time.Hour)

	snap := e.states.Get(monitorID)
	stats := Statistics{
		TimeRangeHours:    timeRangeHours,
		CurrentState:      snap.CurrentState,
		LastStateChange:   snap.LastStateChange,
		ConsecutiveCount:  snap.ConsecutiveCount,
		TotalStateChanges: len(snap.Transitions()),
	}
	if !snap.LastStateChange.IsZero() {
		stats.TimeInStateMinutes = now.Sub(snap.LastStateChange).Minutes()
	}

	var responseSum int64
	for _, r := range records {
		if r.At.Before(cutoff) {
			continue
		}
		stats.TotalChecks++
		if r.WasUp {
			stats.UpChecks++
			responseSum += r.ResponseTimeMs
		}
	}
	if stats.TotalChecks > 0 {
		stats.UptimeScore = float64(stats.UpChecks) / float64(stats.TotalChecks) * 100
	}
	if stats.UpChecks > 0 {
		stats.AvgResponseTimeMs = float64(responseSum) / float64(stats.UpChecks)
	}
	return stats
}

func (e *Engine) logf(format string, args ...any) {
	if e.log == nil {
		return
	}
	e.log.Printf(format, args...)
}

func toBaselineSamples(records []CheckRecord) []baseline.Sample {
	out := make([]baseline.Sample, len(records))
	for i, r := range records {
		out[i] = baseline.Sample{ResponseTimeMs: r.ResponseTimeMs, WasUp: r.WasUp}
	}
	return out
}

func toWindowStates(records []CheckRecord) []window.CheckState {
	out := make([]window.CheckState, len(records))
	for i, r := range records {
		switch r.State {
		case state.StateDown:
			out[i] = window.StateDown
		case state.StateDegraded:
			out[i] = window.StateDegraded
		default:
			out[i] = window.StateUp
		}
	}
	return out
}
