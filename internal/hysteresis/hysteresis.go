// Package hysteresis turns a classifier verdict plus the baseline and
// window analyses into a confirmed-or-not state transition decision. It
// is the Hysteresis Engine: the only component that decides whether a
// monitor's confirmed HealthState actually changes on a given tick.
package hysteresis

import (
	"fmt"
	"time"

	"github.com/pulsewatch/sentinel/internal/baseline"
	"github.com/pulsewatch/sentinel/internal/classifier"
	"github.com/pulsewatch/sentinel/internal/monitor"
	"github.com/pulsewatch/sentinel/internal/probe"
	"github.com/pulsewatch/sentinel/internal/state"
	"github.com/pulsewatch/sentinel/internal/window"
)

// flapWindow and flapThreshold implement the flap-suppression rule: once a
// monitor has recorded flapThreshold or more transitions within
// flapWindow, further transitions are held at the current state until
// things settle.
const (
	flapWindow    = 10 * time.Minute
	flapThreshold = 4
)

// minTimeInState is the engine-wide minTimeInStateMs default (spec.md §6).
// The degraded<->down hold rule uses half of it.
const minTimeInState = 30 * time.Second

// Input bundles everything the hysteresis engine needs to decide a single
// tick's outcome.
type Input struct {
	Probe       probe.Result
	Verdict     classifier.Verdict
	Policy      monitor.Policy
	Current     state.MonitorState
	Window      window.Analysis
	Baseline    baseline.Baseline
	HasBaseline bool
	Now         time.Time
}

// Decision is the Hysteresis Engine's output for a single tick.
type Decision struct {
	// Target is the state this tick proposes, after all hysteresis rules
	// have been applied but before confirmation counting.
	Target state.HealthState

	// Confirmed is true when Target should be written to the State Store
	// as the new CurrentState this tick (either because it already
	// matches, or because a confirmation threshold / fast-track rule was
	// satisfied).
	Confirmed bool

	// FinalState is the state callers should treat as authoritative after
	// this tick. During an up -> degraded/down grace period it is
	// StateDegraded (per spec.md §4.4/§9), even though the persisted
	// confirmed state has not moved from up yet.
	FinalState state.HealthState

	Reason         string
	ShouldVerify   bool
	ShouldNotify   bool
	FlapSuppressed bool
	FastTrack      bool
}

// Decide applies spec.md §4.4's hysteresis rules in order and returns the
// tick's decision. It never mutates in.Current; callers apply the result
// to the State Store themselves via state.Store.ApplyConfirmation or
// state.Store.RegisterProposal.
func Decide(in Input) Decision {
	target, reason := proposeTarget(in)
	current := in.Current.CurrentState

	// Flap suppression: once a monitor is thrashing, hold its current
	// confirmed state regardless of what this tick proposes.
	if target != current && in.Current.RecentTransitionCount(in.Now, flapWindow) >= flapThreshold {
		return Decision{
			Target:         target,
			Confirmed:      false,
			FinalState:     current,
			Reason:         "flap suppression: holding current state",
			FlapSuppressed: true,
		}
	}

	if target == current {
		return Decision{Target: target, Confirmed: true, FinalState: target, Reason: reason}
	}

	// unknown -> * is allowed immediately; there is no prior confirmed
	// state to protect by waiting for confirmation.
	if current == state.StateUnknown {
		return Decision{
			Target:       target,
			Confirmed:    true,
			FinalState:   target,
			Reason:       reason,
			ShouldVerify: target == state.StateDown,
			ShouldNotify: target != state.StateUp,
		}
	}

	if target == state.StateUp {
		if isFastTrackRecovery(in) {
			return Decision{
				Target:       target,
				Confirmed:    true,
				FinalState:   target,
				Reason:       "fast-track recovery: response fully healthy and well within expected latency",
				ShouldNotify: true,
				FastTrack:    true,
			}
		}

		required := in.Policy.RecoveryConfirmations()
		count := nextCount(in.Current, target)
		if count >= required {
			return Decision{Target: target, Confirmed: true, FinalState: target, Reason: reason, ShouldNotify: true}
		}
		return Decision{
			Target:     target,
			Confirmed:  false,
			FinalState: current,
			Reason:     fmt.Sprintf("Recovery awaiting confirmation (%d/%d)", count, required),
		}
	}

	// target is degraded or down, current is up, degraded, or down.
	if isDegradedDownPair(current, target) && in.Now.Sub(in.Current.LastStateChange) < minTimeInState/2 {
		return Decision{
			Target:     target,
			Confirmed:  false,
			FinalState: current,
			Reason:     "holding: minimum time in state not yet elapsed",
		}
	}

	required := in.Policy.ConfirmedThreshold()
	count := nextCount(in.Current, target)
	if count >= required {
		return Decision{
			Target:       target,
			Confirmed:    true,
			FinalState:   target,
			Reason:       reason,
			ShouldVerify: target == state.StateDown,
			ShouldNotify: true,
		}
	}

	// Awaiting confirmation. Per spec.md §9's resolution of the source's
	// ambiguity, both up->degraded and up->down grace periods surface
	// "degraded" to the caller even though the persisted confirmed state
	// has not moved; degraded<->down grace periods simply hold at the
	// current confirmed state.
	visible := current
	if current == state.StateUp {
		visible = state.StateDegraded
	}
	awaiting := awaitingReason(target, count, required)
	if IsSlowResponseTick(in.Verdict) {
		// Keep the slow-response streak visible while confirmation builds.
		awaiting += ": " + reason
	}
	return Decision{
		Target:     target,
		Confirmed:  false,
		FinalState: visible,
		Reason:     awaiting,
	}
}

// nextCount predicts the consecutive-confirmation count the State Store
// will record for this proposal, without mutating it: a proposal repeating
// the monitor's already-pending target extends the run; any other
// proposal (including one that merely differs from the pending target)
// starts a fresh run at 1. See spec.md §4.4's "Consecutive count
// semantics".
func nextCount(cur state.MonitorState, target state.HealthState) int {
	if cur.PendingTarget == target {
		return cur.ConsecutiveCount + 1
	}
	return 1
}

func awaitingReason(target state.HealthState, count, required int) string {
	if target == state.StateDown {
		return fmt.Sprintf("Service glitch detected, awaiting confirmation (%d/%d)", count, required)
	}
	return fmt.Sprintf("Potential degradation, awaiting confirmation (%d/%d)", count, required)
}

func isDegradedDownPair(current, target state.HealthState) bool {
	return (current == state.StateDegraded && target == state.StateDown) ||
		(current == state.StateDown && target == state.StateDegraded)
}

// proposeTarget applies the non-hysteresis classification rules (window
// confirmation, baseline instability, soft degradation, forced rate-limit
// degrade, slow-response preservation) to arrive at this tick's proposed
// target state, before flap suppression and confirmation counting.
func proposeTarget(in Input) (state.HealthState, string) {
	v := in.Verdict

	// Forced degrade: HTTP 429 always degrades regardless of anything
	// else, even an otherwise-clean classification.
	if v.ErrorKind == probe.ErrHTTPRateLimit {
		return state.StateDegraded, "rate limited by upstream"
	}

	// Slow-response preserved: a slow-but-up verdict is always surfaced as
	// degraded, never as up or down, regardless of the rest of the rule
	// chain. The consecutive-slow streak (state.Store's ConsecutiveSlowCount,
	// bumped by the caller via IsSlowResponseTick) rides along in the reason
	// text so operators can see confirmation building independently of the
	// generic PendingTarget/ConsecutiveCount machinery below.
	if IsSlowResponseTick(v) {
		streak := in.Current.ConsecutiveSlowCount + 1
		reason := firstReason(v.Reasons, "degraded: slow response")
		return state.StateDegraded, fmt.Sprintf("%s (%d consecutive slow responses)", reason, streak)
	}

	// Window-confirmed down: a weighted recent-failure rate over
	// threshold overrides a merely-degraded single-tick verdict, unless
	// this tick's own verdict is a clean up (a genuinely healthy check
	// must not be held down by stale history).
	if in.Window.ShouldBeDown && !v.IsFullyUp() {
		return state.StateDown, "recent check window confirms down"
	}

	base := mapVerdict(v.State)

	if base == state.StateUp {
		// Baseline instability: response times are erratic or unreliable
		// even though this tick nominally succeeded.
		if in.HasBaseline && !in.Baseline.IsStable {
			return state.StateDegraded, "baseline unstable despite successful check"
		}
		// Soft degradation: any lingering issue flag (SSL warning, partial
		// content mismatch, non-fatal anomaly) keeps the monitor degraded
		// rather than confirming a clean up.
		if v.HasIssue && !v.IsFullyUp() {
			return state.StateDegraded, "check succeeded with outstanding issues"
		}
		if in.Window.ShouldBeDegraded && !v.IsFullyUp() {
			return state.StateDegraded, "recent check window shows degradation"
		}
		return state.StateUp, "within normal parameters"
	}

	if base == state.StateDegraded {
		return state.StateDegraded, firstReason(v.Reasons, "degraded")
	}

	return state.StateDown, firstReason(v.Reasons, "down")
}

// IsSlowResponseTick reports whether v triggers the slow-response
// preservation rule: a successful-but-slow check (isUp, 2xx, over the
// slow threshold) that Decide always surfaces as degraded. Callers use
// this to drive state.Store's ConsecutiveSlowCount alongside Decide's
// otherwise pure, side-effect-free decision.
func IsSlowResponseTick(v classifier.Verdict) bool {
	return v.IsSlowResponse && v.State == classifier.StateDegraded && v.ErrorKind != probe.ErrHTTPRateLimit
}

func mapVerdict(s classifier.State) state.HealthState {
	switch s {
	case classifier.StateUp:
		return state.StateUp
	case classifier.StateDegraded:
		return state.StateDegraded
	default:
		return state.StateDown
	}
}

func firstReason(reasons []string, fallback string) string {
	if len(reasons) > 0 {
		return reasons[0]
	}
	return fallback
}

// isFastTrackRecovery reports whether this up-proposing tick is clean and
// fast enough to confirm recovery immediately, per spec.md §4.4: the
// response must be fully healthy and comfortably under the monitor's
// expected response time.
func isFastTrackRecovery(in Input) bool {
	if !in.Verdict.IsFullyUp() {
		return false
	}
	return float64(in.Probe.ResponseTimeMs) < float64(in.Policy.ExpectedResponseTime())*0.8
}
