package window

import "testing"

func TestAnalyze_AllDown(t *testing.T) {
	history := []CheckState{StateDown, StateDown, StateDown, StateDown, StateDown}
	a := Analyze(history)

	if !a.ShouldBeDown {
		t.Error("expected ShouldBeDown")
	}
	if a.Pattern != PatternConsistentlyDown {
		t.Errorf("expected consistently_down, got %s", a.Pattern)
	}
	if a.FailureRate < 0.6 {
		t.Errorf("expected failure rate >= 0.6, got %f", a.FailureRate)
	}
}

func TestAnalyze_AllUp(t *testing.T) {
	history := []CheckState{StateUp, StateUp, StateUp, StateUp, StateUp}
	a := Analyze(history)

	if a.ShouldBeDown {
		t.Error("did not expect ShouldBeDown")
	}
	if a.ShouldBeDegraded {
		t.Error("did not expect ShouldBeDegraded")
	}
	if a.Pattern != PatternConsistentlyUp {
		t.Errorf("expected consistently_up, got %s", a.Pattern)
	}
	if a.FailureRate != 0 {
		t.Errorf("expected failure rate floored at 0, got %f", a.FailureRate)
	}
}

func TestAnalyze_Flapping(t *testing.T) {
	history := []CheckState{StateUp, StateDown, StateUp, StateDown, StateUp}
	a := Analyze(history)

	if a.Pattern != PatternFlapping {
		t.Errorf("expected flapping, got %s", a.Pattern)
	}
}

func TestAnalyze_DegradedPattern(t *testing.T) {
	history := []CheckState{StateUp, StateUp, StateDegraded, StateDegraded, StateDegraded}
	a := Analyze(history)

	if a.Pattern != PatternDegraded {
		t.Errorf("expected degraded_pattern, got %s", a.Pattern)
	}
	if !a.ShouldBeDegraded {
		t.Error("expected ShouldBeDegraded")
	}
}

func TestAnalyze_RecentChecksDominateWeighting(t *testing.T) {
	// Oldest is down, rest are up: recent checks should dominate so the
	// failure rate stays low and the window does not confirm down.
	older := []CheckState{StateDown, StateUp, StateUp, StateUp, StateUp}
	a := Analyze(older)
	if a.ShouldBeDown {
		t.Error("a single stale failure should not confirm down once recent checks are clean")
	}

	// The inverse: a failure in the most recent slot should weigh heavily.
	recent := []CheckState{StateUp, StateUp, StateUp, StateUp, StateDown}
	b := Analyze(recent)
	if b.FailureRate <= a.FailureRate {
		t.Errorf("expected a recent failure to weigh more than a stale one: recent=%f stale=%f", b.FailureRate, a.FailureRate)
	}
}

func TestAnalyze_WindowCappedAtFive(t *testing.T) {
	history := []CheckState{
		StateDown, StateDown, StateDown, StateDown, StateDown, // older, should be ignored
		StateUp, StateUp, StateUp, StateUp, StateUp,
	}
	a := Analyze(history)
	if a.ShouldBeDown {
		t.Error("expected only the trailing 5 checks (all up) to be considered")
	}
	if a.Pattern != PatternConsistentlyUp {
		t.Errorf("expected consistently_up over the trailing window, got %s", a.Pattern)
	}
}

func TestAnalyze_Empty(t *testing.T) {
	a := Analyze(nil)
	if a.ShouldBeDown || a.ShouldBeDegraded {
		t.Error("empty history should never confirm down or degraded")
	}
	if a.Pattern != PatternStable {
		t.Errorf("expected stable pattern for empty history, got %s", a.Pattern)
	}
}

func TestAnalyze_ShouldBeDegradedThreshold(t *testing.T) {
	// Three recent degraded checks out of five should cross the 0.3
	// degradation-rate threshold.
	history := []CheckState{StateUp, StateUp, StateDegraded, StateDegraded, StateDegraded}
	a := Analyze(history)
	if !a.ShouldBeDegraded {
		t.Errorf("expected ShouldBeDegraded with rate %f/%f", a.FailureRate, a.DegradationRate)
	}
}
