package baseline

import "testing"

func TestCompute_InsufficientSamples(t *testing.T) {
	history := []Sample{
		{ResponseTimeMs: 100, WasUp: true},
		{ResponseTimeMs: 110, WasUp: true},
	}
	_, ok := Compute(history)
	if ok {
		t.Fatal("expected ok=false with fewer than MinSamples successful samples")
	}
}

func TestCompute_StableBaseline(t *testing.T) {
	history := make([]Sample, 0, 10)
	for i := 0; i < 10; i++ {
		history = append(history, Sample{ResponseTimeMs: 100, WasUp: true})
	}
	b, ok := Compute(history)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if !b.IsStable {
		t.Error("expected stable baseline with zero variance and full reliability")
	}
	if b.Reliability != 1.0 {
		t.Errorf("expected reliability 1.0, got %f", b.Reliability)
	}
	if b.Mean != 100 {
		t.Errorf("expected mean 100, got %f", b.Mean)
	}
}

func TestCompute_UnreliableBaseline(t *testing.T) {
	history := []Sample{
		{ResponseTimeMs: 100, WasUp: true},
		{ResponseTimeMs: 100, WasUp: false},
		{ResponseTimeMs: 100, WasUp: false},
		{ResponseTimeMs: 100, WasUp: false},
		{ResponseTimeMs: 100, WasUp: true},
		{ResponseTimeMs: 100, WasUp: true},
	}
	b, ok := Compute(history)
	if !ok {
		t.Fatal("expected ok=true (3 successful samples)")
	}
	if b.Reliability >= 0.8 {
		t.Errorf("expected reliability < 0.8, got %f", b.Reliability)
	}
	if b.IsStable {
		t.Error("expected unstable baseline given low reliability")
	}
}

func TestCompute_HighVarianceUnstable(t *testing.T) {
	history := []Sample{
		{ResponseTimeMs: 10, WasUp: true},
		{ResponseTimeMs: 5000, WasUp: true},
		{ResponseTimeMs: 20, WasUp: true},
		{ResponseTimeMs: 4000, WasUp: true},
	}
	b, ok := Compute(history)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if b.IsStable {
		t.Error("expected unstable baseline given high coefficient of variation")
	}
}

func TestCompute_TrendDegrading(t *testing.T) {
	history := []Sample{
		{ResponseTimeMs: 100, WasUp: true},
		{ResponseTimeMs: 100, WasUp: true},
		{ResponseTimeMs: 100, WasUp: true},
		{ResponseTimeMs: 300, WasUp: true},
		{ResponseTimeMs: 300, WasUp: true},
		{ResponseTimeMs: 300, WasUp: true},
	}
	b, ok := Compute(history)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if b.Trend != TrendDegrading {
		t.Errorf("expected degrading trend, got %s", b.Trend)
	}
}

func TestCompute_TrendImproving(t *testing.T) {
	history := []Sample{
		{ResponseTimeMs: 300, WasUp: true},
		{ResponseTimeMs: 300, WasUp: true},
		{ResponseTimeMs: 300, WasUp: true},
		{ResponseTimeMs: 100, WasUp: true},
		{ResponseTimeMs: 100, WasUp: true},
		{ResponseTimeMs: 100, WasUp: true},
	}
	b, ok := Compute(history)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if b.Trend != TrendImproving {
		t.Errorf("expected improving trend, got %s", b.Trend)
	}
}

func TestCompute_WindowCap(t *testing.T) {
	history := make([]Sample, 0, 30)
	for i := 0; i < 30; i++ {
		rt := int64(100)
		if i >= 24 {
			// These are the most recent 6 samples; a huge spike here
			// should show up in the baseline since the window caps at
			// the most recent WindowSize entries.
			rt = 10000
		}
		history = append(history, Sample{ResponseTimeMs: rt, WasUp: true})
	}
	b, ok := Compute(history)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if b.SampleCount != WindowSize {
		t.Errorf("expected sample count capped at %d, got %d", WindowSize, b.SampleCount)
	}
	if b.Mean <= 100 {
		t.Errorf("expected the recent spike to raise the mean, got %f", b.Mean)
	}
}
