package verification

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/pulsewatch/sentinel/internal/probe"
)

type countingProvider struct {
	calls   int32
	results []RegionResult
	err     error
}

func (p *countingProvider) Verify(ctx context.Context, req Request) ([]RegionResult, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.err != nil {
		return nil, p.err
	}
	return p.results, nil
}

func TestVerifier_CachesWithinTTL(t *testing.T) {
	provider := &countingProvider{results: []RegionResult{{Region: "us-east", IsUp: true}}}
	v := NewVerifier(provider)
	req := Request{MonitorID: "m1", Protocol: probe.ProtocolHTTP, Host: "example.com"}

	r1, err := v.Verify(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r1.FromCache {
		t.Error("first call should not be served from cache")
	}

	r2, err := v.Verify(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r2.FromCache {
		t.Error("second call within TTL should be served from cache")
	}

	if calls := atomic.LoadInt32(&provider.calls); calls != 1 {
		t.Errorf("expected exactly one upstream call, got %d", calls)
	}
}

func TestVerifier_DifferentKeysBypassCache(t *testing.T) {
	provider := &countingProvider{results: []RegionResult{{Region: "us-east", IsUp: true}}}
	v := NewVerifier(provider)

	_, _ = v.Verify(context.Background(), Request{Protocol: probe.ProtocolHTTP, Host: "a.example.com"})
	_, _ = v.Verify(context.Background(), Request{Protocol: probe.ProtocolHTTP, Host: "b.example.com"})

	if calls := atomic.LoadInt32(&provider.calls); calls != 2 {
		t.Errorf("expected two upstream calls for two distinct hosts, got %d", calls)
	}
}

func TestClassify_GlobalOutage(t *testing.T) {
	regions := []RegionResult{{IsUp: false}, {IsUp: false}, {IsUp: false}}
	if got := classify(regions); got != ClassificationGlobalOutage {
		t.Errorf("expected global outage, got %s", got)
	}
}

func TestClassify_PartialOutage(t *testing.T) {
	regions := []RegionResult{{IsUp: false}, {IsUp: false}, {IsUp: true}}
	if got := classify(regions); got != ClassificationPartialOutage {
		t.Errorf("expected partial outage, got %s", got)
	}
}

func TestClassify_AllUpIsRoutingIssue(t *testing.T) {
	regions := []RegionResult{{IsUp: true}, {IsUp: true}, {IsUp: true}}
	if got := classify(regions); got != ClassificationRoutingIssue {
		t.Errorf("expected routing issue for a unanimous success ratio, got %s", got)
	}
}

func TestClassify_RoutingIssue_HalfSplitFourRegions(t *testing.T) {
	regions := []RegionResult{{IsUp: true}, {IsUp: true}, {IsUp: false}, {IsUp: false}}
	if got := classify(regions); got != ClassificationRoutingIssue {
		t.Errorf("expected routing issue for a 2/4 success ratio (>= half), got %s", got)
	}
}

func TestClassify_RoutingIssue_HalfSplitTwoRegions(t *testing.T) {
	regions := []RegionResult{{IsUp: true}, {IsUp: false}}
	if got := classify(regions); got != ClassificationRoutingIssue {
		t.Errorf("expected routing issue for a 1/2 success ratio (>= half), got %s", got)
	}
}

func TestSeverityFor(t *testing.T) {
	cases := []struct {
		c             Classification
		confirmedDown bool
		want          Severity
	}{
		{ClassificationGlobalOutage, true, SeverityCritical},
		{ClassificationGlobalOutage, false, SeverityWarning},
		{ClassificationPartialOutage, true, SeverityWarning},
		{ClassificationRoutingIssue, true, SeverityInfo},
	}
	for _, tc := range cases {
		if got := SeverityFor(tc.c, tc.confirmedDown); got != tc.want {
			t.Errorf("SeverityFor(%s, %v) = %s, want %s", tc.c, tc.confirmedDown, got, tc.want)
		}
	}
}

func TestReport_AlertText(t *testing.T) {
	r := Report{
		Classification: ClassificationGlobalOutage,
		Regions:        []RegionResult{{IsUp: false}, {IsUp: false}, {IsUp: false}},
	}
	want := "Global outage: server returned 500 confirmed by 3/3 locations."
	if got := r.AlertText("server returned 500"); got != want {
		t.Errorf("unexpected alert text: got %q, want %q", got, want)
	}
}

func TestReport_AlertText_RoutingIssueCountsUpRegions(t *testing.T) {
	r := Report{
		Classification: ClassificationRoutingIssue,
		Regions:        []RegionResult{{IsUp: true}, {IsUp: true}, {IsUp: false}, {IsUp: false}},
	}
	want := "Routing issue: origin unreachable locally confirmed by 2/4 locations."
	if got := r.AlertText("origin unreachable locally"); got != want {
		t.Errorf("unexpected alert text: got %q, want %q", got, want)
	}
}

func TestClassify_NoResultsInconclusive(t *testing.T) {
	if got := classify(nil); got != ClassificationInconclusive {
		t.Errorf("expected inconclusive for zero regions, got %s", got)
	}
}

func TestLocalFallbackProvider_DefaultsToDownWhenNoProber(t *testing.T) {
	p := LocalFallbackProvider{}
	results, err := p.Verify(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].IsUp {
		t.Errorf("expected a single down local result, got %+v", results)
	}
}

func TestLocalFallbackProvider_UsesProber(t *testing.T) {
	p := LocalFallbackProvider{
		Prober: func(ctx context.Context, req Request) (RegionResult, error) {
			return RegionResult{IsUp: true, ResponseTimeMs: 42}, nil
		},
	}
	results, err := p.Verify(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || !results[0].IsUp || results[0].Region != "local" {
		t.Errorf("unexpected results: %+v", results)
	}
}
