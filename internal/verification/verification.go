// Package verification re-checks a suspected outage from independent
// vantage points before an incident is raised, to rule out a local
// network blip or a single-region routing problem. It is the engine's
// cross-region Verification component.
package verification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pulsewatch/sentinel/internal/probe"
)

// cacheTTL bounds how long a verification result for a given
// (protocol, host, path) tuple is reused instead of re-probed.
const cacheTTL = 120 * time.Second

// maxConcurrent bounds how many verification requests are in flight across
// all regions at once, regardless of how many monitors trip at the same
// moment.
const maxConcurrent = 3

// minInterval is the minimum spacing enforced between verification slots,
// so a thundering herd of simultaneous incidents doesn't hammer every
// region's provider at once.
const minInterval = 2500 * time.Millisecond

// Request describes one target to verify.
type Request struct {
	MonitorID string
	Protocol  probe.Protocol
	Host      string
	Path      string
}

func (r Request) cacheKey() string {
	return fmt.Sprintf("%s|%s|%s", r.Protocol, r.Host, r.Path)
}

// RegionResult is a single region's independent check outcome.
type RegionResult struct {
	Region         string
	IsUp           bool
	ResponseTimeMs int64
	ErrorKind      probe.ErrorKind
	CheckedAt      time.Time
}

// Classification summarizes what the regional spread of results implies
// about the nature of the outage.
type Classification string

const (
	ClassificationGlobalOutage  Classification = "global_outage"
	ClassificationPartialOutage Classification = "partial_outage"
	ClassificationRoutingIssue  Classification = "routing_issue"
	ClassificationInconclusive  Classification = "inconclusive"
)

// Severity is the alert severity an aggregate classification carries,
// per spec.md §4.6.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// SeverityFor maps a classification to its alert severity. Global outage is
// CRITICAL only when the monitor's own confirmed state is down; a global
// outage classification reached while the monitor is merely degraded (e.g.
// a slow-response confirmation still pending) is treated as a WARNING.
func SeverityFor(c Classification, confirmedDown bool) Severity {
	switch c {
	case ClassificationGlobalOutage:
		if confirmedDown {
			return SeverityCritical
		}
		return SeverityWarning
	case ClassificationPartialOutage:
		return SeverityWarning
	case ClassificationRoutingIssue:
		return SeverityInfo
	default:
		return SeverityInfo
	}
}

// classificationPrefix is the human-readable label used to build the
// spec.md §7 alert text.
func (c Classification) prefix() string {
	switch c {
	case ClassificationGlobalOutage:
		return "Global outage"
	case ClassificationPartialOutage:
		return "Partial outage"
	case ClassificationRoutingIssue:
		return "Routing issue"
	default:
		return "Verification inconclusive"
	}
}

// Report is the verification outcome for a single request.
type Report struct {
	Request        Request
	Regions        []RegionResult
	Classification Classification
	FromCache      bool
	CheckedAt      time.Time
}

// Provider performs the actual out-of-band regional checks. Production
// deployments may back this with a third-party synthetic-monitoring API;
// Sentinel ships LocalFallbackProvider, which re-probes from the
// controller's own network as a single "local" region when no external
// provider is configured (see spec.md §9 Open Questions).
type Provider interface {
	Verify(ctx context.Context, req Request) ([]RegionResult, error)
}

type cacheEntry struct {
	report Report
	at     time.Time
}

// Verifier orchestrates verification requests through a provider, with a
// short-lived cache and bounded, rate-limited concurrency so that a burst
// of simultaneous suspected outages does not stampede the provider.
type Verifier struct {
	provider Provider
	limiter  *rate.Limiter
	sem      chan struct{}

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewVerifier constructs a Verifier backed by provider.
func NewVerifier(provider Provider) *Verifier {
	return &Verifier{
		provider: provider,
		limiter:  rate.NewLimiter(rate.Every(minInterval), 1),
		sem:      make(chan struct{}, maxConcurrent),
		cache:    make(map[string]cacheEntry),
	}
}

// Verify checks the cache first; on a miss, it waits for a concurrency
// slot and the rate limiter before calling the provider, then classifies
// and caches the result.
func (v *Verifier) Verify(ctx context.Context, req Request) (Report, error) {
	key := req.cacheKey()

	v.mu.Lock()
	if entry, ok := v.cache[key]; ok && time.Since(entry.at) < cacheTTL {
		v.mu.Unlock()
		cached := entry.report
		cached.FromCache = true
		return cached, nil
	}
	v.mu.Unlock()

	select {
	case v.sem <- struct{}{}:
		defer func() { <-v.sem }()
	case <-ctx.Done():
		return Report{}, ctx.Err()
	}

	if err := v.limiter.Wait(ctx); err != nil {
		return Report{}, err
	}

	regions, err := v.provider.Verify(ctx, req)
	if err != nil {
		return Report{}, fmt.Errorf("verification provider: %w", err)
	}

	report := Report{
		Request:        req,
		Regions:        regions,
		Classification: classify(regions),
		CheckedAt:      time.Now(),
	}

	v.mu.Lock()
	v.cache[key] = cacheEntry{report: report, at: report.CheckedAt}
	v.mu.Unlock()

	return report, nil
}

// classify implements spec.md §4.6's aggregate classification table,
// bucketed purely on successCount/totalCount: zero successes is a global
// outage, a minority success ratio is a partial outage, and a majority
// (or unanimous) success ratio means the outage is routing- or
// origin-local rather than global.
func classify(regions []RegionResult) Classification {
	total := len(regions)
	if total == 0 {
		return ClassificationInconclusive
	}

	down := 0
	for _, r := range regions {
		if !r.IsUp {
			down++
		}
	}
	success := total - down

	switch {
	case success == 0:
		return ClassificationGlobalOutage
	case success*2 < total:
		return ClassificationPartialOutage
	default:
		return ClassificationRoutingIssue
	}
}

// Confirmation returns the (N, M) pair spec.md §7's alert text reports:
// the count of regions corroborating this classification against the
// total regions checked. For outage classifications the corroborating
// regions are the ones reporting down; for a routing/origin-local
// classification it is the regions reporting up, since those are what
// establish the target is reachable from elsewhere.
func (r Report) Confirmation() (n, m int) {
	m = len(r.Regions)
	for _, region := range r.Regions {
		switch r.Classification {
		case ClassificationGlobalOutage, ClassificationPartialOutage:
			if !region.IsUp {
				n++
			}
		default:
			if region.IsUp {
				n++
			}
		}
	}
	return n, m
}

// AlertText renders the spec.md §7 mandatory alert text for this report:
// "<prefix>: <primary reason> confirmed by N/M locations."
func (r Report) AlertText(primaryReason string) string {
	n, m := r.Confirmation()
	return fmt.Sprintf("%s: %s confirmed by %d/%d locations.", r.Classification.prefix(), primaryReason, n, m)
}

// LocalFallbackProvider re-probes the target directly from the
// controller's own network as a stand-in "local" region. It exists so
// Sentinel functions without a paid multi-region synthetic-monitoring
// subscription; operators wanting genuine independent vantage points
// supply their own Provider implementation.
type LocalFallbackProvider struct {
	// Prober performs a single synchronous check against the target and
	// reports whether it succeeded; the region orchestration and
	// classification stays in Verifier regardless of which prober backs
	// it.
	Prober func(ctx context.Context, req Request) (RegionResult, error)
}

// Verify runs the configured Prober once and reports it as the sole
// "local" region.
func (p LocalFallbackProvider) Verify(ctx context.Context, req Request) ([]RegionResult, error) {
	if p.Prober == nil {
		return []RegionResult{{Region: "local", IsUp: false, CheckedAt: time.Now(), ErrorKind: probe.ErrHealthEvaluationError}}, nil
	}
	result, err := p.Prober(ctx, req)
	if err != nil {
		return nil, err
	}
	if result.Region == "" {
		result.Region = "local"
	}
	return []RegionResult{result}, nil
}
