// Package monitor defines the monitor catalog policy consumed by the
// engine. The catalog itself (creation, editing, storage) is owned by the
// persistence layer; this package only describes the shape the engine
// needs to evaluate a tick.
package monitor

import (
	"time"

	"github.com/pulsewatch/sentinel/internal/probe"
)

// protocolDefaultSlowThresholdMs gives the slowThreshold fallback per
// protocol when a monitor does not configure DegradedThresholdMs.
var protocolDefaultSlowThresholdMs = map[probe.Protocol]int64{
	probe.ProtocolHTTP:  5000,
	probe.ProtocolHTTPS: 5000,
	probe.ProtocolPING:  1500,
	probe.ProtocolTCP:   3000,
	probe.ProtocolUDP:   3000,
	probe.ProtocolDNS:   2000,
	probe.ProtocolSMTP:  3000,
	probe.ProtocolSSL:   3000,
}

const defaultSlowThresholdMs = 2000

// Policy is the per-monitor configuration the engine needs. The full
// monitor record (name, group, owner, etc.) lives in the persistence
// layer; Policy carries only the fields §3 of the specification names.
type Policy struct {
	ID       string
	Target   string // URL or host, protocol-dependent
	Protocol probe.Protocol
	Interval time.Duration
	Timeout  time.Duration

	// AlertThreshold is the number of consecutive confirming proposals
	// required before a state transition away from up is confirmed.
	// Must be >= 1; defaults to 2.
	AlertThreshold int

	// DegradedThresholdMs overrides the protocol default slow-response
	// threshold when > 0.
	DegradedThresholdMs int64

	// SSLExpiryThresholdDays controls the "expiring soon" window for
	// HTTPS/SSL monitors. Defaults to 30.
	SSLExpiryThresholdDays int

	// ExpectedStatusCode, when non-zero, makes any other status code a
	// severity-1.0 mismatch regardless of the HTTP class rules.
	ExpectedStatusCode int

	// ExpectedResponseTimeMs drives the fast-track recovery rule; the
	// probe must be faster than 80% of this to recover immediately.
	// Defaults to 1000ms when zero.
	ExpectedResponseTimeMs int64

	// ConsecutiveChecksForRecovery overrides the default (1) confirmation
	// count required for down/degraded -> up when fast-track doesn't
	// apply.
	ConsecutiveChecksForRecovery int

	IsActive bool
}

// SlowThreshold returns the effective slow-response threshold for this
// monitor's protocol, per spec.md §4.1.
func (p Policy) SlowThreshold() int64 {
	if p.DegradedThresholdMs > 0 {
		return p.DegradedThresholdMs
	}
	if ms, ok := protocolDefaultSlowThresholdMs[p.Protocol]; ok {
		return ms
	}
	return defaultSlowThresholdMs
}

// ExpectedResponseTime returns the latency fast-track recovery compares
// against, defaulting to 1000ms.
func (p Policy) ExpectedResponseTime() int64 {
	if p.ExpectedResponseTimeMs > 0 {
		return p.ExpectedResponseTimeMs
	}
	return 1000
}

// RecoveryConfirmations returns the number of confirming up-proposals
// required for a non-fast-track recovery, defaulting to 1.
func (p Policy) RecoveryConfirmations() int {
	if p.ConsecutiveChecksForRecovery > 0 {
		return p.ConsecutiveChecksForRecovery
	}
	return 1
}

// SSLExpiryThreshold returns the configured SSL expiring-soon window,
// defaulting to 30 days.
func (p Policy) SSLExpiryThreshold() int {
	if p.SSLExpiryThresholdDays > 0 {
		return p.SSLExpiryThresholdDays
	}
	return 30
}

// ConfirmedThreshold returns the hysteresis confirmation threshold,
// defaulting to 2, and never below 1.
func (p Policy) ConfirmedThreshold() int {
	if p.AlertThreshold >= 1 {
		return p.AlertThreshold
	}
	return 2
}
