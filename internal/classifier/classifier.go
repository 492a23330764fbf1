// Package classifier maps a raw probe result to a tentative health
// verdict. It is the Status Classifier of the engine: a pure function of
// (probe, monitor policy), never mutating state and never performing I/O.
package classifier

import (
	"time"

	"github.com/pulsewatch/sentinel/internal/monitor"
	"github.com/pulsewatch/sentinel/internal/probe"
)

// State is the tentative health verdict the classifier proposes. It is
// narrower than the engine's confirmed HealthState: a Verdict never
// carries "unknown", only up/degraded/down.
type State string

const (
	StateUp       State = "up"
	StateDegraded State = "degraded"
	StateDown     State = "down"
)

// hardSSLFailures are the certificate error codes that force a down
// verdict per spec.md §4.1 rule 1.
var hardSSLFailures = map[string]bool{
	"CERT_HAS_EXPIRED":                  true,
	"CERT_EXPIRED":                      true,
	"CERT_HOSTNAME_MISMATCH":            true,
	"DEPTH_ZERO_SELF_SIGNED_CERT":       true,
	"UNABLE_TO_VERIFY_LEAF_SIGNATURE":   true,
}

// networkErrorKinds are the error kinds classified as a hard network
// failure per spec.md §4.1 rule 3.
var networkErrorKinds = map[probe.ErrorKind]bool{
	probe.ErrTimeout:            true,
	probe.ErrDNSError:           true,
	probe.ErrConnectionRefused:  true,
	probe.ErrConnectionReset:    true,
	probe.ErrHostUnreachable:    true,
	probe.ErrNetworkUnreachable: true,
}

// Verdict is the classifier's output: a tentative state with severity and
// supporting detail, before hysteresis is applied.
type Verdict struct {
	State          State
	Severity       float64 // [0,1]
	Reasons        []string
	ErrorKind      probe.ErrorKind
	IsSlowResponse bool

	// HasPartialFailure marks additive partial failures (content
	// mismatch) that don't dominate the state rule but do feed the
	// hysteresis engine's "soft degradation" rule.
	HasPartialFailure bool

	// HasIssue is a looser flag than HasPartialFailure: true whenever the
	// verdict is not a clean up (covers SSL warnings, rate limiting,
	// etc.) and feeds the hysteresis "soft degradation" rule too.
	HasIssue bool

	StatusCode int
}

// IsFullyUp reports whether the verdict represents a completely clean
// success with no issues of any kind — the condition hysteresis's
// fast-track recovery and "soft degradation" rules both test against.
func (v Verdict) IsFullyUp() bool {
	return v.State == StateUp && !v.HasPartialFailure && !v.HasIssue && !v.IsSlowResponse
}

func raise(v *Verdict, severity float64) {
	if severity > v.Severity {
		v.Severity = severity
	}
}

// Classify maps a probe result to a tentative Verdict per spec.md §4.1.
// Rules 1-4 are alternatives: the first one that matches decides the base
// state and dominant severity. Rules 5-6 apply regardless of which base
// rule fired: they raise severity and add detail, and they also move the
// state (rule 5 turns an up or undecided verdict into degraded; rule 6
// sets it to down). Rule 7 is the fallback when nothing else matched.
func Classify(p probe.Result, m monitor.Policy) Verdict {
	v := Verdict{
		StatusCode: p.StatusCode,
		ErrorKind:  p.ErrorKind,
	}

	matched := false

	// Rule 1: SSL hard failure.
	if sslErr, down := sslHardFailure(p); down {
		v.State = StateDown
		raise(&v, severityForSSLError(sslErr))
		v.Reasons = append(v.Reasons, "SSL certificate error: "+sslErr)
		v.ErrorKind = sslErrorKind(sslErr)
		matched = true
	}

	// Rule 2: successful but slow.
	if !matched && p.IsUp && isHTTPFamily2xx(p) && p.ResponseTimeMs > m.SlowThreshold() {
		v.State = StateDegraded
		raise(&v, 0.4)
		v.IsSlowResponse = true
		v.HasIssue = true
		v.Reasons = append(v.Reasons, "Response time exceeded threshold")
		matched = true
	}

	// Rule 3: network-class errors.
	if !matched && networkErrorKinds[p.ErrorKind] {
		v.State = StateDown
		raise(&v, 0.95)
		v.Reasons = append(v.Reasons, networkReason(p.ErrorKind))
		matched = true
	}

	// Rule 4: HTTP errors, sub-classified by code.
	if !matched && p.StatusCode > 0 {
		classifyHTTPStatus(&v, p)
		matched = true
	} else if !matched && p.IsUp {
		v.State = StateUp
		v.Reasons = append(v.Reasons, "within normal parameters")
		matched = true
	}

	// Rule 5: content mismatch (additive).
	if p.Meta.KeywordMismatch || p.ErrorKind == probe.ErrKeywordMismatch {
		v.HasPartialFailure = true
		v.HasIssue = true
		raise(&v, 0.5)
		v.Reasons = append(v.Reasons, "Content keyword mismatch")
		if v.State == "" || v.State == StateUp {
			v.State = StateDegraded
		}
		matched = true
	}

	// Rule 6: expected-status-code mismatch (additive, always wins on
	// severity since it is the maximum value in the scale).
	if m.ExpectedStatusCode != 0 && p.StatusCode != 0 && p.StatusCode != m.ExpectedStatusCode {
		raise(&v, 1.0)
		v.HasIssue = true
		v.Reasons = append(v.Reasons, "Unexpected status code")
		v.State = StateDown
		matched = true
	}

	// Rule 7: fallback.
	if !matched {
		if !p.IsUp {
			v.State = StateDown
			raise(&v, 0.9)
			v.Reasons = append(v.Reasons, "Unknown service failure")
		} else {
			v.State = StateUp
			v.Reasons = append(v.Reasons, "within normal parameters")
		}
	}

	return applyHTTPSCombination(v, p, m)
}

func sslHardFailure(p probe.Result) (code string, down bool) {
	if p.Meta.SSLInfo == nil || p.Meta.SSLInfo.Error == "" {
		return "", false
	}
	code = p.Meta.SSLInfo.Error
	return code, hardSSLFailures[code]
}

func severityForSSLError(code string) float64 {
	switch code {
	case "CERT_HAS_EXPIRED", "CERT_EXPIRED":
		return 0.95
	default:
		return 0.9
	}
}

func sslErrorKind(code string) probe.ErrorKind {
	switch code {
	case "CERT_HAS_EXPIRED", "CERT_EXPIRED":
		return probe.ErrCertExpired
	case "CERT_HOSTNAME_MISMATCH":
		return probe.ErrCertHostnameMismatch
	case "DEPTH_ZERO_SELF_SIGNED_CERT":
		return probe.ErrSelfSignedCert
	case "UNABLE_TO_VERIFY_LEAF_SIGNATURE":
		return probe.ErrUnableToVerifyLeafSig
	default:
		return probe.ErrCertChainError
	}
}

func isHTTPFamily2xx(p probe.Result) bool {
	return p.StatusCode >= 200 && p.StatusCode < 300
}

func networkReason(kind probe.ErrorKind) string {
	switch kind {
	case probe.ErrTimeout:
		return "Request timed out"
	case probe.ErrDNSError:
		return "DNS resolution failed"
	case probe.ErrConnectionRefused:
		return "Connection refused"
	case probe.ErrConnectionReset:
		return "Connection reset"
	case probe.ErrHostUnreachable:
		return "Host unreachable"
	case probe.ErrNetworkUnreachable:
		return "Network unreachable"
	default:
		return "Network error"
	}
}

func classifyHTTPStatus(v *Verdict, p probe.Result) {
	code := p.StatusCode
	switch {
	case code >= 500:
		v.State = StateDown
		raise(v, 0.95)
		v.ErrorKind = probe.ErrHTTPServerError
		v.Reasons = append(v.Reasons, "Server returned an error status")
	case code == 429:
		v.State = StateDegraded
		raise(v, 0.6)
		v.IsSlowResponse = true
		v.HasIssue = true
		v.ErrorKind = probe.ErrHTTPRateLimit
		v.Reasons = append(v.Reasons, "Rate Limit exceeded")
	case code >= 400:
		v.State = StateDown
		raise(v, 0.9)
		if code == 404 {
			v.ErrorKind = probe.ErrHTTPNotFound
		} else {
			v.ErrorKind = probe.ErrHTTPClientError
		}
		v.Reasons = append(v.Reasons, "Client error status")
	case code >= 300:
		v.State = StateUp
		v.Reasons = append(v.Reasons, "within normal parameters")
	case code >= 200:
		v.State = StateUp
		v.Reasons = append(v.Reasons, "within normal parameters")
	case code >= 100:
		v.State = StateDegraded
		raise(v, 0.5)
		v.HasIssue = true
		v.ErrorKind = probe.ErrHTTPInfo
		v.Reasons = append(v.Reasons, "Informational status code")
	}
}

// applyHTTPSCombination implements spec.md §4.1's HTTPS combined rule:
// HTTP availability dominates SSL quality. Only applies to HTTPS
// monitors carrying SSL metadata alongside a successful HTTP verdict.
func applyHTTPSCombination(v Verdict, p probe.Result, m monitor.Policy) Verdict {
	if m.Protocol != probe.ProtocolHTTPS || p.Meta.SSLInfo == nil {
		return v
	}
	if v.State == StateDown {
		// HTTP down (or hard SSL failure already handled above) wins;
		// SSL is informational only when HTTP itself is fine.
		return v
	}

	ssl := p.Meta.SSLInfo
	if ssl.Error != "" {
		// Already handled by the hard-failure rule above if it matched
		// one of the fatal codes; anything else reaching here is a soft
		// SSL issue on an otherwise-valid HTTP response.
		v.State = StateDegraded
		v.HasIssue = true
		raise(&v, 0.5)
		v.Reasons = append(v.Reasons, "SSL certificate issue: "+ssl.Error)
		return v
	}

	daysLeft := ssl.DaysUntilExpiry
	if daysLeft == 0 && !ssl.NotAfter.IsZero() {
		daysLeft = int(time.Until(ssl.NotAfter).Hours() / 24)
	}
	if !ssl.NotAfter.IsZero() && daysLeft <= m.SSLExpiryThreshold() {
		v.State = StateDegraded
		v.HasIssue = true
		raise(&v, 0.4)
		v.ErrorKind = probe.ErrCertExpiringSoon
		v.Reasons = append(v.Reasons, "SSL certificate expiring soon")
	}
	return v
}
