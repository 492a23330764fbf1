// Package probe defines the data contracts produced by protocol probe
// drivers and consumed by the classifier, plus two drivers: HTTPDriver
// for HTTP/HTTPS targets and TCPDriver for TCP connects with an optional
// TLS handshake. There is no UDP/DNS/SMTP/PING-specific driver.
package probe

import "time"

// Protocol identifies the wire protocol a monitor speaks.
type Protocol string

const (
	ProtocolHTTP  Protocol = "HTTP"
	ProtocolHTTPS Protocol = "HTTPS"
	ProtocolTCP   Protocol = "TCP"
	ProtocolUDP   Protocol = "UDP"
	ProtocolDNS   Protocol = "DNS"
	ProtocolSMTP  Protocol = "SMTP"
	ProtocolSSL   Protocol = "SSL"
	ProtocolPING  Protocol = "PING"
)

// ErrorKind is the finite, tagged enumeration of probe/pipeline error
// classes. A free-form Message may accompany it for diagnostics, but
// callers must never branch on Message.
type ErrorKind string

const (
	// Network
	ErrTimeout            ErrorKind = "TIMEOUT"
	ErrDNSError           ErrorKind = "DNS_ERROR"
	ErrConnectionRefused  ErrorKind = "CONNECTION_REFUSED"
	ErrConnectionReset    ErrorKind = "CONNECTION_RESET"
	ErrHostUnreachable    ErrorKind = "HOST_UNREACHABLE"
	ErrNetworkUnreachable ErrorKind = "NETWORK_UNREACHABLE"

	// SSL
	ErrCertExpired            ErrorKind = "CERT_EXPIRED"
	ErrCertExpiringSoon       ErrorKind = "CERT_EXPIRING_SOON"
	ErrCertHostnameMismatch   ErrorKind = "CERT_HOSTNAME_MISMATCH"
	ErrSelfSignedCert         ErrorKind = "SELF_SIGNED_CERT"
	ErrUnableToVerifyLeafSig  ErrorKind = "UNABLE_TO_VERIFY_LEAF_SIGNATURE"
	ErrCertChainError         ErrorKind = "CERT_CHAIN_ERROR"

	// HTTP
	ErrHTTPServerError ErrorKind = "HTTP_SERVER_ERROR"
	ErrHTTPClientError ErrorKind = "HTTP_CLIENT_ERROR"
	ErrHTTPRateLimit   ErrorKind = "HTTP_RATE_LIMIT"
	ErrHTTPInfo        ErrorKind = "HTTP_INFORMATIONAL"
	ErrHTTPNotFound    ErrorKind = "HTTP_NOT_FOUND"

	// Performance
	ErrSlowResponse ErrorKind = "SLOW_RESPONSE"
	ErrHighLatency  ErrorKind = "HIGH_LATENCY"

	// Protocol-specific
	ErrDNSNotFound            ErrorKind = "DNS_NOT_FOUND"
	ErrUDPNoResponse          ErrorKind = "UDP_NO_RESPONSE"
	ErrSMTPNoBanner           ErrorKind = "SMTP_NO_BANNER"
	ErrSMTPServiceUnavailable ErrorKind = "SMTP_SERVICE_UNAVAILABLE"
	ErrPingTimeout            ErrorKind = "PING_TIMEOUT"

	// Content
	ErrKeywordMismatch ErrorKind = "KEYWORD_MISMATCH"

	// Catch-all when the pipeline itself misbehaves; never thrown out of
	// the classifier, only annotated.
	ErrHealthEvaluationError ErrorKind = "HEALTH_EVALUATION_ERROR"
)

// rawNetworkErrorAliases maps the free-form OS/library error codes a probe
// driver might report (e.g. "ENOTFOUND", "ECONNREFUSED") onto the tagged
// ErrorKind enumeration used by the classifier.
var rawNetworkErrorAliases = map[string]ErrorKind{
	"ENOTFOUND":     ErrDNSError,
	"DNS_ERROR":     ErrDNSError,
	"ECONNREFUSED":  ErrConnectionRefused,
	"ECONNRESET":    ErrConnectionReset,
	"EHOSTUNREACH":  ErrHostUnreachable,
	"ENETUNREACH":   ErrNetworkUnreachable,
	"TIMEOUT":       ErrTimeout,
	"ETIMEDOUT":     ErrTimeout,
}

// NormalizeErrorKind resolves a raw error code reported by a probe driver
// to the tagged ErrorKind enumeration. Unknown codes pass through
// unchanged so the classifier can still reason about them by string value
// if needed, but none of the built-in rules will match them.
func NormalizeErrorKind(raw string) ErrorKind {
	if kind, ok := rawNetworkErrorAliases[raw]; ok {
		return kind
	}
	return ErrorKind(raw)
}

// SSLInfo carries TLS certificate metadata as reported by a probe driver
// for HTTPS/SSL monitors.
type SSLInfo struct {
	// Error is set by the driver when certificate validation itself
	// failed, using one of the OpenSSL-style codes the classifier
	// recognizes (CERT_HAS_EXPIRED, CERT_HOSTNAME_MISMATCH, ...).
	Error string

	// NotAfter is the certificate's expiry time, populated even when
	// Error is empty so the classifier can apply the expiring-soon rule.
	NotAfter time.Time

	// DaysUntilExpiry is a convenience the driver may precompute; zero
	// means "derive it from NotAfter".
	DaysUntilExpiry int
}

// Meta carries protocol-specific side information a probe driver attaches
// to a result beyond the universal up/latency/status fields.
type Meta struct {
	SSLInfo *SSLInfo
	Warning string

	// KeywordMismatch is set when a content-assertion check failed even
	// though the transport-level request succeeded.
	KeywordMismatch bool
}

// Result is the immutable output of a single probe invocation.
type Result struct {
	// CheckID uniquely identifies this probe attempt, assigned by the
	// driver or the scheduler. It is what downstream consumers key
	// idempotent processing on (see internal/events.Consumer).
	CheckID        string
	IsUp           bool
	ResponseTimeMs int64
	StatusCode     int // 0 when not applicable (TCP/UDP/DNS/PING)
	ErrorKind      ErrorKind
	ErrorMessage   string
	Meta           Meta
	At             time.Time
}

// HasSSLError reports whether the probe's SSL metadata indicates a hard
// certificate validation failure.
func (r Result) HasSSLError() bool {
	return r.Meta.SSLInfo != nil && r.Meta.SSLInfo.Error != ""
}
