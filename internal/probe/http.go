package probe

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"strings"
	"time"
)

// HTTPDriver probes HTTP/HTTPS targets with a shared, connection-pooled
// client. One Driver instance is meant to be reused across every HTTP(S)
// monitor in the fleet.
type HTTPDriver struct {
	client *http.Client
}

// NewHTTPDriver builds an HTTPDriver with sane pooling defaults; per-probe
// timeouts are still governed by the context passed to Probe.
func NewHTTPDriver() *HTTPDriver {
	return &HTTPDriver{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
			// Never follow redirects silently: a monitor targeting a URL
			// that 301s elsewhere should see the 3xx, not the final hop.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Probe issues a single GET request against target and classifies the
// transport-level outcome. Every outcome, including a timeout or context
// cancellation, is reported in the returned Result (IsUp false with an
// ErrorKind on failure); there is no separate error return.
func (d *HTTPDriver) Probe(ctx context.Context, target string, timeout time.Duration) Result {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return Result{
			IsUp:      false,
			ErrorKind: ErrHealthEvaluationError,
			ErrorMessage: err.Error(),
			At:        time.Now().UTC(),
		}
	}

	start := time.Now().UTC()
	resp, err := d.client.Do(req)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return Result{
			IsUp:           false,
			ResponseTimeMs: latency,
			ErrorKind:      classifyTransportError(err),
			ErrorMessage:   err.Error(),
			At:             start,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	result := Result{
		IsUp:           resp.StatusCode < 400,
		ResponseTimeMs: latency,
		StatusCode:     resp.StatusCode,
		At:             start,
	}

	if resp.TLS != nil && len(resp.TLS.PeerCertificates) > 0 {
		cert := resp.TLS.PeerCertificates[0]
		result.Meta.SSLInfo = &SSLInfo{
			NotAfter:        cert.NotAfter,
			DaysUntilExpiry: int(time.Until(cert.NotAfter).Hours() / 24),
		}
	}

	return result
}

func classifyTransportError(err error) ErrorKind {
	var netErr net.Error
	if ne, ok := err.(net.Error); ok {
		netErr = ne
		if netErr.Timeout() {
			return ErrTimeout
		}
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "no such host"):
		return ErrDNSError
	case strings.Contains(msg, "connection refused"):
		return ErrConnectionRefused
	case strings.Contains(msg, "connection reset"):
		return ErrConnectionReset
	case strings.Contains(msg, "no route to host"):
		return ErrHostUnreachable
	case strings.Contains(msg, "network is unreachable"):
		return ErrNetworkUnreachable
	}

	var certErr *tls.CertificateVerificationError
	if ok := asCertError(err, &certErr); ok {
		return ErrCertChainError
	}

	return ErrHealthEvaluationError
}

func asCertError(err error, target **tls.CertificateVerificationError) bool {
	for err != nil {
		if ce, ok := err.(*tls.CertificateVerificationError); ok {
			*target = ce
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
