package probe

import (
	"context"
	"crypto/tls"
	"net"
	"time"
)

// TCPDriver probes raw TCP (and, via UseTLS, TLS-wrapped) endpoints by
// attempting a connection and, for TLS, completing the handshake. It is
// the fallback driver for TCP/SSL monitors and a reasonable stand-in for
// UDP/SMTP targets where only reachability matters.
type TCPDriver struct {
	UseTLS bool
}

func NewTCPDriver() *TCPDriver { return &TCPDriver{} }

// Probe dials target (expected to be a host:port pair) and reports whether
// the connection (and, if UseTLS, the handshake) succeeded.
func (d *TCPDriver) Probe(ctx context.Context, target string, timeout time.Duration) Result {
	dialer := &net.Dialer{Timeout: timeout}

	start := time.Now().UTC()
	conn, err := dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		return Result{
			IsUp:         false,
			ErrorKind:    classifyTransportError(err),
			ErrorMessage: err.Error(),
			At:           start,
		}
	}
	defer func() { _ = conn.Close() }()

	if !d.UseTLS {
		return Result{
			IsUp:           true,
			ResponseTimeMs: time.Since(start).Milliseconds(),
			At:             start,
		}
	}

	tlsConn := tls.Client(conn, &tls.Config{ServerName: hostOnly(target)})
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return Result{
			IsUp:         false,
			ErrorKind:    classifyTransportError(err),
			ErrorMessage: err.Error(),
			At:           start,
		}
	}
	defer func() { _ = tlsConn.Close() }()

	latency := time.Since(start).Milliseconds()
	result := Result{IsUp: true, ResponseTimeMs: latency, At: start}

	state := tlsConn.ConnectionState()
	if len(state.PeerCertificates) > 0 {
		cert := state.PeerCertificates[0]
		result.Meta.SSLInfo = &SSLInfo{
			NotAfter:        cert.NotAfter,
			DaysUntilExpiry: int(time.Until(cert.NotAfter).Hours() / 24),
		}
	}
	return result
}

func hostOnly(hostport string) string {
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport
	}
	return host
}
