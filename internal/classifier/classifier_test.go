package classifier

import (
	"testing"
	"time"

	"github.com/pulsewatch/sentinel/internal/monitor"
	"github.com/pulsewatch/sentinel/internal/probe"
)

func httpPolicy() monitor.Policy {
	return monitor.Policy{ID: "m1", Protocol: probe.ProtocolHTTP, AlertThreshold: 2}
}

func TestClassify_HealthyHTTP200(t *testing.T) {
	p := probe.Result{IsUp: true, StatusCode: 200, ResponseTimeMs: 100}
	v := Classify(p, httpPolicy())

	if v.State != StateUp {
		t.Fatalf("expected up, got %s", v.State)
	}
	if !v.IsFullyUp() {
		t.Error("expected fully up verdict")
	}
	if len(v.Reasons) == 0 || v.Reasons[0] != "within normal parameters" {
		t.Errorf("expected 'within normal parameters' reason, got %v", v.Reasons)
	}
}

func TestClassify_SSLHardFailure(t *testing.T) {
	for _, code := range []string{
		"CERT_HAS_EXPIRED", "CERT_EXPIRED", "CERT_HOSTNAME_MISMATCH",
		"DEPTH_ZERO_SELF_SIGNED_CERT", "UNABLE_TO_VERIFY_LEAF_SIGNATURE",
	} {
		t.Run(code, func(t *testing.T) {
			p := probe.Result{
				IsUp:       true,
				StatusCode: 200,
				Meta:       probe.Meta{SSLInfo: &probe.SSLInfo{Error: code}},
			}
			v := Classify(p, httpPolicy())
			if v.State != StateDown {
				t.Fatalf("expected down, got %s", v.State)
			}
			if v.Severity < 0.9 {
				t.Errorf("expected severity >= 0.9, got %f", v.Severity)
			}
		})
	}
}

func TestClassify_SuccessfulButSlow(t *testing.T) {
	p := probe.Result{IsUp: true, StatusCode: 200, ResponseTimeMs: 6000}
	v := Classify(p, httpPolicy())

	if v.State != StateDegraded {
		t.Fatalf("expected degraded, got %s", v.State)
	}
	if !v.IsSlowResponse {
		t.Error("expected IsSlowResponse")
	}
	if v.Severity < 0.4 {
		t.Errorf("expected severity >= 0.4, got %f", v.Severity)
	}
}

func TestClassify_NetworkErrors(t *testing.T) {
	cases := []probe.ErrorKind{
		probe.ErrTimeout, probe.ErrDNSError, probe.ErrConnectionRefused,
		probe.ErrConnectionReset, probe.ErrHostUnreachable, probe.ErrNetworkUnreachable,
	}
	for _, kind := range cases {
		t.Run(string(kind), func(t *testing.T) {
			p := probe.Result{IsUp: false, ErrorKind: kind}
			v := Classify(p, httpPolicy())
			if v.State != StateDown {
				t.Fatalf("expected down, got %s", v.State)
			}
			if v.Severity < 0.95 {
				t.Errorf("expected severity >= 0.95, got %f", v.Severity)
			}
		})
	}
}

func TestClassify_HTTPStatusFamilies(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		wantUp   bool
		wantState State
	}{
		{"5xx", 503, false, StateDown},
		{"4xx-not-429", 404, false, StateDown},
		{"3xx-redirect", 301, true, StateUp},
		{"2xx", 200, true, StateUp},
		{"1xx", 102, true, StateDegraded},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := probe.Result{IsUp: tc.wantUp, StatusCode: tc.code}
			v := Classify(p, httpPolicy())
			if v.State != tc.wantState {
				t.Fatalf("code %d: expected %s, got %s", tc.code, tc.wantState, v.State)
			}
		})
	}
}

func TestClassify_RateLimit429(t *testing.T) {
	p := probe.Result{IsUp: false, StatusCode: 429}
	v := Classify(p, httpPolicy())

	if v.State != StateDegraded {
		t.Fatalf("expected degraded, got %s", v.State)
	}
	if !v.IsSlowResponse {
		t.Error("expected rate limit to mark IsSlowResponse")
	}
	if v.ErrorKind != probe.ErrHTTPRateLimit {
		t.Errorf("expected ErrHTTPRateLimit, got %s", v.ErrorKind)
	}
}

func TestClassify_ContentMismatchAdditive(t *testing.T) {
	p := probe.Result{IsUp: true, StatusCode: 200, Meta: probe.Meta{KeywordMismatch: true}}
	v := Classify(p, httpPolicy())

	if v.State != StateDegraded {
		t.Fatalf("expected degraded, got %s", v.State)
	}
	if !v.HasPartialFailure {
		t.Error("expected HasPartialFailure")
	}
}

func TestClassify_ExpectedStatusCodeMismatch(t *testing.T) {
	pol := httpPolicy()
	pol.ExpectedStatusCode = 200
	p := probe.Result{IsUp: true, StatusCode: 201}
	v := Classify(p, pol)

	if v.Severity != 1.0 {
		t.Errorf("expected severity 1.0, got %f", v.Severity)
	}
	if v.State != StateDown {
		t.Fatalf("expected down, got %s", v.State)
	}
}

func TestClassify_UnknownFailureFallback(t *testing.T) {
	p := probe.Result{IsUp: false}
	v := Classify(p, httpPolicy())

	if v.State != StateDown {
		t.Fatalf("expected down, got %s", v.State)
	}
	if v.Reasons[0] != "Unknown service failure" {
		t.Errorf("expected fallback reason, got %v", v.Reasons)
	}
}

func TestClassify_HTTPSCombined(t *testing.T) {
	pol := monitor.Policy{ID: "m2", Protocol: probe.ProtocolHTTPS, SSLExpiryThresholdDays: 30}

	t.Run("valid HTTP + expired SSL -> degraded", func(t *testing.T) {
		p := probe.Result{
			IsUp:       true,
			StatusCode: 200,
			Meta: probe.Meta{SSLInfo: &probe.SSLInfo{
				NotAfter: time.Now().Add(-24 * time.Hour),
			}},
		}
		v := Classify(p, pol)
		if v.State != StateDegraded {
			t.Fatalf("expected degraded, got %s", v.State)
		}
	})

	t.Run("valid HTTP + SSL expiring within threshold -> degraded", func(t *testing.T) {
		p := probe.Result{
			IsUp:       true,
			StatusCode: 200,
			Meta: probe.Meta{SSLInfo: &probe.SSLInfo{
				NotAfter: time.Now().Add(10 * 24 * time.Hour),
			}},
		}
		v := Classify(p, pol)
		if v.State != StateDegraded {
			t.Fatalf("expected degraded, got %s", v.State)
		}
	})

	t.Run("HTTP down wins over SSL info", func(t *testing.T) {
		p := probe.Result{
			IsUp:       false,
			StatusCode: 500,
			Meta: probe.Meta{SSLInfo: &probe.SSLInfo{
				NotAfter: time.Now().Add(-24 * time.Hour),
			}},
		}
		v := Classify(p, pol)
		if v.State != StateDown {
			t.Fatalf("expected down, got %s", v.State)
		}
	})

	t.Run("valid HTTP + healthy SSL -> up", func(t *testing.T) {
		p := probe.Result{
			IsUp:       true,
			StatusCode: 200,
			Meta: probe.Meta{SSLInfo: &probe.SSLInfo{
				NotAfter: time.Now().Add(90 * 24 * time.Hour),
			}},
		}
		v := Classify(p, pol)
		if v.State != StateUp {
			t.Fatalf("expected up, got %s", v.State)
		}
	})
}

func TestSlowThreshold_ProtocolDefaults(t *testing.T) {
	cases := []struct {
		protocol probe.Protocol
		want     int64
	}{
		{probe.ProtocolHTTP, 5000},
		{probe.ProtocolHTTPS, 5000},
		{probe.ProtocolPING, 1500},
		{probe.ProtocolTCP, 3000},
		{probe.ProtocolUDP, 3000},
		{probe.ProtocolDNS, 2000},
		{probe.ProtocolSMTP, 3000},
		{probe.ProtocolSSL, 3000},
	}
	for _, tc := range cases {
		pol := monitor.Policy{Protocol: tc.protocol}
		if got := pol.SlowThreshold(); got != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.protocol, tc.want, got)
		}
	}
}

func TestSlowThreshold_MonitorOverride(t *testing.T) {
	pol := monitor.Policy{Protocol: probe.ProtocolHTTP, DegradedThresholdMs: 1234}
	if got := pol.SlowThreshold(); got != 1234 {
		t.Errorf("expected override 1234, got %d", got)
	}
}
