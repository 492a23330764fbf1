package probe

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestTCPDriver_ProbeUp(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	d := NewTCPDriver()
	res := d.Probe(context.Background(), ln.Addr().String(), time.Second)

	if !res.IsUp {
		t.Fatalf("expected up, got down: %s", res.ErrorMessage)
	}
}

func TestTCPDriver_ProbeUnreachable(t *testing.T) {
	d := NewTCPDriver()
	res := d.Probe(context.Background(), "127.0.0.1:1", 200*time.Millisecond)

	if res.IsUp {
		t.Fatal("expected down for an unreachable port")
	}
	if res.ErrorKind == "" {
		t.Error("expected a non-empty ErrorKind")
	}
}

func TestHostOnly(t *testing.T) {
	if got := hostOnly("example.com:443"); got != "example.com" {
		t.Errorf("expected example.com, got %q", got)
	}
	if got := hostOnly("example.com"); got != "example.com" {
		t.Errorf("expected fallback to raw string, got %q", got)
	}
}
