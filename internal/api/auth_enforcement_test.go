package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestAuthEnforcement verifies every protected route rejects an
// unauthenticated request with 401, regardless of what it would otherwise
// do with the request.
func TestAuthEnforcement(t *testing.T) {
	_, _, router, _ := setupTest(t)

	ts := httptest.NewServer(router)
	defer ts.Close()

	client := ts.Client() // No cookie jar, no auth headers

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{"Me", "GET", "/api/auth/me"},
		{"Update User", "PATCH", "/api/auth/me"},
		{"List Monitors", "GET", "/api/monitors"},
		{"Create Monitor", "POST", "/api/monitors"},
		{"Update Monitor", "PUT", "/api/monitors/m-test"},
		{"Delete Monitor", "DELETE", "/api/monitors/m-test"},
		{"Monitor Health", "GET", "/api/monitors/m-test/health"},
		{"Submit Probe Result", "POST", "/api/probe-results"},
		{"Get Incidents", "GET", "/api/incidents"},
		{"Get Events", "GET", "/api/events"},
		{"List API Keys", "GET", "/api/api-keys"},
		{"Create API Key", "POST", "/api/api-keys"},
		{"Delete API Key", "DELETE", "/api/api-keys/1"},
		{"Admin Reset", "POST", "/api/admin/reset"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, ts.URL+tc.path, nil)
			if err != nil {
				t.Fatalf("failed to build request: %v", err)
			}
			resp, err := client.Do(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("expected 401 for %s %s, got %d", tc.method, tc.path, resp.StatusCode)
			}
		})
	}
}
