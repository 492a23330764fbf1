package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestAPIKeyIntegrationFlow simulates the full user journey:
// 1. Setup (creates the first admin user)
// 2. Login
// 3. Create an API key
// 4. Use the API key to create a monitor
// 5. Submit a probe result for it and confirm the engine recorded it
func TestAPIKeyIntegrationFlow(t *testing.T) {
	_, _, router, store := setupTest(t)

	ts := httptest.NewServer(router)
	defer ts.Close()

	jar, _ := cookiejar.New(nil)
	client := ts.Client()
	client.Jar = jar

	baseURL := ts.URL + "/api"

	// 1.1 Edge case: short password rejected
	badSetupPayload := map[string]interface{}{
		"username": "admin",
		"password": "123",
		"timezone": "UTC",
	}
	badBody, _ := json.Marshal(badSetupPayload)
	resp, err := client.Post(baseURL+"/setup", "application/json", bytes.NewBuffer(badBody))
	if err != nil {
		t.Fatalf("bad setup req failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for short password, got %d", resp.StatusCode)
	}

	// 1.2 Perform setup
	setupPayload := map[string]interface{}{
		"username": "admin",
		"password": "Password123!",
		"timezone": "UTC",
	}
	setupBody, _ := json.Marshal(setupPayload)
	resp, err = client.Post(baseURL+"/setup", "application/json", bytes.NewBuffer(setupBody))
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("setup failed: %d", resp.StatusCode)
	}

	// 1.3 Re-setup rejected
	resp, err = client.Post(baseURL+"/setup", "application/json", bytes.NewBuffer(setupBody))
	if err != nil {
		t.Fatalf("re-setup req failed: %v", err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for re-setup, got %d", resp.StatusCode)
	}

	// 2. Login as admin
	loginPayload := map[string]string{"username": "admin", "password": "Password123!"}
	loginBody, _ := json.Marshal(loginPayload)
	resp, err = client.Post(baseURL+"/auth/login", "application/json", bytes.NewBuffer(loginBody))
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status: %d", resp.StatusCode)
	}

	// 3. Create API key
	apiKeyPayload := map[string]string{"name": "integration-test-key"}
	keyBody, _ := json.Marshal(apiKeyPayload)
	resp, err = client.Post(baseURL+"/api-keys", "application/json", bytes.NewBuffer(keyBody))
	if err != nil {
		t.Fatalf("create api key request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create api key failed: %d", resp.StatusCode)
	}
	var keyResp map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&keyResp); err != nil {
		t.Fatalf("failed to decode key response: %v", err)
	}
	apiKey := keyResp["key"]
	if apiKey == "" {
		t.Fatal("empty api key returned")
	}

	// 4. Use the API key (no cookies) to create a monitor
	apiClient := &http.Client{}

	monPayload := map[string]interface{}{
		"name":     "Go Monitor",
		"url":      "https://example.com",
		"interval": 60,
	}
	monBody, _ := json.Marshal(monPayload)
	req, _ := http.NewRequest("POST", baseURL+"/monitors", bytes.NewBuffer(monBody))
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err = apiClient.Do(req)
	if err != nil {
		t.Fatalf("create monitor req failed: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create monitor failed: %d", resp.StatusCode)
	}
	var monResp map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&monResp); err != nil {
		t.Fatalf("failed to decode monitor response: %v", err)
	}
	monitorID, _ := monResp["id"].(string)
	if monitorID == "" {
		t.Fatal("empty monitor id")
	}

	checkMon, _ := store.GetMonitors()
	found := false
	for _, m := range checkMon {
		if strings.Contains(m.Name, "Go Monitor") {
			found = true
			break
		}
	}
	if !found {
		t.Fatal("monitor not found in DB after API creation")
	}

	// 5. Submit a probe result for it via the API key
	probePayload := map[string]interface{}{
		"monitorId":      monitorID,
		"isUp":           true,
		"responseTimeMs": 120,
		"statusCode":     200,
	}
	probeBody, _ := json.Marshal(probePayload)
	req, _ = http.NewRequest("POST", baseURL+"/probe-results", bytes.NewBuffer(probeBody))
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err = apiClient.Do(req)
	if err != nil {
		t.Fatalf("submit probe result req failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit probe result failed: %d", resp.StatusCode)
	}

	t.Log("Success: API Key Integration Test Passed")
}
