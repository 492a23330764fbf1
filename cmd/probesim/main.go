// Command probesim is a synthetic load generator for a running sentineld
// instance: it logs in, creates a batch of monitors, then feeds each one a
// stream of probe results over /api/probe-results so the hysteresis engine,
// incident manager, and event stream can be exercised without depending on
// real network targets.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"time"
)

const baseURL = "http://localhost:9090"

func main() {
	count := flag.Int("count", 50, "Number of monitors to create")
	ticks := flag.Int("ticks", 20, "Number of probe results to feed per monitor")
	failRate := flag.Float64("fail-rate", 0.2, "Fraction of probe results that report down")
	cleanup := flag.Bool("delete", false, "Delete created monitors after the run")
	flag.Parse()

	jar, _ := cookiejar.New(nil)
	client := &http.Client{
		Jar:     jar,
		Timeout: 10 * time.Second,
	}

	log.Println("logging in...")
	if err := login(client, "admin", "password"); err != nil {
		log.Fatalf("login failed: %v", err)
	}

	log.Printf("creating %d monitors...\n", *count)
	var monitorIDs []string
	for i := 0; i < *count; i++ {
		name := fmt.Sprintf("probesim monitor %d", i)
		id, err := createMonitor(client, name, fmt.Sprintf("https://example.com/%d", i))
		if err != nil {
			log.Printf("failed to create monitor %d: %v", i, err)
			continue
		}
		monitorIDs = append(monitorIDs, id)
		fmt.Printf(".")
		if (i+1)%10 == 0 {
			fmt.Println()
		}
	}
	fmt.Println("\ndone creating monitors.")

	log.Printf("feeding %d probe results per monitor (fail rate %.0f%%)...\n", *ticks, *failRate*100)
	for t := 0; t < *ticks; t++ {
		for _, id := range monitorIDs {
			isUp := rand.Float64() >= *failRate
			if err := submitProbeResult(client, id, isUp); err != nil {
				log.Printf("probe result for %s failed: %v", id, err)
			}
		}
		time.Sleep(200 * time.Millisecond)
	}

	if *cleanup {
		log.Println("deleting monitors...")
		for _, id := range monitorIDs {
			if err := deleteMonitor(client, id); err != nil {
				log.Printf("failed to delete monitor %s: %v", id, err)
			}
		}
	}

	log.Println("probesim run complete")
}

func login(client *http.Client, username, password string) error {
	payload := map[string]string{"username": username, "password": password}
	data, _ := json.Marshal(payload)
	resp, err := client.Post(baseURL+"/api/auth/login", "application/json", bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func createMonitor(client *http.Client, name, url string) (string, error) {
	payload := map[string]interface{}{
		"name":     name,
		"url":      url,
		"interval": 60,
	}
	data, _ := json.Marshal(payload)
	resp, err := client.Post(baseURL+"/api/monitors", "application/json", bytes.NewBuffer(data))
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	var res map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", err
	}
	id, ok := res["id"].(string)
	if !ok {
		return "", fmt.Errorf("no id in response")
	}
	return id, nil
}

func submitProbeResult(client *http.Client, monitorID string, isUp bool) error {
	payload := map[string]interface{}{
		"monitorId":      monitorID,
		"isUp":           isUp,
		"responseTimeMs": 80 + rand.Int63n(400),
	}
	if isUp {
		payload["statusCode"] = 200
	} else {
		payload["statusCode"] = 500
		payload["errorKind"] = "http_5xx"
	}
	data, _ := json.Marshal(payload)
	resp, err := client.Post(baseURL+"/api/probe-results", "application/json", bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func deleteMonitor(client *http.Client, id string) error {
	req, err := http.NewRequest("DELETE", baseURL+"/api/monitors/"+id, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
