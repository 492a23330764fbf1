// Package notifications dispatches confirmed health-state transitions to a
// Slack incoming webhook. It satisfies internal/engine.Notifier.
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/pulsewatch/sentinel/internal/config"
	"github.com/pulsewatch/sentinel/internal/db"
	"github.com/pulsewatch/sentinel/internal/engine"
	"github.com/pulsewatch/sentinel/internal/state"
	"github.com/pulsewatch/sentinel/internal/verification"
)

// minSendInterval bounds how often this service will place an outbound
// webhook call, independent of how many monitors are flapping at once.
const minSendInterval = 500 * time.Millisecond

// Dispatcher queues confirmed state-change notifications and delivers them
// to the configured Slack webhook. It implements engine.Notifier.
type Dispatcher struct {
	store   *db.Store
	slack   config.SlackConfig
	queue   chan engine.Notification
	limiter *rate.Limiter
	sender  Sender
}

// NewDispatcher constructs a Dispatcher that looks up monitor names/URLs
// from store and delivers to the Slack webhook described by slack. Call
// Start to begin draining the queue.
func NewDispatcher(store *db.Store, slack config.SlackConfig) *Dispatcher {
	return &Dispatcher{
		store:   store,
		slack:   slack,
		queue:   make(chan engine.Notification, 200),
		limiter: rate.NewLimiter(rate.Every(minSendInterval), 1),
		sender:  NewSlackSender(slack.WebhookURL),
	}
}

// Start launches the worker goroutine that drains the queue.
func (d *Dispatcher) Start(ctx context.Context) {
	go d.worker(ctx)
}

// Notify enqueues a notification for delivery. It never blocks the caller:
// a full queue drops the event and logs it, since a missed Slack ping is
// far less costly than stalling the engine's tick loop.
func (d *Dispatcher) Notify(ctx context.Context, n engine.Notification) {
	if !d.slack.Enabled {
		return
	}
	select {
	case d.queue <- n:
	default:
		log.Printf("notification queue full, dropping event for monitor %s", n.MonitorID)
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-d.queue:
			if !ok {
				return
			}
			if err := d.limiter.Wait(ctx); err != nil {
				return
			}
			d.dispatch(n)
		}
	}
}

func (d *Dispatcher) dispatch(n engine.Notification) {
	name, url := n.MonitorID, ""
	if mon, err := d.store.GetMonitorByID(n.MonitorID); err != nil {
		log.Printf("failed to load monitor %s for notification: %v", n.MonitorID, err)
	} else if mon != nil {
		name, url = mon.Name, mon.URL
	}

	if err := d.sender.Send(Message{
		MonitorID:        n.MonitorID,
		MonitorName:      name,
		MonitorURL:       url,
		From:             n.From,
		To:               n.To,
		Reason:           n.Reason,
		At:               n.At,
		Severity:         n.Severity,
		RegionsConfirmed: n.RegionsConfirmed,
		RegionsTotal:     n.RegionsTotal,
	}); err != nil {
		log.Printf("failed to send slack notification for %s: %v", n.MonitorID, err)
	}
}

// Message is the channel-agnostic payload a Sender renders and delivers.
type Message struct {
	MonitorID   string
	MonitorName string
	MonitorURL  string
	From        state.HealthState
	To          state.HealthState
	Reason      string
	At          time.Time

	// Severity, RegionsConfirmed, and RegionsTotal carry a verification
	// alert's classification severity and "N/M locations" counts. Zero
	// valued (Severity == "") for an ordinary state-change message.
	Severity         verification.Severity
	RegionsConfirmed int
	RegionsTotal     int
}

// Sender delivers a Message to one notification channel.
type Sender interface {
	Send(m Message) error
}

// SlackSender posts a formatted attachment to a Slack incoming webhook.
type SlackSender struct {
	webhookURL string
}

func NewSlackSender(webhookURL string) *SlackSender {
	return &SlackSender{webhookURL: webhookURL}
}

func (sl *SlackSender) Send(m Message) error {
	if sl.webhookURL == "" {
		return fmt.Errorf("webhookUrl missing or invalid")
	}

	color := "#36a64f" // up
	emoji := ":white_check_mark:"
	title := "Monitor Recovered"
	switch m.To {
	case state.StateDown:
		color = "#dc3545"
		emoji = ":rotating_light:"
		title = "Monitor Down"
	case state.StateDegraded:
		color = "#ffc107"
		emoji = ":warning:"
		title = "Monitor Degraded"
	}

	isVerificationAlert := m.Severity != ""
	if isVerificationAlert {
		title = "Verification Alert"
		switch m.Severity {
		case verification.SeverityCritical:
			color = "#dc3545"
			emoji = ":rotating_light:"
		case verification.SeverityWarning:
			color = "#ffc107"
			emoji = ":warning:"
		default:
			color = "#2f81f7"
			emoji = ":mag:"
		}
	}

	fields := []map[string]interface{}{
		{"title": "Monitor", "value": m.MonitorName, "short": true},
		{"title": "URL", "value": m.MonitorURL, "short": true},
		{"title": "Transition", "value": string(m.From) + " -> " + string(m.To), "short": true},
		{"title": "Reason", "value": emoji + " " + m.Reason, "short": false},
		{"title": "Time", "value": m.At.Format(time.RFC1123), "short": true},
	}
	if isVerificationAlert {
		fields = append(fields, map[string]interface{}{
			"title": "Verification",
			"value": fmt.Sprintf("%s, confirmed by %d/%d regions", m.Severity, m.RegionsConfirmed, m.RegionsTotal),
			"short": true,
		})
	}

	payload := map[string]interface{}{
		"text": "*" + title + "*: " + m.MonitorName,
		"attachments": []map[string]interface{}{
			{
				"color":  color,
				"fields": fields,
			},
		},
	}

	return sendJSON(sl.webhookURL, payload)
}

func sendJSON(url string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("request failed with status code %d", resp.StatusCode)
	}

	return nil
}
