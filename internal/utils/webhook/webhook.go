package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dwarvesf/treasury-settlement/internal/utils/logger"
)

// Alert is the payload posted to the operations channel when the pipeline
// gives up on something that needs a human.
type Alert struct {
	Kind       string            `json:"kind"`
	TenantID   string            `json:"tenant_id,omitempty"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Client is a small HTTP client for outbound operational webhooks.
type Client struct {
	httpClient *http.Client
	logger     *logger.Logger
}

func New(logger *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// CallUptimeWebhook pings a heartbeat URL after a background job succeeds.
func (c *Client) CallUptimeWebhook(ctx context.Context, webhookURL string) {
	if webhookURL == "" {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, webhookURL, nil)
	if err != nil {
		c.logger.Error("[CallUptimeWebhook][NewRequest]", map[string]string{
			"url":   webhookURL,
			"error": err.Error(),
		})
		return
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("[CallUptimeWebhook][Do]", map[string]string{
			"url":   webhookURL,
			"error": err.Error(),
		})
		return
	}
	defer resp.Body.Close()

	c.logger.Debug("[CallUptimeWebhook] heartbeat sent", map[string]string{
		"url":         webhookURL,
		"status_code": resp.Status,
	})
}

// SendAlert posts the alert as JSON. An empty URL only logs it.
func (c *Client) SendAlert(ctx context.Context, webhookURL string, alert Alert) error {
	if alert.OccurredAt.IsZero() {
		alert.OccurredAt = time.Now().UTC()
	}

	fields := map[string]string{
		"kind":      alert.Kind,
		"tenant_id": alert.TenantID,
		"message":   alert.Message,
	}
	for k, v := range alert.Details {
		fields[k] = v
	}
	c.logger.Error("[SendAlert] "+alert.Kind, fields)

	if webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode)
	}
	return nil
}
