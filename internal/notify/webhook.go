package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/stayops/calsync-backend/internal/config"
	"github.com/stayops/calsync-backend/internal/utils"
)

// WebhookNotifier posts alerts as JSON to a configured webhook URL. Transient
// failures are retried with backoff; a message that still fails is dropped
// after logging, matching the best-effort contract.
type WebhookNotifier struct {
	url    string
	client *http.Client
	retry  utils.RetryConfig
	logger *utils.Logger
}

type webhookPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// NewWebhookNotifier creates a notifier posting to the configured URL
func NewWebhookNotifier(cfg config.NotifierConfig) *WebhookNotifier {
	return &WebhookNotifier{
		url: cfg.WebhookURL,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		retry:  utils.DefaultRetryConfig(),
		logger: utils.NewLogger("notifier"),
	}
}

// Send delivers one alert, retrying transient failures
func (n *WebhookNotifier) Send(ctx context.Context, title, body string) error {
	payload, err := json.Marshal(webhookPayload{Title: title, Body: body})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	result := utils.Retry(ctx, n.retry, func(ctx context.Context, attempt int) error {
		return n.post(ctx, payload)
	}, utils.IsTemporaryError)

	if result.LastErr != nil {
		n.logger.Error("Notification delivery failed",
			zap.String("title", title),
			zap.Int("attempts", result.Attempts),
			zap.Error(result.LastErr),
		)
		return fmt.Errorf("failed to deliver notification: %w", result.LastErr)
	}

	n.logger.Info("Notification delivered",
		zap.String("title", title),
		zap.Int("attempts", result.Attempts),
	)

	return nil
}

func (n *WebhookNotifier) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	return nil
}
