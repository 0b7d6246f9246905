// Package notify is the C5 Notifier: it posts a plain-text status message to
// a webhook endpoint (Slack-compatible {"text": "..."} payload), exactly as
// notifications.rs does. Transport failures are surfaced; a non-2xx
// response is logged but not treated as fatal, since a missed notification
// should never block image patching.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"
)

// NotificationSender is the capability interface the orchestrator depends
// on (spec.md §9's NotificationSender trait).
type NotificationSender interface {
	Send(ctx context.Context, message, endpoint string) error
}

type payload struct {
	Text string `json:"text"`
}

// HTTPNotificationSender posts message as {"text": message} to endpoint.
type HTTPNotificationSender struct {
	HTTPClient *http.Client
}

var _ NotificationSender = (*HTTPNotificationSender)(nil)

// NewHTTPNotificationSender builds a sender with a bounded-timeout client.
func NewHTTPNotificationSender() *HTTPNotificationSender {
	return &HTTPNotificationSender{HTTPClient: &http.Client{Timeout: 10 * time.Second}}
}

func (s *HTTPNotificationSender) Send(ctx context.Context, message, endpoint string) error {
	logger := log.Log.WithName("notify").WithValues("endpoint", endpoint)

	body, err := json.Marshal(payload{Text: message})
	if err != nil {
		return fmt.Errorf("encoding notification payload: %w", err)
	}

	client := s.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Info("notification endpoint returned a non-success status", "status", resp.StatusCode)
	}
	return nil
}
