package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/notipi/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ChannelSender = (*WebhookSender)(nil)

// webhookPayload is the JSON body posted to a provider gateway.
type webhookPayload struct {
	JobID   string `json:"jobId"`
	Channel string `json:"channel"`
	To      string `json:"to"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}

// WebhookSender posts SMS and push messages to an HTTP gateway that fronts
// the real provider. The job id travels as an Idempotency-Key header so the
// gateway can drop redelivered jobs.
type WebhookSender struct {
	client *http.Client
	url    string
	token  string
}

// NewWebhookSender creates a WebhookSender for url. The transport sleeps out
// 429 and secondary rate limit responses before handing them back.
func NewWebhookSender(url, token string, timeout time.Duration) *WebhookSender {
	client := github_ratelimit.NewClient(http.DefaultTransport)
	client.Timeout = timeout
	return &WebhookSender{client: client, url: url, token: token}
}

// NewWebhookSenderWithHTTPClient creates a WebhookSender with a custom
// http.Client. It is intended for tests against an httptest server.
func NewWebhookSenderWithHTTPClient(client *http.Client, url, token string) *WebhookSender {
	return &WebhookSender{client: client, url: url, token: token}
}

// Send posts msg with its body reduced to plain text. 4xx responses other
// than 408 and 429 are permanent.
func (s *WebhookSender) Send(ctx context.Context, msg driven.Message) error {
	body, err := json.Marshal(webhookPayload{
		JobID:   msg.JobID,
		Channel: string(msg.Channel),
		To:      msg.Recipient,
		Subject: msg.Subject,
		Body:    PlainText(msg.Body),
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", msg.JobID)
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s message: %w", msg.Channel, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err = fmt.Errorf("gateway returned %d for %s: %s", resp.StatusCode, msg.Channel, bytes.TrimSpace(detail))
	if isPermanentStatus(resp.StatusCode) {
		return fmt.Errorf("%w: %w", driven.ErrPermanent, err)
	}
	return err
}

func isPermanentStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return false
	}
	return code >= 400 && code < 500
}
