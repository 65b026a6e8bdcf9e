package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/content-rewards/pkg/utils"
)

// WebhookSender posts events as JSON to a fixed URL
type WebhookSender struct {
	url        string
	headers    map[string]string
	attempts   int
	baseDelay  time.Duration
	maxDelay   time.Duration
	logger     *logrus.Entry
	httpClient *http.Client
}

// WebhookPayload defines the webhook payload structure
type WebhookPayload struct {
	Event     Kind      `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Type      string    `json:"type"`
	Data      *Event    `json:"data"`
	Version   string    `json:"version"`
}

// WebhookResponse represents a webhook response
type WebhookResponse struct {
	StatusCode   int
	ResponseTime time.Duration
	Success      bool
	Error        error
	Body         string
}

// NewWebhookSender creates a new webhook sender
func NewWebhookSender(config *NotificationManagerConfig) *WebhookSender {
	timeout := config.WebhookTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	attempts := config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	return &WebhookSender{
		url:       config.WebhookURL,
		headers:   map[string]string{},
		attempts:  attempts,
		baseDelay: config.RetryDelay,
		maxDelay:  30 * time.Second,
		logger:    utils.ComponentLogger("webhook_sender"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// SetHeader adds a header sent with every webhook
func (ws *WebhookSender) SetHeader(key, value string) {
	ws.headers[key] = value
}

// Name returns the channel name
func (ws *WebhookSender) Name() string {
	return "webhook"
}

// Stop releases idle connections
func (ws *WebhookSender) Stop() {
	ws.httpClient.CloseIdleConnections()
}

// Send posts the event, retrying with exponential backoff
func (ws *WebhookSender) Send(ctx context.Context, event *Event) error {
	payload := &WebhookPayload{
		Event:     event.Kind,
		Timestamp: time.Now().UTC(),
		Source:    "content-rewards",
		Type:      "contest_outcome",
		Data:      event,
		Version:   "1.0",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return utils.WrapAppError(utils.ErrCodeInternal, "Failed to marshal webhook payload", err)
	}

	var last *WebhookResponse
	for attempt := 1; attempt <= ws.attempts; attempt++ {
		if attempt > 1 {
			delay := ws.retryDelay(attempt)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return utils.WrapAppError(utils.ErrCodeCancelled, "Webhook delivery abandoned", ctx.Err())
			}
		}

		last = ws.sendOnce(ctx, body)
		if last.Success {
			ws.logger.WithFields(logrus.Fields{
				"url":           ws.url,
				"status_code":   last.StatusCode,
				"response_time": last.ResponseTime,
			}).Debug("Webhook sent successfully")
			return nil
		}

		if attempt < ws.attempts {
			ws.logger.WithFields(logrus.Fields{
				"url":         ws.url,
				"attempt":     attempt,
				"status_code": last.StatusCode,
				"error":       last.Error,
			}).Warn("Webhook attempt failed, retrying")
		}
	}

	return last.Error
}

func (ws *WebhookSender) sendOnce(ctx context.Context, body []byte) *WebhookResponse {
	start := time.Now()
	response := &WebhookResponse{}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.url, bytes.NewReader(body))
	if err != nil {
		response.Error = utils.WrapAppError(utils.ErrCodeConfiguration, "Failed to create webhook request", err)
		return response
	}
	for key, value := range ws.headers {
		req.Header.Set(key, value)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "content-rewards/1.0")
	req.Header.Set("X-Timestamp", fmt.Sprintf("%d", start.Unix()))
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := ws.httpClient.Do(req)
	response.ResponseTime = time.Since(start)
	if err != nil {
		response.Error = utils.WrapAppError(utils.ErrCodeTransport, "Failed to send webhook", err)
		return response
	}
	defer resp.Body.Close()

	response.StatusCode = resp.StatusCode
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	response.Body = string(snippet)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		response.Success = true
	} else {
		response.Error = utils.NewAppError(utils.ErrCodeTransport,
			"Webhook returned non-success status",
			fmt.Sprintf("status: %d, body: %s", resp.StatusCode, response.Body))
	}
	return response
}

// retryDelay doubles the base delay per attempt up to maxDelay
func (ws *WebhookSender) retryDelay(attempt int) time.Duration {
	delay := time.Duration(int64(ws.baseDelay) << uint(attempt-2))
	if delay > ws.maxDelay || delay < 0 {
		delay = ws.maxDelay
	}
	return delay
}
