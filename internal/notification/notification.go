// Package notification tells people what became of their contest actions.
package notification

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/content-rewards/internal/config"
	"github.com/smartdevs17/content-rewards/internal/metrics"
	"github.com/smartdevs17/content-rewards/pkg/utils"
)

// Kind is the outcome an event reports
type Kind string

const (
	KindCreated  Kind = "created"
	KindAccepted Kind = "accepted"
	KindRejected Kind = "rejected"
	KindVoided   Kind = "voided"
	KindClosed   Kind = "closed"
	KindUnknown  Kind = "unknown"
	KindFailed   Kind = "failed"
)

// Event describes the end of one action
type Event struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Action    string    `json:"action"`
	ContestID *uint64   `json:"contest_id,omitempty"`
	Wallet    string    `json:"wallet,omitempty"`
	TxHash    string    `json:"tx_hash,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Channel delivers events to one destination
type Channel interface {
	Name() string
	Send(ctx context.Context, event *Event) error
}

// Notifier defines the notification interface
type Notifier interface {
	// Lifecycle management
	Start(ctx context.Context) error
	Stop() error
	IsHealthy() bool

	Notify(ctx context.Context, event *Event) error

	GetStats() *NotificationStats
}

// NotificationManager fans events out to every configured channel
type NotificationManager struct {
	config *NotificationManagerConfig
	logger *logrus.Entry

	mu       sync.RWMutex
	running  bool
	channels []Channel
	webhook  *WebhookSender

	stats *NotificationStats
}

// NotificationManagerConfig holds notification manager configuration
type NotificationManagerConfig struct {
	Enabled        bool          `json:"enabled"`
	Channels       []string      `json:"channels"`
	WebhookURL     string        `json:"webhook_url"`
	WebhookTimeout time.Duration `json:"webhook_timeout"`
	RetryAttempts  int           `json:"retry_attempts"`
	RetryDelay     time.Duration `json:"retry_delay"`
}

// NotificationStats provides notification statistics
type NotificationStats struct {
	TotalNotificationsSent   uint64          `json:"total_notifications_sent"`
	TotalNotificationsFailed uint64          `json:"total_notifications_failed"`
	ByKind                   map[Kind]uint64 `json:"by_kind"`
	ActiveChannels           int             `json:"active_channels"`
	LastError                *string         `json:"last_error,omitempty"`
	LastErrorTime            *time.Time      `json:"last_error_time,omitempty"`
}

// NewManagerConfig builds the manager configuration from application settings
func NewManagerConfig(cfg config.NotificationConfig) *NotificationManagerConfig {
	return &NotificationManagerConfig{
		Enabled:        cfg.Enabled,
		Channels:       cfg.Channels,
		WebhookURL:     cfg.WebhookURL,
		WebhookTimeout: cfg.WebhookTimeout,
		RetryAttempts:  3,
		RetryDelay:     time.Second,
	}
}

// NewNotificationManager creates a manager with the configured channels.
// metricsManager may be nil.
func NewNotificationManager(cfg *NotificationManagerConfig, metricsManager *metrics.Manager) (*NotificationManager, error) {
	nm := &NotificationManager{
		config: cfg,
		logger: utils.ComponentLogger("notification"),
		stats:  &NotificationStats{ByKind: make(map[Kind]uint64)},
	}

	for _, name := range cfg.Channels {
		var channel Channel
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "log":
			channel = NewLogChannel()
		case "webhook":
			if cfg.WebhookURL == "" {
				return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Webhook channel requires a webhook URL")
			}
			nm.webhook = NewWebhookSender(cfg)
			channel = nm.webhook
		default:
			return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Unsupported notification channel", name)
		}
		nm.channels = append(nm.channels, withMetrics(channel, metricsManager))
	}

	return nm, nil
}

// Start starts the notification manager
func (nm *NotificationManager) Start(ctx context.Context) error {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	if nm.running {
		return utils.NewAppError(utils.ErrCodeInternal, "Notification manager already running", "")
	}
	nm.running = true

	nm.logger.WithField("channels", len(nm.channels)).Info("Notification manager started")
	return nil
}

// Stop stops the notification manager
func (nm *NotificationManager) Stop() error {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	if !nm.running {
		return nil
	}
	nm.running = false

	if nm.webhook != nil {
		nm.webhook.Stop()
	}

	nm.logger.Info("Notification manager stopped")
	return nil
}

// IsHealthy returns whether the notification manager is running
func (nm *NotificationManager) IsHealthy() bool {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	return nm.running
}

// Notify delivers event to every channel. A failing channel does not stop the
// others; the joined failures are returned for logging only.
func (nm *NotificationManager) Notify(ctx context.Context, event *Event) error {
	if !nm.config.Enabled || event == nil {
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	var errs []error
	for _, channel := range nm.channels {
		err := channel.Send(ctx, event)
		nm.updateNotificationStats(event.Kind, err)
		if err != nil {
			nm.logger.WithFields(logrus.Fields{
				"notification_id": event.ID,
				"channel":         channel.Name(),
				"kind":            event.Kind,
				"error":           err,
			}).Warn("Failed to deliver notification")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// updateNotificationStats updates notification statistics
func (nm *NotificationManager) updateNotificationStats(kind Kind, err error) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	if err != nil {
		nm.stats.TotalNotificationsFailed++
		errorStr := err.Error()
		nm.stats.LastError = &errorStr
		now := time.Now()
		nm.stats.LastErrorTime = &now
		return
	}
	nm.stats.TotalNotificationsSent++
	nm.stats.ByKind[kind]++
}

// GetStats returns a snapshot of notification statistics
func (nm *NotificationManager) GetStats() *NotificationStats {
	nm.mu.RLock()
	defer nm.mu.RUnlock()

	stats := *nm.stats
	stats.ByKind = make(map[Kind]uint64, len(nm.stats.ByKind))
	for k, v := range nm.stats.ByKind {
		stats.ByKind[k] = v
	}
	stats.ActiveChannels = len(nm.channels)
	return &stats
}
