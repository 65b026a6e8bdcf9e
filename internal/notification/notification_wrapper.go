package notification

import (
	"context"

	"github.com/smartdevs17/content-rewards/internal/metrics"
)

// channelWithMetrics records a delivery metric around a channel
type channelWithMetrics struct {
	Channel
	metricsManager *metrics.Manager
}

func withMetrics(channel Channel, metricsManager *metrics.Manager) Channel {
	if metricsManager == nil {
		return channel
	}
	return &channelWithMetrics{Channel: channel, metricsManager: metricsManager}
}

// Send delivers the event and records the result
func (c *channelWithMetrics) Send(ctx context.Context, event *Event) error {
	err := c.Channel.Send(ctx, event)

	prometheus := c.metricsManager.GetPrometheusMetrics()
	if err != nil {
		prometheus.RecordNotificationFailure(c.Name(), string(event.Kind))
	} else {
		prometheus.RecordNotificationSent(c.Name(), string(event.Kind))
	}
	return err
}
