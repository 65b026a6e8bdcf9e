package notification

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/content-rewards/pkg/utils"
)

// LogChannel writes events to the application log
type LogChannel struct {
	logger *logrus.Entry
}

// NewLogChannel creates a log channel on the global logger
func NewLogChannel() *LogChannel {
	return &LogChannel{logger: utils.ComponentLogger("outcome")}
}

// Name returns the channel name
func (l *LogChannel) Name() string {
	return "log"
}

// Send logs the event at a level matching its kind
func (l *LogChannel) Send(ctx context.Context, event *Event) error {
	fields := logrus.Fields{
		"notification_id": event.ID,
		"action":          event.Action,
		"outcome":         event.Kind,
	}
	if event.ContestID != nil {
		fields["contest_id"] = *event.ContestID
	}
	if event.Wallet != "" {
		fields["wallet"] = event.Wallet
	}
	if event.TxHash != "" {
		fields["tx_hash"] = event.TxHash
	}
	if event.Reason != "" {
		fields["reason"] = event.Reason
	}
	if event.Error != "" {
		fields["error"] = event.Error
	}

	entry := l.logger.WithFields(fields)
	switch event.Kind {
	case KindCreated, KindAccepted, KindClosed:
		entry.Info(message(event.Kind))
	case KindRejected, KindVoided, KindUnknown:
		entry.Warn(message(event.Kind))
	default:
		entry.Error(message(event.Kind))
	}
	return nil
}

func message(kind Kind) string {
	switch kind {
	case KindCreated:
		return "Contest created successfully"
	case KindAccepted:
		return "Submission accepted"
	case KindRejected:
		return "Submission rejected"
	case KindVoided:
		return "Submission voided, contest reached maximum winners"
	case KindClosed:
		return "Contest closed successfully"
	case KindUnknown:
		return "Transaction status unknown, refresh to check"
	default:
		return "Action failed"
	}
}
