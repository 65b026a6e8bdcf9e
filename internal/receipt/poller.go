// Package receipt waits for ledger writes to reach a terminal status.
package receipt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/content-rewards/internal/config"
	"github.com/smartdevs17/content-rewards/internal/ledger"
	"github.com/smartdevs17/content-rewards/internal/metrics"
	"github.com/smartdevs17/content-rewards/internal/models"
	"github.com/smartdevs17/content-rewards/pkg/utils"
)

// Budget bounds how long a write is polled
type Budget struct {
	MaxAttempts int
	Interval    time.Duration
}

// Total returns the worst-case wait of the budget
func (b Budget) Total() time.Duration {
	return time.Duration(b.MaxAttempts) * b.Interval
}

// ShortBudget covers create and close, about two minutes by default
func ShortBudget(cfg config.PollingConfig) Budget {
	return Budget{MaxAttempts: cfg.ShortAttempts, Interval: cfg.Interval}
}

// LongBudget covers submissions, which also wait on the content validator
func LongBudget(cfg config.PollingConfig) Budget {
	return Budget{MaxAttempts: cfg.LongAttempts, Interval: cfg.Interval}
}

// TimeoutError means the budget ran out before a terminal status was seen.
// The write's real outcome is unknown.
type TimeoutError struct {
	Handle   models.TxHandle
	Attempts int
	Waited   time.Duration
	Last     models.TxStatus
}

func (e *TimeoutError) Error() string {
	last := string(e.Last)
	if last == "" {
		last = "unknown"
	}
	return fmt.Sprintf("%s: transaction %s not final after %d attempts (last status %s)",
		utils.ErrCodeTimeout, e.Handle.Hash.Hex(), e.Attempts, last)
}

// ErrorCode returns the timeout error code
func (e *TimeoutError) ErrorCode() string {
	return utils.ErrCodeTimeout
}

// IsTimeout reports whether err is a polling timeout
func IsTimeout(err error) bool {
	var timeout *TimeoutError
	return errors.As(err, &timeout)
}

// Poller polls receipts at a fixed interval
type Poller struct {
	fetcher ledger.ReceiptFetcher
	metrics *metrics.Manager
	logger  *logrus.Entry
}

// NewPoller creates a poller over a receipt source
func NewPoller(fetcher ledger.ReceiptFetcher, metricsManager *metrics.Manager) *Poller {
	return &Poller{
		fetcher: fetcher,
		metrics: metricsManager,
		logger:  utils.ComponentLogger("receipt_poller"),
	}
}

// Await blocks until the write reaches a terminal status, the budget is
// exhausted or ctx ends. Cancellation abandons polling only; the write
// itself may still finalize on the ledger.
func (p *Poller) Await(ctx context.Context, handle models.TxHandle, budget Budget) (*models.Receipt, error) {
	if budget.MaxAttempts <= 0 {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Polling budget must allow at least one attempt")
	}

	start := time.Now()
	var last models.TxStatus

	logger := p.logger.WithFields(logrus.Fields{
		"tx_hash": handle.Hash.Hex(),
		"method":  handle.Method,
	})

	for attempt := 1; attempt <= budget.MaxAttempts; attempt++ {
		receipt, err := p.fetcher.Receipt(ctx, handle.Hash)
		switch {
		case err != nil && (ctx.Err() != nil || utils.IsCode(err, utils.ErrCodeCancelled)):
			p.recordWait(handle, "cancelled", start)
			return nil, utils.WrapAppError(utils.ErrCodeCancelled, "Receipt polling abandoned", err)

		case err != nil:
			// Receipt reads are safe to repeat; a failed poll spends one attempt.
			p.recordPoll("error")
			logger.WithFields(logrus.Fields{"attempt": attempt, "error": err}).Warn("Receipt poll failed")

		case receipt == nil:
			p.recordPoll("unknown")
			logger.WithField("attempt", attempt).Debug("Transaction not yet known")

		case receipt.Status.IsTerminal():
			p.recordPoll("terminal")
			p.recordWait(handle, "terminal", start)
			logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"status":  receipt.Status,
			}).Info("Transaction reached terminal status")
			return receipt, nil

		default:
			last = receipt.Status
			p.recordPoll("pending")
			logger.WithFields(logrus.Fields{"attempt": attempt, "status": receipt.Status}).Debug("Transaction not final")
		}

		if attempt == budget.MaxAttempts {
			break
		}

		timer := time.NewTimer(budget.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.recordWait(handle, "cancelled", start)
			return nil, utils.WrapAppError(utils.ErrCodeCancelled, "Receipt polling abandoned", ctx.Err())
		case <-timer.C:
		}
	}

	p.recordWait(handle, "timeout", start)
	logger.WithFields(logrus.Fields{
		"attempts":    budget.MaxAttempts,
		"last_status": last,
	}).Warn("Receipt polling budget exhausted")

	return nil, &TimeoutError{
		Handle:   handle,
		Attempts: budget.MaxAttempts,
		Waited:   time.Since(start),
		Last:     last,
	}
}

func (p *Poller) recordPoll(result string) {
	if p.metrics == nil {
		return
	}
	p.metrics.GetPrometheusMetrics().RecordReceiptPoll(result)
}

func (p *Poller) recordWait(handle models.TxHandle, result string, start time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.GetPrometheusMetrics().RecordReceiptWait(handle.Method, result, time.Since(start))
}
