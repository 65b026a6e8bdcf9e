package orchestrator

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/content-rewards/internal/models"
	"github.com/smartdevs17/content-rewards/internal/notification"
	"github.com/smartdevs17/content-rewards/internal/receipt"
	"github.com/smartdevs17/content-rewards/internal/storage"
	"github.com/smartdevs17/content-rewards/internal/syncer"
	"github.com/smartdevs17/content-rewards/internal/wallet"
	"github.com/smartdevs17/content-rewards/pkg/utils"
)

// ReconcileReport summarises one reconciliation pass
type ReconcileReport struct {
	Checked      int                     `json:"checked"`
	Resolved     int                     `json:"resolved"`
	StillUnknown int                     `json:"still_unknown"`
	Entries      []*storage.JournalEntry `json:"entries"`
}

// Reconcile checks every journaled write whose outcome was never observed.
// Each gets a single receipt read; resolved writes invalidate their views.
// Pending writes are only taken once their polling budget has run out.
func (o *Orchestrator) Reconcile(ctx context.Context, sess *Session) (*ReconcileReport, error) {
	if !sess.Configured() {
		return nil, notConfigured()
	}
	if o.journal == nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Transaction journal is not enabled")
	}

	entries, err := o.journal.List(ctx, storage.JournalFilter{
		States: []storage.EntryState{storage.StatePending, storage.StateTimedOut, storage.StateAbandoned},
	})
	if err != nil {
		return nil, err
	}

	// A pending entry younger than the longest polling budget may still be
	// awaited by the flow that issued it.
	cutoff := o.now().Add(-receipt.LongBudget(o.polling).Total())
	due := entries[:0]
	for _, entry := range entries {
		if entry.State == storage.StatePending && entry.CreatedAt.After(cutoff) {
			continue
		}
		due = append(due, entry)
	}

	poller := receipt.NewPoller(sess.Contract(), o.metrics)
	budget := receipt.Budget{MaxAttempts: 1, Interval: o.polling.Interval}
	report := &ReconcileReport{Entries: due}

	for _, entry := range due {
		if err := ctx.Err(); err != nil {
			return report, utils.WrapAppError(utils.ErrCodeCancelled, "Reconciliation abandoned", err)
		}
		report.Checked++

		handle := models.TxHandle{
			Hash:   common.HexToHash(entry.TxHash),
			Method: entry.Action,
			From:   entry.Wallet,
		}
		rcpt, err := poller.Await(ctx, handle, budget)
		if err != nil {
			if !receipt.IsTimeout(err) {
				return report, err
			}
			report.StillUnknown++
			continue
		}

		o.resolve(ctx, entry, rcpt)
		report.Resolved++
	}

	o.logger.WithFields(logrus.Fields{
		"checked":       report.Checked,
		"resolved":      report.Resolved,
		"still_unknown": report.StillUnknown,
	}).Info("Reconciliation finished")
	return report, nil
}

// resolve settles a journal entry from a terminal receipt found later
func (o *Orchestrator) resolve(ctx context.Context, entry *storage.JournalEntry, rcpt *models.Receipt) {
	w := pendingWrite{
		action:    syncer.Action(entry.Action),
		contestID: entry.ContestID,
		signer:    addressOnly(common.HexToAddress(entry.Wallet)),
	}

	event := &notification.Event{
		Action:    entry.Action,
		ContestID: entry.ContestID,
		Wallet:    entry.Wallet,
		TxHash:    entry.TxHash,
	}

	if rcpt.Reverted() {
		o.settle(ctx, w, entry, storage.StateRejectedByLedger, nil, rcpt.ExecutionError)
		event.Kind = notification.KindFailed
		event.Error = rcpt.ExecutionError
		o.notify(ctx, event)
		return
	}

	outcome, err := interpret(w.action, w.contestID, rcpt)
	if err != nil {
		o.settle(ctx, w, entry, storage.StateConfirmed, nil, err.Error())
		return
	}
	o.settle(ctx, w, entry, storage.StateConfirmed, outcome, "")

	event.Kind = outcome.kind()
	event.ContestID = outcome.ContestID
	event.Reason = outcome.Reason
	o.notify(ctx, event)
}

// addressOnly stands in for the wallet of a journaled write; it identifies
// the views to invalidate and never signs
type addressOnly common.Address

func (a addressOnly) Address() common.Address { return common.Address(a) }

func (a addressOnly) Sign(ctx context.Context, digest common.Hash) ([]byte, error) {
	return nil, utils.NewAppError(utils.ErrCodeInternal, "Journaled wallet cannot sign")
}

var _ wallet.Signer = addressOnly{}
