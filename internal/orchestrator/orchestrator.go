// Package orchestrator runs the user actions end to end: local checks, the
// ledger write, receipt polling, and the cache invalidation that follows.
package orchestrator

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/content-rewards/internal/config"
	"github.com/smartdevs17/content-rewards/internal/metrics"
	"github.com/smartdevs17/content-rewards/internal/models"
	"github.com/smartdevs17/content-rewards/internal/notification"
	"github.com/smartdevs17/content-rewards/internal/receipt"
	"github.com/smartdevs17/content-rewards/internal/storage"
	"github.com/smartdevs17/content-rewards/internal/syncer"
	"github.com/smartdevs17/content-rewards/internal/validation"
	"github.com/smartdevs17/content-rewards/internal/wallet"
	"github.com/smartdevs17/content-rewards/pkg/utils"
)

// Dependencies are the collaborators of an Orchestrator. Journal, Notifier and
// Metrics are optional.
type Dependencies struct {
	Syncer   *syncer.Synchronizer
	Journal  storage.Journal
	Notifier notification.Notifier
	Metrics  *metrics.Manager
}

// Orchestrator drives the create, submit and close flows
type Orchestrator struct {
	syncer   *syncer.Synchronizer
	journal  storage.Journal
	notifier notification.Notifier
	metrics  *metrics.Manager
	polling  config.PollingConfig
	logger   *logrus.Entry
	now      func() time.Time
}

// New creates an orchestrator
func New(deps Dependencies, polling config.PollingConfig) *Orchestrator {
	return &Orchestrator{
		syncer:   deps.Syncer,
		journal:  deps.Journal,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		polling:  polling,
		logger:   utils.ComponentLogger("orchestrator"),
		now:      time.Now,
	}
}

// SetClock replaces the clock used for deadline checks
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// pendingWrite is one write being carried through the flow
type pendingWrite struct {
	action    syncer.Action
	contestID *uint64
	signer    wallet.Signer
	budget    receipt.Budget
	send      func(ctx context.Context) (models.TxHandle, error)
}

// CreateContest validates params, creates the contest and waits for it to be final
func (o *Orchestrator) CreateContest(ctx context.Context, sess *Session, params models.CreateContestParams) (*Outcome, error) {
	signer, err := o.ready(sess)
	if err != nil {
		return nil, err
	}

	params, err = validation.ValidateCreateContest(params, o.now())
	if err != nil {
		o.refused(syncer.ActionCreateContest, err)
		return nil, err
	}

	return o.execute(ctx, sess, pendingWrite{
		action: syncer.ActionCreateContest,
		signer: signer,
		budget: receipt.ShortBudget(o.polling),
		send: func(ctx context.Context) (models.TxHandle, error) {
			return sess.Contract().CreateContest(ctx, signer, params)
		},
	})
}

// SubmitContent pre-checks the submission against the current read model,
// submits it and waits for the validator's decision
func (o *Orchestrator) SubmitContent(ctx context.Context, sess *Session, contestID uint64, rawURL string) (*Outcome, error) {
	signer, err := o.ready(sess)
	if err != nil {
		return nil, err
	}

	contest, err := o.syncer.Contest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	projection, err := o.syncer.UserSubmission(ctx, contestID, signer.Address())
	if err != nil {
		return nil, err
	}

	contentURL, err := validation.ValidateSubmission(contest, projection, rawURL, o.now())
	if err != nil {
		o.refused(syncer.ActionSubmitContent, err)
		return nil, err
	}

	return o.execute(ctx, sess, pendingWrite{
		action:    syncer.ActionSubmitContent,
		contestID: &contestID,
		signer:    signer,
		budget:    receipt.LongBudget(o.polling),
		send: func(ctx context.Context) (models.TxHandle, error) {
			return sess.Contract().SubmitContent(ctx, signer, contestID, contentURL)
		},
	})
}

// CloseContest closes a contest the acting wallet created
func (o *Orchestrator) CloseContest(ctx context.Context, sess *Session, contestID uint64) (*Outcome, error) {
	signer, err := o.ready(sess)
	if err != nil {
		return nil, err
	}

	contest, err := o.syncer.Contest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateClose(contest, signer.Address()); err != nil {
		o.refused(syncer.ActionCloseContest, err)
		return nil, err
	}

	return o.forceClose(ctx, sess, signer, contestID)
}

// ForceCloseContest issues the close write without the local creator check,
// leaving the decision to the ledger
func (o *Orchestrator) ForceCloseContest(ctx context.Context, sess *Session, contestID uint64) (*Outcome, error) {
	signer, err := o.ready(sess)
	if err != nil {
		return nil, err
	}
	return o.forceClose(ctx, sess, signer, contestID)
}

func (o *Orchestrator) forceClose(ctx context.Context, sess *Session, signer wallet.Signer, contestID uint64) (*Outcome, error) {
	return o.execute(ctx, sess, pendingWrite{
		action:    syncer.ActionCloseContest,
		contestID: &contestID,
		signer:    signer,
		budget:    receipt.ShortBudget(o.polling),
		send: func(ctx context.Context) (models.TxHandle, error) {
			return sess.Contract().CloseContest(ctx, signer, contestID)
		},
	})
}

// CanClose reports whether the close action should be offered to the session's wallet
func (o *Orchestrator) CanClose(ctx context.Context, sess *Session, contestID uint64) (bool, error) {
	if !sess.Configured() {
		return false, notConfigured()
	}
	account, ok := sess.Wallet()
	if !ok {
		return false, nil
	}
	contest, err := o.syncer.Contest(ctx, contestID)
	if err != nil {
		return false, err
	}
	return validation.CanClose(contest, account), nil
}

// execute sends the write, polls its receipt and settles the result
func (o *Orchestrator) execute(ctx context.Context, sess *Session, w pendingWrite) (*Outcome, error) {
	account := w.signer.Address()
	logger := o.logger.WithFields(logrus.Fields{
		"action": w.action,
		"wallet": account.Hex(),
	})
	if w.contestID != nil {
		logger = logger.WithField("contest_id", *w.contestID)
	}

	handle, err := w.send(ctx)
	if err != nil {
		// Nothing reached the ledger, so no view can have changed.
		logger.WithField("error", err).Error("Write failed")
		o.recordAction(w.action, "failed")
		o.notify(ctx, &notification.Event{
			Kind:      notification.KindFailed,
			Action:    string(w.action),
			ContestID: w.contestID,
			Wallet:    account.Hex(),
			Error:     err.Error(),
		})
		return nil, err
	}

	logger = logger.WithField("tx_hash", handle.Hash.Hex())
	logger.Info("Write submitted")

	entry := o.journalRecord(ctx, w, handle)

	rcpt, err := receipt.NewPoller(sess.Contract(), o.metrics).Await(ctx, handle, w.budget)
	if err != nil {
		return nil, o.unresolved(ctx, w, handle, entry, err, logger)
	}

	if rcpt.Reverted() {
		o.settle(ctx, w, entry, storage.StateRejectedByLedger, nil, rcpt.ExecutionError)
		logger.WithFields(logrus.Fields{
			"status":          rcpt.Status,
			"execution_error": rcpt.ExecutionError,
		}).Warn("Ledger rejected write")
		o.recordAction(w.action, "ledger_rejected")
		o.notify(ctx, &notification.Event{
			Kind:      notification.KindFailed,
			Action:    string(w.action),
			ContestID: w.contestID,
			Wallet:    account.Hex(),
			TxHash:    handle.Hash.Hex(),
			Error:     rcpt.ExecutionError,
		})
		details := rcpt.ExecutionError
		if details == "" {
			details = string(rcpt.Status)
		}
		return nil, utils.NewAppError(utils.ErrCodeLedgerReject, "Ledger rejected the transaction", details)
	}

	outcome, err := interpret(w.action, w.contestID, rcpt)
	if err != nil {
		o.settle(ctx, w, entry, storage.StateConfirmed, nil, err.Error())
		logger.WithField("error", err).Error("Could not interpret receipt")
		o.recordAction(w.action, "failed")
		return nil, err
	}
	outcome.TxHash = handle.Hash
	outcome.Wallet = account

	o.settle(ctx, w, entry, storage.StateConfirmed, outcome, "")
	logger.WithFields(logrus.Fields{
		"outcome": outcome.Status,
		"reason":  outcome.Reason,
	}).Info("Write finalized")
	o.recordAction(w.action, string(outcome.Status))
	o.notify(ctx, &notification.Event{
		Kind:      outcome.kind(),
		Action:    string(w.action),
		ContestID: outcome.ContestID,
		Wallet:    account.Hex(),
		TxHash:    handle.Hash.Hex(),
		Reason:    outcome.Reason,
	})
	return outcome, nil
}

// unresolved handles a write whose outcome was not observed
func (o *Orchestrator) unresolved(ctx context.Context, w pendingWrite, handle models.TxHandle, entry *storage.JournalEntry, err error, logger *logrus.Entry) error {
	state := storage.StateAbandoned
	result := "cancelled"
	if receipt.IsTimeout(err) {
		state = storage.StateTimedOut
		result = "unknown"
	}

	o.settle(ctx, w, entry, state, nil, err.Error())
	logger.WithFields(logrus.Fields{"state": state, "error": err}).Warn("Write outcome unknown")
	o.recordAction(w.action, result)

	if state == storage.StateTimedOut {
		o.notify(ctx, &notification.Event{
			Kind:      notification.KindUnknown,
			Action:    string(w.action),
			ContestID: w.contestID,
			Wallet:    w.signer.Address().Hex(),
			TxHash:    handle.Hash.Hex(),
			Error:     err.Error(),
		})
	}
	return err
}

// settle finishes the journal entry and invalidates the views the write can
// have touched. Both run even when ctx is already done.
func (o *Orchestrator) settle(ctx context.Context, w pendingWrite, entry *storage.JournalEntry, state storage.EntryState, outcome *Outcome, errMsg string) {
	ctx = context.WithoutCancel(ctx)

	contestID := w.contestID
	if outcome != nil && outcome.ContestID != nil {
		contestID = outcome.ContestID
	}

	write := syncer.Write{Action: w.action, Wallet: w.signer.Address()}
	if contestID != nil {
		write.ContestID = *contestID
	}
	if err := o.syncer.Invalidate(ctx, write); err != nil {
		o.logger.WithFields(logrus.Fields{"action": w.action, "error": err}).Warn("Invalidation failed")
	}

	if entry == nil {
		return
	}
	entry.State = state
	entry.ContestID = contestID
	entry.Error = errMsg
	if outcome != nil {
		entry.OutcomeStatus = string(outcome.Status)
		entry.Reason = outcome.Reason
	}
	if !state.Unresolved() {
		now := time.Now().UTC()
		entry.ResolvedAt = &now
	}
	if err := o.journal.Update(ctx, entry); err != nil {
		o.logger.WithFields(logrus.Fields{"entry_id": entry.ID, "error": err}).Warn("Failed to update journal entry")
	}
}

func (o *Orchestrator) journalRecord(ctx context.Context, w pendingWrite, handle models.TxHandle) *storage.JournalEntry {
	if o.journal == nil {
		return nil
	}
	entry := &storage.JournalEntry{
		Action:    string(w.action),
		ContestID: w.contestID,
		Wallet:    w.signer.Address().Hex(),
		TxHash:    handle.Hash.Hex(),
		State:     storage.StatePending,
	}
	if err := o.journal.Record(context.WithoutCancel(ctx), entry); err != nil {
		o.logger.WithFields(logrus.Fields{"tx_hash": entry.TxHash, "error": err}).Warn("Failed to journal write")
		return nil
	}
	return entry
}

// ready checks the session can issue writes and returns its signer
func (o *Orchestrator) ready(sess *Session) (wallet.Signer, error) {
	if !sess.Configured() {
		return nil, notConfigured()
	}
	signer := sess.Signer()
	if signer == nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "No wallet connected")
	}
	return signer, nil
}

func notConfigured() error {
	return utils.NewAppError(utils.ErrCodeConfiguration, "Contract address not configured")
}

// refused records a write stopped by local validation
func (o *Orchestrator) refused(action syncer.Action, err error) {
	fields := logrus.Fields{"action": action, "error": err}
	if rule, ok := validation.RuleOf(err); ok {
		fields["rule"] = rule
	}
	o.logger.WithFields(fields).Info("Action refused locally")
	o.recordAction(action, "refused")
}

func (o *Orchestrator) notify(ctx context.Context, event *notification.Event) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Notify(context.WithoutCancel(ctx), event); err != nil {
		o.logger.WithFields(logrus.Fields{"kind": event.Kind, "error": err}).Debug("Notification delivery incomplete")
	}
}

func (o *Orchestrator) recordAction(action syncer.Action, outcome string) {
	if o.metrics == nil {
		return
	}
	o.metrics.GetPrometheusMetrics().RecordAction(string(action), outcome)
}

// Reads

// Contests returns every contest as seen by consumers
func (o *Orchestrator) Contests(ctx context.Context, sess *Session) ([]models.ContestView, error) {
	if !sess.Configured() {
		return nil, notConfigured()
	}
	contests, err := o.syncer.Contests(ctx)
	if err != nil {
		return nil, err
	}
	return o.views(contests), nil
}

// Contest returns one contest with its derived fields
func (o *Orchestrator) Contest(ctx context.Context, sess *Session, contestID uint64) (*models.ContestView, error) {
	if !sess.Configured() {
		return nil, notConfigured()
	}
	contest, err := o.syncer.Contest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	view := contest.View(o.now())
	return &view, nil
}

// Detail returns a contest with its submissions and winners
func (o *Orchestrator) Detail(ctx context.Context, sess *Session, contestID uint64) (*syncer.ContestDetail, error) {
	if !sess.Configured() {
		return nil, notConfigured()
	}
	return o.syncer.Detail(ctx, contestID)
}

// Submissions returns a contest's submissions
func (o *Orchestrator) Submissions(ctx context.Context, sess *Session, contestID uint64) ([]*models.Submission, error) {
	if !sess.Configured() {
		return nil, notConfigured()
	}
	return o.syncer.Submissions(ctx, contestID)
}

// Winners returns a contest's winners in acceptance order
func (o *Orchestrator) Winners(ctx context.Context, sess *Session, contestID uint64) ([]common.Address, error) {
	if !sess.Configured() {
		return nil, notConfigured()
	}
	return o.syncer.Winners(ctx, contestID)
}

// UserSubmission returns account's projection for a contest
func (o *Orchestrator) UserSubmission(ctx context.Context, sess *Session, contestID uint64, account common.Address) (*models.UserSubmission, error) {
	if !sess.Configured() {
		return nil, notConfigured()
	}
	return o.syncer.UserSubmission(ctx, contestID, account)
}

// Refocus drops every cached view and reloads the contest list
func (o *Orchestrator) Refocus(ctx context.Context, sess *Session) ([]models.ContestView, error) {
	if !sess.Configured() {
		return nil, notConfigured()
	}
	contests, err := o.syncer.Refocus(ctx)
	if err != nil {
		return nil, err
	}
	return o.views(contests), nil
}

func (o *Orchestrator) views(contests []*models.Contest) []models.ContestView {
	now := o.now()
	views := make([]models.ContestView, 0, len(contests))
	for _, c := range contests {
		views = append(views, c.View(now))
	}
	return views
}
