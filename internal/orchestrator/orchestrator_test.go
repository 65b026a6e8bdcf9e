package orchestrator_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/content-rewards/internal/cache"
	"github.com/smartdevs17/content-rewards/internal/config"
	"github.com/smartdevs17/content-rewards/internal/ledger"
	"github.com/smartdevs17/content-rewards/internal/ledger/ledgertest"
	"github.com/smartdevs17/content-rewards/internal/metrics"
	"github.com/smartdevs17/content-rewards/internal/models"
	"github.com/smartdevs17/content-rewards/internal/notification"
	"github.com/smartdevs17/content-rewards/internal/orchestrator"
	"github.com/smartdevs17/content-rewards/internal/receipt"
	"github.com/smartdevs17/content-rewards/internal/storage"
	"github.com/smartdevs17/content-rewards/internal/syncer"
	"github.com/smartdevs17/content-rewards/internal/validation"
	"github.com/smartdevs17/content-rewards/internal/wallet"
	"github.com/smartdevs17/content-rewards/pkg/utils"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []*notification.Event
}

func (r *recordingNotifier) Start(ctx context.Context) error { return nil }
func (r *recordingNotifier) Stop() error                     { return nil }
func (r *recordingNotifier) IsHealthy() bool                 { return true }

func (r *recordingNotifier) Notify(ctx context.Context, event *notification.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingNotifier) GetStats() *notification.NotificationStats {
	return &notification.NotificationStats{}
}

func (r *recordingNotifier) kinds() []notification.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]notification.Kind, 0, len(r.events))
	for _, e := range r.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

type harness struct {
	fake     *ledgertest.Contract
	orch     *orchestrator.Orchestrator
	journal  storage.Journal
	notes    *recordingNotifier
	metrics  *metrics.Manager
	creator  *orchestrator.Session
	alice    *orchestrator.Session
	bob      *orchestrator.Session
	contract *ledger.ContentRewards
}

func newHarness(t *testing.T, polling config.PollingConfig) *harness {
	t.Helper()

	fake := ledgertest.NewContract()
	mm := metrics.NewManager()
	client, manager, err := fake.Dial(mm)
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })
	contract := ledger.NewContentRewards(client)

	journal := storage.NewSQLiteJournal(&storage.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "journal.db"),
		MaxConnections:   1,
	})
	require.NoError(t, journal.Connect())
	require.NoError(t, journal.Migrate())
	t.Cleanup(func() { _ = journal.Close() })

	notes := &recordingNotifier{}
	// A long freshness window: only invalidation can make a write visible.
	synchronizer := syncer.New(contract, cache.NewMemory(), time.Hour, mm)
	orch := orchestrator.New(orchestrator.Dependencies{
		Syncer:   synchronizer,
		Journal:  journal,
		Notifier: notes,
		Metrics:  mm,
	}, polling)

	signers := make([]wallet.Signer, 3)
	for i := range signers {
		s, err := wallet.GenerateKeySigner()
		require.NoError(t, err)
		signers[i] = s
	}
	creator := orchestrator.NewSession(ledgertest.LedgerConfig(), contract, signers[0])

	return &harness{
		fake:     fake,
		orch:     orch,
		journal:  journal,
		notes:    notes,
		metrics:  mm,
		creator:  creator,
		alice:    creator.WithWallet(signers[1]),
		bob:      creator.WithWallet(signers[2]),
		contract: contract,
	}
}

func fastPolling() config.PollingConfig {
	return config.PollingConfig{Interval: time.Millisecond, ShortAttempts: 2000, LongAttempts: 2000}
}

func (h *harness) seed(maxWinners int64, pattern string) uint64 {
	account, _ := h.creator.Wallet()
	return h.fake.Seed(account, models.CreateContestParams{
		PlatformPattern:   pattern,
		RequiredTopic:     "Go concurrency",
		RewardDescription: "10 GEN",
		MaxWinners:        maxWinners,
	})
}

func TestCreateContestInvalidatesContestList(t *testing.T) {
	h := newHarness(t, fastPolling())
	ctx := context.Background()

	contests, err := h.orch.Contests(ctx, h.creator)
	require.NoError(t, err)
	assert.Empty(t, contests)

	outcome, err := h.orch.CreateContest(ctx, h.creator, models.CreateContestParams{
		RequiredTopic:     "  Go concurrency ",
		RewardDescription: "10 GEN",
		MaxWinners:        3,
	})
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusCreated, outcome.Status)
	require.NotNil(t, outcome.ContestID)
	assert.Equal(t, uint64(0), *outcome.ContestID)
	assert.NotEqual(t, common.Hash{}, outcome.TxHash)

	contests, err = h.orch.Contests(ctx, h.creator)
	require.NoError(t, err)
	require.Len(t, contests, 1)
	assert.Equal(t, models.PatternAny, contests[0].PlatformPattern)
	assert.Equal(t, "Go concurrency", contests[0].RequiredTopic)
	assert.Equal(t, uint64(3), contests[0].SpotsRemaining)
	assert.True(t, contests[0].IsOpen)

	assert.Equal(t, []notification.Kind{notification.KindCreated}, h.notes.kinds())
	prom := h.metrics.GetPrometheusMetrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.ActionsTotal.WithLabelValues("create_contest", "created")))

	entries, err := h.journal.List(ctx, storage.JournalFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, storage.StateConfirmed, entries[0].State)
	assert.Equal(t, "created", entries[0].OutcomeStatus)
	require.NotNil(t, entries[0].ContestID)
	assert.Equal(t, uint64(0), *entries[0].ContestID)
}

func TestCreateContestRefusedLocally(t *testing.T) {
	h := newHarness(t, fastPolling())
	ctx := context.Background()

	tests := []struct {
		name   string
		params models.CreateContestParams
		rule   validation.Rule
	}{
		{"zero winners", models.CreateContestParams{RequiredTopic: "Go", RewardDescription: "r", MaxWinners: 0}, validation.RuleMaxWinners},
		{"empty topic", models.CreateContestParams{RequiredTopic: "  ", RewardDescription: "r", MaxWinners: 1}, validation.RuleTopicRequired},
		{"no reward", models.CreateContestParams{RequiredTopic: "Go", MaxWinners: 1}, validation.RuleRewardRequired},
		{"past deadline", models.CreateContestParams{RequiredTopic: "Go", RewardDescription: "r", MaxWinners: 1, Deadline: time.Now().Add(-time.Hour)}, validation.RuleDeadlineInPast},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := h.orch.CreateContest(ctx, h.creator, tt.params)
			require.Error(t, err)
			assert.Nil(t, outcome)
			rule, ok := validation.RuleOf(err)
			require.True(t, ok)
			assert.Equal(t, tt.rule, rule)
		})
	}
	assert.Zero(t, h.fake.Writes())
}

func TestSubmitContentOutcomes(t *testing.T) {
	h := newHarness(t, fastPolling())
	ctx := context.Background()
	id := h.seed(2, "medium.com")

	outcome, err := h.orch.SubmitContent(ctx, h.alice, id, " https://medium.com/@alice/goroutines ")
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusAccepted, outcome.Status)
	assert.Equal(t, ledgertest.ReasonAccepted, outcome.Reason)
	assert.False(t, outcome.IsBusinessRejection())

	h.fake.SetValidator(func(string, string, string) bool { return false })
	outcome, err = h.orch.SubmitContent(ctx, h.bob, id, "https://medium.com/@bob/cooking")
	require.NoError(t, err, "a rejection is an outcome, not an error")
	assert.Equal(t, orchestrator.StatusRejected, outcome.Status)
	assert.Equal(t, ledgertest.ReasonRejected, outcome.Reason)
	assert.True(t, outcome.IsBusinessRejection())

	detail, err := h.orch.Detail(ctx, h.creator, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), detail.Contest.AcceptedCount)
	assert.Equal(t, uint64(1), detail.Contest.SpotsRemaining)
	require.Len(t, detail.Submissions, 2)
	aliceAddr, _ := h.alice.Wallet()
	assert.Equal(t, []common.Address{aliceAddr}, detail.Winners)

	bobAddr, _ := h.bob.Wallet()
	projection, err := h.orch.UserSubmission(ctx, h.creator, id, bobAddr)
	require.NoError(t, err)
	assert.True(t, projection.HasSubmitted)
	assert.Equal(t, models.StatusRejected, projection.Status)

	assert.Equal(t, []notification.Kind{notification.KindAccepted, notification.KindRejected}, h.notes.kinds())
}

func TestSubmitContentRefusedLocally(t *testing.T) {
	h := newHarness(t, fastPolling())
	ctx := context.Background()
	id := h.seed(1, "medium.com")
	aliceAddr, _ := h.alice.Wallet()
	h.fake.SeedSubmission(id, aliceAddr, "https://medium.com/@alice/first", models.StatusRejected, ledgertest.ReasonRejected)

	tests := []struct {
		name    string
		session *orchestrator.Session
		url     string
		rule    validation.Rule
	}{
		{"not a url", h.bob, "medium.com/post", validation.RuleInvalidURL},
		{"wrong platform", h.bob, "https://twitter.com/bob/1", validation.RulePlatformMismatch},
		{"second submission", h.alice, "https://medium.com/@alice/second", validation.RuleAlreadySubmitted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.orch.SubmitContent(ctx, tt.session, id, tt.url)
			rule, ok := validation.RuleOf(err)
			require.True(t, ok, "expected a validation error, got %v", err)
			assert.Equal(t, tt.rule, rule)
			assert.True(t, utils.IsCode(err, utils.ErrCodeValidation))
		})
	}

	assert.Zero(t, h.fake.Writes())
	assert.Zero(t, h.fake.Calls(ledger.MethodSubmitContent))
}

func TestSubmitContentRefusedAfterDeadline(t *testing.T) {
	h := newHarness(t, fastPolling())
	ctx := context.Background()

	account, _ := h.creator.Wallet()
	deadline := time.Now().Add(time.Hour)
	id := h.fake.Seed(account, models.CreateContestParams{
		PlatformPattern:   models.PatternAny,
		RequiredTopic:     "Go",
		RewardDescription: "r",
		MaxWinners:        1,
		Deadline:          deadline,
	})

	h.orch.SetClock(func() time.Time { return deadline.Add(time.Second) })
	_, err := h.orch.SubmitContent(ctx, h.alice, id, "https://example.com/post")
	rule, ok := validation.RuleOf(err)
	require.True(t, ok)
	assert.Equal(t, validation.RuleContestExpired, rule)
	assert.Zero(t, h.fake.Writes())
}

func TestCapacityRaceEndsAcceptedAndVoided(t *testing.T) {
	h := newHarness(t, fastPolling())
	ctx := context.Background()
	id := h.seed(1, models.PatternAny)
	h.fake.Hold(true)

	type result struct {
		outcome *orchestrator.Outcome
		err     error
	}
	results := make(chan result, 2)
	for _, sess := range []*orchestrator.Session{h.alice, h.bob} {
		sess := sess
		go func() {
			outcome, err := h.orch.SubmitContent(ctx, sess, id, "https://example.com/post")
			results <- result{outcome, err}
		}()
	}

	require.Eventually(t, func() bool { return len(h.fake.Pending()) == 2 }, 5*time.Second, time.Millisecond)

	// The ledger decides the order; finalize the later arrival first.
	pending := h.fake.Pending()
	require.NoError(t, h.fake.Finalize(pending[1], pending[0]))

	statuses := map[orchestrator.Status]*orchestrator.Outcome{}
	for i := 0; i < 2; i++ {
		r := <-results
		require.NoError(t, r.err)
		statuses[r.outcome.Status] = r.outcome
	}
	require.Contains(t, statuses, orchestrator.StatusAccepted)
	require.Contains(t, statuses, orchestrator.StatusVoided)
	assert.Equal(t, ledgertest.ReasonVoided, statuses[orchestrator.StatusVoided].Reason)

	contest, err := h.orch.Contest(ctx, h.creator, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), contest.AcceptedCount)
	assert.Equal(t, uint64(0), contest.SpotsRemaining)
	assert.False(t, contest.IsOpen)

	winners, err := h.orch.Winners(ctx, h.creator, id)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{statuses[orchestrator.StatusAccepted].Wallet}, winners)
}

func TestTimeoutIsNotARejection(t *testing.T) {
	h := newHarness(t, config.PollingConfig{Interval: time.Millisecond, ShortAttempts: 3, LongAttempts: 3})
	ctx := context.Background()
	id := h.seed(1, models.PatternAny)
	h.fake.Hold(true)

	outcome, err := h.orch.SubmitContent(ctx, h.alice, id, "https://example.com/post")
	require.Error(t, err)
	assert.Nil(t, outcome)
	assert.True(t, receipt.IsTimeout(err))
	assert.True(t, utils.IsCode(err, utils.ErrCodeTimeout))
	_, isValidation := validation.RuleOf(err)
	assert.False(t, isValidation)
	assert.False(t, utils.IsCode(err, utils.ErrCodeLedgerReject))

	assert.Equal(t, []notification.Kind{notification.KindUnknown}, h.notes.kinds())

	entries, err := h.journal.List(ctx, storage.JournalFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, storage.StateTimedOut, entries[0].State)

	// Still unknown: nothing resolves yet.
	report, err := h.orch.Reconcile(ctx, h.creator)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 1, report.StillUnknown)

	// The write finalizes later, unobserved, and reconciliation picks it up.
	h.fake.Hold(false)
	h.fake.FinalizeAll()

	report, err = h.orch.Reconcile(ctx, h.creator)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Resolved)

	entry, err := h.journal.Get(ctx, entries[0].ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StateConfirmed, entry.State)
	assert.Equal(t, "accepted", entry.OutcomeStatus)
	assert.NotNil(t, entry.ResolvedAt)

	contest, err := h.orch.Contest(ctx, h.creator, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), contest.AcceptedCount)

	assert.Equal(t, notification.KindAccepted, h.notes.kinds()[1])
}

func TestCancelledPollingAbandonsWithoutRetry(t *testing.T) {
	h := newHarness(t, fastPolling())
	id := h.seed(1, models.PatternAny)
	h.fake.Hold(true)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := h.orch.SubmitContent(ctx, h.alice, id, "https://example.com/post")
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.ErrCodeCancelled))
	assert.Equal(t, 1, h.fake.Writes())

	entries, err := h.journal.List(context.Background(), storage.JournalFilter{
		States: []storage.EntryState{storage.StateAbandoned},
	})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestReconcileLeavesInFlightPendingWrites(t *testing.T) {
	h := newHarness(t, fastPolling())
	ctx := context.Background()
	id := h.seed(2, models.PatternAny)

	// Writes issued outside the orchestrator and journaled as still pending.
	pending := func(sess *orchestrator.Session, createdAt time.Time) *storage.JournalEntry {
		handle, err := h.contract.SubmitContent(ctx, sess.Signer(), id, "https://example.com/post")
		require.NoError(t, err)
		account, _ := sess.Wallet()
		entry := &storage.JournalEntry{
			Action:    string(syncer.ActionSubmitContent),
			ContestID: &id,
			Wallet:    account.Hex(),
			TxHash:    handle.Hash.Hex(),
			State:     storage.StatePending,
			CreatedAt: createdAt,
		}
		require.NoError(t, h.journal.Record(ctx, entry))
		return entry
	}

	// Still within its polling budget: the issuing flow owns it.
	inFlight := pending(h.alice, time.Now())
	// Left behind by a process that stopped long ago.
	stale := pending(h.bob, time.Now().Add(-time.Hour))

	report, err := h.orch.Reconcile(ctx, h.creator)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 1, report.Resolved)
	require.Len(t, report.Entries, 1)
	assert.Equal(t, stale.ID, report.Entries[0].ID)

	entry, err := h.journal.Get(ctx, inFlight.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatePending, entry.State)

	entry, err = h.journal.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StateConfirmed, entry.State)
	assert.Equal(t, []notification.Kind{notification.KindAccepted}, h.notes.kinds())
}

func TestCloseContest(t *testing.T) {
	h := newHarness(t, fastPolling())
	ctx := context.Background()
	id := h.seed(2, models.PatternAny)

	can, err := h.orch.CanClose(ctx, h.alice, id)
	require.NoError(t, err)
	assert.False(t, can)

	_, err = h.orch.CloseContest(ctx, h.alice, id)
	rule, ok := validation.RuleOf(err)
	require.True(t, ok)
	assert.Equal(t, validation.RuleNotCreator, rule)
	assert.Zero(t, h.fake.Writes())

	// Issued anyway, the ledger has the final word.
	_, err = h.orch.ForceCloseContest(ctx, h.alice, id)
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.ErrCodeLedgerReject))
	assert.Contains(t, err.Error(), "Only contest creator")

	rejected, err := h.journal.List(ctx, storage.JournalFilter{
		States: []storage.EntryState{storage.StateRejectedByLedger},
	})
	require.NoError(t, err)
	assert.Len(t, rejected, 1)

	can, err = h.orch.CanClose(ctx, h.creator, id)
	require.NoError(t, err)
	assert.True(t, can)

	outcome, err := h.orch.CloseContest(ctx, h.creator, id)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusClosed, outcome.Status)

	contest, err := h.orch.Contest(ctx, h.creator, id)
	require.NoError(t, err)
	assert.False(t, contest.IsActive)
	assert.False(t, contest.IsOpen)

	can, err = h.orch.CanClose(ctx, h.creator, id)
	require.NoError(t, err)
	assert.False(t, can)

	_, err = h.orch.SubmitContent(ctx, h.bob, id, "https://example.com/post")
	rule, _ = validation.RuleOf(err)
	assert.Equal(t, validation.RuleContestInactive, rule)
}

func TestUnconfiguredSession(t *testing.T) {
	h := newHarness(t, fastPolling())
	ctx := context.Background()

	signer, err := wallet.GenerateKeySigner()
	require.NoError(t, err)
	unconfigured := orchestrator.NewSession(&config.LedgerConfig{Endpoint: "http://localhost:4000/api"}, nil, signer)
	assert.False(t, unconfigured.Configured())

	_, err = h.orch.Contests(ctx, unconfigured)
	assert.True(t, utils.IsCode(err, utils.ErrCodeConfiguration))
	_, err = h.orch.CreateContest(ctx, unconfigured, models.CreateContestParams{RequiredTopic: "Go", RewardDescription: "r", MaxWinners: 1})
	assert.True(t, utils.IsCode(err, utils.ErrCodeConfiguration))
	_, err = h.orch.Reconcile(ctx, unconfigured)
	assert.True(t, utils.IsCode(err, utils.ErrCodeConfiguration))

	noWallet := orchestrator.NewSession(ledgertest.LedgerConfig(), h.contract, nil)
	assert.True(t, noWallet.Configured())
	_, err = h.orch.SubmitContent(ctx, noWallet, 0, "https://example.com")
	assert.True(t, utils.IsCode(err, utils.ErrCodeConfiguration))
	can, err := h.orch.CanClose(ctx, noWallet, 0)
	require.NoError(t, err)
	assert.False(t, can)

	assert.Zero(t, h.fake.Writes())
}

func TestSessionWithWalletKeepsContract(t *testing.T) {
	h := newHarness(t, fastPolling())

	assert.Equal(t, ledgertest.Address.Hex(), h.alice.ContractAddress())
	assert.Equal(t, h.creator.Endpoint(), h.alice.Endpoint())
	assert.Same(t, h.creator.Contract(), h.alice.Contract())

	creatorAddr, _ := h.creator.Wallet()
	aliceAddr, _ := h.alice.Wallet()
	assert.NotEqual(t, creatorAddr, aliceAddr)
}
