package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/content-rewards/internal/config"
	"github.com/smartdevs17/content-rewards/internal/metrics"
	"github.com/smartdevs17/content-rewards/pkg/utils"
)

func newTestJournal(t *testing.T) Journal {
	t.Helper()

	journal, err := NewJournal(&config.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "journal.db"),
		MaxConnections:   1,
	})
	require.NoError(t, err)
	require.NoError(t, journal.Connect())
	require.NoError(t, journal.Migrate())
	t.Cleanup(func() { _ = journal.Close() })
	return journal
}

func TestSQLiteJournalLifecycle(t *testing.T) {
	journal := newTestJournal(t)
	ctx := context.Background()

	contestID := uint64(3)
	entry := &JournalEntry{
		Action:    "submit_content",
		ContestID: &contestID,
		Wallet:    "0xabc",
		TxHash:    "0x01",
	}
	require.NoError(t, journal.Record(ctx, entry))
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, StatePending, entry.State)

	stored, err := journal.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "submit_content", stored.Action)
	require.NotNil(t, stored.ContestID)
	assert.Equal(t, contestID, *stored.ContestID)
	assert.Nil(t, stored.ResolvedAt)
	assert.WithinDuration(t, entry.CreatedAt, stored.CreatedAt, time.Second)

	resolved := time.Now()
	stored.State = StateConfirmed
	stored.OutcomeStatus = "voided"
	stored.Reason = "Contest reached maximum winners during validation"
	stored.ResolvedAt = &resolved
	require.NoError(t, journal.Update(ctx, stored))

	again, err := journal.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, again.State)
	assert.Equal(t, "voided", again.OutcomeStatus)
	require.NotNil(t, again.ResolvedAt)
	assert.WithinDuration(t, resolved, *again.ResolvedAt, time.Second)
}

func TestSQLiteJournalList(t *testing.T) {
	journal := newTestJournal(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	states := []EntryState{StateConfirmed, StateTimedOut, StateAbandoned, StateRejectedByLedger, StatePending}
	for i, state := range states {
		wallet := "0xaaa"
		if i%2 == 1 {
			wallet = "0xbbb"
		}
		require.NoError(t, journal.Record(ctx, &JournalEntry{
			Action:    "create_contest",
			Wallet:    wallet,
			TxHash:    "0x0" + string(rune('a'+i)),
			State:     state,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	open, err := journal.List(ctx, JournalFilter{States: []EntryState{StateTimedOut, StateAbandoned}})
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, StateTimedOut, open[0].State)
	assert.Equal(t, StateAbandoned, open[1].State)
	assert.Nil(t, open[0].ContestID)

	mine, err := journal.List(ctx, JournalFilter{Wallet: "0xbbb"})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	limited, err := journal.List(ctx, JournalFilter{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, limited, 3)

	stats, err := journal.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.TotalEntries)
	assert.Equal(t, int64(1), stats.ByState[StateRejectedByLedger])
	require.NotNil(t, stats.OldestOpen)
	assert.WithinDuration(t, base.Add(time.Minute), *stats.OldestOpen, time.Second)
}

func TestSQLiteJournalErrors(t *testing.T) {
	journal := newTestJournal(t)
	ctx := context.Background()

	_, err := journal.Get(ctx, "missing")
	assert.Equal(t, utils.ErrCodeNotFound, utils.CodeOf(err))

	err = journal.Update(ctx, &JournalEntry{ID: "missing", State: StateConfirmed})
	assert.Equal(t, utils.ErrCodeNotFound, utils.CodeOf(err))

	require.NoError(t, journal.Record(ctx, &JournalEntry{Action: "close_contest", Wallet: "0x1", TxHash: "0xdup"}))
	err = journal.Record(ctx, &JournalEntry{Action: "close_contest", Wallet: "0x1", TxHash: "0xdup"})
	assert.Equal(t, utils.ErrCodeDatabase, utils.CodeOf(err))

	require.NoError(t, journal.Migrate(), "migrations are idempotent")
}

func TestJournalNotConnected(t *testing.T) {
	journal := NewSQLiteJournal(&StorageConfig{ConnectionString: "unused.db"})
	err := journal.Record(context.Background(), &JournalEntry{})
	assert.Equal(t, utils.ErrCodeDatabase, utils.CodeOf(err))
	assert.Error(t, journal.Ping())
}

func TestJournalWithMetrics(t *testing.T) {
	metricsManager := metrics.NewManager()
	journal := NewJournalWithMetrics(newTestJournal(t), metricsManager)

	require.NoError(t, journal.Record(context.Background(), &JournalEntry{Action: "create_contest", Wallet: "0x1", TxHash: "0x2"}))
	_, err := journal.List(context.Background(), JournalFilter{})
	require.NoError(t, err)

	ops := metricsManager.GetPrometheusMetrics().DatabaseOperationsTotal
	assert.Equal(t, float64(1), testutil.ToFloat64(ops.WithLabelValues("insert", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(ops.WithLabelValues("select", "success")))
}

func TestPostgresRebind(t *testing.T) {
	journal := NewPostgresJournal(&StorageConfig{})
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", journal.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))

	clause, args := journal.inStates([]EntryState{StateTimedOut, StateAbandoned})
	assert.Equal(t, "state = ANY(?)", clause)
	assert.Len(t, args, 1)

	sqlite := NewSQLiteJournal(&StorageConfig{})
	assert.Equal(t, "a = ?", sqlite.rebind("a = ?"))
	clause, args = sqlite.inStates([]EntryState{StateTimedOut, StateAbandoned})
	assert.Equal(t, "state IN (?, ?)", clause)
	assert.Len(t, args, 2)
}

func TestFactory(t *testing.T) {
	_, err := NewJournal(&config.StorageConfig{Type: "mongo"})
	assert.Equal(t, utils.ErrCodeConfiguration, utils.CodeOf(err))

	journal, err := NewJournal(&config.StorageConfig{Type: "postgres", ConnectionString: "postgres://localhost/x"})
	require.NoError(t, err)
	assert.IsType(t, &PostgresJournal{}, journal)

	assert.Error(t, ValidateStorageConfig(&config.StorageConfig{Type: "sqlite"}))
	assert.NoError(t, ValidateStorageConfig(&config.StorageConfig{Type: "sqlite", ConnectionString: "x.db", MaxConnections: 1}))
	assert.Error(t, ValidateStorageConfig(&config.StorageConfig{Type: "oracle", ConnectionString: "x", MaxConnections: 1}))
}
