package storage

import (
	"context"
	"time"

	"github.com/smartdevs17/content-rewards/internal/metrics"
)

// JournalWithMetrics wraps a journal implementation with metrics
type JournalWithMetrics struct {
	Journal
	metricsManager *metrics.Manager
}

// NewJournalWithMetrics creates a journal wrapper with metrics
func NewJournalWithMetrics(journal Journal, metricsManager *metrics.Manager) *JournalWithMetrics {
	return &JournalWithMetrics{
		Journal:        journal,
		metricsManager: metricsManager,
	}
}

// Record records an entry and its metrics
func (j *JournalWithMetrics) Record(ctx context.Context, entry *JournalEntry) error {
	start := time.Now()
	err := j.Journal.Record(ctx, entry)
	j.observe("insert", err, start)
	return err
}

// Update updates an entry and records metrics
func (j *JournalWithMetrics) Update(ctx context.Context, entry *JournalEntry) error {
	start := time.Now()
	err := j.Journal.Update(ctx, entry)
	j.observe("update", err, start)
	return err
}

// List lists entries and records metrics
func (j *JournalWithMetrics) List(ctx context.Context, filter JournalFilter) ([]*JournalEntry, error) {
	start := time.Now()
	entries, err := j.Journal.List(ctx, filter)
	j.observe("select", err, start)
	return entries, err
}

func (j *JournalWithMetrics) observe(operation string, err error, start time.Time) {
	if j.metricsManager == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "error"
	}

	j.metricsManager.GetPrometheusMetrics().RecordDatabaseOperation(operation, status, time.Since(start))
}
