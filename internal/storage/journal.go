package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/content-rewards/pkg/utils"
)

const journalColumns = `id, action, contest_id, wallet, tx_hash, state, outcome_status, reason, error,
	created_at, updated_at, resolved_at`

// sqlJournal holds the queries shared by the SQLite and PostgreSQL journals
type sqlJournal struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Entry
	migrations []*Migration
	numbered   bool
	inStates   func(states []EntryState) (string, []interface{})
}

// rebind rewrites ? placeholders as $n for drivers that need numbered ones
func (j *sqlJournal) rebind(query string) string {
	if !j.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (j *sqlJournal) connected() error {
	if j.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return nil
}

// Close closes the database connection
func (j *sqlJournal) Close() error {
	if j.db != nil {
		err := j.db.Close()
		j.db = nil
		j.logger.Info("Journal database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (j *sqlJournal) Ping() error {
	if err := j.connected(); err != nil {
		return err
	}
	return j.db.Ping()
}

// Migrate runs database migrations
func (j *sqlJournal) Migrate() error {
	if err := j.connected(); err != nil {
		return err
	}

	j.logger.Info("Starting journal migrations")

	for _, migration := range j.migrations {
		j.logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Debug("Applying migration")

		if _, err := j.db.Exec(migration.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version),
				err.Error())
		}
	}

	for _, migration := range j.migrations {
		query := j.rebind(`INSERT INTO migrations (version, description) VALUES (?, ?) ON CONFLICT (version) DO NOTHING`)
		if _, err := j.db.Exec(query, migration.Version, migration.Description); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to record migration", err.Error())
		}
	}

	j.logger.Info("Journal migrations completed")
	return nil
}

// Record inserts a new entry, assigning an id and timestamps when missing
func (j *sqlJournal) Record(ctx context.Context, entry *JournalEntry) error {
	if err := j.connected(); err != nil {
		return err
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.State == "" {
		entry.State = StatePending
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	query := j.rebind(`
		INSERT INTO tx_journal (` + journalColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := j.db.ExecContext(ctx, query,
		entry.ID, entry.Action, nullContestID(entry.ContestID), entry.Wallet, entry.TxHash,
		string(entry.State), entry.OutcomeStatus, entry.Reason, entry.Error,
		entry.CreatedAt.UTC(), entry.UpdatedAt, nullTime(entry.ResolvedAt))
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to record journal entry", err.Error())
	}
	return nil
}

// Update stores the entry's current state and outcome
func (j *sqlJournal) Update(ctx context.Context, entry *JournalEntry) error {
	if err := j.connected(); err != nil {
		return err
	}

	entry.UpdatedAt = time.Now().UTC()

	query := j.rebind(`
		UPDATE tx_journal
		SET contest_id = ?, state = ?, outcome_status = ?, reason = ?, error = ?,
			updated_at = ?, resolved_at = ?
		WHERE id = ?
	`)

	result, err := j.db.ExecContext(ctx, query,
		nullContestID(entry.ContestID), string(entry.State), entry.OutcomeStatus, entry.Reason, entry.Error,
		entry.UpdatedAt, nullTime(entry.ResolvedAt), entry.ID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to update journal entry", err.Error())
	}

	rows, err := result.RowsAffected()
	if err == nil && rows == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Journal entry not found", entry.ID)
	}
	return nil
}

// Get returns one entry
func (j *sqlJournal) Get(ctx context.Context, id string) (*JournalEntry, error) {
	if err := j.connected(); err != nil {
		return nil, err
	}

	row := j.db.QueryRowContext(ctx, j.rebind(`SELECT `+journalColumns+` FROM tx_journal WHERE id = ?`), id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Journal entry not found", id)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to read journal entry", err.Error())
	}
	return entry, nil
}

// List returns entries oldest first
func (j *sqlJournal) List(ctx context.Context, filter JournalFilter) ([]*JournalEntry, error) {
	if err := j.connected(); err != nil {
		return nil, err
	}

	query := `SELECT ` + journalColumns + ` FROM tx_journal WHERE 1=1`
	var args []interface{}

	if len(filter.States) > 0 {
		clause, stateArgs := j.inStates(filter.States)
		query += " AND " + clause
		args = append(args, stateArgs...)
	}
	if filter.Wallet != "" {
		query += " AND wallet = ?"
		args = append(args, filter.Wallet)
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := j.db.QueryContext(ctx, j.rebind(query), args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to list journal entries", err.Error())
	}
	defer rows.Close()

	var entries []*JournalEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan journal entry", err.Error())
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to iterate journal entries", err.Error())
	}
	return entries, nil
}

// Stats counts entries per state
func (j *sqlJournal) Stats(ctx context.Context) (*JournalStats, error) {
	if err := j.connected(); err != nil {
		return nil, err
	}

	stats := &JournalStats{ByState: make(map[EntryState]int64)}

	rows, err := j.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM tx_journal GROUP BY state`)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count journal entries", err.Error())
	}
	defer rows.Close()

	for rows.Next() {
		var state string
		var count int64
		if err := rows.Scan(&state, &count); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan journal stats", err.Error())
		}
		stats.ByState[EntryState(state)] = count
		stats.TotalEntries += count
	}
	if err := rows.Err(); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to iterate journal stats", err.Error())
	}

	open, err := j.List(ctx, JournalFilter{
		States: []EntryState{StatePending, StateTimedOut, StateAbandoned},
		Limit:  1,
	})
	if err != nil {
		return nil, err
	}
	if len(open) > 0 {
		oldest := open[0].CreatedAt
		stats.OldestOpen = &oldest
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*JournalEntry, error) {
	var (
		entry     JournalEntry
		state     string
		contestID sql.NullInt64
		resolved  sql.NullTime
	)

	err := row.Scan(&entry.ID, &entry.Action, &contestID, &entry.Wallet, &entry.TxHash, &state,
		&entry.OutcomeStatus, &entry.Reason, &entry.Error, &entry.CreatedAt, &entry.UpdatedAt, &resolved)
	if err != nil {
		return nil, err
	}

	entry.State = EntryState(state)
	if contestID.Valid {
		id := uint64(contestID.Int64)
		entry.ContestID = &id
	}
	if resolved.Valid {
		t := resolved.Time
		entry.ResolvedAt = &t
	}
	return &entry, nil
}

func nullContestID(id *uint64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*id), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
