package storage

import (
	"context"
	"time"
)

// EntryState is the lifecycle state of a journaled write
type EntryState string

const (
	StatePending          EntryState = "pending"
	StateConfirmed        EntryState = "confirmed"
	StateRejectedByLedger EntryState = "rejected_by_ledger"
	StateTimedOut         EntryState = "timed_out"
	StateAbandoned        EntryState = "abandoned"
)

// Unresolved reports whether the write's outcome has not been observed yet
func (s EntryState) Unresolved() bool {
	return s == StatePending || s == StateTimedOut || s == StateAbandoned
}

// JournalEntry records one issued write and what became of it
type JournalEntry struct {
	ID            string     `json:"id"`
	Action        string     `json:"action"`
	ContestID     *uint64    `json:"contest_id,omitempty"`
	Wallet        string     `json:"wallet"`
	TxHash        string     `json:"tx_hash"`
	State         EntryState `json:"state"`
	OutcomeStatus string     `json:"outcome_status,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	Error         string     `json:"error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

// JournalFilter narrows journal listings
type JournalFilter struct {
	States []EntryState
	Wallet string
	Limit  int
}

// JournalStats summarises the journal
type JournalStats struct {
	TotalEntries int64                `json:"total_entries"`
	ByState      map[EntryState]int64 `json:"by_state"`
	OldestOpen   *time.Time           `json:"oldest_open,omitempty"`
}

// Journal persists issued writes so unknown outcomes can be reconciled later
type Journal interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	Record(ctx context.Context, entry *JournalEntry) error
	Update(ctx context.Context, entry *JournalEntry) error
	Get(ctx context.Context, id string) (*JournalEntry, error)
	List(ctx context.Context, filter JournalFilter) ([]*JournalEntry, error)
	Stats(ctx context.Context) (*JournalStats, error)
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type             string        `json:"type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
}
