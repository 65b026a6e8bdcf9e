package storage

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/smartdevs17/content-rewards/pkg/utils"
)

// SQLiteJournal implements Journal using SQLite
type SQLiteJournal struct {
	*sqlJournal
}

// NewSQLiteJournal creates a new SQLite journal
func NewSQLiteJournal(config *StorageConfig) *SQLiteJournal {
	return &SQLiteJournal{
		sqlJournal: &sqlJournal{
			config:     config,
			logger:     utils.ComponentLogger("journal"),
			migrations: GetSQLiteMigrations(),
			inStates: func(states []EntryState) (string, []interface{}) {
				marks := make([]string, len(states))
				args := make([]interface{}, len(states))
				for i, s := range states {
					marks[i] = "?"
					args[i] = string(s)
				}
				return "state IN (" + strings.Join(marks, ", ") + ")", args
			},
		},
	}
}

// Connect establishes database connection
func (s *SQLiteJournal) Connect() error {
	// Ensure directory exists
	dir := filepath.Dir(s.config.ConnectionString)
	if dir != "." && dir != "" && !strings.HasPrefix(s.config.ConnectionString, "file:") {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create database directory", err.Error())
		}
	}

	db, err := sql.Open("sqlite", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open SQLite database", err.Error())
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections)
	db.SetConnMaxIdleTime(s.config.MaxIdleTime)

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable WAL mode", err.Error())
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to set busy timeout", err.Error())
	}

	s.db = db
	s.logger.WithField("path", s.config.ConnectionString).Info("SQLite journal connected")

	return nil
}
