package storage

import (
	"database/sql"

	"github.com/lib/pq"

	"github.com/smartdevs17/content-rewards/pkg/utils"
)

// PostgresJournal implements Journal using PostgreSQL
type PostgresJournal struct {
	*sqlJournal
}

// NewPostgresJournal creates a new PostgreSQL journal
func NewPostgresJournal(config *StorageConfig) *PostgresJournal {
	return &PostgresJournal{
		sqlJournal: &sqlJournal{
			config:     config,
			logger:     utils.ComponentLogger("journal"),
			migrations: GetPostgresMigrations(),
			numbered:   true,
			inStates: func(states []EntryState) (string, []interface{}) {
				names := make([]string, len(states))
				for i, s := range states {
					names[i] = string(s)
				}
				return "state = ANY(?)", []interface{}{pq.Array(names)}
			},
		},
	}
}

// Connect establishes database connection
func (p *PostgresJournal) Connect() error {
	db, err := sql.Open("postgres", p.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open PostgreSQL database", err.Error())
	}

	// Configure connection pool
	db.SetMaxOpenConns(p.config.MaxConnections)
	db.SetMaxIdleConns(p.config.MaxConnections / 2)
	db.SetConnMaxIdleTime(p.config.MaxIdleTime)

	// Test connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to ping PostgreSQL database", err.Error())
	}

	p.db = db
	p.logger.Info("PostgreSQL journal connected")

	return nil
}
