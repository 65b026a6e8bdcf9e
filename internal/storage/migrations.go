package storage

// Migration represents a database migration
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create tx_journal table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tx_journal (
					id TEXT PRIMARY KEY,
					action TEXT NOT NULL,
					contest_id INTEGER,
					wallet TEXT NOT NULL,
					tx_hash TEXT NOT NULL,
					state TEXT NOT NULL DEFAULT 'pending',
					outcome_status TEXT NOT NULL DEFAULT '',
					reason TEXT NOT NULL DEFAULT '',
					error TEXT NOT NULL DEFAULT '',
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL,
					resolved_at DATETIME
				);

				CREATE INDEX IF NOT EXISTS idx_tx_journal_state ON tx_journal(state);
				CREATE INDEX IF NOT EXISTS idx_tx_journal_wallet ON tx_journal(wallet);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_tx_journal_tx_hash ON tx_journal(tx_hash);
			`,
		},
		{
			Version:     "002",
			Description: "Create migrations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS migrations (
					version TEXT PRIMARY KEY,
					description TEXT NOT NULL,
					applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);
			`,
		},
	}
}

// GetPostgresMigrations returns PostgreSQL migration scripts
func GetPostgresMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create tx_journal table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tx_journal (
					id UUID PRIMARY KEY,
					action TEXT NOT NULL,
					contest_id BIGINT,
					wallet TEXT NOT NULL,
					tx_hash TEXT NOT NULL,
					state TEXT NOT NULL DEFAULT 'pending',
					outcome_status TEXT NOT NULL DEFAULT '',
					reason TEXT NOT NULL DEFAULT '',
					error TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP WITH TIME ZONE NOT NULL,
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
					resolved_at TIMESTAMP WITH TIME ZONE
				);

				CREATE INDEX IF NOT EXISTS idx_tx_journal_state ON tx_journal(state);
				CREATE INDEX IF NOT EXISTS idx_tx_journal_wallet ON tx_journal(wallet);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_tx_journal_tx_hash ON tx_journal(tx_hash);
			`,
		},
		{
			Version:     "002",
			Description: "Create migrations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS migrations (
					version TEXT PRIMARY KEY,
					description TEXT NOT NULL,
					applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);
			`,
		},
	}
}
