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
			Description: "Create checkpoints table",
			SQL: `
				CREATE TABLE IF NOT EXISTS checkpoints (
					chain_id TEXT NOT NULL,
					contract TEXT NOT NULL,
					last_processed_block TEXT NOT NULL,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (chain_id, contract)
				);
			`,
		},
		{
			Version:     "002",
			Description: "Create relay_records table",
			SQL: `
				CREATE TABLE IF NOT EXISTS relay_records (
					event_id TEXT PRIMARY KEY,
					source_tx_hash TEXT NOT NULL,
					log_index INTEGER NOT NULL,
					block_number INTEGER NOT NULL,
					user_address TEXT NOT NULL,
					amount TEXT NOT NULL,
					status TEXT NOT NULL,
					dest_tx_hash TEXT,
					attempts INTEGER NOT NULL DEFAULT 0,
					last_error TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_relay_records_status ON relay_records(status);
				CREATE INDEX IF NOT EXISTS idx_relay_records_block_number ON relay_records(block_number);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_relay_records_source ON relay_records(source_tx_hash, log_index);
			`,
		},
	}
}

// GetPostgreSQLMigrations returns PostgreSQL migration scripts
func GetPostgreSQLMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create checkpoints table",
			SQL: `
				CREATE TABLE IF NOT EXISTS checkpoints (
					chain_id TEXT NOT NULL,
					contract TEXT NOT NULL,
					last_processed_block TEXT NOT NULL,
					updated_at TIMESTAMPTZ DEFAULT NOW(),
					PRIMARY KEY (chain_id, contract)
				);
			`,
		},
		{
			Version:     "002",
			Description: "Create relay_records table",
			SQL: `
				CREATE TABLE IF NOT EXISTS relay_records (
					event_id TEXT PRIMARY KEY,
					source_tx_hash TEXT NOT NULL,
					log_index INTEGER NOT NULL,
					block_number BIGINT NOT NULL,
					user_address TEXT NOT NULL,
					amount TEXT NOT NULL,
					status TEXT NOT NULL,
					dest_tx_hash TEXT,
					attempts INTEGER NOT NULL DEFAULT 0,
					last_error TEXT,
					created_at TIMESTAMPTZ DEFAULT NOW(),
					updated_at TIMESTAMPTZ DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_relay_records_status ON relay_records(status);
				CREATE INDEX IF NOT EXISTS idx_relay_records_block_number ON relay_records(block_number);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_relay_records_source ON relay_records(source_tx_hash, log_index);
			`,
		},
	}
}
