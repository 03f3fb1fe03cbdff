package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/bridge-relayer/internal/models"
	"github.com/smartdevs17/bridge-relayer/pkg/utils"
	_ "modernc.org/sqlite"
)

// SQLiteStorage implements Storage using SQLite
type SQLiteStorage struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Logger
	migrations []*Migration
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(config *StorageConfig) *SQLiteStorage {
	return &SQLiteStorage{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetSQLiteMigrations(),
	}
}

// Connect establishes the database connection
func (s *SQLiteStorage) Connect() error {
	// Ensure directory exists
	dir := filepath.Dir(s.config.ConnectionString)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create database directory", err.Error())
		}
	}

	db, err := sql.Open("sqlite", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open SQLite database", err.Error())
	}

	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxLifetime(s.config.MaxIdleTime)

	// WAL keeps checkpoint commits atomic across a process crash
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable WAL mode", err.Error())
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable foreign keys", err.Error())
	}

	s.db = db
	s.logger.Info("SQLite database connected", "path", s.config.ConnectionString)

	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("SQLite database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *SQLiteStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *SQLiteStorage) Migrate() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	s.logger.Info("Starting database migrations")

	for _, migration := range s.migrations {
		s.logger.Info("Applying migration", "version", migration.Version, "description", migration.Description)

		if _, err := s.db.Exec(migration.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version),
				err.Error())
		}
	}

	s.logger.Info("Database migrations completed")
	return nil
}

// GetCheckpoint returns the last fully processed block for a chain/contract pair
func (s *SQLiteStorage) GetCheckpoint(ctx context.Context, chainID, contract string) (uint64, error) {
	query := `SELECT last_processed_block FROM checkpoints WHERE chain_id = ? AND contract = ?`

	var raw string
	err := s.db.QueryRowContext(ctx, query, chainID, strings.ToLower(contract)).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrNotFound
		}
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get checkpoint", err.Error())
	}

	block, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, ErrCheckpointCorrupt
	}

	return block, nil
}

// SetCheckpoint persists the checkpoint. The upsert runs as a single
// statement inside WAL journaling, so a crash never leaves a
// half-written value.
func (s *SQLiteStorage) SetCheckpoint(ctx context.Context, chainID, contract string, block uint64) error {
	query := `
		INSERT INTO checkpoints (chain_id, contract, last_processed_block, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(chain_id, contract) DO UPDATE SET
			last_processed_block = excluded.last_processed_block,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := s.db.ExecContext(ctx, query, chainID, strings.ToLower(contract), strconv.FormatUint(block, 10))
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to set checkpoint", err.Error())
	}

	return nil
}

// SaveRelayRecord upserts a relay record by event ID
func (s *SQLiteStorage) SaveRelayRecord(ctx context.Context, record *models.RelayRecord) error {
	query := `
		INSERT INTO relay_records
		(event_id, source_tx_hash, log_index, block_number, user_address, amount,
		 status, dest_tx_hash, attempts, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO UPDATE SET
			status = excluded.status,
			dest_tx_hash = excluded.dest_tx_hash,
			attempts = excluded.attempts,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, query,
		record.EventID, record.SourceTxHash, record.LogIndex, record.BlockNumber,
		record.User, record.Amount, string(record.Status), record.DestTxHash,
		record.Attempts, record.LastError, record.CreatedAt, record.UpdatedAt)

	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save relay record", err.Error())
	}

	return nil
}

// GetRelayRecord retrieves a single relay record by event ID
func (s *SQLiteStorage) GetRelayRecord(ctx context.Context, eventID string) (*models.RelayRecord, error) {
	query := selectRecordColumns + ` FROM relay_records WHERE event_id = ?`

	record, err := scanRelayRecord(s.db.QueryRowContext(ctx, query, eventID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get relay record", err.Error())
	}

	return record, nil
}

// GetRelayRecords retrieves relay records based on filter
func (s *SQLiteStorage) GetRelayRecords(ctx context.Context, filter models.RecordFilter) ([]*models.RelayRecord, error) {
	query := selectRecordColumns + ` FROM relay_records WHERE 1=1`
	args := []interface{}{}

	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, string(*filter.Status))
	}
	if filter.FromBlock != nil {
		query += " AND block_number >= ?"
		args = append(args, *filter.FromBlock)
	}
	if filter.ToBlock != nil {
		query += " AND block_number <= ?"
		args = append(args, *filter.ToBlock)
	}

	query += " ORDER BY block_number ASC, log_index ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query relay records", err.Error())
	}
	defer rows.Close()

	records := []*models.RelayRecord{}
	for rows.Next() {
		record, err := scanRelayRecord(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan relay record", err.Error())
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// GetRetryableRecords returns failed records still under the attempt
// limit, oldest blocks first. maxAttempts <= 0 means unbounded retries.
func (s *SQLiteStorage) GetRetryableRecords(ctx context.Context, maxAttempts, limit int) ([]*models.RelayRecord, error) {
	query := selectRecordColumns + ` FROM relay_records WHERE status = ?`
	args := []interface{}{string(models.RelayStatusFailed)}

	if maxAttempts > 0 {
		query += " AND attempts < ?"
		args = append(args, maxAttempts)
	}

	query += " ORDER BY block_number ASC, log_index ASC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query retryable records", err.Error())
	}
	defer rows.Close()

	records := []*models.RelayRecord{}
	for rows.Next() {
		record, err := scanRelayRecord(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan relay record", err.Error())
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// CountRelayRecords counts relay records matching the filter
func (s *SQLiteStorage) CountRelayRecords(ctx context.Context, filter models.RecordFilter) (int64, error) {
	query := `SELECT COUNT(*) FROM relay_records WHERE 1=1`
	args := []interface{}{}

	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, string(*filter.Status))
	}
	if filter.FromBlock != nil {
		query += " AND block_number >= ?"
		args = append(args, *filter.FromBlock)
	}
	if filter.ToBlock != nil {
		query += " AND block_number <= ?"
		args = append(args, *filter.ToBlock)
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count relay records", err.Error())
	}

	return count, nil
}

// GetRelayStats returns aggregate statistics for the relay record set
func (s *SQLiteStorage) GetRelayStats(ctx context.Context) (*models.RelayStats, error) {
	stats := &models.RelayStats{
		ByStatus: make(map[string]int64),
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM relay_records GROUP BY status`)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get relay stats", err.Error())
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan relay stats", err.Error())
		}
		stats.ByStatus[status] = count
		stats.TotalRecords += count
	}
	if err := rows.Err(); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to read relay stats", err.Error())
	}

	var oldest, latest sql.NullTime
	err = s.db.QueryRowContext(ctx,
		`SELECT MIN(created_at), MAX(created_at) FROM relay_records`).Scan(&oldest, &latest)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get relay record range", err.Error())
	}
	if oldest.Valid {
		stats.OldestRecord = &oldest.Time
	}
	if latest.Valid {
		stats.LatestRecord = &latest.Time
	}

	return stats, nil
}

const selectRecordColumns = `
	SELECT event_id, source_tx_hash, log_index, block_number, user_address, amount,
	       status, dest_tx_hash, attempts, last_error, created_at, updated_at`

// rowScanner covers both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRelayRecord(row rowScanner) (*models.RelayRecord, error) {
	var record models.RelayRecord
	var status string
	var destTxHash, lastError sql.NullString

	err := row.Scan(&record.EventID, &record.SourceTxHash, &record.LogIndex,
		&record.BlockNumber, &record.User, &record.Amount, &status,
		&destTxHash, &record.Attempts, &lastError, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return nil, err
	}

	record.Status = models.RelayStatus(status)
	if destTxHash.Valid {
		record.DestTxHash = &destTxHash.String
	}
	if lastError.Valid {
		record.LastError = &lastError.String
	}

	return &record, nil
}
