package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/bridge-relayer/internal/models"
	"github.com/smartdevs17/bridge-relayer/pkg/utils"
)

// PostgreSQLStorage implements Storage using PostgreSQL
type PostgreSQLStorage struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Logger
	migrations []*Migration
}

// NewPostgreSQLStorage creates a new PostgreSQL storage instance
func NewPostgreSQLStorage(config *StorageConfig) *PostgreSQLStorage {
	return &PostgreSQLStorage{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetPostgreSQLMigrations(),
	}
}

// Connect establishes the database connection
func (s *PostgreSQLStorage) Connect() error {
	db, err := sql.Open("postgres", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open PostgreSQL database", err.Error())
	}

	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxLifetime(s.config.MaxIdleTime)

	if err := db.Ping(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to ping PostgreSQL database", err.Error())
	}

	s.db = db
	s.logger.Info("PostgreSQL database connected")

	return nil
}

// Close closes the database connection
func (s *PostgreSQLStorage) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("PostgreSQL database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *PostgreSQLStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *PostgreSQLStorage) Migrate() error {
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
func (s *PostgreSQLStorage) GetCheckpoint(ctx context.Context, chainID, contract string) (uint64, error) {
	query := `SELECT last_processed_block FROM checkpoints WHERE chain_id = $1 AND contract = $2`

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

// SetCheckpoint persists the checkpoint as a single transactional upsert
func (s *PostgreSQLStorage) SetCheckpoint(ctx context.Context, chainID, contract string, block uint64) error {
	query := `
		INSERT INTO checkpoints (chain_id, contract, last_processed_block, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (chain_id, contract) DO UPDATE SET
			last_processed_block = EXCLUDED.last_processed_block,
			updated_at = NOW()
	`

	_, err := s.db.ExecContext(ctx, query, chainID, strings.ToLower(contract), strconv.FormatUint(block, 10))
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to set checkpoint", err.Error())
	}

	return nil
}

// SaveRelayRecord upserts a relay record by event ID
func (s *PostgreSQLStorage) SaveRelayRecord(ctx context.Context, record *models.RelayRecord) error {
	query := `
		INSERT INTO relay_records
		(event_id, source_tx_hash, log_index, block_number, user_address, amount,
		 status, dest_tx_hash, attempts, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (event_id) DO UPDATE SET
			status = EXCLUDED.status,
			dest_tx_hash = EXCLUDED.dest_tx_hash,
			attempts = EXCLUDED.attempts,
			last_error = EXCLUDED.last_error,
			updated_at = EXCLUDED.updated_at
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
func (s *PostgreSQLStorage) GetRelayRecord(ctx context.Context, eventID string) (*models.RelayRecord, error) {
	query := selectRecordColumns + ` FROM relay_records WHERE event_id = $1`

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
func (s *PostgreSQLStorage) GetRelayRecords(ctx context.Context, filter models.RecordFilter) ([]*models.RelayRecord, error) {
	query := selectRecordColumns + ` FROM relay_records WHERE 1=1`
	args := []interface{}{}
	argIndex := 1

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, string(*filter.Status))
		argIndex++
	}
	if filter.FromBlock != nil {
		query += fmt.Sprintf(" AND block_number >= $%d", argIndex)
		args = append(args, *filter.FromBlock)
		argIndex++
	}
	if filter.ToBlock != nil {
		query += fmt.Sprintf(" AND block_number <= $%d", argIndex)
		args = append(args, *filter.ToBlock)
		argIndex++
	}

	query += " ORDER BY block_number ASC, log_index ASC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filter.Limit)
		argIndex++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
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

// GetRetryableRecords returns failed records still under the attempt limit
func (s *PostgreSQLStorage) GetRetryableRecords(ctx context.Context, maxAttempts, limit int) ([]*models.RelayRecord, error) {
	query := selectRecordColumns + ` FROM relay_records WHERE status = $1`
	args := []interface{}{string(models.RelayStatusFailed)}
	argIndex := 2

	if maxAttempts > 0 {
		query += fmt.Sprintf(" AND attempts < $%d", argIndex)
		args = append(args, maxAttempts)
		argIndex++
	}

	query += " ORDER BY block_number ASC, log_index ASC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
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
func (s *PostgreSQLStorage) CountRelayRecords(ctx context.Context, filter models.RecordFilter) (int64, error) {
	query := `SELECT COUNT(*) FROM relay_records WHERE 1=1`
	args := []interface{}{}
	argIndex := 1

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, string(*filter.Status))
		argIndex++
	}
	if filter.FromBlock != nil {
		query += fmt.Sprintf(" AND block_number >= $%d", argIndex)
		args = append(args, *filter.FromBlock)
		argIndex++
	}
	if filter.ToBlock != nil {
		query += fmt.Sprintf(" AND block_number <= $%d", argIndex)
		args = append(args, *filter.ToBlock)
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count relay records", err.Error())
	}

	return count, nil
}

// GetRelayStats returns aggregate statistics for the relay record set
func (s *PostgreSQLStorage) GetRelayStats(ctx context.Context) (*models.RelayStats, error) {
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
