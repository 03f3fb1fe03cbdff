package storage

import (
	"context"
	"errors"
	"time"

	"github.com/smartdevs17/bridge-relayer/internal/models"
)

var (
	// ErrNotFound is returned when a requested row does not exist
	ErrNotFound = errors.New("not found")

	// ErrCheckpointCorrupt is returned when the stored checkpoint value
	// cannot be parsed. The scanner recovers by re-anchoring at the
	// current height minus the confirmation depth.
	ErrCheckpointCorrupt = errors.New("checkpoint value corrupt")
)

// Storage defines the persistence interface for the relayer. The
// checkpoint and the relay record set are the only durable state; both
// must survive restarts independently of each other.
type Storage interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// Checkpoint operations, keyed by (source chain, watched contract).
	// GetCheckpoint returns ErrNotFound when no checkpoint exists yet.
	// SetCheckpoint must be atomic with respect to process crash.
	GetCheckpoint(ctx context.Context, chainID, contract string) (uint64, error)
	SetCheckpoint(ctx context.Context, chainID, contract string, block uint64) error

	// Relay record operations. Records are append-only: SaveRelayRecord
	// upserts by event ID, nothing ever deletes.
	SaveRelayRecord(ctx context.Context, record *models.RelayRecord) error
	GetRelayRecord(ctx context.Context, eventID string) (*models.RelayRecord, error)
	GetRelayRecords(ctx context.Context, filter models.RecordFilter) ([]*models.RelayRecord, error)
	GetRetryableRecords(ctx context.Context, maxAttempts, limit int) ([]*models.RelayRecord, error)
	CountRelayRecords(ctx context.Context, filter models.RecordFilter) (int64, error)

	// Statistics
	GetRelayStats(ctx context.Context) (*models.RelayStats, error)
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type             string        `json:"type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
}
