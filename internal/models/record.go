package models

import (
	"time"
)

// RelayStatus is the lifecycle state of a relay record
type RelayStatus string

const (
	RelayStatusPending   RelayStatus = "pending"
	RelayStatusSubmitted RelayStatus = "submitted"
	RelayStatusConfirmed RelayStatus = "confirmed"
	RelayStatusFailed    RelayStatus = "failed"
)

// Done reports whether the destination action has already been performed.
// Records in a done state are never submitted again.
func (s RelayStatus) Done() bool {
	return s == RelayStatusSubmitted || s == RelayStatusConfirmed
}

// RelayRecord is the durable audit trail for one source event. It carries
// the full event payload so a failed relay can be retried from storage
// after the checkpoint has advanced past the event's block. Records are
// never deleted; they are the de-duplication key that makes re-scanning
// a window after a crash safe.
type RelayRecord struct {
	EventID      string      `json:"event_id" db:"event_id"`
	SourceTxHash string      `json:"source_tx_hash" db:"source_tx_hash"`
	LogIndex     uint        `json:"log_index" db:"log_index"`
	BlockNumber  uint64      `json:"block_number" db:"block_number"`
	User         string      `json:"user" db:"user_address"`
	Amount       string      `json:"amount" db:"amount"`
	Status       RelayStatus `json:"status" db:"status"`
	DestTxHash   *string     `json:"dest_tx_hash,omitempty" db:"dest_tx_hash"`
	Attempts     int         `json:"attempts" db:"attempts"`
	LastError    *string     `json:"last_error,omitempty" db:"last_error"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at" db:"updated_at"`
}

// RecordFilter for querying relay records
type RecordFilter struct {
	Status    *RelayStatus `json:"status,omitempty"`
	FromBlock *uint64      `json:"from_block,omitempty"`
	ToBlock   *uint64      `json:"to_block,omitempty"`
	Limit     int          `json:"limit,omitempty"`
	Offset    int          `json:"offset,omitempty"`
}

// RelayStats summarizes the relay record set
type RelayStats struct {
	TotalRecords int64            `json:"total_records"`
	ByStatus     map[string]int64 `json:"by_status"`
	OldestRecord *time.Time       `json:"oldest_record,omitempty"`
	LatestRecord *time.Time       `json:"latest_record,omitempty"`
}
