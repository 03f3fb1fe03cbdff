package models

// Checkpoint marks the last block whose event window has been fully
// processed for one (source chain, watched contract) pair. The stored
// value is monotonically non-decreasing and must survive restarts.
type Checkpoint struct {
	ChainID            string `json:"chain_id" db:"chain_id"`
	Contract           string `json:"contract" db:"contract"`
	LastProcessedBlock uint64 `json:"last_processed_block" db:"last_processed_block"`
}
