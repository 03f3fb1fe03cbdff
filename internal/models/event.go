package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Event represents a DepositInitiated event observed on the source chain.
// Events are produced only by the scanner and never mutated afterwards;
// their identity is the (tx hash, log index) pair.
type Event struct {
	ID          string         `json:"id" db:"id"`
	BlockNumber uint64         `json:"block_number" db:"block_number"`
	BlockHash   string         `json:"block_hash" db:"block_hash"`
	TxHash      string         `json:"tx_hash" db:"tx_hash"`
	LogIndex    uint           `json:"log_index" db:"log_index"`
	User        common.Address `json:"user" db:"user_address"`
	Amount      *big.Int       `json:"amount" db:"amount"`
	ObservedAt  time.Time      `json:"observed_at" db:"observed_at"`
}

// ScanWindow is the block range a single scan cycle covers. Recomputed
// every cycle from the checkpoint and the current chain height.
type ScanWindow struct {
	FromBlock uint64 `json:"from_block"`
	ToBlock   uint64 `json:"to_block"`
}

// Blocks returns the number of blocks the window spans
func (w ScanWindow) Blocks() uint64 {
	if w.FromBlock > w.ToBlock {
		return 0
	}
	return w.ToBlock - w.FromBlock + 1
}
