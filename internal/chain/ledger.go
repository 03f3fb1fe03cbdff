package chain

import (
	"context"

	"github.com/smartdevs17/bridge-relayer/internal/models"
)

// Ledger is the capability the relay core consumes: read the source
// chain and act on the destination chain. The core never depends on a
// concrete client; any backend that can answer these three calls works.
type Ledger interface {
	// Height returns the current source chain height
	Height(ctx context.Context) (uint64, error)

	// FilterDeposits fetches DepositInitiated events emitted by the
	// watched bridge contract in [fromBlock, toBlock], inclusive
	FilterDeposits(ctx context.Context, fromBlock, toBlock uint64) ([]*models.Event, error)

	// SubmitClaim builds, signs and submits the claimWithdrawal
	// transaction for one source event on the destination chain and
	// returns the destination transaction hash. In simulate mode the
	// transaction is built and signed but never broadcast.
	SubmitClaim(ctx context.Context, event *models.Event) (string, error)
}

// Contract ABIs for the two sides of the bridge. The source side only
// declares the event being watched; the destination side only the claim
// entrypoint the relayer calls.
const (
	SourceBridgeABI = `[
		{
			"anonymous": false,
			"inputs": [
				{"indexed": true, "name": "user", "type": "address"},
				{"indexed": false, "name": "amount", "type": "uint256"}
			],
			"name": "DepositInitiated",
			"type": "event"
		}
	]`

	DestinationBridgeABI = `[
		{
			"inputs": [
				{"name": "user", "type": "address"},
				{"name": "amount", "type": "uint256"},
				{"name": "sourceTxHash", "type": "bytes32"}
			],
			"name": "claimWithdrawal",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		}
	]`

	// DepositEventName is the event watched on the source bridge
	DepositEventName = "DepositInitiated"

	// ClaimMethodName is the method called on the destination bridge
	ClaimMethodName = "claimWithdrawal"
)
