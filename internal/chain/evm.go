package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/bridge-relayer/internal/config"
	"github.com/smartdevs17/bridge-relayer/internal/connection"
	"github.com/smartdevs17/bridge-relayer/internal/models"
	"github.com/smartdevs17/bridge-relayer/pkg/utils"
)

// EVMLedger implements Ledger against two EVM chains via go-ethereum
type EVMLedger struct {
	source      connection.Manager
	destination connection.Manager

	sourceContract common.Address
	destContract   common.Address

	sourceABI abi.ABI
	destABI   abi.ABI

	depositTopic common.Hash

	signingKey  *ecdsa.PrivateKey
	sender      common.Address
	destChainID *big.Int

	gasLimit uint64
	gasPrice *big.Int
	simulate bool

	logger *logrus.Entry
}

// EVMLedgerConfig bundles the settings the ledger needs
type EVMLedgerConfig struct {
	SourceContract      string
	DestinationContract string
	PrivateKey          string
	DestinationChainID  int64
	GasLimit            uint64
	GasPriceGwei        int64
	Simulate            bool
}

// NewEVMLedger creates an EVM-backed ledger for one bridge direction
func NewEVMLedger(source, destination connection.Manager, cfg *EVMLedgerConfig) (*EVMLedger, error) {
	sourceABI, err := abi.JSON(strings.NewReader(SourceBridgeABI))
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Failed to parse source bridge ABI", err.Error())
	}

	destABI, err := abi.JSON(strings.NewReader(DestinationBridgeABI))
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Failed to parse destination bridge ABI", err.Error())
	}

	depositEvent, ok := sourceABI.Events[DepositEventName]
	if !ok {
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Source ABI missing deposit event", DepositEventName)
	}

	if !utils.IsValidAddress(cfg.SourceContract) {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Invalid source contract address", cfg.SourceContract)
	}
	if !utils.IsValidAddress(cfg.DestinationContract) {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Invalid destination contract address", cfg.DestinationContract)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Invalid relayer private key", err.Error())
	}

	ledger := &EVMLedger{
		source:         source,
		destination:    destination,
		sourceContract: common.HexToAddress(cfg.SourceContract),
		destContract:   common.HexToAddress(cfg.DestinationContract),
		sourceABI:      sourceABI,
		destABI:        destABI,
		depositTopic:   depositEvent.ID,
		signingKey:     key,
		sender:         crypto.PubkeyToAddress(key.PublicKey),
		destChainID:    big.NewInt(cfg.DestinationChainID),
		gasLimit:       cfg.GasLimit,
		gasPrice:       new(big.Int).Mul(big.NewInt(cfg.GasPriceGwei), big.NewInt(1e9)),
		simulate:       cfg.Simulate,
		logger:         utils.ComponentLogger("ledger"),
	}

	ledger.logger.Info("EVM ledger initialized",
		"relayer_address", ledger.sender.Hex(),
		"source_contract", ledger.sourceContract.Hex(),
		"destination_contract", ledger.destContract.Hex(),
		"simulate", cfg.Simulate)

	return ledger, nil
}

// NewEVMLedgerFromConfig wires an EVM ledger from the application config
func NewEVMLedgerFromConfig(source, destination connection.Manager, cfg *config.Config) (*EVMLedger, error) {
	return NewEVMLedger(source, destination, &EVMLedgerConfig{
		SourceContract:      cfg.Source.BridgeContract,
		DestinationContract: cfg.Destination.BridgeContract,
		PrivateKey:          cfg.Destination.PrivateKey,
		DestinationChainID:  cfg.Destination.ChainID,
		GasLimit:            cfg.Relay.GasLimit,
		GasPriceGwei:        cfg.Relay.GasPriceGwei,
		Simulate:            cfg.Relay.Simulate,
	})
}

// Sender returns the relayer account address
func (l *EVMLedger) Sender() common.Address {
	return l.sender
}

// Height returns the current source chain height
func (l *EVMLedger) Height(ctx context.Context) (uint64, error) {
	height, err := l.source.GetLatestBlockNumber(ctx)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeConnection, "Failed to get source chain height", err.Error())
	}
	return height, nil
}

// FilterDeposits fetches DepositInitiated events in [fromBlock, toBlock]
func (l *EVMLedger) FilterDeposits(ctx context.Context, fromBlock, toBlock uint64) ([]*models.Event, error) {
	client, err := l.source.GetClient(ctx)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeConnection, "Failed to get source client", err.Error())
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{l.sourceContract},
		Topics:    [][]common.Hash{{l.depositTopic}},
	}

	logs, err := client.FilterLogs(ctx, query)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeBlockchain, "Failed to filter deposit logs", err.Error())
	}

	events := make([]*models.Event, 0, len(logs))
	for _, log := range logs {
		event, err := l.parseDepositLog(log)
		if err != nil {
			l.logger.Warn("Skipping unparseable deposit log",
				"tx_hash", log.TxHash.Hex(),
				"log_index", log.Index,
				"error", err)
			continue
		}
		events = append(events, event)
	}

	return events, nil
}

// parseDepositLog decodes one DepositInitiated log into an Event
func (l *EVMLedger) parseDepositLog(log types.Log) (*models.Event, error) {
	if len(log.Topics) < 2 {
		return nil, fmt.Errorf("missing indexed user topic")
	}

	unpacked, err := l.sourceABI.Unpack(DepositEventName, log.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack event data: %w", err)
	}
	if len(unpacked) < 1 {
		return nil, fmt.Errorf("event data missing amount")
	}

	amount, ok := unpacked[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("amount is not uint256")
	}

	txHash := log.TxHash.Hex()
	return &models.Event{
		ID:          utils.EventID(txHash, uint(log.Index)),
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash.Hex(),
		TxHash:      txHash,
		LogIndex:    uint(log.Index),
		User:        common.BytesToAddress(log.Topics[1].Bytes()),
		Amount:      amount,
		ObservedAt:  time.Now().UTC(),
	}, nil
}

// SubmitClaim builds, signs and submits the claimWithdrawal transaction
// for one source event. The claim parameters are derived purely from
// the event fields, so resubmission for the same event is always
// byte-identical apart from the nonce.
func (l *EVMLedger) SubmitClaim(ctx context.Context, event *models.Event) (string, error) {
	client, err := l.destination.GetClient(ctx)
	if err != nil {
		return "", utils.NewAppError(utils.ErrCodeConnection, "Failed to get destination client", err.Error())
	}

	calldata, err := l.destABI.Pack(ClaimMethodName,
		event.User,
		event.Amount,
		common.HexToHash(event.TxHash))
	if err != nil {
		return "", utils.NewAppError(utils.ErrCodeBlockchain, "Failed to pack claim calldata", err.Error())
	}

	nonce, err := client.PendingNonceAt(ctx, l.sender)
	if err != nil {
		return "", utils.NewAppError(utils.ErrCodeBlockchain, "Failed to get relayer nonce", err.Error())
	}

	tx := types.NewTransaction(nonce, l.destContract, big.NewInt(0), l.gasLimit, l.gasPrice, calldata)

	chainID := l.destChainID
	if chainID.Sign() == 0 {
		chainID, err = client.ChainID(ctx)
		if err != nil {
			return "", utils.NewAppError(utils.ErrCodeBlockchain, "Failed to get destination chain ID", err.Error())
		}
	}

	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(chainID), l.signingKey)
	if err != nil {
		return "", utils.NewAppError(utils.ErrCodeBlockchain, "Failed to sign claim transaction", err.Error())
	}

	if l.simulate {
		l.logger.Info("Simulated claim submission",
			"event_id", event.ID,
			"user", event.User.Hex(),
			"amount", event.Amount.String(),
			"tx_hash", signedTx.Hash().Hex())
		return signedTx.Hash().Hex(), nil
	}

	if err := client.SendTransaction(ctx, signedTx); err != nil {
		return "", utils.NewAppError(utils.ErrCodeRelay, "Failed to broadcast claim transaction", err.Error())
	}

	l.logger.Info("Claim transaction broadcast",
		"event_id", event.ID,
		"user", event.User.Hex(),
		"amount", event.Amount.String(),
		"tx_hash", signedTx.Hash().Hex())

	return signedTx.Hash().Hex(), nil
}
