package relay

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/bridge-relayer/internal/chain"
	"github.com/smartdevs17/bridge-relayer/internal/metrics"
	"github.com/smartdevs17/bridge-relayer/internal/models"
	"github.com/smartdevs17/bridge-relayer/internal/storage"
	"github.com/smartdevs17/bridge-relayer/pkg/utils"
)

// PipelineConfig holds relay pipeline configuration
type PipelineConfig struct {
	// MaxAttempts caps retries per record; 0 means unbounded. A record
	// at the cap stays Failed until an operator intervenes.
	MaxAttempts int

	// RetryBatchSize limits how many stored failures one cycle retries
	RetryBatchSize int
}

// Pipeline maps each source event to its destination claim and performs
// it at most once in effect. Idempotency comes from the durable relay
// record set, not from any delivery guarantee of the network: a record
// already Submitted or Confirmed is never submitted again, however many
// times its window is rescanned.
type Pipeline struct {
	ledger  chain.Ledger
	storage storage.Storage
	config  *PipelineConfig
	logger  *logrus.Entry
	metrics *metrics.Manager
}

// NewPipeline creates a new relay pipeline
func NewPipeline(ledger chain.Ledger, store storage.Storage, config *PipelineConfig) *Pipeline {
	return &Pipeline{
		ledger:  ledger,
		storage: store,
		config:  config,
		logger:  utils.ComponentLogger("relay"),
	}
}

// SetMetrics attaches a metrics manager
func (p *Pipeline) SetMetrics(m *metrics.Manager) {
	p.metrics = m
}

// Relay performs the destination action for one source event. The
// returned record reflects the post-call state; a non-nil error means
// this attempt failed and has been recorded, not that the cycle should
// abort.
func (p *Pipeline) Relay(ctx context.Context, event *models.Event) (*models.RelayRecord, error) {
	record, err := p.storage.GetRelayRecord(ctx, event.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	if record != nil && record.Status.Done() {
		// Idempotent short-circuit: the claim already went out
		p.logger.Debug("Event already relayed",
			"event_id", event.ID,
			"status", record.Status,
			"dest_tx_hash", record.DestTxHash)
		return record, nil
	}

	if record == nil {
		record = newRecord(event)
	}

	return p.submit(ctx, event, record)
}

// RetryFailed re-relays stored Failed records from their persisted
// payload. The checkpoint may be far past these blocks already, so the
// event is rebuilt from the record, never re-fetched from the ledger.
func (p *Pipeline) RetryFailed(ctx context.Context) (retried, succeeded int, err error) {
	records, err := p.storage.GetRetryableRecords(ctx, p.config.MaxAttempts, p.config.RetryBatchSize)
	if err != nil {
		return 0, 0, err
	}

	for _, record := range records {
		if ctx.Err() != nil {
			return retried, succeeded, ctx.Err()
		}

		event, err := eventFromRecord(record)
		if err != nil {
			p.logger.Error("Stored relay record is not replayable",
				"event_id", record.EventID,
				"error", err)
			continue
		}

		retried++
		if updated, err := p.submit(ctx, event, record); err == nil && updated.Status.Done() {
			succeeded++
		}
	}

	return retried, succeeded, nil
}

// submit performs one submission attempt and persists the outcome
func (p *Pipeline) submit(ctx context.Context, event *models.Event, record *models.RelayRecord) (*models.RelayRecord, error) {
	start := time.Now()
	record.Attempts++

	destTxHash, err := p.ledger.SubmitClaim(ctx, event)
	if err != nil {
		msg := err.Error()
		record.Status = models.RelayStatusFailed
		record.LastError = &msg

		if saveErr := p.storage.SaveRelayRecord(ctx, record); saveErr != nil {
			p.logger.Error("Failed to persist failed relay record",
				"event_id", record.EventID, "error", saveErr)
		}

		if p.metrics != nil {
			p.metrics.Prometheus().RecordEventRelayed("failed", time.Since(start))
		}

		p.logger.Error("Relay attempt failed",
			"event_id", record.EventID,
			"attempts", record.Attempts,
			"error", msg)

		return record, utils.NewAppError(utils.ErrCodeRelay, "Relay attempt failed", msg)
	}

	record.Status = models.RelayStatusSubmitted
	record.DestTxHash = &destTxHash
	record.LastError = nil

	if err := p.storage.SaveRelayRecord(ctx, record); err != nil {
		// The claim went out but the record did not stick; surface
		// loudly, the next save attempt will reconcile by event ID
		p.logger.Error("Failed to persist submitted relay record",
			"event_id", record.EventID, "error", err)
		return record, err
	}

	if p.metrics != nil {
		p.metrics.Prometheus().RecordEventRelayed("submitted", time.Since(start))
	}

	p.logger.Info("Event relayed",
		"event_id", record.EventID,
		"dest_tx_hash", destTxHash,
		"attempts", record.Attempts)

	return record, nil
}

// newRecord creates the initial relay record for a freshly scanned event
func newRecord(event *models.Event) *models.RelayRecord {
	return &models.RelayRecord{
		EventID:      event.ID,
		SourceTxHash: event.TxHash,
		LogIndex:     event.LogIndex,
		BlockNumber:  event.BlockNumber,
		User:         event.User.Hex(),
		Amount:       event.Amount.String(),
		Status:       models.RelayStatusPending,
	}
}

// eventFromRecord rebuilds the event payload carried in a stored record
func eventFromRecord(record *models.RelayRecord) (*models.Event, error) {
	amount, ok := new(big.Int).SetString(record.Amount, 10)
	if !ok {
		return nil, errors.New("invalid amount in stored record: " + record.Amount)
	}

	return &models.Event{
		ID:          record.EventID,
		BlockNumber: record.BlockNumber,
		TxHash:      record.SourceTxHash,
		LogIndex:    record.LogIndex,
		User:        common.HexToAddress(record.User),
		Amount:      amount,
	}, nil
}
