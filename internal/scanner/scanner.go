package scanner

import (
	"context"
	"errors"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/bridge-relayer/internal/chain"
	"github.com/smartdevs17/bridge-relayer/internal/models"
	"github.com/smartdevs17/bridge-relayer/internal/storage"
	"github.com/smartdevs17/bridge-relayer/pkg/utils"
)

// ScannerConfig holds the scan window settings
type ScannerConfig struct {
	ChainID            string
	Contract           string
	ConfirmationBlocks uint64
	BatchSize          uint64
	StartBlock         uint64
}

// ScanResult is the outcome of one scan cycle. Events are ordered by
// (block number, log index); Window.ToBlock is the value the caller
// commits once the window has been consumed.
type ScanResult struct {
	Events  []*models.Event   `json:"events"`
	Window  models.ScanWindow `json:"window"`
	Latest  uint64            `json:"latest"`
	Waiting bool              `json:"waiting"`

	// Recovered is set when the stored checkpoint could not be parsed
	// and the scan base was recomputed from the current height. Events
	// below the recomputed base are lost to scanning; already-recorded
	// relays stay safe through the relay record set.
	Recovered bool `json:"recovered,omitempty"`
}

// EventScanner computes the next safe block window and fetches the
// deposit events inside it. It reads the checkpoint but never commits
// it; advancing the cursor is the orchestrator's call, made only after
// the window has been handed to the relay pipeline.
type EventScanner struct {
	ledger  chain.Ledger
	storage storage.Storage
	config  *ScannerConfig
	logger  *logrus.Entry
}

// NewEventScanner creates a new event scanner
func NewEventScanner(ledger chain.Ledger, store storage.Storage, config *ScannerConfig) *EventScanner {
	return &EventScanner{
		ledger:  ledger,
		storage: store,
		config:  config,
		logger:  utils.ComponentLogger("scanner"),
	}
}

// Scan performs one scan cycle
func (s *EventScanner) Scan(ctx context.Context) (*ScanResult, error) {
	latest, err := s.ledger.Height(ctx)
	if err != nil {
		return nil, err
	}

	if latest < s.config.ConfirmationBlocks {
		// Chain shorter than the confirmation depth, nothing is final yet
		return &ScanResult{Latest: latest, Waiting: true}, nil
	}
	confirmed := latest - s.config.ConfirmationBlocks

	checkpoint, recovered, err := s.loadCheckpoint(ctx, confirmed)
	if err != nil {
		return nil, err
	}

	from := checkpoint + 1
	to := confirmed

	if from > to {
		s.logger.Debug("Waiting for new confirmed blocks",
			"latest", latest,
			"confirmed", to,
			"checkpoint", checkpoint)
		// Window carries the recomputed base so a recovered checkpoint
		// can still be re-anchored by the caller
		return &ScanResult{
			Window:    models.ScanWindow{FromBlock: from, ToBlock: to},
			Latest:    latest,
			Waiting:   true,
			Recovered: recovered,
		}, nil
	}

	// Cap the window so one cycle never bites off an unbounded range
	if s.config.BatchSize > 0 && to-from+1 > s.config.BatchSize {
		to = from + s.config.BatchSize - 1
	}

	window := models.ScanWindow{FromBlock: from, ToBlock: to}

	events, err := s.ledger.FilterDeposits(ctx, from, to)
	if err != nil {
		// Checkpoint untouched; the same window is retried next cycle
		return nil, err
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].BlockNumber != events[j].BlockNumber {
			return events[i].BlockNumber < events[j].BlockNumber
		}
		return events[i].LogIndex < events[j].LogIndex
	})

	if len(events) > 0 {
		s.logger.Info("Found deposit events",
			"count", len(events),
			"from_block", from,
			"to_block", to,
			"window_blocks", window.Blocks())
	}

	return &ScanResult{
		Events:    events,
		Window:    window,
		Latest:    latest,
		Recovered: recovered,
	}, nil
}

// loadCheckpoint reads the scan cursor. A missing checkpoint starts at
// the configured start block; a corrupt one falls back to the current
// confirmed height, which skips anything not yet recorded but keeps the
// relayer moving.
func (s *EventScanner) loadCheckpoint(ctx context.Context, confirmed uint64) (uint64, bool, error) {
	checkpoint, err := s.storage.GetCheckpoint(ctx, s.config.ChainID, s.config.Contract)
	if err == nil {
		return checkpoint, false, nil
	}

	if errors.Is(err, storage.ErrNotFound) {
		s.logger.Info("No checkpoint found, starting from configured start block",
			"start_block", s.config.StartBlock)
		return s.config.StartBlock, false, nil
	}

	if errors.Is(err, storage.ErrCheckpointCorrupt) {
		s.logger.Error("Checkpoint corrupt, re-anchoring at confirmed height",
			"confirmed", confirmed)
		return confirmed, true, nil
	}

	return 0, false, err
}
