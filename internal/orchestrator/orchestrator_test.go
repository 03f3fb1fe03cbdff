package orchestrator

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/bridge-relayer/internal/models"
	"github.com/smartdevs17/bridge-relayer/internal/relay"
	"github.com/smartdevs17/bridge-relayer/internal/scanner"
	"github.com/smartdevs17/bridge-relayer/internal/storage"
)

const (
	testChainID  = "31"
	testContract = "0x2222222222222222222222222222222222222222"
)

// fakeLedger drives full cycles: canned height and events, claims
// recorded in submission order, selectable per-event failures.
type fakeLedger struct {
	height    uint64
	heightErr error
	events    []*models.Event

	failIDs     map[string]bool
	submitted   []string
	submissions int
}

func (f *fakeLedger) Height(ctx context.Context) (uint64, error) {
	return f.height, f.heightErr
}

func (f *fakeLedger) FilterDeposits(ctx context.Context, fromBlock, toBlock uint64) ([]*models.Event, error) {
	matched := []*models.Event{}
	for _, event := range f.events {
		if event.BlockNumber >= fromBlock && event.BlockNumber <= toBlock {
			matched = append(matched, event)
		}
	}
	return matched, nil
}

func (f *fakeLedger) SubmitClaim(ctx context.Context, event *models.Event) (string, error) {
	f.submissions++
	if f.failIDs[event.ID] {
		return "", errors.New("execution reverted")
	}
	f.submitted = append(f.submitted, event.ID)
	return "0xdest-" + event.ID, nil
}

// flakyCheckpointStore reports a corrupt checkpoint until the next
// successful commit overwrites it.
type flakyCheckpointStore struct {
	*storage.MemoryStorage
	corrupt bool
}

func (f *flakyCheckpointStore) GetCheckpoint(ctx context.Context, chainID, contract string) (uint64, error) {
	if f.corrupt {
		return 0, storage.ErrCheckpointCorrupt
	}
	return f.MemoryStorage.GetCheckpoint(ctx, chainID, contract)
}

func (f *flakyCheckpointStore) SetCheckpoint(ctx context.Context, chainID, contract string, block uint64) error {
	if err := f.MemoryStorage.SetCheckpoint(ctx, chainID, contract, block); err != nil {
		return err
	}
	f.corrupt = false
	return nil
}

func depositEvent(id string, block uint64, logIndex uint) *models.Event {
	return &models.Event{
		ID:          id,
		BlockNumber: block,
		TxHash:      "0xsource" + id,
		LogIndex:    logIndex,
		User:        common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Amount:      big.NewInt(1000),
	}
}

func newTestOrchestrator(ledger *fakeLedger, store storage.Storage, confirmations uint64) *Orchestrator {
	sc := scanner.NewEventScanner(ledger, store, &scanner.ScannerConfig{
		ChainID:            testChainID,
		Contract:           testContract,
		ConfirmationBlocks: confirmations,
		BatchSize:          100,
	})
	pipeline := relay.NewPipeline(ledger, store, &relay.PipelineConfig{
		MaxAttempts:    5,
		RetryBatchSize: 50,
	})
	return New(sc, pipeline, store, &OrchestratorConfig{
		ChainID:        testChainID,
		Contract:       testContract,
		PollInterval:   10 * time.Millisecond,
		FailureBackoff: 50 * time.Millisecond,
	})
}

func TestCycleRelaysWindowAndCommits(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	ledger := &fakeLedger{height: 100, events: []*models.Event{
		depositEvent("b", 80, 0),
		depositEvent("a", 60, 1),
	}}

	o := newTestOrchestrator(ledger, store, 6)
	require.NoError(t, store.SetCheckpoint(ctx, testChainID, testContract, 50))

	delay := o.RunCycle(ctx)
	assert.Equal(t, o.config.PollInterval, delay)

	// Window [51, 94], claims in source-chain order
	assert.Equal(t, []string{"a", "b"}, ledger.submitted)

	checkpoint, err := store.GetCheckpoint(ctx, testChainID, testContract)
	require.NoError(t, err)
	assert.Equal(t, uint64(94), checkpoint)

	stats := o.GetStats()
	assert.Equal(t, uint64(1), stats.CyclesTotal)
	assert.Equal(t, uint64(2), stats.EventsRelayed)
	assert.Equal(t, uint64(94), stats.LastCheckpoint)
}

func TestCycleAdvancesCheckpointPastFailedRelay(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	ledger := &fakeLedger{
		height: 100,
		events: []*models.Event{
			depositEvent("a", 60, 0),
			depositEvent("b", 80, 0),
		},
		failIDs: map[string]bool{"a": true},
	}

	o := newTestOrchestrator(ledger, store, 6)
	require.NoError(t, store.SetCheckpoint(ctx, testChainID, testContract, 50))

	o.RunCycle(ctx)

	// One relay failed, but the checkpoint still covers the window
	checkpoint, err := store.GetCheckpoint(ctx, testChainID, testContract)
	require.NoError(t, err)
	assert.Equal(t, uint64(94), checkpoint)

	record, err := store.GetRelayRecord(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.RelayStatusFailed, record.Status)

	stats := o.GetStats()
	assert.Equal(t, uint64(1), stats.EventsRelayed)
	assert.Equal(t, uint64(1), stats.RelayFailures)

	// The fault clears; the next cycle retries from the stored record
	// even though block 60 is behind the checkpoint now
	ledger.failIDs = nil
	o.RunCycle(ctx)

	record, err = store.GetRelayRecord(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.RelayStatusSubmitted, record.Status)
	assert.Equal(t, 2, record.Attempts)
}

func TestCycleRepeatIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	ledger := &fakeLedger{height: 100, events: []*models.Event{
		depositEvent("a", 60, 0),
	}}

	o := newTestOrchestrator(ledger, store, 6)
	require.NoError(t, store.SetCheckpoint(ctx, testChainID, testContract, 50))

	o.RunCycle(ctx)
	require.Equal(t, 1, ledger.submissions)

	// Force the window to be rescanned, as after a crash between relay
	// and commit
	require.NoError(t, store.SetCheckpoint(ctx, testChainID, testContract, 50))
	o.RunCycle(ctx)

	assert.Equal(t, 1, ledger.submissions, "rescanned event must not be relayed twice")
}

func TestWaitingCycleLeavesCheckpointAlone(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	ledger := &fakeLedger{height: 100}

	o := newTestOrchestrator(ledger, store, 6)
	require.NoError(t, store.SetCheckpoint(ctx, testChainID, testContract, 94))

	delay := o.RunCycle(ctx)
	assert.Equal(t, o.config.PollInterval, delay)

	checkpoint, err := store.GetCheckpoint(ctx, testChainID, testContract)
	require.NoError(t, err)
	assert.Equal(t, uint64(94), checkpoint)
}

func TestScanFailureBacksOff(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	ledger := &fakeLedger{heightErr: errors.New("rpc unavailable")}

	o := newTestOrchestrator(ledger, store, 6)
	require.NoError(t, store.SetCheckpoint(ctx, testChainID, testContract, 50))

	delay := o.RunCycle(ctx)
	assert.Equal(t, o.config.FailureBackoff, delay)

	checkpoint, err := store.GetCheckpoint(ctx, testChainID, testContract)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), checkpoint)

	stats := o.GetStats()
	assert.Equal(t, uint64(1), stats.CyclesFailed)
	require.NotNil(t, stats.LastError)
}

func TestCorruptCheckpointReanchors(t *testing.T) {
	ctx := context.Background()
	store := &flakyCheckpointStore{MemoryStorage: storage.NewMemoryStorage(), corrupt: true}
	ledger := &fakeLedger{height: 100}

	o := newTestOrchestrator(ledger, store, 6)
	o.RunCycle(ctx)

	// The unreadable checkpoint was replaced with the confirmed height
	checkpoint, err := store.GetCheckpoint(ctx, testChainID, testContract)
	require.NoError(t, err)
	assert.Equal(t, uint64(94), checkpoint)

	// From here scanning proceeds normally
	ledger.events = []*models.Event{depositEvent("a", 95, 0)}
	ledger.height = 105
	o.RunCycle(ctx)

	assert.Equal(t, []string{"a"}, ledger.submitted)
}

func TestStartStopLifecycle(t *testing.T) {
	store := storage.NewMemoryStorage()
	ledger := &fakeLedger{height: 100}

	o := newTestOrchestrator(ledger, store, 6)

	require.NoError(t, o.Start(context.Background()))
	assert.True(t, o.IsRunning())

	assert.Error(t, o.Start(context.Background()), "double start must be rejected")

	require.NoError(t, o.Stop())
	assert.False(t, o.IsRunning())
	assert.Equal(t, StateCancelled, o.GetStats().State)

	// Stop is safe to call again
	require.NoError(t, o.Stop())
}
