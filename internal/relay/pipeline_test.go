package relay

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/bridge-relayer/internal/models"
	"github.com/smartdevs17/bridge-relayer/internal/storage"
)

// fakeLedger counts claim submissions and can be told to fail them
type fakeLedger struct {
	submitErr   error
	submissions int
}

func (f *fakeLedger) Height(ctx context.Context) (uint64, error) {
	return 0, errors.New("not implemented")
}

func (f *fakeLedger) FilterDeposits(ctx context.Context, fromBlock, toBlock uint64) ([]*models.Event, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeLedger) SubmitClaim(ctx context.Context, event *models.Event) (string, error) {
	f.submissions++
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return fmt.Sprintf("0xdest%d", f.submissions), nil
}

func depositEvent(id string, block uint64, logIndex uint) *models.Event {
	return &models.Event{
		ID:          id,
		BlockNumber: block,
		TxHash:      "0xsource" + id,
		LogIndex:    logIndex,
		User:        common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Amount:      big.NewInt(5000),
	}
}

func newTestPipeline(ledger *fakeLedger) (*Pipeline, *storage.MemoryStorage) {
	store := storage.NewMemoryStorage()
	pipeline := NewPipeline(ledger, store, &PipelineConfig{
		MaxAttempts:    5,
		RetryBatchSize: 50,
	})
	return pipeline, store
}

func TestRelaySubmitsNewEvent(t *testing.T) {
	ctx := context.Background()
	ledger := &fakeLedger{}
	pipeline, store := newTestPipeline(ledger)

	record, err := pipeline.Relay(ctx, depositEvent("a", 60, 0))
	require.NoError(t, err)

	assert.Equal(t, models.RelayStatusSubmitted, record.Status)
	assert.Equal(t, 1, record.Attempts)
	require.NotNil(t, record.DestTxHash)
	assert.Equal(t, "0xdest1", *record.DestTxHash)
	assert.Equal(t, 1, ledger.submissions)

	// Persisted copy matches
	stored, err := store.GetRelayRecord(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.RelayStatusSubmitted, stored.Status)
	assert.Equal(t, "5000", stored.Amount)
}

func TestRelayIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ledger := &fakeLedger{}
	pipeline, _ := newTestPipeline(ledger)

	event := depositEvent("a", 60, 0)

	first, err := pipeline.Relay(ctx, event)
	require.NoError(t, err)

	// The same event arriving again, as after a rescan of its window,
	// must not produce a second claim
	second, err := pipeline.Relay(ctx, event)
	require.NoError(t, err)

	assert.Equal(t, 1, ledger.submissions)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.Attempts, second.Attempts)
	assert.Equal(t, *first.DestTxHash, *second.DestTxHash)
}

func TestRelayRecordsFailure(t *testing.T) {
	ctx := context.Background()
	ledger := &fakeLedger{submitErr: errors.New("insufficient funds")}
	pipeline, store := newTestPipeline(ledger)

	record, err := pipeline.Relay(ctx, depositEvent("a", 60, 0))
	require.Error(t, err)

	assert.Equal(t, models.RelayStatusFailed, record.Status)
	assert.Equal(t, 1, record.Attempts)
	assert.Nil(t, record.DestTxHash)
	require.NotNil(t, record.LastError)
	assert.Contains(t, *record.LastError, "insufficient funds")

	// The failure is durable, not just in-memory state
	stored, err := store.GetRelayRecord(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.RelayStatusFailed, stored.Status)
}

func TestRelayRetriesFailedRecord(t *testing.T) {
	ctx := context.Background()
	ledger := &fakeLedger{submitErr: errors.New("nonce too low")}
	pipeline, _ := newTestPipeline(ledger)

	event := depositEvent("a", 60, 0)

	_, err := pipeline.Relay(ctx, event)
	require.Error(t, err)

	// The chain recovers; the same event relays on the next pass
	ledger.submitErr = nil

	record, err := pipeline.Relay(ctx, event)
	require.NoError(t, err)

	assert.Equal(t, models.RelayStatusSubmitted, record.Status)
	assert.Equal(t, 2, record.Attempts)
	require.NotNil(t, record.DestTxHash)
	assert.Nil(t, record.LastError)
}

func TestRetryFailedFromStorage(t *testing.T) {
	ctx := context.Background()
	ledger := &fakeLedger{}
	pipeline, store := newTestPipeline(ledger)

	// A failure persisted by an earlier run; its blocks are behind the
	// checkpoint and will never be scanned again
	require.NoError(t, store.SaveRelayRecord(ctx, &models.RelayRecord{
		EventID:      "a",
		SourceTxHash: "0xsourcea",
		LogIndex:     2,
		BlockNumber:  40,
		User:         "0x1111111111111111111111111111111111111111",
		Amount:       "5000",
		Status:       models.RelayStatusFailed,
		Attempts:     1,
	}))

	retried, succeeded, err := pipeline.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, retried)
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, ledger.submissions)

	record, err := store.GetRelayRecord(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.RelayStatusSubmitted, record.Status)
	assert.Equal(t, 2, record.Attempts)
}

func TestRetryFailedRespectsAttemptCap(t *testing.T) {
	ctx := context.Background()
	ledger := &fakeLedger{}
	pipeline, store := newTestPipeline(ledger)

	require.NoError(t, store.SaveRelayRecord(ctx, &models.RelayRecord{
		EventID:      "exhausted",
		SourceTxHash: "0xsource",
		BlockNumber:  40,
		User:         "0x1111111111111111111111111111111111111111",
		Amount:       "5000",
		Status:       models.RelayStatusFailed,
		Attempts:     5,
	}))

	retried, succeeded, err := pipeline.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Zero(t, retried)
	assert.Zero(t, succeeded)
	assert.Zero(t, ledger.submissions)
}

func TestRetryFailedSkipsUnreplayableRecord(t *testing.T) {
	ctx := context.Background()
	ledger := &fakeLedger{}
	pipeline, store := newTestPipeline(ledger)

	require.NoError(t, store.SaveRelayRecord(ctx, &models.RelayRecord{
		EventID:      "bad",
		SourceTxHash: "0xsource",
		BlockNumber:  40,
		User:         "0x1111111111111111111111111111111111111111",
		Amount:       "not-a-number",
		Status:       models.RelayStatusFailed,
		Attempts:     1,
	}))

	retried, _, err := pipeline.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Zero(t, retried)
	assert.Zero(t, ledger.submissions)
}
