package server

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/bridge-relayer/internal/connection"
	"github.com/smartdevs17/bridge-relayer/internal/models"
	"github.com/smartdevs17/bridge-relayer/internal/orchestrator"
	"github.com/smartdevs17/bridge-relayer/internal/relay"
	"github.com/smartdevs17/bridge-relayer/internal/scanner"
	"github.com/smartdevs17/bridge-relayer/internal/storage"
)

const (
	testChainID  = "31"
	testContract = "0x2222222222222222222222222222222222222222"
)

// fakeLedger keeps the relay loop in the waiting state
type fakeLedger struct{}

func (f *fakeLedger) Height(ctx context.Context) (uint64, error) { return 0, nil }
func (f *fakeLedger) FilterDeposits(ctx context.Context, fromBlock, toBlock uint64) ([]*models.Event, error) {
	return nil, nil
}
func (f *fakeLedger) SubmitClaim(ctx context.Context, event *models.Event) (string, error) {
	return "", errors.New("not implemented")
}

// fakeManager reports a healthy, idle connection
type fakeManager struct{}

func (f *fakeManager) GetClient(ctx context.Context) (*ethclient.Client, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeManager) HealthCheck(ctx context.Context) error { return nil }
func (f *fakeManager) GetLatestBlockNumber(ctx context.Context) (uint64, error) { return 0, nil }
func (f *fakeManager) IsConnected() bool                 { return true }
func (f *fakeManager) Close() error                      { return nil }
func (f *fakeManager) Stats() connection.ConnectionStats { return connection.ConnectionStats{} }

func newTestServer(t *testing.T) (*HTTPServer, *storage.MemoryStorage, *orchestrator.Orchestrator) {
	t.Helper()

	store := storage.NewMemoryStorage()
	ledger := &fakeLedger{}

	sc := scanner.NewEventScanner(ledger, store, &scanner.ScannerConfig{
		ChainID:            testChainID,
		Contract:           testContract,
		ConfirmationBlocks: 12,
		BatchSize:          100,
	})
	pipeline := relay.NewPipeline(ledger, store, &relay.PipelineConfig{RetryBatchSize: 50})
	orch := orchestrator.New(sc, pipeline, store, &orchestrator.OrchestratorConfig{
		ChainID:        testChainID,
		Contract:       testContract,
		PollInterval:   time.Minute,
		FailureBackoff: time.Minute,
	})

	server := NewHTTPServer(&ServerConfig{
		Port:          0,
		Host:          "127.0.0.1",
		EnableMetrics: false,
		EnableHealth:  true,
		ChainID:       testChainID,
		Contract:      testContract,
	}, store, orch, &fakeManager{}, &fakeManager{}, nil)

	return server, store, orch
}

func doRequest(server *HTTPServer, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	recorder := httptest.NewRecorder()
	server.router.ServeHTTP(recorder, req)
	return recorder
}

func seedRecord(t *testing.T, store storage.Storage, id string, block uint64, status models.RelayStatus) {
	t.Helper()
	require.NoError(t, store.SaveRelayRecord(context.Background(), &models.RelayRecord{
		EventID:      id,
		SourceTxHash: "0xsource" + id,
		BlockNumber:  block,
		User:         "0x1111111111111111111111111111111111111111",
		Amount:       big.NewInt(1000).String(),
		Status:       status,
	}))
}

func TestHealthReflectsOrchestratorState(t *testing.T) {
	server, _, orch := newTestServer(t)

	recorder := doRequest(server, "GET", "/api/v1/health")
	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)

	require.NoError(t, orch.Start(context.Background()))
	defer orch.Stop()

	recorder = doRequest(server, "GET", "/api/v1/health")
	assert.Equal(t, http.StatusOK, recorder.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestDetailedHealthListsComponents(t *testing.T) {
	server, _, orch := newTestServer(t)
	require.NoError(t, orch.Start(context.Background()))
	defer orch.Stop()

	recorder := doRequest(server, "GET", "/api/v1/health/detailed")
	assert.Equal(t, http.StatusOK, recorder.Code)

	var body struct {
		Status     string          `json:"status"`
		Components map[string]bool `json:"components"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.True(t, body.Components["storage"])
	assert.True(t, body.Components["source"])
	assert.True(t, body.Components["destination"])
}

func TestListRecordsFiltersByStatus(t *testing.T) {
	server, store, _ := newTestServer(t)

	seedRecord(t, store, "a", 60, models.RelayStatusSubmitted)
	seedRecord(t, store, "b", 70, models.RelayStatusFailed)
	seedRecord(t, store, "c", 80, models.RelayStatusSubmitted)

	recorder := doRequest(server, "GET", "/api/v1/records?status=failed")
	require.Equal(t, http.StatusOK, recorder.Code)

	var body struct {
		Records []models.RelayRecord `json:"records"`
		Count   int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Records, 1)
	assert.Equal(t, "b", body.Records[0].EventID)

	recorder = doRequest(server, "GET", "/api/v1/records?limit=bogus")
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestGetRecordByEventID(t *testing.T) {
	server, store, _ := newTestServer(t)
	seedRecord(t, store, "a", 60, models.RelayStatusSubmitted)

	recorder := doRequest(server, "GET", "/api/v1/records/a")
	require.Equal(t, http.StatusOK, recorder.Code)

	var record models.RelayRecord
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &record))
	assert.Equal(t, "a", record.EventID)

	recorder = doRequest(server, "GET", "/api/v1/records/missing")
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestCheckpointEndpoint(t *testing.T) {
	server, store, _ := newTestServer(t)

	recorder := doRequest(server, "GET", "/api/v1/checkpoint")
	require.Equal(t, http.StatusOK, recorder.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Nil(t, body["last_processed_block"])

	require.NoError(t, store.SetCheckpoint(context.Background(), testChainID, testContract, 94))

	recorder = doRequest(server, "GET", "/api/v1/checkpoint")
	require.Equal(t, http.StatusOK, recorder.Code)
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, float64(94), body["last_processed_block"])
}
