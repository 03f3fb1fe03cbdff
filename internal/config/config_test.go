package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Source: ChainConfig{
			Name:           "rsk-testnet",
			NodeURL:        "https://public-node.testnet.rsk.co",
			ChainID:        31,
			BridgeContract: "0x1111111111111111111111111111111111111111",
		},
		Destination: ChainConfig{
			Name:           "sepolia",
			NodeURL:        "https://rpc.sepolia.org",
			ChainID:        11155111,
			BridgeContract: "0x2222222222222222222222222222222222222222",
			PrivateKey:     "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318",
		},
		Relay: RelayConfig{
			PollInterval:       15 * time.Second,
			ConfirmationBlocks: 12,
			BatchSize:          100,
			GasLimit:           200000,
			GasPriceGwei:       50,
		},
		Storage: StorageConfig{
			Type:             "sqlite",
			ConnectionString: "./data/relayer.db",
		},
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidateRejectsMissingFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing source node URL",
			mutate:  func(c *Config) { c.Source.NodeURL = "" },
			wantErr: "source node URL",
		},
		{
			name:    "missing destination node URL",
			mutate:  func(c *Config) { c.Destination.NodeURL = "" },
			wantErr: "destination node URL",
		},
		{
			name:    "missing source contract",
			mutate:  func(c *Config) { c.Source.BridgeContract = "" },
			wantErr: "source bridge contract",
		},
		{
			name:    "malformed source contract",
			mutate:  func(c *Config) { c.Source.BridgeContract = "not-an-address" },
			wantErr: "invalid",
		},
		{
			name:    "malformed destination contract",
			mutate:  func(c *Config) { c.Destination.BridgeContract = "0x123" },
			wantErr: "invalid",
		},
		{
			name:    "missing private key",
			mutate:  func(c *Config) { c.Destination.PrivateKey = "" },
			wantErr: "private key",
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *Config) { c.Relay.PollInterval = 0 },
			wantErr: "poll interval",
		},
		{
			name:    "zero batch size",
			mutate:  func(c *Config) { c.Relay.BatchSize = 0 },
			wantErr: "batch size",
		},
		{
			name:    "zero gas limit",
			mutate:  func(c *Config) { c.Relay.GasLimit = 0 },
			wantErr: "gas limit",
		},
		{
			name: "missing connection string",
			mutate: func(c *Config) {
				c.Storage.ConnectionString = ""
			},
			wantErr: "connection string",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateMemoryStorageNeedsNoConnectionString(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Type = "memory"
	cfg.Storage.ConnectionString = ""

	assert.NoError(t, cfg.Validate())
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, cfg.Relay.PollInterval)
	assert.Equal(t, uint64(12), cfg.Relay.ConfirmationBlocks)
	assert.Equal(t, uint64(100), cfg.Relay.BatchSize)
	assert.True(t, cfg.Relay.Simulate)
	assert.Equal(t, uint64(200000), cfg.Relay.GasLimit)
	assert.Equal(t, int64(50), cfg.Relay.GasPriceGwei)
	assert.Equal(t, 60*time.Second, cfg.Relay.FailureBackoff)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("SOURCE_CHAIN_RPC_URL", "https://rpc.example.com")
	t.Setenv("RELAYER_PRIVATE_KEY", "0xabc123")
	t.Setenv("DATABASE_URL", "postgres://relayer@localhost/relayer")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://rpc.example.com", cfg.Source.NodeURL)
	assert.Equal(t, "0xabc123", cfg.Destination.PrivateKey)
	assert.Equal(t, "postgres://relayer@localhost/relayer", cfg.Storage.ConnectionString)
}
