package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/smartdevs17/bridge-relayer/pkg/utils"
)

// Config holds all configuration for the relayer
type Config struct {
	App         AppConfig     `mapstructure:"app"`
	Source      ChainConfig   `mapstructure:"source"`
	Destination ChainConfig   `mapstructure:"destination"`
	Relay       RelayConfig   `mapstructure:"relay"`
	Storage     StorageConfig `mapstructure:"storage"`
	Server      ServerConfig  `mapstructure:"server"`
	Logging     LoggingConfig `mapstructure:"logging"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// ChainConfig contains the connection settings for one chain
type ChainConfig struct {
	Name           string        `mapstructure:"name"`
	NodeURL        string        `mapstructure:"node_url"`
	BackupNodes    []string      `mapstructure:"backup_nodes"`
	ChainID        int64         `mapstructure:"chain_id"`
	BridgeContract string        `mapstructure:"bridge_contract"`
	PrivateKey     string        `mapstructure:"private_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
}

// RelayConfig contains the scan/relay cycle configuration
type RelayConfig struct {
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	ConfirmationBlocks uint64        `mapstructure:"confirmation_blocks"`
	BatchSize          uint64        `mapstructure:"batch_size"`
	StartBlock         uint64        `mapstructure:"start_block"`
	Simulate           bool          `mapstructure:"simulate"`
	MaxAttempts        int           `mapstructure:"max_attempts"`
	GasLimit           uint64        `mapstructure:"gas_limit"`
	GasPriceGwei       int64         `mapstructure:"gas_price_gwei"`
	FailureBackoff     time.Duration `mapstructure:"failure_backoff"`
	RetryBatchSize     int           `mapstructure:"retry_batch_size"`
}

// StorageConfig contains database configuration
type StorageConfig struct {
	Type             string        `mapstructure:"type"` // sqlite, postgres, memory
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	EnableHealth  bool          `mapstructure:"enable_health"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, file
	File   string `mapstructure:"file"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./internal/config")
	}

	viper.SetEnvPrefix("BRIDGE_RELAYER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults and environment variables")
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Override with environment variables if present
	if nodeURL := os.Getenv("SOURCE_CHAIN_RPC_URL"); nodeURL != "" {
		config.Source.NodeURL = nodeURL
	}
	if nodeURL := os.Getenv("DESTINATION_CHAIN_RPC_URL"); nodeURL != "" {
		config.Destination.NodeURL = nodeURL
	}
	if key := os.Getenv("RELAYER_PRIVATE_KEY"); key != "" {
		config.Destination.PrivateKey = key
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Storage.ConnectionString = dbURL
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.name", "bridge-relayer")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)

	// Chain defaults
	viper.SetDefault("source.name", "source")
	viper.SetDefault("source.request_timeout", "30s")
	viper.SetDefault("source.retry_attempts", 3)
	viper.SetDefault("source.retry_delay", "5s")
	viper.SetDefault("destination.name", "destination")
	viper.SetDefault("destination.request_timeout", "30s")
	viper.SetDefault("destination.retry_attempts", 3)
	viper.SetDefault("destination.retry_delay", "5s")

	// Relay defaults
	viper.SetDefault("relay.poll_interval", "15s")
	viper.SetDefault("relay.confirmation_blocks", 12)
	viper.SetDefault("relay.batch_size", 100)
	viper.SetDefault("relay.start_block", 0)
	viper.SetDefault("relay.simulate", true)
	viper.SetDefault("relay.max_attempts", 0) // 0 = unbounded
	viper.SetDefault("relay.gas_limit", 200000)
	viper.SetDefault("relay.gas_price_gwei", 50)
	viper.SetDefault("relay.failure_backoff", "60s")
	viper.SetDefault("relay.retry_batch_size", 50)

	// Storage defaults
	viper.SetDefault("storage.type", "sqlite")
	viper.SetDefault("storage.connection_string", "./data/relayer.db")
	viper.SetDefault("storage.max_connections", 25)
	viper.SetDefault("storage.max_idle_time", "15m")

	// Server defaults
	viper.SetDefault("server.port", 8081)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", "10s")
	viper.SetDefault("server.write_timeout", "10s")
	viper.SetDefault("server.enable_metrics", true)
	viper.SetDefault("server.enable_health", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// Validate validates the configuration. It is called once at startup;
// any failure here aborts the process before the relay loop starts.
func (c *Config) Validate() error {
	if c.Source.NodeURL == "" {
		return fmt.Errorf("source node URL is required")
	}
	if c.Destination.NodeURL == "" {
		return fmt.Errorf("destination node URL is required")
	}
	if c.Source.BridgeContract == "" {
		return fmt.Errorf("source bridge contract address is required")
	}
	if !utils.IsValidAddress(c.Source.BridgeContract) {
		return fmt.Errorf("source bridge contract address is invalid: %s", c.Source.BridgeContract)
	}
	if c.Destination.BridgeContract == "" {
		return fmt.Errorf("destination bridge contract address is required")
	}
	if !utils.IsValidAddress(c.Destination.BridgeContract) {
		return fmt.Errorf("destination bridge contract address is invalid: %s", c.Destination.BridgeContract)
	}
	if c.Destination.PrivateKey == "" {
		return fmt.Errorf("relayer private key is required")
	}
	if c.Relay.PollInterval <= 0 {
		return fmt.Errorf("relay poll interval must be positive")
	}
	if c.Relay.BatchSize == 0 {
		return fmt.Errorf("relay batch size must be positive")
	}
	if c.Relay.GasLimit == 0 {
		return fmt.Errorf("relay gas limit must be positive")
	}
	if c.Storage.ConnectionString == "" && c.Storage.Type != "memory" {
		return fmt.Errorf("storage connection string is required")
	}
	return nil
}
