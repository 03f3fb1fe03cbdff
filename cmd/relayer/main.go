package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/smartdevs17/bridge-relayer/internal/chain"
	"github.com/smartdevs17/bridge-relayer/internal/config"
	"github.com/smartdevs17/bridge-relayer/internal/connection"
	"github.com/smartdevs17/bridge-relayer/internal/metrics"
	"github.com/smartdevs17/bridge-relayer/internal/orchestrator"
	"github.com/smartdevs17/bridge-relayer/internal/relay"
	"github.com/smartdevs17/bridge-relayer/internal/scanner"
	"github.com/smartdevs17/bridge-relayer/internal/server"
	"github.com/smartdevs17/bridge-relayer/internal/storage"
	"github.com/smartdevs17/bridge-relayer/pkg/utils"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

// Application wires the relayer's components together for one bridge
// direction. Running both directions of a bridge means running two
// independent processes, each with its own checkpoint and record set.
type Application struct {
	config       *config.Config
	source       *connection.ConnectionManager
	destination  *connection.ConnectionManager
	storage      storage.Storage
	ledger       *chain.EVMLedger
	scanner      *scanner.EventScanner
	pipeline     *relay.Pipeline
	orchestrator *orchestrator.Orchestrator
	server       *server.HTTPServer
	metrics      *metrics.Manager
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewApplication creates a new application instance
func NewApplication(cfg *config.Config) (*Application, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &Application{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := app.initialize(); err != nil {
		cancel()
		return nil, err
	}

	return app, nil
}

// sourceChainKey is the checkpoint identity for the watched chain
func sourceChainKey(cfg *config.Config) string {
	if cfg.Source.ChainID != 0 {
		return strconv.FormatInt(cfg.Source.ChainID, 10)
	}
	return cfg.Source.Name
}

// initialize builds all components in dependency order
func (app *Application) initialize() error {
	logCfg := app.config.Logging
	if err := utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger := utils.GetLogger()

	logger.Info("Initializing bridge relayer",
		"version", AppVersion,
		"environment", app.config.App.Environment,
		"simulate", app.config.Relay.Simulate)

	// Connections
	app.source = connection.NewConnectionManager(&app.config.Source)
	app.destination = connection.NewConnectionManager(&app.config.Destination)

	// Storage
	store, err := storage.NewStorage(&app.config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	if err := store.Connect(); err != nil {
		return fmt.Errorf("failed to connect to storage: %w", err)
	}
	if err := store.Migrate(); err != nil {
		return fmt.Errorf("failed to run storage migrations: %w", err)
	}
	app.storage = store

	// Metrics
	app.metrics = metrics.NewManager()
	app.source.SetMetrics(app.metrics)
	app.destination.SetMetrics(app.metrics)

	// Ledger
	app.ledger, err = chain.NewEVMLedgerFromConfig(app.source, app.destination, app.config)
	if err != nil {
		return fmt.Errorf("failed to create ledger: %w", err)
	}

	chainKey := sourceChainKey(app.config)
	contract := app.config.Source.BridgeContract

	// Scanner
	app.scanner = scanner.NewEventScanner(app.ledger, app.storage, &scanner.ScannerConfig{
		ChainID:            chainKey,
		Contract:           contract,
		ConfirmationBlocks: app.config.Relay.ConfirmationBlocks,
		BatchSize:          app.config.Relay.BatchSize,
		StartBlock:         app.config.Relay.StartBlock,
	})

	// Relay pipeline
	app.pipeline = relay.NewPipeline(app.ledger, app.storage, &relay.PipelineConfig{
		MaxAttempts:    app.config.Relay.MaxAttempts,
		RetryBatchSize: app.config.Relay.RetryBatchSize,
	})
	app.pipeline.SetMetrics(app.metrics)

	// Orchestrator
	app.orchestrator = orchestrator.New(app.scanner, app.pipeline, app.storage, &orchestrator.OrchestratorConfig{
		ChainID:        chainKey,
		Contract:       contract,
		PollInterval:   app.config.Relay.PollInterval,
		FailureBackoff: app.config.Relay.FailureBackoff,
	})
	app.orchestrator.SetMetrics(app.metrics)

	// HTTP server
	app.server = server.NewHTTPServer(&server.ServerConfig{
		Port:          app.config.Server.Port,
		Host:          app.config.Server.Host,
		ReadTimeout:   app.config.Server.ReadTimeout,
		WriteTimeout:  app.config.Server.WriteTimeout,
		EnableMetrics: app.config.Server.EnableMetrics,
		EnableHealth:  app.config.Server.EnableHealth,
		ChainID:       chainKey,
		Contract:      contract,
	}, app.storage, app.orchestrator, app.source, app.destination, app.metrics)

	logger.Info("All components initialized")
	return nil
}

// Start starts the application
func (app *Application) Start() error {
	logger := utils.GetLogger()

	if err := app.server.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if err := app.orchestrator.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start orchestrator: %w", err)
	}

	go app.systemMetricsLoop()

	logger.Info("Bridge relayer started",
		"server_address", fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port),
		"source", app.config.Source.NodeURL,
		"destination", app.config.Destination.NodeURL,
		"poll_interval", app.config.Relay.PollInterval,
		"confirmation_blocks", app.config.Relay.ConfirmationBlocks)

	return nil
}

// systemMetricsLoop refreshes uptime and goroutine gauges until shutdown
func (app *Application) systemMetricsLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
			app.metrics.UpdateSystemMetrics()
		}
	}
}

// Stop stops the application gracefully, in reverse start order
func (app *Application) Stop() error {
	logger := utils.GetLogger()
	logger.Info("Stopping bridge relayer")

	app.cancel()

	if app.server != nil {
		if err := app.server.Stop(); err != nil {
			logger.Error("Failed to stop HTTP server", "error", err)
		}
	}

	if app.orchestrator != nil {
		if err := app.orchestrator.Stop(); err != nil {
			logger.Error("Failed to stop orchestrator", "error", err)
		}
	}

	if app.storage != nil {
		if err := app.storage.Close(); err != nil {
			logger.Error("Failed to close storage", "error", err)
		}
	}

	if app.source != nil {
		if err := app.source.Close(); err != nil {
			logger.Error("Failed to close source connection", "error", err)
		}
	}

	if app.destination != nil {
		if err := app.destination.Close(); err != nil {
			logger.Error("Failed to close destination connection", "error", err)
		}
	}

	logger.Info("Bridge relayer stopped")
	return nil
}

// CLI Commands

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "bridge-relayer",
	Short:   "Cross-chain bridge event relayer",
	Long:    `Watches DepositInitiated events on a source chain and relays each one as a claimWithdrawal transaction on a destination chain, with checkpointed scanning and idempotent, crash-safe delivery.`,
	Version: AppVersion,
	RunE:    runRelayer,
}

// runRelayer is the main command to run the relayer
func runRelayer(cmd *cobra.Command, args []string) error {
	configPath := viper.GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	app, err := NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	if err := app.Start(); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	<-signalChan
	fmt.Println("\nReceived shutdown signal, stopping relayer...")

	if err := app.Stop(); err != nil {
		return fmt.Errorf("failed to stop application: %w", err)
	}

	return nil
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("bridge-relayer %s\n", AppVersion)
	},
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

// validateConfigCmd validates the configuration
var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		fmt.Printf("Configuration is valid!\n")
		fmt.Printf("Environment: %s\n", cfg.App.Environment)
		fmt.Printf("Source: %s (%s)\n", cfg.Source.NodeURL, cfg.Source.BridgeContract)
		fmt.Printf("Destination: %s (%s)\n", cfg.Destination.NodeURL, cfg.Destination.BridgeContract)
		fmt.Printf("Storage: %s\n", cfg.Storage.Type)
		fmt.Printf("Simulate: %t\n", cfg.Relay.Simulate)

		return nil
	},
}

// testCmd represents the connectivity test command
var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test connectivity and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("configuration invalid: %w", err)
		}

		ctx := context.Background()
		fmt.Println("Testing bridge relayer connectivity...")

		fmt.Printf("Testing source connection to %s...\n", cfg.Source.NodeURL)
		source := connection.NewConnectionManager(&cfg.Source)
		if err := source.HealthCheck(ctx); err != nil {
			return fmt.Errorf("failed to connect to source node: %w", err)
		}
		defer source.Close()
		fmt.Println("✓ Source connection successful")

		fmt.Printf("Testing destination connection to %s...\n", cfg.Destination.NodeURL)
		destination := connection.NewConnectionManager(&cfg.Destination)
		if err := destination.HealthCheck(ctx); err != nil {
			return fmt.Errorf("failed to connect to destination node: %w", err)
		}
		defer destination.Close()
		fmt.Println("✓ Destination connection successful")

		fmt.Printf("Testing storage connection (%s)...\n", cfg.Storage.Type)
		store, err := storage.NewStorage(&cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		if err := store.Connect(); err != nil {
			return fmt.Errorf("failed to connect to storage: %w", err)
		}
		defer store.Close()
		fmt.Println("✓ Storage connection successful")

		fmt.Println("\nAll connectivity tests passed! ✓")
		return nil
	},
}

// init initializes the CLI commands
func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")

	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(testCmd)
	configCmd.AddCommand(validateConfigCmd)
}

// main is the entry point
func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
