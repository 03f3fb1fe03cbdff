package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/bridge-relayer/internal/metrics"
	"github.com/smartdevs17/bridge-relayer/internal/relay"
	"github.com/smartdevs17/bridge-relayer/internal/scanner"
	"github.com/smartdevs17/bridge-relayer/internal/storage"
	"github.com/smartdevs17/bridge-relayer/pkg/utils"
)

// State names the phase the control loop is currently in
type State string

const (
	StateIdle       State = "idle"
	StateScanning   State = "scanning"
	StateRelaying   State = "relaying"
	StateCommitting State = "committing"
	StateSleeping   State = "sleeping"
	StateCancelled  State = "cancelled"
)

// OrchestratorConfig holds the cycle loop configuration
type OrchestratorConfig struct {
	ChainID  string
	Contract string

	PollInterval time.Duration

	// FailureBackoff is the longer delay after a cycle-level failure
	// (RPC unreachable, checkpoint commit error). The process never
	// exits on these; it backs off and retries.
	FailureBackoff time.Duration
}

// Stats exposes the loop's progress counters
type Stats struct {
	StartTime      time.Time  `json:"start_time"`
	Uptime         string     `json:"uptime"`
	State          State      `json:"state"`
	IsRunning      bool       `json:"is_running"`
	CyclesTotal    uint64     `json:"cycles_total"`
	CyclesFailed   uint64     `json:"cycles_failed"`
	EventsRelayed  uint64     `json:"events_relayed"`
	RelayFailures  uint64     `json:"relay_failures"`
	LastCheckpoint uint64     `json:"last_checkpoint"`
	LastCycleAt    *time.Time `json:"last_cycle_at,omitempty"`
	LastError      *string    `json:"last_error,omitempty"`
}

// Orchestrator drives the periodic scan → relay → commit → sleep cycle
// for one bridge direction. The loop is strictly sequential: events in
// a window are relayed in source-chain order, and the checkpoint only
// advances after every event in the window has been attempted.
type Orchestrator struct {
	scanner  *scanner.EventScanner
	pipeline *relay.Pipeline
	storage  storage.Storage
	config   *OrchestratorConfig
	logger   *logrus.Entry
	metrics  *metrics.Manager

	mu       sync.RWMutex
	running  bool
	state    State
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	stats    Stats
}

// New creates a new orchestrator
func New(sc *scanner.EventScanner, pipeline *relay.Pipeline, store storage.Storage, config *OrchestratorConfig) *Orchestrator {
	return &Orchestrator{
		scanner:  sc,
		pipeline: pipeline,
		storage:  store,
		config:   config,
		logger:   utils.ComponentLogger("orchestrator"),
		state:    StateIdle,
		stopChan: make(chan struct{}),
	}
}

// SetMetrics attaches a metrics manager
func (o *Orchestrator) SetMetrics(m *metrics.Manager) {
	o.metrics = m
}

// Start starts the control loop
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return utils.NewAppError(utils.ErrCodeInternal, "Orchestrator already running", "")
	}

	o.running = true
	o.stats.StartTime = time.Now()
	o.stats.IsRunning = true

	o.wg.Add(1)
	go o.loop(ctx)

	o.logger.Info("Orchestrator started",
		"poll_interval", o.config.PollInterval,
		"failure_backoff", o.config.FailureBackoff)

	return nil
}

// Stop stops the control loop. A cycle step already in flight finishes
// before the loop exits, so no relay record is left half-applied.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return nil
	}
	o.running = false
	o.mu.Unlock()

	o.stopOnce.Do(func() {
		close(o.stopChan)
	})

	o.wg.Wait()

	o.mu.Lock()
	o.state = StateCancelled
	o.stats.IsRunning = false
	o.mu.Unlock()

	o.logger.Info("Orchestrator stopped")
	return nil
}

// IsRunning returns whether the loop is active
func (o *Orchestrator) IsRunning() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.running
}

// GetStats returns a snapshot of loop statistics
func (o *Orchestrator) GetStats() Stats {
	o.mu.RLock()
	defer o.mu.RUnlock()

	stats := o.stats
	stats.State = o.state
	stats.Uptime = time.Since(o.stats.StartTime).String()
	return stats
}

// loop runs cycles until cancelled
func (o *Orchestrator) loop(ctx context.Context) {
	defer o.wg.Done()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("Control loop stopped by context")
			return
		case <-o.stopChan:
			o.logger.Info("Control loop stopped by stop signal")
			return
		default:
		}

		delay := o.runCycle(ctx)

		o.setState(StateSleeping)
		select {
		case <-ctx.Done():
			o.logger.Info("Sleep interrupted by context")
			return
		case <-o.stopChan:
			o.logger.Info("Sleep interrupted by stop signal")
			return
		case <-time.After(delay):
		}
	}
}

// RunCycle executes a single scan/relay/commit cycle and returns the
// delay before the next one. Exported so a cycle can be driven directly
// in tests and one-shot tooling.
func (o *Orchestrator) RunCycle(ctx context.Context) time.Duration {
	return o.runCycle(ctx)
}

func (o *Orchestrator) runCycle(ctx context.Context) time.Duration {
	cycleStart := time.Now()

	// Stored failures are retried from their records first, so an event
	// whose block the checkpoint already passed is never lost
	retried, succeeded, err := o.pipeline.RetryFailed(ctx)
	if err != nil {
		o.logger.Warn("Retrying stored failures aborted", "error", err)
	} else if retried > 0 {
		o.logger.Info("Retried stored failures", "retried", retried, "succeeded", succeeded)
		if o.metrics != nil {
			o.metrics.Prometheus().RecordRetry(retried)
		}
	}

	o.setState(StateScanning)
	scanStart := time.Now()
	result, err := o.scanner.Scan(ctx)
	if err != nil {
		return o.failCycle(cycleStart, "Scan failed", err)
	}
	if o.metrics != nil {
		o.metrics.Prometheus().RecordScan(time.Since(scanStart))
	}

	if result.Waiting && !result.Recovered {
		o.logger.Debug("No new confirmed blocks, sleeping")
		o.finishCycle(cycleStart, "waiting", 0, 0)
		return o.config.PollInterval
	}

	o.setState(StateRelaying)
	var relayed, failed uint64
	for _, event := range result.Events {
		select {
		case <-ctx.Done():
			o.logger.Info("Relaying interrupted, window will be rescanned")
			return o.config.PollInterval
		case <-o.stopChan:
			o.logger.Info("Relaying interrupted by stop, window will be rescanned")
			return o.config.PollInterval
		default:
		}

		record, err := o.pipeline.Relay(ctx, event)
		if err != nil {
			// Recorded in the relay record; the cycle continues and the
			// checkpoint still advances past this block
			failed++
			continue
		}
		if record.Status.Done() {
			relayed++
		}
	}

	// The checkpoint advances once the window has been attempted,
	// regardless of individual relay outcomes. Failed events survive in
	// their records and are retried from storage, not by re-scanning.
	o.setState(StateCommitting)
	if err := o.storage.SetCheckpoint(ctx, o.config.ChainID, o.config.Contract, result.Window.ToBlock); err != nil {
		return o.failCycle(cycleStart, "Checkpoint commit failed", err)
	}

	o.mu.Lock()
	o.stats.LastCheckpoint = result.Window.ToBlock
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.Prometheus().UpdateCheckpoint(result.Window.ToBlock)
		o.metrics.Prometheus().UpdateChainProgress(result.Latest, result.Window.ToBlock)
	}

	if len(result.Events) > 0 {
		o.logger.Info("Cycle complete",
			"from_block", result.Window.FromBlock,
			"to_block", result.Window.ToBlock,
			"events", len(result.Events),
			"relayed", relayed,
			"failed", failed)
	}

	o.finishCycle(cycleStart, "success", relayed, failed)
	return o.config.PollInterval
}

// failCycle records a cycle-level failure and returns the longer backoff
func (o *Orchestrator) failCycle(cycleStart time.Time, msg string, err error) time.Duration {
	errMsg := err.Error()
	o.logger.Error(msg, "error", errMsg, "backoff", o.config.FailureBackoff)

	o.mu.Lock()
	o.stats.CyclesTotal++
	o.stats.CyclesFailed++
	o.stats.LastError = &errMsg
	now := time.Now()
	o.stats.LastCycleAt = &now
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.Prometheus().RecordCycle("failure", time.Since(cycleStart))
	}

	return o.config.FailureBackoff
}

func (o *Orchestrator) finishCycle(cycleStart time.Time, status string, relayed, failed uint64) {
	o.mu.Lock()
	o.stats.CyclesTotal++
	o.stats.EventsRelayed += relayed
	o.stats.RelayFailures += failed
	now := time.Now()
	o.stats.LastCycleAt = &now
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.Prometheus().RecordCycle(status, time.Since(cycleStart))
	}
}

func (o *Orchestrator) setState(state State) {
	o.mu.Lock()
	o.state = state
	o.mu.Unlock()
}
