package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/bridge-relayer/internal/connection"
	"github.com/smartdevs17/bridge-relayer/internal/metrics"
	"github.com/smartdevs17/bridge-relayer/internal/models"
	"github.com/smartdevs17/bridge-relayer/internal/orchestrator"
	"github.com/smartdevs17/bridge-relayer/internal/storage"
	"github.com/smartdevs17/bridge-relayer/pkg/utils"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port          int           `json:"port"`
	Host          string        `json:"host"`
	ReadTimeout   time.Duration `json:"read_timeout"`
	WriteTimeout  time.Duration `json:"write_timeout"`
	EnableMetrics bool          `json:"enable_metrics"`
	EnableHealth  bool          `json:"enable_health"`

	ChainID  string `json:"chain_id"`
	Contract string `json:"contract"`
}

// HTTPServer exposes the relayer's operational surface: health, stats,
// relay records and the checkpoint. Read-only; the relay loop has no
// interactive commands.
type HTTPServer struct {
	config         *ServerConfig
	server         *http.Server
	router         *mux.Router
	storage        storage.Storage
	orchestrator   *orchestrator.Orchestrator
	source         connection.Manager
	destination    connection.Manager
	metricsManager *metrics.Manager
	logger         *logrus.Logger
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(
	config *ServerConfig,
	store storage.Storage,
	orch *orchestrator.Orchestrator,
	source connection.Manager,
	destination connection.Manager,
	metricsManager *metrics.Manager,
) *HTTPServer {

	server := &HTTPServer{
		config:         config,
		storage:        store,
		orchestrator:   orch,
		source:         source,
		destination:    destination,
		metricsManager: metricsManager,
		logger:         utils.GetLogger(),
	}

	server.setupRouter()

	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      server.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return server
}

// setupRouter sets up the HTTP routes
func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	s.router.Use(s.loggingMiddleware)
	if s.metricsManager != nil {
		s.router.Use(s.metricsMiddleware)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()

	if s.config.EnableHealth {
		api.HandleFunc("/health", s.healthHandler).Methods("GET")
		api.HandleFunc("/health/detailed", s.detailedHealthHandler).Methods("GET")
	}

	if s.config.EnableMetrics {
		s.router.Handle("/metrics", promhttp.Handler())
		api.HandleFunc("/stats", s.statsHandler).Methods("GET")
	}

	api.HandleFunc("/records", s.listRecordsHandler).Methods("GET")
	api.HandleFunc("/records/{eventId}", s.getRecordHandler).Methods("GET")
	api.HandleFunc("/checkpoint", s.checkpointHandler).Methods("GET")
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.Info("Starting HTTP server", "addr", s.server.Addr)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	return nil
}

// Stop stops the HTTP server gracefully
func (s *HTTPServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// healthHandler returns basic health status
func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	healthy := s.storage.Ping() == nil && s.orchestrator.IsRunning()

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	s.writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now(),
	})
}

// detailedHealthHandler returns per-component health
func (s *HTTPServer) detailedHealthHandler(w http.ResponseWriter, r *http.Request) {
	components := map[string]bool{
		"storage":      s.storage.Ping() == nil,
		"orchestrator": s.orchestrator.IsRunning(),
		"source":       s.source.IsConnected(),
		"destination":  s.destination.IsConnected(),
	}

	healthy := true
	for _, ok := range components {
		if !ok {
			healthy = false
			break
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	s.writeJSON(w, code, map[string]interface{}{
		"status":     status,
		"components": components,
		"timestamp":  time.Now(),
	})
}

// statsHandler returns aggregated statistics
func (s *HTTPServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	relayStats, err := s.storage.GetRelayStats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to get relay stats", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"orchestrator": s.orchestrator.GetStats(),
		"relay":        relayStats,
		"source":       s.source.Stats(),
		"destination":  s.destination.Stats(),
	})
}

// listRecordsHandler lists relay records, filterable by status
func (s *HTTPServer) listRecordsHandler(w http.ResponseWriter, r *http.Request) {
	filter := models.RecordFilter{Limit: 100}

	if status := r.URL.Query().Get("status"); status != "" {
		rs := models.RelayStatus(status)
		filter.Status = &rs
	}
	if from := r.URL.Query().Get("from_block"); from != "" {
		n, err := strconv.ParseUint(from, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid from_block", err)
			return
		}
		filter.FromBlock = &n
	}
	if to := r.URL.Query().Get("to_block"); to != "" {
		n, err := strconv.ParseUint(to, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid to_block", err)
			return
		}
		filter.ToBlock = &n
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		filter.Limit = n
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "Invalid offset", err)
			return
		}
		filter.Offset = n
	}

	records, err := s.storage.GetRelayRecords(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to get relay records", err)
		return
	}

	total, err := s.storage.CountRelayRecords(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to count relay records", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
		"total":   total,
	})
}

// getRecordHandler returns a single relay record by event ID
func (s *HTTPServer) getRecordHandler(w http.ResponseWriter, r *http.Request) {
	eventID := mux.Vars(r)["eventId"]

	record, err := s.storage.GetRelayRecord(r.Context(), eventID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "Relay record not found", nil)
			return
		}
		s.writeError(w, http.StatusInternalServerError, "Failed to get relay record", err)
		return
	}

	s.writeJSON(w, http.StatusOK, record)
}

// checkpointHandler returns the current checkpoint
func (s *HTTPServer) checkpointHandler(w http.ResponseWriter, r *http.Request) {
	block, err := s.storage.GetCheckpoint(r.Context(), s.config.ChainID, s.config.Contract)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeJSON(w, http.StatusOK, map[string]interface{}{
				"last_processed_block": nil,
			})
			return
		}
		s.writeError(w, http.StatusInternalServerError, "Failed to get checkpoint", err)
		return
	}

	s.writeJSON(w, http.StatusOK, models.Checkpoint{
		ChainID:            s.config.ChainID,
		Contract:           s.config.Contract,
		LastProcessedBlock: block,
	})
}

// writeJSON writes a JSON response
func (s *HTTPServer) writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

// writeError writes a JSON error response
func (s *HTTPServer) writeError(w http.ResponseWriter, code int, message string, err error) {
	payload := map[string]interface{}{"error": message}
	if err != nil {
		payload["details"] = err.Error()
	}
	s.writeJSON(w, code, payload)
}
