package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/stripd/internal/config"
	"github.com/dokzlo13/stripd/internal/homekit"
	"github.com/dokzlo13/stripd/internal/ledger"
)

// DeviceLister reports the strips currently bridged
type DeviceLister interface {
	Devices() []homekit.DeviceStatus
}

// History reports recent events
type History interface {
	Recent(limit int) ([]*ledger.Entry, error)
}

// historyLimit caps the /history response
const historyLimit = 100

// HealthService provides HTTP health check endpoints.
type HealthService struct {
	cfg     *config.Config
	devices DeviceLister
	history History
	ready   atomic.Bool
	server  *http.Server
}

// NewHealthService creates a new HealthService.
func NewHealthService(cfg *config.Config, devices DeviceLister) *HealthService {
	return &HealthService{
		cfg:     cfg,
		devices: devices,
	}
}

// WithHistory enables the /history endpoint
func (s *HealthService) WithHistory(h History) *HealthService {
	s.history = h
	return s
}

// SetReady marks startup discovery as finished
func (s *HealthService) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Start begins the health check server if enabled.
func (s *HealthService) Start(ctx context.Context) {
	if !s.cfg.Healthcheck.Enabled {
		return
	}

	go s.run(ctx)
}

// Handler returns the health check routes
func (s *HealthService) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Ready once discovery has produced the accessory set
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !s.ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"starting"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	})

	mux.HandleFunc("/devices", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		devices := []homekit.DeviceStatus{}
		if s.devices != nil {
			devices = s.devices.Devices()
		}
		if err := json.NewEncoder(w).Encode(devices); err != nil {
			log.Error().Err(err).Msg("Failed to encode device list")
		}
	})

	mux.HandleFunc("/history", func(w http.ResponseWriter, r *http.Request) {
		if s.history == nil {
			http.NotFound(w, r)
			return
		}
		entries, err := s.history.Recent(historyLimit)
		if err != nil {
			log.Error().Err(err).Msg("Failed to read event history")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"history unavailable"}`))
			return
		}
		if entries == nil {
			entries = []*ledger.Entry{}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(entries); err != nil {
			log.Error().Err(err).Msg("Failed to encode event history")
		}
	})

	return mux
}

func (s *HealthService) run(ctx context.Context) {
	addr := fmt.Sprintf("%s:%d", s.cfg.Healthcheck.GetHost(), s.cfg.Healthcheck.GetPort())

	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	log.Info().Str("addr", addr).Msg("Starting health check server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeout())
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Health check server shutdown error")
		}
	}()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Health check server error")
	}
}
