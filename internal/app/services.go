package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/stripd/internal/config"
	"github.com/dokzlo13/stripd/internal/db"
	"github.com/dokzlo13/stripd/internal/eventbus"
	"github.com/dokzlo13/stripd/internal/ledger"
	"github.com/dokzlo13/stripd/internal/storage"
	"github.com/dokzlo13/stripd/internal/strip"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	Bus    *eventbus.Bus
	Store  *storage.Store
	Cache  *storage.AccessoryCache
	Ledger *ledger.Ledger

	Patterns *strip.Patterns

	// High-level services
	Discovery *DiscoveryService
	Bridge    *BridgeService
	Health    *HealthService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	patterns, err := strip.NewPatterns(cfg.Patterns.Table, cfg.Patterns.Active)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern configuration: %w", err)
	}

	s := &Services{cfg: cfg, Patterns: patterns}

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	s.Store = storage.NewStore(database.DB)
	s.Cache = storage.NewAccessoryCache(s.Store)
	s.Ledger = ledger.New(database.DB)
	s.Bus = eventbus.New()

	s.Discovery = NewDiscoveryService(NewDiscoveryEngine(cfg.Discovery), s.Cache, s.Bus)
	s.Bridge = NewBridgeService(cfg, patterns, s.Bus)
	s.Health = NewHealthService(cfg, s.Bridge.Bridge).WithHistory(s.Ledger)

	return s, nil
}

// Start runs discovery once, then starts the bridge and health servers.
// The onFatalError callback is called when the bridge server fails.
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	if n, err := s.Ledger.DeleteOlderThan(s.cfg.Database.HistoryRetention.Duration()); err != nil {
		log.Warn().Err(err).Msg("Failed to prune event history")
	} else if n > 0 {
		log.Debug().Int64("deleted", n).Msg("Pruned event history")
	}
	RecordHistory(s.Bus, s.Ledger)

	// Liveness is available while the scan runs
	s.Health.Start(ctx)

	entries, err := s.Discovery.Run(ctx)
	if err != nil {
		return err
	}

	s.Bridge.Build(entries)
	s.Health.SetReady(true)
	s.Bridge.Start(ctx, onFatalError)

	return nil
}

// ClearCache removes every cached accessory.
func (s *Services) ClearCache() error {
	return s.Store.Clear(storage.KindAccessory)
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Bridge != nil {
		s.Bridge.Close()
	}
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeout())
		s.Bus.Close(ctx)
		cancel()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
