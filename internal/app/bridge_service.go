package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/stripd/internal/config"
	"github.com/dokzlo13/stripd/internal/eventbus"
	"github.com/dokzlo13/stripd/internal/homekit"
	"github.com/dokzlo13/stripd/internal/storage"
	"github.com/dokzlo13/stripd/internal/strip"
)

// BridgeService turns cached accessories into devices and serves them over HomeKit.
type BridgeService struct {
	cfg      *config.Config
	patterns *strip.Patterns
	bus      *eventbus.Bus
	Bridge   *homekit.Bridge
}

// NewBridgeService creates a new BridgeService.
func NewBridgeService(cfg *config.Config, patterns *strip.Patterns, bus *eventbus.Bus) *BridgeService {
	return &BridgeService{
		cfg:      cfg,
		patterns: patterns,
		bus:      bus,
		Bridge: homekit.NewBridge(homekit.Options{
			Name:        cfg.HomeKit.Name,
			Pin:         cfg.HomeKit.Pin,
			Addr:        cfg.HomeKit.Addr,
			StoragePath: cfg.HomeKit.StoragePath,
			Info: homekit.Info{
				Manufacturer: cfg.HomeKit.Manufacturer,
				Model:        cfg.HomeKit.Model,
			},
		}, bus),
	}
}

// Build creates one accessory per entry
func (s *BridgeService) Build(entries []storage.CachedAccessory) {
	opts := strip.Options{
		Timeout:      s.cfg.Device.Timeout.Duration(),
		RateLimitRPS: s.cfg.Device.RateLimitRPS,
		QueueSize:    s.cfg.Device.QueueSize,
	}
	info := homekit.Info{
		Manufacturer: s.cfg.HomeKit.Manufacturer,
		Model:        s.cfg.HomeKit.Model,
	}

	for _, e := range entries {
		dev := strip.NewDevice(e.Descriptor, s.patterns, opts)
		s.Bridge.Add(homekit.NewAccessory(dev, info, s.bus, 2*s.cfg.Device.Timeout.Duration()))

		log.Info().
			Str("mac", e.Descriptor.MAC).
			Str("address", dev.BaseURL()).
			Str("key", e.Key).
			Msg("Bridged light strip")
	}
}

// Start serves the bridge in the background.
// A server failure is reported through onFatalError.
func (s *BridgeService) Start(ctx context.Context, onFatalError func(error)) {
	go func() {
		if err := s.Bridge.Serve(ctx); err != nil {
			onFatalError(err)
		}
	}()
}

// Close closes every bridged device
func (s *BridgeService) Close() {
	s.Bridge.Close()
}
