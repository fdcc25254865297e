package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/stripd/internal/config"
	"github.com/dokzlo13/stripd/internal/discovery"
	"github.com/dokzlo13/stripd/internal/eventbus"
	"github.com/dokzlo13/stripd/internal/homekit"
	"github.com/dokzlo13/stripd/internal/storage"
)

// NewDiscoveryEngine builds a discovery engine for the configured backend
func NewDiscoveryEngine(cfg config.DiscoveryConfig) *discovery.Engine {
	var browser discovery.Browser
	switch cfg.Backend {
	case "zeroconf":
		browser = discovery.NewZeroconfBrowser(cfg.Service, cfg.Domain)
	default:
		browser = discovery.NewMDNSBrowser(cfg.Service, cfg.Domain)
	}

	return discovery.NewEngine(browser, discovery.HTTPProber{Timeout: cfg.ProbeTimeout.Duration()}, discovery.Options{
		Filter:           cfg.Filter,
		Window:           cfg.Window.Duration(),
		ProbeConcurrency: cfg.ProbeConcurrency,
		Dedupe:           cfg.Dedupe,
	})
}

// DiscoveryService restores cached accessories, runs one discovery scan and
// persists the merged result.
type DiscoveryService struct {
	engine *discovery.Engine
	cache  *storage.AccessoryCache
	bus    *eventbus.Bus
}

// NewDiscoveryService creates a new DiscoveryService.
func NewDiscoveryService(engine *discovery.Engine, cache *storage.AccessoryCache, bus *eventbus.Bus) *DiscoveryService {
	return &DiscoveryService{
		engine: engine,
		cache:  cache,
		bus:    bus,
	}
}

// Run returns every strip that should be bridged. A failed scan is logged
// and the cached set is used alone.
func (s *DiscoveryService) Run(ctx context.Context) ([]storage.CachedAccessory, error) {
	cached, err := s.cache.Restore()
	if err != nil {
		return nil, fmt.Errorf("failed to restore accessory cache: %w", err)
	}
	cached, err = s.prune(cached)
	if err != nil {
		return nil, err
	}
	log.Info().Int("cached", len(cached)).Msg("Restored accessory cache")

	found, err := s.engine.Discover(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Error().Err(err).Msg("Discovery failed, using cached accessories")
		found = nil
	}

	merged, added := homekit.Merge(cached, found)
	for _, m := range merged {
		if err := s.cache.Save(m); err != nil {
			return nil, fmt.Errorf("failed to persist accessory %s: %w", m.Key, err)
		}
	}

	log.Info().
		Int("found", len(found)).
		Int("new", added).
		Int("accessories", len(merged)).
		Msg("Discovery complete")

	if s.bus != nil {
		s.bus.Publish(eventbus.Event{
			Type: eventbus.EventTypeDiscovery,
			Data: map[string]interface{}{
				"found":       len(found),
				"restored":    len(cached),
				"accessories": len(merged),
			},
		})
	}

	return merged, nil
}

// prune forgets cached entries whose key no longer matches their mac, such
// as rows written before the identity scheme changed or edited by hand.
func (s *DiscoveryService) prune(cached []storage.CachedAccessory) ([]storage.CachedAccessory, error) {
	kept := cached[:0]
	for _, c := range cached {
		if c.Descriptor.MAC != "" && c.Key == homekit.IdentityKey(c.Descriptor.MAC).String() {
			kept = append(kept, c)
			continue
		}
		log.Warn().Str("key", c.Key).Str("mac", c.Descriptor.MAC).Msg("Forgetting stale cached accessory")
		if err := s.cache.Forget(c.Key); err != nil {
			return nil, fmt.Errorf("failed to forget accessory %s: %w", c.Key, err)
		}
	}
	return kept, nil
}
