// Package homekit exposes discovered light strips through a HomeKit bridge.
// Each strip becomes one accessory keyed by a stable identity derived from
// its mac address.
package homekit

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/stripd/internal/discovery"
	"github.com/dokzlo13/stripd/internal/eventbus"
)

// Options configures the bridge accessory and its HAP server
type Options struct {
	Name        string
	Pin         string
	Addr        string
	StoragePath string
	Info        Info
}

// Bridge owns the bridged accessories and the HAP server
type Bridge struct {
	opts Options
	bus  *eventbus.Bus

	mu          sync.RWMutex
	accessories map[string]*Accessory
	errors      map[string]string
}

// NewBridge creates a bridge and subscribes it to switch and error events
func NewBridge(opts Options, bus *eventbus.Bus) *Bridge {
	b := &Bridge{
		opts:        opts,
		bus:         bus,
		accessories: make(map[string]*Accessory),
		errors:      make(map[string]string),
	}
	if bus != nil {
		bus.Subscribe(eventbus.EventTypeSwitch, b.handleSwitch)
		bus.Subscribe(eventbus.EventTypeDeviceError, b.handleDeviceError)
	}
	return b
}

// Add registers an accessory. An accessory with the same key replaces the
// previous one, whose device is closed.
func (b *Bridge) Add(a *Accessory) {
	b.mu.Lock()
	prev, ok := b.accessories[a.Key]
	b.accessories[a.Key] = a
	b.mu.Unlock()

	if ok && prev != a {
		prev.device.Close()
	}
}

// Accessory returns the accessory for an identity key
func (b *Bridge) Accessory(key string) (*Accessory, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	a, ok := b.accessories[key]
	return a, ok
}

// Accessories returns every accessory ordered by key
func (b *Bridge) Accessories() []*Accessory {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*Accessory, 0, len(b.accessories))
	for _, a := range b.accessories {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// DeviceStatus describes one bridged strip
type DeviceStatus struct {
	Key        string               `json:"key"`
	Descriptor discovery.Descriptor `json:"descriptor"`
	BaseURL    string               `json:"base_url"`
	LastError  string               `json:"last_error,omitempty"`
}

// Devices returns the status of every bridged strip
func (b *Bridge) Devices() []DeviceStatus {
	accs := b.Accessories()

	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]DeviceStatus, 0, len(accs))
	for _, a := range accs {
		out = append(out, DeviceStatus{
			Key:        a.Key,
			Descriptor: a.device.Descriptor,
			BaseURL:    a.device.BaseURL(),
			LastError:  b.errors[a.Key],
		})
	}
	return out
}

// Serve runs the HAP server until ctx is cancelled
func (b *Bridge) Serve(ctx context.Context) error {
	bridge := accessory.NewBridge(accessory.Info{
		Name:         b.opts.Name,
		Manufacturer: b.opts.Info.Manufacturer,
		Model:        b.opts.Info.Model,
	})
	bridge.A.Id = bridgeID

	accs := b.Accessories()
	as := make([]*accessory.A, 0, len(accs))
	for _, a := range accs {
		as = append(as, a.A)
	}

	server, err := hap.NewServer(hap.NewFsStore(b.opts.StoragePath), bridge.A, as...)
	if err != nil {
		return fmt.Errorf("failed to create HAP server: %w", err)
	}
	server.Pin = b.opts.Pin
	if b.opts.Addr != "" {
		server.Addr = b.opts.Addr
	}

	log.Info().
		Str("name", b.opts.Name).
		Str("addr", b.opts.Addr).
		Int("accessories", len(as)).
		Msg("HomeKit bridge serving")

	if err := server.ListenAndServe(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("HAP server failed: %w", err)
	}
	return nil
}

// Close closes every bridged device
func (b *Bridge) Close() {
	for _, a := range b.Accessories() {
		a.device.Close()
	}
}

func (b *Bridge) handleSwitch(e eventbus.Event) {
	key, _ := e.Data["key"].(string)
	pattern, _ := e.Data["pattern"].(string)
	on, _ := e.Data["on"].(bool)

	a, ok := b.Accessory(key)
	if !ok {
		return
	}
	a.applySwitch(pattern, on)
}

func (b *Bridge) handleDeviceError(e eventbus.Event) {
	key, _ := e.Data["key"].(string)
	msg, _ := e.Data["error"].(string)

	b.mu.Lock()
	b.errors[key] = msg
	b.mu.Unlock()
}
