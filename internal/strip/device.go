// Package strip models one LED strip: a color mediator that bridges HSV
// control onto the strip's RGB-only API, and a radio group of pattern switches.
// All mutating calls for a strip go through a single ordered queue.
package strip

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/stripd/internal/discovery"
	"github.com/dokzlo13/stripd/internal/transport"
)

// Lightbulb is the color capability of a strip
type Lightbulb interface {
	Power(ctx context.Context) (bool, error)
	SetPower(ctx context.Context, on bool) error
	Brightness(ctx context.Context) (float64, error)
	SetBrightness(ctx context.Context, v float64) error
	Hue(ctx context.Context) (float64, error)
	SetHue(ctx context.Context, h float64) error
	Saturation(ctx context.Context) (float64, error)
	SetSaturation(ctx context.Context, v float64) error
}

// PatternSwitches is the pattern capability of a strip
type PatternSwitches interface {
	Names() []string
	Switch(ctx context.Context, name string) (bool, error)
	SetSwitch(ctx context.Context, name string, on bool) error
	Mode(ctx context.Context) (int, error)
	MaxMode() int
	SetMode(ctx context.Context, idx int) error
	OnChange(fn func(SwitchChange))
}

var (
	_ Lightbulb       = (*Mediator)(nil)
	_ PatternSwitches = (*SwitchGroup)(nil)
)

// Options configures the HTTP side of a device
type Options struct {
	Timeout      time.Duration
	RateLimitRPS float64
	QueueSize    int
}

// Device binds a descriptor to its capabilities
type Device struct {
	Descriptor discovery.Descriptor
	Light      *Mediator
	Patterns   *SwitchGroup

	client *transport.Client
	queue  *Queue
}

// NewDevice creates the mediator and switch group for a discovered strip
func NewDevice(desc discovery.Descriptor, patterns *Patterns, opts Options) *Device {
	client := transport.NewClient(desc.Address, opts.Timeout, opts.RateLimitRPS)
	queue := NewQueue(opts.QueueSize)
	logger := log.With().Str("mac", desc.MAC).Str("address", desc.Address).Logger()

	return &Device{
		Descriptor: desc,
		Light:      NewMediator(client, queue).WithLogger(logger),
		Patterns:   NewSwitchGroup(client, queue, patterns).WithLogger(logger),
		client:     client,
		queue:      queue,
	}
}

// BaseURL returns the strip's control URL
func (d *Device) BaseURL() string {
	return d.client.BaseURL()
}

// Close stops the device queue and drops idle connections
func (d *Device) Close() {
	d.queue.Close()
	d.client.Close()
}
