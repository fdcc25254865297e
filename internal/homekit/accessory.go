package homekit

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/brutella/hap/accessory"
	"github.com/brutella/hap/characteristic"
	"github.com/brutella/hap/service"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/stripd/internal/eventbus"
	"github.com/dokzlo13/stripd/internal/strip"
)

// HAP status codes returned from read handlers
const (
	statusSuccess              = 0
	statusCommunicationFailure = -70402
)

// Light strip mode: raw pattern index, including patterns without a switch.
// The range spans the configured pattern table.
const modeCharacteristicType = "b484384e-98f7-4f29-911e-42e4cbb87df2"

// DefaultTimeout bounds a single characteristic read or write
const DefaultTimeout = 10 * time.Second

// Info is the accessory information shared by every strip
type Info struct {
	Manufacturer string
	Model        string
}

// Accessory is one light strip exposed as a lightbulb with a mode
// characteristic and one switch service per active pattern.
type Accessory struct {
	Key string
	A   *accessory.A

	device  *strip.Device
	bus     *eventbus.Bus
	timeout time.Duration
	logger  zerolog.Logger

	on         *characteristic.On
	brightness *characteristic.Brightness
	hue        *characteristic.Hue
	saturation *characteristic.Saturation
	mode       *characteristic.Int
	switches   map[string]*service.Switch
}

// NewAccessory builds the HAP accessory for a device and binds every
// characteristic to it. Local switch changes are published on bus.
func NewAccessory(dev *strip.Device, info Info, bus *eventbus.Bus, timeout time.Duration) *Accessory {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	key := IdentityKey(dev.Descriptor.MAC)
	a := &Accessory{
		Key:      key.String(),
		device:   dev,
		bus:      bus,
		timeout:  timeout,
		logger:   log.With().Str("accessory", key.String()).Str("mac", dev.Descriptor.MAC).Logger(),
		switches: make(map[string]*service.Switch),
	}

	a.A = accessory.New(accessory.Info{
		Name:         displayName(dev),
		SerialNumber: dev.Descriptor.Serial,
		Manufacturer: info.Manufacturer,
		Model:        info.Model,
	}, accessory.TypeLightbulb)
	a.A.Id = AccessoryID(key)

	a.buildLightbulb()
	a.buildSwitches()

	dev.Patterns.OnChange(a.publishSwitch)
	return a
}

func displayName(dev *strip.Device) string {
	switch {
	case dev.Descriptor.UniqueName != "":
		return dev.Descriptor.UniqueName
	case dev.Descriptor.Hostname != "":
		return dev.Descriptor.Hostname
	default:
		return dev.Descriptor.MAC
	}
}

func (a *Accessory) buildLightbulb() {
	light := service.NewLightbulb()
	a.on = light.On

	a.brightness = characteristic.NewBrightness()
	a.hue = characteristic.NewHue()
	a.saturation = characteristic.NewSaturation()

	a.mode = characteristic.NewInt(modeCharacteristicType)
	a.mode.Format = characteristic.FormatUInt16
	a.mode.Permissions = []string{characteristic.PermissionRead, characteristic.PermissionWrite, characteristic.PermissionEvents}
	a.mode.Description = "Light Strip Mode"
	a.mode.SetMinValue(0)
	a.mode.SetMaxValue(a.device.Patterns.MaxMode())
	a.mode.SetValue(0)

	light.AddC(a.brightness.C)
	light.AddC(a.hue.C)
	light.AddC(a.saturation.C)
	light.AddC(a.mode.C)

	a.on.ValueRequestFunc = a.onRequest(a.readPower)
	a.brightness.ValueRequestFunc = a.onRequest(a.readBrightness)
	a.hue.ValueRequestFunc = a.onRequest(a.readHue)
	a.saturation.ValueRequestFunc = a.onRequest(a.readSaturation)
	a.mode.ValueRequestFunc = a.onRequest(a.readMode)

	a.on.OnSetRemoteValue(bounded(a, a.writePower))
	a.brightness.OnSetRemoteValue(bounded(a, a.writeBrightness))
	a.hue.OnSetRemoteValue(bounded(a, a.writeHue))
	a.saturation.OnSetRemoteValue(bounded(a, a.writeSaturation))
	a.mode.OnSetRemoteValue(bounded(a, a.writeMode))

	a.A.AddS(light.S)
}

func (a *Accessory) buildSwitches() {
	for _, name := range a.device.Patterns.Names() {
		name := name

		sw := service.NewSwitch()
		n := characteristic.NewName()
		n.SetValue(name)
		sw.AddC(n.C)

		sw.On.ValueRequestFunc = a.onRequest(func(ctx context.Context) (interface{}, int) {
			return a.readSwitch(ctx, name)
		})
		sw.On.OnSetRemoteValue(bounded(a, func(ctx context.Context, on bool) error {
			return a.writeSwitch(ctx, name, on)
		}))

		a.switches[name] = sw
		a.A.AddS(sw.S)
	}
}

// onRequest adapts a read to a HAP value request bounded by the accessory timeout
func (a *Accessory) onRequest(fn func(context.Context) (interface{}, int)) func(*http.Request) (interface{}, int) {
	return func(r *http.Request) (interface{}, int) {
		parent := context.Background()
		if r != nil {
			parent = r.Context()
		}
		ctx, cancel := context.WithTimeout(parent, a.timeout)
		defer cancel()
		return fn(ctx)
	}
}

// bounded adapts a write to a HAP remote update bounded by the accessory timeout
func bounded[T any](a *Accessory, fn func(context.Context, T) error) func(T) error {
	return func(v T) error {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		return fn(ctx, v)
	}
}

// respond converts a device result into a HAP value and status
func (a *Accessory) respond(op string, v interface{}, err error) (interface{}, int) {
	if err != nil {
		a.fail(op, err)
		return nil, statusCommunicationFailure
	}
	return v, statusSuccess
}

func (a *Accessory) fail(op string, err error) {
	a.logger.Error().Err(err).Str("op", op).Msg("Device operation failed")
	if a.bus != nil {
		a.bus.Publish(eventbus.Event{
			Type: eventbus.EventTypeDeviceError,
			Data: map[string]interface{}{
				"key":   a.Key,
				"op":    op,
				"error": err.Error(),
			},
		})
	}
}

func (a *Accessory) check(op string, err error) error {
	if err != nil {
		a.fail(op, err)
	}
	return err
}

func (a *Accessory) readPower(ctx context.Context) (interface{}, int) {
	on, err := a.device.Light.Power(ctx)
	return a.respond("get_power", on, err)
}

func (a *Accessory) readBrightness(ctx context.Context) (interface{}, int) {
	v, err := a.device.Light.Brightness(ctx)
	return a.respond("get_brightness", int(math.Round(v)), err)
}

func (a *Accessory) readHue(ctx context.Context) (interface{}, int) {
	v, err := a.device.Light.Hue(ctx)
	return a.respond("get_hue", v, err)
}

func (a *Accessory) readSaturation(ctx context.Context) (interface{}, int) {
	v, err := a.device.Light.Saturation(ctx)
	return a.respond("get_saturation", v, err)
}

func (a *Accessory) readMode(ctx context.Context) (interface{}, int) {
	idx, err := a.device.Patterns.Mode(ctx)
	return a.respond("get_mode", idx, err)
}

func (a *Accessory) readSwitch(ctx context.Context, name string) (interface{}, int) {
	on, err := a.device.Patterns.Switch(ctx, name)
	return a.respond("get_switch", on, err)
}

func (a *Accessory) writePower(ctx context.Context, on bool) error {
	return a.check("set_power", a.device.Light.SetPower(ctx, on))
}

func (a *Accessory) writeBrightness(ctx context.Context, v int) error {
	return a.check("set_brightness", a.device.Light.SetBrightness(ctx, float64(v)))
}

func (a *Accessory) writeHue(ctx context.Context, v float64) error {
	return a.check("set_hue", a.device.Light.SetHue(ctx, v))
}

func (a *Accessory) writeSaturation(ctx context.Context, v float64) error {
	return a.check("set_saturation", a.device.Light.SetSaturation(ctx, v))
}

func (a *Accessory) writeMode(ctx context.Context, idx int) error {
	return a.check("set_mode", a.device.Patterns.SetMode(ctx, idx))
}

func (a *Accessory) writeSwitch(ctx context.Context, name string, on bool) error {
	return a.check("set_switch", a.device.Patterns.SetSwitch(ctx, name, on))
}

// publishSwitch forwards a local switch change to the bus
func (a *Accessory) publishSwitch(c strip.SwitchChange) {
	if a.bus == nil {
		a.applySwitch(c.Pattern, c.On)
		return
	}
	a.bus.Publish(eventbus.Event{
		Type: eventbus.EventTypeSwitch,
		Data: map[string]interface{}{
			"key":     a.Key,
			"pattern": c.Pattern,
			"on":      c.On,
		},
	})
}

// applySwitch updates a switch characteristic without a device round trip
func (a *Accessory) applySwitch(pattern string, on bool) {
	sw, ok := a.switches[pattern]
	if !ok {
		return
	}
	sw.On.SetValue(on)
}

// switchValue returns the value last published for a switch
func (a *Accessory) switchValue(pattern string) (bool, bool) {
	sw, ok := a.switches[pattern]
	if !ok {
		return false, false
	}
	return sw.On.Value(), true
}
