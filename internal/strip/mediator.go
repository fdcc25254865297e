package strip

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/stripd/internal/color"
)

// Device API paths
const (
	pathPower       = "/power"
	pathSettings    = "/settings"
	pathSolidHSV    = "/solidcolorhsv"
	pathSolidHue    = "/solidcolorh"
	pathPatterns    = "/patterns"
	formHue         = "h"
	formSaturation  = "s"
	formValue       = "v"
	formPatternIdx  = "value"
	powerValueParam = "value"
)

// Transport is the slice of the HTTP client the device model needs
type Transport interface {
	Get(ctx context.Context, path string) ([]byte, error)
	GetJSON(ctx context.Context, path string, v any) error
	PostForm(ctx context.Context, path string, form url.Values) error
}

// Settings is the body of GET /settings
type Settings struct {
	PatternIdx int       `json:"pattern_idx"`
	SolidColor color.RGB `json:"solid_color"`
}

type powerResponse struct {
	Power flexBool `json:"power"`
}

// flexBool accepts 0/1 as well as true/false
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		*b = flexBool(t)
	case float64:
		*b = t != 0
	case nil:
		*b = false
	default:
		return fmt.Errorf("power: unexpected value %s", string(data))
	}
	return nil
}

// Shadow is the locally held copy of the strip's color.
// Hue is in [0,360), saturation and brightness in [0,100].
type Shadow struct {
	Hue        float64 `json:"hue"`
	Saturation float64 `json:"saturation"`
	Brightness float64 `json:"brightness"`
}

// Mediator maps power/brightness/hue/saturation onto the strip's RGB-only API.
// The shadow is written only from the device queue; reads take a snapshot.
type Mediator struct {
	client Transport
	queue  *Queue
	logger zerolog.Logger

	mu     sync.RWMutex
	shadow Shadow
}

// NewMediator creates a mediator with a zero shadow
func NewMediator(client Transport, queue *Queue) *Mediator {
	return &Mediator{
		client: client,
		queue:  queue,
		logger: log.Logger,
	}
}

// WithLogger sets the logger used for control calls
func (m *Mediator) WithLogger(l zerolog.Logger) *Mediator {
	m.logger = l
	return m
}

// Snapshot returns the current shadow
func (m *Mediator) Snapshot() Shadow {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.shadow
}

func (m *Mediator) update(fn func(*Shadow)) Shadow {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.shadow)
	return m.shadow
}

// SetPower switches the strip on or off
func (m *Mediator) SetPower(ctx context.Context, on bool) error {
	value := "0"
	if on {
		value = "1"
	}
	return m.queue.Do(ctx, "set_power", func(ctx context.Context) error {
		m.logger.Debug().Bool("on", on).Msg("Set power")
		_, err := m.client.Get(ctx, pathPower+"?"+url.Values{powerValueParam: {value}}.Encode())
		return err
	})
}

// Power reports whether the strip is on
func (m *Mediator) Power(ctx context.Context) (bool, error) {
	var resp powerResponse
	if err := m.client.GetJSON(ctx, pathPower, &resp); err != nil {
		return false, err
	}
	return bool(resp.Power), nil
}

// SetBrightness stores v and sends the full cached color
func (m *Mediator) SetBrightness(ctx context.Context, v float64) error {
	v = clampPercent(v)
	return m.queue.Do(ctx, "set_brightness", func(ctx context.Context) error {
		s := m.update(func(s *Shadow) { s.Brightness = v })
		m.logger.Debug().Float64("brightness", v).Msg("Set brightness")
		return m.sendHSV(ctx, s)
	})
}

// Brightness reads the strip color and returns its lightness.
// Only the brightness channel of the shadow is refreshed.
func (m *Mediator) Brightness(ctx context.Context) (float64, error) {
	var l float64
	err := m.queue.Do(ctx, "get_brightness", func(ctx context.Context) error {
		hsl, err := m.readColor(ctx)
		if err != nil {
			return err
		}
		l = hsl.L
		m.update(func(s *Shadow) { s.Brightness = hsl.L })
		return nil
	})
	return l, err
}

// SetHue stores h and sends the full cached color
func (m *Mediator) SetHue(ctx context.Context, h float64) error {
	h = normalizeHue(h)
	return m.queue.Do(ctx, "set_hue", func(ctx context.Context) error {
		s := m.update(func(s *Shadow) { s.Hue = h })
		m.logger.Debug().Float64("hue", h).Msg("Set hue")
		return m.sendHSV(ctx, s)
	})
}

// Hue reads the strip color and returns its hue.
// All three shadow channels are refreshed.
func (m *Mediator) Hue(ctx context.Context) (float64, error) {
	var h float64
	err := m.queue.Do(ctx, "get_hue", func(ctx context.Context) error {
		hsl, err := m.readColor(ctx)
		if err != nil {
			return err
		}
		h = hsl.H
		m.update(func(s *Shadow) {
			s.Hue = hsl.H
			s.Saturation = hsl.S
			s.Brightness = hsl.L
		})
		return nil
	})
	return h, err
}

// SetSaturation stores v and sends the full cached color
func (m *Mediator) SetSaturation(ctx context.Context, v float64) error {
	v = clampPercent(v)
	return m.queue.Do(ctx, "set_saturation", func(ctx context.Context) error {
		s := m.update(func(s *Shadow) { s.Saturation = v })
		m.logger.Debug().Float64("saturation", v).Msg("Set saturation")
		return m.sendHSV(ctx, s)
	})
}

// Saturation reads the strip color and returns its saturation.
// The shadow is not touched.
func (m *Mediator) Saturation(ctx context.Context) (float64, error) {
	hsl, err := m.readColor(ctx)
	if err != nil {
		return 0, err
	}
	return hsl.S, nil
}

// SetHueOnly uses the older /solidcolorh endpoint, which changes hue and
// leaves the strip's saturation and value alone. The shadow hue is updated.
func (m *Mediator) SetHueOnly(ctx context.Context, h float64) error {
	h = normalizeHue(h)
	return m.queue.Do(ctx, "set_hue_only", func(ctx context.Context) error {
		m.update(func(s *Shadow) { s.Hue = h })
		return m.client.PostForm(ctx, pathSolidHue, url.Values{formHue: {formatFloat(h)}})
	})
}

func (m *Mediator) sendHSV(ctx context.Context, s Shadow) error {
	return m.client.PostForm(ctx, pathSolidHSV, url.Values{
		formHue:        {formatFloat(s.Hue)},
		formSaturation: {formatFloat(s.Saturation)},
		formValue:      {formatFloat(s.Brightness)},
	})
}

func (m *Mediator) readColor(ctx context.Context) (color.HSL, error) {
	settings, err := readSettings(ctx, m.client)
	if err != nil {
		return color.HSL{}, err
	}
	c := settings.SolidColor
	return color.RGBToHSL(c.R, c.G, c.B).Rounded(), nil
}

func readSettings(ctx context.Context, client Transport) (Settings, error) {
	var s Settings
	if err := client.GetJSON(ctx, pathSettings, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func normalizeHue(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return h
}

func clampPercent(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
