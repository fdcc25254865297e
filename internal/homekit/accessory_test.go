package homekit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/stripd/internal/color"
	"github.com/dokzlo13/stripd/internal/config"
	"github.com/dokzlo13/stripd/internal/discovery"
	"github.com/dokzlo13/stripd/internal/eventbus"
	"github.com/dokzlo13/stripd/internal/strip"
)

// fakeStrip is a minimal in-memory light strip
type fakeStrip struct {
	srv *httptest.Server

	mu       sync.Mutex
	power    bool
	pattern  int
	rgb      color.RGB
	failing  bool
	patterns []string // posted /patterns values
}

func newFakeStrip(t *testing.T) *fakeStrip {
	t.Helper()
	f := &fakeStrip{}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeStrip) serve(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failing {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	switch r.URL.Path {
	case "/power":
		if v := r.URL.Query().Get("value"); v != "" {
			f.power = v == "1"
			return
		}
		p := 0
		if f.power {
			p = 1
		}
		fmt.Fprintf(w, `{"power":%d}`, p)
	case "/settings":
		_ = json.NewEncoder(w).Encode(map[string]any{
			"pattern_idx": f.pattern,
			"solid_color": f.rgb,
		})
	case "/solidcolorhsv":
		h, _ := strconv.ParseFloat(r.PostForm.Get("h"), 64)
		s, _ := strconv.ParseFloat(r.PostForm.Get("s"), 64)
		v, _ := strconv.ParseFloat(r.PostForm.Get("v"), 64)
		f.rgb = color.HSVToRGB(h, s, v)
	case "/patterns":
		f.patterns = append(f.patterns, r.PostForm.Get("value"))
		f.pattern, _ = strconv.Atoi(r.PostForm.Get("value"))
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeStrip) setFailing(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = v
}

func (f *fakeStrip) posted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.patterns...)
}

func newTestAccessory(t *testing.T, f *fakeStrip, bus *eventbus.Bus) *Accessory {
	t.Helper()
	patterns, err := strip.NewPatterns(
		map[string]int{"Solid": 0, "Breath": 1, "Fire": 6, "Water": 7},
		[]string{"Breath", "Fire", "Water"},
	)
	require.NoError(t, err)
	return newAccessoryWithPatterns(t, f, patterns, bus)
}

func newAccessoryWithPatterns(t *testing.T, f *fakeStrip, patterns *strip.Patterns, bus *eventbus.Bus) *Accessory {
	t.Helper()
	dev := strip.NewDevice(discovery.Descriptor{
		Type:       "led-strip",
		MAC:        "AA:BB:CC:DD:EE:FF",
		Serial:     "SN1",
		Address:    f.srv.URL,
		UniqueName: "led-strip-kitchen",
	}, patterns, strip.Options{Timeout: 2 * time.Second})
	t.Cleanup(dev.Close)

	return NewAccessory(dev, Info{Manufacturer: "harmon", Model: "light-strip"}, bus, time.Second)
}

func TestAccessory_Structure(t *testing.T) {
	a := newTestAccessory(t, newFakeStrip(t), nil)

	assert.Equal(t, IdentityKey("AA:BB:CC:DD:EE:FF").String(), a.Key)
	assert.Equal(t, AccessoryID(IdentityKey("AA:BB:CC:DD:EE:FF")), a.A.Id)
	assert.Equal(t, "led-strip-kitchen", a.A.Info.Name.Value())
	assert.Equal(t, "SN1", a.A.Info.SerialNumber.Value())
	assert.Len(t, a.switches, 3)
	assert.Equal(t, modeCharacteristicType, a.mode.Type)
}

func TestAccessory_ReadWrite(t *testing.T) {
	f := newFakeStrip(t)
	a := newTestAccessory(t, f, nil)
	ctx := context.Background()

	require.NoError(t, a.writePower(ctx, true))
	v, status := a.readPower(ctx)
	assert.Equal(t, statusSuccess, status)
	assert.Equal(t, true, v)

	require.NoError(t, a.writeSaturation(ctx, 100))
	require.NoError(t, a.writeBrightness(ctx, 100))
	require.NoError(t, a.writeHue(ctx, 240))

	v, status = a.readHue(ctx)
	assert.Equal(t, statusSuccess, status)
	assert.Equal(t, 240.0, v)

	v, status = a.readBrightness(ctx)
	assert.Equal(t, statusSuccess, status)
	assert.Equal(t, 50, v)

	v, status = a.readSaturation(ctx)
	assert.Equal(t, statusSuccess, status)
	assert.Equal(t, 100.0, v)
}

func TestAccessory_ModeCharacteristic(t *testing.T) {
	f := newFakeStrip(t)
	a := newTestAccessory(t, f, nil)
	ctx := context.Background()

	require.NoError(t, a.writeMode(ctx, 7))
	assert.Equal(t, []string{"7"}, f.posted())

	v, status := a.readMode(ctx)
	assert.Equal(t, statusSuccess, status)
	assert.Equal(t, 7, v)

	on, _ := a.switchValue("Water")
	assert.True(t, on)
}

func TestAccessory_ModeRangeCoversPatternTable(t *testing.T) {
	f := newFakeStrip(t)
	patterns, err := strip.NewPatterns(config.DefaultPatternTable(), config.DefaultActivePatterns())
	require.NoError(t, err)
	a := newAccessoryWithPatterns(t, f, patterns, nil)
	ctx := context.Background()

	assert.Equal(t, 0, a.mode.MinValue())
	assert.Equal(t, 11, a.mode.MaxValue())

	// Sinelon has the highest default index
	require.NoError(t, a.writeSwitch(ctx, "Sinelon", true))
	v, status := a.readMode(ctx)
	assert.Equal(t, statusSuccess, status)
	assert.Equal(t, 11, v)

	require.NoError(t, a.writeMode(ctx, 11))
	assert.Equal(t, []string{"11", "11"}, f.posted())

	a.mode.SetValue(11)
	assert.Equal(t, 11, a.mode.Value())
}

func TestAccessory_SiblingFlipWithoutBus(t *testing.T) {
	f := newFakeStrip(t)
	a := newTestAccessory(t, f, nil)
	ctx := context.Background()

	require.NoError(t, a.writeSwitch(ctx, "Water", true))
	require.NoError(t, a.writeSwitch(ctx, "Fire", true))

	for name, want := range map[string]bool{"Breath": false, "Fire": true, "Water": false} {
		on, ok := a.switchValue(name)
		require.True(t, ok)
		assert.Equal(t, want, on, name)
	}

	v, status := a.readSwitch(ctx, "Fire")
	assert.Equal(t, statusSuccess, status)
	assert.Equal(t, true, v)

	require.NoError(t, a.writeSwitch(ctx, "Fire", false))
	assert.Equal(t, []string{"7", "6", "0"}, f.posted())
}

func TestAccessory_FailureStatus(t *testing.T) {
	f := newFakeStrip(t)
	a := newTestAccessory(t, f, nil)
	ctx := context.Background()
	f.setFailing(true)

	reads := map[string]func(context.Context) (interface{}, int){
		"power":      a.readPower,
		"brightness": a.readBrightness,
		"hue":        a.readHue,
		"saturation": a.readSaturation,
		"mode":       a.readMode,
	}
	for name, read := range reads {
		v, status := read(ctx)
		assert.Nil(t, v, name)
		assert.Equal(t, statusCommunicationFailure, status, name)
	}

	assert.Error(t, a.writeHue(ctx, 10))
	assert.Error(t, a.writeSwitch(ctx, "Fire", true))
}

func TestAccessory_UnknownSwitch(t *testing.T) {
	a := newTestAccessory(t, newFakeStrip(t), nil)

	_, ok := a.switchValue("Solid")
	assert.False(t, ok)
	assert.ErrorIs(t, a.writeSwitch(context.Background(), "Solid", true), strip.ErrUnknownPattern)
}
