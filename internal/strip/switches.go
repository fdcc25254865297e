package strip

import (
	"context"
	"net/url"
	"slices"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SwitchChange is a local switch state change made without a device round trip
type SwitchChange struct {
	Pattern string
	On      bool
}

// SwitchGroup exposes one boolean switch per active pattern with radio-group
// semantics. The active pattern lives on the device (pattern_idx); the group
// only keeps the last locally known value of each switch.
type SwitchGroup struct {
	client   Transport
	queue    *Queue
	patterns *Patterns
	logger   zerolog.Logger

	mu        sync.Mutex
	local     map[string]bool
	listeners []func(SwitchChange)
}

// NewSwitchGroup creates a switch group over the active patterns
func NewSwitchGroup(client Transport, queue *Queue, patterns *Patterns) *SwitchGroup {
	return &SwitchGroup{
		client:   client,
		queue:    queue,
		patterns: patterns,
		logger:   log.Logger,
		local:    make(map[string]bool),
	}
}

// WithLogger sets the logger used for control calls
func (g *SwitchGroup) WithLogger(l zerolog.Logger) *SwitchGroup {
	g.logger = l
	return g
}

// Names returns the exposed switch names in order
func (g *SwitchGroup) Names() []string {
	return g.patterns.Active()
}

// OnChange registers fn to be called for every optimistic local change.
// fn runs on the caller's goroutine and must not block.
func (g *SwitchGroup) OnChange(fn func(SwitchChange)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, fn)
}

// Local returns the last locally known state of a switch
func (g *SwitchGroup) Local(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.local[name]
}

// SetSwitch turns a pattern on or off. Turning a pattern on marks every other
// switch off locally before the request is sent; the local change is not
// rolled back if the request fails. Turning any switch off selects solid color.
func (g *SwitchGroup) SetSwitch(ctx context.Context, name string, on bool) error {
	idx, err := g.patterns.Index(name)
	if err != nil {
		return err
	}

	value := SolidIndex
	if on {
		value = idx
		g.selectLocal(name)
	} else {
		g.setLocal(map[string]bool{name: false})
	}

	return g.queue.Do(ctx, "set_pattern", func(ctx context.Context) error {
		g.logger.Debug().Str("pattern", name).Bool("on", on).Int("value", value).Msg("Set pattern")
		return g.postPattern(ctx, value)
	})
}

// Switch reports whether the named pattern is the device's active pattern
func (g *SwitchGroup) Switch(ctx context.Context, name string) (bool, error) {
	idx, err := g.patterns.Index(name)
	if err != nil {
		return false, err
	}

	settings, err := readSettings(ctx, g.client)
	if err != nil {
		return false, err
	}

	on := settings.PatternIdx == idx
	g.mu.Lock()
	g.local[name] = on
	g.mu.Unlock()
	return on, nil
}

// MaxMode returns the highest pattern index SetMode accepts
func (g *SwitchGroup) MaxMode() int {
	return g.patterns.MaxIndex()
}

// Mode returns the raw pattern index currently active on the device
func (g *SwitchGroup) Mode(ctx context.Context) (int, error) {
	settings, err := readSettings(ctx, g.client)
	if err != nil {
		return 0, err
	}
	return settings.PatternIdx, nil
}

// SetMode selects a raw pattern index, including patterns without a switch.
// Switches are updated locally to match.
func (g *SwitchGroup) SetMode(ctx context.Context, idx int) error {
	if name, ok := g.patterns.NameOf(idx); ok {
		g.selectLocal(name)
	} else {
		g.selectLocal("")
	}

	return g.queue.Do(ctx, "set_mode", func(ctx context.Context) error {
		g.logger.Debug().Int("value", idx).Msg("Set mode")
		return g.postPattern(ctx, idx)
	})
}

func (g *SwitchGroup) postPattern(ctx context.Context, value int) error {
	return g.client.PostForm(ctx, pathPatterns, url.Values{formPatternIdx: {strconv.Itoa(value)}})
}

// selectLocal marks name on and every other switch off. An empty name turns
// every switch off.
func (g *SwitchGroup) selectLocal(name string) {
	changes := make(map[string]bool)
	for _, other := range g.patterns.Active() {
		changes[other] = other == name
	}
	g.setLocal(changes)
}

func (g *SwitchGroup) setLocal(changes map[string]bool) {
	g.mu.Lock()
	for name, on := range changes {
		g.local[name] = on
	}
	listeners := slices.Clone(g.listeners)
	g.mu.Unlock()

	// Deterministic notification order
	for _, name := range g.patterns.Active() {
		on, ok := changes[name]
		if !ok {
			continue
		}
		for _, fn := range listeners {
			fn(SwitchChange{Pattern: name, On: on})
		}
	}
}
