// Package discovery finds light strips advertised over mDNS and resolves each
// one into a Descriptor by probing GET / on the device.
package discovery

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dokzlo13/stripd/internal/transport"
)

// ErrBrowse is returned when the browsing session cannot be opened
var ErrBrowse = errors.New("discovery: browse failed")

// Default configuration
const (
	DefaultFilter           = "led-strip"
	DefaultWindow           = 5 * time.Second
	DefaultProbeTimeout     = 5 * time.Second
	DefaultProbeConcurrency = 4
)

// Prober fetches the identity block of a candidate
type Prober interface {
	Probe(ctx context.Context, address string) (ProbeInfo, error)
}

// ProberFunc adapts a function to Prober
type ProberFunc func(ctx context.Context, address string) (ProbeInfo, error)

// Probe implements Prober
func (f ProberFunc) Probe(ctx context.Context, address string) (ProbeInfo, error) {
	return f(ctx, address)
}

// HTTPProber probes candidates with GET / over plain HTTP
type HTTPProber struct {
	Timeout time.Duration
}

// Probe implements Prober
func (p HTTPProber) Probe(ctx context.Context, address string) (ProbeInfo, error) {
	client := transport.NewClient(address, p.Timeout, 0)
	defer client.Close()

	body, err := client.Get(ctx, "/")
	if err != nil {
		return ProbeInfo{}, err
	}

	info, err := ParseProbe(string(body))
	if err != nil {
		return ProbeInfo{}, &transport.ParseError{URL: client.BaseURL() + "/", Err: err}
	}
	return info, nil
}

// Options configures an Engine
type Options struct {
	Filter           string        // Substring an instance name must contain
	Window           time.Duration // How long the browse session stays open
	ProbeConcurrency int           // Parallel probes after the window closes
	Dedupe           bool          // Drop repeated announcements of the same instance name
}

func (o *Options) applyDefaults() {
	if o.Filter == "" {
		o.Filter = DefaultFilter
	}
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	if o.ProbeConcurrency <= 0 {
		o.ProbeConcurrency = DefaultProbeConcurrency
	}
}

// Engine runs one-shot discovery scans
type Engine struct {
	browser Browser
	prober  Prober
	opts    Options
}

// NewEngine creates a discovery engine
func NewEngine(browser Browser, prober Prober, opts Options) *Engine {
	opts.applyDefaults()
	return &Engine{
		browser: browser,
		prober:  prober,
		opts:    opts,
	}
}

// Discover browses for the collection window, then probes every matching
// candidate in arrival order. Candidates whose probe fails are logged and
// dropped. The returned descriptors keep candidate arrival order.
// Discover only fails if the browse session cannot be opened or ctx ends.
func (e *Engine) Discover(ctx context.Context) ([]Descriptor, error) {
	candidates, err := e.collect(ctx)
	if err != nil {
		return nil, err
	}

	log.Info().
		Int("candidates", len(candidates)).
		Dur("window", e.opts.Window).
		Msg("Discovery window closed, probing candidates")

	if len(candidates) == 0 {
		return []Descriptor{}, nil
	}

	results := make([]*Descriptor, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.ProbeConcurrency)

	for i, c := range candidates {
		g.Go(func() error {
			info, err := e.prober.Probe(gctx, c.Address)
			if err != nil {
				log.Warn().
					Err(err).
					Str("name", c.Name).
					Str("address", c.Address).
					Msg("Probe failed, dropping candidate")
				return nil
			}
			d := Describe(c, info)
			results[i] = &d
			log.Info().
				Str("name", d.UniqueName).
				Str("mac", d.MAC).
				Str("address", d.Address).
				Msg("Resolved light strip")
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	descriptors := make([]Descriptor, 0, len(results))
	for _, d := range results {
		if d != nil {
			descriptors = append(descriptors, *d)
		}
	}
	return descriptors, nil
}

func (e *Engine) collect(ctx context.Context) ([]Candidate, error) {
	var (
		mu         sync.Mutex
		candidates []Candidate
		seen       = make(map[string]bool)
	)

	err := e.browser.Browse(ctx, e.opts.Window, func(s Service) {
		if !strings.Contains(s.Name, e.opts.Filter) {
			return
		}
		addr := s.Address()
		if addr == "" {
			log.Debug().Str("name", s.Name).Msg("Skipping instance without address")
			return
		}

		mu.Lock()
		defer mu.Unlock()

		if e.opts.Dedupe {
			if seen[s.Name] {
				return
			}
			seen[s.Name] = true
		}

		log.Debug().Str("name", s.Name).Str("address", addr).Msg("Found a led-strip")
		candidates = append(candidates, Candidate{
			Name:    s.Name,
			Host:    s.Host,
			Address: addr,
		})
	})
	if err != nil {
		if errors.Is(err, ErrBrowse) {
			return nil, err
		}
		return nil, errors.Join(ErrBrowse, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The session is closed; nothing is appended after Browse returns
	mu.Lock()
	defer mu.Unlock()
	out := make([]Candidate, len(candidates))
	copy(out, candidates)
	return out, nil
}
