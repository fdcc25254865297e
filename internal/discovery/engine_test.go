package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/stripd/internal/transport"
)

// fakeBrowser replays a fixed set of announcements, then waits out the window
type fakeBrowser struct {
	services []Service
	err      error

	mu     sync.Mutex
	window time.Duration
	closed bool
}

func (b *fakeBrowser) Browse(ctx context.Context, window time.Duration, found func(Service)) error {
	b.mu.Lock()
	b.window = window
	b.mu.Unlock()

	if b.err != nil {
		return b.err
	}
	for _, s := range b.services {
		found(s)
	}

	select {
	case <-time.After(window):
	case <-ctx.Done():
	}

	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

// recordingProber answers from a table keyed by address and counts calls
type recordingProber struct {
	answers map[string]ProbeInfo
	calls   atomic.Int32

	mu        sync.Mutex
	addresses []string
}

func (p *recordingProber) Probe(ctx context.Context, address string) (ProbeInfo, error) {
	p.calls.Add(1)
	p.mu.Lock()
	p.addresses = append(p.addresses, address)
	p.mu.Unlock()

	info, ok := p.answers[address]
	if !ok {
		return ProbeInfo{}, &transport.Error{Method: "GET", URL: "http://" + address + "/", Err: errors.New("connection refused")}
	}
	return info, nil
}

func svc(name, ip string) Service {
	return Service{Name: name, Host: name + ".local.", Addr: net.ParseIP(ip)}
}

func TestEngine_NoMatches(t *testing.T) {
	browser := &fakeBrowser{services: []Service{svc("printer", "10.0.0.9"), svc("nas-http", "10.0.0.8")}}
	prober := &recordingProber{}
	e := NewEngine(browser, prober, Options{Window: 20 * time.Millisecond})

	start := time.Now()
	got, err := e.Discover(context.Background())
	require.NoError(t, err)

	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Zero(t, prober.calls.Load())
	assert.True(t, browser.closed, "browse session must be torn down before Discover returns")
}

func TestEngine_ResolvesDescriptor(t *testing.T) {
	browser := &fakeBrowser{services: []Service{svc("led-strip-kitchen", "10.0.0.20")}}
	prober := &recordingProber{answers: map[string]ProbeInfo{
		"10.0.0.20": {Type: "led-strip", MAC: "AA:BB:CC:DD:EE:FF", Serial: "SN123"},
	}}
	e := NewEngine(browser, prober, Options{Window: time.Millisecond})

	got, err := e.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, Descriptor{
		Type:       "led-strip",
		MAC:        "AA:BB:CC:DD:EE:FF",
		Serial:     "SN123",
		Address:    "10.0.0.20",
		Hostname:   "led-strip-kitchen.local.",
		UniqueName: "led-strip-kitchen",
	}, got[0])
}

func TestEngine_FailedProbesAreIsolated(t *testing.T) {
	browser := &fakeBrowser{services: []Service{
		svc("led-strip-a", "10.0.0.1"),
		svc("led-strip-b", "10.0.0.2"), // no answer
		svc("printer", "10.0.0.3"),
		svc("led-strip-c", "10.0.0.4"),
		svc("led-strip-d", "10.0.0.5"), // no answer
	}}
	prober := &recordingProber{answers: map[string]ProbeInfo{
		"10.0.0.1": {Type: "led-strip", MAC: "00:00:00:00:00:01", Serial: "A"},
		"10.0.0.4": {Type: "led-strip", MAC: "00:00:00:00:00:04", Serial: "C"},
	}}
	e := NewEngine(browser, prober, Options{Window: time.Millisecond, ProbeConcurrency: 2})

	got, err := e.Discover(context.Background())
	require.NoError(t, err)

	const matching, failing = 4, 2
	calls := int(prober.calls.Load())
	assert.LessOrEqual(t, calls, matching)
	assert.GreaterOrEqual(t, calls, matching-failing)

	require.Len(t, got, 2)
	assert.Equal(t, "led-strip-a", got[0].UniqueName)
	assert.Equal(t, "led-strip-c", got[1].UniqueName)
}

func TestEngine_DuplicatesKeptByDefault(t *testing.T) {
	browser := &fakeBrowser{services: []Service{
		svc("led-strip-a", "10.0.0.1"),
		svc("led-strip-a", "10.0.0.1"),
	}}
	prober := &recordingProber{answers: map[string]ProbeInfo{
		"10.0.0.1": {Type: "led-strip", MAC: "00:00:00:00:00:01", Serial: "A"},
	}}

	got, err := NewEngine(browser, prober, Options{Window: time.Millisecond}).Discover(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.EqualValues(t, 2, prober.calls.Load())

	prober = &recordingProber{answers: prober.answers}
	got, err = NewEngine(browser, prober, Options{Window: time.Millisecond, Dedupe: true}).Discover(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.EqualValues(t, 1, prober.calls.Load())
}

func TestEngine_SkipsInstancesWithoutAddress(t *testing.T) {
	browser := &fakeBrowser{services: []Service{{Name: "led-strip-ghost", Host: "ghost.local."}}}
	prober := &recordingProber{}

	got, err := NewEngine(browser, prober, Options{Window: time.Millisecond}).Discover(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, prober.calls.Load())
}

func TestEngine_BrowseFailure(t *testing.T) {
	browser := &fakeBrowser{err: errors.New("no multicast interface")}

	_, err := NewEngine(browser, &recordingProber{}, Options{Window: time.Millisecond}).Discover(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBrowse)
}

func TestEngine_Defaults(t *testing.T) {
	browser := &fakeBrowser{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine(browser, &recordingProber{}, Options{}).Discover(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, DefaultWindow, browser.window)
}

func TestHTTPProber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/", r.URL.Path)
		fmt.Fprint(w, "led-strip\nAA:BB:CC:DD:EE:FF\nSN123")
	}))
	defer srv.Close()

	info, err := HTTPProber{Timeout: time.Second}.Probe(context.Background(), strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)
	assert.Equal(t, ProbeInfo{Type: "led-strip", MAC: "AA:BB:CC:DD:EE:FF", Serial: "SN123"}, info)
}

func TestHTTPProber_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "led-strip\nAA:BB:CC:DD:EE:FF")
	}))
	defer srv.Close()

	_, err := HTTPProber{Timeout: time.Second}.Probe(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, transport.IsParse(err))
	assert.ErrorIs(t, err, ErrMalformedProbe)
}

func TestEngine_WithHTTPProber(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "led-strip\nAA:BB:CC:DD:EE:01\nSN1\n")
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer bad.Close()

	browser := &fakeBrowser{services: []Service{
		serviceFor(t, "led-strip-good", good.URL),
		serviceFor(t, "led-strip-bad", bad.URL),
	}}

	got, err := NewEngine(browser, HTTPProber{Timeout: time.Second}, Options{Window: time.Millisecond}).Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "AA:BB:CC:DD:EE:01", got[0].MAC)
	assert.Equal(t, strings.TrimPrefix(good.URL, "http://"), got[0].Address)
}

func serviceFor(t *testing.T, name, rawURL string) Service {
	t.Helper()
	host, port, err := net.SplitHostPort(strings.TrimPrefix(rawURL, "http://"))
	require.NoError(t, err)
	var p int
	_, err = fmt.Sscanf(port, "%d", &p)
	require.NoError(t, err)
	return Service{Name: name, Host: name + ".local.", Addr: net.ParseIP(host), Port: p}
}
