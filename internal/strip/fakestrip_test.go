package strip

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/stripd/internal/color"
	"github.com/dokzlo13/stripd/internal/discovery"
)

type fakeRequest struct {
	Method string
	Path   string
	Query  url.Values
	Form   url.Values
}

// fakeStrip implements the light strip HTTP API in memory
type fakeStrip struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	power    bool
	pattern  int
	rgb      color.RGB
	raw      string // overrides the /settings body when set
	requests []fakeRequest
	fail     map[string]int           // path -> status code
	delay    map[string]time.Duration // path -> handler delay
}

func newFakeStrip(t *testing.T) *fakeStrip {
	t.Helper()
	f := &fakeStrip{
		t:     t,
		fail:  make(map[string]int),
		delay: make(map[string]time.Duration),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeStrip) serve(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	req := fakeRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.Query()}
	if r.Method == http.MethodPost {
		req.Form = r.PostForm
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	status := f.fail[r.URL.Path]
	delay := f.delay[r.URL.Path]
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if status != 0 {
		http.Error(w, "injected failure", status)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.URL.Path {
	case "/":
		fmt.Fprint(w, "led-strip\nAA:BB:CC:DD:EE:FF\nSN123")
	case "/power":
		if v := r.URL.Query().Get("value"); v != "" {
			f.power = v == "1"
			return
		}
		p := 0
		if f.power {
			p = 1
		}
		writeJSON(w, map[string]int{"power": p})
	case "/settings":
		if f.raw != "" {
			fmt.Fprint(w, f.raw)
			return
		}
		writeJSON(w, map[string]any{
			"pattern_idx": f.pattern,
			"solid_color": map[string]uint8{"r": f.rgb.R, "g": f.rgb.G, "b": f.rgb.B},
		})
	case "/solidcolorhsv":
		h, _ := strconv.ParseFloat(r.PostForm.Get("h"), 64)
		s, _ := strconv.ParseFloat(r.PostForm.Get("s"), 64)
		v, _ := strconv.ParseFloat(r.PostForm.Get("v"), 64)
		f.rgb = color.HSVToRGB(h, s, v)
	case "/solidcolorh":
		// Hue-only path; tests only inspect the request
	case "/patterns":
		idx, err := strconv.Atoi(r.PostForm.Get("value"))
		if err != nil {
			http.Error(w, "bad value", http.StatusBadRequest)
			return
		}
		f.pattern = idx
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeStrip) setRGB(r, g, b uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rgb = color.RGB{R: r, G: g, B: b}
}

func (f *fakeStrip) setRawSettings(body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw = body
}

func (f *fakeStrip) setPattern(idx int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pattern = idx
}

func (f *fakeStrip) failPath(path string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[path] = status
}

func (f *fakeStrip) delayPath(path string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay[path] = d
}

func (f *fakeStrip) requestsTo(path string) []fakeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fakeRequest
	for _, r := range f.requests {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeStrip) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = nil
}

func testPatterns(t *testing.T) *Patterns {
	t.Helper()
	p, err := NewPatterns(
		map[string]int{"Solid": 0, "Breath": 1, "RainbowB": 2, "Twinkles": 5, "Fire": 6, "Water": 7, "Rainbow": 8, "Sinelon": 11},
		[]string{"Breath", "RainbowB", "Fire", "Water", "Sinelon", "Twinkles", "Rainbow"},
	)
	require.NoError(t, err)
	return p
}

func newTestDevice(t *testing.T, f *fakeStrip) *Device {
	t.Helper()
	d := NewDevice(discovery.Descriptor{
		Type:    "led-strip",
		MAC:     "AA:BB:CC:DD:EE:FF",
		Serial:  "SN123",
		Address: f.srv.URL,
	}, testPatterns(t), Options{Timeout: 2 * time.Second})
	t.Cleanup(d.Close)
	return d
}
