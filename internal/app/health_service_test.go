package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/stripd/internal/config"
	"github.com/dokzlo13/stripd/internal/discovery"
	"github.com/dokzlo13/stripd/internal/homekit"
	"github.com/dokzlo13/stripd/internal/ledger"
)

type staticDevices []homekit.DeviceStatus

func (d staticDevices) Devices() []homekit.DeviceStatus { return d }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthService_Endpoints(t *testing.T) {
	devices := staticDevices{{
		Key:        "k1",
		Descriptor: discovery.Descriptor{Type: "led-strip", MAC: "AA"},
		BaseURL:    "http://10.0.0.1",
	}}
	s := NewHealthService(config.Default(), devices)
	h := s.Handler()

	rec := get(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())

	rec = get(t, h, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	s.SetReady(true)
	rec = get(t, h, "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, h, "/devices")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []homekit.DeviceStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, []homekit.DeviceStatus(devices), got)
}

func TestHealthService_NoDevices(t *testing.T) {
	rec := get(t, NewHealthService(config.Default(), nil).Handler(), "/devices")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

type staticHistory struct {
	entries []*ledger.Entry
	err     error
}

func (h staticHistory) Recent(limit int) ([]*ledger.Entry, error) { return h.entries, h.err }

func TestHealthService_History(t *testing.T) {
	// Disabled without a ledger
	rec := get(t, NewHealthService(config.Default(), nil).Handler(), "/history")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, NewHealthService(config.Default(), nil).WithHistory(staticHistory{}).Handler(), "/history")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	entries := []*ledger.Entry{{ID: 1, EventType: ledger.EventDeviceError, Source: "k1"}}
	rec = get(t, NewHealthService(config.Default(), nil).WithHistory(staticHistory{entries: entries}).Handler(), "/history")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"event_type":"device_error"`)

	rec = get(t, NewHealthService(config.Default(), nil).WithHistory(staticHistory{err: errors.New("db closed")}).Handler(), "/history")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"history unavailable"}`, rec.Body.String())
}
