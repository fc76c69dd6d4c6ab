package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dokzlo13/lightsd/internal/db"
	"github.com/dokzlo13/lightsd/internal/eventbus"
	"github.com/dokzlo13/lightsd/internal/ledger"
	"github.com/dokzlo13/lightsd/internal/lights"
	"github.com/dokzlo13/lightsd/internal/sysfs"
)

func newTestServer(t *testing.T, opts Options, bus *eventbus.Bus) (*Server, *lights.Controller, *sysfs.MemoryStore) {
	t.Helper()
	store := sysfs.NewMemoryStore()
	store.Set(sysfs.EndpointLCDMaxBrightness, "255")
	ctrl := lights.NewController(store)

	s, err := NewServer(opts, ctrl, bus)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return s, ctrl, store
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSetLight(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
	}{
		{"hex color", "/lights/notifications", `{"color":"#ff00ff00","flash":"timed","on_ms":500,"off_ms":500}`, http.StatusNoContent},
		{"numeric color", "/lights/battery", `{"color":255}`, http.StatusNoContent},
		{"empty body object", "/lights/attention", `{}`, http.StatusNoContent},
		{"backlight", "/lights/backlight", `{"color":"#ffffff"}`, http.StatusNoContent},
		{"unknown light", "/lights/keyboard", `{}`, http.StatusBadRequest},
		{"bad json", "/lights/battery", `{`, http.StatusBadRequest},
		{"unknown field", "/lights/battery", `{"colour":"#fff"}`, http.StatusBadRequest},
		{"bad color", "/lights/battery", `{"color":"red"}`, http.StatusBadRequest},
		{"bad flash", "/lights/battery", `{"flash":"strobe"}`, http.StatusBadRequest},
		{"negative duration", "/lights/battery", `{"flash":"timed","on_ms":-5}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _ := newTestServer(t, Options{}, nil)
			rec := do(t, s.Handler(), http.MethodPut, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if rec.Header().Get("X-Request-ID") == "" {
				t.Error("missing X-Request-ID header")
			}
		})
	}
}

func TestSetLight_UpdatesController(t *testing.T) {
	s, ctrl, store := newTestServer(t, Options{}, nil)
	h := s.Handler()

	do(t, h, http.MethodPut, "/lights/battery", `{"color":"#0000ff"}`)
	do(t, h, http.MethodPut, "/lights/attention", `{"color":"#ff0000"}`)

	snap := ctrl.Snapshot()
	if snap.Active != lights.IDAttention {
		t.Errorf("Active = %v, want attention", snap.Active)
	}
	if v, _ := store.Value(sysfs.Brightness(sysfs.Red)); v != "255" {
		t.Errorf("red brightness = %q, want 255", v)
	}
	if v, _ := store.Value(sysfs.Brightness(sysfs.Blue)); v != "0" {
		t.Errorf("blue brightness = %q, want 0", v)
	}
}

// failingStore rejects backlight writes while reporting the node present.
type failingStore struct {
	*sysfs.MemoryStore
}

func (f failingStore) WriteInt(ep sysfs.Endpoint, v int) error {
	if ep == sysfs.EndpointLCDBrightness {
		return errors.New("write failed")
	}
	return f.MemoryStore.WriteInt(ep, v)
}

func TestSetLight_Backlight(t *testing.T) {
	t.Run("missing node is skipped", func(t *testing.T) {
		s, _, store := newTestServer(t, Options{}, nil)
		store.Remove(sysfs.EndpointLCDBrightness)

		rec := do(t, s.Handler(), http.MethodPut, "/lights/backlight", `{"color":"#ffffff"}`)
		if rec.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", rec.Code)
		}
	})

	t.Run("write error is surfaced", func(t *testing.T) {
		mem := sysfs.NewMemoryStore()
		mem.Set(sysfs.EndpointLCDMaxBrightness, "255")
		s, err := NewServer(Options{}, lights.NewController(failingStore{mem}), nil)
		if err != nil {
			t.Fatal(err)
		}

		rec := do(t, s.Handler(), http.MethodPut, "/lights/backlight", `{"color":"#ffffff"}`)
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
	})
}

func TestListLights(t *testing.T) {
	s, _, _ := newTestServer(t, Options{}, nil)
	h := s.Handler()
	do(t, h, http.MethodPut, "/lights/notifications", `{"color":"#00ff00"}`)

	rec := do(t, h, http.MethodGet, "/lights", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var got struct {
		Active        string `json:"active"`
		MaxBrightness int    `json:"max_brightness"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Active != "notifications" || got.MaxBrightness != 255 {
		t.Errorf("snapshot = %+v", got)
	}
}

func TestRateLimit(t *testing.T) {
	s, _, _ := newTestServer(t, Options{RateLimitRPS: 1}, nil)
	h := s.Handler()

	if rec := do(t, h, http.MethodPut, "/lights/battery", `{}`); rec.Code != http.StatusNoContent {
		t.Fatalf("first request status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPut, "/lights/battery", `{}`); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", rec.Code)
	}
	// Reads are never limited.
	if rec := do(t, h, http.MethodGet, "/lights", ""); rec.Code != http.StatusOK {
		t.Errorf("GET status = %d, want 200", rec.Code)
	}
}

func TestWebhook(t *testing.T) {
	bus := eventbus.NewWithConfig(1, 10)
	defer bus.Close(t.Context())

	got := make(chan eventbus.WebhookRequest, 1)
	bus.Subscribe(eventbus.EventTypeWebhook, func(e eventbus.Event) {
		got <- e.Payload.(eventbus.WebhookRequest)
	})

	s, _, _ := newTestServer(t, Options{}, bus)
	rec := do(t, s.Handler(), http.MethodPost, "/webhook/alarm/on", `{"level":3}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}

	select {
	case req := <-got:
		if req.Path != "/alarm/on" || req.Method != http.MethodPost {
			t.Errorf("request = %s %s", req.Method, req.Path)
		}
		if req.JSON["level"] != float64(3) {
			t.Errorf("JSON = %v", req.JSON)
		}
		if req.ID == "" {
			t.Error("missing request id")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was not published")
	}
}

func TestWebhook_Disabled(t *testing.T) {
	s, _, _ := newTestServer(t, Options{}, nil)
	if rec := do(t, s.Handler(), http.MethodPost, "/webhook/x", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestProbes(t *testing.T) {
	s, _, _ := newTestServer(t, Options{MetricsPath: "/metrics"}, nil)
	h := s.Handler()

	if rec := do(t, h, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("/health = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/ready", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/ready before SetReady = %d, want 503", rec.Code)
	}
	s.SetReady(true)
	if rec := do(t, h, http.MethodGet, "/ready", ""); rec.Code != http.StatusOK {
		t.Errorf("/ready = %d", rec.Code)
	}

	do(t, h, http.MethodGet, "/lights", "")
	rec := do(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "lightsd_api_requests_total") {
		t.Error("metrics output is missing request counter")
	}
}

func newTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "lightsd.db"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return ledger.New(database.DB)
}

func TestLedger(t *testing.T) {
	l := newTestLedger(t)
	at := time.Now()
	events := []lights.Event{
		{Light: lights.IDBattery, Active: lights.IDBattery, Seq: 1, At: at},
		{Light: lights.IDNotifications, Active: lights.IDNotifications, Seq: 2, At: at},
		{Light: lights.IDBacklight, Brightness: 200, Seq: 3, At: at},
	}
	for _, e := range events {
		if err := l.Record(e); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	s, _, _ := newTestServer(t, Options{Ledger: l}, nil)
	h := s.Handler()

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantSeqs   []int64
	}{
		{"all", "", http.StatusOK, []int64{3, 2, 1}},
		{"limit", "?limit=2", http.StatusOK, []int64{3, 2}},
		{"by light", "?light=notifications", http.StatusOK, []int64{2}},
		{"no entries", "?light=attention", http.StatusOK, []int64{}},
		{"bad limit", "?limit=0", http.StatusBadRequest, nil},
		{"non-numeric limit", "?limit=ten", http.StatusBadRequest, nil},
		{"unknown light", "?light=keyboard", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/ledger"+tt.query, "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body)
			}
			if tt.wantSeqs == nil {
				return
			}

			var entries []ledger.Entry
			if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
				t.Fatalf("decode: %v", err)
			}
			got := make([]int64, 0, len(entries))
			for _, e := range entries {
				got = append(got, e.Seq)
			}
			if diff := cmp.Diff(tt.wantSeqs, got); diff != "" {
				t.Errorf("seqs mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLedger_Disabled(t *testing.T) {
	s, _, _ := newTestServer(t, Options{}, nil)
	if rec := do(t, s.Handler(), http.MethodGet, "/ledger", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
