// Package api serves the lights over HTTP: light updates, state snapshots,
// webhook intake for scripts, probes and metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/lightsd/internal/eventbus"
	"github.com/dokzlo13/lightsd/internal/ledger"
	"github.com/dokzlo13/lightsd/internal/lights"
	"github.com/dokzlo13/lightsd/internal/metrics"
)

// maxBodySize bounds request bodies.
const maxBodySize = 1 << 20

const (
	defaultLedgerLimit = 50
	maxLedgerLimit     = 1000
)

// LedgerReader is the query side of the applied-event ledger.
type LedgerReader interface {
	Recent(limit int) ([]*ledger.Entry, error)
	ByLight(light string, limit int) ([]*ledger.Entry, error)
}

// Options configures the server.
type Options struct {
	Addr         string
	RateLimitRPS float64      // <= 0 disables limiting
	MetricsPath  string       // empty disables /metrics
	Ledger       LedgerReader // nil disables /ledger
}

// Server is the HTTP front of the light controller.
type Server struct {
	opts       Options
	ctrl       *lights.Controller
	bus        *eventbus.Bus
	devices    map[lights.ID]*lights.Device
	limiter    *rate.Limiter
	ready      atomic.Bool
	httpServer *http.Server
}

// NewServer opens a device for every light and builds the server. bus may
// be nil, in which case webhooks are rejected.
func NewServer(opts Options, ctrl *lights.Controller, bus *eventbus.Bus) (*Server, error) {
	s := &Server{
		opts:    opts,
		ctrl:    ctrl,
		bus:     bus,
		devices: make(map[lights.ID]*lights.Device, len(lights.IDs)),
	}

	for _, id := range lights.IDs {
		dev, err := ctrl.Open(id)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", id, err)
		}
		s.devices[id] = dev
	}

	if opts.RateLimitRPS > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), max(1, int(opts.RateLimitRPS)))
	}

	return s, nil
}

// SetReady flips the /ready probe.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /lights", s.handleList)
	mux.HandleFunc("PUT /lights/{id}", s.limited(s.handleSet))
	mux.HandleFunc("POST /webhook/{path...}", s.limited(s.handleWebhook))
	mux.HandleFunc("GET /ledger", s.handleLedger)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	if s.opts.MetricsPath != "" {
		mux.Handle("GET "+s.opts.MetricsPath, metrics.Handler())
	}

	return s.instrument(mux)
}

// Run starts the server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", s.opts.Addr).Msg("Starting API server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("API server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// statusRecorder captures the response code for metrics and logs.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
			r.Header.Set("X-Request-ID", requestID)
		}
		w.Header().Set("X-Request-ID", requestID)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveRequest(route, rec.status)

		log.Debug().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Msg("HTTP request")
	})
}

func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

// setLightRequest is the body of PUT /lights/{id}. Color is either a
// string accepted by lights.ParseColor or a plain ARGB number.
type setLightRequest struct {
	Color json.RawMessage `json:"color"`
	Flash string          `json:"flash"`
	OnMS  int             `json:"on_ms"`
	OffMS int             `json:"off_ms"`
}

func (req setLightRequest) state() (lights.LightState, error) {
	var state lights.LightState

	color, err := parseColorField(req.Color)
	if err != nil {
		return state, err
	}
	mode, err := lights.ParseFlashMode(req.Flash)
	if err != nil {
		return state, err
	}
	if req.OnMS < 0 || req.OffMS < 0 {
		return state, fmt.Errorf("%w: flash durations must not be negative", lights.ErrInvalidArgument)
	}

	state.Color = color
	state.FlashMode = mode
	state.FlashOnMS = req.OnMS
	state.FlashOffMS = req.OffMS
	return state, nil
}

func parseColorField(raw json.RawMessage) (uint32, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("%w: color: %v", lights.ErrInvalidArgument, err)
		}
		return lights.ParseColor(s)
	}
	var n uint32
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("%w: color: %v", lights.ErrInvalidArgument, err)
	}
	return n, nil
}

func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	id, err := lights.ParseID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req setLightRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	state, err := req.state()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.devices[id].SetLight(state); err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, lights.ErrInvalidArgument):
			status = http.StatusBadRequest
		case errors.Is(err, lights.ErrClosed):
			status = http.StatusServiceUnavailable
		}
		log.Error().Err(err).Str("light", id.String()).Msg("Failed to set light")
		writeError(w, status, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "scripting disabled")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		log.Error().Err(err).Msg("Failed to read webhook request body")
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	// Non-JSON bodies are passed through as text only.
	var jsonBody map[string]any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &jsonBody); err != nil {
			jsonBody = nil
		}
	}

	headers := make(map[string]string, len(r.Header))
	for key, values := range r.Header {
		headers[key] = strings.Join(values, ", ")
	}

	req := eventbus.WebhookRequest{
		ID:      w.Header().Get("X-Request-ID"),
		Method:  r.Method,
		Path:    "/" + r.PathValue("path"),
		Body:    string(body),
		JSON:    jsonBody,
		Headers: headers,
	}

	log.Debug().
		Str("method", req.Method).
		Str("path", req.Path).
		Int("body_len", len(body)).
		Str("event_id", req.ID).
		Msg("Received webhook request")

	s.bus.Publish(eventbus.Event{Type: eventbus.EventTypeWebhook, Payload: req})

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "id": req.ID})
}

// handleLedger lists applied events, newest first.
// Query: light=<id> narrows to one light, limit=<n> caps the result.
func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ledger == nil {
		writeError(w, http.StatusServiceUnavailable, "ledger disabled")
		return
	}

	limit := defaultLedgerLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLedgerLimit)
	}

	var (
		entries []*ledger.Entry
		err     error
	)
	if name := r.URL.Query().Get("light"); name != "" {
		id, perr := lights.ParseID(name)
		if perr != nil {
			writeError(w, http.StatusBadRequest, perr.Error())
			return
		}
		entries, err = s.opts.Ledger.ByLight(id.String(), limit)
	} else {
		entries, err = s.opts.Ledger.Recent(limit)
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to query ledger")
		writeError(w, http.StatusInternalServerError, "ledger query failed")
		return
	}
	if entries == nil {
		entries = []*ledger.Entry{}
	}

	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
