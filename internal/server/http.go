// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Thermoquad/turbostat/internal/log"
	"github.com/Thermoquad/turbostat/internal/options"
	"github.com/Thermoquad/turbostat/pkg/telemetry"
	"github.com/Thermoquad/turbostat/pkg/turbo"
)

// CommandWriter sends an encoded command to the bike
type CommandWriter interface {
	Write(cmd []byte) error
}

// WriterFunc returns the writer for the live connection, or an error when
// there is none
type WriterFunc func() (CommandWriter, error)

// StateFunc reports the connection state for /readyz and /api/v1/stats
type StateFunc func() string

// HTTPServer serves the snapshot API, health probes and Prometheus metrics
type HTTPServer struct {
	opts     *options.HTTPOptions
	monitor  *telemetry.Monitor
	registry *turbo.Registry
	log      log.Logger
	writer   WriterFunc
	state    StateFunc

	router *mux.Router
	server *http.Server
}

// HTTPOption configures an HTTPServer
type HTTPOption func(*HTTPServer)

// WithWriter enables PUT /api/v1/fields/{name}
func WithWriter(fn WriterFunc) HTTPOption {
	return func(s *HTTPServer) {
		s.writer = fn
	}
}

// WithState reports the connection state in stats
func WithState(fn StateFunc) HTTPOption {
	return func(s *HTTPServer) {
		s.state = fn
	}
}

// WithHTTPLogger sets the logger
func WithHTTPLogger(logger log.Logger) HTTPOption {
	return func(s *HTTPServer) {
		s.log = logger
	}
}

// WithRegistry lists and encodes fields from r
func WithRegistry(r *turbo.Registry) HTTPOption {
	return func(s *HTTPServer) {
		s.registry = r
	}
}

// NewHTTPServer creates the server. Nothing listens until Start.
func NewHTTPServer(opts *options.HTTPOptions, m *telemetry.Monitor, extra ...HTTPOption) *HTTPServer {
	s := &HTTPServer{
		opts:     opts,
		monitor:  m,
		registry: turbo.DefaultRegistry(),
		log:      log.NewNopLogger(),
		router:   mux.NewRouter(),
	}
	for _, opt := range extra {
		opt(s)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		telemetry.NewCollector(m),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s.setupRoutes(reg)
	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *HTTPServer) setupRoutes(reg *prometheus.Registry) {
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.HandleFunc("/readyz", s.handleReadyz).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/snapshot", s.handleSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/snapshot/{section}", s.handleSection).Methods(http.MethodGet)
	api.HandleFunc("/fields", s.handleFields).Methods(http.MethodGet)
	api.HandleFunc("/fields/{name}", s.handleWriteField).Methods(http.MethodPut)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
}

// Handler returns the router, for tests and embedding
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// Start listens until ctx is done, then shuts down gracefully
func (s *HTTPServer) Start(ctx context.Context) error {
	s.log.Info("starting http server", "addr", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		s.log.Info("stopping http server")
		return s.server.Shutdown(shutdownCtx)
	}
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *HTTPServer) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if !s.monitor.Ready() {
		http.Error(w, "no telemetry yet", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *HTTPServer) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	summary := s.monitor.Summary()
	body := summary.ToMap()
	body["unknown_count"] = summary.UnknownCount
	if !summary.LastUpdated.IsZero() {
		body["last_updated"] = summary.LastUpdated
	}
	s.writeJSON(w, body, http.StatusOK)
}

func (s *HTTPServer) handleSection(w http.ResponseWriter, r *http.Request) {
	snap := s.monitor.Snapshot()

	var section map[string]any
	switch mux.Vars(r)["section"] {
	case "battery":
		section = snap.Battery.ToMap()
	case "battery2":
		section = snap.Battery2.ToMap()
	case "motor":
		section = snap.Motor.ToMap()
	case "settings":
		section = snap.Settings.ToMap()
	default:
		s.writeError(w, "unknown section", http.StatusNotFound)
		return
	}
	s.writeJSON(w, section, http.StatusOK)
}

type fieldInfo struct {
	Producer string `json:"producer"`
	Channel  uint8  `json:"channel"`
	Name     string `json:"name"`
	Unit     string `json:"unit,omitempty"`
	Width    int    `json:"width"`
	Writable bool   `json:"writable"`
}

func (s *HTTPServer) handleFields(w http.ResponseWriter, _ *http.Request) {
	defs := s.registry.Fields()
	out := make([]fieldInfo, 0, len(defs))
	for _, def := range defs {
		out = append(out, fieldInfo{
			Producer: def.Producer.String(),
			Channel:  def.Channel,
			Name:     def.Name,
			Unit:     def.Unit,
			Width:    def.Width,
			Writable: def.Writable(),
		})
	}
	s.writeJSON(w, map[string]any{"fields": out, "count": len(out)}, http.StatusOK)
}

type writeRequest struct {
	Value  string `json:"value"`
	DryRun bool   `json:"dry_run"`
}

func (s *HTTPServer) handleWriteField(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	def, ok := s.registry.LookupName(name)
	if !ok {
		s.writeError(w, "unknown field", http.StatusNotFound)
		return
	}

	var req writeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	value, err := turbo.ParseFieldValue(def, req.Value)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	cmd, err := turbo.EncodeField(def, value)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, turbo.ErrReadOnlyField) {
			status = http.StatusMethodNotAllowed
		}
		s.writeError(w, err.Error(), status)
		return
	}

	resp := map[string]any{"field": def.Name, "command": turbo.FormatHex(cmd), "sent": false}
	if req.DryRun {
		s.writeJSON(w, resp, http.StatusOK)
		return
	}

	if s.writer == nil {
		s.writeError(w, "writes are disabled", http.StatusServiceUnavailable)
		return
	}
	writer, err := s.writer()
	if err != nil {
		s.writeError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if err := writer.Write(cmd); err != nil {
		s.log.Error(err, "failed to write command", "field", def.Name, "command", cmd)
		s.writeError(w, err.Error(), http.StatusBadGateway)
		return
	}

	s.log.Info("command sent", "field", def.Name, "value", req.Value)
	resp["sent"] = true
	s.writeJSON(w, resp, http.StatusOK)
}

func (s *HTTPServer) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats := s.monitor.Statistics()
	body := map[string]any{
		"total_messages":     stats.TotalMessages,
		"valid_messages":     stats.ValidMessages,
		"decode_errors":      stats.DecodeErrors,
		"malformed_messages": stats.MalformedMessages,
		"invalid_enums":      stats.InvalidEnums,
		"anomalous_values":   stats.AnomalousValues,
		"message_rate":       stats.MessageRate,
		"error_rate":         stats.ErrorRate,
		"stream_dropped":     s.monitor.Dropped(),
		"uptime_seconds":     time.Since(stats.StartTime).Seconds(),
	}
	if s.state != nil {
		body["connection"] = s.state()
	}
	s.writeJSON(w, body, http.StatusOK)
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error(err, "failed to encode response")
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, message string, status int) {
	s.writeJSON(w, map[string]string{"error": message}, status)
}
