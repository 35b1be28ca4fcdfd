package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Atharv714/Safe-Passage/internal/addrutil"
	"github.com/Atharv714/Safe-Passage/internal/api"
	"github.com/Atharv714/Safe-Passage/internal/config"
	"github.com/Atharv714/Safe-Passage/internal/metrics"
	"github.com/Atharv714/Safe-Passage/internal/model"
	"github.com/Atharv714/Safe-Passage/internal/value"
)

// SampleStore holds the latest continuous sensor sample.
type SampleStore interface {
	Set(sample value.Value)
	Get() (value.Value, bool)
}

// EventStore holds recent pothole events.
type EventStore interface {
	Append(ev model.Event) (uint64, int)
	Recent(limit int) []model.Event
	Count() int
	Capacity() int
	Evicted() uint64
}

// Server provides the ingest HTTP API.
type Server struct {
	cfg     config.ServerConfig
	samples SampleStore
	events  EventStore
	metrics *metrics.Recorder
	now     func() time.Time

	mu         sync.RWMutex
	publicAddr string
}

// NewServer constructs a server over the given stores. rec may be nil.
func NewServer(cfg config.ServerConfig, samples SampleStore, events EventStore, rec *metrics.Recorder) *Server {
	if err := rec.WatchEventLog(events); err != nil {
		log.Printf("event log metrics not registered: %v", err)
	}
	return &Server{
		cfg:     cfg,
		samples: samples,
		events:  events,
		metrics: rec,
		now:     time.Now,
	}
}

// SetPublicAddr records the address discovered via STUN; it is reported on
// /healthz.
func (s *Server) SetPublicAddr(addr string) {
	s.mu.Lock()
	s.publicAddr = addr
	s.mu.Unlock()
}

func (s *Server) getPublicAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.publicAddr
}

// Handler returns the routed handler with CORS and Permissions-Policy applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.metrics.Instrument("healthz", s.handleHealth))
	mux.HandleFunc("/location", s.metrics.Instrument("location", s.handleLocation))
	mux.HandleFunc("/sensor", s.metrics.Instrument("sensor", s.handleSensor))
	mux.HandleFunc("/sensor/last", s.metrics.Instrument("sensor_last", s.handleSensorLast))
	mux.HandleFunc("/pothole", s.metrics.Instrument("pothole", s.handlePothole))
	mux.HandleFunc("/potholes", s.metrics.Instrument("potholes", s.handlePotholes))
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	mux.HandleFunc("/", s.handleRoot())
	return s.withHeaders(mux)
}

// ListenAndServe runs the HTTP server until ctx is cancelled, then shuts it
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()
	log.Printf("sensord listening on %s", ln.Addr())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	log.Printf("sensord shutting down")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) withHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		if s.cfg.AllowOrigin != "" {
			h.Set("Access-Control-Allow-Origin", s.cfg.AllowOrigin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if s.cfg.PermissionsPolicy != "" {
			h.Set("Permissions-Policy", s.cfg.PermissionsPolicy)
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		s.methodNotAllowed(w, "healthz")
		return
	}
	writeJSON(w, http.StatusOK, api.HealthResponse{
		Status:     api.StatusHealthy,
		Timestamp:  s.timestamp(),
		PublicAddr: s.getPublicAddr(),
		Events:     s.events.Count(),
		Capacity:   s.events.Capacity(),
	})
}

func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, "location")
		return
	}
	data, ok := s.readPayload(w, r, "location", false)
	if !ok {
		return
	}
	if isEmpty(data) {
		s.reject(w, "location", http.StatusBadRequest, "empty", "no data received")
		return
	}

	log.Printf("location update ip=%s data=%s", addrutil.ClientAddr(r), data)
	writeJSON(w, http.StatusOK, api.DataResponse{
		Status:    api.StatusSuccess,
		Data:      data,
		Timestamp: s.timestamp(),
	})
}

func (s *Server) handleSensor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, "sensor")
		return
	}
	sample, ok := s.readPayload(w, r, "sensor", false)
	if !ok {
		return
	}
	if isEmpty(sample) {
		s.reject(w, "sensor", http.StatusBadRequest, "empty", "no data received")
		return
	}
	if err := model.ValidateSample(sample); err != nil {
		s.reject(w, "sensor", http.StatusBadRequest, "invalid_shape", err.Error())
		return
	}

	s.samples.Set(sample)
	s.metrics.SampleStored()
	writeJSON(w, http.StatusOK, api.DataResponse{
		Status:    api.StatusSuccess,
		Data:      sample,
		Timestamp: s.timestamp(),
	})
}

func (s *Server) handleSensorLast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		s.methodNotAllowed(w, "sensor_last")
		return
	}
	sample, ok := s.samples.Get()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"status": api.StatusEmpty})
		return
	}
	writeJSON(w, http.StatusOK, api.DataResponse{
		Status:    api.StatusOK,
		Data:      sample,
		Timestamp: s.timestamp(),
	})
}

func (s *Server) handlePothole(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, "pothole")
		return
	}
	payload, ok := s.readPayload(w, r, "pothole", true)
	if !ok {
		return
	}
	if payload.IsNull() {
		payload = value.FromFields()
	}
	if !payload.IsMap() {
		s.reject(w, "pothole", http.StatusBadRequest, "invalid_shape", "pothole payload must be a JSON object")
		return
	}

	ev := model.EventFromPayload(payload, r.UserAgent(), addrutil.ClientAddr(r))
	seq, count := s.events.Append(ev)
	s.metrics.EventAppended()

	log.Printf("pothole event seq=%d count=%d ip=%s client_ts=%s", seq, count, ev.SourceAddr, ev.ClientTS)
	writeJSON(w, http.StatusCreated, api.PotholeResponse{
		Status: api.StatusOK,
		Stored: true,
		Count:  count,
		Seq:    seq,
	})
}

func (s *Server) handlePotholes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		s.methodNotAllowed(w, "potholes")
		return
	}
	def := s.cfg.DefaultLimit
	if def <= 0 {
		def = config.DefaultLimit
	}
	limit := parseLimit(r.URL.Query().Get("limit"), def, s.events.Capacity())
	items := s.events.Recent(limit)
	writeJSON(w, http.StatusOK, api.PotholesResponse{
		Status: api.StatusOK,
		Count:  s.events.Count(),
		Items:  items,
	})
}

func (s *Server) handleRoot() http.HandlerFunc {
	var files http.Handler
	if s.cfg.StaticDir != "" {
		files = http.FileServer(http.Dir(s.cfg.StaticDir))
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if files == nil {
			writeJSONError(w, http.StatusNotFound, "not found")
			return
		}
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			s.methodNotAllowed(w, "static")
			return
		}
		files.ServeHTTP(w, r)
	}
}

// readPayload enforces the JSON content type and body cap, then parses the
// body. An empty body yields null when allowEmpty is set and a 400 otherwise.
func (s *Server) readPayload(w http.ResponseWriter, r *http.Request, handler string, allowEmpty bool) (value.Value, bool) {
	if !isJSONContentType(r.Header.Get("Content-Type")) {
		s.reject(w, handler, http.StatusUnsupportedMediaType, "content_type", "content-type must be application/json")
		return value.Value{}, false
	}

	limit := s.cfg.MaxBodyBytes
	if limit <= 0 {
		limit = config.DefaultMaxBodyBytes
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.reject(w, handler, http.StatusRequestEntityTooLarge, "too_large", "request body too large")
			return value.Value{}, false
		}
		s.reject(w, handler, http.StatusBadRequest, "read", err.Error())
		return value.Value{}, false
	}

	if len(bytes.TrimSpace(body)) == 0 {
		if allowEmpty {
			return value.Null(), true
		}
		s.reject(w, handler, http.StatusBadRequest, "empty", "no data received")
		return value.Value{}, false
	}

	v, err := value.Parse(body)
	if err != nil {
		s.reject(w, handler, http.StatusBadRequest, "invalid_json", fmt.Sprintf("invalid JSON: %v", err))
		return value.Value{}, false
	}
	return v, true
}

func (s *Server) reject(w http.ResponseWriter, handler string, status int, reason, msg string) {
	s.metrics.Rejected(handler, reason)
	writeJSONError(w, status, msg)
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, handler string) {
	s.reject(w, handler, http.StatusMethodNotAllowed, "method", "method not allowed")
}

func (s *Server) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func isJSONContentType(header string) bool {
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// isEmpty reports payloads the ingest endpoints treat as "no data".
func isEmpty(v value.Value) bool {
	switch v.Kind() {
	case value.KindNull:
		return true
	case value.KindMap, value.KindList:
		return v.Len() == 0
	}
	return false
}

// parseLimit falls back to def on a missing or malformed value and clamps the
// result to [1, ceiling]. Integers too large for int clamp like any other.
func parseLimit(raw string, def, ceiling int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	// Atoi saturates out-of-range input at the int bounds.
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		n = def
	}
	if n > ceiling {
		n = ceiling
	}
	if n < 1 {
		n = 1
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, api.ErrorResponse{Status: api.StatusError, Msg: message})
}
