package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dustin/Linkstat/internal/config"
	"github.com/dustin/Linkstat/internal/dashboard"
	"github.com/dustin/Linkstat/internal/metrics"
	"github.com/dustin/Linkstat/internal/sse"
	"github.com/dustin/Linkstat/internal/storage"
	"github.com/dustin/Linkstat/internal/tracking"
	"github.com/dustin/Linkstat/internal/version"
)

const (
	dateLayout        = "2006-01-02"
	liveKeepaliveTick = 25 * time.Second
)

type Server struct {
	store       *storage.Storage
	hub         *sse.Hub
	recorder    *tracking.Recorder
	dashboard   *dashboard.Builder
	metrics     *metrics.Metrics
	mux         *http.ServeMux
	cfg         config.Config
	loc         *time.Location
	rateLimiter *RateLimiter
}

// New wires the HTTP surface. m may be nil, in which case request metrics
// are not recorded.
func New(store *storage.Storage, hub *sse.Hub, recorder *tracking.Recorder, builder *dashboard.Builder, m *metrics.Metrics, cfg config.Config) *Server {
	s := &Server{
		store:       store,
		hub:         hub,
		recorder:    recorder,
		dashboard:   builder,
		metrics:     m,
		mux:         http.NewServeMux(),
		cfg:         cfg,
		loc:         cfg.Location(),
		rateLimiter: NewRateLimiter(cfg.RateLimitPerMinute, time.Minute),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	s.mux.HandleFunc("POST /api/events", s.handleTrack)
	s.mux.HandleFunc("GET /api/links/{id}/analytics", s.handleLinkAnalytics)
	s.mux.HandleFunc("GET /api/owners/{owner}/dashboard", s.handleDashboard)
	s.mux.HandleFunc("GET /api/owners/{owner}/live", s.handleLive)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	setSecurityHeaders(w)

	rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rw, r)

	// ServeMux fills in r.Pattern on the request it was handed.
	pattern := r.Pattern
	if pattern == "" {
		pattern = "unmatched"
	}
	s.metrics.RecordHTTPRequest(r.Method, pattern, strconv.Itoa(rw.status), time.Since(start).Seconds())
}

// Close stops background work owned by the server.
func (s *Server) Close() {
	s.rateLimiter.Stop()
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "ok"
	dbStatus := "connected"
	httpStatus := http.StatusOK

	if err := s.store.Ping(ctx); err != nil {
		status = "error"
		dbStatus = "disconnected"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSONStatus(w, httpStatus, map[string]any{
		"status":  status,
		"db":      dbStatus,
		"version": version.Version,
	})
}

type trackRequest struct {
	LinkID string `json:"link_id"`
	Kind   string `json:"kind"`
	URL    string `json:"url"`
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r, s.cfg.TrustProxyHeaders)
	if !s.rateLimiter.Allow(ip) {
		slog.Debug("rate limit exceeded", "ip", ip, "path", r.URL.Path)
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	if s.cfg.MaxRequestBodyBytes > 0 {
		if r.ContentLength > s.cfg.MaxRequestBodyBytes {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxRequestBodyBytes)
	}

	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	kind := storage.EventKind(req.Kind)
	if req.LinkID == "" || !kind.Valid() {
		writeError(w, http.StatusBadRequest, "link_id and a kind of click, view or share are required")
		return
	}

	link, err := s.store.GetLink(r.Context(), req.LinkID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "link not found")
			return
		}
		slog.Warn("failed to look up link", "link_id", req.LinkID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	pageURL := req.URL
	if pageURL == "" {
		pageURL = r.URL.String()
	}
	s.recorder.RecordAsync(r.Context(), tracking.Interaction{
		LinkID:    link.ID,
		OwnerID:   link.OwnerID,
		Kind:      kind,
		IP:        ip,
		UserAgent: r.UserAgent(),
		Referrer:  r.Referer(),
		URL:       pageURL,
	})
	writeJSONStatus(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleLinkAnalytics(w http.ResponseWriter, r *http.Request) {
	from, err := s.parseDate(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
		return
	}
	to, err := s.parseDate(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
		return
	}

	linkID := r.PathValue("id")
	out, err := s.dashboard.GetAnalytics(r.Context(), linkID, from, to)
	switch {
	case err == nil:
		writeJSON(w, out)
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "link not found")
	case errors.Is(err, dashboard.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Warn("failed to build link analytics", "link_id", linkID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	days := 0
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "days must be a non-negative integer")
			return
		}
		days = n
	}

	owner := r.PathValue("owner")
	out, err := s.dashboard.BuildDashboard(r.Context(), owner, days)
	if err != nil {
		slog.Warn("failed to build dashboard", "owner_id", owner, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, out)
}

// handleLive streams an owner's interactions as they are recorded.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("owner")
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.hub.Subscribe(owner)
	defer cancel()

	hello, _ := json.Marshal(map[string]string{"owner_id": owner})
	if err := writeLive(rc, w, sse.Event{Type: "ready", Payload: hello}); err != nil {
		slog.Debug("live stream unavailable", "owner_id", owner, "error", err)
		return
	}

	keepalive := time.NewTicker(liveKeepaliveTick)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := writeLive(rc, w, evt); err != nil {
				return
			}
		}
	}
}

func writeLive(rc *http.ResponseController, w http.ResponseWriter, evt sse.Event) error {
	if err := sse.WriteEvent(w, evt); err != nil {
		return err
	}
	return rc.Flush()
}

// parseDate reads a YYYY-MM-DD day in the analytics location. Empty input
// yields the zero time.
func (s *Server) parseDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(dateLayout, v, s.loc)
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSONStatus(w, status, map[string]string{"error": msg})
}
