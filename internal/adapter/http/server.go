package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/stargazing-forecast/internal/domain"
	"github.com/couchcryptid/stargazing-forecast/internal/ephemeris"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// BundleSource hands out the most recent forecast bundle.
type BundleSource interface {
	ReadinessChecker
	Latest() (domain.ForecastBundle, bool)
}

// Server exposes the forecast endpoints alongside health, readiness, and metrics.
type Server struct {
	httpServer *http.Server
	source     BundleSource
	clock      clockwork.Clock
	searchDays int
	logger     *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithClock sets the time source for moon phase lookups.
func WithClock(c clockwork.Clock) Option {
	return func(s *Server) { s.clock = c }
}

// WithPhaseSearchDays bounds the /moon?phase= search.
func WithPhaseSearchDays(days int) Option {
	return func(s *Server) { s.searchDays = days }
}

// NewServer creates an HTTP server with /forecast, /geomagnetic/summary,
// /moon, /healthz, /readyz, and /metrics routes.
func NewServer(addr string, source BundleSource, logger *slog.Logger, opts ...Option) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		source:     source,
		clock:      clockwork.NewRealClock(),
		searchDays: ephemeris.DefaultSearchDays,
		logger:     logger.With("component", "http"),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(source))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /forecast", s.handleForecast)
	mux.HandleFunc("GET /geomagnetic/summary", s.handleGeomagneticSummary)
	mux.HandleFunc("GET /moon", s.handleMoon)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func (s *Server) handleForecast(w http.ResponseWriter, _ *http.Request) {
	b, ok := s.source.Latest()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no forecast available yet")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleGeomagneticSummary(w http.ResponseWriter, _ *http.Request) {
	b, ok := s.source.Latest()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no forecast available yet")
		return
	}
	summary, err := domain.SummarizeKp(b.Geomagnetic.Observed)
	if err != nil {
		s.logger.Warn("kp summary unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type moonResponse struct {
	Current   domain.MoonPhase  `json:"current"`
	NextPhase domain.PhaseLabel `json:"next_phase,omitempty"`
	NextDate  string            `json:"next_date,omitempty"`
}

// handleMoon reports the current phase and, with ?phase=, the next date that
// phase occurs.
func (s *Server) handleMoon(w http.ResponseWriter, r *http.Request) {
	now := s.clock.Now()
	if b, ok := s.source.Latest(); ok {
		if loc, err := time.LoadLocation(b.TimeZone); err == nil {
			now = now.In(loc)
		}
	}

	current, err := ephemeris.MoonPhaseAt(now)
	if err != nil {
		s.logger.Error("moon phase failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := moonResponse{Current: current}

	if q := r.URL.Query().Get("phase"); q != "" {
		target, err := domain.ParsePhaseLabel(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		date, err := ephemeris.NextOccurrence(target, now, s.searchDays)
		switch {
		case errors.Is(err, domain.ErrPhaseNotFound):
			writeError(w, http.StatusNotFound, err.Error())
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.NextPhase = target
		resp.NextDate = date.Format(time.DateOnly)
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
