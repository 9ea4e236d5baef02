// Package api provides the dojo HTTP server: the engagement REST API, the
// live events feed, health and metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/eduverse-ninja/dojo/internal/app/engagement"
	"github.com/eduverse-ninja/dojo/internal/infra/observability"
	"github.com/eduverse-ninja/dojo/internal/logger"
)

// Backend is the store surface the server reads directly.
type Backend interface {
	Ping(ctx context.Context) error
	CountUserAggregates(ctx context.Context) (int, error)
	GameIDs(ctx context.Context) ([]string, error)
}

// Options tunes the server. Zero values fall back to defaults.
type Options struct {
	CORSOrigins    []string
	RequestTimeout time.Duration
	Metrics        bool
	ScoreRateLimit float64 // per user per second; 0 disables limiting
	ScoreBurst     int
	PageSize       int
	MaxLimit       int

	// Tracer, when set, records a server span per request and backs
	// /api/traces.
	Tracer *observability.Tracer
}

// Server is the dojo HTTP API server.
type Server struct {
	svc     *engagement.Service
	backend Backend
	hub     *EventHub
	opts    Options
	scores  *UserRateLimiter
	log     zerolog.Logger
}

// NewServer creates a server over svc. hub may be nil to disable the live feed.
func NewServer(svc *engagement.Service, backend Backend, hub *EventHub, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 20
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = 1000
	}
	s := &Server{
		svc:     svc,
		backend: backend,
		hub:     hub,
		opts:    opts,
		log:     logger.Component("api"),
	}
	if opts.ScoreRateLimit > 0 {
		burst := opts.ScoreBurst
		if burst < 1 {
			burst = 1
		}
		s.scores = NewUserRateLimiter(opts.ScoreRateLimit, burst)
	}
	return s
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	origins := s.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	if s.opts.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	// The live feed is long-lived and must not sit behind the request timeout.
	if s.hub != nil {
		r.Get("/api/events/live", s.hub.HandleSSE)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.opts.RequestTimeout))

		r.Route("/api/users/{userID}", func(r chi.Router) {
			r.Post("/activities", s.handleRecordActivity)
			r.Get("/streaks", s.handleStreaks)
			r.Get("/rewards", s.handleRewards)
			r.Get("/wallet", s.handleWallet)
			r.Post("/titles/equip", s.handleEquipTitle)
			r.Post("/coins/spend", s.handleSpendCoins)
			r.Post("/streaks/{category}/recover", s.handleRecoverStreak)
			r.Post("/streaks/{category}/freeze", s.handleBuyStreakFreeze)
		})

		r.Get("/api/leaderboards/{category}", s.handleLeaderboard)

		r.Get("/api/traces", s.handleTraces)
		r.Delete("/api/traces", s.handleResetTraces)

		r.Get("/api/badges", s.handleBadges)
		r.Get("/api/games", s.handleGames)
		r.Route("/api/games/{gameID}", func(r chi.Router) {
			r.Post("/scores", s.handleSubmitScore)
			r.Get("/leaderboard", s.handleGameLeaderboard)
		})
	})

	return r
}

// handleHealth reports store reachability.
// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}
	if err := s.backend.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	users, err := s.backend.CountUserAggregates(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	resp := map[string]any{"status": "ok", "users": users}
	if s.hub != nil {
		resp["live_clients"] = s.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleTraces returns the most recent spans, oldest first.
// GET /api/traces?limit=100
func (s *Server) handleTraces(w http.ResponseWriter, r *http.Request) {
	if s.opts.Tracer == nil {
		writeError(w, http.StatusNotFound, "tracing is disabled")
		return
	}
	limit, ok := queryInt(w, r.URL.Query().Get("limit"), "limit", 100)
	if !ok {
		return
	}
	if limit < 0 {
		writeFieldError(w, http.StatusBadRequest, "invalid limit: must not be negative", "limit")
		return
	}
	spans := s.opts.Tracer.Spans(limit)
	if spans == nil {
		spans = []observability.Span{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"recorded": s.opts.Tracer.SpanCount(),
		"spans":    spans,
	})
}

// handleResetTraces empties the span buffer.
// DELETE /api/traces
func (s *Server) handleResetTraces(w http.ResponseWriter, r *http.Request) {
	if s.opts.Tracer == nil {
		writeError(w, http.StatusNotFound, "tracing is disabled")
		return
	}
	s.opts.Tracer.Reset()
	w.WriteHeader(http.StatusNoContent)
}

// requestLogger logs each request, records HTTP metrics under the matched
// route pattern and wraps the request in a server span.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := s.opts.Tracer.StartServerSpan(r.Context(), r.Method, nil)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		span.Operation = r.Method + " " + route
		span.SetAttr("status", strconv.Itoa(status))
		span.SetAttr("request_id", middleware.GetReqID(r.Context()))
		var spanErr error
		if status >= 500 {
			spanErr = errors.New(http.StatusText(status))
		}
		s.opts.Tracer.EndSpan(span, spanErr)
		observability.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		observability.HTTPDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())

		ev := s.log.Debug()
		if status >= 500 {
			ev = s.log.Warn()
		}
		ev.Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("elapsed", elapsed).
			Msg("http request")
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeFieldError(w, status, msg, "")
}

func writeFieldError(w http.ResponseWriter, status int, msg, field string) {
	body := map[string]any{
		"message": msg,
		"type":    errorType(status),
	}
	if field != "" {
		body["field"] = field
	}
	writeJSON(w, status, map[string]any{"error": body})
}

func errorType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "validation_error"
	case http.StatusConflict:
		return "conflict"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return "store_error"
	}
	return "error"
}
