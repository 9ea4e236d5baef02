// Package observability provides span tracing and Prometheus metrics for the
// progression engine.
//
// This provides:
//   - Trace spans around each engagement operation (load → transition → save)
//   - Trace ID propagation through context
//   - Prometheus metrics for activity, rewards, games, leaderboards and storage
package observability

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ═══════════════════════════════════════════════════════════════════════════
// Trace Spans: lightweight span tracking without external OTel SDK dependency
// ═══════════════════════════════════════════════════════════════════════════

// SpanKind classifies a span.
type SpanKind int

const (
	SpanInternal SpanKind = iota
	SpanServer            // one inbound HTTP request
)

// Span represents one unit of work.
type Span struct {
	TraceID   string            `json:"trace_id"`
	SpanID    string            `json:"span_id"`
	ParentID  string            `json:"parent_id,omitempty"`
	Operation string            `json:"operation"`
	Kind      SpanKind          `json:"kind"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time,omitempty"`
	Duration  time.Duration     `json:"duration,omitempty"`
	Status    SpanStatus        `json:"status"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// SetAttr records one attribute, allocating the map on first use.
func (s *Span) SetAttr(key, value string) {
	if s.Attrs == nil {
		s.Attrs = make(map[string]string)
	}
	s.Attrs[key] = value
}

// SpanStatus indicates success/failure.
type SpanStatus int

const (
	SpanOK SpanStatus = iota
	SpanError
)

// ─── Tracer ─────────────────────────────────────────────────────────────────

// Tracer keeps the most recent spans in a ring buffer for inspection.
type Tracer struct {
	mu       sync.Mutex
	spans    []Span
	maxSpans int
	enabled  bool
}

// TracerConfig configures the tracer.
type TracerConfig struct {
	Enabled  bool `toml:"enabled"`
	MaxSpans int  `toml:"max_spans"` // ring buffer size (default 10_000)
}

// DefaultTracerConfig returns production defaults.
func DefaultTracerConfig() TracerConfig {
	return TracerConfig{
		Enabled:  true,
		MaxSpans: 10_000,
	}
}

// NewTracer creates a new tracer.
func NewTracer(cfg TracerConfig) *Tracer {
	if cfg.MaxSpans <= 0 {
		cfg.MaxSpans = DefaultTracerConfig().MaxSpans
	}
	return &Tracer{
		spans:    make([]Span, 0, min(cfg.MaxSpans, 1024)),
		maxSpans: cfg.MaxSpans,
		enabled:  cfg.Enabled,
	}
}

// StartSpan begins a span and returns a context carrying its ids, so nested
// calls become children. A nil Tracer is valid and records nothing.
func (t *Tracer) StartSpan(ctx context.Context, operation string, attrs map[string]string) (context.Context, *Span) {
	return t.start(ctx, SpanInternal, operation, attrs)
}

// StartServerSpan begins the root span of an inbound request.
func (t *Tracer) StartServerSpan(ctx context.Context, operation string, attrs map[string]string) (context.Context, *Span) {
	return t.start(ctx, SpanServer, operation, attrs)
}

func (t *Tracer) start(ctx context.Context, kind SpanKind, operation string, attrs map[string]string) (context.Context, *Span) {
	if t == nil || !t.enabled {
		return ctx, &Span{Operation: operation, Kind: kind}
	}

	span := &Span{
		TraceID:   TraceIDFromContext(ctx),
		SpanID:    uuid.NewString(),
		ParentID:  spanIDFromContext(ctx),
		Operation: operation,
		Kind:      kind,
		StartTime: time.Now(),
		Status:    SpanOK,
		Attrs:     attrs,
	}
	if span.TraceID == "" {
		span.TraceID = uuid.NewString()
	}

	ctx = WithTraceID(ctx, span.TraceID)
	ctx = WithSpanID(ctx, span.SpanID)
	return ctx, span
}

// EndSpan completes a span and records it.
func (t *Tracer) EndSpan(span *Span, err error) {
	if t == nil || !t.enabled || span == nil {
		return
	}

	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)
	if err != nil {
		span.Status = SpanError
		if span.Attrs == nil {
			span.Attrs = make(map[string]string)
		}
		span.Attrs["error"] = err.Error()
		TraceErrors.Inc()
	}
	TracesRecorded.Inc()

	t.mu.Lock()
	defer t.mu.Unlock()

	// Ring buffer: overwrite oldest if at capacity
	if len(t.spans) >= t.maxSpans {
		t.spans = t.spans[1:]
	}
	t.spans = append(t.spans, *span)
}

// Spans returns a copy of the most recent spans, oldest first. A limit of
// zero returns all of them.
func (t *Tracer) Spans(limit int) []Span {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if limit <= 0 || limit > len(t.spans) {
		limit = len(t.spans)
	}

	start := len(t.spans) - limit
	out := make([]Span, limit)
	copy(out, t.spans[start:])
	return out
}

// SpanCount returns the number of recorded spans.
func (t *Tracer) SpanCount() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.spans)
}

// Reset clears all recorded spans.
func (t *Tracer) Reset() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spans = t.spans[:0]
}

// ─── Context Helpers ────────────────────────────────────────────────────────

type contextKey string

const (
	traceIDKey contextKey = "dojo-trace-id"
	spanIDKey  contextKey = "dojo-span-id"
)

// WithTraceID returns a context with the given trace ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// WithSpanID returns a context with the given span ID.
func WithSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, spanIDKey, spanID)
}

// TraceIDFromContext returns the trace ID, or "" when none is set.
func TraceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

func spanIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(spanIDKey).(string); ok {
		return v
	}
	return ""
}

// ═══════════════════════════════════════════════════════════════════════════
// Prometheus Metrics
// ═══════════════════════════════════════════════════════════════════════════

// ─── Activity Metrics ───────────────────────────────────────────────────────

// ActivitiesRecorded counts accepted activity events by category.
var ActivitiesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "dojo",
	Subsystem: "activity",
	Name:      "recorded_total",
	Help:      "Total activity events applied, by category.",
}, []string{"category"})

// StreaksBroken counts streak resets caused by a gap of two or more days.
var StreaksBroken = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "dojo",
	Subsystem: "activity",
	Name:      "streaks_broken_total",
	Help:      "Total streaks that restarted at 1 after a gap, by category.",
}, []string{"category"})

// ─── Rewards Metrics ────────────────────────────────────────────────────────

// XPAwarded counts XP granted across all users.
var XPAwarded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "dojo",
	Subsystem: "rewards",
	Name:      "xp_awarded_total",
	Help:      "Total XP granted.",
})

// LevelUps counts level-up transitions.
var LevelUps = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "dojo",
	Subsystem: "rewards",
	Name:      "level_ups_total",
	Help:      "Total level-up transitions.",
})

// BadgesUnlocked counts badge unlocks by badge id.
var BadgesUnlocked = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "dojo",
	Subsystem: "rewards",
	Name:      "badges_unlocked_total",
	Help:      "Total badge unlocks, by badge.",
}, []string{"badge"})

// CoinsSpent counts coins removed from wallets.
var CoinsSpent = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "dojo",
	Subsystem: "rewards",
	Name:      "coins_spent_total",
	Help:      "Total coins spent.",
})

// StreakPurchases counts coin purchases of freezes and recoveries.
var StreakPurchases = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "dojo",
	Subsystem: "rewards",
	Name:      "streak_purchases_total",
	Help:      "Total streak freezes and recoveries bought, by kind.",
}, []string{"kind"})

// ─── Game Metrics ───────────────────────────────────────────────────────────

// ScoresSubmitted counts accepted score submissions by game.
var ScoresSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "dojo",
	Subsystem: "games",
	Name:      "scores_submitted_total",
	Help:      "Total accepted score submissions, by game.",
}, []string{"game"})

// ScoresRejected counts rejected submissions by reason.
var ScoresRejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "dojo",
	Subsystem: "games",
	Name:      "scores_rejected_total",
	Help:      "Total rejected score submissions, by reason.",
}, []string{"reason"})

// MedalsAwarded counts podium finishes by medal.
var MedalsAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "dojo",
	Subsystem: "games",
	Name:      "medals_awarded_total",
	Help:      "Total podium finishes on game boards, by medal.",
}, []string{"medal"})

// ─── Leaderboard Metrics ────────────────────────────────────────────────────

// LeaderboardBuildSeconds tracks leaderboard build latency.
var LeaderboardBuildSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "dojo",
	Subsystem: "leaderboard",
	Name:      "build_seconds",
	Help:      "Time to project and rank one leaderboard.",
	Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
}, []string{"category"})

// ─── Storage Metrics ────────────────────────────────────────────────────────

// StoreErrors counts persistence failures by operation.
var StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "dojo",
	Subsystem: "store",
	Name:      "errors_total",
	Help:      "Total persistence failures, by operation.",
}, []string{"op"})

// StoreConflicts counts optimistic-revision conflicts.
var StoreConflicts = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "dojo",
	Subsystem: "store",
	Name:      "conflicts_total",
	Help:      "Total aggregate saves rejected by a stale revision.",
})

// SessionsEvicted counts idle sessions dropped from memory.
var SessionsEvicted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "dojo",
	Subsystem: "store",
	Name:      "sessions_evicted_total",
	Help:      "Total idle per-user sessions evicted.",
})

// SessionsStale counts cached aggregates reloaded after another writer.
var SessionsStale = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "dojo",
	Subsystem: "store",
	Name:      "sessions_stale_total",
	Help:      "Total cached aggregates found behind the store and reloaded.",
})

// SessionsCached tracks the number of per-user sessions held in memory.
var SessionsCached = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "dojo",
	Subsystem: "store",
	Name:      "sessions_cached",
	Help:      "Per-user sessions currently held in memory.",
})

// ─── HTTP Metrics ───────────────────────────────────────────────────────────

// HTTPRequests counts API requests by route and status.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "dojo",
	Subsystem: "http",
	Name:      "requests_total",
	Help:      "Total HTTP requests, by route pattern and status code.",
}, []string{"method", "route", "status"})

// HTTPDuration tracks request latency by route.
var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "dojo",
	Subsystem: "http",
	Name:      "request_seconds",
	Help:      "HTTP request latency, by route pattern.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "route"})

// LiveClients tracks connected SSE clients.
var LiveClients = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "dojo",
	Subsystem: "http",
	Name:      "live_clients",
	Help:      "Connected live event stream clients.",
})

// ─── Trace Metrics ──────────────────────────────────────────────────────────

// TracesRecorded tracks total spans recorded.
var TracesRecorded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "dojo",
	Subsystem: "traces",
	Name:      "spans_recorded_total",
	Help:      "Total trace spans recorded.",
})

// TraceErrors tracks error spans.
var TraceErrors = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "dojo",
	Subsystem: "traces",
	Name:      "error_spans_total",
	Help:      "Total trace spans with error status.",
})
