package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eduverse-ninja/dojo/internal/domain"
	"github.com/eduverse-ninja/dojo/internal/infra/observability"
)

// ─── Engagement API ─────────────────────────────────────────────────────────
// REST endpoints for the portal UI and the CLI:
//
//	POST   /api/users/{userID}/activities                  record an activity event
//	GET    /api/users/{userID}/streaks                     streak per category + combined score
//	GET    /api/users/{userID}/rewards                     xp, level, balances, titles, badges
//	GET    /api/users/{userID}/wallet                      recent coin and point movements
//	POST   /api/users/{userID}/titles/equip                set the current title
//	POST   /api/users/{userID}/coins/spend                 spend coins
//	POST   /api/users/{userID}/streaks/{category}/recover  buy back a broken streak
//	POST   /api/users/{userID}/streaks/{category}/freeze   buy a streak freeze
//	GET    /api/leaderboards/{category}                    ranked podium + paginated list
//	GET    /api/badges                                     badge catalog
//	GET    /api/games                                      game catalog
//	POST   /api/games/{gameID}/scores                      submit a finished game
//	GET    /api/games/{gameID}/leaderboard                 top-K board for one game
//	GET    /api/traces                                     recent spans
//	DELETE /api/traces                                     clear recorded spans

const maxBodyBytes = 64 << 10

type activityRequest struct {
	Category    string   `json:"category"`
	Date        string   `json:"date"`         // YYYY-MM-DD; today (UTC) if omitted
	MetricDelta *float64 `json:"metric_delta"` // 1 if omitted
	GameID      string   `json:"game_id,omitempty"`
}

type scoreRequest struct {
	UserID string   `json:"user_id"`
	Score  *float64 `json:"score"`
}

type equipRequest struct {
	Title string `json:"title"`
}

type spendRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

// handleRecordActivity applies one activity event.
// POST /api/users/{userID}/activities
func (s *Server) handleRecordActivity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ev := domain.ActivityEvent{
		UserID:      chi.URLParam(r, "userID"),
		Category:    domain.Category(req.Category),
		MetricDelta: 1,
		GameID:      req.GameID,
	}
	if req.MetricDelta != nil {
		ev.MetricDelta = *req.MetricDelta
	}
	if req.Date == "" {
		ev.OccurredOn = domain.DateOf(time.Now().UTC())
	} else {
		d, err := domain.ParseDate(req.Date)
		if err != nil {
			writeFieldError(w, http.StatusBadRequest, err.Error(), "occurredOn")
			return
		}
		ev.OccurredOn = d
	}

	res, err := s.svc.RecordActivity(r.Context(), ev)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleStreaks returns every streak plus the combined score.
// GET /api/users/{userID}/streaks
func (s *Server) handleStreaks(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	streaks, err := s.svc.Streaks(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	combined, err := s.svc.CombinedScore(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":        userID,
		"streaks":        streaks,
		"combined_score": combined,
	})
}

// handleRewards returns the rewards state and progress toward the next level.
// GET /api/users/{userID}/rewards
func (s *Server) handleRewards(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	state, err := s.svc.RewardsState(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":  userID,
		"rewards":  state,
		"progress": s.svc.Rewards().Progress(state),
	})
}

// handleWallet returns the retained ledger tail, newest first.
// GET /api/users/{userID}/wallet
func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	agg, err := s.svc.Aggregate(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	txs := make([]domain.LedgerEntry, 0, len(agg.Wallet.Transactions))
	for i := len(agg.Wallet.Transactions) - 1; i >= 0; i-- {
		txs = append(txs, agg.Wallet.Transactions[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":      userID,
		"coins":        agg.Rewards.Coins,
		"points":       agg.Rewards.Points,
		"transactions": txs,
	})
}

// handleEquipTitle sets the current title.
// POST /api/users/{userID}/titles/equip
func (s *Server) handleEquipTitle(w http.ResponseWriter, r *http.Request) {
	var req equipRequest
	if !decodeBody(w, r, &req) {
		return
	}
	state, err := s.svc.EquipTitle(r.Context(), chi.URLParam(r, "userID"), req.Title)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleSpendCoins deducts coins.
// POST /api/users/{userID}/coins/spend
func (s *Server) handleSpendCoins(w http.ResponseWriter, r *http.Request) {
	var req spendRequest
	if !decodeBody(w, r, &req) {
		return
	}
	state, err := s.svc.SpendCoins(r.Context(), chi.URLParam(r, "userID"), req.Amount, req.Reason)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleRecoverStreak spends coins to restore the run lost at the last reset.
// POST /api/users/{userID}/streaks/{category}/recover
func (s *Server) handleRecoverStreak(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.RecoverStreak(r.Context(), chi.URLParam(r, "userID"), domain.Category(chi.URLParam(r, "category")))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleBuyStreakFreeze spends coins on one streak freeze.
// POST /api/users/{userID}/streaks/{category}/freeze
func (s *Server) handleBuyStreakFreeze(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.BuyStreakFreeze(r.Context(), chi.URLParam(r, "userID"), domain.Category(chi.URLParam(r, "category")))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleLeaderboard ranks every user on one category. Without limit (or with
// limit=0) everyone is ranked; an explicit limit is capped at MaxLimit.
// population is the number of users the board was drawn from.
// GET /api/leaderboards/{category}?page=1&size=20&limit=100
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, ok := queryInt(w, q.Get("page"), "page", 1)
	if !ok {
		return
	}
	size, ok := queryInt(w, q.Get("size"), "size", s.opts.PageSize)
	if !ok {
		return
	}
	limit, ok := queryInt(w, q.Get("limit"), "limit", 0)
	if !ok {
		return
	}
	size = min(size, s.opts.MaxLimit)
	limit = min(limit, s.opts.MaxLimit)

	view, err := s.svc.Leaderboard(r.Context(), chi.URLParam(r, "category"), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	p, err := view.Page(page, size)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"category":   view.Category,
		"podium":     view.Podium,
		"population": view.Population,
		"page":       p,
	})
}

// handleBadges returns the badge catalog.
// GET /api/badges
func (s *Server) handleBadges(w http.ResponseWriter, r *http.Request) {
	badges := s.svc.Rewards().Badges()
	if badges == nil {
		badges = []domain.BadgeDef{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"badges": badges})
}

// handleGames returns the catalog and the games that have stored scores.
// GET /api/games
func (s *Server) handleGames(w http.ResponseWriter, r *http.Request) {
	games := s.svc.Games().Games()
	if games == nil {
		games = []domain.GameDef{}
	}
	resp := map[string]any{"games": games, "top_k": s.svc.Games().TopK()}
	if s.backend != nil {
		scored, err := s.backend.GameIDs(r.Context())
		if err != nil {
			s.writeServiceError(w, r, domain.Persist("list games", err))
			return
		}
		if scored == nil {
			scored = []string{}
		}
		resp["scored"] = scored
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSubmitScore records a finished game.
// POST /api/games/{gameID}/scores
func (s *Server) handleSubmitScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Score == nil {
		writeFieldError(w, http.StatusBadRequest, "invalid score: required", "score")
		return
	}
	if s.scores != nil && req.UserID != "" && !s.scores.Allow(req.UserID) {
		observability.ScoresRejected.WithLabelValues("rate_limited").Inc()
		s.log.Warn().Str("user", req.UserID).Msg("score rate limit exceeded")
		writeError(w, http.StatusTooManyRequests, "too many score submissions, slow down")
		return
	}

	res, err := s.svc.SubmitScore(r.Context(), chi.URLParam(r, "gameID"), req.UserID, *req.Score)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// handleGameLeaderboard returns one game's top-K board.
// GET /api/games/{gameID}/leaderboard
func (s *Server) handleGameLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := s.svc.GameLeaderboard(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// writeServiceError maps engine errors onto HTTP statuses:
// validation 400, not unlocked 409, write conflict 409, store failure 502.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		writeFieldError(w, http.StatusBadRequest, err.Error(), ve.Field)
	case errors.Is(err, domain.ErrNotUnlocked):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "concurrent update, retry")
	case errors.Is(err, domain.ErrPersistence):
		writeError(w, http.StatusBadGateway, "store unavailable")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "request timed out")
	default:
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("unhandled error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func queryInt(w http.ResponseWriter, raw, field string, def int) (int, bool) {
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeFieldError(w, http.StatusBadRequest, "invalid "+field+": not an integer", field)
		return 0, false
	}
	return n, true
}

// ─── Live Events (SSE) ──────────────────────────────────────────────────────
// Level-ups and unlocks are pushed to connected portals as Server-Sent Events:
//
//	data: {"type":"level_up","user_id":"u1","level":3,"timestamp":"..."}

// EventHub fans committed notifications out to SSE subscribers. It is the
// service's domain.Notifier.
type EventHub struct {
	mu      sync.Mutex
	clients map[chan []byte]string // channel → user filter ("" = all)
}

var _ domain.Notifier = (*EventHub)(nil)

// NewEventHub creates a new broadcast hub.
func NewEventHub() *EventHub {
	return &EventHub{clients: make(map[chan []byte]string)}
}

// Notify broadcasts n to every subscriber whose filter matches.
func (h *EventHub) Notify(_ context.Context, n domain.Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch, user := range h.clients {
		if user != "" && user != n.UserID {
			continue
		}
		select {
		case ch <- data:
		default:
			// Client too slow, drop message
		}
	}
}

// Subscribe registers a client, optionally filtered to one user. Returns the
// channel and an unsubscribe func.
func (h *EventHub) Subscribe(userID string) (<-chan []byte, func()) {
	ch := make(chan []byte, 32)
	h.mu.Lock()
	h.clients[ch] = userID
	h.mu.Unlock()
	observability.LiveClients.Inc()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients, ch)
			h.mu.Unlock()
			observability.LiveClients.Dec()
		})
	}
}

// ClientCount returns the number of connected clients.
func (h *EventHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// HandleSSE serves the live feed. ?user= restricts it to one user.
// GET /api/events/live
func (h *EventHub) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch, unsub := h.Subscribe(r.URL.Query().Get("user"))
	defer unsub()

	for {
		select {
		case <-r.Context().Done():
			return
		case data := <-ch:
			w.Write([]byte("data: "))
			w.Write(data)
			w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}
