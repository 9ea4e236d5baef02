package engagement

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eduverse-ninja/dojo/internal/domain"
	"github.com/eduverse-ninja/dojo/internal/infra/observability"
	"github.com/eduverse-ninja/dojo/internal/logger"
)

// Config bundles the engine configurations.
type Config struct {
	Streaks StreakConfig
	Rewards RewardsConfig
	Games   GameConfig
}

// DefaultConfig returns production defaults with empty catalogs.
func DefaultConfig() Config {
	return Config{
		Streaks: DefaultStreakConfig(),
		Rewards: RewardsConfig{
			Curve:      DefaultCurveConfig(),
			Payout:     DefaultPayoutConfig(),
			ActivityXP: DefaultActivityXP(),
		},
		Games: DefaultGameConfig(),
	}
}

// Service runs the engines against persisted aggregates:
// load → pure transition → save. A failed save discards the transition.
type Service struct {
	store    domain.Store
	streaks  *StreakTracker
	rewards  *RewardsEngine
	games    *GamePipeline
	sessions *sessionCache

	notifier   domain.Notifier
	tracer     *observability.Tracer
	log        zerolog.Logger
	now        func() time.Time
	newID      func() string
	sessionTTL time.Duration
}

// Option customizes a Service.
type Option func(*Service)

// WithNotifier sets the receiver of level-up and unlock notifications.
func WithNotifier(n domain.Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithTracer records a span per operation.
func WithTracer(t *observability.Tracer) Option { return func(s *Service) { s.tracer = t } }

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.log = l } }

// WithClock injects the time source (tests).
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithIDGenerator injects the id source for score and ledger entries (tests).
func WithIDGenerator(f func() string) Option { return func(s *Service) { s.newID = f } }

// WithSessionTTL sets how long an unused per-user session stays cached.
func WithSessionTTL(d time.Duration) Option { return func(s *Service) { s.sessionTTL = d } }

// NewService validates cfg and builds a Service over store.
func NewService(store domain.Store, cfg Config, opts ...Option) (*Service, error) {
	rewards, err := NewRewardsEngine(cfg.Rewards)
	if err != nil {
		return nil, fmt.Errorf("rewards config: %w", err)
	}
	s := &Service{
		store:   store,
		streaks: NewStreakTracker(cfg.Streaks),
		rewards: rewards,
		games:   NewGamePipeline(cfg.Games),
		log:     logger.Component("engagement"),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sessions = newSessionCache(s.sessionTTL, s.now)
	return s, nil
}

// Rewards exposes the rewards engine (progress, catalog).
func (s *Service) Rewards() *RewardsEngine { return s.rewards }

// Games exposes the game pipeline (catalog, top-K).
func (s *Service) Games() *GamePipeline { return s.games }

// StreakTracker exposes the streak rules and purchase prices.
func (s *Service) StreakTracker() *StreakTracker { return s.streaks }

// CacheState reports the session state for userID.
func (s *Service) CacheState(userID string) CacheState { return s.sessions.state(userID) }

// CachedSessions reports how many per-user sessions are held in memory.
func (s *Service) CachedSessions() int { return s.sessions.len() }

// ─── Results ────────────────────────────────────────────────────────────────

// ActivityResult is the committed outcome of RecordActivity.
type ActivityResult struct {
	Streak        domain.StreakState  `json:"streak"`
	StreakChanged bool                `json:"streak_changed"`
	Rewards       domain.RewardsState `json:"rewards"`
	Outcome       Outcome             `json:"outcome"`
}

// ScoreResult is the committed outcome of SubmitScore.
type ScoreResult struct {
	Board   domain.GameLeaderboard `json:"board"`
	Entry   domain.GameScore       `json:"entry"`
	Kept    bool                   `json:"kept"`
	Medal   domain.MedalKind       `json:"medal,omitempty"`
	Rewards domain.RewardsState    `json:"rewards"`
	Outcome Outcome                `json:"outcome"`
}

// StreakPurchase is the committed outcome of buying a freeze or a recovery.
type StreakPurchase struct {
	Category domain.Category     `json:"category"`
	Streak   domain.StreakState  `json:"streak"`
	Cost     int64               `json:"cost"`
	Rewards  domain.RewardsState `json:"rewards"`
	Outcome  Outcome             `json:"outcome"`
}

// ─── Mutations ──────────────────────────────────────────────────────────────

// RecordActivity applies one activity event. Activity XP is granted only when
// the event advances the category's streak, so same-day repeats and
// out-of-order deliveries only add to the counters.
func (s *Service) RecordActivity(ctx context.Context, ev domain.ActivityEvent) (res ActivityResult, err error) {
	ctx, span := s.tracer.StartSpan(ctx, "engagement.record_activity", map[string]string{
		"user": ev.UserID, "category": string(ev.Category),
	})
	defer func() { s.tracer.EndSpan(span, err) }()

	if err := ev.Validate(); err != nil {
		return ActivityResult{}, err
	}

	sess, unlock := s.lock(ev.UserID)
	defer unlock()

	agg, err := s.load(ctx, sess, ev.UserID)
	if err != nil {
		return ActivityResult{}, err
	}

	sc := ev.Category.StreakCategory()
	prev := agg.Streaks[sc]
	streak, changed, err := s.streaks.RecordActivity(prev, ev.OccurredOn)
	if err != nil {
		return ActivityResult{}, err
	}
	agg.Streaks[sc] = streak
	if err := addCounter(agg, ev.Category, ev.MetricDelta, "metricDelta"); err != nil {
		return ActivityResult{}, err
	}

	var xp int64
	if changed {
		xp = s.rewards.Boost(s.rewards.ActivityXP(ev.Category), ev.Category, ev.OccurredOn, streak.Current)
	}
	out, err := s.grant(agg, xp, fmt.Sprintf("%s activity", ev.Category))
	if err != nil {
		return ActivityResult{}, err
	}
	agg.UpdatedAt = s.now()

	if err := s.save(ctx, sess, agg); err != nil {
		return ActivityResult{}, err
	}

	observability.ActivitiesRecorded.WithLabelValues(string(ev.Category)).Inc()
	if changed && streak.Broken > 0 {
		observability.StreaksBroken.WithLabelValues(string(sc)).Inc()
	}
	s.announce(ctx, ev.UserID, out)
	s.log.Debug().
		Str("user", ev.UserID).
		Str("category", string(ev.Category)).
		Int("streak", streak.Current).
		Int64("xp", out.XPAwarded).
		Msg("activity recorded")

	return ActivityResult{
		Streak:        streak.Clone(),
		StreakChanged: changed,
		Rewards:       agg.Rewards.Clone(),
		Outcome:       out,
	}, nil
}

// SubmitScore records a finished game. The game board and the player's
// aggregate are written in one store transaction; if either write fails,
// neither is kept.
func (s *Service) SubmitScore(ctx context.Context, gameID, userID string, score float64) (res ScoreResult, err error) {
	ctx, span := s.tracer.StartSpan(ctx, "engagement.submit_score", map[string]string{
		"user": userID, "game": gameID,
	})
	defer func() { s.tracer.EndSpan(span, err) }()

	if err := s.games.Validate(gameID, userID, score); err != nil {
		observability.ScoresRejected.WithLabelValues("invalid").Inc()
		return ScoreResult{}, err
	}

	sess, unlock := s.lock(userID)
	defer unlock()

	agg, err := s.load(ctx, sess, userID)
	if err != nil {
		return ScoreResult{}, err
	}
	if err := addCounter(agg, domain.CategoryGame, score, "score"); err != nil {
		observability.ScoresRejected.WithLabelValues("invalid").Inc()
		return ScoreResult{}, err
	}

	now := s.now()
	entry := NewEntry(s.newID(), userID, score, now)
	var board domain.GameLeaderboard
	var kept bool
	var medal domain.MedalKind
	var out Outcome

	err = s.store.Atomic(ctx, func(tx domain.Store) error {
		current, err := tx.LoadGameLeaderboard(ctx, gameID)
		if err != nil {
			return domain.Persist("load game leaderboard", err)
		}
		current.GameID = gameID
		board, kept = s.games.Insert(current, entry)
		if err := tx.SaveGameLeaderboard(ctx, board); err != nil {
			return domain.Persist("save game leaderboard", err)
		}

		// A finished game counts as funzone activity for the day.
		sc := domain.CategoryGame.StreakCategory()
		streak, _, err := s.streaks.RecordActivity(agg.Streaks[sc], entry.Date)
		if err != nil {
			return err
		}
		agg.Streaks[sc] = streak
		agg.PushRecentScore(domain.RecentScore{GameID: gameID, Score: score, At: now})
		if m, ok := MedalFor(board, entry.ID); ok {
			medal = m
			agg.Rewards.AddMedal(m, 1)
		}

		xp := s.rewards.Boost(s.games.XPFor(gameID, score), domain.CategoryGame, entry.Date, streak.Current)
		out, err = s.grant(agg, xp, "game "+gameID)
		if err != nil {
			return err
		}
		agg.UpdatedAt = now
		return tx.SaveUserAggregate(ctx, agg)
	})
	if err != nil {
		sess.drop()
		observability.ScoresRejected.WithLabelValues("store").Inc()
		return ScoreResult{}, s.storeErr("submit score", err)
	}
	sess.state = Loaded
	sess.agg = agg.Clone()

	observability.ScoresSubmitted.WithLabelValues(gameID).Inc()
	s.announce(ctx, userID, out)
	if medal != "" {
		observability.MedalsAwarded.WithLabelValues(string(medal)).Inc()
		s.notify(ctx, domain.Notification{Type: domain.NotifyMedalEarned, UserID: userID, Medal: medal, GameID: gameID, Timestamp: now})
	}
	s.log.Info().
		Str("user", userID).
		Str("game", gameID).
		Float64("score", score).
		Bool("kept", kept).
		Str("medal", string(medal)).
		Msg("score submitted")

	return ScoreResult{
		Board:   board.Clone(),
		Entry:   entry,
		Kept:    kept,
		Medal:   medal,
		Rewards: agg.Rewards.Clone(),
		Outcome: out,
	}, nil
}

// EquipTitle sets the user's current title.
func (s *Service) EquipTitle(ctx context.Context, userID, title string) (domain.RewardsState, error) {
	return s.mutateRewards(ctx, userID, "engagement.equip_title", func(agg *domain.UserAggregate) error {
		next, err := s.rewards.EquipTitle(agg.Rewards, title)
		if err != nil {
			return err
		}
		agg.Rewards = next
		return nil
	})
}

// SpendCoins deducts coins and journals a SPEND entry.
func (s *Service) SpendCoins(ctx context.Context, userID string, amount int64, reason string) (domain.RewardsState, error) {
	state, err := s.mutateRewards(ctx, userID, "engagement.spend_coins", func(agg *domain.UserAggregate) error {
		next, err := s.rewards.SpendCoins(agg.Rewards, amount)
		if err != nil {
			return err
		}
		agg.Rewards = next
		s.journal(agg, domain.TxSpend, domain.CurrencyCoins, amount, reason, next.Coins)
		return nil
	})
	if err == nil {
		observability.CoinsSpent.Add(float64(amount))
	}
	return state, err
}

func (s *Service) mutateRewards(ctx context.Context, userID, op string, fn func(*domain.UserAggregate) error) (state domain.RewardsState, err error) {
	ctx, span := s.tracer.StartSpan(ctx, op, map[string]string{"user": userID})
	defer func() { s.tracer.EndSpan(span, err) }()

	if userID == "" {
		return domain.RewardsState{}, domain.Invalid("userId", "must not be empty")
	}
	sess, unlock := s.lock(userID)
	defer unlock()

	agg, err := s.load(ctx, sess, userID)
	if err != nil {
		return domain.RewardsState{}, err
	}
	if err := fn(agg); err != nil {
		return domain.RewardsState{}, err
	}
	agg.UpdatedAt = s.now()
	if err := s.save(ctx, sess, agg); err != nil {
		return domain.RewardsState{}, err
	}
	return agg.Rewards.Clone(), nil
}

// RecoverStreak buys back the run lost at category's last reset for the
// configured coin price. It is only possible until the streak next changes.
func (s *Service) RecoverStreak(ctx context.Context, userID string, category domain.Category) (StreakPurchase, error) {
	return s.buyStreak(ctx, userID, category, "recovery", s.streaks.RecoveryCost(), s.streaks.Recover)
}

// BuyStreakFreeze stocks one freeze on category's streak for the configured
// coin price.
func (s *Service) BuyStreakFreeze(ctx context.Context, userID string, category domain.Category) (StreakPurchase, error) {
	return s.buyStreak(ctx, userID, category, "freeze", s.streaks.FreezeCost(), s.streaks.AddFreeze)
}

func (s *Service) buyStreak(ctx context.Context, userID string, category domain.Category, kind string, cost int64,
	fn func(domain.StreakState) (domain.StreakState, error)) (res StreakPurchase, err error) {
	ctx, span := s.tracer.StartSpan(ctx, "engagement.streak_"+kind, map[string]string{
		"user": userID, "category": string(category),
	})
	defer func() { s.tracer.EndSpan(span, err) }()

	if userID == "" {
		return StreakPurchase{}, domain.Invalid("userId", "must not be empty")
	}
	c, err := domain.ParseCategory(string(category))
	if err != nil {
		return StreakPurchase{}, err
	}
	sc := c.StreakCategory()

	sess, unlock := s.lock(userID)
	defer unlock()

	agg, err := s.load(ctx, sess, userID)
	if err != nil {
		return StreakPurchase{}, err
	}
	streak, err := fn(agg.Streaks[sc])
	if err != nil {
		return StreakPurchase{}, err
	}
	agg.Streaks[sc] = streak

	reason := fmt.Sprintf("streak %s (%s)", kind, sc)
	if cost > 0 {
		next, err := s.rewards.SpendCoins(agg.Rewards, cost)
		if err != nil {
			return StreakPurchase{}, err
		}
		agg.Rewards = next
		s.journal(agg, domain.TxSpend, domain.CurrencyCoins, cost, reason, next.Coins)
	}

	// A restored run can satisfy streak badges.
	out, err := s.grant(agg, 0, reason)
	if err != nil {
		return StreakPurchase{}, err
	}
	agg.UpdatedAt = s.now()
	if err := s.save(ctx, sess, agg); err != nil {
		return StreakPurchase{}, err
	}

	observability.StreakPurchases.WithLabelValues(kind).Inc()
	observability.CoinsSpent.Add(float64(cost))
	s.announce(ctx, userID, out)
	s.log.Info().
		Str("user", userID).
		Str("category", string(sc)).
		Str("kind", kind).
		Int("streak", streak.Current).
		Int64("cost", cost).
		Msg("streak purchase")

	return StreakPurchase{
		Category: sc,
		Streak:   streak.Clone(),
		Cost:     max(cost, 0),
		Rewards:  agg.Rewards.Clone(),
		Outcome:  out,
	}, nil
}

// Import replaces userID's stored aggregate with a, keeping the stored
// revision so the write is accepted. Used to migrate legacy exports.
func (s *Service) Import(ctx context.Context, a *domain.UserAggregate) error {
	if a == nil || a.UserID == "" {
		return domain.Invalid("userId", "must not be empty")
	}
	sess, unlock := s.lock(a.UserID)
	defer unlock()

	next := a.Clone()
	next.Normalize(s.rewards.curve.Threshold(2))
	next.Revision = 0
	existing, err := s.store.LoadUserAggregate(ctx, a.UserID)
	switch {
	case err == nil:
		next.Revision = existing.Revision
		next.CreatedAt = existing.CreatedAt
	case !errors.Is(err, domain.ErrUserNotFound):
		return s.storeErr("load aggregate", err)
	}
	if next.CreatedAt.IsZero() {
		next.CreatedAt = s.now()
	}
	next.UpdatedAt = s.now()

	sess.drop()
	return s.save(ctx, sess, next)
}

// ─── Queries ────────────────────────────────────────────────────────────────

// Aggregate returns a copy of the user's aggregate, or a fresh one for
// unknown users. Reads go through an existing session but never create one.
func (s *Service) Aggregate(ctx context.Context, userID string) (*domain.UserAggregate, error) {
	if userID == "" {
		return nil, domain.Invalid("userId", "must not be empty")
	}
	if sess := s.sessions.acquire(userID, false); sess != nil {
		defer s.sessions.release(sess)
		sess.mu.Lock()
		defer sess.mu.Unlock()
		return s.load(ctx, sess, userID)
	}

	agg, err := s.store.LoadUserAggregate(ctx, userID)
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		return s.fresh(userID), nil
	case err != nil:
		return nil, s.storeErr("load aggregate", err)
	}
	return agg, nil
}

// Streaks returns the user's streak per category.
func (s *Service) Streaks(ctx context.Context, userID string) (map[domain.Category]domain.StreakState, error) {
	agg, err := s.Aggregate(ctx, userID)
	if err != nil {
		return nil, err
	}
	return agg.Streaks, nil
}

// RewardsState returns the user's rewards.
func (s *Service) RewardsState(ctx context.Context, userID string) (domain.RewardsState, error) {
	agg, err := s.Aggregate(ctx, userID)
	if err != nil {
		return domain.RewardsState{}, err
	}
	return agg.Rewards, nil
}

// CombinedScore returns the user's weighted streak score.
func (s *Service) CombinedScore(ctx context.Context, userID string) (int64, error) {
	agg, err := s.Aggregate(ctx, userID)
	if err != nil {
		return 0, err
	}
	return s.streaks.CombinedScore(agg.Streaks), nil
}

// Leaderboard ranks every stored user on category. limit > 0 keeps only the
// best limit users.
func (s *Service) Leaderboard(ctx context.Context, category string, limit int) (v View, err error) {
	ctx, span := s.tracer.StartSpan(ctx, "engagement.leaderboard", map[string]string{"category": category})
	defer func() { s.tracer.EndSpan(span, err) }()

	bc, err := domain.ParseBoardCategory(category)
	if err != nil {
		return View{}, err
	}
	if limit < 0 {
		return View{}, domain.Invalid("limit", "must not be negative, got %d", limit)
	}

	start := time.Now()
	aggs, err := s.store.ListUserAggregates(ctx)
	if err != nil {
		return View{}, s.storeErr("list aggregates", err)
	}
	v, err = BuildLeaderboard(bc, s.streaks.EntriesFor(bc, aggs, limit))
	observability.LeaderboardBuildSeconds.WithLabelValues(string(bc)).Observe(time.Since(start).Seconds())
	v.Population = len(aggs)
	return v, err
}

// GameLeaderboard returns the stored top-K board for gameID.
func (s *Service) GameLeaderboard(ctx context.Context, gameID string) (domain.GameLeaderboard, error) {
	if gameID == "" {
		return domain.GameLeaderboard{}, domain.Invalid("gameId", "must not be empty")
	}
	board, err := s.store.LoadGameLeaderboard(ctx, gameID)
	if err != nil {
		return domain.GameLeaderboard{}, s.storeErr("load game leaderboard", err)
	}
	board.GameID = gameID
	if board.Entries == nil {
		board.Entries = []domain.GameScore{}
	}
	return board, nil
}

// ─── Internals ──────────────────────────────────────────────────────────────

// lock pins and locks userID's session. The returned func undoes both.
func (s *Service) lock(userID string) (*session, func()) {
	sess := s.sessions.acquire(userID, true)
	sess.mu.Lock()
	return sess, func() {
		sess.mu.Unlock()
		s.sessions.release(sess)
	}
}

// load returns a private copy of the cached aggregate. The copy is served
// only while the store still holds its revision; otherwise, or when the
// session is not Loaded, it reads through. Caller holds sess.mu.
func (s *Service) load(ctx context.Context, sess *session, userID string) (*domain.UserAggregate, error) {
	if sess.state == Loaded {
		rev, err := s.store.UserRevision(ctx, userID)
		switch {
		case err == nil && rev == sess.agg.Revision:
			return sess.agg.Clone(), nil
		case errors.Is(err, domain.ErrUserNotFound) && sess.agg.Revision == 0:
			return sess.agg.Clone(), nil
		case err != nil && !errors.Is(err, domain.ErrUserNotFound):
			sess.state = Failed
			sess.agg = nil
			return nil, s.storeErr("load revision", err)
		}
		observability.SessionsStale.Inc()
		s.log.Debug().Str("user", userID).Int64("cached", sess.agg.Revision).Int64("stored", rev).Msg("cached aggregate is stale")
	}

	sess.state = Loading
	agg, err := s.store.LoadUserAggregate(ctx, userID)
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		agg = s.fresh(userID)
	case err != nil:
		sess.state = Failed
		sess.agg = nil
		return nil, s.storeErr("load aggregate", err)
	}
	sess.state = Loaded
	sess.agg = agg
	return agg.Clone(), nil
}

func (s *Service) fresh(userID string) *domain.UserAggregate {
	agg := domain.NewUserAggregate(userID, "", s.rewards.curve.Threshold(2))
	agg.CreatedAt = s.now()
	return agg
}

// save writes agg and, on success, makes it the cached copy.
// Caller holds sess.mu.
func (s *Service) save(ctx context.Context, sess *session, agg *domain.UserAggregate) error {
	if err := s.store.SaveUserAggregate(ctx, agg); err != nil {
		sess.drop()
		return s.storeErr("save aggregate", err)
	}
	sess.state = Loaded
	sess.agg = agg.Clone()
	return nil
}

// grant applies xp with facts derived from agg and journals currency earnings.
func (s *Service) grant(agg *domain.UserAggregate, xp int64, reason string) (Outcome, error) {
	next, out, err := s.rewards.ApplyXPWithFacts(agg.Rewards, xp, s.facts(agg))
	if err != nil {
		return Outcome{}, err
	}
	agg.Rewards = next
	if out.CoinsAwarded > 0 {
		s.journal(agg, domain.TxEarn, domain.CurrencyCoins, out.CoinsAwarded, reason, next.Coins)
	}
	if out.PointsAwarded > 0 {
		s.journal(agg, domain.TxEarn, domain.CurrencyPoints, out.PointsAwarded, reason, next.Points)
	}
	return out, nil
}

// facts exposes streak and counter metrics to badge criteria.
func (s *Service) facts(agg *domain.UserAggregate) Facts {
	f := make(Facts, 3*len(domain.StreakCategories)+2)
	for _, c := range domain.StreakCategories {
		st := agg.Streaks[c]
		f["streak."+string(c)] = int64(st.Current)
		f["longest."+string(c)] = int64(st.Longest)
	}
	for c, v := range agg.Counters {
		f["count."+string(c)] = clampCount(v)
	}
	f["combined"] = s.streaks.CombinedScore(agg.Streaks)
	f["streak.best"] = int64(BestCurrent(agg.Streaks))
	return f
}

// addCounter adds delta to category's counter. A total too large to
// represent is rejected on field rather than stored.
func addCounter(agg *domain.UserAggregate, c domain.Category, delta float64, field string) error {
	next := agg.Counters[c] + delta
	if math.IsInf(next, 0) || math.IsNaN(next) {
		return domain.Invalid(field, "would push the %s counter past the largest representable value", c)
	}
	agg.Counters[c] = next
	return nil
}

// clampCount converts a counter to int64, saturating at MaxInt64.
func clampCount(v float64) int64 {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= math.MaxInt64:
		return math.MaxInt64
	}
	return int64(v)
}

func (s *Service) journal(agg *domain.UserAggregate, typ domain.TransactionType, cur domain.Currency, amount int64, reason string, balance int64) {
	agg.Wallet.Append(domain.LedgerEntry{
		ID:        s.newID(),
		Timestamp: s.now(),
		Type:      typ,
		Currency:  cur,
		Amount:    amount,
		Reason:    reason,
		Balance:   balance,
	})
}

// announce publishes notifications and counters for a committed outcome.
func (s *Service) announce(ctx context.Context, userID string, out Outcome) {
	observability.XPAwarded.Add(float64(out.XPAwarded))
	now := s.now()
	var notes []domain.Notification
	if out.LeveledUp {
		observability.LevelUps.Inc()
		notes = append(notes, domain.Notification{Type: domain.NotifyLevelUp, UserID: userID, Level: out.ToLevel, Timestamp: now})
		s.log.Info().Str("user", userID).Int("from", out.FromLevel).Int("to", out.ToLevel).Msg("level up")
	}
	for _, b := range out.NewBadges {
		observability.BadgesUnlocked.WithLabelValues(string(b)).Inc()
		notes = append(notes, domain.Notification{Type: domain.NotifyBadgeUnlocked, UserID: userID, Badge: b, Timestamp: now})
	}
	for _, t := range out.NewTitles {
		notes = append(notes, domain.Notification{Type: domain.NotifyTitleUnlocked, UserID: userID, Title: t, Timestamp: now})
	}
	for _, n := range notes {
		s.notify(ctx, n)
	}
}

func (s *Service) notify(ctx context.Context, n domain.Notification) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, n)
	}
}

// storeErr wraps a store failure and counts it.
func (s *Service) storeErr(op string, err error) error {
	var ve *domain.ValidationError
	var nu *domain.NotUnlockedError
	if errors.As(err, &ve) || errors.As(err, &nu) {
		return err
	}
	if errors.Is(err, domain.ErrConflict) {
		observability.StoreConflicts.Inc()
	}
	observability.StoreErrors.WithLabelValues(op).Inc()
	s.log.Warn().Err(err).Str("op", op).Msg("store operation failed")
	return domain.Persist(op, err)
}
