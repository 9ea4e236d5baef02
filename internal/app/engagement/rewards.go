package engagement

import (
	"fmt"
	"math"
	"time"

	"github.com/eduverse-ninja/dojo/internal/domain"
)

// ─── Level Curve ────────────────────────────────────────────────────────────
// threshold(L) is the cumulative XP needed to reach level L; threshold(1) = 0.
// The first levels come from an explicit table. Past the table every level's
// step grows by StepGrowth over the previous step, so the curve is defined for
// every L >= 1. Arithmetic saturates at MaxInt64 instead of wrapping.

// maxLevel bounds the level search; saturation makes higher levels unreachable.
const maxLevel = 1 << 30

// CurveConfig is operator-tunable level curve data.
type CurveConfig struct {
	Table      []int64 // cumulative thresholds for levels 1..len(Table); Table[0] must be 0
	StepGrowth int64   // per-level step increase beyond the table
}

// DefaultCurveConfig returns the production curve: 0, 100, 250, 450, 700, 1000,
// then steps of 350, 400, 450...
func DefaultCurveConfig() CurveConfig {
	return CurveConfig{
		Table:      []int64{0, 100, 250, 450, 700, 1000},
		StepGrowth: 50,
	}
}

// Curve evaluates a validated CurveConfig.
type Curve struct {
	table    []int64
	growth   int64
	lastStep int64
}

// NewCurve validates cfg: the table must start at 0 and strictly increase,
// and the extrapolated steps must be positive.
func NewCurve(cfg CurveConfig) (*Curve, error) {
	table := cfg.Table
	if len(table) == 0 {
		table = []int64{0}
	}
	if table[0] != 0 {
		return nil, fmt.Errorf("level curve: threshold for level 1 must be 0, got %d", table[0])
	}
	for i := 1; i < len(table); i++ {
		if table[i] <= table[i-1] {
			return nil, fmt.Errorf("level curve: threshold for level %d (%d) must exceed level %d (%d)", i+1, table[i], i, table[i-1])
		}
	}
	if cfg.StepGrowth < 0 {
		return nil, fmt.Errorf("level curve: step growth must not be negative, got %d", cfg.StepGrowth)
	}

	c := &Curve{table: append([]int64(nil), table...), growth: cfg.StepGrowth}
	if n := len(table); n > 1 {
		c.lastStep = table[n-1] - table[n-2]
	}
	if c.lastStep+c.growth < 1 {
		return nil, fmt.Errorf("level curve: levels beyond the table would never be reachable; set step_growth > 0")
	}
	return c, nil
}

// Threshold returns the cumulative XP needed for level.
func (c *Curve) Threshold(level int) int64 {
	if level <= 1 {
		return 0
	}
	n := len(c.table)
	if level <= n {
		return c.table[level-1]
	}

	// m levels past the table: m*lastStep + growth*m(m+1)/2
	m := int64(level - n)
	tri := satMul(m, m+1) / 2
	if tri == math.MaxInt64/2 {
		tri = math.MaxInt64
	}
	return satAdd(c.table[n-1], satAdd(satMul(m, c.lastStep), satMul(c.growth, tri)))
}

// LevelFor returns the largest level whose threshold is <= xp.
func (c *Curve) LevelFor(xp int64) int {
	if xp <= 0 {
		return 1
	}
	// Grow exponentially to an upper bound, then binary search.
	lo, hi := 1, 2
	for hi < maxLevel && c.Threshold(hi) <= xp {
		lo, hi = hi, hi*2
	}
	for lo+1 < hi {
		mid := lo + (hi-lo)/2
		if c.Threshold(mid) <= xp {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo
}

func satAdd(a, b int64) int64 {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

func satMul(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	if a > math.MaxInt64/b {
		return math.MaxInt64
	}
	return a * b
}

// ─── Payout Rule ────────────────────────────────────────────────────────────
// Coins and points are a parallel rule over the same XP delta, tuned
// independently of the level curve.

// PayoutConfig holds currency rates per XP point.
type PayoutConfig struct {
	CoinsPerXP  float64
	PointsPerXP float64
}

// DefaultPayoutConfig returns 1 coin per 10 XP and 1 point per XP.
func DefaultPayoutConfig() PayoutConfig {
	return PayoutConfig{CoinsPerXP: 0.1, PointsPerXP: 1}
}

// Payout converts an XP delta to (coins, points), rounding down.
func (p PayoutConfig) Payout(delta int64) (coins, points int64) {
	if delta <= 0 {
		return 0, 0
	}
	return int64(math.Floor(float64(delta) * p.CoinsPerXP)), int64(math.Floor(float64(delta) * p.PointsPerXP))
}

// ─── XP Boosts ──────────────────────────────────────────────────────────────
// Boosts scale a base grant before it reaches ApplyXP, so the level curve and
// payout never see anything but the final delta. Factors multiply:
//
//	login on a running streak (current >= 2)  × LoginStreak
//	game score                                × Game
//	Saturday or Sunday with DoubleXPWeekend   × 2

// BoostConfig holds operator-tunable XP multipliers. A zero factor means 1.
type BoostConfig struct {
	LoginStreak     float64
	Game            float64
	DoubleXPWeekend bool
}

// Multiplier returns the combined factor for a grant in category, earned on
// day by a user whose streak in that category is now streak.
func (b BoostConfig) Multiplier(c domain.Category, day domain.Date, streak int) float64 {
	m := 1.0
	if c == domain.CategoryLogin && streak >= 2 && b.LoginStreak > 0 {
		m *= b.LoginStreak
	}
	if c == domain.CategoryGame && b.Game > 0 {
		m *= b.Game
	}
	if b.DoubleXPWeekend {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			m *= 2
		}
	}
	return m
}

// Boost scales base by the multiplier, rounding down and saturating.
func (b BoostConfig) Boost(base int64, c domain.Category, day domain.Date, streak int) int64 {
	m := b.Multiplier(c, day, streak)
	if m == 1 || base <= 0 {
		return base
	}
	xp := math.Floor(float64(base) * m)
	if xp >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(xp)
}

// ─── Rewards Engine ─────────────────────────────────────────────────────────

// Facts are externally derived metrics visible to badge criteria,
// e.g. "streak.login" or "count.journal".
type Facts map[string]int64

// RewardsConfig configures the engine.
type RewardsConfig struct {
	Curve      CurveConfig
	Payout     PayoutConfig
	Badges     []domain.BadgeDef
	ActivityXP map[domain.Category]int64
	Boosts     BoostConfig
}

// DefaultActivityXP is the XP granted per activity event.
func DefaultActivityXP() map[domain.Category]int64 {
	return map[domain.Category]int64{
		domain.CategoryLogin:     10,
		domain.CategoryTools:     5,
		domain.CategoryJournal:   20,
		domain.CategoryCommunity: 15,
		domain.CategoryFunzone:   5,
	}
}

// Outcome describes what one ApplyXP call did.
type Outcome struct {
	XPAwarded     int64            `json:"xp_awarded"`
	CoinsAwarded  int64            `json:"coins_awarded"`
	PointsAwarded int64            `json:"points_awarded"`
	LeveledUp     bool             `json:"leveled_up"`
	FromLevel     int              `json:"from_level"`
	ToLevel       int              `json:"to_level"`
	NewBadges     []domain.BadgeID `json:"new_badges,omitempty"`
	NewTitles     []string         `json:"new_titles,omitempty"`
}

// RewardsEngine converts XP into levels, currencies and collectibles.
type RewardsEngine struct {
	curve      *Curve
	payout     PayoutConfig
	badges     []domain.BadgeDef
	activityXP map[domain.Category]int64
	boosts     BoostConfig
}

// NewRewardsEngine validates cfg and builds an engine.
func NewRewardsEngine(cfg RewardsConfig) (*RewardsEngine, error) {
	curve, err := NewCurve(cfg.Curve)
	if err != nil {
		return nil, err
	}
	if cfg.Payout.CoinsPerXP < 0 || cfg.Payout.PointsPerXP < 0 {
		return nil, fmt.Errorf("payout rates must not be negative")
	}
	if cfg.Boosts.LoginStreak < 0 || cfg.Boosts.Game < 0 {
		return nil, fmt.Errorf("boost multipliers must not be negative")
	}
	seen := make(map[domain.BadgeID]bool, len(cfg.Badges))
	for _, b := range cfg.Badges {
		if b.ID == "" || b.Criterion.Metric == "" {
			return nil, fmt.Errorf("badge %q: id and criterion metric are required", b.Name)
		}
		if seen[b.ID] {
			return nil, fmt.Errorf("badge %q defined twice", b.ID)
		}
		seen[b.ID] = true
	}
	activityXP := cfg.ActivityXP
	if activityXP == nil {
		activityXP = DefaultActivityXP()
	}
	return &RewardsEngine{
		curve:      curve,
		payout:     cfg.Payout,
		badges:     append([]domain.BadgeDef(nil), cfg.Badges...),
		activityXP: activityXP,
		boosts:     cfg.Boosts,
	}, nil
}

// Curve exposes the level curve.
func (e *RewardsEngine) Curve() *Curve { return e.curve }

// Badges returns the catalog.
func (e *RewardsEngine) Badges() []domain.BadgeDef { return e.badges }

// InitialState is the level-1 state under this curve.
func (e *RewardsEngine) InitialState() domain.RewardsState {
	return domain.NewRewardsState(e.curve.Threshold(2))
}

// ActivityXP returns the XP granted for one activity in category.
func (e *RewardsEngine) ActivityXP(c domain.Category) int64 {
	return e.activityXP[c]
}

// Boost applies the configured multipliers to a base grant.
func (e *RewardsEngine) Boost(base int64, c domain.Category, day domain.Date, streak int) int64 {
	return e.boosts.Boost(base, c, day, streak)
}

// ApplyXP adds delta XP with no external facts.
func (e *RewardsEngine) ApplyXP(state domain.RewardsState, delta int64) (domain.RewardsState, Outcome, error) {
	return e.ApplyXPWithFacts(state, delta, nil)
}

// ApplyXPWithFacts adds delta XP, recomputes level and next threshold, pays
// out currencies and unlocks any badge whose criterion newly holds. Levels
// never go down, even if the curve was retuned since the last call.
// currentTitle is never changed here.
func (e *RewardsEngine) ApplyXPWithFacts(state domain.RewardsState, delta int64, facts Facts) (domain.RewardsState, Outcome, error) {
	if delta < 0 {
		return state, Outcome{}, domain.Invalid("delta", "must not be negative, got %d", delta)
	}

	next := state.Clone()
	next.XP = satAdd(next.XP, delta)
	next.Level = max(next.Level, e.curve.LevelFor(next.XP))
	next.NextLevelXP = e.curve.Threshold(next.Level + 1)

	coins, points := e.payout.Payout(delta)
	next.Coins = satAdd(next.Coins, coins)
	next.Points = satAdd(next.Points, points)

	out := Outcome{
		XPAwarded:     delta,
		CoinsAwarded:  coins,
		PointsAwarded: points,
		FromLevel:     state.Level,
		ToLevel:       next.Level,
		LeveledUp:     next.Level > state.Level,
	}
	out.NewBadges, out.NewTitles = e.unlock(&next, facts)
	return next, out, nil
}

// unlock evaluates every catalog criterion against state. Criteria are
// monotone thresholds, so evaluating on each call keeps split and combined XP
// grants equivalent.
func (e *RewardsEngine) unlock(state *domain.RewardsState, facts Facts) ([]domain.BadgeID, []string) {
	var badges []domain.BadgeID
	var titles []string
	for _, b := range e.badges {
		if state.HasBadge(b.ID) {
			continue
		}
		if metricValue(*state, facts, b.Criterion.Metric) < b.Criterion.Threshold {
			continue
		}
		state.AddBadge(b.ID)
		badges = append(badges, b.ID)
		if b.GrantsTitle != "" && state.AddTitle(b.GrantsTitle) {
			titles = append(titles, b.GrantsTitle)
		}
	}
	return badges, titles
}

func metricValue(s domain.RewardsState, facts Facts, metric string) int64 {
	switch metric {
	case "level":
		return int64(s.Level)
	case "xp":
		return s.XP
	case "coins":
		return s.Coins
	case "points":
		return s.Points
	case "badges":
		return int64(len(s.Badges))
	case "medals":
		return s.MedalCount()
	}
	return facts[metric]
}

// Progress returns percent progress from the current level to the next.
func (e *RewardsEngine) Progress(s domain.RewardsState) float64 {
	floor := e.curve.Threshold(s.Level)
	span := s.NextLevelXP - floor
	if span <= 0 {
		return 100
	}
	pct := float64(s.XP-floor) / float64(span) * 100
	return math.Max(0, math.Min(100, pct))
}

// EquipTitle makes title the current title. Only unlocked titles can be worn.
func (e *RewardsEngine) EquipTitle(state domain.RewardsState, title string) (domain.RewardsState, error) {
	if title == "" {
		return state, domain.Invalid("title", "must not be empty")
	}
	if !state.HasTitle(title) {
		return state, &domain.NotUnlockedError{Title: title}
	}
	next := state.Clone()
	next.CurrentTitle = title
	return next, nil
}

// SpendCoins deducts amount from the coin balance.
func (e *RewardsEngine) SpendCoins(state domain.RewardsState, amount int64) (domain.RewardsState, error) {
	if amount <= 0 {
		return state, domain.Invalid("amount", "must be positive, got %d", amount)
	}
	if amount > state.Coins {
		return state, domain.Invalid("coins", "insufficient balance: have %d, need %d", state.Coins, amount)
	}
	next := state.Clone()
	next.Coins -= amount
	return next, nil
}
