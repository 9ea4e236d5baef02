// Package engagement implements the progression engines: streak tracking,
// leaderboard ranking, XP/level rewards and game score submission, plus the
// Service that runs them against a persisted per-user aggregate.
//
// The engines are pure value transitions. They never lock, block, or touch
// storage; the Service owns load → transition → save.
package engagement

import (
	"slices"

	"github.com/eduverse-ninja/dojo/internal/domain"
)

// ─── Streak Tracker ─────────────────────────────────────────────────────────
// One StreakState per user × category.
//
//	no previous activity  → current = 1
//	same day              → no change (idempotent replay)
//	next day              → current + 1
//	gap of 2+ days        → current = 1 (broken, restarts at 1 not 0)
//	earlier than last day → no change (out-of-order delivery)
//
// A gap is bridged instead of broken when the missed days fit in the grace
// window plus the freezes held. Freezes are spent only for days past grace.
// A broken run can be bought back with RecoverStreak until the streak next
// changes.

// StreakConfig controls history retention, the combined score and the
// streak economy.
type StreakConfig struct {
	RetentionDays int   // history window in days (default 365)
	CurrentWeight int64 // combined score weight per current-streak day
	LongestWeight int64 // combined score weight per longest-streak day

	GraceDays    int   // missed days forgiven for free (default 0)
	FreezeLimit  int   // freezes a streak may hold; 0 disables freezes
	FreezeCost   int64 // coins per freeze
	RecoveryCost int64 // coins to restore a broken run
}

// DefaultStreakConfig returns the production defaults.
func DefaultStreakConfig() StreakConfig {
	return StreakConfig{
		RetentionDays: 365,
		CurrentWeight: 10,
		LongestWeight: 1,
		FreezeLimit:   2,
		FreezeCost:    50,
		RecoveryCost:  100,
	}
}

// StreakTracker applies activity dates to streak states.
type StreakTracker struct {
	cfg StreakConfig
}

// NewStreakTracker creates a tracker.
func NewStreakTracker(cfg StreakConfig) *StreakTracker {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = DefaultStreakConfig().RetentionDays
	}
	cfg.GraceDays = max(cfg.GraceDays, 0)
	cfg.FreezeLimit = max(cfg.FreezeLimit, 0)
	return &StreakTracker{cfg: cfg}
}

// RecoveryCost is the coin price of RecoverStreak.
func (t *StreakTracker) RecoveryCost() int64 { return t.cfg.RecoveryCost }

// FreezeCost is the coin price of one freeze.
func (t *StreakTracker) FreezeCost() int64 { return t.cfg.FreezeCost }

// RecordActivity returns the state after activity on date, and whether it
// changed. The input state is never modified.
func (t *StreakTracker) RecordActivity(state domain.StreakState, date domain.Date) (domain.StreakState, bool, error) {
	if !date.Valid() {
		return state, false, domain.Invalid("occurredOn", "missing or invalid calendar date")
	}

	next := state.Clone()
	next.Broken = 0
	if next.LastActive == nil {
		next.Current = 1
	} else {
		gap := date.DaysSince(*next.LastActive)
		if gap <= 0 {
			return state, false, nil
		}
		missed := gap - 1 - t.cfg.GraceDays
		switch {
		case missed <= 0:
			next.Current++
		case missed <= next.Freezes:
			next.Freezes -= missed
			next.Current++
		default:
			next.Broken = next.Current
			next.Current = 1
		}
	}

	next.Longest = max(next.Longest, next.Current)
	d := date
	next.LastActive = &d
	next.History = t.addHistory(next.History, date)
	return next, true, nil
}

// AddFreeze stocks one more freeze, up to the configured limit.
func (t *StreakTracker) AddFreeze(state domain.StreakState) (domain.StreakState, error) {
	if t.cfg.FreezeLimit == 0 {
		return state, domain.Invalid("freezes", "streak freezes are disabled")
	}
	if state.Freezes >= t.cfg.FreezeLimit {
		return state, domain.Invalid("freezes", "limit of %d reached", t.cfg.FreezeLimit)
	}
	next := state.Clone()
	next.Freezes++
	return next, nil
}

// Recover joins the run lost at the last reset onto the current one.
func (t *StreakTracker) Recover(state domain.StreakState) (domain.StreakState, error) {
	if state.Broken == 0 {
		return state, domain.Invalid("streak", "no broken streak to recover")
	}
	next := state.Clone()
	next.Current += next.Broken
	next.Broken = 0
	next.Longest = max(next.Longest, next.Current)
	return next, nil
}

// addHistory inserts date and evicts entries outside the retention window,
// measured back from the newest retained date.
func (t *StreakTracker) addHistory(history []domain.Date, date domain.Date) []domain.Date {
	cmp := func(a, b domain.Date) int { return a.DaysSince(b) }
	if i, found := slices.BinarySearchFunc(history, date, cmp); !found {
		history = slices.Insert(history, i, date)
	}

	newest := history[len(history)-1]
	cutoff := newest.AddDays(-(t.cfg.RetentionDays - 1))
	drop, _ := slices.BinarySearchFunc(history, cutoff, cmp)
	if drop > 0 {
		history = slices.Clone(history[drop:])
	}
	return history
}

// CombinedScore is the weighted sum of current and longest streaks across all
// streak categories.
func (t *StreakTracker) CombinedScore(streaks map[domain.Category]domain.StreakState) int64 {
	var score int64
	for _, c := range domain.StreakCategories {
		s := streaks[c]
		score += t.cfg.CurrentWeight*int64(s.Current) + t.cfg.LongestWeight*int64(s.Longest)
	}
	return score
}

// BestCurrent returns the highest current streak across categories.
func BestCurrent(streaks map[domain.Category]domain.StreakState) int {
	best := 0
	for _, c := range domain.StreakCategories {
		best = max(best, streaks[c].Current)
	}
	return best
}
