// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of clean architecture; it depends on nothing.
package domain

import (
	"math"
	"slices"
	"strings"
	"time"
)

// ─── Activity Categories ────────────────────────────────────────────────────

// Category classifies an activity event.
type Category string

const (
	CategoryLogin     Category = "login"
	CategoryTools     Category = "tools"
	CategoryJournal   Category = "journal"
	CategoryCommunity Category = "community"
	CategoryFunzone   Category = "funzone"
	CategoryGame      Category = "game"
)

// StreakCategories are the categories that keep their own streak.
// Game events count toward the funzone streak.
var StreakCategories = []Category{
	CategoryLogin,
	CategoryTools,
	CategoryJournal,
	CategoryCommunity,
	CategoryFunzone,
}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case CategoryLogin, CategoryTools, CategoryJournal, CategoryCommunity, CategoryFunzone, CategoryGame:
		return c, nil
	}
	return "", Invalid("category", "unknown category %q", s)
}

// StreakCategory maps an event category onto the streak it feeds.
func (c Category) StreakCategory() Category {
	if c == CategoryGame {
		return CategoryFunzone
	}
	return c
}

// ─── Activity Events ────────────────────────────────────────────────────────

// ActivityEvent is an immutable fact emitted by the UI layer and consumed
// exactly once by the engine.
type ActivityEvent struct {
	UserID      string   `json:"user_id"`
	Category    Category `json:"category"`
	OccurredOn  Date     `json:"occurred_on"`
	MetricDelta float64  `json:"metric_delta"`
	GameID      string   `json:"game_id,omitempty"`
}

// Validate checks every field; the first problem wins.
func (e ActivityEvent) Validate() error {
	if e.UserID == "" {
		return Invalid("userId", "must not be empty")
	}
	if _, err := ParseCategory(string(e.Category)); err != nil {
		return err
	}
	if !e.OccurredOn.Valid() {
		return Invalid("occurredOn", "missing or invalid calendar date")
	}
	if math.IsNaN(e.MetricDelta) || math.IsInf(e.MetricDelta, 0) {
		return Invalid("metricDelta", "must be finite")
	}
	if e.MetricDelta < 0 {
		return Invalid("metricDelta", "must not be negative, got %v", e.MetricDelta)
	}
	if e.Category == CategoryGame && e.GameID == "" {
		return Invalid("gameId", "required for game activity")
	}
	return nil
}

// ─── Streaks ────────────────────────────────────────────────────────────────

// StreakState tracks consecutive-day activity for one user × category.
// Invariant: Longest >= Current.
type StreakState struct {
	Current    int    `json:"current"`
	Longest    int    `json:"longest"`
	LastActive *Date  `json:"last_active"`
	History    []Date `json:"history"` // sorted ascending, no duplicates

	// Freezes held; each one covers a single missed day.
	Freezes int `json:"freezes,omitempty"`
	// Broken is the run lost at the last reset. It can be bought back until
	// the streak changes again.
	Broken int `json:"broken,omitempty"`
}

// Clone returns a deep copy.
func (s StreakState) Clone() StreakState {
	out := s
	if s.LastActive != nil {
		d := *s.LastActive
		out.LastActive = &d
	}
	out.History = slices.Clone(s.History)
	return out
}

func compareDates(a, b Date) int { return a.DaysSince(b) }

// ─── Rewards ────────────────────────────────────────────────────────────────

// DefaultTitle is unlocked for every new user.
const DefaultTitle = "Novice"

// BadgeID identifies a catalog badge.
type BadgeID string

// RewardsState is a user's XP, level, currencies and collectibles.
// Sets are kept as sorted slices so snapshots compare and serialize stably.
type RewardsState struct {
	XP             int64     `json:"xp"`
	Level          int       `json:"level"`
	NextLevelXP    int64     `json:"next_level_xp"`
	Coins          int64     `json:"coins"`
	Points         int64     `json:"points"`
	UnlockedTitles []string  `json:"unlocked_titles"`
	CurrentTitle   string    `json:"current_title"`
	Badges         []BadgeID `json:"badges"`
	Medals         []Medal   `json:"medals,omitempty"` // sorted by kind
}

// NewRewardsState returns the level-1 starting state.
func NewRewardsState(nextLevelXP int64) RewardsState {
	return RewardsState{
		Level:          1,
		NextLevelXP:    nextLevelXP,
		UnlockedTitles: []string{DefaultTitle},
		CurrentTitle:   DefaultTitle,
		Badges:         []BadgeID{},
	}
}

// Clone returns a deep copy.
func (r RewardsState) Clone() RewardsState {
	out := r
	out.UnlockedTitles = slices.Clone(r.UnlockedTitles)
	out.Badges = slices.Clone(r.Badges)
	out.Medals = slices.Clone(r.Medals)
	return out
}

// HasTitle reports whether title is unlocked.
func (r RewardsState) HasTitle(title string) bool {
	_, ok := slices.BinarySearch(r.UnlockedTitles, title)
	return ok
}

// HasBadge reports whether the badge is owned.
func (r RewardsState) HasBadge(id BadgeID) bool {
	_, ok := slices.BinarySearch(r.Badges, id)
	return ok
}

// AddTitle inserts title keeping the set sorted. No-op when present.
func (r *RewardsState) AddTitle(title string) bool {
	i, ok := slices.BinarySearch(r.UnlockedTitles, title)
	if ok {
		return false
	}
	r.UnlockedTitles = slices.Insert(r.UnlockedTitles, i, title)
	return true
}

// AddBadge inserts id keeping the set sorted. No-op when present.
func (r *RewardsState) AddBadge(id BadgeID) bool {
	i, ok := slices.BinarySearch(r.Badges, id)
	if ok {
		return false
	}
	r.Badges = slices.Insert(r.Badges, i, id)
	return true
}

// AddMedal counts n more medals of kind. n <= 0 is a no-op.
func (r *RewardsState) AddMedal(kind MedalKind, n int64) {
	if n <= 0 {
		return
	}
	i, ok := slices.BinarySearchFunc(r.Medals, kind, func(m Medal, k MedalKind) int {
		return strings.Compare(string(m.Kind), string(k))
	})
	if !ok {
		r.Medals = slices.Insert(r.Medals, i, Medal{Kind: kind})
	}
	if r.Medals[i].Count > math.MaxInt64-n {
		r.Medals[i].Count = math.MaxInt64
		return
	}
	r.Medals[i].Count += n
}

// MedalCount returns the total number of medals of every kind.
func (r RewardsState) MedalCount() int64 {
	var n int64
	for _, m := range r.Medals {
		if n > math.MaxInt64-m.Count {
			return math.MaxInt64
		}
		n += m.Count
	}
	return n
}

// ─── Medals ─────────────────────────────────────────────────────────────────

// MedalKind names a podium finish on a game board.
type MedalKind string

const (
	MedalGold   MedalKind = "gold"
	MedalSilver MedalKind = "silver"
	MedalBronze MedalKind = "bronze"
)

// PodiumMedals maps game board positions 1..3 to medals.
var PodiumMedals = []MedalKind{MedalGold, MedalSilver, MedalBronze}

// Medal counts how many times a user finished on one podium spot.
type Medal struct {
	Kind  MedalKind `json:"kind"`
	Count int64     `json:"count"`
}

// ─── Badge Catalog ──────────────────────────────────────────────────────────

// Criterion unlocks a badge once Metric reaches Threshold.
// Metrics: "level", "xp", "coins", "points", "badges", "medals", or a fact key such as
// "streak.login", "longest.journal", "count.tools", "combined".
type Criterion struct {
	Metric    string `json:"metric" toml:"metric"`
	Threshold int64  `json:"threshold" toml:"threshold"`
}

// BadgeDef is static catalog data; read-only to the engine.
type BadgeDef struct {
	ID          BadgeID   `json:"id" toml:"id"`
	Name        string    `json:"name" toml:"name"`
	Type        string    `json:"type" toml:"type"`
	Icon        string    `json:"icon,omitempty" toml:"icon"`
	Description string    `json:"description,omitempty" toml:"description"`
	Criterion   Criterion `json:"criterion" toml:"criterion"`
	GrantsTitle string    `json:"grants_title,omitempty" toml:"grants_title"`
}

// ─── Games ──────────────────────────────────────────────────────────────────

// GameStatus mirrors the admin toggle for a mini-game.
type GameStatus string

const (
	GameActive      GameStatus = "active"
	GameMaintenance GameStatus = "maintenance"
)

// GameDef is a mini-game catalog entry.
type GameDef struct {
	ID       string     `json:"id" toml:"id"`
	Name     string     `json:"name" toml:"name"`
	Category string     `json:"category,omitempty" toml:"category"`
	Status   GameStatus `json:"status" toml:"status"`
	XPRatio  float64    `json:"xp_ratio,omitempty" toml:"xp_ratio"` // XP per score point; 0 = default
}

// GameScore is one row on a per-game leaderboard.
type GameScore struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Score       float64   `json:"score"`
	Date        Date      `json:"date"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// GameLeaderboard keeps the best K scores for one game, strictly ordered
// by score desc then submission time asc.
type GameLeaderboard struct {
	GameID  string      `json:"game_id"`
	Entries []GameScore `json:"entries"`
}

// Clone returns a deep copy.
func (b GameLeaderboard) Clone() GameLeaderboard {
	return GameLeaderboard{GameID: b.GameID, Entries: slices.Clone(b.Entries)}
}

// RecentScore is a user's own recent game result.
type RecentScore struct {
	GameID string    `json:"game_id"`
	Score  float64   `json:"score"`
	At     time.Time `json:"at"`
}

// MaxRecentScores bounds UserAggregate.RecentScores.
const MaxRecentScores = 10

// ─── User Aggregate ─────────────────────────────────────────────────────────

// UserAggregate is the persisted per-user document. One logical session
// owns it at a time; the store enforces that through Revision.
type UserAggregate struct {
	SchemaVersion int                      `json:"schema_version"`
	Revision      int64                    `json:"revision"`
	UserID        string                   `json:"user_id"`
	DisplayName   string                   `json:"display_name"`
	Streaks       map[Category]StreakState `json:"streaks"`
	Counters      map[Category]float64     `json:"counters"`
	Rewards       RewardsState             `json:"rewards"`
	Wallet        Wallet                   `json:"wallet"`
	RecentScores  []RecentScore            `json:"recent_scores"`
	CreatedAt     time.Time                `json:"created_at"`
	UpdatedAt     time.Time                `json:"updated_at"`
}

// NewUserAggregate returns a fresh aggregate at the current schema version.
func NewUserAggregate(userID, displayName string, nextLevelXP int64) *UserAggregate {
	a := &UserAggregate{
		SchemaVersion: CurrentSchemaVersion,
		UserID:        userID,
		DisplayName:   displayName,
		Rewards:       NewRewardsState(nextLevelXP),
	}
	a.Normalize(nextLevelXP)
	return a
}

// Clone returns a deep copy so transitions never touch the caller's snapshot.
func (a *UserAggregate) Clone() *UserAggregate {
	out := *a
	out.Streaks = make(map[Category]StreakState, len(a.Streaks))
	for c, s := range a.Streaks {
		out.Streaks[c] = s.Clone()
	}
	out.Counters = make(map[Category]float64, len(a.Counters))
	for c, v := range a.Counters {
		out.Counters[c] = v
	}
	out.Rewards = a.Rewards.Clone()
	out.Wallet = Wallet{Transactions: slices.Clone(a.Wallet.Transactions)}
	out.RecentScores = slices.Clone(a.RecentScores)
	return &out
}

// Name returns the display name, falling back to the user id.
func (a *UserAggregate) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.UserID
}

// PushRecentScore prepends s and trims to MaxRecentScores.
func (a *UserAggregate) PushRecentScore(s RecentScore) {
	a.RecentScores = append([]RecentScore{s}, a.RecentScores...)
	if len(a.RecentScores) > MaxRecentScores {
		a.RecentScores = a.RecentScores[:MaxRecentScores]
	}
}
