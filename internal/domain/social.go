package domain

import "time"

// ─── Leaderboard Types ──────────────────────────────────────────────────────

// BoardCategory selects which scalar feeds a leaderboard's MetricValue.
// Categories are independent partitions; a view never mixes metrics.
type BoardCategory string

const (
	BoardOverall   BoardCategory = "overall"
	BoardXP        BoardCategory = "xp"
	BoardLevel     BoardCategory = "level"
	BoardStreak    BoardCategory = "streak"
	BoardCombined  BoardCategory = "combined"
	BoardJournal   BoardCategory = "journal"
	BoardTools     BoardCategory = "tools"
	BoardCommunity BoardCategory = "community"
	BoardFunzone   BoardCategory = "funzone"
	BoardBadges    BoardCategory = "badges"
	BoardMedals    BoardCategory = "medals"
)

// BoardCategories lists every supported leaderboard.
var BoardCategories = []BoardCategory{
	BoardOverall, BoardXP, BoardLevel, BoardStreak, BoardCombined,
	BoardJournal, BoardTools, BoardCommunity, BoardFunzone, BoardBadges,
	BoardMedals,
}

// ParseBoardCategory validates a leaderboard category.
func ParseBoardCategory(s string) (BoardCategory, error) {
	for _, c := range BoardCategories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", Invalid("category", "unknown leaderboard %q", s)
}

// LeaderboardEntry is a derived, ephemeral row fed to the aggregator.
type LeaderboardEntry struct {
	UserID      string  `json:"user_id"`
	DisplayName string  `json:"display_name"`
	MetricValue float64 `json:"metric_value"`
	Level       int     `json:"level"`
}

// RankedEntry is a LeaderboardEntry with its assigned rank.
type RankedEntry struct {
	LeaderboardEntry
	Rank int `json:"rank"`
}

// PodiumSize is the number of distinguished top slots.
const PodiumSize = 3

// PodiumSlot is one podium position. Empty slots are explicit, never nil.
type PodiumSlot struct {
	Empty bool         `json:"empty"`
	Entry *RankedEntry `json:"entry,omitempty"`
}

// ─── Notifications ──────────────────────────────────────────────────────────

// NotificationType classifies an engine side effect.
type NotificationType string

const (
	NotifyLevelUp       NotificationType = "level_up"
	NotifyBadgeUnlocked NotificationType = "badge_unlocked"
	NotifyTitleUnlocked NotificationType = "title_unlocked"
	NotifyMedalEarned   NotificationType = "medal_earned"
)

// Notification is emitted for UI and telemetry after a committed transition.
type Notification struct {
	Type      NotificationType `json:"type"`
	UserID    string           `json:"user_id"`
	Level     int              `json:"level,omitempty"`
	Badge     BadgeID          `json:"badge,omitempty"`
	Title     string           `json:"title,omitempty"`
	Medal     MedalKind        `json:"medal,omitempty"`
	GameID    string           `json:"game_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}
