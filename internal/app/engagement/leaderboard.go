package engagement

import (
	"cmp"
	"math"
	"slices"

	"github.com/eduverse-ninja/dojo/internal/domain"
	"github.com/eduverse-ninja/dojo/internal/infra/dsa"
)

// ─── Leaderboard Aggregator ─────────────────────────────────────────────────
// Ranking policy:
//   - metricValue descending, ties broken by userId ascending. Insertion order
//     carries no meaning, so the same input set always ranks the same way.
//   - ranks are sequential 1..N with no gaps and no sharing: tied values still
//     get distinct consecutive ranks.
//   - the first PodiumSize rows form the podium; missing podium rows are
//     explicit empty slots.

// View is one rendered leaderboard.
type View struct {
	Category domain.BoardCategory                 `json:"category"`
	Podium   [domain.PodiumSize]domain.PodiumSlot `json:"podium"`
	List     []domain.RankedEntry                 `json:"list"`
	Total    int                                  `json:"total"`

	// Population is the number of users the board was drawn from. It exceeds
	// Total when the view was cut to the best N.
	Population int `json:"population"`
}

// Page is a window over a view's full ranked sequence.
type Page struct {
	Entries []domain.RankedEntry `json:"entries"`
	Page    int                  `json:"page"`
	Size    int                  `json:"size"`
	Total   int                  `json:"total"`
	Pages   int                  `json:"pages"`
}

// compareEntries orders best-first.
func compareEntries(a, b domain.LeaderboardEntry) int {
	if c := cmp.Compare(b.MetricValue, a.MetricValue); c != 0 {
		return c
	}
	return cmp.Compare(a.UserID, b.UserID)
}

// BuildLeaderboard ranks entries for one category. Each call is an independent
// snapshot; the input slice is not modified. An empty input yields an empty
// podium and list.
func BuildLeaderboard(category domain.BoardCategory, entries []domain.LeaderboardEntry) (View, error) {
	for _, e := range entries {
		if math.IsNaN(e.MetricValue) || math.IsInf(e.MetricValue, 0) {
			return View{}, domain.Invalid("metricValue", "non-finite value for user %q", e.UserID)
		}
	}

	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, compareEntries)

	v := View{Category: category, Total: len(sorted), Population: len(sorted), List: []domain.RankedEntry{}}
	for i := range v.Podium {
		v.Podium[i] = domain.PodiumSlot{Empty: true}
	}
	for i, e := range sorted {
		ranked := domain.RankedEntry{LeaderboardEntry: e, Rank: i + 1}
		if i < domain.PodiumSize {
			v.Podium[i] = domain.PodiumSlot{Entry: &ranked}
			continue
		}
		v.List = append(v.List, ranked)
	}
	return v, nil
}

// Ranked returns podium and list concatenated in rank order.
func (v View) Ranked() []domain.RankedEntry {
	out := make([]domain.RankedEntry, 0, v.Total)
	for _, slot := range v.Podium {
		if !slot.Empty {
			out = append(out, *slot.Entry)
		}
	}
	return append(out, v.List...)
}

// Page returns the 1-based page of the given size. Out-of-range pages are
// empty rather than errors.
func (v View) Page(page, size int) (Page, error) {
	if page < 1 {
		return Page{}, domain.Invalid("page", "must be >= 1, got %d", page)
	}
	if size < 1 {
		return Page{}, domain.Invalid("size", "must be >= 1, got %d", size)
	}

	all := v.Ranked()
	p := Page{Page: page, Size: size, Total: len(all), Pages: (len(all) + size - 1) / size}
	start := (page - 1) * size
	if start >= len(all) {
		p.Entries = []domain.RankedEntry{}
		return p, nil
	}
	p.Entries = all[start:min(start+size, len(all))]
	return p, nil
}

// ─── Metric Selection ───────────────────────────────────────────────────────
// The caller picks the scalar before ranking; these helpers do that for the
// standard boards.

// MetricFor extracts category's scalar from an aggregate.
func (t *StreakTracker) MetricFor(category domain.BoardCategory, a *domain.UserAggregate) float64 {
	switch category {
	case domain.BoardOverall, domain.BoardXP:
		return float64(a.Rewards.XP)
	case domain.BoardLevel:
		return float64(a.Rewards.Level)
	case domain.BoardStreak:
		return float64(BestCurrent(a.Streaks))
	case domain.BoardCombined:
		return float64(t.CombinedScore(a.Streaks))
	case domain.BoardJournal:
		return a.Counters[domain.CategoryJournal]
	case domain.BoardTools:
		return a.Counters[domain.CategoryTools]
	case domain.BoardCommunity:
		return a.Counters[domain.CategoryCommunity]
	case domain.BoardFunzone:
		return a.Counters[domain.CategoryGame]
	case domain.BoardBadges:
		return float64(len(a.Rewards.Badges))
	case domain.BoardMedals:
		return float64(a.Rewards.MedalCount())
	}
	return 0
}

// EntriesFor projects aggregates onto category. With limit > 0 only the best
// limit entries are returned, selected with a bounded heap.
func (t *StreakTracker) EntriesFor(category domain.BoardCategory, aggs []*domain.UserAggregate, limit int) []domain.LeaderboardEntry {
	project := func(a *domain.UserAggregate) domain.LeaderboardEntry {
		return domain.LeaderboardEntry{
			UserID:      a.UserID,
			DisplayName: a.Name(),
			MetricValue: t.MetricFor(category, a),
			Level:       a.Rewards.Level,
		}
	}

	if limit <= 0 || limit >= len(aggs) {
		out := make([]domain.LeaderboardEntry, 0, len(aggs))
		for _, a := range aggs {
			out = append(out, project(a))
		}
		return out
	}

	top := dsa.NewTopK(limit, func(a, b domain.LeaderboardEntry) bool {
		return compareEntries(a, b) < 0
	})
	for _, a := range aggs {
		top.Offer(project(a))
	}
	return top.Sorted()
}
