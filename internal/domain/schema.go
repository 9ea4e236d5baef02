package domain

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// ─── Aggregate Schema ───────────────────────────────────────────────────────
// Version 0/1 documents are the realtime-database user records written by the
// old web client: camelCase keys, history as {date: true} objects, optional
// sub-trees. Version 2 is what the store writes today. Defaults are applied
// once, here, so nothing downstream null-checks.

// CurrentSchemaVersion is the aggregate layout written by this module.
const CurrentSchemaVersion = 2

// Normalize fills defaults in place. defaultNextLevelXP is used only when the
// document carries no next-level threshold.
func (a *UserAggregate) Normalize(defaultNextLevelXP int64) {
	a.SchemaVersion = CurrentSchemaVersion
	if a.Streaks == nil {
		a.Streaks = make(map[Category]StreakState, len(StreakCategories))
	}
	for _, c := range StreakCategories {
		s := a.Streaks[c]
		if s.History == nil {
			s.History = []Date{}
		}
		slices.SortFunc(s.History, compareDates)
		s.History = slices.Compact(s.History)
		if s.Longest < s.Current {
			s.Longest = s.Current
		}
		s.Freezes = max(s.Freezes, 0)
		s.Broken = max(s.Broken, 0)
		a.Streaks[c] = s
	}
	if a.Counters == nil {
		a.Counters = make(map[Category]float64)
	}

	r := &a.Rewards
	if r.Level < 1 {
		r.Level = 1
	}
	if r.NextLevelXP <= 0 {
		r.NextLevelXP = defaultNextLevelXP
	}
	if r.Badges == nil {
		r.Badges = []BadgeID{}
	}
	slices.Sort(r.Badges)
	r.Badges = slices.Compact(r.Badges)
	slices.Sort(r.UnlockedTitles)
	r.UnlockedTitles = slices.Compact(r.UnlockedTitles)
	r.AddTitle(DefaultTitle)
	if r.CurrentTitle == "" || !r.HasTitle(r.CurrentTitle) {
		r.CurrentTitle = DefaultTitle
	}
	if a.Wallet.Transactions == nil {
		a.Wallet.Transactions = []LedgerEntry{}
	}
	if a.RecentScores == nil {
		a.RecentScores = []RecentScore{}
	}
}

// DecodeAggregate parses any supported document version and normalizes it.
// userID is used when the document does not carry one (legacy records are
// keyed by uid outside the document).
func DecodeAggregate(data []byte, userID string, defaultNextLevelXP int64) (*UserAggregate, error) {
	var head struct {
		SchemaVersion int `json:"schema_version"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode aggregate %s: %w", userID, err)
	}

	var a *UserAggregate
	if head.SchemaVersion >= CurrentSchemaVersion {
		a = &UserAggregate{}
		if err := json.Unmarshal(data, a); err != nil {
			return nil, fmt.Errorf("decode aggregate %s: %w", userID, err)
		}
	} else {
		var err error
		if a, err = decodeLegacy(data); err != nil {
			return nil, fmt.Errorf("decode legacy aggregate %s: %w", userID, err)
		}
	}
	if a.UserID == "" {
		a.UserID = userID
	}
	a.Normalize(defaultNextLevelXP)
	return a, nil
}

// ─── Legacy (v0/v1) Layout ──────────────────────────────────────────────────

type legacyStreak struct {
	Current    int             `json:"current"`
	Longest    int             `json:"longest"`
	LastActive *string         `json:"lastActive"`
	History    json.RawMessage `json:"history"`
}

type legacyDocument struct {
	Username string                     `json:"username"`
	Streaks  map[string]json.RawMessage `json:"streaks"`
	Journal  struct {
		Entries json.RawMessage `json:"entries"`
	} `json:"journal"`
	Rewards struct {
		Coins          int64           `json:"coins"`
		Points         int64           `json:"points"`
		Level          int             `json:"level"`
		XP             int64           `json:"xp"`
		NextLevelXP    int64           `json:"nextLevelXp"`
		UnlockedTitles []string        `json:"unlockedTitles"`
		CurrentTitle   string          `json:"currentTitle"`
		Badges         json.RawMessage `json:"badges"`
		Medals         json.RawMessage `json:"medals"`
	} `json:"rewards"`
}

func decodeLegacy(data []byte) (*UserAggregate, error) {
	var doc legacyDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	a := &UserAggregate{
		DisplayName: doc.Username,
		Streaks:     make(map[Category]StreakState),
		Counters:    make(map[Category]float64),
		Rewards: RewardsState{
			XP:             doc.Rewards.XP,
			Level:          doc.Rewards.Level,
			NextLevelXP:    doc.Rewards.NextLevelXP,
			Coins:          doc.Rewards.Coins,
			Points:         doc.Rewards.Points,
			UnlockedTitles: doc.Rewards.UnlockedTitles,
			CurrentTitle:   doc.Rewards.CurrentTitle,
			Badges:         legacyBadges(doc.Rewards.Badges),
		},
	}
	for _, m := range legacyMedals(doc.Rewards.Medals) {
		a.Rewards.AddMedal(m.Kind, m.Count)
	}

	for _, c := range StreakCategories {
		raw, ok := doc.Streaks[string(c)]
		if !ok {
			continue
		}
		var ls legacyStreak
		if err := json.Unmarshal(raw, &ls); err != nil {
			return nil, fmt.Errorf("streak %s: %w", c, err)
		}
		s := StreakState{Current: ls.Current, Longest: ls.Longest, History: legacyDates(ls.History)}
		if ls.LastActive != nil {
			if d, ok := legacyDate(*ls.LastActive); ok {
				s.LastActive = &d
			}
		}
		a.Streaks[c] = s
	}

	if n := countCollection(doc.Journal.Entries); n > 0 {
		a.Counters[CategoryJournal] = float64(n)
	}
	return a, nil
}

// legacyDate accepts "2006-01-02" and full ISO timestamps.
func legacyDate(s string) (Date, bool) {
	if len(s) >= len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	d, err := ParseDate(s)
	return d, err == nil
}

// legacyDates accepts either {date: true} objects or [date] arrays.
func legacyDates(raw json.RawMessage) []Date {
	var keys []string
	var asMap map[string]json.RawMessage
	if err := json.Unmarshal(raw, &asMap); err == nil {
		for k, v := range asMap {
			if strings.TrimSpace(string(v)) != "false" {
				keys = append(keys, k)
			}
		}
	} else {
		_ = json.Unmarshal(raw, &keys)
	}

	out := make([]Date, 0, len(keys))
	for _, k := range keys {
		if d, ok := legacyDate(k); ok {
			out = append(out, d)
		}
	}
	return out
}

// legacyBadges accepts ["id", ...] or [{id, unlocked}, ...].
func legacyBadges(raw json.RawMessage) []BadgeID {
	if len(raw) == 0 {
		return nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err == nil {
		out := make([]BadgeID, 0, len(ids))
		for _, id := range ids {
			out = append(out, BadgeID(id))
		}
		return out
	}

	var objs []struct {
		ID       any   `json:"id"`
		Unlocked *bool `json:"unlocked"`
	}
	if err := json.Unmarshal(raw, &objs); err != nil {
		return nil
	}
	var out []BadgeID
	for _, o := range objs {
		if o.ID == nil || (o.Unlocked != nil && !*o.Unlocked) {
			continue
		}
		out = append(out, BadgeID(fmt.Sprint(o.ID)))
	}
	return out
}

// legacyMedals accepts [{id, name, icon, count}, ...]. The kind is the
// lowercased name, falling back to the id.
func legacyMedals(raw json.RawMessage) []Medal {
	if len(raw) == 0 {
		return nil
	}
	var objs []struct {
		ID    any    `json:"id"`
		Name  string `json:"name"`
		Count int64  `json:"count"`
	}
	if err := json.Unmarshal(raw, &objs); err != nil {
		return nil
	}
	var out []Medal
	for _, o := range objs {
		kind := strings.ToLower(strings.TrimSpace(o.Name))
		if kind == "" && o.ID != nil {
			kind = fmt.Sprint(o.ID)
		}
		if kind == "" || o.Count <= 0 {
			continue
		}
		out = append(out, Medal{Kind: MedalKind(kind), Count: o.Count})
	}
	return out
}

// countCollection counts children of a push-keyed object or an array.
func countCollection(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var asMap map[string]json.RawMessage
	if err := json.Unmarshal(raw, &asMap); err == nil {
		return len(asMap)
	}
	var asList []json.RawMessage
	if err := json.Unmarshal(raw, &asList); err == nil {
		return len(asList)
	}
	return 0
}
