package engagement

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/eduverse-ninja/dojo/internal/domain"
)

func testBadges() []domain.BadgeDef {
	return []domain.BadgeDef{
		{ID: "apprentice", Name: "Apprentice", Type: "level", Criterion: domain.Criterion{Metric: "level", Threshold: 2}, GrantsTitle: "Apprentice"},
		{ID: "streak-3", Name: "Three In A Row", Type: "streak", Criterion: domain.Criterion{Metric: "streak.login", Threshold: 3}},
		{ID: "xp-1000", Name: "Grinder", Type: "xp", Criterion: domain.Criterion{Metric: "xp", Threshold: 1000}, GrantsTitle: "Grinder"},
	}
}

func newTestEngine(t *testing.T) *RewardsEngine {
	t.Helper()
	e, err := NewRewardsEngine(RewardsConfig{
		Curve:  DefaultCurveConfig(),
		Payout: DefaultPayoutConfig(),
		Badges: testBadges(),
	})
	if err != nil {
		t.Fatalf("NewRewardsEngine: %v", err)
	}
	return e
}

// ─── Level Curve ────────────────────────────────────────────────────────────

func TestCurve_Thresholds(t *testing.T) {
	c, err := NewCurve(DefaultCurveConfig())
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		level int
		want  int64
	}{
		{0, 0}, {1, 0}, {2, 100}, {3, 250}, {6, 1000},
		{7, 1350}, // step 300 + 50
		{8, 1750}, // step 400
		{9, 2200}, // step 450
	}
	for _, tt := range tests {
		if got := c.Threshold(tt.level); got != tt.want {
			t.Errorf("Threshold(%d) = %d, want %d", tt.level, got, tt.want)
		}
	}
}

func TestCurve_StrictlyIncreasing(t *testing.T) {
	c, _ := NewCurve(DefaultCurveConfig())
	for l := 1; l < 500; l++ {
		if c.Threshold(l+1) <= c.Threshold(l) {
			t.Fatalf("Threshold(%d)=%d not above Threshold(%d)=%d", l+1, c.Threshold(l+1), l, c.Threshold(l))
		}
	}
}

func TestCurve_LevelFor(t *testing.T) {
	c, _ := NewCurve(DefaultCurveConfig())
	tests := []struct {
		xp   int64
		want int
	}{
		{-5, 1}, {0, 1}, {99, 1}, {100, 2}, {249, 2}, {250, 3},
		{999, 5}, {1000, 6}, {1349, 6}, {1350, 7}, {1750, 8},
	}
	for _, tt := range tests {
		if got := c.LevelFor(tt.xp); got != tt.want {
			t.Errorf("LevelFor(%d) = %d, want %d", tt.xp, got, tt.want)
		}
	}
}

func TestCurve_LevelForMatchesThreshold(t *testing.T) {
	c, _ := NewCurve(DefaultCurveConfig())
	for l := 1; l < 300; l++ {
		th := c.Threshold(l)
		if got := c.LevelFor(th); got != l {
			t.Fatalf("LevelFor(Threshold(%d)) = %d", l, got)
		}
		if l > 1 {
			if got := c.LevelFor(th - 1); got != l-1 {
				t.Fatalf("LevelFor(Threshold(%d)-1) = %d, want %d", l, got, l-1)
			}
		}
	}
}

func TestCurve_Saturates(t *testing.T) {
	c, _ := NewCurve(DefaultCurveConfig())
	if got := c.Threshold(math.MaxInt32); got <= 0 {
		t.Errorf("Threshold(MaxInt32) = %d, wrapped negative", got)
	}
	if l := c.LevelFor(math.MaxInt64); l <= 1 {
		t.Errorf("LevelFor(MaxInt64) = %d", l)
	}
}

func TestNewCurve_RejectsBadTables(t *testing.T) {
	tests := []struct {
		name string
		cfg  CurveConfig
	}{
		{"nonzero first", CurveConfig{Table: []int64{10, 100}, StepGrowth: 10}},
		{"not increasing", CurveConfig{Table: []int64{0, 100, 100}, StepGrowth: 10}},
		{"negative growth", CurveConfig{Table: []int64{0, 100}, StepGrowth: -1}},
		{"unreachable tail", CurveConfig{Table: []int64{0}, StepGrowth: 0}},
	}
	for _, tt := range tests {
		if _, err := NewCurve(tt.cfg); err == nil {
			t.Errorf("%s: NewCurve accepted %+v", tt.name, tt.cfg)
		}
	}
}

func TestNewCurve_SingleEntryTable(t *testing.T) {
	c, err := NewCurve(CurveConfig{Table: []int64{0}, StepGrowth: 100})
	if err != nil {
		t.Fatal(err)
	}
	// steps 100, 200, 300
	if c.Threshold(2) != 100 || c.Threshold(3) != 300 || c.Threshold(4) != 600 {
		t.Errorf("thresholds = %d %d %d", c.Threshold(2), c.Threshold(3), c.Threshold(4))
	}
}

// ─── ApplyXP ────────────────────────────────────────────────────────────────

func TestApplyXP_LevelUpAndPayout(t *testing.T) {
	e := newTestEngine(t)
	s0 := e.InitialState()

	s1, out, err := e.ApplyXP(s0, 260)
	if err != nil {
		t.Fatal(err)
	}
	if s1.XP != 260 || s1.Level != 3 || s1.NextLevelXP != 450 {
		t.Errorf("xp/level/next = %d/%d/%d, want 260/3/450", s1.XP, s1.Level, s1.NextLevelXP)
	}
	if !out.LeveledUp || out.FromLevel != 1 || out.ToLevel != 3 {
		t.Errorf("outcome = %+v", out)
	}
	if s1.Coins != 26 || s1.Points != 260 {
		t.Errorf("coins/points = %d/%d, want 26/260", s1.Coins, s1.Points)
	}
	if s0.XP != 0 || s0.Level != 1 {
		t.Error("input state mutated")
	}
}

func TestApplyXP_SplitEqualsCombined(t *testing.T) {
	e := newTestEngine(t)
	s0 := e.InitialState()
	for _, split := range [][2]int64{{40, 60}, {99, 1}, {0, 1400}, {700, 700}, {1, 2}} {
		a, _, _ := e.ApplyXP(s0, split[0])
		ab, _, _ := e.ApplyXP(a, split[1])
		c, _, _ := e.ApplyXP(s0, split[0]+split[1])

		if ab.XP != c.XP || ab.Level != c.Level || ab.NextLevelXP != c.NextLevelXP {
			t.Errorf("%v: split %d/%d/%d vs combined %d/%d/%d", split, ab.XP, ab.Level, ab.NextLevelXP, c.XP, c.Level, c.NextLevelXP)
		}
		if !slices.Equal(ab.Badges, c.Badges) || !slices.Equal(ab.UnlockedTitles, c.UnlockedTitles) {
			t.Errorf("%v: collectibles differ: %v/%v vs %v/%v", split, ab.Badges, ab.UnlockedTitles, c.Badges, c.UnlockedTitles)
		}
	}
}

func TestApplyXP_NegativeRejected(t *testing.T) {
	e := newTestEngine(t)
	s0 := e.InitialState()
	got, _, err := e.ApplyXP(s0, -1)
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Field != "delta" {
		t.Fatalf("err = %v, want ValidationError on delta", err)
	}
	if got.XP != 0 {
		t.Errorf("state changed: %+v", got)
	}
}

func TestApplyXP_UnlocksBadgeAndTitle(t *testing.T) {
	e := newTestEngine(t)
	s1, out, _ := e.ApplyXP(e.InitialState(), 100)

	if !slices.Equal(out.NewBadges, []domain.BadgeID{"apprentice"}) {
		t.Errorf("NewBadges = %v", out.NewBadges)
	}
	if !slices.Equal(out.NewTitles, []string{"Apprentice"}) {
		t.Errorf("NewTitles = %v", out.NewTitles)
	}
	if !s1.HasTitle("Apprentice") || !s1.HasTitle(domain.DefaultTitle) {
		t.Errorf("UnlockedTitles = %v", s1.UnlockedTitles)
	}
	if s1.CurrentTitle != domain.DefaultTitle {
		t.Errorf("CurrentTitle = %q, must not change automatically", s1.CurrentTitle)
	}

	// Already owned: no second unlock.
	_, out2, _ := e.ApplyXP(s1, 10)
	if len(out2.NewBadges) != 0 {
		t.Errorf("re-unlocked %v", out2.NewBadges)
	}
}

func TestApplyXP_FactCriteria(t *testing.T) {
	e := newTestEngine(t)
	s := e.InitialState()

	_, out, _ := e.ApplyXPWithFacts(s, 0, Facts{"streak.login": 2})
	if slices.Contains(out.NewBadges, "streak-3") {
		t.Error("streak-3 unlocked at streak 2")
	}
	s2, out, _ := e.ApplyXPWithFacts(s, 0, Facts{"streak.login": 3})
	if !slices.Contains(out.NewBadges, "streak-3") || !s2.HasBadge("streak-3") {
		t.Errorf("streak-3 not unlocked: %v", out.NewBadges)
	}
}

func TestApplyXP_LevelNeverDecreases(t *testing.T) {
	e := newTestEngine(t)
	s := e.InitialState()
	s.XP, s.Level = 500, 9 // level earned under an older, cheaper curve

	got, out, _ := e.ApplyXP(s, 10)
	if got.Level != 9 || out.LeveledUp {
		t.Errorf("level = %d, leveledUp = %v; want 9, false", got.Level, out.LeveledUp)
	}
	if got.NextLevelXP != e.Curve().Threshold(10) {
		t.Errorf("NextLevelXP = %d, want %d", got.NextLevelXP, e.Curve().Threshold(10))
	}
}

func TestApplyXP_SaturatesAtMax(t *testing.T) {
	e := newTestEngine(t)
	s := e.InitialState()
	s.XP = math.MaxInt64 - 5

	got, _, err := e.ApplyXP(s, 100)
	if err != nil {
		t.Fatal(err)
	}
	if got.XP != math.MaxInt64 {
		t.Errorf("XP = %d, want saturated MaxInt64", got.XP)
	}
	if got.Level <= 1 {
		t.Errorf("Level = %d", got.Level)
	}
}

func TestProgress(t *testing.T) {
	e := newTestEngine(t)
	s, _, _ := e.ApplyXP(e.InitialState(), 175) // level 2: 100..250
	if got := e.Progress(s); got != 50 {
		t.Errorf("Progress = %v, want 50", got)
	}
}

// ─── Titles & Coins ─────────────────────────────────────────────────────────

func TestEquipTitle(t *testing.T) {
	e := newTestEngine(t)
	s, _, _ := e.ApplyXP(e.InitialState(), 100)

	got, err := e.EquipTitle(s, "Apprentice")
	if err != nil {
		t.Fatal(err)
	}
	if got.CurrentTitle != "Apprentice" {
		t.Errorf("CurrentTitle = %q", got.CurrentTitle)
	}

	_, err = e.EquipTitle(s, "Grinder")
	var nu *domain.NotUnlockedError
	if !errors.As(err, &nu) || nu.Title != "Grinder" || !errors.Is(err, domain.ErrNotUnlocked) {
		t.Errorf("err = %v, want NotUnlockedError{Grinder}", err)
	}
	if _, err := e.EquipTitle(s, ""); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("empty title: err = %v, want ErrValidation", err)
	}
}

func TestSpendCoins(t *testing.T) {
	e := newTestEngine(t)
	s := e.InitialState()
	s.Coins = 30

	got, err := e.SpendCoins(s, 20)
	if err != nil || got.Coins != 10 {
		t.Fatalf("SpendCoins(20) = %d, %v; want 10, nil", got.Coins, err)
	}
	if _, err := e.SpendCoins(got, 11); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("overspend: err = %v, want ErrValidation", err)
	}
	if _, err := e.SpendCoins(got, 0); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("zero amount: err = %v, want ErrValidation", err)
	}
}

func TestNewRewardsEngine_RejectsDuplicateBadges(t *testing.T) {
	badges := append(testBadges(), testBadges()[0])
	if _, err := NewRewardsEngine(RewardsConfig{Curve: DefaultCurveConfig(), Badges: badges}); err == nil {
		t.Error("duplicate badge id accepted")
	}
}

// ─── XP Boosts ──────────────────────────────────────────────────────────────

func TestBoost(t *testing.T) {
	b := BoostConfig{LoginStreak: 1.5, Game: 1.5, DoubleXPWeekend: true}
	weekday, saturday := domain.MustParseDate("2026-03-10"), domain.MustParseDate("2026-03-14")

	tests := []struct {
		name   string
		base   int64
		c      domain.Category
		day    domain.Date
		streak int
		want   int64
	}{
		{"login without a run", 10, domain.CategoryLogin, weekday, 1, 10},
		{"login on a run", 10, domain.CategoryLogin, weekday, 2, 15},
		{"login on a weekend run", 10, domain.CategoryLogin, saturday, 5, 30},
		{"game", 45, domain.CategoryGame, weekday, 0, 67},
		{"journal on a weekend", 7, domain.CategoryJournal, saturday, 1, 14},
		{"journal on a weekday", 7, domain.CategoryJournal, weekday, 1, 7},
		{"nothing to scale", 0, domain.CategoryGame, saturday, 0, 0},
		{"saturates", math.MaxInt64 / 2, domain.CategoryGame, saturday, 0, math.MaxInt64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.Boost(tt.base, tt.c, tt.day, tt.streak); got != tt.want {
				t.Errorf("Boost(%d) = %d, want %d", tt.base, got, tt.want)
			}
		})
	}
}

func TestBoost_ZeroConfigIsIdentity(t *testing.T) {
	var b BoostConfig
	for _, c := range []domain.Category{domain.CategoryLogin, domain.CategoryGame, domain.CategoryJournal} {
		if m := b.Multiplier(c, domain.MustParseDate("2026-03-14"), 9); m != 1 {
			t.Errorf("Multiplier(%s) = %v, want 1", c, m)
		}
	}
}

func TestNewRewardsEngine_RejectsNegativeBoost(t *testing.T) {
	_, err := NewRewardsEngine(RewardsConfig{
		Curve:  DefaultCurveConfig(),
		Payout: DefaultPayoutConfig(),
		Boosts: BoostConfig{Game: -1},
	})
	if err == nil {
		t.Fatal("expected an error for a negative multiplier")
	}
}
