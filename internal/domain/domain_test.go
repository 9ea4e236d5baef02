package domain

import (
	"errors"
	"math"
	"testing"
	"time"
)

// ─── Date Tests ─────────────────────────────────────────────────────────────

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		want    Date
		wantErr bool
	}{
		{in: "2025-03-01", want: Date{2025, time.March, 1}},
		{in: "2024-02-29", want: Date{2024, time.February, 29}},
		{in: "2025-02-29", wantErr: true},
		{in: "2025-13-01", wantErr: true},
		{in: "yesterday", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDate(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("ParseDate(%q) error = %v, want ErrValidation", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDate(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseDate_RejectsImpossibleDay(t *testing.T) {
	if _, err := ParseDate("2025-04-31"); err == nil {
		t.Error("April 31 should be rejected")
	}
	if _, err := ParseDate("2025-04-30"); err != nil {
		t.Errorf("April 30 rejected: %v", err)
	}
}

func TestDate_DaysSince(t *testing.T) {
	a := MustParseDate("2024-12-31")
	b := MustParseDate("2025-01-01")
	if got := b.DaysSince(a); got != 1 {
		t.Errorf("DaysSince across year = %d, want 1", got)
	}
	if got := a.DaysSince(b); got != -1 {
		t.Errorf("reverse DaysSince = %d, want -1", got)
	}
	if got := MustParseDate("2024-03-01").DaysSince(MustParseDate("2024-02-28")); got != 2 {
		t.Errorf("leap-year gap = %d, want 2", got)
	}
	if got := MustParseDate("2026-03-14").Weekday(); got != time.Saturday {
		t.Errorf("Weekday = %v, want Saturday", got)
	}
	if got := a.AddDays(1); got != b {
		t.Errorf("AddDays(1) = %v, want %v", got, b)
	}
}

func TestDate_TextRoundTrip(t *testing.T) {
	d := MustParseDate("2025-06-01")
	b, err := d.MarshalText()
	if err != nil {
		t.Fatal(err)
	}
	var back Date
	if err := back.UnmarshalText(b); err != nil {
		t.Fatal(err)
	}
	if back != d {
		t.Errorf("round trip = %v, want %v", back, d)
	}
}

// ─── Activity Event Tests ───────────────────────────────────────────────────

func TestActivityEvent_Validate(t *testing.T) {
	valid := ActivityEvent{UserID: "u1", Category: CategoryJournal, OccurredOn: MustParseDate("2025-06-01"), MetricDelta: 1}

	tests := []struct {
		name  string
		mut   func(*ActivityEvent)
		field string
	}{
		{"ok", func(*ActivityEvent) {}, ""},
		{"missing user", func(e *ActivityEvent) { e.UserID = "" }, "userId"},
		{"bad category", func(e *ActivityEvent) { e.Category = "sleep" }, "category"},
		{"zero date", func(e *ActivityEvent) { e.OccurredOn = Date{} }, "occurredOn"},
		{"nan delta", func(e *ActivityEvent) { e.MetricDelta = math.NaN() }, "metricDelta"},
		{"negative delta", func(e *ActivityEvent) { e.MetricDelta = -1 }, "metricDelta"},
		{"game without id", func(e *ActivityEvent) { e.Category = CategoryGame }, "gameId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := valid
			tt.mut(&ev)
			err := ev.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("Validate() error: %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Validate() = %v, want ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Errorf("Field = %q, want %q", ve.Field, tt.field)
			}
		})
	}
}

func TestCategory_StreakCategory(t *testing.T) {
	if CategoryGame.StreakCategory() != CategoryFunzone {
		t.Error("game events should feed the funzone streak")
	}
	if CategoryJournal.StreakCategory() != CategoryJournal {
		t.Error("journal should map to itself")
	}
}

// ─── Rewards State Tests ────────────────────────────────────────────────────

func TestRewardsState_Sets(t *testing.T) {
	r := NewRewardsState(100)
	if !r.HasTitle(DefaultTitle) || r.CurrentTitle != DefaultTitle {
		t.Fatalf("new state should start with %q", DefaultTitle)
	}
	if !r.AddBadge("b2") || !r.AddBadge("b1") {
		t.Fatal("AddBadge should report insertion")
	}
	if r.AddBadge("b1") {
		t.Error("duplicate AddBadge should be a no-op")
	}
	if r.Badges[0] != "b1" || r.Badges[1] != "b2" {
		t.Errorf("badges not sorted: %v", r.Badges)
	}

	c := r.Clone()
	c.AddTitle("Sensei")
	if r.HasTitle("Sensei") {
		t.Error("Clone shares title storage with original")
	}
}

// ─── Error Tests ────────────────────────────────────────────────────────────

func TestErrors_Is(t *testing.T) {
	if !errors.Is(Invalid("score", "bad"), ErrValidation) {
		t.Error("ValidationError should match ErrValidation")
	}
	if !errors.Is(&NotUnlockedError{Title: "x"}, ErrNotUnlocked) {
		t.Error("NotUnlockedError should match ErrNotUnlocked")
	}
	pe := Persist("save", ErrConflict)
	if !errors.Is(pe, ErrPersistence) || !errors.Is(pe, ErrConflict) {
		t.Errorf("PersistenceError should match both sentinels: %v", pe)
	}
	if Persist("again", pe) != pe {
		t.Error("Persist should not double-wrap")
	}
	if Persist("nil", nil) != nil {
		t.Error("Persist(nil) should be nil")
	}
}

// ─── Aggregate Tests ────────────────────────────────────────────────────────

func TestNewUserAggregate_Defaults(t *testing.T) {
	a := NewUserAggregate("u1", "Ninja", 100)
	if a.SchemaVersion != CurrentSchemaVersion {
		t.Errorf("SchemaVersion = %d", a.SchemaVersion)
	}
	for _, c := range StreakCategories {
		if _, ok := a.Streaks[c]; !ok {
			t.Errorf("missing streak %s", c)
		}
	}
	if a.Rewards.Level != 1 || a.Rewards.NextLevelXP != 100 {
		t.Errorf("rewards = %+v", a.Rewards)
	}
}

func TestUserAggregate_CloneIsDeep(t *testing.T) {
	a := NewUserAggregate("u1", "", 100)
	d := MustParseDate("2025-01-01")
	s := a.Streaks[CategoryLogin]
	s.LastActive = &d
	s.History = append(s.History, d)
	a.Streaks[CategoryLogin] = s

	c := a.Clone()
	*c.Streaks[CategoryLogin].LastActive = MustParseDate("2030-01-01")
	c.Counters[CategoryTools] = 9

	if *a.Streaks[CategoryLogin].LastActive != d {
		t.Error("Clone shares LastActive pointer")
	}
	if a.Counters[CategoryTools] != 0 {
		t.Error("Clone shares counters map")
	}
	if a.Name() != "u1" {
		t.Errorf("Name() fallback = %q", a.Name())
	}
}

func TestUserAggregate_PushRecentScore(t *testing.T) {
	a := NewUserAggregate("u1", "", 100)
	for i := 0; i < MaxRecentScores+3; i++ {
		a.PushRecentScore(RecentScore{GameID: "snake", Score: float64(i)})
	}
	if len(a.RecentScores) != MaxRecentScores {
		t.Fatalf("len = %d, want %d", len(a.RecentScores), MaxRecentScores)
	}
	if a.RecentScores[0].Score != float64(MaxRecentScores+2) {
		t.Errorf("newest first expected, got %v", a.RecentScores[0].Score)
	}
}

func TestWallet_AppendBounded(t *testing.T) {
	var w Wallet
	for i := 0; i < MaxWalletEntries+5; i++ {
		w.Append(LedgerEntry{Amount: int64(i)})
	}
	if len(w.Transactions) != MaxWalletEntries {
		t.Fatalf("len = %d", len(w.Transactions))
	}
	if w.Transactions[0].Amount != 5 {
		t.Errorf("oldest retained = %d, want 5", w.Transactions[0].Amount)
	}
}
