package daemon

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/eduverse-ninja/dojo/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.API.Port != 8088 {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, 8088)
	}
	if cfg.Streaks.RetentionDays != 365 {
		t.Errorf("Streaks.RetentionDays = %d, want %d", cfg.Streaks.RetentionDays, 365)
	}
	if cfg.Leaderboard.GameTopK != 5 {
		t.Errorf("Leaderboard.GameTopK = %d, want %d", cfg.Leaderboard.GameTopK, 5)
	}
	if cfg.Rewards.ActivityXP["journal"] != 20 {
		t.Errorf("Rewards.ActivityXP[journal] = %d, want %d", cfg.Rewards.ActivityXP["journal"], 20)
	}
	if len(cfg.Games) == 0 || len(cfg.Badges) == 0 {
		t.Error("default catalogs should not be empty")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.API.Port != DefaultConfig().API.Port {
		t.Errorf("port = %d, want default", cfg.API.Port)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[api]
port = 9000
request_timeout = "10s"

[streaks]
retention_days = 30

[rewards.activity_xp]
journal = 50

[[games]]
id = "snake"
name = "Snake"
status = "maintenance"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.API.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.API.Port)
	}
	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("host = %q, want default kept", cfg.API.Host)
	}
	if d, _ := cfg.RequestTimeout(); d != 10*time.Second {
		t.Errorf("request timeout = %v, want 10s", d)
	}
	if cfg.Streaks.RetentionDays != 30 {
		t.Errorf("retention = %d, want 30", cfg.Streaks.RetentionDays)
	}
	if cfg.Rewards.ActivityXP["journal"] != 50 || cfg.Rewards.ActivityXP["login"] != 10 {
		t.Errorf("activity xp = %v", cfg.Rewards.ActivityXP)
	}
	if len(cfg.Games) != 1 || cfg.Games[0].ID != "snake" || cfg.Games[0].Status != domain.GameMaintenance {
		t.Errorf("games = %+v, want only snake", cfg.Games)
	}
	if len(cfg.Badges) != len(DefaultBadges()) {
		t.Errorf("badges = %d, want defaults", len(cfg.Badges))
	}
}

func TestLoadConfig_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"syntax", "[api\nport = 1", "parse config"},
		{"unknown key", "[api]\nprot = 1", "unknown key"},
		{"port", "[api]\nport = 70000", "api.port"},
		{"timeout", "[api]\nrequest_timeout = \"soon\"", "request_timeout"},
		{"retention", "[streaks]\nretention_days = 0", "retention_days"},
		{"current weight", "[streaks]\ncurrent_weight = -1", "current_weight"},
		{"longest weight", "[streaks]\nlongest_weight = -2", "longest_weight"},
		{"grace", "[streaks]\ngrace_days = -1", "grace_days"},
		{"recovery cost", "[streaks]\nrecovery_cost = -5", "recovery_cost"},
		{"boost", "[rewards.boosts]\ngame = -1.5", "boost"},
		{"session ttl", "[storage]\nsession_ttl = \"0s\"", "session_ttl"},
		{"category", "[rewards.activity_xp]\nchess = 5", "activity_xp"},
		{"curve", "[rewards]\nlevel_table = [0, 100, 50]", "rewards"},
		{"game status", "[[games]]\nid = \"x\"\nstatus = \"retired\"", "unknown status"},
		{"duplicate badge", "[[badges]]\nid = \"a\"\n[[badges]]\nid = \"a\"", "rewards"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tt.data), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := LoadConfig(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestConfigEngagement(t *testing.T) {
	cfg := DefaultConfig()
	ec, err := cfg.Engagement()
	if err != nil {
		t.Fatalf("Engagement: %v", err)
	}
	if ec.Rewards.ActivityXP[domain.CategoryLogin] != 10 {
		t.Errorf("login xp = %d, want 10", ec.Rewards.ActivityXP[domain.CategoryLogin])
	}
	if ec.Games.TopK != 5 || len(ec.Games.Catalog) != len(cfg.Games) {
		t.Errorf("games = %+v", ec.Games)
	}

	cfg.Streaks.GraceDays = 1
	cfg.Streaks.RecoveryCost = 25
	cfg.Rewards.Boosts = BoostsConfig{LoginStreak: 1.5, Game: 1, DoubleXPWeekend: true}
	ec, err = cfg.Engagement()
	if err != nil {
		t.Fatalf("Engagement: %v", err)
	}
	if ec.Streaks.GraceDays != 1 || ec.Streaks.RecoveryCost != 25 {
		t.Errorf("streaks = %+v", ec.Streaks)
	}
	if ec.Rewards.Boosts.LoginStreak != 1.5 || !ec.Rewards.Boosts.DoubleXPWeekend {
		t.Errorf("boosts = %+v", ec.Rewards.Boosts)
	}
	if ttl, _ := cfg.SessionTTL(); ttl != 10*time.Minute {
		t.Errorf("session ttl = %v, want 10m", ttl)
	}
}

func TestConfigEncodeRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.Port = 9100

	var buf bytes.Buffer
	if err := cfg.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got.API.Port != 9100 {
		t.Errorf("port = %d, want 9100", got.API.Port)
	}
	if len(got.Games) != len(cfg.Games) || len(got.Badges) != len(cfg.Badges) {
		t.Errorf("catalogs changed: %d games, %d badges", len(got.Games), len(got.Badges))
	}
}

func TestAddr(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.Addr(); got != "127.0.0.1:8088" {
		t.Errorf("Addr() = %q", got)
	}
}
