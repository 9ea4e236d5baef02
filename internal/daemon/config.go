// Package daemon loads configuration and wires the store, engines and HTTP
// server into a running process.
package daemon

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/eduverse-ninja/dojo/internal/app/engagement"
	"github.com/eduverse-ninja/dojo/internal/domain"
	"github.com/eduverse-ninja/dojo/internal/infra/observability"
	"github.com/eduverse-ninja/dojo/internal/logger"
)

// Config is the full dojo configuration, read from ~/.dojo/config.toml.
type Config struct {
	API         APIConfig                  `toml:"api"`
	Storage     StorageConfig              `toml:"storage"`
	Streaks     StreaksConfig              `toml:"streaks"`
	Rewards     RewardsConfig              `toml:"rewards"`
	Leaderboard LeaderboardConfig          `toml:"leaderboard"`
	Log         logger.Config              `toml:"log"`
	Tracing     observability.TracerConfig `toml:"tracing"`
	Games       []domain.GameDef           `toml:"games"`
	Badges      []domain.BadgeDef          `toml:"badges"`
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	CORSOrigins    []string `toml:"cors_origins"`
	RequestTimeout string   `toml:"request_timeout"` // e.g. "30s"
	Metrics        bool     `toml:"metrics"`
	ScoreRateLimit float64  `toml:"score_rate_limit"` // submissions per second per user
	ScoreBurst     int      `toml:"score_burst"`
}

// StorageConfig locates the database.
type StorageConfig struct {
	DataDir    string `toml:"data_dir"`
	SessionTTL string `toml:"session_ttl"` // idle time before a cached user is evicted, e.g. "10m"
}

// StreaksConfig tunes the streak tracker.
type StreaksConfig struct {
	RetentionDays int   `toml:"retention_days"`
	CurrentWeight int64 `toml:"current_weight"`
	LongestWeight int64 `toml:"longest_weight"`
	GraceDays     int   `toml:"grace_days"`    // missed days forgiven for free
	FreezeLimit   int   `toml:"freeze_limit"`  // 0 disables freezes
	FreezeCost    int64 `toml:"freeze_cost"`   // coins
	RecoveryCost  int64 `toml:"recovery_cost"` // coins
}

// RewardsConfig tunes the level curve and payouts.
type RewardsConfig struct {
	LevelTable  []int64          `toml:"level_table"`
	StepGrowth  int64            `toml:"step_growth"`
	CoinsPerXP  float64          `toml:"coins_per_xp"`
	PointsPerXP float64          `toml:"points_per_xp"`
	ActivityXP  map[string]int64 `toml:"activity_xp"`
	Boosts      BoostsConfig     `toml:"boosts"`
}

// BoostsConfig holds XP multipliers. 1 leaves a grant unchanged.
type BoostsConfig struct {
	LoginStreak     float64 `toml:"login_streak"`
	Game            float64 `toml:"game"`
	DoubleXPWeekend bool    `toml:"double_xp_weekend"`
}

// LeaderboardConfig tunes leaderboard reads and game boards.
type LeaderboardConfig struct {
	PageSize    int     `toml:"page_size"`
	MaxLimit    int     `toml:"max_limit"`
	GameTopK    int     `toml:"game_top_k"`
	GameXPRatio float64 `toml:"game_xp_ratio"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	curve := engagement.DefaultCurveConfig()
	payout := engagement.DefaultPayoutConfig()
	streaks := engagement.DefaultStreakConfig()
	games := engagement.DefaultGameConfig()

	activity := make(map[string]int64)
	for c, xp := range engagement.DefaultActivityXP() {
		activity[string(c)] = xp
	}

	return Config{
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           8088,
			CORSOrigins:    []string{"http://localhost:3000"},
			RequestTimeout: "30s",
			Metrics:        true,
			ScoreRateLimit: 1,
			ScoreBurst:     5,
		},
		Storage: StorageConfig{
			DataDir:    defaultDataDir(),
			SessionTTL: engagement.DefaultSessionTTL.String(),
		},
		Streaks: StreaksConfig{
			RetentionDays: streaks.RetentionDays,
			CurrentWeight: streaks.CurrentWeight,
			LongestWeight: streaks.LongestWeight,
			GraceDays:     streaks.GraceDays,
			FreezeLimit:   streaks.FreezeLimit,
			FreezeCost:    streaks.FreezeCost,
			RecoveryCost:  streaks.RecoveryCost,
		},
		Rewards: RewardsConfig{
			LevelTable:  curve.Table,
			StepGrowth:  curve.StepGrowth,
			CoinsPerXP:  payout.CoinsPerXP,
			PointsPerXP: payout.PointsPerXP,
			ActivityXP:  activity,
			Boosts:      BoostsConfig{LoginStreak: 1, Game: 1},
		},
		Leaderboard: LeaderboardConfig{
			PageSize:    20,
			MaxLimit:    1000,
			GameTopK:    games.TopK,
			GameXPRatio: games.DefaultXPRatio,
		},
		Log:     logger.Config{Level: "info", Format: "json"},
		Tracing: observability.DefaultTracerConfig(),
		Games:   DefaultGames(),
		Badges:  DefaultBadges(),
	}
}

// DefaultGames is the stock mini-game catalog.
func DefaultGames() []domain.GameDef {
	return []domain.GameDef{
		{ID: "memory-match", Name: "Memory Match", Category: "brain", Status: domain.GameActive},
		{ID: "math-sprint", Name: "Math Sprint", Category: "math", Status: domain.GameActive, XPRatio: 0.2},
		{ID: "word-quest", Name: "Word Quest", Category: "language", Status: domain.GameActive},
	}
}

// DefaultBadges is the stock badge catalog.
func DefaultBadges() []domain.BadgeDef {
	return []domain.BadgeDef{
		{ID: "rising-star", Name: "Rising Star", Type: "level", Icon: "star",
			Description: "Reach level 5", Criterion: domain.Criterion{Metric: "level", Threshold: 5}, GrantsTitle: "Rising Star"},
		{ID: "scholar", Name: "Scholar", Type: "level", Icon: "book",
			Description: "Reach level 10", Criterion: domain.Criterion{Metric: "level", Threshold: 10}, GrantsTitle: "Scholar"},
		{ID: "week-warrior", Name: "Week Warrior", Type: "streak", Icon: "flame",
			Description: "Keep any streak for 7 days", Criterion: domain.Criterion{Metric: "streak.best", Threshold: 7}, GrantsTitle: "Week Warrior"},
		{ID: "reflective-mind", Name: "Reflective Mind", Type: "journal", Icon: "pen",
			Description: "Write 10 journal entries", Criterion: domain.Criterion{Metric: "count.journal", Threshold: 10}},
		{ID: "arcade-ace", Name: "Arcade Ace", Type: "funzone", Icon: "gamepad",
			Description: "Score 1000 points across mini-games", Criterion: domain.Criterion{Metric: "count.game", Threshold: 1000}},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dojo"
	}
	return filepath.Join(home, ".dojo")
}

// DefaultConfigPath returns ~/.dojo/config.toml.
func DefaultConfigPath() string {
	return filepath.Join(defaultDataDir(), "config.toml")
}

// LoadConfig reads path over the defaults. A missing file is not an error.
// Catalogs given in the file replace the stock ones.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	// Decoding into the default catalogs would merge file entries into
	// default entries by index. Start empty; restore only if absent.
	cfg.Games, cfg.Badges = nil, nil
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if !md.IsDefined("games") {
		cfg.Games = DefaultGames()
	}
	if !md.IsDefined("badges") {
		cfg.Badges = DefaultBadges()
	}
	if keys := md.Undecoded(); len(keys) > 0 {
		return cfg, fmt.Errorf("config %s: unknown key %q", path, keys[0].String())
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks ranges and builds the engines once to catch bad curves and
// catalogs before serving.
func (c Config) Validate() error {
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	if _, err := c.RequestTimeout(); err != nil {
		return err
	}
	if c.API.ScoreRateLimit < 0 || c.API.ScoreBurst < 0 {
		return fmt.Errorf("api.score_rate_limit and api.score_burst must not be negative")
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir must be set")
	}
	if _, err := c.SessionTTL(); err != nil {
		return err
	}
	if c.Streaks.RetentionDays < 1 {
		return fmt.Errorf("streaks.retention_days must be >= 1")
	}
	if c.Streaks.CurrentWeight < 0 || c.Streaks.LongestWeight < 0 {
		return fmt.Errorf("streaks.current_weight and streaks.longest_weight must not be negative")
	}
	if c.Streaks.GraceDays < 0 || c.Streaks.FreezeLimit < 0 {
		return fmt.Errorf("streaks.grace_days and streaks.freeze_limit must not be negative")
	}
	if c.Streaks.FreezeCost < 0 || c.Streaks.RecoveryCost < 0 {
		return fmt.Errorf("streaks.freeze_cost and streaks.recovery_cost must not be negative")
	}
	if c.Leaderboard.PageSize < 1 || c.Leaderboard.MaxLimit < 1 {
		return fmt.Errorf("leaderboard.page_size and leaderboard.max_limit must be >= 1")
	}
	for _, g := range c.Games {
		if g.ID == "" {
			return fmt.Errorf("games: entry %q has no id", g.Name)
		}
		switch g.Status {
		case "", domain.GameActive, domain.GameMaintenance:
		default:
			return fmt.Errorf("games.%s: unknown status %q", g.ID, g.Status)
		}
	}
	_, err := c.Engagement()
	return err
}

// RequestTimeout parses api.request_timeout.
func (c Config) RequestTimeout() (time.Duration, error) {
	if c.API.RequestTimeout == "" {
		return 30 * time.Second, nil
	}
	d, err := time.ParseDuration(c.API.RequestTimeout)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("api.request_timeout %q is not a positive duration", c.API.RequestTimeout)
	}
	return d, nil
}

// SessionTTL parses storage.session_ttl.
func (c Config) SessionTTL() (time.Duration, error) {
	if c.Storage.SessionTTL == "" {
		return engagement.DefaultSessionTTL, nil
	}
	d, err := time.ParseDuration(c.Storage.SessionTTL)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("storage.session_ttl %q is not a positive duration", c.Storage.SessionTTL)
	}
	return d, nil
}

// Addr returns host:port for the HTTP listener.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

// Engagement converts the file layout into engine configuration.
func (c Config) Engagement() (engagement.Config, error) {
	activity := make(map[domain.Category]int64, len(c.Rewards.ActivityXP))
	for name, xp := range c.Rewards.ActivityXP {
		cat, err := domain.ParseCategory(name)
		if err != nil {
			return engagement.Config{}, fmt.Errorf("rewards.activity_xp: %w", err)
		}
		if xp < 0 {
			return engagement.Config{}, fmt.Errorf("rewards.activity_xp.%s must not be negative", name)
		}
		activity[cat] = xp
	}

	ec := engagement.Config{
		Streaks: engagement.StreakConfig{
			RetentionDays: c.Streaks.RetentionDays,
			CurrentWeight: c.Streaks.CurrentWeight,
			LongestWeight: c.Streaks.LongestWeight,
			GraceDays:     c.Streaks.GraceDays,
			FreezeLimit:   c.Streaks.FreezeLimit,
			FreezeCost:    c.Streaks.FreezeCost,
			RecoveryCost:  c.Streaks.RecoveryCost,
		},
		Rewards: engagement.RewardsConfig{
			Curve:      engagement.CurveConfig{Table: c.Rewards.LevelTable, StepGrowth: c.Rewards.StepGrowth},
			Payout:     engagement.PayoutConfig{CoinsPerXP: c.Rewards.CoinsPerXP, PointsPerXP: c.Rewards.PointsPerXP},
			Badges:     c.Badges,
			ActivityXP: activity,
			Boosts: engagement.BoostConfig{
				LoginStreak:     c.Rewards.Boosts.LoginStreak,
				Game:            c.Rewards.Boosts.Game,
				DoubleXPWeekend: c.Rewards.Boosts.DoubleXPWeekend,
			},
		},
		Games: engagement.GameConfig{
			TopK:           c.Leaderboard.GameTopK,
			DefaultXPRatio: c.Leaderboard.GameXPRatio,
			Catalog:        c.Games,
		},
	}
	if _, err := engagement.NewRewardsEngine(ec.Rewards); err != nil {
		return engagement.Config{}, fmt.Errorf("rewards: %w", err)
	}
	return ec, nil
}

// Encode writes c as TOML.
func (c Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}
